package pipeline

import (
	"context"
	"fmt"

	"sbomflow/internal/bus"
	"sbomflow/internal/catalog"
	"sbomflow/internal/logging"
	"sbomflow/internal/workflow"
)

func (d *Driver) handleCloneRequest(ctx context.Context, delivery bus.Delivery) error {
	req, ok := delivery.Message.(bus.CloneRequest)
	if !ok {
		return nil
	}
	return d.ProcessClone(ctx, req)
}

// ProcessClone copies a project under a new version, components and services
// included, while tracking progress on the single-step PROJECT_CLONE flow.
// Clients observe progress through the workflow query surface.
func (d *Driver) ProcessClone(ctx context.Context, req bus.CloneRequest) error {
	d.markStarted(ctx, req.Token, workflow.StepProjectClone)

	clone, err := d.cloneProject(ctx, req)
	if err != nil {
		if markErr := d.workflows.MarkFailed(ctx, req.Token, workflow.StepProjectClone, err.Error()); markErr != nil {
			d.logTransitionFailure(req.Token, workflow.StepProjectClone, markErr)
		}
		d.logger.Error("project clone failed",
			logging.String(logging.FieldChainToken, req.Token),
			logging.String(logging.FieldProject, req.SourceUUID),
			logging.Error(err),
		)
		return nil
	}

	d.markCompleted(ctx, req.Token, workflow.StepProjectClone)
	d.logger.Info("project cloned",
		logging.String(logging.FieldChainToken, req.Token),
		logging.String(logging.FieldProject, clone.UUID),
		logging.String("version", clone.Version),
	)
	return nil
}

func (d *Driver) cloneProject(ctx context.Context, req bus.CloneRequest) (*catalog.Project, error) {
	source, err := d.catalog.GetProjectByUUID(ctx, req.SourceUUID)
	if err != nil {
		return nil, fmt.Errorf("resolve source project: %w", err)
	}
	if source == nil {
		return nil, fmt.Errorf("source project %s does not exist", req.SourceUUID)
	}
	if existing, err := d.catalog.GetProjectByNameVersion(ctx, source.Name, req.NewVersion); err != nil {
		return nil, fmt.Errorf("check target version: %w", err)
	} else if existing != nil {
		return nil, fmt.Errorf("project %s already has version %s", source.Name, req.NewVersion)
	}

	components, err := d.catalog.ListComponents(ctx, source.ID)
	if err != nil {
		return nil, fmt.Errorf("list source components: %w", err)
	}
	services, err := d.catalog.ListServices(ctx, source.ID)
	if err != nil {
		return nil, fmt.Errorf("list source services: %w", err)
	}

	var clone *catalog.Project
	err = d.catalog.InTx(ctx, func(tx *catalog.Tx) error {
		var txErr error
		clone, txErr = tx.CreateProject(ctx, &catalog.Project{
			Group:              source.Group,
			Name:               source.Name,
			Version:            req.NewVersion,
			Classifier:         source.Classifier,
			Purl:               source.Purl,
			Supplier:           source.Supplier,
			Manufacturer:       source.Manufacturer,
			Authors:            source.Authors,
			ExternalReferences: source.ExternalReferences,
			DirectDependencies: source.DirectDependencies,
		})
		if txErr != nil {
			return fmt.Errorf("create clone: %w", txErr)
		}

		for _, component := range components {
			copied := *component
			copied.ID = 0
			copied.UUID = ""
			copied.ProjectID = clone.ID
			if _, err := tx.InsertComponent(ctx, &copied); err != nil {
				return fmt.Errorf("copy component %s: %w", component.Name, err)
			}
		}

		copiedServices := make([]*catalog.Service, 0, len(services))
		for _, service := range services {
			copied := *service
			copied.ID = 0
			copied.UUID = ""
			copied.ProjectID = clone.ID
			copiedServices = append(copiedServices, &copied)
		}
		return tx.ReplaceServices(ctx, clone.ID, copiedServices)
	})
	if err != nil {
		return nil, err
	}
	return clone, nil
}
