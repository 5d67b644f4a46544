package ingest

import (
	"context"
	"fmt"
	"strings"

	"sbomflow/internal/catalog"
	"sbomflow/internal/cdx"
	"sbomflow/internal/licenses"
	"sbomflow/internal/logging"
)

// matchStrategy locates an existing component for a declared one. Strategies
// run in order; the first hit wins, which keeps the tie-break order auditable.
type matchStrategy func(ctx context.Context, tx *catalog.Tx, projectID int64, declared *catalog.Component) (*catalog.Component, error)

var matchStrategies = []matchStrategy{
	matchByPurl,
	matchByCoordinates,
}

func matchByPurl(ctx context.Context, tx *catalog.Tx, projectID int64, declared *catalog.Component) (*catalog.Component, error) {
	if declared.Purl == "" {
		return nil, nil
	}
	return tx.FindComponentByPurl(ctx, projectID, declared.Purl)
}

func matchByCoordinates(ctx context.Context, tx *catalog.Tx, projectID int64, declared *catalog.Component) (*catalog.Component, error) {
	return tx.FindComponentByCoordinates(ctx, projectID, declared.Group, declared.Name, declared.Version, declared.Classifier)
}

// merge folds the decoded manifest into the portfolio graph within one
// transaction: upsert components by ordered match strategies, drop components
// no longer declared, replace services, apply project metadata overrides and
// stamp the import. Re-running the same manifest leaves the graph unchanged.
func (p *Pipeline) merge(ctx context.Context, tx *catalog.Tx, token string, project *catalog.Project, bom *cdx.Bom) ([]*catalog.Component, error) {
	staged := bom.AllComponents()
	edges := dependencyIdentities(bom, staged)

	var merged []*catalog.Component
	var keep []int64
	for i := range staged {
		declared := &staged[i]
		if strings.TrimSpace(declared.Name) == "" {
			p.logger.Warn("skipping component without a name",
				logging.String(logging.FieldChainToken, token),
				logging.String("bom_ref", declared.BOMRef),
			)
			continue
		}

		target := p.mapComponent(ctx, tx, project.ID, declared)
		target.DirectDependencies = edges[declared.BOMRef]

		existing, err := p.matchExisting(ctx, tx, project.ID, target)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			target.ID = existing.ID
			target.UUID = existing.UUID
			target.CreatedAt = existing.CreatedAt
			if err := tx.UpdateComponent(ctx, target); err != nil {
				return nil, fmt.Errorf("update component %s: %w", target.Name, err)
			}
		} else {
			if _, err := tx.InsertComponent(ctx, target); err != nil {
				p.logger.Warn("skipping unmergeable component",
					logging.String(logging.FieldChainToken, token),
					logging.String("component", target.Name),
					logging.Error(err),
				)
				continue
			}
		}
		merged = append(merged, target)
		keep = append(keep, target.ID)
	}

	if _, err := tx.DeleteComponentsExcept(ctx, project.ID, keep); err != nil {
		return nil, fmt.Errorf("prune components: %w", err)
	}

	if err := tx.ReplaceServices(ctx, project.ID, mapServices(project.ID, bom.Services)); err != nil {
		return nil, fmt.Errorf("replace services: %w", err)
	}

	applyProjectMetadata(project, bom)
	now := p.now().UTC()
	project.LastBomImport = &now
	project.LastBomImportFormat = cdx.FormatCycloneDX
	if err := tx.UpdateProject(ctx, project); err != nil {
		return nil, fmt.Errorf("stamp project: %w", err)
	}

	if err := tx.RecordBomImport(ctx, &catalog.BomImport{
		ProjectID:    project.ID,
		Format:       cdx.FormatCycloneDX,
		SpecVersion:  bom.SpecVersion,
		BomVersion:   bom.Version,
		SerialNumber: bom.SerialNumber,
		ImportedAt:   now,
	}); err != nil {
		return nil, fmt.Errorf("record import: %w", err)
	}

	return merged, nil
}

func (p *Pipeline) matchExisting(ctx context.Context, tx *catalog.Tx, projectID int64, declared *catalog.Component) (*catalog.Component, error) {
	for _, strategy := range matchStrategies {
		existing, err := strategy(ctx, tx, projectID, declared)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}
	return nil, nil
}

// mapComponent converts a declared component to its persisted shape,
// including license resolution against the registry.
func (p *Pipeline) mapComponent(ctx context.Context, tx *catalog.Tx, projectID int64, declared *cdx.Component) *catalog.Component {
	component := &catalog.Component{
		ProjectID:   projectID,
		Group:       declared.Group,
		Name:        declared.Name,
		Version:     declared.Version,
		Classifier:  catalog.ParseClassifier(declared.Type),
		Purl:        declared.Purl,
		CPE:         declared.CPE,
		Description: declared.Description,
		Author:      declared.Author,
		Publisher:   declared.Publisher,
		Supplier:    mapEntity(declared.Supplier),
	}
	p.applyLicense(ctx, tx, component, declared.Licenses)
	return component
}

// applyLicense resolves the declared license onto the component while
// preserving the at-most-one-of invariant between the free-text name and the
// resolved reference. Resolution failures degrade to the free-text or
// expression form, never to an error.
func (p *Pipeline) applyLicense(ctx context.Context, tx *catalog.Tx, component *catalog.Component, choices []cdx.LicenseChoice) {
	if len(choices) == 0 {
		return
	}
	choice := choices[0]

	if choice.Expression != "" {
		component.LicenseExpression = choice.Expression
		if canonical, ok := licenses.ResolveExpression(choice.Expression); ok {
			if registered := p.lookupLicense(ctx, tx, canonical); registered != nil {
				component.ResolvedLicenseID = &registered.ID
			}
		}
		return
	}

	ref := choice.License
	if ref == nil {
		return
	}
	component.LicenseURL = ref.URL
	if ref.ID != "" {
		if registered := p.lookupLicense(ctx, tx, ref.ID); registered != nil {
			component.ResolvedLicenseID = &registered.ID
			return
		}
		component.LicenseName = ref.ID
		return
	}
	if ref.Name != "" {
		if registered := p.lookupLicense(ctx, tx, ref.Name); registered != nil {
			component.ResolvedLicenseID = &registered.ID
			return
		}
		component.LicenseName = ref.Name
	}
}

func (p *Pipeline) lookupLicense(ctx context.Context, tx *catalog.Tx, id string) *catalog.License {
	registered, err := tx.GetLicense(ctx, id)
	if err != nil {
		p.logger.Warn("license lookup failed", logging.String("license", id), logging.Error(err))
		return nil
	}
	return registered
}

// dependencyIdentities maps each declared bom-ref to the identities of the
// components it depends on. Identity is the target's purl when present, else
// its name@version. Edges pointing at unknown refs are dropped; a component
// with no edges keeps a nil set, marking it a leaf.
func dependencyIdentities(bom *cdx.Bom, staged []cdx.Component) map[string][]string {
	identity := make(map[string]string, len(staged))
	for i := range staged {
		component := &staged[i]
		if component.BOMRef == "" {
			continue
		}
		identity[component.BOMRef] = componentIdentity(component)
	}
	if bom.Metadata != nil && bom.Metadata.Component != nil && bom.Metadata.Component.BOMRef != "" {
		identity[bom.Metadata.Component.BOMRef] = componentIdentity(bom.Metadata.Component)
	}

	edges := make(map[string][]string, len(bom.Dependencies))
	for _, dependency := range bom.Dependencies {
		var targets []string
		for _, ref := range dependency.DependsOn {
			if target, ok := identity[ref]; ok {
				targets = append(targets, target)
			}
		}
		if len(targets) > 0 {
			edges[dependency.Ref] = targets
		}
	}
	return edges
}

func componentIdentity(component *cdx.Component) string {
	if component.Purl != "" {
		return component.Purl
	}
	if component.Version != "" {
		return component.Name + "@" + component.Version
	}
	return component.Name
}

// applyProjectMetadata populates the project from the manifest's
// self-description. The caller-authoritative name, version and group are
// never overwritten by an import.
func applyProjectMetadata(project *catalog.Project, bom *cdx.Bom) {
	metadata := bom.Metadata
	if metadata == nil {
		return
	}
	if metadata.Component != nil {
		if classifier := catalog.ParseClassifier(metadata.Component.Type); classifier != "" {
			project.Classifier = classifier
		}
		if metadata.Component.Purl != "" {
			project.Purl = metadata.Component.Purl
		}
		if len(metadata.Component.ExternalReferences) > 0 {
			project.ExternalReferences = mapReferences(metadata.Component.ExternalReferences)
		}
		if metadata.Component.Supplier != nil {
			project.Supplier = mapEntity(metadata.Component.Supplier)
		}
	}
	if metadata.Supplier != nil {
		project.Supplier = mapEntity(metadata.Supplier)
	}
	if metadata.Manufacturer != nil {
		project.Manufacturer = mapEntity(metadata.Manufacturer)
	}
	if len(metadata.Authors) > 0 {
		project.Authors = mapContacts(metadata.Authors)
	}
}

func mapServices(projectID int64, declared []cdx.Service) []*catalog.Service {
	var services []*catalog.Service
	for _, service := range declared {
		if strings.TrimSpace(service.Name) == "" {
			continue
		}
		services = append(services, &catalog.Service{
			ProjectID:   projectID,
			Group:       service.Group,
			Name:        service.Name,
			Version:     service.Version,
			Description: service.Description,
			Endpoints:   service.Endpoints,
		})
	}
	return services
}

func mapEntity(entity *cdx.OrganizationalEntity) *catalog.OrganizationalEntity {
	if entity == nil {
		return nil
	}
	return &catalog.OrganizationalEntity{
		Name:     entity.Name,
		URLs:     entity.URLs,
		Contacts: mapContacts(entity.Contacts),
	}
}

func mapContacts(contacts []cdx.Contact) []catalog.Contact {
	var out []catalog.Contact
	for _, contact := range contacts {
		out = append(out, catalog.Contact{Name: contact.Name, Email: contact.Email, Phone: contact.Phone})
	}
	return out
}

func mapReferences(refs []cdx.ExternalReference) []catalog.ExternalReference {
	var out []catalog.ExternalReference
	for _, ref := range refs {
		out = append(out, catalog.ExternalReference{Type: ref.Type, URL: ref.URL, Comment: ref.Comment})
	}
	return out
}
