package daemon

import (
	"context"
	"os"
	"time"

	"sbomflow/internal/bus"
	"sbomflow/internal/logging"
	"sbomflow/internal/spool"
	"sbomflow/internal/workflow"
)

// watchSpool polls the spool directory for request descriptors. One scan runs
// immediately so requests spooled while the daemon was down are not delayed
// by a full poll interval.
func (d *Daemon) watchSpool(ctx context.Context) {
	interval := time.Duration(d.cfg.Pipeline.SpoolPollInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.scanSpool(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.scanSpool(ctx)
		}
	}
}

func (d *Daemon) scanSpool(ctx context.Context) {
	paths, err := spool.List(d.cfg.Paths.SpoolDir)
	if err != nil {
		d.logger.Error("failed to scan spool directory", logging.Error(err))
		return
	}

	for _, path := range paths {
		if ctx.Err() != nil {
			return
		}
		if err := d.dispatchDescriptor(ctx, path); err != nil {
			d.logger.Error("failed to dispatch spooled request",
				logging.String("path", path),
				logging.Error(err),
			)
			d.rejectDescriptor(path)
		}
	}
}

// dispatchDescriptor seeds the workflow chain for one descriptor and hands
// the request to the bus. The descriptor file is removed before publishing so
// a later scan cannot dispatch the same request twice; the seeded chain is
// idempotent either way.
func (d *Daemon) dispatchDescriptor(ctx context.Context, path string) error {
	desc, err := spool.Read(path)
	if err != nil {
		return err
	}

	switch desc.Kind {
	case spool.KindUpload:
		if err := d.workflows.CreateSteps(ctx, desc.Token, workflow.BomUploadGraph()); err != nil {
			return err
		}
		if err := os.Remove(path); err != nil {
			return err
		}
		d.logger.Info("dispatching spooled upload",
			logging.String(logging.FieldChainToken, desc.Token),
			logging.String(logging.FieldProject, desc.ProjectUUID),
		)
		return d.broker.Publish(ctx, bus.TopicIngestionRequest, desc.Token, bus.IngestionRequest{
			Token:                      desc.Token,
			ProjectUUID:                desc.ProjectUUID,
			ManifestPath:               desc.ManifestPath,
			DelayProcessedNotification: desc.DelayProcessedNotification,
			ProjectCreated:             desc.ProjectCreated,
		})
	case spool.KindClone:
		if err := d.workflows.CreateSteps(ctx, desc.Token, workflow.ProjectCloneGraph()); err != nil {
			return err
		}
		if err := os.Remove(path); err != nil {
			return err
		}
		d.logger.Info("dispatching spooled clone",
			logging.String(logging.FieldChainToken, desc.Token),
			logging.String(logging.FieldProject, desc.SourceUUID),
		)
		return d.broker.Publish(ctx, bus.TopicCloneRequest, desc.Token, bus.CloneRequest{
			Token:      desc.Token,
			SourceUUID: desc.SourceUUID,
			NewVersion: desc.NewVersion,
		})
	default:
		return os.Remove(path)
	}
}

// rejectDescriptor moves a descriptor aside so a bad file cannot wedge the
// scan loop into retrying it forever.
func (d *Daemon) rejectDescriptor(path string) {
	rejected := path + ".rejected"
	if err := os.Rename(path, rejected); err != nil && !os.IsNotExist(err) {
		d.logger.Warn("failed to quarantine descriptor",
			logging.String("path", path),
			logging.Error(err),
		)
	}
}
