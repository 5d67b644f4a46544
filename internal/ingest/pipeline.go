package ingest

import (
	"context"
	"log/slog"
	"time"

	"sbomflow/internal/bus"
	"sbomflow/internal/catalog"
	"sbomflow/internal/cdx"
	"sbomflow/internal/licenses"
	"sbomflow/internal/logging"
)

// Request carries one ingestion invocation. The manifest bytes are already in
// memory; file handling belongs to the caller.
type Request struct {
	Token                      string
	ProjectUUID                string
	Manifest                   []byte
	DelayProcessedNotification bool
	AnnounceProjectCreated     bool
}

// Outcome reports what a successful ingestion did.
type Outcome struct {
	Project        *catalog.Project
	ComponentCount int
	CommandCount   int
	Format         string
	SpecVersion    string
}

// Pipeline parses an uploaded manifest, merges it into the portfolio graph,
// resolves licenses and fans out per-component analysis commands.
type Pipeline struct {
	store     *catalog.Store
	publisher bus.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewPipeline builds a pipeline over the given store and publisher.
func NewPipeline(store *catalog.Store, publisher bus.Publisher, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store:     store,
		publisher: publisher,
		logger:    logging.NewComponentLogger(logger, "ingest"),
		now:       time.Now,
	}
}

// EnsureLicenseRegistry seeds the standard SPDX identifiers into the catalog
// so expression resolution has something to resolve against. Safe to call on
// every startup.
func EnsureLicenseRegistry(ctx context.Context, store *catalog.Store) error {
	return store.SeedLicenses(ctx, licenses.KnownIDs())
}

// Ingest runs the full ingestion sequence for one chain: resolve project,
// parse, merge, resolve licenses, apply project overrides, fan out analysis
// commands and announce progress. Unknown projects and unparseable manifests
// are chain-fatal; a single malformed component only skips that entry.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*Outcome, error) {
	project, err := p.store.GetProjectByUUID(ctx, req.ProjectUUID)
	if err != nil {
		return nil, Wrap(ErrTransient, "resolve project", "", err)
	}
	if project == nil {
		return nil, Wrap(ErrProjectNotFound, "resolve project", req.ProjectUUID, nil)
	}

	bom, err := cdx.Decode(req.Manifest)
	if err != nil {
		return nil, Wrap(ErrParse, "parse manifest", "", err)
	}

	ref := projectRef(project)
	if req.AnnounceProjectCreated {
		if err := p.publisher.Publish(ctx, bus.TopicBomNotification, project.UUID, bus.ProjectCreated{
			Timestamp: p.now().UTC(),
			Project:   ref,
		}); err != nil {
			return nil, Wrap(ErrTransient, "publish project-created", "", err)
		}
	}
	if err := p.publisher.Publish(ctx, bus.TopicBomNotification, project.UUID, bus.BomConsumed{
		Timestamp:   p.now().UTC(),
		Token:       req.Token,
		Project:     ref,
		Format:      cdx.FormatCycloneDX,
		SpecVersion: bom.SpecVersion,
	}); err != nil {
		return nil, Wrap(ErrTransient, "publish bom-consumed", "", err)
	}

	var merged []*catalog.Component
	err = p.store.InTx(ctx, func(tx *catalog.Tx) error {
		var mergeErr error
		merged, mergeErr = p.merge(ctx, tx, req.Token, project, bom)
		return mergeErr
	})
	if err != nil {
		return nil, Wrap(ErrTransient, "merge manifest", "", err)
	}

	commandCount, err := p.fanOut(ctx, req.Token, merged)
	if err != nil {
		return nil, err
	}

	if commandCount > 0 {
		if _, err := p.store.CreateVulnerabilityScan(ctx, &catalog.VulnerabilityScan{
			Token:            req.Token,
			TargetUUID:       project.UUID,
			ExpectedResults:  int64(commandCount),
			NotifyOnComplete: req.DelayProcessedNotification,
		}); err != nil {
			return nil, Wrap(ErrTransient, "create scan record", "", err)
		}
	}

	// The processed notification is deferred only when analysis results are
	// actually expected; an empty manifest reports processed right away.
	if commandCount == 0 || !req.DelayProcessedNotification {
		if err := p.publisher.Publish(ctx, bus.TopicBomNotification, project.UUID, bus.BomProcessed{
			Timestamp:   p.now().UTC(),
			Token:       req.Token,
			Project:     ref,
			Format:      cdx.FormatCycloneDX,
			SpecVersion: bom.SpecVersion,
		}); err != nil {
			return nil, Wrap(ErrTransient, "publish bom-processed", "", err)
		}
	}

	p.logger.Info("manifest ingested",
		logging.String(logging.FieldChainToken, req.Token),
		logging.String(logging.FieldProject, project.UUID),
		logging.Int("components", len(merged)),
		logging.Int("commands", commandCount),
	)

	return &Outcome{
		Project:        project,
		ComponentCount: len(merged),
		CommandCount:   commandCount,
		Format:         cdx.FormatCycloneDX,
		SpecVersion:    bom.SpecVersion,
	}, nil
}

// fanOut publishes one vulnerability-analysis command per merged component
// and, for components with a coordinate whose integrity metadata is absent or
// stale, one repository-metadata command. Returns the vulnerability command
// count, which sizes the scan record.
func (p *Pipeline) fanOut(ctx context.Context, token string, merged []*catalog.Component) (int, error) {
	count := 0
	for _, component := range merged {
		if err := p.publisher.Publish(ctx, bus.TopicVulnAnalysisCmd, component.UUID, bus.VulnAnalysisCommand{
			Token:         token,
			ComponentUUID: component.UUID,
			Purl:          component.Purl,
			CPE:           component.CPE,
		}); err != nil {
			return count, Wrap(ErrTransient, "publish vuln-analysis command", "", err)
		}
		count++

		if component.Purl == "" {
			continue
		}
		meta, err := p.store.GetIntegrityMeta(ctx, component.Purl)
		if err != nil {
			return count, Wrap(ErrTransient, "read integrity meta", "", err)
		}
		if !catalog.ShouldFetchIntegrityMeta(meta, p.now()) {
			continue
		}
		fetchStart := p.now().UTC()
		if err := p.store.UpsertIntegrityMeta(ctx, &catalog.IntegrityMeta{
			Purl:      component.Purl,
			Status:    catalog.FetchStatusInProgress,
			LastFetch: &fetchStart,
		}); err != nil {
			return count, Wrap(ErrTransient, "init integrity meta", "", err)
		}
		if err := p.publisher.Publish(ctx, bus.TopicRepoMetaCmd, component.UUID, bus.RepoMetaAnalysisCommand{
			ComponentUUID: component.UUID,
			Purl:          component.Purl,
			FetchMeta:     true,
		}); err != nil {
			return count, Wrap(ErrTransient, "publish repo-meta command", "", err)
		}
	}
	return count, nil
}

func projectRef(project *catalog.Project) bus.ProjectRef {
	return bus.ProjectRef{
		UUID:    project.UUID,
		Group:   project.Group,
		Name:    project.Name,
		Version: project.Version,
	}
}
