package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"sbomflow/internal/bus"
	"sbomflow/internal/catalog"
	"sbomflow/internal/cdx"
	"sbomflow/internal/ingest"
	"sbomflow/internal/logging"
	"sbomflow/internal/workflow"
)

const (
	reasonParseFailure    = "Failed to parse BOM"
	reasonProjectNotFound = "Project does not exist"
)

// Driver consumes ingestion requests and analysis results from the bus and
// keeps the per-chain workflow state machine consistent across every branch,
// including crash-adjacent partial failures.
type Driver struct {
	workflows *workflow.Store
	catalog   *catalog.Store
	pipeline  *ingest.Pipeline
	publisher bus.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewDriver wires a driver over its collaborators.
func NewDriver(
	workflows *workflow.Store,
	catalogStore *catalog.Store,
	ingestPipeline *ingest.Pipeline,
	publisher bus.Publisher,
	logger *slog.Logger,
) *Driver {
	return &Driver{
		workflows: workflows,
		catalog:   catalogStore,
		pipeline:  ingestPipeline,
		publisher: publisher,
		logger:    logging.NewComponentLogger(logger, "driver"),
		now:       time.Now,
	}
}

// Register subscribes the driver's consumers on the broker.
func (d *Driver) Register(broker *bus.Broker) {
	broker.Subscribe(bus.TopicIngestionRequest, d.handleIngestionRequest)
	broker.Subscribe(bus.TopicAnalysisResult, d.handleAnalysisResult)
	broker.Subscribe(bus.TopicCloneRequest, d.handleCloneRequest)
}

func (d *Driver) handleIngestionRequest(ctx context.Context, delivery bus.Delivery) error {
	req, ok := delivery.Message.(bus.IngestionRequest)
	if !ok {
		return nil
	}
	return d.ProcessUpload(ctx, req)
}

// ProcessUpload drives one ingestion chain through the transition table.
// Chain-fatal outcomes consume the manifest file; transient errors keep it in
// place and surface to the bus for redelivery.
func (d *Driver) ProcessUpload(ctx context.Context, req bus.IngestionRequest) error {
	manifest, err := os.ReadFile(req.ManifestPath)
	if err != nil {
		d.failConsumption(ctx, req, nil, fmt.Sprintf("failed to read manifest: %v", err))
		return nil
	}

	d.markStarted(ctx, req.Token, workflow.StepBomConsumption)

	outcome, err := d.pipeline.Ingest(ctx, ingest.Request{
		Token:                      req.Token,
		ProjectUUID:                req.ProjectUUID,
		Manifest:                   manifest,
		DelayProcessedNotification: req.DelayProcessedNotification,
		AnnounceProjectCreated:     req.ProjectCreated,
	})
	switch {
	case err == nil:
		d.completeChainSetup(ctx, req, outcome)
		d.removeManifest(req.ManifestPath)
		return nil
	case errors.Is(err, ingest.ErrParse):
		d.failConsumption(ctx, req, manifest, reasonParseFailure)
		d.removeManifest(req.ManifestPath)
		return nil
	case errors.Is(err, ingest.ErrProjectNotFound):
		d.failProcessing(ctx, req, manifest, reasonProjectNotFound)
		d.removeManifest(req.ManifestPath)
		return nil
	default:
		d.logger.Warn("ingestion failed transiently",
			logging.String(logging.FieldChainToken, req.Token),
			logging.Error(err),
		)
		return err
	}
}

// completeChainSetup records the successful-merge row of the transition
// table: consumption and processing complete, analysis steps pending (or not
// applicable for an empty manifest), metrics pending.
func (d *Driver) completeChainSetup(ctx context.Context, req bus.IngestionRequest, outcome *ingest.Outcome) {
	d.markCompleted(ctx, req.Token, workflow.StepBomConsumption)
	d.markStarted(ctx, req.Token, workflow.StepBomProcessing)
	d.markCompleted(ctx, req.Token, workflow.StepBomProcessing)

	if outcome.ComponentCount == 0 {
		d.markNotApplicable(ctx, req.Token, workflow.StepVulnAnalysis)
		d.markNotApplicable(ctx, req.Token, workflow.StepPolicyEvaluation)
		return
	}
	// Vulnerability analysis is now in flight; the step stays PENDING with
	// its start time recorded until results arrive.
	d.markStarted(ctx, req.Token, workflow.StepVulnAnalysis)
}

// failConsumption records the parse-failure row: BOM_CONSUMPTION fails and
// every later step cascades to CANCELLED without ever starting.
func (d *Driver) failConsumption(ctx context.Context, req bus.IngestionRequest, manifest []byte, reason string) {
	if err := d.workflows.MarkFailed(ctx, req.Token, workflow.StepBomConsumption, reason); err != nil {
		d.logTransitionFailure(req.Token, workflow.StepBomConsumption, err)
	}
	d.publishFailure(ctx, req, manifest, reason)
}

// failProcessing records the project-not-found row: consumption completes,
// processing starts and fails, the rest cascades to CANCELLED.
func (d *Driver) failProcessing(ctx context.Context, req bus.IngestionRequest, manifest []byte, reason string) {
	d.markCompleted(ctx, req.Token, workflow.StepBomConsumption)
	d.markStarted(ctx, req.Token, workflow.StepBomProcessing)
	if err := d.workflows.MarkFailed(ctx, req.Token, workflow.StepBomProcessing, reason); err != nil {
		d.logTransitionFailure(req.Token, workflow.StepBomProcessing, err)
	}
	d.publishFailure(ctx, req, manifest, reason)
}

// publishFailure emits the failure notification. The manifest content is
// never echoed; the spec version is sniffed best-effort and left empty when
// undeterminable.
func (d *Driver) publishFailure(ctx context.Context, req bus.IngestionRequest, manifest []byte, cause string) {
	ref := bus.ProjectRef{UUID: req.ProjectUUID}
	if project, err := d.catalog.GetProjectByUUID(ctx, req.ProjectUUID); err == nil && project != nil {
		ref = bus.ProjectRef{UUID: project.UUID, Group: project.Group, Name: project.Name, Version: project.Version}
	}
	msg := bus.BomProcessingFailed{
		Timestamp:   d.now().UTC(),
		Token:       req.Token,
		Project:     ref,
		Format:      cdx.FormatCycloneDX,
		SpecVersion: cdx.SniffSpecVersion(manifest),
		Content:     bus.OmittedContent,
		Cause:       cause,
	}
	if err := d.publisher.Publish(ctx, bus.TopicBomNotification, req.ProjectUUID, msg); err != nil {
		d.logger.Error("failed to publish failure notification",
			logging.String(logging.FieldChainToken, req.Token),
			logging.Error(err),
		)
	}
}

func (d *Driver) handleAnalysisResult(ctx context.Context, delivery bus.Delivery) error {
	result, ok := delivery.Message.(bus.AnalysisResult)
	if !ok {
		return nil
	}
	return d.RecordAnalysisResult(ctx, result)
}

// RecordAnalysisResult folds an analysis acknowledgement into the scan
// record. Once every expected result arrived the analysis steps complete,
// metrics aggregation is released and a deferred processed notification is
// emitted if one is owed.
func (d *Driver) RecordAnalysisResult(ctx context.Context, result bus.AnalysisResult) error {
	scan, err := d.catalog.RecordScanResults(ctx, result.Token, result.Results)
	if err != nil {
		return fmt.Errorf("record scan results: %w", err)
	}
	if scan == nil {
		d.logger.Debug("analysis result for unknown scan",
			logging.String(logging.FieldChainToken, result.Token),
		)
		return nil
	}
	if !scan.Complete() {
		return nil
	}

	d.markCompleted(ctx, result.Token, workflow.StepVulnAnalysis)
	d.markCompleted(ctx, result.Token, workflow.StepPolicyEvaluation)
	d.markStarted(ctx, result.Token, workflow.StepMetricsUpdate)

	if scan.NotifyOnComplete {
		if err := d.publishDeferredProcessed(ctx, result.Token, scan.TargetUUID); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) publishDeferredProcessed(ctx context.Context, token, projectUUID string) error {
	project, err := d.catalog.GetProjectByUUID(ctx, projectUUID)
	if err != nil {
		return fmt.Errorf("resolve scan target: %w", err)
	}
	if project == nil {
		return nil
	}

	specVersion := ""
	if imports, err := d.catalog.ListBomImports(ctx, project.ID); err == nil && len(imports) > 0 {
		specVersion = imports[len(imports)-1].SpecVersion
	}

	msg := bus.BomProcessed{
		Timestamp:   d.now().UTC(),
		Token:       token,
		Project:     bus.ProjectRef{UUID: project.UUID, Group: project.Group, Name: project.Name, Version: project.Version},
		Format:      cdx.FormatCycloneDX,
		SpecVersion: specVersion,
	}
	return d.publisher.Publish(ctx, bus.TopicBomNotification, project.UUID, msg)
}

func (d *Driver) markStarted(ctx context.Context, token string, step workflow.Step) {
	if _, err := d.workflows.MarkStarted(ctx, token, step); err != nil {
		d.logTransitionFailure(token, step, err)
	}
}

func (d *Driver) markCompleted(ctx context.Context, token string, step workflow.Step) {
	if err := d.workflows.MarkCompleted(ctx, token, step); err != nil {
		d.logTransitionFailure(token, step, err)
	}
}

func (d *Driver) markNotApplicable(ctx context.Context, token string, step workflow.Step) {
	if err := d.workflows.MarkNotApplicable(ctx, token, step); err != nil {
		d.logTransitionFailure(token, step, err)
	}
}

// logTransitionFailure keeps terminal-state rejections quiet: they are
// expected on redelivered messages and must not corrupt state or alarm.
func (d *Driver) logTransitionFailure(token string, step workflow.Step, err error) {
	if errors.Is(err, workflow.ErrTerminalState) {
		d.logger.Debug("ignoring transition on terminal step",
			logging.String(logging.FieldChainToken, token),
			logging.String(logging.FieldStep, string(step)),
		)
		return
	}
	d.logger.Error("workflow transition failed",
		logging.String(logging.FieldChainToken, token),
		logging.String(logging.FieldStep, string(step)),
		logging.Error(err),
	)
}

func (d *Driver) removeManifest(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		d.logger.Warn("failed to remove manifest file",
			logging.String("path", path),
			logging.Error(err),
		)
	}
}
