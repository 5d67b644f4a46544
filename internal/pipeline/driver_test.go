package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"sbomflow/internal/bus"
	"sbomflow/internal/catalog"
	"sbomflow/internal/ingest"
	"sbomflow/internal/logging"
	"sbomflow/internal/pipeline"
	"sbomflow/internal/testsupport"
	"sbomflow/internal/workflow"
)

type fixture struct {
	workflows *workflow.Store
	catalog   *catalog.Store
	recorder  *bus.Recorder
	driver    *pipeline.Driver
	project   *catalog.Project
	spoolDir  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	workflows := testsupport.MustOpenWorkflowStore(t, cfg)
	catalogStore := testsupport.MustOpenCatalogStore(t, cfg)
	if err := ingest.EnsureLicenseRegistry(context.Background(), catalogStore); err != nil {
		t.Fatalf("EnsureLicenseRegistry: %v", err)
	}
	recorder := bus.NewRecorder()
	ingestPipeline := ingest.NewPipeline(catalogStore, recorder, logging.NewNop())
	return &fixture{
		workflows: workflows,
		catalog:   catalogStore,
		recorder:  recorder,
		driver:    pipeline.NewDriver(workflows, catalogStore, ingestPipeline, recorder, logging.NewNop()),
		project:   testsupport.NewProject(t, catalogStore, "acme-app", "1.0.0"),
		spoolDir:  cfg.Paths.SpoolDir,
	}
}

func (f *fixture) writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(f.spoolDir, "upload.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func (f *fixture) statuses(t *testing.T, token string) map[workflow.Step]*workflow.State {
	t.Helper()
	states, err := f.workflows.GetAll(context.Background(), token)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	byStep := make(map[workflow.Step]*workflow.State, len(states))
	for _, state := range states {
		byStep[state.Step] = state
	}
	return byStep
}

const successManifest = `{
  "bomFormat": "CycloneDX",
  "specVersion": "1.4",
  "components": [
    {"type": "library", "name": "lib-a", "version": "1.0", "purl": "pkg:maven/com.acme/lib-a@1.0"},
    {"type": "library", "name": "lib-b", "version": "2.0", "purl": "pkg:maven/com.acme/lib-b@2.0"}
  ]
}`

const emptyManifest = `{"bomFormat": "CycloneDX", "specVersion": "1.4", "components": []}`

func TestProcessUploadSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := testsupport.NewChain(t, f.workflows, "chain-ok")
	path := f.writeManifest(t, successManifest)

	err := f.driver.ProcessUpload(ctx, bus.IngestionRequest{
		Token:        token,
		ProjectUUID:  f.project.UUID,
		ManifestPath: path,
	})
	if err != nil {
		t.Fatalf("ProcessUpload: %v", err)
	}

	byStep := f.statuses(t, token)
	if byStep[workflow.StepBomConsumption].Status != workflow.StatusCompleted {
		t.Fatalf("BOM_CONSUMPTION = %s, want COMPLETED", byStep[workflow.StepBomConsumption].Status)
	}
	if byStep[workflow.StepBomProcessing].Status != workflow.StatusCompleted {
		t.Fatalf("BOM_PROCESSING = %s, want COMPLETED", byStep[workflow.StepBomProcessing].Status)
	}
	vuln := byStep[workflow.StepVulnAnalysis]
	if vuln.Status != workflow.StatusPending || vuln.StartedAt == nil {
		t.Fatalf("VULN_ANALYSIS = %s started=%v, want PENDING with start time", vuln.Status, vuln.StartedAt)
	}
	if byStep[workflow.StepPolicyEvaluation].Status != workflow.StatusPending {
		t.Fatalf("POLICY_EVALUATION = %s, want PENDING", byStep[workflow.StepPolicyEvaluation].Status)
	}
	if byStep[workflow.StepMetricsUpdate].Status != workflow.StatusPending {
		t.Fatalf("METRICS_UPDATE = %s, want PENDING", byStep[workflow.StepMetricsUpdate].Status)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("manifest file must be deleted after successful processing")
	}
	if got := f.recorder.Count(bus.TopicVulnAnalysisCmd); got != 2 {
		t.Fatalf("vuln commands = %d, want 2", got)
	}
}

func TestProcessUploadParseFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := testsupport.NewChain(t, f.workflows, "chain-parse")
	path := f.writeManifest(t, "not a manifest at all")

	if err := f.driver.ProcessUpload(ctx, bus.IngestionRequest{
		Token:        token,
		ProjectUUID:  f.project.UUID,
		ManifestPath: path,
	}); err != nil {
		t.Fatalf("ProcessUpload: %v", err)
	}

	byStep := f.statuses(t, token)
	consumption := byStep[workflow.StepBomConsumption]
	if consumption.Status != workflow.StatusFailed || consumption.FailureReason != "Failed to parse BOM" {
		t.Fatalf("BOM_CONSUMPTION = %s %q", consumption.Status, consumption.FailureReason)
	}
	for _, step := range []workflow.Step{
		workflow.StepBomProcessing,
		workflow.StepVulnAnalysis,
		workflow.StepPolicyEvaluation,
		workflow.StepMetricsUpdate,
	} {
		state := byStep[step]
		if state.Status != workflow.StatusCancelled {
			t.Fatalf("%s = %s, want CANCELLED", step, state.Status)
		}
		if state.StartedAt != nil {
			t.Fatalf("%s has started_at despite never starting", step)
		}
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("manifest file must be deleted after terminal failure")
	}

	notifications := f.recorder.Messages(bus.TopicBomNotification)
	if len(notifications) != 1 {
		t.Fatalf("notifications = %d, want 1 failure", len(notifications))
	}
	failed, ok := notifications[0].(bus.BomProcessingFailed)
	if !ok {
		t.Fatalf("notification = %T, want BomProcessingFailed", notifications[0])
	}
	if failed.Content != "(Omitted)" {
		t.Fatalf("content = %q, want (Omitted)", failed.Content)
	}
	if failed.Format != "CycloneDX" || failed.SpecVersion != "" {
		t.Fatalf("format/spec = %q/%q, want CycloneDX with empty spec version", failed.Format, failed.SpecVersion)
	}
	if bus.NotificationLevel(failed) != bus.LevelError {
		t.Fatal("failure notification must carry ERROR level")
	}
}

func TestProcessUploadProjectNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := testsupport.NewChain(t, f.workflows, "chain-missing")
	path := f.writeManifest(t, successManifest)

	if err := f.driver.ProcessUpload(ctx, bus.IngestionRequest{
		Token:        token,
		ProjectUUID:  "00000000-0000-0000-0000-000000000000",
		ManifestPath: path,
	}); err != nil {
		t.Fatalf("ProcessUpload: %v", err)
	}

	byStep := f.statuses(t, token)
	if byStep[workflow.StepBomConsumption].Status != workflow.StatusCompleted {
		t.Fatalf("BOM_CONSUMPTION = %s, want COMPLETED", byStep[workflow.StepBomConsumption].Status)
	}
	processing := byStep[workflow.StepBomProcessing]
	if processing.Status != workflow.StatusFailed || processing.FailureReason != "Project does not exist" {
		t.Fatalf("BOM_PROCESSING = %s %q", processing.Status, processing.FailureReason)
	}
	if processing.StartedAt == nil {
		t.Fatal("BOM_PROCESSING must record a start before failing")
	}
	for _, step := range []workflow.Step{
		workflow.StepVulnAnalysis,
		workflow.StepPolicyEvaluation,
		workflow.StepMetricsUpdate,
	} {
		state := byStep[step]
		if state.Status != workflow.StatusCancelled || state.StartedAt != nil {
			t.Fatalf("%s = %s started=%v, want CANCELLED never started", step, state.Status, state.StartedAt)
		}
	}

	failed := f.recorder.Messages(bus.TopicBomNotification)[0].(bus.BomProcessingFailed)
	if failed.SpecVersion != "1.4" {
		t.Fatalf("spec version = %q, want sniffed 1.4", failed.SpecVersion)
	}
}

func TestProcessUploadEmptyManifest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := testsupport.NewChain(t, f.workflows, "chain-empty")
	path := f.writeManifest(t, emptyManifest)

	if err := f.driver.ProcessUpload(ctx, bus.IngestionRequest{
		Token:        token,
		ProjectUUID:  f.project.UUID,
		ManifestPath: path,
	}); err != nil {
		t.Fatalf("ProcessUpload: %v", err)
	}

	byStep := f.statuses(t, token)
	for _, step := range []workflow.Step{workflow.StepVulnAnalysis, workflow.StepPolicyEvaluation} {
		state := byStep[step]
		if state.Status != workflow.StatusNotApplicable {
			t.Fatalf("%s = %s, want NOT_APPLICABLE", step, state.Status)
		}
		if state.StartedAt != nil {
			t.Fatalf("%s has started_at despite being skipped", step)
		}
	}
	if byStep[workflow.StepMetricsUpdate].Status != workflow.StatusPending {
		t.Fatalf("METRICS_UPDATE = %s, want PENDING", byStep[workflow.StepMetricsUpdate].Status)
	}
	if got := f.recorder.Count(bus.TopicVulnAnalysisCmd); got != 0 {
		t.Fatalf("vuln commands = %d, want 0", got)
	}
}

func TestAnalysisResultsCompleteChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := testsupport.NewChain(t, f.workflows, "chain-complete")
	path := f.writeManifest(t, successManifest)

	if err := f.driver.ProcessUpload(ctx, bus.IngestionRequest{
		Token:                      token,
		ProjectUUID:                f.project.UUID,
		ManifestPath:               path,
		DelayProcessedNotification: true,
	}); err != nil {
		t.Fatalf("ProcessUpload: %v", err)
	}
	for _, msg := range f.recorder.Messages(bus.TopicBomNotification) {
		if _, ok := msg.(bus.BomProcessed); ok {
			t.Fatal("processed notification leaked before scan completion")
		}
	}

	if err := f.driver.RecordAnalysisResult(ctx, bus.AnalysisResult{Token: token, Results: 1}); err != nil {
		t.Fatalf("RecordAnalysisResult: %v", err)
	}
	if got := f.statuses(t, token)[workflow.StepVulnAnalysis].Status; got != workflow.StatusPending {
		t.Fatalf("VULN_ANALYSIS = %s before all results, want PENDING", got)
	}

	if err := f.driver.RecordAnalysisResult(ctx, bus.AnalysisResult{Token: token, Results: 1}); err != nil {
		t.Fatalf("RecordAnalysisResult: %v", err)
	}

	byStep := f.statuses(t, token)
	if byStep[workflow.StepVulnAnalysis].Status != workflow.StatusCompleted {
		t.Fatalf("VULN_ANALYSIS = %s, want COMPLETED", byStep[workflow.StepVulnAnalysis].Status)
	}
	if byStep[workflow.StepPolicyEvaluation].Status != workflow.StatusCompleted {
		t.Fatalf("POLICY_EVALUATION = %s, want COMPLETED", byStep[workflow.StepPolicyEvaluation].Status)
	}
	metrics := byStep[workflow.StepMetricsUpdate]
	if metrics.Status != workflow.StatusPending || metrics.StartedAt == nil {
		t.Fatalf("METRICS_UPDATE = %s started=%v, want released", metrics.Status, metrics.StartedAt)
	}

	var processed *bus.BomProcessed
	for _, msg := range f.recorder.Messages(bus.TopicBomNotification) {
		if m, ok := msg.(bus.BomProcessed); ok {
			processed = &m
		}
	}
	if processed == nil {
		t.Fatal("deferred processed notification not emitted on scan completion")
	}
	if processed.SpecVersion != "1.4" || processed.Project.UUID != f.project.UUID {
		t.Fatalf("processed = %+v", processed)
	}
}

func TestAnalysisResultForUnknownScanIsIgnored(t *testing.T) {
	f := newFixture(t)
	if err := f.driver.RecordAnalysisResult(context.Background(), bus.AnalysisResult{Token: "nope", Results: 1}); err != nil {
		t.Fatalf("RecordAnalysisResult: %v", err)
	}
}

func TestProcessClone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, name := range []string{"lib-a", "lib-b"} {
		if _, err := f.catalog.InsertComponent(ctx, &catalog.Component{ProjectID: f.project.ID, Name: name}); err != nil {
			t.Fatalf("InsertComponent: %v", err)
		}
	}

	token := "clone-token"
	if err := f.workflows.CreateSteps(ctx, token, workflow.ProjectCloneGraph()); err != nil {
		t.Fatalf("CreateSteps: %v", err)
	}

	if err := f.driver.ProcessClone(ctx, bus.CloneRequest{
		Token:      token,
		SourceUUID: f.project.UUID,
		NewVersion: "2.0.0",
	}); err != nil {
		t.Fatalf("ProcessClone: %v", err)
	}

	state, err := f.workflows.Get(ctx, token, workflow.StepProjectClone)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if state.Status != workflow.StatusCompleted || state.StartedAt == nil {
		t.Fatalf("PROJECT_CLONE = %s started=%v", state.Status, state.StartedAt)
	}

	clone, err := f.catalog.GetProjectByNameVersion(ctx, "acme-app", "2.0.0")
	if err != nil {
		t.Fatalf("GetProjectByNameVersion: %v", err)
	}
	if clone == nil {
		t.Fatal("clone project missing")
	}
	if clone.UUID == f.project.UUID {
		t.Fatal("clone must get its own identity")
	}
	count, err := f.catalog.CountComponents(ctx, clone.ID)
	if err != nil {
		t.Fatalf("CountComponents: %v", err)
	}
	if count != 2 {
		t.Fatalf("cloned components = %d, want 2", count)
	}
}

func TestProcessCloneUnknownSourceFailsStep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token := "clone-bad"
	if err := f.workflows.CreateSteps(ctx, token, workflow.ProjectCloneGraph()); err != nil {
		t.Fatalf("CreateSteps: %v", err)
	}

	if err := f.driver.ProcessClone(ctx, bus.CloneRequest{
		Token:      token,
		SourceUUID: "00000000-0000-0000-0000-000000000000",
		NewVersion: "2.0.0",
	}); err != nil {
		t.Fatalf("ProcessClone: %v", err)
	}

	state, err := f.workflows.Get(ctx, token, workflow.StepProjectClone)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if state.Status != workflow.StatusFailed || state.FailureReason == "" {
		t.Fatalf("PROJECT_CLONE = %s %q, want FAILED with reason", state.Status, state.FailureReason)
	}
}
