package workflow_test

import (
	"context"
	"errors"
	"testing"

	"sbomflow/internal/testsupport"
	"sbomflow/internal/workflow"
)

func TestCreateStepsSeedsPendingRows(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenWorkflowStore(t, cfg)
	ctx := context.Background()

	token := testsupport.NewChain(t, store, "chain-1")

	states, err := store.GetAll(ctx, token)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(states) != 5 {
		t.Fatalf("len(states) = %d, want 5", len(states))
	}
	for _, state := range states {
		if state.Status != workflow.StatusPending {
			t.Fatalf("step %s status = %s, want PENDING", state.Step, state.Status)
		}
		if state.StartedAt != nil {
			t.Fatalf("step %s has started_at before any work", state.Step)
		}
	}
}

func TestCreateStepsIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenWorkflowStore(t, cfg)
	ctx := context.Background()

	token := "chain-dup"
	for i := 0; i < 2; i++ {
		if err := store.CreateSteps(ctx, token, workflow.BomUploadGraph()); err != nil {
			t.Fatalf("CreateSteps attempt %d: %v", i+1, err)
		}
	}

	states, err := store.GetAll(ctx, token)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(states) != 5 {
		t.Fatalf("len(states) = %d, want 5", len(states))
	}
}

func TestMarkStartedSetsTimestampOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenWorkflowStore(t, cfg)
	ctx := context.Background()

	token := testsupport.NewChain(t, store, "chain-start")

	first, err := store.MarkStarted(ctx, token, workflow.StepVulnAnalysis)
	if err != nil {
		t.Fatalf("MarkStarted: %v", err)
	}
	if first.StartedAt == nil {
		t.Fatal("started_at not set")
	}
	if first.Status != workflow.StatusPending {
		t.Fatalf("status = %s, want PENDING after MarkStarted", first.Status)
	}

	second, err := store.MarkStarted(ctx, token, workflow.StepVulnAnalysis)
	if err != nil {
		t.Fatalf("MarkStarted repeat: %v", err)
	}
	if !second.StartedAt.Equal(*first.StartedAt) {
		t.Fatalf("started_at changed on repeat: %v != %v", second.StartedAt, first.StartedAt)
	}
}

func TestMarkStartedUnknownTokenReturnsNil(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenWorkflowStore(t, cfg)

	state, err := store.MarkStarted(context.Background(), "no-such-chain", workflow.StepVulnAnalysis)
	if err != nil {
		t.Fatalf("MarkStarted: %v", err)
	}
	if state != nil {
		t.Fatalf("expected nil state for unknown token, got %+v", state)
	}
}

func TestTerminalStatesAreSticky(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenWorkflowStore(t, cfg)
	ctx := context.Background()

	token := testsupport.NewChain(t, store, "chain-sticky")

	if err := store.MarkCompleted(ctx, token, workflow.StepBomConsumption); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	err := store.MarkFailed(ctx, token, workflow.StepBomConsumption, "late failure")
	if !errors.Is(err, workflow.ErrTerminalState) {
		t.Fatalf("err = %v, want ErrTerminalState", err)
	}

	state, err := store.Get(ctx, token, workflow.StepBomConsumption)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if state.Status != workflow.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED to stick", state.Status)
	}
	if state.FailureReason != "" {
		t.Fatalf("failure reason leaked onto completed step: %q", state.FailureReason)
	}
}

func TestMarkFailedCascadesCancellation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenWorkflowStore(t, cfg)
	ctx := context.Background()

	token := testsupport.NewChain(t, store, "chain-cascade")

	if err := store.MarkCompleted(ctx, token, workflow.StepBomConsumption); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if err := store.MarkFailed(ctx, token, workflow.StepBomProcessing, "boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	want := map[workflow.Step]workflow.Status{
		workflow.StepBomConsumption:   workflow.StatusCompleted,
		workflow.StepBomProcessing:    workflow.StatusFailed,
		workflow.StepVulnAnalysis:     workflow.StatusCancelled,
		workflow.StepPolicyEvaluation: workflow.StatusCancelled,
		workflow.StepMetricsUpdate:    workflow.StatusCancelled,
	}
	states, err := store.GetAll(ctx, token)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	for _, state := range states {
		if state.Status != want[state.Step] {
			t.Fatalf("step %s status = %s, want %s", state.Step, state.Status, want[state.Step])
		}
		if state.Status == workflow.StatusCancelled && state.StartedAt != nil {
			t.Fatalf("cancelled step %s has started_at set", state.Step)
		}
	}

	failed, err := store.Get(ctx, token, workflow.StepBomProcessing)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if failed.FailureReason != "boom" {
		t.Fatalf("failure reason = %q, want boom", failed.FailureReason)
	}
}

func TestMarkFailedDoesNotCancelTerminalDescendants(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenWorkflowStore(t, cfg)
	ctx := context.Background()

	token := testsupport.NewChain(t, store, "chain-partial")

	if err := store.MarkCompleted(ctx, token, workflow.StepBomConsumption); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if err := store.MarkNotApplicable(ctx, token, workflow.StepVulnAnalysis); err != nil {
		t.Fatalf("MarkNotApplicable: %v", err)
	}
	if err := store.MarkFailed(ctx, token, workflow.StepBomProcessing, "late"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	state, err := store.Get(ctx, token, workflow.StepVulnAnalysis)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if state.Status != workflow.StatusNotApplicable {
		t.Fatalf("status = %s, want NOT_APPLICABLE to survive cascade", state.Status)
	}
}

func TestPruneRemovesChain(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenWorkflowStore(t, cfg)
	ctx := context.Background()

	token := testsupport.NewChain(t, store, "chain-prune")
	other := testsupport.NewChain(t, store, "chain-keep")

	removed, err := store.Prune(ctx, token)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 5 {
		t.Fatalf("removed = %d, want 5", removed)
	}

	gone, err := store.GetAll(ctx, token)
	if err != nil {
		t.Fatalf("GetAll(pruned): %v", err)
	}
	if len(gone) != 0 {
		t.Fatalf("pruned chain still has %d rows", len(gone))
	}

	kept, err := store.GetAll(ctx, other)
	if err != nil {
		t.Fatalf("GetAll(kept): %v", err)
	}
	if len(kept) != 5 {
		t.Fatalf("unrelated chain lost rows: %d", len(kept))
	}
}

func TestParseStep(t *testing.T) {
	cases := []struct {
		in   string
		want workflow.Step
		ok   bool
	}{
		{"BOM_CONSUMPTION", workflow.StepBomConsumption, true},
		{"bom_processing", workflow.StepBomProcessing, true},
		{" vuln_analysis ", workflow.StepVulnAnalysis, true},
		{"", "", false},
		{"NOT_A_STEP", "", false},
	}
	for _, tc := range cases {
		got, ok := workflow.ParseStep(tc.in)
		if ok != tc.ok {
			t.Fatalf("ParseStep(%q) ok = %v, want %v", tc.in, ok, tc.ok)
		}
		if ok && got != tc.want {
			t.Fatalf("ParseStep(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}
