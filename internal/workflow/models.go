package workflow

import (
	"strings"
	"time"
)

// Step identifies a stage in the fixed processing dependency graph.
type Step string

const (
	StepBomConsumption   Step = "BOM_CONSUMPTION"
	StepBomProcessing    Step = "BOM_PROCESSING"
	StepVulnAnalysis     Step = "VULN_ANALYSIS"
	StepPolicyEvaluation Step = "POLICY_EVALUATION"
	StepMetricsUpdate    Step = "METRICS_UPDATE"
	StepProjectClone     Step = "PROJECT_CLONE"
)

var allSteps = []Step{
	StepBomConsumption,
	StepBomProcessing,
	StepVulnAnalysis,
	StepPolicyEvaluation,
	StepMetricsUpdate,
	StepProjectClone,
}

var stepSet = func() map[Step]struct{} {
	set := make(map[Step]struct{}, len(allSteps))
	for _, step := range allSteps {
		set[step] = struct{}{}
	}
	return set
}()

// Status represents the lifecycle of a workflow step. Every status except
// PENDING is terminal.
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusCompleted     Status = "COMPLETED"
	StatusFailed        Status = "FAILED"
	StatusCancelled     Status = "CANCELLED"
	StatusNotApplicable Status = "NOT_APPLICABLE"
)

// IsTerminal reports whether a status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s != StatusPending && s != ""
}

// AllSteps returns the ordered list of known steps.
func AllSteps() []Step {
	cp := make([]Step, len(allSteps))
	copy(cp, allSteps)
	return cp
}

// ParseStep converts a string into a known Step.
func ParseStep(value string) (Step, bool) {
	normalized := Step(strings.ToUpper(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stepSet[normalized]
	return normalized, ok
}

// State is one persisted workflow row, keyed by (chain token, step).
type State struct {
	ID            int64
	Token         string
	Step          Step
	ParentStep    Step
	Status        Status
	FailureReason string
	StartedAt     *time.Time
	UpdatedAt     time.Time
}

// Node ties a step to its parent within a step graph.
type Node struct {
	Step   Step
	Parent Step
}

// BomUploadGraph returns the fixed dependency graph created for a BOM upload
// chain. Parent edges drive cascading cancellation: METRICS_UPDATE hangs off
// POLICY_EVALUATION so that a BOM_PROCESSING failure cancels it transitively.
func BomUploadGraph() []Node {
	return []Node{
		{Step: StepBomConsumption},
		{Step: StepBomProcessing, Parent: StepBomConsumption},
		{Step: StepVulnAnalysis, Parent: StepBomProcessing},
		{Step: StepPolicyEvaluation, Parent: StepBomProcessing},
		{Step: StepMetricsUpdate, Parent: StepPolicyEvaluation},
	}
}

// ProjectCloneGraph returns the single-node graph used by the clone flow.
func ProjectCloneGraph() []Node {
	return []Node{{Step: StepProjectClone}}
}
