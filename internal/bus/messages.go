package bus

import "time"

// Topic names. Lifecycle notifications share one topic and are told apart by
// their group; commands and results each get their own topic.
const (
	TopicBomNotification  = "bom-notification"
	TopicVulnAnalysisCmd  = "vuln-analysis-command"
	TopicRepoMetaCmd      = "repo-meta-analysis-command"
	TopicIngestionRequest = "bom-ingestion-request"
	TopicAnalysisResult   = "vuln-analysis-result"
	TopicCloneRequest     = "project-clone-request"
)

// Level is the severity attached to lifecycle notifications.
type Level string

const (
	LevelInformational Level = "INFORMATIONAL"
	LevelError         Level = "ERROR"
)

// Group identifies the kind of lifecycle notification.
type Group string

const (
	GroupProjectCreated      Group = "PROJECT_CREATED"
	GroupBomConsumed         Group = "BOM_CONSUMED"
	GroupBomProcessed        Group = "BOM_PROCESSED"
	GroupBomProcessingFailed Group = "BOM_PROCESSING_FAILED"
)

// OmittedContent replaces the raw manifest payload in failure notifications.
const OmittedContent = "(Omitted)"

// Message is the closed set of payloads carried by the bus. Each variant
// declares its own required fields; consumers switch on the concrete type.
type Message interface {
	isMessage()
}

// ProjectRef identifies a project on notifications and commands.
type ProjectRef struct {
	UUID    string
	Group   string
	Name    string
	Version string
}

// ProjectCreated announces a project auto-created by an upload.
type ProjectCreated struct {
	Timestamp time.Time
	Project   ProjectRef
}

// BomConsumed announces that a manifest was received and parsed.
type BomConsumed struct {
	Timestamp   time.Time
	Token       string
	Project     ProjectRef
	Format      string
	SpecVersion string
}

// BomProcessed announces that a manifest was merged into the portfolio.
type BomProcessed struct {
	Timestamp   time.Time
	Token       string
	Project     ProjectRef
	Format      string
	SpecVersion string
}

// BomProcessingFailed announces a terminal ingestion failure. Content always
// carries OmittedContent, never the offending payload.
type BomProcessingFailed struct {
	Timestamp   time.Time
	Token       string
	Project     ProjectRef
	Format      string
	SpecVersion string
	Content     string
	Cause       string
}

// VulnAnalysisCommand requests vulnerability analysis for one component.
type VulnAnalysisCommand struct {
	Token         string
	ComponentUUID string
	Purl          string
	CPE           string
}

// RepoMetaAnalysisCommand requests repository metadata retrieval for one
// component coordinate.
type RepoMetaAnalysisCommand struct {
	ComponentUUID string
	Purl          string
	FetchMeta     bool
}

// IngestionRequest asks the driver to run one ingestion chain. ManifestPath
// is transient; the pipeline deletes the file after processing either way.
type IngestionRequest struct {
	Token                      string
	ProjectUUID                string
	ManifestPath               string
	DelayProcessedNotification bool
	ProjectCreated             bool
}

// AnalysisResult reports completion of per-component analysis back to the
// driver. Results carries how many commands this event acknowledges.
type AnalysisResult struct {
	Token   string
	Results int64
}

// CloneRequest asks the driver to run the project clone flow.
type CloneRequest struct {
	Token      string
	SourceUUID string
	NewVersion string
}

func (ProjectCreated) isMessage()          {}
func (BomConsumed) isMessage()             {}
func (BomProcessed) isMessage()            {}
func (BomProcessingFailed) isMessage()     {}
func (VulnAnalysisCommand) isMessage()     {}
func (RepoMetaAnalysisCommand) isMessage() {}
func (IngestionRequest) isMessage()        {}
func (AnalysisResult) isMessage()          {}
func (CloneRequest) isMessage()            {}

// NotificationGroup maps a lifecycle notification to its group, or "" for
// non-notification messages.
func NotificationGroup(msg Message) Group {
	switch msg.(type) {
	case ProjectCreated:
		return GroupProjectCreated
	case BomConsumed:
		return GroupBomConsumed
	case BomProcessed:
		return GroupBomProcessed
	case BomProcessingFailed:
		return GroupBomProcessingFailed
	default:
		return ""
	}
}

// NotificationLevel maps a lifecycle notification to its severity.
func NotificationLevel(msg Message) Level {
	if _, ok := msg.(BomProcessingFailed); ok {
		return LevelError
	}
	return LevelInformational
}
