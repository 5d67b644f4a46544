package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldChainToken is the standardized structured logging key for processing chain tokens.
	FieldChainToken = "chain_token"
	// FieldProject is the standardized structured logging key for project identifiers.
	FieldProject = "project"
	// FieldStep is the standardized structured logging key for workflow step names.
	FieldStep = "step"
	// FieldTopic is the standardized structured logging key for bus topic names.
	FieldTopic = "topic"
	// FieldEventType is the standardized structured logging key for machine-readable event kinds.
	FieldEventType = "event_type"
)
