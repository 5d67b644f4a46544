// Package pipeline contains the driver that consumes ingestion and clone
// requests from the bus and drives the per-chain workflow state machine.
package pipeline
