// Package workflow persists per-chain step status in SQLite and enforces the
// state machine rules of the ingestion pipeline: terminal states are sticky,
// and a failed step cancels its not-yet-started descendants atomically.
package workflow
