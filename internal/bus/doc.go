// Package bus provides the in-process partitioned message bus the pipeline
// publishes on: per-key ordered delivery, at-least-once redelivery, the
// closed set of message variants, and the threshold guard that rate-limits
// alerting on repeated consumer failures.
package bus
