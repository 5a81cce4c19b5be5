// Package progress carries batch-run milestones from the orchestrator to
// pluggable sinks. Emitters never block: events are buffered, batched on a
// background goroutine and handed to each sink, such as structured logs or
// Prometheus collectors.
package progress
