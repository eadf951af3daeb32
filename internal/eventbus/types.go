// Package eventbus implements the typed publish/subscribe registry from
// spec.md §4.10: a process-local event bus keyed by event type-id.
// Subscribers supply a bounded channel; publishers try_send
// (non-blocking) and drop events on a full channel, logging a warning.
// The bus has no durability role and is never on the critical path —
// nothing in the kernel waits on a subscriber draining its channel.
//
// Grounded on the teacher's internal/eventbus/bus.go handler-registry
// pattern, generalized from Claude Code hook events to pipeline progress
// events, plus its optional NATS JetStream attachment for durable,
// cross-process fan-out of the same events.
package eventbus

import "time"

// EventType identifies a progress or lifecycle event kind.
type EventType string

const (
	EventRunStarted        EventType = "run_started"
	EventItemStarted       EventType = "item_started"
	EventBatchRead          EventType = "batch_read"
	EventBatchWritten      EventType = "batch_written"
	EventBatchCommitted    EventType = "batch_committed"
	EventRowFailed         EventType = "row_failed"
	EventValidationFailed  EventType = "validation_failed"
	EventItemCompleted     EventType = "item_completed"
	EventItemFailed        EventType = "item_failed"
	EventRunCompleted      EventType = "run_completed"
	EventShutdownRequested EventType = "shutdown_requested"
)

// Event is the typed payload published on the bus (spec.md §7 "logs
// include run_id, item_id, part_id, batch_id").
type Event struct {
	Type      EventType
	RunID     string
	ItemID    string
	PartID    string
	BatchID   uint64
	RowsDone  int64
	Message   string
	Err       error
	Timestamp time.Time
}
