package eventbus

import "context"

// Handler processes events synchronously on the publishing goroutine, in
// priority order (lower value first), for matching event types. Used for
// in-process concerns like structured logging that must see every event
// immediately; use Subscribe instead for consumers that tolerate drops
// under backpressure.
type Handler interface {
	ID() string
	Handles() []EventType
	Priority() int
	Handle(ctx context.Context, event *Event) error
}
