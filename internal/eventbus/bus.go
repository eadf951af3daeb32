package eventbus

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/nats-io/nats.go"
)

// subscription is one bounded-channel subscriber registered via
// Subscribe.
type subscription struct {
	id    string
	types map[EventType]bool
	ch    chan Event
}

// Bus dispatches events to registered synchronous Handlers and to
// bounded-channel subscribers, and optionally publishes events to NATS
// JetStream for durable, cross-process consumption.
type Bus struct {
	mu            sync.RWMutex
	handlers      []Handler
	subscriptions []*subscription
	js            nats.JetStreamContext
	nextSubID     int
}

func New() *Bus { return &Bus{} }

// SetJetStream attaches a JetStream context for durable event
// publishing. When set, Publish also publishes to JetStream after local
// dispatch. Publishing is fire-and-forget — errors are logged but never
// propagated, since the bus has no durability role of its own.
func (b *Bus) SetJetStream(js nats.JetStreamContext) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.js = js
}

func (b *Bus) JetStreamEnabled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.js != nil
}

// Register adds a synchronous Handler. Handlers run in priority order
// (lowest first) on the publishing goroutine, before subscribers are
// notified.
func (b *Bus) Register(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Subscribe registers a bounded channel for the given event types and
// returns an unsubscribe function. ch's capacity is the subscriber's
// backpressure budget: Publish never blocks on it.
func (b *Bus) Subscribe(ch chan Event, types ...EventType) (unsubscribe func()) {
	b.mu.Lock()
	b.nextSubID++
	id := fmt.Sprintf("sub-%d", b.nextSubID)
	set := make(map[EventType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	sub := &subscription{id: id, types: set, ch: ch}
	b.subscriptions = append(b.subscriptions, sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subscriptions {
			if s.id == id {
				b.subscriptions = append(b.subscriptions[:i], b.subscriptions[i+1:]...)
				return
			}
		}
	}
}

// Publish dispatches event to matching synchronous handlers (sequentially,
// priority order, errors logged but not fatal), then try-sends it to
// every matching bounded-channel subscriber, dropping and logging a
// warning on any that is full. If JetStream is configured, the event is
// also published there, best-effort.
func (b *Bus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := b.matchingHandlers(event.Type)
	subs := b.matchingSubscriptions(event.Type)
	js := b.js
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := ctx.Err(); err != nil {
			return
		}
		if err := h.Handle(ctx, &event); err != nil {
			log.Printf("eventbus: handler %q error for %s: %v", h.ID(), event.Type, err)
		}
	}

	for _, sub := range subs {
		select {
		case sub.ch <- event:
		default:
			log.Printf("eventbus: subscriber %q channel full, dropping %s event (run=%s item=%s)",
				sub.id, event.Type, event.RunID, event.ItemID)
		}
	}

	if js != nil {
		b.publishToJetStream(js, event)
	}
}

func (b *Bus) publishToJetStream(js nats.JetStreamContext, event Event) {
	subject := "stratum.events." + string(event.Type)
	data := []byte(fmt.Sprintf(`{"type":%q,"run_id":%q,"item_id":%q,"part_id":%q,"batch_id":%d,"rows_done":%d}`,
		event.Type, event.RunID, event.ItemID, event.PartID, event.BatchID, event.RowsDone))
	if _, err := js.Publish(subject, data); err != nil {
		log.Printf("eventbus: JetStream publish to %s failed: %v", subject, err)
	}
}

func (b *Bus) matchingHandlers(t EventType) []Handler {
	var matched []Handler
	for _, h := range b.handlers {
		for _, handled := range h.Handles() {
			if handled == t {
				matched = append(matched, h)
				break
			}
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Priority() < matched[j].Priority() })
	return matched
}

func (b *Bus) matchingSubscriptions(t EventType) []*subscription {
	var matched []*subscription
	for _, s := range b.subscriptions {
		if s.types[t] {
			matched = append(matched, s)
		}
	}
	return matched
}
