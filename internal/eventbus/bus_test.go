package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscribedChannel(t *testing.T) {
	b := New()
	ch := make(chan Event, 4)
	unsub := b.Subscribe(ch, EventBatchCommitted)
	defer unsub()

	b.Publish(context.Background(), Event{Type: EventBatchCommitted, RunID: "run-1"})

	select {
	case ev := <-ch:
		assert.Equal(t, EventBatchCommitted, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected event on channel")
	}
}

func TestPublishIgnoresUnmatchedTypes(t *testing.T) {
	b := New()
	ch := make(chan Event, 4)
	unsub := b.Subscribe(ch, EventBatchCommitted)
	defer unsub()

	b.Publish(context.Background(), Event{Type: EventItemStarted})

	select {
	case <-ch:
		t.Fatal("should not receive unmatched event type")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishNeverBlocksOnFullSubscriberChannel(t *testing.T) {
	b := New()
	ch := make(chan Event, 1)
	unsub := b.Subscribe(ch, EventRowFailed)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(context.Background(), Event{Type: EventRowFailed})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish must never block on a full subscriber channel")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	ch := make(chan Event, 4)
	unsub := b.Subscribe(ch, EventItemCompleted)
	unsub()

	b.Publish(context.Background(), Event{Type: EventItemCompleted})

	select {
	case <-ch:
		t.Fatal("unsubscribed channel should not receive events")
	case <-time.After(50 * time.Millisecond):
	}
}

type countingHandler struct {
	id    string
	types []EventType
	count int
}

func (h *countingHandler) ID() string            { return h.id }
func (h *countingHandler) Handles() []EventType  { return h.types }
func (h *countingHandler) Priority() int         { return 0 }
func (h *countingHandler) Handle(_ context.Context, _ *Event) error {
	h.count++
	return nil
}

func TestRegisteredHandlerRunsSynchronously(t *testing.T) {
	b := New()
	h := &countingHandler{id: "logger", types: []EventType{EventRunStarted}}
	b.Register(h)

	b.Publish(context.Background(), Event{Type: EventRunStarted})
	require.Equal(t, 1, h.count)
}
