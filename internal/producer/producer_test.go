package producer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/stratum/internal/cursor"
	"github.com/stanstork/stratum/internal/eventbus"
	"github.com/stanstork/stratum/internal/kernelerr"
	"github.com/stanstork/stratum/internal/plan"
	"github.com/stanstork/stratum/internal/statestore"
	"github.com/stanstork/stratum/internal/transform"
	"github.com/stanstork/stratum/internal/value"
)

// fakeSource replays a fixed sequence of pages regardless of the cursor
// it's asked for, so tests can assert on exactly what Producer.Run does
// with each page without a real adapter.
type fakeSource struct {
	pages [][]value.RowData
	next  int
}

func (f *fakeSource) FetchPage(ctx context.Context, cur cursor.Cursor, limit int) ([]value.RowData, cursor.Cursor, bool, error) {
	if f.next >= len(f.pages) {
		return nil, cursor.NewDefault(int64(f.next)), true, nil
	}
	page := f.pages[f.next]
	f.next++
	reachedEnd := f.next >= len(f.pages)
	return page, cursor.NewDefault(int64(f.next)), reachedEnd, nil
}

func idRow(id int64) value.RowData {
	return value.RowData{Entity: "users", FieldValues: []value.FieldValue{value.NewField("id", value.Int64(id), value.Of(value.Int))}}
}

func identityPipeline() *transform.Pipeline {
	return &transform.Pipeline{Mapping: plan.NewEntityMapping(), CopyColumns: plan.CopyColumnsAll}
}

func noopParse(s string) (transform.Expr, error) { return transform.Expr{}, nil }

func TestProducerRunSendsAllPagesAndCheckpointsRead(t *testing.T) {
	dir := t.TempDir()
	store, err := statestore.Open(dir)
	require.NoError(t, err)
	defer store.Close()

	src := &fakeSource{pages: [][]value.RowData{{idRow(1), idRow(2)}, {idRow(3)}}}
	p := New(Config{
		RunID: "run-1", ItemID: "users", PartID: "p0",
		Source: src, BatchSize: 2, Store: store, Pipeline: identityPipeline(), ParseExpr: noopParse,
	})

	out := make(chan Batch, 4)
	require.NoError(t, p.Run(context.Background(), out))
	close(out)

	var batches []Batch
	for b := range out {
		batches = append(batches, b)
	}
	require.Len(t, batches, 2)
	assert.Len(t, batches[0].Rows, 2)
	assert.Len(t, batches[1].Rows, 1)
	assert.True(t, batches[1].ReachedEnd)

	cp, ok := store.LoadCheckpoint("run-1", "users", "p0")
	require.True(t, ok)
	assert.Equal(t, statestore.StageRead, cp.Stage)
	assert.Equal(t, uint64(2), cp.BatchID)
}

func TestProducerStartsFromNoneCursorWhenNoPriorRun(t *testing.T) {
	dir := t.TempDir()
	store, err := statestore.Open(dir)
	require.NoError(t, err)
	defer store.Close()

	src := &fakeSource{pages: [][]value.RowData{{idRow(1)}}}
	p := New(Config{RunID: "run-1", ItemID: "users", PartID: "p0", Source: src, BatchSize: 10, Store: store})

	cur, err := p.resolveResumeCursor()
	require.NoError(t, err)
	assert.Equal(t, cursor.None, cur.Kind())
}

func TestProducerResumesFromPendingCursorWhenWALHasCommit(t *testing.T) {
	dir := t.TempDir()
	store, err := statestore.Open(dir)
	require.NoError(t, err)
	defer store.Close()

	pendingEnc, err := cursor.Encode(cursor.NewDefault(7))
	require.NoError(t, err)
	srcEnc, err := cursor.Encode(cursor.NewDefault(5))
	require.NoError(t, err)

	require.NoError(t, store.SaveCheckpoint(statestore.Checkpoint{
		RunID: "run-1", ItemID: "users", PartID: "p0", Stage: statestore.StageWrite,
		SrcCursor: srcEnc, PendingCursor: pendingEnc, BatchID: 3,
	}))
	_, err = store.AppendWAL(statestore.WALEntry{RunID: "run-1", ItemID: "users", PartID: "p0", BatchID: 3, Stage: statestore.StageCommitted})
	require.NoError(t, err)

	p := New(Config{RunID: "run-1", ItemID: "users", PartID: "p0", Store: store})
	cur, err := p.resolveResumeCursor()
	require.NoError(t, err)
	off, ok := cur.Offset()
	require.True(t, ok)
	assert.Equal(t, int64(7), off)
}

func TestProducerRunStopsOnCancelledContext(t *testing.T) {
	dir := t.TempDir()
	store, err := statestore.Open(dir)
	require.NoError(t, err)
	defer store.Close()

	src := &fakeSource{pages: [][]value.RowData{{idRow(1)}}}
	p := New(Config{RunID: "run-1", ItemID: "users", PartID: "p0", Source: src, BatchSize: 1, Store: store})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = p.Run(ctx, make(chan Batch))
	require.Error(t, err)
	assert.True(t, kernelerr.IsShutdownRequested(err))
}

func TestProducerAbortsOnPipelineFatal(t *testing.T) {
	dir := t.TempDir()
	store, err := statestore.Open(dir)
	require.NoError(t, err)
	defer store.Close()

	src := &fakeSource{pages: [][]value.RowData{{idRow(1)}}}
	pipeline := &transform.Pipeline{
		Mapping: plan.NewEntityMapping(),
		Validations: []plan.ValidationRule{
			{Expression: "always_false", Action: plan.ActionFail},
		},
	}
	p := New(Config{
		RunID: "run-1", ItemID: "users", PartID: "p0",
		Source: src, BatchSize: 1, Store: store, Pipeline: pipeline,
		ParseExpr: func(s string) (transform.Expr, error) {
			return transform.Literal(value.Bool(false)), nil
		},
	})

	out := make(chan Batch, 1)
	err = p.Run(context.Background(), out)
	require.Error(t, err)

	var kerr *kernelerr.TransformError
	require.ErrorAs(t, err, &kerr)
	assert.True(t, kerr.IsFatal())
}

func TestProducerPublishesBatchReadEvents(t *testing.T) {
	dir := t.TempDir()
	store, err := statestore.Open(dir)
	require.NoError(t, err)
	defer store.Close()

	bus := eventbus.New()
	received := make(chan eventbus.Event, 4)
	bus.Subscribe(received, eventbus.EventBatchRead)

	src := &fakeSource{pages: [][]value.RowData{{idRow(1)}}}
	p := New(Config{RunID: "run-1", ItemID: "users", PartID: "p0", Source: src, BatchSize: 1, Store: store, Bus: bus})

	out := make(chan Batch, 1)
	require.NoError(t, p.Run(context.Background(), out))

	select {
	case ev := <-received:
		assert.Equal(t, eventbus.EventBatchRead, ev.Type)
		assert.Equal(t, uint64(1), ev.BatchID)
	default:
		t.Fatal("expected a batch_read event")
	}
}
