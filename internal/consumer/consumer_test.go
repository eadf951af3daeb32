package consumer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/stratum/internal/adapter"
	"github.com/stanstork/stratum/internal/kernelerr"
	"github.com/stanstork/stratum/internal/producer"
	"github.com/stanstork/stratum/internal/statestore"
	"github.com/stanstork/stratum/internal/value"
)

// fakeSink records every call a Consumer makes, so tests can assert on
// write-strategy selection and trigger bracketing without a real
// database.
type fakeSink struct {
	writes         [][]value.RowData
	fastPathWrites [][]value.RowData
	disableCalls   int
	enableCalls    int
	writeErr       error
	fastPathErr    error
}

func (f *fakeSink) WriteBatch(ctx context.Context, table string, rows []value.RowData) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, rows)
	return nil
}

func (f *fakeSink) WriteBatchFastPath(ctx context.Context, table string, rows []value.RowData) error {
	if f.fastPathErr != nil {
		return f.fastPathErr
	}
	f.fastPathWrites = append(f.fastPathWrites, rows)
	return nil
}

func (f *fakeSink) DisableTriggers(ctx context.Context, table string) error {
	f.disableCalls++
	return nil
}

func (f *fakeSink) EnableTriggers(ctx context.Context, table string) error {
	f.enableCalls++
	return nil
}

func idRow(id int64) value.RowData {
	return value.RowData{Entity: "users", FieldValues: []value.FieldValue{value.NewField("id", value.Int64(id), value.Of(value.Int))}}
}

func TestConsumerRunWritesBatchesAndCommitsCheckpoint(t *testing.T) {
	dir := t.TempDir()
	store, err := statestore.Open(dir)
	require.NoError(t, err)
	defer store.Close()

	sink := &fakeSink{}
	c := New(Config{RunID: "run-1", ItemID: "users", PartID: "p0", Table: "users", Sink: sink, Store: store})

	in := make(chan producer.Batch, 2)
	in <- producer.Batch{ID: 1, Rows: []value.RowData{idRow(1), idRow(2)}, SrcCursor: "", NextCursor: "c1"}
	in <- producer.Batch{ID: 2, Rows: []value.RowData{idRow(3)}, SrcCursor: "c1", NextCursor: "c2", ReachedEnd: true}
	close(in)

	require.NoError(t, c.Run(context.Background(), in))

	require.Len(t, sink.writes, 2)
	assert.Len(t, sink.writes[0], 2)
	assert.Len(t, sink.writes[1], 1)

	cp, ok := store.LoadCheckpoint("run-1", "users", "p0")
	require.True(t, ok)
	assert.Equal(t, statestore.StageCommitted, cp.Stage)
	assert.Equal(t, "c2", cp.SrcCursor)
	assert.Equal(t, "", cp.PendingCursor)
	assert.Equal(t, int64(3), cp.RowsDone)
}

func TestConsumerUsesFastPathWhenCapableAndKeyColumnsSet(t *testing.T) {
	dir := t.TempDir()
	store, err := statestore.Open(dir)
	require.NoError(t, err)
	defer store.Close()

	sink := &fakeSink{}
	c := New(Config{
		RunID: "run-1", ItemID: "users", PartID: "p0", Table: "users", Sink: sink, Store: store,
		Capabilities: adapter.Capabilities{CopyStreaming: true}, KeyColumns: []string{"id"},
	})

	in := make(chan producer.Batch, 1)
	in <- producer.Batch{ID: 1, Rows: []value.RowData{idRow(1)}, NextCursor: "c1", ReachedEnd: true}
	close(in)

	require.NoError(t, c.Run(context.Background(), in))
	assert.Len(t, sink.fastPathWrites, 1)
	assert.Empty(t, sink.writes)
}

func TestConsumerFallsBackToRegularWriteWithoutKeyColumns(t *testing.T) {
	dir := t.TempDir()
	store, err := statestore.Open(dir)
	require.NoError(t, err)
	defer store.Close()

	sink := &fakeSink{}
	c := New(Config{
		RunID: "run-1", ItemID: "users", PartID: "p0", Table: "users", Sink: sink, Store: store,
		Capabilities: adapter.Capabilities{CopyStreaming: true},
	})

	in := make(chan producer.Batch, 1)
	in <- producer.Batch{ID: 1, Rows: []value.RowData{idRow(1)}, NextCursor: "c1", ReachedEnd: true}
	close(in)

	require.NoError(t, c.Run(context.Background(), in))
	assert.Empty(t, sink.fastPathWrites)
	assert.Len(t, sink.writes, 1)
}

func TestConsumerPropagatesWriteErrorAndStillEnablesTriggers(t *testing.T) {
	dir := t.TempDir()
	store, err := statestore.Open(dir)
	require.NoError(t, err)
	defer store.Close()

	sink := &fakeSink{writeErr: errors.New("boom")}
	c := New(Config{
		RunID: "run-1", ItemID: "users", PartID: "p0", Table: "users", Sink: sink, Store: store,
		ToggleTriggers: true,
	})

	in := make(chan producer.Batch, 1)
	in <- producer.Batch{ID: 1, Rows: []value.RowData{idRow(1)}, NextCursor: "c1"}
	close(in)

	err = c.Run(context.Background(), in)
	require.Error(t, err)

	var kerr *kernelerr.Error
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, kernelerr.KindConsumer, kerr.Kind)

	assert.Equal(t, 1, sink.disableCalls)
	assert.Equal(t, 1, sink.enableCalls, "triggers must be re-enabled even when the write fails")
}

func TestConsumerRunStopsOnCancelledContext(t *testing.T) {
	dir := t.TempDir()
	store, err := statestore.Open(dir)
	require.NoError(t, err)
	defer store.Close()

	sink := &fakeSink{}
	c := New(Config{RunID: "run-1", ItemID: "users", PartID: "p0", Table: "users", Sink: sink, Store: store})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = c.Run(ctx, make(chan producer.Batch))
	require.Error(t, err)
	assert.True(t, kernelerr.IsShutdownRequested(err))
}

func TestConsumerSkipsEmptyBatchesWithoutCheckpointing(t *testing.T) {
	dir := t.TempDir()
	store, err := statestore.Open(dir)
	require.NoError(t, err)
	defer store.Close()

	sink := &fakeSink{}
	c := New(Config{RunID: "run-1", ItemID: "users", PartID: "p0", Table: "users", Sink: sink, Store: store})

	in := make(chan producer.Batch, 1)
	in <- producer.Batch{ID: 1, Rows: nil, ReachedEnd: true}
	close(in)

	require.NoError(t, c.Run(context.Background(), in))
	assert.Empty(t, sink.writes)
	_, ok := store.LoadCheckpoint("run-1", "users", "p0")
	assert.False(t, ok, "an empty batch must not produce a checkpoint")
}
