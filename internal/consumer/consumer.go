// Package consumer implements the write side of a migration item's
// pipeline (spec.md §4.7): receive batches from a producer, pick the
// fast-path or regular write strategy, advance the checkpoint through
// write -> committed, and publish progress events. Every Sink call
// already retries internally through the adapter's own retry.Policy
// (spec.md §4.9), so Consumer itself carries no separate retry loop.
//
// Grounded on the teacher's internal/sync apply-side worker (write ->
// advance cursor -> ack), generalized from git-object application to
// row-batch writes with a durable two-phase checkpoint.
package consumer

import (
	"context"
	"time"

	"github.com/stanstork/stratum/internal/adapter"
	"github.com/stanstork/stratum/internal/eventbus"
	"github.com/stanstork/stratum/internal/kernelerr"
	"github.com/stanstork/stratum/internal/producer"
	"github.com/stanstork/stratum/internal/statestore"
	"github.com/stanstork/stratum/internal/value"
)

// Config wires one consumer instance to its (run, item, part) identity,
// its destination sink, and the shared state store / event bus.
type Config struct {
	RunID, ItemID, PartID string

	Table          string
	Sink           adapter.Sink
	Capabilities   adapter.Capabilities
	KeyColumns     []string // destination primary key; fast path requires at least one
	ToggleTriggers bool

	Store *statestore.Store
	Bus   *eventbus.Bus
}

// Consumer drains batches from a producer and writes them.
type Consumer struct {
	cfg Config
}

func New(cfg Config) *Consumer { return &Consumer{cfg: cfg} }

// Run writes every batch received on in until in is closed, a batch
// reports ReachedEnd, or ctx is cancelled. Trigger toggling, when
// enabled, brackets the whole run and is re-enabled on every exit path,
// including a cancelled context or a write failure.
func (c *Consumer) Run(ctx context.Context, in <-chan producer.Batch) (err error) {
	if c.cfg.ToggleTriggers {
		if err := c.cfg.Sink.DisableTriggers(ctx, c.cfg.Table); err != nil {
			return kernelerr.Consumer(kernelerr.ConsumerWrite, err)
		}
		defer func() {
			// Re-enable with a fresh context: ctx may already be
			// cancelled on the error/shutdown exit paths, and
			// re-enabling triggers must not be skipped because the
			// run itself failed.
			if reErr := c.cfg.Sink.EnableTriggers(context.Background(), c.cfg.Table); reErr != nil && err == nil {
				err = kernelerr.Consumer(kernelerr.ConsumerWrite, reErr)
			}
		}()
	}

	var rowsDone int64
	for {
		select {
		case batch, ok := <-in:
			if !ok {
				return nil
			}
			if werr := c.consume(ctx, batch, &rowsDone); werr != nil {
				return werr
			}
			if batch.ReachedEnd {
				c.publish(ctx, eventbus.EventItemCompleted, batch.ID, nil)
				return nil
			}
		case <-ctx.Done():
			return kernelerr.ShutdownRequested()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, batch producer.Batch, rowsDone *int64) error {
	if len(batch.Rows) == 0 {
		return nil
	}

	if err := c.checkpointWrite(batch); err != nil {
		return kernelerr.Consumer(kernelerr.ConsumerCheckpoint, err)
	}

	if err := c.writeRows(ctx, batch.Rows); err != nil {
		return kernelerr.Consumer(kernelerr.ConsumerWrite, err)
	}
	c.publish(ctx, eventbus.EventBatchWritten, batch.ID, nil)

	*rowsDone += int64(len(batch.Rows))
	if err := c.commit(batch, *rowsDone); err != nil {
		return kernelerr.Consumer(kernelerr.ConsumerCheckpoint, err)
	}
	c.publish(ctx, eventbus.EventBatchCommitted, batch.ID, nil)
	return nil
}

// writeRows picks WriteBatchFastPath when the destination advertises
// CopyStreaming and the table has a known primary key to upsert/dedupe
// against, falling back to the regular row-by-row strategy otherwise
// (spec.md §6).
func (c *Consumer) writeRows(ctx context.Context, rows []value.RowData) error {
	if c.cfg.Capabilities.CopyStreaming && len(c.cfg.KeyColumns) > 0 {
		return c.cfg.Sink.WriteBatchFastPath(ctx, c.cfg.Table, rows)
	}
	return c.cfg.Sink.WriteBatch(ctx, c.cfg.Table, rows)
}

// checkpointWrite records the in-flight batch before attempting the
// write: SrcCursor stays at the last committed position, PendingCursor
// moves to this batch's end. A crash here resumes mid-batch via
// Checkpoint.ResumeCursor (spec.md §4.2).
func (c *Consumer) checkpointWrite(batch producer.Batch) error {
	return c.cfg.Store.SaveCheckpoint(statestore.Checkpoint{
		RunID: c.cfg.RunID, ItemID: c.cfg.ItemID, PartID: c.cfg.PartID,
		Stage: statestore.StageWrite, SrcCursor: batch.SrcCursor, PendingCursor: batch.NextCursor,
		BatchID: batch.ID, UpdatedAt: time.Now(),
	})
}

// commit records BatchCommit: a StageCommitted WAL entry plus a
// checkpoint that folds PendingCursor into SrcCursor and clears it, so
// the next resume starts strictly after this batch.
func (c *Consumer) commit(batch producer.Batch, rowsDone int64) error {
	if _, err := c.cfg.Store.AppendWAL(statestore.WALEntry{
		RunID: c.cfg.RunID, ItemID: c.cfg.ItemID, PartID: c.cfg.PartID,
		BatchID: batch.ID, Stage: statestore.StageCommitted, Cursor: batch.NextCursor, RowsDone: int64(len(batch.Rows)),
	}); err != nil {
		return err
	}
	return c.cfg.Store.SaveCheckpoint(statestore.Checkpoint{
		RunID: c.cfg.RunID, ItemID: c.cfg.ItemID, PartID: c.cfg.PartID,
		Stage: statestore.StageCommitted, SrcCursor: batch.NextCursor, PendingCursor: "",
		BatchID: batch.ID, RowsDone: rowsDone, UpdatedAt: time.Now(),
	})
}

func (c *Consumer) publish(ctx context.Context, t eventbus.EventType, batchID uint64, err error) {
	if c.cfg.Bus == nil {
		return
	}
	var msg string
	if err != nil {
		msg = err.Error()
	}
	c.cfg.Bus.Publish(ctx, eventbus.Event{
		Type: t, RunID: c.cfg.RunID, ItemID: c.cfg.ItemID, PartID: c.cfg.PartID,
		BatchID: batchID, Err: err, Message: msg, Timestamp: time.Now(),
	})
}
