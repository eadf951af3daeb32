// Package producer implements the cursor-driven fetch side of a
// migration item's pipeline (spec.md §4.7): resolve the resume cursor,
// fetch pages from a RowSource, run them through the transformation
// pipeline, checkpoint the read position, and hand batches to a
// consumer over a bounded channel.
//
// Grounded on the teacher's internal/sync worker loop (poll -> transform
// -> checkpoint -> hand off), generalized from git-object sync batches
// to migration row batches.
package producer

import (
	"context"
	"time"

	"github.com/stanstork/stratum/internal/cursor"
	"github.com/stanstork/stratum/internal/eventbus"
	"github.com/stanstork/stratum/internal/kernelerr"
	"github.com/stanstork/stratum/internal/statestore"
	"github.com/stanstork/stratum/internal/transform"
	"github.com/stanstork/stratum/internal/value"
)

// Batch is one producer tick's output, sent to the consumer over the
// bounded output channel. SrcCursor is the position the batch was read
// from; NextCursor is the position to resume from after it commits.
type Batch struct {
	ID         uint64
	Rows       []value.RowData
	SrcCursor  string
	NextCursor string
	ReachedEnd bool
}

// Config wires one producer instance to its (run, item, part) identity,
// its row source, and the shared state store / event bus / pipeline.
type Config struct {
	RunID, ItemID, PartID string

	Source    RowSource
	BatchSize int
	Store     *statestore.Store
	Bus       *eventbus.Bus
	Pipeline  *transform.Pipeline
	ParseExpr func(string) (transform.Expr, error)
}

// Producer runs the fetch loop for one (run, item, part).
type Producer struct {
	cfg     Config
	batchID uint64
}

func New(cfg Config) *Producer { return &Producer{cfg: cfg} }

// Run resolves the resume cursor and fetches pages until the source is
// exhausted or ctx is cancelled, sending each transformed batch on out.
// The send on out is the pipeline's sole backpressure point: Run blocks
// there until the consumer (or kernel shutdown) is ready.
func (p *Producer) Run(ctx context.Context, out chan<- Batch) error {
	cur, err := p.resolveResumeCursor()
	if err != nil {
		return kernelerr.Producer(kernelerr.ProducerOther, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return kernelerr.ShutdownRequested()
		}

		rows, next, reachedEnd, err := p.cfg.Source.FetchPage(ctx, cur, p.cfg.BatchSize)
		if err != nil {
			return kernelerr.Producer(kernelerr.ProducerFetch, err)
		}

		transformed := rows
		if p.cfg.Pipeline != nil && len(rows) > 0 {
			res := p.cfg.Pipeline.Run(rows, p.cfg.ParseExpr)
			if res.Fatal != nil {
				return res.Fatal
			}
			transformed = res.Rows
			for _, f := range res.Failed {
				p.publish(ctx, eventbus.EventRowFailed, 0, f.Error)
			}
		}

		p.batchID++
		batchID := p.batchID

		srcEnc, err := cursor.Encode(cur)
		if err != nil {
			return kernelerr.Producer(kernelerr.ProducerOther, err)
		}
		nextEnc, err := cursor.Encode(next)
		if err != nil {
			return kernelerr.Producer(kernelerr.ProducerOther, err)
		}

		if len(rows) > 0 {
			if err := p.checkpointRead(batchID, srcEnc, nextEnc, int64(len(transformed))); err != nil {
				return kernelerr.Producer(kernelerr.ProducerOther, err)
			}

			select {
			case out <- Batch{ID: batchID, Rows: transformed, SrcCursor: srcEnc, NextCursor: nextEnc, ReachedEnd: reachedEnd}:
			case <-ctx.Done():
				return kernelerr.ShutdownRequested()
			}
			p.publish(ctx, eventbus.EventBatchRead, batchID, nil)
		}

		cur = next
		if reachedEnd {
			return nil
		}
	}
}

// checkpointRead records BatchBegin: a StageRead WAL entry plus a
// checkpoint pointing SrcCursor at the last committed position and
// PendingCursor at this batch's end, so a crash mid-batch resumes
// correctly via Checkpoint.ResumeCursor (spec.md §4.2).
func (p *Producer) checkpointRead(batchID uint64, srcCursor, nextCursor string, rows int64) error {
	if _, err := p.cfg.Store.AppendWAL(statestore.WALEntry{
		RunID: p.cfg.RunID, ItemID: p.cfg.ItemID, PartID: p.cfg.PartID,
		BatchID: batchID, Stage: statestore.StageRead, Cursor: nextCursor, RowsDone: rows,
	}); err != nil {
		return err
	}
	return p.cfg.Store.SaveCheckpoint(statestore.Checkpoint{
		RunID: p.cfg.RunID, ItemID: p.cfg.ItemID, PartID: p.cfg.PartID,
		Stage: statestore.StageRead, SrcCursor: srcCursor, PendingCursor: nextCursor, BatchID: batchID,
	})
}

// resolveResumeCursor loads the last checkpoint (if any) for this item's
// part and derives the cursor to resume reading from, per spec.md §4.2's
// resume table.
func (p *Producer) resolveResumeCursor() (cursor.Cursor, error) {
	cp, ok := p.cfg.Store.LoadCheckpoint(p.cfg.RunID, p.cfg.ItemID, p.cfg.PartID)
	if !ok {
		return cursor.NewNone(), nil
	}
	hasCommit, err := p.cfg.Store.HasBatchCommit(p.cfg.RunID, p.cfg.ItemID, p.cfg.PartID, cp.BatchID)
	if err != nil {
		return cursor.Cursor{}, err
	}
	return cursor.Parse(cp.ResumeCursor(hasCommit))
}

func (p *Producer) publish(ctx context.Context, t eventbus.EventType, batchID uint64, err error) {
	if p.cfg.Bus == nil {
		return
	}
	var msg string
	if err != nil {
		msg = err.Error()
	}
	p.cfg.Bus.Publish(ctx, eventbus.Event{
		Type: t, RunID: p.cfg.RunID, ItemID: p.cfg.ItemID, PartID: p.cfg.PartID,
		BatchID: batchID, Err: err, Message: msg, Timestamp: time.Now(),
	})
}
