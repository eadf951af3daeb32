// Package kernel implements the execution kernel from spec.md §4.1: for
// one migrate-item it opens source/destination endpoints, loads
// metadata, applies schema settings, and runs one producer/consumer
// pair connected by a bounded batch channel until the pipeline
// completes or the caller cancels.
//
// Grounded on the teacher's internal/sync coordinator (the piece that
// opens a session, loads refs, and pairs a fetch goroutine with an
// apply goroutine via golang.org/x/sync/errgroup), generalized from
// git-object sync to row-batch migration.
package kernel

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stanstork/stratum/internal/adapter"
	"github.com/stanstork/stratum/internal/config"
	"github.com/stanstork/stratum/internal/consumer"
	"github.com/stanstork/stratum/internal/cursor"
	"github.com/stanstork/stratum/internal/eventbus"
	"github.com/stanstork/stratum/internal/kernelerr"
	"github.com/stanstork/stratum/internal/metadata"
	"github.com/stanstork/stratum/internal/plan"
	"github.com/stanstork/stratum/internal/producer"
	"github.com/stanstork/stratum/internal/schema"
	"github.com/stanstork/stratum/internal/statestore"
	"github.com/stanstork/stratum/internal/transform"
)

// batchChanSize bounds the producer/consumer handoff channel; a
// producer tick blocks on send once this many batches are unconsumed,
// the pipeline's sole backpressure point (spec.md §4.7).
const batchChanSize = 2

// partID is fixed: spec.md's part_id exists for the state store's key
// shape, but this kernel runs one producer/consumer pair per item with
// no sub-item partitioning.
const partID = "0"

// SummaryReport is one item's outcome from a Run call (spec.md §4.1
// "run(plan, dry_run, cancel) -> map<item_name, SummaryReport>").
type SummaryReport struct {
	ItemName  string
	RunID     string
	ItemID    string
	DryRun    bool
	StartedAt time.Time
	EndedAt   time.Time

	SchemaActions []schema.SchemaAction
	Statements    []schema.SqlStatement

	Err error
}

// Kernel wires the durable state store and event bus shared across
// every item in a run.
type Kernel struct {
	Store *statestore.Store
	Bus   *eventbus.Bus
}

func New(store *statestore.Store, bus *eventbus.Bus) *Kernel {
	return &Kernel{Store: store, Bus: bus}
}

// Run executes every pipeline in p in order, stopping at the first
// unrecoverable error (spec.md §4.1). dryRun skips live schema
// application and data writes; schema actions are still computed and
// returned on each item's SummaryReport for the dry-run report
// (spec.md §6).
func (k *Kernel) Run(ctx context.Context, p *plan.ExecutionPlan, dryRun bool) (map[string]*SummaryReport, error) {
	hash, err := p.Hash()
	if err != nil {
		return nil, kernelerr.Initialization("hash execution plan", err)
	}
	runID := plan.RunID(hash)
	if _, err := k.Store.AppendWAL(statestore.WALEntry{RunID: runID, Stage: statestore.StageRunStart}); err != nil {
		return nil, kernelerr.Initialization("append run-start WAL entry", err)
	}
	k.publish(ctx, eventbus.EventRunStarted, runID, "", nil)

	results := make(map[string]*SummaryReport, len(p.Pipelines))
	for idx, pl := range p.Pipelines {
		destConn, ok := p.Connection(pl.Destination.Connection)
		if !ok {
			return results, kernelerr.Initialization("resolve destination connection",
				fmt.Errorf("pipeline %q: connection %q not found", pl.Name, pl.Destination.Connection))
		}
		itemID := plan.ItemID(hash, idx, destConn.Name)

		if _, err := k.Store.AppendWAL(statestore.WALEntry{
			RunID: runID, ItemID: itemID, PartID: partID, Stage: statestore.StageItemStart,
		}); err != nil {
			return results, kernelerr.Initialization("append item-start WAL entry", err)
		}

		rep := &SummaryReport{ItemName: pl.Name, RunID: runID, ItemID: itemID, DryRun: dryRun, StartedAt: time.Now()}
		results[pl.Name] = rep

		k.publish(ctx, eventbus.EventItemStarted, runID, itemID, nil)
		err := k.runItem(ctx, p, runID, itemID, &pl, dryRun, rep)
		rep.EndedAt = time.Now()
		rep.Err = err

		if err != nil {
			k.publish(ctx, eventbus.EventItemFailed, runID, itemID, err)
			return results, err
		}
	}

	k.publish(ctx, eventbus.EventRunCompleted, runID, "", nil)
	return results, nil
}

// runItem implements "load_metadata -> apply_settings -> start_pipeline"
// (spec.md §4.1) for one pipeline entry.
func (k *Kernel) runItem(ctx context.Context, p *plan.ExecutionPlan, runID, itemID string, pl *plan.Pipeline, dryRun bool, rep *SummaryReport) error {
	srcConn, ok := p.Connection(pl.Source.Connection)
	if !ok {
		return kernelerr.Initialization("resolve source connection",
			fmt.Errorf("pipeline %q: connection %q not found", pl.Name, pl.Source.Connection))
	}
	destConn, _ := p.Connection(pl.Destination.Connection)

	src, err := connect(ctx, srcConn)
	if err != nil {
		return err
	}
	defer src.close()

	dest, err := connect(ctx, destConn)
	if err != nil {
		return err
	}
	defer dest.close()

	if !dest.isSQL() {
		return kernelerr.Settings("destination connection must be a SQL adapter; file destinations are out of scope")
	}

	if pl.Mapping == nil {
		return kernelerr.Settings(fmt.Sprintf("pipeline %q has no compiled entity mapping", pl.Name))
	}

	applyRetryPolicy(src, pl.ErrorHandling)
	applyRetryPolicy(dest, pl.ErrorHandling)

	destTable := pl.Destination.Table
	if destTable == "" {
		destTable = pl.Mapping.ResolveEntity(pl.Source.Table)
	}

	var graph *metadata.Graph
	if src.isSQL() {
		graph, err = metadata.Build(ctx, src.sql, []string{pl.Source.Table})
		if err != nil {
			return kernelerr.Db(kernelerr.DbCircularRef, "build metadata graph", err)
		}
	}

	schemaPlan, err := k.planSchema(ctx, graph, dest, pl)
	if err != nil {
		return err
	}
	rep.SchemaActions = schemaPlan.Actions()
	rep.Statements = schemaPlan.Statements()

	if !dryRun {
		if err := schemaPlan.Apply(ctx, dest.sql); err != nil {
			return err
		}
	}

	keyColumns := destinationKeyColumns(graph, pl)
	caps := dest.sql.Capabilities()

	if dryRun {
		return nil
	}

	return k.startPipeline(ctx, runID, itemID, pl, src, dest, destTable, keyColumns, caps)
}

// planSchema renders the destination DDL plan for pl, skipping entirely
// when infer_schema is off (schema.Build already honors that) or when
// the source isn't a SQL adapter (no TableMetadata to infer from).
func (k *Kernel) planSchema(ctx context.Context, graph *metadata.Graph, dest endpoint, pl *plan.Pipeline) (*schema.Plan, error) {
	if graph == nil || !pl.Settings.InferSchema {
		return schema.New(dialectFor(dest)), nil
	}

	existing := map[string]bool{}
	for _, t := range graph.Tables {
		destName := pl.Mapping.ResolveEntity(t.Name)
		if _, seen := existing[destName]; seen {
			continue
		}
		ok, err := dest.sql.TableExists(ctx, destName)
		if err != nil {
			return nil, kernelerr.Db(kernelerr.DbDriver, "check destination table existence", err)
		}
		existing[destName] = ok
	}

	p, err := schema.Build(graph, pl.Mapping, existing, dialectFor(dest), pl.Settings)
	if err != nil {
		return nil, kernelerr.Db(kernelerr.DbQueryBuild, "build schema plan", err)
	}
	return p, nil
}

func dialectFor(ep endpoint) schema.Dialect {
	if ep.sql != nil && ep.sql.Dialect() == "mysql" {
		return schema.DialectMySQL
	}
	return schema.DialectPostgres
}

// destinationKeyColumns derives the destination's primary key columns
// from the source table's metadata (mapped through the entity mapping),
// the input the consumer's fast-path decision needs (spec.md §4.6).
func destinationKeyColumns(graph *metadata.Graph, pl *plan.Pipeline) []string {
	if graph == nil {
		return nil
	}
	t, ok := graph.Table(pl.Source.Table)
	if !ok {
		return nil
	}
	var cols []string
	for _, pk := range t.PrimaryKeys {
		cols = append(cols, pl.Mapping.Resolve(pl.Source.Table, pk))
	}
	return cols
}

func applyRetryPolicy(ep endpoint, eh plan.ErrorHandling) {
	if ep.sql == nil {
		return
	}
	if withPolicy, ok := ep.sql.(interface{ WithPolicy(plan.ErrorHandling) }); ok {
		withPolicy.WithPolicy(eh)
	}
}

// startPipeline builds the transform pipeline, cursor strategy, row
// source, and sink, then pairs one producer and one consumer goroutine
// over a bounded channel (spec.md §4.1/§4.6/§4.7).
func (k *Kernel) startPipeline(ctx context.Context, runID, itemID string, pl *plan.Pipeline, src, dest endpoint, destTable string, keyColumns []string, caps adapter.Capabilities) error {
	strategy, err := cursor.NewStrategy(string(pl.Paginate.Strategy), pl.Paginate.PkColumn, pl.Paginate.OrderCol, pl.Paginate.Timezone)
	if err != nil {
		return kernelerr.Settings(fmt.Sprintf("pipeline %q: invalid pagination strategy: %v", pl.Name, err))
	}

	rowSource, err := buildRowSource(src, pl, strategy)
	if err != nil {
		return err
	}

	sink, ok := dest.sql.(adapter.Sink)
	if !ok {
		return kernelerr.Settings("destination adapter does not implement Sink")
	}

	txPipeline := &transform.Pipeline{
		Mapping:     pl.Mapping,
		Validations: pl.Validations,
		CopyColumns: pl.Settings.CopyColumns,
	}

	batchSize := pl.Paginate.BatchSize
	if batchSize <= 0 {
		batchSize = pl.Settings.BatchSize
	}
	if batchSize <= 0 {
		batchSize = config.GetDefaultBatchSize()
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	prod := producer.New(producer.Config{
		RunID: runID, ItemID: itemID, PartID: partID,
		Source: rowSource, BatchSize: batchSize,
		Store: k.Store, Bus: k.Bus, Pipeline: txPipeline, ParseExpr: transform.ParseExpr,
	})
	cons := consumer.New(consumer.Config{
		RunID: runID, ItemID: itemID, PartID: partID,
		Table: destTable, Sink: sink, Capabilities: caps, KeyColumns: keyColumns,
		ToggleTriggers: pl.Lifecycle.ToggleTriggers,
		Store:          k.Store, Bus: k.Bus,
	})

	ch := make(chan producer.Batch, batchChanSize)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return prod.Run(gctx, ch) })
	g.Go(func() error { return cons.Run(gctx, ch) })

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		timeout := time.Duration(pl.Lifecycle.ShutdownTimeoutOrDefault()) * time.Second
		select {
		case err := <-done:
			return err
		case <-time.After(timeout):
			return kernelerr.ShutdownRequested()
		}
	}
}

func buildRowSource(src endpoint, pl *plan.Pipeline, strategy cursor.Strategy) (producer.RowSource, error) {
	if src.isSQL() {
		return &producer.SqlRowSource{
			Adapter:  src.sql,
			Strategy: strategy,
			Table:    pl.Source.Table,
		}, nil
	}
	if src.csv != nil {
		return &producer.CsvRowSource{Src: src.csv, Entity: pl.Source.Table}, nil
	}
	return nil, kernelerr.Adapter("unresolved source endpoint", fmt.Errorf("pipeline %q", pl.Name))
}

func (k *Kernel) publish(ctx context.Context, t eventbus.EventType, runID, itemID string, err error) {
	if k.Bus == nil {
		return
	}
	var msg string
	if err != nil {
		msg = err.Error()
	}
	k.Bus.Publish(ctx, eventbus.Event{Type: t, RunID: runID, ItemID: itemID, Err: err, Message: msg, Timestamp: time.Now()})
}
