// Package adapter defines the capability-oriented source/destination
// traits from spec.md §6 (SqlAdapter, Sink) as Go interfaces, with
// concrete implementations in the postgres, mysql, and csv
// subpackages. The set of backends is closed at build time, so
// polymorphism here is an ordinary interface, not a plugin registry —
// per spec.md §9's redesign guidance, dynamic dispatch is reserved for
// the state store.
//
// Grounded on the teacher's internal/storage package split
// (internal/storage/dolt, internal/storage/sqlite, internal/storage/json
// all implementing a shared internal/storage.Backend interface).
package adapter

import (
	"context"

	"github.com/stanstork/stratum/internal/metadata"
	"github.com/stanstork/stratum/internal/value"
)

// Join describes one table join clause used to build a FetchRowsRequest
// that spans a join path (spec.md §4.4 cascade/join-path reconstruction).
type Join struct {
	Table    string
	OnLeft   string // this table's column
	OnRight  string // joined table's column
}

// Filter is an opaque, adapter-specific predicate rendered into the
// fetch query (SQL WHERE clause for SQL adapters, a CsvFilter tree for
// the file adapter). It carries no methods of its own: concrete
// adapters type-assert on the variant they understand (RawSQLFilter for
// SQL adapters, csv.CsvFilter for the file adapter), so each filter kind
// can live in its own package without importing this one.
type Filter interface{}

// RawSQLFilter is the SQL-adapter Filter variant: a literal WHERE
// predicate with "?" placeholders, rendered by the producer from the
// current cursor position plus any plan-level row filter.
type RawSQLFilter struct {
	Clause string
	Args   []any
}

// Render returns the predicate and its bound arguments; postgres and
// mysql adapters both recognize this variant via the Render() method
// and renumber "?" to "$n" for dollar-style dialects.
func (f RawSQLFilter) Render() (string, []any) { return f.Clause, f.Args }

// OrderSpec is one ORDER BY term, emitted in slice order.
type OrderSpec struct {
	Column string
	Desc   bool
}

// FetchRowsRequest is the adapter-agnostic shape a producer builds each
// tick from the current cursor position (spec.md §4.3/§6).
type FetchRowsRequest struct {
	Table   string
	Columns []string
	Joins   []Join
	Filter  Filter
	OrderBy []OrderSpec
	Limit   int
}

// Capabilities reports what optional fast paths a destination supports
// (spec.md §6 "capabilities() -> {copy_streaming, merge_statements, …}").
// A consumer checks these before attempting a fast-path write strategy
// and falls back to the regular row-by-row strategy otherwise.
type Capabilities struct {
	CopyStreaming   bool
	MergeStatements bool
	BatchUpsert     bool
}

// SqlAdapter is the capability trait for a SQL source or destination
// (spec.md §6).
type SqlAdapter interface {
	// TableExists reports whether name exists in the connected database.
	TableExists(ctx context.Context, name string) (bool, error)
	// TruncateTable removes all rows from name without dropping it.
	TruncateTable(ctx context.Context, name string) error
	// ListTables returns every table name visible to the connection.
	ListTables(ctx context.Context) ([]string, error)

	// Execute runs sql with no expected result set (DDL, DML without
	// returned rows).
	Execute(ctx context.Context, sql string) error
	// ExecuteWithParams runs a parameterized statement.
	ExecuteWithParams(ctx context.Context, sql string, params []value.Value) error

	// QueryRows runs sql and returns every row as RowData.
	QueryRows(ctx context.Context, sql string) ([]value.RowData, error)
	// FetchRows renders req into a query for this adapter's dialect,
	// executes it, and returns the resulting rows.
	FetchRows(ctx context.Context, req FetchRowsRequest) ([]value.RowData, error)

	// FetchMetadata introspects table's columns, keys, and constraints
	// (metadata.TableMetadata).
	FetchMetadata(ctx context.Context, table string) (*metadata.TableMetadata, error)
	// FetchReferencingTables returns every table with a foreign key into
	// table, for cascade/join-path discovery.
	FetchReferencingTables(ctx context.Context, table string) ([]string, error)
	// FetchExistingKeys looks up which of keysBatch already exist in
	// table, keyed by keyColumns, for upsert/merge decisions.
	FetchExistingKeys(ctx context.Context, table string, keyColumns []string, keysBatch []value.RowData) ([]value.RowData, error)

	// Capabilities reports this adapter's optional fast paths.
	Capabilities() Capabilities

	// Dialect names the SQL dialect for generated-SQL reporting
	// (spec.md §6 dry-run report "generated_sql.statements[].dialect").
	Dialect() string

	Close() error
}

// Sink is the narrower write-only trait a consumer drives once rows
// have been transformed (spec.md §6). SQL destinations typically
// implement both SqlAdapter and Sink; the file destination (not
// currently in scope, spec.md Non-goals) would implement only Sink.
type Sink interface {
	// WriteBatch writes rows to table using the regular row-by-row
	// strategy.
	WriteBatch(ctx context.Context, table string, rows []value.RowData) error
	// WriteBatchFastPath writes rows using a backend-specific fast path
	// (e.g. COPY). Returns an error wrapping kernelerr if the backend's
	// Capabilities() did not advertise support.
	WriteBatchFastPath(ctx context.Context, table string, rows []value.RowData) error
	// DisableTriggers/EnableTriggers toggle destination-side triggers
	// around a bulk load when Lifecycle.ToggleTriggers is set.
	DisableTriggers(ctx context.Context, table string) error
	EnableTriggers(ctx context.Context, table string) error
}
