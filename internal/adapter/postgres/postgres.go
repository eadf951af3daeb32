// Package postgres implements adapter.SqlAdapter and adapter.Sink
// against a Postgres database via pgx's database/sql driver, with
// jmoiron/sqlx for struct-friendly metadata queries.
//
// Grounded on the teacher's internal/storage/dolt/store.go span-wrapped
// exec/query pattern, adapted from Dolt's MySQL-protocol embedded driver
// to pgx; retry classification delegates to internal/retry instead of
// store.go's bespoke isRetryableError/withRetry (the same concern,
// generalized out to its own package since two SQL adapters now share
// it).
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/stanstork/stratum/internal/adapter"
	"github.com/stanstork/stratum/internal/adapter/sqlutil"
	"github.com/stanstork/stratum/internal/kernelerr"
	"github.com/stanstork/stratum/internal/metadata"
	"github.com/stanstork/stratum/internal/plan"
	"github.com/stanstork/stratum/internal/retry"
	"github.com/stanstork/stratum/internal/value"
)

var tracer = otel.Tracer("github.com/stanstork/stratum/adapter/postgres")

// Adapter is a Postgres-backed adapter.SqlAdapter and adapter.Sink.
type Adapter struct {
	db     *sqlx.DB
	policy retry.Policy
	closed bool
}

// Connect opens a connection pool to url (a standard Postgres DSN or
// connection URL) and verifies it with a ping. The retry policy used for
// every statement defaults to five exponential-backoff attempts; use
// WithPolicy to bind the pipeline's own plan.ErrorHandling instead.
func Connect(ctx context.Context, url string) (*Adapter, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", url)
	if err != nil {
		return nil, kernelerr.Adapter("connect postgres", err)
	}
	eh := plan.ErrorHandling{MaxAttempts: 5, Backoff: plan.BackoffExponential}
	return &Adapter{db: db, policy: retry.NewPolicy(eh, classifyPgError)}, nil
}

// WithPolicy rebinds a's retry policy to the given error-handling
// settings, used by the kernel to apply a pipeline's configured
// max_attempts/backoff (spec.md §4.9) instead of the connect-time
// default.
func (a *Adapter) WithPolicy(eh plan.ErrorHandling) {
	a.policy = retry.NewPolicy(eh, classifyPgError)
}

// classifyPgError maps a Postgres error to a retry.Decision using
// internal/retry's pure classifier, translating pgx's error shape into
// retry.DbError first.
func classifyPgError(err error) retry.Decision {
	return retry.Classify(retry.DbError{Message: err.Error(), SQLState: pgSQLState(err)})
}

func pgSQLState(err error) string {
	// pgx wraps the SQLSTATE in its error string as "(SQLSTATE xxxxx)"
	// when no structured pgconn.PgError is available via errors.As; the
	// adapter only needs the state code for retry classification.
	msg := err.Error()
	const marker = "SQLSTATE "
	if i := strings.Index(msg, marker); i >= 0 {
		rest := msg[i+len(marker):]
		if len(rest) >= 5 {
			return rest[:5]
		}
	}
	return ""
}

func (a *Adapter) span(ctx context.Context, op, sql string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "postgres."+op, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", op),
			attribute.String("db.statement", spanSQL(sql)),
		))
}

func spanSQL(q string) string {
	if len(q) > 300 {
		return q[:300] + "…"
	}
	return q
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (a *Adapter) TableExists(ctx context.Context, name string) (exists bool, err error) {
	ctx, span := a.span(ctx, "table_exists", name)
	defer func() { endSpan(span, err) }()

	err = a.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, kernelerr.Db(kernelerr.DbDriver, "table_exists", err)
	}
	return exists, nil
}

func (a *Adapter) TruncateTable(ctx context.Context, name string) error {
	return a.Execute(ctx, fmt.Sprintf("TRUNCATE TABLE %s", name))
}

func (a *Adapter) ListTables(ctx context.Context) ([]string, error) {
	rows, err := a.QueryRows(ctx, `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public'`)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		if fv, ok := r.Get("table_name"); ok && !fv.IsNull() {
			if s, ok := fv.Value.AsString(); ok {
				names = append(names, s)
			}
		}
	}
	return names, nil
}

func (a *Adapter) Execute(ctx context.Context, query string) error {
	ctx, span := a.span(ctx, "exec", query)
	err := a.policy.Run(ctx, func(ctx context.Context) error {
		_, err := a.db.ExecContext(ctx, query)
		return err
	})
	endSpan(span, err)
	if err != nil {
		return kernelerr.Db(kernelerr.DbDriver, "execute", err)
	}
	return nil
}

func (a *Adapter) ExecuteWithParams(ctx context.Context, query string, params []value.Value) error {
	ctx, span := a.span(ctx, "exec_params", query)
	args := toNativeArgs(params)
	err := a.policy.Run(ctx, func(ctx context.Context) error {
		_, err := a.db.ExecContext(ctx, query, args...)
		return err
	})
	endSpan(span, err)
	if err != nil {
		return kernelerr.Db(kernelerr.DbDriver, "execute_with_params", err)
	}
	return nil
}

func (a *Adapter) QueryRows(ctx context.Context, query string) ([]value.RowData, error) {
	ctx, span := a.span(ctx, "query", query)
	var rows *sql.Rows
	err := a.policy.Run(ctx, func(ctx context.Context) error {
		var qerr error
		rows, qerr = a.db.QueryContext(ctx, query)
		return qerr
	})
	if err != nil {
		endSpan(span, err)
		return nil, kernelerr.Db(kernelerr.DbDriver, "query_rows", err)
	}
	defer rows.Close()

	out, err := sqlutil.ScanRows(rows, "")
	endSpan(span, err)
	if err != nil {
		return nil, kernelerr.Db(kernelerr.DbUTF8Decode, "scan query_rows", err)
	}
	return out, nil
}

func (a *Adapter) FetchRows(ctx context.Context, req adapter.FetchRowsRequest) ([]value.RowData, error) {
	clause, args := renderFilter(req.Filter)
	query, _ := sqlutil.BuildFetchQuery(req, sqlutil.PlaceholderDollar, clause, args)

	ctx, span := a.span(ctx, "fetch_rows", query)
	var rows *sql.Rows
	err := a.policy.Run(ctx, func(ctx context.Context) error {
		var qerr error
		rows, qerr = a.db.QueryContext(ctx, query, args...)
		return qerr
	})
	if err != nil {
		endSpan(span, err)
		return nil, kernelerr.Producer(kernelerr.ProducerFetch, kernelerr.Db(kernelerr.DbQueryBuild, query, err))
	}
	defer rows.Close()

	out, err := sqlutil.ScanRows(rows, req.Table)
	endSpan(span, err)
	if err != nil {
		return nil, kernelerr.Producer(kernelerr.ProducerFetch, err)
	}
	return out, nil
}

func (a *Adapter) FetchMetadata(ctx context.Context, table string) (_ *metadata.TableMetadata, err error) {
	ctx, span := a.span(ctx, "fetch_metadata", table)
	defer func() { endSpan(span, err) }()

	tm := metadata.NewTableMetadata(table)
	tm.Schema = "public"

	colRows, err := a.db.QueryContext(ctx, `
		SELECT column_name, ordinal_position, data_type, is_nullable, column_default
		FROM information_schema.columns WHERE table_name = $1 ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, kernelerr.Db(kernelerr.DbDriver, "fetch_metadata columns", err)
	}
	defer colRows.Close()

	for colRows.Next() {
		var name, dataType, nullable string
		var ordinal int
		var def sql.NullString
		if err := colRows.Scan(&name, &ordinal, &dataType, &nullable, &def); err != nil {
			return nil, kernelerr.Db(kernelerr.DbDriver, "scan column", err)
		}
		cm := metadata.ColumnMetadata{
			Name:     name,
			Ordinal:  ordinal,
			Type:     pgTypeToDataType(dataType),
			Nullable: nullable == "YES",
		}
		if def.Valid {
			d := def.String
			cm.Default = &d
		}
		tm.Columns[name] = cm
	}

	pkRows, err := a.db.QueryContext(ctx, `
		SELECT a.attname FROM pg_index i
		JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
		WHERE i.indrelid = $1::regclass AND i.indisprimary`, table)
	if err != nil {
		return nil, kernelerr.Db(kernelerr.DbDriver, "fetch_metadata primary keys", err)
	}
	defer pkRows.Close()
	for pkRows.Next() {
		var col string
		if err := pkRows.Scan(&col); err != nil {
			return nil, kernelerr.Db(kernelerr.DbDriver, "scan primary key", err)
		}
		tm.PrimaryKeys = append(tm.PrimaryKeys, col)
		if cm, ok := tm.Columns[col]; ok {
			cm.IsPrimary = true
			tm.Columns[col] = cm
		}
	}

	return tm, nil
}

func (a *Adapter) FetchReferencingTables(ctx context.Context, table string) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT DISTINCT tc.table_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.constraint_column_usage ccu ON tc.constraint_name = ccu.constraint_name
		WHERE tc.constraint_type = 'FOREIGN KEY' AND ccu.table_name = $1`, table)
	if err != nil {
		return nil, kernelerr.Db(kernelerr.DbDriver, "fetch_referencing_tables", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, kernelerr.Db(kernelerr.DbDriver, "scan referencing table", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (a *Adapter) FetchExistingKeys(ctx context.Context, table string, keyColumns []string, keysBatch []value.RowData) ([]value.RowData, error) {
	if len(keysBatch) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(keysBatch))
	args := make([]any, 0, len(keysBatch)*len(keyColumns))
	paramIdx := 1
	for i, row := range keysBatch {
		parts := make([]string, len(keyColumns))
		for j, col := range keyColumns {
			fv, _ := row.Get(col)
			parts[j] = fmt.Sprintf("$%d", paramIdx)
			paramIdx++
			if fv.Value != nil {
				args = append(args, sqlutil.ValueToNative(*fv.Value))
			} else {
				args = append(args, nil)
			}
		}
		placeholders[i] = "(" + strings.Join(parts, ", ") + ")"
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE (%s) IN (%s)",
		strings.Join(keyColumns, ", "), table, strings.Join(keyColumns, ", "), strings.Join(placeholders, ", "))

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, kernelerr.Db(kernelerr.DbQueryBuild, "fetch_existing_keys", err)
	}
	defer rows.Close()
	return sqlutil.ScanRows(rows, table)
}

func (a *Adapter) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{CopyStreaming: true, MergeStatements: true, BatchUpsert: true}
}

func (a *Adapter) Dialect() string { return "postgres" }

func (a *Adapter) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	return a.db.Close()
}

func toNativeArgs(params []value.Value) []any {
	args := make([]any, len(params))
	for i, p := range params {
		args[i] = sqlutil.ValueToNative(p)
	}
	return args
}

func pgTypeToDataType(pgType string) value.DataType {
	switch strings.ToLower(pgType) {
	case "boolean":
		return value.Of(value.Bool)
	case "integer", "bigint", "smallint":
		return value.Of(value.Int)
	case "numeric", "decimal":
		return value.Of(value.Decimal)
	case "double precision", "real":
		return value.Of(value.Float)
	case "uuid":
		return value.Of(value.UUID)
	case "json", "jsonb":
		return value.Of(value.JSON)
	case "date":
		return value.Of(value.Date)
	case "timestamp without time zone", "timestamp with time zone":
		return value.Of(value.Timestamp)
	case "bytea":
		return value.Of(value.Bytes)
	case "text", "character varying", "character":
		return value.Of(value.String)
	default:
		return value.CustomType(pgType)
	}
}

// renderFilter renders req.Filter, if set, into a SQL WHERE clause with
// literal "?" placeholders (renumbered to "$n" by BuildFetchQuery). Only
// the adapter.RawSQLFilter variant is understood by SQL adapters; a CsvFilter
// would indicate a misconfigured plan and is treated as no filter since
// schema validation (out of scope here) is responsible for rejecting it
// earlier.
func renderFilter(f adapter.Filter) (string, []any) {
	if f == nil {
		return "", nil
	}
	if raw, ok := f.(interface {
		Render() (string, []any)
	}); ok {
		return raw.Render()
	}
	return "", nil
}
