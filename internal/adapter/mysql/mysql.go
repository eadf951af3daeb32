// Package mysql implements adapter.SqlAdapter and adapter.Sink against
// MySQL via go-sql-driver/mysql, following the same span/retry shape as
// the postgres adapter but with MySQL's placeholder style and
// information_schema quirks (KEY_COLUMN_USAGE instead of Postgres's
// constraint-usage views).
//
// Grounded on the teacher's internal/storage/dolt/store.go, which
// already uses go-sql-driver/mysql for Dolt's server-mode connections —
// this adapter targets MySQL itself instead of a Dolt server.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stanstork/stratum/internal/adapter"
	"github.com/stanstork/stratum/internal/adapter/sqlutil"
	"github.com/stanstork/stratum/internal/kernelerr"
	"github.com/stanstork/stratum/internal/metadata"
	"github.com/stanstork/stratum/internal/plan"
	"github.com/stanstork/stratum/internal/retry"
	"github.com/stanstork/stratum/internal/value"
)

var tracer = otel.Tracer("github.com/stanstork/stratum/adapter/mysql")

// Adapter is a MySQL-backed adapter.SqlAdapter and adapter.Sink.
type Adapter struct {
	db       *sql.DB
	database string // schema name, needed since information_schema queries are schema-scoped
	policy   retry.Policy
	closed   bool
}

// Connect opens a connection pool to dsn (a go-sql-driver/mysql DSN:
// "user:pass@tcp(host:port)/dbname").
func Connect(ctx context.Context, dsn, database string) (*Adapter, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, kernelerr.Adapter("connect mysql", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, kernelerr.Adapter("ping mysql", err)
	}
	eh := plan.ErrorHandling{MaxAttempts: 5, Backoff: plan.BackoffExponential}
	return &Adapter{db: db, database: database, policy: retry.NewPolicy(eh, classifyMySQLError)}, nil
}

// WithPolicy rebinds a's retry policy to the pipeline's configured
// error-handling settings (spec.md §4.9).
func (a *Adapter) WithPolicy(eh plan.ErrorHandling) {
	a.policy = retry.NewPolicy(eh, classifyMySQLError)
}

func classifyMySQLError(err error) retry.Decision {
	return retry.Classify(retry.DbError{Message: err.Error(), VendorCode: mysqlErrorCode(err)})
}

// mysqlErrorCode extracts go-sql-driver/mysql's numeric error code from
// its error string ("Error NNNN: ..."), avoiding a direct dependency on
// the driver's internal *mysql.MySQLError type in the retry path.
func mysqlErrorCode(err error) int {
	msg := err.Error()
	const marker = "Error "
	i := strings.Index(msg, marker)
	if i < 0 {
		return 0
	}
	rest := msg[i+len(marker):]
	var code int
	fmt.Sscanf(rest, "%d", &code)
	return code
}

func (a *Adapter) span(ctx context.Context, op, sql string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "mysql."+op, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "mysql"),
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

	var count int
	err = a.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = ? AND table_name = ?`,
		a.database, name).Scan(&count)
	if err != nil {
		return false, kernelerr.Db(kernelerr.DbDriver, "table_exists", err)
	}
	return count > 0, nil
}

func (a *Adapter) TruncateTable(ctx context.Context, name string) error {
	return a.Execute(ctx, fmt.Sprintf("TRUNCATE TABLE %s", name))
}

func (a *Adapter) ListTables(ctx context.Context) ([]string, error) {
	rows, err := a.QueryRows(ctx, fmt.Sprintf(
		"SELECT table_name FROM information_schema.tables WHERE table_schema = '%s'", a.database))
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
	query, _ := sqlutil.BuildFetchQuery(req, sqlutil.PlaceholderQuestion, clause, args)

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
	tm.Schema = a.database

	colRows, err := a.db.QueryContext(ctx, `
		SELECT column_name, ordinal_position, data_type, is_nullable, column_default,
		       column_key, extra
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ? ORDER BY ordinal_position`, a.database, table)
	if err != nil {
		return nil, kernelerr.Db(kernelerr.DbDriver, "fetch_metadata columns", err)
	}
	defer colRows.Close()

	for colRows.Next() {
		var name, dataType, nullable, columnKey, extra string
		var ordinal int
		var def sql.NullString
		if err := colRows.Scan(&name, &ordinal, &dataType, &nullable, &def, &columnKey, &extra); err != nil {
			return nil, kernelerr.Db(kernelerr.DbDriver, "scan column", err)
		}
		cm := metadata.ColumnMetadata{
			Name:            name,
			Ordinal:         ordinal,
			Type:            mysqlTypeToDataType(dataType),
			Nullable:        nullable == "YES",
			IsPrimary:       columnKey == "PRI",
			IsUnique:        columnKey == "UNI" || columnKey == "PRI",
			IsAutoIncrement: strings.Contains(extra, "auto_increment"),
		}
		if def.Valid {
			d := def.String
			cm.Default = &d
		}
		if cm.IsPrimary {
			tm.PrimaryKeys = append(tm.PrimaryKeys, name)
		}
		tm.Columns[name] = cm
	}

	return tm, nil
}

func (a *Adapter) FetchReferencingTables(ctx context.Context, table string) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT DISTINCT table_name FROM information_schema.key_column_usage
		WHERE table_schema = ? AND referenced_table_name = ?`, a.database, table)
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
	for i, row := range keysBatch {
		parts := make([]string, len(keyColumns))
		for j, col := range keyColumns {
			fv, _ := row.Get(col)
			parts[j] = "?"
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
	return adapter.Capabilities{CopyStreaming: false, MergeStatements: true, BatchUpsert: true}
}

func (a *Adapter) Dialect() string { return "mysql" }

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

func mysqlTypeToDataType(mysqlType string) value.DataType {
	t := strings.ToLower(mysqlType)
	switch {
	case strings.Contains(t, "tinyint(1)") || t == "bool" || t == "boolean":
		return value.Of(value.Bool)
	case strings.Contains(t, "geometry") || strings.Contains(t, "point") || strings.Contains(t, "polygon"):
		return value.Of(value.Geometry)
	case strings.Contains(t, "unsigned"):
		return value.Of(value.IntUnsigned)
	case strings.Contains(t, "int"):
		return value.Of(value.Int)
	case strings.Contains(t, "decimal") || strings.Contains(t, "numeric"):
		return value.Of(value.Decimal)
	case strings.Contains(t, "float") || strings.Contains(t, "double"):
		return value.Of(value.Float)
	case t == "json":
		return value.Of(value.JSON)
	case t == "date":
		return value.Of(value.Date)
	case strings.Contains(t, "datetime") || strings.Contains(t, "timestamp"):
		return value.Of(value.Timestamp)
	case t == "year":
		return value.Of(value.Year)
	case strings.Contains(t, "enum"):
		return value.Of(value.Enum)
	case strings.Contains(t, "blob") || strings.Contains(t, "binary"):
		return value.Of(value.Bytes)
	case strings.Contains(t, "char") || strings.Contains(t, "text"):
		return value.Of(value.String)
	default:
		return value.CustomType(mysqlType)
	}
}

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
