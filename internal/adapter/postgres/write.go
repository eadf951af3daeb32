package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/stanstork/stratum/internal/adapter"
	"github.com/stanstork/stratum/internal/adapter/sqlutil"
	"github.com/stanstork/stratum/internal/kernelerr"
	"github.com/stanstork/stratum/internal/value"
)

// WriteBatch writes rows with a single parameterized multi-row INSERT —
// the regular (non-fast-path) write strategy a consumer falls back to
// when the destination's capabilities or the batch's key shape rule out
// COPY (spec.md §6 "regular row-by-row strategy").
func (a *Adapter) WriteBatch(ctx context.Context, table string, rows []value.RowData) error {
	if len(rows) == 0 {
		return nil
	}
	columns := columnNames(rows[0])
	query := sqlutil.BuildInsert(table, columns, len(rows), sqlutil.PlaceholderDollar)

	args := make([]value.Value, 0, len(rows)*len(columns))
	for _, r := range rows {
		for _, col := range columns {
			fv, _ := r.Get(col)
			if fv.Value != nil {
				args = append(args, *fv.Value)
			} else {
				args = append(args, value.Null())
			}
		}
	}

	ctx, span := a.span(ctx, "write_batch", query)
	err := a.policy.Run(ctx, func(ctx context.Context) error {
		_, err := a.db.ExecContext(ctx, query, toNativeArgs(args)...)
		return err
	})
	endSpan(span, err)
	if err != nil {
		return kernelerr.Sink(kernelerr.SinkIO, "write_batch", err)
	}
	return nil
}

// WriteBatchFastPath streams rows via Postgres's binary COPY protocol,
// the fast path this adapter's Capabilities().CopyStreaming advertises.
// It reaches through database/sql's *sql.Conn to the underlying pgx
// connection, since COPY has no database/sql-level equivalent.
func (a *Adapter) WriteBatchFastPath(ctx context.Context, table string, rows []value.RowData) error {
	if !a.Capabilities().CopyStreaming {
		return kernelerr.Sink(kernelerr.SinkFastPathUnsupported, "copy_from not supported", nil)
	}
	if len(rows) == 0 {
		return nil
	}
	columns := columnNames(rows[0])

	conn, err := a.db.Conn(ctx)
	if err != nil {
		return kernelerr.Sink(kernelerr.SinkIO, "acquire connection for copy_from", err)
	}
	defer conn.Close()

	var copied int64
	rawErr := conn.Raw(func(driverConn any) error {
		pc, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("postgres: unexpected driver connection type %T", driverConn)
		}
		copied, err = pc.Conn().CopyFrom(ctx, pgx.Identifier{table}, columns, &rowCopySource{rows: rows, columns: columns})
		return err
	})
	if rawErr != nil {
		return kernelerr.Sink(kernelerr.SinkIO, "copy_from", rawErr)
	}
	if err != nil {
		return kernelerr.Sink(kernelerr.SinkIO, "copy_from", err)
	}
	if int(copied) != len(rows) {
		return kernelerr.Sink(kernelerr.SinkProtocol, fmt.Sprintf("copy_from copied %d of %d rows", copied, len(rows)), nil)
	}
	return nil
}

// DisableTriggers/EnableTriggers bracket a bulk load when
// Lifecycle.ToggleTriggers is set (spec.md §4.9), restoring normal
// constraint/trigger enforcement once the batch commits.
func (a *Adapter) DisableTriggers(ctx context.Context, table string) error {
	return a.Execute(ctx, fmt.Sprintf("ALTER TABLE %s DISABLE TRIGGER ALL", table))
}

func (a *Adapter) EnableTriggers(ctx context.Context, table string) error {
	return a.Execute(ctx, fmt.Sprintf("ALTER TABLE %s ENABLE TRIGGER ALL", table))
}

func columnNames(row value.RowData) []string {
	cols := make([]string, len(row.FieldValues))
	for i, fv := range row.FieldValues {
		cols[i] = fv.Name
	}
	return cols
}

// rowCopySource adapts []value.RowData to pgx.CopyFromSource for
// WriteBatchFastPath.
type rowCopySource struct {
	rows    []value.RowData
	columns []string
	idx     int
}

func (s *rowCopySource) Next() bool {
	s.idx++
	return s.idx <= len(s.rows)
}

func (s *rowCopySource) Values() ([]any, error) {
	row := s.rows[s.idx-1]
	vals := make([]any, len(s.columns))
	for i, col := range s.columns {
		fv, _ := row.Get(col)
		if fv.Value == nil {
			vals[i] = nil
			continue
		}
		vals[i] = sqlutil.ValueToNative(*fv.Value)
	}
	return vals, nil
}

func (s *rowCopySource) Err() error { return nil }
