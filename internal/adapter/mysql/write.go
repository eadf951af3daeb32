package mysql

import (
	"context"

	"github.com/stanstork/stratum/internal/adapter/sqlutil"
	"github.com/stanstork/stratum/internal/kernelerr"
	"github.com/stanstork/stratum/internal/value"
)

// WriteBatch writes rows with a single parameterized multi-row INSERT,
// MySQL's only write strategy here — Capabilities().CopyStreaming is
// false, so a consumer never calls WriteBatchFastPath against this
// adapter.
func (a *Adapter) WriteBatch(ctx context.Context, table string, rows []value.RowData) error {
	if len(rows) == 0 {
		return nil
	}
	columns := columnNames(rows[0])
	query := sqlutil.BuildInsert(table, columns, len(rows), sqlutil.PlaceholderQuestion)

	args := make([]any, 0, len(rows)*len(columns))
	for _, r := range rows {
		for _, col := range columns {
			fv, _ := r.Get(col)
			if fv.Value != nil {
				args = append(args, sqlutil.ValueToNative(*fv.Value))
			} else {
				args = append(args, nil)
			}
		}
	}

	ctx, span := a.span(ctx, "write_batch", query)
	err := a.policy.Run(ctx, func(ctx context.Context) error {
		_, err := a.db.ExecContext(ctx, query, args...)
		return err
	})
	endSpan(span, err)
	if err != nil {
		return kernelerr.Sink(kernelerr.SinkIO, "write_batch", err)
	}
	return nil
}

// WriteBatchFastPath has no MySQL equivalent to Postgres's COPY, so this
// adapter never advertises CopyStreaming and always returns the
// fast-path-unsupported error.
func (a *Adapter) WriteBatchFastPath(ctx context.Context, table string, rows []value.RowData) error {
	return kernelerr.Sink(kernelerr.SinkFastPathUnsupported, "mysql adapter has no copy fast path", nil)
}

// DisableTriggers/EnableTriggers: MySQL has no ALTER TABLE-level trigger
// toggle (unlike Postgres), so the closest bulk-load equivalent is
// disabling foreign key and unique-key enforcement for the session,
// restored once the batch commits.
func (a *Adapter) DisableTriggers(ctx context.Context, table string) error {
	return a.Execute(ctx, "SET SESSION FOREIGN_KEY_CHECKS=0, UNIQUE_CHECKS=0")
}

func (a *Adapter) EnableTriggers(ctx context.Context, table string) error {
	return a.Execute(ctx, "SET SESSION FOREIGN_KEY_CHECKS=1, UNIQUE_CHECKS=1")
}

func columnNames(row value.RowData) []string {
	cols := make([]string, len(row.FieldValues))
	for i, fv := range row.FieldValues {
		cols[i] = fv.Name
	}
	return cols
}
