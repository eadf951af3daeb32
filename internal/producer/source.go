package producer

import (
	"context"

	"github.com/stanstork/stratum/internal/adapter"
	"github.com/stanstork/stratum/internal/adapter/csv"
	"github.com/stanstork/stratum/internal/cursor"
	"github.com/stanstork/stratum/internal/value"
)

// RowSource abstracts over a SQL source (cursor.Strategy-driven) and the
// CSV file source (offset-driven), so Producer's fetch loop drives both
// uniformly (spec.md §4.3/§6).
type RowSource interface {
	// FetchPage returns up to limit rows starting at cur, the cursor to
	// resume from after this page, and whether it was the source's last
	// page.
	FetchPage(ctx context.Context, cur cursor.Cursor, limit int) (rows []value.RowData, next cursor.Cursor, reachedEnd bool, err error)
}

// SqlRowSource drives a SqlAdapter through one cursor.Strategy, rendering
// each tick's FetchRowsRequest from the strategy's accumulated predicate,
// order, and limit.
type SqlRowSource struct {
	Adapter    adapter.SqlAdapter
	Strategy   cursor.Strategy
	Table      string
	Columns    []string
	Joins      []adapter.Join
	BaseFilter *adapter.RawSQLFilter // plan-level row filter, ANDed with the cursor predicate
}

func (s *SqlRowSource) FetchPage(ctx context.Context, cur cursor.Cursor, limit int) ([]value.RowData, cursor.Cursor, bool, error) {
	b := &queryBuilder{}
	if err := s.Strategy.Apply(b, cur, limit); err != nil {
		return nil, cur, false, err
	}

	req := adapter.FetchRowsRequest{Table: s.Table, Columns: s.Columns, Joins: s.Joins, OrderBy: b.orderBy, Limit: b.limit}
	req.Filter = combineFilters(b.filter(), s.BaseFilter)

	rows, err := s.Adapter.FetchRows(ctx, req)
	if err != nil {
		return nil, cur, false, err
	}

	if len(rows) == 0 {
		return rows, cur, true, nil
	}

	next, err := s.Strategy.Advance(rows)
	if err != nil {
		return nil, cur, false, err
	}
	return rows, next, s.Strategy.ReachedEnd(len(rows), limit), nil
}

// combineFilters ANDs the cursor predicate with a plan-level base filter.
// Either may be absent.
func combineFilters(cursorFilter adapter.Filter, base *adapter.RawSQLFilter) adapter.Filter {
	cf, cfOk := cursorFilter.(adapter.RawSQLFilter)
	switch {
	case !cfOk && base == nil:
		return nil
	case !cfOk:
		return *base
	case base == nil:
		return cf
	default:
		return adapter.RawSQLFilter{
			Clause: "(" + cf.Clause + ") AND (" + base.Clause + ")",
			Args:   append(append([]any(nil), cf.Args...), base.Args...),
		}
	}
}

// CsvRowSource adapts the CSV file source (internal/adapter/csv) to
// RowSource. Resume seeks once, on the first FetchPage call, since the
// underlying Source already tracks its own forward-only offset across
// subsequent calls.
type CsvRowSource struct {
	Src    *csv.Source
	Entity string
	Filter *csv.CsvFilter

	seeded bool
}

func (s *CsvRowSource) FetchPage(ctx context.Context, cur cursor.Cursor, limit int) ([]value.RowData, cursor.Cursor, bool, error) {
	if !s.seeded {
		if off, ok := cur.Offset(); ok && off > 0 {
			if err := s.Src.Seek(off); err != nil {
				return nil, cur, false, err
			}
		}
		s.seeded = true
	}

	rows, err := s.Src.DataIter(s.Entity, limit, s.Filter)
	if err != nil {
		return nil, cur, false, err
	}
	next := s.Src.Cursor()
	return rows, next, len(rows) < limit, nil
}
