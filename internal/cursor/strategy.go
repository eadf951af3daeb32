package cursor

import (
	"fmt"
	"time"

	"github.com/stanstork/stratum/internal/value"
)

// Builder is the minimal query-builder contract a dialect-specific
// adapter must satisfy for a Strategy to drive it. Rendering the builder
// into (sql, params) for a given dialect is an adapter concern, out of
// scope for this package (spec.md §1/§6).
type Builder interface {
	Where(predicate string, args ...value.Value)
	OrderBy(column string, desc bool)
	Limit(n int)
}

// Strategy is one of the three pagination strategies from spec.md §4.3.
type Strategy interface {
	// Apply renders cur and limit onto builder. Returns an error if cur's
	// Kind doesn't match the strategy's cursor family.
	Apply(b Builder, cur Cursor, limit int) error

	// ReachedEnd reports whether a page of the given length, fetched with
	// the given limit, is the last page of the source.
	ReachedEnd(pageLen, limit int) bool

	// Advance derives the next cursor from the last row of a page. rows
	// must be non-empty; callers only call Advance for non-empty pages.
	Advance(rows []value.RowData) (Cursor, error)
}

// PkOffset orders strictly by a unique primary key column.
type PkOffset struct {
	PkColumn string
}

func (s PkOffset) Apply(b Builder, cur Cursor, limit int) error {
	if cur.Kind() != None && cur.Kind() != Pk {
		return fmt.Errorf("pk_offset strategy rejects cursor kind %v", cur.Kind())
	}
	if id, ok := cur.PkID(); ok {
		b.Where(fmt.Sprintf("%s > :id", s.PkColumn), id)
	}
	b.OrderBy(s.PkColumn, false)
	b.Limit(limit)
	return nil
}

func (s PkOffset) ReachedEnd(pageLen, limit int) bool { return pageLen < limit }

func (s PkOffset) Advance(rows []value.RowData) (Cursor, error) {
	last := rows[len(rows)-1]
	fv, ok := last.Get(s.PkColumn)
	if !ok || fv.IsNull() {
		return Cursor{}, fmt.Errorf("pk_offset: last row missing non-null %s", s.PkColumn)
	}
	return NewPk(*fv.Value), nil
}

// NumericOffset orders by (col, pk) using the standard tie-break
// predicate: col > :c OR (col = :c AND pk > :id). It reuses the
// CompositeTsPk cursor shape, encoding the numeric column's value as
// whole seconds since the epoch rather than introducing a fifth cursor
// variant beyond the four spec.md §3 defines.
type NumericOffset struct {
	Column   string
	PkColumn string
}

func numericToTime(n int64) time.Time { return time.Unix(n, 0).UTC() }
func timeToNumeric(t time.Time) int64 { return t.Unix() }

func (s NumericOffset) Apply(b Builder, cur Cursor, limit int) error {
	if cur.Kind() != None && cur.Kind() != CompositeTsPk {
		return fmt.Errorf("numeric_offset strategy rejects cursor kind %v", cur.Kind())
	}
	if id, ok := cur.PkID(); ok {
		ts, _ := cur.Timestamp()
		b.Where(fmt.Sprintf("(%s > :c OR (%s = :c AND %s > :id))", s.Column, s.Column, s.PkColumn),
			value.Int64(timeToNumeric(ts)), id)
	}
	b.OrderBy(s.Column, false)
	b.OrderBy(s.PkColumn, false)
	b.Limit(limit)
	return nil
}

func (s NumericOffset) ReachedEnd(pageLen, limit int) bool { return pageLen < limit }

func (s NumericOffset) Advance(rows []value.RowData) (Cursor, error) {
	last := rows[len(rows)-1]
	colFV, ok := last.Get(s.Column)
	if !ok || colFV.IsNull() {
		return Cursor{}, fmt.Errorf("numeric_offset: last row missing non-null %s", s.Column)
	}
	pkFV, ok := last.Get(s.PkColumn)
	if !ok || pkFV.IsNull() {
		return Cursor{}, fmt.Errorf("numeric_offset: last row missing non-null %s", s.PkColumn)
	}
	n, ok := colFV.Value.AsInt64()
	if !ok {
		if f, fok := colFV.Value.AsFloat64(); fok {
			n = int64(f)
		} else {
			return Cursor{}, fmt.Errorf("numeric_offset: %s is not numeric", s.Column)
		}
	}
	return NewCompositeTsPk(s.Column, s.PkColumn, numericToTime(n), *pkFV.Value), nil
}

// TimestampOffset is NumericOffset over a UTC-normalized timestamp
// column; input cursor timestamps are converted using the configured
// timezone before comparison.
type TimestampOffset struct {
	TsColumn string
	PkColumn string
	Timezone string
}

func (s TimestampOffset) Apply(b Builder, cur Cursor, limit int) error {
	if cur.Kind() != None && cur.Kind() != CompositeTsPk {
		return fmt.Errorf("timestamp_offset strategy rejects cursor kind %v", cur.Kind())
	}
	if id, ok := cur.PkID(); ok {
		ts, _ := cur.Timestamp()
		loc, err := s.location()
		if err != nil {
			return err
		}
		utcMicros := ts.In(loc).UTC().UnixMicro()
		b.Where(fmt.Sprintf("(%s > :ts OR (%s = :ts AND %s > :id))", s.TsColumn, s.TsColumn, s.PkColumn),
			value.Int64(utcMicros), id)
	}
	b.OrderBy(s.TsColumn, false)
	b.OrderBy(s.PkColumn, false)
	b.Limit(limit)
	return nil
}

func (s TimestampOffset) ReachedEnd(pageLen, limit int) bool { return pageLen < limit }

func (s TimestampOffset) Advance(rows []value.RowData) (Cursor, error) {
	last := rows[len(rows)-1]
	tsFV, ok := last.Get(s.TsColumn)
	if !ok || tsFV.IsNull() {
		return Cursor{}, fmt.Errorf("timestamp_offset: last row missing non-null %s", s.TsColumn)
	}
	pkFV, ok := last.Get(s.PkColumn)
	if !ok || pkFV.IsNull() {
		return Cursor{}, fmt.Errorf("timestamp_offset: last row missing non-null %s", s.PkColumn)
	}
	ts, ok := tsFV.Value.AsTime()
	if !ok {
		return Cursor{}, fmt.Errorf("timestamp_offset: %s is not a timestamp value", s.TsColumn)
	}
	return NewCompositeTsPk(s.TsColumn, s.PkColumn, ts.UTC(), *pkFV.Value), nil
}

func (s TimestampOffset) location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timestamp_offset: invalid timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// NewStrategy builds the Strategy named by kind from a pipeline's
// pagination settings.
func NewStrategy(kind string, pkColumn, orderColumn, timezone string) (Strategy, error) {
	switch kind {
	case "pk_offset":
		return PkOffset{PkColumn: pkColumn}, nil
	case "numeric_offset":
		return NumericOffset{Column: orderColumn, PkColumn: pkColumn}, nil
	case "timestamp_offset":
		return TimestampOffset{TsColumn: orderColumn, PkColumn: pkColumn, Timezone: timezone}, nil
	default:
		return nil, fmt.Errorf("unknown pagination strategy %q", kind)
	}
}
