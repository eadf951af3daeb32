// Package csv implements the file-source adapter from spec.md §6: a CSV
// reader exposing headers, a row iterator, inferred metadata, and an
// offset-cursor (cursor.Default) instead of the SQL strategies. Its
// predicate evaluator is a small boolean expression tree (CsvFilter)
// evaluated per record rather than pushed down into a query, since
// encoding/csv has no query language to push into.
//
// Grounded on the teacher's internal/jsonl/reader.go scan idiom
// (bufio-backed sequential reader, one record at a time, buffered for
// large files) adapted from JSONL to CSV; no third-party CSV library
// appears anywhere in the retrieval pack, so stdlib encoding/csv is used
// directly (see DESIGN.md).
package csv

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/stanstork/stratum/internal/cursor"
	"github.com/stanstork/stratum/internal/kernelerr"
	"github.com/stanstork/stratum/internal/metadata"
	"github.com/stanstork/stratum/internal/value"
)

// CmpOp is a CsvFilter comparison operator.
type CmpOp int

const (
	OpEq CmpOp = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpContains
)

// CsvFilter is the boolean predicate tree evaluated per CSV record.
// Compare is a leaf; And/Or/Not are the connectives.
type CsvFilter struct {
	// Leaf fields (mutually exclusive with And/Or/Not):
	Column string
	Op     CmpOp
	Value  string

	And []CsvFilter
	Or  []CsvFilter
	Not *CsvFilter
}

// Eval reports whether rec (keyed by header name) satisfies f.
func (f CsvFilter) Eval(rec map[string]string) bool {
	switch {
	case f.Not != nil:
		return !f.Not.Eval(rec)
	case len(f.And) > 0:
		for _, sub := range f.And {
			if !sub.Eval(rec) {
				return false
			}
		}
		return true
	case len(f.Or) > 0:
		for _, sub := range f.Or {
			if sub.Eval(rec) {
				return true
			}
		}
		return false
	default:
		return f.evalLeaf(rec)
	}
}

func (f CsvFilter) evalLeaf(rec map[string]string) bool {
	actual, ok := rec[f.Column]
	if !ok {
		return false
	}
	switch f.Op {
	case OpEq:
		return actual == f.Value
	case OpNe:
		return actual != f.Value
	case OpContains:
		return strings.Contains(actual, f.Value)
	case OpLt, OpLe, OpGt, OpGe:
		af, aerr := strconv.ParseFloat(actual, 64)
		bf, berr := strconv.ParseFloat(f.Value, 64)
		if aerr != nil || berr != nil {
			return false
		}
		switch f.Op {
		case OpLt:
			return af < bf
		case OpLe:
			return af <= bf
		case OpGt:
			return af > bf
		case OpGe:
			return af >= bf
		}
	}
	return false
}

// Source is the CSV file adapter: opened once, read forward-only, with
// an in-memory offset cursor (spec.md §4.3 "Default{offset}" family).
type Source struct {
	path    string
	file    *os.File
	reader  *csv.Reader
	headers []string
	nextRow int64 // 0-based index of the next unread data row
}

// Open opens path, reads its header row, and positions the reader at the
// first data row.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, kernelerr.Adapter("open csv file", err)
	}
	r := csv.NewReader(f)
	r.ReuseRecord = false

	headers, err := r.Read()
	if err != nil {
		_ = f.Close()
		return nil, kernelerr.Adapter("read csv header", err)
	}
	return &Source{path: path, file: f, reader: r, headers: headers}, nil
}

func (s *Source) Headers() []string { return append([]string(nil), s.headers...) }

func (s *Source) Close() error { return s.file.Close() }

// Cursor returns the current offset-cursor position.
func (s *Source) Cursor() cursor.Cursor { return cursor.NewDefault(s.nextRow) }

// Seek repositions the reader at offset by re-opening the file and
// skipping offset data rows. CSV has no random access, so resume after a
// crash is a linear re-scan — acceptable since batch sizes keep this
// bounded (spec.md §8, idempotent resume is about correctness, not
// being free).
func (s *Source) Seek(offset int64) error {
	if err := s.file.Close(); err != nil {
		return kernelerr.Adapter("reopen csv for seek", err)
	}
	f, err := os.Open(s.path)
	if err != nil {
		return kernelerr.Adapter("reopen csv for seek", err)
	}
	r := csv.NewReader(f)
	if _, err := r.Read(); err != nil { // re-skip header
		_ = f.Close()
		return kernelerr.Adapter("reread csv header", err)
	}
	for i := int64(0); i < offset; i++ {
		if _, err := r.Read(); err != nil {
			if err == io.EOF {
				break
			}
			_ = f.Close()
			return kernelerr.Adapter("skip csv rows on seek", err)
		}
	}
	s.file = f
	s.reader = r
	s.nextRow = offset
	return nil
}

// DataIter reads up to limit records starting from the current cursor,
// applying filter per record, and returns them as RowData tagged with
// entity. Advances the in-memory cursor by the number of records
// physically read (filtered-out records still consume cursor offset,
// since the offset tracks file position, not match count).
func (s *Source) DataIter(entity string, limit int, filter *CsvFilter) ([]value.RowData, error) {
	var out []value.RowData
	for len(out) < limit || limit <= 0 {
		record, err := s.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return out, kernelerr.Db(kernelerr.DbIO, "read csv record", err)
		}
		s.nextRow++

		rec := make(map[string]string, len(s.headers))
		for i, h := range s.headers {
			if i < len(record) {
				rec[h] = record[i]
			}
		}
		if filter != nil && !filter.Eval(rec) {
			continue
		}
		out = append(out, recordToRowData(entity, s.headers, record))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func recordToRowData(entity string, headers, record []string) value.RowData {
	row := value.RowData{Entity: entity, FieldValues: make([]value.FieldValue, len(headers))}
	for i, h := range headers {
		var raw string
		if i < len(record) {
			raw = record[i]
		}
		row.FieldValues[i] = value.NewField(h, value.String(raw), value.Of(value.String))
	}
	return row
}

// FetchMetadata infers a CsvMetadata from the header row alone — CSV has
// no declared column types, so every column is typed String; the
// transformation pipeline's computed-field/validation steps are
// responsible for any numeric coercion (spec.md §4.5).
func (s *Source) FetchMetadata() *metadata.CsvMetadata {
	m := &metadata.CsvMetadata{Path: s.path, Headers: s.Headers(), Columns: make(map[string]metadata.ColumnMetadata, len(s.headers))}
	for i, h := range s.headers {
		m.Columns[h] = metadata.ColumnMetadata{Name: h, Ordinal: i, Type: value.Of(value.String), Nullable: true}
	}
	return m
}
