package sqlutil

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/stanstork/stratum/internal/adapter"
)

// Placeholder selects a dialect's parameter placeholder style.
type Placeholder int

const (
	PlaceholderQuestion Placeholder = iota // MySQL: ?
	PlaceholderDollar                      // Postgres: $1, $2, ...
)

func placeholder(style Placeholder, idx int) string {
	if style == PlaceholderDollar {
		return "$" + strconv.Itoa(idx)
	}
	return "?"
}

// BuildFetchQuery renders a FetchRowsRequest into a SELECT statement
// plus its bound parameters. filterClause/filterArgs come from the
// caller's dialect-specific filter-tree renderer (SQL WHERE predicates);
// an empty filterClause means no WHERE filter.
func BuildFetchQuery(req adapter.FetchRowsRequest, style Placeholder, filterClause string, filterArgs []any) (string, []any) {
	cols := "*"
	if len(req.Columns) > 0 {
		qualified := make([]string, len(req.Columns))
		for i, c := range req.Columns {
			qualified[i] = req.Table + "." + c
		}
		cols = strings.Join(qualified, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", cols, req.Table)
	for _, j := range req.Joins {
		fmt.Fprintf(&b, " JOIN %s ON %s.%s = %s.%s", j.Table, req.Table, j.OnLeft, j.Table, j.OnRight)
	}
	if filterClause != "" {
		b.WriteString(" WHERE ")
		b.WriteString(filterClause)
	}
	if len(req.OrderBy) > 0 {
		terms := make([]string, len(req.OrderBy))
		for i, o := range req.OrderBy {
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			terms[i] = o.Column + " " + dir
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(terms, ", "))
	}
	if req.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", req.Limit)
	}

	args := append([]any(nil), filterArgs...)
	query := b.String()
	if style == PlaceholderDollar {
		query = renumberDollarPlaceholders(query)
	}
	return query, args
}

// renumberDollarPlaceholders rewrites every literal "?" left by a
// dialect-agnostic filter renderer into sequential "$n" placeholders, so
// callers can share one filter-tree renderer across both dialects.
func renumberDollarPlaceholders(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// BuildInsert renders a parameterized multi-row INSERT for the regular
// (non-fast-path) write strategy.
func BuildInsert(table string, columns []string, rowCount int, style Placeholder) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", "))

	paramIdx := 1
	for r := 0; r < rowCount; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for c := range columns {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(placeholder(style, paramIdx))
			paramIdx++
		}
		b.WriteString(")")
	}
	return b.String()
}
