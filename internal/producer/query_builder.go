package producer

import (
	"regexp"
	"strings"

	"github.com/stanstork/stratum/internal/adapter"
	"github.com/stanstork/stratum/internal/adapter/sqlutil"
	"github.com/stanstork/stratum/internal/value"
)

// namedPlaceholder matches the ":name" placeholders cursor.Strategy
// implementations render into their Where predicates (e.g. ":id", ":c",
// ":ts"). queryBuilder rewrites each occurrence, in order, to a literal
// "?" — the dialect-agnostic placeholder adapter.RawSQLFilter expects,
// later renumbered to "$n" by sqlutil.BuildFetchQuery for Postgres.
var namedPlaceholder = regexp.MustCompile(`:\w+`)

// queryBuilder implements cursor.Builder, accumulating one strategy's
// Apply call into a RawSQLFilter plus an ordered OrderBy/Limit, instead
// of rendering SQL text directly — the producer is dialect-agnostic,
// leaving placeholder-style renumbering to the destination adapter.
type queryBuilder struct {
	predicates []string
	args       []any
	orderBy    []adapter.OrderSpec
	limit      int
}

func (b *queryBuilder) Where(predicate string, args ...value.Value) {
	b.predicates = append(b.predicates, namedPlaceholder.ReplaceAllString(predicate, "?"))
	for _, a := range args {
		b.args = append(b.args, sqlutil.ValueToNative(a))
	}
}

func (b *queryBuilder) OrderBy(column string, desc bool) {
	b.orderBy = append(b.orderBy, adapter.OrderSpec{Column: column, Desc: desc})
}

func (b *queryBuilder) Limit(n int) { b.limit = n }

// filter renders the accumulated predicates as a RawSQLFilter, or nil if
// the strategy issued no Where call (a fresh None cursor).
func (b *queryBuilder) filter() adapter.Filter {
	if len(b.predicates) == 0 {
		return nil
	}
	return adapter.RawSQLFilter{Clause: strings.Join(b.predicates, " AND "), Args: b.args}
}
