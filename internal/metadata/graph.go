package metadata

import (
	"context"
	"fmt"
)

// Fetcher loads one table's metadata and its incoming-FK referencers from
// the source adapter. This is the thin seam into the out-of-scope
// SqlAdapter (spec.md §6); adapters implement it directly.
type Fetcher interface {
	FetchMetadata(ctx context.Context, table string) (*TableMetadata, error)
	FetchReferencingTables(ctx context.Context, table string) ([]string, error)
}

// Graph is the arena-of-tables metadata graph from spec.md §4.4/§9: an
// integer-indexed table arena plus two adjacency multimaps, so the
// interior mutation needed while loading is confined to Build, and
// downstream callers see an immutable handle (Tables, Outgoing,
// Incoming).
type Graph struct {
	Tables   []*TableMetadata
	nameToID map[string]int
	Outgoing map[string][]string // table -> tables it references (forward FK)
	Incoming map[string][]string // table -> tables that reference it
}

func newGraph() *Graph {
	return &Graph{
		nameToID: map[string]int{},
		Outgoing: map[string][]string{},
		Incoming: map[string][]string{},
	}
}

// CircularReferenceError reports a forward-FK cycle discovered while
// building the graph.
type CircularReferenceError struct {
	Path []string
}

func (e *CircularReferenceError) Error() string {
	return fmt.Sprintf("circular reference detected: %v", e.Path)
}

// Table looks up a discovered table by name.
func (g *Graph) Table(name string) (*TableMetadata, bool) {
	id, ok := g.nameToID[name]
	if !ok {
		return nil, false
	}
	return g.Tables[id], true
}

func (g *Graph) add(t *TableMetadata) {
	if _, ok := g.nameToID[t.Name]; ok {
		return
	}
	g.nameToID[t.Name] = len(g.Tables)
	g.Tables = append(g.Tables, t)
}

// Build performs a BFS over both outgoing FKs (t.ReferencedTables) and
// incoming FKs (fetched via Fetcher.FetchReferencingTables) starting from
// roots, fetching each newly discovered table's metadata exactly once.
// Cycle detection walks the directed forward-FK subgraph with a
// recursion-stack ("gray set") check, so two independent paths
// converging on the same table (a diamond) is not flagged, but a table
// whose forward-FK chain loops back to an ancestor is (see DESIGN.md —
// this resolves spec.md's terse "re-entering a known table" description
// into standard directed-cycle semantics).
func Build(ctx context.Context, f Fetcher, roots []string) (*Graph, error) {
	g := newGraph()
	queue := append([]string(nil), roots...)
	seen := map[string]bool{}
	for _, r := range roots {
		seen[r] = true
	}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		t, err := f.FetchMetadata(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("fetch metadata for %q: %w", name, err)
		}
		g.add(t)
		g.Outgoing[name] = append(g.Outgoing[name], t.ReferencedTables...)

		referencing, err := f.FetchReferencingTables(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("fetch referencing tables for %q: %w", name, err)
		}
		for _, r := range referencing {
			g.Incoming[name] = append(g.Incoming[name], r)
		}

		for _, next := range append(append([]string{}, t.ReferencedTables...), referencing...) {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}

	// Populate both directional maps symmetrically: any edge discovered
	// as Outgoing[a] 3 b also records Incoming[b] 3 a, and vice versa,
	// regardless of which direction the BFS first observed it from.
	for from, tos := range g.Outgoing {
		for _, to := range tos {
			if !containsStr(g.Incoming[to], from) {
				g.Incoming[to] = append(g.Incoming[to], from)
			}
		}
	}
	for to, froms := range g.Incoming {
		for _, from := range froms {
			if !containsStr(g.Outgoing[from], to) {
				g.Outgoing[from] = append(g.Outgoing[from], to)
			}
		}
	}
	for _, t := range g.Tables {
		t.ReferencedTables = g.Outgoing[t.Name]
		t.ReferencingTables = g.Incoming[t.Name]
	}

	if path := g.findForwardCycle(); path != nil {
		return nil, &CircularReferenceError{Path: path}
	}
	return g, nil
}

func containsStr(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// findForwardCycle runs white/gray/black DFS over g.Outgoing and returns
// the cycle path if one exists, nil otherwise.
func (g *Graph) findForwardCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var path []string

	var visit func(name string) []string
	visit = func(name string) []string {
		color[name] = gray
		path = append(path, name)
		for _, next := range g.Outgoing[name] {
			switch color[next] {
			case white:
				if cyc := visit(next); cyc != nil {
					return cyc
				}
			case gray:
				return append(append([]string{}, path...), next)
			}
		}
		path = path[:len(path)-1]
		color[name] = black
		return nil
	}

	for _, t := range g.Tables {
		if color[t.Name] == white {
			if cyc := visit(t.Name); cyc != nil {
				return cyc
			}
		}
	}
	return nil
}
