package metadata

import "fmt"

// JoinStep is one inner-join hop in a cascade: FROM the previous table TO
// Table, joined ON the FK columns.
type JoinStep struct {
	Table      string
	FromColumn string
	ToColumn   string
}

func (j JoinStep) String() string {
	return fmt.Sprintf("INNER JOIN %s ON %s = %s", j.Table, j.FromColumn, j.ToColumn)
}

// JoinPath finds the shortest path from root to target over the
// undirected FK adjacency (either direction counts as traversable, since
// a cascade filter may need to walk a referencing child table as easily
// as a referenced parent) and reconstructs it as an ordered list of join
// steps, root excluded.
func (g *Graph) JoinPath(root, target string) ([]JoinStep, error) {
	if root == target {
		return nil, nil
	}
	type frame struct {
		name   string
		parent string
	}
	parent := map[string]string{root: ""}
	visited := map[string]bool{root: true}
	queue := []string{root}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == target {
			break
		}
		neighbors := append(append([]string{}, g.Outgoing[cur]...), g.Incoming[cur]...)
		for _, n := range neighbors {
			if !visited[n] {
				visited[n] = true
				parent[n] = cur
				queue = append(queue, n)
			}
		}
	}

	if !visited[target] {
		return nil, fmt.Errorf("no join path from %q to %q", root, target)
	}

	// Reconstruct the parent chain from target back to root.
	var chain []string
	for node := target; node != ""; node = parent[node] {
		chain = append([]string{node}, chain...)
		if node == root {
			break
		}
	}

	steps := make([]JoinStep, 0, len(chain)-1)
	for i := 1; i < len(chain); i++ {
		from, to := chain[i-1], chain[i]
		fromCol, toCol, err := g.fkColumnsBetween(from, to)
		if err != nil {
			return nil, err
		}
		steps = append(steps, JoinStep{Table: to, FromColumn: fromCol, ToColumn: toCol})
	}
	return steps, nil
}

// fkColumnsBetween returns the FK column on whichever side of (from,to)
// declares the foreign key, and the referenced column on the other side.
func (g *Graph) fkColumnsBetween(from, to string) (fromCol, toCol string, err error) {
	if ft, ok := g.Table(from); ok {
		for _, fk := range ft.ForeignKeys {
			if fk.Table == to {
				return from + "." + columnNameFor(ft, fk), to + "." + fk.Column, nil
			}
		}
	}
	if tt, ok := g.Table(to); ok {
		for _, fk := range tt.ForeignKeys {
			if fk.Table == from {
				return from + "." + fk.Column, to + "." + columnNameFor(tt, fk), nil
			}
		}
	}
	return "", "", fmt.Errorf("no foreign key relationship between %q and %q", from, to)
}

func columnNameFor(t *TableMetadata, fk FKRef) string {
	for _, c := range t.Columns {
		if c.FKTarget != nil && c.FKTarget.Table == fk.Table && c.FKTarget.Column == fk.Column {
			return c.Name
		}
	}
	return "id"
}

// CombineCascade merges several root-to-target join paths into one
// cascade, concatenating steps while preserving first occurrence and
// skipping the root (spec.md §4.4).
func CombineCascade(paths ...[]JoinStep) []JoinStep {
	var out []JoinStep
	seen := map[string]bool{}
	for _, path := range paths {
		for _, step := range path {
			key := step.Table + "|" + step.FromColumn + "|" + step.ToColumn
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, step)
		}
	}
	return out
}
