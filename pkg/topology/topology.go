// Package topology builds branch-bus incidence matrices and partitions the
// network graph into electrically independent islands.
package topology

import (
	"sort"

	"github.com/gridkit/gridflow/pkg/csc"
)

// Incidence holds the branch-bus connectivity. Cf and Ct are (branch × bus)
// with a single 1 per row at the from/to bus; rows of inactive branches are
// left empty so downstream compositions only see live wiring.
type Incidence struct {
	Cf     *csc.Matrix
	Ct     *csc.Matrix
	From   []int
	To     []int
	Active []bool
}

// BuildIncidence assembles Cf and Ct for the given endpoint vectors.
func BuildIncidence(nbus int, from, to []int, branchActive []bool) *Incidence {
	bf := csc.NewBuilder(len(from), nbus)
	bt := csc.NewBuilder(len(to), nbus)
	for k := range from {
		if !branchActive[k] {
			continue
		}
		bf.Add(k, from[k], 1)
		bt.Add(k, to[k], 1)
	}
	return &Incidence{
		Cf:     bf.Build(),
		Ct:     bt.Build(),
		From:   from,
		To:     to,
		Active: branchActive,
	}
}

// Adjacency composes the bus-bus adjacency A = C^T·C with C = Cf + Ct:
// the two endpoints of every active branch are linked both ways.
func (inc *Incidence) Adjacency(nbus int) *csc.Matrix {
	b := csc.NewBuilder(nbus, nbus)
	for k := range inc.From {
		if !inc.Active[k] {
			continue
		}
		f, t := inc.From[k], inc.To[k]
		b.Add(f, f, 1)
		b.Add(t, t, 1)
		b.Add(f, t, 1)
		b.Add(t, f, 1)
	}
	return b.Build()
}

// FindIslands returns the connected components of the adjacency restricted
// to active buses. Each island is sorted ascending; together they cover
// every active bus exactly once. Non-recursive search so deep radial
// feeders cannot overflow the stack.
func FindIslands(adj *csc.Matrix, active []bool) [][]int {
	n := adj.Cols
	visited := make([]bool, n)
	var islands [][]int

	for node := 0; node < n; node++ {
		if visited[node] || !active[node] {
			continue
		}

		island := []int{}
		stack := []int{node}
		for len(stack) > 0 {
			v := stack[0]
			stack = stack[1:]
			if visited[v] {
				continue
			}
			visited[v] = true
			island = append(island, v)

			for p := adj.ColPtr[v]; p < adj.ColPtr[v+1]; p++ {
				k := adj.RowIdx[p]
				if !visited[k] && active[k] {
					stack = append(stack, k)
				}
			}
		}
		sort.Ints(island)
		islands = append(islands, island)
	}
	return islands
}
