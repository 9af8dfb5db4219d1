package spreadsheet

import (
	"container/heap"
	"slices"
)

// DependencyGraph tracks which cells each formula read (dependsOn) and
// the reverse edges (dependents). Both directions are always updated
// together.
type DependencyGraph struct {
	dependsOn  map[Coordinate][]Coordinate
	dependents map[Coordinate]map[Coordinate]struct{}
}

// NewDependencyGraph creates a new dependency graph
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		dependsOn:  make(map[Coordinate][]Coordinate),
		dependents: make(map[Coordinate]map[Coordinate]struct{}),
	}
}

// RecordDependencies replaces every outgoing edge of c with deps.
func (dg *DependencyGraph) RecordDependencies(c Coordinate, deps []Coordinate) {
	dg.ClearDependencies(c)
	if len(deps) == 0 {
		return
	}

	dg.dependsOn[c] = slices.Clone(deps)
	for _, d := range deps {
		if dg.dependents[d] == nil {
			dg.dependents[d] = make(map[Coordinate]struct{})
		}
		dg.dependents[d][c] = struct{}{}
	}
}

// ClearDependencies removes every outgoing edge of c. Edges pointing at c
// are kept, since other formulas still read it.
func (dg *DependencyGraph) ClearDependencies(c Coordinate) {
	for _, d := range dg.dependsOn[c] {
		if set, ok := dg.dependents[d]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(dg.dependents, d)
			}
		}
	}
	delete(dg.dependsOn, c)
}

// DependsOn returns the cells c read, in first-encounter order
func (dg *DependencyGraph) DependsOn(c Coordinate) []Coordinate {
	return slices.Clone(dg.dependsOn[c])
}

// Dependents returns the cells that read c directly, sorted
func (dg *DependencyGraph) Dependents(c Coordinate) []Coordinate {
	set := dg.dependents[c]
	out := make([]Coordinate, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	slices.SortFunc(out, Coordinate.Compare)
	return out
}

// WouldCycle reports whether giving c the outgoing edges deps would close
// a cycle. When it would, the second result lists every cell on a cycle
// through c (c included), sorted.
func (dg *DependencyGraph) WouldCycle(c Coordinate, deps []Coordinate) (bool, []Coordinate) {
	// cells reachable from the proposed edges, stopping at c
	forward := make(map[Coordinate]struct{})
	stack := slices.Clone(deps)
	hitsSelf := false
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == c {
			hitsSelf = true
			continue
		}
		if _, seen := forward[n]; seen {
			continue
		}
		forward[n] = struct{}{}
		stack = append(stack, dg.dependsOn[n]...)
	}
	if !hitsSelf {
		return false, nil
	}

	// a reachable cell is on a cycle when it also reads c transitively
	members := []Coordinate{c}
	for n := range dg.transitiveDependents(c) {
		if _, ok := forward[n]; ok {
			members = append(members, n)
		}
	}
	slices.SortFunc(members, Coordinate.Compare)
	return true, members
}

// transitiveDependents collects every cell that reads c directly or
// through other cells. c itself is not included.
func (dg *DependencyGraph) transitiveDependents(c Coordinate) map[Coordinate]struct{} {
	closure := make(map[Coordinate]struct{})
	queue := []Coordinate{c}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for d := range dg.dependents[n] {
			if _, seen := closure[d]; seen || d == c {
				continue
			}
			closure[d] = struct{}{}
			queue = append(queue, d)
		}
	}
	return closure
}

// AffectedClosure returns every cell that transitively depends on c, in
// an order where each cell comes after all of its precedents in the
// closure. Ties are broken by ascending coordinate so the order is
// reproducible.
func (dg *DependencyGraph) AffectedClosure(c Coordinate) []Coordinate {
	closure := dg.transitiveDependents(c)
	if len(closure) == 0 {
		return nil
	}

	indegree := make(map[Coordinate]int, len(closure))
	for n := range closure {
		for _, p := range dg.dependsOn[n] {
			if _, ok := closure[p]; ok {
				indegree[n]++
			}
		}
	}

	ready := &coordinateHeap{}
	for n := range closure {
		if indegree[n] == 0 {
			heap.Push(ready, n)
		}
	}

	order := make([]Coordinate, 0, len(closure))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(Coordinate)
		order = append(order, n)
		for d := range dg.dependents[n] {
			if _, ok := closure[d]; !ok {
				continue
			}
			indegree[d]--
			if indegree[d] == 0 {
				heap.Push(ready, d)
			}
		}
	}

	// anything left sits on a cycle; append it in coordinate order
	if len(order) < len(closure) {
		var rest []Coordinate
		for n := range closure {
			if indegree[n] > 0 {
				rest = append(rest, n)
			}
		}
		slices.SortFunc(rest, Coordinate.Compare)
		order = append(order, rest...)
	}
	return order
}

// NodeCount returns the number of cells with outgoing edges
func (dg *DependencyGraph) NodeCount() int {
	return len(dg.dependsOn)
}

// coordinateHeap is a min-heap of coordinates in row, column order.
type coordinateHeap []Coordinate

func (h coordinateHeap) Len() int           { return len(h) }
func (h coordinateHeap) Less(i, j int) bool { return h[i].Less(h[j]) }
func (h coordinateHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *coordinateHeap) Push(x any) { *h = append(*h, x.(Coordinate)) }

func (h *coordinateHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
