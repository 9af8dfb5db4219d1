package spreadsheet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cell(t *testing.T, label string) Coordinate {
	t.Helper()
	c, err := LabelToCoordinate(label)
	require.NoError(t, err)
	return c
}

func TestDependencyGraphEdges(t *testing.T) {
	dg := NewDependencyGraph()
	a1, b1, c1 := cell(t, "A1"), cell(t, "B1"), cell(t, "C1")

	dg.RecordDependencies(c1, []Coordinate{b1, a1})
	assert.Equal(t, []Coordinate{b1, a1}, dg.DependsOn(c1))
	assert.Equal(t, []Coordinate{c1}, dg.Dependents(a1))
	assert.Equal(t, []Coordinate{c1}, dg.Dependents(b1))
	assert.Equal(t, 1, dg.NodeCount())

	// replacing edges drops the old reverse entries
	dg.RecordDependencies(c1, []Coordinate{a1})
	assert.Empty(t, dg.Dependents(b1))
	assert.Equal(t, []Coordinate{c1}, dg.Dependents(a1))

	dg.RecordDependencies(b1, []Coordinate{a1})
	assert.Equal(t, []Coordinate{b1, c1}, dg.Dependents(a1))

	dg.ClearDependencies(c1)
	assert.Empty(t, dg.DependsOn(c1))
	assert.Equal(t, []Coordinate{b1}, dg.Dependents(a1))

	dg.RecordDependencies(b1, nil)
	assert.Empty(t, dg.Dependents(a1))
	assert.Equal(t, 0, dg.NodeCount())
}

func TestDependencyGraphDependsOnIsACopy(t *testing.T) {
	dg := NewDependencyGraph()
	a1, b1 := cell(t, "A1"), cell(t, "B1")
	deps := []Coordinate{a1}

	dg.RecordDependencies(b1, deps)
	deps[0] = b1
	got := dg.DependsOn(b1)
	got[0] = b1

	assert.Equal(t, []Coordinate{a1}, dg.DependsOn(b1))
}

func TestWouldCycle(t *testing.T) {
	dg := NewDependencyGraph()
	a1, b1, c1, d1 := cell(t, "A1"), cell(t, "B1"), cell(t, "C1"), cell(t, "D1")

	t.Run("self reference", func(t *testing.T) {
		cyclic, members := dg.WouldCycle(a1, []Coordinate{a1})
		assert.True(t, cyclic)
		assert.Equal(t, []Coordinate{a1}, members)
	})

	// B1 reads A1, C1 reads B1
	dg.RecordDependencies(b1, []Coordinate{a1})
	dg.RecordDependencies(c1, []Coordinate{b1})

	t.Run("no cycle", func(t *testing.T) {
		cyclic, members := dg.WouldCycle(a1, []Coordinate{d1})
		assert.False(t, cyclic)
		assert.Nil(t, members)
	})

	t.Run("two cell cycle", func(t *testing.T) {
		cyclic, members := dg.WouldCycle(a1, []Coordinate{b1})
		assert.True(t, cyclic)
		assert.Equal(t, []Coordinate{a1, b1}, members)
	})

	t.Run("long cycle", func(t *testing.T) {
		cyclic, members := dg.WouldCycle(a1, []Coordinate{d1, c1})
		assert.True(t, cyclic)
		assert.Equal(t, []Coordinate{a1, b1, c1}, members)
	})

	t.Run("reading a dependent's precedent is fine", func(t *testing.T) {
		cyclic, _ := dg.WouldCycle(d1, []Coordinate{a1, b1, c1})
		assert.False(t, cyclic)
	})
}

func TestAffectedClosureOrder(t *testing.T) {
	dg := NewDependencyGraph()
	a1, b1, c1 := cell(t, "A1"), cell(t, "B1"), cell(t, "C1")
	a2, b2 := cell(t, "A2"), cell(t, "B2")

	// diamond: B1 and A2 read A1, B2 reads both, C1 reads B2
	dg.RecordDependencies(b1, []Coordinate{a1})
	dg.RecordDependencies(a2, []Coordinate{a1})
	dg.RecordDependencies(b2, []Coordinate{b1, a2})
	dg.RecordDependencies(c1, []Coordinate{b2})

	assert.Equal(t, []Coordinate{b1, a2, b2, c1}, dg.AffectedClosure(a1))
	assert.Equal(t, []Coordinate{b2, c1}, dg.AffectedClosure(a2))
	assert.Empty(t, dg.AffectedClosure(c1))
}

func TestAffectedClosureTopologicalBeatsCoordinateOrder(t *testing.T) {
	dg := NewDependencyGraph()
	a1, z9, a5 := cell(t, "A1"), cell(t, "Z9"), cell(t, "A5")

	// A5 reads Z9 which reads A1; A5 sorts before Z9 but must come after it
	dg.RecordDependencies(z9, []Coordinate{a1})
	dg.RecordDependencies(a5, []Coordinate{z9, a1})

	assert.Equal(t, []Coordinate{z9, a5}, dg.AffectedClosure(a1))
}

func TestAffectedClosureIsDeterministic(t *testing.T) {
	dg := NewDependencyGraph()
	origin := cell(t, "A1")
	for _, label := range []string{"C3", "B7", "A2", "Z1", "B2"} {
		dg.RecordDependencies(cell(t, label), []Coordinate{origin})
	}

	want := []Coordinate{cell(t, "Z1"), cell(t, "A2"), cell(t, "B2"), cell(t, "C3"), cell(t, "B7")}
	for i := 0; i < 20; i++ {
		assert.Equal(t, want, dg.AffectedClosure(origin))
	}
}
