package spreadsheet

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// EngineTestCase drives an Engine through a chain of edits and
// assertions, remembering the Update of the most recent edit.
type EngineTestCase struct {
	t      *testing.T
	name   string
	engine *Engine
	last   Update
	err    error
}

func NewEngineTestCase(t *testing.T, name string, opts ...Option) *EngineTestCase {
	return &EngineTestCase{
		t:      t,
		name:   name,
		engine: New(opts...),
	}
}

func (tc *EngineTestCase) Set(label, raw string) *EngineTestCase {
	tc.t.Helper()
	tc.last, tc.err = tc.engine.SetLabel(label, raw)
	if tc.err != nil {
		tc.t.Errorf("%s: Set(%s) failed: %v", tc.name, label, tc.err)
	}
	return tc
}

func (tc *EngineTestCase) Clear(label string) *EngineTestCase {
	tc.t.Helper()
	tc.last, tc.err = tc.engine.ClearLabel(label)
	if tc.err != nil {
		tc.t.Errorf("%s: Clear(%s) failed: %v", tc.name, label, tc.err)
	}
	return tc
}

func (tc *EngineTestCase) display(label string) Value {
	tc.t.Helper()
	rec, err := tc.engine.GetLabel(label)
	require.NoError(tc.t, err, tc.name)
	return rec.Display
}

func (tc *EngineTestCase) AssertCellEq(label string, expected any) *EngineTestCase {
	tc.t.Helper()
	actual := tc.display(label)

	switch exp := expected.(type) {
	case float64:
		if assert.Equal(tc.t, KindNumber, actual.Kind, "%s: cell %s = %q", tc.name, label, actual) {
			assert.InDelta(tc.t, exp, actual.Num, 1e-10, "%s: cell %s", tc.name, label)
		}
	case int:
		if assert.Equal(tc.t, KindNumber, actual.Kind, "%s: cell %s = %q", tc.name, label, actual) {
			assert.InDelta(tc.t, float64(exp), actual.Num, 1e-10, "%s: cell %s", tc.name, label)
		}
	case string:
		assert.Equal(tc.t, KindText, actual.Kind, "%s: cell %s = %q", tc.name, label, actual)
		assert.Equal(tc.t, exp, actual.Str, "%s: cell %s", tc.name, label)
	case bool:
		assert.Equal(tc.t, NewBoolean(exp), actual, "%s: cell %s", tc.name, label)
	case ErrorCode:
		return tc.AssertCellErr(label, exp)
	case nil:
		return tc.AssertCellEmpty(label)
	default:
		tc.t.Fatalf("%s: unsupported expectation %T", tc.name, expected)
	}
	return tc
}

func (tc *EngineTestCase) AssertCellEmpty(label string) *EngineTestCase {
	tc.t.Helper()
	actual := tc.display(label)
	assert.True(tc.t, actual.IsEmpty(), "%s: cell %s = %q, want empty", tc.name, label, actual)
	return tc
}

func (tc *EngineTestCase) AssertCellErr(label string, code ErrorCode) *EngineTestCase {
	tc.t.Helper()
	actual := tc.display(label)
	if assert.True(tc.t, actual.IsError(), "%s: cell %s = %q, want %s", tc.name, label, actual, ErrorMapper[code]) {
		assert.Equal(tc.t, ErrorMapper[code], ErrorMapper[actual.Err.ErrorCode], "%s: cell %s", tc.name, label)
	}
	return tc
}

func (tc *EngineTestCase) AssertDisplay(label, expected string) *EngineTestCase {
	tc.t.Helper()
	assert.Equal(tc.t, expected, tc.display(label).String(), "%s: cell %s", tc.name, label)
	return tc
}

// AssertUpdated checks the exact updated set of the most recent edit.
func (tc *EngineTestCase) AssertUpdated(labels ...string) *EngineTestCase {
	tc.t.Helper()
	if len(labels) == 0 {
		assert.Empty(tc.t, tc.last.Updated, "%s: updated set", tc.name)
		return tc
	}
	want := make([]Coordinate, 0, len(labels))
	for _, label := range labels {
		want = append(want, cell(tc.t, label))
	}
	assert.Equal(tc.t, want, tc.last.Updated, "%s: updated set", tc.name)
	return tc
}

func (tc *EngineTestCase) AssertDependencies(label string, deps ...string) *EngineTestCase {
	tc.t.Helper()
	rec, err := tc.engine.GetLabel(label)
	require.NoError(tc.t, err)
	if len(deps) == 0 {
		assert.Empty(tc.t, rec.Dependencies, "%s: dependencies of %s", tc.name, label)
		return tc
	}
	want := make([]Coordinate, 0, len(deps))
	for _, d := range deps {
		want = append(want, cell(tc.t, d))
	}
	assert.Equal(tc.t, want, rec.Dependencies, "%s: dependencies of %s", tc.name, label)
	return tc
}

func (tc *EngineTestCase) End() {}

func TestNonFormulaInputDisplaysVerbatim(t *testing.T) {
	for _, raw := range []string{"hello", "5", "  padded ", "'=quoted", "TRUE", "1e3", "#REF!"} {
		NewEngineTestCase(t, raw).
			Set("A1", raw).
			AssertCellEq("A1", raw).
			AssertDisplay("A1", raw).
			AssertUpdated("A1").
			End()
	}

	NewEngineTestCase(t, "empty string").
		Set("A1", "").
		AssertCellEmpty("A1").
		AssertUpdated("A1").
		End()
}

func TestSetCellRecord(t *testing.T) {
	e := New()
	a1 := cell(t, "A1")
	b1 := cell(t, "B1")

	_, err := e.SetCell(a1, "5")
	require.NoError(t, err)
	update, err := e.SetCell(b1, "=A1*2")
	require.NoError(t, err)
	assert.Equal(t, b1, update.Cell)
	assert.Equal(t, NewNumber(10), update.Display)

	rec, ok := e.GetCell(b1)
	require.True(t, ok)
	assert.Equal(t, "=A1*2", rec.Raw)
	assert.True(t, rec.IsFormula)
	assert.Equal(t, "A1*2", rec.Expression)
	assert.Equal(t, []Coordinate{a1}, rec.Dependencies)
	assert.Equal(t, "B1", rec.Label())

	plain, ok := e.GetCell(a1)
	require.True(t, ok)
	assert.False(t, plain.IsFormula)
	assert.Empty(t, plain.Expression)
	assert.Empty(t, plain.Dependencies)

	_, ok = e.GetCell(cell(t, "Q7"))
	assert.False(t, ok)
}

func TestGetCellReturnsACopy(t *testing.T) {
	e := New()
	_, err := e.SetLabel("B1", "=A1+A2")
	require.NoError(t, err)

	rec, err := e.GetLabel("B1")
	require.NoError(t, err)
	rec.Dependencies[0] = cell(t, "Z9")
	rec.Display = NewNumber(99)

	again, err := e.GetLabel("B1")
	require.NoError(t, err)
	assert.Equal(t, []Coordinate{cell(t, "A1"), cell(t, "A2")}, again.Dependencies)
	assert.Equal(t, NewNumber(0), again.Display)
}

func TestRecalculatesDependents(t *testing.T) {
	NewEngineTestCase(t, "forward reference").
		Set("B1", "=A1+1").
		AssertCellEq("B1", 1).
		Set("A1", "5").
		AssertCellEq("B1", 6).
		AssertUpdated("A1", "B1").
		End()

	NewEngineTestCase(t, "chain").
		Set("A1", "1").
		Set("B1", "=A1+1").
		Set("C1", "=B1+1").
		AssertCellEq("C1", 3).
		Set("A1", "10").
		AssertCellEq("B1", 11).
		AssertCellEq("C1", 12).
		AssertUpdated("A1", "B1", "C1").
		End()

	NewEngineTestCase(t, "diamond").
		Set("A1", "2").
		Set("B1", "=A1*10").
		Set("A2", "=A1+1").
		Set("B2", "=B1+A2").
		Set("C1", "=B2*2").
		AssertCellEq("C1", 46).
		Set("A1", "3").
		AssertCellEq("B2", 34).
		AssertCellEq("C1", 68).
		AssertUpdated("A1", "B1", "C1", "A2", "B2").
		End()

	NewEngineTestCase(t, "range dependents").
		Set("A1", "1").
		Set("A2", "2").
		Set("B1", "=SUM(A1:A3)").
		AssertCellEq("B1", 3).
		Set("A3", "7").
		AssertCellEq("B1", 10).
		AssertUpdated("B1", "A3").
		End()
}

func TestUpdatedSet(t *testing.T) {
	NewEngineTestCase(t, "no dependents").
		Set("A1", "1").
		AssertUpdated("A1").
		Set("C3", "=1+1").
		AssertUpdated("C3").
		End()

	NewEngineTestCase(t, "unchanged dependents are not reported").
		Set("A1", "5").
		Set("B1", "=A1>0").
		Set("C1", "=B1").
		Set("A1", "6").
		AssertCellEq("B1", true).
		AssertUpdated("A1").
		End()

	NewEngineTestCase(t, "same value edit still reports the cell").
		Set("A1", "5").
		Set("B1", "=A1").
		Set("A1", "5").
		AssertUpdated("A1").
		End()

	NewEngineTestCase(t, "updated set is sorted").
		Set("Z1", "1").
		Set("A9", "=Z1").
		Set("C2", "=Z1").
		Set("B2", "=Z1").
		Set("Z1", "2").
		AssertUpdated("Z1", "B2", "C2", "A9").
		End()
}

func TestBlankingReferencedCell(t *testing.T) {
	NewEngineTestCase(t, "set to empty").
		Set("A1", "5").
		Set("B1", "=A1+1").
		Set("C1", "=A1").
		Set("A1", "").
		AssertCellEmpty("A1").
		AssertCellEq("B1", 1).
		AssertCellEmpty("C1").
		AssertUpdated("A1", "B1", "C1").
		End()

	NewEngineTestCase(t, "clear").
		Set("A1", "5").
		Set("B1", "=A1*2").
		Clear("A1").
		AssertCellEq("B1", 0).
		AssertUpdated("A1", "B1").
		AssertDependencies("B1", "A1").
		End()

	NewEngineTestCase(t, "clear empty cell").
		Clear("D4").
		AssertUpdated().
		End()
}

func TestClearCellRemovesRecord(t *testing.T) {
	e := New()
	_, err := e.SetLabel("A1", "1")
	require.NoError(t, err)
	_, err = e.SetLabel("B1", "=A1")
	require.NoError(t, err)

	_, err = e.ClearLabel("B1")
	require.NoError(t, err)

	_, ok := e.GetCell(cell(t, "B1"))
	assert.False(t, ok)
	assert.Empty(t, e.Dependents(cell(t, "A1")))
	assert.Len(t, e.Cells(), 1)
	assert.Equal(t, 0, e.formulas.Count())
}

func TestCircularReferences(t *testing.T) {
	NewEngineTestCase(t, "two cell cycle").
		Set("A1", "=B1").
		AssertCellEmpty("A1").
		Set("B1", "=A1").
		AssertCellErr("B1", ErrorCodeCycle).
		AssertCellEmpty("A1").
		AssertDependencies("B1").
		AssertDependencies("A1", "B1").
		AssertUpdated("B1").
		End()

	NewEngineTestCase(t, "self reference").
		Set("A1", "=A1+1").
		AssertCellErr("A1", ErrorCodeCycle).
		AssertDependencies("A1").
		End()

	NewEngineTestCase(t, "long cycle keeps other members").
		Set("A1", "1").
		Set("B1", "=A1+1").
		Set("C1", "=B1+1").
		Set("A1", "=C1+1").
		AssertCellErr("A1", ErrorCodeCycle).
		AssertCellEq("B1", 2).
		AssertCellEq("C1", 3).
		AssertUpdated("A1").
		End()

	NewEngineTestCase(t, "other dependents see the marker").
		Set("A1", "=B1").
		Set("D1", "=B1*2").
		Set("B1", "=A1").
		AssertCellErr("B1", ErrorCodeCycle).
		AssertCellErr("D1", ErrorCodeCycle).
		AssertUpdated("B1", "D1").
		End()

	NewEngineTestCase(t, "breaking the cycle recovers").
		Set("A1", "=B1").
		Set("B1", "=A1").
		Set("B1", "7").
		AssertCellEq("B1", "7").
		AssertCellEq("A1", "7").
		AssertUpdated("A1", "B1").
		End()

	NewEngineTestCase(t, "cycle through a range").
		Set("A3", "=SUM(A1:A2)").
		Set("A1", "=A3").
		AssertCellErr("A1", ErrorCodeCycle).
		AssertCellEq("A3", 0).
		End()
}

func TestCycleErrorsMatchCategory(t *testing.T) {
	e := New()
	_, err := e.SetLabel("A1", "=A1")
	require.NoError(t, err)

	rec, err := e.GetLabel("A1")
	require.NoError(t, err)
	require.True(t, rec.Display.IsError())
	assert.ErrorIs(t, rec.Display.Err, ErrCircularReference)
	assert.Contains(t, rec.Display.Err.Message, "A1")
}

func TestFormulaErrorsStayInCells(t *testing.T) {
	NewEngineTestCase(t, "syntax").
		Set("A1", "=1+").
		AssertCellErr("A1", ErrorCodeSyntax).
		AssertDisplay("A1", "#ERROR!").
		AssertDependencies("A1").
		End()

	NewEngineTestCase(t, "bare marker").
		Set("A1", "=").
		AssertCellErr("A1", ErrorCodeSyntax).
		End()

	NewEngineTestCase(t, "invalid reference keeps partial dependencies").
		Set("A1", "=B1+C1+A0").
		AssertCellErr("A1", ErrorCodeRef).
		AssertDependencies("A1", "B1", "C1").
		Set("B1", "1").
		AssertCellErr("A1", ErrorCodeRef).
		AssertUpdated("B1").
		End()

	NewEngineTestCase(t, "division by zero flows into dependents").
		Set("A1", "=1/B1").
		AssertCellErr("A1", ErrorCodeDiv0).
		Set("C1", "=A1+1").
		AssertCellErr("C1", ErrorCodeDiv0).
		Set("B1", "4").
		AssertCellEq("A1", 0.25).
		AssertCellEq("C1", 1.25).
		End()

	NewEngineTestCase(t, "unknown function").
		Set("A1", "=FOO(1)").
		AssertCellErr("A1", ErrorCodeName).
		End()
}

func TestFormulaReplacedByPlainValue(t *testing.T) {
	NewEngineTestCase(t, "formula to text").
		Set("A1", "1").
		Set("B1", "=A1").
		Set("B1", "plain").
		AssertCellEq("B1", "plain").
		AssertDependencies("B1").
		Set("A1", "2").
		AssertUpdated("A1").
		End()
}

func TestMixedValues(t *testing.T) {
	NewEngineTestCase(t, "text and numbers").
		Set("A1", "10").
		Set("A2", "apples").
		Set("B1", `=A1&" "&A2`).
		AssertCellEq("B1", "10 apples").
		Set("B2", "=A1*2").
		AssertCellEq("B2", 20).
		Set("B3", "=A2*2").
		AssertCellErr("B3", ErrorCodeValue).
		Set("B4", `=IF(A1>5, "big", "small")`).
		AssertCellEq("B4", "big").
		Set("B5", "=A1>5").
		AssertCellEq("B5", true).
		AssertDisplay("B5", "TRUE").
		End()
}

func TestLowercaseAndAbsoluteReferences(t *testing.T) {
	NewEngineTestCase(t, "case and dollars").
		Set("aa10", "4").
		Set("A1", "=$AA$10+aa10").
		AssertCellEq("A1", 8).
		AssertDependencies("A1", "AA10").
		End()
}

func TestGridBounds(t *testing.T) {
	e := New(WithGridSize(GridSize{Rows: 3, Columns: 3}))
	assert.Equal(t, GridSize{Rows: 3, Columns: 3}, e.GridSize())

	_, err := e.SetLabel("D1", "1")
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, InvalidArgument, appErr.Code)

	_, err = e.SetCell(Coordinate{Row: -1}, "1")
	require.ErrorAs(t, err, &appErr)

	_, err = e.ClearCell(Coordinate{Row: 3})
	require.ErrorAs(t, err, &appErr)

	_, err = e.SetLabel("A1", "=D1")
	require.NoError(t, err)
	rec, _ := e.GetLabel("A1")
	assert.ErrorIs(t, rec.Display.Err, ErrInvalidReference)

	_, err = e.GetLabel("C4")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, OutOfRange, appErr.Code)
}

func TestMalformedLabels(t *testing.T) {
	e := New()
	_, err := e.SetLabel("1A", "x")
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, InvalidArgument, appErr.Code)
	assert.ErrorIs(t, err, ErrInvalidReference)

	_, err = e.GetLabel("")
	assert.ErrorIs(t, err, ErrInvalidReference)

	_, err = e.ClearLabel("A0")
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestCellsAndGraphViews(t *testing.T) {
	e := New()
	for _, edit := range [][2]string{{"C1", "=A1+B1"}, {"A1", "1"}, {"B1", "2"}, {"A2", "=A1"}} {
		_, err := e.SetLabel(edit[0], edit[1])
		require.NoError(t, err)
	}

	var labels []string
	for _, rec := range e.Cells() {
		labels = append(labels, rec.Label()+"="+rec.Display.String())
	}
	assert.Equal(t, []string{"A1=1", "B1=2", "C1=3", "A2=1"}, labels)

	assert.Equal(t, []Coordinate{cell(t, "C1"), cell(t, "A2")}, e.Dependents(cell(t, "A1")))
	assert.Equal(t, []Coordinate{cell(t, "A1"), cell(t, "B1")}, e.Dependencies(cell(t, "C1")))
	assert.Empty(t, e.Dependencies(cell(t, "A1")))
}

func TestSharedFormulasAreInterned(t *testing.T) {
	e := New()
	for _, label := range []string{"B1", "B2", "B3"} {
		_, err := e.SetLabel(label, "=A1*2")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, e.formulas.Count())
	assert.Equal(t, 3, e.formulas.GetReferenceCount("A1*2"))

	_, err := e.SetLabel("A1", "4")
	require.NoError(t, err)
	for _, label := range []string{"B1", "B2", "B3"} {
		rec, _ := e.GetLabel(label)
		assert.Equal(t, 8.0, rec.Display.Num)
	}

	_, err = e.SetLabel("B2", "x")
	require.NoError(t, err)
	assert.Equal(t, 2, e.formulas.GetReferenceCount("A1*2"))
}

func TestEngineLogsCycles(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	e := New(WithLogger(logger))

	_, err := e.SetLabel("A1", "=B1")
	require.NoError(t, err)
	_, err = e.SetLabel("B1", "=A1")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "circular reference rejected")
	assert.Contains(t, out, "cycle=\"A1, B1\"")
	assert.Contains(t, out, "level=DEBUG")
}

func TestConcurrentReadsDuringEdits(t *testing.T) {
	e := New()
	_, err := e.SetLabel("A1", "0")
	require.NoError(t, err)
	_, err = e.SetLabel("B1", "=A1*2")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 200; i++ {
			_, err := e.SetLabel("A1", fmt.Sprint(i))
			assert.NoError(t, err)
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				rec, _ := e.GetLabel("B1")
				assert.Equal(t, KindNumber, rec.Display.Kind)
				_ = e.Cells()
			}
		}()
	}
	wg.Wait()

	rec, err := e.GetLabel("B1")
	require.NoError(t, err)
	assert.Equal(t, 400.0, rec.Display.Num)
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := NewSpreadsheetError(ErrorCodeRef, "bad")
	err := wrapApplicationError(InvalidArgument, "set X", cause)
	assert.Equal(t, "set X: bad", err.Error())
	assert.True(t, errors.Is(err, ErrInvalidReference))
	assert.Equal(t, "invalid_argument", err.Code.String())
	assert.Equal(t, "out_of_range", OutOfRange.String())
	assert.Equal(t, "unknown", AppErrorCode(0).String())
}
