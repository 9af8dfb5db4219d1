package spreadsheet

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// Engine combines storage, parsing, dependency tracking and formula
// evaluation. All edits go through one writer; reads may run concurrently
// with each other and observe either the state before or after an edit.
type Engine struct {
	mu        sync.RWMutex
	grid      GridSize
	store     *CellStore
	graph     *DependencyGraph
	formulas  *FormulaTable
	evaluator *Evaluator
	logger    *slog.Logger
	metrics   *Metrics
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger used for recalculation events
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records edits and evaluation outcomes in m
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithGridSize bounds the addressable sheet
func WithGridSize(grid GridSize) Option {
	return func(e *Engine) {
		e.grid = grid
	}
}

// New creates an empty engine
func New(opts ...Option) *Engine {
	e := &Engine{
		grid:     DefaultGridSize,
		store:    NewCellStore(),
		graph:    NewDependencyGraph(),
		formulas: NewFormulaTable(),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.evaluator = NewEvaluator(e.grid)
	return e
}

// Update describes the outcome of one edit.
type Update struct {
	Cell    Coordinate
	Display Value
	// Updated lists every cell whose displayed value changed, sorted. The
	// edited cell is always present for SetCell.
	Updated []Coordinate
}

// GridSize returns the bounds the engine was created with
func (e *Engine) GridSize() GridSize {
	return e.grid
}

func (e *Engine) checkBounds(c Coordinate) error {
	if !e.grid.Contains(c) {
		return NewApplicationError(InvalidArgument,
			fmt.Sprintf("cell %s is outside the %dx%d sheet", CoordinateToLabel(c), e.grid.Rows, e.grid.Columns))
	}
	return nil
}

// SetCell stores raw at c and recalculates everything that depends on c.
// Formula problems never surface here; they become the cell's display
// value. The error is only for coordinates outside the sheet.
func (e *Engine) SetCell(c Coordinate, raw string) (Update, error) {
	if err := e.checkBounds(c); err != nil {
		return Update{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	rec := newCellRecord(c, raw)
	e.store.Put(rec)

	var cycle []Coordinate
	if rec.IsFormula {
		e.formulas.Intern(c, rec.Expression)
		cycle = e.evaluate(rec)
	} else {
		e.formulas.Release(c)
		e.graph.ClearDependencies(c)
	}

	updated := map[Coordinate]struct{}{c: {}}
	skip := make(map[Coordinate]struct{}, len(cycle))
	for _, m := range cycle {
		skip[m] = struct{}{}
	}
	closure := e.propagate(c, skip, updated)

	e.metrics.recordEdit(closure, time.Since(start))
	e.logger.Debug("cell set",
		"cell", rec.Label(),
		"display", rec.Display.String(),
		"closure", closure,
		"updated", len(updated))

	return Update{Cell: c, Display: rec.Display, Updated: sortedCoordinates(updated)}, nil
}

// ClearCell removes whatever is stored at c and recalculates its
// dependents against an empty cell. c appears in Updated only when it
// displayed something before.
func (e *Engine) ClearCell(c Coordinate) (Update, error) {
	if err := e.checkBounds(c); err != nil {
		return Update{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	updated := make(map[Coordinate]struct{})
	if old, ok := e.store.Delete(c); ok {
		if !old.Display.IsEmpty() {
			updated[c] = struct{}{}
		}
		e.formulas.Release(c)
		e.graph.ClearDependencies(c)
	}
	closure := e.propagate(c, nil, updated)

	e.metrics.recordEdit(closure, time.Since(start))
	e.logger.Debug("cell cleared", "cell", CoordinateToLabel(c), "closure", closure, "updated", len(updated))

	return Update{Cell: c, Display: EmptyValue, Updated: sortedCoordinates(updated)}, nil
}

// propagate re-evaluates every cell that transitively reads origin, in
// dependency order, adding cells whose display changed to updated. Cells
// in skip keep their current state. Returns the closure size.
func (e *Engine) propagate(origin Coordinate, skip, updated map[Coordinate]struct{}) int {
	closure := e.graph.AffectedClosure(origin)
	for _, d := range closure {
		if _, ok := skip[d]; ok {
			continue
		}
		rec, ok := e.store.Get(d)
		if !ok || !rec.IsFormula {
			e.logger.Error("dependent without a formula", "cell", CoordinateToLabel(d))
			e.graph.ClearDependencies(d)
			continue
		}
		before := rec.Display
		e.evaluate(rec)
		if !before.Equal(rec.Display) {
			updated[d] = struct{}{}
		}
	}
	return len(closure)
}

// evaluate recomputes a formula record in place and replaces its outgoing
// edges. When the new edges would close a cycle the record shows #CYCLE!,
// loses its edges, and the cycle members are returned.
func (e *Engine) evaluate(rec *CellRecord) []Coordinate {
	ast, parseErr, ok := e.formulas.Lookup(rec.Coord)
	if !ok {
		ast, parseErr = e.formulas.Intern(rec.Coord, rec.Expression)
	}
	res := e.evaluator.EvaluateAST(ast, parseErr, e.store)

	if cyclic, members := e.graph.WouldCycle(rec.Coord, res.Dependencies); cyclic {
		e.graph.ClearDependencies(rec.Coord)
		rec.Dependencies = nil
		rec.Display = errorValue(ErrorCodeCycle, "circular reference through "+joinLabels(members))
		e.metrics.recordCycle()
		e.logger.Warn("circular reference rejected", "cell", rec.Label(), "cycle", joinLabels(members))
		return members
	}

	e.graph.RecordDependencies(rec.Coord, res.Dependencies)
	rec.Dependencies = slices.Clone(res.Dependencies)
	rec.Display = res.Value
	if res.Value.IsError() {
		e.metrics.recordEvalError(res.Value.Err.ErrorCode)
		e.logger.Debug("formula evaluated to an error",
			"cell", rec.Label(),
			"expression", rec.Expression,
			"error", res.Value.Err.Message)
	}
	return nil
}

// GetCell returns a copy of the record at c. ok is false when nothing is
// stored there.
func (e *Engine) GetCell(c Coordinate) (CellRecord, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rec, ok := e.store.Get(c)
	if !ok {
		return CellRecord{Coord: c}, false
	}
	return rec.clone(), true
}

// SetLabel is SetCell addressed by label, e.g. "B2"
func (e *Engine) SetLabel(label, raw string) (Update, error) {
	c, err := LabelToCoordinate(label)
	if err != nil {
		return Update{}, wrapApplicationError(InvalidArgument, "set "+label, err)
	}
	return e.SetCell(c, raw)
}

// GetLabel is GetCell addressed by label
func (e *Engine) GetLabel(label string) (CellRecord, error) {
	c, err := LabelToCoordinate(label)
	if err != nil {
		return CellRecord{}, wrapApplicationError(InvalidArgument, "get "+label, err)
	}
	if !e.grid.Contains(c) {
		return CellRecord{}, NewApplicationError(OutOfRange, fmt.Sprintf("cell %s is outside the sheet", label))
	}
	rec, _ := e.GetCell(c)
	return rec, nil
}

// ClearLabel is ClearCell addressed by label
func (e *Engine) ClearLabel(label string) (Update, error) {
	c, err := LabelToCoordinate(label)
	if err != nil {
		return Update{}, wrapApplicationError(InvalidArgument, "clear "+label, err)
	}
	return e.ClearCell(c)
}

// Cells returns copies of every stored record in row, column order
func (e *Engine) Cells() []CellRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]CellRecord, 0, e.store.Len())
	for rec := range e.store.All() {
		out = append(out, rec.clone())
	}
	return out
}

// Dependents returns the cells that read c directly, sorted
func (e *Engine) Dependents(c Coordinate) []Coordinate {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.graph.Dependents(c)
}

// Dependencies returns the cells c read in its last evaluation, sorted
func (e *Engine) Dependencies(c Coordinate) []Coordinate {
	e.mu.RLock()
	defer e.mu.RUnlock()
	deps := e.graph.DependsOn(c)
	slices.SortFunc(deps, Coordinate.Compare)
	return deps
}

func sortedCoordinates(set map[Coordinate]struct{}) []Coordinate {
	return slices.SortedFunc(maps.Keys(set), Coordinate.Compare)
}

func joinLabels(cells []Coordinate) string {
	labels := make([]string, len(cells))
	for i, c := range cells {
		labels[i] = CoordinateToLabel(c)
	}
	return strings.Join(labels, ", ")
}
