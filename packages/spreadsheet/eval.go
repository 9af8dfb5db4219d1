package spreadsheet

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CellReader is the read side of the cell store as seen by the evaluator.
// Cells that were never written read as EmptyValue.
type CellReader interface {
	DisplayValue(c Coordinate) Value
}

// GridSize bounds the addressable sheet. References outside it are
// invalid references.
type GridSize struct {
	Rows    int
	Columns int
}

// DefaultGridSize matches a 10,000 x 10,000 sheet.
var DefaultGridSize = GridSize{Rows: 10000, Columns: 10000}

// Contains reports whether c is addressable.
func (g GridSize) Contains(c Coordinate) bool {
	return c.Row >= 0 && c.Column >= 0 && c.Row < g.Rows && c.Column < g.Columns
}

// EvalContext carries one formula evaluation: where values come from, and
// the references read so far in first-encounter order.
type EvalContext struct {
	reader    CellReader
	grid      GridSize
	functions *BuiltInFunctions
	deps      []Coordinate
	seen      map[Coordinate]struct{}
}

func newEvalContext(reader CellReader, grid GridSize, functions *BuiltInFunctions) *EvalContext {
	return &EvalContext{
		reader:    reader,
		grid:      grid,
		functions: functions,
		seen:      make(map[Coordinate]struct{}),
	}
}

func (ctx *EvalContext) record(c Coordinate) {
	if _, ok := ctx.seen[c]; ok {
		return
	}
	ctx.seen[c] = struct{}{}
	ctx.deps = append(ctx.deps, c)
}

// Read returns the display value at c and records c as a dependency.
func (ctx *EvalContext) Read(c Coordinate) (Value, error) {
	if !ctx.grid.Contains(c) {
		return EmptyValue, NewSpreadsheetError(ErrorCodeRef, fmt.Sprintf("reference %s is outside the sheet", CoordinateToLabel(c)))
	}
	ctx.record(c)
	return ctx.reader.DisplayValue(c), nil
}

// ReadRange reads every cell of r row-major, recording each one.
func (ctx *EvalContext) ReadRange(r CellRange) (Range, error) {
	start, end := r.GetBounds()
	if !ctx.grid.Contains(start) || !ctx.grid.Contains(end) {
		return nil, NewSpreadsheetError(ErrorCodeRef, fmt.Sprintf("range %s is outside the sheet", r))
	}
	values := make([]Value, 0, r.Size())
	for c := range r.Iterate() {
		ctx.record(c)
		values = append(values, ctx.reader.DisplayValue(c))
	}
	return &RangeValues{cells: r, values: values}, nil
}

// Dependencies returns the references read so far.
func (ctx *EvalContext) Dependencies() []Coordinate {
	return ctx.deps
}

// Result is the outcome of evaluating one formula expression. Err is the
// *SpreadsheetError behind an error Value, nil when Value is not an error.
type Result struct {
	Value        Value
	Dependencies []Coordinate
	Err          error
}

// Evaluator parses and evaluates formula expressions.
type Evaluator struct {
	grid      GridSize
	functions *BuiltInFunctions
}

// NewEvaluator creates an evaluator for a sheet of the given size
func NewEvaluator(grid GridSize) *Evaluator {
	return &Evaluator{grid: grid, functions: NewBuiltInFunctions()}
}

// Evaluate parses expression (without the leading '=') and evaluates it
// against reader.
func (e *Evaluator) Evaluate(expression string, reader CellReader) Result {
	ast, err := ParseFormula(expression)
	return e.EvaluateAST(ast, err, reader)
}

// EvaluateAST evaluates an already parsed expression. parseErr is the
// error ParseFormula returned for it, if any.
func (e *Evaluator) EvaluateAST(ast ASTNode, parseErr error, reader CellReader) Result {
	if parseErr != nil {
		return failure(parseErr, nil)
	}

	ctx := newEvalContext(reader, e.grid, e.functions)
	value, err := ast.Eval(ctx)
	if err != nil {
		return failure(err, ctx.Dependencies())
	}

	value = finalize(value)
	res := Result{Value: value, Dependencies: ctx.Dependencies()}
	if value.IsError() {
		res.Err = value.Err
	}
	return res
}

// Evaluate evaluates expression against reader on a default-sized sheet.
func Evaluate(expression string, reader CellReader) Result {
	return NewEvaluator(DefaultGridSize).Evaluate(expression, reader)
}

func failure(err error, deps []Coordinate) Result {
	spreadsheetErr, ok := err.(*SpreadsheetError)
	if !ok {
		spreadsheetErr = NewSpreadsheetError(ErrorCodeValue, err.Error())
	}
	return Result{Value: NewErrorValue(spreadsheetErr), Dependencies: deps, Err: spreadsheetErr}
}

// finalize turns non-finite numbers into #NUM!. Every operator and
// function result passes through it, so NaN and Inf never reach a
// comparison or another operator.
func finalize(v Value) Value {
	if v.Kind == KindNumber && (math.IsNaN(v.Num) || math.IsInf(v.Num, 0)) {
		return errorValue(ErrorCodeNum, "result is not a finite number")
	}
	return v
}

func arithmetic(op BinaryOp, left, right Value) Value {
	l, lok := toNumber(left)
	r, rok := toNumber(right)
	if !lok || !rok {
		return errorValue(ErrorCodeValue, fmt.Sprintf("%s requires numeric values", opName(op)))
	}

	var result float64
	switch op {
	case BinOpAdd:
		result = l + r
	case BinOpSubtract:
		result = l - r
	case BinOpMultiply:
		result = l * r
	case BinOpDivide:
		if r == 0 {
			return errorValue(ErrorCodeDiv0, "division by zero")
		}
		result = l / r
	default:
		result = math.Pow(l, r)
	}
	return finalize(NewNumber(result))
}

func opName(op BinaryOp) string {
	switch op {
	case BinOpAdd:
		return "addition"
	case BinOpSubtract:
		return "subtraction"
	case BinOpMultiply:
		return "multiplication"
	case BinOpDivide:
		return "division"
	default:
		return "power"
	}
}

// toNumber converts value to number, returning ok=false if conversion fails
func toNumber(v Value) (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Num, true
	case KindBoolean:
		if v.Bool {
			return 1, true
		}
		return 0, true
	case KindText:
		// ParseFloat also accepts "NaN", "Inf" and hex floats
		num, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil || math.IsNaN(num) || math.IsInf(num, 0) {
			return 0, false
		}
		return num, true
	case KindEmpty:
		return 0, true
	default:
		return 0, false
	}
}

// toString converts value to its concatenation form
func toString(v Value) string {
	return v.String()
}

// isTruthy checks if value is truthy
func isTruthy(v Value) bool {
	switch v.Kind {
	case KindBoolean:
		return v.Bool
	case KindNumber:
		return v.Num != 0
	case KindText:
		return v.Str != "" && !strings.EqualFold(v.Str, "FALSE")
	case KindEmpty:
		return false
	default:
		return true
	}
}

// compareValues returns -1, 0 or 1. An empty operand takes the zero value
// of the other side's kind; values that both read as numbers compare
// numerically, booleans with booleans, and everything else by
// case-insensitive text.
func compareValues(left, right Value) int {
	left, right = blankAs(left, right), blankAs(right, left)

	if left.Kind == KindBoolean && right.Kind == KindBoolean {
		switch {
		case left.Bool == right.Bool:
			return 0
		case !left.Bool:
			return -1
		default:
			return 1
		}
	}

	if left.Kind != KindBoolean && right.Kind != KindBoolean {
		l, lok := toNumber(left)
		r, rok := toNumber(right)
		if lok && rok {
			switch {
			case l < r:
				return -1
			case l > r:
				return 1
			default:
				return 0
			}
		}
	}

	return strings.Compare(strings.ToUpper(toString(left)), strings.ToUpper(toString(right)))
}

// blankAs replaces an empty v with the zero value of other's kind
func blankAs(v, other Value) Value {
	if !v.IsEmpty() {
		return v
	}
	switch other.Kind {
	case KindText:
		return NewText("")
	case KindBoolean:
		return NewBoolean(false)
	default:
		return NewNumber(0)
	}
}
