package spreadsheet

import (
	"errors"
	"math"
	"strconv"
)

// ValueKind tags which field of a Value is meaningful.
type ValueKind uint8

const (
	KindEmpty ValueKind = iota
	KindNumber
	KindText
	KindBoolean
	KindError
)

func (k ValueKind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindBoolean:
		return "boolean"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Value is a cell display value or an intermediate evaluation result.
// types:
//   - KindEmpty: never-written or blanked cells
//   - KindNumber: Num holds the value (integers are float64 too)
//   - KindText: Str holds the text
//   - KindBoolean: Bool holds TRUE/FALSE
//   - KindError: Err holds the marker (#DIV/0!, #CYCLE!, etc.)
type Value struct {
	Kind ValueKind
	Num  float64
	Str  string
	Bool bool
	Err  *SpreadsheetError
}

// EmptyValue is the zero Value.
var EmptyValue = Value{}

func NewNumber(n float64) Value { return Value{Kind: KindNumber, Num: n} }

func NewText(s string) Value { return Value{Kind: KindText, Str: s} }

func NewBoolean(b bool) Value { return Value{Kind: KindBoolean, Bool: b} }

func NewErrorValue(err *SpreadsheetError) Value { return Value{Kind: KindError, Err: err} }

// errorValue builds an error value from a code and message in one step.
func errorValue(code ErrorCode, message string) Value {
	return NewErrorValue(NewSpreadsheetError(code, message))
}

func (v Value) IsEmpty() bool { return v.Kind == KindEmpty }

func (v Value) IsError() bool { return v.Kind == KindError }

// Equal reports whether two values display the same. Errors compare by code.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNumber:
		return v.Num == o.Num || (math.IsNaN(v.Num) && math.IsNaN(o.Num))
	case KindText:
		return v.Str == o.Str
	case KindBoolean:
		return v.Bool == o.Bool
	case KindError:
		return v.Err.ErrorCode == o.Err.ErrorCode
	default:
		return true
	}
}

// String renders the value the way a cell shows it.
func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return formatNumber(v.Num)
	case KindText:
		return v.Str
	case KindBoolean:
		if v.Bool {
			return "TRUE"
		}
		return "FALSE"
	case KindError:
		return ErrorMapper[v.Err.ErrorCode]
	default:
		return ""
	}
}

// formatNumber prints whole and fractional numbers without exponent noise,
// switching to exponent form only for very large or very small magnitudes.
func formatNumber(n float64) string {
	abs := math.Abs(n)
	if abs != 0 && (abs >= 1e21 || abs < 1e-6) {
		return strconv.FormatFloat(n, 'g', -1, 64)
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// ErrorCode represents spreadsheet error markers following Excel
// conventions, plus #CYCLE! for rejected circular references
type ErrorCode uint8

const (
	ErrorCodeDiv0   ErrorCode = 2 // #DIV/0! - division by zero
	ErrorCodeValue  ErrorCode = 3 // #VALUE! - wrong type of argument or operand
	ErrorCodeRef    ErrorCode = 4 // #REF! - invalid cell reference
	ErrorCodeName   ErrorCode = 5 // #NAME? - unrecognized function name
	ErrorCodeNum    ErrorCode = 6 // #NUM! - number too large or small to be represented
	ErrorCodeNA     ErrorCode = 7 // #N/A - not enough arguments for function
	ErrorCodeSyntax ErrorCode = 8 // #ERROR! - malformed formula
	ErrorCodeCycle  ErrorCode = 9 // #CYCLE! - circular reference
)

// ErrorMapper maps error codes to their display markers
var ErrorMapper = map[ErrorCode]string{
	ErrorCodeDiv0:   "#DIV/0!",
	ErrorCodeValue:  "#VALUE!",
	ErrorCodeRef:    "#REF!",
	ErrorCodeName:   "#NAME?",
	ErrorCodeNum:    "#NUM!",
	ErrorCodeNA:     "#N/A",
	ErrorCodeSyntax: "#ERROR!",
	ErrorCodeCycle:  "#CYCLE!",
}

// Failure categories. Every *SpreadsheetError matches exactly one of these
// through errors.Is.
var (
	ErrInvalidReference  = errors.New("invalid reference")
	ErrFormulaSyntax     = errors.New("formula syntax error")
	ErrCircularReference = errors.New("circular reference")
	ErrRuntimeEvaluation = errors.New("runtime evaluation error")
)

// SpreadsheetError preserves error code for display in cells
type SpreadsheetError struct {
	ErrorCode ErrorCode
	Message   string
}

func (e *SpreadsheetError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return ErrorMapper[e.ErrorCode]
}

// Is maps the error code onto its failure category.
func (e *SpreadsheetError) Is(target error) bool {
	return e.Category() == target
}

// Category returns the failure category sentinel for this error.
func (e *SpreadsheetError) Category() error {
	switch e.ErrorCode {
	case ErrorCodeRef:
		return ErrInvalidReference
	case ErrorCodeSyntax:
		return ErrFormulaSyntax
	case ErrorCodeCycle:
		return ErrCircularReference
	default:
		return ErrRuntimeEvaluation
	}
}

func NewSpreadsheetError(code ErrorCode, message string) *SpreadsheetError {
	if message == "" {
		message = ErrorMapper[code]
	}
	return &SpreadsheetError{
		ErrorCode: code,
		Message:   message,
	}
}
