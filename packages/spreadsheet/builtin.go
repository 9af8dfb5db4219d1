package spreadsheet

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Arg is one function argument: either a single value or a range.
type Arg struct {
	Value Value
	Range Range
}

func (a Arg) IsRange() bool { return a.Range != nil }

// BuiltInFunctions contains all spreadsheet built-in functions
type BuiltInFunctions struct {
	table map[string]func(args ...Arg) (Value, error)
}

// NewBuiltInFunctions creates the function table
func NewBuiltInFunctions() *BuiltInFunctions {
	bf := &BuiltInFunctions{}
	bf.table = map[string]func(args ...Arg) (Value, error){
		"SUM":         bf.SUM,
		"AVERAGE":     bf.AVERAGE,
		"AVERAGEA":    bf.AVERAGEA,
		"COUNT":       bf.COUNT,
		"COUNTA":      bf.COUNTA,
		"MAX":         bf.MAX,
		"MIN":         bf.MIN,
		"MEDIAN":      bf.MEDIAN,
		"MODE":        bf.MODE,
		"IF":          bf.IF,
		"AND":         bf.AND,
		"OR":          bf.OR,
		"NOT":         bf.NOT,
		"CONCATENATE": bf.CONCATENATE,
		"LEN":         bf.LEN,
		"UPPER":       bf.UPPER,
		"LOWER":       bf.LOWER,
		"TRIM":        bf.TRIM,
		"ABS":         bf.ABS,
		"ROUND":       bf.ROUND,
		"FLOOR":       bf.FLOOR,
		"CEILING":     bf.CEILING,
		"SQRT":        bf.SQRT,
		"POWER":       bf.POWER,
		"MOD":         bf.MOD,
		"PI":          bf.PI,
	}
	return bf
}

// Names returns the supported function names, sorted.
func (bf *BuiltInFunctions) Names() []string {
	names := make([]string, 0, len(bf.table))
	for name := range bf.table {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Call invokes a built-in function by name with the given arguments
func (bf *BuiltInFunctions) Call(name string, args ...Arg) (Value, error) {
	fn, ok := bf.table[strings.ToUpper(name)]
	if !ok {
		return EmptyValue, NewSpreadsheetError(ErrorCodeName, fmt.Sprintf("Unknown function: %s", name))
	}
	return fn(args...)
}

// numericCell reports the number held by a range cell. Only numbers and
// numeric text count; empty cells and booleans are skipped.
func numericCell(v Value) (float64, bool) {
	switch v.Kind {
	case KindNumber, KindText:
		return toNumber(v)
	default:
		return 0, false
	}
}

// collectNumbers gathers the numbers an aggregate works on. Errors in any
// argument propagate. Direct arguments must coerce to a number unless
// they are empty.
func collectNumbers(name string, args []Arg) ([]float64, error) {
	var nums []float64
	for _, arg := range args {
		if arg.IsRange() {
			for v := range arg.Range.IterateValues() {
				if v.IsError() {
					return nil, v.Err
				}
				if num, ok := numericCell(v); ok {
					nums = append(nums, num)
				}
			}
			continue
		}
		if arg.Value.IsError() {
			return nil, arg.Value.Err
		}
		if arg.Value.IsEmpty() {
			continue
		}
		num, ok := toNumber(arg.Value)
		if !ok {
			return nil, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("%s: '%s' is not a number", name, toString(arg.Value)))
		}
		nums = append(nums, num)
	}
	return nums, nil
}

// scalars checks arity, rejects ranges and propagates error arguments.
func scalars(name string, args []Arg, minArgs, maxArgs int) ([]Value, error) {
	if len(args) < minArgs || len(args) > maxArgs {
		if minArgs == maxArgs {
			return nil, NewSpreadsheetError(ErrorCodeNA, fmt.Sprintf("%s requires exactly %d argument(s)", name, minArgs))
		}
		return nil, NewSpreadsheetError(ErrorCodeNA, fmt.Sprintf("%s requires %d to %d arguments", name, minArgs, maxArgs))
	}
	values := make([]Value, len(args))
	for i, arg := range args {
		if arg.IsRange() {
			return nil, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("%s does not accept a range", name))
		}
		if arg.Value.IsError() {
			return nil, arg.Value.Err
		}
		values[i] = arg.Value
	}
	return values, nil
}

// numericScalars is scalars followed by number coercion of every argument.
func numericScalars(name string, args []Arg, minArgs, maxArgs int) ([]float64, error) {
	values, err := scalars(name, args, minArgs, maxArgs)
	if err != nil {
		return nil, err
	}
	nums := make([]float64, len(values))
	for i, v := range values {
		num, ok := toNumber(v)
		if !ok {
			return nil, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("%s requires numeric arguments", name))
		}
		nums[i] = num
	}
	return nums, nil
}

func (bf *BuiltInFunctions) SUM(args ...Arg) (Value, error) {
	nums, err := collectNumbers("SUM", args)
	if err != nil {
		return EmptyValue, err
	}
	sum := 0.0
	for _, n := range nums {
		sum += n
	}
	// 15 significant digits trims float noise such as 0.1+0.2
	rounded, _ := strconv.ParseFloat(strconv.FormatFloat(sum, 'g', 15, 64), 64)
	return NewNumber(rounded), nil
}

func (bf *BuiltInFunctions) AVERAGE(args ...Arg) (Value, error) {
	nums, err := collectNumbers("AVERAGE", args)
	if err != nil {
		return EmptyValue, err
	}
	if len(nums) == 0 {
		return EmptyValue, NewSpreadsheetError(ErrorCodeDiv0, "Division by zero")
	}
	sum := 0.0
	for _, n := range nums {
		sum += n
	}
	return NewNumber(sum / float64(len(nums))), nil
}

// AVERAGEA counts every non-empty value. Text that is not a number counts
// as 0, booleans as 1 or 0.
func (bf *BuiltInFunctions) AVERAGEA(args ...Arg) (Value, error) {
	sum := 0.0
	count := 0
	add := func(v Value) error {
		switch v.Kind {
		case KindEmpty:
			return nil
		case KindError:
			return v.Err
		}
		if num, ok := toNumber(v); ok {
			sum += num
		}
		count++
		return nil
	}

	for _, arg := range args {
		if arg.IsRange() {
			for v := range arg.Range.IterateValues() {
				if err := add(v); err != nil {
					return EmptyValue, err
				}
			}
			continue
		}
		if err := add(arg.Value); err != nil {
			return EmptyValue, err
		}
	}

	if count == 0 {
		return EmptyValue, NewSpreadsheetError(ErrorCodeDiv0, "AVERAGEA has no values")
	}
	return NewNumber(sum / float64(count)), nil
}

// COUNT counts numeric values. Errors inside ranges are skipped, not
// propagated.
func (bf *BuiltInFunctions) COUNT(args ...Arg) (Value, error) {
	count := 0
	for _, arg := range args {
		if arg.IsRange() {
			for v := range arg.Range.IterateValues() {
				if _, ok := numericCell(v); ok {
					count++
				}
			}
			continue
		}
		if arg.Value.IsError() {
			return EmptyValue, arg.Value.Err
		}
		if _, ok := numericCell(arg.Value); ok {
			count++
		}
	}
	return NewNumber(float64(count)), nil
}

// COUNTA counts every non-empty value, errors included.
func (bf *BuiltInFunctions) COUNTA(args ...Arg) (Value, error) {
	count := 0
	for _, arg := range args {
		if arg.IsRange() {
			for v := range arg.Range.IterateValues() {
				if !v.IsEmpty() {
					count++
				}
			}
			continue
		}
		if arg.Value.IsError() {
			return EmptyValue, arg.Value.Err
		}
		count++
	}
	return NewNumber(float64(count)), nil
}

func (bf *BuiltInFunctions) MAX(args ...Arg) (Value, error) {
	nums, err := collectNumbers("MAX", args)
	if err != nil {
		return EmptyValue, err
	}
	if len(nums) == 0 {
		return NewNumber(0), nil
	}
	return NewNumber(slices.Max(nums)), nil
}

func (bf *BuiltInFunctions) MIN(args ...Arg) (Value, error) {
	nums, err := collectNumbers("MIN", args)
	if err != nil {
		return EmptyValue, err
	}
	if len(nums) == 0 {
		return NewNumber(0), nil
	}
	return NewNumber(slices.Min(nums)), nil
}

func (bf *BuiltInFunctions) MEDIAN(args ...Arg) (Value, error) {
	nums, err := collectNumbers("MEDIAN", args)
	if err != nil {
		return EmptyValue, err
	}
	if len(nums) == 0 {
		return EmptyValue, NewSpreadsheetError(ErrorCodeNum, "MEDIAN has no numeric values")
	}

	slices.Sort(nums)
	mid := len(nums) / 2
	if len(nums)%2 == 0 {
		return NewNumber((nums[mid-1] + nums[mid]) / 2), nil
	}
	return NewNumber(nums[mid]), nil
}

// MODE returns the most frequent number, the smallest one on ties.
func (bf *BuiltInFunctions) MODE(args ...Arg) (Value, error) {
	nums, err := collectNumbers("MODE", args)
	if err != nil {
		return EmptyValue, err
	}
	if len(nums) == 0 {
		return EmptyValue, NewSpreadsheetError(ErrorCodeNum, "MODE has no numeric values")
	}

	frequency := make(map[float64]int)
	maxFreq := 0
	for _, n := range nums {
		frequency[n]++
		maxFreq = max(maxFreq, frequency[n])
	}
	if maxFreq == 1 {
		return EmptyValue, NewSpreadsheetError(ErrorCodeNA, "MODE: no value appears more than once")
	}

	var modes []float64
	for value, freq := range frequency {
		if freq == maxFreq {
			modes = append(modes, value)
		}
	}
	return NewNumber(slices.Min(modes)), nil
}

func (bf *BuiltInFunctions) IF(args ...Arg) (Value, error) {
	if len(args) < 2 || len(args) > 3 {
		return EmptyValue, NewSpreadsheetError(ErrorCodeNA, "IF requires 2 or 3 arguments")
	}
	cond, err := scalars("IF", args[:1], 1, 1)
	if err != nil {
		return EmptyValue, err
	}

	chosen := Arg{Value: NewBoolean(false)}
	if isTruthy(cond[0]) {
		chosen = args[1]
	} else if len(args) == 3 {
		chosen = args[2]
	}
	if chosen.IsRange() {
		return EmptyValue, NewSpreadsheetError(ErrorCodeValue, "IF cannot return a range")
	}
	return chosen.Value, nil
}

// logicalValues yields the values AND/OR look at: direct arguments, plus
// non-empty range cells.
func logicalValues(name string, args []Arg) ([]Value, error) {
	if len(args) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeNA, fmt.Sprintf("%s requires at least 1 argument", name))
	}
	var values []Value
	for _, arg := range args {
		if arg.IsRange() {
			for v := range arg.Range.IterateValues() {
				if !v.IsEmpty() {
					values = append(values, v)
				}
			}
			continue
		}
		values = append(values, arg.Value)
	}
	for _, v := range values {
		if v.IsError() {
			return nil, v.Err
		}
	}
	return values, nil
}

func (bf *BuiltInFunctions) AND(args ...Arg) (Value, error) {
	values, err := logicalValues("AND", args)
	if err != nil {
		return EmptyValue, err
	}
	for _, v := range values {
		if !isTruthy(v) {
			return NewBoolean(false), nil
		}
	}
	return NewBoolean(true), nil
}

func (bf *BuiltInFunctions) OR(args ...Arg) (Value, error) {
	values, err := logicalValues("OR", args)
	if err != nil {
		return EmptyValue, err
	}
	for _, v := range values {
		if isTruthy(v) {
			return NewBoolean(true), nil
		}
	}
	return NewBoolean(false), nil
}

func (bf *BuiltInFunctions) NOT(args ...Arg) (Value, error) {
	values, err := scalars("NOT", args, 1, 1)
	if err != nil {
		return EmptyValue, err
	}
	return NewBoolean(!isTruthy(values[0])), nil
}

// CONCATENATE joins its arguments; a range contributes its cells row-major.
func (bf *BuiltInFunctions) CONCATENATE(args ...Arg) (Value, error) {
	var result strings.Builder
	for _, arg := range args {
		if arg.IsRange() {
			for v := range arg.Range.IterateValues() {
				if v.IsError() {
					return EmptyValue, v.Err
				}
				result.WriteString(toString(v))
			}
			continue
		}
		if arg.Value.IsError() {
			return EmptyValue, arg.Value.Err
		}
		result.WriteString(toString(arg.Value))
	}
	return NewText(result.String()), nil
}

func (bf *BuiltInFunctions) LEN(args ...Arg) (Value, error) {
	values, err := scalars("LEN", args, 1, 1)
	if err != nil {
		return EmptyValue, err
	}
	return NewNumber(float64(utf8.RuneCountInString(toString(values[0])))), nil
}

func (bf *BuiltInFunctions) UPPER(args ...Arg) (Value, error) {
	values, err := scalars("UPPER", args, 1, 1)
	if err != nil {
		return EmptyValue, err
	}
	return NewText(strings.ToUpper(toString(values[0]))), nil
}

func (bf *BuiltInFunctions) LOWER(args ...Arg) (Value, error) {
	values, err := scalars("LOWER", args, 1, 1)
	if err != nil {
		return EmptyValue, err
	}
	return NewText(strings.ToLower(toString(values[0]))), nil
}

func (bf *BuiltInFunctions) TRIM(args ...Arg) (Value, error) {
	values, err := scalars("TRIM", args, 1, 1)
	if err != nil {
		return EmptyValue, err
	}
	return NewText(strings.TrimSpace(toString(values[0]))), nil
}

func (bf *BuiltInFunctions) ABS(args ...Arg) (Value, error) {
	nums, err := numericScalars("ABS", args, 1, 1)
	if err != nil {
		return EmptyValue, err
	}
	return NewNumber(math.Abs(nums[0])), nil
}

func (bf *BuiltInFunctions) ROUND(args ...Arg) (Value, error) {
	nums, err := numericScalars("ROUND", args, 1, 2)
	if err != nil {
		return EmptyValue, err
	}
	places := 0.0
	if len(nums) == 2 {
		places = math.Trunc(nums[1])
	}
	multiplier := math.Pow(10, places)
	return NewNumber(math.Round(nums[0]*multiplier) / multiplier), nil
}

func (bf *BuiltInFunctions) FLOOR(args ...Arg) (Value, error) {
	nums, err := numericScalars("FLOOR", args, 1, 1)
	if err != nil {
		return EmptyValue, err
	}
	return NewNumber(math.Floor(nums[0])), nil
}

func (bf *BuiltInFunctions) CEILING(args ...Arg) (Value, error) {
	nums, err := numericScalars("CEILING", args, 1, 1)
	if err != nil {
		return EmptyValue, err
	}
	return NewNumber(math.Ceil(nums[0])), nil
}

func (bf *BuiltInFunctions) SQRT(args ...Arg) (Value, error) {
	nums, err := numericScalars("SQRT", args, 1, 1)
	if err != nil {
		return EmptyValue, err
	}
	if nums[0] < 0 {
		return EmptyValue, NewSpreadsheetError(ErrorCodeNum, "SQRT requires a non-negative argument")
	}
	return NewNumber(math.Sqrt(nums[0])), nil
}

func (bf *BuiltInFunctions) POWER(args ...Arg) (Value, error) {
	nums, err := numericScalars("POWER", args, 2, 2)
	if err != nil {
		return EmptyValue, err
	}
	result := math.Pow(nums[0], nums[1])
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return EmptyValue, NewSpreadsheetError(ErrorCodeNum, "POWER result is not a finite number")
	}
	return NewNumber(result), nil
}

// MOD follows the sign of the divisor, like spreadsheet MOD.
func (bf *BuiltInFunctions) MOD(args ...Arg) (Value, error) {
	nums, err := numericScalars("MOD", args, 2, 2)
	if err != nil {
		return EmptyValue, err
	}
	dividend, divisor := nums[0], nums[1]
	if divisor == 0 {
		return EmptyValue, NewSpreadsheetError(ErrorCodeDiv0, "Division by zero")
	}
	r := math.Mod(dividend, divisor)
	if r != 0 && (r < 0) != (divisor < 0) {
		r += divisor
	}
	return NewNumber(r), nil
}

func (bf *BuiltInFunctions) PI(args ...Arg) (Value, error) {
	if _, err := scalars("PI", args, 0, 0); err != nil {
		return EmptyValue, err
	}
	return NewNumber(math.Pi), nil
}
