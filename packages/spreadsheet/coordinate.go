package spreadsheet

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Coordinate is a zero-based cell position. Row 0 is label row 1 and
// Column 0 is column A.
type Coordinate struct {
	Row    int
	Column int
}

// Less orders coordinates by row, then column.
func (c Coordinate) Less(o Coordinate) bool {
	if c.Row != o.Row {
		return c.Row < o.Row
	}
	return c.Column < o.Column
}

// Compare returns -1, 0 or 1 following Less. Suitable for slices.SortFunc.
func (c Coordinate) Compare(o Coordinate) int {
	switch {
	case c.Less(o):
		return -1
	case o.Less(c):
		return 1
	default:
		return 0
	}
}

func (c Coordinate) String() string {
	return CoordinateToLabel(c)
}

// LabelToCoordinate parses a label like "B3", "aa10" or "$C$7". Columns
// are bijective base-26 (A=0, Z=25, AA=26) and rows are 1-based.
func LabelToCoordinate(label string) (Coordinate, error) {
	s := strings.ToUpper(label)
	i := 0

	if i < len(s) && s[i] == '$' {
		i++
	}
	letterStart := i
	col := 0
	for i < len(s) && s[i] >= 'A' && s[i] <= 'Z' {
		if col > (math.MaxInt32-26)/26 {
			return Coordinate{}, NewSpreadsheetError(ErrorCodeRef, fmt.Sprintf("column out of range: %s", label))
		}
		col = col*26 + int(s[i]-'A') + 1
		i++
	}
	if i == letterStart {
		return Coordinate{}, NewSpreadsheetError(ErrorCodeRef, fmt.Sprintf("invalid cell reference: %s", label))
	}

	if i < len(s) && s[i] == '$' {
		i++
	}
	digits := s[i:]
	if digits == "" {
		return Coordinate{}, NewSpreadsheetError(ErrorCodeRef, fmt.Sprintf("invalid cell reference: %s", label))
	}
	for j := 0; j < len(digits); j++ {
		if digits[j] < '0' || digits[j] > '9' {
			return Coordinate{}, NewSpreadsheetError(ErrorCodeRef, fmt.Sprintf("invalid cell reference: %s", label))
		}
	}
	row, err := strconv.ParseInt(digits, 10, 32)
	if err != nil {
		return Coordinate{}, NewSpreadsheetError(ErrorCodeRef, fmt.Sprintf("invalid row number: %s", digits))
	}
	if row < 1 {
		return Coordinate{}, NewSpreadsheetError(ErrorCodeRef, fmt.Sprintf("row number must be positive: %d", row))
	}

	return Coordinate{Row: int(row - 1), Column: col - 1}, nil
}

// CoordinateToLabel is the inverse of LabelToCoordinate. Negative
// coordinates have no label and render as "#REF!".
func CoordinateToLabel(c Coordinate) string {
	if c.Row < 0 || c.Column < 0 {
		return ErrorMapper[ErrorCodeRef]
	}
	return columnLetters(c.Column) + strconv.Itoa(c.Row+1)
}

// columnLetters converts a zero-based column index to A, B, ... Z, AA, AB ...
func columnLetters(col int) string {
	var buf [8]byte
	i := len(buf)
	for n := col + 1; n > 0; n = (n - 1) / 26 {
		i--
		buf[i] = byte('A' + (n-1)%26)
	}
	return string(buf[i:])
}

// ExpandRange returns every coordinate in the rectangle spanned by two
// labels, row-major from the top-left corner. The corners may be given in
// either order.
func ExpandRange(start, end string) ([]Coordinate, error) {
	from, err := LabelToCoordinate(start)
	if err != nil {
		return nil, fmt.Errorf("range start: %w", err)
	}
	to, err := LabelToCoordinate(end)
	if err != nil {
		return nil, fmt.Errorf("range end: %w", err)
	}
	return newCellRange(from, to).Coordinates(), nil
}
