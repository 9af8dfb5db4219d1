package spreadsheet

import "iter"

// CellRange is a normalized rectangle of cells: start is the top-left
// corner and end the bottom-right, whatever order the corners came in.
type CellRange struct {
	start Coordinate
	end   Coordinate
}

func newCellRange(a, b Coordinate) CellRange {
	return CellRange{
		start: Coordinate{Row: min(a.Row, b.Row), Column: min(a.Column, b.Column)},
		end:   Coordinate{Row: max(a.Row, b.Row), Column: max(a.Column, b.Column)},
	}
}

// GetBounds returns the range boundaries
func (r CellRange) GetBounds() (start, end Coordinate) {
	return r.start, r.end
}

func (r CellRange) Rows() int { return r.end.Row - r.start.Row + 1 }

func (r CellRange) Columns() int { return r.end.Column - r.start.Column + 1 }

func (r CellRange) Size() int { return r.Rows() * r.Columns() }

// Contains reports whether c lies inside the range.
func (r CellRange) Contains(c Coordinate) bool {
	return c.Row >= r.start.Row && c.Row <= r.end.Row &&
		c.Column >= r.start.Column && c.Column <= r.end.Column
}

// Iterate yields every coordinate row-major.
func (r CellRange) Iterate() iter.Seq[Coordinate] {
	return func(yield func(Coordinate) bool) {
		for row := r.start.Row; row <= r.end.Row; row++ {
			for col := r.start.Column; col <= r.end.Column; col++ {
				if !yield(Coordinate{Row: row, Column: col}) {
					return
				}
			}
		}
	}
}

// Coordinates collects Iterate into a slice.
func (r CellRange) Coordinates() []Coordinate {
	out := make([]Coordinate, 0, r.Size())
	for c := range r.Iterate() {
		out = append(out, c)
	}
	return out
}

func (r CellRange) String() string {
	return CoordinateToLabel(r.start) + ":" + CoordinateToLabel(r.end)
}

// Range is a block of display values read during evaluation, handed to
// aggregate functions as a single argument.
type Range interface {
	Bounds() CellRange
	Row(i int) []Value
	IterateValues() iter.Seq[Value]
}

// RangeValues is the Range produced by evaluating a range reference. The
// values are captured row-major at read time.
type RangeValues struct {
	cells  CellRange
	values []Value
}

func (rv *RangeValues) Bounds() CellRange { return rv.cells }

// Row returns the i-th row of values, zero-based from the top of the range.
func (rv *RangeValues) Row(i int) []Value {
	width := rv.cells.Columns()
	return rv.values[i*width : (i+1)*width]
}

// IterateValues returns an iterator over cell values in the range
func (rv *RangeValues) IterateValues() iter.Seq[Value] {
	return func(yield func(Value) bool) {
		for _, v := range rv.values {
			if !yield(v) {
				return
			}
		}
	}
}
