package spreadsheet

import (
	"iter"
	"maps"
	"slices"
	"strings"
)

// FormulaMarker prefixes raw input that should be evaluated.
const FormulaMarker = "="

// CellRecord is everything stored for one cell.
type CellRecord struct {
	Coord        Coordinate
	Raw          string       // exactly what was entered
	IsFormula    bool         // Raw starts with FormulaMarker
	Expression   string       // Raw without the marker, formulas only
	Display      Value        // evaluated result, or Raw for plain input
	Dependencies []Coordinate // cells read by the last evaluation
}

// Label returns the record's cell label, e.g. "B7"
func (r CellRecord) Label() string {
	return CoordinateToLabel(r.Coord)
}

func (r CellRecord) clone() CellRecord {
	r.Dependencies = slices.Clone(r.Dependencies)
	return r
}

// newCellRecord classifies raw input. Plain input displays verbatim; an
// empty string displays as an empty cell.
func newCellRecord(c Coordinate, raw string) *CellRecord {
	rec := &CellRecord{Coord: c, Raw: raw}
	if expr, ok := strings.CutPrefix(raw, FormulaMarker); ok {
		rec.IsFormula = true
		rec.Expression = expr
		return rec
	}
	if raw != "" {
		rec.Display = NewText(raw)
	}
	return rec
}

// CellStore holds a record for every coordinate written and not cleared.
// Absent coordinates read as empty.
type CellStore struct {
	cells map[Coordinate]*CellRecord
}

// NewCellStore creates an empty store
func NewCellStore() *CellStore {
	return &CellStore{cells: make(map[Coordinate]*CellRecord)}
}

// Get returns the live record at c
func (s *CellStore) Get(c Coordinate) (*CellRecord, bool) {
	rec, ok := s.cells[c]
	return rec, ok
}

// Put stores rec under its coordinate, replacing any previous record
func (s *CellStore) Put(rec *CellRecord) {
	s.cells[rec.Coord] = rec
}

// Delete removes the record at c, returning it if there was one
func (s *CellStore) Delete(c Coordinate) (*CellRecord, bool) {
	rec, ok := s.cells[c]
	if ok {
		delete(s.cells, c)
	}
	return rec, ok
}

// DisplayValue implements CellReader
func (s *CellStore) DisplayValue(c Coordinate) Value {
	if rec, ok := s.cells[c]; ok {
		return rec.Display
	}
	return EmptyValue
}

// Len returns the number of stored records
func (s *CellStore) Len() int {
	return len(s.cells)
}

// All yields records in row, column order
func (s *CellStore) All() iter.Seq[*CellRecord] {
	return func(yield func(*CellRecord) bool) {
		keys := slices.SortedFunc(maps.Keys(s.cells), Coordinate.Compare)
		for _, k := range keys {
			if !yield(s.cells[k]) {
				return
			}
		}
	}
}
