package spreadsheet

import "strings"

// FormulaTable caches parsed formula expressions so recalculation never
// re-parses. Entries are shared between cells holding the same expression
// text and reference counted; an entry goes away with its last cell.
type FormulaTable struct {
	entries       map[string]*formulaEntry // expression -> parsed form
	formulaAtCell map[Coordinate]string    // cell -> expression (reverse index)
}

type formulaEntry struct {
	ast      ASTNode
	parseErr error
	cells    map[Coordinate]struct{}
}

// NewFormulaTable creates a new formula table
func NewFormulaTable() *FormulaTable {
	return &FormulaTable{
		entries:       make(map[string]*formulaEntry),
		formulaAtCell: make(map[Coordinate]string),
	}
}

func formulaKey(expression string) string {
	return strings.TrimSpace(expression)
}

// Intern attaches expression to cell, parsing it only if no other cell
// already holds the same text. Any expression the cell held before is
// released. The parse error, if any, is cached with the entry.
func (ft *FormulaTable) Intern(cell Coordinate, expression string) (ASTNode, error) {
	key := formulaKey(expression)
	if old, ok := ft.formulaAtCell[cell]; ok && old != key {
		ft.Release(cell)
	}

	entry, ok := ft.entries[key]
	if !ok {
		ast, err := ParseFormula(expression)
		entry = &formulaEntry{ast: ast, parseErr: err, cells: make(map[Coordinate]struct{})}
		ft.entries[key] = entry
	}
	entry.cells[cell] = struct{}{}
	ft.formulaAtCell[cell] = key
	return entry.ast, entry.parseErr
}

// Lookup returns the parsed expression held by cell.
func (ft *FormulaTable) Lookup(cell Coordinate) (ast ASTNode, parseErr error, ok bool) {
	key, ok := ft.formulaAtCell[cell]
	if !ok {
		return nil, nil, false
	}
	entry := ft.entries[key]
	return entry.ast, entry.parseErr, true
}

// Release detaches cell from its expression. Returns true if the entry was
// dropped because no cell uses it anymore.
func (ft *FormulaTable) Release(cell Coordinate) bool {
	key, ok := ft.formulaAtCell[cell]
	if !ok {
		return false
	}
	delete(ft.formulaAtCell, cell)

	entry := ft.entries[key]
	delete(entry.cells, cell)
	if len(entry.cells) == 0 {
		delete(ft.entries, key)
		return true
	}
	return false
}

// GetReferenceCount returns how many cells hold expression
func (ft *FormulaTable) GetReferenceCount(expression string) int {
	if entry, ok := ft.entries[formulaKey(expression)]; ok {
		return len(entry.cells)
	}
	return 0
}

// Count returns the number of unique expressions
func (ft *FormulaTable) Count() int {
	return len(ft.entries)
}
