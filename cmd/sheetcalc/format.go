package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/vogtb/go-spreadsheet/packages/spreadsheet"
)

// cellOutput is the JSON shape of one cell.
type cellOutput struct {
	Cell         string   `json:"cell"`
	Raw          string   `json:"raw"`
	Display      string   `json:"display"`
	Kind         string   `json:"kind"`
	Dependencies []string `json:"dependencies,omitempty"`
}

func toCellOutput(rec spreadsheet.CellRecord) cellOutput {
	return cellOutput{
		Cell:         rec.Label(),
		Raw:          rec.Raw,
		Display:      rec.Display.String(),
		Kind:         rec.Display.Kind.String(),
		Dependencies: labels(rec.Dependencies),
	}
}

func labels(cells []spreadsheet.Coordinate) []string {
	if len(cells) == 0 {
		return nil
	}
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = spreadsheet.CoordinateToLabel(c)
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeCells prints records as an aligned table or a JSON array.
func writeCells(w io.Writer, format string, records []spreadsheet.CellRecord) error {
	if format == "json" {
		out := make([]cellOutput, 0, len(records))
		for _, rec := range records {
			out = append(out, toCellOutput(rec))
		}
		return writeJSON(w, out)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CELL\tRAW\tDISPLAY\tDEPENDENCIES")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			rec.Label(), rec.Raw, rec.Display, strings.Join(labels(rec.Dependencies), ","))
	}
	return tw.Flush()
}

// writeUpdate prints every updated cell with its new display value.
func writeUpdate(w io.Writer, format string, engine *spreadsheet.Engine, update spreadsheet.Update) error {
	records := make([]spreadsheet.CellRecord, 0, len(update.Updated))
	for _, c := range update.Updated {
		rec, _ := engine.GetCell(c)
		records = append(records, rec)
	}

	if format == "json" {
		out := make([]cellOutput, 0, len(records))
		for _, rec := range records {
			out = append(out, toCellOutput(rec))
		}
		return writeJSON(w, out)
	}
	for _, rec := range records {
		if _, err := fmt.Fprintf(w, "%s = %s\n", rec.Label(), rec.Display); err != nil {
			return err
		}
	}
	return nil
}

// nonEmpty drops records whose display is empty.
func nonEmpty(records []spreadsheet.CellRecord) []spreadsheet.CellRecord {
	out := records[:0]
	for _, rec := range records {
		if !rec.Display.IsEmpty() {
			out = append(out, rec)
		}
	}
	return out
}
