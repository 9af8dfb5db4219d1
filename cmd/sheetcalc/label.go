package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vogtb/go-spreadsheet/packages/spreadsheet"
)

type labelOutput struct {
	Label  string `json:"label"`
	Row    int    `json:"row"`
	Column int    `json:"column"`
}

func newLabelCmd(a *app) *cobra.Command {
	var reverse bool

	cmd := &cobra.Command{
		Use:   "label LABEL... | label --reverse ROW COL",
		Short: "Convert between cell labels and zero-based coordinates",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out []labelOutput
			if reverse {
				c, err := parseCoordinate(args)
				if err != nil {
					return err
				}
				out = append(out, labelOutput{Label: spreadsheet.CoordinateToLabel(c), Row: c.Row, Column: c.Column})
			} else {
				for _, label := range args {
					c, err := spreadsheet.LabelToCoordinate(label)
					if err != nil {
						return &ExitError{Code: exitUsage, Message: err.Error()}
					}
					out = append(out, labelOutput{Label: spreadsheet.CoordinateToLabel(c), Row: c.Row, Column: c.Column})
				}
			}

			w := cmd.OutOrStdout()
			if a.format == "json" {
				return writeJSON(w, out)
			}
			for _, l := range out {
				fmt.Fprintf(w, "%s\trow=%d\tcolumn=%d\n", l.Label, l.Row, l.Column)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&reverse, "reverse", false, "print the label for a zero-based ROW and COL")
	return cmd
}

func parseCoordinate(args []string) (spreadsheet.Coordinate, error) {
	if len(args) != 2 {
		return spreadsheet.Coordinate{}, &ExitError{Code: exitUsage, Message: "--reverse takes exactly ROW and COL"}
	}
	row, err := strconv.Atoi(args[0])
	if err != nil || row < 0 {
		return spreadsheet.Coordinate{}, &ExitError{Code: exitUsage, Message: fmt.Sprintf("invalid row %q", args[0])}
	}
	col, err := strconv.Atoi(args[1])
	if err != nil || col < 0 {
		return spreadsheet.Coordinate{}, &ExitError{Code: exitUsage, Message: fmt.Sprintf("invalid column %q", args[1])}
	}
	return spreadsheet.Coordinate{Row: row, Column: col}, nil
}
