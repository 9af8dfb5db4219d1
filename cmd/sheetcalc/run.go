package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vogtb/go-spreadsheet/packages/spreadsheet"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run FILE|-",
		Short: "Apply the edits in a script and print the resulting cells",
		Long: `Reads one edit per line as "LABEL RAW". The first space or tab separates
the label from the raw input, which is stored exactly as written; a raw
input starting with "=" is a formula. Blank lines and lines starting with
"#" are ignored. Use "-" to read from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, closeFn, err := openInput(cmd, args[0])
			if err != nil {
				return err
			}
			defer closeFn()

			engine := a.newEngine()
			if err := applyScript(engine, in); err != nil {
				return err
			}
			return writeCells(cmd.OutOrStdout(), a.format, nonEmpty(engine.Cells()))
		},
	}
}

func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, &ExitError{Code: exitUsage, Message: fmt.Sprintf("opening script: %v", err)}
	}
	return f, func() { f.Close() }, nil
}

// parseEdit splits a script line into label and raw input. ok is false
// for blank and comment lines.
func parseEdit(line string) (label, raw string, ok bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", "", false
	}
	line = strings.TrimLeft(line, " \t")
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		return line[:i], strings.TrimRight(line[i+1:], "\r"), true
	}
	return strings.TrimRight(line, "\r"), "", true
}

// applyScript applies every edit in r in order, stopping at the first
// malformed or out-of-range label.
func applyScript(engine *spreadsheet.Engine, r io.Reader) error {
	runnable := spreadsheet.NewRunnable(engine, nil)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		label, raw, ok := parseEdit(scanner.Text())
		if !ok {
			continue
		}
		if err := runnable.Set(label, raw).Err(); err != nil {
			return &ExitError{Code: exitUsage, Message: fmt.Sprintf("line %d: %v", lineNo, err)}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading script: %w", err)
	}
	_, err := runnable.Run()
	return err
}
