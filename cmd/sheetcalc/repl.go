package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vogtb/go-spreadsheet/packages/spreadsheet"
)

const maxRangeCells = 10000

const replHelp = `commands:
  set LABEL RAW     store RAW at LABEL ("=..." is a formula)
  get LABEL         show the cell at LABEL
  clear LABEL       empty LABEL
  deps LABEL        show what LABEL reads and what reads LABEL
  range FROM:TO     show every cell in a rectangle
  cells             show every non-empty cell
  help              show this text
  quit | exit       leave`

func newReplCmd(a *app) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Edit a sheet interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("metrics-addr") {
				metricsAddr = a.cfg.Metrics.Addr
			}

			engine := a.newEngine()
			prompt := ""
			if isTerminal(cmd.InOrStdin()) {
				prompt = "> "
			}
			if metricsAddr == "" {
				return runRepl(cmd.Context(), engine, cmd.InOrStdin(), cmd.OutOrStdout(), a.format, prompt)
			}

			srv, ln, err := a.metricsServer(metricsAddr)
			if err != nil {
				return err
			}
			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("metrics server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				defer shutdown(srv, a)
				return runRepl(ctx, engine, cmd.InOrStdin(), cmd.OutOrStdout(), a.format, prompt)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides config)")
	return cmd
}

// metricsServer binds addr and returns a server exposing the app registry.
func (a *app) metricsServer(addr string) (*http.Server, net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, &ExitError{Code: exitFailure, Message: fmt.Sprintf("listening on %s: %v", addr, err)}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))
	a.logger.Info("serving metrics", "addr", ln.Addr().String())
	return &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}, ln, nil
}

func shutdown(srv *http.Server, a *app) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		a.logger.Warn("metrics server shutdown", "error", err)
	}
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// runRepl reads commands from in until EOF, quit or ctx is done. A failing
// command prints its error and the loop continues.
func runRepl(ctx context.Context, engine *spreadsheet.Engine, in io.Reader, out io.Writer, format, prompt string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	readCtx, stop := context.WithCancel(ctx)
	defer stop()
	lines, scanErr := readLines(readCtx, in)
	fmt.Fprint(out, prompt)
	for {
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok = <-lines:
		}
		if !ok {
			return <-scanErr
		}
		if strings.TrimSpace(line) != "" {
			done, err := execReplLine(engine, out, format, line)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
			if done {
				return nil
			}
		}
		fmt.Fprint(out, prompt)
	}
}

// readLines scans in on its own goroutine so a blocked read does not hold
// up cancellation. The goroutine exits once in is drained or ctx is done;
// a read already blocked inside in stays blocked until in returns.
func readLines(ctx context.Context, in io.Reader) (<-chan string, <-chan error) {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				scanErr <- ctx.Err()
				return
			}
		}
		scanErr <- scanner.Err()
	}()
	return lines, scanErr
}

func execReplLine(engine *spreadsheet.Engine, out io.Writer, format, line string) (bool, error) {
	command, rest := splitWord(strings.TrimLeft(line, " \t"))
	switch strings.ToLower(command) {
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Fprintln(out, replHelp)
		return false, nil
	case "set":
		label, raw := splitWord(rest)
		if label == "" {
			return false, errors.New("usage: set LABEL RAW")
		}
		update, err := engine.SetLabel(label, raw)
		if err != nil {
			return false, err
		}
		return false, writeUpdate(out, format, engine, update)
	case "clear":
		label := strings.TrimSpace(rest)
		if label == "" {
			return false, errors.New("usage: clear LABEL")
		}
		update, err := engine.ClearLabel(label)
		if err != nil {
			return false, err
		}
		return false, writeUpdate(out, format, engine, update)
	case "get":
		label := strings.TrimSpace(rest)
		if label == "" {
			return false, errors.New("usage: get LABEL")
		}
		rec, err := engine.GetLabel(label)
		if err != nil {
			return false, err
		}
		return false, writeCells(out, format, []spreadsheet.CellRecord{rec})
	case "deps":
		return false, writeDeps(out, format, engine, strings.TrimSpace(rest))
	case "range":
		return false, writeRange(out, format, engine, strings.TrimSpace(rest))
	case "cells":
		return false, writeCells(out, format, nonEmpty(engine.Cells()))
	default:
		return false, fmt.Errorf("unknown command %q (try help)", command)
	}
}

// splitWord splits s at its first space or tab. rest keeps everything
// after the separator verbatim.
func splitWord(s string) (word, rest string) {
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

type depsOutput struct {
	Cell         string   `json:"cell"`
	Dependencies []string `json:"dependencies"`
	Dependents   []string `json:"dependents"`
}

func writeDeps(out io.Writer, format string, engine *spreadsheet.Engine, label string) error {
	c, err := spreadsheet.LabelToCoordinate(label)
	if err != nil {
		return err
	}
	d := depsOutput{
		Cell:         spreadsheet.CoordinateToLabel(c),
		Dependencies: labels(engine.Dependencies(c)),
		Dependents:   labels(engine.Dependents(c)),
	}
	if format == "json" {
		return writeJSON(out, d)
	}
	fmt.Fprintf(out, "%s reads: %s\n", d.Cell, strings.Join(d.Dependencies, ", "))
	fmt.Fprintf(out, "%s is read by: %s\n", d.Cell, strings.Join(d.Dependents, ", "))
	return nil
}

func writeRange(out io.Writer, format string, engine *spreadsheet.Engine, ref string) error {
	from, to, ok := strings.Cut(ref, ":")
	if !ok {
		return fmt.Errorf("usage: range FROM:TO")
	}
	start, err := spreadsheet.LabelToCoordinate(from)
	if err != nil {
		return err
	}
	end, err := spreadsheet.LabelToCoordinate(to)
	if err != nil {
		return err
	}
	rows := abs(end.Row-start.Row) + 1
	cols := abs(end.Column-start.Column) + 1
	if rows*cols > maxRangeCells {
		return fmt.Errorf("range %s has %d cells, at most %d can be shown", ref, rows*cols, maxRangeCells)
	}

	cells, err := spreadsheet.ExpandRange(from, to)
	if err != nil {
		return err
	}
	records := make([]spreadsheet.CellRecord, 0, len(cells))
	for _, c := range cells {
		rec, _ := engine.GetCell(c)
		records = append(records, rec)
	}
	return writeCells(out, format, records)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
