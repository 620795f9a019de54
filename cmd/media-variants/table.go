package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"media-variants/internal/orchestrator"
	"media-variants/internal/variant"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range headers {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// runResult is one asset's outcome in a bulk command.
type runResult struct {
	ID     int64
	Report orchestrator.Report
	Err    error
}

var reportHeaders = []string{"ID", "Path", "Outcome", "Created", "Failed", "Retry", "Time"}

func reportRow(r runResult) []string {
	if r.Err != nil {
		return []string{fmt.Sprint(r.ID), r.Report.Path, "error", "-", "-", "-", r.Err.Error()}
	}
	retry := "-"
	if r.Report.Pending {
		retry = "pending"
	}
	return []string{
		fmt.Sprint(r.ID),
		r.Report.Path,
		string(r.Report.Outcome),
		joinKeys(r.Report.Created),
		joinKeys(r.Report.Failed),
		retry,
		r.Report.Duration.Round(time.Millisecond).String(),
	}
}

// writeReports prints a table on a terminal and tab-separated lines
// otherwise, followed by an outcome summary.
func writeReports(w io.Writer, results []runResult) {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, reportRow(r))
	}

	if isTerminal(w) {
		fmt.Fprintln(w, renderTable(reportHeaders, rows, []columnAlignment{
			alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight,
		}))
	} else {
		for _, row := range rows {
			fmt.Fprintln(w, strings.Join(row, "\t"))
		}
	}
	fmt.Fprintln(w, summarize(results))
}

func summarize(results []runResult) string {
	counts := make(map[string]int)
	var order []string
	for _, r := range results {
		key := string(r.Report.Outcome)
		if r.Err != nil {
			key = "error"
		}
		if counts[key] == 0 {
			order = append(order, key)
		}
		counts[key]++
	}

	noun := "assets"
	if len(results) == 1 {
		noun = "asset"
	}
	if len(order) == 0 {
		return fmt.Sprintf("Processed 0 %s", noun)
	}
	parts := make([]string, 0, len(order))
	for _, k := range order {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return fmt.Sprintf("Processed %d %s: %s", len(results), noun, strings.Join(parts, ", "))
}

func joinKeys(keys []variant.FormatKey) string {
	if len(keys) == 0 {
		return "-"
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return strings.Join(out, ",")
}
