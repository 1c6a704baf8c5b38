// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package bench

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 1, 0, 1).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
)

func newResultsTable(headers ...string) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row < 0:
				return headerRowStyle
			case row%2 == 0:
				return oddRowStyle
			default:
				return evenRowStyle
			}
		}).
		Headers(headers...)
}

// PrintRecords renders the measurement records as a terminal table: one row
// per record with latency in milliseconds and achieved TFLOPS.
func PrintRecords(w io.Writer, records []Record) {
	table := newResultsTable(
		"format", "causal", "batch", "seqlen", "past", "heads", "h_dim", "threads", "ms", "TFLOPS", "kernel")
	for _, r := range records {
		table.Row(
			r.Format,
			fmt.Sprintf("%v", r.Causal),
			fmt.Sprintf("%d", r.BatchSize),
			fmt.Sprintf("%d", r.SequenceLength),
			fmt.Sprintf("%d", r.PastSequenceLength),
			fmt.Sprintf("%d", r.NumHeads),
			fmt.Sprintf("%d", r.HeadSize),
			fmt.Sprintf("%d", r.IntraOpNumThreads),
			fmt.Sprintf("%.2f", r.AverageLatency*1e3),
			fmt.Sprintf("%.2f", r.TFLOPS),
			string(r.Kernel),
		)
	}
	out := termenv.NewOutput(w)
	fmt.Fprintln(out, table.Render())
}
