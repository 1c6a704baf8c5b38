// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package bench

import (
	"fmt"
	"io"
	"slices"

	"github.com/go-gota/gota/dataframe"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
)

// summaryKey groups result rows for the summary table.
type summaryKey struct {
	Format string
	Kernel string
}

type summaryStats struct {
	count       int
	bestTFLOPS  float64
	worstMillis float64
	bestMillis  float64
}

// Summarize reads a results CSV (as written by CSVSink) from r and prints a
// per-(format, kernel) summary table to w: number of cases, best achieved
// TFLOPS and the latency range.
func Summarize(r io.Reader, w io.Writer) error {
	df := dataframe.ReadCSV(r, dataframe.HasHeader(true))
	if df.Error() != nil {
		return errors.Wrap(df.Error(), "failed to parse results CSV")
	}
	for _, column := range []string{"format", "kernel", "average_latency", "tflops"} {
		if !slices.Contains(df.Names(), column) {
			return errors.Errorf("results CSV is missing column %q", column)
		}
	}

	formats := df.Col("format").Records()
	kernels := df.Col("kernel").Records()
	latencies := df.Col("average_latency").Float()
	tflops := df.Col("tflops").Float()

	groups := make(map[summaryKey]*summaryStats)
	for i := 0; i < df.Nrow(); i++ {
		key := summaryKey{Format: formats[i], Kernel: kernels[i]}
		stats := groups[key]
		if stats == nil {
			stats = &summaryStats{bestMillis: latencies[i] * 1e3, worstMillis: latencies[i] * 1e3}
			groups[key] = stats
		}
		stats.count++
		stats.bestTFLOPS = max(stats.bestTFLOPS, tflops[i])
		stats.bestMillis = min(stats.bestMillis, latencies[i]*1e3)
		stats.worstMillis = max(stats.worstMillis, latencies[i]*1e3)
	}

	keys := maps.Keys(groups)
	slices.SortFunc(keys, func(a, b summaryKey) int {
		if a.Format != b.Format {
			if a.Format < b.Format {
				return -1
			}
			return 1
		}
		if a.Kernel < b.Kernel {
			return -1
		} else if a.Kernel > b.Kernel {
			return 1
		}
		return 0
	})

	table := newResultsTable("format", "kernel", "cases", "best TFLOPS", "fastest ms", "slowest ms")
	for _, key := range keys {
		stats := groups[key]
		table.Row(
			key.Format,
			key.Kernel,
			fmt.Sprintf("%d", stats.count),
			fmt.Sprintf("%.2f", stats.bestTFLOPS),
			fmt.Sprintf("%.2f", stats.bestMillis),
			fmt.Sprintf("%.2f", stats.worstMillis),
		)
	}
	_, err := fmt.Fprintln(w, table.Render())
	return err
}
