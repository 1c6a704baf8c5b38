// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package bench

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/gomlx/mhabench/mha"
	"github.com/pkg/errors"
)

// Record describes one completed measurement: the case dimensions, the mean
// latency, the derived throughput, the kernel the runtime was expected to
// dispatch to, and a snapshot of the override environment. Records are
// created once and never mutated.
type Record struct {
	UseGPU             bool
	EnableCudaGraph    bool
	Format             string // The layout's display name.
	Causal             bool
	BatchSize          int
	SequenceLength     int
	PastSequenceLength int
	NumHeads           int
	HeadSize           int
	IntraOpNumThreads  int
	AverageLatency     float64 // Seconds.
	TFLOPS             float64
	Kernel             mha.KernelLabel
	// EnvironmentVariables is the comma-joined NAME=value list of the
	// override variables explicitly set during the run (see ortenv.Snapshot).
	EnvironmentVariables string
}

// Columns is the fixed CSV column order of the export contract.
var Columns = []string{
	"use_gpu",
	"enable_cuda_graph",
	"format",
	"causal",
	"batch_size",
	"sequence_length",
	"past_sequence_length",
	"num_heads",
	"head_size",
	"intra_op_num_threads",
	"average_latency",
	"tflops",
	"kernel",
	"environment_variables",
}

// row converts the record to its CSV cells, aligned with Columns.
func (r Record) row() []string {
	return []string{
		strconv.FormatBool(r.UseGPU),
		strconv.FormatBool(r.EnableCudaGraph),
		r.Format,
		strconv.FormatBool(r.Causal),
		strconv.Itoa(r.BatchSize),
		strconv.Itoa(r.SequenceLength),
		strconv.Itoa(r.PastSequenceLength),
		strconv.Itoa(r.NumHeads),
		strconv.Itoa(r.HeadSize),
		strconv.Itoa(r.IntraOpNumThreads),
		strconv.FormatFloat(r.AverageLatency, 'g', -1, 64),
		strconv.FormatFloat(r.TFLOPS, 'g', -1, 64),
		string(r.Kernel),
		r.EnvironmentVariables,
	}
}

// CSVSink appends measurement records to a CSV stream with the fixed column
// order. It is opened once per run and written strictly in case order; it is
// not safe for concurrent writers.
type CSVSink struct {
	w *csv.Writer
}

// NewCSVSink wraps w and writes the header row.
func NewCSVSink(w io.Writer) (*CSVSink, error) {
	sink := &CSVSink{w: csv.NewWriter(w)}
	if err := sink.w.Write(Columns); err != nil {
		return nil, errors.Wrap(err, "failed to write CSV header")
	}
	return sink, nil
}

// Append writes one record.
func (s *CSVSink) Append(record Record) error {
	if err := s.w.Write(record.row()); err != nil {
		return errors.Wrap(err, "failed to append CSV record")
	}
	return nil
}

// Flush forces buffered rows out and reports any pending write error.
func (s *CSVSink) Flush() error {
	s.w.Flush()
	return errors.Wrap(s.w.Error(), "failed to flush CSV records")
}
