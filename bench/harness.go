// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package bench drives the MultiHeadAttention benchmark: wall-clock latency
// measurement, theoretical FLOPs and throughput accounting, the CSV result
// sink, and the sweep over layouts and hardware-representative
// configurations.
package bench

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// MeasureLatency invokes fn once and returns its elapsed wall-clock time.
// No retries, no outlier filtering: one call, one duration. A failing fn is
// a measurement failure and its error is returned with the (meaningless)
// elapsed time.
func MeasureLatency(fn func() error) (time.Duration, error) {
	start := time.Now()
	err := fn()
	return time.Since(start), err
}

// RunRepeated calls fn warmup times discarding the results, then repeats
// times recording each latency, and returns the arithmetic mean. repeats
// must be >= 1; warmup may be 0. The first error aborts the measurement.
func RunRepeated(fn func() error, warmup, repeats int) (time.Duration, error) {
	if repeats < 1 {
		return 0, errors.Errorf("RunRepeated requires repeats >= 1, got %d", repeats)
	}
	if warmup < 0 {
		return 0, errors.Errorf("RunRepeated requires warmup >= 0, got %d", warmup)
	}
	for i := 0; i < warmup; i++ {
		if _, err := MeasureLatency(fn); err != nil {
			return 0, errors.Wrapf(err, "measurement failed during warmup call %d", i)
		}
	}
	samples := make([]float64, repeats)
	for i := 0; i < repeats; i++ {
		latency, err := MeasureLatency(fn)
		if err != nil {
			return 0, errors.Wrapf(err, "measurement failed during timed call %d", i)
		}
		samples[i] = latency.Seconds()
	}
	return time.Duration(stat.Mean(samples, nil) * float64(time.Second)), nil
}

// Flops returns the theoretical floating-point operations of one attention
// pass: 4*batch*seqLen²*numHeads*headSize, halved for causal attention
// (triangular sparsity).
func Flops(batch, seqLen, headSize, numHeads int, causal bool) int64 {
	flops := 4 * int64(batch) * int64(seqLen) * int64(seqLen) * int64(numHeads) * int64(headSize)
	if causal {
		flops /= 2
	}
	return flops
}

// TFLOPS converts a FLOP count and a duration in seconds to achieved
// tera-operations per second. A non-finite or non-positive duration yields 0
// rather than an error or a NaN: it marks a failed or skipped measurement,
// the only anomalous numeric input absorbed instead of surfaced.
func TFLOPS(flops int64, seconds float64) float64 {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0 {
		return 0
	}
	return float64(flops) / seconds / 1e12
}
