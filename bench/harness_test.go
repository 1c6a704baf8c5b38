// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package bench

import (
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestMeasureLatency(t *testing.T) {
	latency, err := MeasureLatency(func() error {
		time.Sleep(5 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, latency, 5*time.Millisecond)

	boom := errors.New("boom")
	_, err = MeasureLatency(func() error { return boom })
	require.ErrorIs(t, err, boom)
}

func TestRunRepeated(t *testing.T) {
	var calls int
	mean, err := RunRepeated(func() error {
		calls++
		return nil
	}, 3, 10)
	require.NoError(t, err)
	require.Equal(t, 13, calls)
	require.GreaterOrEqual(t, mean, time.Duration(0))

	_, err = RunRepeated(func() error { return nil }, 0, 0)
	require.Error(t, err)
	_, err = RunRepeated(func() error { return nil }, -1, 1)
	require.Error(t, err)
}

func TestRunRepeatedPropagatesFailures(t *testing.T) {
	boom := errors.New("session exploded")

	// Failure during warmup.
	calls := 0
	_, err := RunRepeated(func() error {
		calls++
		return boom
	}, 1, 5)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)

	// Failure during a timed repetition.
	calls = 0
	_, err = RunRepeated(func() error {
		calls++
		if calls > 2 {
			return boom
		}
		return nil
	}, 0, 5)
	require.ErrorIs(t, err, boom)
}

func TestFlops(t *testing.T) {
	require.Equal(t, int64(4*1*128*128*12*64), Flops(1, 128, 64, 12, false))
	require.Equal(t, int64(4*1*128*128*12*64/2), Flops(1, 128, 64, 12, true))
	require.Equal(t, int64(0), Flops(0, 128, 64, 12, false))
}

func TestTFLOPS(t *testing.T) {
	require.Equal(t, 2.0, TFLOPS(2e12, 1.0))
	require.Equal(t, 4.0, TFLOPS(2e12, 0.5))

	// Anomalous durations are absorbed, never raised or propagated as NaN.
	require.Zero(t, TFLOPS(0, math.NaN()))
	require.Zero(t, TFLOPS(100, 0))
	require.Zero(t, TFLOPS(100, -1))
	require.Zero(t, TFLOPS(100, math.Inf(1)))
}
