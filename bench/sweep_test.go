// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package bench

import (
	"bytes"
	"strings"
	"testing"

	"github.com/gomlx/mhabench/mha"
	"github.com/gomlx/mhabench/ortenv"
	"github.com/gomlx/mhabench/session"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// tinyCases keeps sweep tests fast.
func tinyCases() []CaseSpec {
	return []CaseSpec{
		{BatchSize: 1, SequenceLength: 8, NumHeads: 2, HeadSize: 4, RunUnfused: true},
		{BatchSize: 2, SequenceLength: 4, NumHeads: 2, HeadSize: 4, RunUnfused: false},
	}
}

func TestRunSweepCPU(t *testing.T) {
	var buf bytes.Buffer
	sink, err := NewCSVSink(&buf)
	require.NoError(t, err)

	records, err := RunSweep(SweepOptions{
		Repeats:     2,
		WarmupRuns:  1,
		Seed:        123,
		Builder:     session.NewLocal,
		Cases:       tinyCases(),
		Overrides:   ortenv.Defaults(),
		RefBaseline: true,
	}, sink)
	require.NoError(t, err)
	require.NoError(t, sink.Flush())

	// CPU sweeps only the plain layout: 2 cases, each followed by a
	// reference baseline row.
	require.Len(t, records, 4)
	require.Equal(t, mha.KernelCPUFlash, records[0].Kernel)
	require.Equal(t, mha.KernelRefSDPA, records[1].Kernel)
	for _, record := range records {
		require.Equal(t, "Q,K,V", record.Format)
		require.False(t, record.UseGPU)
		require.GreaterOrEqual(t, record.AverageLatency, 0.0)
	}
	require.Equal(t, 1+len(records), strings.Count(buf.String(), "\n"))
}

func TestRunSweepGPULayouts(t *testing.T) {
	records, err := RunSweep(SweepOptions{
		UseGPU:    true,
		Repeats:   1,
		Seed:      123,
		Builder:   session.NewLocal,
		Cases:     tinyCases()[:1],
		Overrides: ortenv.Defaults(),
	}, nil)
	require.NoError(t, err)

	// GPU sweeps three layouts; no reference baseline rows on GPU.
	require.Len(t, records, 3)
	formats := []string{records[0].Format, records[1].Format, records[2].Format}
	require.Equal(t, []string{"Q,K,V", "Q,KV", "QKV"}, formats)
	for _, record := range records {
		require.True(t, record.UseGPU)
		require.NotEqual(t, mha.KernelRefSDPA, record.Kernel)
	}
}

func TestRunSweepSkipsUnfused(t *testing.T) {
	// With every kernel disabled the classifier lands on Unfused; only the
	// allow-listed plain-layout case may run.
	ov := ortenv.Defaults()
	ov.DisableFlashAttention = true
	ov.DisableFusedAttention = true
	ov.DisableFusedCrossAttention = true
	ov.DisableTRTFlashAttention = true
	ov.DisableMemoryEfficientAttention = true

	records, err := RunSweep(SweepOptions{
		UseGPU:    true,
		Repeats:   1,
		Seed:      123,
		Builder:   session.NewLocal,
		Cases:     tinyCases(),
		Overrides: ov,
	}, nil)
	require.NoError(t, err)

	// 3 layouts x 2 cases enumerated; only (Q,K,V, RunUnfused=true) kept.
	require.Len(t, records, 1)
	require.Equal(t, "Q,K,V", records[0].Format)
	require.Equal(t, mha.KernelUnfused, records[0].Kernel)
}

func TestRunSweepCausalCache(t *testing.T) {
	cases := []CaseSpec{
		{BatchSize: 1, SequenceLength: 4, PastSequenceLength: 0, NumHeads: 2, HeadSize: 4, RunUnfused: true},
	}
	records, err := RunSweep(SweepOptions{
		Causal:     true,
		UseKVCache: true,
		Repeats:    1,
		Seed:       123,
		Builder:    session.NewLocal,
		Cases:      cases,
		Overrides:  ortenv.Defaults(),
	}, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.True(t, records[0].Causal)
	require.Equal(t, mha.KernelCPUUnfused, records[0].Kernel)
}

func TestRunSweepContinuesOnMeasurementFailure(t *testing.T) {
	// A builder that fails on the first case: the sweep logs and moves on.
	calls := 0
	builder := func(cfg *mha.Config, opts session.Options) (session.Session, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("device fell off the bus")
		}
		return session.NewLocal(cfg, opts)
	}
	records, err := RunSweep(SweepOptions{
		Repeats:   1,
		Seed:      123,
		Builder:   builder,
		Cases:     tinyCases(),
		Overrides: ortenv.Defaults(),
	}, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestRunSweepRequiresBuilder(t *testing.T) {
	_, err := RunSweep(SweepOptions{Repeats: 1}, nil)
	require.Error(t, err)
}

func TestEnvSnapshotLandsInRecords(t *testing.T) {
	records, err := RunSweep(SweepOptions{
		Repeats:     1,
		Seed:        123,
		Builder:     session.NewLocal,
		Cases:       tinyCases()[:1],
		Overrides:   ortenv.Defaults(),
		EnvSnapshot: "ORT_DISABLE_FLASH_ATTENTION=1",
	}, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "ORT_DISABLE_FLASH_ATTENTION=1", records[0].EnvironmentVariables)
}
