// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mha

import (
	"testing"

	"github.com/gomlx/mhabench/ortenv"
	"github.com/stretchr/testify/require"
)

func gpuConfig(t *testing.T, layout InputLayout, seqLen, kvSeqLen int) *Config {
	t.Helper()
	cfg, err := NewConfig(Options{
		BatchSize:        1,
		SequenceLength:   seqLen,
		KVSequenceLength: kvSeqLen,
		NumHeads:         8,
		HeadSize:         64,
		Layout:           layout,
		Provider:         CUDAExecutionProvider,
	})
	require.NoError(t, err)
	return cfg
}

func TestGPUKernelFlash(t *testing.T) {
	ov := ortenv.Defaults()

	// Any unpacked layout goes to flash when not disabled.
	require.Equal(t, KernelFlash, GPUKernel(gpuConfig(t, SeparateQKV, 256, 0), ov))
	require.Equal(t, KernelFlash, GPUKernel(gpuConfig(t, PackedKV, 256, 0), ov))

	// Packed QKV reaches flash only from the minimum sequence length up.
	require.Equal(t, KernelFlash, GPUKernel(gpuConfig(t, PackedQKV, 513, 0), ov))
	require.Equal(t, KernelFlash, GPUKernel(gpuConfig(t, PackedQKV, 2048, 0), ov))
}

func TestGPUKernelPackedQKVBelowThreshold(t *testing.T) {
	// seq=256 < 513: flash rule must not fire; the fused-cross rule matches
	// (kv_sequence_length=256 > 128 fails, but sequence_length <= 384 under
	// the fused-attention clause holds), so the chain lands on TRT.
	ov := ortenv.Defaults()
	got := GPUKernel(gpuConfig(t, PackedQKV, 256, 0), ov)
	require.NotEqual(t, KernelFlash, got)
	require.Equal(t, KernelTRT, got)
}

func TestGPUKernelThresholdOverride(t *testing.T) {
	ov := ortenv.Defaults()
	ov.MinSeqLenFlashPackedQKV = 128
	require.Equal(t, KernelFlash, GPUKernel(gpuConfig(t, PackedQKV, 256, 0), ov))
}

func TestGPUKernelChainOrder(t *testing.T) {
	ov := ortenv.Defaults()
	ov.DisableFlashAttention = true

	// Short kv sequence: fused cross attention keeps TRT alive.
	require.Equal(t, KernelTRT, GPUKernel(gpuConfig(t, SeparateQKV, 4096, 128), ov))

	// Long sequence with TRT-flash available: still TRT.
	require.Equal(t, KernelTRT, GPUKernel(gpuConfig(t, SeparateQKV, 4096, 0), ov))

	// Long sequence, TRT-flash disabled too: falls to memory-efficient.
	ov.DisableTRTFlashAttention = true
	ov.DisableFusedCrossAttention = true
	require.Equal(t, KernelMemEff, GPUKernel(gpuConfig(t, SeparateQKV, 4096, 0), ov))

	// Short sequence keeps the fused-attention clause alive even without
	// TRT-flash.
	require.Equal(t, KernelTRT, GPUKernel(gpuConfig(t, SeparateQKV, 384, 0), ov))

	// Everything disabled: unfused.
	ov.DisableFusedAttention = true
	ov.DisableMemoryEfficientAttention = true
	require.Equal(t, KernelUnfused, GPUKernel(gpuConfig(t, SeparateQKV, 4096, 0), ov))
}

func TestCPUKernel(t *testing.T) {
	ov := ortenv.Defaults()

	plain, err := NewConfig(Options{BatchSize: 1, SequenceLength: 128, NumHeads: 12, HeadSize: 64})
	require.NoError(t, err)
	require.Equal(t, KernelCPUFlash, CPUKernel(plain, ov))

	ov.DisableFlashAttention = true
	require.Equal(t, KernelCPUUnfused, CPUKernel(plain, ov))

	// Causal always lands on the unfused path, whatever the flags.
	causal, err := NewConfig(Options{BatchSize: 1, SequenceLength: 128, NumHeads: 12, HeadSize: 64, Causal: true})
	require.NoError(t, err)
	require.Equal(t, KernelCPUUnfused, CPUKernel(causal, ortenv.Defaults()))
	require.Equal(t, KernelCPUUnfused, CPUKernel(causal, ov))

	cached, err := NewConfig(Options{
		BatchSize: 1, SequenceLength: 128, NumHeads: 12, HeadSize: 64,
		UseKVCache: true, PastSequenceLength: 16,
	})
	require.NoError(t, err)
	require.Equal(t, KernelCPUUnfused, CPUKernel(cached, ortenv.Defaults()))
}

func TestExpectedKernelPicksRuleTable(t *testing.T) {
	ov := ortenv.Defaults()
	gpu := gpuConfig(t, SeparateQKV, 256, 0)
	require.Equal(t, KernelFlash, ExpectedKernel(gpu, ov))

	cpu, err := NewConfig(Options{BatchSize: 1, SequenceLength: 256, NumHeads: 12, HeadSize: 64})
	require.NoError(t, err)
	require.Equal(t, KernelCPUFlash, ExpectedKernel(cpu, ov))
}
