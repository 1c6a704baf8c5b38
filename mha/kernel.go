// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mha

import (
	"github.com/gomlx/mhabench/ortenv"
)

// KernelLabel names the execution path the runtime is expected to dispatch a
// configuration to. Purely descriptive: the classifier never executes
// anything, it mirrors the runtime's documented dispatch rules so benchmark
// rows can be attributed to a kernel.
type KernelLabel string

// GPU-class and CPU-class kernel labels, plus the label used for the native
// reference baseline rows.
const (
	KernelFlash      KernelLabel = "Flash"
	KernelTRT        KernelLabel = "TRT"
	KernelMemEff     KernelLabel = "MemEff"
	KernelUnfused    KernelLabel = "Unfused"
	KernelCPUFlash   KernelLabel = "CPU:Flash"
	KernelCPUUnfused KernelLabel = "CPU:Unfused"
	KernelRefSDPA    KernelLabel = "Ref:SDPA"
)

// gpuRule is one entry of the GPU dispatch chain: the first rule whose
// predicate matches decides the kernel. The order is semantically
// load-bearing and mirrors the runtime's CUDA provider for compute
// capability 8.x devices; if the runtime's dispatch changes, only this table
// needs updating.
type gpuRule struct {
	name    string
	matches func(c *Config, ov ortenv.Overrides) bool
	label   KernelLabel
}

var gpuRules = []gpuRule{
	{
		// Packed QKV reaches flash attention only from the configured
		// minimum sequence length up; shorter sequences fall through.
		name: "flash-packed-qkv",
		matches: func(c *Config, ov ortenv.Overrides) bool {
			return !ov.DisableFlashAttention && c.IsPackedQKV &&
				c.SequenceLength >= ov.MinSeqLenFlashPackedQKV
		},
		label: KernelFlash,
	},
	{
		name: "flash",
		matches: func(c *Config, ov ortenv.Overrides) bool {
			return !ov.DisableFlashAttention && !c.IsPackedQKV
		},
		label: KernelFlash,
	},
	{
		name: "trt-fused",
		matches: func(c *Config, ov ortenv.Overrides) bool {
			return (!ov.DisableFusedCrossAttention && c.KVSequenceLength <= 128) ||
				(!ov.DisableFusedAttention &&
					(c.SequenceLength <= 384 || !ov.DisableTRTFlashAttention))
		},
		label: KernelTRT,
	},
	{
		name: "memory-efficient",
		matches: func(c *Config, ov ortenv.Overrides) bool {
			return !ov.DisableMemoryEfficientAttention
		},
		label: KernelMemEff,
	},
	{
		name:    "unfused",
		matches: func(*Config, ortenv.Overrides) bool { return true },
		label:   KernelUnfused,
	},
}

// GPUKernel predicts the kernel the GPU-class provider dispatches c to,
// evaluating the priority chain top-down under the given overrides.
func GPUKernel(c *Config, ov ortenv.Overrides) KernelLabel {
	for _, rule := range gpuRules {
		if rule.matches(c, ov) {
			return rule.label
		}
	}
	return KernelUnfused // Unreachable: the last rule always matches.
}

// CPUKernel predicts the kernel for the CPU-class provider. The CPU flash
// path supports neither causal masking nor KV caching, so any of those sends
// the configuration to the unfused kernel.
func CPUKernel(c *Config, ov ortenv.Overrides) KernelLabel {
	if !c.Causal && !c.UseKVCache && c.PastSequenceLength == 0 && !ov.DisableFlashAttention {
		return KernelCPUFlash
	}
	return KernelCPUUnfused
}

// ExpectedKernel predicts the kernel for c's own execution target.
func ExpectedKernel(c *Config, ov ortenv.Overrides) KernelLabel {
	if c.UseGPU() {
		return GPUKernel(c, ov)
	}
	return CPUKernel(c, ov)
}
