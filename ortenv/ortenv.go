// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package ortenv reads the ONNX Runtime environment variables that
// enable or disable individual attention kernels.
//
// The variables mirror the ones the runtime's CUDA provider consults when
// dispatching MultiHeadAttention, so a snapshot taken here describes the
// kernel-selection environment a benchmark run executed under:
//
//   - ORT_DISABLE_FLASH_ATTENTION
//   - ORT_MIN_SEQ_LEN_FLASH_ATTENTION_PACKED_QKV
//   - ORT_DISABLE_FUSED_ATTENTION
//   - ORT_DISABLE_TRT_FLASH_ATTENTION
//   - ORT_ENABLE_FUSED_CAUSAL_ATTENTION
//   - ORT_DISABLE_FUSED_CROSS_ATTENTION
//   - ORT_DISABLE_MEMORY_EFFICIENT_ATTENTION
//
// Boolean flags are considered set only when the variable is exactly "1",
// matching the runtime's own parsing.
package ortenv

import (
	"os"
	"strconv"
	"strings"

	"k8s.io/klog/v2"
)

// Variable names, in the order they are reported.
const (
	DisableFlashAttention           = "ORT_DISABLE_FLASH_ATTENTION"
	MinSeqLenFlashAttentionPacked   = "ORT_MIN_SEQ_LEN_FLASH_ATTENTION_PACKED_QKV"
	DisableFusedAttention           = "ORT_DISABLE_FUSED_ATTENTION"
	DisableTRTFlashAttention        = "ORT_DISABLE_TRT_FLASH_ATTENTION"
	EnableFusedCausalAttention      = "ORT_ENABLE_FUSED_CAUSAL_ATTENTION"
	DisableFusedCrossAttention      = "ORT_DISABLE_FUSED_CROSS_ATTENTION"
	DisableMemoryEfficientAttention = "ORT_DISABLE_MEMORY_EFFICIENT_ATTENTION"
)

// Names lists every kernel-override variable, in reporting order.
var Names = []string{
	DisableFlashAttention,
	MinSeqLenFlashAttentionPacked,
	DisableFusedAttention,
	DisableTRTFlashAttention,
	EnableFusedCausalAttention,
	DisableFusedCrossAttention,
	DisableMemoryEfficientAttention,
}

// DefaultMinSeqLenFlashPackedQKV is the minimum sequence length at which the
// runtime selects flash attention for the packed QKV layout, when
// ORT_MIN_SEQ_LEN_FLASH_ATTENTION_PACKED_QKV is not set.
const DefaultMinSeqLenFlashPackedQKV = 513

// Overrides is the decoded set of kernel-override flags. A zero value plus
// the default packed-QKV threshold (see Defaults) means "nothing disabled",
// the runtime's default dispatch behavior.
type Overrides struct {
	DisableFlashAttention           bool
	DisableFusedAttention           bool
	DisableTRTFlashAttention        bool
	EnableFusedCausalAttention      bool
	DisableFusedCrossAttention      bool
	DisableMemoryEfficientAttention bool

	// MinSeqLenFlashPackedQKV gates flash attention for the packed QKV
	// layout: sequences shorter than this fall through to the next kernel.
	MinSeqLenFlashPackedQKV int
}

// Defaults returns Overrides with no kernel disabled and the default
// packed-QKV flash threshold.
func Defaults() Overrides {
	return Overrides{MinSeqLenFlashPackedQKV: DefaultMinSeqLenFlashPackedQKV}
}

// FromEnvironment decodes the override variables from the process
// environment. Unset or non-"1" boolean variables leave their flag false; a
// malformed threshold falls back to the default with a warning.
func FromEnvironment() Overrides {
	ov := Defaults()
	ov.DisableFlashAttention = envBool(DisableFlashAttention)
	ov.DisableFusedAttention = envBool(DisableFusedAttention)
	ov.DisableTRTFlashAttention = envBool(DisableTRTFlashAttention)
	ov.EnableFusedCausalAttention = envBool(EnableFusedCausalAttention)
	ov.DisableFusedCrossAttention = envBool(DisableFusedCrossAttention)
	ov.DisableMemoryEfficientAttention = envBool(DisableMemoryEfficientAttention)
	if s := os.Getenv(MinSeqLenFlashAttentionPacked); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			klog.Warningf("Invalid %s=%q, using default %d",
				MinSeqLenFlashAttentionPacked, s, DefaultMinSeqLenFlashPackedQKV)
		} else {
			ov.MinSeqLenFlashPackedQKV = v
		}
	}
	return ov
}

// Snapshot returns a comma-joined "NAME=value" list of the override variables
// explicitly set in the environment, in reporting order. Unset variables are
// omitted; the result is empty when none is set.
func Snapshot() string {
	var parts []string
	for _, name := range Names {
		if value, found := os.LookupEnv(name); found {
			parts = append(parts, name+"="+value)
		}
	}
	return strings.Join(parts, ",")
}

func envBool(name string) bool {
	return os.Getenv(name) == "1"
}
