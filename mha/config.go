// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mha

import (
	"fmt"
	"math"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Execution providers understood by the benchmark. The strings follow the
// runtime's provider registry; they are opaque to this package and only
// forwarded to the session builder and the kernel classifier.
const (
	CPUExecutionProvider  = "CPUExecutionProvider"
	CUDAExecutionProvider = "CUDAExecutionProvider"
)

// Options carries the raw fields used to build a Config. Zero values select
// the documented defaults where one exists.
type Options struct {
	BatchSize      int
	SequenceLength int
	NumHeads       int
	HeadSize       int
	Causal         bool

	// KVSequenceLength is the key/value sequence length. Zero defaults to
	// SequenceLength (self attention).
	KVSequenceLength int

	// PastSequenceLength is the number of cached key/value rows already
	// accumulated from previous decoding steps. Requires UseKVCache.
	PastSequenceLength int

	// MaxCacheSequenceLength is the capacity of the shared past/present ring
	// buffer. Only meaningful with SharePastPresentBuffer.
	MaxCacheSequenceLength int

	// SoftmaxScale multiplies the attention scores before softmax. Zero
	// defaults to 1/sqrt(HeadSize).
	SoftmaxScale float64

	UseKVCache             bool
	SharePastPresentBuffer bool
	Layout                 InputLayout

	// DType is the numeric precision the provider executes in. Zero defaults
	// to Float32.
	DType dtypes.DType

	// Provider, DeviceID and EnableCudaGraph describe the execution target.
	// They are passed through to the session builder unexamined, except that
	// the kernel classifier picks its rule table from Provider.
	Provider        string
	DeviceID        int
	EnableCudaGraph bool
}

// Config is an immutable description of one benchmark case: the operator
// dimensions, layout, cache mode and execution target, plus every derived
// quantity computed once by NewConfig.
//
// Construct only through NewConfig; the derived fields are never recomputed,
// so a hand-built Config is not guaranteed to be consistent.
type Config struct {
	Options

	// TotalSequenceLength is KVSequenceLength + PastSequenceLength: the
	// number of key/value rows each query attends over.
	TotalSequenceLength int

	// PastBufferLength and PresentBufferLength are the physical lengths of
	// the cache buffers. With SharePastPresentBuffer both equal
	// MaxCacheSequenceLength (one pre-allocated ring buffer reused across
	// steps); otherwise past holds exactly PastSequenceLength rows and
	// present grows to TotalSequenceLength.
	PastBufferLength    int
	PresentBufferLength int

	// IsPackedQKV / IsPackedKV cache the layout predicates used by shape
	// resolution and kernel classification.
	IsPackedQKV bool
	IsPackedKV  bool
}

// NewConfig validates opts, applies defaults, computes the derived fields and
// returns the immutable Config. Every violation of a cross-field invariant
// returns an error whose cause is ErrConfiguration.
func NewConfig(opts Options) (*Config, error) {
	if opts.BatchSize <= 0 || opts.SequenceLength <= 0 || opts.NumHeads <= 0 || opts.HeadSize <= 0 {
		return nil, errors.Wrapf(ErrConfiguration,
			"batch_size=%d, sequence_length=%d, num_heads=%d and head_size=%d must all be positive",
			opts.BatchSize, opts.SequenceLength, opts.NumHeads, opts.HeadSize)
	}
	if !opts.Layout.Valid() {
		return nil, errors.Wrapf(ErrConfiguration, "layout %d is not a defined InputLayout", opts.Layout)
	}
	if opts.PastSequenceLength < 0 {
		return nil, errors.Wrapf(ErrConfiguration, "past_sequence_length=%d cannot be negative", opts.PastSequenceLength)
	}

	if opts.KVSequenceLength == 0 {
		opts.KVSequenceLength = opts.SequenceLength
	}
	if opts.SoftmaxScale == 0 {
		opts.SoftmaxScale = 1.0 / math.Sqrt(float64(opts.HeadSize))
	}
	if opts.DType == dtypes.InvalidDType {
		opts.DType = dtypes.Float32
	}
	if opts.Provider == "" {
		opts.Provider = CPUExecutionProvider
	}

	if !opts.UseKVCache && opts.PastSequenceLength != 0 {
		return nil, errors.Wrapf(ErrConfiguration,
			"past_sequence_length=%d requires use_kv_cache", opts.PastSequenceLength)
	}
	if opts.UseKVCache && opts.KVSequenceLength != opts.SequenceLength {
		// Cache semantics assume one new token block per step; the stored
		// history covers the rest of the context via PastSequenceLength.
		return nil, errors.Wrapf(ErrConfiguration,
			"use_kv_cache requires kv_sequence_length (%d) == sequence_length (%d)",
			opts.KVSequenceLength, opts.SequenceLength)
	}
	if opts.Layout == CrossAttentionSeparate && opts.UseKVCache {
		return nil, errors.Wrapf(ErrConfiguration,
			"cross attention (layout %s) does not have past state, use_kv_cache must be false", opts.Layout)
	}
	if opts.SharePastPresentBuffer {
		if opts.MaxCacheSequenceLength <= 0 {
			return nil, errors.Wrapf(ErrConfiguration,
				"share_past_present_buffer requires a positive max_cache_sequence_length, got %d",
				opts.MaxCacheSequenceLength)
		}
		if total := opts.KVSequenceLength + opts.PastSequenceLength; opts.MaxCacheSequenceLength < total {
			return nil, errors.Wrapf(ErrConfiguration,
				"max_cache_sequence_length=%d is smaller than the total sequence length %d",
				opts.MaxCacheSequenceLength, total)
		}
	}

	cfg := &Config{Options: opts}
	cfg.TotalSequenceLength = opts.KVSequenceLength + opts.PastSequenceLength
	if opts.SharePastPresentBuffer {
		cfg.PastBufferLength = opts.MaxCacheSequenceLength
		cfg.PresentBufferLength = opts.MaxCacheSequenceLength
	} else {
		cfg.PastBufferLength = opts.PastSequenceLength
		cfg.PresentBufferLength = cfg.TotalSequenceLength
	}
	cfg.IsPackedQKV = opts.Layout == PackedQKV
	cfg.IsPackedKV = opts.Layout == PackedKV
	return cfg, nil
}

// UseGPU reports whether the execution target is the GPU-class provider.
func (c *Config) UseGPU() bool { return c.Provider == CUDAExecutionProvider }

// String implements fmt.Stringer with a compact one-line summary.
func (c *Config) String() string {
	return fmt.Sprintf(
		"MHA(layout=%s, b=%d, s=%d, kv_s=%d, past=%d, heads=%d, head_size=%d, causal=%v, cache=%v, %s, %s)",
		c.Layout, c.BatchSize, c.SequenceLength, c.KVSequenceLength, c.PastSequenceLength,
		c.NumHeads, c.HeadSize, c.Causal, c.UseKVCache, c.DType, c.Provider)
}
