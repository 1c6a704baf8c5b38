// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mha

import (
	"math/rand/v2"

	"github.com/gomlx/mhabench/types/shapes"
	"github.com/gomlx/mhabench/types/tensors"
	"github.com/pkg/errors"
)

// Tensor role names. They are the keys of the shape dictionary and of the
// feeds exchanged with a session, and the binding names the session builder
// uses when constructing the operator graph.
const (
	RoleQuery        = "query"
	RoleKey          = "key"
	RoleValue        = "value"
	RoleOutput       = "output"
	RolePastKey      = "past_key"
	RolePastValue    = "past_value"
	RolePresentKey   = "present_key"
	RolePresentValue = "present_value"
)

// ShapeDict returns the shape of every tensor the configuration requires,
// keyed by role name.
//
// The query/key/value entries follow the layout's packing rule; "output" is
// always [B, S, N*H]; the past/present cache entries are present only with
// UseKVCache, shaped [B, N, bufferLength, H] with the derived past/present
// buffer lengths.
//
// The only failure is requesting the cache together with the cross-attention
// layout (cause ErrUnsupportedCombination); NewConfig already rejects that
// combination, so this guards direct misuse only.
func (c *Config) ShapeDict() (map[string]shapes.Shape, error) {
	b, s, n, h := c.BatchSize, c.SequenceLength, c.NumHeads, c.HeadSize
	dict := map[string]shapes.Shape{
		RoleOutput: shapes.Make(c.DType, b, s, n*h),
	}

	switch c.Layout {
	case SeparateQKV:
		dict[RoleQuery] = shapes.Make(c.DType, b, s, n*h)
		dict[RoleKey] = shapes.Make(c.DType, b, s, n*h)
		dict[RoleValue] = shapes.Make(c.DType, b, s, n*h)
	case PackedQKV:
		dict[RoleQuery] = shapes.Make(c.DType, b, s, n, 3, h)
	case PackedKV:
		dict[RoleQuery] = shapes.Make(c.DType, b, s, n*h)
		dict[RoleKey] = shapes.Make(c.DType, b, s, n, 2, h)
	case CrossAttentionSeparate:
		dict[RoleQuery] = shapes.Make(c.DType, b, s, n*h)
		dict[RoleKey] = shapes.Make(c.DType, b, n, s, h)
		dict[RoleValue] = shapes.Make(c.DType, b, n, s, h)
	default:
		return nil, errors.Errorf("layout %d is not a defined InputLayout", c.Layout)
	}

	if c.UseKVCache {
		if c.Layout == CrossAttentionSeparate {
			return nil, errors.Wrap(ErrUnsupportedCombination, "cross attention shall not have past state")
		}
		dict[RolePastKey] = shapes.Make(c.DType, b, n, c.PastBufferLength, h)
		dict[RolePastValue] = shapes.Make(c.DType, b, n, c.PastBufferLength, h)
		dict[RolePresentKey] = shapes.Make(c.DType, b, n, c.PresentBufferLength, h)
		dict[RolePresentValue] = shapes.Make(c.DType, b, n, c.PresentBufferLength, h)
	}
	return dict, nil
}

// IONames returns the ordered input and output role names the layout binds:
// the authoritative order for graph construction and buffer binding.
//
// PackedQKV collapses the inputs to a single "query"; PackedKV and cross
// attention bind "query"+"key"; SeparateQKV binds all three. With UseKVCache
// the past roles are appended to the inputs and the present roles to the
// outputs.
func (c *Config) IONames() (inputs, outputs []string) {
	switch c.Layout {
	case PackedQKV:
		inputs = []string{RoleQuery}
	case PackedKV, CrossAttentionSeparate:
		inputs = []string{RoleQuery, RoleKey}
	default:
		inputs = []string{RoleQuery, RoleKey, RoleValue}
	}
	outputs = []string{RoleOutput}

	if c.UseKVCache {
		inputs = append(inputs, RolePastKey, RolePastValue)
		outputs = append(outputs, RolePresentKey, RolePresentValue)
	}
	return
}

// RandomInputs synthesizes the input feeds for the configuration: independent
// zero-mean draws with standard deviation 0.1, packed into the physical
// arrangement the layout requires.
//
// The logical query/key/value are drawn at [B, S, N, H] and then re-packed:
// PackedQKV interleaves q/k/v per (batch*seq, head) group along a new
// length-3 axis, PackedKV does the same for k/v with the query left plain,
// CrossAttentionSeparate transposes key/value to [B, N, S, H], and
// SeparateQKV reshapes all three to [B, S, N*H]. With UseKVCache the past
// key/value buffers are drawn at their derived shapes.
//
// A seed > 0 makes the result reproducible bit-for-bit; a seed <= 0 requests
// non-reproducible randomness (it is a sentinel, not an error).
func (c *Config) RandomInputs(seed int64) (map[string]*tensors.Tensor, error) {
	shapeDict, err := c.ShapeDict()
	if err != nil {
		return nil, err
	}

	var rng *rand.Rand
	if seed > 0 {
		rng = rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	}

	const stddev = 0.1
	b, s, n, h := c.BatchSize, c.SequenceLength, c.NumHeads, c.HeadSize
	logical := shapes.Make(c.DType, b, s, n, h)
	q := tensors.FromShape(logical)
	k := tensors.FromShape(logical)
	v := tensors.FromShape(logical)
	q.FillNormal(rng, stddev)
	k.FillNormal(rng, stddev)
	v.FillNormal(rng, stddev)

	feeds := make(map[string]*tensors.Tensor)
	switch c.Layout {
	case SeparateQKV:
		feeds[RoleQuery] = q.Reshape(shapeDict[RoleQuery])
		feeds[RoleKey] = k.Reshape(shapeDict[RoleKey])
		feeds[RoleValue] = v.Reshape(shapeDict[RoleValue])
	case PackedQKV:
		feeds[RoleQuery] = interleave(shapeDict[RoleQuery], b*s, n, h, q, k, v)
	case PackedKV:
		feeds[RoleQuery] = q.Reshape(shapeDict[RoleQuery])
		feeds[RoleKey] = interleave(shapeDict[RoleKey], b*s, n, h, k, v)
	case CrossAttentionSeparate:
		feeds[RoleQuery] = q.Reshape(shapeDict[RoleQuery])
		feeds[RoleKey] = transposeToBNSH(k, shapeDict[RoleKey])
		feeds[RoleValue] = transposeToBNSH(v, shapeDict[RoleValue])
	}

	if c.UseKVCache {
		pastKey := tensors.FromShape(shapeDict[RolePastKey])
		pastValue := tensors.FromShape(shapeDict[RolePastValue])
		pastKey.FillNormal(rng, stddev)
		pastValue.FillNormal(rng, stddev)
		feeds[RolePastKey] = pastKey
		feeds[RolePastValue] = pastValue
	}
	return feeds, nil
}

// interleave stacks the sources along a new axis after flattening batch and
// sequence together: source element (g, head, :) lands at
// (g, head, sourceIdx, :) of the packed tensor, for g in [0, groups).
func interleave(packed shapes.Shape, groups, numHeads, headSize int, sources ...*tensors.Tensor) *tensors.Tensor {
	out := tensors.FromShape(packed)
	flat := out.Flat()
	stride := len(sources) * headSize
	for g := 0; g < groups; g++ {
		for head := 0; head < numHeads; head++ {
			base := (g*numHeads + head) * stride
			srcBase := (g*numHeads + head) * headSize
			for si, src := range sources {
				copy(flat[base+si*headSize:base+(si+1)*headSize], src.Flat()[srcBase:srcBase+headSize])
			}
		}
	}
	return out
}

// transposeToBNSH converts a [B, S, N, H] tensor to [B, N, S, H].
func transposeToBNSH(bsnh *tensors.Tensor, target shapes.Shape) *tensors.Tensor {
	b := bsnh.Shape().Dim(0)
	s := bsnh.Shape().Dim(1)
	n := bsnh.Shape().Dim(2)
	h := bsnh.Shape().Dim(3)
	out := tensors.FromShape(target)
	src, dst := bsnh.Flat(), out.Flat()
	for bi := 0; bi < b; bi++ {
		for si := 0; si < s; si++ {
			for ni := 0; ni < n; ni++ {
				from := ((bi*s+si)*n + ni) * h
				to := ((bi*n+ni)*s + si) * h
				copy(dst[to:to+h], src[from:from+h])
			}
		}
	}
	return out
}
