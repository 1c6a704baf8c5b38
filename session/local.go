// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package session

import (
	"github.com/gomlx/mhabench/mha"
	"github.com/gomlx/mhabench/refattn"
	"github.com/gomlx/mhabench/types/shapes"
	"github.com/gomlx/mhabench/types/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// local executes the operator on the host through refattn.SDPA. It accepts
// every layout and cache mode the configuration model defines: packed inputs
// are unpacked, cross-attention key/value are consumed pre-transposed, and
// with KV caching the past buffers are concatenated with the new key/value
// block into the present buffers.
//
// It exists so the measurement contract can be exercised end to end without
// an inference engine; it is not a validated kernel and single-threaded on
// purpose (cases must not overlap resource usage).
type local struct {
	cfg       *mha.Config
	shapeDict map[string]shapes.Shape
	closed    bool
}

// NewLocal is a Builder returning the host implementation of the operator.
func NewLocal(cfg *mha.Config, opts Options) (Session, error) {
	if opts.IntraOpNumThreads > 1 {
		klog.V(1).Infof("Local session ignores intra_op_num_threads=%d, it always runs single-threaded",
			opts.IntraOpNumThreads)
	}
	return &local{cfg: cfg}, nil
}

func (s *local) AllocateBuffers(shapeDict map[string]shapes.Shape) error {
	want, err := s.cfg.ShapeDict()
	if err != nil {
		return err
	}
	for role, shape := range want {
		got, found := shapeDict[role]
		if !found {
			return errors.Errorf("AllocateBuffers: missing shape for %q", role)
		}
		if !got.Equal(shape) {
			return errors.Errorf("AllocateBuffers: %q has shape %s, configuration requires %s", role, got, shape)
		}
	}
	s.shapeDict = shapeDict
	return nil
}

func (s *local) Infer(feeds Feeds) (Feeds, error) {
	if s.closed {
		return nil, errors.New("Infer on a closed session")
	}
	if s.shapeDict == nil {
		return nil, errors.New("Infer before AllocateBuffers")
	}
	cfg := s.cfg

	query, key, value, err := s.logicalQKV(feeds)
	if err != nil {
		return nil, err
	}

	outputs := make(Feeds)
	if cfg.UseKVCache {
		key, value, err = s.appendCache(feeds, key, value, outputs)
		if err != nil {
			return nil, err
		}
	}

	attended, err := refattn.SDPA(query, key, value, nil, cfg.Causal, cfg.SoftmaxScale)
	if err != nil {
		return nil, errors.Wrap(err, "local attention failed")
	}
	outputs[mha.RoleOutput] = bnshToBSNH(attended).Reshape(s.shapeDict[mha.RoleOutput])
	return outputs, nil
}

func (s *local) Close() error {
	s.closed = true
	s.shapeDict = nil
	return nil
}

// logicalQKV extracts query/key/value as [B, N, S, H] from the layout's
// physical feeds.
func (s *local) logicalQKV(feeds Feeds) (query, key, value *tensors.Tensor, err error) {
	cfg := s.cfg
	b, n, h := cfg.BatchSize, cfg.NumHeads, cfg.HeadSize

	get := func(role string) *tensors.Tensor { return feeds[role] }
	for _, role := range requiredInputs(cfg) {
		if feeds[role] == nil {
			return nil, nil, nil, errors.Errorf("Infer: missing input %q for layout %s", role, cfg.Layout)
		}
	}

	switch cfg.Layout {
	case mha.SeparateQKV:
		query = bsnhToBNSH(get(mha.RoleQuery), b, cfg.SequenceLength, n, h)
		key = bsnhToBNSH(get(mha.RoleKey), b, cfg.SequenceLength, n, h)
		value = bsnhToBNSH(get(mha.RoleValue), b, cfg.SequenceLength, n, h)
	case mha.PackedQKV:
		query = unpack(get(mha.RoleQuery), b, cfg.SequenceLength, n, 3, h, 0)
		key = unpack(get(mha.RoleQuery), b, cfg.SequenceLength, n, 3, h, 1)
		value = unpack(get(mha.RoleQuery), b, cfg.SequenceLength, n, 3, h, 2)
	case mha.PackedKV:
		query = bsnhToBNSH(get(mha.RoleQuery), b, cfg.SequenceLength, n, h)
		key = unpack(get(mha.RoleKey), b, cfg.SequenceLength, n, 2, h, 0)
		value = unpack(get(mha.RoleKey), b, cfg.SequenceLength, n, 2, h, 1)
	case mha.CrossAttentionSeparate:
		// Key and value arrive pre-transposed to [B, N, S, H].
		query = bsnhToBNSH(get(mha.RoleQuery), b, cfg.SequenceLength, n, h)
		key = get(mha.RoleKey)
		value = get(mha.RoleValue)
	default:
		err = errors.Errorf("layout %d is not a defined InputLayout", cfg.Layout)
	}
	return
}

// appendCache concatenates the valid past rows with the new key/value block,
// writes the present buffers into outputs, and returns the effective
// key/value of [B, N, total, H] the attention runs over.
func (s *local) appendCache(feeds Feeds, key, value *tensors.Tensor, outputs Feeds) (effKey, effValue *tensors.Tensor, err error) {
	cfg := s.cfg
	pastKey, pastValue := feeds[mha.RolePastKey], feeds[mha.RolePastValue]
	if pastKey == nil || pastValue == nil {
		return nil, nil, errors.New("Infer: use_kv_cache requires past_key and past_value feeds")
	}

	effKey = concatSeq(pastKey, key, cfg)
	effValue = concatSeq(pastValue, value, cfg)

	outputs[mha.RolePresentKey] = presentFromEffective(effKey, s.shapeDict[mha.RolePresentKey])
	outputs[mha.RolePresentValue] = presentFromEffective(effValue, s.shapeDict[mha.RolePresentValue])
	return effKey, effValue, nil
}

// requiredInputs lists the feed roles Infer needs for the layout, without the
// cache roles (checked separately).
func requiredInputs(cfg *mha.Config) []string {
	switch cfg.Layout {
	case mha.PackedQKV:
		return []string{mha.RoleQuery}
	case mha.PackedKV, mha.CrossAttentionSeparate:
		return []string{mha.RoleQuery, mha.RoleKey}
	default:
		return []string{mha.RoleQuery, mha.RoleKey, mha.RoleValue}
	}
}

// bsnhToBNSH reinterprets a [B, S, N*H] (or [B, S, N, H]) tensor as
// [B, N, S, H].
func bsnhToBNSH(t *tensors.Tensor, b, s, n, h int) *tensors.Tensor {
	out := tensors.FromShape(shapes.Make(t.Shape().DType, b, n, s, h))
	src, dst := t.Flat(), out.Flat()
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

// bnshToBSNH is the inverse transposition.
func bnshToBSNH(t *tensors.Tensor) *tensors.Tensor {
	b, n, s, h := t.Shape().Dim(0), t.Shape().Dim(1), t.Shape().Dim(2), t.Shape().Dim(3)
	out := tensors.FromShape(shapes.Make(t.Shape().DType, b, s, n, h))
	src, dst := t.Flat(), out.Flat()
	for bi := 0; bi < b; bi++ {
		for ni := 0; ni < n; ni++ {
			for si := 0; si < s; si++ {
				from := ((bi*n+ni)*s + si) * h
				to := ((bi*s+si)*n + ni) * h
				copy(dst[to:to+h], src[from:from+h])
			}
		}
	}
	return out
}

// unpack extracts component `part` of a packed [B, S, N, parts, H] tensor as
// [B, N, S, H].
func unpack(packed *tensors.Tensor, b, s, n, parts, h, part int) *tensors.Tensor {
	out := tensors.FromShape(shapes.Make(packed.Shape().DType, b, n, s, h))
	src, dst := packed.Flat(), out.Flat()
	for bi := 0; bi < b; bi++ {
		for si := 0; si < s; si++ {
			for ni := 0; ni < n; ni++ {
				from := (((bi*s+si)*n+ni)*parts + part) * h
				to := ((bi*n+ni)*s + si) * h
				copy(dst[to:to+h], src[from:from+h])
			}
		}
	}
	return out
}

// concatSeq concatenates the first PastSequenceLength rows of the past buffer
// with the new [B, N, S, H] block along the sequence axis, yielding
// [B, N, total, H]. The past buffer may be longer than PastSequenceLength
// when the ring buffer is shared; the extra rows are ignored.
func concatSeq(past, block *tensors.Tensor, cfg *mha.Config) *tensors.Tensor {
	b, n, h := cfg.BatchSize, cfg.NumHeads, cfg.HeadSize
	pastLen, newLen, total := cfg.PastSequenceLength, cfg.KVSequenceLength, cfg.TotalSequenceLength
	pastBufLen := past.Shape().Dim(2)

	out := tensors.FromShape(shapes.Make(block.Shape().DType, b, n, total, h))
	src, blk, dst := past.Flat(), block.Flat(), out.Flat()
	for bi := 0; bi < b; bi++ {
		for ni := 0; ni < n; ni++ {
			dstBase := ((bi*n + ni) * total) * h
			pastBase := ((bi*n + ni) * pastBufLen) * h
			copy(dst[dstBase:dstBase+pastLen*h], src[pastBase:pastBase+pastLen*h])
			blkBase := ((bi*n + ni) * newLen) * h
			copy(dst[dstBase+pastLen*h:dstBase+total*h], blk[blkBase:blkBase+newLen*h])
		}
	}
	return out
}

// presentFromEffective writes the effective [B, N, total, H] key/value into a
// present buffer of the derived present length (>= total when the ring
// buffer is shared); rows past the total stay zero.
func presentFromEffective(eff *tensors.Tensor, presentShape shapes.Shape) *tensors.Tensor {
	b, n, total, h := eff.Shape().Dim(0), eff.Shape().Dim(1), eff.Shape().Dim(2), eff.Shape().Dim(3)
	presentLen := presentShape.Dim(2)
	out := tensors.FromShape(presentShape)
	src, dst := eff.Flat(), out.Flat()
	for bi := 0; bi < b; bi++ {
		for ni := 0; ni < n; ni++ {
			from := ((bi*n + ni) * total) * h
			to := ((bi*n + ni) * presentLen) * h
			copy(dst[to:to+total*h], src[from:from+total*h])
		}
	}
	return out
}
