// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package refattn implements a plain scaled-dot-product-attention routine on
// host tensors.
//
// It is the reference collaborator the benchmark compares the runtime
// against on the non-causal, non-cached, plain-layout, full-precision
// baseline, and the arithmetic core of the local execution session. It makes
// no attempt at being fast: a straightforward per-(batch, head) loop with a
// float64 softmax accumulator.
package refattn

import (
	"math"

	"github.com/gomlx/mhabench/types/shapes"
	"github.com/gomlx/mhabench/types/tensors"
	"github.com/pkg/errors"
)

// SDPA computes scaled-dot-product attention.
//
//   - query: [batch, heads, qSeqLen, headSize]
//   - key, value: [batch, heads, kvSeqLen, headSize]
//   - mask: optional additive mask of [qSeqLen, kvSeqLen], applied to the
//     scores before softmax; nil for no mask.
//   - causal: query position i attends only to key positions j with
//     j <= i + (kvSeqLen - qSeqLen), the usual convention when the key/value
//     sequence carries history ahead of the queries.
//   - scale: score multiplier, typically 1/sqrt(headSize).
//
// Returns the attention output shaped like the query.
func SDPA(query, key, value *tensors.Tensor, mask []float32, causal bool, scale float64) (*tensors.Tensor, error) {
	qShape, kShape, vShape := query.Shape(), key.Shape(), value.Shape()
	if qShape.Rank() != 4 || kShape.Rank() != 4 || vShape.Rank() != 4 {
		return nil, errors.Errorf("SDPA requires rank-4 [batch, heads, seq, headSize] tensors, got q=%s, k=%s, v=%s",
			qShape, kShape, vShape)
	}
	if !kShape.Equal(vShape) {
		return nil, errors.Errorf("SDPA requires key and value with identical shapes, got k=%s, v=%s", kShape, vShape)
	}
	batch, heads, qSeqLen, headSize := qShape.Dim(0), qShape.Dim(1), qShape.Dim(2), qShape.Dim(3)
	kvSeqLen := kShape.Dim(2)
	if kShape.Dim(0) != batch || kShape.Dim(1) != heads || kShape.Dim(3) != headSize {
		return nil, errors.Errorf("SDPA query %s and key %s disagree on batch/heads/headSize", qShape, kShape)
	}
	if mask != nil && len(mask) != qSeqLen*kvSeqLen {
		return nil, errors.Errorf("SDPA mask has %d elements, want qSeqLen*kvSeqLen=%d", len(mask), qSeqLen*kvSeqLen)
	}

	out := tensors.FromShape(shapes.Make(qShape.DType, batch, heads, qSeqLen, headSize))
	q, k, v, o := query.Flat(), key.Flat(), value.Flat(), out.Flat()
	causalOffset := kvSeqLen - qSeqLen

	scores := make([]float64, kvSeqLen)
	for b := 0; b < batch; b++ {
		for n := 0; n < heads; n++ {
			qBase := ((b*heads + n) * qSeqLen) * headSize
			kvBase := ((b*heads + n) * kvSeqLen) * headSize
			for i := 0; i < qSeqLen; i++ {
				qRow := q[qBase+i*headSize : qBase+(i+1)*headSize]
				limit := kvSeqLen
				if causal {
					limit = min(kvSeqLen, i+causalOffset+1)
				}

				maxScore := math.Inf(-1)
				for j := 0; j < limit; j++ {
					kRow := k[kvBase+j*headSize : kvBase+(j+1)*headSize]
					var dot float64
					for d := 0; d < headSize; d++ {
						dot += float64(qRow[d]) * float64(kRow[d])
					}
					s := dot * scale
					if mask != nil {
						s += float64(mask[i*kvSeqLen+j])
					}
					scores[j] = s
					if s > maxScore {
						maxScore = s
					}
				}

				var denom float64
				for j := 0; j < limit; j++ {
					scores[j] = math.Exp(scores[j] - maxScore)
					denom += scores[j]
				}

				oRow := o[qBase+i*headSize : qBase+(i+1)*headSize]
				for j := 0; j < limit; j++ {
					w := float32(scores[j] / denom)
					vRow := v[kvBase+j*headSize : kvBase+(j+1)*headSize]
					for d := 0; d < headSize; d++ {
						oRow[d] += w * vRow[d]
					}
				}
			}
		}
	}
	return out, nil
}
