// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors implements the host-side tensors fed to and returned from
// the attention sessions being benchmarked.
//
// A Tensor pairs a shapes.Shape with a flat row-major float32 buffer. The
// shape's DType records the precision the execution provider is expected to
// use; the host buffer is always float32, and Float16 converts it (via
// github.com/x448/float16) for providers that consume half precision.
package tensors

import (
	"math/rand/v2"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/mhabench/types/shapes"
	"github.com/x448/float16"
)

// Tensor is a dense host tensor: a shape plus its flat row-major data.
type Tensor struct {
	shape shapes.Shape
	flat  []float32
}

// FromShape returns a zero-initialized tensor of the given shape.
func FromShape(shape shapes.Shape) *Tensor {
	if !shape.Ok() {
		exceptions.Panicf("tensors.FromShape: invalid shape %s", shape)
	}
	return &Tensor{shape: shape, flat: make([]float32, shape.Size())}
}

// FromFlat wraps an existing flat buffer with the given shape. The buffer is
// not copied; len(flat) must match shape.Size().
func FromFlat(flat []float32, shape shapes.Shape) *Tensor {
	if len(flat) != shape.Size() {
		exceptions.Panicf("tensors.FromFlat: buffer has %d elements, shape %s requires %d",
			len(flat), shape, shape.Size())
	}
	return &Tensor{shape: shape, flat: flat}
}

// Shape of the tensor. It implements shapes.HasShape.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// Flat returns the underlying row-major data. Mutations are visible to every
// holder of the tensor.
func (t *Tensor) Flat() []float32 { return t.flat }

// Size returns the number of elements.
func (t *Tensor) Size() int { return len(t.flat) }

// FillNormal fills the tensor with independent draws from a zero-mean normal
// distribution with the given standard deviation. If rng is nil an
// unseeded (non-reproducible) source is used.
func (t *Tensor) FillNormal(rng *rand.Rand, stddev float64) {
	if rng == nil {
		for i := range t.flat {
			t.flat[i] = float32(rand.NormFloat64() * stddev)
		}
		return
	}
	for i := range t.flat {
		t.flat[i] = float32(rng.NormFloat64() * stddev)
	}
}

// Float16 returns a freshly converted half-precision copy of the data.
func (t *Tensor) Float16() []float16.Float16 {
	halves := make([]float16.Float16, len(t.flat))
	for i, v := range t.flat {
		halves[i] = float16.Fromfloat32(v)
	}
	return halves
}

// Reshape returns a tensor sharing this tensor's data with a new shape of the
// same total size. The dtype is carried over from the new shape.
func (t *Tensor) Reshape(shape shapes.Shape) *Tensor {
	if shape.Size() != len(t.flat) {
		exceptions.Panicf("Tensor.Reshape: cannot reshape %s to %s, sizes differ", t.shape, shape)
	}
	return &Tensor{shape: shape, flat: t.flat}
}

// Equal reports whether two tensors have equal shapes and bit-identical data.
func (t *Tensor) Equal(o *Tensor) bool {
	if !t.shape.Equal(o.shape) {
		return false
	}
	for i, v := range t.flat {
		if o.flat[i] != v {
			return false
		}
	}
	return true
}
