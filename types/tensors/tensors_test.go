// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"math/rand/v2"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/mhabench/types/shapes"
	"github.com/stretchr/testify/require"
)

func TestFromShape(t *testing.T) {
	tensor := FromShape(shapes.Make(dtypes.Float32, 2, 3))
	require.Equal(t, 6, tensor.Size())
	for _, v := range tensor.Flat() {
		require.Zero(t, v)
	}
	require.Panics(t, func() { FromShape(shapes.Shape{}) })
}

func TestFromFlat(t *testing.T) {
	data := []float32{1, 2, 3, 4}
	tensor := FromFlat(data, shapes.Make(dtypes.Float32, 2, 2))
	require.Equal(t, data, tensor.Flat())
	require.Panics(t, func() { FromFlat(data, shapes.Make(dtypes.Float32, 3, 2)) })

	// FromFlat wraps, it does not copy.
	data[0] = 7
	require.Equal(t, float32(7), tensor.Flat()[0])
}

func TestFillNormalDeterminism(t *testing.T) {
	shape := shapes.Make(dtypes.Float32, 4, 8)
	a := FromShape(shape)
	b := FromShape(shape)
	a.FillNormal(rand.New(rand.NewPCG(42, 42)), 0.1)
	b.FillNormal(rand.New(rand.NewPCG(42, 42)), 0.1)
	require.True(t, a.Equal(b))

	c := FromShape(shape)
	c.FillNormal(rand.New(rand.NewPCG(43, 43)), 0.1)
	require.False(t, a.Equal(c))
}

func TestFloat16RoundTrip(t *testing.T) {
	tensor := FromFlat([]float32{0, 0.5, -1, 2}, shapes.Make(dtypes.Float16, 4))
	halves := tensor.Float16()
	require.Len(t, halves, 4)
	for i, h := range halves {
		require.Equal(t, tensor.Flat()[i], h.Float32())
	}
}

func TestReshape(t *testing.T) {
	tensor := FromShape(shapes.Make(dtypes.Float32, 2, 6))
	reshaped := tensor.Reshape(shapes.Make(dtypes.Float32, 3, 4))
	require.Equal(t, 12, reshaped.Size())
	reshaped.Flat()[0] = 1
	require.Equal(t, float32(1), tensor.Flat()[0]) // Shared storage.
	require.Panics(t, func() { tensor.Reshape(shapes.Make(dtypes.Float32, 5)) })
}
