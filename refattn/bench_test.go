// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package refattn

import (
	"math/rand/v2"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/mhabench/types/shapes"
	"github.com/gomlx/mhabench/types/tensors"
)

func benchmarkSDPA(b *testing.B, seqLen int, causal bool) {
	shape := shapes.Make(dtypes.Float32, 1, 12, seqLen, 64)
	rng := rand.New(rand.NewPCG(123, 123))
	q := tensors.FromShape(shape)
	k := tensors.FromShape(shape)
	v := tensors.FromShape(shape)
	q.FillNormal(rng, 0.1)
	k.FillNormal(rng, 0.1)
	v.FillNormal(rng, 0.1)
	scale := 1.0 / 8

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := SDPA(q, k, v, nil, causal, scale); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSDPA128(b *testing.B)       { benchmarkSDPA(b, 128, false) }
func BenchmarkSDPA512(b *testing.B)       { benchmarkSDPA(b, 512, false) }
func BenchmarkSDPA512Causal(b *testing.B) { benchmarkSDPA(b, 512, true) }
