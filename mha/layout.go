// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package mha models the configuration space of the MultiHeadAttention
// operator: the supported input layouts, the per-case configuration with its
// derived cache geometry, the tensor shapes and input/output bindings each
// layout requires, randomized input synthesis, and the prediction of which
// kernel the runtime dispatches a given configuration to.
package mha

import (
	"github.com/pkg/errors"
)

// InputLayout enumerates the physical arrangements of the query, key and
// value inputs accepted by the operator.
//
// The display names follow the runtime's benchmark convention: B=batch,
// S=sequence, N=heads, H=head size, and a prime marks a pre-transposed
// (BNSH) tensor.
type InputLayout uint8

const (
	// SeparateQKV: distinct query, key and value tensors, each [B, S, N*H].
	SeparateQKV InputLayout = iota

	// PackedQKV: a single tensor packing query, key and value along a new
	// length-3 axis, [B, S, N, 3, H].
	PackedQKV

	// PackedKV: separate query [B, S, N*H]; key and value packed along a new
	// length-2 axis into one tensor [B, S, N, 2, H].
	PackedKV

	// CrossAttentionSeparate: query [B, S, N*H] with key and value already
	// transposed to [B, N, S, H]. Used for cross attention, where key/value
	// come from a different sequence; KV caching is not defined for it.
	CrossAttentionSeparate

	numLayouts
)

var layoutNames = [numLayouts]string{"Q,K,V", "QKV", "Q,KV", "Q,K',V'"}

// String returns the layout's canonical display name.
func (l InputLayout) String() string {
	if l >= numLayouts {
		return "InvalidLayout"
	}
	return layoutNames[l]
}

// Valid reports whether l is one of the defined layouts.
func (l InputLayout) Valid() bool { return l < numLayouts }

// Layouts returns all defined layouts, in declaration order.
func Layouts() []InputLayout {
	return []InputLayout{SeparateQKV, PackedQKV, PackedKV, CrossAttentionSeparate}
}

// LayoutNames returns the display names of all layouts, aligned with
// Layouts().
func LayoutNames() []string {
	return layoutNames[:]
}

// LayoutFromName is the inverse of InputLayout.String: it maps a display name
// back to its layout. It fails on anything but the 4 canonical names.
func LayoutFromName(name string) (InputLayout, error) {
	for l, n := range layoutNames {
		if n == name {
			return InputLayout(l), nil
		}
	}
	return numLayouts, errors.Errorf("unknown input layout %q, valid names are %v", name, layoutNames)
}
