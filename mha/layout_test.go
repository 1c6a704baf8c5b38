// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mha

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLayoutNames(t *testing.T) {
	require.Equal(t, []string{"Q,K,V", "QKV", "Q,KV", "Q,K',V'"}, LayoutNames())
	require.Equal(t, "QKV", PackedQKV.String())
	require.Equal(t, "Q,K',V'", CrossAttentionSeparate.String())
	require.Equal(t, "InvalidLayout", InputLayout(99).String())
}

func TestLayoutRoundTrip(t *testing.T) {
	for _, layout := range Layouts() {
		got, err := LayoutFromName(layout.String())
		require.NoError(t, err)
		require.Equal(t, layout, got)
	}
	_, err := LayoutFromName("BSNH")
	require.Error(t, err)
	_, err = LayoutFromName("")
	require.Error(t, err)
}
