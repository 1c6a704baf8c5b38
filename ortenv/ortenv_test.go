// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ortenv

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	ov := Defaults()
	require.False(t, ov.DisableFlashAttention)
	require.False(t, ov.DisableMemoryEfficientAttention)
	require.Equal(t, 513, ov.MinSeqLenFlashPackedQKV)
}

func TestFromEnvironment(t *testing.T) {
	t.Setenv(DisableFlashAttention, "1")
	t.Setenv(DisableFusedAttention, "0") // Only "1" counts as set.
	t.Setenv(MinSeqLenFlashAttentionPacked, "1024")

	ov := FromEnvironment()
	require.True(t, ov.DisableFlashAttention)
	require.False(t, ov.DisableFusedAttention)
	require.Equal(t, 1024, ov.MinSeqLenFlashPackedQKV)
}

func TestFromEnvironmentBadThreshold(t *testing.T) {
	t.Setenv(MinSeqLenFlashAttentionPacked, "not-a-number")
	ov := FromEnvironment()
	require.Equal(t, DefaultMinSeqLenFlashPackedQKV, ov.MinSeqLenFlashPackedQKV)
}

func TestSnapshot(t *testing.T) {
	for _, name := range Names {
		// t.Setenv registers the restore; unsetting afterwards makes the
		// snapshot predictable regardless of the caller's environment.
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
	require.Empty(t, Snapshot())

	t.Setenv(DisableFlashAttention, "1")
	t.Setenv(DisableMemoryEfficientAttention, "1")
	require.Equal(t,
		"ORT_DISABLE_FLASH_ATTENTION=1,ORT_DISABLE_MEMORY_EFFICIENT_ATTENTION=1",
		Snapshot())
}
