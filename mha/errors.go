// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mha

import (
	"github.com/pkg/errors"
)

// ErrConfiguration is the cause of every error returned by NewConfig when a
// cross-field invariant is violated. Configuration errors are fatal for the
// case being built: there is no valid benchmark to run, so they are never
// retried.
var ErrConfiguration = errors.New("invalid MultiHeadAttention configuration")

// ErrUnsupportedCombination is the cause of errors returned when a requested
// layout/cache/role combination has no defined shape or binding -- today only
// KV caching together with the cross-attention layout.
var ErrUnsupportedCombination = errors.New("unsupported layout/cache combination")
