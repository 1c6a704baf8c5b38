// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package session defines the boundary to the collaborator that actually
// executes the MultiHeadAttention operator, and provides a local CPU
// implementation of it.
//
// The benchmark core never depends on a concrete engine: it builds a Session
// through a Builder, binds buffers for the shapes the configuration derived,
// and times Infer calls. A session's lifetime is scoped to one configuration
// and it must be closed before the next case starts, so consecutive cases
// never overlap resource usage.
package session

import (
	"github.com/gomlx/mhabench/mha"
	"github.com/gomlx/mhabench/types/shapes"
	"github.com/gomlx/mhabench/types/tensors"
)

// Feeds maps tensor role names (see the mha role constants) to tensors.
type Feeds = map[string]*tensors.Tensor

// Session is an opaque handle to a built attention operator, ready to run.
type Session interface {
	// AllocateBuffers prepares the session's buffers for the given shape
	// dictionary. Must be called once before the first Infer.
	AllocateBuffers(shapeDict map[string]shapes.Shape) error

	// Infer runs the operator once on the given input feeds and returns the
	// output feeds (at least "output"; with KV caching also "present_key"
	// and "present_value").
	Infer(feeds Feeds) (Feeds, error)

	// Close releases the session's resources. The session is unusable
	// afterwards.
	Close() error
}

// Options carries session-level knobs that are not part of the attention
// configuration itself.
type Options struct {
	// IntraOpNumThreads hints how many threads the engine may use inside one
	// operator invocation. 0 means the engine's default (all cores).
	IntraOpNumThreads int
}

// Builder constructs a Session for one configuration. Implementations are
// expected to derive the graph's input/output bindings from cfg.IONames and
// cfg.ShapeDict.
type Builder func(cfg *mha.Config, opts Options) (Session, error)
