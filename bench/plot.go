// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package bench

import (
	"io"

	mg "github.com/erkkah/margaid"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/mhabench/mha"
	"github.com/gomlx/mhabench/ortenv"
	"github.com/gomlx/mhabench/session"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// PlotOptions parameterizes a prompt-length sweep plot: causal attention at
// fixed batch/head dimensions, swept over power-of-two sequence lengths, one
// latency curve per self-attention layout.
type PlotOptions struct {
	ModelName string
	BatchSize int
	NumHeads  int
	HeadSize  int

	// MaxSeqLen bounds the sweep; lengths are 64, 128, ... up to it.
	MaxSeqLen int

	UseGPU     bool
	WarmupRuns int
	Repeats    int
	Seed       int64

	Builder   session.Builder
	Overrides ortenv.Overrides

	// Width and Height of the SVG, in pixels. Zero picks 1024x400.
	Width, Height int
}

// PlotPromptLatency measures the prompt-length sweep and renders an SVG line
// chart (one series per layout, log-log axes) to w.
//
// The cross-attention layout is excluded: its fused kernels are not stable
// across the full sweep range.
func PlotPromptLatency(w io.Writer, opts PlotOptions) error {
	if opts.Builder == nil {
		return errors.New("PlotPromptLatency requires a session builder")
	}
	width, height := opts.Width, opts.Height
	if width == 0 {
		width = 1024
	}
	if height == 0 {
		height = 400
	}

	layouts := []mha.InputLayout{mha.SeparateQKV, mha.PackedQKV, mha.PackedKV}
	allSeries := make([]*mg.Series, 0, len(layouts))
	for _, layout := range layouts {
		series := mg.NewSeries(mg.Titled("ORT-MHA:" + layout.String()))
		for seqLen := 64; seqLen <= opts.MaxSeqLen; seqLen *= 2 {
			latency, err := opts.measurePoint(layout, seqLen)
			if err != nil {
				klog.Errorf("Prompt sweep point (%s, seq=%d) failed, leaving it out: %+v", layout, seqLen, err)
				continue
			}
			series.Add(mg.MakeValue(float64(seqLen), latency*1e3)) // Milliseconds.
		}
		allSeries = append(allSeries, series)
	}

	diagram := mg.New(width, height,
		mg.WithAutorange(mg.XAxis, allSeries...),
		mg.WithProjection(mg.XAxis, mg.Log),
		mg.WithAutorange(mg.YAxis, allSeries...),
		mg.WithProjection(mg.YAxis, mg.Log),
		mg.WithInset(70),
		mg.WithPadding(2),
		mg.WithColorScheme(90),
	)
	for _, series := range allSeries {
		diagram.Line(series, mg.UsingAxes(mg.XAxis, mg.YAxis), mg.UsingMarker("square"), mg.UsingStrokeWidth(2))
	}
	if len(allSeries) > 0 {
		diagram.Axis(allSeries[0], mg.XAxis, diagram.ValueTicker('f', 0, 10), false, "sequence length")
		diagram.Axis(allSeries[0], mg.YAxis, diagram.ValueTicker('f', 3, 10), true, "ms")
	}
	diagram.Frame()
	diagram.Title("prompt-" + opts.ModelName)
	diagram.Legend(mg.BottomLeft)
	return errors.Wrap(diagram.Render(w), "failed to render prompt sweep plot")
}

// measurePoint measures the mean latency, in seconds, of one sweep point.
func (o PlotOptions) measurePoint(layout mha.InputLayout, seqLen int) (float64, error) {
	provider := mha.CPUExecutionProvider
	dtype := dtypes.Float32
	if o.UseGPU {
		provider = mha.CUDAExecutionProvider
		dtype = dtypes.Float16
	}
	cfg, err := mha.NewConfig(mha.Options{
		BatchSize:      o.BatchSize,
		SequenceLength: seqLen,
		NumHeads:       o.NumHeads,
		HeadSize:       o.HeadSize,
		Causal:         true,
		Layout:         layout,
		Provider:       provider,
		DType:          dtype,
	})
	if err != nil {
		return 0, err
	}
	feeds, err := cfg.RandomInputs(o.Seed)
	if err != nil {
		return 0, err
	}
	shapeDict, err := cfg.ShapeDict()
	if err != nil {
		return 0, err
	}
	sess, err := o.Builder(cfg, session.Options{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = sess.Close() }()
	if err := sess.AllocateBuffers(shapeDict); err != nil {
		return 0, err
	}
	mean, err := RunRepeated(func() error {
		_, inferErr := sess.Infer(feeds)
		return inferErr
	}, o.WarmupRuns, o.Repeats)
	if err != nil {
		return 0, err
	}
	return mean.Seconds(), nil
}
