// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package bench

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/mhabench/mha"
	"github.com/gomlx/mhabench/ortenv"
	"github.com/gomlx/mhabench/refattn"
	"github.com/gomlx/mhabench/session"
	"github.com/gomlx/mhabench/types/shapes"
	"github.com/gomlx/mhabench/types/tensors"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// CaseSpec is one row of the hardware-representative configuration tables:
// the operator dimensions plus whether the case may run on the unfused
// kernel (large cases are excluded to avoid exhausting device memory).
type CaseSpec struct {
	BatchSize          int
	SequenceLength     int
	PastSequenceLength int
	NumHeads           int
	HeadSize           int
	RunUnfused         bool
}

// GPUCases returns the GPU sweep table: large-context LLM shapes, stable
// diffusion, bert-base and TNLGv4.
func GPUCases() []CaseSpec {
	return []CaseSpec{
		{32, 512, 0, 64, 32, true},
		{32, 512, 0, 128, 16, true},
		{16, 1024, 0, 64, 32, true},
		{16, 1024, 0, 128, 16, true},
		{8, 2048, 0, 64, 32, true},
		{8, 2048, 0, 128, 16, false},
		{4, 4096, 0, 64, 32, false},
		{4, 4096, 0, 128, 16, false},
		{2, 8192, 0, 64, 32, false},
		{2, 8192, 0, 128, 16, false},
		{1, 16384, 0, 64, 32, false},
		{1, 16384, 0, 128, 16, false},
		// Stable diffusion.
		{1, 4096, 0, 8, 40, false},
		{1, 4096, 0, 8, 80, false},
		{1, 4096, 0, 8, 160, false},
		{4, 4096, 0, 8, 40, false},
		{4, 4096, 0, 8, 80, false},
		{4, 4096, 0, 8, 160, false},
		{1, 16384, 0, 8, 40, false},
		{1, 16384, 0, 8, 80, false},
		{1, 16384, 0, 8, 160, false},
		// Bert-base.
		{128, 128, 0, 12, 64, true},
		{64, 128, 0, 12, 64, true},
		{128, 384, 0, 12, 64, true},
		{64, 384, 0, 12, 64, true},
		{128, 512, 0, 12, 64, true},
		{64, 512, 0, 12, 64, true},
		// TNLGv4.
		{4, 2048, 0, 32, 128, true},
		{4, 4096, 0, 32, 128, false},
		{8, 2048, 0, 32, 128, false},
		{8, 4096, 0, 32, 128, false},
	}
}

// CPUCases returns the CPU sweep table: TNLGv4, bert-base and bert-large.
func CPUCases() []CaseSpec {
	return []CaseSpec{
		// TNLGv4.
		{1, 128, 0, 32, 128, true},
		{1, 256, 0, 32, 128, true},
		{1, 512, 0, 32, 128, true},
		{1, 1024, 0, 32, 128, true},
		{1, 2048, 0, 32, 128, true},
		// Bert-base.
		{1, 128, 0, 12, 64, true},
		{1, 384, 0, 12, 64, true},
		{1, 512, 0, 12, 64, true},
		{4, 128, 0, 12, 64, true},
		{4, 384, 0, 12, 64, true},
		{4, 512, 0, 12, 64, true},
		// Bert-large.
		{1, 128, 0, 16, 64, true},
		{1, 384, 0, 16, 64, true},
		{1, 512, 0, 16, 64, true},
		{4, 128, 0, 16, 64, true},
		{4, 384, 0, 16, 64, true},
		{4, 512, 0, 16, 64, true},
	}
}

// SweepOptions parameterizes one sweep: one (causal, cache, threads) slice of
// the full benchmark run.
type SweepOptions struct {
	UseGPU          bool
	EnableCudaGraph bool
	Causal          bool
	UseKVCache      bool

	// IntraOpNumThreads is forwarded to the session builder and reported in
	// every record. 0 means the engine default.
	IntraOpNumThreads int

	// WarmupRuns and Repeats control the measurement loop. Repeats must be
	// >= 1.
	WarmupRuns int
	Repeats    int

	// Seed for input synthesis; <= 0 requests non-reproducible inputs.
	Seed int64

	// Builder constructs the session for each case. Required.
	Builder session.Builder

	// Cases overrides the built-in per-target table when non-nil.
	Cases []CaseSpec

	// Overrides is the kernel-override set the classifier evaluates under;
	// EnvSnapshot is its textual form recorded in every row.
	Overrides   ortenv.Overrides
	EnvSnapshot string

	// RefBaseline adds a native SDPA baseline row for plain-layout,
	// non-cached CPU cases measured with default threading.
	RefBaseline bool

	// Progress displays a progress bar on stderr.
	Progress bool
}

// Layouts returns the layouts this sweep enumerates: the GPU target sweeps
// the self-attention layouts, the CPU target only the plain one. The
// cross-attention layout is exercised by the prompt-sweep plot, not by the
// throughput table.
func (o SweepOptions) Layouts() []mha.InputLayout {
	if o.UseGPU {
		return []mha.InputLayout{mha.SeparateQKV, mha.PackedKV, mha.PackedQKV}
	}
	return []mha.InputLayout{mha.SeparateQKV}
}

func (o SweepOptions) provider() string {
	if o.UseGPU {
		return mha.CUDAExecutionProvider
	}
	return mha.CPUExecutionProvider
}

func (o SweepOptions) dtype() dtypes.DType {
	if o.UseGPU {
		return dtypes.Float16
	}
	return dtypes.Float32
}

func (o SweepOptions) cases() []CaseSpec {
	if o.Cases != nil {
		return o.Cases
	}
	if o.UseGPU {
		return GPUCases()
	}
	return CPUCases()
}

// RunSweep enumerates layouts × cases, measures each one through the session
// builder, appends a record per completed case to sink (when non-nil) and
// returns all records.
//
// A case whose session fails to build or to infer is a measurement failure:
// it is logged and skipped, and the sweep continues with the next case.
// Configuration errors from the tables themselves abort the sweep.
func RunSweep(opts SweepOptions, sink *CSVSink) ([]Record, error) {
	if opts.Builder == nil {
		return nil, errors.New("RunSweep requires a session builder")
	}
	layouts := opts.Layouts()
	cases := opts.cases()

	var bar *progressbar.ProgressBar
	if opts.Progress {
		bar = progressbar.NewOptions(len(layouts)*len(cases),
			progressbar.OptionSetDescription("sweep"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)
	}

	var records []Record
	for _, layout := range layouts {
		for _, spec := range cases {
			if bar != nil {
				_ = bar.Add(1)
			}
			record, skipped, err := opts.runCase(layout, spec)
			if err != nil {
				if errors.Is(err, mha.ErrConfiguration) || errors.Is(err, mha.ErrUnsupportedCombination) {
					return records, err
				}
				klog.Errorf("Case %s/%v failed, continuing with the next one: %+v", layout, spec, err)
				continue
			}
			if skipped {
				continue
			}
			records = append(records, record)
			if sink != nil {
				if err := sink.Append(record); err != nil {
					return records, err
				}
			}

			if opts.refBaselineApplies(layout) {
				baseline, err := opts.runRefBaseline(spec)
				if err != nil {
					klog.Errorf("Reference baseline for %v failed: %+v", spec, err)
					continue
				}
				records = append(records, baseline)
				if sink != nil {
					if err := sink.Append(baseline); err != nil {
						return records, err
					}
				}
			}
		}
	}
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	return records, nil
}

// runCase builds, measures and records a single (layout, spec) case.
// skipped=true means the case was filtered by the unfused skip policy.
func (o SweepOptions) runCase(layout mha.InputLayout, spec CaseSpec) (record Record, skipped bool, err error) {
	cfg, err := mha.NewConfig(mha.Options{
		BatchSize:          spec.BatchSize,
		SequenceLength:     spec.SequenceLength,
		NumHeads:           spec.NumHeads,
		HeadSize:           spec.HeadSize,
		Causal:             o.Causal,
		UseKVCache:         o.UseKVCache,
		PastSequenceLength: spec.PastSequenceLength,
		Layout:             layout,
		DType:              o.dtype(),
		Provider:           o.provider(),
		EnableCudaGraph:    o.EnableCudaGraph,
	})
	if err != nil {
		return record, false, err
	}

	kernel := mha.ExpectedKernel(cfg, o.Overrides)
	if kernel == mha.KernelUnfused {
		// The unfused kernel exhausts memory on the big cases and is not
		// defined for packed layouts; only allow-listed plain cases run it.
		if !spec.RunUnfused || layout != mha.SeparateQKV {
			klog.V(1).Infof("Skipping %s on the unfused kernel", cfg)
			return record, true, nil
		}
	}

	feeds, err := cfg.RandomInputs(o.Seed)
	if err != nil {
		return record, false, err
	}
	shapeDict, err := cfg.ShapeDict()
	if err != nil {
		return record, false, err
	}

	sess, err := o.Builder(cfg, session.Options{IntraOpNumThreads: o.IntraOpNumThreads})
	if err != nil {
		return record, false, errors.Wrapf(err, "failed to build session for %s", cfg)
	}
	defer func() {
		if closeErr := sess.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	if err := sess.AllocateBuffers(shapeDict); err != nil {
		return record, false, errors.Wrapf(err, "failed to allocate buffers for %s", cfg)
	}

	mean, err := RunRepeated(func() error {
		_, inferErr := sess.Infer(feeds)
		return inferErr
	}, o.WarmupRuns, o.Repeats)
	if err != nil {
		return record, false, errors.Wrapf(err, "measurement of %s failed", cfg)
	}

	flops := Flops(spec.BatchSize, spec.SequenceLength, spec.HeadSize, spec.NumHeads, o.Causal)
	speed := TFLOPS(flops, mean.Seconds())
	klog.V(1).Infof("%s: %s mean latency, %s theoretical FLOP, %.2f TFLOPS, kernel=%s",
		cfg, mean, humanize.SIWithDigits(float64(flops), 2, ""), speed, kernel)

	return Record{
		UseGPU:               o.UseGPU,
		EnableCudaGraph:      o.EnableCudaGraph,
		Format:               layout.String(),
		Causal:               o.Causal,
		BatchSize:            spec.BatchSize,
		SequenceLength:       spec.SequenceLength,
		PastSequenceLength:   spec.PastSequenceLength,
		NumHeads:             spec.NumHeads,
		HeadSize:             spec.HeadSize,
		IntraOpNumThreads:    o.IntraOpNumThreads,
		AverageLatency:       mean.Seconds(),
		TFLOPS:               speed,
		Kernel:               kernel,
		EnvironmentVariables: o.EnvSnapshot,
	}, false, nil
}

// refBaselineApplies reports whether the native SDPA baseline row is
// measured after a case: CPU target, plain layout, no cache, default
// threading, and the baseline enabled.
func (o SweepOptions) refBaselineApplies(layout mha.InputLayout) bool {
	return o.RefBaseline && !o.UseGPU && !o.UseKVCache &&
		layout == mha.SeparateQKV && o.IntraOpNumThreads == 0
}

// runRefBaseline measures refattn.SDPA on the case's dimensions through the
// same harness and returns its record, labeled Ref:SDPA.
func (o SweepOptions) runRefBaseline(spec CaseSpec) (Record, error) {
	b, s, n, h := spec.BatchSize, spec.SequenceLength, spec.NumHeads, spec.HeadSize
	// The baseline consumes [B, N, S, H] tensors; the cross-attention layout
	// already packs key/value that way, and the query is transposed here.
	cfg, err := mha.NewConfig(mha.Options{
		BatchSize:      b,
		SequenceLength: s,
		NumHeads:       n,
		HeadSize:       h,
		Causal:         o.Causal,
		Layout:         mha.CrossAttentionSeparate,
	})
	if err != nil {
		return Record{}, err
	}
	feeds, err := cfg.RandomInputs(o.Seed)
	if err != nil {
		return Record{}, err
	}
	key, value := feeds[mha.RoleKey], feeds[mha.RoleValue]
	query := toBNSH(feeds[mha.RoleQuery], b, s, n, h)

	mean, err := RunRepeated(func() error {
		_, sdpaErr := refattn.SDPA(query, key, value, nil, o.Causal, cfg.SoftmaxScale)
		return sdpaErr
	}, 1, o.Repeats)
	if err != nil {
		return Record{}, errors.Wrapf(err, "reference SDPA measurement of %s failed", cfg)
	}

	flops := Flops(b, s, h, n, o.Causal)
	return Record{
		UseGPU:             false,
		EnableCudaGraph:    false,
		Format:             mha.SeparateQKV.String(),
		Causal:             o.Causal,
		BatchSize:          b,
		SequenceLength:     s,
		PastSequenceLength: spec.PastSequenceLength,
		NumHeads:           n,
		HeadSize:           h,
		IntraOpNumThreads:  o.IntraOpNumThreads,
		AverageLatency:     mean.Seconds(),
		TFLOPS:             TFLOPS(flops, mean.Seconds()),
		Kernel:             mha.KernelRefSDPA,
		// The baseline bypasses the runtime, the overrides do not apply.
		EnvironmentVariables: "",
	}, nil
}

// toBNSH transposes a [B, S, N*H] tensor to [B, N, S, H].
func toBNSH(t *tensors.Tensor, b, s, n, h int) *tensors.Tensor {
	out := tensors.FromShape(shapes.Make(t.Shape().DType, b, n, s, h))
	src, dst := t.Flat(), out.Flat()
	for bi := 0; bi < b; bi++ {
		for si := 0; si < s; si++ {
			for ni := 0; ni < n; ni++ {
				from := ((bi*s+si)*n + ni) * h
				to := ((bi*n+ni)*s + si) * h
				copy(dst[to:to+h], src[from:from+h])
			}
		}
	}
	return out
}
