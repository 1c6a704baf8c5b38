// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// mhabench measures MultiHeadAttention latency and throughput across input
// layouts, kernels and representative model shapes, and writes the results as
// CSV plus a rendered summary table.
//
// By default it sweeps the CPU table over (causal=false, cache=false) and
// (causal=true, cache=true); pass -gpu for the GPU table. Kernel selection is
// steered by the usual ORT_DISABLE_* / ORT_MIN_SEQ_LEN_FLASH_ATTENTION_PACKED_QKV
// environment variables.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gomlx/mhabench/bench"
	"github.com/gomlx/mhabench/ortenv"
	"github.com/gomlx/mhabench/session"
	"github.com/google/uuid"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagGPU         = flag.Bool("gpu", false, "Benchmark the GPU configuration table with float16 inputs.")
	flagCudaGraph   = flag.Bool("cuda_graph", false, "Enable CUDA graph capture; only meaningful with -gpu.")
	flagTestThreads = flag.Bool("test_threads", false, "Sweep intra-op thread counts (1, 2, 4, 8, 16) instead of the engine default. CPU only.")
	flagRepeats     = flag.Int("repeats", 100, "Timed repetitions per case.")
	flagWarmup      = flag.Int("warmup", 1, "Warmup runs per case, excluded from timing.")
	flagSeed        = flag.Int64("seed", 123, "Seed for input synthesis. <= 0 draws non-reproducible inputs.")
	flagCSV         = flag.String("csv", "", "Results CSV path. Empty picks benchmark_mha_{cpu|gpu}_<timestamp>.csv.")
	flagPlot        = flag.String("plot", "", "If set, render a prompt-length latency sweep SVG to this path.")
	flagSummarize   = flag.String("summarize", "", "Summarize an existing results CSV and exit; no benchmark runs.")
	flagRefBaseline = flag.Bool("ref_baseline", true, "Measure the native SDPA reference alongside plain-layout CPU cases.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	if *flagSummarize != "" {
		f := must.M1(os.Open(*flagSummarize))
		defer func() { _ = f.Close() }()
		must.M(bench.Summarize(f, os.Stdout))
		return
	}

	runID := uuid.NewString()
	klog.Infof("Benchmark run %s", runID)

	overrides := ortenv.FromEnvironment()
	envSnapshot := ortenv.Snapshot()
	if envSnapshot != "" {
		klog.Infof("Kernel overrides: %s", envSnapshot)
	}

	csvPath := *flagCSV
	if csvPath == "" {
		target := "cpu"
		if *flagGPU {
			target = "gpu"
		}
		csvPath = fmt.Sprintf("benchmark_mha_%s_%s.csv", target, time.Now().Format("20060102-150405"))
	}
	csvFile := must.M1(os.Create(csvPath))
	defer func() { _ = csvFile.Close() }()
	sink := must.M1(bench.NewCSVSink(csvFile))

	threadCounts := []int{0}
	if *flagTestThreads && !*flagGPU {
		threadCounts = []int{1, 2, 4, 8, 16}
	}

	var all []bench.Record
	for _, mode := range []struct{ causal, cache bool }{{false, false}, {true, true}} {
		for _, threads := range threadCounts {
			records := must.M1(bench.RunSweep(bench.SweepOptions{
				UseGPU:            *flagGPU,
				EnableCudaGraph:   *flagCudaGraph,
				Causal:            mode.causal,
				UseKVCache:        mode.cache,
				IntraOpNumThreads: threads,
				WarmupRuns:        *flagWarmup,
				Repeats:           *flagRepeats,
				Seed:              *flagSeed,
				Builder:           session.NewLocal,
				Overrides:         overrides,
				EnvSnapshot:       envSnapshot,
				RefBaseline:       *flagRefBaseline,
				Progress:          true,
			}, sink))
			all = append(all, records...)
		}
	}
	must.M(sink.Flush())
	klog.Infof("Wrote %d result rows to %s", len(all), csvPath)

	bench.PrintRecords(os.Stdout, all)

	if *flagPlot != "" {
		plotFile := must.M1(os.Create(*flagPlot))
		defer func() { _ = plotFile.Close() }()
		must.M(bench.PlotPromptLatency(plotFile, bench.PlotOptions{
			ModelName:  "bert-base",
			BatchSize:  1,
			NumHeads:   12,
			HeadSize:   64,
			MaxSeqLen:  4096,
			UseGPU:     *flagGPU,
			WarmupRuns: *flagWarmup,
			Repeats:    *flagRepeats,
			Seed:       *flagSeed,
			Builder:    session.NewLocal,
			Overrides:  overrides,
		}))
		klog.Infof("Wrote prompt sweep plot to %s", *flagPlot)
	}
}
