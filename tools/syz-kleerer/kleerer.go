// Copyright 2026 kleerer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// syz-kleerer generates KLEE harnesses for functions that call __assert_fail.
// For every qualifying candidate it writes one artifact with a new main function
// into the output directory.
// Run as:
//
//	syz-kleerer -in drivers/foo.bc -out harnesses [-config kleerer.cfg] [-policy all]
//
// A program without a candidate list can be prepared on the fly:
//
//	syz-kleerer -in foo.bc -prepare foo_init -prepare foo_ioctl
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/google/kleerer/pkg/artifact"
	"github.com/google/kleerer/pkg/callgraph"
	"github.com/google/kleerer/pkg/config"
	"github.com/google/kleerer/pkg/harness"
	"github.com/google/kleerer/pkg/log"
	"github.com/google/kleerer/pkg/osutil"
	"github.com/google/kleerer/pkg/pointsto"
	"github.com/google/kleerer/pkg/prepare"
	"github.com/google/kleerer/pkg/stat"
	"github.com/google/kleerer/pkg/tool"
	"github.com/google/kleerer/pkg/verify"
)

var (
	flagConfig    = flag.String("config", "", "config file (optional)")
	flagIn        = flag.String("in", "", "input program")
	flagOut       = flag.String("out", "", "output directory (overrides config)")
	flagPolicy    = flag.String("policy", "", "candidates to generate harnesses for: first or all (overrides config)")
	flagIsolate   = flag.Bool("isolate", false, "restore global initializers after every candidate")
	flagMetrics   = flag.String("metrics", "", "write run metrics in Prometheus text format to this file")
	flagCallgraph = flag.Bool("dump-callgraph", false, "print the call graph and exit")
	flagSaveCfg   = flag.String("save-config", "", "write the effective config to this file")
	flagPrepare   tool.ListFlag
)

func main() {
	flag.Var(&flagPrepare, "prepare", "record the function as a candidate entry (can be repeated)")
	defer tool.Init()()
	if *flagIn == "" {
		flag.Usage()
		os.Exit(1)
	}
	if !osutil.IsExist(*flagIn) {
		tool.Failf("input %v does not exist", *flagIn)
	}
	cfg, err := loadConfig()
	if err != nil {
		tool.Fail(err)
	}
	if *flagSaveCfg != "" {
		if err := config.SaveFile(*flagSaveCfg, cfg); err != nil {
			tool.Failf("failed to save config: %v", err)
		}
	}
	p, _, err := artifact.Load(*flagIn)
	if err != nil {
		tool.Failf("failed to load %v: %v", *flagIn, err)
	}
	if len(flagPrepare) != 0 {
		if err := prepare.Mark(p, flagPrepare...); err != nil {
			tool.Fail(err)
		}
	}
	p.SetStatePrefix(cfg.StatePrefix)
	log.Logf(0, "loaded %v: %v functions, %v globals, %v state variables",
		p.ID, p.NumFuncs(), p.NumGlobals(), len(p.StateVars()))
	cg := callgraph.Build(p, pointsto.Analyze(p))
	log.Logf(1, "call graph: %v edges", cg.Edges)
	if *flagCallgraph {
		fmt.Println(cg.Dump(p))
		return
	}
	if log.V(2) {
		fmt.Fprintf(log.VerboseWriter(2), "%v\n", cg.Dump(p))
	}
	cfg.OutputDir = osutil.Abs(cfg.OutputDir)
	if err := osutil.MkdirAll(cfg.OutputDir); err != nil {
		log.Fatalf("failed to create output dir: %v", err)
	}
	reg := prometheus.NewRegistry()
	stats := harness.NewStats(reg)
	gen := harness.NewGenerator(cfg, p, cg, verify.Checker{}, artifact.NewWriter(cfg.OutputDir), stats)
	res, runErr := gen.Run()
	printStats(stats)
	if *flagMetrics != "" {
		if err := prometheus.WriteToTextfile(*flagMetrics, reg); err != nil {
			log.Fatal(err)
		}
	}
	if runErr != nil {
		tool.Fail(runErr)
	}
	for _, path := range res.Artifacts {
		fmt.Println(path)
	}
	if len(res.Qualifying) != 0 && len(res.Artifacts) == 0 {
		tool.Failf("no harness could be generated for %v qualifying functions", len(res.Qualifying))
	}
}

func loadConfig() (*harness.Config, error) {
	cfg := harness.DefaultConfig()
	if *flagConfig != "" {
		if err := config.LoadFile(*flagConfig, cfg); err != nil {
			return nil, err
		}
	}
	if *flagOut != "" {
		cfg.OutputDir = *flagOut
	}
	if *flagPolicy != "" {
		cfg.Policy = harness.Policy(*flagPolicy)
	}
	if *flagIsolate {
		cfg.Isolate = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("bad config: %w", err)
	}
	return cfg, nil
}

func printStats(stats *harness.Stats) {
	level := stat.Console
	if log.V(1) {
		level = stat.All
	}
	for _, ui := range stats.Set.Collect(level) {
		fmt.Fprintf(os.Stderr, "%-20v: %v\n", ui.Name, ui.Value)
	}
}
