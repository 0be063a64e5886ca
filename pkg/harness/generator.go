// Copyright 2026 kleerer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package harness generates entry points for symbolic execution.
//
// For every candidate entry function that directly calls the failure function
// (__assert_fail by default) a new entry function is added to the program.
// It passes symbolic inputs to the candidate, calls it and then checks that
// all state variables are back to zero. The augmented program is verified and
// written as one artifact per candidate, after which the entry function and
// other scaffolding are removed again.
package harness

import (
	"errors"
	"fmt"

	"github.com/ianlancetaylor/demangle"

	"github.com/google/kleerer/pkg/callgraph"
	"github.com/google/kleerer/pkg/ir"
	"github.com/google/kleerer/pkg/log"
	"github.com/google/kleerer/pkg/prepare"
	"github.com/google/kleerer/pkg/verify"
)

// Writer persists a program augmented with the harness for function fn.
type Writer interface {
	Write(p *ir.Program, fn string) (string, error)
}

type Generator struct {
	cfg      *Config
	prog     *ir.Program
	graph    callgraph.Graph
	verifier verify.Verifier
	writer   Writer
	stats    *Stats
	layout   ir.DataLayout
}

// Result lists candidates by name.
type Result struct {
	// Qualifying candidates in the order they were processed.
	Qualifying []string
	// Artifacts are paths of written artifacts.
	Artifacts []string
	// Failed candidates did not produce an artifact.
	Failed []string
}

// NewGenerator creates a generator over p. The state variable registry of p
// is rebuilt if cfg uses a different prefix. stats may be nil.
func NewGenerator(cfg *Config, p *ir.Program, graph callgraph.Graph, verifier verify.Verifier,
	writer Writer, stats *Stats) *Generator {
	if p.StatePrefix() != cfg.StatePrefix {
		p.SetStatePrefix(cfg.StatePrefix)
	}
	if stats == nil {
		stats = NewStats(nil)
	}
	return &Generator{
		cfg:      cfg,
		prog:     p,
		graph:    graph,
		verifier: verifier,
		writer:   writer,
		stats:    stats,
		layout:   ir.DefaultLayout,
	}
}

// Run generates harnesses for qualifying candidates in candidate list order.
// Only configuration errors (ErrNoInitFuncs) and signature errors
// (*SignatureError) are returned, other per-candidate failures are logged,
// counted and recorded in Result.Failed.
func (g *Generator) Run() (*Result, error) {
	p := g.prog
	res := new(Result)
	fail, ok := p.FuncByName(g.cfg.FailureFunc)
	if !ok {
		log.Logf(1, "no %v in %v, nothing to do", g.cfg.FailureFunc, p.ID)
		return res, nil
	}
	if len(g.graph.Callers(fail)) == 0 {
		log.Logf(1, "nothing calls %v in %v, nothing to do", g.cfg.FailureFunc, p.ID)
		return res, nil
	}
	candidates, err := prepare.InitFuncs(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoInitFuncs, err)
	}
	g.logEntryClash()
	for _, fn := range candidates {
		g.stats.Candidates.Add(1)
		if !g.callsDirectly(fn, fail) {
			continue
		}
		name := p.Func(fn).Name
		g.stats.Qualifying.Add(1)
		res.Qualifying = append(res.Qualifying, name)
		log.Logf(1, "generating harness for %v", displayName(name))
		path, err := g.writeMain(fn)
		if err != nil {
			var sigErr *SignatureError
			if errors.As(err, &sigErr) {
				return res, err
			}
			log.Logf(0, "%v: %v", displayName(name), err)
			res.Failed = append(res.Failed, name)
			continue
		}
		res.Artifacts = append(res.Artifacts, path)
		if g.cfg.Policy == PolicyFirst {
			break
		}
	}
	return res, nil
}

// logEntryClash tells once per run that the program defines its own entry function.
func (g *Generator) logEntryClash() {
	fn, ok := g.prog.FuncByName(g.cfg.EntryFunc)
	if !ok || g.prog.Func(fn).IsDeclaration() {
		return
	}
	if g.cfg.EntryFallback == "" {
		log.Logf(0, "%v already defines %v, no harness can be added (set entry_fallback)",
			g.prog.ID, g.cfg.EntryFunc)
		return
	}
	log.Logf(0, "%v already defines %v, harnesses use %v (run KLEE with -entry-point=%v)",
		g.prog.ID, g.cfg.EntryFunc, g.cfg.EntryFallback, g.cfg.EntryFallback)
}

// callsDirectly reports whether fn has a call graph edge to target.
// Transitive calls through other functions do not count.
func (g *Generator) callsDirectly(fn, target ir.FuncID) bool {
	for _, e := range g.graph.Calls(fn) {
		if e.Callee == target {
			return true
		}
	}
	return false
}

// writeMain adds the harness for fn, verifies and writes the program and
// removes the harness again. Initializer changes persist unless cfg.Isolate.
func (g *Generator) writeMain(fn ir.FuncID) (string, error) {
	p := g.prog
	cp := p.Checkpoint()
	var inits ir.InitSnapshot
	if g.cfg.Isolate {
		inits = p.SnapshotInits()
	}
	defer func() {
		p.Rollback(cp)
		if g.cfg.Isolate {
			p.RestoreInits(inits)
		}
	}()
	name := p.Func(fn).Name
	main, err := g.synthesize(fn)
	if err != nil {
		var sigErr *SignatureError
		if !errors.As(err, &sigErr) {
			g.stats.Skipped.Add(1)
		}
		return "", err
	}
	g.stats.HarnessInsts.Add(numInsts(p, main))
	if log.V(3) {
		log.Logf(3, "harness for %v:\n%v", displayName(name), p)
	}
	if err := g.verifier.Verify(p); err != nil {
		g.stats.VerifyFailures.Add(1)
		return "", fmt.Errorf("broken harness: %w", err)
	}
	path, err := g.writer.Write(p, name)
	if err != nil {
		g.stats.WriteFailures.Add(1)
		return "", err
	}
	g.stats.Written.Add(1)
	return path, nil
}

func numInsts(p *ir.Program, fn ir.FuncID) int {
	n := 0
	for _, blk := range p.Func(fn).Blocks {
		n += len(p.Block(blk).Insts)
	}
	return n
}

// displayName demangles C++ names for diagnostics.
func displayName(name string) string {
	return demangle.Filter(name)
}
