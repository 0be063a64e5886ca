// Copyright 2026 kleerer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package callgraph builds a call graph over pkg/ir programs.
// Indirect calls are resolved through a points-to analysis.
package callgraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/kleerer/pkg/ir"
	"github.com/google/kleerer/pkg/pointsto"
)

// Edge is a call from Caller at instruction Site to Callee.
type Edge struct {
	Caller   ir.FuncID
	Site     ir.InstID
	Callee   ir.FuncID
	Indirect bool
}

// Graph is the query interface consumed by the harness generator.
type Graph interface {
	// Calls returns the calls made from fn.
	Calls(fn ir.FuncID) []Edge
	// Callers returns all call sites in the program that invoke fn.
	Callers(fn ir.FuncID) []Edge
}

type CallGraph struct {
	calls   map[ir.FuncID][]Edge
	callers map[ir.FuncID][]Edge
	Edges   int
}

var _ Graph = (*CallGraph)(nil)

// Build constructs the call graph of p. Direct calls (including calls through
// constant casts of a function) produce direct edges, all other calls are
// resolved via pts and produce indirect edges, one per possible target.
func Build(p *ir.Program, pts pointsto.Analysis) *CallGraph {
	cg := &CallGraph{
		calls:   make(map[ir.FuncID][]Edge),
		callers: make(map[ir.FuncID][]Edge),
	}
	for _, fn := range p.Funcs() {
		for _, blk := range p.Func(fn).Blocks {
			for _, inst := range p.Block(blk).Insts {
				if p.Inst(inst).Op != ir.OpCall {
					continue
				}
				if callee, ok := p.Callee(inst); ok {
					cg.insert(Edge{Caller: fn, Site: inst, Callee: callee})
					continue
				}
				for _, callee := range pointsto.Funcs(pts, p.Inst(inst).Callee) {
					cg.insert(Edge{Caller: fn, Site: inst, Callee: callee, Indirect: true})
				}
			}
		}
	}
	return cg
}

func (cg *CallGraph) insert(e Edge) {
	cg.calls[e.Caller] = append(cg.calls[e.Caller], e)
	cg.callers[e.Callee] = append(cg.callers[e.Callee], e)
	cg.Edges++
}

func (cg *CallGraph) Calls(fn ir.FuncID) []Edge {
	return cg.calls[fn]
}

func (cg *CallGraph) Callers(fn ir.FuncID) []Edge {
	return cg.callers[fn]
}

// Dump prints the graph as "caller -> callee" lines sorted by name,
// indirect edges are marked with "(indirect)".
func (cg *CallGraph) Dump(p *ir.Program) string {
	var lines []string
	for _, edges := range cg.calls {
		for _, e := range edges {
			line := fmt.Sprintf("%v -> %v", p.Func(e.Caller).Name, p.Func(e.Callee).Name)
			if e.Indirect {
				line += " (indirect)"
			}
			lines = append(lines, line)
		}
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}
