// Copyright 2026 kleerer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package pointsto computes which abstract memory objects pointer values may refer to.
//
// The default implementation is a flow- and context-insensitive,
// field-insensitive inclusion-based (Andersen-style) analysis over pkg/ir.
// Abstract objects are globals, functions, stack slots (allocas) and heap
// objects (one per call site of an external function returning a pointer).
package pointsto

import (
	"fmt"

	"golang.org/x/tools/container/intsets"

	"github.com/google/kleerer/pkg/ir"
)

// Analysis is the query interface consumed by the call graph and other clients.
type Analysis interface {
	// PointsTo returns the objects v may point to, in a deterministic order.
	PointsTo(v ir.Value) []Object
}

type ObjectKind uint8

const (
	ObjGlobal ObjectKind = iota
	ObjFunc
	ObjStack
	ObjHeap
)

// Object is an abstract memory object. ID is a GlobalID, FuncID or the
// InstID of the allocating instruction, depending on Kind.
type Object struct {
	Kind ObjectKind
	ID   int32
}

func (o Object) String() string {
	switch o.Kind {
	case ObjGlobal:
		return fmt.Sprintf("global#%v", o.ID)
	case ObjFunc:
		return fmt.Sprintf("func#%v", o.ID)
	case ObjStack:
		return fmt.Sprintf("stack#%v", o.ID)
	case ObjHeap:
		return fmt.Sprintf("heap#%v", o.ID)
	}
	return fmt.Sprintf("obj(%v)#%v", o.Kind, o.ID)
}

// Result holds the solved points-to sets.
type Result struct {
	prog    *ir.Program
	nodes   map[ir.Value]int
	pts     []*intsets.Sparse
	objects []Object
}

var _ Analysis = (*Result)(nil)

func (r *Result) PointsTo(v ir.Value) []Object {
	n, ok := r.nodes[v]
	if !ok {
		return nil
	}
	var res []Object
	for _, o := range r.pts[n].AppendTo(nil) {
		res = append(res, r.objects[o])
	}
	return res
}

// Funcs returns the functions among the objects v may point to.
func Funcs(a Analysis, v ir.Value) []ir.FuncID {
	var res []ir.FuncID
	for _, o := range a.PointsTo(v) {
		if o.Kind == ObjFunc {
			res = append(res, ir.FuncID(o.ID))
		}
	}
	return res
}

// Analyze runs the analysis over the whole program.
func Analyze(p *ir.Program) *Result {
	s := newSolver(p)
	s.generate()
	s.solve()
	return &Result{
		prog:    p,
		nodes:   s.nodes,
		pts:     s.pts,
		objects: s.objects,
	}
}
