// Copyright 2026 kleerer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package pointsto

import (
	"golang.org/x/tools/container/intsets"

	"github.com/google/kleerer/pkg/ir"
)

type callSite struct {
	args   []int
	result int
}

type solver struct {
	prog     *ir.Program
	nodes    map[ir.Value]int
	pts      []*intsets.Sparse
	succ     []*intsets.Sparse
	objects  []Object
	objIdx   map[Object]int
	contents []int
	rets     map[ir.FuncID]int
	loads    map[int][]int
	stores   map[int][]int
	calls    map[int][]callSite
	work     intsets.Sparse
}

func newSolver(p *ir.Program) *solver {
	return &solver{
		prog:   p,
		nodes:  make(map[ir.Value]int),
		objIdx: make(map[Object]int),
		rets:   make(map[ir.FuncID]int),
		loads:  make(map[int][]int),
		stores: make(map[int][]int),
		calls:  make(map[int][]callSite),
	}
}

func (s *solver) newNode() int {
	s.pts = append(s.pts, new(intsets.Sparse))
	s.succ = append(s.succ, new(intsets.Sparse))
	return len(s.pts) - 1
}

func (s *solver) node(v ir.Value) int {
	if n, ok := s.nodes[v]; ok {
		return n
	}
	n := s.newNode()
	s.nodes[v] = n
	if v.Kind == ir.ConstValue {
		c := s.prog.Const(ir.ConstID(v.ID))
		for _, elem := range append([]ir.Value(nil), c.Elems...) {
			s.addEdge(s.node(elem), n)
		}
	}
	return n
}

func (s *solver) object(o Object) int {
	if idx, ok := s.objIdx[o]; ok {
		return idx
	}
	idx := len(s.objects)
	s.objects = append(s.objects, o)
	s.objIdx[o] = idx
	s.contents = append(s.contents, s.newNode())
	return idx
}

func (s *solver) addrOf(n int, o Object) {
	if s.pts[n].Insert(s.object(o)) {
		s.work.Insert(n)
	}
}

func (s *solver) addEdge(from, to int) {
	if from == to || !s.succ[from].Insert(to) {
		return
	}
	if s.pts[to].UnionWith(s.pts[from]) {
		s.work.Insert(to)
	}
}

func (s *solver) generate() {
	p := s.prog
	for _, g := range p.Globals() {
		n := s.node(ir.GlobalRef(g))
		s.addrOf(n, Object{ObjGlobal, int32(g)})
		if init := p.Global(g).Init; init.IsValid() {
			content := s.contents[s.object(Object{ObjGlobal, int32(g)})]
			s.addEdge(s.node(init), content)
		}
	}
	for _, fn := range p.Funcs() {
		s.addrOf(s.node(ir.FuncRef(fn)), Object{ObjFunc, int32(fn)})
		for i := range p.Func(fn).Params {
			s.node(ir.ParamRef(fn, i))
		}
		s.rets[fn] = s.newNode()
	}
	for _, fn := range p.Funcs() {
		for _, blk := range p.Func(fn).Blocks {
			for _, inst := range p.Block(blk).Insts {
				s.genInst(fn, inst)
			}
		}
	}
}

func (s *solver) genInst(fn ir.FuncID, id ir.InstID) {
	p := s.prog
	in := p.Inst(id)
	res := ir.InstRef(id)
	switch in.Op {
	case ir.OpAlloca:
		s.addrOf(s.node(res), Object{ObjStack, int32(id)})
	case ir.OpLoad:
		src := s.node(in.Args[0])
		s.loads[src] = append(s.loads[src], s.node(res))
	case ir.OpStore:
		ptr := s.node(in.Args[1])
		s.stores[ptr] = append(s.stores[ptr], s.node(in.Args[0]))
	case ir.OpGEP, ir.OpBitCast:
		s.addEdge(s.node(in.Args[0]), s.node(res))
	case ir.OpRet:
		if len(in.Args) != 0 {
			s.addEdge(s.node(in.Args[0]), s.rets[fn])
		}
	case ir.OpCall:
		site := callSite{result: -1}
		for _, arg := range in.Args {
			site.args = append(site.args, s.node(arg))
		}
		if p.HasResult(id) {
			site.result = s.node(res)
		}
		if callee, ok := p.Callee(id); ok {
			s.bind(site, callee)
			if p.Func(callee).IsDeclaration() && p.IsPtr(in.Type) {
				s.addrOf(site.result, Object{ObjHeap, int32(id)})
			}
			return
		}
		callee := s.node(in.Callee)
		s.calls[callee] = append(s.calls[callee], site)
	}
}

func (s *solver) bind(site callSite, fn ir.FuncID) {
	for i, arg := range site.args {
		if i >= len(s.prog.Func(fn).Params) {
			break
		}
		s.addEdge(arg, s.nodes[ir.ParamRef(fn, i)])
	}
	if site.result != -1 {
		s.addEdge(s.rets[fn], site.result)
	}
}

func (s *solver) solve() {
	var n int
	for s.work.TakeMin(&n) {
		for _, idx := range s.pts[n].AppendTo(nil) {
			content := s.contents[idx]
			for _, dst := range s.loads[n] {
				s.addEdge(content, dst)
			}
			for _, src := range s.stores[n] {
				s.addEdge(src, content)
			}
			if obj := s.objects[idx]; obj.Kind == ObjFunc {
				for _, site := range s.calls[n] {
					s.bind(site, ir.FuncID(obj.ID))
				}
			}
		}
		for _, m := range s.succ[n].AppendTo(nil) {
			if s.pts[m].UnionWith(s.pts[n]) {
				s.work.Insert(m)
			}
		}
	}
}
