// Copyright 2026 kleerer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package artifact

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/kleerer/pkg/ir"
)

// Format identifies the container document layout.
const Format = "kleerer-ir/1"

// document is the YAML form of a program. Arenas are stored flat and refer
// to each other by index, instruction operands use compact value refs
// (see formatValue).
type document struct {
	Format  string      `yaml:"format"`
	Run     string      `yaml:"run,omitempty"`
	Module  string      `yaml:"module"`
	Types   []typeDoc   `yaml:"types"`
	Consts  []constDoc  `yaml:"consts,omitempty"`
	Globals []globalDoc `yaml:"globals,omitempty"`
	Funcs   []funcDoc   `yaml:"funcs,omitempty"`
	Blocks  []blockDoc  `yaml:"blocks,omitempty"`
	Insts   []instDoc   `yaml:"insts,omitempty"`
}

type typeDoc struct {
	Kind     string  `yaml:"kind"`
	Bits     int     `yaml:"bits,omitempty"`
	Elem     int32   `yaml:"elem,omitempty"`
	Len      int     `yaml:"len,omitempty"`
	Fields   []int32 `yaml:"fields,omitempty,flow"`
	Ret      int32   `yaml:"ret,omitempty"`
	Params   []int32 `yaml:"params,omitempty,flow"`
	Variadic bool    `yaml:"variadic,omitempty"`
	Name     string  `yaml:"name,omitempty"`
}

type constDoc struct {
	Kind  string   `yaml:"kind"`
	Type  int32    `yaml:"type"`
	Int   int64    `yaml:"int,omitempty"`
	Bytes string   `yaml:"bytes,omitempty"`
	Elems []string `yaml:"elems,omitempty,flow"`
}

type globalDoc struct {
	Name        string `yaml:"name,omitempty"`
	Type        int32  `yaml:"type"`
	Init        string `yaml:"init,omitempty"`
	Constant    bool   `yaml:"constant,omitempty"`
	Private     bool   `yaml:"private,omitempty"`
	UnnamedAddr bool   `yaml:"unnamed_addr,omitempty"`
}

type funcDoc struct {
	Name     string   `yaml:"name"`
	Type     int32    `yaml:"type"`
	Params   []string `yaml:"params,omitempty,flow"`
	Blocks   []int32  `yaml:"blocks,omitempty,flow"`
	NoReturn bool     `yaml:"noreturn,omitempty"`
}

type blockDoc struct {
	Name  string  `yaml:"name,omitempty"`
	Func  int32   `yaml:"func"`
	Insts []int32 `yaml:"insts,flow"`
}

type instDoc struct {
	Op       string   `yaml:"op"`
	Name     string   `yaml:"name,omitempty"`
	Type     int32    `yaml:"type"`
	Block    int32    `yaml:"block"`
	Args     []string `yaml:"args,omitempty,flow"`
	Callee   string   `yaml:"callee,omitempty"`
	Elem     int32    `yaml:"elem,omitempty"`
	Pred     string   `yaml:"pred,omitempty"`
	Volatile bool     `yaml:"volatile,omitempty"`
	InBounds bool     `yaml:"inbounds,omitempty"`
	Succs    []int32  `yaml:"succs,omitempty,flow"`
	Loc      *locDoc  `yaml:"loc,omitempty"`
}

type locDoc struct {
	File  string `yaml:"file,omitempty"`
	Line  int    `yaml:"line,omitempty"`
	Col   int    `yaml:"col,omitempty"`
	Scope string `yaml:"scope,omitempty"`
}

// formatValue renders v as "i:<inst>", "p:<func>:<index>", "g:<global>",
// "f:<func>" or "c:<const>". NoValue is the empty string.
func formatValue(v ir.Value, constMap map[ir.ConstID]int32) string {
	switch v.Kind {
	case ir.InstValue:
		return fmt.Sprintf("i:%v", v.ID)
	case ir.ParamValue:
		return fmt.Sprintf("p:%v:%v", v.ID, v.Index)
	case ir.GlobalValue:
		return fmt.Sprintf("g:%v", v.ID)
	case ir.FuncValue:
		return fmt.Sprintf("f:%v", v.ID)
	case ir.ConstValue:
		return fmt.Sprintf("c:%v", constMap[ir.ConstID(v.ID)])
	}
	return ""
}

func parseValue(s string) (ir.Value, error) {
	if s == "" {
		return ir.Value{}, nil
	}
	parts := strings.Split(s, ":")
	var nums []int32
	for _, part := range parts[1:] {
		n, err := strconv.ParseInt(part, 10, 32)
		if err != nil {
			return ir.Value{}, fmt.Errorf("bad value ref %q: %w", s, err)
		}
		nums = append(nums, int32(n))
	}
	want := 1
	if parts[0] == "p" {
		want = 2
	}
	if len(nums) != want {
		return ir.Value{}, fmt.Errorf("bad value ref %q", s)
	}
	switch parts[0] {
	case "i":
		return ir.InstRef(ir.InstID(nums[0])), nil
	case "p":
		return ir.ParamRef(ir.FuncID(nums[0]), int(nums[1])), nil
	case "g":
		return ir.GlobalRef(ir.GlobalID(nums[0])), nil
	case "f":
		return ir.FuncRef(ir.FuncID(nums[0])), nil
	case "c":
		return ir.ConstRef(ir.ConstID(nums[0])), nil
	}
	return ir.Value{}, fmt.Errorf("bad value ref %q", s)
}

func parseValues(refs []string) ([]ir.Value, error) {
	var res []ir.Value
	for _, ref := range refs {
		v, err := parseValue(ref)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, nil
}

// liveConsts returns constants reachable from initializers and operands,
// in ascending order. Constants left behind by a rollback are dropped.
func liveConsts(s *ir.Snapshot) []ir.ConstID {
	seen := make(map[ir.ConstID]bool)
	var walk func(v ir.Value)
	walk = func(v ir.Value) {
		id := ir.ConstID(v.ID)
		if v.Kind != ir.ConstValue || seen[id] || int(id) >= len(s.Consts) {
			return
		}
		seen[id] = true
		for _, elem := range s.Consts[id].Elems {
			walk(elem)
		}
	}
	for _, g := range s.Globals {
		walk(g.Init)
	}
	for _, in := range s.Insts {
		walk(in.Callee)
		for _, arg := range in.Args {
			walk(arg)
		}
	}
	var res []ir.ConstID
	for id := range s.Consts {
		if seen[ir.ConstID(id)] {
			res = append(res, ir.ConstID(id))
		}
	}
	return res
}

func encode(p *ir.Program, run string) *document {
	s := p.Snapshot()
	doc := &document{
		Format: Format,
		Run:    run,
		Module: s.ID,
	}
	for _, t := range s.Types {
		doc.Types = append(doc.Types, typeDoc{
			Kind:     t.Kind.String(),
			Bits:     t.Bits,
			Elem:     int32(t.Elem),
			Len:      t.Len,
			Fields:   typeIDs(t.Fields),
			Ret:      int32(t.Ret),
			Params:   typeIDs(t.Params),
			Variadic: t.Variadic,
			Name:     t.Name,
		})
	}
	live := liveConsts(s)
	constMap := make(map[ir.ConstID]int32, len(live))
	for i, id := range live {
		constMap[id] = int32(i)
	}
	values := func(vals []ir.Value) []string {
		var res []string
		for _, v := range vals {
			res = append(res, formatValue(v, constMap))
		}
		return res
	}
	for _, id := range live {
		c := s.Consts[id]
		doc.Consts = append(doc.Consts, constDoc{
			Kind:  c.Kind.String(),
			Type:  int32(c.Type),
			Int:   c.Int,
			Bytes: c.Bytes,
			Elems: values(c.Elems),
		})
	}
	for _, g := range s.Globals {
		doc.Globals = append(doc.Globals, globalDoc{
			Name:        g.Name,
			Type:        int32(g.Type),
			Init:        formatValue(g.Init, constMap),
			Constant:    g.Constant,
			Private:     g.Private,
			UnnamedAddr: g.UnnamedAddr,
		})
	}
	for _, fn := range s.Funcs {
		fd := funcDoc{
			Name:     fn.Name,
			Type:     int32(fn.Type),
			NoReturn: fn.NoReturn,
		}
		for _, param := range fn.Params {
			fd.Params = append(fd.Params, param.Name)
		}
		for _, blk := range fn.Blocks {
			fd.Blocks = append(fd.Blocks, int32(blk))
		}
		doc.Funcs = append(doc.Funcs, fd)
	}
	for _, blk := range s.Blocks {
		bd := blockDoc{Name: blk.Name, Func: int32(blk.Func), Insts: []int32{}}
		for _, inst := range blk.Insts {
			bd.Insts = append(bd.Insts, int32(inst))
		}
		doc.Blocks = append(doc.Blocks, bd)
	}
	for _, in := range s.Insts {
		id := instDoc{
			Op:       in.Op.String(),
			Name:     in.Name,
			Type:     int32(in.Type),
			Block:    int32(in.Block),
			Args:     values(in.Args),
			Callee:   formatValue(in.Callee, constMap),
			Elem:     int32(in.Elem),
			Volatile: in.Volatile,
			InBounds: in.InBounds,
		}
		if in.Op == ir.OpICmp {
			id.Pred = in.Pred.String()
		}
		for _, succ := range in.Succs {
			id.Succs = append(id.Succs, int32(succ))
		}
		if !in.Loc.IsZero() {
			id.Loc = &locDoc{File: in.Loc.File, Line: in.Loc.Line, Col: in.Loc.Col, Scope: in.Loc.Scope}
		}
		doc.Insts = append(doc.Insts, id)
	}
	return doc
}

func typeIDs(ids []ir.TypeID) []int32 {
	var res []int32
	for _, id := range ids {
		res = append(res, int32(id))
	}
	return res
}

func decode(doc *document) (*ir.Program, error) {
	if doc.Format != Format {
		return nil, fmt.Errorf("unsupported container format %q, want %q", doc.Format, Format)
	}
	s := &ir.Snapshot{ID: doc.Module}
	for i, td := range doc.Types {
		kind, ok := ir.ParseTypeKind(td.Kind)
		if !ok {
			return nil, fmt.Errorf("type %v: unknown kind %q", i, td.Kind)
		}
		t := ir.Type{
			Kind:     kind,
			Bits:     td.Bits,
			Elem:     ir.TypeID(td.Elem),
			Len:      td.Len,
			Ret:      ir.TypeID(td.Ret),
			Variadic: td.Variadic,
			Name:     td.Name,
		}
		for _, f := range td.Fields {
			t.Fields = append(t.Fields, ir.TypeID(f))
		}
		for _, param := range td.Params {
			t.Params = append(t.Params, ir.TypeID(param))
		}
		s.Types = append(s.Types, t)
	}
	for i, cd := range doc.Consts {
		kind, ok := ir.ParseConstKind(cd.Kind)
		if !ok {
			return nil, fmt.Errorf("const %v: unknown kind %q", i, cd.Kind)
		}
		elems, err := parseValues(cd.Elems)
		if err != nil {
			return nil, fmt.Errorf("const %v: %w", i, err)
		}
		s.Consts = append(s.Consts, ir.Const{
			Kind:  kind,
			Type:  ir.TypeID(cd.Type),
			Int:   cd.Int,
			Bytes: cd.Bytes,
			Elems: elems,
		})
	}
	for _, gd := range doc.Globals {
		init, err := parseValue(gd.Init)
		if err != nil {
			return nil, fmt.Errorf("global %v: %w", gd.Name, err)
		}
		s.Globals = append(s.Globals, ir.Global{
			Name:        gd.Name,
			Type:        ir.TypeID(gd.Type),
			Init:        init,
			Constant:    gd.Constant,
			Private:     gd.Private,
			UnnamedAddr: gd.UnnamedAddr,
		})
	}
	for _, fd := range doc.Funcs {
		fn := ir.Function{
			Name:     fd.Name,
			Type:     ir.TypeID(fd.Type),
			NoReturn: fd.NoReturn,
			Params:   []ir.Param{},
		}
		for _, name := range fd.Params {
			fn.Params = append(fn.Params, ir.Param{Name: name})
		}
		for _, blk := range fd.Blocks {
			fn.Blocks = append(fn.Blocks, ir.BlockID(blk))
		}
		s.Funcs = append(s.Funcs, fn)
	}
	for _, bd := range doc.Blocks {
		blk := ir.Block{Name: bd.Name, Func: ir.FuncID(bd.Func)}
		for _, inst := range bd.Insts {
			blk.Insts = append(blk.Insts, ir.InstID(inst))
		}
		s.Blocks = append(s.Blocks, blk)
	}
	for i, id := range doc.Insts {
		op, ok := ir.ParseOpcode(id.Op)
		if !ok {
			return nil, fmt.Errorf("instruction %v: unknown opcode %q", i, id.Op)
		}
		in := ir.Inst{
			Op:       op,
			Name:     id.Name,
			Type:     ir.TypeID(id.Type),
			Block:    ir.BlockID(id.Block),
			Elem:     ir.TypeID(id.Elem),
			Volatile: id.Volatile,
			InBounds: id.InBounds,
		}
		if id.Pred != "" {
			if in.Pred, ok = ir.ParsePredicate(id.Pred); !ok {
				return nil, fmt.Errorf("instruction %v: unknown predicate %q", i, id.Pred)
			}
		}
		var err error
		if in.Args, err = parseValues(id.Args); err != nil {
			return nil, fmt.Errorf("instruction %v: %w", i, err)
		}
		if in.Callee, err = parseValue(id.Callee); err != nil {
			return nil, fmt.Errorf("instruction %v: %w", i, err)
		}
		for _, succ := range id.Succs {
			in.Succs = append(in.Succs, ir.BlockID(succ))
		}
		if id.Loc != nil {
			in.Loc = ir.Loc{File: id.Loc.File, Line: id.Loc.Line, Col: id.Loc.Col, Scope: id.Loc.Scope}
		}
		s.Insts = append(s.Insts, in)
	}
	return ir.FromSnapshot(s)
}
