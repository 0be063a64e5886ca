// Copyright 2026 kleerer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package ir

import (
	"fmt"
)

// Snapshot is a flat, handle-preserving copy of a Program's arenas.
// It is the exchange format between Program and serialization codecs.
type Snapshot struct {
	ID      string
	Types   []Type
	Consts  []Const
	Funcs   []Function
	Blocks  []Block
	Insts   []Inst
	Globals []Global
}

// Snapshot returns a deep copy of the program arenas.
func (p *Program) Snapshot() *Snapshot {
	s := &Snapshot{
		ID:      p.ID,
		Types:   make([]Type, len(p.types)),
		Consts:  make([]Const, len(p.consts)),
		Funcs:   make([]Function, len(p.funcs)),
		Blocks:  make([]Block, len(p.blocks)),
		Insts:   make([]Inst, len(p.insts)),
		Globals: append([]Global(nil), p.globals...),
	}
	for i, t := range p.types {
		t.Fields = append([]TypeID(nil), t.Fields...)
		t.Params = append([]TypeID(nil), t.Params...)
		s.Types[i] = t
	}
	for i, c := range p.consts {
		c.Elems = append([]Value(nil), c.Elems...)
		s.Consts[i] = c
	}
	for i, fn := range p.funcs {
		fn.Params = append([]Param(nil), fn.Params...)
		fn.Blocks = append([]BlockID(nil), fn.Blocks...)
		s.Funcs[i] = fn
	}
	for i, blk := range p.blocks {
		blk.Insts = append([]InstID(nil), blk.Insts...)
		s.Blocks[i] = blk
	}
	for i, in := range p.insts {
		in.Args = append([]Value(nil), in.Args...)
		in.Succs = append([]BlockID(nil), in.Succs...)
		s.Insts[i] = in
	}
	return s
}

// FromSnapshot rebuilds a Program from s. Handles are preserved.
// Only structural sanity (handle ranges, unique names) is checked here,
// typing is the verifier's job.
func FromSnapshot(s *Snapshot) (*Program, error) {
	p := NewProgram(s.ID)
	for i, t := range s.Types {
		if err := checkTypeRefs(t, len(s.Types)); err != nil {
			return nil, fmt.Errorf("type %v: %w", i, err)
		}
		key := p.typeKey(t)
		if _, ok := p.typeIdx[key]; ok {
			return nil, fmt.Errorf("type %v: duplicate type", i)
		}
		p.typeIdx[key] = TypeID(i)
		p.types = append(p.types, t)
	}
	for i, c := range s.Consts {
		if !p.ValidType(c.Type) {
			return nil, fmt.Errorf("const %v: bad type %v", i, c.Type)
		}
		p.consts = append(p.consts, c)
		switch c.Kind {
		case ConstInt, ConstNull, ConstZero:
			key := constKey{c.Kind, c.Type, c.Int}
			if _, ok := p.constIdx[key]; !ok {
				p.constIdx[key] = ConstID(i)
			}
		}
	}
	for i, fn := range s.Funcs {
		if !p.ValidType(fn.Type) || p.types[fn.Type].Kind != KindFunc {
			return nil, fmt.Errorf("function %v: bad type %v", fn.Name, fn.Type)
		}
		if len(fn.Params) != len(p.types[fn.Type].Params) {
			return nil, fmt.Errorf("function %v: %v params for signature %v",
				fn.Name, len(fn.Params), p.TypeString(fn.Type))
		}
		if _, ok := p.funcIdx[fn.Name]; ok {
			return nil, fmt.Errorf("function %v: duplicate name", fn.Name)
		}
		p.funcIdx[fn.Name] = FuncID(i)
		p.funcs = append(p.funcs, fn)
	}
	p.blocks = append(p.blocks, s.Blocks...)
	p.insts = append(p.insts, s.Insts...)
	for i, g := range s.Globals {
		if !p.ValidType(g.Type) {
			return nil, fmt.Errorf("global %v: bad type %v", g.Name, g.Type)
		}
		if g.Name != "" {
			if _, ok := p.globalIdx[g.Name]; ok {
				return nil, fmt.Errorf("global %v: duplicate name", g.Name)
			}
			if _, ok := p.funcIdx[g.Name]; ok {
				return nil, fmt.Errorf("global %v: clashes with a function", g.Name)
			}
			p.globalIdx[g.Name] = GlobalID(i)
		}
		p.globals = append(p.globals, g)
		p.registerState(GlobalID(i))
	}
	for i, fn := range p.funcs {
		for _, blk := range fn.Blocks {
			if !p.ValidBlock(blk) || p.blocks[blk].Func != FuncID(i) {
				return nil, fmt.Errorf("function %v: bad block %v", fn.Name, blk)
			}
		}
	}
	for i, blk := range p.blocks {
		for _, inst := range blk.Insts {
			if !p.ValidInst(inst) || p.insts[inst].Block != BlockID(i) {
				return nil, fmt.Errorf("block %v: bad instruction %v", i, inst)
			}
		}
	}
	return p, nil
}

func checkTypeRefs(t Type, n int) error {
	refs := append(append([]TypeID(nil), t.Fields...), t.Params...)
	switch t.Kind {
	case KindPtr, KindArray:
		refs = append(refs, t.Elem)
	case KindFunc:
		refs = append(refs, t.Ret)
	}
	for _, ref := range refs {
		if ref < 0 || int(ref) >= n {
			return fmt.Errorf("reference to type %v out of range", ref)
		}
	}
	return nil
}
