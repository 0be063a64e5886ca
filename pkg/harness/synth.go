// Copyright 2026 kleerer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package harness

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/kleerer/pkg/ir"
	"github.com/google/kleerer/pkg/log"
	"github.com/google/kleerer/pkg/verify"
)

const (
	anonParam  = "noname"
	abortMsg   = "leaving function with lock held"
	abortFile  = "n/a"
	abortLine  = 0
	symSizeVar = "make_symbolic_size"
)

// synth holds the state of one harness construction.
type synth struct {
	*Generator
	p        *ir.Program
	target   ir.FuncID
	main     ir.FuncID
	b        *ir.Builder
	symbolic ir.Value
	i8p      ir.TypeID
	i32      ir.TypeID
	i64      ir.TypeID
}

// synthesize builds the entry function for target and returns it.
func (g *Generator) synthesize(target ir.FuncID) (ir.FuncID, error) {
	p := g.prog
	s := &synth{
		Generator: g,
		p:         p,
		target:    target,
		i8p:       p.BytePtr(),
		i32:       p.Int(32),
		i64:       p.Int(64),
	}
	var err error
	if s.main, err = s.entry(); err != nil {
		return 0, err
	}
	s.b = p.NewBuilder(p.AddBlock(s.main, "entry"))
	symType := p.FuncType(p.Void(), false, s.i8p, s.i32, s.i8p)
	if s.symbolic, err = s.declare(g.cfg.SymbolicFunc, symType, false); err != nil {
		return 0, err
	}
	args, err := s.arguments()
	if err != nil {
		return 0, err
	}
	s.resetState()
	s.defineExterns()
	if err := s.checkSignature(args); err != nil {
		return 0, err
	}
	s.b.Call(ir.FuncRef(target), args...)
	final, err := s.checkState(p.LastLoc(target))
	if err != nil {
		return 0, err
	}
	s.b.SetBlock(final)
	s.b.Ret(p.ConstInt(s.i32, 0))
	return s.main, nil
}

// entry creates the parameterless entry function returning i32.
// A matching declaration is reused, a definition is an error
// unless the fallback name is configured and still free.
func (s *synth) entry() (ir.FuncID, error) {
	fn, err := s.entryNamed(s.cfg.EntryFunc)
	if errors.Is(err, ErrEntryExists) && s.cfg.EntryFallback != "" {
		return s.entryNamed(s.cfg.EntryFallback)
	}
	return fn, err
}

func (s *synth) entryNamed(name string) (ir.FuncID, error) {
	p := s.p
	typ := p.FuncType(s.i32, false)
	fn, ok := p.FuncByName(name)
	if !ok {
		return p.AddFunc(name, typ)
	}
	if !p.Func(fn).IsDeclaration() {
		return 0, fmt.Errorf("%w: %v", ErrEntryExists, name)
	}
	if have := p.Func(fn).Type; have != typ {
		return 0, fmt.Errorf("entry function %v is declared as %v", name, p.TypeString(have))
	}
	return fn, nil
}

// declare returns a callee value of type typ for the external function name.
// A function declared with a different type is called through a cast.
func (s *synth) declare(name string, typ ir.TypeID, noReturn bool) (ir.Value, error) {
	p := s.p
	fn, ok := p.FuncByName(name)
	if !ok {
		fn, err := p.AddFunc(name, typ)
		if err != nil {
			return ir.Value{}, err
		}
		p.Func(fn).NoReturn = noReturn
		return ir.FuncRef(fn), nil
	}
	if p.Func(fn).Type == typ {
		return ir.FuncRef(fn), nil
	}
	log.Logf(2, "%v is declared as %v, calling it as %v",
		name, p.TypeString(p.Func(fn).Type), p.TypeString(typ))
	return p.ConstBitCast(ir.FuncRef(fn), p.Ptr(typ)), nil
}

// arguments builds one symbolic argument per pointer or integer parameter
// of the target. Parameters of other types are dropped.
func (s *synth) arguments() ([]ir.Value, error) {
	p := s.p
	params := p.Type(p.Func(s.target).Type).Params
	var args []ir.Value
	for i, typ := range params {
		name := p.ParamName(s.target, i)
		if name == "" {
			name = anonParam
		}
		switch {
		case p.IsPtr(typ):
			arg, err := s.pointerArg(typ, name)
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
		case p.IsInt(typ):
			args = append(args, s.intArg(typ, name))
		default:
			log.Logf(1, "%v: dropping parameter %v of type %v",
				displayName(p.Func(s.target).Name), name, p.TypeString(typ))
		}
	}
	return args, nil
}

// pointerArg allocates a symbolic buffer of BufferElems pointees and returns
// the address of its element BufferOffset cast to typ.
func (s *synth) pointerArg(typ ir.TypeID, name string) (ir.Value, error) {
	p, b := s.p, s.b
	size := s.layout.SizeOf(p, p.Elem(typ), s.cfg.UnsizedSize)
	// The symbolic size is an i32 argument while the allocation size is i64.
	total := int64(size) * int64(s.cfg.BufferElems)
	if total > math.MaxInt32 {
		return ir.Value{}, fmt.Errorf("parameter %v: symbolic buffer of %v bytes does not fit in i32",
			name, total)
	}
	alloc, err := s.declare(s.cfg.AllocFunc, p.FuncType(s.i8p, false, s.i64), false)
	if err != nil {
		return ir.Value{}, err
	}
	buf, _ := b.Call(alloc, p.ConstInt(s.i64, total))
	symSize := b.Binary(ir.OpMul, p.ConstInt(s.i32, int64(s.cfg.BufferElems)),
		p.ConstInt(s.i32, int64(size)), symSizeVar)
	b.Call(s.symbolic, buf, symSize, p.GlobalString(name))
	arg := b.GEP(p.Int(8), buf, p.ConstInt(s.i64, int64(size)*int64(s.cfg.BufferOffset)))
	if typ != s.i8p {
		arg = b.BitCast(arg, typ)
	}
	return arg, nil
}

// intArg allocates a symbolic scalar at the start of the entry block and loads it.
func (s *synth) intArg(typ ir.TypeID, name string) ir.Value {
	p, b := s.p, s.b
	cell := b.AllocaFront(typ, "")
	b.Call(s.symbolic, s.bytePtr(cell), s.sizeOf(typ), p.GlobalString(name))
	return b.Load(cell, false)
}

// resetState zero-initializes every state variable, marks it symbolic and
// then stores a concrete zero into it, so its value at entry is zero.
func (s *synth) resetState() {
	p, b := s.p, s.b
	for _, sv := range p.StateVars() {
		g := p.Global(sv)
		typ, name := g.Type, g.Name
		zero := p.ConstZero(typ)
		p.SetInit(sv, zero)
		b.Call(s.symbolic, s.bytePtr(ir.GlobalRef(sv)), s.sizeOf(typ), p.GlobalString(name))
		b.Store(zero, ir.GlobalRef(sv), true)
	}
}

// defineExterns gives external global declarations a zero initializer.
func (s *synth) defineExterns() {
	p := s.p
	for _, id := range p.Globals() {
		g := p.Global(id)
		if !g.IsDeclaration() {
			continue
		}
		if !s.layout.IsSized(p, g.Type) {
			log.Logf(1, "cannot define external global %v of type %v", g.Name, p.TypeString(g.Type))
			continue
		}
		p.SetInit(id, p.ConstZero(g.Type))
	}
}

func (s *synth) checkSignature(args []ir.Value) error {
	p := s.p
	fn := p.Func(s.target)
	if err := verify.CheckArgs(p, fn.Type, args); err != nil {
		return &SignatureError{
			Func:   displayName(fn.Name),
			Sig:    p.TypeString(fn.Type),
			Params: len(fn.Params),
			Args:   len(args),
			Err:    err,
		}
	}
	return nil
}

func (s *synth) bytePtr(v ir.Value) ir.Value {
	if s.p.TypeOf(v) == s.i8p {
		return v
	}
	return s.b.BitCast(v, s.i8p)
}

func (s *synth) sizeOf(typ ir.TypeID) ir.Value {
	return s.p.ConstInt(s.i32, int64(s.layout.SizeOf(s.p, typ, s.cfg.UnsizedSize)))
}
