// Copyright 2026 kleerer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package harness

import (
	"github.com/google/kleerer/pkg/ir"
)

// checkState terminates the current block with a check that the sum of all
// state variables is zero. On success control goes to the returned "final"
// block, otherwise the abort function is called with loc attached.
func (s *synth) checkState(loc ir.Loc) (ir.BlockID, error) {
	p, b := s.p, s.b
	final := p.AddBlock(s.main, "final")
	assertBB := p.AddBlock(s.main, "assertBB")

	abortType := p.FuncType(p.Void(), false, s.i8p, s.i8p, s.i32, s.i8p)
	abort, err := s.declare(s.cfg.AbortFunc, abortType, true)
	if err != nil {
		return 0, err
	}
	ab := p.NewBuilder(assertBB)
	ab.SetLoc(loc)
	ab.Call(abort, p.GlobalString(abortMsg), p.GlobalString(abortFile),
		p.ConstInt(s.i32, abortLine), p.GlobalString(p.Func(s.main).Name))
	ab.SetLoc(ir.Loc{})
	ab.Unreachable()

	sumType := s.sumType()
	sum := p.ConstInt(sumType, 0)
	for _, sv := range p.StateVars() {
		val := b.Load(ir.GlobalRef(sv), true)
		if p.TypeOf(val) != sumType {
			val = b.ZExt(val, sumType)
		}
		sum = b.Binary(ir.OpAdd, val, sum, "")
	}
	isZero := b.ICmp(ir.PredEQ, sum, p.ConstInt(sumType, 0))
	b.CondBr(isZero, final, assertBB)
	return final, nil
}

// sumType is i32 or the widest state variable type if that is wider.
func (s *synth) sumType() ir.TypeID {
	p := s.p
	bits := 32
	for _, sv := range p.StateVars() {
		if w := p.Type(p.Global(sv).Type).Bits; w > bits {
			bits = w
		}
	}
	return p.Int(bits)
}
