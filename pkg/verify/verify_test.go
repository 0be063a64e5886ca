// Copyright 2026 kleerer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package verify

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/kleerer/pkg/ir"
)

type testProg struct {
	p                      *ir.Program
	fn, callee, other      ir.FuncID
	g                      ir.GlobalID
	entry, then, els, join ir.BlockID
	slot, load, sum, zext  ir.InstID
	store, call, vararg    ir.InstID
	cast, gep, cmp, condbr ir.InstID
	thenVal, thenBr, ret   ir.InstID
	otherVal               ir.InstID
}

func addFunc(t *testing.T, p *ir.Program, name string, typ ir.TypeID, params ...string) ir.FuncID {
	fn, err := p.AddFunc(name, typ, params...)
	require.NoError(t, err)
	return fn
}

func inst(v ir.Value) ir.InstID {
	return ir.InstID(v.ID)
}

// build returns a well-formed program with a diamond-shaped function f.
func build(t *testing.T) *testProg {
	p := ir.NewProgram("m")
	tp := &testProg{p: p}
	i32, i64 := p.Int(32), p.Int(64)
	var err error
	tp.g, err = p.AddGlobal("g", i32, p.ConstInt(i32, 0))
	require.NoError(t, err)
	tp.callee = addFunc(t, p, "callee", p.FuncType(i32, false, i32, p.BytePtr()))
	printf := addFunc(t, p, "printf", p.FuncType(i32, true, p.BytePtr()))
	tp.fn = addFunc(t, p, "f", p.FuncType(i32, false, i32), "x")
	tp.entry = p.AddBlock(tp.fn, "entry")
	tp.then = p.AddBlock(tp.fn, "then")
	tp.els = p.AddBlock(tp.fn, "else")
	tp.join = p.AddBlock(tp.fn, "join")

	b := p.NewBuilder(tp.entry)
	slot := b.Alloca(i64, "slot")
	load := b.Load(ir.GlobalRef(tp.g), false)
	sum := b.Binary(ir.OpAdd, load, ir.ParamRef(tp.fn, 0), "sum")
	zext := b.ZExt(sum, i64)
	tp.store = b.Store(zext, slot, false)
	str := p.GlobalString("fmt")
	res, call := b.Call(ir.FuncRef(tp.callee), sum, str)
	_, tp.vararg = b.Call(ir.FuncRef(printf), str, sum, zext)
	cast := b.BitCast(slot, p.BytePtr())
	gep := b.GEP(p.Int(8), cast, p.ConstInt(i64, 4))
	cmp := b.ICmp(ir.PredEQ, res, p.ConstInt(i32, 0))
	tp.condbr = b.CondBr(cmp, tp.then, tp.els)
	tp.slot, tp.load, tp.sum, tp.zext = inst(slot), inst(load), inst(sum), inst(zext)
	tp.call, tp.cast, tp.gep, tp.cmp = call, inst(cast), inst(gep), inst(cmp)

	b.SetBlock(tp.then)
	tp.thenVal = inst(b.Load(ir.GlobalRef(tp.g), true))
	tp.thenBr = b.Br(tp.join)
	b.SetBlock(tp.els)
	b.Store(p.ConstInt(i32, 1), ir.GlobalRef(tp.g), true)
	b.Br(tp.join)
	b.SetBlock(tp.join)
	tp.ret = b.Ret(res)

	tp.other = addFunc(t, p, "other", p.FuncType(p.Void(), false))
	b = p.NewBuilder(p.AddBlock(tp.other, ""))
	tp.otherVal = inst(b.Alloca(i32, ""))
	b.RetVoid()
	return tp
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(tp *testProg)
		err    string
	}{
		{
			name:   "valid",
			mutate: func(tp *testProg) {},
		},
		{
			name: "unreachable block",
			mutate: func(tp *testProg) {
				dead := tp.p.AddBlock(tp.fn, "dead")
				tp.p.NewBuilder(dead).Ret(ir.InstRef(tp.thenVal))
			},
		},
		{
			name: "orphaned constant",
			mutate: func(tp *testProg) {
				tp.p.ConstBitCast(tp.p.ConstInt(tp.p.Int(32), 1), tp.p.BytePtr())
			},
		},
		{
			name:   "dominance",
			mutate: func(tp *testProg) { tp.p.Inst(tp.ret).Args[0] = ir.InstRef(tp.thenVal) },
			err:    "does not dominate its use",
		},
		{
			name:   "use before def",
			mutate: func(tp *testProg) { tp.p.Inst(tp.sum).Args[0] = ir.InstRef(tp.call) },
			err:    "used before its definition",
		},
		{
			name:   "return type",
			mutate: func(tp *testProg) { tp.p.Inst(tp.ret).Args[0] = ir.InstRef(tp.zext) },
			err:    "returning i64 from function returning i32",
		},
		{
			name:   "missing return value",
			mutate: func(tp *testProg) { tp.p.Inst(tp.ret).Args = nil },
			err:    "missing return value",
		},
		{
			name:   "call arity",
			mutate: func(tp *testProg) { tp.p.Inst(tp.call).Args = tp.p.Inst(tp.call).Args[:1] },
			err:    "1 arguments for signature i32 (i32, i8*)",
		},
		{
			name:   "call argument type",
			mutate: func(tp *testProg) { tp.p.Inst(tp.call).Args[0] = ir.InstRef(tp.zext) },
			err:    "argument 0 has type i64, want i32",
		},
		{
			name:   "variadic arity",
			mutate: func(tp *testProg) { tp.p.Inst(tp.vararg).Args = nil },
			err:    "0 arguments for signature i32 (i8*, ...)",
		},
		{
			name:   "call through non-function",
			mutate: func(tp *testProg) { tp.p.Inst(tp.call).Callee = ir.GlobalRef(tp.g) },
			err:    "call through non-function i32*",
		},
		{
			name:   "call result",
			mutate: func(tp *testProg) { tp.p.Inst(tp.vararg).Type = tp.p.Int(64) },
			err:    "call result i64, callee returns i32",
		},
		{
			name: "missing terminator",
			mutate: func(tp *testProg) {
				blk := tp.p.Block(tp.els)
				blk.Insts = blk.Insts[:1]
			},
			err: "block does not end with a terminator (store)",
		},
		{
			name: "terminator in the middle",
			mutate: func(tp *testProg) {
				blk := tp.p.Block(tp.then)
				blk.Insts[0], blk.Insts[1] = blk.Insts[1], blk.Insts[0]
			},
			err: "terminator br in the middle of the block",
		},
		{
			name: "empty block",
			mutate: func(tp *testProg) {
				tp.p.AddBlock(tp.fn, "empty")
			},
			err: "empty block",
		},
		{
			name:   "branch to entry",
			mutate: func(tp *testProg) { tp.p.Inst(tp.thenBr).Succs[0] = tp.entry },
			err:    "branch to the entry block",
		},
		{
			name: "branch to foreign block",
			mutate: func(tp *testProg) {
				tp.p.Inst(tp.thenBr).Succs[0] = tp.p.Func(tp.other).Blocks[0]
			},
			err: "branch to foreign block",
		},
		{
			name:   "foreign instruction",
			mutate: func(tp *testProg) { tp.p.Inst(tp.thenVal).Block = tp.els },
			err:    "does not belong to the block",
		},
		{
			name:   "store type",
			mutate: func(tp *testProg) { tp.p.Inst(tp.store).Args[0] = ir.InstRef(tp.sum) },
			err:    "@f: %entry: instruction 4 (store): store of i32 to i64*",
		},
		{
			name:   "load type",
			mutate: func(tp *testProg) { tp.p.Inst(tp.load).Type = tp.p.Int(64) },
			err:    "load of i64 from i32*",
		},
		{
			name:   "zext",
			mutate: func(tp *testProg) { tp.p.Inst(tp.zext).Type = tp.p.Int(32) },
			err:    "invalid zext from i32 to i32",
		},
		{
			name:   "bitcast",
			mutate: func(tp *testProg) { tp.p.Inst(tp.cast).Args[0] = ir.InstRef(tp.sum) },
			err:    "invalid bitcast from i32 to i8*",
		},
		{
			name:   "gep index",
			mutate: func(tp *testProg) { tp.p.Inst(tp.gep).Args[1] = ir.InstRef(tp.cast) },
			err:    "getelementptr index of type i8*",
		},
		{
			name:   "gep base",
			mutate: func(tp *testProg) { tp.p.Inst(tp.gep).Args[0] = ir.InstRef(tp.slot) },
			err:    "getelementptr over i8 with base i64*",
		},
		{
			name:   "binary",
			mutate: func(tp *testProg) { tp.p.Inst(tp.sum).Args[1] = ir.InstRef(tp.zext) },
			err:    "add of i32 and i64",
		},
		{
			name:   "icmp",
			mutate: func(tp *testProg) { tp.p.Inst(tp.cmp).Args[1] = tp.p.ConstInt(tp.p.Int(64), 0) },
			err:    "icmp of i32 and i64",
		},
		{
			name:   "branch condition",
			mutate: func(tp *testProg) { tp.p.Inst(tp.condbr).Args[0] = ir.InstRef(tp.sum) },
			err:    "branch condition of type i32",
		},
		{
			name:   "alloca",
			mutate: func(tp *testProg) { tp.p.Inst(tp.slot).Elem = tp.p.Opaque("struct.file") },
			err:    "alloca of unsized type",
		},
		{
			name:   "void result",
			mutate: func(tp *testProg) { tp.p.Inst(tp.load).Type = tp.p.Void() },
			err:    "void result",
		},
		{
			name:   "operand count",
			mutate: func(tp *testProg) { tp.p.Inst(tp.store).Args = tp.p.Inst(tp.store).Args[:1] },
			err:    "1 operands, want 2",
		},
		{
			name:   "dangling operand",
			mutate: func(tp *testProg) { tp.p.Inst(tp.sum).Args[0] = ir.InstRef(9999) },
			err:    "dangling operand",
		},
		{
			name:   "operand of another function",
			mutate: func(tp *testProg) { tp.p.Inst(tp.cast).Args[0] = ir.InstRef(tp.otherVal) },
			err:    "is defined in another function",
		},
		{
			name:   "parameter of another function",
			mutate: func(tp *testProg) { tp.p.Inst(tp.sum).Args[1] = ir.ParamRef(tp.callee, 0) },
			err:    "is a parameter of another function",
		},
		{
			name:   "operand without value",
			mutate: func(tp *testProg) { tp.p.Inst(tp.cast).Args[0] = ir.InstRef(tp.store) },
			err:    "has no value",
		},
		{
			name: "initializer type",
			mutate: func(tp *testProg) {
				tp.p.SetInit(tp.g, tp.p.ConstInt(tp.p.Int(64), 0))
			},
			err: "global g: initializer type i64 does not match i32",
		},
		{
			name:   "initializer not constant",
			mutate: func(tp *testProg) { tp.p.SetInit(tp.g, ir.InstRef(tp.slot)) },
			err:    "global g: initializer",
		},
		{
			name: "constant array",
			mutate: func(tp *testProg) {
				p := tp.p
				arr := p.ConstArray(p.Int(32), []ir.Value{p.ConstInt(p.Int(64), 1)})
				_, err := p.AddGlobal("arr", p.Array(1, p.Int(32)), arr)
				if err != nil {
					panic(err)
				}
			},
			err: "element 0 has type i64, want i32",
		},
		{
			name: "constant bitcast",
			mutate: func(tp *testProg) {
				p := tp.p
				_, err := p.AddGlobal("bad", p.BytePtr(), p.ConstBitCast(p.ConstInt(p.Int(32), 1), p.BytePtr()))
				if err != nil {
					panic(err)
				}
			},
			err: "invalid bitcast from i32 to i8*",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			tp := build(t)
			test.mutate(tp)
			err := Verify(tp.p)
			if test.err == "" {
				require.NoError(t, err, "program:\n%v", tp.p)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), test.err)
			var errs Errors
			assert.True(t, errors.As(err, &errs))
		})
	}
}

func TestErrorLimit(t *testing.T) {
	var errs Errors
	for i := 0; i < 15; i++ {
		errs = append(errs, &Error{Func: "f", Msg: fmt.Sprintf("problem %v", i)})
	}
	msg := errs.Error()
	assert.Contains(t, msg, "15 verification error(s)")
	assert.Contains(t, msg, "@f: problem 9")
	assert.NotContains(t, msg, "problem 10")
	assert.Contains(t, msg, "... and 5 more")
	assert.Equal(t, "bare", (&Error{Msg: "bare"}).Error())
}

func TestCheckArgs(t *testing.T) {
	p := ir.NewProgram("m")
	i32 := p.Int(32)
	one := p.ConstInt(i32, 1)
	str := p.GlobalString("s")
	fixed := p.FuncType(p.Void(), false, i32)
	variadic := p.FuncType(p.Void(), true, p.BytePtr())
	assert.NoError(t, CheckArgs(p, fixed, []ir.Value{one}))
	assert.Error(t, CheckArgs(p, fixed, nil))
	assert.Error(t, CheckArgs(p, fixed, []ir.Value{one, one}))
	assert.Error(t, CheckArgs(p, fixed, []ir.Value{str}))
	assert.NoError(t, CheckArgs(p, variadic, []ir.Value{str}))
	assert.NoError(t, CheckArgs(p, variadic, []ir.Value{str, one, str}))
	assert.Error(t, CheckArgs(p, variadic, nil))
	assert.Error(t, CheckArgs(p, variadic, []ir.Value{one}))
}

func TestChecker(t *testing.T) {
	var v Verifier = Checker{}
	assert.NoError(t, v.Verify(build(t).p))
}
