// Copyright 2026 kleerer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package ir

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/kleerer/pkg/log"
)

// testProgram builds a small module with a counter global and a function
// incrementing it.
func testProgram(t *testing.T) (*Program, FuncID, GlobalID) {
	p := NewProgram("m")
	i32 := p.Int(32)
	counter, err := p.AddGlobal("counter", i32, p.ConstInt(i32, 0))
	require.NoError(t, err)
	_, err = p.AddGlobal("ext", i32, Value{})
	require.NoError(t, err)
	fn, err := p.AddFunc("inc", p.FuncType(i32, false, i32), "n")
	require.NoError(t, err)
	b := p.NewBuilder(p.AddBlock(fn, "entry"))
	old := b.Load(GlobalRef(counter), true)
	sum := b.Binary(OpAdd, old, ParamRef(fn, 0), "sum")
	b.Store(sum, GlobalRef(counter), false)
	b.SetLoc(Loc{File: "inc.c", Line: 3, Col: 5, Scope: "inc"})
	b.Ret(sum)
	abort, err := p.AddFunc("abort", p.FuncType(p.Void(), false))
	require.NoError(t, err)
	p.Func(abort).NoReturn = true
	return p, fn, counter
}

func TestPrint(t *testing.T) {
	p, _, _ := testProgram(t)
	want := `; module m
@counter = global i32 i32 0
@ext = external global i32

define i32 @inc(i32 %n) {
entry:
  %0 = load volatile i32* @counter
  %sum.1 = add i32 %0, i32 %n
  store i32 %sum.1, i32* @counter
  ret i32 %sum.1 ; inc.c:3:5 (inc)
}

declare void @abort() noreturn
`
	if diff := cmp.Diff(want, p.String()); diff != "" {
		t.Fatal(diff)
	}
}

func TestTypes(t *testing.T) {
	p := NewProgram("m")
	i8, i32 := p.Int(8), p.Int(32)
	assert.Equal(t, i32, p.Int(32))
	assert.Equal(t, p.Ptr(i8), p.BytePtr())
	assert.NotEqual(t, p.Struct("", i8, i32), p.Struct("", i32, i8))
	assert.Equal(t, p.Struct("pair", i8, i32), p.Struct("pair", i8, i32))
	assert.Panics(t, func() { p.Struct("pair", i32) })

	tests := []struct {
		typ  TypeID
		want string
	}{
		{p.Void(), "void"},
		{p.Ptr(p.Ptr(i32)), "i32**"},
		{p.Array(4, i8), "[4 x i8]"},
		{p.Struct("", i8, p.BytePtr()), "{i8, i8*}"},
		{p.Struct("pair", i8, i32), "%pair"},
		{p.Opaque("struct.file"), "%struct.file"},
		{p.FuncType(i32, true, p.BytePtr()), "i32 (i8*, ...)"},
		{p.FuncType(p.Void(), false), "void ()"},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, p.TypeString(test.typ))
	}
	assert.True(t, p.IsInt(i8))
	assert.True(t, p.IsPtr(p.BytePtr()))
	assert.True(t, p.IsVoid(p.Void()))
	assert.Equal(t, i8, p.Elem(p.Array(4, i8)))
}

func TestLayout(t *testing.T) {
	p := NewProgram("m")
	dl := DefaultLayout
	i8, i16, i32, i64 := p.Int(8), p.Int(16), p.Int(32), p.Int(64)
	mixed := p.Struct("", i8, i32, i16)
	tests := []struct {
		typ   TypeID
		sized bool
		store int
		alloc int
		align int
		size  int
	}{
		{p.Int(1), true, 1, 1, 1, 1},
		{i16, true, 2, 2, 2, 2},
		{p.Int(24), true, 3, 4, 4, 4},
		{i64, true, 8, 8, 8, 8},
		{p.BytePtr(), true, 8, 8, 8, 8},
		{p.Array(3, i16), true, 6, 6, 2, 6},
		{mixed, true, 12, 12, 4, 12},
		{p.Struct("", i64, i8), true, 16, 16, 8, 16},
		{p.Opaque("struct.file"), false, 0, 0, 1, 100},
		{p.Struct("", i8, p.Opaque("struct.file")), false, 0, 0, 1, 100},
		{p.FuncType(p.Void(), false), false, 0, 0, 1, 8},
	}
	for i, test := range tests {
		assert.Equal(t, test.sized, dl.IsSized(p, test.typ), "#%v", i)
		if test.sized {
			assert.Equal(t, test.store, dl.StoreSize(p, test.typ), "#%v", i)
			assert.Equal(t, test.alloc, dl.AllocSize(p, test.typ), "#%v", i)
			assert.Equal(t, test.align, dl.AlignOf(p, test.typ), "#%v", i)
		}
		assert.Equal(t, test.size, dl.SizeOf(p, test.typ, 100), "#%v", i)
	}
	assert.Equal(t, 0, dl.FieldOffset(p, mixed, 0))
	assert.Equal(t, 4, dl.FieldOffset(p, mixed, 1))
	assert.Equal(t, 8, dl.FieldOffset(p, mixed, 2))
}

func TestNames(t *testing.T) {
	p, fn, counter := testProgram(t)
	_, err := p.AddFunc("inc", p.FuncType(p.Void(), false))
	assert.Error(t, err)
	_, err = p.AddFunc("counter", p.FuncType(p.Void(), false))
	assert.Error(t, err)
	_, err = p.AddGlobal("inc", p.Int(8), Value{})
	assert.Error(t, err)
	_, err = p.AddFunc("notfunc", p.Int(8))
	assert.Error(t, err)
	_, err = p.AddFunc("many", p.FuncType(p.Void(), false, p.Int(8)), "a", "b")
	assert.Error(t, err)

	got, ok := p.FuncByName("inc")
	assert.True(t, ok)
	assert.Equal(t, fn, got)
	g, ok := p.GlobalByName("counter")
	assert.True(t, ok)
	assert.Equal(t, counter, g)
	assert.Equal(t, "n", p.ParamName(fn, 0))

	// Unnamed globals do not clash.
	s1 := p.GlobalString("x")
	s2 := p.GlobalString("x")
	assert.NotEqual(t, s1, s2)

	id, created, err := p.GetOrInsertFunc("inc", p.Func(fn).Type)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, fn, id)
	_, _, err = p.GetOrInsertFunc("inc", p.FuncType(p.Void(), false))
	assert.Error(t, err)
	_, created, err = p.GetOrInsertFunc("fresh", p.FuncType(p.Void(), false))
	require.NoError(t, err)
	assert.True(t, created)
}

func TestConsts(t *testing.T) {
	p := NewProgram("m")
	i32 := p.Int(32)
	assert.Equal(t, p.ConstInt(i32, 7), p.ConstInt(i32, 7))
	assert.NotEqual(t, p.ConstInt(i32, 7), p.ConstInt(p.Int(64), 7))
	assert.Equal(t, ConstInt, p.Const(ConstID(p.ConstZero(i32).ID)).Kind)
	assert.Equal(t, ConstNull, p.Const(ConstID(p.ConstZero(p.BytePtr()).ID)).Kind)
	arr := p.Array(2, i32)
	assert.Equal(t, ConstZero, p.Const(ConstID(p.ConstZero(arr).ID)).Kind)

	str := p.GlobalString("hi")
	assert.Equal(t, p.BytePtr(), p.TypeOf(str))
	assert.Equal(t, "getelementptr inbounds ([3 x i8]* @.str0, i32 0, i32 0)", p.ValueName(str))
	g := p.Global(0)
	assert.True(t, g.Constant)
	assert.True(t, g.Private)
	assert.Equal(t, "hi\x00", p.Const(ConstID(g.Init.ID)).Bytes)
}

func TestStateVars(t *testing.T) {
	log.EnableLogCaching(100, 1<<20)
	defer log.DisableLogCaching()
	p := NewProgram("m")
	i32 := p.Int(32)
	a, err := p.AddGlobal("__ai_state_a", i32, p.ConstInt(i32, 0))
	require.NoError(t, err)
	_, err = p.AddGlobal("__ai_state_ptr", p.BytePtr(), p.ConstNull(p.BytePtr()))
	require.NoError(t, err)
	lock, err := p.AddGlobal("lock_held", p.Int(8), p.ConstInt(p.Int(8), 0))
	require.NoError(t, err)
	assert.Equal(t, []GlobalID{a}, p.StateVars())
	assert.True(t, p.IsStateVar(a))
	assert.False(t, p.IsStateVar(lock))
	assert.Contains(t, log.CachedLogOutput(),
		"m: ignoring state variable __ai_state_ptr of non-integer type i8*")

	p.SetStatePrefix("lock_")
	assert.Equal(t, "lock_", p.StatePrefix())
	assert.Equal(t, []GlobalID{lock}, p.StateVars())
	p.SetStatePrefix("")
	assert.Empty(t, p.StateVars())
}

func TestCheckpointRollback(t *testing.T) {
	p, fn, counter := testProgram(t)
	before := p.String()
	beforeState := p.StateVars()

	cp := p.Checkpoint()
	i32 := p.Int(32)
	sv, err := p.AddGlobal("__ai_state_x", i32, p.ConstInt(i32, 0))
	require.NoError(t, err)
	main, err := p.AddFunc("main", p.FuncType(i32, false))
	require.NoError(t, err)
	b := p.NewBuilder(p.AddBlock(main, "entry"))
	b.Call(FuncRef(fn), p.ConstInt(i32, 1))
	b.Store(p.ConstInt(i32, 0), GlobalRef(sv), true)
	b.Ret(p.ConstInt(i32, 0))
	// Appending to a pre-existing function is undone too.
	extra := p.AddBlock(fn, "extra")
	p.NewBuilder(extra).Ret(p.ConstInt(i32, 2))
	assert.Len(t, p.StateVars(), len(beforeState)+1)

	p.Rollback(cp)
	assert.Equal(t, before, p.String())
	assert.Equal(t, beforeState, p.StateVars())
	_, ok := p.FuncByName("main")
	assert.False(t, ok)
	_, ok = p.GlobalByName("__ai_state_x")
	assert.False(t, ok)
	assert.Len(t, p.Func(fn).Blocks, 1)

	// Names can be reused after a rollback.
	_, err = p.AddFunc("main", p.FuncType(i32, false))
	assert.NoError(t, err)

	// Initializer changes of surviving globals are not rolled back.
	cp = p.Checkpoint()
	p.SetInit(counter, p.ConstInt(i32, 5))
	p.Rollback(cp)
	assert.Equal(t, p.ConstInt(i32, 5), p.Global(counter).Init)
}

func TestSnapshotInits(t *testing.T) {
	p, _, counter := testProgram(t)
	i32 := p.Int(32)
	orig := p.Global(counter).Init
	snap := p.SnapshotInits()
	p.SetInit(counter, p.ConstInt(i32, 9))
	added, err := p.AddGlobal("later", i32, p.ConstInt(i32, 1))
	require.NoError(t, err)
	p.RestoreInits(snap)
	assert.Equal(t, orig, p.Global(counter).Init)
	assert.Equal(t, p.ConstInt(i32, 1), p.Global(added).Init)
}

func TestSnapshot(t *testing.T) {
	p, fn, _ := testProgram(t)
	p.GlobalString("msg")
	s := p.Snapshot()
	p2, err := FromSnapshot(s)
	require.NoError(t, err)
	assert.Equal(t, p.String(), p2.String())
	// The snapshot is a deep copy.
	s.Funcs[fn].Params[0].Name = "changed"
	s.Insts[0].Args[0] = Value{}
	assert.Equal(t, "n", p.ParamName(fn, 0))
	assert.True(t, p.Inst(0).Args[0].IsValid())

	// Interning continues to work on the rebuilt program.
	assert.Equal(t, p.Int(32), p2.Int(32))
	assert.Equal(t, p.ConstInt(p.Int(32), 0), p2.ConstInt(p2.Int(32), 0))
}

func TestFromSnapshotErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Snapshot)
	}{
		{"duplicate func", func(s *Snapshot) { s.Funcs[1].Name = s.Funcs[0].Name }},
		{"duplicate type", func(s *Snapshot) { s.Types = append(s.Types, s.Types[0]) }},
		{"bad type ref", func(s *Snapshot) { s.Globals[0].Type = 1000 }},
		{"bad block", func(s *Snapshot) { s.Funcs[0].Blocks = []BlockID{5} }},
		{"foreign inst", func(s *Snapshot) { s.Insts[0].Block = 7 }},
		{"params", func(s *Snapshot) { s.Funcs[0].Params = nil }},
		{"global clash", func(s *Snapshot) { s.Globals[0].Name = "inc" }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p, _, _ := testProgram(t)
			s := p.Snapshot()
			test.mutate(s)
			_, err := FromSnapshot(s)
			assert.Error(t, err)
		})
	}
}

func TestCallee(t *testing.T) {
	p, fn, _ := testProgram(t)
	i32 := p.Int(32)
	caller, err := p.AddFunc("caller", p.FuncType(p.Void(), false))
	require.NoError(t, err)
	b := p.NewBuilder(p.AddBlock(caller, ""))
	_, direct := b.Call(FuncRef(fn), p.ConstInt(i32, 1))
	cast := p.ConstBitCast(FuncRef(fn), p.Ptr(p.FuncType(p.Void(), true)))
	_, casted := b.Call(cast)
	b.SetLoc(Loc{File: "c.c", Line: 1})
	b.RetVoid()

	got, ok := p.Callee(direct)
	assert.True(t, ok)
	assert.Equal(t, fn, got)
	got, ok = p.Callee(casted)
	assert.True(t, ok)
	assert.Equal(t, fn, got)
	assert.Equal(t, p.Void(), p.Inst(casted).Type)
	_, ok = p.Callee(0)
	assert.False(t, ok)

	assert.Equal(t, Loc{File: "c.c", Line: 1}, p.LastLoc(caller))
	abort, _ := p.FuncByName("abort")
	assert.True(t, p.LastLoc(abort).IsZero())
	assert.Equal(t, "bb1", p.blockName(p.Func(caller).Blocks[0]))
}

func TestAllocaFront(t *testing.T) {
	p := NewProgram("m")
	fn, err := p.AddFunc("f", p.FuncType(p.Void(), false))
	require.NoError(t, err)
	blk := p.AddBlock(fn, "")
	b := p.NewBuilder(blk)
	b.Alloca(p.Int(8), "first")
	front := b.AllocaFront(p.Int(16), "front")
	b.RetVoid()
	insts := p.Block(blk).Insts
	require.Len(t, insts, 3)
	assert.Equal(t, front, InstRef(insts[0]))
	assert.Equal(t, p.Ptr(p.Int(16)), p.TypeOf(front))
	assert.Equal(t, blk, p.Inst(insts[0]).Block)
	term, ok := p.Block(blk).Terminator()
	assert.True(t, ok)
	assert.Equal(t, OpRet, p.Inst(term).Op)
}

func TestParse(t *testing.T) {
	for op := OpAlloca; op <= OpUnreachable; op++ {
		got, ok := ParseOpcode(op.String())
		assert.True(t, ok)
		assert.Equal(t, op, got)
	}
	for pred := PredEQ; pred <= PredSGE; pred++ {
		got, ok := ParsePredicate(pred.String())
		assert.True(t, ok)
		assert.Equal(t, pred, got)
	}
	for kind := KindVoid; kind <= KindOpaque; kind++ {
		got, ok := ParseTypeKind(kind.String())
		assert.True(t, ok)
		assert.Equal(t, kind, got)
	}
	_, ok := ParseOpcode("fadd")
	assert.False(t, ok)
	assert.True(t, OpCondBr.IsTerminator())
	assert.False(t, OpCall.IsTerminator())
}
