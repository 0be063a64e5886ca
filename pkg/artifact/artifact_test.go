// Copyright 2026 kleerer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package artifact

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
	"gopkg.in/yaml.v3"

	"github.com/google/kleerer/pkg/ir"
	"github.com/google/kleerer/pkg/log"
	"github.com/google/kleerer/pkg/verify"
)

func testProgram(t *testing.T) *ir.Program {
	p := ir.NewProgram("drivers/foo.bc")
	i32, i64 := p.Int(32), p.Int(64)
	pair := p.Struct("struct.pair", i32, p.BytePtr())
	_, err := p.AddGlobal("__ai_state_lock", i32, p.ConstInt(i32, 0))
	require.NoError(t, err)
	_, err = p.AddGlobal("table", p.Array(2, pair), p.ConstZero(p.Array(2, pair)))
	require.NoError(t, err)
	_, err = p.AddGlobal("ext", p.Opaque("struct.file"), ir.Value{})
	require.NoError(t, err)
	sym, err := p.AddFunc("klee_make_symbolic", p.FuncType(p.Void(), false, p.BytePtr(), i32, p.BytePtr()))
	require.NoError(t, err)
	abort, err := p.AddFunc("__assert_fail", p.FuncType(p.Void(), true, p.BytePtr()))
	require.NoError(t, err)
	p.Func(abort).NoReturn = true
	fn, err := p.AddFunc("foo", p.FuncType(i32, false, p.Ptr(pair), i64), "arg", "")
	require.NoError(t, err)
	entry := p.AddBlock(fn, "entry")
	fail := p.AddBlock(fn, "")
	done := p.AddBlock(fn, "done")
	b := p.NewBuilder(entry)
	cell := b.AllocaFront(i64, "cell")
	b.Store(ir.ParamRef(fn, 1), cell, false)
	b.Call(ir.FuncRef(sym), b.BitCast(cell, p.BytePtr()), p.ConstInt(i32, 8), p.GlobalString("cell"))
	elem := b.GEP(pair, ir.ParamRef(fn, 0), p.ConstInt(i64, 1))
	val := b.Binary(ir.OpMul, b.Load(cell, true), p.ConstInt(i64, 3), "scaled")
	b.SetLoc(ir.Loc{File: "foo.c", Line: 12, Col: 3, Scope: "foo"})
	cond := b.ICmp(ir.PredSLT, val, p.ConstInt(i64, 0))
	b.CondBr(cond, fail, done)
	b.SetBlock(fail)
	b.Call(p.ConstBitCast(ir.FuncRef(abort), p.Ptr(p.FuncType(p.Void(), false))))
	b.Unreachable()
	b.SetBlock(done)
	b.Ret(b.Load(b.BitCast(elem, p.Ptr(i32)), false))
	require.NoError(t, verify.Verify(p))
	return p
}

func TestRoundTrip(t *testing.T) {
	p := testProgram(t)
	buf := new(bytes.Buffer)
	require.NoError(t, Encode(buf, p, "run-1"))
	p1, hdr, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, &Header{Format: Format, Run: "run-1", Module: "drivers/foo.bc"}, hdr)
	if diff := cmp.Diff(p.String(), p1.String()); diff != "" {
		t.Fatal(diff)
	}
	require.NoError(t, verify.Verify(p1))
	assert.Equal(t, p.StateVars(), p1.StateVars())
	fn, ok := p1.FuncByName("foo")
	require.True(t, ok)
	assert.Equal(t, "arg", p1.ParamName(fn, 0))
	abort, _ := p1.FuncByName("__assert_fail")
	assert.True(t, p1.Func(abort).NoReturn)
}

func TestPrunesOrphanedConsts(t *testing.T) {
	p := testProgram(t)
	cp := p.Checkpoint()
	g := p.GlobalString("scaffolding")
	_, err := p.AddGlobal("tmp", p.BytePtr(), g)
	require.NoError(t, err)
	p.Rollback(cp)
	// The string and its address now refer to removed globals.
	live := len(liveConsts(p.Snapshot()))
	assert.Less(t, live, p.NumConsts())

	buf := new(bytes.Buffer)
	require.NoError(t, Encode(buf, p, ""))
	p1, _, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, live, p1.NumConsts())
	assert.Equal(t, p.String(), p1.String())
	require.NoError(t, verify.Verify(p1))
}

func TestSaveLoad(t *testing.T) {
	p := testProgram(t)
	path := filepath.Join(t.TempDir(), "prog.o")
	require.NoError(t, Save(path, p, ""))
	p1, hdr, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, hdr.Run)
	assert.Equal(t, p.String(), p1.String())

	_, _, err = Load(filepath.Join(t.TempDir(), "missing.o"))
	assert.Error(t, err)
}

func TestWriter(t *testing.T) {
	assert.Equal(t, "drivers/foo.bc.main.foo.o", Name("drivers/foo.bc", "foo"))

	log.EnableLogCaching(100, 1<<20)
	defer log.DisableLogCaching()
	p := testProgram(t)
	p.ID = "foo.bc"
	dir := t.TempDir()
	w := NewWriter(dir)
	path, err := w.Write(p, "foo")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "foo.bc.main.foo.o"), path)
	_, hdr, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, w.RunID(), hdr.Run)
	assert.NotEmpty(t, hdr.Run)
	assert.Contains(t, log.CachedLogOutput(), "writeMain: written: '"+path+"'")

	// A regular file where the output directory should be.
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))
	bad := NewWriter(blocker)
	assert.NotEqual(t, w.RunID(), bad.RunID())
	_, err = bad.Write(p, "foo")
	assert.Error(t, err)
	assert.Contains(t, log.CachedLogOutput(), "writeMain: cannot write '")
}

func TestWriterModuleDirs(t *testing.T) {
	tests := []struct {
		module string
		want   string
	}{
		{"drivers/foo.c", "drivers/foo.c.main.foo.o"},
		{"drivers/net/foo.bc", "drivers/net/foo.bc.main.foo.o"},
		{"/usr/src/foo.c", "usr/src/foo.c.main.foo.o"},
		{"../../foo.c", "foo.c.main.foo.o"},
	}
	for _, test := range tests {
		t.Run(test.module, func(t *testing.T) {
			p := testProgram(t)
			p.ID = test.module
			dir := t.TempDir()
			w := NewWriter(dir)
			path, err := w.Write(p, "foo")
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, test.want), path)
			p1, hdr, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, test.module, hdr.Module)
			assert.Equal(t, p.String(), p1.String())
		})
	}
}

func TestSaveCreatesDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "prog.o")
	require.NoError(t, Save(path, testProgram(t), ""))
	_, _, err := Load(path)
	assert.NoError(t, err)
}

func encodeDoc(t *testing.T, doc *document) *bytes.Buffer {
	buf := new(bytes.Buffer)
	xw, err := xz.NewWriter(buf)
	require.NoError(t, err)
	enc := yaml.NewEncoder(xw)
	require.NoError(t, enc.Encode(doc))
	require.NoError(t, enc.Close())
	require.NoError(t, xw.Close())
	return buf
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(doc *document)
		err    string
	}{
		{"format", func(doc *document) { doc.Format = "kleerer-ir/0" }, "unsupported container format"},
		{"type kind", func(doc *document) { doc.Types[0].Kind = "float" }, "unknown kind"},
		{"opcode", func(doc *document) { doc.Insts[0].Op = "fadd" }, "unknown opcode"},
		{"predicate", func(doc *document) {
			for i := range doc.Insts {
				if doc.Insts[i].Op == "icmp" {
					doc.Insts[i].Pred = "lt"
				}
			}
		}, "unknown predicate"},
		{"value ref", func(doc *document) { doc.Insts[1].Args[0] = "x:1" }, "bad value ref"},
		{"value ref number", func(doc *document) { doc.Insts[1].Args[0] = "i:one" }, "bad value ref"},
		{"duplicate function", func(doc *document) { doc.Funcs[1].Name = doc.Funcs[0].Name }, "duplicate name"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			doc := encode(testProgram(t), "")
			test.mutate(doc)
			_, _, err := Decode(encodeDoc(t, doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), test.err)
		})
	}
}

func TestDecodeUnknownField(t *testing.T) {
	buf := new(bytes.Buffer)
	xw, err := xz.NewWriter(buf)
	require.NoError(t, err)
	_, err = xw.Write([]byte("format: kleerer-ir/1\nmodule: m\ntypes: []\nextra: 1\n"))
	require.NoError(t, err)
	require.NoError(t, xw.Close())
	_, _, err = Decode(buf)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "extra"), err.Error())

	_, _, err = Decode(strings.NewReader("not xz"))
	assert.Error(t, err)
}

func TestSaveOverDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub")
	require.NoError(t, os.Mkdir(path, 0755))
	assert.Error(t, Save(path, testProgram(t), ""))
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestValueRefs(t *testing.T) {
	constMap := map[ir.ConstID]int32{7: 2}
	tests := []struct {
		v   ir.Value
		ref string
	}{
		{ir.Value{}, ""},
		{ir.InstRef(3), "i:3"},
		{ir.ParamRef(4, 1), "p:4:1"},
		{ir.GlobalRef(5), "g:5"},
		{ir.FuncRef(6), "f:6"},
	}
	for _, test := range tests {
		ref := formatValue(test.v, constMap)
		assert.Equal(t, test.ref, ref)
		v, err := parseValue(ref)
		require.NoError(t, err)
		assert.Equal(t, test.v, v)
	}
	assert.Equal(t, "c:2", formatValue(ir.ConstRef(7), constMap))
	for _, bad := range []string{"i", "p:1", "i:1:2", "q:1", "g:"} {
		_, err := parseValue(bad)
		assert.Error(t, err, bad)
	}
}
