// Copyright 2026 kleerer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package verify checks well-formedness of pkg/ir programs: handle validity,
// operand and call typing, block termination and dominance of definitions
// over their uses.
package verify

import (
	"fmt"
	"strings"

	"golang.org/x/tools/container/intsets"

	"github.com/google/kleerer/pkg/ir"
)

// Verifier is the interface consumed by the harness generator.
type Verifier interface {
	Verify(p *ir.Program) error
}

// Checker is the default Verifier.
type Checker struct{}

var _ Verifier = Checker{}

func (Checker) Verify(p *ir.Program) error {
	return Verify(p)
}

// Error describes a single well-formedness violation.
type Error struct {
	Func  string
	Block string
	Inst  string
	Msg   string
}

func (e *Error) Error() string {
	var where []string
	if e.Func != "" {
		where = append(where, "@"+e.Func)
	}
	if e.Block != "" {
		where = append(where, "%"+e.Block)
	}
	if e.Inst != "" {
		where = append(where, e.Inst)
	}
	if len(where) == 0 {
		return e.Msg
	}
	return strings.Join(where, ": ") + ": " + e.Msg
}

// Errors is returned by Verify when the program is malformed.
type Errors []*Error

const maxReported = 10

func (errs Errors) Error() string {
	var msgs []string
	for i, err := range errs {
		if i == maxReported {
			msgs = append(msgs, fmt.Sprintf("... and %v more", len(errs)-maxReported))
			break
		}
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%v verification error(s):\n%v", len(errs), strings.Join(msgs, "\n"))
}

type verifier struct {
	p    *ir.Program
	errs Errors
	fn   ir.FuncID
	blk  ir.BlockID
	inst ir.InstID
	// Context of the currently checked entity, for error messages.
	inFunc, inBlock, inInst bool
}

// Verify returns nil if p is well-formed, or Errors otherwise.
func Verify(p *ir.Program) error {
	v := &verifier{p: p}
	for _, g := range p.Globals() {
		v.checkGlobal(g)
	}
	for _, c := range liveConsts(p) {
		v.checkConst(c)
	}
	for _, fn := range p.Funcs() {
		v.checkFunc(fn)
	}
	if len(v.errs) != 0 {
		return v.errs
	}
	return nil
}

func (v *verifier) errorf(msg string, args ...interface{}) {
	err := &Error{Msg: fmt.Sprintf(msg, args...)}
	if v.inFunc {
		err.Func = v.p.Func(v.fn).Name
	}
	if v.inBlock {
		err.Block = v.p.Block(v.blk).Name
		if err.Block == "" {
			err.Block = fmt.Sprintf("bb%v", v.blk)
		}
	}
	if v.inInst {
		err.Inst = fmt.Sprintf("instruction %v (%v)", v.inst, v.p.Inst(v.inst).Op)
	}
	v.errs = append(v.errs, err)
}

func (v *verifier) checkGlobal(id ir.GlobalID) {
	p := v.p
	g := p.Global(id)
	if !p.ValidType(g.Type) {
		v.errorf("global %v: invalid type %v", g.Name, g.Type)
		return
	}
	if !g.Init.IsValid() {
		return
	}
	if !v.constOperand(g.Init) {
		v.errorf("global %v: initializer %v is not a constant", g.Name, g.Init)
		return
	}
	if have := p.TypeOf(g.Init); have != g.Type {
		v.errorf("global %v: initializer type %v does not match %v",
			g.Name, p.TypeString(have), p.TypeString(g.Type))
	}
}

// constOperand reports whether x can be used inside constants and initializers.
func (v *verifier) constOperand(x ir.Value) bool {
	switch x.Kind {
	case ir.ConstValue, ir.GlobalValue, ir.FuncValue:
		return v.p.ValidValue(x)
	}
	return false
}

func (v *verifier) checkConst(id ir.ConstID) {
	p := v.p
	c := p.Const(id)
	if !p.ValidType(c.Type) {
		v.errorf("const %v: invalid type %v", id, c.Type)
		return
	}
	for _, elem := range c.Elems {
		if !v.constOperand(elem) {
			v.errorf("const %v: operand %v is not a constant", id, elem)
			return
		}
	}
	typ := p.Type(c.Type)
	switch c.Kind {
	case ir.ConstInt:
		if typ.Kind != ir.KindInt {
			v.errorf("const %v: integer constant of type %v", id, p.TypeString(c.Type))
		}
	case ir.ConstNull:
		if typ.Kind != ir.KindPtr {
			v.errorf("const %v: null constant of type %v", id, p.TypeString(c.Type))
		}
	case ir.ConstZero:
		if typ.Kind == ir.KindVoid || typ.Kind == ir.KindFunc || typ.Kind == ir.KindOpaque {
			v.errorf("const %v: zero constant of type %v", id, p.TypeString(c.Type))
		}
	case ir.ConstBytes:
		if typ.Kind != ir.KindArray || typ.Elem != p.Int(8) || typ.Len != len(c.Bytes) {
			v.errorf("const %v: %v bytes of type %v", id, len(c.Bytes), p.TypeString(c.Type))
		}
	case ir.ConstArray:
		if typ.Kind != ir.KindArray || typ.Len != len(c.Elems) {
			v.errorf("const %v: %v elements of type %v", id, len(c.Elems), p.TypeString(c.Type))
			return
		}
		for i, elem := range c.Elems {
			if have := p.TypeOf(elem); have != typ.Elem {
				v.errorf("const %v: element %v has type %v, want %v",
					id, i, p.TypeString(have), p.TypeString(typ.Elem))
			}
		}
	case ir.ConstBitCast:
		if len(c.Elems) != 1 {
			v.errorf("const %v: bitcast with %v operands", id, len(c.Elems))
			return
		}
		if !v.castable(p.TypeOf(c.Elems[0]), c.Type) {
			v.errorf("const %v: invalid bitcast from %v to %v",
				id, p.TypeString(p.TypeOf(c.Elems[0])), p.TypeString(c.Type))
		}
	case ir.ConstElemAddr:
		if len(c.Elems) != 1 || c.Elems[0].Kind != ir.GlobalValue {
			v.errorf("const %v: element address of a non-global", id)
			return
		}
		arr := p.Type(p.Global(ir.GlobalID(c.Elems[0].ID)).Type)
		if arr.Kind != ir.KindArray || c.Type != p.Ptr(arr.Elem) {
			v.errorf("const %v: element address of type %v", id, p.TypeString(c.Type))
		}
	default:
		v.errorf("const %v: unknown kind %v", id, c.Kind)
	}
}

// liveConsts returns constants reachable from global initializers and
// instruction operands. Constants orphaned by a rollback are not checked.
func liveConsts(p *ir.Program) []ir.ConstID {
	seen := new(intsets.Sparse)
	var walk func(x ir.Value)
	walk = func(x ir.Value) {
		if x.Kind != ir.ConstValue || !p.ValidValue(x) || !seen.Insert(int(x.ID)) {
			return
		}
		for _, elem := range p.Const(ir.ConstID(x.ID)).Elems {
			walk(elem)
		}
	}
	for _, g := range p.Globals() {
		walk(p.Global(g).Init)
	}
	for _, fn := range p.Funcs() {
		for _, blk := range p.Func(fn).Blocks {
			if !p.ValidBlock(blk) {
				continue
			}
			for _, inst := range p.Block(blk).Insts {
				if !p.ValidInst(inst) {
					continue
				}
				in := p.Inst(inst)
				walk(in.Callee)
				for _, arg := range in.Args {
					walk(arg)
				}
			}
		}
	}
	var res []ir.ConstID
	for _, c := range seen.AppendTo(nil) {
		res = append(res, ir.ConstID(c))
	}
	return res
}

func (v *verifier) castable(from, to ir.TypeID) bool {
	p := v.p
	if p.IsPtr(from) && p.IsPtr(to) {
		return true
	}
	return p.IsInt(from) && p.IsInt(to) && p.Type(from).Bits == p.Type(to).Bits
}

func (v *verifier) checkFunc(fn ir.FuncID) {
	p := v.p
	v.fn, v.inFunc = fn, true
	defer func() { v.inFunc = false }()
	f := p.Func(fn)
	if !p.ValidType(f.Type) || p.Type(f.Type).Kind != ir.KindFunc {
		v.errorf("invalid function type %v", f.Type)
		return
	}
	if len(f.Params) != len(p.Type(f.Type).Params) {
		v.errorf("%v parameters for signature %v", len(f.Params), p.TypeString(f.Type))
		return
	}
	for _, blk := range f.Blocks {
		if !p.ValidBlock(blk) || p.Block(blk).Func != fn {
			v.errorf("block %v does not belong to the function", blk)
			return
		}
	}
	ok := true
	for _, blk := range f.Blocks {
		ok = v.checkBlock(blk) && ok
	}
	if ok && len(f.Blocks) != 0 {
		v.checkDominance(fn)
	}
}

func (v *verifier) checkBlock(blk ir.BlockID) bool {
	p := v.p
	v.blk, v.inBlock = blk, true
	defer func() { v.inBlock = false }()
	b := p.Block(blk)
	if len(b.Insts) == 0 {
		v.errorf("empty block")
		return false
	}
	ok := true
	for i, inst := range b.Insts {
		if !p.ValidInst(inst) || p.Inst(inst).Block != blk {
			v.errorf("instruction %v does not belong to the block", inst)
			ok = false
			continue
		}
		last := i == len(b.Insts)-1
		if op := p.Inst(inst).Op; op.IsTerminator() != last {
			if last {
				v.errorf("block does not end with a terminator (%v)", op)
			} else {
				v.errorf("terminator %v in the middle of the block", op)
			}
			ok = false
		}
		ok = v.checkInst(inst) && ok
	}
	return ok
}

func (v *verifier) checkInst(id ir.InstID) bool {
	v.inst, v.inInst = id, true
	defer func() { v.inInst = false }()
	before := len(v.errs)
	p := v.p
	in := p.Inst(id)
	if !p.ValidType(in.Type) {
		v.errorf("invalid result type %v", in.Type)
		return false
	}
	for _, arg := range in.Args {
		if !v.checkOperand(arg) {
			return false
		}
	}
	for _, succ := range in.Succs {
		if !p.ValidBlock(succ) || p.Block(succ).Func != v.fn {
			v.errorf("branch to foreign block %v", succ)
			return false
		}
		if succ == p.Func(v.fn).Blocks[0] {
			v.errorf("branch to the entry block")
		}
	}
	if !v.wantArgs(in) {
		return false
	}
	switch in.Op {
	case ir.OpAlloca:
		if !p.ValidType(in.Elem) || !ir.DefaultLayout.IsSized(p, in.Elem) {
			v.errorf("alloca of unsized type")
		} else if in.Type != p.Ptr(in.Elem) {
			v.errorf("alloca result %v, want %v", p.TypeString(in.Type), p.TypeString(p.Ptr(in.Elem)))
		}
	case ir.OpLoad:
		ptr := p.TypeOf(in.Args[0])
		if !p.IsPtr(ptr) || p.Elem(ptr) != in.Type {
			v.errorf("load of %v from %v", p.TypeString(in.Type), p.TypeString(ptr))
		}
	case ir.OpStore:
		val, ptr := p.TypeOf(in.Args[0]), p.TypeOf(in.Args[1])
		if !p.IsPtr(ptr) || p.Elem(ptr) != val {
			v.errorf("store of %v to %v", p.TypeString(val), p.TypeString(ptr))
		}
	case ir.OpGEP:
		base, idx := p.TypeOf(in.Args[0]), p.TypeOf(in.Args[1])
		if !p.ValidType(in.Elem) || base != p.Ptr(in.Elem) || in.Type != base {
			v.errorf("getelementptr over %v with base %v", p.TypeString(in.Elem), p.TypeString(base))
		}
		if !p.IsInt(idx) {
			v.errorf("getelementptr index of type %v", p.TypeString(idx))
		}
	case ir.OpBitCast:
		if from := p.TypeOf(in.Args[0]); !v.castable(from, in.Type) {
			v.errorf("invalid bitcast from %v to %v", p.TypeString(from), p.TypeString(in.Type))
		}
	case ir.OpZExt:
		from := p.TypeOf(in.Args[0])
		if !p.IsInt(from) || !p.IsInt(in.Type) || p.Type(from).Bits >= p.Type(in.Type).Bits {
			v.errorf("invalid zext from %v to %v", p.TypeString(from), p.TypeString(in.Type))
		}
	case ir.OpAdd, ir.OpSub, ir.OpMul:
		x, y := p.TypeOf(in.Args[0]), p.TypeOf(in.Args[1])
		if !p.IsInt(x) || x != y || x != in.Type {
			v.errorf("%v of %v and %v", in.Op, p.TypeString(x), p.TypeString(y))
		}
	case ir.OpICmp:
		x, y := p.TypeOf(in.Args[0]), p.TypeOf(in.Args[1])
		if x != y || !(p.IsInt(x) || p.IsPtr(x)) || in.Type != p.Int(1) {
			v.errorf("icmp of %v and %v", p.TypeString(x), p.TypeString(y))
		}
	case ir.OpCall:
		v.checkCall(in)
	case ir.OpCondBr:
		if cond := p.TypeOf(in.Args[0]); cond != p.Int(1) {
			v.errorf("branch condition of type %v", p.TypeString(cond))
		}
	case ir.OpRet:
		ret := p.Type(p.Func(v.fn).Type).Ret
		switch {
		case p.IsVoid(ret) && len(in.Args) != 0:
			v.errorf("value returned from void function")
		case !p.IsVoid(ret) && len(in.Args) != 1:
			v.errorf("missing return value")
		case len(in.Args) == 1 && p.TypeOf(in.Args[0]) != ret:
			v.errorf("returning %v from function returning %v",
				p.TypeString(p.TypeOf(in.Args[0])), p.TypeString(ret))
		}
	}
	return len(v.errs) == before
}

func (v *verifier) wantArgs(in *ir.Inst) bool {
	want, succs := -1, 0
	switch in.Op {
	case ir.OpAlloca, ir.OpUnreachable:
		want = 0
	case ir.OpLoad, ir.OpBitCast, ir.OpZExt:
		want = 1
	case ir.OpStore, ir.OpGEP, ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpICmp:
		want = 2
	case ir.OpBr:
		want, succs = 0, 1
	case ir.OpCondBr:
		want, succs = 1, 2
	case ir.OpCall, ir.OpRet:
	default:
		v.errorf("unknown opcode %v", in.Op)
		return false
	}
	if want != -1 && len(in.Args) != want {
		v.errorf("%v operands, want %v", len(in.Args), want)
		return false
	}
	if len(in.Succs) != succs {
		v.errorf("%v successors, want %v", len(in.Succs), succs)
		return false
	}
	hasResult := in.Op != ir.OpStore && in.Op != ir.OpCall && !in.Op.IsTerminator()
	if hasResult && v.p.IsVoid(in.Type) {
		v.errorf("void result")
		return false
	}
	if !hasResult && in.Op != ir.OpCall && !v.p.IsVoid(in.Type) {
		v.errorf("non-void type %v", v.p.TypeString(in.Type))
		return false
	}
	return true
}

func (v *verifier) checkOperand(x ir.Value) bool {
	p := v.p
	if !p.ValidValue(x) {
		v.errorf("dangling operand %v", x)
		return false
	}
	switch x.Kind {
	case ir.InstValue:
		def := p.Inst(ir.InstID(x.ID))
		if !p.ValidBlock(def.Block) || p.Block(def.Block).Func != v.fn {
			v.errorf("operand %v is defined in another function", x)
			return false
		}
		if !p.ValidType(def.Type) || p.IsVoid(def.Type) {
			v.errorf("operand %v has no value", x)
			return false
		}
	case ir.ParamValue:
		if ir.FuncID(x.ID) != v.fn {
			v.errorf("operand %v is a parameter of another function", x)
			return false
		}
	}
	return true
}

func (v *verifier) checkCall(in *ir.Inst) {
	p := v.p
	if !v.checkOperand(in.Callee) {
		return
	}
	ptr := p.TypeOf(in.Callee)
	if !p.IsPtr(ptr) || p.Type(p.Elem(ptr)).Kind != ir.KindFunc {
		v.errorf("call through non-function %v", p.TypeString(ptr))
		return
	}
	sig := p.Type(p.Elem(ptr))
	if err := CheckArgs(p, p.Elem(ptr), in.Args); err != nil {
		v.errorf("%v", err)
	}
	if in.Type != sig.Ret {
		v.errorf("call result %v, callee returns %v", p.TypeString(in.Type), p.TypeString(sig.Ret))
	}
}

// CheckArgs checks that args can be passed to a function of type sig:
// the count must match (or exceed it for variadic functions) and every fixed
// parameter type must match exactly.
func CheckArgs(p *ir.Program, sig ir.TypeID, args []ir.Value) error {
	typ := p.Type(sig)
	if len(args) != len(typ.Params) && (!typ.Variadic || len(args) < len(typ.Params)) {
		return fmt.Errorf("%v arguments for signature %v", len(args), p.TypeString(sig))
	}
	for i, param := range typ.Params {
		if have := p.TypeOf(args[i]); have != param {
			return fmt.Errorf("argument %v has type %v, want %v",
				i, p.TypeString(have), p.TypeString(param))
		}
	}
	return nil
}

func (v *verifier) checkDominance(fn ir.FuncID) {
	p := v.p
	f := p.Func(fn)
	dom, reachable := dominators(p, fn)
	local := make(map[ir.BlockID]int, len(f.Blocks))
	for i, blk := range f.Blocks {
		local[blk] = i
	}
	for _, blk := range f.Blocks {
		if !reachable[local[blk]] {
			continue
		}
		v.blk, v.inBlock = blk, true
		for pos, inst := range p.Block(blk).Insts {
			in := p.Inst(inst)
			operands := append([]ir.Value{in.Callee}, in.Args...)
			for _, x := range operands {
				if x.Kind != ir.InstValue {
					continue
				}
				def := ir.InstID(x.ID)
				defBlk := p.Inst(def).Block
				if defBlk == blk {
					if indexOf(p.Block(blk).Insts, def) >= pos {
						v.inst, v.inInst = inst, true
						v.errorf("operand %v is used before its definition", x)
						v.inInst = false
					}
					continue
				}
				if !dom[local[blk]].Has(local[defBlk]) {
					v.inst, v.inInst = inst, true
					v.errorf("operand %v does not dominate its use", x)
					v.inInst = false
				}
			}
		}
		v.inBlock = false
	}
}

// dominators returns, for every block of fn (by position), the set of
// positions of blocks that dominate it, and which blocks are reachable.
func dominators(p *ir.Program, fn ir.FuncID) ([]*intsets.Sparse, []bool) {
	blocks := p.Func(fn).Blocks
	local := make(map[ir.BlockID]int, len(blocks))
	for i, blk := range blocks {
		local[blk] = i
	}
	preds := make([][]int, len(blocks))
	for i, blk := range blocks {
		term, _ := p.Block(blk).Terminator()
		for _, succ := range p.Inst(term).Succs {
			preds[local[succ]] = append(preds[local[succ]], i)
		}
	}
	reachable := make([]bool, len(blocks))
	stack := []int{0}
	reachable[0] = true
	for len(stack) != 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		term, _ := p.Block(blocks[b]).Terminator()
		for _, succ := range p.Inst(term).Succs {
			if s := local[succ]; !reachable[s] {
				reachable[s] = true
				stack = append(stack, s)
			}
		}
	}
	all := new(intsets.Sparse)
	for i := range blocks {
		all.Insert(i)
	}
	dom := make([]*intsets.Sparse, len(blocks))
	for i := range blocks {
		dom[i] = new(intsets.Sparse)
		if i == 0 {
			dom[i].Insert(0)
		} else {
			dom[i].Copy(all)
		}
	}
	for changed := true; changed; {
		changed = false
		for b := 1; b < len(blocks); b++ {
			if !reachable[b] {
				continue
			}
			next := new(intsets.Sparse)
			next.Copy(all)
			for _, pred := range preds[b] {
				if reachable[pred] {
					next.IntersectionWith(dom[pred])
				}
			}
			next.Insert(b)
			if !next.Equals(dom[b]) {
				dom[b] = next
				changed = true
			}
		}
	}
	return dom, reachable
}

func indexOf(insts []ir.InstID, id ir.InstID) int {
	for i, inst := range insts {
		if inst == id {
			return i
		}
	}
	return -1
}
