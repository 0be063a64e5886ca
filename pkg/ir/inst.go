// Copyright 2026 kleerer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package ir

import (
	"fmt"
)

type Opcode uint8

const (
	OpAlloca Opcode = iota
	OpLoad
	OpStore
	OpGEP
	OpBitCast
	OpZExt
	OpAdd
	OpSub
	OpMul
	OpICmp
	OpCall
	OpBr
	OpCondBr
	OpRet
	OpUnreachable
)

var opNames = [...]string{
	OpAlloca:      "alloca",
	OpLoad:        "load",
	OpStore:       "store",
	OpGEP:         "getelementptr",
	OpBitCast:     "bitcast",
	OpZExt:        "zext",
	OpAdd:         "add",
	OpSub:         "sub",
	OpMul:         "mul",
	OpICmp:        "icmp",
	OpCall:        "call",
	OpBr:          "br",
	OpCondBr:      "condbr",
	OpRet:         "ret",
	OpUnreachable: "unreachable",
}

func (op Opcode) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("op(%d)", int(op))
}

func ParseOpcode(s string) (Opcode, bool) {
	for op, name := range opNames {
		if name == s {
			return Opcode(op), true
		}
	}
	return 0, false
}

func (op Opcode) IsTerminator() bool {
	switch op {
	case OpBr, OpCondBr, OpRet, OpUnreachable:
		return true
	}
	return false
}

func (op Opcode) IsBinary() bool {
	return op == OpAdd || op == OpSub || op == OpMul
}

type Predicate uint8

const (
	PredEQ Predicate = iota
	PredNE
	PredULT
	PredULE
	PredUGT
	PredUGE
	PredSLT
	PredSLE
	PredSGT
	PredSGE
)

var predNames = [...]string{"eq", "ne", "ult", "ule", "ugt", "uge", "slt", "sle", "sgt", "sge"}

func (pr Predicate) String() string {
	if int(pr) < len(predNames) {
		return predNames[pr]
	}
	return fmt.Sprintf("pred(%d)", int(pr))
}

func ParsePredicate(s string) (Predicate, bool) {
	for pr, name := range predNames {
		if name == s {
			return Predicate(pr), true
		}
	}
	return 0, false
}

// Inst is a single instruction.
//
// Operand layout per opcode:
//
//	alloca:  Elem = allocated type
//	load:    Args = [ptr]
//	store:   Args = [value, ptr]
//	gep:     Args = [base, index], Elem = element type the index scales by
//	bitcast, zext: Args = [value], Type = target type
//	add, sub, mul, icmp: Args = [x, y]
//	call:    Callee, Args = actual arguments
//	br:      Succs = [dest]
//	condbr:  Args = [cond], Succs = [then, else]
//	ret:     Args = [] or [value]
type Inst struct {
	Op       Opcode
	Name     string
	Type     TypeID
	Block    BlockID
	Args     []Value
	Callee   Value
	Elem     TypeID
	Pred     Predicate
	Volatile bool
	InBounds bool
	Succs    []BlockID
	Loc      Loc
}

// HasResult reports whether the instruction produces a value.
func (p *Program) HasResult(id InstID) bool {
	return !p.IsVoid(p.insts[id].Type)
}

// Builder appends instructions to a basic block.
type Builder struct {
	p   *Program
	blk BlockID
	loc Loc
}

func (p *Program) NewBuilder(blk BlockID) *Builder {
	return &Builder{p: p, blk: blk}
}

func (b *Builder) Program() *Program {
	return b.p
}

func (b *Builder) Block() BlockID {
	return b.blk
}

func (b *Builder) SetBlock(blk BlockID) {
	b.blk = blk
}

// SetLoc sets the source location attached to subsequently created instructions.
func (b *Builder) SetLoc(loc Loc) {
	b.loc = loc
}

func (b *Builder) emit(in Inst) InstID {
	return b.insert(in, false)
}

func (b *Builder) insert(in Inst, front bool) InstID {
	p := b.p
	in.Block = b.blk
	in.Loc = b.loc
	id := InstID(len(p.insts))
	p.insts = append(p.insts, in)
	blk := &p.blocks[b.blk]
	if front {
		blk.Insts = append([]InstID{id}, blk.Insts...)
	} else {
		blk.Insts = append(blk.Insts, id)
	}
	return id
}

func (b *Builder) Alloca(typ TypeID, name string) Value {
	return InstRef(b.emit(Inst{Op: OpAlloca, Name: name, Type: b.p.Ptr(typ), Elem: typ}))
}

// AllocaFront is like Alloca, but places the instruction at the start of the block.
func (b *Builder) AllocaFront(typ TypeID, name string) Value {
	return InstRef(b.insert(Inst{Op: OpAlloca, Name: name, Type: b.p.Ptr(typ), Elem: typ}, true))
}

func (b *Builder) Load(ptr Value, volatile bool) Value {
	typ := b.p.Elem(b.p.TypeOf(ptr))
	return InstRef(b.emit(Inst{Op: OpLoad, Type: typ, Args: []Value{ptr}, Volatile: volatile}))
}

func (b *Builder) Store(val, ptr Value, volatile bool) InstID {
	return b.emit(Inst{Op: OpStore, Type: b.p.Void(), Args: []Value{val, ptr}, Volatile: volatile})
}

// GEP computes base + index*sizeof(elem). base must be a pointer to elem.
func (b *Builder) GEP(elem TypeID, base, index Value) Value {
	return InstRef(b.emit(Inst{Op: OpGEP, Type: b.p.Ptr(elem), Elem: elem,
		Args: []Value{base, index}, InBounds: true}))
}

func (b *Builder) BitCast(v Value, to TypeID) Value {
	return InstRef(b.emit(Inst{Op: OpBitCast, Type: to, Args: []Value{v}}))
}

func (b *Builder) ZExt(v Value, to TypeID) Value {
	return InstRef(b.emit(Inst{Op: OpZExt, Type: to, Args: []Value{v}}))
}

func (b *Builder) Binary(op Opcode, x, y Value, name string) Value {
	if !op.IsBinary() {
		panic(fmt.Sprintf("Binary(%v)", op))
	}
	return InstRef(b.emit(Inst{Op: op, Name: name, Type: b.p.TypeOf(x), Args: []Value{x, y}}))
}

func (b *Builder) ICmp(pred Predicate, x, y Value) Value {
	return InstRef(b.emit(Inst{Op: OpICmp, Type: b.p.Int(1), Pred: pred, Args: []Value{x, y}}))
}

// Call emits a call through callee, which must be a pointer to a function.
// The result value is only meaningful for non-void callees.
func (b *Builder) Call(callee Value, args ...Value) (Value, InstID) {
	p := b.p
	ret := p.Void()
	if ptr := p.TypeOf(callee); p.IsPtr(ptr) {
		if fn := p.Type(p.Elem(ptr)); fn.Kind == KindFunc {
			ret = fn.Ret
		}
	}
	id := b.emit(Inst{Op: OpCall, Type: ret, Callee: callee, Args: append([]Value(nil), args...)})
	return InstRef(id), id
}

func (b *Builder) Br(dest BlockID) InstID {
	return b.emit(Inst{Op: OpBr, Type: b.p.Void(), Succs: []BlockID{dest}})
}

func (b *Builder) CondBr(cond Value, then, els BlockID) InstID {
	return b.emit(Inst{Op: OpCondBr, Type: b.p.Void(), Args: []Value{cond}, Succs: []BlockID{then, els}})
}

func (b *Builder) Ret(v Value) InstID {
	return b.emit(Inst{Op: OpRet, Type: b.p.Void(), Args: []Value{v}})
}

func (b *Builder) RetVoid() InstID {
	return b.emit(Inst{Op: OpRet, Type: b.p.Void()})
}

func (b *Builder) Unreachable() InstID {
	return b.emit(Inst{Op: OpUnreachable, Type: b.p.Void()})
}

// LastLoc returns the location of the last instruction of fn's final block.
func (p *Program) LastLoc(fn FuncID) Loc {
	blocks := p.funcs[fn].Blocks
	if len(blocks) == 0 {
		return Loc{}
	}
	term, ok := p.blocks[blocks[len(blocks)-1]].Terminator()
	if !ok {
		return Loc{}
	}
	return p.insts[term].Loc
}
