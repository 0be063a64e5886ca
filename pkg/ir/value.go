// Copyright 2026 kleerer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package ir

import (
	"fmt"
)

type ValueKind uint8

const (
	NoValue ValueKind = iota
	InstValue
	ParamValue
	GlobalValue
	FuncValue
	ConstValue
)

// Value is a handle of anything that can be used as an instruction operand.
// For ParamValue, ID is the owning FuncID and Index is the parameter position.
type Value struct {
	Kind  ValueKind
	ID    int32
	Index int32
}

func InstRef(id InstID) Value { return Value{Kind: InstValue, ID: int32(id)} }
func ParamRef(fn FuncID, i int) Value { return Value{Kind: ParamValue, ID: int32(fn), Index: int32(i)} }
func GlobalRef(id GlobalID) Value { return Value{Kind: GlobalValue, ID: int32(id)} }
func FuncRef(id FuncID) Value { return Value{Kind: FuncValue, ID: int32(id)} }
func ConstRef(id ConstID) Value { return Value{Kind: ConstValue, ID: int32(id)} }

func (v Value) IsValid() bool {
	return v.Kind != NoValue
}

func (v Value) String() string {
	switch v.Kind {
	case NoValue:
		return "<none>"
	case InstValue:
		return fmt.Sprintf("%%i%v", v.ID)
	case ParamValue:
		return fmt.Sprintf("%%f%v.p%v", v.ID, v.Index)
	case GlobalValue:
		return fmt.Sprintf("@g%v", v.ID)
	case FuncValue:
		return fmt.Sprintf("@f%v", v.ID)
	case ConstValue:
		return fmt.Sprintf("$c%v", v.ID)
	}
	return fmt.Sprintf("<value kind %v>", v.Kind)
}

type ConstKind uint8

const (
	ConstInt ConstKind = iota
	ConstNull
	ConstZero
	ConstBytes
	ConstArray
	ConstBitCast
	// ConstElemAddr is the address of the first element of an array global
	// (a constant in-bounds GEP with indices 0, 0).
	ConstElemAddr
)

var constKindNames = [...]string{
	ConstInt:      "int",
	ConstNull:     "null",
	ConstZero:     "zero",
	ConstBytes:    "bytes",
	ConstArray:    "array",
	ConstBitCast:  "bitcast",
	ConstElemAddr: "elemaddr",
}

func (k ConstKind) String() string {
	if int(k) < len(constKindNames) {
		return constKindNames[k]
	}
	return fmt.Sprintf("const(%d)", int(k))
}

func ParseConstKind(s string) (ConstKind, bool) {
	for k, name := range constKindNames {
		if name == s {
			return ConstKind(k), true
		}
	}
	return 0, false
}

type Const struct {
	Kind  ConstKind
	Type  TypeID
	Int   int64
	Bytes string
	// Elems holds array elements, or the single operand of a cast/address constant.
	Elems []Value
}

type constKey struct {
	kind ConstKind
	typ  TypeID
	val  int64
}

func (p *Program) addConst(c Const) ConstID {
	id := ConstID(len(p.consts))
	p.consts = append(p.consts, c)
	return id
}

func (p *Program) interned(c Const) Value {
	key := constKey{c.Kind, c.Type, c.Int}
	if id, ok := p.constIdx[key]; ok {
		return ConstRef(id)
	}
	id := p.addConst(c)
	p.constIdx[key] = id
	return ConstRef(id)
}

func (p *Program) ConstInt(typ TypeID, v int64) Value {
	return p.interned(Const{Kind: ConstInt, Type: typ, Int: v})
}

func (p *Program) ConstNull(typ TypeID) Value {
	return p.interned(Const{Kind: ConstNull, Type: typ})
}

// ConstZero returns the all-zero value of typ: an integer 0, a null pointer
// or a zero aggregate.
func (p *Program) ConstZero(typ TypeID) Value {
	switch p.types[typ].Kind {
	case KindInt:
		return p.ConstInt(typ, 0)
	case KindPtr:
		return p.ConstNull(typ)
	}
	return p.interned(Const{Kind: ConstZero, Type: typ})
}

// ConstString returns a NUL-terminated byte array constant holding s.
func (p *Program) ConstString(s string) Value {
	typ := p.Array(len(s)+1, p.Int(8))
	return ConstRef(p.addConst(Const{Kind: ConstBytes, Type: typ, Bytes: s + "\x00"}))
}

func (p *Program) ConstArray(elem TypeID, elems []Value) Value {
	typ := p.Array(len(elems), elem)
	return ConstRef(p.addConst(Const{Kind: ConstArray, Type: typ, Elems: append([]Value(nil), elems...)}))
}

func (p *Program) ConstBitCast(v Value, to TypeID) Value {
	return ConstRef(p.addConst(Const{Kind: ConstBitCast, Type: to, Elems: []Value{v}}))
}

// ConstElemAddr returns the address of the first element of array global g.
func (p *Program) ConstElemAddr(g GlobalID) Value {
	elem := p.types[p.globals[g].Type].Elem
	return ConstRef(p.addConst(Const{Kind: ConstElemAddr, Type: p.Ptr(elem), Elems: []Value{GlobalRef(g)}}))
}

// GlobalString adds a private, unnamed_addr constant global holding s
// and returns an i8* pointing to its first character.
func (p *Program) GlobalString(s string) Value {
	init := p.ConstString(s)
	g, _ := p.AddGlobal("", p.consts[init.ID].Type, init)
	gv := &p.globals[g]
	gv.Constant = true
	gv.Private = true
	gv.UnnamedAddr = true
	return p.ConstElemAddr(g)
}

// TypeOf returns the type of value v. Globals and functions are addresses.
func (p *Program) TypeOf(v Value) TypeID {
	switch v.Kind {
	case InstValue:
		return p.insts[v.ID].Type
	case ParamValue:
		return p.types[p.funcs[v.ID].Type].Params[v.Index]
	case GlobalValue:
		return p.Ptr(p.globals[v.ID].Type)
	case FuncValue:
		return p.Ptr(p.funcs[v.ID].Type)
	case ConstValue:
		return p.consts[v.ID].Type
	}
	panic(fmt.Sprintf("TypeOf(%v)", v))
}

// ValidValue reports whether v refers to an existing entity.
func (p *Program) ValidValue(v Value) bool {
	switch v.Kind {
	case InstValue:
		return p.ValidInst(InstID(v.ID))
	case ParamValue:
		return p.ValidFunc(FuncID(v.ID)) && v.Index >= 0 && int(v.Index) < len(p.funcs[v.ID].Params)
	case GlobalValue:
		return p.ValidGlobal(GlobalID(v.ID))
	case FuncValue:
		return p.ValidFunc(FuncID(v.ID))
	case ConstValue:
		return p.ValidConst(ConstID(v.ID))
	}
	return false
}

// ParamName returns the declared name of parameter v, or "" if it is anonymous.
func (p *Program) ParamName(fn FuncID, i int) string {
	return p.funcs[fn].Params[i].Name
}
