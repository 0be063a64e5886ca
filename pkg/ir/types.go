// Copyright 2026 kleerer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package ir

import (
	"fmt"
	"strings"
)

type TypeKind uint8

const (
	KindVoid TypeKind = iota
	KindInt
	KindPtr
	KindStruct
	KindArray
	KindFunc
	KindOpaque
)

var kindNames = [...]string{
	KindVoid:   "void",
	KindInt:    "int",
	KindPtr:    "ptr",
	KindStruct: "struct",
	KindArray:  "array",
	KindFunc:   "func",
	KindOpaque: "opaque",
}

func (k TypeKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseTypeKind is the inverse of TypeKind.String.
func ParseTypeKind(s string) (TypeKind, bool) {
	for k, name := range kindNames {
		if name == s {
			return TypeKind(k), true
		}
	}
	return 0, false
}

// Type is an interned type. Two types are equal iff their TypeIDs are equal.
type Type struct {
	Kind     TypeKind
	Bits     int      // KindInt
	Elem     TypeID   // KindPtr, KindArray
	Len      int      // KindArray
	Fields   []TypeID // KindStruct
	Ret      TypeID   // KindFunc
	Params   []TypeID // KindFunc
	Variadic bool     // KindFunc
	Name     string   // named KindStruct, KindOpaque
}

func (p *Program) Type(t TypeID) Type {
	return p.types[t]
}

func (p *Program) NumTypes() int {
	return len(p.types)
}

func (p *Program) intern(t Type) TypeID {
	key := p.typeKey(t)
	if id, ok := p.typeIdx[key]; ok {
		return id
	}
	id := TypeID(len(p.types))
	p.types = append(p.types, t)
	p.typeIdx[key] = id
	return id
}

func (p *Program) typeKey(t Type) string {
	switch t.Kind {
	case KindStruct:
		if t.Name != "" {
			return "%" + t.Name
		}
	case KindOpaque:
		return "%" + t.Name
	}
	buf := new(strings.Builder)
	fmt.Fprintf(buf, "%v:%v:%v:%v:%v:%v", int(t.Kind), t.Bits, t.Elem, t.Len, t.Ret, t.Variadic)
	for _, f := range t.Fields {
		fmt.Fprintf(buf, ",%v", f)
	}
	buf.WriteByte(';')
	for _, f := range t.Params {
		fmt.Fprintf(buf, ",%v", f)
	}
	return buf.String()
}

func (p *Program) Void() TypeID {
	return p.intern(Type{Kind: KindVoid})
}

func (p *Program) Int(bits int) TypeID {
	return p.intern(Type{Kind: KindInt, Bits: bits})
}

func (p *Program) Ptr(elem TypeID) TypeID {
	return p.intern(Type{Kind: KindPtr, Elem: elem})
}

// BytePtr returns i8*, the untyped address type.
func (p *Program) BytePtr() TypeID {
	return p.Ptr(p.Int(8))
}

func (p *Program) Array(n int, elem TypeID) TypeID {
	return p.intern(Type{Kind: KindArray, Len: n, Elem: elem})
}

// Struct returns a literal struct type if name is empty, or a named struct type.
// Redefinition of a named struct with a different body is not allowed.
func (p *Program) Struct(name string, fields ...TypeID) TypeID {
	t := Type{Kind: KindStruct, Name: name, Fields: append([]TypeID(nil), fields...)}
	if name != "" {
		if id, ok := p.typeIdx["%"+name]; ok {
			if p.types[id].Kind != KindStruct || !equalIDs(p.types[id].Fields, t.Fields) {
				panic(fmt.Sprintf("struct %%%v redefined", name))
			}
			return id
		}
	}
	return p.intern(t)
}

func (p *Program) FuncType(ret TypeID, variadic bool, params ...TypeID) TypeID {
	return p.intern(Type{Kind: KindFunc, Ret: ret, Variadic: variadic, Params: append([]TypeID(nil), params...)})
}

func (p *Program) Opaque(name string) TypeID {
	return p.intern(Type{Kind: KindOpaque, Name: name})
}

func (p *Program) IsInt(t TypeID) bool {
	return p.types[t].Kind == KindInt
}

func (p *Program) IsPtr(t TypeID) bool {
	return p.types[t].Kind == KindPtr
}

func (p *Program) IsVoid(t TypeID) bool {
	return p.types[t].Kind == KindVoid
}

// Elem returns the pointee of a pointer type or the element of an array type.
func (p *Program) Elem(t TypeID) TypeID {
	return p.types[t].Elem
}

func (p *Program) TypeString(t TypeID) string {
	if int(t) < 0 || int(t) >= len(p.types) {
		return fmt.Sprintf("<bad type %v>", t)
	}
	typ := p.types[t]
	switch typ.Kind {
	case KindVoid:
		return "void"
	case KindInt:
		return fmt.Sprintf("i%v", typ.Bits)
	case KindPtr:
		return p.TypeString(typ.Elem) + "*"
	case KindArray:
		return fmt.Sprintf("[%v x %v]", typ.Len, p.TypeString(typ.Elem))
	case KindOpaque:
		return "%" + typ.Name
	case KindStruct:
		if typ.Name != "" {
			return "%" + typ.Name
		}
		return "{" + p.typeList(typ.Fields, false) + "}"
	case KindFunc:
		return p.TypeString(typ.Ret) + " (" + p.typeList(typ.Params, typ.Variadic) + ")"
	}
	return fmt.Sprintf("<kind %v>", typ.Kind)
}

func (p *Program) typeList(types []TypeID, variadic bool) string {
	var parts []string
	for _, t := range types {
		parts = append(parts, p.TypeString(t))
	}
	if variadic {
		parts = append(parts, "...")
	}
	return strings.Join(parts, ", ")
}

func equalIDs(a, b []TypeID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
