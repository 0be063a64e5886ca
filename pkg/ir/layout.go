// Copyright 2026 kleerer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package ir

// DataLayout answers size and alignment queries for a target.
type DataLayout struct {
	PointerSize int
}

var DefaultLayout = DataLayout{PointerSize: 8}

// IsSized reports whether values of type t have a known size.
func (dl DataLayout) IsSized(p *Program, t TypeID) bool {
	typ := p.types[t]
	switch typ.Kind {
	case KindInt, KindPtr:
		return true
	case KindArray:
		return dl.IsSized(p, typ.Elem)
	case KindStruct:
		for _, f := range typ.Fields {
			if !dl.IsSized(p, f) {
				return false
			}
		}
		return true
	}
	return false
}

// StoreSize is the number of bytes needed to store a value of type t.
// The type must be sized.
func (dl DataLayout) StoreSize(p *Program, t TypeID) int {
	typ := p.types[t]
	switch typ.Kind {
	case KindInt:
		return (typ.Bits + 7) / 8
	case KindPtr:
		return dl.PointerSize
	case KindArray:
		return typ.Len * dl.AllocSize(p, typ.Elem)
	case KindStruct:
		return dl.structLayout(p, typ.Fields).size
	}
	return 0
}

// AllocSize is the offset between consecutive elements of type t in an array.
func (dl DataLayout) AllocSize(p *Program, t TypeID) int {
	return alignTo(dl.StoreSize(p, t), dl.AlignOf(p, t))
}

func (dl DataLayout) AlignOf(p *Program, t TypeID) int {
	typ := p.types[t]
	switch typ.Kind {
	case KindInt:
		align := 1
		for align < (typ.Bits+7)/8 && align < 8 {
			align *= 2
		}
		return align
	case KindPtr:
		return dl.PointerSize
	case KindArray:
		return dl.AlignOf(p, typ.Elem)
	case KindStruct:
		return dl.structLayout(p, typ.Fields).align
	}
	return 1
}

type structLayout struct {
	offsets []int
	size    int
	align   int
}

func (dl DataLayout) structLayout(p *Program, fields []TypeID) structLayout {
	res := structLayout{align: 1}
	for _, f := range fields {
		align := dl.AlignOf(p, f)
		if align > res.align {
			res.align = align
		}
		res.size = alignTo(res.size, align)
		res.offsets = append(res.offsets, res.size)
		res.size += dl.AllocSize(p, f)
	}
	res.size = alignTo(res.size, res.align)
	return res
}

// FieldOffset returns the byte offset of field i of struct type t.
func (dl DataLayout) FieldOffset(p *Program, t TypeID, i int) int {
	return dl.structLayout(p, p.types[t].Fields).offsets[i]
}

func alignTo(v, align int) int {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}

// SizeOf returns the byte size used for buffers holding values of type t:
// the pointer width for function types, unsized bytes for other unsized
// types, the struct layout size for structs and the allocation size otherwise.
func (dl DataLayout) SizeOf(p *Program, t TypeID, unsized int) int {
	switch typ := p.types[t]; {
	case typ.Kind == KindFunc:
		return dl.PointerSize
	case !dl.IsSized(p, t):
		return unsized
	case typ.Kind == KindStruct:
		return dl.structLayout(p, typ.Fields).size
	}
	return dl.AllocSize(p, t)
}
