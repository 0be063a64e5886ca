// Copyright 2026 kleerer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package prepare records the list of candidate entry functions in a program
// and reads it back. The list is stored in the program itself as an array of
// function addresses, so it survives serialization.
package prepare

import (
	"errors"
	"fmt"

	"github.com/google/kleerer/pkg/ir"
)

// InitFuncsName is the name of the global holding the candidate entry list.
const InitFuncsName = "__ai_init_functions"

// ErrNotPrepared is returned by InitFuncs when the program has no candidate list.
var ErrNotPrepared = errors.New("no initial functions found, the program was not prepared")

// Mark stores the functions called names as the candidate entry list of p,
// in the given order.
// Each element is a function address cast to i8*.
// An existing list is replaced.
func Mark(p *ir.Program, names ...string) error {
	var elems []ir.Value
	for _, name := range names {
		fn, ok := p.FuncByName(name)
		if !ok {
			return fmt.Errorf("initial function %v does not exist", name)
		}
		elems = append(elems, p.ConstBitCast(ir.FuncRef(fn), p.BytePtr()))
	}
	init := p.ConstArray(p.BytePtr(), elems)
	if g, ok := p.GlobalByName(InitFuncsName); ok {
		p.Global(g).Type = p.TypeOf(init)
		p.SetInit(g, init)
		return nil
	}
	g, err := p.AddGlobal(InitFuncsName, p.TypeOf(init), init)
	if err != nil {
		return err
	}
	p.Global(g).Constant = true
	return nil
}

// InitFuncs returns the candidate entry list of p.
func InitFuncs(p *ir.Program) ([]ir.FuncID, error) {
	g, ok := p.GlobalByName(InitFuncsName)
	if !ok || p.Global(g).IsDeclaration() {
		return nil, ErrNotPrepared
	}
	init := p.Global(g).Init
	if init.Kind != ir.ConstValue || p.Const(ir.ConstID(init.ID)).Kind != ir.ConstArray {
		return nil, fmt.Errorf("%v: initializer is not an array of functions", InitFuncsName)
	}
	var res []ir.FuncID
	for i, elem := range p.Const(ir.ConstID(init.ID)).Elems {
		fn, ok := p.StripCasts(elem)
		if !ok {
			return nil, fmt.Errorf("%v: element %v is not a function", InitFuncsName, i)
		}
		res = append(res, fn)
	}
	return res, nil
}
