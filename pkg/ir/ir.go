// Copyright 2026 kleerer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package ir provides a mutable, in-memory program representation.
//
// A Program owns arenas of types, constants, functions, basic blocks,
// instructions and global variables. Entities refer to each other by
// handles (indices into the arenas) rather than by pointers, so the graph
// can be checkpointed and rolled back by truncating arenas, and a snapshot
// can be taken by copying them.
//
// Types are interned, so type equality is handle equality.
// Accessors that return pointers (Func, Block, Inst, Global) return pointers
// into the arenas: they are invalidated by any operation that appends to
// the same arena and must not be retained across such operations.
package ir

import (
	"fmt"
	"strings"

	"github.com/google/kleerer/pkg/log"
)

type (
	TypeID   int32
	FuncID   int32
	BlockID  int32
	InstID   int32
	GlobalID int32
	ConstID  int32
)

const NoBlock BlockID = -1

// StatePrefix is the default name prefix of state variables.
const StatePrefix = "__ai_state_"

type Program struct {
	// ID is the module identifier, used to name artifacts.
	ID string

	types   []Type
	consts  []Const
	funcs   []Function
	blocks  []Block
	insts   []Inst
	globals []Global

	typeIdx   map[string]TypeID
	constIdx  map[constKey]ConstID
	funcIdx   map[string]FuncID
	globalIdx map[string]GlobalID

	statePrefix string
	stateVars   []GlobalID
}

func NewProgram(id string) *Program {
	return &Program{
		ID:          id,
		typeIdx:     make(map[string]TypeID),
		constIdx:    make(map[constKey]ConstID),
		funcIdx:     make(map[string]FuncID),
		globalIdx:   make(map[string]GlobalID),
		statePrefix: StatePrefix,
	}
}

type Function struct {
	Name string
	// Type is the function's signature (KindFunc).
	Type     TypeID
	Params   []Param
	Blocks   []BlockID
	NoReturn bool
}

type Param struct {
	Name string
}

// IsDeclaration reports whether the function has no body.
func (fn *Function) IsDeclaration() bool {
	return len(fn.Blocks) == 0
}

type Block struct {
	Name  string
	Func  FuncID
	Insts []InstID
}

// Terminator returns the last instruction of the block, if any.
func (b *Block) Terminator() (InstID, bool) {
	if len(b.Insts) == 0 {
		return 0, false
	}
	return b.Insts[len(b.Insts)-1], true
}

type Global struct {
	Name string
	// Type is the type of the stored value, the global itself is a pointer to it.
	Type        TypeID
	Init        Value
	Constant    bool
	Private     bool
	UnnamedAddr bool
}

// IsDeclaration reports whether the global is defined elsewhere (has no initializer).
func (g *Global) IsDeclaration() bool {
	return !g.Init.IsValid()
}

// Loc is a source location attached to an instruction for diagnostics.
type Loc struct {
	File  string
	Line  int
	Col   int
	Scope string
}

func (l Loc) IsZero() bool {
	return l == Loc{}
}

func (l Loc) String() string {
	if l.IsZero() {
		return "<unknown>"
	}
	return fmt.Sprintf("%v:%v:%v (%v)", l.File, l.Line, l.Col, l.Scope)
}

func (p *Program) NumFuncs() int { return len(p.funcs) }
func (p *Program) NumBlocks() int { return len(p.blocks) }
func (p *Program) NumInsts() int { return len(p.insts) }
func (p *Program) NumGlobals() int { return len(p.globals) }
func (p *Program) NumConsts() int { return len(p.consts) }

func (p *Program) Func(id FuncID) *Function { return &p.funcs[id] }
func (p *Program) Block(id BlockID) *Block { return &p.blocks[id] }
func (p *Program) Inst(id InstID) *Inst { return &p.insts[id] }
func (p *Program) Global(id GlobalID) *Global { return &p.globals[id] }
func (p *Program) Const(id ConstID) *Const { return &p.consts[id] }
func (p *Program) ValidFunc(id FuncID) bool { return id >= 0 && int(id) < len(p.funcs) }
func (p *Program) ValidBlock(id BlockID) bool { return id >= 0 && int(id) < len(p.blocks) }
func (p *Program) ValidInst(id InstID) bool { return id >= 0 && int(id) < len(p.insts) }
func (p *Program) ValidGlobal(id GlobalID) bool { return id >= 0 && int(id) < len(p.globals) }
func (p *Program) ValidConst(id ConstID) bool { return id >= 0 && int(id) < len(p.consts) }
func (p *Program) ValidType(id TypeID) bool { return id >= 0 && int(id) < len(p.types) }

// Funcs returns handles of all functions in definition order.
func (p *Program) Funcs() []FuncID {
	res := make([]FuncID, len(p.funcs))
	for i := range res {
		res[i] = FuncID(i)
	}
	return res
}

// Globals returns handles of all global variables in definition order.
func (p *Program) Globals() []GlobalID {
	res := make([]GlobalID, len(p.globals))
	for i := range res {
		res[i] = GlobalID(i)
	}
	return res
}

func (p *Program) FuncByName(name string) (FuncID, bool) {
	id, ok := p.funcIdx[name]
	return id, ok
}

func (p *Program) GlobalByName(name string) (GlobalID, bool) {
	id, ok := p.globalIdx[name]
	return id, ok
}

// AddFunc declares a new function with signature typ (a KindFunc type).
// Parameter names are optional, missing ones stay anonymous.
func (p *Program) AddFunc(name string, typ TypeID, paramNames ...string) (FuncID, error) {
	if p.types[typ].Kind != KindFunc {
		return 0, fmt.Errorf("function %v: %v is not a function type", name, p.TypeString(typ))
	}
	if _, ok := p.funcIdx[name]; ok {
		return 0, fmt.Errorf("function %v already exists", name)
	}
	if _, ok := p.globalIdx[name]; ok {
		return 0, fmt.Errorf("function %v clashes with a global variable", name)
	}
	nparams := len(p.types[typ].Params)
	if len(paramNames) > nparams {
		return 0, fmt.Errorf("function %v: %v parameter names for %v parameters",
			name, len(paramNames), nparams)
	}
	params := make([]Param, nparams)
	for i, pn := range paramNames {
		params[i].Name = pn
	}
	id := FuncID(len(p.funcs))
	p.funcs = append(p.funcs, Function{Name: name, Type: typ, Params: params})
	p.funcIdx[name] = id
	return id, nil
}

// GetOrInsertFunc returns the function called name, declaring it if absent.
// An existing function with a different signature is an error.
func (p *Program) GetOrInsertFunc(name string, typ TypeID) (FuncID, bool, error) {
	if id, ok := p.funcIdx[name]; ok {
		if have := p.funcs[id].Type; have != typ {
			return 0, false, fmt.Errorf("function %v has type %v, want %v",
				name, p.TypeString(have), p.TypeString(typ))
		}
		return id, false, nil
	}
	id, err := p.AddFunc(name, typ)
	return id, err == nil, err
}

func (p *Program) AddBlock(fn FuncID, name string) BlockID {
	id := BlockID(len(p.blocks))
	p.blocks = append(p.blocks, Block{Name: name, Func: fn})
	p.funcs[fn].Blocks = append(p.funcs[fn].Blocks, id)
	return id
}

// AddGlobal adds a global variable. Empty names are allowed for private
// globals (e.g. string literals) and are not indexed.
// Integer-typed globals whose name carries the state prefix are registered
// as state variables.
func (p *Program) AddGlobal(name string, typ TypeID, init Value) (GlobalID, error) {
	if name != "" {
		if _, ok := p.globalIdx[name]; ok {
			return 0, fmt.Errorf("global %v already exists", name)
		}
		if _, ok := p.funcIdx[name]; ok {
			return 0, fmt.Errorf("global %v clashes with a function", name)
		}
	}
	id := GlobalID(len(p.globals))
	p.globals = append(p.globals, Global{Name: name, Type: typ, Init: init})
	if name != "" {
		p.globalIdx[name] = id
	}
	p.registerState(id)
	return id, nil
}

func (p *Program) SetInit(g GlobalID, init Value) {
	p.globals[g].Init = init
}

// StateVars returns the state variables of the program in definition order.
func (p *Program) StateVars() []GlobalID {
	return p.stateVars
}

func (p *Program) IsStateVar(g GlobalID) bool {
	for _, sv := range p.stateVars {
		if sv == g {
			return true
		}
	}
	return false
}

func (p *Program) StatePrefix() string {
	return p.statePrefix
}

// SetStatePrefix changes the state variable naming convention and rebuilds
// the registry. It is meant to be called once, right after loading.
func (p *Program) SetStatePrefix(prefix string) {
	p.statePrefix = prefix
	p.stateVars = nil
	for id := range p.globals {
		p.registerState(GlobalID(id))
	}
}

func (p *Program) registerState(id GlobalID) {
	g := &p.globals[id]
	if p.statePrefix == "" || !strings.HasPrefix(g.Name, p.statePrefix) {
		return
	}
	if !p.IsInt(g.Type) {
		log.Logf(1, "%v: ignoring state variable %v of non-integer type %v",
			p.ID, g.Name, p.TypeString(g.Type))
		return
	}
	p.stateVars = append(p.stateVars, id)
}

// Callee returns the function a call instruction invokes directly,
// looking through constant casts.
func (p *Program) Callee(inst InstID) (FuncID, bool) {
	in := &p.insts[inst]
	if in.Op != OpCall {
		return 0, false
	}
	return p.StripCasts(in.Callee)
}

// StripCasts resolves v to a function if it is a function address,
// possibly wrapped in constant bitcasts.
func (p *Program) StripCasts(v Value) (FuncID, bool) {
	for v.Kind == ConstValue {
		c := &p.consts[v.ID]
		if c.Kind != ConstBitCast {
			return 0, false
		}
		v = c.Elems[0]
	}
	if v.Kind != FuncValue {
		return 0, false
	}
	return FuncID(v.ID), true
}
