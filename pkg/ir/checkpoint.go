// Copyright 2026 kleerer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package ir

// Checkpoint records arena sizes. Rollback to a checkpoint removes every
// function, block, instruction and global created after it.
// Types and constants are kept: they may be referenced by initializers
// that were changed in between.
type Checkpoint struct {
	funcs   int
	blocks  int
	insts   int
	globals int
}

func (p *Program) Checkpoint() Checkpoint {
	return Checkpoint{
		funcs:   len(p.funcs),
		blocks:  len(p.blocks),
		insts:   len(p.insts),
		globals: len(p.globals),
	}
}

func (p *Program) Rollback(cp Checkpoint) {
	for _, fn := range p.funcs[cp.funcs:] {
		delete(p.funcIdx, fn.Name)
	}
	for _, g := range p.globals[cp.globals:] {
		if g.Name != "" {
			delete(p.globalIdx, g.Name)
		}
	}
	p.funcs = p.funcs[:cp.funcs]
	p.blocks = p.blocks[:cp.blocks]
	p.insts = p.insts[:cp.insts]
	p.globals = p.globals[:cp.globals]
	// Blocks/instructions may have been appended to pre-existing functions.
	for i := range p.funcs {
		fn := &p.funcs[i]
		fn.Blocks = keepBelow(fn.Blocks, BlockID(cp.blocks))
	}
	for i := range p.blocks {
		blk := &p.blocks[i]
		blk.Insts = keepBelow(blk.Insts, InstID(cp.insts))
	}
	var state []GlobalID
	for _, sv := range p.stateVars {
		if int(sv) < cp.globals {
			state = append(state, sv)
		}
	}
	p.stateVars = state
}

func keepBelow[T ~int32](ids []T, limit T) []T {
	res := ids[:0]
	for _, id := range ids {
		if id < limit {
			res = append(res, id)
		}
	}
	return res
}

// InitSnapshot holds the initializers of all globals at some point in time.
type InitSnapshot []Value

func (p *Program) SnapshotInits() InitSnapshot {
	res := make(InitSnapshot, len(p.globals))
	for i, g := range p.globals {
		res[i] = g.Init
	}
	return res
}

// RestoreInits resets initializers of globals that existed when snap was taken.
func (p *Program) RestoreInits(snap InitSnapshot) {
	for i, init := range snap {
		if i < len(p.globals) {
			p.globals[i].Init = init
		}
	}
}
