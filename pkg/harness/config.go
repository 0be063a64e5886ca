// Copyright 2026 kleerer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package harness

import (
	"fmt"

	"github.com/google/kleerer/pkg/ir"
)

// Policy says which qualifying candidates get a harness in one run.
type Policy string

const (
	// PolicyFirst stops after the first harness that was written.
	PolicyFirst Policy = "first"
	// PolicyAll writes a harness for every qualifying candidate.
	PolicyAll Policy = "all"
)

type Config struct {
	// Function whose direct callers qualify for a harness.
	FailureFunc string `json:"failure_func"`
	// Never-returning diagnostic called when state variables are not zero after the call.
	AbortFunc string `json:"abort_func"`
	// Primitive that marks memory as symbolic: void (i8*, i32, i8*).
	SymbolicFunc string `json:"symbolic_func"`
	// Allocator for pointer arguments: i8* (i64).
	AllocFunc string `json:"alloc_func"`
	// Name of the generated entry function.
	EntryFunc string `json:"entry_func"`
	// Entry function name used when the program already defines EntryFunc.
	// Empty means such programs get no harness.
	// KLEE must then be started with -entry-point=<EntryFallback>.
	EntryFallback string `json:"entry_fallback"`
	StatePrefix   string `json:"state_prefix"`
	// Pointer arguments point to element BufferOffset of a buffer of BufferElems elements.
	BufferElems  int `json:"buffer_elems"`
	BufferOffset int `json:"buffer_offset"`
	// Byte size assumed for unsized pointee types.
	UnsizedSize int    `json:"unsized_size"`
	Policy      Policy `json:"policy"`
	// Restore global initializers after every candidate.
	// By default initializer changes made for one candidate persist into the next ones.
	Isolate   bool   `json:"isolate"`
	OutputDir string `json:"output_dir"`
}

func DefaultConfig() *Config {
	return &Config{
		FailureFunc:  "__assert_fail",
		AbortFunc:    "__assert_fail",
		SymbolicFunc: "klee_make_symbolic",
		AllocFunc:    "malloc",
		EntryFunc:    "main",
		StatePrefix:  ir.StatePrefix,
		BufferElems:  4000,
		BufferOffset: 2000,
		UnsizedSize:  100,
		Policy:       PolicyFirst,
		OutputDir:    ".",
	}
}

func (cfg *Config) Validate() error {
	names := map[string]string{
		"failure_func":  cfg.FailureFunc,
		"abort_func":    cfg.AbortFunc,
		"symbolic_func": cfg.SymbolicFunc,
		"alloc_func":    cfg.AllocFunc,
		"entry_func":    cfg.EntryFunc,
		"state_prefix":  cfg.StatePrefix,
	}
	for field, name := range names {
		if name == "" {
			return fmt.Errorf("%v is empty", field)
		}
	}
	if cfg.isPrimitive(cfg.EntryFunc) {
		return fmt.Errorf("entry_func %v clashes with a primitive", cfg.EntryFunc)
	}
	if cfg.EntryFallback != "" && (cfg.EntryFallback == cfg.EntryFunc || cfg.isPrimitive(cfg.EntryFallback)) {
		return fmt.Errorf("entry_fallback %v clashes with entry_func or a primitive", cfg.EntryFallback)
	}
	if cfg.BufferElems <= 0 {
		return fmt.Errorf("buffer_elems must be positive, got %v", cfg.BufferElems)
	}
	if cfg.BufferOffset < 0 || cfg.BufferOffset >= cfg.BufferElems {
		return fmt.Errorf("buffer_offset %v is out of the buffer of %v elements",
			cfg.BufferOffset, cfg.BufferElems)
	}
	if cfg.UnsizedSize <= 0 {
		return fmt.Errorf("unsized_size must be positive, got %v", cfg.UnsizedSize)
	}
	switch cfg.Policy {
	case PolicyFirst, PolicyAll:
	default:
		return fmt.Errorf("unknown policy %q", cfg.Policy)
	}
	if cfg.OutputDir == "" {
		return fmt.Errorf("output_dir is empty")
	}
	return nil
}

func (cfg *Config) isPrimitive(name string) bool {
	return name == cfg.FailureFunc || name == cfg.SymbolicFunc ||
		name == cfg.AllocFunc || name == cfg.AbortFunc
}
