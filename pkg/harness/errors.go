// Copyright 2026 kleerer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package harness

import (
	"errors"
	"fmt"
)

// ErrNoInitFuncs means the program has no candidate entry list:
// the prepare stage did not run before this one.
var ErrNoInitFuncs = errors.New("no initial functions found, did you run prepare?")

// ErrEntryExists means the program already defines the entry function,
// so no harness can be added next to it.
var ErrEntryExists = errors.New("entry function is already defined")

// SignatureError means the arguments built for a candidate do not match its
// signature, typically because a parameter of an unsupported type was dropped.
type SignatureError struct {
	Func   string
	Sig    string
	Params int
	Args   int
	Err    error
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("calling %v %v with a bad signature (%v params, %v args): %v",
		e.Func, e.Sig, e.Params, e.Args, e.Err)
}

func (e *SignatureError) Unwrap() error {
	return e.Err
}
