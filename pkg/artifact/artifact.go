// Copyright 2026 kleerer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package artifact reads and writes program containers.
//
// A container is an xz-compressed YAML document holding the whole program
// (types, constants, globals, functions, blocks and instructions) together
// with the module id and the id of the run that produced it.
// Constants that are not reachable from the program are not written.
package artifact

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/ulikunitz/xz"
	"gopkg.in/yaml.v3"

	"github.com/google/kleerer/pkg/ir"
	"github.com/google/kleerer/pkg/log"
	"github.com/google/kleerer/pkg/osutil"
)

// Name returns the artifact file name for the harness of function fn.
func Name(moduleID, fn string) string {
	return moduleID + ".main." + fn + ".o"
}

// Header describes a loaded container.
type Header struct {
	Format string
	Run    string
	Module string
}

// Writer persists harness-augmented programs into a directory.
// All containers written by one Writer carry the same run id.
type Writer struct {
	dir string
	run string
}

func NewWriter(dir string) *Writer {
	return &Writer{
		dir: dir,
		run: uuid.NewString(),
	}
}

// RunID returns the id stamped into every container written by w.
func (w *Writer) RunID() string {
	return w.run
}

// Write serializes p into <dir>/<module-id>.main.<fn>.o and returns the path.
// Directories in the module id are created under dir, the path never leaves dir.
// Failures are reported to the log and returned, they are not fatal for the caller.
func (w *Writer) Write(p *ir.Program, fn string) (string, error) {
	path := filepath.Join(w.dir, filepath.Clean("/"+Name(p.ID, fn)))
	if err := Save(path, p, w.run); err != nil {
		log.Logf(0, "writeMain: cannot write '%v'!", path)
		log.Logf(1, "writeMain: %v", err)
		return "", err
	}
	log.Logf(0, "writeMain: written: '%v'", path)
	return path, nil
}

// Save writes p as a container file, creating missing parent directories.
// run may be empty.
func Save(path string, p *ir.Program, run string) error {
	if err := osutil.MkdirAll(filepath.Dir(path)); err != nil {
		return err
	}
	f, err := osutil.CreateFile(path)
	if err != nil {
		return err
	}
	if err := Encode(f, p, run); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// Encode writes p as a container stream.
func Encode(w io.Writer, p *ir.Program, run string) error {
	xw, err := xz.NewWriter(w)
	if err != nil {
		return fmt.Errorf("failed to create xz writer: %w", err)
	}
	enc := yaml.NewEncoder(xw)
	enc.SetIndent(2)
	if err := enc.Encode(encode(p, run)); err != nil {
		return fmt.Errorf("failed to encode %v: %w", p.ID, err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return xw.Close()
}

// Load reads a container file.
func Load(path string) (*ir.Program, *Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	p, hdr, err := Decode(f)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load %v: %w", path, err)
	}
	return p, hdr, nil
}

// Decode reads a container stream.
func Decode(r io.Reader) (*ir.Program, *Header, error) {
	xr, err := xz.NewReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create xz reader: %w", err)
	}
	dec := yaml.NewDecoder(xr)
	dec.KnownFields(true)
	doc := new(document)
	if err := dec.Decode(doc); err != nil {
		return nil, nil, fmt.Errorf("failed to parse container: %w", err)
	}
	p, err := decode(doc)
	if err != nil {
		return nil, nil, err
	}
	return p, &Header{Format: doc.Format, Run: doc.Run, Module: doc.Module}, nil
}
