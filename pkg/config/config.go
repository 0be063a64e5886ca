// Copyright 2026 kleerer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package config loads JSON tool configs. Lines starting with # are comments,
// unknown fields are rejected. Fields absent from the input keep the values
// cfg had before loading, so callers pre-fill cfg with defaults.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/google/kleerer/pkg/osutil"
)

// Validator is implemented by configs that check themselves after loading.
type Validator interface {
	Validate() error
}

func LoadFile(filename string, cfg interface{}) error {
	if filename == "" {
		return fmt.Errorf("no config file specified")
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return LoadData(data, cfg)
}

var commentRe = regexp.MustCompile(`(^|\n)\s*#[^\n]*`)

func LoadData(data []byte, cfg interface{}) error {
	data = commentRe.ReplaceAll(data, nil)
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	if v, ok := cfg.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("bad config: %w", err)
		}
	}
	return nil
}

func SaveFile(filename string, cfg interface{}) error {
	data, err := json.MarshalIndent(cfg, "", "\t")
	if err != nil {
		return err
	}
	return osutil.WriteFile(filename, data)
}
