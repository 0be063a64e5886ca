// Copyright 2026 kleerer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package tool

import (
	"fmt"
	"strings"
)

// ListFlag allows passing a comma-separated list of values to a flag.
// The flag may be repeated, values accumulate in order.
type ListFlag []string

func (list *ListFlag) String() string {
	return strings.Join(*list, ",")
}

// Set is used by flag.Parse to parse the command line arguments.
func (list *ListFlag) Set(value string) error {
	for _, elem := range strings.Split(value, ",") {
		elem = strings.TrimSpace(elem)
		if elem == "" {
			return fmt.Errorf("empty element in list %q", value)
		}
		*list = append(*list, elem)
	}
	return nil
}
