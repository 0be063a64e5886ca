// Copyright 2026 kleerer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package log provides functionality similar to standard log package with some extensions:
//   - verbosity levels
//   - global verbosity setting that can be used by multiple packages
//   - ability to cache recent output in memory
//
// Output goes to standard error.
package log

import (
	"flag"
	"fmt"
	golog "log"
	"strings"
	"sync"
	"time"
)

var (
	flagV       = flag.Int("vv", 0, "verbosity")
	mu          sync.Mutex
	cached      *cache
	prependTime = true // for testing
)

// SetVerbosity overrides the -vv flag value.
func SetVerbosity(v int) {
	mu.Lock()
	defer mu.Unlock()
	*flagV = v
}

// V reports whether messages of level v are printed.
func V(v int) bool {
	mu.Lock()
	defer mu.Unlock()
	return v <= *flagV
}

// EnableLogCaching enables in memory caching of log output of levels 0 and 1.
// Caches up to maxLines, but no more than maxMem bytes.
// Cached output can later be queried with CachedLogOutput.
func EnableLogCaching(maxLines, maxMem int) {
	mu.Lock()
	defer mu.Unlock()
	if cached != nil {
		Fatalf("log caching is already enabled")
	}
	if maxLines < 1 || maxMem < 1 {
		panic("invalid maxLines/maxMem")
	}
	cached = &cache{maxMem: maxMem, entries: make([]string, maxLines)}
}

// DisableLogCaching drops the cache, so that caching can be enabled again.
func DisableLogCaching() {
	mu.Lock()
	defer mu.Unlock()
	cached = nil
}

// CachedLogOutput returns the cached log lines, oldest first.
func CachedLogOutput() string {
	mu.Lock()
	defer mu.Unlock()
	if cached == nil {
		return ""
	}
	return cached.String()
}

func Logf(v int, msg string, args ...interface{}) {
	mu.Lock()
	doLog := v <= *flagV
	if cached != nil && v <= 1 {
		timeStr := ""
		if prependTime {
			timeStr = time.Now().Format("2006/01/02 15:04:05 ")
		}
		cached.add(timeStr + fmt.Sprintf(msg, args...))
	}
	mu.Unlock()

	if doLog {
		golog.Printf(msg, args...)
	}
}

func Fatal(err error) {
	golog.Fatal(err)
}

func Fatalf(msg string, args ...interface{}) {
	golog.Fatalf(msg, args...)
}

type VerboseWriter int

func (w VerboseWriter) Write(data []byte) (int, error) {
	Logf(int(w), "%s", data)
	return len(data), nil
}

// cache is a ring of recent log lines bounded by count and total size.
type cache struct {
	entries []string
	pos     int
	mem     int
	maxMem  int
}

func (c *cache) add(line string) {
	c.mem -= len(c.entries[c.pos])
	c.entries[c.pos] = line
	c.mem += len(line)
	c.pos = (c.pos + 1) % len(c.entries)
	// Evict oldest lines, but always keep the one just added.
	for i := 0; i < len(c.entries)-1 && c.mem > c.maxMem; i++ {
		old := &c.entries[(c.pos+i)%len(c.entries)]
		c.mem -= len(*old)
		*old = ""
	}
	if c.mem < 0 {
		panic("log cache size underflow")
	}
}

func (c *cache) String() string {
	buf := new(strings.Builder)
	for i := range c.entries {
		line := c.entries[(c.pos+i)%len(c.entries)]
		if line == "" {
			continue
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return buf.String()
}
