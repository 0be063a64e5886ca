// Copyright 2026 kleerer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package stat

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/VividCortex/gohistogram"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// This file provides simple named metrics (Val type) for instrumenting a run,
// and a registry for such metrics (Set type).
//
// Simple uses of metrics:
//
//	set := stat.NewSet(prometheus.NewRegistry())
//	statFoo := set.New("metric name", "metric description")
//	statFoo.Add(1)
//
//	set.New("metric name", "metric description", func() int { return len(items) })
//
// The final summary is obtained with Collect, Prometheus-exported values are
// gathered from the registry passed to NewSet.

type UI struct {
	Name  string
	Desc  string
	Level Level
	Value string
	V     int
}

type Set struct {
	mu        sync.Mutex
	vals      map[string]*Val
	nextOrder atomic.Uint64
	factory   promauto.Factory
}

const histogramBuckets = 255

// NewSet creates a metric set. Values created with the Prometheus option
// are registered in reg, which may be nil if nothing is exported.
func NewSet(reg prometheus.Registerer) *Set {
	return &Set{
		vals:    make(map[string]*Val),
		factory: promauto.With(reg),
	}
}

func (s *Set) Collect(level Level) []UI {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []UI
	for _, v := range s.vals {
		if v.level < level {
			continue
		}
		val := v.Val()
		res = append(res, UI{
			Name:  v.name,
			Desc:  v.desc,
			Level: v.level,
			Value: v.format(val),
			V:     val,
		})
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Level != res[j].Level {
			return res[i].Level > res[j].Level
		}
		return s.vals[res[i].Name].order < s.vals[res[j].Name].order
	})
	return res
}

// Additional options for Val metrics.

// Level controls if the metric should be printed in the final console summary,
// or only in the verbose one.
type Level int

const (
	All Level = iota
	Console
)

// Prometheus exports the metric to Prometheus under the given name.
type Prometheus string

// Distribution says to collect histogram of individual sample distributions.
type Distribution struct{}

// Addittionally a custom 'func() int' can be passed to read the metric value from the function,
// and 'func(int) string' can be passed for custom formatting of the metric value.

func (s *Set) New(name, desc string, opts ...any) *Val {
	v := &Val{
		name:  name,
		desc:  desc,
		order: s.nextOrder.Add(1),
		fmt:   strconv.Itoa,
	}
	var export Prometheus
	for _, o := range opts {
		switch opt := o.(type) {
		case Level:
			v.level = opt
		case Distribution:
			v.hist = true
		case func() int:
			v.ext = opt
		case func(int) string:
			v.fmt = opt
		case Prometheus:
			export = opt
		default:
			panic(fmt.Sprintf("unknown stats option %#v", o))
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vals[name] != nil {
		panic(fmt.Sprintf("stat %v is already registered", name))
	}
	s.vals[name] = v
	if export != "" {
		// Prometheus Instrumentation https://prometheus.io/docs/guides/go-application.
		s.factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: string(export),
			Help: desc,
		},
			func() float64 { return float64(v.Val()) },
		)
	}
	return v
}

type Val struct {
	name    string
	desc    string
	level   Level
	order   uint64
	val     atomic.Uint64
	ext     func() int
	fmt     func(int) string
	hist    bool
	histMu  sync.Mutex
	histVal *gohistogram.NumericHistogram
}

func (v *Val) Add(val int) {
	if v.ext != nil {
		panic(fmt.Sprintf("stat %v is in external mode", v.name))
	}
	if v.hist {
		v.histMu.Lock()
		if v.histVal == nil {
			v.histVal = gohistogram.NewHistogram(histogramBuckets)
		}
		v.histVal.Add(float64(val))
		v.histMu.Unlock()
		return
	}
	v.val.Add(uint64(val))
}

func (v *Val) Val() int {
	if v.ext != nil {
		return v.ext()
	}
	if v.hist {
		v.histMu.Lock()
		defer v.histMu.Unlock()
		if v.histVal == nil {
			return 0
		}
		return int(v.histVal.Mean())
	}
	return int(v.val.Load())
}

func (v *Val) format(val int) string {
	if !v.hist {
		return v.fmt(val)
	}
	v.histMu.Lock()
	defer v.histMu.Unlock()
	if v.histVal == nil {
		return v.fmt(val)
	}
	return fmt.Sprintf("%v (p50 %v, p90 %v)", v.fmt(val),
		int(v.histVal.Quantile(0.5)), int(v.histVal.Quantile(0.9)))
}
