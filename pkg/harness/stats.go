// Copyright 2026 kleerer project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package harness

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/google/kleerer/pkg/stat"
)

type Stats struct {
	Set            *stat.Set
	Candidates     *stat.Val
	Qualifying     *stat.Val
	Written        *stat.Val
	VerifyFailures *stat.Val
	WriteFailures  *stat.Val
	Skipped        *stat.Val
	HarnessInsts   *stat.Val
}

// NewStats creates run metrics exported to reg (may be nil).
func NewStats(reg prometheus.Registerer) *Stats {
	set := stat.NewSet(reg)
	return &Stats{
		Set: set,
		Candidates: set.New("candidates", "Candidate entry functions examined",
			stat.Console, stat.Prometheus("kleerer_candidates_total")),
		Qualifying: set.New("qualifying", "Candidates directly calling the failure function",
			stat.Console, stat.Prometheus("kleerer_qualifying_total")),
		Written: set.New("harnesses", "Harness artifacts written",
			stat.Console, stat.Prometheus("kleerer_harnesses_written_total")),
		VerifyFailures: set.New("verify failures", "Harnesses rejected by the verifier",
			stat.Console, stat.Prometheus("kleerer_verify_failures_total")),
		WriteFailures: set.New("write failures", "Harness artifacts that could not be written",
			stat.Console, stat.Prometheus("kleerer_write_failures_total")),
		Skipped: set.New("skipped", "Qualifying candidates skipped for other reasons",
			stat.Prometheus("kleerer_skipped_total")),
		HarnessInsts: set.New("harness size", "Instructions in the generated entry function",
			stat.Distribution{}),
	}
}
