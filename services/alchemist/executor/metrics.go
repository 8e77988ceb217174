// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package executor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// submissionsTotal counts accepted submissions.
	submissionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "alchemist",
		Subsystem: "executor",
		Name:      "submissions_total",
		Help:      "Total render submissions accepted",
	})

	// supersededTotal counts pending submissions replaced before running.
	supersededTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "alchemist",
		Subsystem: "executor",
		Name:      "superseded_total",
		Help:      "Total pending submissions replaced by a newer one",
	})

	// runsTotal counts completed runs.
	// Labels: outcome (success, error)
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alchemist",
		Subsystem: "executor",
		Name:      "runs_total",
		Help:      "Total engine runs by outcome",
	}, []string{"outcome"})

	// runDuration tracks engine run latency.
	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "alchemist",
		Subsystem: "executor",
		Name:      "run_duration_seconds",
		Help:      "Engine run duration in seconds",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	})
)

func recordRun(seconds float64, err error) {
	runDuration.Observe(seconds)
	if err != nil {
		runsTotal.WithLabelValues("error").Inc()
		return
	}
	runsTotal.WithLabelValues("success").Inc()
}
