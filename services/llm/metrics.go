// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// generationsTotal counts generation requests.
	// Labels: outcome (success, error)
	generationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alchemist",
		Subsystem: "llm",
		Name:      "generations_total",
		Help:      "Total generation requests by outcome",
	}, []string{"outcome"})

	// generationLatency tracks generation round-trip time.
	generationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "alchemist",
		Subsystem: "llm",
		Name:      "generation_duration_seconds",
		Help:      "Generation request duration in seconds",
		Buckets:   []float64{.1, .25, .5, 1, 2, 5, 10, 30},
	})

	// tokensTotal counts tokens reported by the API.
	// Labels: direction (prompt, candidates)
	tokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alchemist",
		Subsystem: "llm",
		Name:      "tokens_total",
		Help:      "Total tokens reported by the generation API",
	}, []string{"direction"})

	// placeholdersTotal counts <placeholder> tokens replaced in generated text.
	placeholdersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "alchemist",
		Subsystem: "llm",
		Name:      "placeholders_replaced_total",
		Help:      "Total placeholder tokens replaced with defaults",
	})
)

func recordGeneration(duration time.Duration, usage Usage, err error) {
	generationLatency.Observe(duration.Seconds())
	if err != nil {
		generationsTotal.WithLabelValues("error").Inc()
		return
	}
	generationsTotal.WithLabelValues("success").Inc()
	tokensTotal.WithLabelValues("prompt").Add(float64(usage.PromptTokens))
	tokensTotal.WithLabelValues("candidates").Add(float64(usage.CandidatesTokens))
}
