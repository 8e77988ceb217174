// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// vibesTotal counts processed vibes.
	// Labels: path (preset, cache, generated, offline)
	vibesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alchemist",
		Subsystem: "agent",
		Name:      "vibes_total",
		Help:      "Total vibes processed by resolution path",
	}, []string{"path"})

	// fallbacksTotal counts vibes that ended on the fallback command.
	fallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "alchemist",
		Subsystem: "agent",
		Name:      "fallbacks_total",
		Help:      "Total vibes where nothing survived validation",
	})

	// sharedTotal counts callers that reused another caller's generation.
	sharedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "alchemist",
		Subsystem: "agent",
		Name:      "shared_generations_total",
		Help:      "Total generation results delivered to concurrent identical vibes",
	})
)
