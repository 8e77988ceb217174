// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gencache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// lookupsTotal counts Get calls.
	// Labels: result (hit, miss, error)
	lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alchemist",
		Subsystem: "gencache",
		Name:      "lookups_total",
		Help:      "Total generation cache lookups by result",
	}, []string{"result"})

	// writesTotal counts Put calls that reached storage.
	// Labels: outcome (success, error)
	writesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alchemist",
		Subsystem: "gencache",
		Name:      "writes_total",
		Help:      "Total generation cache writes by outcome",
	}, []string{"outcome"})
)
