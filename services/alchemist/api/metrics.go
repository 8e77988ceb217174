// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	wsSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "alchemist",
		Subsystem: "api",
		Name:      "render_stream_sessions",
		Help:      "Open websocket render streams.",
	})

	wsRendersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "alchemist",
		Subsystem: "api",
		Name:      "render_stream_requests_total",
		Help:      "Render requests submitted over websocket streams.",
	})
)
