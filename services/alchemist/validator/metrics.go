// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// strippedTotal counts stripped token runs.
	// Labels: kind (unknown_flag, missing_args, invalid_method, invalid_kernel, stray_token)
	strippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alchemist",
		Subsystem: "validator",
		Name:      "stripped_total",
		Help:      "Total stripped token runs by reason kind",
	}, []string{"kind"})

	// validationsTotal counts audited validations.
	// Labels: source, outcome (clean, stripped, empty)
	validationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alchemist",
		Subsystem: "validator",
		Name:      "validations_total",
		Help:      "Total audited validations by source and outcome",
	}, []string{"source", "outcome"})
)
