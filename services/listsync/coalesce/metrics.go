// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package coalesce

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for update streams. Stream IDs are not used as labels
// because they are unbounded.
var (
	submissionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listsync_submissions_total",
		Help: "Total snapshot submissions",
	})

	supersededTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listsync_superseded_total",
		Help: "Submissions replaced by a newer one, by the state they were in",
	}, []string{"state"})

	staleResultsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listsync_stale_results_total",
		Help: "Producer results discarded because their generation was no longer live",
	})

	producerFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listsync_producer_failures_total",
		Help: "Producers that returned an error",
	})

	producerDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "listsync_producer_duration_seconds",
		Help:    "Time from producer start to result",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})
)
