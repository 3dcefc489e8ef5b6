// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package apply

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/listsync/services/listsync/snapshot"
)

// Package-level tracer and meter for apply operations.
var (
	tracer = otel.Tracer("listsync.apply")
	meter  = otel.Meter("listsync.apply")
)

// Prometheus metrics for apply outcomes.
var (
	applyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listsync_apply_total",
		Help: "Total applies by the mode that reached the list",
	}, []string{"mode"})

	applyFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listsync_apply_fallback_total",
		Help: "Animated applies that fell back to a full reload",
	})

	applyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "listsync_apply_duration_seconds",
		Help:    "Time spent diffing and applying one snapshot",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})
)

var (
	scriptOps metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the otel instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		scriptOps, metricsErr = meter.Int64Histogram(
			"listsync_script_ops",
			metric.WithDescription("Number of ops in each applied edit script"),
		)
	})
	return metricsErr
}

func recordScriptSize(ctx context.Context, ops int, fellBack bool) {
	if err := initMetrics(); err != nil {
		return
	}
	scriptOps.Record(ctx, int64(ops), metric.WithAttributes(attribute.Bool("fell_back", fellBack)))
}

// startApplySpan creates a span for one Apply call.
func startApplySpan(ctx context.Context, mode Mode) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Applicator.Apply",
		trace.WithAttributes(attribute.String("apply.requested_mode", mode.String())),
	)
}

func setApplySpanResult[S, I snapshot.Key](span trace.Span, res Result[S, I]) {
	span.SetAttributes(
		attribute.String("apply.mode", res.Mode.String()),
		attribute.Bool("apply.fell_back", res.FellBack),
		attribute.Int("apply.ops", res.Script.Len()),
	)
}
