// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// engineTracer is the shared OTel tracer for the analysis engine.
// Exporter wiring is the host process's concern.
var engineTracer = otel.Tracer("scopetrace.engine")

// Package-level Prometheus metrics for engine operations.
// Auto-registered via promauto so no explicit registry wiring is needed.
var (
	// applyDuration measures the duration of Apply calls.
	//
	// Labels:
	//   - status: "success" or "error"
	applyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scopetrace",
			Subsystem: "engine",
			Name:      "apply_duration_seconds",
			Help:      "Duration of fact transaction applies in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"status"},
	)

	// filesAnalyzedTotal counts per-file recomputations by outcome.
	//
	// Labels:
	//   - status: "success" or "structural_error"
	filesAnalyzedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scopetrace",
			Subsystem: "engine",
			Name:      "files_analyzed_total",
			Help:      "Total per-file recomputations by outcome.",
		},
		[]string{"status"},
	)

	// rowsDerivedTotal counts rows in settled relations after each
	// per-file recomputation.
	//
	// Labels:
	//   - relation: canonical relation name
	rowsDerivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scopetrace",
			Subsystem: "engine",
			Name:      "rows_derived_total",
			Help:      "Total derived rows by relation.",
		},
		[]string{"relation"},
	)

	// deltasEmittedTotal counts deltas delivered to subscribers.
	deltasEmittedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scopetrace",
			Subsystem: "engine",
			Name:      "deltas_emitted_total",
			Help:      "Total relation deltas emitted to subscribers.",
		},
	)

	// activeApplies tracks in-flight Apply calls.
	activeApplies = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scopetrace",
			Subsystem: "engine",
			Name:      "active_applies",
			Help:      "Number of currently active Apply calls.",
		},
	)
)

// startApplySpan starts the span covering one Apply call.
func startApplySpan(ctx context.Context, touchedFiles int) (context.Context, trace.Span) {
	return engineTracer.Start(ctx, "Engine.Apply",
		trace.WithAttributes(
			attribute.Int("files.touched", touchedFiles),
		),
	)
}

// setApplySpanResult records the outcome attributes on the apply span.
func setApplySpanResult(span trace.Span, stats ApplyStats, incomplete bool) {
	span.SetAttributes(
		attribute.Int("files.analyzed", stats.FilesAnalyzed),
		attribute.Int("files.failed", stats.FilesFailed),
		attribute.Int("rows.derived", stats.RowsDerived),
		attribute.Int("deltas.emitted", stats.DeltasEmitted),
		attribute.Bool("incomplete", incomplete),
	)
}

// recordApplyMetrics records the Prometheus metrics for one Apply call.
func recordApplyMetrics(duration time.Duration, stats ApplyStats, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	applyDuration.WithLabelValues(status).Observe(duration.Seconds())
	deltasEmittedTotal.Add(float64(stats.DeltasEmitted))
}

// recordFileMetrics records the per-file recomputation outcome.
func recordFileMetrics(fr *fileResult, err error) {
	if err != nil {
		filesAnalyzedTotal.WithLabelValues("structural_error").Inc()
		return
	}
	filesAnalyzedTotal.WithLabelValues("success").Inc()
	if fr == nil {
		return
	}
	for rel, rows := range fr.rows {
		n := 0
		for _, m := range rows {
			n += m
		}
		if n > 0 {
			rowsDerivedTotal.WithLabelValues(rel.String()).Add(float64(n))
		}
	}
}
