// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry provides metrics for the stats engine.
//
// Description:
//
//	Prometheus counters and histograms for analysis throughput and
//	Monte-Carlo cost, plus an otel instrument set for deployments on an
//	OpenTelemetry pipeline. All metrics use the "stats_" prefix.
//
//	The pure pipeline stages never touch metrics; only the engine entry
//	point and the storage layer record here, so analysis results stay
//	deterministic.
//
// Thread Safety: Safe for concurrent use.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	analysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stats_analyses_total",
		Help: "Total experiment analyses by decision status",
	}, []string{"status"})

	analysisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stats_analysis_errors_total",
		Help: "Total failed analyses by error kind",
	}, []string{"kind"})

	analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stats_analysis_duration_seconds",
		Help:    "End-to-end analysis latency",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})

	mcDraws = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stats_mc_draws_per_analysis",
		Help:    "Monte-Carlo draws per variant per analysis",
		Buckets: []float64{1000, 5000, 10000, 20000, 50000, 100000, 200000},
	})

	storeOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stats_store_operations_total",
		Help: "Experiment store operations by kind and status",
	}, []string{"op", "status"})
)

// ObserveAnalysis records a completed analysis.
func ObserveAnalysis(status string, duration time.Duration, mcSamples int) {
	analysesTotal.WithLabelValues(status).Inc()
	analysisDuration.Observe(duration.Seconds())
	mcDraws.Observe(float64(mcSamples))
}

// ObserveAnalysisError records a failed analysis.
func ObserveAnalysisError(kind string) {
	analysisErrors.WithLabelValues(kind).Inc()
}

// ObserveStoreOp records a storage operation outcome.
func ObserveStoreOp(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	storeOps.WithLabelValues(op, status).Inc()
}

// =============================================================================
// OTel Instruments
// =============================================================================

// Metrics contains the otel instrument set for the stats service.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// AnalysesTotal counts analyses by decision status.
	AnalysesTotal metric.Int64Counter

	// AnalysisDuration records analysis latency in seconds.
	AnalysisDuration metric.Float64Histogram

	// AllocationEntropy records the entropy of suggested allocations, a
	// cheap signal for how exploratory the bandit currently is.
	AllocationEntropy metric.Float64Histogram
}

// NewMetrics creates the otel instrument set from a meter.
//
// Inputs:
//   - meter: The service meter, typically otel.Meter("stats").
//
// Outputs:
//   - *Metrics: Ready-to-use instruments.
//   - error: Non-nil when instrument creation fails.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.AnalysesTotal, err = meter.Int64Counter(
		"stats_analyses_total",
		metric.WithDescription("Total experiment analyses by decision status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stats_analyses_total: %w", err)
	}

	m.AnalysisDuration, err = meter.Float64Histogram(
		"stats_analysis_duration_seconds",
		metric.WithDescription("End-to-end analysis latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stats_analysis_duration_seconds: %w", err)
	}

	m.AllocationEntropy, err = meter.Float64Histogram(
		"stats_allocation_entropy",
		metric.WithDescription("Entropy of the suggested traffic allocation"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stats_allocation_entropy: %w", err)
	}

	return m, nil
}

// RecordAnalysis records one analysis on the otel instruments.
func (m *Metrics) RecordAnalysis(ctx context.Context, status string, duration time.Duration) {
	m.AnalysesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.AnalysisDuration.Record(ctx, duration.Seconds())
}
