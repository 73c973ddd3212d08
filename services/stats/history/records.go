// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history holds the cross-experiment memory of the stats engine:
// completed-experiment records, the per-project ring buffer the prior
// resolver and shrinkage corrector read, and the daily-visitor-rate
// estimate behind the dashboard's "estimated days remaining".
//
// The engine itself is stateless; a ProjectHistory is read-only during an
// analysis and updated by the caller between analyses.
package history

import (
	"sync"
	"time"
)

// defaultHistoryCapacity bounds the per-project record window. Empirical
// Bayes needs the recent past, not the full archive.
const defaultHistoryCapacity = 100

// VariantSummary is the persisted per-variant outcome of a completed
// experiment.
type VariantSummary struct {
	VariantKey     string  `json:"variant_key"`
	Visitors       int     `json:"visitors"`
	Conversions    int     `json:"conversions"`
	ConversionRate float64 `json:"conversion_rate"`
	PosteriorMean  float64 `json:"posterior_mean"`
}

// ExperimentRecord is the snapshot of a completed experiment saved for
// cross-experiment learning.
//
// Description:
//
//	Control conversion rates feed the empirical-Bayes prior, effect sizes
//	feed James-Stein shrinkage, and the visitor totals with duration feed
//	the estimated-days heuristic.
type ExperimentRecord struct {
	ID             string           `json:"id"`
	ExperimentKey  string           `json:"experiment_key"`
	ProjectKey     string           `json:"project_key"`
	Variants       []VariantSummary `json:"variants"`
	WinningVariant string           `json:"winning_variant,omitempty"`

	// ControlRate is the observed conversion rate of the control arm.
	ControlRate float64 `json:"control_rate"`

	// OverallRate is total conversions / total visitors across arms.
	OverallRate float64 `json:"overall_rate"`

	// EffectSize is the raw best-treatment-minus-control rate difference.
	EffectSize float64 `json:"effect_size"`

	// ShrunkEffectSize is the James-Stein-corrected effect, when computed.
	ShrunkEffectSize float64 `json:"shrunk_effect_size,omitempty"`

	TotalVisitors int       `json:"total_visitors"`
	StartedAt     time.Time `json:"started_at"`
	CompletedAt   time.Time `json:"completed_at"`
}

// DurationDays returns the experiment runtime in whole days, minimum 1
// when both timestamps are set and CompletedAt is after StartedAt; 0
// otherwise.
func (r ExperimentRecord) DurationDays() int {
	if r.StartedAt.IsZero() || r.CompletedAt.IsZero() || !r.CompletedAt.After(r.StartedAt) {
		return 0
	}
	days := int(r.CompletedAt.Sub(r.StartedAt).Hours() / 24)
	if days < 1 {
		days = 1
	}
	return days
}

// ProjectHistory is the bounded, thread-safe window of a project's
// completed experiments.
//
// Thread Safety: Safe for concurrent use. Reads during an analysis see a
// consistent snapshot; writers append between analyses.
type ProjectHistory struct {
	mu      sync.RWMutex
	records *ringBuffer[ExperimentRecord]
}

// NewProjectHistory creates a history window with the given capacity
// (<= 0 selects the default).
func NewProjectHistory(capacity int) *ProjectHistory {
	return &ProjectHistory{records: newRingBuffer[ExperimentRecord](capacity)}
}

// FromRecords builds a ProjectHistory preloaded with records, oldest
// first. Convenient for callers rehydrating from their database.
func FromRecords(records []ExperimentRecord) *ProjectHistory {
	capacity := defaultHistoryCapacity
	if len(records) > capacity {
		capacity = len(records)
	}
	h := NewProjectHistory(capacity)
	for _, r := range records {
		h.Add(r)
	}
	return h
}

// Add appends a completed-experiment record.
func (h *ProjectHistory) Add(record ExperimentRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records.push(record)
}

// Len returns the number of records currently held.
func (h *ProjectHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.records.len()
}

// Snapshot returns all records, oldest first.
func (h *ProjectHistory) Snapshot() []ExperimentRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.records.slice()
}

// ControlRates returns the control-arm conversion rates of all recorded
// experiments, filtered to the open interval (0, 1) the moment-matching
// fit requires.
func (h *ProjectHistory) ControlRates() []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var rates []float64
	for _, r := range h.records.slice() {
		if r.ControlRate > 0 && r.ControlRate < 1 {
			rates = append(rates, r.ControlRate)
		}
	}
	return rates
}

// EffectSizes returns the recorded raw effect sizes, oldest first.
func (h *ProjectHistory) EffectSizes() []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var effects []float64
	for _, r := range h.records.slice() {
		effects = append(effects, r.EffectSize)
	}
	return effects
}

// DailyVisitorRate estimates visitors/day from recorded experiments.
//
// Outputs:
//   - float64: Mean daily visitors across records with a known duration.
//   - bool: False when no record carries usable timing data.
func (h *ProjectHistory) DailyVisitorRate() (float64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var sum float64
	var n int
	for _, r := range h.records.slice() {
		days := r.DurationDays()
		if days == 0 || r.TotalVisitors == 0 {
			continue
		}
		sum += float64(r.TotalVisitors) / float64(days)
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// Clear drops all records. Test helper and project-reset path.
func (h *ProjectHistory) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records.clear()
}
