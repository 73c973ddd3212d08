// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package proxy turns raw engagement signals into bounded per-visitor
// scores. When conversions are too sparse to move a posterior (1 vs 0 on a
// hundred visitors), engagement is the leading indicator the engine blends
// in instead.
//
// The composite score is a weighted combination of four signals, each
// saturated to [0, 1]:
//
//   - scroll depth:  max % reached, /100
//   - active time:   milliseconds, /60000, clipped at 1
//   - clicks:        count, /10, clipped at 1
//   - form engaged:  binary
package proxy

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Signal saturation ceilings.
const (
	maxScrollDepth = 100.0   // percent
	maxActiveTime  = 60000.0 // milliseconds
	maxClicks      = 10.0
)

// Signals holds one visitor's raw engagement signals.
type Signals struct {
	// ScrollDepth is the maximum scroll percentage reached, 0-100.
	ScrollDepth float64 `json:"scroll_depth"`

	// ActiveTimeMS is active time on page in milliseconds.
	ActiveTimeMS float64 `json:"active_time_ms"`

	// Clicks is the click interaction count.
	Clicks int `json:"clicks"`

	// FormEngaged reports whether the visitor interacted with a form.
	FormEngaged bool `json:"form_engaged"`
}

// Weights are the engagement feature weights. They should sum to 1; Score
// normalizes defensively so a drifted calibration cannot push scores out
// of [0, 1].
type Weights struct {
	ScrollDepth float64 `json:"scroll_depth" yaml:"scroll_depth"`
	ActiveTime  float64 `json:"active_time" yaml:"active_time"`
	Clicks      float64 `json:"clicks" yaml:"clicks"`
	Form        float64 `json:"form" yaml:"form"`
}

// DefaultWeights returns the platform default engagement weights.
func DefaultWeights() Weights {
	return Weights{ScrollDepth: 0.3, ActiveTime: 0.3, Clicks: 0.2, Form: 0.2}
}

// Sum returns the total weight mass.
func (w Weights) Sum() float64 {
	return w.ScrollDepth + w.ActiveTime + w.Clicks + w.Form
}

// Normalized returns weights scaled to sum to 1.
//
// Outputs:
//   - Weights: Normalized copy.
//   - error: Non-nil when the sum is not positive.
func (w Weights) Normalized() (Weights, error) {
	s := w.Sum()
	if s <= 0 {
		return Weights{}, fmt.Errorf("weights must have positive sum, got %v", s)
	}
	return Weights{
		ScrollDepth: w.ScrollDepth / s,
		ActiveTime:  w.ActiveTime / s,
		Clicks:      w.Clicks / s,
		Form:        w.Form / s,
	}, nil
}

// Score computes the composite engagement score for one visitor.
//
// The result is in [0, 1] for any non-negative weights: each feature is
// saturated to [0, 1] and the weights are normalized.
func Score(s Signals, w Weights) float64 {
	norm, err := w.Normalized()
	if err != nil {
		norm = DefaultWeights()
	}

	scroll := clip01(s.ScrollDepth / maxScrollDepth)
	active := clip01(s.ActiveTimeMS / maxActiveTime)
	clicks := clip01(float64(s.Clicks) / maxClicks)
	form := 0.0
	if s.FormEngaged {
		form = 1.0
	}

	return norm.ScrollDepth*scroll + norm.ActiveTime*active + norm.Clicks*clicks + norm.Form*form
}

// ScoreVariants scores every visitor of every variant.
//
// Description:
//
//	Winsorization happens here, before aggregation: each raw feature is
//	capped at the winsorizeP quantile computed pooled across all variants,
//	so a single rage-clicking visitor in one arm cannot dominate the
//	comparison.
//
// Inputs:
//   - signals: Per-variant visitor signal slices.
//   - w: Engagement weights (calibrated or default).
//   - winsorizeP: Upper quantile for the feature caps, in (0, 1]. A value
//     of 1 disables winsorization.
//
// Outputs:
//   - map[string][]float64: Per-variant visitor scores in [0, 1], same
//     ordering as the input slices.
func ScoreVariants(signals map[string][]Signals, w Weights, winsorizeP float64) map[string][]float64 {
	capped := winsorize(signals, winsorizeP)

	out := make(map[string][]float64, len(capped))
	for key, visitors := range capped {
		scores := make([]float64, len(visitors))
		for i, s := range visitors {
			scores[i] = Score(s, w)
		}
		out[key] = scores
	}
	return out
}

// winsorize caps each feature at its pooled upper quantile.
func winsorize(signals map[string][]Signals, p float64) map[string][]Signals {
	if p <= 0 || p >= 1 {
		return signals
	}

	var scroll, active, clicks []float64
	for _, visitors := range signals {
		for _, s := range visitors {
			scroll = append(scroll, s.ScrollDepth)
			active = append(active, s.ActiveTimeMS)
			clicks = append(clicks, float64(s.Clicks))
		}
	}
	if len(scroll) == 0 {
		return signals
	}

	scrollCap := quantile(scroll, p)
	activeCap := quantile(active, p)
	clicksCap := quantile(clicks, p)

	out := make(map[string][]Signals, len(signals))
	for key, visitors := range signals {
		cappedVisitors := make([]Signals, len(visitors))
		for i, s := range visitors {
			cappedVisitors[i] = Signals{
				ScrollDepth:  min64(s.ScrollDepth, scrollCap),
				ActiveTimeMS: min64(s.ActiveTimeMS, activeCap),
				Clicks:       int(min64(float64(s.Clicks), clicksCap)),
				FormEngaged:  s.FormEngaged, // binary signal, nothing to cap
			}
		}
		out[key] = cappedVisitors
	}
	return out
}

func quantile(values []float64, p float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// Mean returns the mean score, or 0 for an empty slice.
func Mean(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	return stat.Mean(scores, nil)
}

// Comparison summarizes engagement across variants for the recommender.
type Comparison struct {
	// Means maps variant key to its mean visitor score.
	Means map[string]float64 `json:"means"`

	// BestVariant and WorstVariant bracket the engagement range. Empty
	// when fewer than two variants carry scores.
	BestVariant  string `json:"best_variant,omitempty"`
	WorstVariant string `json:"worst_variant,omitempty"`

	// Summary is the plain-English comparison used in sparse-data
	// recommendations.
	Summary string `json:"summary"`
}

// similarGap is the mean-score gap below which engagement is reported as
// indistinguishable.
const similarGap = 0.05

// Compare builds the engagement comparison across variants.
func Compare(scores map[string][]float64) Comparison {
	means := make(map[string]float64, len(scores))
	var keys []string
	for key, s := range scores {
		if len(s) == 0 {
			continue
		}
		means[key] = Mean(s)
		keys = append(keys, key)
	}
	sort.Strings(keys)

	cmp := Comparison{Means: means}
	if len(keys) < 2 {
		cmp.Summary = "Need at least two variants with engagement data to compare."
		return cmp
	}

	best, worst := keys[0], keys[0]
	for _, k := range keys[1:] {
		if means[k] > means[best] {
			best = k
		}
		if means[k] < means[worst] {
			worst = k
		}
	}
	cmp.BestVariant, cmp.WorstVariant = best, worst

	gap := means[best] - means[worst]
	if gap < similarGap {
		cmp.Summary = "Engagement is similar between variants. Need more data to differentiate."
		return cmp
	}

	denom := means[worst]
	if denom < 0.001 {
		denom = 0.001
	}
	cmp.Summary = fmt.Sprintf(
		"Variant %s shows %.0f%% higher engagement than %s (%.3f vs %.3f).",
		best, gap/denom*100, worst, means[best], means[worst],
	)
	return cmp
}

func clip01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func min64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
