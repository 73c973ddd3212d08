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
	"math"

	"github.com/AleutianAI/vibevariant/services/stats/history"
	"github.com/AleutianAI/vibevariant/services/stats/proxy"
)

// Snapshot is the immutable input to one analysis: per-variant exposure
// and conversion counts plus optional engagement signals and
// cross-experiment history.
//
// The engine treats a Snapshot as read-only; callers may not mutate it
// while Analyze runs.
type Snapshot struct {
	// ExperimentKey is the opaque experiment identifier.
	ExperimentKey string `json:"experiment_key"`

	// Variants is the ordered variant list; the first entry is the
	// control by convention. At least two entries.
	Variants []string `json:"variants"`

	// Exposures maps variant key to visitors assigned.
	Exposures map[string]int `json:"exposures"`

	// Conversions maps variant key to conversions observed;
	// Conversions[v] <= Exposures[v].
	Conversions map[string]int `json:"conversions"`

	// Engagement maps variant key to precomputed per-visitor proxy
	// scores in [0, 1]. Length need not equal Exposures[v]; visitors
	// without engagement events are simply absent.
	Engagement map[string][]float64 `json:"engagement,omitempty"`

	// Signals maps variant key to raw per-visitor engagement signals.
	// When present, the engine scores them itself (winsorization and
	// calibrated weights applied) and ignores Engagement.
	Signals map[string][]proxy.Signals `json:"signals,omitempty"`

	// Covariates maps variant key to pre-exposure CUPED covariates,
	// parallel to the visitor score slices. Usually absent.
	Covariates map[string][]float64 `json:"covariates,omitempty"`

	// Paused marks arms excluded from the next traffic allocation.
	Paused map[string]bool `json:"paused,omitempty"`

	// Config holds the engine options; nil selects the platform
	// defaults.
	Config *Config `json:"config,omitempty"`

	// History is the project's completed-experiment window, read by the
	// prior resolver, the shrinkage corrector, and the estimated-days
	// heuristic. May be nil.
	History *history.ProjectHistory `json:"-"`
}

// validate checks snapshot consistency, returning *DataError on the
// first violation, or *ConfigError when the variant count exceeds
// MaxVariants.
func (s *Snapshot) validate() error {
	if len(s.Variants) == 0 {
		return newDataError("", "empty variant list")
	}
	if len(s.Variants) < 2 {
		return newDataError("", "need at least two variants to compare")
	}
	if len(s.Variants) > MaxVariants {
		return newConfigError("variants", len(s.Variants), "exceeds hard ceiling 64")
	}

	known := make(map[string]bool, len(s.Variants))
	for _, key := range s.Variants {
		if key == "" {
			return newDataError("", "empty variant key")
		}
		if known[key] {
			return newDataError(key, "duplicate variant")
		}
		known[key] = true
	}

	for key := range s.Exposures {
		if !known[key] {
			return newDataError(key, "exposures for unknown variant")
		}
	}
	for key := range s.Conversions {
		if !known[key] {
			return newDataError(key, "conversions for unknown variant")
		}
	}
	for key := range s.Engagement {
		if !known[key] {
			return newDataError(key, "engagement for unknown variant")
		}
	}
	for key := range s.Signals {
		if !known[key] {
			return newDataError(key, "signals for unknown variant")
		}
	}
	for key := range s.Paused {
		if !known[key] {
			return newDataError(key, "paused flag for unknown variant")
		}
	}

	for _, key := range s.Variants {
		n := s.Exposures[key]
		k := s.Conversions[key]
		if n < 0 {
			return newDataError(key, "negative exposures")
		}
		if k < 0 {
			return newDataError(key, "negative conversions")
		}
		if k > n {
			return newDataError(key, "conversions exceed exposures")
		}
		for _, score := range s.Engagement[key] {
			if math.IsNaN(score) || math.IsInf(score, 0) {
				return newDataError(key, "non-finite engagement score")
			}
			if score < 0 || score > 1 {
				return newDataError(key, "engagement score outside [0, 1]")
			}
		}
		for _, sig := range s.Signals[key] {
			if !finiteSignals(sig) {
				return newDataError(key, "non-finite engagement signal")
			}
		}
		for _, cov := range s.Covariates[key] {
			if math.IsNaN(cov) || math.IsInf(cov, 0) {
				return newDataError(key, "non-finite covariate")
			}
		}
	}

	if s.activeCount() == 0 {
		return newDataError("", "every variant is paused")
	}
	return nil
}

func finiteSignals(s proxy.Signals) bool {
	return !math.IsNaN(s.ScrollDepth) && !math.IsInf(s.ScrollDepth, 0) &&
		!math.IsNaN(s.ActiveTimeMS) && !math.IsInf(s.ActiveTimeMS, 0)
}

// totalExposures sums visitors across all arms.
func (s *Snapshot) totalExposures() int {
	total := 0
	for _, key := range s.Variants {
		total += s.Exposures[key]
	}
	return total
}

// totalConversions sums conversions across all arms.
func (s *Snapshot) totalConversions() int {
	total := 0
	for _, key := range s.Variants {
		total += s.Conversions[key]
	}
	return total
}

// activeCount returns the number of non-paused arms.
func (s *Snapshot) activeCount() int {
	n := 0
	for _, key := range s.Variants {
		if !s.Paused[key] {
			n++
		}
	}
	return n
}

// activeIndices returns the matrix column indices of non-paused arms, in
// variant order.
func (s *Snapshot) activeIndices() []int {
	var idx []int
	for i, key := range s.Variants {
		if !s.Paused[key] {
			idx = append(idx, i)
		}
	}
	return idx
}
