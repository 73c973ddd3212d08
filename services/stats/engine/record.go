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
	"time"

	"github.com/AleutianAI/vibevariant/services/stats/history"
)

// ToRecord folds a completed analysis into the experiment record that
// feeds cross-experiment learning (empirical-Bayes priors, shrinkage,
// daily-rate estimates).
//
// Inputs:
//   - projectKey: Owning project.
//   - startedAt, completedAt: Experiment lifetime; the engine does not
//     track time itself.
//
// Outputs:
//   - history.ExperimentRecord: Ready to persist and to append to a
//     ProjectHistory.
func (r *Result) ToRecord(projectKey string, startedAt, completedAt time.Time) history.ExperimentRecord {
	rec := history.ExperimentRecord{
		ExperimentKey: r.ExperimentKey,
		ProjectKey:    projectKey,
		TotalVisitors: r.TotalVisitors,
		StartedAt:     startedAt,
		CompletedAt:   completedAt,
	}

	var totalConversions int
	for _, v := range r.Variants {
		rec.Variants = append(rec.Variants, history.VariantSummary{
			VariantKey:     v.VariantKey,
			Visitors:       v.Visitors,
			Conversions:    v.Conversions,
			ConversionRate: v.ConversionRate,
			PosteriorMean:  v.PosteriorMean,
		})
		totalConversions += v.Conversions
	}
	if len(r.Variants) > 0 {
		rec.ControlRate = r.Variants[0].ConversionRate
	}
	if r.TotalVisitors > 0 {
		rec.OverallRate = float64(totalConversions) / float64(r.TotalVisitors)
	}
	if r.Decision.WinningVariant != nil {
		rec.WinningVariant = *r.Decision.WinningVariant
	}
	if r.RawEffectSize != nil {
		rec.EffectSize = *r.RawEffectSize
	}
	if r.ShrunkEffectSize != nil {
		rec.ShrunkEffectSize = *r.ShrunkEffectSize
	}
	return rec
}
