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
	"github.com/AleutianAI/vibevariant/services/stats/decisions"
	"github.com/AleutianAI/vibevariant/services/stats/priors"
)

// VariantResult is the per-variant block of an analysis result. Field
// names are the JSON contract consumed by the dashboard and API.
type VariantResult struct {
	VariantKey       string     `json:"variant_key"`
	Visitors         int        `json:"visitors"`
	Conversions      int        `json:"conversions"`
	ConversionRate   float64    `json:"conversion_rate"`
	PosteriorAlpha   float64    `json:"posterior_alpha"`
	PosteriorBeta    float64    `json:"posterior_beta"`
	PosteriorMean    float64    `json:"posterior_mean"`
	CredibleInterval [2]float64 `json:"credible_interval"`
	EngagementScore  *float64   `json:"engagement_score"`
	ProbabilityBest  float64    `json:"probability_best"`
	ExpectedLoss     float64    `json:"expected_loss"`
}

// Decision is the classified outcome block.
type Decision struct {
	DecisionStatus     decisions.Status `json:"decision_status"`
	WinningVariant     *string          `json:"winning_variant"`
	LeadingVariantLoss float64          `json:"leading_variant_loss"`
	EpsilonThreshold   float64          `json:"epsilon_threshold"`
	ConfidencePct      float64          `json:"confidence_pct"`
	EstimatedDays      *int             `json:"estimated_days"`
}

// ROPEAnalysis is the practical-equivalence block over the top-two
// difference.
type ROPEAnalysis struct {
	ROPE     [2]float64            `json:"rope"`
	HDI      [2]float64            `json:"hdi"`
	Decision decisions.ROPEOutcome `json:"decision"`
}

// Result is the complete output of one analysis. All fields are plain
// data; serializing to JSON yields the external contract.
type Result struct {
	ExperimentKey       string             `json:"experiment_key"`
	TotalVisitors       int                `json:"total_visitors"`
	Variants            []VariantResult    `json:"variants"`
	ProbabilityBBeatsA  *float64           `json:"probability_b_beats_a"`
	Decision            Decision           `json:"decision"`
	ROPEAnalysis        *ROPEAnalysis      `json:"rope_analysis"`
	SuggestedAllocation map[string]float64 `json:"suggested_allocation"`
	RawEffectSize       *float64           `json:"raw_effect_size"`
	ShrunkEffectSize    *float64           `json:"shrunk_effect_size"`
	PriorUsed           priors.Source      `json:"prior_used"`
	Recommendation      string             `json:"recommendation"`
}

