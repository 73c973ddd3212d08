// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package decisions

import (
	"fmt"
	"strings"
)

// RecommendationInput carries the numbers the recommender is allowed to
// cite. It never invents values not present here.
type RecommendationInput struct {
	Outcome          Outcome
	Keys             []string
	TotalVisitors    int
	TotalConversions int
	MinTotalN        int
	HDIMass          float64
	Epsilon          float64

	// ProbBest is the per-variant probability of being best, parallel to
	// Keys. May be nil when no sampling happened (zero-exposure call).
	ProbBest []float64

	// EngagementSummary is the proxy comparison sentence, when available.
	EngagementSummary string
}

// sparseConversionCeiling is the total conversion count at or below which
// the recommendation leans on engagement language instead of rates.
const sparseConversionCeiling = 2

// Recommend renders the plain-English recommendation for an outcome.
//
// Wording is factual and avoids overstating confidence: every number in
// the text comes from the decision record.
func Recommend(in RecommendationInput) string {
	switch in.Outcome.Status {
	case StatusCollectingData:
		return recommendCollecting(in)
	case StatusPracticallyEquivalent:
		return recommendEquivalent(in)
	case StatusReadyToShip:
		return recommendShip(in)
	default:
		return recommendKeepTesting(in)
	}
}

func recommendCollecting(in RecommendationInput) string {
	if in.TotalVisitors == 0 {
		return fmt.Sprintf(
			"No visitors recorded yet. Collect at least %d total visitors before any comparison is meaningful.",
			in.MinTotalN)
	}

	var b strings.Builder
	fmt.Fprintf(&b,
		"Still collecting data: %d of the %d visitors needed for a first read.",
		in.TotalVisitors, in.MinTotalN)
	if in.EngagementSummary != "" {
		fmt.Fprintf(&b, " Early engagement signal: %s", in.EngagementSummary)
	}
	return b.String()
}

func recommendEquivalent(in RecommendationInput) string {
	o := in.Outcome
	return fmt.Sprintf(
		"The variants are practically equivalent: the %.0f%% HDI of the difference [%.4f, %.4f] sits inside the ±%.3f ROPE. Pick either on other grounds (cost, simplicity) and move on.",
		in.HDIMass*100, o.DiffHDI.Lo, o.DiffHDI.Hi, o.ROPE.Hi)
}

func recommendShip(in RecommendationInput) string {
	o := in.Outcome
	return fmt.Sprintf(
		"Ship %s: expected regret if wrong is %.3f%%, below the %.3f%% threshold, and the %.0f%% HDI of the difference [%.4f, %.4f] excludes zero.",
		o.WinningVariant, o.LeadingLoss*100, in.Epsilon*100, in.HDIMass*100, o.DiffHDI.Lo, o.DiffHDI.Hi)
}

func recommendKeepTesting(in RecommendationInput) string {
	o := in.Outcome
	leaderKey := in.Keys[o.LeaderIndex]

	// Sparse conversions: lean on the engagement proxy when it has
	// something to say.
	if in.TotalConversions <= sparseConversionCeiling && in.EngagementSummary != "" {
		return fmt.Sprintf(
			"Not enough conversions yet (%d across %d visitors), but engagement data is available: %s This usually predicts better conversion, so keep testing.",
			in.TotalConversions, in.TotalVisitors, in.EngagementSummary)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Keep testing. %s leads", leaderKey)
	if len(in.ProbBest) == len(in.Keys) {
		fmt.Fprintf(&b, " with a %.0f%% chance of being best", in.ProbBest[o.LeaderIndex]*100)
	}
	switch {
	case o.LeadingLoss > in.Epsilon:
		fmt.Fprintf(&b,
			", but its expected regret of %.3f%% is still above the %.3f%% ship threshold.",
			o.LeadingLoss*100, in.Epsilon*100)
	case !excludesZero(o.DiffHDI):
		fmt.Fprintf(&b,
			", but the %.0f%% HDI of the difference [%.4f, %.4f] still includes zero.",
			in.HDIMass*100, o.DiffHDI.Lo, o.DiffHDI.Hi)
	default:
		b.WriteString(", but it has no observed conversion yet.")
	}
	b.WriteString(" More data is needed before committing.")
	return b.String()
}
