// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package decisions classifies an experiment's state from expected loss
// and the ROPE test, and renders the plain-English recommendation.
//
// The classification is the honest-small-sample heart of the engine: it
// distinguishes "no signal yet" from "signal too small to matter" from
// "safe to ship", using expected regret rather than p-values.
package decisions

import (
	"math"

	"github.com/AleutianAI/vibevariant/services/stats/bayes"
)

// Status is the experiment decision state. The string values are part of
// the EngineResult JSON contract.
type Status string

const (
	StatusCollectingData        Status = "collecting_data"
	StatusKeepTesting           Status = "keep_testing"
	StatusReadyToShip           Status = "ready_to_ship"
	StatusPracticallyEquivalent Status = "practically_equivalent"
)

// ROPEOutcome labels the ROPE analysis of the top-two difference.
type ROPEOutcome string

const (
	ROPEEquivalent ROPEOutcome = "equivalent"
	ROPEShipA      ROPEOutcome = "ship_a"
	ROPEShipB      ROPEOutcome = "ship_b"
	ROPEUndecided  ROPEOutcome = "undecided"
)

// lossTieEpsilon is the expected-loss gap below which two variants are
// treated as tied and the earlier one in snapshot order leads.
const lossTieEpsilon = 1e-12

// Inputs carries everything Classify needs. All Monte-Carlo quantities
// come from the single shared draw matrix; Classify never resamples.
type Inputs struct {
	// Keys are the active variant keys in matrix column order.
	Keys []string

	// TotalExposures is the summed visitor count across all arms.
	TotalExposures int

	// MinTotalN forces collecting_data below this total exposure.
	MinTotalN int

	// LossThreshold is epsilon, the maximum acceptable expected regret.
	LossThreshold float64

	// ROPEHalfWidth is the practical-equivalence margin around zero.
	ROPEHalfWidth float64

	// HDIMass is the credible mass for the difference interval.
	HDIMass float64

	// ExpectedLoss is the per-variant expected loss from the draw matrix.
	ExpectedLoss []float64

	// Conversions is the per-variant observed conversion count. A ship
	// call requires the leader to have at least one real conversion:
	// the engagement proxy may move posteriors but cannot ship on its
	// own. Nil disables the guard.
	Conversions []int

	// Matrix is the shared posterior draw matrix.
	Matrix *bayes.DrawMatrix
}

// Outcome is the classified decision state.
type Outcome struct {
	Status Status

	// WinningVariant is set only for ready_to_ship.
	WinningVariant string

	// LeaderIndex is the variant with the lowest expected loss;
	// RunnerUpIndex the second lowest (ties broken by snapshot order).
	LeaderIndex   int
	RunnerUpIndex int

	// LeadingLoss is the leader's expected loss.
	LeadingLoss float64

	// ConfidencePct is min(100, epsilon/leading_loss*100).
	ConfidencePct float64

	// ROPE is the equivalence region, DiffHDI the credible interval of
	// the later-minus-earlier top-two difference, and ROPEDecision its
	// classification.
	ROPE         bayes.Interval
	DiffHDI      bayes.Interval
	ROPEDecision ROPEOutcome
}

// Classify applies the decision rules in order:
//
//	1. total exposure below MinTotalN          -> collecting_data
//	2. diff HDI inside the ROPE                -> practically_equivalent
//	3. loss* <= epsilon and HDI excludes zero  -> ready_to_ship
//	4. otherwise                               -> keep_testing
//
// Rule 3 additionally requires the leader to have observed at least one
// conversion when Conversions is provided.
func Classify(in Inputs) Outcome {
	leader, runnerUp := rankByLoss(in.ExpectedLoss)
	loss := in.ExpectedLoss[leader]

	out := Outcome{
		LeaderIndex:   leader,
		RunnerUpIndex: runnerUp,
		LeadingLoss:   loss,
		ConfidencePct: confidencePct(in.LossThreshold, loss),
		ROPE:          bayes.Interval{Lo: -in.ROPEHalfWidth, Hi: in.ROPEHalfWidth},
	}

	// Difference oriented later-minus-earlier so the rope_analysis labels
	// ship_a/ship_b read in snapshot order.
	first, second := leader, runnerUp
	if first > second {
		first, second = second, first
	}
	diff := in.Matrix.Diff(second, first)
	out.DiffHDI = bayes.HDIFromSamples(diff, in.HDIMass)
	out.ROPEDecision = classifyROPE(out.DiffHDI, out.ROPE)

	switch {
	case in.TotalExposures < in.MinTotalN:
		out.Status = StatusCollectingData
	case out.DiffHDI.Within(out.ROPE):
		out.Status = StatusPracticallyEquivalent
	case loss <= in.LossThreshold && excludesZero(out.DiffHDI) && in.leaderHasConversions(leader):
		out.Status = StatusReadyToShip
		out.WinningVariant = in.Keys[leader]
	default:
		out.Status = StatusKeepTesting
	}
	return out
}

// rankByLoss returns the indices of the lowest and second-lowest expected
// loss. Losses within lossTieEpsilon are tied and the earlier variant
// wins, guaranteeing determinism.
func rankByLoss(losses []float64) (leader, runnerUp int) {
	leader = 0
	for v := 1; v < len(losses); v++ {
		if losses[v] < losses[leader]-lossTieEpsilon {
			leader = v
		}
	}
	runnerUp = -1
	for v := range losses {
		if v == leader {
			continue
		}
		if runnerUp == -1 || losses[v] < losses[runnerUp]-lossTieEpsilon {
			runnerUp = v
		}
	}
	return leader, runnerUp
}

func (in Inputs) leaderHasConversions(leader int) bool {
	if in.Conversions == nil {
		return true
	}
	return in.Conversions[leader] > 0
}

func classifyROPE(hdi, rope bayes.Interval) ROPEOutcome {
	switch {
	case hdi.Within(rope):
		return ROPEEquivalent
	case hdi.Lo > 0:
		return ROPEShipB
	case hdi.Hi < 0:
		return ROPEShipA
	default:
		return ROPEUndecided
	}
}

func excludesZero(iv bayes.Interval) bool {
	return iv.Lo > 0 || iv.Hi < 0
}

func confidencePct(threshold, loss float64) float64 {
	if loss <= 0 {
		return 100
	}
	return math.Min(100, threshold/loss*100)
}
