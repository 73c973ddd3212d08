// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bayes implements the conjugate Beta-Binomial core of the stats
// engine: posterior updates, Monte-Carlo draw matrices, and the derived
// quantities (probability-of-being-best, expected loss, highest-density
// intervals) every downstream decision stage consumes.
//
// All randomness in an analysis derives from its one seed so that two
// calls with the same snapshot and seed are byte-identical.
package bayes

import (
	"fmt"
)

// DefaultPriorAlpha and DefaultPriorBeta encode the platform prior
// Beta(1, 19), an expected conversion rate of ~5%. Appropriate for small
// sites where double-digit conversion rates are rare.
const (
	DefaultPriorAlpha = 1.0
	DefaultPriorBeta  = 19.0
)

// BetaBinomial is an immutable Beta-Binomial conjugate model.
//
// Description:
//
//	The posterior for a binomial likelihood under a Beta(alpha, beta) prior
//	is Beta(alpha+k, beta+n-k). Update returns a new value rather than
//	mutating, so callers can safely compare pre- and post-update posteriors.
//
// Thread Safety: Immutable; safe to share.
type BetaBinomial struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
}

// NewBetaBinomial creates a model with the given prior parameters.
//
// Inputs:
//   - alpha: Pseudo-successes, must be > 0.
//   - beta: Pseudo-failures, must be > 0.
//
// Outputs:
//   - BetaBinomial: The prior model.
//   - error: Non-nil if either parameter is non-positive.
func NewBetaBinomial(alpha, beta float64) (BetaBinomial, error) {
	if alpha <= 0 || beta <= 0 {
		return BetaBinomial{}, fmt.Errorf("beta parameters must be positive, got alpha=%v beta=%v", alpha, beta)
	}
	return BetaBinomial{Alpha: alpha, Beta: beta}, nil
}

// DefaultPrior returns the platform default Beta(1, 19) prior.
func DefaultPrior() BetaBinomial {
	return BetaBinomial{Alpha: DefaultPriorAlpha, Beta: DefaultPriorBeta}
}

// Update returns a new model with the posterior after observing data.
//
// Inputs:
//   - successes: Conversions observed, 0 <= successes <= trials.
//   - trials: Visitors observed.
//
// Outputs:
//   - BetaBinomial: Posterior model.
//   - error: Non-nil on negative counts or successes > trials.
func (m BetaBinomial) Update(successes, trials int) (BetaBinomial, error) {
	if successes < 0 {
		return BetaBinomial{}, fmt.Errorf("successes must be non-negative, got %d", successes)
	}
	if trials < 0 {
		return BetaBinomial{}, fmt.Errorf("trials must be non-negative, got %d", trials)
	}
	if successes > trials {
		return BetaBinomial{}, fmt.Errorf("successes (%d) cannot exceed trials (%d)", successes, trials)
	}
	return BetaBinomial{
		Alpha: m.Alpha + float64(successes),
		Beta:  m.Beta + float64(trials-successes),
	}, nil
}

// WithPseudoObservations adds weighted pseudo-observations with the given
// mean, used to blend an engagement proxy into a sparse posterior.
//
// Description:
//
//	Adds weight*mean to alpha and weight*(1-mean) to beta. The effective
//	sample size alpha+beta grows by exactly weight, preserving the
//	no-unlearning invariant.
func (m BetaBinomial) WithPseudoObservations(mean, weight float64) BetaBinomial {
	if weight <= 0 {
		return m
	}
	return BetaBinomial{
		Alpha: m.Alpha + weight*mean,
		Beta:  m.Beta + weight*(1-mean),
	}
}

// Mean returns the posterior mean alpha / (alpha + beta).
func (m BetaBinomial) Mean() float64 {
	return m.Alpha / (m.Alpha + m.Beta)
}

// Variance returns the posterior variance
// alpha*beta / ((alpha+beta)^2 * (alpha+beta+1)).
func (m BetaBinomial) Variance() float64 {
	ab := m.Alpha + m.Beta
	return (m.Alpha * m.Beta) / (ab * ab * (ab + 1))
}

// EffectiveSampleSize returns alpha + beta, the total pseudo-observation
// count backing the posterior.
func (m BetaBinomial) EffectiveSampleSize() float64 {
	return m.Alpha + m.Beta
}

// String implements fmt.Stringer.
func (m BetaBinomial) String() string {
	return fmt.Sprintf("BetaBinomial(alpha=%.3f, beta=%.3f)", m.Alpha, m.Beta)
}
