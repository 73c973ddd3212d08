// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package shrinkage applies a James-Stein-style correction to reported
// effect sizes.
//
// Raw effects from experiments that "won" are biased upward (winner's
// curse). Pulling each estimate toward the project's cross-experiment mean
// effect reduces total squared error. The correction is diagnostic only:
// ship decisions always use the unshrunk posterior.
package shrinkage

import (
	"gonum.org/v1/gonum/stat"
)

// MinHistory is the number of prior experiments required before the
// between-experiment variance estimate is trusted. Below it, shrinkage is
// disabled and the shrunk effect equals the raw effect.
const MinHistory = 5

// Shrink pulls a raw effect size toward the cross-experiment mean.
//
// Description:
//
//	shrunk = dBar + tau2/(tau2+sigma2) * (raw - dBar)
//
//	where dBar and tau2 are the mean and variance of the project's past
//	effect sizes and sigma2 is the posterior variance of the current
//	effect (the sample variance of the difference draws).
//
// Inputs:
//   - raw: The current experiment's raw effect size.
//   - sigma2: Posterior variance of the raw effect, >= 0.
//   - pastEffects: Recorded effect sizes of completed experiments.
//
// Outputs:
//   - float64: The shrunk effect (== raw when shrinkage is disabled).
//   - bool: Whether shrinkage was applied.
func Shrink(raw, sigma2 float64, pastEffects []float64) (float64, bool) {
	if len(pastEffects) < MinHistory {
		return raw, false
	}

	tau2 := stat.Variance(pastEffects, nil)
	if tau2 <= 0 {
		return raw, false
	}

	dBar := stat.Mean(pastEffects, nil)
	weight := tau2 / (tau2 + sigma2)
	return dBar + weight*(raw-dBar), true
}
