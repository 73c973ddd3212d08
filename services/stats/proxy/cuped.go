// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package proxy

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ThetaSource selects how the CUPED coefficient is computed.
type ThetaSource string

const (
	// ThetaPooled computes one theta from all variants' visitors together.
	ThetaPooled ThetaSource = "pooled"

	// ThetaPerVariant computes theta separately inside each variant.
	ThetaPerVariant ThetaSource = "per_variant"
)

// varianceFloor guards the theta division for near-constant covariates.
const varianceFloor = 1e-10

// CUPEDAdjust applies controlled-experiment variance reduction using a
// pre-exposure covariate.
//
// Description:
//
//	adjusted_y = y - theta*(x - mean(x)), theta = cov(y, x)/var(x).
//
//	Centering on the covariate mean keeps the score means unbiased while
//	removing the variance the covariate explains. With ThetaPooled, theta
//	and the covariate mean come from all variants pooled; with
//	ThetaPerVariant each variant uses its own.
//
// Inputs:
//   - scores: Per-variant visitor scores (y).
//   - covariates: Per-variant pre-exposure covariates (x), parallel to
//     scores. Variants with missing or mismatched covariates pass through
//     unadjusted.
//   - source: Pooled or per-variant theta.
//
// Outputs:
//   - map[string][]float64: Adjusted scores, same shape as the input.
func CUPEDAdjust(scores, covariates map[string][]float64, source ThetaSource) map[string][]float64 {
	if len(covariates) == 0 {
		return scores
	}

	var pooledTheta, pooledMean float64
	var pooledOK bool
	if source != ThetaPerVariant {
		pooledTheta, pooledMean, pooledOK = fitTheta(pooled(scores, covariates))
	}

	out := make(map[string][]float64, len(scores))
	for key, y := range scores {
		x, ok := covariates[key]
		if !ok || len(x) != len(y) {
			out[key] = y
			continue
		}

		theta, xMean := pooledTheta, pooledMean
		fitted := pooledOK
		if source == ThetaPerVariant {
			theta, xMean, fitted = fitTheta(y, x)
		}
		if !fitted {
			out[key] = y
			continue
		}

		adjusted := make([]float64, len(y))
		for i := range y {
			adjusted[i] = y[i] - theta*(x[i]-xMean)
		}
		out[key] = adjusted
	}
	return out
}

// fitTheta returns theta = cov(y,x)/var(x) and mean(x); ok is false when
// the covariate carries no usable variance.
func fitTheta(y, x []float64) (theta, xMean float64, ok bool) {
	if len(y) != len(x) || len(y) < 2 {
		return 0, 0, false
	}
	varX := stat.Variance(x, nil)
	if varX < varianceFloor {
		return 0, 0, false
	}
	return stat.Covariance(y, x, nil) / varX, stat.Mean(x, nil), true
}

// pooled concatenates scores and covariates across variants, keeping only
// variants where the two are parallel. Keys are visited in sorted order so
// the floating-point accumulation is reproducible.
func pooled(scores, covariates map[string][]float64) (y, x []float64) {
	keys := make([]string, 0, len(scores))
	for key := range scores {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		ys := scores[key]
		xs, ok := covariates[key]
		if !ok || len(xs) != len(ys) {
			continue
		}
		y = append(y, ys...)
		x = append(x, xs...)
	}
	return y, x
}
