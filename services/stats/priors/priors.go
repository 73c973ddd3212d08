// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package priors resolves the Beta prior for an analysis from a three-tier
// fallback: user-specified, project empirical Bayes, platform default.
//
// The same prior is applied to every arm; asymmetric priors are not
// supported.
package priors

import (
	"gonum.org/v1/gonum/stat"

	"github.com/AleutianAI/vibevariant/services/stats/bayes"
	"github.com/AleutianAI/vibevariant/services/stats/history"
)

// Source identifies which tier produced the resolved prior. The string
// values are part of the EngineResult JSON contract.
type Source string

const (
	SourceUserSpecified     Source = "user_specified"
	SourceProjectHistorical Source = "project_historical"
	SourcePlatformDefault   Source = "platform_default"
)

// MinHistoricalExperiments is the minimum number of usable historical
// control rates before empirical Bayes is attempted.
const MinHistoricalExperiments = 3

// Moment-matching sanity bounds. A fitted prior more concentrated than
// Beta(1000, 1000) would dominate any small-sample experiment.
const (
	minFittedParam = 0.1
	maxFittedParam = 1000.0
)

// Resolve picks the prior for an analysis.
//
// Description:
//
//	Tiering, first match wins:
//	 1. explicit non-nil user prior, used as-is;
//	 2. empirical Bayes over the project's historical control rates;
//	 3. platform default Beta(1, 19).
//
//	A degenerate empirical-Bayes fit (too few experiments, variance
//	incompatible with a Beta, or non-positive fitted parameters) silently
//	falls through to the platform default.
//
// Inputs:
//   - userPrior: Explicit prior from config, or nil.
//   - hist: Project history, may be nil.
//
// Outputs:
//   - bayes.BetaBinomial: The resolved prior.
//   - Source: Which tier produced it.
func Resolve(userPrior *bayes.BetaBinomial, hist *history.ProjectHistory) (bayes.BetaBinomial, Source) {
	if userPrior != nil {
		return *userPrior, SourceUserSpecified
	}

	if hist != nil {
		if fitted, ok := fitFromHistory(hist.ControlRates()); ok {
			return fitted, SourceProjectHistorical
		}
	}

	return bayes.DefaultPrior(), SourcePlatformDefault
}

// fitFromHistory fits a Beta prior to historical control rates by the
// method of moments.
//
//	common = m(1-m)/s^2 - 1
//	alpha  = m * common
//	beta   = (1-m) * common
//
// Requires at least MinHistoricalExperiments rates and 0 < s^2 < m(1-m);
// outside that region a Beta cannot match the moments.
func fitFromHistory(rates []float64) (bayes.BetaBinomial, bool) {
	if len(rates) < MinHistoricalExperiments {
		return bayes.BetaBinomial{}, false
	}

	m := stat.Mean(rates, nil)
	v := stat.Variance(rates, nil) // unbiased sample variance

	if m <= 0 || m >= 1 {
		return bayes.BetaBinomial{}, false
	}
	if v <= 0 || v >= m*(1-m) {
		return bayes.BetaBinomial{}, false
	}

	common := m*(1-m)/v - 1
	alpha := m * common
	beta := (1 - m) * common

	if alpha <= 0 || beta <= 0 {
		// HistoryDegenerate: moment matching collapsed; callers get the
		// platform default instead.
		return bayes.BetaBinomial{}, false
	}

	alpha = clamp(alpha, minFittedParam, maxFittedParam)
	beta = clamp(beta, minFittedParam, maxFittedParam)

	return bayes.BetaBinomial{Alpha: alpha, Beta: beta}, true
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
