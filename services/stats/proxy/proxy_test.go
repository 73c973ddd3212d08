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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore_Bounds(t *testing.T) {
	w := DefaultWeights()

	assert.Equal(t, 0.0, Score(Signals{}, w))

	full := Signals{ScrollDepth: 100, ActiveTimeMS: 60000, Clicks: 10, FormEngaged: true}
	assert.InDelta(t, 1.0, Score(full, w), 1e-12)

	// Saturation: exceeding the ceilings cannot push the score past 1.
	over := Signals{ScrollDepth: 400, ActiveTimeMS: 1e7, Clicks: 500, FormEngaged: true}
	assert.InDelta(t, 1.0, Score(over, w), 1e-12)
}

func TestScore_WeightedCombination(t *testing.T) {
	w := DefaultWeights()

	// Half scroll only: 0.3 * 0.5.
	s := Signals{ScrollDepth: 50}
	assert.InDelta(t, 0.15, Score(s, w), 1e-12)

	// 30s active + form: 0.3*0.5 + 0.2.
	s = Signals{ActiveTimeMS: 30000, FormEngaged: true}
	assert.InDelta(t, 0.35, Score(s, w), 1e-12)

	// 5 clicks: 0.2 * 0.5.
	s = Signals{Clicks: 5}
	assert.InDelta(t, 0.10, Score(s, w), 1e-12)
}

func TestScore_NormalizesWeights(t *testing.T) {
	// Doubled weights score identically to the defaults.
	doubled := Weights{ScrollDepth: 0.6, ActiveTime: 0.6, Clicks: 0.4, Form: 0.4}
	s := Signals{ScrollDepth: 80, ActiveTimeMS: 12000, Clicks: 3}
	assert.InDelta(t, Score(s, DefaultWeights()), Score(s, doubled), 1e-12)
}

func TestScore_ZeroWeightsFallBack(t *testing.T) {
	s := Signals{ScrollDepth: 100}
	assert.InDelta(t, Score(s, DefaultWeights()), Score(s, Weights{}), 1e-12)
}

func TestWeights_Normalized(t *testing.T) {
	w, err := Weights{ScrollDepth: 1, ActiveTime: 1, Clicks: 1, Form: 1}.Normalized()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, w.Sum(), 1e-12)
	assert.InDelta(t, 0.25, w.Form, 1e-12)

	_, err = Weights{}.Normalized()
	assert.Error(t, err)
}

func TestScoreVariants_WinsorizesPooled(t *testing.T) {
	// One outlier clicker in variant A; with a low cap quantile its click
	// signal is pulled down to the pooled bulk.
	signals := map[string][]Signals{
		"A": {
			{Clicks: 2}, {Clicks: 2}, {Clicks: 2}, {Clicks: 2},
			{Clicks: 2}, {Clicks: 2}, {Clicks: 2}, {Clicks: 2},
			{Clicks: 2}, {Clicks: 500},
		},
		"B": {
			{Clicks: 2}, {Clicks: 2}, {Clicks: 2}, {Clicks: 2}, {Clicks: 2},
			{Clicks: 2}, {Clicks: 2}, {Clicks: 2}, {Clicks: 2}, {Clicks: 2},
		},
	}

	scores := ScoreVariants(signals, DefaultWeights(), 0.90)
	require.Len(t, scores["A"], 10)

	// The outlier visitor no longer saturates the click feature.
	capped := scores["A"][9]
	uncapped := ScoreVariants(signals, DefaultWeights(), 1.0)["A"][9]
	assert.Less(t, capped, uncapped)

	// Non-outlier visitors are untouched.
	assert.InDelta(t, scores["B"][0], ScoreVariants(signals, DefaultWeights(), 1.0)["B"][0], 1e-12)
}

func TestScoreVariants_EmptyInput(t *testing.T) {
	scores := ScoreVariants(map[string][]Signals{"A": {}}, DefaultWeights(), 0.99)
	assert.Empty(t, scores["A"])
}

func TestMean(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.InDelta(t, 0.25, Mean([]float64{0.1, 0.4}), 1e-12)
}

func TestCompare(t *testing.T) {
	cmp := Compare(map[string][]float64{
		"A": {0.10, 0.10, 0.10},
		"B": {0.40, 0.40, 0.40},
	})

	assert.Equal(t, "B", cmp.BestVariant)
	assert.Equal(t, "A", cmp.WorstVariant)
	assert.Contains(t, cmp.Summary, "Variant B")
	assert.Contains(t, cmp.Summary, "higher engagement")
}

func TestCompare_SimilarVariants(t *testing.T) {
	cmp := Compare(map[string][]float64{
		"A": {0.30, 0.30},
		"B": {0.32, 0.32},
	})
	assert.Contains(t, cmp.Summary, "similar")
}

func TestCompare_NotEnoughVariants(t *testing.T) {
	cmp := Compare(map[string][]float64{"A": {0.3}, "B": {}})
	assert.Contains(t, cmp.Summary, "at least two variants")
	assert.Empty(t, cmp.BestVariant)
}

func TestCUPEDAdjust_ReducesVariance(t *testing.T) {
	// Scores strongly correlated with the covariate: CUPED removes most
	// of the variance while preserving the mean.
	y := []float64{0.10, 0.20, 0.30, 0.40, 0.50, 0.60}
	x := []float64{1, 2, 3, 4, 5, 6}

	adjusted := CUPEDAdjust(
		map[string][]float64{"A": y},
		map[string][]float64{"A": x},
		ThetaPooled,
	)["A"]

	assert.InDelta(t, Mean(y), Mean(adjusted), 1e-9)
	assert.Less(t, variance(adjusted), variance(y))
}

func TestCUPEDAdjust_MissingCovariatesPassThrough(t *testing.T) {
	y := map[string][]float64{"A": {0.1, 0.2}, "B": {0.3}}
	x := map[string][]float64{"A": {1.0}} // length mismatch

	adjusted := CUPEDAdjust(y, x, ThetaPooled)
	assert.Equal(t, y["A"], adjusted["A"])
	assert.Equal(t, y["B"], adjusted["B"])

	// No covariates at all: identity.
	assert.Equal(t, y["A"], CUPEDAdjust(y, nil, ThetaPooled)["A"])
}

func TestCUPEDAdjust_ConstantCovariatePassThrough(t *testing.T) {
	y := []float64{0.1, 0.2, 0.3}
	x := []float64{5, 5, 5}

	adjusted := CUPEDAdjust(
		map[string][]float64{"A": y},
		map[string][]float64{"A": x},
		ThetaPerVariant,
	)["A"]
	assert.Equal(t, y, adjusted)
}

func TestCUPEDAdjust_PerVariantTheta(t *testing.T) {
	scores := map[string][]float64{
		"A": {0.1, 0.2, 0.3, 0.4},
		"B": {0.4, 0.3, 0.2, 0.1},
	}
	covs := map[string][]float64{
		"A": {1, 2, 3, 4},
		"B": {1, 2, 3, 4},
	}

	adjusted := CUPEDAdjust(scores, covs, ThetaPerVariant)
	// Opposite correlations: per-variant theta flattens both arms.
	assert.Less(t, variance(adjusted["A"]), variance(scores["A"]))
	assert.Less(t, variance(adjusted["B"]), variance(scores["B"]))
}

func variance(xs []float64) float64 {
	m := Mean(xs)
	var sum float64
	for _, x := range xs {
		sum += (x - m) * (x - m)
	}
	return sum / float64(len(xs))
}
