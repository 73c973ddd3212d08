// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bayes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustUpdate(t *testing.T, k, n int) BetaBinomial {
	t.Helper()
	m, err := DefaultPrior().Update(k, n)
	require.NoError(t, err)
	return m
}

func TestDraw_Deterministic(t *testing.T) {
	models := []BetaBinomial{mustUpdate(t, 10, 100), mustUpdate(t, 20, 100)}

	m1, err := Draw(models, 5000, 42)
	require.NoError(t, err)
	m2, err := Draw(models, 5000, 42)
	require.NoError(t, err)

	for v := 0; v < m1.Variants(); v++ {
		assert.Equal(t, m1.Column(v), m2.Column(v), "variant %d", v)
	}

	m3, err := Draw(models, 5000, 43)
	require.NoError(t, err)
	assert.NotEqual(t, m1.Column(0), m3.Column(0))
}

func TestDraw_Validation(t *testing.T) {
	_, err := Draw(nil, 100, 1)
	assert.Error(t, err)
	_, err = Draw([]BetaBinomial{DefaultPrior()}, 0, 1)
	assert.Error(t, err)
}

func TestProbabilityBest_SumsToOne(t *testing.T) {
	models := []BetaBinomial{
		mustUpdate(t, 5, 100),
		mustUpdate(t, 10, 100),
		mustUpdate(t, 15, 100),
	}
	m, err := Draw(models, 20000, 7)
	require.NoError(t, err)

	probs := m.ProbabilityBest()
	sum := 0.0
	for _, p := range probs {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestProbabilityBest_DominantArm(t *testing.T) {
	models := []BetaBinomial{mustUpdate(t, 20, 1000), mustUpdate(t, 200, 1000)}
	m, err := Draw(models, 20000, 11)
	require.NoError(t, err)

	probs := m.ProbabilityBest()
	assert.Greater(t, probs[1], 0.999)
}

func TestExpectedLoss_BestVariantHasMinimum(t *testing.T) {
	models := []BetaBinomial{
		mustUpdate(t, 50, 1000),
		mustUpdate(t, 80, 1000),
		mustUpdate(t, 65, 1000),
	}
	m, err := Draw(models, 20000, 3)
	require.NoError(t, err)

	losses := m.ExpectedLoss()
	for _, l := range losses {
		assert.GreaterOrEqual(t, l, 0.0)
		assert.LessOrEqual(t, l, 1.0)
	}
	// Variant 1 has the highest rate, so the lowest regret.
	assert.Less(t, losses[1], losses[0])
	assert.Less(t, losses[1], losses[2])
}

func TestProbabilityGreater_TwoVariants(t *testing.T) {
	models := []BetaBinomial{mustUpdate(t, 50, 1000), mustUpdate(t, 80, 1000)}
	m, err := Draw(models, 20000, 5)
	require.NoError(t, err)

	pB := m.ProbabilityGreater(1, 0)
	assert.Greater(t, pB, 0.95)
	// Complement within MC tolerance (exact ties are measure-zero for Beta).
	assert.InDelta(t, 1.0, pB+m.ProbabilityGreater(0, 1), 1e-3)
}

func TestDiff_MatchesColumns(t *testing.T) {
	models := []BetaBinomial{mustUpdate(t, 10, 100), mustUpdate(t, 30, 100)}
	m, err := Draw(models, 100, 9)
	require.NoError(t, err)

	diff := m.Diff(1, 0)
	for i := range diff {
		assert.InDelta(t, m.Column(1)[i]-m.Column(0)[i], diff[i], 1e-15)
	}
}

func TestHDIFromSamples(t *testing.T) {
	// Uniform grid: the 90% HDI of 0..999/1000 should span ~0.9.
	samples := make([]float64, 1000)
	for i := range samples {
		samples[i] = float64(i) / 1000.0
	}
	iv := HDIFromSamples(samples, 0.9)
	assert.InDelta(t, 0.9, iv.Width(), 0.01)

	// Full mass returns the range.
	iv = HDIFromSamples(samples, 1.0)
	assert.Equal(t, 0.0, iv.Lo)
	assert.InDelta(t, 0.999, iv.Hi, 1e-12)

	// Empty input.
	assert.Equal(t, Interval{}, HDIFromSamples(nil, 0.95))
}

func TestHDI_ConcentratesWithData(t *testing.T) {
	// Doubling n and k at a constant rate must not widen the interval.
	small := mustUpdate(t, 10, 100)
	large := mustUpdate(t, 20, 200)

	mSmall, err := Draw([]BetaBinomial{small}, 20000, 17)
	require.NoError(t, err)
	mLarge, err := Draw([]BetaBinomial{large}, 20000, 17)
	require.NoError(t, err)

	ivSmall := HDIFromSamples(mSmall.Column(0), 0.95)
	ivLarge := HDIFromSamples(mLarge.Column(0), 0.95)
	assert.LessOrEqual(t, ivLarge.Width(), ivSmall.Width())
}

func TestInterval_Predicates(t *testing.T) {
	iv := Interval{Lo: -0.01, Hi: 0.02}
	assert.True(t, iv.Contains(0))
	assert.False(t, iv.Contains(0.03))
	assert.True(t, iv.Within(Interval{Lo: -0.05, Hi: 0.05}))
	assert.False(t, iv.Within(Interval{Lo: 0, Hi: 0.05}))
}
