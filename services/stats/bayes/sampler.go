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
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// DrawMatrix holds S independent posterior samples for each of V variants.
//
// Description:
//
//	Every Monte-Carlo-derived quantity in a single analysis (probability of
//	being best, expected loss, pairwise difference HDIs, Thompson tallies)
//	is computed from the same matrix. Stages never redraw; the engine draws
//	once and hands out read-only views.
//
// Thread Safety: Immutable after Draw; safe for concurrent reads.
type DrawMatrix struct {
	samples int
	cols    [][]float64
}

// Draw samples a DrawMatrix from the given posteriors.
//
// Inputs:
//   - models: One posterior per variant, in variant order.
//   - samples: Draws per variant (S).
//   - seed: RNG seed. The same seed and models reproduce the matrix exactly.
//
// Outputs:
//   - *DrawMatrix: S x len(models) matrix of rates in [0, 1].
//   - error: Non-nil if models is empty or samples < 1.
func Draw(models []BetaBinomial, samples int, seed uint64) (*DrawMatrix, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("draw requires at least one model")
	}
	if samples < 1 {
		return nil, fmt.Errorf("samples must be >= 1, got %d", samples)
	}

	// A single source shared across variants: the column order is part of
	// the deterministic contract.
	src := rand.NewSource(seed)
	cols := make([][]float64, len(models))
	for v, m := range models {
		dist := distuv.Beta{Alpha: m.Alpha, Beta: m.Beta, Src: src}
		col := make([]float64, samples)
		for i := range col {
			col[i] = dist.Rand()
		}
		cols[v] = col
	}
	return &DrawMatrix{samples: samples, cols: cols}, nil
}

// Samples returns S, the number of draws per variant.
func (m *DrawMatrix) Samples() int { return m.samples }

// Variants returns V, the number of variant columns.
func (m *DrawMatrix) Variants() int { return len(m.cols) }

// Column returns the sample column for variant v. The returned slice is
// shared; callers must not modify it.
func (m *DrawMatrix) Column(v int) []float64 { return m.cols[v] }

// ProbabilityBest returns P(variant v has the highest rate) for each v.
//
// Description:
//
//	Fraction of rows where column v attains the row maximum. Ties award the
//	earliest variant in snapshot order so results are deterministic.
//	The returned values sum to 1.
func (m *DrawMatrix) ProbabilityBest() []float64 {
	wins := make([]int, len(m.cols))
	for i := 0; i < m.samples; i++ {
		best := 0
		bestVal := m.cols[0][i]
		for v := 1; v < len(m.cols); v++ {
			if m.cols[v][i] > bestVal {
				best = v
				bestVal = m.cols[v][i]
			}
		}
		wins[best]++
	}
	probs := make([]float64, len(m.cols))
	for v, w := range wins {
		probs[v] = float64(w) / float64(m.samples)
	}
	return probs
}

// ExpectedLoss returns E[max_j(theta_j) - theta_v] for each variant v.
//
// Description:
//
//	The expected regret, in conversion-rate units, of shipping variant v
//	instead of the unknown best. Always in [0, 1]; zero only when v wins
//	every draw.
func (m *DrawMatrix) ExpectedLoss() []float64 {
	sums := make([]float64, len(m.cols))
	for i := 0; i < m.samples; i++ {
		rowMax := m.cols[0][i]
		for v := 1; v < len(m.cols); v++ {
			if m.cols[v][i] > rowMax {
				rowMax = m.cols[v][i]
			}
		}
		for v := range m.cols {
			sums[v] += rowMax - m.cols[v][i]
		}
	}
	losses := make([]float64, len(m.cols))
	for v, s := range sums {
		losses[v] = s / float64(m.samples)
	}
	return losses
}

// Diff returns the per-row difference column a - column b.
//
// Used for the ROPE analysis of the top-two candidates. The result is a
// fresh slice; the matrix itself is never mutated.
func (m *DrawMatrix) Diff(a, b int) []float64 {
	out := make([]float64, m.samples)
	ca, cb := m.cols[a], m.cols[b]
	for i := range out {
		out[i] = ca[i] - cb[i]
	}
	return out
}

// Select returns a view over a subset of columns, in the given order.
//
// The underlying sample slices are shared, not copied: selecting the
// active arms for the bandit stage does not redraw or duplicate the
// matrix.
func (m *DrawMatrix) Select(columns []int) *DrawMatrix {
	cols := make([][]float64, len(columns))
	for i, c := range columns {
		cols[i] = m.cols[c]
	}
	return &DrawMatrix{samples: m.samples, cols: cols}
}

// ProbabilityGreater returns the fraction of rows where column a exceeds
// column b. For a two-variant experiment, ProbabilityGreater(1, 0) is
// P(B beats A).
func (m *DrawMatrix) ProbabilityGreater(a, b int) float64 {
	count := 0
	ca, cb := m.cols[a], m.cols[b]
	for i := 0; i < m.samples; i++ {
		if ca[i] > cb[i] {
			count++
		}
	}
	return float64(count) / float64(m.samples)
}
