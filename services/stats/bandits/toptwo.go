// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bandits produces the suggested traffic allocation for the next
// period via top-two Thompson Sampling over posterior draw matrices.
//
// Plain Thompson Sampling starves near-winners of the evidence needed to
// separate them; the top-two variant keeps the strongest challenger in the
// game, and an exploration floor guarantees every active arm keeps
// receiving traffic.
package bandits

import (
	"fmt"

	"github.com/AleutianAI/vibevariant/services/stats/bayes"
)

// Allocate computes the traffic allocation from a primary and a challenger
// draw matrix.
//
// Description:
//
//	For each trial row, the primary argmax receives a win. On the fraction
//	topTwoBeta of trials, the challenger matrix is consulted; when its
//	argmax differs from the primary's, the trial's mass is split evenly
//	between leader and challenger. Tallies are normalized and an
//	exploration floor of exploreFloor/V is enforced.
//
//	Rows of a draw matrix are exchangeable, so the challenger trials are
//	taken as the leading topTwoBeta fraction rather than by coin flip;
//	the allocation is identical in distribution and fully deterministic
//	for a fixed draw.
//
// Inputs:
//   - keys: Active variant keys, in matrix column order.
//   - primary: The shared analysis draw matrix.
//   - challenger: An independent matrix of identical shape, drawn once by
//     the sampler stage alongside the primary.
//   - topTwoBeta: Fraction of trials consulting the challenger, in [0, 1].
//   - exploreFloor: Minimum total allocation reserved per arm, in [0, 1).
//
// Outputs:
//   - map[string]float64: Allocation per key; sums to 1 within 1e-9, every
//     entry >= exploreFloor/len(keys).
//   - error: Non-nil on shape mismatches.
func Allocate(keys []string, primary, challenger *bayes.DrawMatrix, topTwoBeta, exploreFloor float64) (map[string]float64, error) {
	v := len(keys)
	if v == 0 {
		return nil, fmt.Errorf("allocate requires at least one active variant")
	}
	if primary == nil || challenger == nil {
		return nil, fmt.Errorf("allocate requires primary and challenger matrices")
	}
	if primary.Variants() != v || challenger.Variants() != v {
		return nil, fmt.Errorf("matrix variant count (%d, %d) does not match keys (%d)",
			primary.Variants(), challenger.Variants(), v)
	}
	if primary.Samples() != challenger.Samples() {
		return nil, fmt.Errorf("primary (%d) and challenger (%d) sample counts differ",
			primary.Samples(), challenger.Samples())
	}

	if v == 1 {
		return map[string]float64{keys[0]: 1.0}, nil
	}

	s := primary.Samples()
	cutoff := int(topTwoBeta * float64(s))

	tally := make([]float64, v)
	for i := 0; i < s; i++ {
		leader := argmaxRow(primary, i)
		if i < cutoff {
			ch := argmaxRow(challenger, i)
			if ch != leader {
				tally[leader] += 0.5
				tally[ch] += 0.5
				continue
			}
		}
		tally[leader]++
	}

	alloc := make([]float64, v)
	for j := range tally {
		alloc[j] = tally[j] / float64(s)
	}
	applyFloor(alloc, exploreFloor)

	out := make(map[string]float64, v)
	for j, key := range keys {
		out[key] = alloc[j]
	}
	return out, nil
}

// Uniform returns the equal split over the given keys, used when no arm
// has any evidence yet.
func Uniform(keys []string) map[string]float64 {
	out := make(map[string]float64, len(keys))
	for _, key := range keys {
		out[key] = 1.0 / float64(len(keys))
	}
	return out
}

// argmaxRow returns the column with the highest value in row i, earliest
// column winning ties.
func argmaxRow(m *bayes.DrawMatrix, i int) int {
	best := 0
	bestVal := m.Column(0)[i]
	for v := 1; v < m.Variants(); v++ {
		if m.Column(v)[i] > bestVal {
			best = v
			bestVal = m.Column(v)[i]
		}
	}
	return best
}

// applyFloor raises every entry to at least exploreFloor/len(alloc),
// paying for the lift out of the arms above the floor so the result still
// sums to 1.
func applyFloor(alloc []float64, exploreFloor float64) {
	v := len(alloc)
	floor := exploreFloor / float64(v)
	if floor <= 0 {
		return
	}

	var deficit, excess float64
	for _, a := range alloc {
		if a < floor {
			deficit += floor - a
		} else {
			excess += a - floor
		}
	}
	if deficit == 0 {
		return
	}
	if excess <= 0 {
		// Everything at or below the floor: fall back to uniform.
		for j := range alloc {
			alloc[j] = 1.0 / float64(v)
		}
		return
	}

	scale := 1 - deficit/excess
	for j, a := range alloc {
		if a < floor {
			alloc[j] = floor
		} else {
			alloc[j] = floor + (a-floor)*scale
		}
	}
}
