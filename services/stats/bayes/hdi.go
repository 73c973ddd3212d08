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
	"math"
	"sort"
)

// Interval is a closed [Lo, Hi] interval on the real line.
type Interval struct {
	Lo float64 `json:"lo"`
	Hi float64 `json:"hi"`
}

// Width returns Hi - Lo.
func (iv Interval) Width() float64 { return iv.Hi - iv.Lo }

// Contains reports whether x lies inside the interval.
func (iv Interval) Contains(x float64) bool { return x >= iv.Lo && x <= iv.Hi }

// Within reports whether the interval lies entirely inside other.
func (iv Interval) Within(other Interval) bool {
	return iv.Lo >= other.Lo && iv.Hi <= other.Hi
}

// HDIFromSamples computes the highest-density interval from Monte-Carlo
// samples.
//
// Description:
//
//	Sorted-window method: over the sorted samples, the shortest window
//	containing ceil(mass*n) points is the HDI estimate. For unimodal
//	posteriors this converges to the true highest-density interval.
//
// Inputs:
//   - samples: Draws from the distribution; not modified (a copy is sorted).
//   - mass: Credible mass in (0, 1), e.g. 0.95.
//
// Outputs:
//   - Interval: The narrowest interval holding the requested mass.
func HDIFromSamples(samples []float64, mass float64) Interval {
	n := len(samples)
	if n == 0 {
		return Interval{}
	}
	sorted := make([]float64, n)
	copy(sorted, samples)
	sort.Float64s(sorted)

	window := int(math.Ceil(mass * float64(n)))
	if window >= n {
		return Interval{Lo: sorted[0], Hi: sorted[n-1]}
	}

	bestIdx := 0
	bestWidth := math.Inf(1)
	for i := 0; i+window <= n; i++ {
		w := sorted[i+window-1] - sorted[i]
		if w < bestWidth {
			bestWidth = w
			bestIdx = i
		}
	}
	return Interval{Lo: sorted[bestIdx], Hi: sorted[bestIdx+window-1]}
}
