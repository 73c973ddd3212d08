// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package calibrate fits engagement-proxy weights against observed
// conversions from completed experiments.
//
// The fit is ordinary least squares of the four saturated engagement
// features on the binary conversion outcome, projected onto the
// non-negative orthant and normalized to sum to one. Calibration is pure
// and idempotent; callers persist the resulting weights and hand them back
// to future analyses.
package calibrate

import (
	"errors"
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/vibevariant/services/stats/proxy"
)

// MinObservations is the minimum number of joined visitor rows before a
// fit is attempted. Below it, callers keep their current weights.
const MinObservations = 10

// ridgeEpsilon stabilizes the normal equations when features are
// collinear (every engaged visitor also clicked, say).
const ridgeEpsilon = 1e-6

// numFeatures is scroll depth, active time, clicks, form engagement.
const numFeatures = 4

var (
	// ErrInsufficientHistory means fewer than MinObservations rows.
	ErrInsufficientHistory = errors.New("not enough observations to calibrate weights")

	// ErrDegenerateFit means the projected solution had no positive mass.
	ErrDegenerateFit = errors.New("calibration produced no positive weights")
)

// Observation joins one visitor's engagement signals with whether that
// visitor converted.
type Observation struct {
	Signals   proxy.Signals `json:"signals"`
	Converted bool          `json:"converted"`
}

// Calibrator fits engagement weights from historical observations.
//
// Thread Safety: Safe for concurrent use; Fit is pure.
type Calibrator struct {
	log *slog.Logger
}

// New creates a Calibrator. A nil logger disables logging.
func New(log *slog.Logger) *Calibrator {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Calibrator{log: log}
}

// Fit computes calibrated engagement weights.
//
// Description:
//
//	Solves (X'X + eps*I) beta = X'y, clips negative coefficients to zero,
//	and normalizes the remainder to sum to one. Re-running Fit on the
//	same observations reproduces the same weights exactly.
//
// Inputs:
//   - obs: Joined visitor rows from completed experiments.
//
// Outputs:
//   - proxy.Weights: Normalized non-negative weights.
//   - error: ErrInsufficientHistory, ErrDegenerateFit, or a solver error.
func (c *Calibrator) Fit(obs []Observation) (proxy.Weights, error) {
	if len(obs) < MinObservations {
		return proxy.Weights{}, fmt.Errorf("%w: have %d, need %d", ErrInsufficientHistory, len(obs), MinObservations)
	}

	x := mat.NewDense(len(obs), numFeatures, nil)
	y := mat.NewVecDense(len(obs), nil)
	for i, o := range obs {
		x.SetRow(i, featureRow(o.Signals))
		if o.Converted {
			y.SetVec(i, 1)
		}
	}

	// Normal equations with a ridge epsilon for numerical stability.
	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	for j := 0; j < numFeatures; j++ {
		xtx.Set(j, j, xtx.At(j, j)+ridgeEpsilon)
	}
	var xty mat.VecDense
	xty.MulVec(x.T(), y)

	var beta mat.VecDense
	if err := beta.SolveVec(&xtx, &xty); err != nil {
		return proxy.Weights{}, fmt.Errorf("solving normal equations: %w", err)
	}

	// Project to the non-negative orthant: negative engagement weights
	// have no behavioral interpretation.
	coeffs := make([]float64, numFeatures)
	var sum float64
	for j := range coeffs {
		v := beta.AtVec(j)
		if v < 0 {
			v = 0
		}
		coeffs[j] = v
		sum += v
	}
	if sum <= 0 {
		return proxy.Weights{}, ErrDegenerateFit
	}

	w := proxy.Weights{
		ScrollDepth: coeffs[0] / sum,
		ActiveTime:  coeffs[1] / sum,
		Clicks:      coeffs[2] / sum,
		Form:        coeffs[3] / sum,
	}
	c.log.Info("calibrated engagement weights",
		"observations", len(obs),
		"scroll_depth", w.ScrollDepth,
		"active_time", w.ActiveTime,
		"clicks", w.Clicks,
		"form", w.Form,
	)
	return w, nil
}

// featureRow saturates signals the same way scoring does, so calibrated
// weights and live scores share a feature space.
func featureRow(s proxy.Signals) []float64 {
	form := 0.0
	if s.FormEngaged {
		form = 1.0
	}
	return []float64{
		clip01(s.ScrollDepth / 100.0),
		clip01(s.ActiveTimeMS / 60000.0),
		clip01(float64(s.Clicks) / 10.0),
		form,
	}
}

func clip01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
