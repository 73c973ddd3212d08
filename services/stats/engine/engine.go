// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine orchestrates the statistical decision pipeline: prior
// resolution, proxy scoring, posterior construction, Monte-Carlo
// sampling, the ROPE/epsilon decision, bandit allocation, shrinkage, and
// the final recommendation.
//
// An analysis is a pure function of its Snapshot. The engine holds no
// state between calls and never logs; diagnostics travel inside the
// Result. Concurrent analyses of independent experiments are safe.
package engine

import (
	"errors"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/AleutianAI/vibevariant/services/stats/bandits"
	"github.com/AleutianAI/vibevariant/services/stats/bayes"
	"github.com/AleutianAI/vibevariant/services/stats/decisions"
	"github.com/AleutianAI/vibevariant/services/stats/priors"
	"github.com/AleutianAI/vibevariant/services/stats/proxy"
	"github.com/AleutianAI/vibevariant/services/stats/shrinkage"
	"github.com/AleutianAI/vibevariant/services/stats/telemetry"
)

// proxyBlendThreshold: below this many observations on the scarcer side
// of the conversion split, the engagement proxy is blended in.
const proxyBlendThreshold = 5

// proxyBlendCap caps the pseudo-observation weight of the proxy so a
// real conversion signal takes over once it exists.
const proxyBlendCap = 30.0

// challengerSeedMix derives the challenger matrix seed from the primary
// seed (splitmix64 increment; any fixed odd constant works).
const challengerSeedMix = 0x9E3779B97F4A7C15

// Engine runs analyses. Zero-valued Engine is ready to use; the struct
// exists so callers can hang options off it later without an API break.
type Engine struct{}

// New creates an Engine.
func New() *Engine { return &Engine{} }

// Analyze runs the full decision pipeline over one snapshot.
//
// Description:
//
//	Stages run leaves-first: prior resolution and proxy scoring feed the
//	posterior engine; a single pair of draw matrices (primary and
//	challenger) feeds every Monte-Carlo consumer; decision, allocation,
//	and shrinkage read those arrays; the recommender formats the final
//	text. No stage resamples.
//
// Inputs:
//   - snap: The experiment snapshot; treated as read-only.
//
// Outputs:
//   - *Result: The complete analysis.
//   - error: *ConfigError or *DataError; the call produces no partial
//     result on error.
func (e *Engine) Analyze(snap Snapshot) (*Result, error) {
	start := time.Now()

	cfg := DefaultConfig()
	if snap.Config != nil {
		cfg = *snap.Config
	}
	if err := cfg.Validate(); err != nil {
		telemetry.ObserveAnalysisError(errorKind(err))
		return nil, err
	}
	if err := snap.validate(); err != nil {
		telemetry.ObserveAnalysisError(errorKind(err))
		return nil, err
	}

	// --- Prior resolution ---
	var userPrior *bayes.BetaBinomial
	if cfg.Prior != nil {
		p, err := bayes.NewBetaBinomial(cfg.Prior.Alpha, cfg.Prior.Beta)
		if err != nil {
			return nil, newConfigError("prior", *cfg.Prior, err.Error())
		}
		userPrior = &p
	}
	prior, priorSource := priors.Resolve(userPrior, snap.History)

	// --- Proxy scoring ---
	scores := snap.Engagement
	if len(snap.Signals) > 0 {
		scores = proxy.ScoreVariants(snap.Signals, cfg.weights(), cfg.WinsorizeP)
	}
	scores = proxy.CUPEDAdjust(scores, snap.Covariates, cfg.CUPEDThetaSource)

	// --- Posteriors ---
	models := make([]bayes.BetaBinomial, len(snap.Variants))
	for i, key := range snap.Variants {
		n, k := snap.Exposures[key], snap.Conversions[key]
		post, err := prior.Update(k, n)
		if err != nil {
			return nil, newDataError(key, err.Error())
		}
		if cfg.UseProxy && sparseConversions(k, n) && len(scores[key]) > 0 {
			weight := min(float64(n), proxyBlendCap)
			post = post.WithPseudoObservations(proxy.Mean(scores[key]), weight)
		}
		models[i] = post
	}

	// --- Monte-Carlo sampling (the only draw in the pipeline) ---
	seed := uint64(time.Now().UnixNano())
	if cfg.MCSeed != nil {
		seed = *cfg.MCSeed
	}
	primary, err := bayes.Draw(models, cfg.MCSamples, seed)
	if err != nil {
		return nil, newConfigError("mc_samples", cfg.MCSamples, err.Error())
	}
	challenger, err := bayes.Draw(models, cfg.MCSamples, seed^challengerSeedMix)
	if err != nil {
		return nil, newConfigError("mc_samples", cfg.MCSamples, err.Error())
	}

	probBest := primary.ProbabilityBest()
	losses := primary.ExpectedLoss()
	total := snap.totalExposures()

	// --- Decision ---
	conversions := make([]int, len(snap.Variants))
	for i, key := range snap.Variants {
		conversions[i] = snap.Conversions[key]
	}
	outcome := decisions.Classify(decisions.Inputs{
		Keys:           snap.Variants,
		TotalExposures: total,
		MinTotalN:      cfg.MinTotalN,
		LossThreshold:  cfg.LossThreshold,
		ROPEHalfWidth:  cfg.ROPEHalfWidth,
		HDIMass:        cfg.HDIMass,
		ExpectedLoss:   losses,
		Conversions:    conversions,
		Matrix:         primary,
	})

	// --- Allocation ---
	allocation, err := e.allocate(&snap, cfg, primary, challenger, total)
	if err != nil {
		return nil, err
	}

	// --- Effect sizes ---
	rawEffect, shrunkEffect := e.effectSizes(&snap, cfg, models, primary)

	// --- Assembly ---
	res := &Result{
		ExperimentKey:       snap.ExperimentKey,
		TotalVisitors:       total,
		PriorUsed:           priorSource,
		SuggestedAllocation: allocation,
		RawEffectSize:       rawEffect,
		ShrunkEffectSize:    shrunkEffect,
	}

	for i, key := range snap.Variants {
		n, k := snap.Exposures[key], snap.Conversions[key]
		rate := 0.0
		if n > 0 {
			rate = float64(k) / float64(n)
		}
		ci := bayes.HDIFromSamples(primary.Column(i), cfg.HDIMass)
		vr := VariantResult{
			VariantKey:       key,
			Visitors:         n,
			Conversions:      k,
			ConversionRate:   rate,
			PosteriorAlpha:   models[i].Alpha,
			PosteriorBeta:    models[i].Beta,
			PosteriorMean:    models[i].Mean(),
			CredibleInterval: [2]float64{ci.Lo, ci.Hi},
			ProbabilityBest:  probBest[i],
			ExpectedLoss:     losses[i],
		}
		if s := scores[key]; len(s) > 0 {
			mean := proxy.Mean(s)
			vr.EngagementScore = &mean
		}
		res.Variants = append(res.Variants, vr)
	}

	if len(snap.Variants) == 2 {
		p := primary.ProbabilityGreater(1, 0)
		res.ProbabilityBBeatsA = &p
	}

	res.ROPEAnalysis = &ROPEAnalysis{
		ROPE:     [2]float64{outcome.ROPE.Lo, outcome.ROPE.Hi},
		HDI:      [2]float64{outcome.DiffHDI.Lo, outcome.DiffHDI.Hi},
		Decision: outcome.ROPEDecision,
	}

	res.Decision = Decision{
		DecisionStatus:     outcome.Status,
		LeadingVariantLoss: outcome.LeadingLoss,
		EpsilonThreshold:   cfg.LossThreshold,
		ConfidencePct:      outcome.ConfidencePct,
		EstimatedDays:      estimatedDays(outcome.Status, total, cfg.MinTotalN, &snap),
	}
	if outcome.WinningVariant != "" {
		winner := outcome.WinningVariant
		res.Decision.WinningVariant = &winner
	}

	var engagementSummary string
	if cmp := proxy.Compare(scores); len(cmp.Means) >= 2 {
		engagementSummary = cmp.Summary
	}
	res.Recommendation = decisions.Recommend(decisions.RecommendationInput{
		Outcome:           outcome,
		Keys:              snap.Variants,
		TotalVisitors:     total,
		TotalConversions:  snap.totalConversions(),
		MinTotalN:         cfg.MinTotalN,
		HDIMass:           cfg.HDIMass,
		Epsilon:           cfg.LossThreshold,
		ProbBest:          probBest,
		EngagementSummary: engagementSummary,
	})

	telemetry.ObserveAnalysis(string(outcome.Status), time.Since(start), cfg.MCSamples)
	return res, nil
}

// allocate computes the suggested traffic split over active arms. Paused
// arms appear in the map with 0.
func (e *Engine) allocate(snap *Snapshot, cfg Config, primary, challenger *bayes.DrawMatrix, total int) (map[string]float64, error) {
	idx := snap.activeIndices()
	activeKeys := make([]string, len(idx))
	for i, j := range idx {
		activeKeys[i] = snap.Variants[j]
	}

	var alloc map[string]float64
	if total == 0 {
		// No evidence anywhere: the allocation is exactly uniform rather
		// than Thompson noise around uniform.
		alloc = bandits.Uniform(activeKeys)
	} else {
		var err error
		alloc, err = bandits.Allocate(activeKeys, primary.Select(idx), challenger.Select(idx), cfg.TopTwoBeta, cfg.ExploreFloor)
		if err != nil {
			return nil, newDataError("", err.Error())
		}
	}

	for _, key := range snap.Variants {
		if snap.Paused[key] {
			alloc[key] = 0
		}
	}
	return alloc, nil
}

// effectSizes returns the raw and shrunk best-treatment-minus-control
// effects. Shrinkage is diagnostic only; decisions always use the raw
// posterior.
func (e *Engine) effectSizes(snap *Snapshot, cfg Config, models []bayes.BetaBinomial, primary *bayes.DrawMatrix) (*float64, *float64) {
	if len(models) < 2 {
		return nil, nil
	}

	best := 1
	for v := 2; v < len(models); v++ {
		if models[v].Mean() > models[best].Mean() {
			best = v
		}
	}
	raw := models[best].Mean() - models[0].Mean()

	shrunk := raw
	if cfg.Shrinkage && snap.History != nil {
		sigma2 := stat.Variance(primary.Diff(best, 0), nil)
		shrunk, _ = shrinkage.Shrink(raw, sigma2, snap.History.EffectSizes())
	}
	return &raw, &shrunk
}

// estimatedDays projects days until a decision from the project's daily
// visitor rate. Nil without history.
func estimatedDays(status decisions.Status, total, minTotalN int, snap *Snapshot) *int {
	if snap.History == nil {
		return nil
	}
	rate, ok := snap.History.DailyVisitorRate()
	if !ok || rate <= 0 {
		return nil
	}

	days := 0
	switch status {
	case decisions.StatusCollectingData:
		days = ceilDiv(float64(minTotalN-total), rate)
	case decisions.StatusKeepTesting:
		// Horizon heuristic: the days needed to double the current sample,
		// which narrows the difference HDI by roughly a factor of sqrt(2).
		days = ceilDiv(float64(total), rate)
	}
	return &days
}

func ceilDiv(need, rate float64) int {
	if need <= 0 {
		return 0
	}
	d := int(need / rate)
	if float64(d)*rate < need {
		d++
	}
	if d < 1 {
		d = 1
	}
	return d
}

// sparseConversions reports whether the conversion split is too thin for
// the conjugate posterior alone: min(k, n-k) below the blend threshold.
func sparseConversions(k, n int) bool {
	return min(k, n-k) < proxyBlendThreshold
}

// errorKind labels an error for metrics.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrConfig):
		return "config"
	case errors.Is(err, ErrData):
		return "data"
	default:
		return "internal"
	}
}
