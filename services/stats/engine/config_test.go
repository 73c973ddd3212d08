// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/vibevariant/services/stats/proxy"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 0.005, cfg.LossThreshold)
	assert.Equal(t, 0.005, cfg.ROPEHalfWidth)
	assert.Equal(t, 0.95, cfg.HDIMass)
	assert.Equal(t, 20000, cfg.MCSamples)
	assert.Equal(t, 30, cfg.MinTotalN)
	assert.Equal(t, 0.10, cfg.ExploreFloor)
	assert.Equal(t, 0.5, cfg.TopTwoBeta)
	assert.True(t, cfg.UseProxy)
	assert.Equal(t, 0.99, cfg.WinsorizeP)
	assert.Equal(t, proxy.ThetaPooled, cfg.CUPEDThetaSource)
	assert.True(t, cfg.Shrinkage)
	assert.Nil(t, cfg.Prior)
	assert.Nil(t, cfg.MCSeed)

	require.NoError(t, cfg.Validate())
}

func TestParseConfig_Overrides(t *testing.T) {
	cfg, err := ParseConfig([]byte("loss_threshold: 0.01\nmc_samples: 5000\n"))
	require.NoError(t, err)

	assert.Equal(t, 0.01, cfg.LossThreshold)
	assert.Equal(t, 5000, cfg.MCSamples)
	// Untouched options keep their platform defaults.
	assert.Equal(t, 0.95, cfg.HDIMass)
}

func TestParseConfig_UnknownKeyIsConfigError(t *testing.T) {
	_, err := ParseConfig([]byte("loss_treshold: 0.01\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestParseConfig_EmptyDocumentIsDefaults(t *testing.T) {
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestConfigValidate_RangeChecks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WinsorizeP = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)

	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "winsorize_p", cerr.Option)
}

func TestConfigValidate_EngagementWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EngagementWeights = &proxy.Weights{}
	assert.ErrorIs(t, cfg.Validate(), ErrConfig)

	cfg.EngagementWeights = &proxy.Weights{ScrollDepth: 1}
	assert.NoError(t, cfg.Validate())
}

func TestResult_ToRecord(t *testing.T) {
	res := analyze(t, twoArm(1000, 50, 1000, 80))

	start := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	rec := res.ToRecord("proj-1", start, start.AddDate(0, 0, 7))

	assert.Equal(t, "exp-test", rec.ExperimentKey)
	assert.Equal(t, "proj-1", rec.ProjectKey)
	assert.Equal(t, 2000, rec.TotalVisitors)
	assert.Equal(t, 0.05, rec.ControlRate)
	assert.InDelta(t, 130.0/2000.0, rec.OverallRate, 1e-12)
	assert.Equal(t, "B", rec.WinningVariant)
	assert.InDelta(t, *res.RawEffectSize, rec.EffectSize, 1e-12)
	assert.Equal(t, 7, rec.DurationDays())
	assert.Len(t, rec.Variants, 2)
}

func TestAnalyzeMany(t *testing.T) {
	snaps := []Snapshot{
		twoArm(100, 5, 100, 9),
		twoArm(1000, 50, 1000, 80),
		twoArm(10, 0, 10, 0),
	}

	results, err := New().AnalyzeMany(context.Background(), snaps, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, res := range results {
		require.NotNil(t, res, "result %d", i)
		assertResultInvariants(t, res)
	}
}

func TestAnalyzeMany_PropagatesErrors(t *testing.T) {
	snaps := []Snapshot{
		twoArm(100, 5, 100, 9),
		twoArm(10, 11, 10, 0), // conversions exceed exposures
	}

	_, err := New().AnalyzeMany(context.Background(), snaps, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrData)
}

func TestAnalyzeMany_RespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := New().AnalyzeMany(ctx, []Snapshot{twoArm(100, 5, 100, 9)}, 1)
	require.Error(t, err)
	assert.Nil(t, results[0])
}
