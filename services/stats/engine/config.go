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
	"bytes"
	_ "embed"
	"fmt"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/vibevariant/services/stats/bayes"
	"github.com/AleutianAI/vibevariant/services/stats/proxy"
)

// =============================================================================
// Hard ceilings
// =============================================================================

const (
	// MaxMCSamples bounds the Monte-Carlo draw count per variant.
	MaxMCSamples = 200_000

	// MaxVariants bounds the number of arms per experiment.
	MaxVariants = 64

	// MaxConfigFileSize bounds caller-supplied YAML overrides.
	MaxConfigFileSize = 64 * 1024
)

// =============================================================================
// Embedded platform defaults
// =============================================================================

//go:embed defaults.yaml
var defaultConfigYAML []byte

// =============================================================================
// Config
// =============================================================================

// PriorSpec is an explicit Beta prior in config. When present it applies
// to every arm and overrides the empirical-Bayes and platform tiers.
type PriorSpec struct {
	Alpha float64 `json:"alpha" yaml:"alpha"`
	Beta  float64 `json:"beta" yaml:"beta"`
}

// Config is the fixed option record recognized by the engine. Defaults
// come from the engine (DefaultConfig), never from the caller; unknown
// YAML keys are a ConfigError.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after
// first use.
type Config struct {
	// Prior is the explicit Beta prior, or nil for the fallback tiers.
	Prior *PriorSpec `json:"prior,omitempty" yaml:"prior,omitempty"`

	// LossThreshold (epsilon) is the expected-loss ship threshold in
	// conversion-rate units.
	LossThreshold float64 `json:"loss_threshold" yaml:"loss_threshold" validate:"gte=0,lte=1"`

	// ROPEHalfWidth is the practical-equivalence margin around zero.
	ROPEHalfWidth float64 `json:"rope_half_width" yaml:"rope_half_width" validate:"gte=0,lte=1"`

	// HDIMass is the credible-interval mass, exclusive (0, 1).
	HDIMass float64 `json:"hdi_mass" yaml:"hdi_mass" validate:"gt=0,lt=1"`

	// MCSamples is the Monte-Carlo draw count per variant.
	MCSamples int `json:"mc_samples" yaml:"mc_samples" validate:"gte=1"`

	// MCSeed makes sampling deterministic when set.
	MCSeed *uint64 `json:"mc_seed,omitempty" yaml:"mc_seed,omitempty"`

	// MinTotalN forces collecting_data below this total exposure.
	MinTotalN int `json:"min_total_n" yaml:"min_total_n" validate:"gte=0"`

	// ExploreFloor is the minimum total allocation reserved per arm.
	ExploreFloor float64 `json:"explore_floor" yaml:"explore_floor" validate:"gte=0,lt=1"`

	// TopTwoBeta is the challenger probability in top-two Thompson
	// Sampling.
	TopTwoBeta float64 `json:"top_two_beta" yaml:"top_two_beta" validate:"gte=0,lte=1"`

	// UseProxy blends the engagement proxy into sparse posteriors.
	UseProxy bool `json:"use_proxy" yaml:"use_proxy"`

	// WinsorizeP is the pooled upper quantile for proxy winsorization.
	WinsorizeP float64 `json:"winsorize_p" yaml:"winsorize_p" validate:"gt=0,lte=1"`

	// CUPEDThetaSource selects pooled or per-variant CUPED coefficients.
	CUPEDThetaSource proxy.ThetaSource `json:"cuped_theta_source" yaml:"cuped_theta_source"`

	// Shrinkage enables James-Stein correction of reported effect sizes.
	Shrinkage bool `json:"shrinkage" yaml:"shrinkage"`

	// EngagementWeights overrides the default proxy weights, typically
	// with a calibrated set. Nil selects proxy.DefaultWeights.
	EngagementWeights *proxy.Weights `json:"engagement_weights,omitempty" yaml:"engagement_weights,omitempty"`
}

// configValidate is the shared validator instance for Config structs.
var configValidate = validator.New()

// DefaultConfig returns the platform defaults from the embedded YAML.
func DefaultConfig() Config {
	cfg, err := ParseConfig(defaultConfigYAML)
	if err != nil {
		// The embedded defaults are part of the binary; failing to parse
		// them is a build defect, not a runtime condition.
		panic(fmt.Sprintf("embedded defaults.yaml: %v", err))
	}
	return cfg
}

// ParseConfig decodes a YAML config on top of the platform defaults.
//
// Description:
//
//	Starts from the embedded defaults and applies the document's keys.
//	Unknown keys and type mismatches are ConfigErrors, matching the
//	fixed-record contract.
//
// Inputs:
//   - data: YAML document, at most MaxConfigFileSize bytes.
//
// Outputs:
//   - Config: Decoded config; call Validate before use.
//   - error: *ConfigError on malformed input.
func ParseConfig(data []byte) (Config, error) {
	if len(data) > MaxConfigFileSize {
		return Config{}, newConfigError("config", len(data), fmt.Sprintf("exceeds %d bytes", MaxConfigFileSize))
	}

	// Two-pass decode: platform defaults first, then the override
	// document on top.
	var cfg Config
	if err := decodeStrict(defaultConfigYAML, &cfg); err != nil {
		return Config{}, err
	}
	if len(bytes.TrimSpace(data)) > 0 && !bytes.Equal(data, defaultConfigYAML) {
		if err := decodeStrict(data, &cfg); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

func decodeStrict(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return newConfigError("config", "<yaml>", err.Error())
	}
	return nil
}

// Validate checks every option against its documented range.
//
// Outputs:
//   - error: *ConfigError naming the first offending option, or nil.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok && len(verrs) > 0 {
			f := verrs[0]
			return newConfigError(wireName(f.StructField()), f.Value(), fmt.Sprintf("fails constraint %q", f.Tag()))
		}
		return newConfigError("config", nil, err.Error())
	}

	if c.MCSamples > MaxMCSamples {
		return newConfigError("mc_samples", c.MCSamples, fmt.Sprintf("exceeds hard ceiling %d", MaxMCSamples))
	}
	if c.Prior != nil {
		if _, err := bayes.NewBetaBinomial(c.Prior.Alpha, c.Prior.Beta); err != nil {
			return newConfigError("prior", *c.Prior, "alpha and beta must be positive")
		}
	}
	switch c.CUPEDThetaSource {
	case proxy.ThetaPooled, proxy.ThetaPerVariant:
	default:
		return newConfigError("cuped_theta_source", c.CUPEDThetaSource, `must be "pooled" or "per_variant"`)
	}
	if c.EngagementWeights != nil {
		if _, err := c.EngagementWeights.Normalized(); err != nil {
			return newConfigError("engagement_weights", *c.EngagementWeights, "weights must have positive sum")
		}
	}
	return nil
}

// weights returns the engagement weights to score with.
func (c Config) weights() proxy.Weights {
	if c.EngagementWeights != nil {
		return *c.EngagementWeights
	}
	return proxy.DefaultWeights()
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	v, ok := err.(validator.ValidationErrors)
	if ok {
		*target = v
	}
	return ok
}

// wireName maps struct field names to their wire (yaml/json) names for
// error messages.
func wireName(field string) string {
	names := map[string]string{
		"LossThreshold":    "loss_threshold",
		"ROPEHalfWidth":    "rope_half_width",
		"HDIMass":          "hdi_mass",
		"MCSamples":        "mc_samples",
		"MinTotalN":        "min_total_n",
		"ExploreFloor":     "explore_floor",
		"TopTwoBeta":       "top_two_beta",
		"WinsorizeP":       "winsorize_p",
		"CUPEDThetaSource": "cuped_theta_source",
	}
	if n, ok := names[field]; ok {
		return n
	}
	return field
}
