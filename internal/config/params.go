// Package config loads pipeline tuning parameters from JSON files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sunjingtao1119/GISMO/internal/analysis"
	"github.com/sunjingtao1119/GISMO/internal/linkage"
)

// Tuning is the JSON schema for pipeline parameters. All fields are optional
// pointers so a partial config file overrides only what it names; omitted
// fields keep their defaults.
type Tuning struct {
	// Correlator params
	MaxLagSeconds *float64 `json:"max_lag_seconds,omitempty"`
	FFTMinLength  *int     `json:"fft_min_length,omitempty"`

	// Clustering params
	LinkageRule  *string  `json:"linkage_rule,omitempty"`
	CutThreshold *float64 `json:"cut_threshold,omitempty"`

	// Execution params
	Workers *int `json:"workers,omitempty"`
}

// Load reads a Tuning from a JSON file. The file must have a .json extension
// and is capped at 1MB for safety.
func Load(path string) (*Tuning, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var t Tuning
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks field ranges and names.
func (t *Tuning) Validate() error {
	if t.MaxLagSeconds != nil && *t.MaxLagSeconds < 0 {
		return fmt.Errorf("max_lag_seconds must be >= 0, got %g", *t.MaxLagSeconds)
	}
	if t.FFTMinLength != nil && *t.FFTMinLength < 0 {
		return fmt.Errorf("fft_min_length must be >= 0, got %d", *t.FFTMinLength)
	}
	if t.LinkageRule != nil {
		if _, err := linkage.ParseRule(*t.LinkageRule); err != nil {
			return err
		}
	}
	if t.CutThreshold != nil && *t.CutThreshold < 0 {
		return fmt.Errorf("cut_threshold must be >= 0, got %g", *t.CutThreshold)
	}
	if t.Workers != nil && *t.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", *t.Workers)
	}
	return nil
}

// Apply overlays the tuning onto a parameter set, returning the result.
func (t *Tuning) Apply(p analysis.Params) (analysis.Params, error) {
	if t.MaxLagSeconds != nil {
		p.MaxLagSeconds = *t.MaxLagSeconds
	}
	if t.FFTMinLength != nil {
		p.FFTMinLength = *t.FFTMinLength
	}
	if t.LinkageRule != nil {
		rule, err := linkage.ParseRule(*t.LinkageRule)
		if err != nil {
			return p, err
		}
		p.LinkageRule = rule
	}
	if t.CutThreshold != nil {
		p.CutThreshold = *t.CutThreshold
	}
	if t.Workers != nil {
		p.Workers = *t.Workers
	}
	return p, nil
}
