package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sunjingtao1119/GISMO/internal/analysis"
	"github.com/sunjingtao1119/GISMO/internal/linkage"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_PartialOverride(t *testing.T) {
	path := writeConfig(t, "tuning.json",
		`{"linkage_rule": "complete", "cut_threshold": 0.35}`)

	tuning, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	params, err := tuning.Apply(analysis.DefaultParams())
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if params.LinkageRule != linkage.RuleComplete {
		t.Errorf("LinkageRule = %v, want complete", params.LinkageRule)
	}
	if params.CutThreshold != 0.35 {
		t.Errorf("CutThreshold = %g, want 0.35", params.CutThreshold)
	}
	// Omitted fields keep their defaults.
	defaults := analysis.DefaultParams()
	if params.MaxLagSeconds != defaults.MaxLagSeconds {
		t.Errorf("MaxLagSeconds = %g, want default %g", params.MaxLagSeconds, defaults.MaxLagSeconds)
	}
	if params.Workers != defaults.Workers {
		t.Errorf("Workers = %d, want default %d", params.Workers, defaults.Workers)
	}
}

func TestLoad_AllFields(t *testing.T) {
	path := writeConfig(t, "tuning.json", `{
		"max_lag_seconds": 1.5,
		"fft_min_length": 1024,
		"linkage_rule": "single",
		"cut_threshold": 0.1,
		"workers": 8
	}`)

	tuning, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	params, err := tuning.Apply(analysis.DefaultParams())
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if params.MaxLagSeconds != 1.5 || params.FFTMinLength != 1024 ||
		params.LinkageRule != linkage.RuleSingle ||
		params.CutThreshold != 0.1 || params.Workers != 8 {
		t.Errorf("unexpected params: %+v", params)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"bad extension", "tuning.yaml", `{}`},
		{"malformed json", "tuning.json", `{`},
		{"unknown rule", "tuning.json", `{"linkage_rule": "ward"}`},
		{"negative max lag", "tuning.json", `{"max_lag_seconds": -1}`},
		{"negative threshold", "tuning.json", `{"cut_threshold": -0.5}`},
		{"negative workers", "tuning.json", `{"workers": -2}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.content)
			if _, err := Load(path); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
