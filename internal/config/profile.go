package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aristath/etfscope/internal/domain"
)

// Profile is a YAML analysis preset. Unset fields keep the environment values.
//
//	tickers: [SPY, QQQ, AGG]
//	start: 2024-08-01
//	risk_free_rate: 0.02
//	samples: 5000
//	weights_method: dirichlet
type Profile struct {
	Tickers       []string `yaml:"tickers"`
	Start         string   `yaml:"start"`
	End           string   `yaml:"end"`
	RiskFreeRate  *float64 `yaml:"risk_free_rate"`
	Samples       *int     `yaml:"samples"`
	Seed          *uint64  `yaml:"seed"`
	Workers       *int     `yaml:"workers"`
	WeightsMethod string   `yaml:"weights_method"`
	RollingWindow *int     `yaml:"rolling_window"`
	ForceRefresh  *bool    `yaml:"force_refresh"`
}

// LoadProfile reads a YAML profile and expands ${VAR} references.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var p Profile
	if err := yaml.Unmarshal([]byte(expanded), &p); err != nil {
		return nil, fmt.Errorf("parse profile yaml: %w", err)
	}
	return &p, nil
}

// Apply overlays the profile onto analysis settings.
func (p *Profile) Apply(a *AnalysisConfig) error {
	if len(p.Tickers) > 0 {
		a.Tickers = SplitTickers(strings.Join(p.Tickers, ","))
	}
	if p.Start != "" {
		d, err := domain.ParseDay(p.Start)
		if err != nil {
			return fmt.Errorf("invalid start %q: %w", p.Start, err)
		}
		a.Start = d
	}
	if p.End != "" {
		d, err := domain.ParseDay(p.End)
		if err != nil {
			return fmt.Errorf("invalid end %q: %w", p.End, err)
		}
		a.End = d
	}
	if p.RiskFreeRate != nil {
		a.RiskFreeRate = *p.RiskFreeRate
	}
	if p.Samples != nil {
		a.Samples = *p.Samples
	}
	if p.Seed != nil {
		a.Seed = *p.Seed
	}
	if p.Workers != nil {
		a.Workers = *p.Workers
	}
	if p.WeightsMethod != "" {
		a.WeightsMethod = p.WeightsMethod
	}
	if p.RollingWindow != nil {
		a.RollingWindow = *p.RollingWindow
	}
	if p.ForceRefresh != nil {
		a.ForceRefresh = *p.ForceRefresh
	}
	return nil
}
