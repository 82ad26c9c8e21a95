package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return time.Date(2025, 3, 14, 15, 30, 0, 0, time.UTC)
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ETFSCOPE_DATA_DIR", dir)

	cfg, err := load(fixedNow)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "reports"), cfg.OutputDir)
	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, []string{"SPY", "QQQ", "VTI", "AGG", "EFA"}, cfg.Analysis.Tickers)
	assert.Equal(t, time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC), cfg.Analysis.Start)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), cfg.Analysis.End)
	assert.Equal(t, 0.02, cfg.Analysis.RiskFreeRate)
	assert.Equal(t, 3000, cfg.Analysis.Samples)
	assert.Equal(t, 60, cfg.Analysis.RollingWindow)
	assert.Equal(t, 200*time.Millisecond, cfg.Analysis.Pause)
	assert.Equal(t, "uniform", cfg.Analysis.WeightsMethod)
	assert.Equal(t, SourceYahoo, cfg.Source.Name)
	assert.Equal(t, CacheFile, cfg.Cache.Backend)
	assert.Equal(t, dir, cfg.Cache.Dir)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("ETFSCOPE_DATA_DIR", t.TempDir())
	t.Setenv("ETFSCOPE_TICKERS", " spy, agg ,,iwm")
	t.Setenv("ETFSCOPE_START", "2023-01-03")
	t.Setenv("ETFSCOPE_END", "2023-12-29")
	t.Setenv("ETFSCOPE_RISK_FREE", "0.045")
	t.Setenv("ETFSCOPE_SAMPLES", "10000")
	t.Setenv("ETFSCOPE_SEED", "99")
	t.Setenv("ETFSCOPE_WEIGHTS_METHOD", "dirichlet")
	t.Setenv("ETFSCOPE_PAUSE", "1s")
	t.Setenv("ETFSCOPE_CACHE", "SQLite")
	t.Setenv("GO_PORT", "9090")

	cfg, err := load(fixedNow)
	require.NoError(t, err)

	assert.Equal(t, []string{"SPY", "AGG", "IWM"}, cfg.Analysis.Tickers)
	assert.Equal(t, time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC), cfg.Analysis.Start)
	assert.Equal(t, time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC), cfg.Analysis.End)
	assert.Equal(t, 0.045, cfg.Analysis.RiskFreeRate)
	assert.Equal(t, 10000, cfg.Analysis.Samples)
	assert.Equal(t, uint64(99), cfg.Analysis.Seed)
	assert.Equal(t, "dirichlet", cfg.Analysis.WeightsMethod)
	assert.Equal(t, time.Second, cfg.Analysis.Pause)
	assert.Equal(t, CacheSQLite, cfg.Cache.Backend)
	assert.Equal(t, 9090, cfg.Port)
}

func TestLoad_InvalidDate(t *testing.T) {
	t.Setenv("ETFSCOPE_DATA_DIR", t.TempDir())
	t.Setenv("ETFSCOPE_START", "01/08/2024")

	_, err := load(fixedNow)
	assert.ErrorContains(t, err, "ETFSCOPE_START")
}

func TestLoad_Profile(t *testing.T) {
	dir := t.TempDir()
	profile := filepath.Join(dir, "profile.yaml")
	require.NoError(t, os.WriteFile(profile, []byte(`
tickers: [qqq, "${EXTRA_TICKER}"]
start: 2024-01-02
end: "2024-06-28"
risk_free_rate: 0.04
samples: 250
weights_method: dirichlet
rolling_window: 20
`), 0644))

	t.Setenv("ETFSCOPE_DATA_DIR", dir)
	t.Setenv("ETFSCOPE_PROFILE", profile)
	t.Setenv("ETFSCOPE_SAMPLES", "10")
	t.Setenv("EXTRA_TICKER", "tlt")

	cfg, err := load(fixedNow)
	require.NoError(t, err)

	assert.Equal(t, []string{"QQQ", "TLT"}, cfg.Analysis.Tickers)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), cfg.Analysis.Start)
	assert.Equal(t, time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC), cfg.Analysis.End)
	assert.Equal(t, 0.04, cfg.Analysis.RiskFreeRate)
	assert.Equal(t, 250, cfg.Analysis.Samples)
	assert.Equal(t, "dirichlet", cfg.Analysis.WeightsMethod)
	assert.Equal(t, 20, cfg.Analysis.RollingWindow)
}

func TestLoadProfile_Missing(t *testing.T) {
	_, err := LoadProfile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		Port: 8001,
		Analysis: AnalysisConfig{
			Tickers:       []string{"SPY"},
			Start:         time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC),
			End:           time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
			Samples:       100,
			RollingWindow: 60,
		},
		Source: SourceConfig{Name: SourceYahoo},
		Cache:  CacheConfig{Backend: CacheFile},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"no tickers", func(c *Config) { c.Analysis.Tickers = nil }, true},
		{"inverted dates", func(c *Config) { c.Analysis.End = c.Analysis.Start.AddDate(0, 0, -1) }, true},
		{"same day", func(c *Config) { c.Analysis.End = c.Analysis.Start }, false},
		{"negative samples", func(c *Config) { c.Analysis.Samples = -1 }, true},
		{"zero samples", func(c *Config) { c.Analysis.Samples = 0 }, false},
		{"negative workers", func(c *Config) { c.Analysis.Workers = -2 }, true},
		{"short window", func(c *Config) { c.Analysis.RollingWindow = 1 }, true},
		{"bad method", func(c *Config) { c.Analysis.WeightsMethod = "sobol" }, true},
		{"unknown source", func(c *Config) { c.Source.Name = "stooq" }, true},
		{"alphavantage without key", func(c *Config) { c.Source.Name = SourceAlphaVantage }, true},
		{"alphavantage with key", func(c *Config) {
			c.Source = SourceConfig{Name: SourceAlphaVantage, AlphaVantageAPIKey: "demo"}
		}, false},
		{"unknown cache", func(c *Config) { c.Cache.Backend = "redis" }, true},
		{"s3 without bucket", func(c *Config) { c.Cache.Backend = CacheS3 }, true},
		{"s3 with bucket", func(c *Config) { c.Cache = CacheConfig{Backend: CacheS3, S3: S3Config{Bucket: "prices"}} }, false},
		{"bad port", func(c *Config) { c.Port = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
