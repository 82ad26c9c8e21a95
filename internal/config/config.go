// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aristath/etfscope/internal/domain"
	"github.com/aristath/etfscope/internal/modules/simulation"
)

// Price sources and cache backends.
const (
	SourceYahoo        = "yahoo"
	SourceAlphaVantage = "alphavantage"

	CacheFile   = "file"
	CacheSQLite = "sqlite"
	CacheS3     = "s3"
)

// DefaultTickers is the ETF universe analyzed when none is configured.
var DefaultTickers = []string{"SPY", "QQQ", "VTI", "AGG", "EFA"}

// DefaultStart is the first day of the default analysis window.
const DefaultStart = "2024-08-01"

// Config holds application configuration
type Config struct {
	DataDir         string // Base directory for cache and reports (always absolute)
	OutputDir       string
	LogLevel        string
	Port            int
	DevMode         bool
	RefreshSchedule string // cron expression with seconds field
	Analysis        AnalysisConfig
	Source          SourceConfig
	Cache           CacheConfig
}

// AnalysisConfig holds the defaults for an analysis run
type AnalysisConfig struct {
	Tickers       []string
	Start         time.Time
	End           time.Time
	RiskFreeRate  float64
	Samples       int
	Seed          uint64
	Workers       int
	WeightsMethod string
	RollingWindow int
	ForceRefresh  bool
	Pause         time.Duration // delay after each fresh download
}

// SourceConfig selects the price provider
type SourceConfig struct {
	Name               string
	AlphaVantageAPIKey string
}

// CacheConfig selects and configures the price cache backend
type CacheConfig struct {
	Backend string
	Dir     string // file backend directory; sqlite database lives here too
	S3      S3Config
}

// S3Config holds bucket settings for the s3 cache backend
type S3Config struct {
	Bucket    string
	Prefix    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	return load(time.Now)
}

func load(now func() time.Time) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir, err := filepath.Abs(getEnv("ETFSCOPE_DATA_DIR", "data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	start, err := getEnvAsDate("ETFSCOPE_START", DefaultStart)
	if err != nil {
		return nil, err
	}
	end, err := getEnvAsDate("ETFSCOPE_END", now().Format(domain.DateLayout))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:         dataDir,
		OutputDir:       getEnv("ETFSCOPE_OUTPUT_DIR", filepath.Join(dataDir, "reports")),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		Port:            getEnvAsInt("GO_PORT", 8001),
		DevMode:         getEnvAsBool("DEV_MODE", false),
		RefreshSchedule: getEnv("ETFSCOPE_REFRESH_SCHEDULE", "0 30 22 * * MON-FRI"),
		Analysis: AnalysisConfig{
			Tickers:       getEnvAsList("ETFSCOPE_TICKERS", DefaultTickers),
			Start:         start,
			End:           end,
			RiskFreeRate:  getEnvAsFloat("ETFSCOPE_RISK_FREE", 0.02),
			Samples:       getEnvAsInt("ETFSCOPE_SAMPLES", simulation.DefaultSamples),
			Seed:          getEnvAsUint64("ETFSCOPE_SEED", 0),
			Workers:       getEnvAsInt("ETFSCOPE_WORKERS", 0),
			WeightsMethod: getEnv("ETFSCOPE_WEIGHTS_METHOD", string(simulation.MethodUniform)),
			RollingWindow: getEnvAsInt("ETFSCOPE_ROLLING_WINDOW", 60),
			ForceRefresh:  getEnvAsBool("ETFSCOPE_FORCE_REFRESH", false),
			Pause:         getEnvAsDuration("ETFSCOPE_PAUSE", 200*time.Millisecond),
		},
		Source: SourceConfig{
			Name:               strings.ToLower(getEnv("ETFSCOPE_SOURCE", SourceYahoo)),
			AlphaVantageAPIKey: getEnv("ALPHAVANTAGE_API_KEY", ""),
		},
		Cache: CacheConfig{
			Backend: strings.ToLower(getEnv("ETFSCOPE_CACHE", CacheFile)),
			Dir:     getEnv("ETFSCOPE_CACHE_DIR", dataDir),
			S3: S3Config{
				Bucket:    getEnv("ETFSCOPE_S3_BUCKET", ""),
				Prefix:    getEnv("ETFSCOPE_S3_PREFIX", "prices"),
				Endpoint:  getEnv("ETFSCOPE_S3_ENDPOINT", ""),
				Region:    getEnv("ETFSCOPE_S3_REGION", ""),
				AccessKey: getEnv("ETFSCOPE_S3_ACCESS_KEY", ""),
				SecretKey: getEnv("ETFSCOPE_S3_SECRET_KEY", ""),
			},
		},
	}

	// Analysis profile overrides the environment
	if path := getEnv("ETFSCOPE_PROFILE", ""); path != "" {
		profile, err := LoadProfile(path)
		if err != nil {
			return nil, err
		}
		if err := profile.Apply(&cfg.Analysis); err != nil {
			return nil, fmt.Errorf("failed to apply profile %s: %w", path, err)
		}
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if err := c.Analysis.Validate(); err != nil {
		return err
	}

	switch c.Source.Name {
	case SourceYahoo:
	case SourceAlphaVantage:
		if c.Source.AlphaVantageAPIKey == "" {
			return fmt.Errorf("ALPHAVANTAGE_API_KEY is required when ETFSCOPE_SOURCE=%s", SourceAlphaVantage)
		}
	default:
		return fmt.Errorf("unknown price source %q (want %s or %s)", c.Source.Name, SourceYahoo, SourceAlphaVantage)
	}

	switch c.Cache.Backend {
	case CacheFile, CacheSQLite:
	case CacheS3:
		if c.Cache.S3.Bucket == "" {
			return fmt.Errorf("ETFSCOPE_S3_BUCKET is required when ETFSCOPE_CACHE=%s", CacheS3)
		}
	default:
		return fmt.Errorf("unknown cache backend %q (want %s, %s or %s)", c.Cache.Backend, CacheFile, CacheSQLite, CacheS3)
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// Validate checks the analysis parameters
func (a *AnalysisConfig) Validate() error {
	if len(a.Tickers) == 0 {
		return fmt.Errorf("at least one ticker is required")
	}
	if a.End.Before(a.Start) {
		return fmt.Errorf("end date %s is before start date %s",
			a.End.Format(domain.DateLayout), a.Start.Format(domain.DateLayout))
	}
	if a.Samples < 0 {
		return fmt.Errorf("sample count must not be negative, got %d", a.Samples)
	}
	if a.Workers < 0 {
		return fmt.Errorf("worker count must not be negative, got %d", a.Workers)
	}
	if a.RollingWindow < 2 {
		return fmt.Errorf("rolling window must be at least 2, got %d", a.RollingWindow)
	}
	if math.IsNaN(a.RiskFreeRate) || math.IsInf(a.RiskFreeRate, 0) {
		return fmt.Errorf("risk-free rate must be finite")
	}
	if _, err := simulation.ParseMethod(a.WeightsMethod); err != nil {
		return err
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if uintVal, err := strconv.ParseUint(value, 10, 64); err == nil {
			return uintVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated value, upper-casing ticker symbols
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return append([]string(nil), defaultValue...)
	}
	return SplitTickers(value)
}

func getEnvAsDate(key, defaultValue string) (time.Time, error) {
	value := getEnv(key, defaultValue)
	d, err := domain.ParseDay(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: expected YYYY-MM-DD", key, value)
	}
	return d, nil
}

// SplitTickers parses a comma-separated ticker list, upper-casing symbols and
// dropping blanks.
func SplitTickers(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if t := strings.ToUpper(strings.TrimSpace(part)); t != "" {
			out = append(out, t)
		}
	}
	return out
}
