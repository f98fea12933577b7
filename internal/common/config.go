// Package common provides shared utilities for folio
package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for folio
type Config struct {
	Environment string           `toml:"environment"`
	Account     string           `toml:"account"` // local name for the account, keys the snapshot cache
	API         APIConfig        `toml:"api"`
	Refresh     RefreshConfig    `toml:"refresh"`
	Trading     TradingConfig    `toml:"trading"`
	TimeSeries  TimeSeriesConfig `toml:"timeseries"`
	Storage     StorageConfig    `toml:"storage"`
	Logging     LoggingConfig    `toml:"logging"`
}

// APIConfig holds the remote system-of-record client configuration
type APIConfig struct {
	BaseURL      string `toml:"base_url"`
	Token        string `toml:"token"`
	Timeout      string `toml:"timeout"`
	RateLimit    int    `toml:"rate_limit"`
	RetryMax     int    `toml:"retry_max"`     // bounded retries for idempotent reads
	RetryInitial string `toml:"retry_initial"` // first backoff interval
}

// GetTimeout parses and returns the HTTP timeout duration
func (c *APIConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

// GetRetryInitial parses and returns the initial backoff interval
func (c *APIConfig) GetRetryInitial() time.Duration {
	return parseDuration(c.RetryInitial, 200*time.Millisecond)
}

// RefreshConfig holds refresh coordination settings
type RefreshConfig struct {
	Debounce         string `toml:"debounce"`
	RequestTimeout   string `toml:"request_timeout"`
	SnapshotInterval string `toml:"snapshot_interval"`
	SignalsInterval  string `toml:"signals_interval"`
	LedgerWindow     int    `toml:"ledger_window"` // number of recent ledger entries pulled per refresh
	// MarkFromHistory re-marks holdings at the last intraday history price on each refresh.
	MarkFromHistory bool `toml:"mark_from_history"`
}

// GetDebounce returns the window within which refresh requests share one result
func (c *RefreshConfig) GetDebounce() time.Duration {
	return parseDuration(c.Debounce, 500*time.Millisecond)
}

// GetRequestTimeout returns the bound on a single refresh
func (c *RefreshConfig) GetRequestTimeout() time.Duration {
	return parseDuration(c.RequestTimeout, 10*time.Second)
}

// GetSnapshotInterval returns the background snapshot polling period
func (c *RefreshConfig) GetSnapshotInterval() time.Duration {
	return parseDuration(c.SnapshotInterval, 60*time.Second)
}

// GetSignalsInterval returns the unread-signal polling period
func (c *RefreshConfig) GetSignalsInterval() time.Duration {
	return parseDuration(c.SignalsInterval, 60*time.Second)
}

// TradingConfig holds trade submission settings
type TradingConfig struct {
	SubmitTimeout string `toml:"submit_timeout"`
	// ClientChecks enables the advisory share-count check against a fresh snapshot.
	ClientChecks      bool   `toml:"client_checks"`
	ReconcileInterval string `toml:"reconcile_interval"`
}

// GetSubmitTimeout returns the bound on a single trade submission
func (c *TradingConfig) GetSubmitTimeout() time.Duration {
	return parseDuration(c.SubmitTimeout, 15*time.Second)
}

// GetReconcileInterval returns how often pending submissions are reconciled
func (c *TradingConfig) GetReconcileInterval() time.Duration {
	return parseDuration(c.ReconcileInterval, 5*time.Minute)
}

// TimeSeriesConfig holds chart resampling settings
type TimeSeriesConfig struct {
	MaxPoints int    `toml:"max_points"`
	Location  string `toml:"location"`
}

// GetLocation loads the bucket alignment time zone, falling back to UTC
func (c *TimeSeriesConfig) GetLocation() *time.Location {
	if c.Location == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Location)
	if err != nil {
		return time.UTC
	}
	return loc
}

// StorageConfig holds the local cache location
type StorageConfig struct {
	Path string `toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string `toml:"level"`
	Format   string `toml:"format"`
	FilePath string `toml:"file_path"`
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Account:     "default",
		API: APIConfig{
			BaseURL:      "http://localhost:8000/api",
			Timeout:      "30s",
			RateLimit:    5,
			RetryMax:     3,
			RetryInitial: "200ms",
		},
		Refresh: RefreshConfig{
			Debounce:         "500ms",
			RequestTimeout:   "10s",
			SnapshotInterval: "60s",
			SignalsInterval:  "60s",
			LedgerWindow:     50,
		},
		Trading: TradingConfig{
			SubmitTimeout:     "15s",
			ClientChecks:      true,
			ReconcileInterval: "5m",
		},
		TimeSeries: TimeSeriesConfig{
			MaxPoints: 300,
			Location:  "UTC",
		},
		Storage: StorageConfig{
			Path: "data/folio",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides.
// A .env file in the working directory is loaded first if present.
func LoadConfig(paths ...string) (*Config, error) {
	_ = godotenv.Load()

	config := NewDefaultConfig()

	// Later files override earlier ones
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("FOLIO_ENV"); env != "" {
		config.Environment = env
	}

	if account := os.Getenv("FOLIO_ACCOUNT"); account != "" {
		config.Account = account
	}

	if url := os.Getenv("FOLIO_API_URL"); url != "" {
		config.API.BaseURL = url
	}

	if token := os.Getenv("FOLIO_API_TOKEN"); token != "" {
		config.API.Token = token
	}

	if rl := os.Getenv("FOLIO_API_RATE_LIMIT"); rl != "" {
		if n, err := strconv.Atoi(rl); err == nil {
			config.API.RateLimit = n
		}
	}

	if level := os.Getenv("FOLIO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if path := os.Getenv("FOLIO_DATA_PATH"); path != "" {
		config.Storage.Path = filepath.Join(path, "folio")
	}
}

// Validate rejects configurations the client cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.Refresh.LedgerWindow <= 0 {
		return fmt.Errorf("refresh.ledger_window must be positive, got %d", c.Refresh.LedgerWindow)
	}
	if c.TimeSeries.MaxPoints <= 0 {
		return fmt.Errorf("timeseries.max_points must be positive, got %d", c.TimeSeries.MaxPoints)
	}
	return nil
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
