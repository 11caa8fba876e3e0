package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by validation failures.
var ErrInvalid = errors.New("invalid config")

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for eulerbt.
type Config struct {
	Storage  Storage  `yaml:"storage"`
	Logging  Logging  `yaml:"logging"`
	Backtest Backtest `yaml:"backtest"`
	Session  Session  `yaml:"session"`
	Alpaca   Alpaca   `yaml:"alpaca"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Backtest holds strategy and cost parameters for a run.
type Backtest struct {
	Strategy           string  `yaml:"strategy"`
	ShortWindow        int     `yaml:"short_window"`
	LongWindow         int     `yaml:"long_window"`
	ProfitPerPoint     float64 `yaml:"profit_per_point"`
	TransactionFee     float64 `yaml:"transaction_fee"`
	TransactionTaxRate float64 `yaml:"transaction_tax_rate"`
	StepSize           float64 `yaml:"step_size"`
	Predictor          string  `yaml:"predictor"` // "step" or "time"
}

// Session describes the trading day used when aggregating intraday bars into
// daily bars.
type Session struct {
	CloseTime string `yaml:"close_time"` // HH:MM
	Timezone  string `yaml:"timezone"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
	RateLimit int    `yaml:"rate_limit_per_min"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/eulerbt.db",
		},
		Logging: Logging{Level: "info", Format: "json"},
		Backtest: Backtest{
			Strategy:           "euler",
			ShortWindow:        1,
			LongWindow:         3,
			ProfitPerPoint:     10,
			TransactionFee:     18,
			TransactionTaxRate: 0.00002,
			StepSize:           1,
			Predictor:          "step",
		},
		Session: Session{CloseTime: "13:45", Timezone: "Asia/Taipei"},
		Alpaca:  Alpaca{Feed: "sip", RateLimit: 200},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path on top of the
// defaults, applies environment variable overrides, and validates the result.
// A missing file is not an error: defaults and overrides still apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.Backtest.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from a .env file into the process
// environment without overriding variables that are already set. A missing
// file is ignored.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("EULERBT_STRATEGY"); v != "" {
		cfg.Backtest.Strategy = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	// Canonical SDK names win over the ALPACA_* aliases.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// Validate checks the backtest parameters.
func (b Backtest) Validate() error {
	var problems []string
	if b.ShortWindow <= 0 {
		problems = append(problems, "short_window must be positive")
	}
	if b.LongWindow <= 0 {
		problems = append(problems, "long_window must be positive")
	}
	if b.StepSize <= 0 {
		problems = append(problems, "step_size must be positive")
	}
	if b.ProfitPerPoint < 0 {
		problems = append(problems, "profit_per_point must not be negative")
	}
	if b.TransactionFee < 0 {
		problems = append(problems, "transaction_fee must not be negative")
	}
	if b.TransactionTaxRate < 0 {
		problems = append(problems, "transaction_tax_rate must not be negative")
	}
	switch strings.ToLower(b.Predictor) {
	case "", "step", "time":
	default:
		problems = append(problems, fmt.Sprintf("predictor %q must be step or time", b.Predictor))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}
