package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for backsim.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Logging  Logging        `yaml:"logging"`
	Backtest BacktestConfig `yaml:"backtest"`
	Strategy StrategyConfig `yaml:"strategy"`
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

// BacktestConfig defines the replay window and the cost model.
type BacktestConfig struct {
	Pair      string `yaml:"pair"`
	Timeframe string `yaml:"timeframe"`
	StartDate string `yaml:"start_date"`
	EndDate   string `yaml:"end_date"`

	InitialCapital float64 `yaml:"initial_capital"`
	MakerFee       float64 `yaml:"maker_fee"`
	TakerFee       float64 `yaml:"taker_fee"`
	SlippagePct    float64 `yaml:"slippage_pct"`
	Leverage       float64 `yaml:"leverage"`
	WarmupBars     int     `yaml:"warmup_bars"`
	RiskFreeRate   float64 `yaml:"risk_free_rate"`
	PeriodsPerYear int     `yaml:"periods_per_year"`
}

// StrategyConfig selects and parameterises the strategy under test.
type StrategyConfig struct {
	Name          string  `yaml:"name"`
	FastPeriod    int     `yaml:"fast_period"`
	SlowPeriod    int     `yaml:"slow_period"`
	StopLossPct   float64 `yaml:"stop_loss_pct"`
	TakeProfitPct float64 `yaml:"take_profit_pct"`
}

// Default returns the configuration used when a field is absent from the
// YAML file.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/backsim.db",
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Backtest: BacktestConfig{
			Pair:           "BTC/USDT",
			Timeframe:      "1h",
			InitialCapital: 10000,
			MakerFee:       0.001,
			TakerFee:       0.001,
			SlippagePct:    0.0005,
			Leverage:       1,
			WarmupBars:     100,
			RiskFreeRate:   0.02,
			PeriodsPerYear: 252,
		},
		Strategy: StrategyConfig{
			Name:          "sma-cross",
			FastPeriod:    10,
			SlowPeriod:    30,
			StopLossPct:   0.02,
			TakeProfitPct: 0.04,
		},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it over
// the defaults, and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	return cfg, nil
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

	if v := os.Getenv("BACKSIM_PAIR"); v != "" {
		cfg.Backtest.Pair = v
	}

	if v := os.Getenv("BACKSIM_TIMEFRAME"); v != "" {
		cfg.Backtest.Timeframe = v
	}

	if v := os.Getenv("BACKSIM_STRATEGY"); v != "" {
		cfg.Strategy.Name = v
	}

	if v := os.Getenv("BACKSIM_INITIAL_CAPITAL"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Backtest.InitialCapital = f
		}
	}
}
