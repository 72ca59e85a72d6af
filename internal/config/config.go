package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// SignalConfig holds every threshold the signal engine evaluates against.
// Thresholds are configuration, not compiled-in constants, so operators can
// tune them from rejection diagnostics without a rebuild.
type SignalConfig struct {
	OutlookLongThreshold  float64 `yaml:"outlook_long_threshold"`
	OutlookShortThreshold float64 `yaml:"outlook_short_threshold"`
	OutlookExtreme        float64 `yaml:"outlook_extreme"`
	RSIOversold           float64 `yaml:"rsi_oversold"`
	RSIOverbought         float64 `yaml:"rsi_overbought"`
	ADXFloor              float64 `yaml:"adx_floor"`
	ADXTrending           float64 `yaml:"adx_trending"`
	ATRMaxPct             float64 `yaml:"atr_max_pct"`
	VolumeRatioMin        float64 `yaml:"volume_ratio_min"`
	DivergenceMin         float64 `yaml:"divergence_min"`
	ATRStopMultiple       float64 `yaml:"atr_stop_multiple"`
	ATRProfitMultiple     float64 `yaml:"atr_profit_multiple"`
}

// RateLimitConfig gates one data provider.
type RateLimitConfig struct {
	WindowSeconds  int `yaml:"window_seconds"`
	MaxRequests    int `yaml:"max_requests"`
	MinDelayMillis int `yaml:"min_delay_millis"`
}

// Config holds all application configuration.
type Config struct {
	Debug   bool `yaml:"debug"`
	Trading struct {
		Symbols           []string `yaml:"symbols"`
		PrimaryInterval   string   `yaml:"primary_interval"`
		FastInterval      string   `yaml:"fast_interval"`
		SlowInterval      string   `yaml:"slow_interval"`
		CandleLimit       int      `yaml:"candle_limit"`
		CycleDelaySeconds int      `yaml:"cycle_delay_seconds"`
		MaxCycles         int      `yaml:"max_cycles"`
		LossFraction      float64  `yaml:"loss_fraction"`
	} `yaml:"trading"`
	Budget struct {
		MaxBudgetUSD           float64 `yaml:"max_budget_usd"`
		ProfitGoalUSD          float64 `yaml:"profit_goal_usd"`
		MaxConcurrentPositions int     `yaml:"max_concurrent_positions"`
		GlobalMinBudgetUSD     float64 `yaml:"global_min_budget_usd"`
		GlobalMaxBudgetUSD     float64 `yaml:"global_max_budget_usd"`
		MinPerPositionUSD      float64 `yaml:"min_per_position_usd"`
		TargetLeverage         int     `yaml:"target_leverage"`
		MinLeverage            int     `yaml:"min_leverage"`
	} `yaml:"budget"`
	Venue struct {
		Kind      string `yaml:"kind"` // "orderbook" or "external"
		OrderBook struct {
			BaseURL            string `yaml:"base_url"`
			PollIntervalMillis int    `yaml:"poll_interval_millis"`
			PollTimeoutSeconds int    `yaml:"poll_timeout_seconds"`
		} `yaml:"orderbook"`
		External struct {
			BaseURL        string `yaml:"base_url"`
			TimeoutSeconds int    `yaml:"timeout_seconds"`
		} `yaml:"external"`
	} `yaml:"venue"`
	MarketData struct {
		CacheTTLMinutes int             `yaml:"cache_ttl_minutes"`
		RateLimit       RateLimitConfig `yaml:"rate_limit"`
	} `yaml:"market_data"`
	Signal  SignalConfig `yaml:"signal"`
	Session struct {
		MaxRestarts         int    `yaml:"max_restarts"`
		RestartDelaySeconds int    `yaml:"restart_delay_seconds"`
		FatalDelaySeconds   int    `yaml:"fatal_delay_seconds"`
		StopFilePath        string `yaml:"stop_file_path"`
	} `yaml:"session"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Credential string `yaml:"-"` // only ever supplied via environment
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("PERPPILOT_CREDENTIAL"); v != "" {
		cfg.Credential = v
	}
	if v := os.Getenv("PERPPILOT_VENUE"); v != "" {
		cfg.Venue.Kind = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("MAX_BUDGET_USD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Budget.MaxBudgetUSD = f
		}
	}
	if v := os.Getenv("PROFIT_GOAL_USD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Budget.ProfitGoalUSD = f
		}
	}
	if v := os.Getenv("STOP_FILE_PATH"); v != "" {
		cfg.Session.StopFilePath = v
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if len(c.Trading.Symbols) == 0 {
		c.Trading.Symbols = []string{"BTC", "ETH", "SOL"}
	}
	if c.Trading.PrimaryInterval == "" {
		c.Trading.PrimaryInterval = "1h"
	}
	if c.Trading.FastInterval == "" {
		c.Trading.FastInterval = "15m"
	}
	if c.Trading.SlowInterval == "" {
		c.Trading.SlowInterval = "4h"
	}
	if c.Trading.CandleLimit == 0 {
		c.Trading.CandleLimit = 100
	}
	if c.Trading.CycleDelaySeconds == 0 {
		c.Trading.CycleDelaySeconds = 60
	}
	if c.Trading.MaxCycles == 0 {
		c.Trading.MaxCycles = 1440
	}
	if c.Trading.LossFraction == 0 {
		c.Trading.LossFraction = 0.5
	}
	if c.Budget.MaxConcurrentPositions == 0 {
		c.Budget.MaxConcurrentPositions = 3
	}
	if c.Budget.GlobalMinBudgetUSD == 0 {
		c.Budget.GlobalMinBudgetUSD = 10
	}
	if c.Budget.GlobalMaxBudgetUSD == 0 {
		c.Budget.GlobalMaxBudgetUSD = 100000
	}
	if c.Budget.MinPerPositionUSD == 0 {
		c.Budget.MinPerPositionUSD = 5
	}
	if c.Budget.TargetLeverage == 0 {
		c.Budget.TargetLeverage = 10
	}
	if c.Budget.MinLeverage == 0 {
		c.Budget.MinLeverage = 2
	}
	if c.Venue.Kind == "" {
		c.Venue.Kind = "orderbook"
	}
	if c.Venue.OrderBook.BaseURL == "" {
		c.Venue.OrderBook.BaseURL = "https://api.hyperliquid.xyz"
	}
	if c.Venue.OrderBook.PollIntervalMillis == 0 {
		c.Venue.OrderBook.PollIntervalMillis = 2000
	}
	if c.Venue.OrderBook.PollTimeoutSeconds == 0 {
		c.Venue.OrderBook.PollTimeoutSeconds = 30
	}
	if c.Venue.External.BaseURL == "" {
		c.Venue.External.BaseURL = "http://localhost:8000"
	}
	if c.Venue.External.TimeoutSeconds == 0 {
		c.Venue.External.TimeoutSeconds = 60
	}
	if c.MarketData.CacheTTLMinutes == 0 {
		c.MarketData.CacheTTLMinutes = 10
	}
	if c.MarketData.RateLimit.WindowSeconds == 0 {
		c.MarketData.RateLimit.WindowSeconds = 60
	}
	if c.MarketData.RateLimit.MaxRequests == 0 {
		c.MarketData.RateLimit.MaxRequests = 30
	}
	if c.MarketData.RateLimit.MinDelayMillis == 0 {
		c.MarketData.RateLimit.MinDelayMillis = 250
	}
	if c.Signal.OutlookLongThreshold == 0 {
		c.Signal.OutlookLongThreshold = 0.3
	}
	if c.Signal.OutlookShortThreshold == 0 {
		c.Signal.OutlookShortThreshold = -0.3
	}
	if c.Signal.OutlookExtreme == 0 {
		c.Signal.OutlookExtreme = 0.7
	}
	if c.Signal.RSIOversold == 0 {
		c.Signal.RSIOversold = 30
	}
	if c.Signal.RSIOverbought == 0 {
		c.Signal.RSIOverbought = 70
	}
	if c.Signal.ADXFloor == 0 {
		c.Signal.ADXFloor = 15
	}
	if c.Signal.ADXTrending == 0 {
		c.Signal.ADXTrending = 22
	}
	if c.Signal.ATRMaxPct == 0 {
		c.Signal.ATRMaxPct = 5
	}
	if c.Signal.VolumeRatioMin == 0 {
		c.Signal.VolumeRatioMin = 0.8
	}
	if c.Signal.DivergenceMin == 0 {
		c.Signal.DivergenceMin = 0.2
	}
	if c.Signal.ATRStopMultiple == 0 {
		c.Signal.ATRStopMultiple = 1.0
	}
	if c.Signal.ATRProfitMultiple == 0 {
		c.Signal.ATRProfitMultiple = 2.0
	}
	if c.Session.MaxRestarts == 0 {
		c.Session.MaxRestarts = 5
	}
	if c.Session.RestartDelaySeconds == 0 {
		c.Session.RestartDelaySeconds = 30
	}
	if c.Session.FatalDelaySeconds == 0 {
		c.Session.FatalDelaySeconds = 300
	}
	if c.Session.StopFilePath == "" {
		c.Session.StopFilePath = "data/stop.signal"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/perppilot.db"
	}
}

// Validate checks that all required fields are set and consistent.
func (c *Config) Validate() error {
	if c.Credential == "" {
		return fmt.Errorf("credential is required (set PERPPILOT_CREDENTIAL)")
	}
	if c.Venue.Kind != "orderbook" && c.Venue.Kind != "external" {
		return fmt.Errorf("venue.kind must be %q or %q, got %q", "orderbook", "external", c.Venue.Kind)
	}
	if c.Budget.MaxBudgetUSD <= 0 {
		return fmt.Errorf("budget.max_budget_usd must be positive")
	}
	if c.Budget.ProfitGoalUSD <= 0 {
		return fmt.Errorf("budget.profit_goal_usd must be positive")
	}
	if c.Budget.MaxConcurrentPositions <= 0 {
		return fmt.Errorf("budget.max_concurrent_positions must be positive")
	}
	if c.Trading.LossFraction <= 0 || c.Trading.LossFraction > 1 {
		return fmt.Errorf("trading.loss_fraction must be in (0, 1]")
	}
	if len(c.Trading.Symbols) == 0 {
		return fmt.Errorf("trading.symbols must not be empty")
	}
	return nil
}
