package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("PERPPILOT_CREDENTIAL", "0xkey")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Trading.PrimaryInterval != "1h" || cfg.Trading.CandleLimit != 100 {
		t.Errorf("defaults not applied: %+v", cfg.Trading)
	}
	if cfg.MarketData.CacheTTLMinutes != 10 {
		t.Errorf("expected 10 minute cache TTL default, got %d", cfg.MarketData.CacheTTLMinutes)
	}
	// Budget amounts carry no defaults on purpose: a trading budget must be
	// an explicit operator decision.
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation to demand an explicit budget")
	}
}

func TestLoad_YAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
budget:
  max_budget_usd: 500
  profit_goal_usd: 50
venue:
  kind: external
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PERPPILOT_CREDENTIAL", "0xkey")
	t.Setenv("PERPPILOT_VENUE", "orderbook")
	t.Setenv("MAX_BUDGET_USD", "750")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Venue.Kind != "orderbook" {
		t.Errorf("env must override yaml venue, got %q", cfg.Venue.Kind)
	}
	if cfg.Budget.MaxBudgetUSD != 750 {
		t.Errorf("env must override yaml budget, got %.0f", cfg.Budget.MaxBudgetUSD)
	}
	if cfg.Budget.ProfitGoalUSD != 50 {
		t.Errorf("yaml value lost, got %.0f", cfg.Budget.ProfitGoalUSD)
	}
	if cfg.Credential != "0xkey" {
		t.Error("credential must come from the environment")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{Credential: "0xkey"}
		cfg.Budget.MaxBudgetUSD = 100
		cfg.Budget.ProfitGoalUSD = 10
		cfg.applyDefaults()
		return cfg
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("baseline config must validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing credential", func(c *Config) { c.Credential = "" }},
		{"unknown venue", func(c *Config) { c.Venue.Kind = "paper" }},
		{"no budget", func(c *Config) { c.Budget.MaxBudgetUSD = 0 }},
		{"no profit goal", func(c *Config) { c.Budget.ProfitGoalUSD = -1 }},
		{"loss fraction above 1", func(c *Config) { c.Trading.LossFraction = 1.5 }},
		{"no symbols", func(c *Config) { c.Trading.Symbols = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
