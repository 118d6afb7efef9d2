package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/curb-dev/curb/internal/alerts"
	"github.com/curb-dev/curb/internal/classify"
)

// FileName is the config file name inside a curb directory.
const FileName = "curb.yaml"

// Config represents the top-level curb.yaml configuration.
type Config struct {
	User       string           `yaml:"user"`
	Database   string           `yaml:"database"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Optimize   OptimizeConfig   `yaml:"optimize"`
	Advisory   AdvisoryConfig   `yaml:"advisory"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ThresholdsConfig overrides the classifier and alert engine constants.
// Money values are decimal strings.
type ThresholdsConfig struct {
	ImpulseAmount   string  `yaml:"impulse_amount"`
	HabitCount      int     `yaml:"habit_count"`
	BadSavingAmount string  `yaml:"bad_saving_amount"`
	GoodDropRatio   float64 `yaml:"good_drop_ratio"`
}

// OptimizeConfig controls cap enforcement on manual entry.
type OptimizeConfig struct {
	Enabled bool `yaml:"enabled"`
}

// AdvisoryConfig controls the advisory gateway.
type AdvisoryConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig controls the log file.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads a curb.yaml file from disk. Missing fields keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new project.
func Default() *Config {
	th := classify.DefaultThresholds()
	pol := alerts.DefaultPolicy()
	ratio, _ := pol.GoodDropRatio.Float64()
	return &Config{
		User:     "guest",
		Database: "curb.db",
		Thresholds: ThresholdsConfig{
			ImpulseAmount:   th.ImpulseAmount.String(),
			HabitCount:      th.HabitCount,
			BadSavingAmount: pol.BadSavingAmount.String(),
			GoodDropRatio:   ratio,
		},
		Advisory: AdvisoryConfig{Timeout: 5 * time.Second},
		Logging: LoggingConfig{
			Level: "info",
			File:  "logs/curb.log",
		},
	}
}

// Validate checks the threshold values.
func (c *Config) Validate() error {
	if _, err := c.ClassifyThresholds(); err != nil {
		return err
	}
	if _, err := c.AlertPolicy(); err != nil {
		return err
	}
	if c.Advisory.Timeout < 0 {
		return fmt.Errorf("advisory.timeout must not be negative")
	}
	return nil
}

// ClassifyThresholds converts the thresholds section for the classifier.
func (c *Config) ClassifyThresholds() (classify.Thresholds, error) {
	amount, err := parseMoney("thresholds.impulse_amount", c.Thresholds.ImpulseAmount)
	if err != nil {
		return classify.Thresholds{}, err
	}
	if c.Thresholds.HabitCount < 1 {
		return classify.Thresholds{}, fmt.Errorf("thresholds.habit_count must be at least 1, got %d", c.Thresholds.HabitCount)
	}
	return classify.Thresholds{ImpulseAmount: amount, HabitCount: c.Thresholds.HabitCount}, nil
}

// AlertPolicy converts the thresholds section for the alert engine.
func (c *Config) AlertPolicy() (alerts.Policy, error) {
	bad, err := parseMoney("thresholds.bad_saving_amount", c.Thresholds.BadSavingAmount)
	if err != nil {
		return alerts.Policy{}, err
	}
	ratio := c.Thresholds.GoodDropRatio
	if ratio <= 0 || ratio >= 1 {
		return alerts.Policy{}, fmt.Errorf("thresholds.good_drop_ratio must be between 0 and 1, got %v", ratio)
	}
	if c.Thresholds.HabitCount < 1 {
		return alerts.Policy{}, fmt.Errorf("thresholds.habit_count must be at least 1, got %d", c.Thresholds.HabitCount)
	}
	return alerts.Policy{
		HabitCount:      c.Thresholds.HabitCount,
		BadSavingAmount: bad,
		GoodDropRatio:   decimal.NewFromFloat(ratio),
	}, nil
}

func parseMoney(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parsing %s %q: %w", field, s, err)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%s must not be negative, got %s", field, s)
	}
	return d, nil
}
