package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all smartroute configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" yaml:"server"`

	// Analyzer tuning
	Analyzer AnalyzerConfig `json:"analyzer,omitempty" yaml:"analyzer,omitempty"`

	// Model catalog override (TOML file); empty means built-in catalog
	CatalogPath string `json:"catalogPath,omitempty" yaml:"catalogPath,omitempty"`

	// Quota / licensing
	Quota QuotaConfig `json:"quota" yaml:"quota"`

	// Payment quote settings (x402-style)
	Payment PaymentConfig `json:"payment" yaml:"payment"`

	// Daily budget stub standing in for the external cost governor
	Budget BudgetConfig `json:"budget" yaml:"budget"`

	// Optional MQTT event publishing
	MQTT MQTTConfig `json:"mqtt,omitempty" yaml:"mqtt,omitempty"`

	// Retention / pattern-decay sweeper
	Sweeper SweeperConfig `json:"sweeper,omitempty" yaml:"sweeper,omitempty"`
}

type ServerConfig struct {
	Port     int    `json:"port" yaml:"port"`
	DataDir  string `json:"dataDir" yaml:"dataDir"`
	LogLevel string `json:"logLevel" yaml:"logLevel"`
}

type AnalyzerConfig struct {
	// LengthThreshold is the combined prompt+context length (chars) above
	// which the long-input complexity bump applies.
	LengthThreshold int `json:"lengthThreshold,omitempty" yaml:"lengthThreshold,omitempty"`
}

type QuotaConfig struct {
	FreeDailyLimit int `json:"freeDailyLimit" yaml:"freeDailyLimit"`
	ProDays        int `json:"proDays" yaml:"proDays"`
}

type PaymentConfig struct {
	Address string  `json:"address" yaml:"address"`
	Amount  float64 `json:"amount" yaml:"amount"`
	Asset   string  `json:"asset" yaml:"asset"`
}

// BudgetConfig stubs the external budget governor. A real integration would
// implement selector.BudgetSource against the governor's API.
type BudgetConfig struct {
	DailyLimitUSD float64 `json:"dailyLimitUsd" yaml:"dailyLimitUsd"`
	DailySpentUSD float64 `json:"dailySpentUsd" yaml:"dailySpentUsd"`
}

type MQTTConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	BrokerURL   string `json:"brokerUrl" yaml:"brokerUrl"`
	TopicPrefix string `json:"topicPrefix,omitempty" yaml:"topicPrefix,omitempty"`
	Username    string `json:"username,omitempty" yaml:"username,omitempty"`
	Password    string `json:"password,omitempty" yaml:"password,omitempty"`
}

type SweeperConfig struct {
	Enabled        bool    `json:"enabled" yaml:"enabled"`
	Schedule       string  `json:"schedule,omitempty" yaml:"schedule,omitempty"` // cron expression
	RetentionDays  int     `json:"retentionDays,omitempty" yaml:"retentionDays,omitempty"`
	DecayAfterDays int     `json:"decayAfterDays,omitempty" yaml:"decayAfterDays,omitempty"`
	DecayFactor    float64 `json:"decayFactor,omitempty" yaml:"decayFactor,omitempty"`
}

// Default returns a config with sane defaults applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     8430,
			LogLevel: "info",
		},
		Analyzer: AnalyzerConfig{
			LengthThreshold: 2000,
		},
		Quota: QuotaConfig{
			FreeDailyLimit: 100,
			ProDays:        30,
		},
		Payment: PaymentConfig{
			Amount: 5.0,
			Asset:  "USDC",
		},
		Budget: BudgetConfig{
			DailyLimitUSD: 10.0,
		},
		MQTT: MQTTConfig{
			TopicPrefix: "smartroute",
		},
		Sweeper: SweeperConfig{
			Schedule:       "0 3 * * *",
			RetentionDays:  90,
			DecayAfterDays: 30,
			DecayFactor:    0.9,
		},
	}
}

// Load reads a config file (JSON or YAML, by extension) and merges it over
// the defaults. A missing path returns pure defaults rather than an error so
// the CLI works out of the box.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse yaml config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse json config: %w", err)
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults fills any zero values a partial config file left behind.
func (c *Config) applyDefaults() {
	d := Default()
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = d.Server.LogLevel
	}
	if c.Analyzer.LengthThreshold == 0 {
		c.Analyzer.LengthThreshold = d.Analyzer.LengthThreshold
	}
	if c.Quota.FreeDailyLimit == 0 {
		c.Quota.FreeDailyLimit = d.Quota.FreeDailyLimit
	}
	if c.Quota.ProDays == 0 {
		c.Quota.ProDays = d.Quota.ProDays
	}
	if c.Payment.Amount == 0 {
		c.Payment.Amount = d.Payment.Amount
	}
	if c.Payment.Asset == "" {
		c.Payment.Asset = d.Payment.Asset
	}
	if c.Budget.DailyLimitUSD == 0 {
		c.Budget.DailyLimitUSD = d.Budget.DailyLimitUSD
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = d.MQTT.TopicPrefix
	}
	if c.Sweeper.Schedule == "" {
		c.Sweeper.Schedule = d.Sweeper.Schedule
	}
	if c.Sweeper.RetentionDays == 0 {
		c.Sweeper.RetentionDays = d.Sweeper.RetentionDays
	}
	if c.Sweeper.DecayAfterDays == 0 {
		c.Sweeper.DecayAfterDays = d.Sweeper.DecayAfterDays
	}
	if c.Sweeper.DecayFactor == 0 {
		c.Sweeper.DecayFactor = d.Sweeper.DecayFactor
	}
}

// Save writes the config as pretty-printed JSON.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// DBPath resolves the SQLite database file location. DataDir wins when set;
// otherwise the per-user config directory is used.
func (c *Config) DBPath() (string, error) {
	dir := c.Server.DataDir
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("resolve config dir: %w", err)
		}
		dir = filepath.Join(base, "smartroute")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return filepath.Join(dir, "router.db"), nil
}
