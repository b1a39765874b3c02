// Package config loads the client configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the client configuration.
type Config struct {
	Server      string        `yaml:"server"`
	Name        string        `yaml:"name"`
	Nation      string        `yaml:"nation,omitempty"`
	Color       string        `yaml:"color,omitempty"`
	LogLevel    string        `yaml:"log_level"`
	LogDev      bool          `yaml:"log_dev"`
	AutoEndTurn bool          `yaml:"auto_end_turn"`
	RateLimit   RateLimitSpec `yaml:"rate_limit"`
	Journal     JournalSpec   `yaml:"journal"`
	Autosave    AutosaveSpec  `yaml:"autosave"`
	Messages    MessageSpec   `yaml:"messages"`
	History     HistorySpec   `yaml:"history"`
}

// RateLimitSpec bounds outbound messages.
type RateLimitSpec struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// JournalSpec enables the compressed frame journal.
type JournalSpec struct {
	Path string `yaml:"path"`
}

// AutosaveSpec configures turn-start autosaves.
type AutosaveSpec struct {
	Path       string `yaml:"path"`
	EveryTurns int    `yaml:"every_turns"`
	Keep       int    `yaml:"keep"`
}

// MessageSpec controls outstanding-message display at turn start.
type MessageSpec struct {
	// IgnoreFor is how many turns an ignored message key stays ignored.
	IgnoreFor int      `yaml:"ignore_for"`
	Suppress  []string `yaml:"suppress,omitempty"`
}

// HistorySpec controls the player-facing event history.
type HistorySpec struct {
	Path string `yaml:"path,omitempty"`
}

// Load reads path over the defaults. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Server:   "localhost:3541",
		Name:     "colonist",
		LogLevel: "info",
		RateLimit: RateLimitSpec{
			PerSecond: 50,
			Burst:     20,
		},
		Autosave: AutosaveSpec{
			EveryTurns: 0,
			Keep:       10,
		},
		Messages: MessageSpec{
			IgnoreFor: 1,
		},
	}
}

// Normalize fills zero values that have a sensible default.
func (c *Config) Normalize() {
	if c == nil {
		return
	}
	c.Server = strings.TrimSpace(c.Server)
	c.Name = strings.TrimSpace(c.Name)
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.RateLimit.PerSecond > 0 && c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 1
	}
	if c.Autosave.EveryTurns > 0 && c.Autosave.Path == "" {
		c.Autosave.Path = "colonia-autosave.db"
	}
	if c.Autosave.Keep <= 0 {
		c.Autosave.Keep = 10
	}
	if c.Messages.IgnoreFor <= 0 {
		c.Messages.IgnoreFor = 1
	}
}

// Validate rejects configurations the client cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Server == "" {
		errs = append(errs, errors.New("server is required"))
	}
	if c.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if c.RateLimit.PerSecond < 0 {
		errs = append(errs, fmt.Errorf("rate_limit.per_second must be >= 0, got %v", c.RateLimit.PerSecond))
	}
	if c.Autosave.EveryTurns < 0 {
		errs = append(errs, fmt.Errorf("autosave.every_turns must be >= 0, got %d", c.Autosave.EveryTurns))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}
	return errors.Join(errs...)
}
