// Package config provides configuration management for ruledesk commands.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// ConsoleConfig holds configuration for the interactive console.
type ConsoleConfig struct {
	ServerURL      string
	RequestTimeout time.Duration
	NotifyTTL      time.Duration
}

// ServeConfig holds configuration for the companion rule service.
type ServeConfig struct {
	Host string
	Port int

	// AttributeCheck rejects rule text referencing names outside the
	// attribute collection. The attribute list exists to constrain rule
	// vocabulary; disabling the check reduces it to documentation.
	AttributeCheck bool
}

// Config aggregates per-command sections loaded from one file.
type Config struct {
	Console ConsoleConfig
	Serve   ServeConfig
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Console: ConsoleConfig{
			ServerURL:      "http://127.0.0.1:8080",
			RequestTimeout: 10 * time.Second,
			NotifyTTL:      3 * time.Second,
		},
		Serve: ServeConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			AttributeCheck: true,
		},
	}
}

// validateConfig checks URL shape, port range, and positive durations.
func validateConfig(cfg *Config) error {
	u, err := url.Parse(cfg.Console.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server_url must be an absolute http(s) URL, got %q", cfg.Console.ServerURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server_url scheme must be http or https, got %q", u.Scheme)
	}
	if cfg.Console.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.Console.RequestTimeout)
	}
	if cfg.Console.NotifyTTL <= 0 {
		return fmt.Errorf("notify_ttl must be positive, got %v", cfg.Console.NotifyTTL)
	}
	if cfg.Serve.Port <= 0 || cfg.Serve.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Serve.Port)
	}
	return nil
}
