package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults matching DefaultConfig
	v.SetDefault("console.server_url", "http://127.0.0.1:8080")
	v.SetDefault("console.request_timeout", "10s")
	v.SetDefault("console.notify_ttl", "3s")
	v.SetDefault("serve.host", "127.0.0.1")
	v.SetDefault("serve.port", 8080)
	v.SetDefault("serve.attribute_check", true)

	// Bind environment variables with RD_ prefix
	v.SetEnvPrefix("RD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Console: ConsoleConfig{
			ServerURL:      v.GetString("console.server_url"),
			RequestTimeout: v.GetDuration("console.request_timeout"),
			NotifyTTL:      v.GetDuration("console.notify_ttl"),
		},
		Serve: ServeConfig{
			Host:           v.GetString("serve.host"),
			Port:           v.GetInt("serve.port"),
			AttributeCheck: v.GetBool("serve.attribute_check"),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
