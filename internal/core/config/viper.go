package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"host":         "server.host",
	"port":         "server.port",
	"max-sessions": "server.max_sessions",
	"debounce":     "engine.debounce_window",
	"db-url":       "database.url",
}

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
// Flags may be nil; only flags named in flagKeys are bound.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Set defaults matching Default
	def := Default()
	v.SetDefault("engine.debounce_window", def.Engine.DebounceWindow.String())
	v.SetDefault("engine.async_timeout", def.Engine.AsyncTimeout.String())
	v.SetDefault("engine.retry_failed_async", def.Engine.RetryFailedAsync)
	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("server.max_sessions", def.Server.MaxSessions)
	v.SetDefault("server.request_timeout", def.Server.RequestTimeout.String())
	v.SetDefault("database.url", "")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Credentials are environment-only; checked before env and flags apply
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	// Bind environment variables with FK_ prefix
	v.SetEnvPrefix("FK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{
		Engine: EngineConfig{
			DebounceWindow:   v.GetDuration("engine.debounce_window"),
			AsyncTimeout:     v.GetDuration("engine.async_timeout"),
			RetryFailedAsync: v.GetBool("engine.retry_failed_async"),
		},
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			MaxSessions:    v.GetInt("server.max_sessions"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
		},
		Database: DatabaseConfig{
			URL: v.GetString("database.url"),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks port range and positive limits and durations.
func validateConfig(cfg *Config) error {
	if cfg.Engine.DebounceWindow < 0 {
		return fmt.Errorf("debounce_window must not be negative, got %v", cfg.Engine.DebounceWindow)
	}
	if cfg.Engine.AsyncTimeout <= 0 {
		return fmt.Errorf("async_timeout must be positive, got %v", cfg.Engine.AsyncTimeout)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.MaxSessions <= 0 {
		return fmt.Errorf("max_sessions must be positive, got %d", cfg.Server.MaxSessions)
	}
	if cfg.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.Server.RequestTimeout)
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only credentials (12-factor principle).
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.InConfig("database.url") && hasPassword(v.GetString("database.url")) {
		return fmt.Errorf("database credentials not allowed in config files (use FK_DATABASE_URL environment variable)")
	}
	return nil
}
