// Package config provides configuration management for formkeeper services.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/solatis/formkeeper/internal/form"
)

// Config is the full process configuration.
type Config struct {
	Engine   EngineConfig
	Server   ServerConfig
	Database DatabaseConfig
}

// EngineConfig tunes every controller the process creates.
type EngineConfig struct {
	DebounceWindow   time.Duration
	AsyncTimeout     time.Duration
	RetryFailedAsync bool
}

// ServerConfig holds configuration for the gRPC session service.
type ServerConfig struct {
	Host           string
	Port           int
	MaxSessions    int
	RequestTimeout time.Duration
}

// DatabaseConfig locates the spec catalog.
type DatabaseConfig struct {
	URL string
}

// Default returns configuration with default values.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			DebounceWindow: form.DefaultDebounce,
			AsyncTimeout:   10 * time.Second,
		},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           50061,
			MaxSessions:    1000,
			RequestTimeout: 30 * time.Second,
		},
	}
}

// Options converts the engine settings to controller options.
func (e EngineConfig) Options() []form.Option {
	return []form.Option{
		form.WithDebounce(e.DebounceWindow),
		form.WithAsyncTimeout(e.AsyncTimeout),
		form.WithRetryFailedAsync(e.RetryFailedAsync),
	}
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// hasPassword reports whether a database URL embeds a password.
func hasPassword(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return false
	}
	_, ok := u.User.Password()
	return ok
}
