// Package config holds the edge gateway's settings. Layering matches the
// server: defaults, JSON file, environment, flags.
package config

import (
	"time"

	"github.com/dmitrijs2005/gameauth/internal/configx"
)

// Config holds runtime settings for the gateway.
//
// Routes maps a path prefix to an upstream base URL; the longest matching
// prefix wins. RequireAuth lists prefixes where anonymous requests are
// rejected; elsewhere they pass without identity headers.
type Config struct {
	ListenAddr string `env:"GAMEAUTH_GATEWAY_ADDR"`

	Routes      map[string]string `env:"GAMEAUTH_GATEWAY_ROUTES" envKeyValSeparator:"="`
	RequireAuth []string          `env:"GAMEAUTH_GATEWAY_REQUIRE_AUTH" envSeparator:","`

	PublicKey     string        `env:"GAMEAUTH_PUBLIC_KEY"`
	PublicKeyFile string        `env:"GAMEAUTH_PUBLIC_KEY_FILE"`
	Issuer        string        `env:"GAMEAUTH_ISSUER"`
	Audience      string        `env:"GAMEAUTH_AUDIENCE"`
	Leeway        time.Duration `env:"GAMEAUTH_LEEWAY"`

	VerifyWorkers int           `env:"GAMEAUTH_GATEWAY_VERIFY_WORKERS"`
	VerifyTimeout time.Duration `env:"GAMEAUTH_GATEWAY_VERIFY_TIMEOUT"`
	ProxyTimeout  time.Duration `env:"GAMEAUTH_GATEWAY_PROXY_TIMEOUT"`

	LogLevel string `env:"GAMEAUTH_LOG_LEVEL"`
}

// LoadDefaults populates Config with development defaults. VerifyWorkers 0
// means one per CPU.
func (c *Config) LoadDefaults() {
	c.ListenAddr = ":8000"
	c.Routes = map[string]string{"/api/v1": "http://127.0.0.1:8080"}
	c.RequireAuth = []string{}
	c.Issuer = "gameauth"
	c.VerifyWorkers = 0
	c.VerifyTimeout = 2 * time.Second
	c.ProxyTimeout = 30 * time.Second
	c.LogLevel = "info"
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := configx.Load(cfg, applyJson, parseFlags); err != nil {
		return nil, err
	}
	return cfg, nil
}
