package config

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/gameauth/internal/configx"
	"github.com/dmitrijs2005/gameauth/internal/timex"
)

// JsonConfig is the on-disk form of Config.
type JsonConfig struct {
	ListenAddr    string            `json:"listen_addr"`
	Routes        map[string]string `json:"routes"`
	RequireAuth   []string          `json:"require_auth"`
	PublicKeyFile string            `json:"public_key_file"`
	Issuer        string            `json:"issuer"`
	Audience      string            `json:"audience"`
	Leeway        timex.Duration    `json:"leeway"`
	VerifyWorkers int               `json:"verify_workers"`
	VerifyTimeout timex.Duration    `json:"verify_timeout"`
	ProxyTimeout  timex.Duration    `json:"proxy_timeout"`
	LogLevel      string            `json:"log_level"`
}

func applyJson(config *Config, data []byte) error {
	c := &JsonConfig{}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	configx.SetString(&config.ListenAddr, c.ListenAddr)
	if c.Routes != nil {
		config.Routes = c.Routes
	}
	if c.RequireAuth != nil {
		config.RequireAuth = c.RequireAuth
	}
	configx.SetString(&config.PublicKeyFile, c.PublicKeyFile)
	configx.SetString(&config.Issuer, c.Issuer)
	configx.SetString(&config.Audience, c.Audience)
	configx.SetDuration(&config.Leeway, c.Leeway)
	configx.SetPositive(&config.VerifyWorkers, c.VerifyWorkers)
	configx.SetDuration(&config.VerifyTimeout, c.VerifyTimeout)
	configx.SetDuration(&config.ProxyTimeout, c.ProxyTimeout)
	configx.SetString(&config.LogLevel, c.LogLevel)
	return nil
}
