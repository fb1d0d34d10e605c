package config

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/gameauth/internal/configx"
	"github.com/dmitrijs2005/gameauth/internal/timex"
)

// JsonConfig is the on-disk form of Config. Durations accept "15m" or
// integer nanoseconds. Fields absent from the file keep their previous
// value.
type JsonConfig struct {
	EndpointAddrHTTP string `json:"endpoint_addr_http"`
	EndpointAddrGRPC string `json:"endpoint_addr_grpc"`
	DatabaseDSN      string `json:"database_dsn"`

	PublicKeyFile  string `json:"public_key_file"`
	PrivateKeyFile string `json:"private_key_file"`

	Issuer   string         `json:"issuer"`
	Audience string         `json:"audience"`
	Leeway   timex.Duration `json:"leeway"`

	AccessTokenTTL    timex.Duration `json:"access_token_ttl"`
	RefreshTokenTTL   timex.Duration `json:"refresh_token_ttl"`
	TwoFactorTokenTTL timex.Duration `json:"two_factor_token_ttl"`
	VerificationTTL   timex.Duration `json:"verification_ttl"`
	RecoveryTTL       timex.Duration `json:"recovery_ttl"`

	VerificationSweepSchedule string `json:"verification_sweep_schedule"`
	RecoverySweepSchedule     string `json:"recovery_sweep_schedule"`
	SweepBatchSize            int    `json:"sweep_batch_size"`

	DefaultAuthorities []string          `json:"default_authorities"`
	GRPCMethods        map[string]string `json:"grpc_methods"`

	BcryptCost int    `json:"bcrypt_cost"`
	TOTPIssuer string `json:"totp_issuer"`
	LogLevel   string `json:"log_level"`
}

func applyJson(config *Config, data []byte) error {
	c := &JsonConfig{}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	configx.SetString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	configx.SetString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	configx.SetString(&config.DatabaseDSN, c.DatabaseDSN)
	configx.SetString(&config.PublicKeyFile, c.PublicKeyFile)
	configx.SetString(&config.PrivateKeyFile, c.PrivateKeyFile)
	configx.SetString(&config.Issuer, c.Issuer)
	configx.SetString(&config.Audience, c.Audience)
	configx.SetString(&config.VerificationSweepSchedule, c.VerificationSweepSchedule)
	configx.SetString(&config.RecoverySweepSchedule, c.RecoverySweepSchedule)
	configx.SetString(&config.TOTPIssuer, c.TOTPIssuer)
	configx.SetString(&config.LogLevel, c.LogLevel)

	configx.SetDuration(&config.Leeway, c.Leeway)
	configx.SetDuration(&config.AccessTokenTTL, c.AccessTokenTTL)
	configx.SetDuration(&config.RefreshTokenTTL, c.RefreshTokenTTL)
	configx.SetDuration(&config.TwoFactorTokenTTL, c.TwoFactorTokenTTL)
	configx.SetDuration(&config.VerificationTTL, c.VerificationTTL)
	configx.SetDuration(&config.RecoveryTTL, c.RecoveryTTL)

	configx.SetPositive(&config.SweepBatchSize, c.SweepBatchSize)
	configx.SetPositive(&config.BcryptCost, c.BcryptCost)
	if c.DefaultAuthorities != nil {
		config.DefaultAuthorities = c.DefaultAuthorities
	}
	if c.GRPCMethods != nil {
		config.GRPCMethods = c.GRPCMethods
	}
	return nil
}
