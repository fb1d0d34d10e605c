// Package config handles configuration for the identity authority, including
// defaults, JSON overlay, environment variables and command-line flags.
package config

import (
	"time"

	"github.com/dmitrijs2005/gameauth/internal/authz"
	"github.com/dmitrijs2005/gameauth/internal/configx"
	"github.com/dmitrijs2005/gameauth/internal/cryptox"
	"github.com/dmitrijs2005/gameauth/internal/server/auth"
	"github.com/dmitrijs2005/gameauth/internal/server/credentials"
	gs "github.com/dmitrijs2005/gameauth/internal/server/grpc"
	"github.com/dmitrijs2005/gameauth/internal/server/sweeper"
)

// Config holds runtime settings for the identity authority.
//
// Key material is given either inline (PEM text, typically through the
// environment) or as file paths. An empty DatabaseDSN selects the in-memory
// repository.
type Config struct {
	EndpointAddrHTTP string `env:"GAMEAUTH_HTTP_ADDR"`
	EndpointAddrGRPC string `env:"GAMEAUTH_GRPC_ADDR"`
	DatabaseDSN      string `env:"GAMEAUTH_DATABASE_DSN"`

	PublicKey      string `env:"GAMEAUTH_PUBLIC_KEY"`
	PrivateKey     string `env:"GAMEAUTH_PRIVATE_KEY"`
	PublicKeyFile  string `env:"GAMEAUTH_PUBLIC_KEY_FILE"`
	PrivateKeyFile string `env:"GAMEAUTH_PRIVATE_KEY_FILE"`

	Issuer   string        `env:"GAMEAUTH_ISSUER"`
	Audience string        `env:"GAMEAUTH_AUDIENCE"`
	Leeway   time.Duration `env:"GAMEAUTH_LEEWAY"`

	AccessTokenTTL    time.Duration `env:"GAMEAUTH_ACCESS_TOKEN_TTL"`
	RefreshTokenTTL   time.Duration `env:"GAMEAUTH_REFRESH_TOKEN_TTL"`
	TwoFactorTokenTTL time.Duration `env:"GAMEAUTH_TWO_FACTOR_TOKEN_TTL"`
	VerificationTTL   time.Duration `env:"GAMEAUTH_VERIFICATION_TTL"`
	RecoveryTTL       time.Duration `env:"GAMEAUTH_RECOVERY_TTL"`

	VerificationSweepSchedule string `env:"GAMEAUTH_VERIFICATION_SWEEP_SCHEDULE"`
	RecoverySweepSchedule     string `env:"GAMEAUTH_RECOVERY_SWEEP_SCHEDULE"`
	SweepBatchSize            int    `env:"GAMEAUTH_SWEEP_BATCH_SIZE"`

	DefaultAuthorities []string          `env:"GAMEAUTH_DEFAULT_AUTHORITIES" envSeparator:","`
	GRPCMethods        map[string]string `env:"GAMEAUTH_GRPC_METHODS"`

	BcryptCost int    `env:"GAMEAUTH_BCRYPT_COST"`
	TOTPIssuer string `env:"GAMEAUTH_TOTP_ISSUER"`
	LogLevel   string `env:"GAMEAUTH_LOG_LEVEL"`
}

// LoadDefaults populates Config with development defaults. No keys are
// defaulted: the server refuses to start without them.
func (c *Config) LoadDefaults() {
	c.EndpointAddrHTTP = ":8080"
	c.EndpointAddrGRPC = ":50051"
	c.Issuer = "gameauth"
	c.AccessTokenTTL = auth.DefaultAccessTTL
	c.RefreshTokenTTL = auth.DefaultRefreshTTL
	c.TwoFactorTokenTTL = auth.DefaultTwoFactorTTL
	c.VerificationTTL = credentials.DefaultVerificationTTL
	c.RecoveryTTL = credentials.DefaultRecoveryTTL
	c.VerificationSweepSchedule = sweeper.DefaultVerificationSchedule
	c.RecoverySweepSchedule = sweeper.DefaultRecoverySchedule
	c.SweepBatchSize = sweeper.DefaultBatchSize
	c.DefaultAuthorities = []string{authz.CapAccountRead, authz.CapAccountWrite}
	c.GRPCMethods = gs.DefaultMethods()
	c.BcryptCost = cryptox.DefaultCost
	c.TOTPIssuer = "gameauth"
	c.LogLevel = "info"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file, the environment and finally command-line flags.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := configx.Load(cfg, applyJson, parseFlags); err != nil {
		return nil, err
	}
	return cfg, nil
}
