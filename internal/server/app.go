// Package server wires the identity authority: key material, storage,
// services, the HTTP API, the gRPC guard and the expiry sweeper.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/gameauth/internal/authn"
	"github.com/dmitrijs2005/gameauth/internal/authz"
	"github.com/dmitrijs2005/gameauth/internal/cryptox"
	"github.com/dmitrijs2005/gameauth/internal/keys"
	"github.com/dmitrijs2005/gameauth/internal/logging"
	"github.com/dmitrijs2005/gameauth/internal/server/auth"
	"github.com/dmitrijs2005/gameauth/internal/server/config"
	"github.com/dmitrijs2005/gameauth/internal/server/credentials"
	"github.com/dmitrijs2005/gameauth/internal/server/httpapi"
	"github.com/dmitrijs2005/gameauth/internal/server/notify"
	"github.com/dmitrijs2005/gameauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gameauth/internal/server/services"
	"github.com/dmitrijs2005/gameauth/internal/server/sweeper"
	"github.com/dmitrijs2005/gameauth/internal/token"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/gameauth/internal/server/grpc"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	repos   repomanager.RepositoryManager
	http    *httpapi.Server
	grpc    *gs.GRPCServer
	sweeper *sweeper.Sweeper
}

// LoadKeys resolves the configured key pair. Both halves are required.
func LoadKeys(c *config.Config) (*keys.Material, error) {
	pub, err := keys.ReadPEM(c.PublicKey, c.PublicKeyFile)
	if err != nil {
		return nil, &keys.KeyMaterialError{Key: keys.KeyPublic, Err: err}
	}
	priv, err := keys.ReadPEM(c.PrivateKey, c.PrivateKeyFile)
	if err != nil {
		return nil, &keys.KeyMaterialError{Key: keys.KeyPrivate, Err: err}
	}
	return keys.Load(pub, priv, true)
}

func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	material, err := LoadKeys(c)
	if err != nil {
		return nil, fmt.Errorf("key material: %w", err)
	}

	rm, err := repomanager.New(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := rm.RunMigrations(ctx); err != nil {
		_ = rm.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	codec := token.NewCodec(
		token.WithIssuer(c.Issuer),
		token.WithAudience(c.Audience),
		token.WithLeeway(c.Leeway),
	)
	issuer := auth.NewIssuer(codec, material.PrivateKey(), auth.TTLs{
		Access:    c.AccessTokenTTL,
		Refresh:   c.RefreshTokenTTL,
		TwoFactor: c.TwoFactorTokenTTL,
	})
	verifier := authn.NewBlockingVerifier(codec, material.PublicKey())

	creds := credentials.NewService(rm.Accounts(),
		credentials.WithLogger(logger),
		credentials.WithVerificationTTL(c.VerificationTTL),
		credentials.WithRecoveryTTL(c.RecoveryTTL),
	)
	as := services.NewAuthService(
		rm.Accounts(),
		creds,
		issuer,
		cryptox.NewHasher(c.BcryptCost),
		notify.NewLogNotifier(logger),
		logger,
		services.AuthConfig{DefaultAuthorities: c.DefaultAuthorities, TOTPIssuer: c.TOTPIssuer},
	)
	sw := sweeper.New(rm.Accounts(), logger, sweeper.Config{
		VerificationSchedule: c.VerificationSweepSchedule,
		RecoverySchedule:     c.RecoverySweepSchedule,
		BatchSize:            c.SweepBatchSize,
	})

	router := httpapi.NewRouter(httpapi.NewHandler(as, sw, logger), verifier, authz.Policy{})

	return &App{
		config:  c,
		logger:  logger,
		repos:   rm,
		http:    httpapi.NewServer(c.EndpointAddrHTTP, router, logger),
		grpc:    gs.NewGRPCServer(c.EndpointAddrGRPC, logger, verifier, authz.MethodTable(c.GRPCMethods)),
		sweeper: sw,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until a signal arrives or one of the components fails.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return app.http.Run(gctx) })
	g.Go(func() error { return app.grpc.Run(gctx) })
	g.Go(func() error {
		if err := app.sweeper.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		app.sweeper.Stop()
		return nil
	})

	err := g.Wait()
	if cerr := app.repos.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	app.logger.Info(context.Background(), "App stopped")
	return err
}
