package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/gameauth/internal/authn"
	"github.com/dmitrijs2005/gameauth/internal/gateway"
	"github.com/dmitrijs2005/gameauth/internal/gateway/config"
	"github.com/dmitrijs2005/gameauth/internal/keys"
	"github.com/dmitrijs2005/gameauth/internal/logging"
	"github.com/dmitrijs2005/gameauth/internal/token"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := logging.NewJSON(os.Stdout, cfg.LogLevel)

	pub, err := keys.ReadPEM(cfg.PublicKey, cfg.PublicKeyFile)
	if err != nil {
		return &keys.KeyMaterialError{Key: keys.KeyPublic, Err: err}
	}
	material, err := keys.Load(pub, nil, false)
	if err != nil {
		return err
	}

	codec := token.NewCodec(
		token.WithIssuer(cfg.Issuer),
		token.WithAudience(cfg.Audience),
		token.WithLeeway(cfg.Leeway),
	)
	verifier := authn.NewAsyncVerifier(authn.NewBlockingVerifier(codec, material.PublicKey()), cfg.VerifyWorkers)

	gw := gateway.New(gateway.Options{
		Routes:        cfg.Routes,
		RequireAuth:   cfg.RequireAuth,
		VerifyTimeout: cfg.VerifyTimeout,
		ProxyTimeout:  cfg.ProxyTimeout,
	}, verifier, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	return gw.Run(ctx, cfg.ListenAddr)
}
