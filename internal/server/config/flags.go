package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/dmitrijs2005/gameauth/internal/flagx"
)

var serverFlags = []string{"-a", "-g", "-d", "-k", "-K", "-i", "-t", "-r", "-s", "-l"}

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string     HTTP bind address (e.g. ":8080")
//	-g string     gRPC bind address (e.g. ":50051")
//	-d string     PostgreSQL DSN; empty selects the in-memory store
//	-k string     public key PEM file
//	-K string     private key PEM file
//	-i string     token issuer
//	-t duration   access token lifetime
//	-r duration   refresh token lifetime
//	-s string     default authorities, comma separated
//	-l string     log level
func parseFlags(config *Config) error {
	return parseFlagArgs(config, os.Args[1:])
}

func parseFlagArgs(config *Config, argv []string) error {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(argv, serverFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "gRPC address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.PublicKeyFile, "k", config.PublicKeyFile, "public key PEM file")
	fs.StringVar(&config.PrivateKeyFile, "K", config.PrivateKeyFile, "private key PEM file")
	fs.StringVar(&config.Issuer, "i", config.Issuer, "token issuer")
	fs.DurationVar(&config.AccessTokenTTL, "t", config.AccessTokenTTL, "access token lifetime")
	fs.DurationVar(&config.RefreshTokenTTL, "r", config.RefreshTokenTTL, "refresh token lifetime")
	fs.Var(flagx.CSV{Values: &config.DefaultAuthorities}, "s", "default authorities of new accounts")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	return nil
}
