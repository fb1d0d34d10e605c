package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/dmitrijs2005/gameauth/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
//	-l string     listen address (e.g. ":8000")
//	-k string     public key PEM file
//	-w int        verification workers
//	-R string     require_auth prefixes, comma separated
//	-L string     log level
func parseFlags(config *Config) error {
	return parseFlagArgs(config, os.Args[1:])
}

func parseFlagArgs(config *Config, argv []string) error {
	args := flagx.FilterArgs(argv, []string{"-l", "-k", "-w", "-R", "-L"})

	fs := flag.NewFlagSet("gateway", flag.ContinueOnError)
	fs.StringVar(&config.ListenAddr, "l", config.ListenAddr, "listen address")
	fs.StringVar(&config.PublicKeyFile, "k", config.PublicKeyFile, "public key PEM file")
	fs.IntVar(&config.VerifyWorkers, "w", config.VerifyWorkers, "token verification workers")
	fs.Var(flagx.CSV{Values: &config.RequireAuth}, "R", "prefixes that require authentication")
	fs.StringVar(&config.LogLevel, "L", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	return nil
}
