// Package authctl implements the operator CLI: key pair generation,
// one-shot expiry sweeps and offline token inspection.
package authctl

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "authctl",
		Short: "Operator tooling for the gameauth identity authority",
		Long: `authctl manages the key material and the credential lifecycle of a
gameauth deployment. It talks to the database and key files directly; it
never calls the running server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newKeygenCmd())
	root.AddCommand(newSweepCmd())
	root.AddCommand(newInspectCmd())
	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
