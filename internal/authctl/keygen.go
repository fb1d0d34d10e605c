package authctl

import (
	"fmt"
	"path/filepath"

	"github.com/dmitrijs2005/gameauth/internal/filex"
	"github.com/dmitrijs2005/gameauth/internal/keys"
	"github.com/dmitrijs2005/gameauth/internal/shared"
	"github.com/spf13/cobra"
)

const defaultKeyBits = 2048

type keygenOptions struct {
	bits    int
	outDir  string
	private string
	public  string
	force   bool
}

func newKeygenCmd() *cobra.Command {
	opts := &keygenOptions{}
	cmd := &cobra.Command{
		Use:           "keygen",
		SilenceUsage:  true,
		SilenceErrors: true,
		Short:         "Generate an RSA key pair for signing tokens",
		Long: `
Generates an RSA key pair. The private key is written as PKCS#8 with mode
0600 and belongs only on the identity authority. The public key (PKIX) is
distributed to the gateway and every resource service.

Usage:
  $ authctl keygen --out-dir /etc/gameauth
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeygen(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.bits, "bits", defaultKeyBits, "RSA modulus size")
	cmd.Flags().StringVar(&opts.outDir, "out-dir", ".", "directory for the key files")
	cmd.Flags().StringVar(&opts.private, "private", "private.pem", "private key file name")
	cmd.Flags().StringVar(&opts.public, "public", "public.pem", "public key file name")
	cmd.Flags().BoolVar(&opts.force, "force", false, "overwrite existing files")
	return cmd
}

func runKeygen(cmd *cobra.Command, opts *keygenOptions) error {
	if opts.bits < defaultKeyBits {
		return fmt.Errorf("refusing keys shorter than %d bits", defaultKeyBits)
	}

	privPath := filepath.Join(opts.outDir, opts.private)
	pubPath := filepath.Join(opts.outDir, opts.public)

	// check both first so a refused run never leaves half a pair behind
	if !opts.force {
		for _, p := range []string{privPath, pubPath} {
			exists, err := filex.Exists(p)
			if err != nil {
				return err
			}
			if exists {
				return fmt.Errorf("%s: %w (use --force to overwrite)", p, filex.ErrExists)
			}
		}
	}

	priv, pub, err := keys.Generate(opts.bits)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	defer shared.WipeByteArray(priv)

	if err := filex.EnsureDir(opts.outDir); err != nil {
		return err
	}
	if err := filex.WriteFile(privPath, priv, 0o600, opts.force); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	if err := filex.WriteFile(pubPath, pub, 0o644, opts.force); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "private key: %s\npublic key:  %s\n", privPath, pubPath)
	return nil
}
