package authctl

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gameauth/internal/keys"
	"github.com/dmitrijs2005/gameauth/internal/token"
	"github.com/spf13/cobra"
)

type inspectOptions struct {
	publicKeyFile string
	issuer        string
	audience      string
}

func newInspectCmd() *cobra.Command {
	opts := &inspectOptions{}
	cmd := &cobra.Command{
		Use:           "inspect <token>",
		SilenceUsage:  true,
		SilenceErrors: true,
		Short:         "Verify a token against a public key and print its claims",
		Args:          cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.publicKeyFile, "public-key", "k", "public.pem", "public key PEM file")
	cmd.Flags().StringVar(&opts.issuer, "issuer", "", "expected issuer")
	cmd.Flags().StringVar(&opts.audience, "audience", "", "expected audience")
	return cmd
}

type inspection struct {
	Subject   string    `json:"sub"`
	UserID    int64     `json:"userId"`
	Role      string    `json:"role"`
	Scope     []string  `json:"scope"`
	Verified  bool      `json:"verified"`
	ID        string    `json:"jti"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

func runInspect(cmd *cobra.Command, opts *inspectOptions, raw string) error {
	pem, err := keys.ReadPEM("", opts.publicKeyFile)
	if err != nil {
		return &keys.KeyMaterialError{Key: keys.KeyPublic, Err: err}
	}
	m, err := keys.Load(pem, nil, false)
	if err != nil {
		return err
	}

	codec := token.NewCodec(token.WithIssuer(opts.issuer), token.WithAudience(opts.audience))
	claims, err := codec.Decode(raw, m.PublicKey())
	if err != nil {
		return fmt.Errorf("token rejected: %w", err)
	}

	out := inspection{
		Subject:  claims.Subject,
		UserID:   claims.UserID,
		Role:     claims.Role,
		Scope:    claims.Scope,
		Verified: claims.Verified,
		ID:       claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
