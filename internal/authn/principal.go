// Package authn turns a raw bearer token into an authenticated principal.
// Two verifiers implement the same Verifier interface: BlockingVerifier
// decodes on the caller's goroutine, AsyncVerifier on a bounded pool.
package authn

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"time"

	"github.com/dmitrijs2005/gameauth/internal/common"
	"github.com/dmitrijs2005/gameauth/internal/token"
)

// Principal is the identity established from a verified token.
type Principal struct {
	UserID      int64
	Username    string
	Role        string
	Authorities []string
	Verified    bool
	TokenID     string
	ExpiresAt   time.Time
}

func (p *Principal) HasAuthority(a string) bool {
	return p != nil && slices.Contains(p.Authorities, a)
}

// UserIDString formats the user id for headers and logs.
func (p *Principal) UserIDString() string {
	return strconv.FormatInt(p.UserID, 10)
}

// FromClaims builds a principal from a decoded claim set.
func FromClaims(c *token.Claims) *Principal {
	p := &Principal{
		UserID:      c.UserID,
		Username:    c.Subject,
		Role:        c.Role,
		Authorities: slices.Clone(c.Scope),
		Verified:    c.Verified,
		TokenID:     c.ID,
	}
	if c.ExpiresAt != nil {
		p.ExpiresAt = c.ExpiresAt.Time
	}
	return p
}

// Result is the outcome of authentication. A nil Principal means
// unauthenticated; Err then says why and is only used for diagnostics and
// to hint clients that a refresh may help.
type Result struct {
	Principal *Principal
	Err       error
}

func (r Result) Authenticated() bool { return r.Principal != nil }

// Expired reports whether the token was genuine but past its expiry.
func (r Result) Expired() bool { return errors.Is(r.Err, common.ErrTokenExpired) }

type ctxKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return WithResult(ctx, Result{Principal: p})
}

// WithResult stores the full authentication outcome in ctx.
func WithResult(ctx context.Context, r Result) context.Context {
	return context.WithValue(ctx, ctxKey{}, r)
}

// PrincipalFrom returns the principal stored in ctx, or nil.
func PrincipalFrom(ctx context.Context) *Principal {
	return ResultFrom(ctx).Principal
}

func ResultFrom(ctx context.Context) Result {
	r, _ := ctx.Value(ctxKey{}).(Result)
	return r
}
