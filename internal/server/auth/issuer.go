// Package auth mints the three kinds of bearer token handed out by the
// identity authority: access, refresh and second-factor tokens.
package auth

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gameauth/internal/authz"
	"github.com/dmitrijs2005/gameauth/internal/common"
	"github.com/dmitrijs2005/gameauth/internal/server/models"
	"github.com/dmitrijs2005/gameauth/internal/token"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultAccessTTL    = 15 * time.Minute
	DefaultRefreshTTL   = 72 * time.Hour
	DefaultTwoFactorTTL = 5 * time.Minute
)

// TTLs are token lifetimes. Zero fields fall back to the defaults.
type TTLs struct {
	Access    time.Duration
	Refresh   time.Duration
	TwoFactor time.Duration
}

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type Issuer struct {
	codec *token.Codec
	key   *rsa.PrivateKey
	ttl   TTLs
}

func NewIssuer(codec *token.Codec, key *rsa.PrivateKey, ttl TTLs) *Issuer {
	if ttl.Access <= 0 {
		ttl.Access = DefaultAccessTTL
	}
	if ttl.Refresh <= 0 {
		ttl.Refresh = DefaultRefreshTTL
	}
	if ttl.TwoFactor <= 0 {
		ttl.TwoFactor = DefaultTwoFactorTTL
	}
	return &Issuer{codec: codec, key: key, ttl: ttl}
}

// CreateAccessToken mints an access token carrying scopes. An empty scope
// set is a data bug and fails with common.ErrNoAuthorities; reserved roles
// fail with common.ErrReservedRole.
func (i *Issuer) CreateAccessToken(a *models.Account, role string, scopes []string) (string, error) {
	if authz.IsReservedRole(role) {
		return "", fmt.Errorf("%w: %s", common.ErrReservedRole, role)
	}
	if len(scopes) == 0 {
		return "", fmt.Errorf("%w: account %d", common.ErrNoAuthorities, a.ID)
	}
	return i.sign(a, role, scopes, i.ttl.Access)
}

// CreateRefreshToken mints a token whose only use is obtaining a new access
// token.
func (i *Issuer) CreateRefreshToken(a *models.Account) (string, error) {
	return i.sign(a, authz.RoleTokenRefresh, []string{authz.CapTokenRefresh}, i.ttl.Refresh)
}

// CreateTwoFactorToken mints the intermediate token of a login that still
// needs its second factor. It carries no scopes.
func (i *Issuer) CreateTwoFactorToken(a *models.Account) (string, error) {
	return i.sign(a, authz.RoleTwoFactorPending, []string{}, i.ttl.TwoFactor)
}

func (i *Issuer) CreateTokenPair(a *models.Account, role string, scopes []string) (*TokenPair, error) {
	access, err := i.CreateAccessToken(a, role, scopes)
	if err != nil {
		return nil, err
	}
	refresh, err := i.CreateRefreshToken(a)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (i *Issuer) sign(a *models.Account, role string, scopes []string, ttl time.Duration) (string, error) {
	now := i.codec.Now()

	claims := &token.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.Username,
			Issuer:    i.codec.Issuer(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		UserID:   a.ID,
		Role:     role,
		Scope:    scopes,
		Verified: a.Verified,
	}
	if aud := i.codec.Audience(); aud != "" {
		claims.Audience = jwt.ClaimStrings{aud}
	}

	return i.codec.Encode(claims, i.key)
}
