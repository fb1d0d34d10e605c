package token

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gameauth/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

var ErrNoSigningKey = errors.New("no signing key")

// Codec signs claim sets with RS256 and verifies them. The zero value is not
// usable; construct with NewCodec.
type Codec struct {
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
}

type Option func(*Codec)

// WithIssuer makes Decode require the given iss claim.
func WithIssuer(iss string) Option { return func(c *Codec) { c.issuer = iss } }

// WithAudience makes Decode require the given aud claim.
func WithAudience(aud string) Option { return func(c *Codec) { c.audience = aud } }

// WithLeeway tolerates clock skew between issuer and verifier.
func WithLeeway(d time.Duration) Option { return func(c *Codec) { c.leeway = d } }

func WithClock(now func() time.Time) Option { return func(c *Codec) { c.now = now } }

func NewCodec(opts ...Option) *Codec {
	c := &Codec{now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Codec) Issuer() string   { return c.issuer }
func (c *Codec) Audience() string { return c.audience }
func (c *Codec) Now() time.Time   { return c.now() }

// Encode signs claims with key.
func (c *Codec) Encode(claims *Claims, key *rsa.PrivateKey) (string, error) {
	if key == nil {
		return "", ErrNoSigningKey
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
}

// Decode verifies the signature of tokenString and then its time and
// identity claims. It returns common.ErrTokenExpired only for a correctly
// signed token whose exp has been reached (a token is usable while now is
// strictly before exp); every other failure wraps common.ErrInvalidToken.
func (c *Codec) Decode(tokenString string, key *rsa.PublicKey) (*Claims, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: no verification key", common.ErrInvalidToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	}
	if c.leeway > 0 {
		opts = append(opts, jwt.WithLeeway(c.leeway))
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	if c.audience != "" {
		opts = append(opts, jwt.WithAudience(c.audience))
	}

	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, opts...)
	if err != nil {
		if isOnlyExpired(err) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if !tok.Valid {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}

// isOnlyExpired is true when expiry is the sole reason for rejection. The
// parser verifies the signature before any claim, so a signature failure
// never reaches claim validation.
func isOnlyExpired(err error) bool {
	if !errors.Is(err, jwt.ErrTokenExpired) {
		return false
	}
	for _, other := range []error{
		jwt.ErrTokenSignatureInvalid,
		jwt.ErrTokenMalformed,
		jwt.ErrTokenInvalidIssuer,
		jwt.ErrTokenInvalidAudience,
		jwt.ErrTokenNotValidYet,
		jwt.ErrTokenUsedBeforeIssued,
	} {
		if errors.Is(err, other) {
			return false
		}
	}
	return true
}
