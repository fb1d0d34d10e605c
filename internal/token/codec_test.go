package token

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gameauth/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	keyOnce  sync.Once
	keyA     *rsa.PrivateKey
	keyB     *rsa.PrivateKey
	baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func testKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PrivateKey) {
	t.Helper()
	keyOnce.Do(func() {
		var err error
		if keyA, err = rsa.GenerateKey(rand.Reader, 2048); err != nil {
			panic(err)
		}
		if keyB, err = rsa.GenerateKey(rand.Reader, 2048); err != nil {
			panic(err)
		}
	})
	return keyA, keyB
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func sampleClaims(ttl time.Duration) *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			Issuer:    "gameauth",
			Audience:  jwt.ClaimStrings{"games"},
			ID:        "jti-1",
			IssuedAt:  jwt.NewNumericDate(baseTime),
			ExpiresAt: jwt.NewNumericDate(baseTime.Add(ttl)),
		},
		UserID:   42,
		Role:     "USER",
		Scope:    []string{"account.read", "account.write"},
		Verified: true,
	}
}

func newTestCodec(now time.Time) *Codec {
	return NewCodec(WithIssuer("gameauth"), WithAudience("games"), WithClock(fixedClock(now)))
}

func TestCodec_RoundTrip(t *testing.T) {
	priv, _ := testKeys(t)
	c := newTestCodec(baseTime.Add(time.Minute))

	in := sampleClaims(15 * time.Minute)
	raw, err := c.Encode(in, priv)
	require.NoError(t, err)

	out, err := c.Decode(raw, &priv.PublicKey)
	require.NoError(t, err)

	assert.Equal(t, in.Subject, out.Subject)
	assert.Equal(t, in.UserID, out.UserID)
	assert.Equal(t, in.Role, out.Role)
	assert.Equal(t, in.Scope, out.Scope)
	assert.Equal(t, in.Verified, out.Verified)
	assert.Equal(t, in.ID, out.ID)
	assert.True(t, in.ExpiresAt.Equal(out.ExpiresAt.Time))
	assert.True(t, out.HasScope("account.write"))
	assert.False(t, out.HasScope("admin.sweep"))
}

// tamper rewrites the payload segment while keeping the original signature.
func tamper(t *testing.T, raw string, mutate func(map[string]any)) string {
	t.Helper()
	parts := strings.Split(raw, ".")
	require.Len(t, parts, 3)

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	m := map[string]any{}
	require.NoError(t, json.Unmarshal(payload, &m))
	mutate(m)
	b, err := json.Marshal(m)
	require.NoError(t, err)

	parts[1] = base64.RawURLEncoding.EncodeToString(b)
	return strings.Join(parts, ".")
}

func TestCodec_TamperedPayloadIsInvalid(t *testing.T) {
	priv, _ := testKeys(t)
	c := newTestCodec(baseTime.Add(time.Minute))

	raw, err := c.Encode(sampleClaims(15*time.Minute), priv)
	require.NoError(t, err)

	forged := tamper(t, raw, func(m map[string]any) { m["role"] = "ADMIN" })

	_, err = c.Decode(forged, &priv.PublicKey)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
	assert.NotErrorIs(t, err, common.ErrTokenExpired)
}

func TestCodec_ExpiredVersusForged(t *testing.T) {
	priv, _ := testKeys(t)
	c := newTestCodec(baseTime.Add(time.Hour))

	raw, err := c.Encode(sampleClaims(15*time.Minute), priv)
	require.NoError(t, err)

	_, err = c.Decode(raw, &priv.PublicKey)
	assert.True(t, errors.Is(err, common.ErrTokenExpired), "got %v", err)

	// an expired token whose signature is also broken is invalid, not expired
	forged := tamper(t, raw, func(m map[string]any) { m["userId"] = 7 })
	_, err = c.Decode(forged, &priv.PublicKey)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
	assert.NotErrorIs(t, err, common.ErrTokenExpired)
}

func TestCodec_ExpiryBoundary(t *testing.T) {
	priv, _ := testKeys(t)
	exp := baseTime.Add(15 * time.Minute)

	raw, err := newTestCodec(baseTime).Encode(sampleClaims(15*time.Minute), priv)
	require.NoError(t, err)

	_, err = newTestCodec(exp.Add(-time.Nanosecond)).Decode(raw, &priv.PublicKey)
	assert.NoError(t, err)

	_, err = newTestCodec(exp).Decode(raw, &priv.PublicKey)
	assert.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestCodec_ForgedExpiryCannotRevive(t *testing.T) {
	priv, _ := testKeys(t)
	c := newTestCodec(baseTime.Add(time.Hour))

	raw, err := c.Encode(sampleClaims(15*time.Minute), priv)
	require.NoError(t, err)

	revived := tamper(t, raw, func(m map[string]any) {
		m["exp"] = baseTime.Add(24 * time.Hour).Unix()
	})
	_, err = c.Decode(revived, &priv.PublicKey)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestCodec_Rejections(t *testing.T) {
	priv, other := testKeys(t)
	now := baseTime.Add(time.Minute)
	c := newTestCodec(now)

	good, err := c.Encode(sampleClaims(15*time.Minute), priv)
	require.NoError(t, err)

	wrongIss := sampleClaims(15 * time.Minute)
	wrongIss.Issuer = "someone-else"
	wrongIssRaw, err := c.Encode(wrongIss, priv)
	require.NoError(t, err)

	wrongAud := sampleClaims(15 * time.Minute)
	wrongAud.Audience = jwt.ClaimStrings{"billing"}
	wrongAudRaw, err := c.Encode(wrongAud, priv)
	require.NoError(t, err)

	noExp := sampleClaims(15 * time.Minute)
	noExp.ExpiresAt = nil
	noExpRaw, err := c.Encode(noExp, priv)
	require.NoError(t, err)

	hs, err := jwt.NewWithClaims(jwt.SigningMethodHS256, sampleClaims(15*time.Minute)).SignedString([]byte("shared"))
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, sampleClaims(15*time.Minute)).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name string
		raw  string
		key  *rsa.PublicKey
	}{
		{name: "wrong key", raw: good, key: &other.PublicKey},
		{name: "nil key", raw: good, key: nil},
		{name: "malformed", raw: "not.a.jwt", key: &priv.PublicKey},
		{name: "empty", raw: "", key: &priv.PublicKey},
		{name: "wrong issuer", raw: wrongIssRaw, key: &priv.PublicKey},
		{name: "wrong audience", raw: wrongAudRaw, key: &priv.PublicKey},
		{name: "missing exp", raw: noExpRaw, key: &priv.PublicKey},
		{name: "hmac alg", raw: hs, key: &priv.PublicKey},
		{name: "none alg", raw: none, key: &priv.PublicKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Decode(tt.raw, tt.key)
			assert.Nil(t, got)
			assert.ErrorIs(t, err, common.ErrInvalidToken)
		})
	}
}

func TestCodec_Leeway(t *testing.T) {
	priv, _ := testKeys(t)
	// 10s past expiry
	now := baseTime.Add(15*time.Minute + 10*time.Second)

	raw, err := newTestCodec(now).Encode(sampleClaims(15*time.Minute), priv)
	require.NoError(t, err)

	_, err = newTestCodec(now).Decode(raw, &priv.PublicKey)
	assert.ErrorIs(t, err, common.ErrTokenExpired)

	lenient := NewCodec(WithIssuer("gameauth"), WithAudience("games"), WithClock(fixedClock(now)), WithLeeway(30*time.Second))
	_, err = lenient.Decode(raw, &priv.PublicKey)
	assert.NoError(t, err)
}

func TestCodec_EncodeWithoutKey(t *testing.T) {
	_, err := NewCodec().Encode(sampleClaims(time.Minute), nil)
	assert.ErrorIs(t, err, ErrNoSigningKey)
}
