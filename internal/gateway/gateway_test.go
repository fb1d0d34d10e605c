package gateway

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gameauth/internal/authn"
	"github.com/dmitrijs2005/gameauth/internal/authz"
	"github.com/dmitrijs2005/gameauth/internal/common"
	"github.com/dmitrijs2005/gameauth/internal/logging"
	"github.com/dmitrijs2005/gameauth/internal/server/auth"
	"github.com/dmitrijs2005/gameauth/internal/server/models"
	"github.com/dmitrijs2005/gameauth/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func key() *rsa.PrivateKey {
	keyOnce.Do(func() {
		var err error
		if testKey, err = rsa.GenerateKey(rand.Reader, 2048); err != nil {
			panic(err)
		}
	})
	return testKey
}

// echoed is what the upstream saw.
type echoed struct {
	Upstream string `json:"upstream"`
	Path     string `json:"path"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func newUpstream(t *testing.T, name string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(echoed{
			Upstream: name,
			Path:     r.URL.RequestURI(),
			UserID:   r.Header.Get(common.HeaderAuthUserID),
			Username: r.Header.Get(common.HeaderAuthUsername),
			Role:     r.Header.Get(common.HeaderAuthRole),
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

type setup struct {
	gw      *Gateway
	access  string
	expired string
}

func newSetup(t *testing.T) setup {
	t.Helper()
	accounts := newUpstream(t, "accounts")
	inventory := newUpstream(t, "inventory")

	codec := token.NewCodec(token.WithIssuer("gameauth"))
	acc := &models.Account{ID: 42, Username: "zelda", Verified: true}
	access, err := auth.NewIssuer(codec, key(), auth.TTLs{}).CreateAccessToken(acc, authz.RoleUser, []string{authz.CapAccountRead})
	require.NoError(t, err)

	past := token.NewCodec(token.WithIssuer("gameauth"), token.WithClock(func() time.Time { return time.Now().Add(-time.Hour) }))
	expired, err := auth.NewIssuer(past, key(), auth.TTLs{Access: time.Minute}).CreateAccessToken(acc, authz.RoleUser, []string{authz.CapAccountRead})
	require.NoError(t, err)

	v := authn.NewAsyncVerifier(authn.NewBlockingVerifier(codec, &key().PublicKey), 2)
	gw := New(Options{
		Routes: map[string]string{
			"/api/v1":           accounts.URL,
			"/api/v1/inventory": inventory.URL + "/",
		},
		RequireAuth: []string{"/api/v1/inventory"},
	}, v, logging.Nop{})

	return setup{gw: gw, access: access, expired: expired}
}

func (s setup) do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := s.gw.App().Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthz(t *testing.T) {
	s := newSetup(t)
	resp := s.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAnonymousOnPublicPrefix_StripsSpoofedIdentity(t *testing.T) {
	s := newSetup(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts/me?x=1", nil)
	req.Header.Set(common.HeaderAuthUserID, "1")
	req.Header.Set("x-auth-role", authz.RoleAdmin)
	req.Header.Set("X-Auth-Anything", "forged")

	resp := s.do(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[echoed](t, resp)
	assert.Equal(t, "accounts", got.Upstream)
	assert.Equal(t, "/api/v1/accounts/me?x=1", got.Path)
	assert.Empty(t, got.UserID)
	assert.Empty(t, got.Role)
}

func TestValidTokenSetsIdentityHeaders(t *testing.T) {
	s := newSetup(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/inventory/items", nil)
	req.Header.Set(common.AuthorizationHeaderName, "bearer "+s.access)
	req.Header.Set(common.HeaderAuthUserID, "1")

	resp := s.do(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[echoed](t, resp)
	assert.Equal(t, "inventory", got.Upstream, "longest prefix wins")
	assert.Equal(t, "42", got.UserID)
	assert.Equal(t, "zelda", got.Username)
	assert.Equal(t, authz.RoleUser, got.Role)
}

func TestRequireAuth(t *testing.T) {
	s := newSetup(t)

	tests := []struct {
		name      string
		bearer    string
		challenge string
		message   string
	}{
		{"no token", "", `Bearer error="invalid_token"`, "authentication required"},
		{"garbage", "abc", `Bearer error="invalid_token"`, "invalid token"},
		{"expired", s.expired, `Bearer error="invalid_token", error_description="token expired"`, "token expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/inventory", nil)
			if tt.bearer != "" {
				req.Header.Set(common.AuthorizationHeaderName, common.BearerScheme+" "+tt.bearer)
			}
			resp := s.do(t, req)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, tt.challenge, resp.Header.Get("WWW-Authenticate"))
			assert.Equal(t, tt.message, decode[authz.ErrorBody](t, resp).Message)
		})
	}
}

func TestInvalidTokenOnPublicPrefixPassesAnonymously(t *testing.T) {
	s := newSetup(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/inventoryx", nil)
	req.Header.Set(common.AuthorizationHeaderName, common.BearerScheme+" "+s.expired)

	resp := s.do(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[echoed](t, resp)
	assert.Equal(t, "accounts", got.Upstream)
	assert.Empty(t, got.UserID)
}

func TestNoUpstream(t *testing.T) {
	s := newSetup(t)
	resp := s.do(t, httptest.NewRequest(http.MethodGet, "/elsewhere", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type stuckVerifier struct{}

func (stuckVerifier) AuthenticateAsync(context.Context, string) <-chan authn.Result {
	return make(chan authn.Result)
}

func TestVerificationTimeout(t *testing.T) {
	up := newUpstream(t, "svc")
	gw := New(Options{
		Routes:        map[string]string{"/": up.URL},
		RequireAuth:   []string{"/private"},
		VerifyTimeout: 50 * time.Millisecond,
	}, stuckVerifier{}, logging.Nop{})

	req := httptest.NewRequest(http.MethodGet, "/private/x", nil)
	req.Header.Set(common.AuthorizationHeaderName, "Bearer whatever")
	resp, err := gw.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/public", nil)
	req.Header.Set(common.AuthorizationHeaderName, "Bearer whatever")
	resp, err = gw.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUpstreamDown(t *testing.T) {
	up := newUpstream(t, "gone")
	url := up.URL
	up.Close()

	gw := New(Options{Routes: map[string]string{"/": url}, ProxyTimeout: time.Second}, stuckVerifier{}, logging.Nop{})
	resp, err := gw.App().Test(httptest.NewRequest(http.MethodGet, "/x", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestHasPathPrefix(t *testing.T) {
	tests := []struct {
		path, prefix string
		want         bool
	}{
		{"/shop", "/shop", true},
		{"/shop/items", "/shop", true},
		{"/shop/items", "/shop/", true},
		{"/shopping", "/shop", false},
		{"/anything", "/", true},
		{"/", "", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, hasPathPrefix(tt.path, tt.prefix), "%s vs %s", tt.path, tt.prefix)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	gw := New(Options{}, stuckVerifier{}, logging.Nop{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Run(ctx, "127.0.0.1:0") }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("gateway did not stop")
	}
}
