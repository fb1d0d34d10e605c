package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/gameauth/internal/configx"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaults() Config {
	var c Config
	c.LoadDefaults()
	return c
}

func TestApplyJson(t *testing.T) {
	c := defaults()
	require.NoError(t, applyJson(&c, []byte(`{
		"listen_addr": ":9000",
		"routes": {"/api/v1": "http://auth:8080", "/api/v1/inventory": "http://inventory:8081"},
		"require_auth": ["/api/v1/inventory"],
		"verify_workers": 4,
		"verify_timeout": "500ms"
	}`)))

	want := defaults()
	want.ListenAddr = ":9000"
	want.Routes = map[string]string{"/api/v1": "http://auth:8080", "/api/v1/inventory": "http://inventory:8081"}
	want.RequireAuth = []string{"/api/v1/inventory"}
	want.VerifyWorkers = 4
	want.VerifyTimeout = 500 * time.Millisecond

	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestParseEnv(t *testing.T) {
	t.Setenv("GAMEAUTH_GATEWAY_ROUTES", "/api/v1=http://auth:8080,/shop=http://shop:9000")
	t.Setenv("GAMEAUTH_GATEWAY_REQUIRE_AUTH", "/shop")
	t.Setenv("GAMEAUTH_GATEWAY_VERIFY_WORKERS", "8")

	c := defaults()
	require.NoError(t, configx.ParseEnv(&c))

	want := defaults()
	want.Routes = map[string]string{"/api/v1": "http://auth:8080", "/shop": "http://shop:9000"}
	want.RequireAuth = []string{"/shop"}
	want.VerifyWorkers = 8

	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFlagArgs(t *testing.T) {
	c := defaults()
	require.NoError(t, parseFlagArgs(&c, []string{"-l", ":7000", "-R", "/a,/b", "-w", "2", "-a", "ignored"}))

	assert.Equal(t, ":7000", c.ListenAddr)
	assert.Equal(t, []string{"/a", "/b"}, c.RequireAuth)
	assert.Equal(t, 2, c.VerifyWorkers)

	assert.Error(t, parseFlagArgs(&c, []string{"-w", "many"}))
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"listen_addr": ":1234", "log_level": "debug"}`), 0o600))

	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"gateway", "-config", path, "-L", "warn"}

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":1234", c.ListenAddr)
	assert.Equal(t, "warn", c.LogLevel)
}
