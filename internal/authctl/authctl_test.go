package authctl

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/gameauth/internal/authz"
	"github.com/dmitrijs2005/gameauth/internal/filex"
	"github.com/dmitrijs2005/gameauth/internal/keys"
	"github.com/dmitrijs2005/gameauth/internal/server/auth"
	"github.com/dmitrijs2005/gameauth/internal/server/models"
	"github.com/dmitrijs2005/gameauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gameauth/internal/server/sweeper"
	"github.com/dmitrijs2005/gameauth/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestKeygen(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "keygen", "--out-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "private.pem")

	priv, err := os.ReadFile(filepath.Join(dir, "private.pem"))
	require.NoError(t, err)
	pub, err := os.ReadFile(filepath.Join(dir, "public.pem"))
	require.NoError(t, err)

	_, err = keys.Load(pub, priv, true)
	require.NoError(t, err, "generated pair must load and match")

	info, err := os.Stat(filepath.Join(dir, "private.pem"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = execute(t, "keygen", "--out-dir", dir)
	assert.ErrorIs(t, err, filex.ErrExists)

	_, err = execute(t, "keygen", "--out-dir", dir, "--force")
	assert.NoError(t, err)
}

func TestKeygen_RejectsShortKeys(t *testing.T) {
	_, err := execute(t, "keygen", "--out-dir", t.TempDir(), "--bits", "1024")
	assert.Error(t, err)
}

func TestSweep(t *testing.T) {
	rm := repomanager.NewMemoryRepositoryManager()
	orig := openRepos
	openRepos = func(context.Context, string) (repomanager.RepositoryManager, error) { return rm, nil }
	t.Cleanup(func() { openRepos = orig })

	ctx := context.Background()
	repo := rm.Accounts()
	a, err := repo.Create(ctx, &models.Account{Username: "old", Email: "old@example.com", PasswordHash: "x", Role: authz.RoleUser}, []string{authz.CapAccountRead})
	require.NoError(t, err)
	_, err = repo.SetVerificationCode(ctx, a.ID, a.Version, "123456", time.Now().Add(-time.Minute))
	require.NoError(t, err)

	out, err := execute(t, "sweep", "--dsn", "postgres://unused", "--kind", sweeper.KindVerification)
	require.NoError(t, err)

	var got map[string]sweeper.Report
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 1, got[sweeper.KindVerification].Cleared)
	assert.NotContains(t, got, sweeper.KindRecovery)

	left, err := repo.ListExpiredVerifications(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestSweep_Errors(t *testing.T) {
	t.Setenv("GAMEAUTH_DATABASE_DSN", "")
	_, err := execute(t, "sweep")
	assert.ErrorIs(t, err, errNoDSN)

	orig := openRepos
	openRepos = func(context.Context, string) (repomanager.RepositoryManager, error) {
		return repomanager.NewMemoryRepositoryManager(), nil
	}
	t.Cleanup(func() { openRepos = orig })

	_, err = execute(t, "sweep", "--dsn", "x", "--kind", "bogus")
	assert.Error(t, err)
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "keygen", "--out-dir", dir)
	require.NoError(t, err)

	privPEM, err := os.ReadFile(filepath.Join(dir, "private.pem"))
	require.NoError(t, err)
	priv, err := keys.ParsePrivateKey(privPEM)
	require.NoError(t, err)

	codec := token.NewCodec(token.WithIssuer("gameauth"))
	tok, err := auth.NewIssuer(codec, priv, auth.TTLs{}).CreateAccessToken(
		&models.Account{ID: 5, Username: "link"}, authz.RoleUser, []string{authz.CapAccountRead})
	require.NoError(t, err)

	out, err := execute(t, "inspect", "-k", filepath.Join(dir, "public.pem"), "--issuer", "gameauth", tok)
	require.NoError(t, err)

	var got inspection
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "link", got.Subject)
	assert.Equal(t, int64(5), got.UserID)
	assert.Equal(t, []string{authz.CapAccountRead}, got.Scope)

	_, err = execute(t, "inspect", "-k", filepath.Join(dir, "public.pem"), "--issuer", "someone-else", tok)
	assert.ErrorContains(t, err, "token rejected")
}
