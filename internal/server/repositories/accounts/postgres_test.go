package accounts

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gameauth/internal/common"
	"github.com/dmitrijs2005/gameauth/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock, db
}

var columns = []string{"id", "username", "email", "password_hash", "verified",
	"verification_code", "verification_expiry", "recovery_token", "recovery_expiry",
	"role", "two_factor_secret", "version", "created_at"}

var created = time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

func TestCreate_InsertsAccountAndAuthorities(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+accounts\s*\(username,\s*email,\s*password_hash,\s*verified,\s*role\).*RETURNING\s+id,\s*version,\s*created_at`).
		WithArgs("alice", "alice@example.com", "hash", false, "USER").
		WillReturnRows(sqlmock.NewRows([]string{"id", "version", "created_at"}).AddRow(int64(7), int64(1), created))
	for _, a := range []string{"account.read", "account.write"} {
		mock.ExpectExec(`INSERT INTO account_authorities \(account_id, authority\) VALUES \(\$1, \$2\)`).
			WithArgs(int64(7), a).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	got, err := repo.Create(context.Background(),
		&models.Account{Username: "alice", Email: "alice@example.com", PasswordHash: "hash", Role: "USER"},
		[]string{"account.read", "account.write"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.ID)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, created, got.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_Duplicate(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT\s+INTO\s+accounts`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "accounts_username_key"})
	mock.ExpectRollback()

	_, err := repo.Create(context.Background(), &models.Account{Username: "alice"}, nil)
	assert.ErrorIs(t, err, common.ErrorAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_AuthorityInsertFailsRollsBack(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT\s+INTO\s+accounts`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "version", "created_at"}).AddRow(int64(7), int64(1), created))
	mock.ExpectExec(`INSERT INTO account_authorities`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := repo.Create(context.Background(), &models.Account{Username: "alice"}, []string{"account.read"})
	require.Error(t, err)
	assert.Regexp(t, regexp.MustCompile(`db error: .*disk full`), err.Error())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByUsername_Found(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)
	expiry := created.Add(24 * time.Hour)

	mock.ExpectQuery(`(?s)^SELECT\s+id,\s*username.*FROM\s+accounts\s+WHERE\s+username\s*=\s*\$1$`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			int64(7), "alice", "alice@example.com", "hash", false,
			"123456", expiry, nil, nil,
			"USER", nil, int64(3), created))

	a, err := repo.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(7), a.ID)
	require.NotNil(t, a.VerificationCode)
	assert.Equal(t, "123456", *a.VerificationCode)
	require.NotNil(t, a.VerificationExpiry)
	assert.True(t, expiry.Equal(*a.VerificationExpiry))
	assert.Nil(t, a.RecoveryToken)
	assert.Nil(t, a.RecoveryExpiry)
	assert.Nil(t, a.TwoFactorSecret)
	assert.Equal(t, int64(3), a.Version)
}

func TestGetBy_NotFoundAndError(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	mock.ExpectQuery(`WHERE\s+id\s*=\s*\$1`).WithArgs(int64(99)).WillReturnError(sql.ErrNoRows)
	_, err := repo.GetByID(context.Background(), 99)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	mock.ExpectQuery(`WHERE\s+email\s*=\s*\$1`).WithArgs("x@example.com").WillReturnError(errors.New("conn reset"))
	_, err = repo.GetByEmail(context.Background(), "x@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error: conn reset")
}

func TestAuthorities(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	mock.ExpectQuery(`SELECT authority FROM account_authorities WHERE account_id = \$1 ORDER BY authority`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"authority"}).AddRow("account.read").AddRow("admin.sweep"))

	got, err := repo.Authorities(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"account.read", "admin.sweep"}, got)
}

func TestConditionalUpdates(t *testing.T) {
	expiry := created.Add(time.Hour)

	tests := []struct {
		name string
		set  string
		args []driver.Value
		call func(r *PostgresRepository) (int64, error)
	}{
		{
			name: "set verification code",
			set:  `verification_code = \$3, verification_expiry = \$4`,
			args: []driver.Value{"654321", expiry},
			call: func(r *PostgresRepository) (int64, error) {
				return r.SetVerificationCode(context.Background(), 7, 2, "654321", expiry)
			},
		},
		{
			name: "mark verified",
			set:  `verified = TRUE, verification_code = NULL, verification_expiry = NULL`,
			call: func(r *PostgresRepository) (int64, error) { return r.MarkVerified(context.Background(), 7, 2) },
		},
		{
			name: "clear verification",
			set:  `verification_code = NULL, verification_expiry = NULL`,
			call: func(r *PostgresRepository) (int64, error) { return r.ClearVerification(context.Background(), 7, 2) },
		},
		{
			name: "set recovery token",
			set:  `recovery_token = \$3, recovery_expiry = \$4`,
			args: []driver.Value{"abc", expiry},
			call: func(r *PostgresRepository) (int64, error) {
				return r.SetRecoveryToken(context.Background(), 7, 2, "abc", expiry)
			},
		},
		{
			name: "complete recovery",
			set:  `password_hash = \$3, recovery_token = NULL, recovery_expiry = NULL`,
			args: []driver.Value{"newhash"},
			call: func(r *PostgresRepository) (int64, error) {
				return r.CompleteRecovery(context.Background(), 7, 2, "newhash")
			},
		},
		{
			name: "clear recovery",
			set:  `recovery_token = NULL, recovery_expiry = NULL`,
			call: func(r *PostgresRepository) (int64, error) { return r.ClearRecovery(context.Background(), 7, 2) },
		},
		{
			name: "set two factor secret",
			set:  `two_factor_secret = \$3`,
			args: []driver.Value{"SECRET"},
			call: func(r *PostgresRepository) (int64, error) {
				return r.SetTwoFactorSecret(context.Background(), 7, 2, "SECRET")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := `(?s)^UPDATE accounts SET ` + tt.set + `, version = version \+ 1\s+WHERE id = \$1 AND version = \$2\s+RETURNING version$`
			args := append([]driver.Value{int64(7), int64(2)}, tt.args...)

			repo, mock, _ := newRepoWithMock(t)
			mock.ExpectQuery(q).WithArgs(args...).
				WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(3)))
			v, err := tt.call(repo)
			require.NoError(t, err)
			assert.Equal(t, int64(3), v)

			// stale version matches no row
			mock.ExpectQuery(q).WithArgs(args...).
				WillReturnRows(sqlmock.NewRows([]string{"version"}))
			_, err = tt.call(repo)
			assert.ErrorIs(t, err, common.ErrVersionConflict)

			mock.ExpectQuery(q).WillReturnError(errors.New("boom"))
			_, err = tt.call(repo)
			require.Error(t, err)
			assert.NotErrorIs(t, err, common.ErrVersionConflict)

			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestListExpiredVerifications(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)
	now := created.Add(48 * time.Hour)
	expiry := created.Add(24 * time.Hour)

	mock.ExpectQuery(`(?s)FROM accounts\s+WHERE verification_expiry IS NOT NULL AND verification_expiry < \$1 AND verified = FALSE\s+ORDER BY verification_expiry\s+LIMIT \$2`).
		WithArgs(now, 500).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(1), "a", "a@x", "h", false, "111111", expiry, nil, nil, "USER", nil, int64(2), created).
			AddRow(int64(2), "b", "b@x", "h", false, "222222", expiry, nil, nil, "USER", nil, int64(4), created))

	got, err := repo.ListExpiredVerifications(context.Background(), now, 500)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(4), got[1].Version)
}

func TestListExpiredRecoveries_DBError(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	mock.ExpectQuery(`recovery_expiry < \$1`).WillReturnError(errors.New("timeout"))
	_, err := repo.ListExpiredRecoveries(context.Background(), created, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error")
}
