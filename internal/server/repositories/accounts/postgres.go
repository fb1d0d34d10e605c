package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gameauth/internal/common"
	"github.com/dmitrijs2005/gameauth/internal/dbx"
	"github.com/dmitrijs2005/gameauth/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

const accountColumns = `id, username, email, password_hash, verified,
		verification_code, verification_expiry, recovery_token, recovery_expiry,
		role, two_factor_secret, version, created_at`

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (*models.Account, error) {
	a := &models.Account{}
	err := s.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.Verified,
		&a.VerificationCode, &a.VerificationExpiry, &a.RecoveryToken, &a.RecoveryExpiry,
		&a.Role, &a.TwoFactorSecret, &a.Version, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *PostgresRepository) Create(ctx context.Context, a *models.Account, authorities []string) (*models.Account, error) {
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		query :=
			`INSERT INTO accounts (username, email, password_hash, verified, role)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id, version, created_at
			 `
		err := tx.QueryRowContext(ctx, query, a.Username, a.Email, a.PasswordHash, a.Verified, a.Role).
			Scan(&a.ID, &a.Version, &a.CreatedAt)
		if err != nil {
			return err
		}

		for _, auth := range authorities {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO account_authorities (account_id, authority) VALUES ($1, $2)`,
				a.ID, auth); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return a, nil
}

func (r *PostgresRepository) getBy(ctx context.Context, column string, value any) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + column + ` = $1`

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	return r.getBy(ctx, "id", id)
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	return r.getBy(ctx, "username", username)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.getBy(ctx, "email", email)
}

func (r *PostgresRepository) Authorities(ctx context.Context, id int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT authority FROM account_authorities WHERE account_id = $1 ORDER BY authority`, id)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := []string{}
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// update runs a conditional update. set must not reference $1 or $2, which
// are the id and the expected version.
func (r *PostgresRepository) update(ctx context.Context, set string, id, version int64, args ...any) (int64, error) {
	query := `UPDATE accounts SET ` + set + `, version = version + 1
		 WHERE id = $1 AND version = $2
		 RETURNING version`

	v, err := dbx.VersionedScan(r.db.QueryRowContext(ctx, query, append([]any{id, version}, args...)...))
	if err != nil {
		if errors.Is(err, common.ErrVersionConflict) {
			return 0, err
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

func (r *PostgresRepository) SetVerificationCode(ctx context.Context, id, version int64, code string, expiry time.Time) (int64, error) {
	return r.update(ctx, `verification_code = $3, verification_expiry = $4`, id, version, code, expiry)
}

func (r *PostgresRepository) MarkVerified(ctx context.Context, id, version int64) (int64, error) {
	return r.update(ctx, `verified = TRUE, verification_code = NULL, verification_expiry = NULL`, id, version)
}

func (r *PostgresRepository) ClearVerification(ctx context.Context, id, version int64) (int64, error) {
	return r.update(ctx, `verification_code = NULL, verification_expiry = NULL`, id, version)
}

func (r *PostgresRepository) SetRecoveryToken(ctx context.Context, id, version int64, token string, expiry time.Time) (int64, error) {
	return r.update(ctx, `recovery_token = $3, recovery_expiry = $4`, id, version, token, expiry)
}

func (r *PostgresRepository) CompleteRecovery(ctx context.Context, id, version int64, passwordHash string) (int64, error) {
	return r.update(ctx, `password_hash = $3, recovery_token = NULL, recovery_expiry = NULL`, id, version, passwordHash)
}

func (r *PostgresRepository) ClearRecovery(ctx context.Context, id, version int64) (int64, error) {
	return r.update(ctx, `recovery_token = NULL, recovery_expiry = NULL`, id, version)
}

func (r *PostgresRepository) SetTwoFactorSecret(ctx context.Context, id, version int64, secret string) (int64, error) {
	return r.update(ctx, `two_factor_secret = $3`, id, version, secret)
}

// listExpired selects rows whose column is past now. extra is ANDed into
// the WHERE clause when set.
func (r *PostgresRepository) listExpired(ctx context.Context, column, extra string, now time.Time, limit int) ([]*models.Account, error) {
	where := column + ` IS NOT NULL AND ` + column + ` < $1`
	if extra != "" {
		where += ` AND ` + extra
	}
	query := `SELECT ` + accountColumns + ` FROM accounts
		 WHERE ` + where + `
		 ORDER BY ` + column + `
		 LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := []*models.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) ListExpiredVerifications(ctx context.Context, now time.Time, limit int) ([]*models.Account, error) {
	return r.listExpired(ctx, "verification_expiry", "verified = FALSE", now, limit)
}

func (r *PostgresRepository) ListExpiredRecoveries(ctx context.Context, now time.Time, limit int) ([]*models.Account, error) {
	return r.listExpired(ctx, "recovery_expiry", "", now, limit)
}
