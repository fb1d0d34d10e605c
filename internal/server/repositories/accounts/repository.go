// Package accounts declares the persistence contract for accounts and their
// authorities, with a PostgreSQL implementation and an in-memory one.
package accounts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gameauth/internal/server/models"
)

// Repository stores accounts. Every method that changes a row takes the
// version the caller read and returns the new version; a stale version
// yields common.ErrVersionConflict and changes nothing.
type Repository interface {
	// Create inserts the account together with its authorities and fills
	// in ID, Version and CreatedAt. Duplicate username or email yields
	// common.ErrorAlreadyExists.
	Create(ctx context.Context, a *models.Account, authorities []string) (*models.Account, error)

	// Lookups return common.ErrorNotFound for unknown keys.
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)

	// Authorities lists the capability grants of an account.
	Authorities(ctx context.Context, id int64) ([]string, error)

	SetVerificationCode(ctx context.Context, id, version int64, code string, expiry time.Time) (int64, error)
	// MarkVerified sets verified and clears the verification pair.
	MarkVerified(ctx context.Context, id, version int64) (int64, error)
	ClearVerification(ctx context.Context, id, version int64) (int64, error)
	// ListExpiredVerifications returns at most limit accounts whose
	// verification expiry is before now, oldest first.
	ListExpiredVerifications(ctx context.Context, now time.Time, limit int) ([]*models.Account, error)

	SetRecoveryToken(ctx context.Context, id, version int64, token string, expiry time.Time) (int64, error)
	// CompleteRecovery replaces the password hash and clears the recovery pair.
	CompleteRecovery(ctx context.Context, id, version int64, passwordHash string) (int64, error)
	ClearRecovery(ctx context.Context, id, version int64) (int64, error)
	ListExpiredRecoveries(ctx context.Context, now time.Time, limit int) ([]*models.Account, error)

	SetTwoFactorSecret(ctx context.Context, id, version int64, secret string) (int64, error)
}
