// Package credentials manages the short-lived secrets bound to an account:
// e-mail verification codes and password recovery tokens. Each secret is
// stored with its expiry and consumed at most once.
package credentials

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/gameauth/internal/common"
	"github.com/dmitrijs2005/gameauth/internal/cryptox"
	"github.com/dmitrijs2005/gameauth/internal/logging"
	"github.com/dmitrijs2005/gameauth/internal/server/models"
	"github.com/dmitrijs2005/gameauth/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/gameauth/internal/shared"
)

const (
	DefaultVerificationTTL = 24 * time.Hour
	DefaultRecoveryTTL     = 2 * time.Hour

	verificationCodeDigits = 6
	recoveryTokenBytes     = 32
)

type Service struct {
	repo            accounts.Repository
	logger          logging.Logger
	now             func() time.Time
	verificationTTL time.Duration
	recoveryTTL     time.Duration
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithLogger(l logging.Logger) Option { return func(s *Service) { s.logger = l } }

func WithVerificationTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.verificationTTL = d
		}
	}
}

func WithRecoveryTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.recoveryTTL = d
		}
	}
}

func NewService(repo accounts.Repository, opts ...Option) *Service {
	s := &Service{
		repo:            repo,
		logger:          logging.Nop{},
		now:             time.Now,
		verificationTTL: DefaultVerificationTTL,
		recoveryTTL:     DefaultRecoveryTTL,
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("module", "credentials")
	return s
}

// IssueVerificationCode stores a fresh six-digit code on the account,
// replacing any outstanding one, and returns it for delivery.
func (s *Service) IssueVerificationCode(ctx context.Context, a *models.Account) (string, error) {
	code, err := shared.MakeRandDigits(verificationCodeDigits)
	if err != nil {
		return "", err
	}
	expiry := s.now().Add(s.verificationTTL)

	err = s.write(ctx, a,
		func(*models.Account) error { return nil },
		func(cur *models.Account) (int64, error) {
			return s.repo.SetVerificationCode(ctx, cur.ID, cur.Version, code, expiry)
		},
		func(a *models.Account) {
			a.VerificationCode = &code
			a.VerificationExpiry = &expiry
		})
	if err != nil {
		return "", err
	}
	return code, nil
}

// ConsumeVerificationCode marks the account verified when supplied matches
// the outstanding code and the code has not expired. A missing code counts
// as a mismatch.
func (s *Service) ConsumeVerificationCode(ctx context.Context, a *models.Account, supplied string) error {
	return s.write(ctx, a,
		func(cur *models.Account) error {
			return checkSecret(cur.VerificationCode, cur.VerificationExpiry, supplied, s.now(),
				common.ErrCodeMismatch, common.ErrCodeExpired)
		},
		func(cur *models.Account) (int64, error) {
			return s.repo.MarkVerified(ctx, cur.ID, cur.Version)
		},
		func(a *models.Account) {
			a.Verified = true
			a.VerificationCode = nil
			a.VerificationExpiry = nil
		})
}

// IssueRecoveryToken stores a fresh 64-hex-character token on the account.
func (s *Service) IssueRecoveryToken(ctx context.Context, a *models.Account) (string, error) {
	tok, err := shared.MakeRandHexString(recoveryTokenBytes)
	if err != nil {
		return "", err
	}
	expiry := s.now().Add(s.recoveryTTL)

	err = s.write(ctx, a,
		func(*models.Account) error { return nil },
		func(cur *models.Account) (int64, error) {
			return s.repo.SetRecoveryToken(ctx, cur.ID, cur.Version, tok, expiry)
		},
		func(a *models.Account) {
			a.RecoveryToken = &tok
			a.RecoveryExpiry = &expiry
		})
	if err != nil {
		return "", err
	}
	return tok, nil
}

// ConsumeRecoveryToken replaces the password hash when supplied matches
// the outstanding recovery token and it has not expired.
func (s *Service) ConsumeRecoveryToken(ctx context.Context, a *models.Account, supplied, newPasswordHash string) error {
	return s.write(ctx, a,
		func(cur *models.Account) error {
			return checkSecret(cur.RecoveryToken, cur.RecoveryExpiry, supplied, s.now(),
				common.ErrRecoveryTokenMismatch, common.ErrRecoveryTokenExpired)
		},
		func(cur *models.Account) (int64, error) {
			return s.repo.CompleteRecovery(ctx, cur.ID, cur.Version, newPasswordHash)
		},
		func(a *models.Account) {
			a.PasswordHash = newPasswordHash
			a.RecoveryToken = nil
			a.RecoveryExpiry = nil
		})
}

// write checks and applies a conditional update. When the row moved on
// since a was read, it re-reads once and evaluates check again, so a pair
// cleared by a concurrent sweep surfaces as mismatch or expiry. On success
// a reflects the stored row.
func (s *Service) write(
	ctx context.Context,
	a *models.Account,
	check func(cur *models.Account) error,
	update func(cur *models.Account) (int64, error),
	apply func(a *models.Account),
) error {
	cur := a.Clone()

	for attempt := 0; ; attempt++ {
		if err := check(cur); err != nil {
			return err
		}

		v, err := update(cur)
		if err == nil {
			*a = *cur
			apply(a)
			a.Version = v
			return nil
		}
		if !errors.Is(err, common.ErrVersionConflict) || attempt > 0 {
			return err
		}

		s.logger.Debug(ctx, "version conflict, re-reading account", "account_id", a.ID, "version", cur.Version)

		if cur, err = s.repo.GetByID(ctx, a.ID); err != nil {
			return err
		}
	}
}

func checkSecret(stored *string, expiry *time.Time, supplied string, now time.Time, mismatch, expired error) error {
	if stored == nil || expiry == nil || !cryptox.EqualSecrets(*stored, supplied) {
		return mismatch
	}
	if now.After(*expiry) {
		return expired
	}
	return nil
}
