package accounts

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/gameauth/internal/common"
	"github.com/dmitrijs2005/gameauth/internal/server/models"
)

// MemoryRepository keeps accounts in process memory. It backs tests and
// development runs without a database. Returned accounts are copies.
type MemoryRepository struct {
	mu          sync.Mutex
	nextID      int64
	accounts    map[int64]*models.Account
	authorities map[int64][]string
	now         func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts:    map[int64]*models.Account{},
		authorities: map[int64][]string{},
		now:         time.Now,
	}
}

func (r *MemoryRepository) Create(_ context.Context, a *models.Account, authorities []string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.accounts {
		if existing.Username == a.Username || existing.Email == a.Email {
			return nil, common.ErrorAlreadyExists
		}
	}

	r.nextID++
	a.ID = r.nextID
	a.Version = 1
	a.CreatedAt = r.now()

	r.accounts[a.ID] = a.Clone()
	r.authorities[a.ID] = slices.Clone(authorities)

	return a, nil
}

func (r *MemoryRepository) find(match func(*models.Account) bool) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.accounts {
		if match(a) {
			return a.Clone(), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *MemoryRepository) GetByID(_ context.Context, id int64) (*models.Account, error) {
	return r.find(func(a *models.Account) bool { return a.ID == id })
}

func (r *MemoryRepository) GetByUsername(_ context.Context, username string) (*models.Account, error) {
	return r.find(func(a *models.Account) bool { return a.Username == username })
}

func (r *MemoryRepository) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	return r.find(func(a *models.Account) bool { return a.Email == email })
}

func (r *MemoryRepository) Authorities(_ context.Context, id int64) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := slices.Clone(r.authorities[id])
	if result == nil {
		result = []string{}
	}
	sort.Strings(result)
	return result, nil
}

// update applies fn under the lock when version matches the stored one.
func (r *MemoryRepository) update(id, version int64, fn func(*models.Account)) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok || a.Version != version {
		return 0, common.ErrVersionConflict
	}
	fn(a)
	a.Version++
	return a.Version, nil
}

func (r *MemoryRepository) SetVerificationCode(_ context.Context, id, version int64, code string, expiry time.Time) (int64, error) {
	return r.update(id, version, func(a *models.Account) {
		a.VerificationCode = &code
		a.VerificationExpiry = &expiry
	})
}

func (r *MemoryRepository) MarkVerified(_ context.Context, id, version int64) (int64, error) {
	return r.update(id, version, func(a *models.Account) {
		a.Verified = true
		a.VerificationCode = nil
		a.VerificationExpiry = nil
	})
}

func (r *MemoryRepository) ClearVerification(_ context.Context, id, version int64) (int64, error) {
	return r.update(id, version, func(a *models.Account) {
		a.VerificationCode = nil
		a.VerificationExpiry = nil
	})
}

func (r *MemoryRepository) SetRecoveryToken(_ context.Context, id, version int64, token string, expiry time.Time) (int64, error) {
	return r.update(id, version, func(a *models.Account) {
		a.RecoveryToken = &token
		a.RecoveryExpiry = &expiry
	})
}

func (r *MemoryRepository) CompleteRecovery(_ context.Context, id, version int64, passwordHash string) (int64, error) {
	return r.update(id, version, func(a *models.Account) {
		a.PasswordHash = passwordHash
		a.RecoveryToken = nil
		a.RecoveryExpiry = nil
	})
}

func (r *MemoryRepository) ClearRecovery(_ context.Context, id, version int64) (int64, error) {
	return r.update(id, version, func(a *models.Account) {
		a.RecoveryToken = nil
		a.RecoveryExpiry = nil
	})
}

func (r *MemoryRepository) SetTwoFactorSecret(_ context.Context, id, version int64, secret string) (int64, error) {
	return r.update(id, version, func(a *models.Account) {
		a.TwoFactorSecret = &secret
	})
}

func (r *MemoryRepository) listExpired(expiry func(*models.Account) *time.Time, eligible func(*models.Account) bool, now time.Time, limit int) []*models.Account {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := []*models.Account{}
	for _, a := range r.accounts {
		if e := expiry(a); e != nil && e.Before(now) && eligible(a) {
			result = append(result, a.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return expiry(result[i]).Before(*expiry(result[j]))
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

func (r *MemoryRepository) ListExpiredVerifications(_ context.Context, now time.Time, limit int) ([]*models.Account, error) {
	return r.listExpired(
		func(a *models.Account) *time.Time { return a.VerificationExpiry },
		func(a *models.Account) bool { return !a.Verified },
		now, limit), nil
}

func (r *MemoryRepository) ListExpiredRecoveries(_ context.Context, now time.Time, limit int) ([]*models.Account, error) {
	return r.listExpired(
		func(a *models.Account) *time.Time { return a.RecoveryExpiry },
		func(*models.Account) bool { return true },
		now, limit), nil
}
