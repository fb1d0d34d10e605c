// Package repomanager selects the account storage backend and owns its
// lifecycle: schema migrations on startup and closing on shutdown.
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/gameauth/internal/server/repositories/accounts"
)

type RepositoryManager interface {
	RunMigrations(context.Context) error
	Accounts() accounts.Repository
	Close() error
}

// New returns a PostgreSQL-backed manager for a non-empty dsn and an
// in-memory one otherwise.
func New(ctx context.Context, dsn string) (RepositoryManager, error) {
	if dsn == "" {
		return NewMemoryRepositoryManager(), nil
	}
	return NewPostgresRepositoryManager(ctx, dsn)
}

// MemoryRepositoryManager keeps everything in process memory.
type MemoryRepositoryManager struct {
	accounts *accounts.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{accounts: accounts.NewMemoryRepository()}
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context) error { return nil }
func (m *MemoryRepositoryManager) Accounts() accounts.Repository       { return m.accounts }
func (m *MemoryRepositoryManager) Close() error                        { return nil }
