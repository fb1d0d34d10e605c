// Package sweeper periodically clears verification codes and recovery
// tokens whose expiry has passed.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/gameauth/internal/common"
	"github.com/dmitrijs2005/gameauth/internal/logging"
	"github.com/dmitrijs2005/gameauth/internal/server/models"
	"github.com/dmitrijs2005/gameauth/internal/server/repositories/accounts"
	"github.com/robfig/cron/v3"
)

const (
	DefaultVerificationSchedule = "@hourly"
	DefaultRecoverySchedule     = "30 * * * *"
	DefaultBatchSize            = 500
)

const (
	KindVerification = "verification"
	KindRecovery     = "recovery"
)

type Config struct {
	VerificationSchedule string
	RecoverySchedule     string
	BatchSize            int

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Report summarizes one sweep run.
type Report struct {
	Cleared int `json:"cleared"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

type Sweeper struct {
	repo   accounts.Repository
	logger logging.Logger
	now    func() time.Time
	cfg    Config

	mu   sync.Mutex
	cron *cron.Cron
}

func New(repo accounts.Repository, logger logging.Logger, cfg Config) *Sweeper {
	if cfg.VerificationSchedule == "" {
		cfg.VerificationSchedule = DefaultVerificationSchedule
	}
	if cfg.RecoverySchedule == "" {
		cfg.RecoverySchedule = DefaultRecoverySchedule
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Sweeper{
		repo:   repo,
		logger: logger.With("module", "sweeper"),
		now:    cfg.Clock,
		cfg:    cfg,
	}
}

type listFunc func(ctx context.Context, now time.Time, limit int) ([]*models.Account, error)
type clearFunc func(ctx context.Context, id, version int64) (int64, error)

// SweepVerifications clears at most one batch of expired verification codes.
func (s *Sweeper) SweepVerifications(ctx context.Context) (Report, error) {
	return s.sweep(ctx, KindVerification, s.repo.ListExpiredVerifications, s.repo.ClearVerification)
}

// SweepRecoveries clears at most one batch of expired recovery tokens.
func (s *Sweeper) SweepRecoveries(ctx context.Context) (Report, error) {
	return s.sweep(ctx, KindRecovery, s.repo.ListExpiredRecoveries, s.repo.ClearRecovery)
}

// Sweep runs the sweep named by kind.
func (s *Sweeper) Sweep(ctx context.Context, kind string) (Report, error) {
	switch kind {
	case KindVerification:
		return s.SweepVerifications(ctx)
	case KindRecovery:
		return s.SweepRecoveries(ctx)
	}
	return Report{}, fmt.Errorf("%w: unknown sweep kind %q", common.ErrorValidation, kind)
}

func (s *Sweeper) sweep(ctx context.Context, kind string, list listFunc, clearRow clearFunc) (Report, error) {
	var rep Report

	rows, err := list(ctx, s.now(), s.cfg.BatchSize)
	if err != nil {
		return rep, fmt.Errorf("list expired %s: %w", kind, err)
	}

	for _, a := range rows {
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		_, err := clearRow(ctx, a.ID, a.Version)
		switch {
		case err == nil:
			rep.Cleared++
		case errors.Is(err, common.ErrVersionConflict):
			// a consumer or a re-issue got there first
			rep.Skipped++
		default:
			rep.Failed++
			s.logger.Error(ctx, "sweep row failed", "kind", kind, "account_id", a.ID, "error", err)
		}
	}

	s.logger.Info(ctx, "sweep finished", "kind", kind,
		"cleared", rep.Cleared, "skipped", rep.Skipped, "failed", rep.Failed)
	return rep, nil
}

// Start schedules both sweeps. Runs of the same job never overlap; a tick
// that arrives while the previous run is still going is dropped.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return errors.New("sweeper already started")
	}

	cl := cronLogger{ctx: ctx, l: s.logger}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	jobs := []struct {
		schedule string
		run      func(context.Context) (Report, error)
	}{
		{s.cfg.VerificationSchedule, s.SweepVerifications},
		{s.cfg.RecoverySchedule, s.SweepRecoveries},
	}
	for _, j := range jobs {
		run := j.run
		if _, err := c.AddFunc(j.schedule, func() {
			if _, err := run(ctx); err != nil {
				s.logger.Error(ctx, "sweep failed", "error", err)
			}
		}); err != nil {
			return fmt.Errorf("schedule %q: %w", j.schedule, err)
		}
	}

	c.Start()
	s.cron = c
	s.logger.Info(ctx, "sweeper started",
		"verification_schedule", s.cfg.VerificationSchedule,
		"recovery_schedule", s.cfg.RecoverySchedule)
	return nil
}

// Stop stops scheduling and waits for running sweeps to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

// cronLogger adapts logging.Logger to cron.Logger.
type cronLogger struct {
	ctx context.Context
	l   logging.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(c.ctx, "cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(c.ctx, "cron: "+msg, append(keysAndValues, "error", err)...)
}
