// Package notify hands one-time secrets to the delivery channel (e-mail,
// push). Delivery itself is owned by an external service; the log notifier
// stands in for it in development.
package notify

import (
	"context"

	"github.com/dmitrijs2005/gameauth/internal/logging"
	"github.com/dmitrijs2005/gameauth/internal/server/models"
)

type Notifier interface {
	VerificationCode(ctx context.Context, a *models.Account, code string) error
	RecoveryToken(ctx context.Context, a *models.Account, token string) error
}

// LogNotifier writes secrets to the debug log instead of sending them.
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(l logging.Logger) *LogNotifier {
	return &LogNotifier{logger: l.With("module", "notify")}
}

func (n *LogNotifier) VerificationCode(ctx context.Context, a *models.Account, code string) error {
	n.logger.Debug(ctx, "verification code issued", "account_id", a.ID, "email", a.Email, "code", code)
	return nil
}

func (n *LogNotifier) RecoveryToken(ctx context.Context, a *models.Account, token string) error {
	n.logger.Debug(ctx, "recovery token issued", "account_id", a.ID, "email", a.Email, "token", token)
	return nil
}
