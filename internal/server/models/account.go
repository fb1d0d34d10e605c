// Package models holds the persistent entities of the identity authority.
package models

import "time"

// Account is a registered player or operator.
//
// The verification pair (VerificationCode, VerificationExpiry) is either
// fully set or fully nil; the same holds for the recovery pair. Every
// write that touches a pair bumps Version.
type Account struct {
	ID                 int64
	Username           string
	Email              string
	PasswordHash       string
	Verified           bool
	VerificationCode   *string
	VerificationExpiry *time.Time
	RecoveryToken      *string
	RecoveryExpiry     *time.Time
	Role               string
	TwoFactorSecret    *string
	Version            int64
	CreatedAt          time.Time
}

// HasPendingVerification reports whether a verification code is outstanding.
func (a *Account) HasPendingVerification() bool {
	return a.VerificationCode != nil && a.VerificationExpiry != nil
}

func (a *Account) HasPendingRecovery() bool {
	return a.RecoveryToken != nil && a.RecoveryExpiry != nil
}

func (a *Account) TwoFactorEnabled() bool {
	return a.TwoFactorSecret != nil && *a.TwoFactorSecret != ""
}

// Clone returns a deep copy, so callers never share pointer fields.
func (a *Account) Clone() *Account {
	c := *a
	c.VerificationCode = cloneString(a.VerificationCode)
	c.VerificationExpiry = cloneTime(a.VerificationExpiry)
	c.RecoveryToken = cloneString(a.RecoveryToken)
	c.RecoveryExpiry = cloneTime(a.RecoveryExpiry)
	c.TwoFactorSecret = cloneString(a.TwoFactorSecret)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
