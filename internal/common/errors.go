// Package common defines shared constants and sentinel errors used across
// the identity authority, the gateway and resource services. Callers should
// use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")
	ErrVersionConflict = errors.New("version conflict")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Token verification errors. ErrTokenExpired is only returned for tokens
	// whose signature verified, so clients can be offered a refresh.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Issuance errors. These indicate a data or configuration bug, never a
	// client mistake.
	ErrNoAuthorities = errors.New("principal has no authorities")
	ErrReservedRole  = errors.New("reserved role cannot be used for access tokens")

	// Authorization errors.
	ErrInsufficientAuthority = errors.New("insufficient authority")

	// Credential lifecycle errors.
	ErrCodeMismatch          = errors.New("verification code mismatch")
	ErrCodeExpired           = errors.New("verification code expired")
	ErrRecoveryTokenMismatch = errors.New("recovery token mismatch")
	ErrRecoveryTokenExpired  = errors.New("recovery token expired")
	ErrSecondFactorMismatch  = errors.New("second factor mismatch")
)
