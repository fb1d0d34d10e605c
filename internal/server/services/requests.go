package services

import (
	"fmt"
	"regexp"

	"github.com/dmitrijs2005/gameauth/internal/common"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// bcrypt ignores input past 72 bytes, so longer passwords are rejected.
const (
	minPasswordLen = 8
	maxPasswordLen = 72
)

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(3, 32), validation.Match(usernamePattern)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(minPasswordLen, maxPasswordLen)),
	)
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

type VerifyRequest struct {
	Username string `json:"username"`
	Code     string `json:"code"`
}

func (r VerifyRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required),
		validation.Field(&r.Code, validation.Required, validation.Length(6, 6), is.Digit),
	)
}

type RecoveryRequest struct {
	Email string `json:"email"`
}

func (r RecoveryRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

type CompleteRecoveryRequest struct {
	Email    string `json:"email"`
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (r CompleteRecoveryRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Token, validation.Required, validation.Length(64, 64), is.Hexadecimal),
		validation.Field(&r.Password, validation.Required, validation.Length(minPasswordLen, maxPasswordLen)),
	)
}

type TwoFactorRequest struct {
	Code string `json:"code"`
}

func (r TwoFactorRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Code, validation.Required, validation.Length(6, 6), is.Digit),
	)
}

type validatable interface {
	Validate() error
}

// validate wraps ozzo errors so callers can match common.ErrorValidation.
func validate(v validatable) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrorValidation, err)
	}
	return nil
}
