package authz

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/gameauth/internal/authn"
	"github.com/dmitrijs2005/gameauth/internal/common"
)

// ErrorBody is the JSON error envelope of every HTTP surface.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Challenge returns the WWW-Authenticate value for a failed authentication.
func Challenge(expired bool) string {
	if expired {
		return `Bearer error="invalid_token", error_description="token expired"`
	}
	return `Bearer error="invalid_token"`
}

// WriteError writes the JSON error envelope with the given status.
func WriteError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorBody{Error: code, Message: msg})
}

// Deny writes 401 with a bearer challenge for a missing or bad token, or 403
// when the principal lacks the capability.
func Deny(w http.ResponseWriter, res authn.Result, err error) {
	if errors.Is(err, common.ErrInsufficientAuthority) {
		WriteError(w, http.StatusForbidden, "forbidden", err.Error())
		return
	}

	w.Header().Set("WWW-Authenticate", Challenge(res.Expired()))
	msg := "authentication required"
	if res.Expired() {
		msg = common.ErrTokenExpired.Error()
	} else if errors.Is(res.Err, common.ErrInvalidToken) {
		msg = common.ErrInvalidToken.Error()
	}
	WriteError(w, http.StatusUnauthorized, "unauthorized", msg)
}

// Require guards a handler with capability. It expects authn.Middleware
// to have run earlier in the chain.
func Require(pol Policy, capability string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := authn.ResultFrom(r.Context())
			if err := pol.Check(res.Principal, capability); err != nil {
				Deny(w, res, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
