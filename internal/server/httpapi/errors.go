package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/gameauth/internal/authn"
	"github.com/dmitrijs2005/gameauth/internal/authz"
	"github.com/dmitrijs2005/gameauth/internal/common"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorTable maps service errors to responses. First match wins.
var errorTable = []errorMapping{
	{common.ErrorValidation, http.StatusBadRequest, "validation_error"},
	{common.ErrCodeMismatch, http.StatusBadRequest, "code_mismatch"},
	{common.ErrCodeExpired, http.StatusBadRequest, "code_expired"},
	{common.ErrRecoveryTokenMismatch, http.StatusBadRequest, "recovery_token_mismatch"},
	{common.ErrRecoveryTokenExpired, http.StatusBadRequest, "recovery_token_expired"},
	{common.ErrSecondFactorMismatch, http.StatusUnauthorized, "second_factor_mismatch"},
	{common.ErrorAlreadyExists, http.StatusConflict, "already_exists"},
	{common.ErrVersionConflict, http.StatusConflict, "version_conflict"},
	{common.ErrorNotFound, http.StatusNotFound, "not_found"},
}

// writeServiceError maps err onto the JSON error envelope. Unknown errors
// become 500 without leaking their text.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, common.ErrorUnauthorized) || errors.Is(err, common.ErrInsufficientAuthority) {
		authz.Deny(w, authn.ResultFrom(r.Context()), err)
		return
	}

	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			authz.WriteError(w, m.status, m.code, err.Error())
			return
		}
	}

	h.logger.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	authz.WriteError(w, http.StatusInternalServerError, "internal_error", common.ErrorInternal.Error())
}
