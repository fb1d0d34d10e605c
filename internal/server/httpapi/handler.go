// Package httpapi is the HTTP surface of the identity authority. Routes are
// declared in one table together with the capability each requires.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/gameauth/internal/authn"
	"github.com/dmitrijs2005/gameauth/internal/common"
	"github.com/dmitrijs2005/gameauth/internal/logging"
	"github.com/dmitrijs2005/gameauth/internal/server/auth"
	"github.com/dmitrijs2005/gameauth/internal/server/models"
	"github.com/dmitrijs2005/gameauth/internal/server/services"
	"github.com/dmitrijs2005/gameauth/internal/server/sweeper"
)

const maxBodyBytes = 1 << 20

// Accounts is the use-case surface the handlers depend on.
type Accounts interface {
	Register(ctx context.Context, req services.RegisterRequest) (*models.Account, error)
	Login(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error)
	Refresh(ctx context.Context, p *authn.Principal) (string, error)
	CompleteTwoFactor(ctx context.Context, p *authn.Principal, req services.TwoFactorRequest) (*auth.TokenPair, error)
	EnrollTwoFactor(ctx context.Context, p *authn.Principal) (*services.Enrollment, error)
	RequestVerification(ctx context.Context, p *authn.Principal) error
	VerifyAccount(ctx context.Context, req services.VerifyRequest) error
	RequestRecovery(ctx context.Context, req services.RecoveryRequest) error
	CompleteRecovery(ctx context.Context, req services.CompleteRecoveryRequest) error
	Me(ctx context.Context, p *authn.Principal) (*models.Account, []string, error)
}

type Sweeper interface {
	Sweep(ctx context.Context, kind string) (sweeper.Report, error)
}

type Handler struct {
	accounts Accounts
	sweeper  Sweeper
	logger   logging.Logger
}

func NewHandler(a Accounts, s Sweeper, l logging.Logger) *Handler {
	return &Handler{accounts: a, sweeper: s, logger: l.With("module", "httpapi")}
}

type accountResponse struct {
	ID               int64    `json:"id"`
	Username         string   `json:"username"`
	Email            string   `json:"email"`
	Role             string   `json:"role"`
	Verified         bool     `json:"verified"`
	TwoFactorEnabled bool     `json:"two_factor_enabled"`
	Authorities      []string `json:"authorities,omitempty"`
}

func toAccountResponse(a *models.Account, authorities []string) accountResponse {
	return accountResponse{
		ID:               a.ID,
		Username:         a.Username,
		Email:            a.Email,
		Role:             a.Role,
		Verified:         a.Verified,
		TwoFactorEnabled: a.TwoFactorEnabled(),
		Authorities:      authorities,
	}
}

type tokenResponse struct {
	AccessToken       string `json:"access_token,omitempty"`
	RefreshToken      string `json:"refresh_token,omitempty"`
	TokenType         string `json:"token_type,omitempty"`
	TwoFactorRequired bool   `json:"two_factor_required,omitempty"`
	TwoFactorToken    string `json:"two_factor_token,omitempty"`
}

func pairResponse(p *auth.TokenPair) tokenResponse {
	return tokenResponse{AccessToken: p.AccessToken, RefreshToken: p.RefreshToken, TokenType: common.BearerScheme}
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}
	a, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountResponse(a, nil))
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req services.LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.accounts.Login(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if res.TwoFactorToken != "" {
		writeJSON(w, http.StatusOK, tokenResponse{TwoFactorRequired: true, TwoFactorToken: res.TwoFactorToken})
		return
	}
	writeJSON(w, http.StatusOK, pairResponse(res.Tokens))
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	access, err := h.accounts.Refresh(r.Context(), authn.PrincipalFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.Header().Set(common.RefreshTokenHeaderName, access)
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: access, TokenType: common.BearerScheme})
}

func (h *Handler) completeTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req services.TwoFactorRequest
	if !h.decode(w, r, &req) {
		return
	}
	pair, err := h.accounts.CompleteTwoFactor(r.Context(), authn.PrincipalFrom(r.Context()), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pairResponse(pair))
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	var req services.VerifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.accounts.VerifyAccount(r.Context(), req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) requestVerification(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.RequestVerification(r.Context(), authn.PrincipalFrom(r.Context())); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// requestRecovery answers 202 whether or not the address is known.
func (h *Handler) requestRecovery(w http.ResponseWriter, r *http.Request) {
	var req services.RecoveryRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.accounts.RequestRecovery(r.Context(), req); err != nil {
		if errors.Is(err, common.ErrorValidation) {
			h.writeServiceError(w, r, err)
			return
		}
		h.logger.Error(r.Context(), "recovery request failed", "error", err)
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) completeRecovery(w http.ResponseWriter, r *http.Request) {
	var req services.CompleteRecoveryRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.accounts.CompleteRecovery(r.Context(), req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	a, auths, err := h.accounts.Me(r.Context(), authn.PrincipalFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(a, auths))
}

func (h *Handler) enrollTwoFactor(w http.ResponseWriter, r *http.Request) {
	enr, err := h.accounts.EnrollTwoFactor(r.Context(), authn.PrincipalFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, enr)
}

type sweepRequest struct {
	Kind string `json:"kind"`
}

// sweep runs the requested sweep, or both when kind is empty.
func (h *Handler) sweep(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}

	kinds := []string{sweeper.KindVerification, sweeper.KindRecovery}
	if req.Kind != "" {
		kinds = []string{req.Kind}
	}

	out := map[string]sweeper.Report{}
	for _, k := range kinds {
		rep, err := h.sweeper.Sweep(r.Context(), k)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		out[k] = rep
	}

	h.logger.Info(r.Context(), "manual sweep", "by", authn.PrincipalFrom(r.Context()).Username, "kinds", kinds)
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		h.writeServiceError(w, r, fmt.Errorf("%w: malformed request body", common.ErrorValidation))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
