package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/gameauth/internal/authn"
	"github.com/dmitrijs2005/gameauth/internal/authz"
	"github.com/dmitrijs2005/gameauth/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// APIPrefix is where the route table is mounted.
const APIPrefix = "/api/v1"

type route struct {
	method     string
	pattern    string
	capability string // empty for public routes
	handler    http.HandlerFunc
}

func (h *Handler) routes() []route {
	return []route{
		{http.MethodPost, "/accounts", "", h.register},
		{http.MethodPost, "/accounts/verify", "", h.verify},
		{http.MethodPost, "/accounts/recovery", "", h.requestRecovery},
		{http.MethodPost, "/accounts/recovery/complete", "", h.completeRecovery},
		{http.MethodPost, "/auth/login", "", h.login},

		{http.MethodPost, "/auth/refresh", authz.CapTokenRefresh, h.refresh},
		{http.MethodPost, "/auth/two-factor", authz.CapTwoFactor, h.completeTwoFactor},

		{http.MethodGet, "/accounts/me", authz.CapAccountRead, h.me},
		{http.MethodPost, "/accounts/verification", authz.CapAccountRead, h.requestVerification},
		{http.MethodPost, "/accounts/me/two-factor", authz.CapAccountWrite, h.enrollTwoFactor},

		{http.MethodPost, "/admin/sweeps", authz.CapAdminSweep, h.sweep},
	}
}

// NewRouter builds the chi router. Every request is authenticated up front;
// routes with a capability reject principals the policy does not permit.
func NewRouter(h *Handler, v authn.Verifier, pol authz.Policy) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(authn.Middleware(v))

	r.Get("/healthz", h.healthz)
	r.Route(APIPrefix, func(r chi.Router) {
		for _, rt := range h.routes() {
			var handler http.Handler = rt.handler
			if rt.capability != "" {
				handler = authz.Require(pol, rt.capability)(handler)
			}
			r.Method(rt.method, rt.pattern, handler)
		}
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		authz.WriteError(w, http.StatusNotFound, "not_found", "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		authz.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	return r
}

func requestLogger(l logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			l.Debug(r.Context(), "http request",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
			)
		})
	}
}
