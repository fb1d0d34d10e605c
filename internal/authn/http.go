package authn

import (
	"net/http"
	"strings"

	"github.com/dmitrijs2005/gameauth/internal/common"
)

// BearerToken extracts the token from an Authorization header value. The
// scheme is matched case-insensitively.
func BearerToken(header string) (string, bool) {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, common.BearerScheme) {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

// Middleware authenticates every request and stores the Result in the
// request context. It never rejects; that is left to authorization.
func Middleware(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, _ := BearerToken(r.Header.Get(common.AuthorizationHeaderName))
			res := v.Authenticate(r.Context(), raw)
			next.ServeHTTP(w, r.WithContext(WithResult(r.Context(), res)))
		})
	}
}
