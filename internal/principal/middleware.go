package principal

import (
	"net/http"
	"strings"

	"github.com/wisbric/admissiond/internal/httpserver"
)

// Middleware resolves the Authorization bearer token into a Principal using
// secret, and rejects the request with 401 UNAUTHORIZED if absent or
// invalid. Unlike the worker's local-dev signature bypass (§4.7 step 1),
// the admission API has no local-dev carve-out: callers exercise it with a
// token minted by Sign against the same secret.
func Middleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				httpserver.RespondError(w, httpserver.CodeUnauthorized, "missing or malformed Authorization header")
				return
			}

			p, err := Verify(secret, token)
			if err != nil {
				httpserver.RespondError(w, httpserver.CodeUnauthorized, "invalid authentication token")
				return
			}

			ctx := WithPrincipal(r.Context(), p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
