package middleware

import (
	"net/http"

	authcore "github.com/hexora/authcore"
)

// RequireCSRF rejects mutating requests from cookie-authenticated principals
// whose CSRF header does not match the session's stored token. Safe verbs
// pass through, as do Bearer-authenticated requests: a token in a header
// cannot be sent by a cross-site form.
func RequireCSRF(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isMutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			id, ok := authcore.IdentityFromContext(r.Context())
			if !ok || id.SessionID == "" {
				next.ServeHTTP(w, r)
				return
			}

			if engine == nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			header := r.Header.Get(engine.Sessions().CsrfHeader())
			if err := engine.ValidateCSRF(r.Context(), id.SessionID, header); err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
