package middleware

import (
	"net/http"
	"strings"

	authcore "github.com/hexora/authcore"
	"github.com/hexora/authcore/token"
)

// Authenticate resolves the request principal and attaches it to the
// context. A Bearer access token is tried first; absent that, the session
// cookie. Requests that authenticate neither way get a generic 401.
func Authenticate(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if bearer, ok := bearerToken(r.Header.Get("Authorization")); ok {
				claims, err := engine.Tokens().Parse(bearer, token.TypeAccess)
				if err != nil {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				ctx := authcore.WithIdentity(r.Context(), &authcore.Identity{UserID: claims.UID})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			cookie, err := r.Cookie(engine.Sessions().CookieName())
			if err != nil || cookie.Value == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			id, err := engine.ResolveSession(r.Context(), cookie.Value)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := authcore.WithIdentity(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	tok := value[len(bearer):]
	if tok == "" {
		return "", false
	}

	return tok, true
}
