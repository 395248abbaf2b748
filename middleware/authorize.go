package middleware

import (
	"net/http"

	authcore "github.com/hexora/authcore"
)

// Authorize gates a route on the policy enforcer: the authenticated subject
// must be allowed to perform the HTTP-method-derived action on obj. Missing
// identity is a 401; a deny is a generic 403.
func Authorize(engine *authcore.Engine, obj string) func(http.Handler) http.Handler {
	return AuthorizeAction(engine, obj, "")
}

// AuthorizeAction is Authorize with a fixed action instead of the
// method-derived one.
func AuthorizeAction(engine *authcore.Engine, obj, act string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := authcore.IdentityFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			action := act
			if action == "" {
				action = actionFromMethod(r.Method)
			}

			allowed, err := engine.IsAllowed(r.Context(), id.UserID, obj, action)
			if err != nil || !allowed {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func actionFromMethod(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		return "read"
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}
