package jwt

import (
	"net/http"

	"mech-dispatch/internal/domain/user"
)

// AuthMiddlewareFunc guards an HTTP route: the bearer token must validate
// and its role must be in allowedRoles before next runs. Claims land in the
// request context for the handler.
func AuthMiddlewareFunc(mgr *Manager, allowedRoles ...user.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			raw, err := FromAuthorization(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			_, claims, err := mgr.ParseAndValidate(raw)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			if err := RoleAllowed(claims, allowedRoles...); err != nil {
				http.Error(w, err.Error(), http.StatusForbidden)
				return
			}

			ctx := InjectClaims(r.Context(), claims)
			next(w, r.WithContext(ctx))
		}
	}
}

// RequireClaims extracts JWT claims from the request context.
func RequireClaims(r *http.Request) *Claims {
	c, _ := FromContext(r.Context())
	return c
}
