package auth

import (
	"net/http"
	"strings"

	"github.com/example/comms-ninja/internal/platform/api"
	"github.com/example/comms-ninja/internal/platform/httpserver"
)

// RoleAdmin may override analysis statuses.
const RoleAdmin = "admin"

// RequireRole admits requests whose token role is one of roles, compared
// case-insensitively. It must run after RequireUser.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, _ := RoleFromContext(r.Context())
			role = strings.TrimSpace(role)
			for _, want := range roles {
				if role != "" && strings.EqualFold(role, want) {
					next.ServeHTTP(w, r)
					return
				}
			}
			api.Forbidden(w, "FORBIDDEN", "Insufficient role", httpserver.RequestIDFromContext(r.Context()))
		})
	}
}

// RequireAdmin guards operator-only routes.
var RequireAdmin = RequireRole(RoleAdmin)
