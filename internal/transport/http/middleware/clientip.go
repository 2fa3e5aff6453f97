package middleware

import (
	"net/http"

	"github.com/njala-api/internal/application/audit"
)

// ClientIP attaches the caller's address to the request context for audit entries.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(audit.WithIP(r.Context(), realIP(r))))
	})
}
