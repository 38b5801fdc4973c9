package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

var corsMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}

// CORS restricts browser callers to the configured storefront origins. Blank
// entries are ignored and a wildcard disables credentialed requests.
func CORS(origins []string) func(http.Handler) http.Handler {
	allowed := make([]string, 0, len(origins))
	wildcard := false
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "" {
			continue
		}
		if origin == "*" {
			wildcard = true
		}
		allowed = append(allowed, origin)
	}
	if len(allowed) == 0 {
		allowed = []string{"http://localhost:3000"}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   corsMethods,
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "Retry-After"},
		AllowCredentials: !wildcard,
		MaxAge:           600,
	}).Handler
}
