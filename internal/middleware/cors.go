package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS allows any origin, which is what the browser client and the map
// widgets served from other hosts rely on. Preflight requests are answered
// directly with 200.
func CORS() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodDelete, http.MethodOptions, http.MethodPatch,
		},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         86400,
	})
}
