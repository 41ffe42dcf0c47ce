package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORSHandler builds the CORS policy for API clients hosted elsewhere. The
// bundled UI is same-origin and never needs it. The API carries no cookies or
// auth headers, so credentials are never allowed.
func CORSHandler(allowedOrigins []string) cors.Options {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	return cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		// multipart uploads and JSON bodies
		AllowedHeaders: []string{"Accept", "Content-Type"},
		// the upload rate limiter answers 429 with Retry-After
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         600,
	}
}
