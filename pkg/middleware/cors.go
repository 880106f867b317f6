package middleware

import (
	"net/http"

	"github.com/rs/cors"

	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/config"
)

// CORS wraps the JSON API so browser clients on other origins can call it.
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         cfg.MaxAge,
	})
	return c.Handler
}
