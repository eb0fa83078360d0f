package api

import (
	"net/http"

	"github.com/devroom-sh/devroom/internal/api/handler"
	customMiddleware "github.com/devroom-sh/devroom/internal/api/middleware"
	"github.com/devroom-sh/devroom/internal/config"
	"github.com/devroom-sh/devroom/internal/repository/redis"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates and configures the HTTP router. The realtime
// handler is mounted outside the timeout group: websocket connections
// are long-lived and authenticate themselves during the handshake.
func NewRouter(cfg *config.Config, redisClient *redis.Client, realtime http.Handler) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.Server.MiddlewareTimeout))

		r.Get("/health", handler.HealthCheck)
		r.Get("/ready", handler.ReadyCheck(redisClient))
	})

	r.Handle("/ws", realtime)

	return r
}
