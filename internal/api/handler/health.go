package handler

import (
	"net/http"

	"github.com/devroom-sh/devroom/internal/api/response"
	"github.com/devroom-sh/devroom/internal/repository/redis"
)

// HealthCheck returns a simple health check response
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{
		"status": "ok",
	})
}

// ReadyCheck returns readiness status including redis connectivity
func ReadyCheck(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			if err := redisClient.Ping(r.Context()); err != nil {
				response.Error(w, http.StatusServiceUnavailable, "redis not ready")
				return
			}
		}

		response.OK(w, map[string]string{
			"status": "ready",
		})
	}
}
