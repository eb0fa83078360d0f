package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/devroom-sh/devroom/internal/api"
	"github.com/devroom-sh/devroom/internal/assistant"
	"github.com/devroom-sh/devroom/internal/assistant/gemini"
	"github.com/devroom-sh/devroom/internal/config"
	"github.com/devroom-sh/devroom/internal/domain"
	"github.com/devroom-sh/devroom/internal/project"
	"github.com/devroom-sh/devroom/internal/realtime"
	"github.com/devroom-sh/devroom/internal/repository/redis"
	"github.com/devroom-sh/devroom/internal/sandbox"
	"github.com/devroom-sh/devroom/internal/security"
	"github.com/devroom-sh/devroom/internal/workspace"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file - try multiple locations
	for _, p := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	// Setup logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Msg("Starting collaborative session engine")

	// Initialize Redis
	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	revocation := redis.NewRevocationList(redisClient)
	rateLimiter := redis.NewRateLimiter(
		redisClient,
		cfg.Security.RateLimit.RequestsPerMinute,
		cfg.Security.RateLimit.Burst,
	)

	// Project directory (collaborator service) and workspace store
	directory := project.NewHTTPDirectory(cfg.Collaborator)
	store := workspace.NewStore(directory, cfg.Workspace.Debounce, log.Logger)

	// Security
	jwtManager := security.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)

	// Realtime rooms and admission
	registry := realtime.NewRegistry(log.Logger)
	gateway := realtime.NewGateway(
		jwtManager,
		revocation,
		rateLimiter,
		directory,
		store,
		registry,
		log.Logger,
	)

	// Committed trees reach every room member, the editor included.
	store.OnCommit(func(projectID string, tree domain.FileTree) {
		payload, err := realtime.EncodeFrame(realtime.FrameFileTree, realtime.FileTreePayload{FileTree: tree})
		if err != nil {
			log.Error().Err(err).Str("project", projectID).Msg("Failed to encode file tree")
			return
		}
		registry.Broadcast(projectID, payload)
	})

	// Assistant
	interpreter := assistant.NewInterpreter(store, log.Logger)
	provider := gemini.NewProvider(cfg.Assistant.Gemini)
	responder := assistant.NewResponder(provider, interpreter, cfg.Assistant.Mention, log.Logger)
	if !responder.Enabled() {
		log.Warn().Msg("Gemini API key is empty, assistant replies disabled")
	}

	// Realtime transport
	wsHandler := realtime.NewHandler(
		gateway,
		registry,
		store,
		responder,
		cfg.Sandbox,
		func() (sandbox.Runner, error) { return sandbox.NewExecRunner(cfg.Sandbox) },
		log.Logger,
	)

	// Initialize router
	router := api.NewRouter(cfg, redisClient, wsHandler)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Close rooms first so members stop receiving, then kill sandboxes.
	registry.Close()
	wsHandler.Close(ctx)

	log.Info().Msg("Server stopped")
}
