package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"studio/internal/http/handlers"
	httpapi "studio/internal/http/httpapi"
	"studio/internal/imagegen"
	"studio/internal/infra"
	"studio/internal/infra/credentials"
	"studio/internal/metrics"
	"studio/internal/studio"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := credentials.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open credential store")
	}
	defer closeStore()

	collector := metrics.NewCollector("studio")

	client := imagegen.NewClient(imagegen.Options{
		BaseURL:    cfg.GeminiBaseURL,
		Model:      cfg.GeminiModel,
		HTTPClient: &http.Client{Timeout: cfg.GeminiTimeout},
		Logger:     &logger,
		Observe:    collector.ObserveProvider,
	})
	pipeline := imagegen.NewPipeline(imagegen.PipelineOptions{
		Credentials: store,
		Transport:   client,
		Observer:    collector,
		Logger:      &logger,
	})
	sessions := studio.NewSessions(pipeline, studio.DefaultMaxSurfaces)
	sessions.StartJanitor(ctx, cfg.SurfaceIdleTTL, func(n int) {
		logger.Info().Int("evicted", n).Msg("closed idle surfaces")
	})

	app := handlers.NewApp(pipeline, store, sessions, collector, logger)
	app.MaxUploadBytes = cfg.MaxUploadBytes

	router := httpapi.NewRouter(ctx, app, httpapi.Options{
		AllowedOrigins:  cfg.AllowedOrigins,
		TrustProxy:      cfg.TrustProxyHeaders,
		RateLimitPerMin: cfg.RateLimitPerMin,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().
			Str("addr", server.Addr()).
			Str("model", client.Model()).
			Str("credential_store", cfg.CredentialStore).
			Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	sessions.CloseAll()
	logger.Info().Msg("server stopped")
}
