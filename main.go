package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"imagestudio/cache"
	"imagestudio/config"
	"imagestudio/logger"
	"imagestudio/middleware"
	"imagestudio/studio"
)

func main() {
	config.LoadConfig()
	cfg := config.AppConfig

	if err := logger.Init(logger.FromConfig(cfg.Logging)); err != nil {
		log.Fatal().Err(err).Msg("could not initialise logger")
	}
	middleware.InitSessionStore()

	deps := studio.Deps{}
	if cfg.Cache.RedisURL != "" {
		rc, err := cache.NewRedisCache(cfg.Cache.RedisURL, cfg.Cache.TTL.Std())
		if err != nil {
			log.Warn().Err(err).Msg("caption cache disabled")
		} else {
			defer rc.Close()
			deps.Cache = rc
			log.Info().Dur("ttl", cfg.Cache.TTL.Std()).Msg("caption cache enabled")
		}
	}

	if cfg.APIKeys.HuggingFace == "" {
		log.Info().Msg("HUGGINGFACE_API_TOKEN is not set; every request must carry its own token")
	}
	if cfg.APIKeys.ImageAPI == "" && cfg.Settings.WebPassword == "" {
		log.Warn().Msg("neither IMAGEAPI_API_KEY nor WEB_PASSWORD is set; the API is open")
	}

	srv := &server{cfg: cfg, studio: studio.New(cfg, deps)}
	httpServer := &http.Server{
		Addr:              cfg.Settings.ListenAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("starting server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("could not start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	// Generation requests may run for minutes; give them a bounded grace period.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
