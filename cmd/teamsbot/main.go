package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cobra-poc/messaging-bridge/internal/cobraapi"
	"github.com/cobra-poc/messaging-bridge/internal/config"
	"github.com/cobra-poc/messaging-bridge/internal/convref"
	"github.com/cobra-poc/messaging-bridge/internal/middleware"
	"github.com/cobra-poc/messaging-bridge/internal/redis"
	"github.com/cobra-poc/messaging-bridge/internal/retry"
	"github.com/cobra-poc/messaging-bridge/internal/teamsbot"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.LoadBot()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)
	cfg.Validate()

	var store convref.Store
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		store = convref.NewRedisStore(redisClient)
		log.Info().Msg("conversation references stored in redis")
	} else {
		store = convref.NewMemoryStore()
	}

	policy := retry.New(cfg.Retry.Options())
	outboundClient := &http.Client{Timeout: config.OutboundHTTPTimeout}

	api := cobraapi.NewClient(cfg.CobraAPIBaseURL, cfg.CobraAPIKey, outboundClient, policy)
	bot := teamsbot.NewBot(store, api, cfg.BotAppID)
	sender := teamsbot.NewProactiveSender(store, api, outboundClient, policy, cfg.BotAccessToken)

	srv := teamsbot.NewServer(bot, sender, store, teamsbot.ServerOptions{
		InternalAPIKey:    cfg.InternalAPIKey,
		ActivityRateLimit: cfg.ActivityRateLimitPerMin,
	})

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(middleware.NewBodyLimitMiddleware(0).Handler)

	r.Mount("/", srv.Routes())

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     r,
		ReadTimeout: config.ServerReadTimeout,
		IdleTimeout: config.ServerIdleTimeout,
	}

	go func() {
		log.Info().
			Str("addr", cfg.Addr()).
			Str("botAppId", cfg.BotAppID).
			Bool("bridgeConfigured", api.Configured()).
			Msg("starting teams bot")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down teams bot")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	bot.Wait()
	log.Info().Msg("teams bot stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
