package main

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cobra-poc/messaging-bridge/internal/config"
	"github.com/cobra-poc/messaging-bridge/internal/database"
	"github.com/cobra-poc/messaging-bridge/internal/handler"
	"github.com/cobra-poc/messaging-bridge/internal/jobs"
	"github.com/cobra-poc/messaging-bridge/internal/middleware"
	"github.com/cobra-poc/messaging-bridge/internal/model"
	"github.com/cobra-poc/messaging-bridge/internal/platform"
	"github.com/cobra-poc/messaging-bridge/internal/redis"
	"github.com/cobra-poc/messaging-bridge/internal/repository"
	"github.com/cobra-poc/messaging-bridge/internal/retry"
	"github.com/cobra-poc/messaging-bridge/internal/service"
	"github.com/cobra-poc/messaging-bridge/internal/sse"
	"github.com/cobra-poc/messaging-bridge/internal/worker"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	if cfg.AutoMigrate {
		if err := db.Migrate(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("failed to apply schema")
		}
		log.Info().Msg("schema applied")
	}

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	mappingRepo := repository.NewChannelMappingRepository(db.DB)
	channelRepo := repository.NewChatChannelRepository(db.DB)
	messageRepo := repository.NewChatMessageRepository(db.DB)
	eventRepo := repository.NewEventRepository(db.DB)
	deliveryRepo := repository.NewExternalDeliveryRepository(db.DB)

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	policy := retry.New(cfg.Retry.Options())
	outboundClient := &http.Client{Timeout: config.OutboundHTTPTimeout}

	drivers := platform.NewRegistry(
		platform.NewGroupMeDriver(platform.GroupMeConfig{
			APIURL:      cfg.GroupMeAPIURL,
			AccessToken: cfg.GroupMeAccessToken,
			BotName:     cfg.GroupMeBotName,
			CallbackURL: func(mappingID, secret string) string {
				if cfg.PublicBaseURL == "" {
					return ""
				}
				return cfg.WebhookURL(string(model.PlatformGroupMe), mappingID) + "?secret=" + url.QueryEscape(secret)
			},
		}, outboundClient, policy),
		platform.NewTeamsDriver(platform.TeamsConfig{
			BotURL: cfg.TeamsBotURL,
			APIKey: cfg.TeamsBotAPIKey,
		}, outboundClient, policy),
	)

	pool := worker.NewPool(cfg.OutboundWorkers, cfg.OutboundQueueSize, cfg.OutboundJobTimeout())
	pool.Start()

	messagingService := service.NewMessagingService(
		mappingRepo, channelRepo, messageRepo, eventRepo, deliveryRepo, drivers, broker,
	)
	chatService := service.NewChatService(channelRepo, messageRepo, broker, messagingService, pool)
	teamsService := service.NewTeamsBridgeService(mappingRepo)

	apiKeyMiddleware := middleware.NewAPIKeyMiddleware(cfg.BridgeAPIKey)
	webhookRateLimit := middleware.NewRateLimitMiddleware(
		middleware.NewRedisRateLimiter(redisClient), "webhook", cfg.WebhookRateLimitPerMin, middleware.ByURLParam("mappingId", "conversationId"),
	)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(os.Getenv("FLY_APP_NAME") != "")

	webhookHandler := handler.NewWebhookHandler(messagingService, teamsService)
	teamsHandler := handler.NewTeamsHandler(teamsService)
	channelHandler := handler.NewChannelHandler(messagingService, chatService)
	chatHandler := handler.NewChatHandler(chatService)
	eventsHandler := handler.NewEventsHandler(broker)
	healthHandler := handler.NewHealthHandler(db, pool, deliveryRepo)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(bodyLimitMiddleware.Handler)
	r.Use(securityHeadersMiddleware.Handler)

	r.Get("/health", healthHandler.ServeHTTP)

	r.Route("/api/webhooks", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

		r.Mount("/groupme", webhookHandler.GroupMeRoutes(webhookRateLimit.Handler))
		r.Route("/teams", func(r chi.Router) {
			r.Use(apiKeyMiddleware.Handler)
			r.Mount("/", webhookHandler.TeamsRoutes(webhookRateLimit.Handler))
		})
	})

	r.Route("/api/teams", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Use(apiKeyMiddleware.Handler)
		r.Mount("/", teamsHandler.Routes())
	})

	r.Route("/api/events/{eventId}", func(r chi.Router) {
		r.Use(apiKeyMiddleware.Handler)

		r.Get("/stream", eventsHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
			channelHandler.Register(r)
			chatHandler.Register(r)
		})
	})

	redeliveryJob := jobs.NewRedeliveryJob(
		deliveryRepo, messagingService, pool, cfg.RedeliveryInterval(), cfg.RedeliveryMaxAttempts,
	)
	redeliveryJob.Start()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().
			Str("addr", cfg.Addr()).
			Strs("platforms", platformNames(drivers)).
			Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Int("sseClients", broker.TotalClients()).Msg("shutting down server")

	redeliveryJob.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), config.WorkerDrainTimeout)
	defer drainCancel()

	if err := pool.Stop(drainCtx); err != nil {
		log.Warn().Err(err).Msg("outbound queue not fully drained")
	}

	log.Info().Msg("server stopped")
}

func platformNames(drivers *platform.Registry) []string {
	names := make([]string, 0, len(drivers.Platforms()))
	for _, p := range drivers.Platforms() {
		names = append(names, string(p))
	}
	return names
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
