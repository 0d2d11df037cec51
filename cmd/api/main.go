package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grading-api/internal/config"
	"github.com/noah-isme/gema-grading-api/internal/database"
	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/handler"
	"github.com/noah-isme/gema-grading-api/internal/middleware"
	"github.com/noah-isme/gema-grading-api/internal/repository"
	"github.com/noah-isme/gema-grading-api/internal/router"
	"github.com/noah-isme/gema-grading-api/internal/service"
	"github.com/noah-isme/gema-grading-api/pkg/ai"
	"github.com/noah-isme/gema-grading-api/pkg/github"
)

func main() {
	bootLogger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	logger := bootLogger.Level(level).With().Str("service", cfg.AppName).Logger()

	ctx := context.Background()

	var evidenceCache repository.EvidenceCacheRepository
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable; evidence cache disabled")
		} else {
			evidenceCache = repository.NewEvidenceCacheRepository(redisClient, cfg.EvidenceCacheTTL)
		}
	}

	var publisher service.AnalysisPublisher
	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable; analysis events disabled")
		} else {
			publisher = service.NewNATSAnalysisPublisher(natsConn, cfg.NATSSubject)
		}
	}

	engine := buildEngine(cfg, logger)

	collector := github.NewCollector(cfg.GitHubAPIURL, cfg.GitHubTimeout, logger)
	evidenceService := service.NewEvidenceService(collector, evidenceCache, logger)
	gradingService := service.NewGradingService(engine, evidenceService, publisher, logger)
	integrityService := service.NewIntegrityService(engine, logger)
	assistantService := service.NewAssistantService(engine, logger)

	gradingHandler := handler.NewGradingHandler(gradingService, integrityService, assistantService, dto.NewValidator(), logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    50 * 1024 * 1024,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.AITimeout*time.Duration(cfg.AIMaxToolRounds+1) + 30*time.Second,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AccessLog: cfg.AppEnv == "development"})

	var guards []fiber.Handler
	if cfg.JWTSecret != "" {
		guards = append(guards, middleware.JWTProtected(cfg.JWTSecret), middleware.RequireRole(middleware.InstructorRoles...))
	}
	router.Register(app, cfg, router.Dependencies{
		GradingHandler: gradingHandler,
		Guards:         guards,
		RateLimiter:    middleware.RateLimit("grading", cfg.RateLimitMax, cfg.RateLimitWindow),
	})

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddress()).Bool("mock_mode", engine == nil).Msg("starting grading api")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, logger)

	if natsConn != nil {
		if err := natsConn.Drain(); err != nil {
			logger.Warn().Err(err).Msg("failed to drain nats connection")
		}
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
}

// buildEngine returns nil when no credential is configured, which puts every
// service into mock mode.
func buildEngine(cfg config.Config, logger zerolog.Logger) ai.Engine {
	engine, err := ai.NewOpenAIEngine(ai.OpenAIConfig{
		APIKey:        cfg.AIAPIKey,
		BaseURL:       cfg.AIBaseURL,
		Model:         cfg.AIModel,
		MaxTokens:     cfg.AIMaxTokens,
		Temperature:   cfg.AITemperature,
		Timeout:       cfg.AITimeout,
		MaxToolRounds: cfg.AIMaxToolRounds,
		Logger:        logger,
	})
	if errors.Is(err, ai.ErrAPIKeyRequired) {
		logger.Info().Msg("no ai api key configured; running in mock mode")
		return nil
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create inference engine")
	}

	logger.Info().Str("model", engine.Model()).Msg("inference engine ready")
	return engine
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
