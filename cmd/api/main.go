package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/noah-isme/interview-prep-api/internal/config"
	"github.com/noah-isme/interview-prep-api/internal/database"
	"github.com/noah-isme/interview-prep-api/internal/handler"
	"github.com/noah-isme/interview-prep-api/internal/interview"
	"github.com/noah-isme/interview-prep-api/internal/middleware"
	"github.com/noah-isme/interview-prep-api/internal/repository"
	"github.com/noah-isme/interview-prep-api/internal/router"
	"github.com/noah-isme/interview-prep-api/internal/service"
	"github.com/noah-isme/interview-prep-api/pkg/ai"
	cloud "github.com/noah-isme/interview-prep-api/pkg/cloudinary"
	dockerexec "github.com/noah-isme/interview-prep-api/pkg/docker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := newLogger(cfg)

	repo, closeStore, err := openStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open interview store")
	}
	defer closeStore()

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	if redisClient != nil {
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis not configured, status cache disabled")
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to nats")
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	generator, err := ai.NewOpenAIGenerator(ai.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIURL,
		Timeout: cfg.AITimeout,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create text generator")
	}

	prompts, err := loadPrompts(cfg.PromptsFile)
	if err != nil {
		logger.Fatal().Err(err).Str("file", cfg.PromptsFile).Msg("failed to load prompt templates")
	}

	var executor dockerexec.Executor
	dockerExecutor, err := dockerexec.NewDockerExecutor(dockerexec.Config{
		Host:          cfg.DockerHost,
		Timeout:       cfg.ExecutionTimeout,
		MemoryLimitMB: int64(cfg.CodeRunMemoryMB),
		CPUShares:     int64(cfg.CodeRunCPUShares),
		Logger:        logger,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("docker unavailable, code runs disabled")
	} else {
		executor = dockerExecutor
		defer dockerExecutor.Close()
	}

	var uploader service.ReportUploader
	if cfg.CloudinaryEnabled() {
		cloudinaryService, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create cloudinary client")
		}
		uploader = cloudinaryService
	} else {
		logger.Warn().Msg("cloudinary not configured, report export disabled")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	eventStream := service.NewInterviewEventStream(natsConn, cfg.NATSSubjectBase, logger)
	interviewService := service.NewInterviewService(repo, generator, prompts, eventStream, redisClient, validate, logger, service.InterviewServiceConfig{
		StatusCacheTTL: cfg.StatusCacheTTL,
	})
	codeRunService := service.NewCodeRunService(repo, executor, validate, logger, service.CodeRunConfig{
		Timeout:       cfg.ExecutionTimeout,
		MemoryLimitMB: int64(cfg.CodeRunMemoryMB),
		CPUShares:     int64(cfg.CodeRunCPUShares),
	})
	reportService := service.NewReportService(repo, uploader, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{
		Logger:       &logger,
		AllowOrigins: cfg.AllowOrigins,
	})
	router.Register(app, cfg, router.Dependencies{
		InterviewHandler:       handler.NewInterviewHandler(interviewService, codeRunService, reportService, logger),
		InterviewStreamHandler: handler.NewInterviewStreamHandler(eventStream, logger),
		JWTMiddleware:          middleware.JWTProtected(cfg.JWTSecret),
		GenerationLimiter:      middleware.RateLimit("interviews", cfg.GenerationRateLimit, cfg.GenerationRateWindow),
	})

	streamCtx, stopStream := context.WithCancel(context.Background())
	defer stopStream()
	eventStream.Start(streamCtx)

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, logger)
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var output io.Writer = os.Stdout
	if cfg.LogFile != "" {
		output = zerolog.MultiLevelWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		})
	}

	return zerolog.New(output).Level(level).With().Timestamp().Str("service", cfg.AppName).Logger()
}

func openStore(cfg config.Config) (repository.InterviewRepository, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMongo:
		client, err := database.ConnectMongo(cfg.MongoURL)
		if err != nil {
			return nil, nil, err
		}
		db := client.Database(cfg.MongoDatabase)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := repository.EnsureInterviewIndexes(ctx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}

		closeFn := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(ctx)
		}
		return repository.NewMongoInterviewRepository(db), closeFn, nil
	default:
		db, err := database.ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}

		closeFn := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return repository.NewInterviewRepository(db), closeFn, nil
	}
}

func loadPrompts(path string) (*interview.PromptSet, error) {
	if path == "" {
		return interview.DefaultPrompts()
	}
	return interview.LoadPrompts(path)
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
