package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rabbitmq/amqp091-go"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tts-server/internal/chunking"
	"tts-server/internal/config"
	"tts-server/internal/database"
	"tts-server/internal/logger"
	"tts-server/internal/pricing"
	"tts-server/internal/provider"
	"tts-server/internal/repository"
	"tts-server/internal/storage"
	"tts-server/internal/worker"
)

func main() {
	_ = godotenv.Load()

	// --- Configuration ---
	// Воркеру нужны ключи TTS-провайдеров
	cfg, err := config.LoadConfig(true)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger Setup ---
	log, err := logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Encoding: cfg.LogEncoding,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	zap.ReplaceGlobals(log)
	zap.L().Info("Logger initialized successfully", zap.String("logLevel", cfg.LogLevel))

	// Контекст жизни воркера: отменяется по SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- External Connections ---
	pgPool, err := setupPostgres(cfg)
	if err != nil {
		zap.L().Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pgPool.Close()
	zap.L().Info("Connected to PostgreSQL")

	if err := database.ApplyMigrations(pgPool); err != nil {
		zap.L().Fatal("Failed to apply migrations", zap.Error(err))
	}

	redisClient, err := setupRedis(cfg)
	if err != nil {
		zap.L().Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	zap.L().Info("Connected to Redis")

	mqConn, err := connectRabbitMQ(cfg.RabbitMQURL, log)
	if err != nil {
		zap.L().Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer mqConn.Close()
	zap.L().Info("Connected to RabbitMQ")

	// --- Dependency Injection ---
	generationRepo := repository.NewPgGenerationRepository(pgPool, log)
	chunkRepo := repository.NewPgChunkRepository(pgPool, log)
	voiceRepo := repository.NewCachedVoiceRepository(
		repository.NewPgVoiceRepository(pgPool, log),
		redisClient, cfg.VoiceCacheTTL, log)
	creditRepo := repository.NewPgCreditRepository(pgPool, pgPool, log)

	audioStorage, err := storage.NewFileStorage(cfg.AudioStoragePath, cfg.AudioPublicBaseURL, log)
	if err != nil {
		zap.L().Fatal("Failed to create audio storage", zap.Error(err))
	}

	// Фактическая стоимость считается по тем же тарифам, что и оценка
	rates := pricing.NewCalculator()
	openaiRate, _ := rates.Rate("openai")
	elevenRate, _ := rates.Rate("elevenlabs")

	providerRegistry := provider.NewRegistry(
		provider.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAITTSModel, openaiRate.CostPer1kChars, log),
		provider.NewElevenLabsProvider(cfg.ElevenLabsBaseURL, cfg.ElevenLabsAPIKey, cfg.ElevenLabsModelID, elevenRate.CostPer1kChars, cfg.ProviderTimeout, log),
	)

	retryer := worker.NewRetryer(worker.RetryPolicy{
		MaxAttempts: cfg.SynthesisMaxAttempts,
		Delays:      cfg.SynthesisRetryDelays,
	})
	settler := worker.NewSettler(creditRepo, retryer, log)

	metrics := worker.NewMetrics()
	metrics.StartPushLoop(ctx, cfg.PushGatewayURL, "tts_worker", 15*time.Second, log)

	taskHandler := worker.NewTaskHandler(
		generationRepo, chunkRepo, voiceRepo,
		providerRegistry, audioStorage,
		retryer, settler,
		chunking.Options{MaxChunkChars: cfg.ChunkMaxChars},
		cfg.DefaultAudioFormat,
		metrics, log,
	)

	consumer := worker.NewConsumer(mqConn, cfg.TaskQueueName, taskHandler, log)

	// --- Metrics HTTP Server ---
	metricsSrv := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: metricsHandler(metrics),
	}
	go func() {
		zap.L().Info("Starting metrics server", zap.String("port", cfg.MetricsPort))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Error("Metrics server listen error", zap.Error(err))
		}
	}()

	// --- Consume Loop ---
	zap.L().Info("Starting synthesis worker", zap.String("queue", cfg.TaskQueueName))
	if err := consumer.Start(ctx); err != nil {
		zap.L().Error("Consumer stopped with error", zap.Error(err))
	}

	// --- Graceful Shutdown ---
	zap.L().Info("Shutting down worker...")
	consumer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("Metrics server forced to shutdown", zap.Error(err))
	}

	zap.L().Info("Worker exiting")
}

func metricsHandler(m *worker.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// setupPostgres initializes the PostgreSQL connection pool with retry logic.
func setupPostgres(cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("unable to parse postgres config: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.DBMaxConns)
	poolConfig.MaxConnIdleTime = cfg.DBIdleTimeout

	var pool *pgxpool.Pool
	var lastErr error
	maxRetries := 50
	retryDelay := 3 * time.Second

	for i := 0; i < maxRetries; i++ {
		attempt := i + 1
		connectCtx, connectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		pool, err = pgxpool.NewWithConfig(connectCtx, poolConfig)
		connectCancel()

		if err != nil {
			lastErr = fmt.Errorf("unable to create postgres connection pool (attempt %d/%d): %w", attempt, maxRetries, err)
			zap.L().Warn("Postgres connection pool creation failed, retrying...",
				zap.Int("attempt", attempt), zap.Error(err))
			if i < maxRetries-1 {
				time.Sleep(retryDelay)
			}
			continue
		}

		pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = pool.Ping(pingCtx)
		pingCancel()

		if err == nil {
			zap.L().Info("Successfully connected and pinged PostgreSQL", zap.Int("attempt", attempt))
			return pool, nil
		}

		pool.Close()
		lastErr = fmt.Errorf("unable to ping postgres (attempt %d/%d): %w", attempt, maxRetries, err)
		zap.L().Warn("Postgres ping failed, retrying...",
			zap.Int("attempt", attempt), zap.Error(err))
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	return nil, lastErr
}

// setupRedis initializes the Redis client with retry logic.
func setupRedis(cfg *config.Config) (*redis.Client, error) {
	redisOpts := &redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	}

	var client *redis.Client
	var lastErr error
	maxRetries := 50
	retryDelay := 3 * time.Second

	for i := 0; i < maxRetries; i++ {
		attempt := i + 1
		client = redis.NewClient(redisOpts)

		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := client.Ping(pingCtx).Result()
		pingCancel()

		if err == nil {
			zap.L().Info("Successfully connected and pinged Redis", zap.Int("attempt", attempt))
			return client, nil
		}

		client.Close()
		lastErr = fmt.Errorf("unable to ping redis (attempt %d/%d): %w", attempt, maxRetries, err)
		zap.L().Warn("Redis ping failed, retrying...",
			zap.Int("attempt", attempt), zap.Error(err))
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	return nil, lastErr
}

// connectRabbitMQ connects to RabbitMQ with retry logic.
func connectRabbitMQ(url string, log *zap.Logger) (*amqp091.Connection, error) {
	var conn *amqp091.Connection
	var err error
	maxRetries := 50
	retryDelay := 5 * time.Second

	for i := 0; i < maxRetries; i++ {
		conn, err = amqp091.Dial(url)
		if err == nil {
			return conn, nil
		}
		log.Warn("RabbitMQ connection failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	return nil, fmt.Errorf("unable to connect to RabbitMQ after %d attempts: %w", maxRetries, err)
}
