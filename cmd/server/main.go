package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"novel-fork/internal/config"
	"novel-fork/internal/database"
	"novel-fork/internal/generator"
	"novel-fork/internal/handler"
	"novel-fork/internal/interfaces"
	"novel-fork/internal/logger"
	"novel-fork/internal/messaging"
	"novel-fork/internal/middleware"
	"novel-fork/internal/service"
	pgdb "novel-fork/pkg/database"
	"novel-fork/pkg/migration"
	"novel-fork/pkg/taskmanager"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

const (
	connectAttempts = 10
	connectDelay    = 3 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	_ = godotenv.Load()
	log.Println("Запуск Novel Fork Service...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	appLogger, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Encoding:    cfg.LogEncoding,
		Service:     "novel-fork",
		Development: cfg.Env == "development",
	})
	if err != nil {
		log.Fatalf("Не удалось инициализировать логгер: %v", err)
	}
	defer appLogger.Sync()
	appLogger.Info("Configuration loaded", cfg.LogFields()...)

	// pkg/ пишет через zerolog из контекста.
	zl := zerolog.New(os.Stdout).With().Timestamp().Str("service", "novel-fork").Logger()
	zerolog.DefaultContextLogger = &zl
	ctx, stop := signal.NotifyContext(zl.WithContext(context.Background()), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Внешние подключения ---
	db, err := setupDatabase(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Не удалось подключиться к БД", zap.Error(err))
	}
	defer db.Close()

	if cfg.RunMigrations {
		migrator := migration.NewMigrator(migration.Config{
			MigrationsPath: database.MigrationsPath,
			MigrationsFS:   database.MigrationsFS,
		}, db.Pool)
		if err := migrator.Up(ctx); err != nil {
			appLogger.Fatal("Ошибка применения миграций", zap.Error(err))
		}
	}

	redisClient, err := setupRedis(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Не удалось подключиться к Redis", zap.Error(err))
	}
	defer redisClient.Close()

	rabbitConn, err := messaging.Connect(cfg.RabbitMQURL, connectAttempts, connectDelay, appLogger)
	if err != nil {
		appLogger.Fatal("Не удалось подключиться к RabbitMQ", zap.Error(err))
	}
	defer rabbitConn.Close()

	publisher, err := messaging.NewForkEventPublisher(rabbitConn, cfg.ForkEventsQueue, appLogger)
	if err != nil {
		appLogger.Fatal("Не удалось создать publisher событий", zap.Error(err))
	}

	gen, err := generator.New(cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Не удалось создать генератор", zap.Error(err))
	}

	tasks := taskmanager.New(taskmanager.Config{MaxTasks: cfg.SummaryMaxTasks, TaskTimeout: cfg.AITimeout})
	go tasks.RunCleanup(ctx, cfg.SummaryCleanup, cfg.SummaryCleanup)

	// --- Зависимости ---
	deps := service.Deps{
		DB:        db,
		Stories:   database.NewPgStoryCatalogRepository(appLogger),
		Branches:  database.NewPgBranchCatalogRepository(appLogger),
		Forks:     database.NewPgForkRepository(appLogger),
		Commits:   database.NewPgCommitRepository(appLogger),
		Bookmarks: database.NewPgBookmarkRepository(appLogger),
		PRs:       database.NewPgPrRepository(appLogger),
		Previews:  database.NewRedisPreviewRepository(redisClient, cfg.PreviewTTL, appLogger),
		TreeCache: database.NewRedisBranchTreeCache(redisClient, cfg.TreeCacheTTL, appLogger),
		Locker:    newLocker(cfg, redisClient, appLogger),
		Generator: gen,
		Tokens:    generator.NewTokenCounter(cfg.AIModel, appLogger),
		Publisher: publisher,
		Tasks:     tasks,
	}
	opts := service.Options{
		ContextTokenBudget: cfg.AIContextTokens,
		ChapterWordCount:   cfg.AIChapterWordCount,
		StoryLockWait:      cfg.StoryLockWait,
	}
	prompts := service.NewPromptBuilder(deps, opts, appLogger)
	treeService := service.NewBranchTreeService(deps, appLogger)
	services := handler.Services{
		Forks:     service.NewForkService(deps, prompts, opts, appLogger),
		Previews:  service.NewPreviewService(deps, prompts, opts, appLogger),
		Bookmarks: service.NewBookmarkService(deps, appLogger),
		Tree:      treeService,
		PRs:       service.NewPrService(deps, opts, appLogger),
	}

	chapterConsumer := messaging.NewChapterEventConsumer(rabbitConn, cfg.ChapterEventsQueue, treeService, appLogger)
	go func() {
		if err := chapterConsumer.StartConsuming(); err != nil {
			appLogger.Error("ChapterEventConsumer stopped with error", zap.Error(err))
		}
	}()

	// --- HTTP ---
	verifier, err := middleware.NewJWTVerifier(cfg.JWTSecret, appLogger)
	if err != nil {
		appLogger.Fatal("Не удалось создать JWT verifier", zap.Error(err))
	}
	limiter := handler.NewGenerationRateLimiter(handler.NewRedisRateStore(redisClient, cfg.RateLimitPerMin), appLogger)
	h := handler.NewHandler(services, verifier, limiter, cfg.GetAllowedOrigins(), appLogger)

	router := newRouter(cfg, appLogger)
	h.RegisterRoutes(router)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout не задаём: stream-choose и генерация длятся дольше.
		IdleTimeout: 60 * time.Second,
	}
	go func() {
		appLogger.Info("Starting HTTP server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("HTTP Server listen error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down server...")
	chapterConsumer.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP Server forced to shutdown", zap.Error(err))
	}
	if err := tasks.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("Background tasks did not finish in time", zap.Error(err))
	}
	appLogger.Info("Server exiting")
}

func newRouter(cfg *config.Config, appLogger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if cfg.Env == "development" {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.ZapLogger(appLogger))

	corsConfig := cors.DefaultConfig()
	if origins := cfg.GetAllowedOrigins(); len(origins) > 0 {
		corsConfig.AllowOrigins = origins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
		appLogger.Info("CORS_ALLOWED_ORIGINS not set, allowing default", zap.String("origin", "http://localhost:3000"))
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", middleware.RequestIDHeader}
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	p := ginprometheus.NewPrometheus("novel_fork_http")
	p.ReqCntURLLabelMappingFn = func(c *gin.Context) string {
		if path := c.FullPath(); path != "" {
			return path
		}
		return "unmatched"
	}
	p.Use(router)

	health := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) }
	router.GET("/health", health)
	router.HEAD("/health", health)
	return router
}

func newLocker(cfg *config.Config, client *redis.Client, appLogger *zap.Logger) interfaces.ForkLocker {
	if strings.EqualFold(cfg.LockBackend, "memory") {
		appLogger.Warn("Using in-process fork locks; run a single replica only")
		return service.NewMemoryLocker()
	}
	return database.NewRedisForkLocker(client, cfg.ForkLockTTL, appLogger)
}

// setupDatabase подключается к PostgreSQL с повторными попытками.
func setupDatabase(ctx context.Context, cfg *config.Config, appLogger *zap.Logger) (*pgdb.Database, error) {
	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		db, err := pgdb.New(ctx, pgdb.Config{
			DSN:             cfg.GetDSN(),
			MaxConns:        int32(cfg.DBMaxConns),
			MaxConnIdleTime: cfg.DBIdleTimeout,
		})
		if err == nil {
			return db, nil
		}
		lastErr = err
		appLogger.Warn("Postgres connection failed, retrying...", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(connectDelay):
		}
	}
	return nil, fmt.Errorf("failed to connect to postgres after %d attempts: %w", connectAttempts, lastErr)
}

// setupRedis создает клиента Redis и дожидается успешного ping.
func setupRedis(ctx context.Context, cfg *config.Config, appLogger *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		lastErr = client.Ping(pingCtx).Err()
		cancel()
		if lastErr == nil {
			appLogger.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))
			return client, nil
		}
		appLogger.Warn("Redis ping failed, retrying...", zap.Int("attempt", attempt), zap.Error(lastErr))
		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, ctx.Err()
		case <-time.After(connectDelay):
		}
	}
	_ = client.Close()
	return nil, fmt.Errorf("failed to connect to redis after %d attempts: %w", connectAttempts, lastErr)
}
