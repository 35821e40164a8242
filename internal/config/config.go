package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
)

// Config содержит конфигурацию сервиса форков.
type Config struct {
	Port        string `envconfig:"SERVER_PORT" default:"8085"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`
	Env         string `envconfig:"ENV" default:"development"`

	// PostgreSQL
	DBHost        string        `envconfig:"DB_HOST" required:"true"`
	DBPort        string        `envconfig:"DB_PORT" default:"5432"`
	DBUser        string        `envconfig:"DB_USER" required:"true"`
	DBName        string        `envconfig:"DB_NAME" required:"true"`
	DBSSLMode     string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns    int           `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	DBIdleTimeout time.Duration `envconfig:"DB_MAX_IDLE_MINUTES" default:"5m"`
	RunMigrations bool          `envconfig:"DB_RUN_MIGRATIONS" default:"true"`
	// Секретное поле без envconfig тега
	DBPassword string `ignored:"true"`

	// Redis
	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisDB   int    `envconfig:"REDIS_DB" default:"0"`
	// Секретное поле без envconfig тега
	RedisPassword string `ignored:"true"`

	// RabbitMQ
	RabbitMQURL        string `envconfig:"RABBITMQ_URL" required:"true"`
	ForkEventsQueue    string `envconfig:"FORK_EVENTS_QUEUE" default:"fork_events"`
	ChapterEventsQueue string `envconfig:"CHAPTER_EVENTS_QUEUE" default:"chapter_events"`

	// AI
	AIClientType       string        `envconfig:"AI_CLIENT_TYPE" default:"openai"`
	AIBaseURL          string        `envconfig:"AI_BASE_URL" default:"https://api.openai.com/v1"`
	AIModel            string        `envconfig:"AI_MODEL" default:"gpt-4o-mini"`
	AITimeout          time.Duration `envconfig:"AI_TIMEOUT" default:"120s"`
	AIContextTokens    int           `envconfig:"AI_CONTEXT_TOKEN_BUDGET" default:"6000"`
	AIChapterWordCount int           `envconfig:"AI_CHAPTER_WORD_COUNT" default:"1200"`
	// Секретное поле без envconfig тега
	AIAPIKey string `ignored:"true"`

	// Движок форков
	PreviewTTL       time.Duration `envconfig:"PREVIEW_TTL" default:"1h"`
	TreeCacheTTL     time.Duration `envconfig:"TREE_CACHE_TTL" default:"30s"`
	ForkLockTTL      time.Duration `envconfig:"FORK_LOCK_TTL" default:"5m"`
	StoryLockWait    time.Duration `envconfig:"STORY_LOCK_WAIT" default:"10s"`
	LockBackend      string        `envconfig:"LOCK_BACKEND" default:"redis"`
	SummaryMaxTasks  int           `envconfig:"SUMMARY_MAX_TASKS" default:"20"`
	SummaryCleanup   time.Duration `envconfig:"SUMMARY_TASK_CLEANUP" default:"10m"`
	RateLimitPerMin  uint          `envconfig:"RATE_LIMIT_PER_MINUTE" default:"30"`
	CORSAllowOrigins string        `envconfig:"CORS_ALLOWED_ORIGINS" default:""`

	// Секретное поле без envconfig тега
	JWTSecret string `ignored:"true"`
}

// GetDSN возвращает строку подключения (DSN) для PostgreSQL.
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// GetAllowedOrigins разбирает список CORS-источников через запятую.
func (c *Config) GetAllowedOrigins() []string {
	if strings.TrimSpace(c.CORSAllowOrigins) == "" {
		return nil
	}
	parts := strings.Split(c.CORSAllowOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

// LoadConfig загружает конфигурацию из переменных окружения и секретов.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	var err error
	if cfg.DBPassword, err = ReadSecret("db_password", "DB_PASSWORD"); err != nil {
		return nil, err
	}
	if cfg.JWTSecret, err = ReadSecret("jwt_secret", "JWT_SECRET"); err != nil {
		return nil, err
	}
	// Ключ AI не обязателен для ollama; пароль Redis не обязателен вовсе.
	cfg.AIAPIKey, _ = ReadSecret("ai_api_key", "AI_API_KEY")
	cfg.RedisPassword, _ = ReadSecret("redis_password", "REDIS_PASSWORD")

	if strings.EqualFold(cfg.AIClientType, "openai") && cfg.AIAPIKey == "" {
		return nil, fmt.Errorf("AI_API_KEY is required for AI_CLIENT_TYPE=openai")
	}

	return &cfg, nil
}

// LogFields возвращает несекретные поля для стартового лога.
func (c *Config) LogFields() []zap.Field {
	return []zap.Field{
		zap.String("port", c.Port),
		zap.String("env", c.Env),
		zap.String("db", fmt.Sprintf("postgres://%s:***@%s:%s/%s", c.DBUser, c.DBHost, c.DBPort, c.DBName)),
		zap.String("redisAddr", c.RedisAddr),
		zap.String("forkEventsQueue", c.ForkEventsQueue),
		zap.String("chapterEventsQueue", c.ChapterEventsQueue),
		zap.String("aiClientType", c.AIClientType),
		zap.String("aiModel", c.AIModel),
		zap.String("lockBackend", c.LockBackend),
		zap.Duration("previewTTL", c.PreviewTTL),
		zap.Duration("treeCacheTTL", c.TreeCacheTTL),
	}
}
