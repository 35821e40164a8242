package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"novel-fork/internal/config"
	"novel-fork/internal/interfaces"
	"novel-fork/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const (
	summarySystemPrompt = `Кратко перескажи главу в 2-3 предложениях. Только пересказ, без вступлений.`
	summaryMaxTokens    = 300
	// Кириллица в среднем дороже латиницы: ~3 токена на слово.
	tokensPerWord = 3
)

var (
	aiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novel_fork_ai_requests_total",
			Help: "Total number of requests to the AI backend.",
		},
		[]string{"model", "mode", "status"},
	)
	aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "novel_fork_ai_request_duration_seconds",
			Help:    "Histogram of AI backend request durations.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"model", "mode"},
	)
	aiPromptTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "novel_fork_ai_prompt_tokens",
			Help:    "Histogram of prompt token counts.",
			Buckets: prometheus.LinearBuckets(500, 500, 16),
		},
		[]string{"model"},
	)
	aiCompletionTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "novel_fork_ai_completion_tokens",
			Help:    "Histogram of completion token counts.",
			Buckets: prometheus.LinearBuckets(200, 200, 20),
		},
		[]string{"model"},
	)
)

// usage - статистика токенов, если бэкенд её вернул.
type usage struct {
	PromptTokens     int
	CompletionTokens int
}

type chatRequest struct {
	SystemPrompt string
	UserInput    string
	MaxTokens    int
	Stream       bool
}

// chatBackend - транспорт конкретного провайдера. При Stream=true каждый
// фрагмент передаётся в onChunk, ошибка onChunk прерывает чтение.
type chatBackend interface {
	chat(ctx context.Context, req chatRequest, onChunk func(chunk string) error) (string, usage, error)
}

// chunkError помечает ошибку потребителя стрима, чтобы не путать её с ошибкой провайдера.
type chunkError struct{ err error }

func (e *chunkError) Error() string { return e.err.Error() }
func (e *chunkError) Unwrap() error { return e.err }

// Generator реализует interfaces.ContentGenerator поверх OpenAI-совместимого API или Ollama.
type Generator struct {
	backend chatBackend
	model   string
	logger  *zap.Logger
}

var _ interfaces.ContentGenerator = (*Generator)(nil)

// New создаёт генератор по AI_CLIENT_TYPE.
func New(cfg *config.Config, logger *zap.Logger) (*Generator, error) {
	logger = logger.Named("Generator")
	var backend chatBackend
	switch strings.ToLower(cfg.AIClientType) {
	case "openai":
		backend = newOpenAIBackend(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel, cfg.AITimeout)
	case "ollama":
		b, err := newOllamaBackend(cfg.AIBaseURL, cfg.AIModel, cfg.AITimeout)
		if err != nil {
			return nil, err
		}
		backend = b
	default:
		return nil, fmt.Errorf("unknown AI client type: '%s'", cfg.AIClientType)
	}
	logger.Info("AI generator created",
		zap.String("type", cfg.AIClientType),
		zap.String("baseURL", cfg.AIBaseURL),
		zap.String("model", cfg.AIModel),
		zap.Duration("timeout", cfg.AITimeout),
	)
	return &Generator{backend: backend, model: cfg.AIModel, logger: logger}, nil
}

func maxTokensFor(words int) int {
	if words <= 0 {
		return 0
	}
	return words * tokensPerWord
}

func (g *Generator) Generate(ctx context.Context, req interfaces.GenerationRequest, onChunk func(chunk string) error) (string, error) {
	return g.run(ctx, "stream", req.UserID, chatRequest{
		SystemPrompt: req.SystemPrompt,
		UserInput:    req.UserInput,
		MaxTokens:    maxTokensFor(req.WordCountHint),
		Stream:       true,
	}, onChunk)
}

func (g *Generator) Complete(ctx context.Context, req interfaces.GenerationRequest) (string, error) {
	return g.run(ctx, "complete", req.UserID, chatRequest{
		SystemPrompt: req.SystemPrompt,
		UserInput:    req.UserInput,
		MaxTokens:    maxTokensFor(req.WordCountHint),
	}, nil)
}

func (g *Generator) Summarize(ctx context.Context, userID string, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: nothing to summarize", models.ErrGenerationFailed)
	}
	return g.run(ctx, "summary", userID, chatRequest{
		SystemPrompt: summarySystemPrompt,
		UserInput:    text,
		MaxTokens:    summaryMaxTokens,
	}, nil)
}

func (g *Generator) run(ctx context.Context, mode, userID string, req chatRequest, onChunk func(string) error) (string, error) {
	log := g.logger.With(zap.String("mode", mode), zap.String("userID", userID))
	if strings.TrimSpace(req.SystemPrompt) == "" {
		return "", fmt.Errorf("%w: empty system prompt", models.ErrGenerationFailed)
	}

	var handler func(string) error
	if onChunk != nil {
		handler = func(chunk string) error {
			if err := onChunk(chunk); err != nil {
				return &chunkError{err: err}
			}
			return nil
		}
	}

	log.Debug("Sending AI request", zap.Int("systemPromptBytes", len(req.SystemPrompt)), zap.Int("userInputBytes", len(req.UserInput)))
	start := time.Now()
	text, u, err := g.backend.chat(ctx, req, handler)
	duration := time.Since(start)

	if err != nil {
		var ce *chunkError
		switch {
		case errors.As(err, &ce):
			aiRequestsTotal.WithLabelValues(g.model, mode, "aborted").Inc()
			log.Info("AI stream aborted by consumer", zap.Duration("duration", duration), zap.Error(ce.err))
			return "", ce.err
		case ctx.Err() != nil:
			aiRequestsTotal.WithLabelValues(g.model, mode, "cancelled").Inc()
			log.Info("AI request cancelled", zap.Duration("duration", duration))
			return "", ctx.Err()
		default:
			aiRequestsTotal.WithLabelValues(g.model, mode, "error").Inc()
			log.Error("AI request failed", zap.Duration("duration", duration), zap.Error(err))
			return "", fmt.Errorf("%w: %v", models.ErrGenerationFailed, err)
		}
	}
	if strings.TrimSpace(text) == "" {
		aiRequestsTotal.WithLabelValues(g.model, mode, "empty").Inc()
		log.Warn("AI backend returned empty response", zap.Duration("duration", duration))
		return "", fmt.Errorf("%w: empty response", models.ErrGenerationFailed)
	}

	aiRequestsTotal.WithLabelValues(g.model, mode, "success").Inc()
	aiRequestDuration.WithLabelValues(g.model, mode).Observe(duration.Seconds())
	if u.PromptTokens > 0 || u.CompletionTokens > 0 {
		aiPromptTokens.WithLabelValues(g.model).Observe(float64(u.PromptTokens))
		aiCompletionTokens.WithLabelValues(g.model).Observe(float64(u.CompletionTokens))
	}
	log.Info("AI response received",
		zap.Duration("duration", duration),
		zap.Int("responseRunes", len([]rune(text))),
		zap.Int("promptTokens", u.PromptTokens),
		zap.Int("completionTokens", u.CompletionTokens),
	)
	return text, nil
}
