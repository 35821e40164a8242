package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"novel-fork/internal/interfaces"
	"novel-fork/internal/models"
	"novel-fork/pkg/textstats"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// summaryFallbackRunes - длина запасного пересказа, если генератор недоступен.
const summaryFallbackRunes = 200

// summaryStoreWait - сколько ждать блокировку форка перед записью пересказа.
const summaryStoreWait = time.Second

// PreviewService - буфер предпросмотра: главы за пределами авторских точек ветвления,
// которые ещё не стали коммитами.
type PreviewService interface {
	SaveAiPreview(ctx context.Context, input SavePreviewInput) (*models.PreviewChapter, error)
	GetAiPreview(ctx context.Context, forkID int64, requesterID uuid.UUID) ([]models.PreviewChapter, error)
	DeleteAiPreviewChapter(ctx context.Context, forkID int64, requesterID uuid.UUID, chapterNumber int) error
	ClearAiPreview(ctx context.Context, forkID int64, requesterID uuid.UUID) error
	GenerateAiPreviewSummary(ctx context.Context, forkID int64, requesterID uuid.UUID, chapterNumber int) (string, error)
	ScheduleSummary(ctx context.Context, forkID int64, requesterID uuid.UUID, chapterNumber int) (uuid.UUID, error)
	StreamGeneratePreview(ctx context.Context, forkID int64, requesterID uuid.UUID, direction string, onChunk func(chunk string) error) (*models.GeneratedPreview, error)
	GetDirectionOptions(ctx context.Context, forkID int64, requesterID uuid.UUID) ([]models.DirectionOption, error)
}

type SavePreviewInput struct {
	ForkID          int64     `validate:"required"`
	RequesterID     uuid.UUID `validate:"required"`
	ChapterNumber   int       `validate:"min=1"`
	Title           string    `validate:"required,max=255"`
	ContentMarkdown string    `validate:"required"`
}

var defaultDirections = []models.DirectionOption{
	{Label: "Неожиданный поворот", Description: "В историю вмешивается событие, которое меняет планы героев."},
	{Label: "Углубить отношения", Description: "Сосредоточиться на чувствах и связях между персонажами."},
	{Label: "Раскрыть тайну", Description: "Приоткрыть один из секретов, накопившихся в сюжете."},
}

type previewServiceImpl struct {
	deps    Deps
	prompts *PromptBuilder
	opts    Options
	logger  *zap.Logger
}

func NewPreviewService(deps Deps, prompts *PromptBuilder, opts Options, logger *zap.Logger) PreviewService {
	return &previewServiceImpl{
		deps:    deps,
		prompts: prompts,
		opts:    opts.withDefaults(),
		logger:  logger.Named("PreviewService"),
	}
}

// nextNumber - номер главы, с которой может продолжиться буфер.
func (s *previewServiceImpl) nextNumber(ctx context.Context, fork *models.Fork, previews []models.PreviewChapter) (int, error) {
	q := s.deps.DB.Querier()
	authored, err := s.deps.Stories.CountAuthoredChapters(ctx, q, fork.StoryID)
	if err != nil {
		return 0, fmt.Errorf("count authored chapters: %w", err)
	}
	commits, err := s.deps.Commits.Count(ctx, q, fork.ID)
	if err != nil {
		return 0, fmt.Errorf("count commits: %w", err)
	}
	return authored + commits + len(previews) + 1, nil
}

func (s *previewServiceImpl) SaveAiPreview(ctx context.Context, input SavePreviewInput) (saved *models.PreviewChapter, err error) {
	defer func() { observe("save_preview", err) }()
	if err := validateInput(input); err != nil {
		return nil, err
	}
	fork, err := loadOwnedFork(ctx, s.deps.Forks, s.deps.DB.Querier(), input.ForkID, input.RequesterID)
	if err != nil {
		return nil, err
	}
	release, err := s.deps.Locker.TryLock(ctx, forkLockKey(fork.ID))
	if err != nil {
		return nil, err
	}
	defer release()

	previews, err := s.deps.Previews.List(ctx, fork.ID)
	if err != nil {
		return nil, err
	}
	chapter := models.PreviewChapter{
		ChapterNumber:   input.ChapterNumber,
		Title:           strings.TrimSpace(input.Title),
		ContentMarkdown: input.ContentMarkdown,
		CreatedAt:       time.Now().UTC(),
	}

	last := len(previews) - 1
	switch {
	case last >= 0 && previews[last].ChapterNumber == input.ChapterNumber:
		// Перезапись последней главы; старый пересказ к новому тексту не относится.
		previews[last] = chapter
	default:
		next, err := s.nextNumber(ctx, fork, previews)
		if err != nil {
			return nil, err
		}
		if input.ChapterNumber != next {
			return nil, fmt.Errorf("%w: expected chapter %d, got %d", models.ErrPreviewOutOfSequence, next, input.ChapterNumber)
		}
		previews = append(previews, chapter)
	}

	if err := s.deps.Previews.Replace(ctx, fork.ID, previews); err != nil {
		return nil, err
	}
	s.logger.Info("Preview chapter saved", zap.Int64("forkID", fork.ID), zap.Int("chapterNumber", chapter.ChapterNumber))
	return &chapter, nil
}

func (s *previewServiceImpl) GetAiPreview(ctx context.Context, forkID int64, requesterID uuid.UUID) ([]models.PreviewChapter, error) {
	if _, err := loadOwnedFork(ctx, s.deps.Forks, s.deps.DB.Querier(), forkID, requesterID); err != nil {
		return nil, err
	}
	return s.deps.Previews.List(ctx, forkID)
}

func (s *previewServiceImpl) DeleteAiPreviewChapter(ctx context.Context, forkID int64, requesterID uuid.UUID, chapterNumber int) error {
	if _, err := loadOwnedFork(ctx, s.deps.Forks, s.deps.DB.Querier(), forkID, requesterID); err != nil {
		return err
	}
	release, err := s.deps.Locker.TryLock(ctx, forkLockKey(forkID))
	if err != nil {
		return err
	}
	defer release()

	previews, err := s.deps.Previews.List(ctx, forkID)
	if err != nil {
		return err
	}
	idx := -1
	for i := range previews {
		if previews[i].ChapterNumber == chapterNumber {
			idx = i
			break
		}
	}
	if idx < 0 {
		return models.ErrPreviewNotFound
	}
	if idx != len(previews)-1 {
		return models.ErrPreviewNotTerminal
	}
	return s.deps.Previews.Replace(ctx, forkID, previews[:idx])
}

func (s *previewServiceImpl) ClearAiPreview(ctx context.Context, forkID int64, requesterID uuid.UUID) error {
	if _, err := loadOwnedFork(ctx, s.deps.Forks, s.deps.DB.Querier(), forkID, requesterID); err != nil {
		return err
	}
	release, err := s.deps.Locker.TryLock(ctx, forkLockKey(forkID))
	if err != nil {
		return err
	}
	defer release()
	return s.deps.Previews.Clear(ctx, forkID)
}

// GenerateAiPreviewSummary возвращает пересказ главы предпросмотра. Ошибки генератора
// не пробрасываются: вместо пересказа берётся начало текста.
func (s *previewServiceImpl) GenerateAiPreviewSummary(ctx context.Context, forkID int64, requesterID uuid.UUID, chapterNumber int) (string, error) {
	fork, err := loadOwnedFork(ctx, s.deps.Forks, s.deps.DB.Querier(), forkID, requesterID)
	if err != nil {
		return "", err
	}
	previews, err := s.deps.Previews.List(ctx, forkID)
	if err != nil {
		return "", err
	}
	chapter := findPreview(previews, chapterNumber)
	if chapter == nil {
		return "", models.ErrPreviewNotFound
	}
	if chapter.Summary != nil && *chapter.Summary != "" {
		return *chapter.Summary, nil
	}

	summary, genErr := s.deps.Generator.Summarize(ctx, fork.UserID.String(), chapter.ContentMarkdown)
	summary = strings.TrimSpace(summary)
	if genErr != nil || summary == "" {
		s.logger.Warn("Summary generation failed, using truncated content",
			zap.Int64("forkID", forkID), zap.Int("chapterNumber", chapterNumber), zap.Error(genErr))
		summaryFallbacksTotal.Inc()
		summary = textstats.Truncate(chapter.ContentMarkdown, summaryFallbackRunes)
	}

	s.storeSummary(ctx, forkID, *chapter, summary)
	return summary, nil
}

// storeSummary перечитывает буфер: за время генерации глава могла быть перезаписана или удалена.
// Чтение и запись идут под блокировкой форка, как и у остальных изменений буфера.
func (s *previewServiceImpl) storeSummary(ctx context.Context, forkID int64, source models.PreviewChapter, summary string) {
	release, err := s.deps.Locker.Lock(ctx, forkLockKey(forkID), summaryStoreWait)
	if err != nil {
		s.logger.Warn("Fork is busy, preview summary not stored", zap.Int64("forkID", forkID), zap.Error(err))
		return
	}
	defer release()

	previews, err := s.deps.Previews.List(ctx, forkID)
	if err != nil {
		s.logger.Warn("Failed to reload preview buffer for summary", zap.Int64("forkID", forkID), zap.Error(err))
		return
	}
	current := findPreview(previews, source.ChapterNumber)
	if current == nil || !current.CreatedAt.Equal(source.CreatedAt) {
		s.logger.Debug("Preview chapter changed during summary generation, skip store", zap.Int64("forkID", forkID))
		return
	}
	current.Summary = &summary
	if err := s.deps.Previews.Replace(ctx, forkID, previews); err != nil {
		s.logger.Warn("Failed to store preview summary", zap.Int64("forkID", forkID), zap.Error(err))
	}
}

func (s *previewServiceImpl) ScheduleSummary(ctx context.Context, forkID int64, requesterID uuid.UUID, chapterNumber int) (uuid.UUID, error) {
	if _, err := loadOwnedFork(ctx, s.deps.Forks, s.deps.DB.Querier(), forkID, requesterID); err != nil {
		return uuid.Nil, err
	}
	key := fmt.Sprintf("summary:%d:%d", forkID, chapterNumber)
	return s.deps.Tasks.SubmitTask(ctx, key, func(taskCtx context.Context) error {
		_, err := s.GenerateAiPreviewSummary(taskCtx, forkID, requesterID, chapterNumber)
		return err
	})
}

func (s *previewServiceImpl) StreamGeneratePreview(ctx context.Context, forkID int64, requesterID uuid.UUID, direction string, onChunk func(chunk string) error) (preview *models.GeneratedPreview, err error) {
	defer func() { observe("stream_preview", err) }()
	q := s.deps.DB.Querier()
	fork, err := loadOwnedFork(ctx, s.deps.Forks, q, forkID, requesterID)
	if err != nil {
		return nil, err
	}
	release, err := s.deps.Locker.TryLock(ctx, forkLockKey(forkID))
	if err != nil {
		return nil, err
	}
	defer release()

	sc, err := s.prompts.loadContext(ctx, q, fork, true)
	if err != nil {
		return nil, err
	}
	number := sc.nextChapterNumber()
	req := interfaces.GenerationRequest{
		UserID:        fork.UserID.String(),
		SystemPrompt:  chapterSystemPrompt,
		UserInput:     s.prompts.chapterPrompt(sc, strings.TrimSpace(direction), s.opts.ChapterWordCount),
		WordCountHint: s.opts.ChapterWordCount,
	}

	content, err := runGeneration(ctx, s.deps.Generator, req, onChunk, "preview")
	if err != nil {
		s.logger.Info("Preview generation discarded", zap.Int64("forkID", forkID), zap.Error(err))
		return nil, err
	}
	title, body := splitTitle(content, fmt.Sprintf("Глава %d", number))
	return &models.GeneratedPreview{ChapterNumber: number, Title: title, ContentMarkdown: body}, nil
}

func (s *previewServiceImpl) GetDirectionOptions(ctx context.Context, forkID int64, requesterID uuid.UUID) ([]models.DirectionOption, error) {
	q := s.deps.DB.Querier()
	fork, err := loadOwnedFork(ctx, s.deps.Forks, q, forkID, requesterID)
	if err != nil {
		return nil, err
	}
	sc, err := s.prompts.loadContext(ctx, q, fork, true)
	if err != nil {
		return nil, err
	}
	raw, err := s.deps.Generator.Complete(ctx, interfaces.GenerationRequest{
		UserID:       fork.UserID.String(),
		SystemPrompt: directionsSystemPrompt,
		UserInput:    s.prompts.directionsPrompt(sc),
	})
	if err != nil {
		s.logger.Warn("Direction options generation failed, using defaults", zap.Int64("forkID", forkID), zap.Error(err))
		return fallbackDirections(), nil
	}
	options, ok := ParseDirectionOptions(raw)
	if !ok {
		s.logger.Warn("Malformed direction options, using defaults", zap.Int64("forkID", forkID))
		return fallbackDirections(), nil
	}
	return options, nil
}

// ParseDirectionOptions извлекает JSON-массив направлений из ответа модели,
// допуская markdown-обёртку вокруг него.
func ParseDirectionOptions(raw string) ([]models.DirectionOption, bool) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, false
	}
	var parsed []models.DirectionOption
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		return nil, false
	}
	options := make([]models.DirectionOption, 0, 3)
	for _, o := range parsed {
		o.Label = strings.TrimSpace(o.Label)
		o.Description = strings.TrimSpace(o.Description)
		if o.Label == "" {
			continue
		}
		options = append(options, o)
		if len(options) == 3 {
			break
		}
	}
	if len(options) == 0 {
		return nil, false
	}
	return options, true
}

func fallbackDirections() []models.DirectionOption {
	out := make([]models.DirectionOption, len(defaultDirections))
	copy(out, defaultDirections)
	return out
}

func findPreview(previews []models.PreviewChapter, chapterNumber int) *models.PreviewChapter {
	for i := range previews {
		if previews[i].ChapterNumber == chapterNumber {
			return &previews[i]
		}
	}
	return nil
}
