package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"novel-fork/internal/interfaces"
	"novel-fork/internal/models"
	"novel-fork/internal/utils"
	"novel-fork/pkg/textstats"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ForkService - хранилище форков и журнал коммитов.
type ForkService interface {
	CreateFork(ctx context.Context, userID uuid.UUID, storySlug string) (*models.Fork, error)
	GetFork(ctx context.Context, forkID int64, requesterID uuid.UUID) (*models.Fork, error)
	DeleteFork(ctx context.Context, forkID int64, requesterID uuid.UUID) error
	CheckForkExists(ctx context.Context, userID uuid.UUID, storySlug string) (bool, error)
	ListMyForks(ctx context.Context, userID uuid.UUID, cursor string, limit int) ([]models.Fork, string, error)
	UpdateReadingProgress(ctx context.Context, forkID int64, requesterID uuid.UUID, chapterSortOrder int) error

	ListCommits(ctx context.Context, forkID int64, requesterID uuid.UUID) ([]models.Commit, error)
	AppendCommit(ctx context.Context, input AppendCommitInput) (*models.Commit, error)
	GenerateAndAppendCommit(ctx context.Context, input GenerateCommitInput, onChunk func(chunk string) error) (*models.Commit, error)
	Rollback(ctx context.Context, forkID int64, requesterID uuid.UUID, commitID int64) error
	RollbackToBranchPoint(ctx context.Context, forkID int64, requesterID uuid.UUID, branchPointSortOrder int) error
}

type AppendCommitInput struct {
	ForkID          int64     `validate:"required"`
	RequesterID     uuid.UUID `validate:"required"`
	BranchPointID   *int64
	OptionID        *int64
	Title           string `validate:"required,max=255"`
	ContentMarkdown string `validate:"required"`
}

type GenerateCommitInput struct {
	ForkID        int64     `validate:"required"`
	RequesterID   uuid.UUID `validate:"required"`
	BranchPointID *int64
	OptionID      *int64
	Title         string `validate:"max=255"`
}

type forkServiceImpl struct {
	deps    Deps
	prompts *PromptBuilder
	opts    Options
	logger  *zap.Logger
}

func NewForkService(deps Deps, prompts *PromptBuilder, opts Options, logger *zap.Logger) ForkService {
	return &forkServiceImpl{
		deps:    deps,
		prompts: prompts,
		opts:    opts.withDefaults(),
		logger:  logger.Named("ForkService"),
	}
}

func (s *forkServiceImpl) CreateFork(ctx context.Context, userID uuid.UUID, storySlug string) (fork *models.Fork, err error) {
	defer func() { observe("create_fork", err) }()
	q := s.deps.DB.Querier()
	story, err := s.deps.Stories.GetPublishedBySlug(ctx, q, storySlug)
	if err != nil {
		return nil, err
	}

	existing, err := s.deps.Forks.GetByUserAndStory(ctx, q, userID, story.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("lookup fork: %w", err)
	}

	fork = &models.Fork{UserID: userID, StoryID: story.ID, StorySlug: story.Slug}
	if err := s.deps.Forks.Create(ctx, q, fork); err != nil {
		if errors.Is(err, models.ErrConflict) {
			// Параллельный запрос успел создать форк раньше.
			s.logger.Debug("Fork created concurrently, returning existing", zap.String("userID", userID.String()), zap.Int64("storyID", story.ID))
			return s.deps.Forks.GetByUserAndStory(ctx, q, userID, story.ID)
		}
		return nil, fmt.Errorf("create fork: %w", err)
	}
	s.logger.Info("Fork created", zap.Int64("forkID", fork.ID), zap.String("userID", userID.String()), zap.String("slug", story.Slug))
	return fork, nil
}

func (s *forkServiceImpl) GetFork(ctx context.Context, forkID int64, requesterID uuid.UUID) (*models.Fork, error) {
	return loadOwnedFork(ctx, s.deps.Forks, s.deps.DB.Querier(), forkID, requesterID)
}

func (s *forkServiceImpl) DeleteFork(ctx context.Context, forkID int64, requesterID uuid.UUID) (err error) {
	defer func() { observe("delete_fork", err) }()
	fork, err := loadOwnedFork(ctx, s.deps.Forks, s.deps.DB.Querier(), forkID, requesterID)
	if err != nil {
		return err
	}
	release, err := s.deps.Locker.TryLock(ctx, forkLockKey(forkID))
	if err != nil {
		return err
	}
	defer release()

	// Коммиты и закладки удаляются каскадом.
	if err := s.deps.Forks.Delete(ctx, s.deps.DB.Querier(), forkID); err != nil {
		return fmt.Errorf("delete fork: %w", err)
	}
	if err := s.deps.Previews.Clear(ctx, forkID); err != nil {
		s.logger.Warn("Preview buffer left behind after fork deletion", zap.Int64("forkID", forkID), zap.Error(err))
	}
	publishEvent(ctx, s.deps.Publisher, s.logger, models.ForkEvent{
		Type:    models.EventForkDeleted,
		StoryID: fork.StoryID,
		ForkID:  int64Ptr(forkID),
		UserID:  requesterID,
	})
	s.logger.Info("Fork deleted", zap.Int64("forkID", forkID))
	return nil
}

func (s *forkServiceImpl) CheckForkExists(ctx context.Context, userID uuid.UUID, storySlug string) (bool, error) {
	return s.deps.Forks.ExistsByUserAndSlug(ctx, s.deps.DB.Querier(), userID, storySlug)
}

func (s *forkServiceImpl) ListMyForks(ctx context.Context, userID uuid.UUID, cursor string, limit int) ([]models.Fork, string, error) {
	if _, _, err := utils.DecodeCursor(cursor); err != nil {
		return nil, "", fmt.Errorf("%w: %v", models.ErrInvalidArgument, err)
	}
	return s.deps.Forks.ListByUser(ctx, s.deps.DB.Querier(), userID, cursor, utils.NormalizeLimit(limit))
}

func (s *forkServiceImpl) UpdateReadingProgress(ctx context.Context, forkID int64, requesterID uuid.UUID, chapterSortOrder int) error {
	q := s.deps.DB.Querier()
	fork, err := loadOwnedFork(ctx, s.deps.Forks, q, forkID, requesterID)
	if err != nil {
		return err
	}
	if chapterSortOrder < 0 {
		return fmt.Errorf("%w: reading progress must not be negative", models.ErrInvalidArgument)
	}
	authored, err := s.deps.Stories.CountAuthoredChapters(ctx, q, fork.StoryID)
	if err != nil {
		return fmt.Errorf("count authored chapters: %w", err)
	}
	commits, err := s.deps.Commits.Count(ctx, q, forkID)
	if err != nil {
		return fmt.Errorf("count commits: %w", err)
	}
	if chapterSortOrder > authored+commits {
		return fmt.Errorf("%w: reading progress %d is beyond the last chapter %d", models.ErrInvalidArgument, chapterSortOrder, authored+commits)
	}
	return s.deps.Forks.UpdateReadingProgress(ctx, q, forkID, chapterSortOrder)
}

func (s *forkServiceImpl) ListCommits(ctx context.Context, forkID int64, requesterID uuid.UUID) ([]models.Commit, error) {
	q := s.deps.DB.Querier()
	if _, err := loadOwnedFork(ctx, s.deps.Forks, q, forkID, requesterID); err != nil {
		return nil, err
	}
	return s.deps.Commits.ListByFork(ctx, q, forkID)
}

func (s *forkServiceImpl) AppendCommit(ctx context.Context, input AppendCommitInput) (commit *models.Commit, err error) {
	defer func() { observe("append_commit", err) }()
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

	return s.appendLocked(ctx, fork, input)
}

// resolveChoice проверяет, что выбор относится к истории форка и к следующей
// неразрешённой точке ветвления.
func (s *forkServiceImpl) resolveChoice(ctx context.Context, q interfaces.DBTX, fork *models.Fork, branchPointID, optionID *int64) (*models.Option, error) {
	if branchPointID == nil {
		if optionID != nil {
			return nil, fmt.Errorf("%w: option requires a branch point", models.ErrInvalidArgument)
		}
		return nil, nil
	}
	bp, err := s.deps.Branches.GetBranchPoint(ctx, q, *branchPointID)
	if err != nil {
		return nil, err
	}
	if bp.StoryID != fork.StoryID {
		return nil, models.ErrBranchPointNotFound
	}
	lastResolved, err := s.deps.Commits.LastResolvedBranchPointSortOrder(ctx, q, fork.ID)
	if err != nil {
		return nil, fmt.Errorf("last resolved branch point: %w", err)
	}
	if bp.SortOrder <= lastResolved {
		return nil, fmt.Errorf("%w: branch point %d, last resolved %d", models.ErrBranchPointOrder, bp.SortOrder, lastResolved)
	}
	points, err := s.deps.Branches.ListByStory(ctx, q, fork.StoryID)
	if err != nil {
		return nil, fmt.Errorf("list branch points: %w", err)
	}
	// Пропускать точки нельзя: разрешается только ближайшая после последней разрешённой.
	next := bp.SortOrder
	for _, p := range points {
		if p.SortOrder > lastResolved && p.SortOrder < next {
			next = p.SortOrder
		}
	}
	if next != bp.SortOrder {
		return nil, fmt.Errorf("%w: branch point %d, next to resolve %d", models.ErrBranchPointOrder, bp.SortOrder, next)
	}
	if optionID == nil {
		return nil, nil
	}
	option, err := s.deps.Branches.GetOption(ctx, q, *optionID)
	if err != nil {
		return nil, err
	}
	if option.BranchPointID != bp.ID {
		return nil, models.ErrOptionNotFound
	}
	return option, nil
}

// appendLocked вызывается под блокировкой форка.
func (s *forkServiceImpl) appendLocked(ctx context.Context, fork *models.Fork, input AppendCommitInput) (*models.Commit, error) {
	commit := &models.Commit{
		ForkID:          fork.ID,
		BranchPointID:   input.BranchPointID,
		OptionID:        input.OptionID,
		Title:           strings.TrimSpace(input.Title),
		ContentMarkdown: input.ContentMarkdown,
		WordCount:       textstats.WordCount(input.ContentMarkdown),
	}

	err := s.deps.DB.InTx(ctx, func(tx interfaces.DBTX) error {
		if _, err := s.resolveChoice(ctx, tx, fork, input.BranchPointID, input.OptionID); err != nil {
			return err
		}
		if err := s.deps.Commits.Append(ctx, tx, commit); err != nil {
			return err
		}
		return s.deps.Forks.Touch(ctx, tx, fork.ID)
	})
	if err != nil {
		return nil, err
	}
	commitsAppendedTotal.Inc()

	if input.OptionID != nil {
		if err := s.deps.Branches.IncrementSelectionCount(ctx, s.deps.DB.Querier(), *input.OptionID); err != nil {
			s.logger.Warn("Failed to increment selection count", zap.Int64("optionID", *input.OptionID), zap.Error(err))
		}
	}
	// Нумерация предпросмотра продолжала старый журнал и больше не действительна.
	if err := s.deps.Previews.Clear(ctx, fork.ID); err != nil {
		s.logger.Warn("Failed to clear preview buffer after append", zap.Int64("forkID", fork.ID), zap.Error(err))
	}

	publishEvent(ctx, s.deps.Publisher, s.logger, models.ForkEvent{
		Type:      models.EventCommitAppended,
		StoryID:   fork.StoryID,
		ForkID:    int64Ptr(fork.ID),
		UserID:    fork.UserID,
		CommitID:  int64Ptr(commit.ID),
		SortOrder: intPtr(commit.SortOrder),
	})
	s.logger.Info("Commit appended",
		zap.Int64("forkID", fork.ID),
		zap.Int64("commitID", commit.ID),
		zap.Int("sortOrder", commit.SortOrder),
	)
	return commit, nil
}

func (s *forkServiceImpl) GenerateAndAppendCommit(ctx context.Context, input GenerateCommitInput, onChunk func(chunk string) error) (commit *models.Commit, err error) {
	defer func() { observe("generate_commit", err) }()
	if err := validateInput(input); err != nil {
		return nil, err
	}
	q := s.deps.DB.Querier()
	fork, err := loadOwnedFork(ctx, s.deps.Forks, q, input.ForkID, input.RequesterID)
	if err != nil {
		return nil, err
	}
	release, err := s.deps.Locker.TryLock(ctx, forkLockKey(fork.ID))
	if err != nil {
		return nil, err
	}
	defer release()

	// Проверяем выбор до генерации, чтобы не тратить вызов модели впустую.
	option, err := s.resolveChoice(ctx, q, fork, input.BranchPointID, input.OptionID)
	if err != nil {
		return nil, err
	}
	sc, err := s.prompts.loadContext(ctx, q, fork, false)
	if err != nil {
		return nil, err
	}
	number := sc.nextChapterNumber()
	req := interfaces.GenerationRequest{
		UserID:        fork.UserID.String(),
		SystemPrompt:  chapterSystemPrompt,
		UserInput:     s.prompts.chapterPrompt(sc, optionInstruction(option), s.opts.ChapterWordCount),
		WordCountHint: s.opts.ChapterWordCount,
	}

	content, err := runGeneration(ctx, s.deps.Generator, req, onChunk, "commit")
	if err != nil {
		s.logger.Warn("Commit generation aborted", zap.Int64("forkID", fork.ID), zap.Error(err))
		return nil, err
	}

	title, body := splitTitle(content, fmt.Sprintf("Глава %d", number))
	if input.Title != "" {
		title = input.Title
	}
	return s.appendLocked(ctx, fork, AppendCommitInput{
		ForkID:          fork.ID,
		RequesterID:     input.RequesterID,
		BranchPointID:   input.BranchPointID,
		OptionID:        input.OptionID,
		Title:           title,
		ContentMarkdown: body,
	})
}

func (s *forkServiceImpl) Rollback(ctx context.Context, forkID int64, requesterID uuid.UUID, commitID int64) (err error) {
	defer func() { observe("rollback", err) }()
	q := s.deps.DB.Querier()
	fork, err := loadOwnedFork(ctx, s.deps.Forks, q, forkID, requesterID)
	if err != nil {
		return err
	}
	release, err := s.deps.Locker.TryLock(ctx, forkLockKey(forkID))
	if err != nil {
		return err
	}
	defer release()
	if err := s.ensureNotUnderReview(ctx, q, forkID); err != nil {
		return err
	}

	commit, err := s.deps.Commits.GetByID(ctx, q, commitID)
	if err != nil {
		return err
	}
	if commit.ForkID != forkID {
		return models.ErrCommitNotFound
	}
	return s.truncateLocked(ctx, fork, commit.SortOrder)
}

func (s *forkServiceImpl) RollbackToBranchPoint(ctx context.Context, forkID int64, requesterID uuid.UUID, branchPointSortOrder int) (err error) {
	defer func() { observe("rollback_to_branch_point", err) }()
	if branchPointSortOrder < 0 {
		return fmt.Errorf("%w: branch point sort order must not be negative", models.ErrInvalidArgument)
	}
	q := s.deps.DB.Querier()
	fork, err := loadOwnedFork(ctx, s.deps.Forks, q, forkID, requesterID)
	if err != nil {
		return err
	}
	release, err := s.deps.Locker.TryLock(ctx, forkLockKey(forkID))
	if err != nil {
		return err
	}
	defer release()
	if err := s.ensureNotUnderReview(ctx, q, forkID); err != nil {
		return err
	}

	// 0 - откат к началу форка.
	if branchPointSortOrder == 0 {
		return s.truncateLocked(ctx, fork, 1)
	}
	commit, err := s.deps.Commits.FindByBranchPointSortOrder(ctx, q, forkID, branchPointSortOrder)
	if err != nil {
		return err
	}
	return s.truncateLocked(ctx, fork, commit.SortOrder)
}

// ensureNotUnderReview запрещает откат, пока PR из форка ждёт ревью:
// иначе одобрение привило бы уже удалённые коммиты.
func (s *forkServiceImpl) ensureNotUnderReview(ctx context.Context, q interfaces.DBTX, forkID int64) error {
	pending, err := s.deps.PRs.HasPendingForFork(ctx, q, forkID)
	if err != nil {
		return err
	}
	if pending {
		return models.ErrForkUnderReview
	}
	return nil
}

// truncateLocked удаляет коммиты начиная с fromSortOrder включительно и сбрасывает предпросмотр.
func (s *forkServiceImpl) truncateLocked(ctx context.Context, fork *models.Fork, fromSortOrder int) error {
	var deleted int64
	err := s.deps.DB.InTx(ctx, func(tx interfaces.DBTX) error {
		var err error
		deleted, err = s.deps.Commits.DeleteFromSortOrder(ctx, tx, fork.ID, fromSortOrder)
		if err != nil {
			return err
		}
		return s.deps.Forks.Touch(ctx, tx, fork.ID)
	})
	if err != nil {
		return fmt.Errorf("rollback fork: %w", err)
	}
	if err := s.deps.Previews.Clear(ctx, fork.ID); err != nil {
		s.logger.Warn("Failed to clear preview buffer after rollback", zap.Int64("forkID", fork.ID), zap.Error(err))
	}
	publishEvent(ctx, s.deps.Publisher, s.logger, models.ForkEvent{
		Type:      models.EventForkRolledBack,
		StoryID:   fork.StoryID,
		ForkID:    int64Ptr(fork.ID),
		UserID:    fork.UserID,
		SortOrder: intPtr(fromSortOrder),
	})
	s.logger.Info("Fork rolled back",
		zap.Int64("forkID", fork.ID),
		zap.Int("fromSortOrder", fromSortOrder),
		zap.Int64("deletedCommits", deleted),
	)
	return nil
}

// runGeneration стримит ответ генератора в локальный буфер. Буфер отдаётся
// только при успешном завершении.
func runGeneration(ctx context.Context, gen interfaces.ContentGenerator, req interfaces.GenerationRequest, onChunk func(string) error, kind string) (string, error) {
	started := time.Now()
	var (
		acc      strings.Builder
		chunkErr error
	)
	_, err := gen.Generate(ctx, req, func(chunk string) error {
		acc.WriteString(chunk)
		if onChunk != nil {
			if chunkErr = onChunk(chunk); chunkErr != nil {
				return chunkErr
			}
		}
		return nil
	})
	outcome := "ok"
	defer func() {
		previewGenerationDuration.WithLabelValues(kind, outcome).Observe(time.Since(started).Seconds())
	}()

	if ctxErr := ctx.Err(); ctxErr != nil {
		outcome = "cancelled"
		return "", ctxErr
	}
	if chunkErr != nil {
		// Получатель чанков отказался от генерации.
		outcome = "cancelled"
		return "", chunkErr
	}
	if err != nil {
		outcome = "error"
		if errors.Is(err, models.ErrUpstreamUnavailable) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", models.ErrGenerationFailed, err)
	}
	if strings.TrimSpace(acc.String()) == "" {
		outcome = "empty"
		return "", fmt.Errorf("%w: empty response", models.ErrGenerationFailed)
	}
	return acc.String(), nil
}
