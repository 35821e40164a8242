package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"novel-fork/internal/interfaces"
	"novel-fork/internal/models"
	"novel-fork/internal/utils"
	"novel-fork/pkg/textstats"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PrService - PR-новеллы, отправка веток на ревью и их прививка к истории.
type PrService interface {
	CreatePrNovel(ctx context.Context, userID uuid.UUID, input CreatePrNovelInput) (*models.PrNovel, error)
	GetPrNovel(ctx context.Context, userID uuid.UUID, novelID int64) (*models.PrNovel, error)
	ListMyPrNovels(ctx context.Context, userID uuid.UUID) ([]models.PrNovel, error)
	UpdatePrNovel(ctx context.Context, userID uuid.UUID, novelID int64, input UpdatePrNovelInput) (*models.PrNovel, error)
	DeletePrNovel(ctx context.Context, userID uuid.UUID, novelID int64) error

	AddPrChapter(ctx context.Context, userID uuid.UUID, novelID int64, input PrChapterInput) (*models.PrChapter, error)
	UpdatePrChapter(ctx context.Context, userID uuid.UUID, novelID, chapterID int64, input PrChapterInput) (*models.PrChapter, error)
	DeletePrChapter(ctx context.Context, userID uuid.UUID, novelID, chapterID int64) error

	SubmitPr(ctx context.Context, userID uuid.UUID, input SubmitPrInput) (*models.PrSubmission, error)
	ReviewPr(ctx context.Context, reviewerID uuid.UUID, submissionID int64, status models.SubmissionStatus, comment *string) (*models.PrSubmission, error)
	GetSubmission(ctx context.Context, userID uuid.UUID, submissionID int64) (*models.PrSubmission, error)
	ListMySubmissions(ctx context.Context, userID uuid.UUID, cursor string, limit int) ([]models.PrSubmission, string, error)
	ListReceivedSubmissions(ctx context.Context, userID uuid.UUID, cursor string, limit int) ([]models.PrSubmission, string, error)
}

type CreatePrNovelInput struct {
	StoryID              int64   `json:"story_id" validate:"required"`
	Title                string  `json:"title" validate:"required,max=255"`
	Description          *string `json:"description" validate:"omitempty,max=2000"`
	FromChapterSortOrder int     `json:"from_chapter_sort_order" validate:"min=1"`
}

type UpdatePrNovelInput struct {
	Title       string  `json:"title" validate:"required,max=255"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

type PrChapterInput struct {
	Title           string `json:"title" validate:"required,max=255"`
	ContentMarkdown string `json:"content_markdown" validate:"required"`
}

// SubmitPrInput - источник задаётся ровно одним из PrNovelID / ForkID.
type SubmitPrInput struct {
	PrNovelID    *int64  `json:"pr_novel_id"`
	ForkID       *int64  `json:"fork_id"`
	FromCommitID *int64  `json:"from_commit_id"`
	Title        string  `json:"title" validate:"required,max=255"`
	Description  *string `json:"description" validate:"omitempty,max=2000"`
}

type prServiceImpl struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
}

func NewPrService(deps Deps, opts Options, logger *zap.Logger) PrService {
	return &prServiceImpl{deps: deps, opts: opts.withDefaults(), logger: logger.Named("PrService")}
}

func (s *prServiceImpl) CreatePrNovel(ctx context.Context, userID uuid.UUID, input CreatePrNovelInput) (*models.PrNovel, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	q := s.deps.DB.Querier()
	story, err := s.deps.Stories.GetByID(ctx, q, input.StoryID)
	if err != nil {
		return nil, err
	}
	if !story.IsPublished {
		return nil, models.ErrStoryNotFound
	}
	authored, err := s.deps.Stories.CountAuthoredChapters(ctx, q, story.ID)
	if err != nil {
		return nil, fmt.Errorf("count authored chapters: %w", err)
	}
	if input.FromChapterSortOrder > authored {
		return nil, fmt.Errorf("%w: story has %d chapters, cannot branch from %d", models.ErrInvalidArgument, authored, input.FromChapterSortOrder)
	}

	novel := &models.PrNovel{
		StoryID:              story.ID,
		UserID:               userID,
		Title:                strings.TrimSpace(input.Title),
		Description:          input.Description,
		FromChapterSortOrder: input.FromChapterSortOrder,
		Status:               models.PrNovelStatusDraft,
	}
	if err := s.deps.PRs.CreateNovel(ctx, q, novel); err != nil {
		return nil, err
	}
	novel.Chapters = []models.PrChapter{}
	s.logger.Info("PR novel created", zap.Int64("novelID", novel.ID), zap.Int64("storyID", story.ID))
	return novel, nil
}

// GetPrNovel доступен владельцу и автору истории.
func (s *prServiceImpl) GetPrNovel(ctx context.Context, userID uuid.UUID, novelID int64) (*models.PrNovel, error) {
	q := s.deps.DB.Querier()
	novel, err := s.deps.PRs.GetNovel(ctx, q, novelID)
	if err != nil {
		return nil, err
	}
	if novel.UserID != userID {
		story, err := s.deps.Stories.GetByID(ctx, q, novel.StoryID)
		if err != nil {
			return nil, err
		}
		if story.AuthorID != userID {
			return nil, models.ErrNotPrOwner
		}
	}
	chapters, err := s.deps.PRs.ListChapters(ctx, q, novelID)
	if err != nil {
		return nil, err
	}
	novel.Chapters = chapters
	return novel, nil
}

func (s *prServiceImpl) ListMyPrNovels(ctx context.Context, userID uuid.UUID) ([]models.PrNovel, error) {
	return s.deps.PRs.ListNovelsByUser(ctx, s.deps.DB.Querier(), userID)
}

// editableNovel загружает новеллу для правки. Правка отклонённой новеллы
// возвращает её в черновик.
func (s *prServiceImpl) editableNovel(ctx context.Context, tx interfaces.DBTX, userID uuid.UUID, novelID int64) (*models.PrNovel, error) {
	novel, err := s.deps.PRs.GetNovel(ctx, tx, novelID)
	if err != nil {
		return nil, err
	}
	if novel.UserID != userID {
		return nil, models.ErrNotPrOwner
	}
	if !novel.Status.Editable() {
		return nil, fmt.Errorf("%w: status %s", models.ErrPrNotEditable, novel.Status)
	}
	if novel.Status == models.PrNovelStatusRejected {
		if err := s.deps.PRs.UpdateNovelStatus(ctx, tx, novelID, models.PrNovelStatusDraft, novel.ReviewComment); err != nil {
			return nil, err
		}
		novel.Status = models.PrNovelStatusDraft
	}
	return novel, nil
}

func (s *prServiceImpl) UpdatePrNovel(ctx context.Context, userID uuid.UUID, novelID int64, input UpdatePrNovelInput) (*models.PrNovel, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	var novel *models.PrNovel
	err := s.deps.DB.InTx(ctx, func(tx interfaces.DBTX) error {
		var err error
		novel, err = s.editableNovel(ctx, tx, userID, novelID)
		if err != nil {
			return err
		}
		novel.Title = strings.TrimSpace(input.Title)
		novel.Description = input.Description
		return s.deps.PRs.UpdateNovel(ctx, tx, novel)
	})
	if err != nil {
		return nil, err
	}
	return novel, nil
}

func (s *prServiceImpl) DeletePrNovel(ctx context.Context, userID uuid.UUID, novelID int64) error {
	return s.deps.DB.InTx(ctx, func(tx interfaces.DBTX) error {
		if _, err := s.editableNovel(ctx, tx, userID, novelID); err != nil {
			return err
		}
		return s.deps.PRs.DeleteNovel(ctx, tx, novelID)
	})
}

func (s *prServiceImpl) AddPrChapter(ctx context.Context, userID uuid.UUID, novelID int64, input PrChapterInput) (*models.PrChapter, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	chapter := &models.PrChapter{
		PrNovelID:       novelID,
		Title:           strings.TrimSpace(input.Title),
		ContentMarkdown: input.ContentMarkdown,
		WordCount:       textstats.WordCount(input.ContentMarkdown),
	}
	err := s.deps.DB.InTx(ctx, func(tx interfaces.DBTX) error {
		if _, err := s.editableNovel(ctx, tx, userID, novelID); err != nil {
			return err
		}
		return s.deps.PRs.AddChapter(ctx, tx, chapter)
	})
	if err != nil {
		return nil, err
	}
	return chapter, nil
}

func (s *prServiceImpl) UpdatePrChapter(ctx context.Context, userID uuid.UUID, novelID, chapterID int64, input PrChapterInput) (*models.PrChapter, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	var chapter *models.PrChapter
	err := s.deps.DB.InTx(ctx, func(tx interfaces.DBTX) error {
		if _, err := s.editableNovel(ctx, tx, userID, novelID); err != nil {
			return err
		}
		var err error
		chapter, err = s.deps.PRs.GetChapter(ctx, tx, novelID, chapterID)
		if err != nil {
			return err
		}
		chapter.Title = strings.TrimSpace(input.Title)
		chapter.ContentMarkdown = input.ContentMarkdown
		chapter.WordCount = textstats.WordCount(input.ContentMarkdown)
		return s.deps.PRs.UpdateChapter(ctx, tx, chapter)
	})
	if err != nil {
		return nil, err
	}
	return chapter, nil
}

func (s *prServiceImpl) DeletePrChapter(ctx context.Context, userID uuid.UUID, novelID, chapterID int64) error {
	return s.deps.DB.InTx(ctx, func(tx interfaces.DBTX) error {
		if _, err := s.editableNovel(ctx, tx, userID, novelID); err != nil {
			return err
		}
		return s.deps.PRs.DeleteChapter(ctx, tx, novelID, chapterID)
	})
}

func (s *prServiceImpl) SubmitPr(ctx context.Context, userID uuid.UUID, input SubmitPrInput) (submission *models.PrSubmission, err error) {
	defer func() { observe("submit_pr", err) }()
	if (input.PrNovelID == nil) == (input.ForkID == nil) {
		return nil, models.ErrSubmitSource
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	submission = &models.PrSubmission{
		SubmitterID: userID,
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		Status:      models.SubmissionStatusPending,
	}
	err = s.deps.DB.InTx(ctx, func(tx interfaces.DBTX) error {
		var storyID int64
		if input.PrNovelID != nil {
			novel, err := s.prepareNovelSource(ctx, tx, userID, *input.PrNovelID)
			if err != nil {
				return err
			}
			storyID = novel.StoryID
			submission.PrNovelID = input.PrNovelID
		} else {
			fork, upTo, err := s.prepareForkSource(ctx, tx, userID, *input.ForkID, input.FromCommitID)
			if err != nil {
				return err
			}
			storyID = fork.StoryID
			submission.ForkID = input.ForkID
			submission.FromCommitID = int64Ptr(upTo)
		}

		story, err := s.deps.Stories.GetByID(ctx, tx, storyID)
		if err != nil {
			return err
		}
		submission.StoryID = story.ID
		submission.AuthorID = story.AuthorID

		if err := s.deps.PRs.CreateSubmission(ctx, tx, submission); err != nil {
			return err
		}
		if submission.PrNovelID != nil {
			return s.deps.PRs.UpdateNovelStatus(ctx, tx, *submission.PrNovelID, models.PrNovelStatusSubmitted, nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	publishEvent(ctx, s.deps.Publisher, s.logger, models.ForkEvent{
		Type:         models.EventPrSubmitted,
		StoryID:      submission.StoryID,
		ForkID:       submission.ForkID,
		UserID:       userID,
		SubmissionID: int64Ptr(submission.ID),
	})
	s.logger.Info("PR submitted", zap.Int64("submissionID", submission.ID), zap.Int64("storyID", submission.StoryID))
	return submission, nil
}

func (s *prServiceImpl) prepareNovelSource(ctx context.Context, tx interfaces.DBTX, userID uuid.UUID, novelID int64) (*models.PrNovel, error) {
	novel, err := s.deps.PRs.GetNovel(ctx, tx, novelID)
	if err != nil {
		return nil, err
	}
	if novel.UserID != userID {
		return nil, models.ErrNotPrOwner
	}
	pending, err := s.deps.PRs.HasPendingForNovel(ctx, tx, novelID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, models.ErrPendingSubmission
	}
	if !novel.Status.Editable() {
		return nil, fmt.Errorf("%w: status %s", models.ErrPrNotEditable, novel.Status)
	}
	chapters, err := s.deps.PRs.ListChapters(ctx, tx, novelID)
	if err != nil {
		return nil, err
	}
	if len(chapters) == 0 {
		return nil, fmt.Errorf("%w: pr novel has no chapters", models.ErrInvalidState)
	}
	return novel, nil
}

// prepareForkSource проверяет форк и возвращает ID последнего коммита, попадающего в PR.
// Без fromCommitID фиксируется текущий хвост лога: коммиты после отправки в PR не входят.
func (s *prServiceImpl) prepareForkSource(ctx context.Context, tx interfaces.DBTX, userID uuid.UUID, forkID int64, fromCommitID *int64) (*models.Fork, int64, error) {
	fork, err := loadOwnedFork(ctx, s.deps.Forks, tx, forkID, userID)
	if err != nil {
		return nil, 0, err
	}
	pending, err := s.deps.PRs.HasPendingForFork(ctx, tx, forkID)
	if err != nil {
		return nil, 0, err
	}
	if pending {
		return nil, 0, models.ErrPendingSubmission
	}
	commits, err := s.deps.Commits.ListByFork(ctx, tx, forkID)
	if err != nil {
		return nil, 0, err
	}
	if len(commits) == 0 {
		return nil, 0, models.ErrEmptyFork
	}
	if fromCommitID == nil {
		return fork, commits[len(commits)-1].ID, nil
	}
	for _, c := range commits {
		if c.ID == *fromCommitID {
			return fork, c.ID, nil
		}
	}
	return nil, 0, models.ErrCommitNotFound
}

func (s *prServiceImpl) ReviewPr(ctx context.Context, reviewerID uuid.UUID, submissionID int64, status models.SubmissionStatus, comment *string) (result *models.PrSubmission, err error) {
	defer func() { observe("review_pr", err) }()
	if status != models.SubmissionStatusApproved && status != models.SubmissionStatusRejected {
		return nil, fmt.Errorf("%w: review status must be approved or rejected", models.ErrInvalidArgument)
	}
	q := s.deps.DB.Querier()
	submission, err := s.deps.PRs.GetSubmission(ctx, q, submissionID)
	if err != nil {
		return nil, err
	}
	if submission.AuthorID != reviewerID {
		return nil, models.ErrNotStoryAuthor
	}
	if submission.Status != models.SubmissionStatusPending {
		return nil, models.ErrSubmissionReviewed
	}

	grafted := 0
	if status == models.SubmissionStatusApproved {
		release, err := s.deps.Locker.Lock(ctx, storyLockKey(submission.StoryID), s.opts.StoryLockWait)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	err = s.deps.DB.InTx(ctx, func(tx interfaces.DBTX) error {
		locked, err := s.deps.PRs.GetSubmissionForUpdate(ctx, tx, submissionID)
		if err != nil {
			return err
		}
		if locked.Status != models.SubmissionStatusPending {
			return models.ErrSubmissionReviewed
		}
		if status == models.SubmissionStatusApproved {
			if grafted, err = s.graft(ctx, tx, locked); err != nil {
				return err
			}
		}
		if err := s.deps.PRs.UpdateSubmissionReview(ctx, tx, submissionID, status, comment); err != nil {
			return err
		}
		if locked.PrNovelID != nil {
			novelStatus := models.PrNovelStatusRejected
			if status == models.SubmissionStatusApproved {
				novelStatus = models.PrNovelStatusApproved
			}
			return s.deps.PRs.UpdateNovelStatus(ctx, tx, *locked.PrNovelID, novelStatus, comment)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if grafted > 0 {
		prGraftedChaptersTotal.Add(float64(grafted))
		if s.deps.TreeCache != nil {
			if err := s.deps.TreeCache.Invalidate(ctx, submission.StoryID); err != nil {
				s.logger.Warn("Failed to invalidate branch tree cache", zap.Int64("storyID", submission.StoryID), zap.Error(err))
			}
		}
	}
	reviewed := status
	publishEvent(ctx, s.deps.Publisher, s.logger, models.ForkEvent{
		Type:         models.EventPrReviewed,
		StoryID:      submission.StoryID,
		ForkID:       submission.ForkID,
		UserID:       submission.SubmitterID,
		SubmissionID: int64Ptr(submissionID),
		Status:       &reviewed,
	})
	s.logger.Info("PR reviewed",
		zap.Int64("submissionID", submissionID),
		zap.String("status", string(status)),
		zap.Int("graftedChapters", grafted),
	)
	return s.deps.PRs.GetSubmission(ctx, q, submissionID)
}

// graft прививает главы источника к дереву истории цепочкой от авторской главы ветвления.
func (s *prServiceImpl) graft(ctx context.Context, tx interfaces.DBTX, submission *models.PrSubmission) (int, error) {
	chapters, anchorSortOrder, err := s.graftSource(ctx, tx, submission)
	if err != nil {
		return 0, err
	}
	if len(chapters) == 0 {
		return 0, fmt.Errorf("%w: nothing to graft", models.ErrInvalidState)
	}
	parent, err := s.anchorChapter(ctx, tx, submission.StoryID, anchorSortOrder)
	if err != nil {
		return 0, err
	}

	var parentID *int64
	baseOrder := 0
	if parent != nil {
		parentID = int64Ptr(parent.ID)
		baseOrder = parent.SortOrder
	}
	branchName := submission.Title
	for i, ch := range chapters {
		node := &models.StoryChapter{
			StoryID:         submission.StoryID,
			SortOrder:       baseOrder + i + 1,
			Title:           ch.Title,
			ContentMarkdown: ch.ContentMarkdown,
			ParentChapterID: parentID,
			AuthorID:        submission.SubmitterID,
			IsMainline:      false,
			BranchName:      &branchName,
			WordCount:       ch.WordCount,
		}
		if err := s.deps.Stories.InsertChapter(ctx, tx, node); err != nil {
			return 0, fmt.Errorf("graft chapter %d: %w", i+1, err)
		}
		parentID = int64Ptr(node.ID)
	}
	return len(chapters), nil
}

// graftSource возвращает главы для прививки и sortOrder авторской главы,
// от которой ответвляется источник. Для форка это 0: его коммиты генерировались
// после всех авторских глав, поэтому родителем становится последняя из них.
func (s *prServiceImpl) graftSource(ctx context.Context, tx interfaces.DBTX, submission *models.PrSubmission) ([]models.GraftChapter, int, error) {
	if submission.PrNovelID != nil {
		novel, err := s.deps.PRs.GetNovel(ctx, tx, *submission.PrNovelID)
		if err != nil {
			return nil, 0, err
		}
		prChapters, err := s.deps.PRs.ListChapters(ctx, tx, novel.ID)
		if err != nil {
			return nil, 0, err
		}
		out := make([]models.GraftChapter, 0, len(prChapters))
		for _, ch := range prChapters {
			out = append(out, models.GraftChapter{Title: ch.Title, ContentMarkdown: ch.ContentMarkdown, WordCount: ch.WordCount})
		}
		return out, novel.FromChapterSortOrder, nil
	}

	if submission.ForkID == nil {
		// Форк удалён после отправки.
		return nil, 0, models.ErrForkNotFound
	}
	commits, err := s.deps.Commits.ListByFork(ctx, tx, *submission.ForkID)
	if err != nil {
		return nil, 0, err
	}
	// Префикс лога до fromCommitId включительно: у каждой привитой главы
	// предшественник тоже оказывается в дереве.
	upTo := len(commits)
	if submission.FromCommitID != nil {
		upTo = 0
		for _, c := range commits {
			if c.ID == *submission.FromCommitID {
				upTo = c.SortOrder
				break
			}
		}
		if upTo == 0 {
			return nil, 0, models.ErrCommitNotFound
		}
	}

	out := make([]models.GraftChapter, 0, len(commits))
	for _, c := range commits {
		if c.SortOrder > upTo {
			break
		}
		out = append(out, models.GraftChapter{Title: c.Title, ContentMarkdown: c.ContentMarkdown, WordCount: c.WordCount})
	}
	return out, 0, nil
}

// anchorChapter ищет авторскую главу ветвления; при sortOrder 0 или без совпадения берётся последняя.
// Для истории без глав возвращает nil: ветка станет отдельным корнем.
func (s *prServiceImpl) anchorChapter(ctx context.Context, tx interfaces.DBTX, storyID int64, sortOrder int) (*models.StoryChapter, error) {
	if sortOrder > 0 {
		chapter, err := s.deps.Stories.GetMainlineChapterBySortOrder(ctx, tx, storyID, sortOrder)
		if err == nil {
			return chapter, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
	}
	authored, err := s.deps.Stories.ListAuthoredChapters(ctx, tx, storyID)
	if err != nil {
		return nil, err
	}
	if len(authored) == 0 {
		return nil, nil
	}
	last := authored[len(authored)-1]
	return &last, nil
}

func (s *prServiceImpl) GetSubmission(ctx context.Context, userID uuid.UUID, submissionID int64) (*models.PrSubmission, error) {
	submission, err := s.deps.PRs.GetSubmission(ctx, s.deps.DB.Querier(), submissionID)
	if err != nil {
		return nil, err
	}
	if submission.SubmitterID != userID && submission.AuthorID != userID {
		return nil, models.ErrForbidden
	}
	return submission, nil
}

func (s *prServiceImpl) ListMySubmissions(ctx context.Context, userID uuid.UUID, cursor string, limit int) ([]models.PrSubmission, string, error) {
	if _, _, err := utils.DecodeCursor(cursor); err != nil {
		return nil, "", fmt.Errorf("%w: %v", models.ErrInvalidArgument, err)
	}
	return s.deps.PRs.ListSubmissionsBySubmitter(ctx, s.deps.DB.Querier(), userID, cursor, utils.NormalizeLimit(limit))
}

func (s *prServiceImpl) ListReceivedSubmissions(ctx context.Context, userID uuid.UUID, cursor string, limit int) ([]models.PrSubmission, string, error) {
	if _, _, err := utils.DecodeCursor(cursor); err != nil {
		return nil, "", fmt.Errorf("%w: %v", models.ErrInvalidArgument, err)
	}
	return s.deps.PRs.ListSubmissionsByAuthor(ctx, s.deps.DB.Querier(), userID, cursor, utils.NormalizeLimit(limit))
}
