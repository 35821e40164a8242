package interfaces

import (
	"context"

	"novel-fork/internal/models"

	"github.com/google/uuid"
)

// StoryCatalogRepository - доступ к опубликованным историям и их главам.
type StoryCatalogRepository interface {
	GetPublishedBySlug(ctx context.Context, querier DBTX, slug string) (*models.Story, error)
	GetByID(ctx context.Context, querier DBTX, storyID int64) (*models.Story, error)
	// CountAuthoredChapters считает только главы mainline.
	CountAuthoredChapters(ctx context.Context, querier DBTX, storyID int64) (int, error)
	ListAuthoredChapters(ctx context.Context, querier DBTX, storyID int64) ([]models.StoryChapter, error)
	GetMainlineChapterBySortOrder(ctx context.Context, querier DBTX, storyID int64, sortOrder int) (*models.StoryChapter, error)
	// ListTreeChapters возвращает все главы истории без текста, для построения дерева.
	ListTreeChapters(ctx context.Context, querier DBTX, storyID int64) ([]models.StoryChapter, error)
	InsertChapter(ctx context.Context, querier DBTX, chapter *models.StoryChapter) error
}

// BranchCatalogRepository - точки ветвления и варианты. Движок их только читает,
// кроме счётчика выборов.
type BranchCatalogRepository interface {
	ListByStory(ctx context.Context, querier DBTX, storyID int64) ([]models.BranchPoint, error)
	GetBranchPoint(ctx context.Context, querier DBTX, branchPointID int64) (*models.BranchPoint, error)
	GetBranchPointBySortOrder(ctx context.Context, querier DBTX, storyID int64, sortOrder int) (*models.BranchPoint, error)
	GetOption(ctx context.Context, querier DBTX, optionID int64) (*models.Option, error)
	IncrementSelectionCount(ctx context.Context, querier DBTX, optionID int64) error
}

type ForkRepository interface {
	// Create возвращает models.ErrConflict при нарушении уникальности (user, story).
	Create(ctx context.Context, querier DBTX, fork *models.Fork) error
	GetByID(ctx context.Context, querier DBTX, forkID int64) (*models.Fork, error)
	GetByUserAndStory(ctx context.Context, querier DBTX, userID uuid.UUID, storyID int64) (*models.Fork, error)
	ExistsByUserAndSlug(ctx context.Context, querier DBTX, userID uuid.UUID, storySlug string) (bool, error)
	ListByUser(ctx context.Context, querier DBTX, userID uuid.UUID, cursor string, limit int) ([]models.Fork, string, error)
	UpdateReadingProgress(ctx context.Context, querier DBTX, forkID int64, progress int) error
	Touch(ctx context.Context, querier DBTX, forkID int64) error
	Delete(ctx context.Context, querier DBTX, forkID int64) error
}

type CommitRepository interface {
	ListByFork(ctx context.Context, querier DBTX, forkID int64) ([]models.Commit, error)
	GetByID(ctx context.Context, querier DBTX, commitID int64) (*models.Commit, error)
	Count(ctx context.Context, querier DBTX, forkID int64) (int, error)
	// Append назначает sort_order = max+1 и заполняет ID, SortOrder, CreatedAt.
	Append(ctx context.Context, querier DBTX, commit *models.Commit) error
	// DeleteFromSortOrder удаляет коммиты с sort_order >= fromSortOrder.
	DeleteFromSortOrder(ctx context.Context, querier DBTX, forkID int64, fromSortOrder int) (int64, error)
	FindByBranchPointSortOrder(ctx context.Context, querier DBTX, forkID int64, branchPointSortOrder int) (*models.Commit, error)
	// LastResolvedBranchPointSortOrder возвращает 0, если ни одна точка ещё не разрешена.
	LastResolvedBranchPointSortOrder(ctx context.Context, querier DBTX, forkID int64) (int, error)
}

type BookmarkRepository interface {
	Create(ctx context.Context, querier DBTX, bookmark *models.Bookmark) error
	GetByID(ctx context.Context, querier DBTX, forkID, bookmarkID int64) (*models.Bookmark, error)
	ListByFork(ctx context.Context, querier DBTX, forkID int64) ([]models.Bookmark, error)
	Update(ctx context.Context, querier DBTX, bookmark *models.Bookmark) error
	Delete(ctx context.Context, querier DBTX, forkID, bookmarkID int64) error
}

// PreviewRepository хранит буфер предпросмотра форка целиком.
type PreviewRepository interface {
	List(ctx context.Context, forkID int64) ([]models.PreviewChapter, error)
	Replace(ctx context.Context, forkID int64, chapters []models.PreviewChapter) error
	Clear(ctx context.Context, forkID int64) error
}

// BranchTreeCache кэширует плоский список узлов дерева истории.
type BranchTreeCache interface {
	Get(ctx context.Context, storyID int64) ([]models.StoryChapter, bool, error)
	Set(ctx context.Context, storyID int64, chapters []models.StoryChapter) error
	Invalidate(ctx context.Context, storyID int64) error
}

type PrRepository interface {
	CreateNovel(ctx context.Context, querier DBTX, novel *models.PrNovel) error
	GetNovel(ctx context.Context, querier DBTX, novelID int64) (*models.PrNovel, error)
	ListNovelsByUser(ctx context.Context, querier DBTX, userID uuid.UUID) ([]models.PrNovel, error)
	UpdateNovel(ctx context.Context, querier DBTX, novel *models.PrNovel) error
	UpdateNovelStatus(ctx context.Context, querier DBTX, novelID int64, status models.PrNovelStatus, reviewComment *string) error
	DeleteNovel(ctx context.Context, querier DBTX, novelID int64) error

	ListChapters(ctx context.Context, querier DBTX, novelID int64) ([]models.PrChapter, error)
	GetChapter(ctx context.Context, querier DBTX, novelID, chapterID int64) (*models.PrChapter, error)
	AddChapter(ctx context.Context, querier DBTX, chapter *models.PrChapter) error
	UpdateChapter(ctx context.Context, querier DBTX, chapter *models.PrChapter) error
	// DeleteChapter удаляет главу и сдвигает последующие, сохраняя непрерывность sort_order.
	DeleteChapter(ctx context.Context, querier DBTX, novelID, chapterID int64) error

	CreateSubmission(ctx context.Context, querier DBTX, submission *models.PrSubmission) error
	GetSubmission(ctx context.Context, querier DBTX, submissionID int64) (*models.PrSubmission, error)
	// GetSubmissionForUpdate блокирует строку до конца транзакции.
	GetSubmissionForUpdate(ctx context.Context, querier DBTX, submissionID int64) (*models.PrSubmission, error)
	HasPendingForFork(ctx context.Context, querier DBTX, forkID int64) (bool, error)
	HasPendingForNovel(ctx context.Context, querier DBTX, novelID int64) (bool, error)
	UpdateSubmissionReview(ctx context.Context, querier DBTX, submissionID int64, status models.SubmissionStatus, reviewComment *string) error
	ListSubmissionsBySubmitter(ctx context.Context, querier DBTX, userID uuid.UUID, cursor string, limit int) ([]models.PrSubmission, string, error)
	ListSubmissionsByAuthor(ctx context.Context, querier DBTX, authorID uuid.UUID, cursor string, limit int) ([]models.PrSubmission, string, error)
}
