package mocks

import (
	"context"

	"novel-fork/internal/interfaces"
	"novel-fork/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// StoryCatalogRepository is a mock type for interfaces.StoryCatalogRepository
type StoryCatalogRepository struct {
	mock.Mock
}

func (m *StoryCatalogRepository) GetPublishedBySlug(ctx context.Context, q interfaces.DBTX, slug string) (*models.Story, error) {
	args := m.Called(ctx, q, slug)
	return ptr[models.Story](args, 0), args.Error(1)
}

func (m *StoryCatalogRepository) GetByID(ctx context.Context, q interfaces.DBTX, storyID int64) (*models.Story, error) {
	args := m.Called(ctx, q, storyID)
	return ptr[models.Story](args, 0), args.Error(1)
}

func (m *StoryCatalogRepository) CountAuthoredChapters(ctx context.Context, q interfaces.DBTX, storyID int64) (int, error) {
	args := m.Called(ctx, q, storyID)
	return args.Int(0), args.Error(1)
}

func (m *StoryCatalogRepository) ListAuthoredChapters(ctx context.Context, q interfaces.DBTX, storyID int64) ([]models.StoryChapter, error) {
	args := m.Called(ctx, q, storyID)
	return slice[models.StoryChapter](args, 0), args.Error(1)
}

func (m *StoryCatalogRepository) GetMainlineChapterBySortOrder(ctx context.Context, q interfaces.DBTX, storyID int64, sortOrder int) (*models.StoryChapter, error) {
	args := m.Called(ctx, q, storyID, sortOrder)
	return ptr[models.StoryChapter](args, 0), args.Error(1)
}

func (m *StoryCatalogRepository) ListTreeChapters(ctx context.Context, q interfaces.DBTX, storyID int64) ([]models.StoryChapter, error) {
	args := m.Called(ctx, q, storyID)
	return slice[models.StoryChapter](args, 0), args.Error(1)
}

func (m *StoryCatalogRepository) InsertChapter(ctx context.Context, q interfaces.DBTX, chapter *models.StoryChapter) error {
	return m.Called(ctx, q, chapter).Error(0)
}

var _ interfaces.StoryCatalogRepository = (*StoryCatalogRepository)(nil)

// BranchCatalogRepository is a mock type for interfaces.BranchCatalogRepository
type BranchCatalogRepository struct {
	mock.Mock
}

func (m *BranchCatalogRepository) ListByStory(ctx context.Context, q interfaces.DBTX, storyID int64) ([]models.BranchPoint, error) {
	args := m.Called(ctx, q, storyID)
	return slice[models.BranchPoint](args, 0), args.Error(1)
}

func (m *BranchCatalogRepository) GetBranchPoint(ctx context.Context, q interfaces.DBTX, branchPointID int64) (*models.BranchPoint, error) {
	args := m.Called(ctx, q, branchPointID)
	return ptr[models.BranchPoint](args, 0), args.Error(1)
}

func (m *BranchCatalogRepository) GetBranchPointBySortOrder(ctx context.Context, q interfaces.DBTX, storyID int64, sortOrder int) (*models.BranchPoint, error) {
	args := m.Called(ctx, q, storyID, sortOrder)
	return ptr[models.BranchPoint](args, 0), args.Error(1)
}

func (m *BranchCatalogRepository) GetOption(ctx context.Context, q interfaces.DBTX, optionID int64) (*models.Option, error) {
	args := m.Called(ctx, q, optionID)
	return ptr[models.Option](args, 0), args.Error(1)
}

func (m *BranchCatalogRepository) IncrementSelectionCount(ctx context.Context, q interfaces.DBTX, optionID int64) error {
	return m.Called(ctx, q, optionID).Error(0)
}

var _ interfaces.BranchCatalogRepository = (*BranchCatalogRepository)(nil)

// ForkRepository is a mock type for interfaces.ForkRepository
type ForkRepository struct {
	mock.Mock
}

func (m *ForkRepository) Create(ctx context.Context, q interfaces.DBTX, fork *models.Fork) error {
	return m.Called(ctx, q, fork).Error(0)
}

func (m *ForkRepository) GetByID(ctx context.Context, q interfaces.DBTX, forkID int64) (*models.Fork, error) {
	args := m.Called(ctx, q, forkID)
	return ptr[models.Fork](args, 0), args.Error(1)
}

func (m *ForkRepository) GetByUserAndStory(ctx context.Context, q interfaces.DBTX, userID uuid.UUID, storyID int64) (*models.Fork, error) {
	args := m.Called(ctx, q, userID, storyID)
	return ptr[models.Fork](args, 0), args.Error(1)
}

func (m *ForkRepository) ExistsByUserAndSlug(ctx context.Context, q interfaces.DBTX, userID uuid.UUID, storySlug string) (bool, error) {
	args := m.Called(ctx, q, userID, storySlug)
	return args.Bool(0), args.Error(1)
}

func (m *ForkRepository) ListByUser(ctx context.Context, q interfaces.DBTX, userID uuid.UUID, cursor string, limit int) ([]models.Fork, string, error) {
	args := m.Called(ctx, q, userID, cursor, limit)
	return slice[models.Fork](args, 0), args.String(1), args.Error(2)
}

func (m *ForkRepository) UpdateReadingProgress(ctx context.Context, q interfaces.DBTX, forkID int64, progress int) error {
	return m.Called(ctx, q, forkID, progress).Error(0)
}

func (m *ForkRepository) Touch(ctx context.Context, q interfaces.DBTX, forkID int64) error {
	return m.Called(ctx, q, forkID).Error(0)
}

func (m *ForkRepository) Delete(ctx context.Context, q interfaces.DBTX, forkID int64) error {
	return m.Called(ctx, q, forkID).Error(0)
}

var _ interfaces.ForkRepository = (*ForkRepository)(nil)

// CommitRepository is a mock type for interfaces.CommitRepository
type CommitRepository struct {
	mock.Mock
}

func (m *CommitRepository) ListByFork(ctx context.Context, q interfaces.DBTX, forkID int64) ([]models.Commit, error) {
	args := m.Called(ctx, q, forkID)
	return slice[models.Commit](args, 0), args.Error(1)
}

func (m *CommitRepository) GetByID(ctx context.Context, q interfaces.DBTX, commitID int64) (*models.Commit, error) {
	args := m.Called(ctx, q, commitID)
	return ptr[models.Commit](args, 0), args.Error(1)
}

func (m *CommitRepository) Count(ctx context.Context, q interfaces.DBTX, forkID int64) (int, error) {
	args := m.Called(ctx, q, forkID)
	return args.Int(0), args.Error(1)
}

func (m *CommitRepository) Append(ctx context.Context, q interfaces.DBTX, commit *models.Commit) error {
	return m.Called(ctx, q, commit).Error(0)
}

func (m *CommitRepository) DeleteFromSortOrder(ctx context.Context, q interfaces.DBTX, forkID int64, fromSortOrder int) (int64, error) {
	args := m.Called(ctx, q, forkID, fromSortOrder)
	return args.Get(0).(int64), args.Error(1)
}

func (m *CommitRepository) FindByBranchPointSortOrder(ctx context.Context, q interfaces.DBTX, forkID int64, branchPointSortOrder int) (*models.Commit, error) {
	args := m.Called(ctx, q, forkID, branchPointSortOrder)
	return ptr[models.Commit](args, 0), args.Error(1)
}

func (m *CommitRepository) LastResolvedBranchPointSortOrder(ctx context.Context, q interfaces.DBTX, forkID int64) (int, error) {
	args := m.Called(ctx, q, forkID)
	return args.Int(0), args.Error(1)
}

var _ interfaces.CommitRepository = (*CommitRepository)(nil)

// BookmarkRepository is a mock type for interfaces.BookmarkRepository
type BookmarkRepository struct {
	mock.Mock
}

func (m *BookmarkRepository) Create(ctx context.Context, q interfaces.DBTX, bookmark *models.Bookmark) error {
	return m.Called(ctx, q, bookmark).Error(0)
}

func (m *BookmarkRepository) GetByID(ctx context.Context, q interfaces.DBTX, forkID, bookmarkID int64) (*models.Bookmark, error) {
	args := m.Called(ctx, q, forkID, bookmarkID)
	return ptr[models.Bookmark](args, 0), args.Error(1)
}

func (m *BookmarkRepository) ListByFork(ctx context.Context, q interfaces.DBTX, forkID int64) ([]models.Bookmark, error) {
	args := m.Called(ctx, q, forkID)
	return slice[models.Bookmark](args, 0), args.Error(1)
}

func (m *BookmarkRepository) Update(ctx context.Context, q interfaces.DBTX, bookmark *models.Bookmark) error {
	return m.Called(ctx, q, bookmark).Error(0)
}

func (m *BookmarkRepository) Delete(ctx context.Context, q interfaces.DBTX, forkID, bookmarkID int64) error {
	return m.Called(ctx, q, forkID, bookmarkID).Error(0)
}

var _ interfaces.BookmarkRepository = (*BookmarkRepository)(nil)

// PreviewRepository is a mock type for interfaces.PreviewRepository
type PreviewRepository struct {
	mock.Mock
}

func (m *PreviewRepository) List(ctx context.Context, forkID int64) ([]models.PreviewChapter, error) {
	args := m.Called(ctx, forkID)
	return slice[models.PreviewChapter](args, 0), args.Error(1)
}

func (m *PreviewRepository) Replace(ctx context.Context, forkID int64, chapters []models.PreviewChapter) error {
	return m.Called(ctx, forkID, chapters).Error(0)
}

func (m *PreviewRepository) Clear(ctx context.Context, forkID int64) error {
	return m.Called(ctx, forkID).Error(0)
}

var _ interfaces.PreviewRepository = (*PreviewRepository)(nil)

// BranchTreeCache is a mock type for interfaces.BranchTreeCache
type BranchTreeCache struct {
	mock.Mock
}

func (m *BranchTreeCache) Get(ctx context.Context, storyID int64) ([]models.StoryChapter, bool, error) {
	args := m.Called(ctx, storyID)
	return slice[models.StoryChapter](args, 0), args.Bool(1), args.Error(2)
}

func (m *BranchTreeCache) Set(ctx context.Context, storyID int64, chapters []models.StoryChapter) error {
	return m.Called(ctx, storyID, chapters).Error(0)
}

func (m *BranchTreeCache) Invalidate(ctx context.Context, storyID int64) error {
	return m.Called(ctx, storyID).Error(0)
}

var _ interfaces.BranchTreeCache = (*BranchTreeCache)(nil)
