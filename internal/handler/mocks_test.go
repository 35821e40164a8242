package handler

import (
	"context"

	"novel-fork/internal/models"
	"novel-fork/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

func ptr[T any](args mock.Arguments, i int) *T {
	v := args.Get(i)
	if v == nil {
		return nil
	}
	return v.(*T)
}

func slice[T any](args mock.Arguments, i int) []T {
	v := args.Get(i)
	if v == nil {
		return nil
	}
	return v.([]T)
}

// streamChunks отдаёт чанки в onChunk; при Block ждёт отмены контекста.
type streamChunks struct {
	Chunks []string
	Block  bool
}

func (s streamChunks) run(ctx context.Context, onChunk func(string) error) error {
	for _, chunk := range s.Chunks {
		if err := onChunk(chunk); err != nil {
			return err
		}
	}
	if s.Block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

type mockForkService struct {
	mock.Mock
	stream streamChunks
}

func (m *mockForkService) CreateFork(ctx context.Context, userID uuid.UUID, slug string) (*models.Fork, error) {
	args := m.Called(ctx, userID, slug)
	return ptr[models.Fork](args, 0), args.Error(1)
}

func (m *mockForkService) GetFork(ctx context.Context, forkID int64, requesterID uuid.UUID) (*models.Fork, error) {
	args := m.Called(ctx, forkID, requesterID)
	return ptr[models.Fork](args, 0), args.Error(1)
}

func (m *mockForkService) DeleteFork(ctx context.Context, forkID int64, requesterID uuid.UUID) error {
	return m.Called(ctx, forkID, requesterID).Error(0)
}

func (m *mockForkService) CheckForkExists(ctx context.Context, userID uuid.UUID, slug string) (bool, error) {
	args := m.Called(ctx, userID, slug)
	return args.Bool(0), args.Error(1)
}

func (m *mockForkService) ListMyForks(ctx context.Context, userID uuid.UUID, cursor string, limit int) ([]models.Fork, string, error) {
	args := m.Called(ctx, userID, cursor, limit)
	return slice[models.Fork](args, 0), args.String(1), args.Error(2)
}

func (m *mockForkService) UpdateReadingProgress(ctx context.Context, forkID int64, requesterID uuid.UUID, sortOrder int) error {
	return m.Called(ctx, forkID, requesterID, sortOrder).Error(0)
}

func (m *mockForkService) ListCommits(ctx context.Context, forkID int64, requesterID uuid.UUID) ([]models.Commit, error) {
	args := m.Called(ctx, forkID, requesterID)
	return slice[models.Commit](args, 0), args.Error(1)
}

func (m *mockForkService) AppendCommit(ctx context.Context, input service.AppendCommitInput) (*models.Commit, error) {
	args := m.Called(ctx, input)
	return ptr[models.Commit](args, 0), args.Error(1)
}

func (m *mockForkService) GenerateAndAppendCommit(ctx context.Context, input service.GenerateCommitInput, onChunk func(string) error) (*models.Commit, error) {
	args := m.Called(ctx, input)
	if onChunk != nil {
		if err := m.stream.run(ctx, onChunk); err != nil {
			return nil, err
		}
	}
	return ptr[models.Commit](args, 0), args.Error(1)
}

func (m *mockForkService) Rollback(ctx context.Context, forkID int64, requesterID uuid.UUID, commitID int64) error {
	return m.Called(ctx, forkID, requesterID, commitID).Error(0)
}

func (m *mockForkService) RollbackToBranchPoint(ctx context.Context, forkID int64, requesterID uuid.UUID, sortOrder int) error {
	return m.Called(ctx, forkID, requesterID, sortOrder).Error(0)
}

type mockPreviewService struct {
	mock.Mock
	stream streamChunks
}

func (m *mockPreviewService) SaveAiPreview(ctx context.Context, input service.SavePreviewInput) (*models.PreviewChapter, error) {
	args := m.Called(ctx, input)
	return ptr[models.PreviewChapter](args, 0), args.Error(1)
}

func (m *mockPreviewService) GetAiPreview(ctx context.Context, forkID int64, requesterID uuid.UUID) ([]models.PreviewChapter, error) {
	args := m.Called(ctx, forkID, requesterID)
	return slice[models.PreviewChapter](args, 0), args.Error(1)
}

func (m *mockPreviewService) DeleteAiPreviewChapter(ctx context.Context, forkID int64, requesterID uuid.UUID, n int) error {
	return m.Called(ctx, forkID, requesterID, n).Error(0)
}

func (m *mockPreviewService) ClearAiPreview(ctx context.Context, forkID int64, requesterID uuid.UUID) error {
	return m.Called(ctx, forkID, requesterID).Error(0)
}

func (m *mockPreviewService) GenerateAiPreviewSummary(ctx context.Context, forkID int64, requesterID uuid.UUID, n int) (string, error) {
	args := m.Called(ctx, forkID, requesterID, n)
	return args.String(0), args.Error(1)
}

func (m *mockPreviewService) ScheduleSummary(ctx context.Context, forkID int64, requesterID uuid.UUID, n int) (uuid.UUID, error) {
	args := m.Called(ctx, forkID, requesterID, n)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *mockPreviewService) StreamGeneratePreview(ctx context.Context, forkID int64, requesterID uuid.UUID, direction string, onChunk func(string) error) (*models.GeneratedPreview, error) {
	args := m.Called(ctx, forkID, requesterID, direction)
	if err := m.stream.run(ctx, onChunk); err != nil {
		return nil, err
	}
	return ptr[models.GeneratedPreview](args, 0), args.Error(1)
}

func (m *mockPreviewService) GetDirectionOptions(ctx context.Context, forkID int64, requesterID uuid.UUID) ([]models.DirectionOption, error) {
	args := m.Called(ctx, forkID, requesterID)
	return slice[models.DirectionOption](args, 0), args.Error(1)
}

type mockBookmarkService struct{ mock.Mock }

func (m *mockBookmarkService) CreateBookmark(ctx context.Context, forkID int64, requesterID uuid.UUID, input service.BookmarkInput) (*models.Bookmark, error) {
	args := m.Called(ctx, forkID, requesterID, input)
	return ptr[models.Bookmark](args, 0), args.Error(1)
}

func (m *mockBookmarkService) ListBookmarks(ctx context.Context, forkID int64, requesterID uuid.UUID) ([]models.Bookmark, error) {
	args := m.Called(ctx, forkID, requesterID)
	return slice[models.Bookmark](args, 0), args.Error(1)
}

func (m *mockBookmarkService) UpdateBookmark(ctx context.Context, forkID int64, requesterID uuid.UUID, bookmarkID int64, input service.BookmarkUpdateInput) (*models.Bookmark, error) {
	args := m.Called(ctx, forkID, requesterID, bookmarkID, input)
	return ptr[models.Bookmark](args, 0), args.Error(1)
}

func (m *mockBookmarkService) DeleteBookmark(ctx context.Context, forkID int64, requesterID uuid.UUID, bookmarkID int64) error {
	return m.Called(ctx, forkID, requesterID, bookmarkID).Error(0)
}

func (m *mockBookmarkService) ResolveBookmark(ctx context.Context, forkID int64, requesterID uuid.UUID, bookmarkID int64) (*models.BookmarkPosition, error) {
	args := m.Called(ctx, forkID, requesterID, bookmarkID)
	return ptr[models.BookmarkPosition](args, 0), args.Error(1)
}

type mockTreeService struct{ mock.Mock }

func (m *mockTreeService) GetBranchTree(ctx context.Context, storyID int64) ([]*models.ChapterNode, error) {
	args := m.Called(ctx, storyID)
	return slice[*models.ChapterNode](args, 0), args.Error(1)
}

func (m *mockTreeService) GetMainline(ctx context.Context, storyID int64) ([]models.ChapterNode, error) {
	args := m.Called(ctx, storyID)
	return slice[models.ChapterNode](args, 0), args.Error(1)
}

func (m *mockTreeService) GetChildBranches(ctx context.Context, storyID, chapterID int64) ([]models.ChapterNode, error) {
	args := m.Called(ctx, storyID, chapterID)
	return slice[models.ChapterNode](args, 0), args.Error(1)
}

func (m *mockTreeService) GetDescendantTree(ctx context.Context, storyID, chapterID int64) (*models.ChapterNode, error) {
	args := m.Called(ctx, storyID, chapterID)
	return ptr[models.ChapterNode](args, 0), args.Error(1)
}

func (m *mockTreeService) GetAncestorChain(ctx context.Context, storyID, chapterID int64) ([]models.ChapterNode, error) {
	args := m.Called(ctx, storyID, chapterID)
	return slice[models.ChapterNode](args, 0), args.Error(1)
}

func (m *mockTreeService) GetAuthorBranches(ctx context.Context, storyID int64, authorID uuid.UUID) ([]models.ChapterNode, error) {
	args := m.Called(ctx, storyID, authorID)
	return slice[models.ChapterNode](args, 0), args.Error(1)
}

func (m *mockTreeService) GetBranchStats(ctx context.Context, storyID int64) (*models.BranchStats, error) {
	args := m.Called(ctx, storyID)
	return ptr[models.BranchStats](args, 0), args.Error(1)
}

func (m *mockTreeService) InvalidateTree(ctx context.Context, storyID int64) error {
	return m.Called(ctx, storyID).Error(0)
}

type mockPrService struct{ mock.Mock }

func (m *mockPrService) CreatePrNovel(ctx context.Context, userID uuid.UUID, input service.CreatePrNovelInput) (*models.PrNovel, error) {
	args := m.Called(ctx, userID, input)
	return ptr[models.PrNovel](args, 0), args.Error(1)
}

func (m *mockPrService) GetPrNovel(ctx context.Context, userID uuid.UUID, novelID int64) (*models.PrNovel, error) {
	args := m.Called(ctx, userID, novelID)
	return ptr[models.PrNovel](args, 0), args.Error(1)
}

func (m *mockPrService) ListMyPrNovels(ctx context.Context, userID uuid.UUID) ([]models.PrNovel, error) {
	args := m.Called(ctx, userID)
	return slice[models.PrNovel](args, 0), args.Error(1)
}

func (m *mockPrService) UpdatePrNovel(ctx context.Context, userID uuid.UUID, novelID int64, input service.UpdatePrNovelInput) (*models.PrNovel, error) {
	args := m.Called(ctx, userID, novelID, input)
	return ptr[models.PrNovel](args, 0), args.Error(1)
}

func (m *mockPrService) DeletePrNovel(ctx context.Context, userID uuid.UUID, novelID int64) error {
	return m.Called(ctx, userID, novelID).Error(0)
}

func (m *mockPrService) AddPrChapter(ctx context.Context, userID uuid.UUID, novelID int64, input service.PrChapterInput) (*models.PrChapter, error) {
	args := m.Called(ctx, userID, novelID, input)
	return ptr[models.PrChapter](args, 0), args.Error(1)
}

func (m *mockPrService) UpdatePrChapter(ctx context.Context, userID uuid.UUID, novelID, chapterID int64, input service.PrChapterInput) (*models.PrChapter, error) {
	args := m.Called(ctx, userID, novelID, chapterID, input)
	return ptr[models.PrChapter](args, 0), args.Error(1)
}

func (m *mockPrService) DeletePrChapter(ctx context.Context, userID uuid.UUID, novelID, chapterID int64) error {
	return m.Called(ctx, userID, novelID, chapterID).Error(0)
}

func (m *mockPrService) SubmitPr(ctx context.Context, userID uuid.UUID, input service.SubmitPrInput) (*models.PrSubmission, error) {
	args := m.Called(ctx, userID, input)
	return ptr[models.PrSubmission](args, 0), args.Error(1)
}

func (m *mockPrService) ReviewPr(ctx context.Context, reviewerID uuid.UUID, submissionID int64, status models.SubmissionStatus, comment *string) (*models.PrSubmission, error) {
	args := m.Called(ctx, reviewerID, submissionID, status, comment)
	return ptr[models.PrSubmission](args, 0), args.Error(1)
}

func (m *mockPrService) GetSubmission(ctx context.Context, userID uuid.UUID, submissionID int64) (*models.PrSubmission, error) {
	args := m.Called(ctx, userID, submissionID)
	return ptr[models.PrSubmission](args, 0), args.Error(1)
}

func (m *mockPrService) ListMySubmissions(ctx context.Context, userID uuid.UUID, cursor string, limit int) ([]models.PrSubmission, string, error) {
	args := m.Called(ctx, userID, cursor, limit)
	return slice[models.PrSubmission](args, 0), args.String(1), args.Error(2)
}

func (m *mockPrService) ListReceivedSubmissions(ctx context.Context, userID uuid.UUID, cursor string, limit int) ([]models.PrSubmission, string, error) {
	args := m.Called(ctx, userID, cursor, limit)
	return slice[models.PrSubmission](args, 0), args.String(1), args.Error(2)
}

var (
	_ service.ForkService       = (*mockForkService)(nil)
	_ service.PreviewService    = (*mockPreviewService)(nil)
	_ service.BookmarkService   = (*mockBookmarkService)(nil)
	_ service.BranchTreeService = (*mockTreeService)(nil)
	_ service.PrService         = (*mockPrService)(nil)
)
