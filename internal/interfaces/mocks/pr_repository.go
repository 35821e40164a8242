package mocks

import (
	"context"

	"novel-fork/internal/interfaces"
	"novel-fork/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// PrRepository is a mock type for interfaces.PrRepository
type PrRepository struct {
	mock.Mock
}

func (m *PrRepository) CreateNovel(ctx context.Context, q interfaces.DBTX, novel *models.PrNovel) error {
	return m.Called(ctx, q, novel).Error(0)
}

func (m *PrRepository) GetNovel(ctx context.Context, q interfaces.DBTX, novelID int64) (*models.PrNovel, error) {
	args := m.Called(ctx, q, novelID)
	return ptr[models.PrNovel](args, 0), args.Error(1)
}

func (m *PrRepository) ListNovelsByUser(ctx context.Context, q interfaces.DBTX, userID uuid.UUID) ([]models.PrNovel, error) {
	args := m.Called(ctx, q, userID)
	return slice[models.PrNovel](args, 0), args.Error(1)
}

func (m *PrRepository) UpdateNovel(ctx context.Context, q interfaces.DBTX, novel *models.PrNovel) error {
	return m.Called(ctx, q, novel).Error(0)
}

func (m *PrRepository) UpdateNovelStatus(ctx context.Context, q interfaces.DBTX, novelID int64, status models.PrNovelStatus, reviewComment *string) error {
	return m.Called(ctx, q, novelID, status, reviewComment).Error(0)
}

func (m *PrRepository) DeleteNovel(ctx context.Context, q interfaces.DBTX, novelID int64) error {
	return m.Called(ctx, q, novelID).Error(0)
}

func (m *PrRepository) ListChapters(ctx context.Context, q interfaces.DBTX, novelID int64) ([]models.PrChapter, error) {
	args := m.Called(ctx, q, novelID)
	return slice[models.PrChapter](args, 0), args.Error(1)
}

func (m *PrRepository) GetChapter(ctx context.Context, q interfaces.DBTX, novelID, chapterID int64) (*models.PrChapter, error) {
	args := m.Called(ctx, q, novelID, chapterID)
	return ptr[models.PrChapter](args, 0), args.Error(1)
}

func (m *PrRepository) AddChapter(ctx context.Context, q interfaces.DBTX, chapter *models.PrChapter) error {
	return m.Called(ctx, q, chapter).Error(0)
}

func (m *PrRepository) UpdateChapter(ctx context.Context, q interfaces.DBTX, chapter *models.PrChapter) error {
	return m.Called(ctx, q, chapter).Error(0)
}

func (m *PrRepository) DeleteChapter(ctx context.Context, q interfaces.DBTX, novelID, chapterID int64) error {
	return m.Called(ctx, q, novelID, chapterID).Error(0)
}

func (m *PrRepository) CreateSubmission(ctx context.Context, q interfaces.DBTX, submission *models.PrSubmission) error {
	return m.Called(ctx, q, submission).Error(0)
}

func (m *PrRepository) GetSubmission(ctx context.Context, q interfaces.DBTX, submissionID int64) (*models.PrSubmission, error) {
	args := m.Called(ctx, q, submissionID)
	return ptr[models.PrSubmission](args, 0), args.Error(1)
}

func (m *PrRepository) GetSubmissionForUpdate(ctx context.Context, q interfaces.DBTX, submissionID int64) (*models.PrSubmission, error) {
	args := m.Called(ctx, q, submissionID)
	return ptr[models.PrSubmission](args, 0), args.Error(1)
}

func (m *PrRepository) HasPendingForFork(ctx context.Context, q interfaces.DBTX, forkID int64) (bool, error) {
	args := m.Called(ctx, q, forkID)
	return args.Bool(0), args.Error(1)
}

func (m *PrRepository) HasPendingForNovel(ctx context.Context, q interfaces.DBTX, novelID int64) (bool, error) {
	args := m.Called(ctx, q, novelID)
	return args.Bool(0), args.Error(1)
}

func (m *PrRepository) UpdateSubmissionReview(ctx context.Context, q interfaces.DBTX, submissionID int64, status models.SubmissionStatus, reviewComment *string) error {
	return m.Called(ctx, q, submissionID, status, reviewComment).Error(0)
}

func (m *PrRepository) ListSubmissionsBySubmitter(ctx context.Context, q interfaces.DBTX, userID uuid.UUID, cursor string, limit int) ([]models.PrSubmission, string, error) {
	args := m.Called(ctx, q, userID, cursor, limit)
	return slice[models.PrSubmission](args, 0), args.String(1), args.Error(2)
}

func (m *PrRepository) ListSubmissionsByAuthor(ctx context.Context, q interfaces.DBTX, authorID uuid.UUID, cursor string, limit int) ([]models.PrSubmission, string, error) {
	args := m.Called(ctx, q, authorID, cursor, limit)
	return slice[models.PrSubmission](args, 0), args.String(1), args.Error(2)
}

var _ interfaces.PrRepository = (*PrRepository)(nil)
