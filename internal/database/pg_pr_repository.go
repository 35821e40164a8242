package database

import (
	"context"
	"errors"
	"fmt"

	"novel-fork/internal/interfaces"
	"novel-fork/internal/models"
	"novel-fork/internal/utils"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var _ interfaces.PrRepository = (*pgPrRepository)(nil)

type pgPrRepository struct {
	logger *zap.Logger
}

func NewPgPrRepository(logger *zap.Logger) interfaces.PrRepository {
	return &pgPrRepository{logger: logger.Named("PgPrRepo")}
}

// --- PR novels ---

const prNovelColumns = `id, story_id, user_id, title, description, from_chapter_sort_order, status,
    review_comment, created_at, updated_at`

const insertPrNovelQuery = `
INSERT INTO pr_novels (story_id, user_id, title, description, from_chapter_sort_order, status)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at, updated_at`

const getPrNovelQuery = `SELECT ` + prNovelColumns + ` FROM pr_novels WHERE id = $1`

const listPrNovelsByUserQuery = `SELECT ` + prNovelColumns + `
FROM pr_novels WHERE user_id = $1 ORDER BY updated_at DESC, id DESC`

const updatePrNovelQuery = `
UPDATE pr_novels SET title = $2, description = $3, status = $4, updated_at = NOW()
WHERE id = $1
RETURNING updated_at`

const updatePrNovelStatusQuery = `
UPDATE pr_novels SET status = $2, review_comment = $3, updated_at = NOW() WHERE id = $1`

const deletePrNovelQuery = `DELETE FROM pr_novels WHERE id = $1`

func (r *pgPrRepository) CreateNovel(ctx context.Context, querier interfaces.DBTX, n *models.PrNovel) error {
	err := querier.QueryRow(ctx, insertPrNovelQuery, n.StoryID, n.UserID, n.Title, n.Description, n.FromChapterSortOrder, n.Status).
		Scan(&n.ID, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to create pr novel", zap.Int64("storyID", n.StoryID), zap.Error(err))
		return wrapErr("create pr novel", err)
	}
	return nil
}

func (r *pgPrRepository) GetNovel(ctx context.Context, querier interfaces.DBTX, novelID int64) (*models.PrNovel, error) {
	var n models.PrNovel
	if err := pgxscan.Get(ctx, querier, &n, getPrNovelQuery, novelID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrPrNovelNotFound
		}
		return nil, wrapErr("get pr novel", err)
	}
	return &n, nil
}

func (r *pgPrRepository) ListNovelsByUser(ctx context.Context, querier interfaces.DBTX, userID uuid.UUID) ([]models.PrNovel, error) {
	novels := make([]models.PrNovel, 0)
	if err := pgxscan.Select(ctx, querier, &novels, listPrNovelsByUserQuery, userID); err != nil {
		return nil, wrapErr("list pr novels", err)
	}
	return novels, nil
}

func (r *pgPrRepository) UpdateNovel(ctx context.Context, querier interfaces.DBTX, n *models.PrNovel) error {
	err := querier.QueryRow(ctx, updatePrNovelQuery, n.ID, n.Title, n.Description, n.Status).Scan(&n.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrPrNovelNotFound
		}
		return wrapErr("update pr novel", err)
	}
	return nil
}

func (r *pgPrRepository) UpdateNovelStatus(ctx context.Context, querier interfaces.DBTX, novelID int64, status models.PrNovelStatus, reviewComment *string) error {
	tag, err := querier.Exec(ctx, updatePrNovelStatusQuery, novelID, status, reviewComment)
	if err != nil {
		return wrapErr("update pr novel status", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrPrNovelNotFound
	}
	return nil
}

func (r *pgPrRepository) DeleteNovel(ctx context.Context, querier interfaces.DBTX, novelID int64) error {
	tag, err := querier.Exec(ctx, deletePrNovelQuery, novelID)
	if err != nil {
		return wrapErr("delete pr novel", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrPrNovelNotFound
	}
	return nil
}

// --- PR chapters ---

const prChapterColumns = `id, pr_novel_id, sort_order, title, content_markdown, word_count, created_at, updated_at`

const listPrChaptersQuery = `SELECT ` + prChapterColumns + `
FROM pr_chapters WHERE pr_novel_id = $1 ORDER BY sort_order`

const getPrChapterQuery = `SELECT ` + prChapterColumns + ` FROM pr_chapters WHERE pr_novel_id = $1 AND id = $2`

const addPrChapterQuery = `
INSERT INTO pr_chapters (pr_novel_id, sort_order, title, content_markdown, word_count)
SELECT $1, COALESCE(MAX(sort_order), 0) + 1, $2, $3, $4
FROM pr_chapters WHERE pr_novel_id = $1
RETURNING id, sort_order, created_at, updated_at`

const updatePrChapterQuery = `
UPDATE pr_chapters SET title = $3, content_markdown = $4, word_count = $5, updated_at = NOW()
WHERE pr_novel_id = $1 AND id = $2
RETURNING sort_order, updated_at`

const deletePrChapterQuery = `DELETE FROM pr_chapters WHERE pr_novel_id = $1 AND id = $2 RETURNING sort_order`

const shiftPrChaptersQuery = `
UPDATE pr_chapters SET sort_order = sort_order - 1 WHERE pr_novel_id = $1 AND sort_order > $2`

func (r *pgPrRepository) ListChapters(ctx context.Context, querier interfaces.DBTX, novelID int64) ([]models.PrChapter, error) {
	chapters := make([]models.PrChapter, 0)
	if err := pgxscan.Select(ctx, querier, &chapters, listPrChaptersQuery, novelID); err != nil {
		return nil, wrapErr("list pr chapters", err)
	}
	return chapters, nil
}

func (r *pgPrRepository) GetChapter(ctx context.Context, querier interfaces.DBTX, novelID, chapterID int64) (*models.PrChapter, error) {
	var ch models.PrChapter
	if err := pgxscan.Get(ctx, querier, &ch, getPrChapterQuery, novelID, chapterID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrPrChapterNotFound
		}
		return nil, wrapErr("get pr chapter", err)
	}
	return &ch, nil
}

func (r *pgPrRepository) AddChapter(ctx context.Context, querier interfaces.DBTX, ch *models.PrChapter) error {
	err := querier.QueryRow(ctx, addPrChapterQuery, ch.PrNovelID, ch.Title, ch.ContentMarkdown, ch.WordCount).
		Scan(&ch.ID, &ch.SortOrder, &ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to add pr chapter", zap.Int64("prNovelID", ch.PrNovelID), zap.Error(err))
		return wrapErr("add pr chapter", err)
	}
	return nil
}

func (r *pgPrRepository) UpdateChapter(ctx context.Context, querier interfaces.DBTX, ch *models.PrChapter) error {
	err := querier.QueryRow(ctx, updatePrChapterQuery, ch.PrNovelID, ch.ID, ch.Title, ch.ContentMarkdown, ch.WordCount).
		Scan(&ch.SortOrder, &ch.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrPrChapterNotFound
		}
		return wrapErr("update pr chapter", err)
	}
	return nil
}

func (r *pgPrRepository) DeleteChapter(ctx context.Context, querier interfaces.DBTX, novelID, chapterID int64) error {
	var removedOrder int
	if err := querier.QueryRow(ctx, deletePrChapterQuery, novelID, chapterID).Scan(&removedOrder); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrPrChapterNotFound
		}
		return wrapErr("delete pr chapter", err)
	}
	if _, err := querier.Exec(ctx, shiftPrChaptersQuery, novelID, removedOrder); err != nil {
		return wrapErr("renumber pr chapters", err)
	}
	return nil
}

// --- Submissions ---

const submissionColumns = `id, story_id, fork_id, pr_novel_id, from_commit_id, submitter_id, author_id, title,
    description, status, review_comment, reviewed_at, created_at`

const insertSubmissionQuery = `
INSERT INTO pr_submissions (story_id, fork_id, pr_novel_id, from_commit_id, submitter_id, author_id, title, description, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, created_at`

const getSubmissionQuery = `SELECT ` + submissionColumns + ` FROM pr_submissions WHERE id = $1`

const getSubmissionForUpdateQuery = getSubmissionQuery + ` FOR UPDATE`

const hasPendingForForkQuery = `
SELECT EXISTS (SELECT 1 FROM pr_submissions WHERE fork_id = $1 AND status = 'pending')`

const hasPendingForNovelQuery = `
SELECT EXISTS (SELECT 1 FROM pr_submissions WHERE pr_novel_id = $1 AND status = 'pending')`

const updateSubmissionReviewQuery = `
UPDATE pr_submissions SET status = $2, review_comment = $3, reviewed_at = NOW() WHERE id = $1`

func (r *pgPrRepository) CreateSubmission(ctx context.Context, querier interfaces.DBTX, s *models.PrSubmission) error {
	err := querier.QueryRow(ctx, insertSubmissionQuery,
		s.StoryID, s.ForkID, s.PrNovelID, s.FromCommitID, s.SubmitterID, s.AuthorID, s.Title, s.Description, s.Status,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrPendingSubmission
		}
		r.logger.Error("Failed to create submission", zap.Int64("storyID", s.StoryID), zap.Error(err))
		return wrapErr("create submission", err)
	}
	return nil
}

func (r *pgPrRepository) GetSubmission(ctx context.Context, querier interfaces.DBTX, submissionID int64) (*models.PrSubmission, error) {
	return r.getSubmission(ctx, querier, getSubmissionQuery, submissionID)
}

func (r *pgPrRepository) GetSubmissionForUpdate(ctx context.Context, querier interfaces.DBTX, submissionID int64) (*models.PrSubmission, error) {
	return r.getSubmission(ctx, querier, getSubmissionForUpdateQuery, submissionID)
}

func (r *pgPrRepository) getSubmission(ctx context.Context, querier interfaces.DBTX, query string, id int64) (*models.PrSubmission, error) {
	var s models.PrSubmission
	if err := pgxscan.Get(ctx, querier, &s, query, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrSubmissionNotFound
		}
		return nil, wrapErr("get submission", err)
	}
	return &s, nil
}

func (r *pgPrRepository) HasPendingForFork(ctx context.Context, querier interfaces.DBTX, forkID int64) (bool, error) {
	var exists bool
	if err := querier.QueryRow(ctx, hasPendingForForkQuery, forkID).Scan(&exists); err != nil {
		return false, wrapErr("check pending fork submission", err)
	}
	return exists, nil
}

func (r *pgPrRepository) HasPendingForNovel(ctx context.Context, querier interfaces.DBTX, novelID int64) (bool, error) {
	var exists bool
	if err := querier.QueryRow(ctx, hasPendingForNovelQuery, novelID).Scan(&exists); err != nil {
		return false, wrapErr("check pending novel submission", err)
	}
	return exists, nil
}

func (r *pgPrRepository) UpdateSubmissionReview(ctx context.Context, querier interfaces.DBTX, submissionID int64, status models.SubmissionStatus, reviewComment *string) error {
	tag, err := querier.Exec(ctx, updateSubmissionReviewQuery, submissionID, status, reviewComment)
	if err != nil {
		return wrapErr("update submission review", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrSubmissionNotFound
	}
	return nil
}

const listSubmissionsQueryTemplate = `SELECT ` + submissionColumns + `
FROM pr_submissions
WHERE %s = $1 AND ($2::timestamptz IS NULL OR (created_at, id) < ($2, $3))
ORDER BY created_at DESC, id DESC
LIMIT $4`

var (
	listSubmissionsBySubmitterQuery = fmt.Sprintf(listSubmissionsQueryTemplate, "submitter_id")
	listSubmissionsByAuthorQuery    = fmt.Sprintf(listSubmissionsQueryTemplate, "author_id")
)

func (r *pgPrRepository) ListSubmissionsBySubmitter(ctx context.Context, querier interfaces.DBTX, userID uuid.UUID, cursor string, limit int) ([]models.PrSubmission, string, error) {
	return r.listSubmissions(ctx, querier, listSubmissionsBySubmitterQuery, userID, cursor, limit)
}

func (r *pgPrRepository) ListSubmissionsByAuthor(ctx context.Context, querier interfaces.DBTX, authorID uuid.UUID, cursor string, limit int) ([]models.PrSubmission, string, error) {
	return r.listSubmissions(ctx, querier, listSubmissionsByAuthorQuery, authorID, cursor, limit)
}

func (r *pgPrRepository) listSubmissions(ctx context.Context, querier interfaces.DBTX, query string, userID uuid.UUID, cursor string, limit int) ([]models.PrSubmission, string, error) {
	limit = utils.NormalizeLimit(limit)
	cursorTime, cursorID, err := utils.DecodeCursor(cursor)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", models.ErrInvalidArgument, err)
	}
	var cursorTimeArg interface{}
	if cursorID != 0 {
		cursorTimeArg = cursorTime
	}

	submissions := make([]models.PrSubmission, 0)
	if err := pgxscan.Select(ctx, querier, &submissions, query, userID, cursorTimeArg, cursorID, limit+1); err != nil {
		r.logger.Error("Failed to list submissions", zap.String("userID", userID.String()), zap.Error(err))
		return nil, "", wrapErr("list submissions", err)
	}

	nextCursor := ""
	if len(submissions) > limit {
		submissions = submissions[:limit]
		last := submissions[len(submissions)-1]
		nextCursor = utils.EncodeCursor(last.CreatedAt, last.ID)
	}
	return submissions, nextCursor, nil
}
