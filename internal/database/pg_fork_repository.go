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

var _ interfaces.ForkRepository = (*pgForkRepository)(nil)

type pgForkRepository struct {
	logger *zap.Logger
}

func NewPgForkRepository(logger *zap.Logger) interfaces.ForkRepository {
	return &pgForkRepository{logger: logger.Named("PgForkRepo")}
}

const forkSelect = `
SELECT f.id, f.user_id, f.story_id, s.slug AS story_slug, f.reading_progress, f.created_at, f.updated_at
FROM reader_forks f JOIN stories s ON s.id = f.story_id`

const insertForkQuery = `
INSERT INTO reader_forks (user_id, story_id) VALUES ($1, $2)
RETURNING id, reading_progress, created_at, updated_at`

const getForkByIDQuery = forkSelect + ` WHERE f.id = $1`

const getForkByUserAndStoryQuery = forkSelect + ` WHERE f.user_id = $1 AND f.story_id = $2`

const existsForkByUserAndSlugQuery = `
SELECT EXISTS (
    SELECT 1 FROM reader_forks f JOIN stories s ON s.id = f.story_id
    WHERE f.user_id = $1 AND s.slug = $2
)`

const listForksFirstPageQuery = forkSelect + `
WHERE f.user_id = $1
ORDER BY f.updated_at DESC, f.id DESC
LIMIT $2`

const listForksAfterCursorQuery = forkSelect + `
WHERE f.user_id = $1 AND (f.updated_at, f.id) < ($2, $3)
ORDER BY f.updated_at DESC, f.id DESC
LIMIT $4`

const updateReadingProgressQuery = `UPDATE reader_forks SET reading_progress = $2, updated_at = NOW() WHERE id = $1`

const touchForkQuery = `UPDATE reader_forks SET updated_at = NOW() WHERE id = $1`

const deleteForkQuery = `DELETE FROM reader_forks WHERE id = $1`

func (r *pgForkRepository) logFields(userID uuid.UUID, storyID int64) []zap.Field {
	return []zap.Field{zap.String("userID", userID.String()), zap.Int64("storyID", storyID)}
}

func (r *pgForkRepository) Create(ctx context.Context, querier interfaces.DBTX, fork *models.Fork) error {
	err := querier.QueryRow(ctx, insertForkQuery, fork.UserID, fork.StoryID).
		Scan(&fork.ID, &fork.ReadingProgress, &fork.CreatedAt, &fork.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			r.logger.Debug("Fork already exists", r.logFields(fork.UserID, fork.StoryID)...)
			return models.ErrConflict
		}
		r.logger.Error("Failed to create fork", append(r.logFields(fork.UserID, fork.StoryID), zap.Error(err))...)
		return wrapErr("create fork", err)
	}
	return nil
}

func (r *pgForkRepository) get(ctx context.Context, querier interfaces.DBTX, query string, args ...interface{}) (*models.Fork, error) {
	var fork models.Fork
	if err := pgxscan.Get(ctx, querier, &fork, query, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrForkNotFound
		}
		return nil, wrapErr("get fork", err)
	}
	return &fork, nil
}

func (r *pgForkRepository) GetByID(ctx context.Context, querier interfaces.DBTX, forkID int64) (*models.Fork, error) {
	return r.get(ctx, querier, getForkByIDQuery, forkID)
}

func (r *pgForkRepository) GetByUserAndStory(ctx context.Context, querier interfaces.DBTX, userID uuid.UUID, storyID int64) (*models.Fork, error) {
	return r.get(ctx, querier, getForkByUserAndStoryQuery, userID, storyID)
}

func (r *pgForkRepository) ExistsByUserAndSlug(ctx context.Context, querier interfaces.DBTX, userID uuid.UUID, storySlug string) (bool, error) {
	var exists bool
	if err := querier.QueryRow(ctx, existsForkByUserAndSlugQuery, userID, storySlug).Scan(&exists); err != nil {
		return false, wrapErr("check fork exists", err)
	}
	return exists, nil
}

func (r *pgForkRepository) ListByUser(ctx context.Context, querier interfaces.DBTX, userID uuid.UUID, cursor string, limit int) ([]models.Fork, string, error) {
	limit = utils.NormalizeLimit(limit)
	cursorTime, cursorID, err := utils.DecodeCursor(cursor)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", models.ErrInvalidArgument, err)
	}

	// Берём на одну запись больше, чтобы понять, есть ли следующая страница.
	var forks []models.Fork
	if cursorID == 0 {
		err = pgxscan.Select(ctx, querier, &forks, listForksFirstPageQuery, userID, limit+1)
	} else {
		err = pgxscan.Select(ctx, querier, &forks, listForksAfterCursorQuery, userID, cursorTime, cursorID, limit+1)
	}
	if err != nil {
		r.logger.Error("Failed to list forks", zap.String("userID", userID.String()), zap.Error(err))
		return nil, "", wrapErr("list forks", err)
	}

	nextCursor := ""
	if len(forks) > limit {
		forks = forks[:limit]
		last := forks[len(forks)-1]
		nextCursor = utils.EncodeCursor(last.UpdatedAt, last.ID)
	}
	return forks, nextCursor, nil
}

func (r *pgForkRepository) UpdateReadingProgress(ctx context.Context, querier interfaces.DBTX, forkID int64, progress int) error {
	return r.execOne(ctx, querier, "update reading progress", updateReadingProgressQuery, forkID, progress)
}

func (r *pgForkRepository) Touch(ctx context.Context, querier interfaces.DBTX, forkID int64) error {
	return r.execOne(ctx, querier, "touch fork", touchForkQuery, forkID)
}

func (r *pgForkRepository) Delete(ctx context.Context, querier interfaces.DBTX, forkID int64) error {
	return r.execOne(ctx, querier, "delete fork", deleteForkQuery, forkID)
}

func (r *pgForkRepository) execOne(ctx context.Context, querier interfaces.DBTX, op, query string, args ...interface{}) error {
	tag, err := querier.Exec(ctx, query, args...)
	if err != nil {
		r.logger.Error("Fork statement failed", zap.String("op", op), zap.Error(err))
		return wrapErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrForkNotFound
	}
	return nil
}
