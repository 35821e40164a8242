package database

import (
	"context"
	"errors"

	"novel-fork/internal/interfaces"
	"novel-fork/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var _ interfaces.BookmarkRepository = (*pgBookmarkRepository)(nil)

type pgBookmarkRepository struct {
	logger *zap.Logger
}

func NewPgBookmarkRepository(logger *zap.Logger) interfaces.BookmarkRepository {
	return &pgBookmarkRepository{logger: logger.Named("PgBookmarkRepo")}
}

const bookmarkColumns = `id, fork_id, chapter_sort_order, commit_id, bookmark_name, notes, created_at, updated_at`

const insertBookmarkQuery = `
INSERT INTO fork_bookmarks (fork_id, chapter_sort_order, commit_id, bookmark_name, notes)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at, updated_at`

const getBookmarkQuery = `SELECT ` + bookmarkColumns + ` FROM fork_bookmarks WHERE fork_id = $1 AND id = $2`

const listBookmarksQuery = `SELECT ` + bookmarkColumns + ` FROM fork_bookmarks WHERE fork_id = $1 ORDER BY created_at, id`

const updateBookmarkQuery = `
UPDATE fork_bookmarks SET bookmark_name = $3, notes = $4, updated_at = NOW()
WHERE fork_id = $1 AND id = $2
RETURNING updated_at`

const deleteBookmarkQuery = `DELETE FROM fork_bookmarks WHERE fork_id = $1 AND id = $2`

func (r *pgBookmarkRepository) Create(ctx context.Context, querier interfaces.DBTX, b *models.Bookmark) error {
	err := querier.QueryRow(ctx, insertBookmarkQuery, b.ForkID, b.ChapterSortOrder, b.CommitID, b.BookmarkName, b.Notes).
		Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to create bookmark", zap.Int64("forkID", b.ForkID), zap.Error(err))
		return wrapErr("create bookmark", err)
	}
	return nil
}

func (r *pgBookmarkRepository) GetByID(ctx context.Context, querier interfaces.DBTX, forkID, bookmarkID int64) (*models.Bookmark, error) {
	var b models.Bookmark
	if err := pgxscan.Get(ctx, querier, &b, getBookmarkQuery, forkID, bookmarkID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrBookmarkNotFound
		}
		return nil, wrapErr("get bookmark", err)
	}
	return &b, nil
}

func (r *pgBookmarkRepository) ListByFork(ctx context.Context, querier interfaces.DBTX, forkID int64) ([]models.Bookmark, error) {
	bookmarks := make([]models.Bookmark, 0)
	if err := pgxscan.Select(ctx, querier, &bookmarks, listBookmarksQuery, forkID); err != nil {
		return nil, wrapErr("list bookmarks", err)
	}
	return bookmarks, nil
}

func (r *pgBookmarkRepository) Update(ctx context.Context, querier interfaces.DBTX, b *models.Bookmark) error {
	err := querier.QueryRow(ctx, updateBookmarkQuery, b.ForkID, b.ID, b.BookmarkName, b.Notes).Scan(&b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrBookmarkNotFound
		}
		return wrapErr("update bookmark", err)
	}
	return nil
}

func (r *pgBookmarkRepository) Delete(ctx context.Context, querier interfaces.DBTX, forkID, bookmarkID int64) error {
	tag, err := querier.Exec(ctx, deleteBookmarkQuery, forkID, bookmarkID)
	if err != nil {
		return wrapErr("delete bookmark", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrBookmarkNotFound
	}
	return nil
}
