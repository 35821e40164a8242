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

var _ interfaces.StoryCatalogRepository = (*pgStoryCatalogRepository)(nil)

type pgStoryCatalogRepository struct {
	logger *zap.Logger
}

func NewPgStoryCatalogRepository(logger *zap.Logger) interfaces.StoryCatalogRepository {
	return &pgStoryCatalogRepository{logger: logger.Named("PgStoryCatalogRepo")}
}

const storyColumns = `id, slug, title, description, author_id, author_name, is_published`

const getPublishedStoryBySlugQuery = `SELECT ` + storyColumns + ` FROM stories WHERE slug = $1 AND is_published`

const getStoryByIDQuery = `SELECT ` + storyColumns + ` FROM stories WHERE id = $1`

const countAuthoredChaptersQuery = `SELECT COUNT(*) FROM story_chapters WHERE story_id = $1 AND is_mainline`

const chapterColumns = `id, story_id, sort_order, title, content_markdown, parent_chapter_id,
    author_id, author_name, is_mainline, branch_name, word_count, created_at`

const listAuthoredChaptersQuery = `SELECT ` + chapterColumns + `
FROM story_chapters WHERE story_id = $1 AND is_mainline ORDER BY sort_order`

const getMainlineChapterBySortOrderQuery = `SELECT ` + chapterColumns + `
FROM story_chapters WHERE story_id = $1 AND is_mainline AND sort_order = $2`

// Текст глав для дерева не нужен.
const listTreeChaptersQuery = `SELECT id, story_id, sort_order, title, '' AS content_markdown, parent_chapter_id,
    author_id, author_name, is_mainline, branch_name, word_count, created_at
FROM story_chapters WHERE story_id = $1 ORDER BY sort_order, id`

const insertChapterQuery = `
INSERT INTO story_chapters (story_id, sort_order, title, content_markdown, parent_chapter_id,
    author_id, author_name, is_mainline, branch_name, word_count)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id, created_at`

func (r *pgStoryCatalogRepository) GetPublishedBySlug(ctx context.Context, querier interfaces.DBTX, slug string) (*models.Story, error) {
	var story models.Story
	if err := pgxscan.Get(ctx, querier, &story, getPublishedStoryBySlugQuery, slug); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrStoryNotFound
		}
		r.logger.Error("Failed to get published story by slug", zap.String("slug", slug), zap.Error(err))
		return nil, wrapErr("get published story", err)
	}
	return &story, nil
}

func (r *pgStoryCatalogRepository) GetByID(ctx context.Context, querier interfaces.DBTX, storyID int64) (*models.Story, error) {
	var story models.Story
	if err := pgxscan.Get(ctx, querier, &story, getStoryByIDQuery, storyID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrStoryNotFound
		}
		r.logger.Error("Failed to get story", zap.Int64("storyID", storyID), zap.Error(err))
		return nil, wrapErr("get story", err)
	}
	return &story, nil
}

func (r *pgStoryCatalogRepository) CountAuthoredChapters(ctx context.Context, querier interfaces.DBTX, storyID int64) (int, error) {
	var count int
	if err := querier.QueryRow(ctx, countAuthoredChaptersQuery, storyID).Scan(&count); err != nil {
		return 0, wrapErr("count authored chapters", err)
	}
	return count, nil
}

func (r *pgStoryCatalogRepository) ListAuthoredChapters(ctx context.Context, querier interfaces.DBTX, storyID int64) ([]models.StoryChapter, error) {
	var chapters []models.StoryChapter
	if err := pgxscan.Select(ctx, querier, &chapters, listAuthoredChaptersQuery, storyID); err != nil {
		return nil, wrapErr("list authored chapters", err)
	}
	return chapters, nil
}

func (r *pgStoryCatalogRepository) GetMainlineChapterBySortOrder(ctx context.Context, querier interfaces.DBTX, storyID int64, sortOrder int) (*models.StoryChapter, error) {
	var chapter models.StoryChapter
	if err := pgxscan.Get(ctx, querier, &chapter, getMainlineChapterBySortOrderQuery, storyID, sortOrder); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrChapterNotFound
		}
		return nil, wrapErr("get mainline chapter", err)
	}
	return &chapter, nil
}

func (r *pgStoryCatalogRepository) ListTreeChapters(ctx context.Context, querier interfaces.DBTX, storyID int64) ([]models.StoryChapter, error) {
	var chapters []models.StoryChapter
	if err := pgxscan.Select(ctx, querier, &chapters, listTreeChaptersQuery, storyID); err != nil {
		r.logger.Error("Failed to list tree chapters", zap.Int64("storyID", storyID), zap.Error(err))
		return nil, wrapErr("list tree chapters", err)
	}
	return chapters, nil
}

func (r *pgStoryCatalogRepository) InsertChapter(ctx context.Context, querier interfaces.DBTX, ch *models.StoryChapter) error {
	err := querier.QueryRow(ctx, insertChapterQuery,
		ch.StoryID, ch.SortOrder, ch.Title, ch.ContentMarkdown, ch.ParentChapterID,
		ch.AuthorID, ch.AuthorName, ch.IsMainline, ch.BranchName, ch.WordCount,
	).Scan(&ch.ID, &ch.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to insert story chapter", zap.Int64("storyID", ch.StoryID), zap.Error(err))
		return wrapErr("insert story chapter", err)
	}
	return nil
}
