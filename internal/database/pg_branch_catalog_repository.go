package database

import (
	"context"
	"errors"

	"novel-fork/internal/interfaces"
	"novel-fork/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

var _ interfaces.BranchCatalogRepository = (*pgBranchCatalogRepository)(nil)

type pgBranchCatalogRepository struct {
	logger *zap.Logger
}

func NewPgBranchCatalogRepository(logger *zap.Logger) interfaces.BranchCatalogRepository {
	return &pgBranchCatalogRepository{logger: logger.Named("PgBranchCatalogRepo")}
}

const listBranchPointsByStoryQuery = `
SELECT id, story_id, sort_order, anchor_text FROM branch_points WHERE story_id = $1 ORDER BY sort_order`

const listOptionsByBranchPointsQuery = `
SELECT id, branch_point_id, sort_order, label, plot_hint, influence_notes, selection_count
FROM branch_options WHERE branch_point_id = ANY($1) ORDER BY branch_point_id, sort_order, id`

const getBranchPointQuery = `SELECT id, story_id, sort_order, anchor_text FROM branch_points WHERE id = $1`

const getBranchPointBySortOrderQuery = `
SELECT id, story_id, sort_order, anchor_text FROM branch_points WHERE story_id = $1 AND sort_order = $2`

const getOptionQuery = `
SELECT id, branch_point_id, sort_order, label, plot_hint, influence_notes, selection_count
FROM branch_options WHERE id = $1`

const incrementSelectionCountQuery = `UPDATE branch_options SET selection_count = selection_count + 1 WHERE id = $1`

func (r *pgBranchCatalogRepository) ListByStory(ctx context.Context, querier interfaces.DBTX, storyID int64) ([]models.BranchPoint, error) {
	var points []models.BranchPoint
	if err := pgxscan.Select(ctx, querier, &points, listBranchPointsByStoryQuery, storyID); err != nil {
		r.logger.Error("Failed to list branch points", zap.Int64("storyID", storyID), zap.Error(err))
		return nil, wrapErr("list branch points", err)
	}
	if len(points) == 0 {
		return points, nil
	}
	if err := r.attachOptions(ctx, querier, points); err != nil {
		return nil, err
	}
	return points, nil
}

func (r *pgBranchCatalogRepository) attachOptions(ctx context.Context, querier interfaces.DBTX, points []models.BranchPoint) error {
	ids := make([]int64, len(points))
	index := make(map[int64]int, len(points))
	for i, p := range points {
		ids[i] = p.ID
		index[p.ID] = i
	}
	var options []models.Option
	if err := pgxscan.Select(ctx, querier, &options, listOptionsByBranchPointsQuery, pq.Array(ids)); err != nil {
		r.logger.Error("Failed to list branch options", zap.Int("pointCount", len(ids)), zap.Error(err))
		return wrapErr("list branch options", err)
	}
	for _, o := range options {
		if i, ok := index[o.BranchPointID]; ok {
			points[i].Options = append(points[i].Options, o)
		}
	}
	return nil
}

func (r *pgBranchCatalogRepository) GetBranchPoint(ctx context.Context, querier interfaces.DBTX, branchPointID int64) (*models.BranchPoint, error) {
	return r.getPoint(ctx, querier, getBranchPointQuery, branchPointID)
}

func (r *pgBranchCatalogRepository) GetBranchPointBySortOrder(ctx context.Context, querier interfaces.DBTX, storyID int64, sortOrder int) (*models.BranchPoint, error) {
	return r.getPoint(ctx, querier, getBranchPointBySortOrderQuery, storyID, sortOrder)
}

func (r *pgBranchCatalogRepository) getPoint(ctx context.Context, querier interfaces.DBTX, query string, args ...interface{}) (*models.BranchPoint, error) {
	var point models.BranchPoint
	if err := pgxscan.Get(ctx, querier, &point, query, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrBranchPointNotFound
		}
		return nil, wrapErr("get branch point", err)
	}
	points := []models.BranchPoint{point}
	if err := r.attachOptions(ctx, querier, points); err != nil {
		return nil, err
	}
	return &points[0], nil
}

func (r *pgBranchCatalogRepository) GetOption(ctx context.Context, querier interfaces.DBTX, optionID int64) (*models.Option, error) {
	var option models.Option
	if err := pgxscan.Get(ctx, querier, &option, getOptionQuery, optionID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrOptionNotFound
		}
		return nil, wrapErr("get option", err)
	}
	return &option, nil
}

func (r *pgBranchCatalogRepository) IncrementSelectionCount(ctx context.Context, querier interfaces.DBTX, optionID int64) error {
	tag, err := querier.Exec(ctx, incrementSelectionCountQuery, optionID)
	if err != nil {
		return wrapErr("increment selection count", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrOptionNotFound
	}
	return nil
}
