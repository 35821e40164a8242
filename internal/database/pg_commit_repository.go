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

var _ interfaces.CommitRepository = (*pgCommitRepository)(nil)

type pgCommitRepository struct {
	logger *zap.Logger
}

func NewPgCommitRepository(logger *zap.Logger) interfaces.CommitRepository {
	return &pgCommitRepository{logger: logger.Named("PgCommitRepo")}
}

const commitColumns = `c.id, c.fork_id, c.sort_order, c.branch_point_id, c.option_id, c.title,
    c.content_markdown, c.word_count, c.created_at`

const listCommitsByForkQuery = `SELECT ` + commitColumns + `
FROM fork_commits c WHERE c.fork_id = $1 ORDER BY c.sort_order`

const getCommitByIDQuery = `SELECT ` + commitColumns + ` FROM fork_commits c WHERE c.id = $1`

const countCommitsQuery = `SELECT COUNT(*) FROM fork_commits WHERE fork_id = $1`

// sort_order вычисляется в той же команде; параллельные вставки в один форк
// исключены блокировкой форка, а UNIQUE(fork_id, sort_order) страхует инвариант.
const appendCommitQuery = `
INSERT INTO fork_commits (fork_id, sort_order, branch_point_id, option_id, title, content_markdown, word_count)
SELECT $1, COALESCE(MAX(sort_order), 0) + 1, $2, $3, $4, $5, $6
FROM fork_commits WHERE fork_id = $1
RETURNING id, sort_order, created_at`

const deleteCommitsFromSortOrderQuery = `DELETE FROM fork_commits WHERE fork_id = $1 AND sort_order >= $2`

const findCommitByBranchPointSortOrderQuery = `SELECT ` + commitColumns + `
FROM fork_commits c JOIN branch_points bp ON bp.id = c.branch_point_id
WHERE c.fork_id = $1 AND bp.sort_order = $2
ORDER BY c.sort_order
LIMIT 1`

const lastResolvedBranchPointSortOrderQuery = `
SELECT COALESCE(MAX(bp.sort_order), 0)
FROM fork_commits c JOIN branch_points bp ON bp.id = c.branch_point_id
WHERE c.fork_id = $1`

func (r *pgCommitRepository) ListByFork(ctx context.Context, querier interfaces.DBTX, forkID int64) ([]models.Commit, error) {
	commits := make([]models.Commit, 0)
	if err := pgxscan.Select(ctx, querier, &commits, listCommitsByForkQuery, forkID); err != nil {
		r.logger.Error("Failed to list commits", zap.Int64("forkID", forkID), zap.Error(err))
		return nil, wrapErr("list commits", err)
	}
	return commits, nil
}

func (r *pgCommitRepository) GetByID(ctx context.Context, querier interfaces.DBTX, commitID int64) (*models.Commit, error) {
	return r.getOne(ctx, querier, getCommitByIDQuery, commitID)
}

func (r *pgCommitRepository) getOne(ctx context.Context, querier interfaces.DBTX, query string, args ...interface{}) (*models.Commit, error) {
	var commit models.Commit
	if err := pgxscan.Get(ctx, querier, &commit, query, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrCommitNotFound
		}
		return nil, wrapErr("get commit", err)
	}
	return &commit, nil
}

func (r *pgCommitRepository) Count(ctx context.Context, querier interfaces.DBTX, forkID int64) (int, error) {
	var count int
	if err := querier.QueryRow(ctx, countCommitsQuery, forkID).Scan(&count); err != nil {
		return 0, wrapErr("count commits", err)
	}
	return count, nil
}

func (r *pgCommitRepository) Append(ctx context.Context, querier interfaces.DBTX, commit *models.Commit) error {
	err := querier.QueryRow(ctx, appendCommitQuery,
		commit.ForkID, commit.BranchPointID, commit.OptionID, commit.Title, commit.ContentMarkdown, commit.WordCount,
	).Scan(&commit.ID, &commit.SortOrder, &commit.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			r.logger.Warn("Concurrent commit append detected", zap.Int64("forkID", commit.ForkID))
			return models.ErrForkBusy
		}
		r.logger.Error("Failed to append commit", zap.Int64("forkID", commit.ForkID), zap.Error(err))
		return wrapErr("append commit", err)
	}
	return nil
}

func (r *pgCommitRepository) DeleteFromSortOrder(ctx context.Context, querier interfaces.DBTX, forkID int64, fromSortOrder int) (int64, error) {
	tag, err := querier.Exec(ctx, deleteCommitsFromSortOrderQuery, forkID, fromSortOrder)
	if err != nil {
		r.logger.Error("Failed to truncate commits", zap.Int64("forkID", forkID), zap.Int("fromSortOrder", fromSortOrder), zap.Error(err))
		return 0, wrapErr("truncate commits", err)
	}
	return tag.RowsAffected(), nil
}

func (r *pgCommitRepository) FindByBranchPointSortOrder(ctx context.Context, querier interfaces.DBTX, forkID int64, branchPointSortOrder int) (*models.Commit, error) {
	return r.getOne(ctx, querier, findCommitByBranchPointSortOrderQuery, forkID, branchPointSortOrder)
}

func (r *pgCommitRepository) LastResolvedBranchPointSortOrder(ctx context.Context, querier interfaces.DBTX, forkID int64) (int, error) {
	var sortOrder int
	if err := querier.QueryRow(ctx, lastResolvedBranchPointSortOrderQuery, forkID).Scan(&sortOrder); err != nil {
		return 0, wrapErr("last resolved branch point", err)
	}
	return sortOrder, nil
}
