package service

import (
	"context"
	"fmt"

	"novel-fork/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type BookmarkService interface {
	CreateBookmark(ctx context.Context, forkID int64, requesterID uuid.UUID, input BookmarkInput) (*models.Bookmark, error)
	ListBookmarks(ctx context.Context, forkID int64, requesterID uuid.UUID) ([]models.Bookmark, error)
	UpdateBookmark(ctx context.Context, forkID int64, requesterID uuid.UUID, bookmarkID int64, input BookmarkUpdateInput) (*models.Bookmark, error)
	DeleteBookmark(ctx context.Context, forkID int64, requesterID uuid.UUID, bookmarkID int64) error
	ResolveBookmark(ctx context.Context, forkID int64, requesterID uuid.UUID, bookmarkID int64) (*models.BookmarkPosition, error)
}

// BookmarkInput - цель закладки задаётся ровно одним из ChapterSortOrder / CommitID.
type BookmarkInput struct {
	ChapterSortOrder *int    `json:"chapter_sort_order"`
	CommitID         *int64  `json:"commit_id"`
	BookmarkName     *string `json:"bookmark_name" validate:"omitempty,max=100"`
	Notes            *string `json:"notes" validate:"omitempty,max=2000"`
}

type BookmarkUpdateInput struct {
	BookmarkName *string `json:"bookmark_name" validate:"omitempty,max=100"`
	Notes        *string `json:"notes" validate:"omitempty,max=2000"`
}

type bookmarkServiceImpl struct {
	deps   Deps
	logger *zap.Logger
}

func NewBookmarkService(deps Deps, logger *zap.Logger) BookmarkService {
	return &bookmarkServiceImpl{deps: deps, logger: logger.Named("BookmarkService")}
}

func (s *bookmarkServiceImpl) CreateBookmark(ctx context.Context, forkID int64, requesterID uuid.UUID, input BookmarkInput) (*models.Bookmark, error) {
	if (input.ChapterSortOrder == nil) == (input.CommitID == nil) {
		return nil, models.ErrBookmarkTarget
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	q := s.deps.DB.Querier()
	fork, err := loadOwnedFork(ctx, s.deps.Forks, q, forkID, requesterID)
	if err != nil {
		return nil, err
	}

	if input.ChapterSortOrder != nil {
		if *input.ChapterSortOrder < 1 {
			return nil, fmt.Errorf("%w: chapter sort order must be positive", models.ErrInvalidArgument)
		}
		if _, err := s.deps.Stories.GetMainlineChapterBySortOrder(ctx, q, fork.StoryID, *input.ChapterSortOrder); err != nil {
			return nil, err
		}
	} else {
		commit, err := s.deps.Commits.GetByID(ctx, q, *input.CommitID)
		if err != nil {
			return nil, err
		}
		if commit.ForkID != forkID {
			return nil, models.ErrCommitNotFound
		}
	}

	bookmark := &models.Bookmark{
		ForkID:           forkID,
		ChapterSortOrder: input.ChapterSortOrder,
		CommitID:         input.CommitID,
		BookmarkName:     input.BookmarkName,
		Notes:            input.Notes,
	}
	if err := s.deps.Bookmarks.Create(ctx, q, bookmark); err != nil {
		return nil, err
	}
	s.logger.Debug("Bookmark created", zap.Int64("forkID", forkID), zap.Int64("bookmarkID", bookmark.ID))
	return bookmark, nil
}

func (s *bookmarkServiceImpl) ListBookmarks(ctx context.Context, forkID int64, requesterID uuid.UUID) ([]models.Bookmark, error) {
	q := s.deps.DB.Querier()
	if _, err := loadOwnedFork(ctx, s.deps.Forks, q, forkID, requesterID); err != nil {
		return nil, err
	}
	return s.deps.Bookmarks.ListByFork(ctx, q, forkID)
}

func (s *bookmarkServiceImpl) UpdateBookmark(ctx context.Context, forkID int64, requesterID uuid.UUID, bookmarkID int64, input BookmarkUpdateInput) (*models.Bookmark, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	q := s.deps.DB.Querier()
	if _, err := loadOwnedFork(ctx, s.deps.Forks, q, forkID, requesterID); err != nil {
		return nil, err
	}
	bookmark, err := s.deps.Bookmarks.GetByID(ctx, q, forkID, bookmarkID)
	if err != nil {
		return nil, err
	}
	bookmark.BookmarkName = input.BookmarkName
	bookmark.Notes = input.Notes
	if err := s.deps.Bookmarks.Update(ctx, q, bookmark); err != nil {
		return nil, err
	}
	return bookmark, nil
}

func (s *bookmarkServiceImpl) DeleteBookmark(ctx context.Context, forkID int64, requesterID uuid.UUID, bookmarkID int64) error {
	q := s.deps.DB.Querier()
	if _, err := loadOwnedFork(ctx, s.deps.Forks, q, forkID, requesterID); err != nil {
		return err
	}
	return s.deps.Bookmarks.Delete(ctx, q, forkID, bookmarkID)
}

// ResolveBookmark переводит закладку в позицию сквозной нумерации: авторские главы,
// затем коммиты форка.
func (s *bookmarkServiceImpl) ResolveBookmark(ctx context.Context, forkID int64, requesterID uuid.UUID, bookmarkID int64) (*models.BookmarkPosition, error) {
	q := s.deps.DB.Querier()
	fork, err := loadOwnedFork(ctx, s.deps.Forks, q, forkID, requesterID)
	if err != nil {
		return nil, err
	}
	bookmark, err := s.deps.Bookmarks.GetByID(ctx, q, forkID, bookmarkID)
	if err != nil {
		return nil, err
	}

	pos := &models.BookmarkPosition{BookmarkID: bookmark.ID}
	if bookmark.ChapterSortOrder != nil {
		pos.ChapterSortOrder = bookmark.ChapterSortOrder
		pos.AbsolutePosition = *bookmark.ChapterSortOrder
		return pos, nil
	}

	commit, err := s.deps.Commits.GetByID(ctx, q, *bookmark.CommitID)
	if err != nil {
		return nil, err
	}
	authored, err := s.deps.Stories.CountAuthoredChapters(ctx, q, fork.StoryID)
	if err != nil {
		return nil, fmt.Errorf("count authored chapters: %w", err)
	}
	pos.CommitID = bookmark.CommitID
	pos.CommitSortOrder = intPtr(commit.SortOrder)
	pos.AbsolutePosition = authored + commit.SortOrder
	return pos, nil
}
