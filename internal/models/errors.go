package models

import (
	"errors"
	"fmt"
)

// Базовая таксономия ошибок движка форков.
var (
	ErrNotFound            = errors.New("resource not found")
	ErrForbidden           = errors.New("forbidden")
	ErrConflict            = errors.New("conflict")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInvalidState        = errors.New("invalid state")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// Token Errors
	ErrTokenInvalid   = errors.New("token is invalid")
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenExpired   = errors.New("token has expired")

	ErrInternalServer = errors.New("internal server error")
)

// Уточнённые ошибки. Все оборачивают базовые, поэтому errors.Is(err, ErrConflict) и т.п. работают.
var (
	ErrStoryNotFound        = fmt.Errorf("%w: story not found or not published", ErrNotFound)
	ErrForkNotFound         = fmt.Errorf("%w: fork not found", ErrNotFound)
	ErrCommitNotFound       = fmt.Errorf("%w: commit not found", ErrNotFound)
	ErrBranchPointNotFound  = fmt.Errorf("%w: branch point not found", ErrNotFound)
	ErrOptionNotFound       = fmt.Errorf("%w: option not found", ErrNotFound)
	ErrBookmarkNotFound     = fmt.Errorf("%w: bookmark not found", ErrNotFound)
	ErrPreviewNotFound      = fmt.Errorf("%w: preview chapter not found", ErrNotFound)
	ErrPrNovelNotFound      = fmt.Errorf("%w: pr novel not found", ErrNotFound)
	ErrPrChapterNotFound    = fmt.Errorf("%w: pr chapter not found", ErrNotFound)
	ErrSubmissionNotFound   = fmt.Errorf("%w: submission not found", ErrNotFound)
	ErrChapterNotFound      = fmt.Errorf("%w: chapter not found", ErrNotFound)
	ErrNotForkOwner         = fmt.Errorf("%w: requester does not own the fork", ErrForbidden)
	ErrNotStoryAuthor       = fmt.Errorf("%w: only the story author may review", ErrForbidden)
	ErrNotPrOwner           = fmt.Errorf("%w: requester does not own the pr novel", ErrForbidden)
	ErrForkBusy             = fmt.Errorf("%w: another operation is in progress for this fork", ErrConflict)
	ErrStoryBusy            = fmt.Errorf("%w: story is locked by another review", ErrConflict)
	ErrPrNotEditable        = fmt.Errorf("%w: pr novel is not editable in its current status", ErrConflict)
	ErrPendingSubmission    = fmt.Errorf("%w: a pending submission already exists for this source", ErrConflict)
	ErrSubmissionReviewed   = fmt.Errorf("%w: submission has already been reviewed", ErrConflict)
	ErrForkUnderReview      = fmt.Errorf("%w: fork has a pending submission", ErrConflict)
	ErrPreviewOutOfSequence = fmt.Errorf("%w: preview chapter number is out of sequence", ErrInvalidState)
	ErrPreviewNotTerminal   = fmt.Errorf("%w: only the last preview chapter can be deleted", ErrInvalidState)
	ErrBranchPointOrder     = fmt.Errorf("%w: branch point is not the next one to resolve", ErrInvalidState)
	ErrEmptyFork            = fmt.Errorf("%w: fork has no commits to submit", ErrInvalidState)
	ErrBookmarkTarget       = fmt.Errorf("%w: exactly one of commitId or chapterSortOrder must be set", ErrInvalidArgument)
	ErrSubmitSource         = fmt.Errorf("%w: exactly one of prNovelId or forkId must be set", ErrInvalidArgument)
	ErrGenerationFailed     = fmt.Errorf("%w: content generation failed", ErrUpstreamUnavailable)
)
