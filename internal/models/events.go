package models

import (
	"time"

	"github.com/google/uuid"
)

type ForkEventType string

const (
	EventCommitAppended ForkEventType = "commit.appended"
	EventForkDeleted    ForkEventType = "fork.deleted"
	EventForkRolledBack ForkEventType = "fork.rolled_back"
	EventPrSubmitted    ForkEventType = "pr.submitted"
	EventPrReviewed     ForkEventType = "pr.reviewed"
)

// ForkEvent публикуется в очередь событий форков.
type ForkEvent struct {
	Type         ForkEventType     `json:"type"`
	StoryID      int64             `json:"story_id"`
	ForkID       *int64            `json:"fork_id,omitempty"`
	UserID       uuid.UUID         `json:"user_id"`
	CommitID     *int64            `json:"commit_id,omitempty"`
	SortOrder    *int              `json:"sort_order,omitempty"`
	SubmissionID *int64            `json:"submission_id,omitempty"`
	Status       *SubmissionStatus `json:"status,omitempty"`
	OccurredAt   time.Time         `json:"occurred_at"`
}

// ChapterPublishedEvent приходит от подсистемы авторинга при публикации новой главы.
type ChapterPublishedEvent struct {
	StoryID   int64 `json:"story_id"`
	ChapterID int64 `json:"chapter_id"`
}
