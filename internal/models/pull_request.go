package models

import (
	"time"

	"github.com/google/uuid"
)

type PrNovelStatus string

const (
	PrNovelStatusDraft     PrNovelStatus = "draft"
	PrNovelStatusSubmitted PrNovelStatus = "submitted"
	PrNovelStatusApproved  PrNovelStatus = "approved"
	PrNovelStatusRejected  PrNovelStatus = "rejected"
)

// Editable сообщает, можно ли менять PR-новеллу и её главы.
func (s PrNovelStatus) Editable() bool {
	return s == PrNovelStatusDraft || s == PrNovelStatusRejected
}

type SubmissionStatus string

const (
	SubmissionStatusPending  SubmissionStatus = "pending"
	SubmissionStatusApproved SubmissionStatus = "approved"
	SubmissionStatusRejected SubmissionStatus = "rejected"
)

// PrNovel - самостоятельная ветка, написанная вручную от выбранной авторской главы.
type PrNovel struct {
	ID                   int64         `json:"id" db:"id"`
	StoryID              int64         `json:"story_id" db:"story_id"`
	UserID               uuid.UUID     `json:"user_id" db:"user_id"`
	Title                string        `json:"title" db:"title"`
	Description          *string       `json:"description,omitempty" db:"description"`
	FromChapterSortOrder int           `json:"from_chapter_sort_order" db:"from_chapter_sort_order"`
	Status               PrNovelStatus `json:"status" db:"status"`
	ReviewComment        *string       `json:"review_comment,omitempty" db:"review_comment"`
	CreatedAt            time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at" db:"updated_at"`
	Chapters             []PrChapter   `json:"chapters,omitempty" db:"-"`
}

type PrChapter struct {
	ID              int64     `json:"id" db:"id"`
	PrNovelID       int64     `json:"pr_novel_id" db:"pr_novel_id"`
	SortOrder       int       `json:"sort_order" db:"sort_order"`
	Title           string    `json:"title" db:"title"`
	ContentMarkdown string    `json:"content_markdown" db:"content_markdown"`
	WordCount       int       `json:"word_count" db:"word_count"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// PrSubmission - единица ревью. Источник - ровно один из ForkID / PrNovelID.
type PrSubmission struct {
	ID            int64            `json:"id" db:"id"`
	StoryID       int64            `json:"story_id" db:"story_id"`
	ForkID        *int64           `json:"fork_id,omitempty" db:"fork_id"`
	PrNovelID     *int64           `json:"pr_novel_id,omitempty" db:"pr_novel_id"`
	FromCommitID  *int64           `json:"from_commit_id,omitempty" db:"from_commit_id"`
	SubmitterID   uuid.UUID        `json:"submitter_id" db:"submitter_id"`
	AuthorID      uuid.UUID        `json:"author_id" db:"author_id"`
	Title         string           `json:"title" db:"title"`
	Description   *string          `json:"description,omitempty" db:"description"`
	Status        SubmissionStatus `json:"status" db:"status"`
	ReviewComment *string          `json:"review_comment,omitempty" db:"review_comment"`
	ReviewedAt    *time.Time       `json:"reviewed_at,omitempty" db:"reviewed_at"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
}

// GraftChapter - глава, которую нужно привить к дереву истории при одобрении PR.
type GraftChapter struct {
	Title           string
	ContentMarkdown string
	WordCount       int
}
