package models

import (
	"time"

	"github.com/google/uuid"
)

// Fork - личное продолжение истории читателем. Не более одного на пару (user, story).
type Fork struct {
	ID              int64     `json:"id" db:"id"`
	UserID          uuid.UUID `json:"user_id" db:"user_id"`
	StoryID         int64     `json:"story_id" db:"story_id"`
	StorySlug       string    `json:"story_slug" db:"story_slug"`
	ReadingProgress int       `json:"reading_progress" db:"reading_progress"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// Commit - неизменяемая глава форка. SortOrder образует непрерывную последовательность 1..N.
type Commit struct {
	ID              int64     `json:"id" db:"id"`
	ForkID          int64     `json:"fork_id" db:"fork_id"`
	SortOrder       int       `json:"sort_order" db:"sort_order"`
	BranchPointID   *int64    `json:"branch_point_id,omitempty" db:"branch_point_id"`
	OptionID        *int64    `json:"option_id,omitempty" db:"option_id"`
	Title           string    `json:"title" db:"title"`
	ContentMarkdown string    `json:"content_markdown" db:"content_markdown"`
	WordCount       int       `json:"word_count" db:"word_count"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Bookmark указывает либо на авторскую главу, либо на коммит, но не на оба сразу.
type Bookmark struct {
	ID               int64     `json:"id" db:"id"`
	ForkID           int64     `json:"fork_id" db:"fork_id"`
	ChapterSortOrder *int      `json:"chapter_sort_order,omitempty" db:"chapter_sort_order"`
	CommitID         *int64    `json:"commit_id,omitempty" db:"commit_id"`
	BookmarkName     *string   `json:"bookmark_name,omitempty" db:"bookmark_name"`
	Notes            *string   `json:"notes,omitempty" db:"notes"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// BookmarkPosition - результат разрешения закладки в навигационную позицию.
type BookmarkPosition struct {
	BookmarkID       int64  `json:"bookmark_id"`
	ChapterSortOrder *int   `json:"chapter_sort_order,omitempty"`
	CommitID         *int64 `json:"commit_id,omitempty"`
	CommitSortOrder  *int   `json:"commit_sort_order,omitempty"`
	// AbsolutePosition - номер главы в сквозной нумерации (авторские главы + коммиты).
	AbsolutePosition int `json:"absolute_position"`
}

// PreviewChapter - эфемерная глава в буфере предпросмотра, ещё не ставшая коммитом.
type PreviewChapter struct {
	ChapterNumber   int       `json:"chapter_number"`
	Title           string    `json:"title"`
	ContentMarkdown string    `json:"content_markdown"`
	Summary         *string   `json:"summary,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// GeneratedPreview - черновик, полученный стримингом; сохраняется только явным SaveAiPreview.
type GeneratedPreview struct {
	ChapterNumber   int    `json:"chapter_number"`
	Title           string `json:"title"`
	ContentMarkdown string `json:"content_markdown"`
}

// DirectionOption - свободное направление продолжения, предложенное генератором.
type DirectionOption struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}
