package models

import (
	"time"

	"github.com/google/uuid"
)

// Story - опубликованная история (внешний каталог, только чтение).
type Story struct {
	ID          int64     `json:"id" db:"id"`
	Slug        string    `json:"slug" db:"slug"`
	Title       string    `json:"title" db:"title"`
	Description *string   `json:"description,omitempty" db:"description"`
	AuthorID    uuid.UUID `json:"author_id" db:"author_id"`
	AuthorName  string    `json:"author_name" db:"author_name"`
	IsPublished bool      `json:"is_published" db:"is_published"`
}

// StoryChapter - глава в каноническом дереве истории: авторская (mainline)
// или привитая после одобрения PR.
type StoryChapter struct {
	ID              int64     `json:"id" db:"id"`
	StoryID         int64     `json:"story_id" db:"story_id"`
	SortOrder       int       `json:"sort_order" db:"sort_order"`
	Title           string    `json:"title" db:"title"`
	ContentMarkdown string    `json:"content_markdown" db:"content_markdown"`
	ParentChapterID *int64    `json:"parent_chapter_id,omitempty" db:"parent_chapter_id"`
	AuthorID        uuid.UUID `json:"author_id" db:"author_id"`
	AuthorName      string    `json:"author_name" db:"author_name"`
	IsMainline      bool      `json:"is_mainline" db:"is_mainline"`
	BranchName      *string   `json:"branch_name,omitempty" db:"branch_name"`
	WordCount       int       `json:"word_count" db:"word_count"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// BranchPoint - авторская точка выбора. SortOrder уникален в пределах истории.
type BranchPoint struct {
	ID         int64    `json:"id" db:"id"`
	StoryID    int64    `json:"story_id" db:"story_id"`
	SortOrder  int      `json:"sort_order" db:"sort_order"`
	AnchorText *string  `json:"anchor_text,omitempty" db:"anchor_text"`
	Options    []Option `json:"options" db:"-"`
}

// Option - вариант выбора. SelectionCount используется только для отображения популярности.
type Option struct {
	ID             int64   `json:"id" db:"id"`
	BranchPointID  int64   `json:"branch_point_id" db:"branch_point_id"`
	SortOrder      int     `json:"sort_order" db:"sort_order"`
	Label          string  `json:"label" db:"label"`
	PlotHint       *string `json:"plot_hint,omitempty" db:"plot_hint"`
	InfluenceNotes *string `json:"-" db:"influence_notes"`
	SelectionCount int     `json:"selection_count" db:"selection_count"`
}
