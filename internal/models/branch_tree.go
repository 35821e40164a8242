package models

import "github.com/google/uuid"

// ChapterNode - узел дерева веток истории.
type ChapterNode struct {
	ID         int64          `json:"id"`
	Title      string         `json:"title"`
	AuthorID   uuid.UUID      `json:"author_id"`
	AuthorName string         `json:"author_name"`
	SortOrder  int            `json:"sort_order"`
	WordCount  int            `json:"word_count"`
	IsMainline bool           `json:"is_mainline"`
	BranchName *string        `json:"branch_name,omitempty"`
	ParentID   *int64         `json:"parent_id,omitempty"`
	Children   []*ChapterNode `json:"children"`
}

// BranchStats пересчитывается из дерева, отдельно не хранится.
type BranchStats struct {
	TotalChapters    int `json:"total_chapters"`
	MainlineChapters int `json:"mainline_chapters"`
	BranchChapters   int `json:"branch_chapters"`
	BranchPoints     int `json:"branch_points"`
	AuthorCount      int `json:"author_count"`
}
