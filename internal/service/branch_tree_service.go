package service

import (
	"context"
	"sort"

	"novel-fork/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BranchTreeService собирает главы всех участников в одно дерево веток истории.
type BranchTreeService interface {
	GetBranchTree(ctx context.Context, storyID int64) ([]*models.ChapterNode, error)
	GetMainline(ctx context.Context, storyID int64) ([]models.ChapterNode, error)
	GetChildBranches(ctx context.Context, storyID, chapterID int64) ([]models.ChapterNode, error)
	GetDescendantTree(ctx context.Context, storyID, chapterID int64) (*models.ChapterNode, error)
	GetAncestorChain(ctx context.Context, storyID, chapterID int64) ([]models.ChapterNode, error)
	GetAuthorBranches(ctx context.Context, storyID int64, authorID uuid.UUID) ([]models.ChapterNode, error)
	GetBranchStats(ctx context.Context, storyID int64) (*models.BranchStats, error)
	InvalidateTree(ctx context.Context, storyID int64) error
}

type branchTreeServiceImpl struct {
	deps   Deps
	logger *zap.Logger
}

func NewBranchTreeService(deps Deps, logger *zap.Logger) BranchTreeService {
	return &branchTreeServiceImpl{deps: deps, logger: logger.Named("BranchTreeService")}
}

// ChapterTree - построенное дерево с индексом узлов по id.
type ChapterTree struct {
	Roots []*models.ChapterNode
	byID  map[int64]*models.ChapterNode
}

// BuildChapterTree строит лес из плоского списка глав. Узлы с отсутствующим
// родителем становятся корнями; дети упорядочены по (sortOrder, id).
func BuildChapterTree(chapters []models.StoryChapter) *ChapterTree {
	tree := &ChapterTree{byID: make(map[int64]*models.ChapterNode, len(chapters))}
	for _, ch := range chapters {
		tree.byID[ch.ID] = &models.ChapterNode{
			ID:         ch.ID,
			Title:      ch.Title,
			AuthorID:   ch.AuthorID,
			AuthorName: ch.AuthorName,
			SortOrder:  ch.SortOrder,
			WordCount:  ch.WordCount,
			IsMainline: ch.IsMainline,
			BranchName: ch.BranchName,
			ParentID:   ch.ParentChapterID,
			Children:   []*models.ChapterNode{},
		}
	}
	for _, ch := range chapters {
		node := tree.byID[ch.ID]
		if ch.ParentChapterID != nil {
			if parent, ok := tree.byID[*ch.ParentChapterID]; ok && parent != node {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		tree.Roots = append(tree.Roots, node)
	}
	sortNodes(tree.Roots)
	for _, node := range tree.byID {
		sortNodes(node.Children)
	}
	if tree.Roots == nil {
		tree.Roots = []*models.ChapterNode{}
	}
	return tree
}

func sortNodes(nodes []*models.ChapterNode) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].SortOrder != nodes[j].SortOrder {
			return nodes[i].SortOrder < nodes[j].SortOrder
		}
		return nodes[i].ID < nodes[j].ID
	})
}

// flat копирует узел без поддерева.
func flat(node *models.ChapterNode) models.ChapterNode {
	out := *node
	out.Children = nil
	return out
}

// walk обходит дерево в глубину от корней. Каждый узел посещается один раз.
func (t *ChapterTree) walk(fn func(node *models.ChapterNode)) {
	visited := make(map[int64]bool, len(t.byID))
	var visit func(node *models.ChapterNode)
	visit = func(node *models.ChapterNode) {
		if visited[node.ID] {
			return
		}
		visited[node.ID] = true
		fn(node)
		for _, child := range node.Children {
			visit(child)
		}
	}
	for _, root := range t.Roots {
		visit(root)
	}
}

func (t *ChapterTree) Mainline() []models.ChapterNode {
	out := make([]models.ChapterNode, 0)
	t.walk(func(node *models.ChapterNode) {
		if node.IsMainline {
			out = append(out, flat(node))
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (t *ChapterTree) Children(chapterID int64) ([]models.ChapterNode, error) {
	node, ok := t.byID[chapterID]
	if !ok {
		return nil, models.ErrChapterNotFound
	}
	out := make([]models.ChapterNode, 0, len(node.Children))
	for _, child := range node.Children {
		out = append(out, flat(child))
	}
	return out, nil
}

func (t *ChapterTree) Descendants(chapterID int64) (*models.ChapterNode, error) {
	node, ok := t.byID[chapterID]
	if !ok {
		return nil, models.ErrChapterNotFound
	}
	return node, nil
}

// Ancestors возвращает цепочку от корня до главы включительно.
func (t *ChapterTree) Ancestors(chapterID int64) ([]models.ChapterNode, error) {
	node, ok := t.byID[chapterID]
	if !ok {
		return nil, models.ErrChapterNotFound
	}
	chain := []models.ChapterNode{}
	seen := make(map[int64]bool)
	for node != nil && !seen[node.ID] {
		seen[node.ID] = true
		chain = append(chain, flat(node))
		if node.ParentID == nil {
			break
		}
		node = t.byID[*node.ParentID]
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// AuthorBranches - ответвления (не mainline) указанного автора.
func (t *ChapterTree) AuthorBranches(authorID uuid.UUID) []models.ChapterNode {
	out := make([]models.ChapterNode, 0)
	t.walk(func(node *models.ChapterNode) {
		if !node.IsMainline && node.AuthorID == authorID {
			out = append(out, flat(node))
		}
	})
	return out
}

func (t *ChapterTree) Stats() models.BranchStats {
	var stats models.BranchStats
	authors := make(map[uuid.UUID]struct{})
	t.walk(func(node *models.ChapterNode) {
		stats.TotalChapters++
		if node.IsMainline {
			stats.MainlineChapters++
		} else {
			stats.BranchChapters++
		}
		if len(node.Children) > 1 {
			stats.BranchPoints++
		}
		authors[node.AuthorID] = struct{}{}
	})
	stats.AuthorCount = len(authors)
	return stats
}

// load берёт плоский список из кэша или из БД и строит дерево.
func (s *branchTreeServiceImpl) load(ctx context.Context, storyID int64) (*ChapterTree, error) {
	if s.deps.TreeCache != nil {
		chapters, ok, err := s.deps.TreeCache.Get(ctx, storyID)
		if err != nil {
			s.logger.Warn("Branch tree cache read failed", zap.Int64("storyID", storyID), zap.Error(err))
		} else if ok {
			return BuildChapterTree(chapters), nil
		}
	}

	q := s.deps.DB.Querier()
	if _, err := s.deps.Stories.GetByID(ctx, q, storyID); err != nil {
		return nil, err
	}
	chapters, err := s.deps.Stories.ListTreeChapters(ctx, q, storyID)
	if err != nil {
		return nil, err
	}
	if s.deps.TreeCache != nil {
		if err := s.deps.TreeCache.Set(ctx, storyID, chapters); err != nil {
			s.logger.Warn("Branch tree cache write failed", zap.Int64("storyID", storyID), zap.Error(err))
		}
	}
	return BuildChapterTree(chapters), nil
}

func (s *branchTreeServiceImpl) GetBranchTree(ctx context.Context, storyID int64) ([]*models.ChapterNode, error) {
	tree, err := s.load(ctx, storyID)
	if err != nil {
		return nil, err
	}
	return tree.Roots, nil
}

func (s *branchTreeServiceImpl) GetMainline(ctx context.Context, storyID int64) ([]models.ChapterNode, error) {
	tree, err := s.load(ctx, storyID)
	if err != nil {
		return nil, err
	}
	return tree.Mainline(), nil
}

func (s *branchTreeServiceImpl) GetChildBranches(ctx context.Context, storyID, chapterID int64) ([]models.ChapterNode, error) {
	tree, err := s.load(ctx, storyID)
	if err != nil {
		return nil, err
	}
	return tree.Children(chapterID)
}

func (s *branchTreeServiceImpl) GetDescendantTree(ctx context.Context, storyID, chapterID int64) (*models.ChapterNode, error) {
	tree, err := s.load(ctx, storyID)
	if err != nil {
		return nil, err
	}
	return tree.Descendants(chapterID)
}

func (s *branchTreeServiceImpl) GetAncestorChain(ctx context.Context, storyID, chapterID int64) ([]models.ChapterNode, error) {
	tree, err := s.load(ctx, storyID)
	if err != nil {
		return nil, err
	}
	return tree.Ancestors(chapterID)
}

func (s *branchTreeServiceImpl) GetAuthorBranches(ctx context.Context, storyID int64, authorID uuid.UUID) ([]models.ChapterNode, error) {
	tree, err := s.load(ctx, storyID)
	if err != nil {
		return nil, err
	}
	return tree.AuthorBranches(authorID), nil
}

func (s *branchTreeServiceImpl) GetBranchStats(ctx context.Context, storyID int64) (*models.BranchStats, error) {
	tree, err := s.load(ctx, storyID)
	if err != nil {
		return nil, err
	}
	stats := tree.Stats()
	return &stats, nil
}

func (s *branchTreeServiceImpl) InvalidateTree(ctx context.Context, storyID int64) error {
	if s.deps.TreeCache == nil {
		return nil
	}
	return s.deps.TreeCache.Invalidate(ctx, storyID)
}
