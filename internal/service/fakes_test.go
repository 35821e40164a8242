package service_test

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"novel-fork/internal/interfaces"
	"novel-fork/internal/interfaces/mocks"
	"novel-fork/internal/models"
	"novel-fork/internal/service"

	"github.com/google/uuid"
)

// memStore - in-memory состояние для сценарных тестов журнала коммитов.
type memStore struct {
	mu           sync.Mutex
	nextID       int64
	stories      map[int64]models.Story
	chapters     []models.StoryChapter
	branchPoints map[int64]models.BranchPoint
	options      map[int64]*models.Option
	forks        map[int64]models.Fork
	commits      map[int64]models.Commit
	previews     map[int64][]models.PreviewChapter
}

func newMemStore() *memStore {
	return &memStore{
		stories:      make(map[int64]models.Story),
		branchPoints: make(map[int64]models.BranchPoint),
		options:      make(map[int64]*models.Option),
		forks:        make(map[int64]models.Fork),
		commits:      make(map[int64]models.Commit),
		previews:     make(map[int64][]models.PreviewChapter),
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

// seedStory создаёт опубликованную историю с n авторскими главами.
func (s *memStore) seedStory(slug string, authorID uuid.UUID, chapters int) models.Story {
	s.mu.Lock()
	defer s.mu.Unlock()
	story := models.Story{ID: s.id(), Slug: slug, Title: "Story " + slug, AuthorID: authorID, AuthorName: "author", IsPublished: true}
	s.stories[story.ID] = story
	var parent *int64
	for i := 1; i <= chapters; i++ {
		ch := models.StoryChapter{ID: s.id(), StoryID: story.ID, SortOrder: i, Title: "Authored", ContentMarkdown: "authored text",
			ParentChapterID: parent, AuthorID: authorID, AuthorName: "author", IsMainline: true}
		s.chapters = append(s.chapters, ch)
		id := ch.ID
		parent = &id
	}
	return story
}

func (s *memStore) seedBranchPoint(storyID int64, sortOrder int, labels ...string) (models.BranchPoint, []*models.Option) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bp := models.BranchPoint{ID: s.id(), StoryID: storyID, SortOrder: sortOrder}
	s.branchPoints[bp.ID] = bp
	opts := make([]*models.Option, 0, len(labels))
	for i, label := range labels {
		o := &models.Option{ID: s.id(), BranchPointID: bp.ID, SortOrder: i + 1, Label: label}
		s.options[o.ID] = o
		opts = append(opts, o)
	}
	return bp, opts
}

func (s *memStore) selectionCount(optionID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.options[optionID].SelectionCount
}

type memStories struct{ s *memStore }

func (r memStories) GetPublishedBySlug(_ context.Context, _ interfaces.DBTX, slug string) (*models.Story, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, st := range r.s.stories {
		if st.Slug == slug && st.IsPublished {
			out := st
			return &out, nil
		}
	}
	return nil, models.ErrStoryNotFound
}

func (r memStories) GetByID(_ context.Context, _ interfaces.DBTX, storyID int64) (*models.Story, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.stories[storyID]
	if !ok {
		return nil, models.ErrStoryNotFound
	}
	return &st, nil
}

func (r memStories) CountAuthoredChapters(ctx context.Context, q interfaces.DBTX, storyID int64) (int, error) {
	chapters, err := r.ListAuthoredChapters(ctx, q, storyID)
	return len(chapters), err
}

func (r memStories) ListAuthoredChapters(_ context.Context, _ interfaces.DBTX, storyID int64) ([]models.StoryChapter, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.StoryChapter{}
	for _, ch := range r.s.chapters {
		if ch.StoryID == storyID && ch.IsMainline {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (r memStories) GetMainlineChapterBySortOrder(ctx context.Context, q interfaces.DBTX, storyID int64, sortOrder int) (*models.StoryChapter, error) {
	chapters, _ := r.ListAuthoredChapters(ctx, q, storyID)
	for _, ch := range chapters {
		if ch.SortOrder == sortOrder {
			out := ch
			return &out, nil
		}
	}
	return nil, models.ErrChapterNotFound
}

func (r memStories) ListTreeChapters(_ context.Context, _ interfaces.DBTX, storyID int64) ([]models.StoryChapter, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.StoryChapter{}
	for _, ch := range r.s.chapters {
		if ch.StoryID == storyID {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (r memStories) InsertChapter(_ context.Context, _ interfaces.DBTX, chapter *models.StoryChapter) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	chapter.ID = r.s.id()
	chapter.CreatedAt = time.Now()
	r.s.chapters = append(r.s.chapters, *chapter)
	return nil
}

type memBranches struct{ s *memStore }

func (r memBranches) ListByStory(_ context.Context, _ interfaces.DBTX, storyID int64) ([]models.BranchPoint, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.BranchPoint{}
	for _, bp := range r.s.branchPoints {
		if bp.StoryID == storyID {
			out = append(out, bp)
		}
	}
	return out, nil
}

func (r memBranches) GetBranchPoint(_ context.Context, _ interfaces.DBTX, id int64) (*models.BranchPoint, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	bp, ok := r.s.branchPoints[id]
	if !ok {
		return nil, models.ErrBranchPointNotFound
	}
	return &bp, nil
}

func (r memBranches) GetBranchPointBySortOrder(_ context.Context, _ interfaces.DBTX, storyID int64, sortOrder int) (*models.BranchPoint, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, bp := range r.s.branchPoints {
		if bp.StoryID == storyID && bp.SortOrder == sortOrder {
			out := bp
			return &out, nil
		}
	}
	return nil, models.ErrBranchPointNotFound
}

func (r memBranches) GetOption(_ context.Context, _ interfaces.DBTX, id int64) (*models.Option, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.options[id]
	if !ok {
		return nil, models.ErrOptionNotFound
	}
	out := *o
	return &out, nil
}

func (r memBranches) IncrementSelectionCount(_ context.Context, _ interfaces.DBTX, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.options[id]
	if !ok {
		return models.ErrOptionNotFound
	}
	o.SelectionCount++
	return nil
}

type memForks struct{ s *memStore }

func (r memForks) Create(_ context.Context, _ interfaces.DBTX, fork *models.Fork) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, f := range r.s.forks {
		if f.UserID == fork.UserID && f.StoryID == fork.StoryID {
			return models.ErrConflict
		}
	}
	fork.ID = r.s.id()
	fork.CreatedAt = time.Now()
	fork.UpdatedAt = fork.CreatedAt
	r.s.forks[fork.ID] = *fork
	return nil
}

func (r memForks) GetByID(_ context.Context, _ interfaces.DBTX, id int64) (*models.Fork, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.forks[id]
	if !ok {
		return nil, models.ErrForkNotFound
	}
	return &f, nil
}

func (r memForks) GetByUserAndStory(_ context.Context, _ interfaces.DBTX, userID uuid.UUID, storyID int64) (*models.Fork, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, f := range r.s.forks {
		if f.UserID == userID && f.StoryID == storyID {
			out := f
			return &out, nil
		}
	}
	return nil, models.ErrForkNotFound
}

func (r memForks) ExistsByUserAndSlug(_ context.Context, _ interfaces.DBTX, userID uuid.UUID, slug string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, f := range r.s.forks {
		if f.UserID == userID && f.StorySlug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (r memForks) ListByUser(_ context.Context, _ interfaces.DBTX, userID uuid.UUID, _ string, _ int) ([]models.Fork, string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.Fork{}
	for _, f := range r.s.forks {
		if f.UserID == userID {
			out = append(out, f)
		}
	}
	return out, "", nil
}

func (r memForks) UpdateReadingProgress(_ context.Context, _ interfaces.DBTX, id int64, progress int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.forks[id]
	if !ok {
		return models.ErrForkNotFound
	}
	f.ReadingProgress = progress
	r.s.forks[id] = f
	return nil
}

func (r memForks) Touch(_ context.Context, _ interfaces.DBTX, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.forks[id]
	if !ok {
		return models.ErrForkNotFound
	}
	f.UpdatedAt = time.Now()
	r.s.forks[id] = f
	return nil
}

// Delete воспроизводит ON DELETE CASCADE для коммитов.
func (r memForks) Delete(_ context.Context, _ interfaces.DBTX, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.forks[id]; !ok {
		return models.ErrForkNotFound
	}
	delete(r.s.forks, id)
	for cid, c := range r.s.commits {
		if c.ForkID == id {
			delete(r.s.commits, cid)
		}
	}
	return nil
}

type memCommits struct{ s *memStore }

func (r memCommits) ListByFork(_ context.Context, _ interfaces.DBTX, forkID int64) ([]models.Commit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.Commit{}
	for _, c := range r.s.commits {
		if c.ForkID == forkID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (r memCommits) GetByID(_ context.Context, _ interfaces.DBTX, id int64) (*models.Commit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.commits[id]
	if !ok {
		return nil, models.ErrCommitNotFound
	}
	return &c, nil
}

func (r memCommits) Count(ctx context.Context, q interfaces.DBTX, forkID int64) (int, error) {
	commits, err := r.ListByFork(ctx, q, forkID)
	return len(commits), err
}

func (r memCommits) Append(_ context.Context, _ interfaces.DBTX, commit *models.Commit) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	max := 0
	for _, c := range r.s.commits {
		if c.ForkID == commit.ForkID && c.SortOrder > max {
			max = c.SortOrder
		}
	}
	commit.ID = r.s.id()
	commit.SortOrder = max + 1
	commit.CreatedAt = time.Now()
	r.s.commits[commit.ID] = *commit
	return nil
}

func (r memCommits) DeleteFromSortOrder(_ context.Context, _ interfaces.DBTX, forkID int64, from int) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, c := range r.s.commits {
		if c.ForkID == forkID && c.SortOrder >= from {
			delete(r.s.commits, id)
			n++
		}
	}
	return n, nil
}

func (r memCommits) FindByBranchPointSortOrder(ctx context.Context, q interfaces.DBTX, forkID int64, bpSortOrder int) (*models.Commit, error) {
	commits, _ := r.ListByFork(ctx, q, forkID)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range commits {
		if c.BranchPointID == nil {
			continue
		}
		if bp, ok := r.s.branchPoints[*c.BranchPointID]; ok && bp.SortOrder == bpSortOrder {
			out := c
			return &out, nil
		}
	}
	return nil, models.ErrCommitNotFound
}

func (r memCommits) LastResolvedBranchPointSortOrder(ctx context.Context, q interfaces.DBTX, forkID int64) (int, error) {
	commits, _ := r.ListByFork(ctx, q, forkID)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	max := 0
	for _, c := range commits {
		if c.BranchPointID == nil {
			continue
		}
		if bp, ok := r.s.branchPoints[*c.BranchPointID]; ok && bp.SortOrder > max {
			max = bp.SortOrder
		}
	}
	return max, nil
}

type memPreviews struct{ s *memStore }

func (r memPreviews) List(_ context.Context, forkID int64) ([]models.PreviewChapter, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]models.PreviewChapter, len(r.s.previews[forkID]))
	copy(out, r.s.previews[forkID])
	return out, nil
}

func (r memPreviews) Replace(_ context.Context, forkID int64, chapters []models.PreviewChapter) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored := make([]models.PreviewChapter, len(chapters))
	copy(stored, chapters)
	r.s.previews[forkID] = stored
	return nil
}

func (r memPreviews) Clear(_ context.Context, forkID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.previews, forkID)
	return nil
}

// memDeps собирает зависимости сервисов поверх memStore.
func memDeps(s *memStore, gen interfaces.ContentGenerator) service.Deps {
	return service.Deps{
		DB:        &mocks.TxRunner{},
		Stories:   memStories{s},
		Branches:  memBranches{s},
		Forks:     memForks{s},
		Commits:   memCommits{s},
		Previews:  memPreviews{s},
		PRs:       newMemPRs(),
		Locker:    service.NewMemoryLocker(),
		Generator: gen,
	}
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
