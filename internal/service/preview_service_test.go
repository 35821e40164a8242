package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"novel-fork/internal/models"
	"novel-fork/internal/service"
	"novel-fork/pkg/taskmanager"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type previewFixture struct {
	*forkFixture
	previews service.PreviewService
}

// newPreviewFixture: история из 2 авторских глав и форк с одним коммитом,
// поэтому первая глава предпросмотра имеет номер 4.
func newPreviewFixture(t *testing.T) *previewFixture {
	t.Helper()
	f := newForkFixture(t, 2)
	f.append(t, "first", nil, nil)
	prompts := service.NewPromptBuilder(f.deps, service.Options{}, zap.NewNop())
	return &previewFixture{forkFixture: f, previews: service.NewPreviewService(f.deps, prompts, service.Options{}, zap.NewNop())}
}

func (f *previewFixture) save(chapter int, title string) (*models.PreviewChapter, error) {
	return f.previews.SaveAiPreview(f.context, service.SavePreviewInput{
		ForkID: f.fork.ID, RequesterID: f.user, ChapterNumber: chapter, Title: title, ContentMarkdown: "Текст " + title,
	})
}

func (f *previewFixture) numbers(t *testing.T) []int {
	t.Helper()
	list, err := f.previews.GetAiPreview(f.context, f.fork.ID, f.user)
	require.NoError(t, err)
	out := make([]int, 0, len(list))
	for _, p := range list {
		out = append(out, p.ChapterNumber)
	}
	return out
}

func TestSaveAiPreviewSequence(t *testing.T) {
	t.Run("Chapters continue the fork numbering", func(t *testing.T) {
		f := newPreviewFixture(t)
		_, err := f.save(4, "four")
		require.NoError(t, err)
		_, err = f.save(5, "five")
		require.NoError(t, err)
		assert.Equal(t, []int{4, 5}, f.numbers(t))
	})

	t.Run("Gap is rejected", func(t *testing.T) {
		f := newPreviewFixture(t)
		_, err := f.save(5, "five")
		assert.ErrorIs(t, err, models.ErrInvalidState)
		assert.ErrorIs(t, err, models.ErrPreviewOutOfSequence)
	})

	t.Run("Last chapter can be overwritten", func(t *testing.T) {
		f := newPreviewFixture(t)
		_, err := f.save(4, "draft")
		require.NoError(t, err)
		_, err = f.save(4, "final")
		require.NoError(t, err)

		list, err := f.previews.GetAiPreview(f.context, f.fork.ID, f.user)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "final", list[0].Title)
	})

	t.Run("Earlier chapter cannot be overwritten", func(t *testing.T) {
		f := newPreviewFixture(t)
		_, err := f.save(4, "four")
		require.NoError(t, err)
		_, err = f.save(5, "five")
		require.NoError(t, err)
		_, err = f.save(4, "rewrite")
		assert.ErrorIs(t, err, models.ErrInvalidState)
	})

	t.Run("Appending a commit resets the buffer", func(t *testing.T) {
		f := newPreviewFixture(t)
		_, err := f.save(4, "four")
		require.NoError(t, err)
		f.append(t, "second", nil, nil)
		assert.Empty(t, f.numbers(t))
	})
}

func TestDeleteAiPreviewChapter(t *testing.T) {
	f := newPreviewFixture(t)
	_, err := f.save(4, "four")
	require.NoError(t, err)
	_, err = f.save(5, "five")
	require.NoError(t, err)

	err = f.previews.DeleteAiPreviewChapter(f.context, f.fork.ID, f.user, 4)
	assert.ErrorIs(t, err, models.ErrPreviewNotTerminal)

	err = f.previews.DeleteAiPreviewChapter(f.context, f.fork.ID, f.user, 9)
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, f.previews.DeleteAiPreviewChapter(f.context, f.fork.ID, f.user, 5))
	assert.Equal(t, []int{4}, f.numbers(t))

	// Освободившийся номер снова доступен.
	_, err = f.save(5, "five again")
	require.NoError(t, err)

	require.NoError(t, f.previews.ClearAiPreview(f.context, f.fork.ID, f.user))
	assert.Empty(t, f.numbers(t))
}

func TestGenerateAiPreviewSummary(t *testing.T) {
	t.Run("Generated summary is stored and reused", func(t *testing.T) {
		f := newPreviewFixture(t)
		_, err := f.save(4, "four")
		require.NoError(t, err)
		f.gen.On("Summarize", mock.Anything, f.user.String(), "Текст four").Return("Коротко.", nil).Once()

		summary, err := f.previews.GenerateAiPreviewSummary(f.context, f.fork.ID, f.user, 4)
		require.NoError(t, err)
		assert.Equal(t, "Коротко.", summary)

		again, err := f.previews.GenerateAiPreviewSummary(f.context, f.fork.ID, f.user, 4)
		require.NoError(t, err)
		assert.Equal(t, "Коротко.", again)
		f.gen.AssertExpectations(t)
	})

	t.Run("Generator failure falls back to the first 200 characters", func(t *testing.T) {
		f := newPreviewFixture(t)
		long := strings.Repeat("я", 250)
		_, err := f.previews.SaveAiPreview(f.context, service.SavePreviewInput{
			ForkID: f.fork.ID, RequesterID: f.user, ChapterNumber: 4, Title: "long", ContentMarkdown: long,
		})
		require.NoError(t, err)
		f.gen.On("Summarize", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("timeout")).Once()

		summary, err := f.previews.GenerateAiPreviewSummary(f.context, f.fork.ID, f.user, 4)
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat("я", 200), summary)
	})

	t.Run("Missing chapter", func(t *testing.T) {
		f := newPreviewFixture(t)
		_, err := f.previews.GenerateAiPreviewSummary(f.context, f.fork.ID, f.user, 4)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("Buffer cleared during generation stays empty", func(t *testing.T) {
		f := newPreviewFixture(t)
		_, err := f.save(4, "four")
		require.NoError(t, err)
		// Пока генератор работает, пользователь очищает буфер.
		f.gen.On("Summarize", mock.Anything, mock.Anything, mock.Anything).Return("Коротко.", nil).Run(func(mock.Arguments) {
			require.NoError(t, f.previews.ClearAiPreview(f.context, f.fork.ID, f.user))
		}).Once()

		summary, err := f.previews.GenerateAiPreviewSummary(f.context, f.fork.ID, f.user, 4)
		require.NoError(t, err)
		assert.Equal(t, "Коротко.", summary)
		assert.Empty(t, f.numbers(t))
	})

	t.Run("Summary is not stored while the fork is locked", func(t *testing.T) {
		f := newPreviewFixture(t)
		_, err := f.save(4, "four")
		require.NoError(t, err)
		f.gen.On("Summarize", mock.Anything, mock.Anything, mock.Anything).Return("Коротко.", nil).Once()

		release, err := f.deps.Locker.TryLock(f.context, "fork:"+itoa(f.fork.ID))
		require.NoError(t, err)
		summary, err := f.previews.GenerateAiPreviewSummary(f.context, f.fork.ID, f.user, 4)
		release()
		require.NoError(t, err)
		assert.Equal(t, "Коротко.", summary)

		list, err := f.previews.GetAiPreview(f.context, f.fork.ID, f.user)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Nil(t, list[0].Summary)
	})
}

func TestStreamGeneratePreview(t *testing.T) {
	t.Run("Returns a draft without saving it", func(t *testing.T) {
		f := newPreviewFixture(t)
		f.gen.Chunks = []string{"# Буря\n", "Гром."}
		f.gen.On("Generate", mock.Anything, mock.Anything).Return("", nil).Once()

		draft, err := f.previews.StreamGeneratePreview(f.context, f.fork.ID, f.user, "шторм", nil)
		require.NoError(t, err)
		assert.Equal(t, 4, draft.ChapterNumber)
		assert.Equal(t, "Буря", draft.Title)
		assert.Equal(t, "Гром.", draft.ContentMarkdown)
		assert.Empty(t, f.numbers(t))
	})

	t.Run("Cancelled stream leaves nothing behind", func(t *testing.T) {
		f := newPreviewFixture(t)
		ctx, cancel := context.WithCancel(f.context)
		f.gen.Chunks = []string{"half"}
		f.gen.On("Generate", mock.Anything, mock.Anything).Return("", nil).Once()

		_, err := f.previews.StreamGeneratePreview(ctx, f.fork.ID, f.user, "", func(string) error {
			cancel()
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, f.numbers(t))

		// Блокировка форка снята.
		_, err = f.save(4, "after cancel")
		require.NoError(t, err)
	})

	t.Run("Busy fork", func(t *testing.T) {
		f := newPreviewFixture(t)
		release, err := f.deps.Locker.TryLock(f.context, "fork:"+itoa(f.fork.ID))
		require.NoError(t, err)
		defer release()

		_, err = f.previews.StreamGeneratePreview(f.context, f.fork.ID, f.user, "", nil)
		assert.ErrorIs(t, err, models.ErrConflict)
	})
}

func TestGetDirectionOptions(t *testing.T) {
	t.Run("Parsed from generator output", func(t *testing.T) {
		f := newPreviewFixture(t)
		f.gen.On("Complete", mock.Anything, mock.Anything).
			Return("```json\n[{\"label\":\"Бежать\",\"description\":\"на север\"},{\"label\":\"Остаться\"}]\n```", nil).Once()

		options, err := f.previews.GetDirectionOptions(f.context, f.fork.ID, f.user)
		require.NoError(t, err)
		require.Len(t, options, 2)
		assert.Equal(t, "Бежать", options[0].Label)
	})

	t.Run("Fallback on failure", func(t *testing.T) {
		f := newPreviewFixture(t)
		f.gen.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("down")).Once()

		options, err := f.previews.GetDirectionOptions(f.context, f.fork.ID, f.user)
		require.NoError(t, err)
		assert.Len(t, options, 3)
	})
}

func TestParseDirectionOptions(t *testing.T) {
	_, ok := service.ParseDirectionOptions("no json here")
	assert.False(t, ok)

	_, ok = service.ParseDirectionOptions(`[{"label": ""}]`)
	assert.False(t, ok)

	options, ok := service.ParseDirectionOptions(`[{"label":"a"},{"label":"b"},{"label":"c"},{"label":"d"}]`)
	assert.True(t, ok)
	assert.Len(t, options, 3)
}

type recordingTasks struct {
	keys []string
}

func (r *recordingTasks) SubmitTask(ctx context.Context, key string, fn taskmanager.TaskFunc) (uuid.UUID, error) {
	r.keys = append(r.keys, key)
	return uuid.New(), fn(ctx)
}

func TestScheduleSummary(t *testing.T) {
	f := newPreviewFixture(t)
	tasks := &recordingTasks{}
	f.deps.Tasks = tasks
	prompts := service.NewPromptBuilder(f.deps, service.Options{}, zap.NewNop())
	previews := service.NewPreviewService(f.deps, prompts, service.Options{}, zap.NewNop())

	_, err := f.save(4, "four")
	require.NoError(t, err)
	f.gen.On("Summarize", mock.Anything, mock.Anything, mock.Anything).Return("Итог.", nil).Once()

	_, err = previews.ScheduleSummary(f.context, f.fork.ID, f.user, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"summary:" + itoa(f.fork.ID) + ":4"}, tasks.keys)

	list, err := previews.GetAiPreview(f.context, f.fork.ID, f.user)
	require.NoError(t, err)
	require.NotNil(t, list[0].Summary)
	assert.Equal(t, "Итог.", *list[0].Summary)

	_, err = previews.ScheduleSummary(f.context, f.fork.ID, uuid.New(), 4)
	assert.ErrorIs(t, err, models.ErrForbidden)
}
