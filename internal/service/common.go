package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"novel-fork/internal/interfaces"
	"novel-fork/internal/models"
	"novel-fork/pkg/taskmanager"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TaskSubmitter - фоновый исполнитель задач (pkg/taskmanager).
type TaskSubmitter interface {
	SubmitTask(ctx context.Context, key string, fn taskmanager.TaskFunc) (uuid.UUID, error)
}

// Deps собирает зависимости сервисов движка. Каждый сервис берёт только нужные.
type Deps struct {
	DB        interfaces.TxRunner
	Stories   interfaces.StoryCatalogRepository
	Branches  interfaces.BranchCatalogRepository
	Forks     interfaces.ForkRepository
	Commits   interfaces.CommitRepository
	Bookmarks interfaces.BookmarkRepository
	Previews  interfaces.PreviewRepository
	TreeCache interfaces.BranchTreeCache
	PRs       interfaces.PrRepository
	Locker    interfaces.ForkLocker
	Generator interfaces.ContentGenerator
	Tokens    interfaces.TokenCounter
	Publisher interfaces.EventPublisher
	Tasks     TaskSubmitter
}

// Options - настраиваемые параметры поведения сервисов.
type Options struct {
	ContextTokenBudget int
	ChapterWordCount   int
	StoryLockWait      time.Duration
}

func (o Options) withDefaults() Options {
	if o.ContextTokenBudget <= 0 {
		o.ContextTokenBudget = 6000
	}
	if o.ChapterWordCount <= 0 {
		o.ChapterWordCount = 1200
	}
	if o.StoryLockWait <= 0 {
		o.StoryLockWait = 10 * time.Second
	}
	return o
}

var validate = validator.New()

// validateInput превращает ошибки валидатора в ErrInvalidArgument.
func validateInput(input interface{}) error {
	if err := validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("%w: field %s failed on '%s'", models.ErrInvalidArgument, f.Field(), f.Tag())
		}
		return fmt.Errorf("%w: %v", models.ErrInvalidArgument, err)
	}
	return nil
}

func forkLockKey(forkID int64) string {
	return fmt.Sprintf("fork:%d", forkID)
}

func storyLockKey(storyID int64) string {
	return fmt.Sprintf("story:%d", storyID)
}

// loadOwnedFork возвращает форк, если он принадлежит requesterID.
func loadOwnedFork(ctx context.Context, forks interfaces.ForkRepository, q interfaces.DBTX, forkID int64, requesterID uuid.UUID) (*models.Fork, error) {
	fork, err := forks.GetByID(ctx, q, forkID)
	if err != nil {
		return nil, err
	}
	if fork.UserID != requesterID {
		return nil, models.ErrNotForkOwner
	}
	return fork, nil
}

// publishEvent не прерывает операцию: событие вторично по отношению к данным.
func publishEvent(ctx context.Context, publisher interfaces.EventPublisher, logger *zap.Logger, event models.ForkEvent) {
	if publisher == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := publisher.PublishForkEvent(ctx, event); err != nil {
		logger.Warn("Failed to publish fork event", zap.String("type", string(event.Type)), zap.Int64("storyID", event.StoryID), zap.Error(err))
	}
}

func int64Ptr(v int64) *int64 { return &v }

func intPtr(v int) *int { return &v }
