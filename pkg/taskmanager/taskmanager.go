package taskmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrTooManyTasks  = errors.New("превышено максимальное количество активных задач")
	ErrTaskNotFound  = errors.New("задача не найдена")
	ErrManagerClosed = errors.New("менеджер задач остановлен")
)

// Task представляет фоновую задачу
type Task struct {
	ID        uuid.UUID
	Key       string
	Status    TaskStatus
	Message   string
	CreatedAt time.Time
	UpdatedAt time.Time
	cancel    context.CancelFunc
}

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

func (s TaskStatus) active() bool {
	return s == TaskStatusPending || s == TaskStatusRunning
}

// TaskFunc выполняется в отдельной горутине с контекстом, независимым от запроса.
type TaskFunc func(ctx context.Context) error

type Config struct {
	MaxTasks int
	// TaskTimeout ограничивает время одной задачи; 0 - без ограничения.
	TaskTimeout time.Duration
}

// TaskManager запускает fire-and-forget задачи с ограничением параллелизма
// и дедупликацией по ключу.
type TaskManager struct {
	mu       sync.RWMutex
	tasks    map[uuid.UUID]*Task
	byKey    map[string]uuid.UUID
	maxTasks int
	timeout  time.Duration
	closed   bool
	wg       sync.WaitGroup
}

func New(cfg Config) *TaskManager {
	maxTasks := cfg.MaxTasks
	if maxTasks <= 0 {
		maxTasks = 10
	}
	return &TaskManager{
		tasks:    make(map[uuid.UUID]*Task),
		byKey:    make(map[string]uuid.UUID),
		maxTasks: maxTasks,
		timeout:  cfg.TaskTimeout,
	}
}

// SubmitTask запускает задачу. Если задача с тем же ключом уже активна,
// возвращается её ID и новая задача не создаётся.
func (tm *TaskManager) SubmitTask(ctx context.Context, key string, taskFunc TaskFunc) (uuid.UUID, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.closed {
		return uuid.Nil, ErrManagerClosed
	}

	if key != "" {
		if id, ok := tm.byKey[key]; ok {
			if existing, ok := tm.tasks[id]; ok && existing.Status.active() {
				return id, nil
			}
		}
	}

	active := 0
	for _, task := range tm.tasks {
		if task.Status.active() {
			active++
		}
	}
	if active >= tm.maxTasks {
		return uuid.Nil, ErrTooManyTasks
	}

	// Контекст задачи не зависит от запроса, но наследует его логгер.
	var (
		baseCtx context.Context
		cancel  context.CancelFunc
	)
	if tm.timeout > 0 {
		baseCtx, cancel = context.WithTimeout(context.Background(), tm.timeout)
	} else {
		baseCtx, cancel = context.WithCancel(context.Background())
	}
	taskCtx := log.Ctx(ctx).WithContext(baseCtx)

	now := time.Now()
	task := &Task{
		ID:        uuid.New(),
		Key:       key,
		Status:    TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		cancel:    cancel,
	}
	tm.tasks[task.ID] = task
	if key != "" {
		tm.byKey[key] = task.ID
	}

	tm.wg.Add(1)
	go func() {
		defer tm.wg.Done()
		defer cancel()
		tm.runTask(taskCtx, task, taskFunc)
	}()

	return task.ID, nil
}

func (tm *TaskManager) runTask(ctx context.Context, task *Task, taskFunc TaskFunc) {
	tm.updateTaskStatus(ctx, task, TaskStatusRunning, "задача запущена")

	err := taskFunc(ctx)

	switch {
	case ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled):
		tm.updateTaskStatus(ctx, task, TaskStatusCancelled, "задача отменена")
	case ctx.Err() != nil:
		tm.updateTaskStatus(ctx, task, TaskStatusFailed, fmt.Sprintf("ошибка контекста: %v", ctx.Err()))
	case err != nil:
		log.Ctx(ctx).Error().Err(err).Str("taskID", task.ID.String()).Str("key", task.Key).Msg("задача завершилась с ошибкой")
		tm.updateTaskStatus(ctx, task, TaskStatusFailed, fmt.Sprintf("ошибка: %v", err))
	default:
		tm.updateTaskStatus(ctx, task, TaskStatusCompleted, "задача выполнена")
	}
}

func (tm *TaskManager) updateTaskStatus(ctx context.Context, task *Task, status TaskStatus, message string) {
	tm.mu.Lock()
	// Отменённая через CancelTask задача не переходит обратно в другой статус.
	if task.Status != TaskStatusCancelled {
		task.Status = status
		task.Message = message
		task.UpdatedAt = time.Now()
	}
	if !task.Status.active() && task.Key != "" && tm.byKey[task.Key] == task.ID {
		delete(tm.byKey, task.Key)
	}
	tm.mu.Unlock()

	log.Ctx(ctx).Debug().
		Str("taskID", task.ID.String()).
		Str("key", task.Key).
		Str("status", string(status)).
		Msg("статус задачи обновлен")
}

// GetTask возвращает копию состояния задачи.
func (tm *TaskManager) GetTask(taskID uuid.UUID) (Task, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	task, ok := tm.tasks[taskID]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return *task, nil
}

// CancelTask отменяет активную задачу.
func (tm *TaskManager) CancelTask(taskID uuid.UUID) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	task, ok := tm.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if !task.Status.active() {
		return fmt.Errorf("невозможно отменить задачу в статусе %s", task.Status)
	}
	task.cancel()
	task.Status = TaskStatusCancelled
	task.Message = "задача отменена"
	task.UpdatedAt = time.Now()
	if task.Key != "" {
		delete(tm.byKey, task.Key)
	}
	return nil
}

// CleanupTasks удаляет завершённые задачи старше age.
func (tm *TaskManager) CleanupTasks(age time.Duration) int {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	removed := 0
	now := time.Now()
	for id, task := range tm.tasks {
		if !task.Status.active() && now.Sub(task.UpdatedAt) > age {
			delete(tm.tasks, id)
			removed++
		}
	}
	return removed
}

// RunCleanup периодически чистит завершённые задачи, пока ctx не отменён.
func (tm *TaskManager) RunCleanup(ctx context.Context, interval, age time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := tm.CleanupTasks(age); n > 0 {
				log.Ctx(ctx).Debug().Int("removed", n).Msg("завершённые задачи удалены")
			}
		}
	}
}

// Shutdown запрещает новые задачи и ждёт завершения текущих. По истечении ctx
// оставшиеся задачи отменяются.
func (tm *TaskManager) Shutdown(ctx context.Context) error {
	tm.mu.Lock()
	tm.closed = true
	tm.mu.Unlock()

	done := make(chan struct{})
	go func() {
		tm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		tm.mu.Lock()
		for _, task := range tm.tasks {
			if task.Status.active() {
				task.cancel()
			}
		}
		tm.mu.Unlock()
		return errors.New("таймаут при ожидании завершения задач")
	}
}
