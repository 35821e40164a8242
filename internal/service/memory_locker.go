package service

import (
	"context"
	"sync"
	"time"

	"novel-fork/internal/interfaces"
	"novel-fork/internal/models"
)

var _ interfaces.ForkLocker = (*MemoryLocker)(nil)

// MemoryLocker - блокировки в пределах одного процесса (LOCK_BACKEND=memory и тесты).
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]uint64
	seq   uint64
	retry time.Duration
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]uint64), retry: 10 * time.Millisecond}
}

func (l *MemoryLocker) acquire(key string) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, false
	}
	l.seq++
	token := l.seq
	l.held[key] = token
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.held[key] == token {
				delete(l.held, key)
			}
		})
	}, true
}

func (l *MemoryLocker) TryLock(_ context.Context, key string) (func(), error) {
	release, ok := l.acquire(key)
	if !ok {
		return nil, models.ErrForkBusy
	}
	return release, nil
}

func (l *MemoryLocker) Lock(ctx context.Context, key string, wait time.Duration) (func(), error) {
	deadline := time.Now().Add(wait)
	for {
		if release, ok := l.acquire(key); ok {
			return release, nil
		}
		if time.Now().After(deadline) {
			return nil, models.ErrStoryBusy
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}
