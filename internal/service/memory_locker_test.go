package service_test

import (
	"context"
	"testing"
	"time"

	"novel-fork/internal/models"
	"novel-fork/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockerTryLock(t *testing.T) {
	ctx := context.Background()
	locker := service.NewMemoryLocker()

	release, err := locker.TryLock(ctx, "fork:1")
	require.NoError(t, err)

	_, err = locker.TryLock(ctx, "fork:1")
	assert.ErrorIs(t, err, models.ErrForkBusy)
	assert.ErrorIs(t, err, models.ErrConflict)

	other, err := locker.TryLock(ctx, "fork:2")
	require.NoError(t, err)
	other()

	release()
	release() // повторный вызов безопасен

	again, err := locker.TryLock(ctx, "fork:1")
	require.NoError(t, err)
	again()
}

func TestMemoryLockerLock(t *testing.T) {
	ctx := context.Background()

	t.Run("Waits for release", func(t *testing.T) {
		locker := service.NewMemoryLocker()
		release, err := locker.TryLock(ctx, "story:1")
		require.NoError(t, err)
		go func() {
			time.Sleep(30 * time.Millisecond)
			release()
		}()

		got, err := locker.Lock(ctx, "story:1", time.Second)
		require.NoError(t, err)
		got()
	})

	t.Run("Times out", func(t *testing.T) {
		locker := service.NewMemoryLocker()
		release, err := locker.TryLock(ctx, "story:1")
		require.NoError(t, err)
		defer release()

		_, err = locker.Lock(ctx, "story:1", 30*time.Millisecond)
		assert.ErrorIs(t, err, models.ErrStoryBusy)
	})

	t.Run("Context cancelled", func(t *testing.T) {
		locker := service.NewMemoryLocker()
		release, err := locker.TryLock(ctx, "story:1")
		require.NoError(t, err)
		defer release()

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err = locker.Lock(cctx, "story:1", time.Second)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("Stale release does not free a new holder", func(t *testing.T) {
		locker := service.NewMemoryLocker()
		first, err := locker.TryLock(ctx, "fork:9")
		require.NoError(t, err)
		first()
		second, err := locker.TryLock(ctx, "fork:9")
		require.NoError(t, err)
		defer second()

		first()
		_, err = locker.TryLock(ctx, "fork:9")
		assert.ErrorIs(t, err, models.ErrForkBusy)
	})
}
