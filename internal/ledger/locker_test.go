package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedLocker_SerializesSameID(t *testing.T) {
	l := NewKeyedLocker()
	id := uuid.New()

	var (
		wg         sync.WaitGroup
		inside     atomic.Int32
		overlapped atomic.Bool
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), id)
			if !assert.NoError(t, err) {
				return
			}
			if inside.Add(1) > 1 {
				overlapped.Store(true)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	assert.False(t, overlapped.Load())
	assert.Equal(t, 0, l.size())
}

func TestKeyedLocker_DistinctIDsDoNotBlock(t *testing.T) {
	l := NewKeyedLocker()

	unlockA, err := l.Lock(context.Background(), uuid.New())
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, uuid.New())
	require.NoError(t, err)
	unlockB()
}

func TestKeyedLocker_CancelWhileWaiting(t *testing.T) {
	l := NewKeyedLocker()
	a, b := uuid.New(), uuid.New()

	unlockB, err := l.Lock(context.Background(), b)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, a, b)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// a must have been released by the failed call
	unlockA, err := l.Lock(context.Background(), a)
	require.NoError(t, err)
	unlockA()

	unlockB()
	assert.Equal(t, 0, l.size())
}

func TestKeyedLocker_DuplicateIDsAndDoubleUnlock(t *testing.T) {
	l := NewKeyedLocker()
	id := uuid.New()

	unlock, err := l.Lock(context.Background(), id, id)
	require.NoError(t, err)
	unlock()
	unlock()

	assert.Equal(t, 0, l.size())
}
