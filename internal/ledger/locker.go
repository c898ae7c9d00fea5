package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/josh-kwaku/statement-ledger/internal/domain"
)

// KeyedLocker serializes work per account id inside one process. Entries are
// reference counted and dropped once no caller holds or waits on them.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[uuid.UUID]*keyedLock)}
}

// Lock acquires every id in ascending order. On failure nothing stays held.
func (l *KeyedLocker) Lock(ctx context.Context, ids ...uuid.UUID) (func(), error) {
	ordered := domain.LockOrder(ids)

	held := make([]uuid.UUID, 0, len(ordered))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.unlock(held[i])
		}
	}

	for _, id := range ordered {
		if err := l.lock(ctx, id); err != nil {
			release()
			return nil, fmt.Errorf("Lock: %s: %w", id, err)
		}
		held = append(held, id)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *KeyedLocker) lock(ctx context.Context, id uuid.UUID) error {
	l.mu.Lock()
	k, ok := l.locks[id]
	if !ok {
		k = &keyedLock{ch: make(chan struct{}, 1)}
		l.locks[id] = k
	}
	k.refs++
	l.mu.Unlock()

	select {
	case k.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.release(id, k)
		return ctx.Err()
	}
}

func (l *KeyedLocker) unlock(id uuid.UUID) {
	l.mu.Lock()
	k := l.locks[id]
	l.mu.Unlock()

	<-k.ch
	l.release(id, k)
}

func (l *KeyedLocker) release(id uuid.UUID, k *keyedLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k.refs--
	if k.refs == 0 {
		delete(l.locks, id)
	}
}

func (l *KeyedLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
