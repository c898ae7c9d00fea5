package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/statement-ledger/internal/domain"
)

type idempotencyKey struct {
	key    string
	userID uuid.UUID
}

type IdempotencyRepository struct {
	mu      sync.Mutex
	entries map[idempotencyKey]domain.IdempotencyEntry
	now     func() time.Time
}

func NewIdempotencyRepository() *IdempotencyRepository {
	return &IdempotencyRepository{
		entries: make(map[idempotencyKey]domain.IdempotencyEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Get returns nil, nil when nothing live is held for the pair. A live
// reservation is returned like any other entry.
func (r *IdempotencyRepository) Get(ctx context.Context, key string, userID uuid.UUID) (*domain.IdempotencyEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.live(idempotencyKey{key, userID})
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// Reserve stores entry as a reservation unless a live entry already holds
// the pair. It reports whether the caller now owns the pair.
func (r *IdempotencyRepository) Reserve(ctx context.Context, entry *domain.IdempotencyEntry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := idempotencyKey{entry.Key, entry.UserID}
	if _, ok := r.live(k); ok {
		return false, nil
	}
	r.entries[k] = *entry
	return true, nil
}

// Set completes the reservation made for the same request hash.
func (r *IdempotencyRepository) Set(ctx context.Context, entry *domain.IdempotencyEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := idempotencyKey{entry.Key, entry.UserID}
	existing, ok := r.entries[k]
	if !ok || !existing.Pending() || existing.RequestHash != entry.RequestHash {
		return nil
	}
	r.entries[k] = *entry
	return nil
}

// Release drops a reservation so the key can be retried.
func (r *IdempotencyRepository) Release(ctx context.Context, key string, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := idempotencyKey{key, userID}
	if e, ok := r.entries[k]; ok && e.Pending() {
		delete(r.entries, k)
	}
	return nil
}

func (r *IdempotencyRepository) CleanExpired(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var n int64
	for k, e := range r.entries {
		if e.ExpiresAt.Before(now) {
			delete(r.entries, k)
			n++
		}
	}
	return n, nil
}

func (r *IdempotencyRepository) live(k idempotencyKey) (domain.IdempotencyEntry, bool) {
	e, ok := r.entries[k]
	if !ok || !e.ExpiresAt.After(r.now()) {
		return domain.IdempotencyEntry{}, false
	}
	return e, true
}
