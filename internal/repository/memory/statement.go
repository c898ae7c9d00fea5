package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/statement-ledger/internal/domain"
)

// StatementRepository keeps statements and their outbox events in one
// process. Appends are all-or-nothing under a single mutex.
type StatementRepository struct {
	mu         sync.RWMutex
	statements []domain.Statement
	index      map[uuid.UUID]int
	byUser     map[uuid.UUID][]int
	outbox     []*domain.OutboxEvent
	now        func() time.Time
}

func NewStatementRepository() *StatementRepository {
	return &StatementRepository{
		index:  make(map[uuid.UUID]int),
		byUser: make(map[uuid.UUID][]int),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *StatementRepository) Append(ctx context.Context, statements ...*domain.Statement) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("Append: %w", err)
	}

	events := make([]*domain.OutboxEvent, 0, len(statements))
	seen := make(map[uuid.UUID]struct{}, len(statements))
	for _, s := range statements {
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("Append: duplicate statement id %s", s.ID)
		}
		seen[s.ID] = struct{}{}

		event, err := domain.NewStatementCreatedEvent(s)
		if err != nil {
			return fmt.Errorf("Append: %w", err)
		}
		events = append(events, event)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range statements {
		if _, exists := r.index[s.ID]; exists {
			return fmt.Errorf("Append: statement %s already recorded", s.ID)
		}
	}

	for _, s := range statements {
		r.index[s.ID] = len(r.statements)
		r.byUser[s.UserID] = append(r.byUser[s.UserID], len(r.statements))
		r.statements = append(r.statements, *s)
	}
	r.outbox = append(r.outbox, events...)
	return nil
}

func (r *StatementRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Statement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	positions := r.byUser[userID]
	out := make([]domain.Statement, 0, len(positions))
	for _, p := range positions {
		out = append(out, r.statements[p])
	}
	return out, nil
}

func (r *StatementRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Statement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.index[id]
	if !ok {
		return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
	}
	s := r.statements[p]
	return &s, nil
}

// ClaimPending marks up to limit pending events as processing and returns
// them oldest first. Each claim counts as one attempt. A processing event
// whose last claim is older than staleAfter is claimed again.
func (r *StatementRepository) ClaimPending(ctx context.Context, limit int, staleAfter time.Duration) ([]domain.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var claimed []domain.OutboxEvent
	for _, e := range r.outbox {
		if len(claimed) >= limit {
			break
		}
		if !claimable(e, now, staleAfter) {
			continue
		}
		e.Status = domain.OutboxEventStatusProcessing
		e.Attempts++
		attempted := now
		e.LastAttempt = &attempted
		claimed = append(claimed, *e)
	}
	return claimed, nil
}

func (r *StatementRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OutboxEventStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.outbox {
		if e.ID == id {
			e.Status = status
			return nil
		}
	}
	return fmt.Errorf("UpdateStatus: %w", domain.ErrNotFound)
}

func claimable(e *domain.OutboxEvent, now time.Time, staleAfter time.Duration) bool {
	switch e.Status {
	case domain.OutboxEventStatusPending:
		return true
	case domain.OutboxEventStatusProcessing:
		return e.LastAttempt != nil && !e.LastAttempt.After(now.Add(-staleAfter))
	}
	return false
}

// Events returns a snapshot of the outbox.
func (r *StatementRepository) Events() []domain.OutboxEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.OutboxEvent, 0, len(r.outbox))
	for _, e := range r.outbox {
		out = append(out, *e)
	}
	return out
}
