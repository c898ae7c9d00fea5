package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/josh-kwaku/statement-ledger/internal/domain"
)

// AdvisoryLocker serializes account mutations across processes with
// session-level Postgres advisory locks. Each Lock call pins one pooled
// connection until released, and the holder still needs a second connection
// for its reads and writes, so at most maxHeld calls may hold locks at once.
type AdvisoryLocker struct {
	db    *sql.DB
	slots chan struct{}
}

func NewAdvisoryLocker(db *sql.DB, maxHeld int) *AdvisoryLocker {
	if maxHeld < 1 {
		maxHeld = 1
	}
	return &AdvisoryLocker{db: db, slots: make(chan struct{}, maxHeld)}
}

func (l *AdvisoryLocker) Lock(ctx context.Context, ids ...uuid.UUID) (func(), error) {
	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("Lock: %w", ctx.Err())
	}

	conn, err := l.db.Conn(ctx)
	if err != nil {
		<-l.slots
		return nil, fmt.Errorf("Lock: conn: %w", err)
	}

	release := func() {
		defer func() { <-l.slots }()
		// session locks outlive the checkout, so drop them before the
		// connection goes back to the pool
		if _, err := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock_all()`); err != nil {
			slog.Error("advisory unlock failed, discarding connection", "error", err)
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		}
		conn.Close()
	}

	for _, id := range domain.LockOrder(ids) {
		if _, err := conn.ExecContext(ctx,
			`SELECT pg_advisory_lock(hashtextextended($1, 0))`, id.String(),
		); err != nil {
			release()
			return nil, fmt.Errorf("Lock: %s: %w", id, err)
		}
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}
