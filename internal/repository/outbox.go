package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/statement-ledger/internal/domain"
)

const outboxEventColumns = `id, statement_id, user_id, event_type, payload, status,
	attempts, last_attempt, created_at`

type OutboxRepository struct {
	db *sql.DB
}

func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func insertOutboxEvent(ctx context.Context, tx *sql.Tx, e *domain.OutboxEvent) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO outbox_events (
			id, statement_id, user_id, event_type, payload, status, attempts, last_attempt, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.StatementID, e.UserID, e.EventType, []byte(e.Payload),
		e.Status, e.Attempts, e.LastAttempt, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox event %s: %w", e.ID, err)
	}
	return nil
}

// ClaimPending moves up to limit pending events to processing and returns
// them oldest first. Processing events claimed more than staleAfter ago are
// taken again, so a dispatcher that died mid-batch does not strand them.
// SKIP LOCKED lets several dispatchers poll the same table without claiming
// the same event.
func (r *OutboxRepository) ClaimPending(ctx context.Context, limit int, staleAfter time.Duration) ([]domain.OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`UPDATE outbox_events SET status = $1, attempts = attempts + 1, last_attempt = now()
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE status = $2
				OR (status = $1 AND last_attempt <= now() - make_interval(secs => $4))
			ORDER BY created_at LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+outboxEventColumns,
		domain.OutboxEventStatusProcessing, domain.OutboxEventStatusPending, limit, staleAfter.Seconds(),
	)
	if err != nil {
		return nil, fmt.Errorf("ClaimPending: %w", err)
	}
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		e, err := scanOutboxEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("ClaimPending: scan: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ClaimPending: rows: %w", err)
	}
	return events, nil
}

func (r *OutboxRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OutboxEventStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET status = $1 WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateStatus: %w", domain.ErrNotFound)
	}
	return nil
}

func scanOutboxEvent(s scanner) (*domain.OutboxEvent, error) {
	var (
		e       domain.OutboxEvent
		payload []byte
	)
	err := s.Scan(
		&e.ID, &e.StatementID, &e.UserID, &e.EventType, &payload,
		&e.Status, &e.Attempts, &e.LastAttempt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Payload = payload
	return &e, nil
}
