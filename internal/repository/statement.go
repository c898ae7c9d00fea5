package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/statement-ledger/internal/domain"
)

const statementColumns = `id, user_id, type, sender_id, amount, description, created_at`

type StatementRepository struct {
	db *sql.DB
}

func NewStatementRepository(db *sql.DB) *StatementRepository {
	return &StatementRepository{db: db}
}

// Append inserts the statements and one outbox event per statement in a
// single transaction.
func (r *StatementRepository) Append(ctx context.Context, statements ...*domain.Statement) error {
	events := make([]*domain.OutboxEvent, 0, len(statements))
	for _, s := range statements {
		event, err := domain.NewStatementCreatedEvent(s)
		if err != nil {
			return fmt.Errorf("Append: %w", err)
		}
		events = append(events, event)
	}

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, s := range statements {
			if err := insertStatement(ctx, tx, s); err != nil {
				return err
			}
		}
		for _, e := range events {
			if err := insertOutboxEvent(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("Append: %w", err)
	}
	return nil
}

func insertStatement(ctx context.Context, tx *sql.Tx, s *domain.Statement) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO statements (id, user_id, type, sender_id, amount, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.UserID, s.Type, s.SenderID(), s.Amount, s.Description, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert statement %s: %w", s.ID, err)
	}
	return nil
}

func (r *StatementRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Statement, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+statementColumns+` FROM statements WHERE user_id = $1 ORDER BY seq`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByUser: %w", err)
	}
	defer rows.Close()

	statements := []domain.Statement{}
	for rows.Next() {
		s, err := scanStatement(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByUser: scan: %w", err)
		}
		statements = append(statements, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByUser: rows: %w", err)
	}
	return statements, nil
}

func (r *StatementRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Statement, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+statementColumns+` FROM statements WHERE id = $1`, id,
	)
	s, err := scanStatement(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return s, nil
}

func scanStatement(s scanner) (*domain.Statement, error) {
	var (
		id, userID  uuid.UUID
		typ         domain.StatementType
		sender      uuid.NullUUID
		amount      decimal.Decimal
		description string
		createdAt   time.Time
	)
	if err := s.Scan(&id, &userID, &typ, &sender, &amount, &description, &createdAt); err != nil {
		return nil, err
	}

	var senderID *uuid.UUID
	if sender.Valid {
		senderID = &sender.UUID
	}
	return domain.RestoreStatement(id, userID, typ, senderID, amount, description, createdAt)
}
