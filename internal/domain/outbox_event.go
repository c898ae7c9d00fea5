package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OutboxEventStatus string

const (
	OutboxEventStatusPending    OutboxEventStatus = "pending"
	OutboxEventStatusProcessing OutboxEventStatus = "processing"
	OutboxEventStatusDispatched OutboxEventStatus = "dispatched"
	OutboxEventStatusFailed     OutboxEventStatus = "failed"
)

type OutboxEventType string

const (
	OutboxEventTypeStatementCreated OutboxEventType = "statement.created"
)

type OutboxEvent struct {
	ID          uuid.UUID
	StatementID uuid.UUID
	UserID      uuid.UUID
	EventType   OutboxEventType
	Payload     json.RawMessage
	Status      OutboxEventStatus
	Attempts    int
	LastAttempt *time.Time
	CreatedAt   time.Time
}

type StatementCreatedPayload struct {
	StatementID uuid.UUID       `json:"statement_id"`
	UserID      uuid.UUID       `json:"user_id"`
	SenderID    *uuid.UUID      `json:"sender_id,omitempty"`
	Type        StatementType   `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

func NewStatementCreatedEvent(s *Statement) (*OutboxEvent, error) {
	payload, err := json.Marshal(StatementCreatedPayload{
		StatementID: s.ID,
		UserID:      s.UserID,
		SenderID:    s.SenderID(),
		Type:        s.Type,
		Amount:      s.Amount,
		Description: s.Description,
		CreatedAt:   s.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("NewStatementCreatedEvent: %w", err)
	}

	return &OutboxEvent{
		ID:          uuid.New(),
		StatementID: s.ID,
		UserID:      s.UserID,
		EventType:   OutboxEventTypeStatementCreated,
		Payload:     payload,
		Status:      OutboxEventStatusPending,
		CreatedAt:   s.CreatedAt,
	}, nil
}
