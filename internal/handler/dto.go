package handler

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/statement-ledger/internal/domain"
)

type userDTO struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserDTO(u *domain.User) userDTO {
	return userDTO{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

type statementDTO struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"user_id"`
	SenderID    *uuid.UUID      `json:"sender_id,omitempty"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

func toStatementDTO(s *domain.Statement) statementDTO {
	return statementDTO{
		ID:          s.ID,
		UserID:      s.UserID,
		SenderID:    s.SenderID(),
		Type:        string(s.Type),
		Amount:      s.Amount,
		Description: s.Description,
		CreatedAt:   s.CreatedAt,
	}
}

type balanceDTO struct {
	Statement []statementDTO  `json:"statement"`
	Balance   decimal.Decimal `json:"balance"`
}

func toBalanceDTO(b *domain.Balance) balanceDTO {
	statements := make([]statementDTO, len(b.Statements))
	for i := range b.Statements {
		statements[i] = toStatementDTO(&b.Statements[i])
	}
	return balanceDTO{Statement: statements, Balance: b.Amount}
}
