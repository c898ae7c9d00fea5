package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type StatementType string

const (
	StatementTypeDeposit  StatementType = "deposit"
	StatementTypeWithdraw StatementType = "withdraw"
	StatementTypeTransfer StatementType = "transfer"
)

func (t StatementType) IsValid() bool {
	switch t {
	case StatementTypeDeposit, StatementTypeWithdraw, StatementTypeTransfer:
		return true
	}
	return false
}

// Credit reports whether a record of this type adds to the owner's balance.
func (t StatementType) Credit() bool {
	return t == StatementTypeDeposit || t == StatementTypeTransfer
}

// TransferDetail is the provenance carried only by transfer credit records.
type TransferDetail struct {
	SenderID uuid.UUID
}

// Statement is one immutable ledger record. UserID is the account whose
// balance the record affects. Transfer provenance is only reachable through
// Transfer(), and only set on records of type transfer.
type Statement struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Type        StatementType
	Amount      decimal.Decimal
	Description string
	CreatedAt   time.Time

	transfer *TransferDetail
}

func (s Statement) Transfer() (TransferDetail, bool) {
	if s.transfer == nil {
		return TransferDetail{}, false
	}
	return *s.transfer, true
}

// SenderID returns the transfer sender or nil for deposits and withdrawals.
func (s Statement) SenderID() *uuid.UUID {
	if s.transfer == nil {
		return nil
	}
	id := s.transfer.SenderID
	return &id
}

// SignedAmount is the record's contribution to its owner's balance.
func (s Statement) SignedAmount() decimal.Decimal {
	if s.Type.Credit() {
		return s.Amount
	}
	return s.Amount.Neg()
}

func NewDeposit(userID uuid.UUID, amount decimal.Decimal, description string, now time.Time) *Statement {
	return newStatement(userID, StatementTypeDeposit, amount, description, now)
}

func NewWithdraw(userID uuid.UUID, amount decimal.Decimal, description string, now time.Time) *Statement {
	return newStatement(userID, StatementTypeWithdraw, amount, description, now)
}

func NewTransferCredit(recipientID, senderID uuid.UUID, amount decimal.Decimal, description string, now time.Time) *Statement {
	s := newStatement(recipientID, StatementTypeTransfer, amount, description, now)
	s.transfer = &TransferDetail{SenderID: senderID}
	return s
}

func newStatement(userID uuid.UUID, t StatementType, amount decimal.Decimal, description string, now time.Time) *Statement {
	return &Statement{
		ID:          uuid.New(),
		UserID:      userID,
		Type:        t,
		Amount:      amount,
		Description: description,
		CreatedAt:   now,
	}
}

// RestoreStatement rebuilds a stored record, rejecting shapes that the
// constructors can never produce.
func RestoreStatement(id, userID uuid.UUID, t StatementType, senderID *uuid.UUID, amount decimal.Decimal, description string, createdAt time.Time) (*Statement, error) {
	if !t.IsValid() {
		return nil, fmt.Errorf("RestoreStatement: %q: %w", t, ErrInvalidStatementType)
	}
	if (t == StatementTypeTransfer) != (senderID != nil) {
		return nil, fmt.Errorf("RestoreStatement: %s record %s with sender %v: %w", t, id, senderID, ErrInvalidStatementType)
	}

	s := &Statement{
		ID:          id,
		UserID:      userID,
		Type:        t,
		Amount:      amount,
		Description: description,
		CreatedAt:   createdAt,
	}
	if senderID != nil {
		s.transfer = &TransferDetail{SenderID: *senderID}
	}
	return s, nil
}

// AmountScale is the number of decimal places a ledger amount may carry.
const AmountScale = 2

// ValidAmount reports whether a is strictly positive and has no digits
// beyond AmountScale. Trailing zeros past the scale are fine.
func ValidAmount(a decimal.Decimal) bool {
	return a.IsPositive() && a.Equal(a.Truncate(AmountScale))
}

type Balance struct {
	UserID     uuid.UUID
	Amount     decimal.Decimal
	Statements []Statement
}

// FoldBalance sums the signed amounts of records owned by userID.
func FoldBalance(userID uuid.UUID, statements []Statement) decimal.Decimal {
	total := decimal.Zero
	for _, s := range statements {
		if s.UserID != userID {
			continue
		}
		total = total.Add(s.SignedAmount())
	}
	return total
}
