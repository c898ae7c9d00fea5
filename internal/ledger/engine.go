package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/statement-ledger/internal/domain"
	"github.com/josh-kwaku/statement-ledger/internal/logging"
)

type userDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type statementStore interface {
	Append(ctx context.Context, statements ...*domain.Statement) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Statement, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Statement, error)
}

type accountLocker interface {
	Lock(ctx context.Context, ids ...uuid.UUID) (func(), error)
}

// Engine enforces the ledger rules on top of a statement store. Every
// mutation of an account runs read-balance, validate and append while
// holding that account's lock.
type Engine struct {
	users      userDirectory
	statements statementStore
	locks      accountLocker
	now        func() time.Time
}

func NewEngine(users userDirectory, statements statementStore, locks accountLocker) *Engine {
	return &Engine{
		users:      users,
		statements: statements,
		locks:      locks,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type CreateStatementRequest struct {
	UserID      uuid.UUID
	Type        domain.StatementType
	Amount      decimal.Decimal
	Description string
}

type CreateTransferRequest struct {
	RecipientID uuid.UUID
	SenderID    uuid.UUID
	Amount      decimal.Decimal
	Description string
}

func (e *Engine) CreateStatement(ctx context.Context, req CreateStatementRequest) (*domain.Statement, error) {
	log := logging.FromContext(ctx)

	if req.Type != domain.StatementTypeDeposit && req.Type != domain.StatementTypeWithdraw {
		return nil, fmt.Errorf("CreateStatement: %q: %w", req.Type, domain.ErrInvalidStatementType)
	}
	if !domain.ValidAmount(req.Amount) {
		return nil, fmt.Errorf("CreateStatement: %s: %w", req.Amount, domain.ErrInvalidAmount)
	}

	if err := e.requireUser(ctx, req.UserID); err != nil {
		return nil, fmt.Errorf("CreateStatement: %w", err)
	}

	unlock, err := e.locks.Lock(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("CreateStatement: %w", err)
	}
	defer unlock()

	var stmt *domain.Statement
	switch req.Type {
	case domain.StatementTypeDeposit:
		stmt = domain.NewDeposit(req.UserID, req.Amount, req.Description, e.now())
	case domain.StatementTypeWithdraw:
		if err := e.requireFunds(ctx, req.UserID, req.Amount); err != nil {
			return nil, fmt.Errorf("CreateStatement: %w", err)
		}
		stmt = domain.NewWithdraw(req.UserID, req.Amount, req.Description, e.now())
	}

	if err := e.statements.Append(ctx, stmt); err != nil {
		return nil, fmt.Errorf("CreateStatement: append: %w", err)
	}

	log.Info("statement created",
		"statement_id", stmt.ID,
		"user_id", stmt.UserID,
		"type", stmt.Type,
		"amount", stmt.Amount,
	)

	return stmt, nil
}

// CreateTransfer debits the sender with a withdraw record and credits the
// recipient with a transfer record carrying the sender. Both records are
// appended in one store call. The credit record is returned.
func (e *Engine) CreateTransfer(ctx context.Context, req CreateTransferRequest) (*domain.Statement, error) {
	log := logging.FromContext(ctx)

	if !domain.ValidAmount(req.Amount) {
		return nil, fmt.Errorf("CreateTransfer: %s: %w", req.Amount, domain.ErrInvalidAmount)
	}

	if err := e.validateTransferParties(ctx, req); err != nil {
		return nil, fmt.Errorf("CreateTransfer: %w", err)
	}

	unlock, err := e.locks.Lock(ctx, req.SenderID, req.RecipientID)
	if err != nil {
		return nil, fmt.Errorf("CreateTransfer: %w", err)
	}
	defer unlock()

	if err := e.requireFunds(ctx, req.SenderID, req.Amount); err != nil {
		return nil, fmt.Errorf("CreateTransfer: %w", err)
	}

	now := e.now()
	debit := domain.NewWithdraw(req.SenderID, req.Amount, req.Description, now)
	credit := domain.NewTransferCredit(req.RecipientID, req.SenderID, req.Amount, req.Description, now)

	if err := e.statements.Append(ctx, debit, credit); err != nil {
		return nil, fmt.Errorf("CreateTransfer: append: %w", err)
	}

	log.Info("transfer completed",
		"debit_statement_id", debit.ID,
		"credit_statement_id", credit.ID,
		"sender_id", req.SenderID,
		"recipient_id", req.RecipientID,
		"amount", req.Amount,
	)

	return credit, nil
}

// validateTransferParties applies the party checks in a fixed order: sender
// present, sender exists, not the same account, recipient exists.
func (e *Engine) validateTransferParties(ctx context.Context, req CreateTransferRequest) error {
	if req.SenderID == uuid.Nil {
		return fmt.Errorf("validateTransferParties: sender: %w", domain.ErrUserNotFound)
	}
	if err := e.requireUser(ctx, req.SenderID); err != nil {
		return fmt.Errorf("validateTransferParties: sender: %w", err)
	}
	if req.SenderID == req.RecipientID {
		return fmt.Errorf("validateTransferParties: %w", domain.ErrOwnAccount)
	}
	if err := e.requireUser(ctx, req.RecipientID); err != nil {
		return fmt.Errorf("validateTransferParties: recipient: %w", err)
	}
	return nil
}

func (e *Engine) GetBalance(ctx context.Context, userID uuid.UUID, withStatement bool) (*domain.Balance, error) {
	if err := e.requireUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("GetBalance: %w", err)
	}

	statements, err := e.statements.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("GetBalance: %w", err)
	}

	balance := &domain.Balance{
		UserID: userID,
		Amount: domain.FoldBalance(userID, statements),
	}
	if withStatement {
		balance.Statements = statements
	}
	return balance, nil
}

// GetOperation returns a statement visible to the requester: one they own,
// or a transfer credit they sent. Anything else reads as not found.
func (e *Engine) GetOperation(ctx context.Context, requesterID, statementID uuid.UUID) (*domain.Statement, error) {
	if err := e.requireUser(ctx, requesterID); err != nil {
		return nil, fmt.Errorf("GetOperation: %w", err)
	}

	stmt, err := e.statements.GetByID(ctx, statementID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("GetOperation: %w", domain.ErrStatementNotFound)
		}
		return nil, fmt.Errorf("GetOperation: %w", err)
	}

	if !visibleTo(stmt, requesterID) {
		logging.FromContext(ctx).Warn("statement lookup by non-owner",
			"statement_id", statementID,
			"requester_id", requesterID,
		)
		return nil, fmt.Errorf("GetOperation: %w", domain.ErrStatementNotFound)
	}

	return stmt, nil
}

func visibleTo(stmt *domain.Statement, userID uuid.UUID) bool {
	if stmt.UserID == userID {
		return true
	}
	detail, ok := stmt.Transfer()
	return ok && detail.SenderID == userID
}

func (e *Engine) requireUser(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return domain.ErrUserNotFound
	}
	if _, err := e.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%s: %w", userID, domain.ErrUserNotFound)
		}
		return fmt.Errorf("lookup user %s: %w", userID, err)
	}
	return nil
}

// requireFunds must run under the account lock so the balance it reads is
// the one the following append builds on.
func (e *Engine) requireFunds(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error {
	statements, err := e.statements.ListByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("requireFunds: %w", err)
	}

	balance := domain.FoldBalance(userID, statements)
	if balance.LessThan(amount) {
		return fmt.Errorf("requireFunds: balance %s < %s: %w", balance, amount, domain.ErrInsufficientFunds)
	}
	return nil
}
