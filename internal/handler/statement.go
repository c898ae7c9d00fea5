package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/statement-ledger/internal/domain"
	"github.com/josh-kwaku/statement-ledger/internal/ledger"
	"github.com/josh-kwaku/statement-ledger/internal/logging"
)

const maxDescriptionLength = 255

type ledgerService interface {
	CreateStatement(ctx context.Context, req ledger.CreateStatementRequest) (*domain.Statement, error)
	CreateTransfer(ctx context.Context, req ledger.CreateTransferRequest) (*domain.Statement, error)
	GetBalance(ctx context.Context, userID uuid.UUID, withStatement bool) (*domain.Balance, error)
	GetOperation(ctx context.Context, requesterID, statementID uuid.UUID) (*domain.Statement, error)
}

type StatementHandler struct {
	ledger ledgerService
}

func NewStatementHandler(ledger ledgerService) *StatementHandler {
	return &StatementHandler{ledger: ledger}
}

type amountRequest struct {
	Amount      *decimal.Decimal `json:"amount"`
	Description string           `json:"description"`
}

func (r amountRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Amount == nil {
		errs = append(errs, FieldError{Field: "amount", Message: "required"})
	}
	if len(r.Description) > maxDescriptionLength {
		errs = append(errs, FieldError{Field: "description", Message: "must be at most 255 characters"})
	}
	return errs
}

func decodeAmountRequest(w http.ResponseWriter, r *http.Request) (amountRequest, bool) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return req, false
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return req, false
	}
	return req, true
}

func (h *StatementHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, appErr := callerFromContext(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	balance, err := h.ledger.GetBalance(r.Context(), userID, true)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to get balance", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toBalanceDTO(balance))
}

// Create handles deposits and withdrawals for the caller. The type comes
// from the path.
func (h *StatementHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, appErr := callerFromContext(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	req, ok := decodeAmountRequest(w, r)
	if !ok {
		return
	}

	stmt, err := h.ledger.CreateStatement(r.Context(), ledger.CreateStatementRequest{
		UserID:      userID,
		Type:        domain.StatementType(r.PathValue("type")),
		Amount:      *req.Amount,
		Description: req.Description,
	})
	if err != nil {
		logStatementFailure(r, "failed to create statement", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toStatementDTO(stmt))
}

func (h *StatementHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	senderID, appErr := callerFromContext(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	recipientID, err := uuid.Parse(r.PathValue("user_id"))
	if err != nil {
		RespondAppError(w, ErrUserNotFound, nil)
		return
	}

	req, ok := decodeAmountRequest(w, r)
	if !ok {
		return
	}

	credit, err := h.ledger.CreateTransfer(r.Context(), ledger.CreateTransferRequest{
		RecipientID: recipientID,
		SenderID:    senderID,
		Amount:      *req.Amount,
		Description: req.Description,
	})
	if err != nil {
		logStatementFailure(r, "failed to create transfer", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toStatementDTO(credit))
}

func (h *StatementHandler) GetOperation(w http.ResponseWriter, r *http.Request) {
	userID, appErr := callerFromContext(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	statementID, err := uuid.Parse(r.PathValue("statement_id"))
	if err != nil {
		RespondAppError(w, ErrStatementNotFound, nil)
		return
	}

	stmt, err := h.ledger.GetOperation(r.Context(), userID, statementID)
	if err != nil {
		logStatementFailure(r, "failed to get statement", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toStatementDTO(stmt))
}

// logStatementFailure keeps Error level for failures outside the ledger's
// typed rejections.
func logStatementFailure(r *http.Request, msg string, err error) {
	log := logging.FromContext(r.Context())
	if AppErrorFor(err) == ErrInternalError {
		log.Error(msg, "error", err)
		return
	}
	if errors.Is(err, domain.ErrInsufficientFunds) || errors.Is(err, domain.ErrOwnAccount) {
		log.Info(msg, "error", err)
		return
	}
	log.Warn(msg, "error", err)
}
