package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/statement-ledger/internal/auth"
	"github.com/josh-kwaku/statement-ledger/internal/domain"
	"github.com/josh-kwaku/statement-ledger/internal/handler"
	"github.com/josh-kwaku/statement-ledger/internal/ledger"
)

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) CreateStatement(ctx context.Context, req ledger.CreateStatementRequest) (*domain.Statement, error) {
	args := m.Called(ctx, req)
	s, _ := args.Get(0).(*domain.Statement)
	return s, args.Error(1)
}

func (m *MockLedger) CreateTransfer(ctx context.Context, req ledger.CreateTransferRequest) (*domain.Statement, error) {
	args := m.Called(ctx, req)
	s, _ := args.Get(0).(*domain.Statement)
	return s, args.Error(1)
}

func (m *MockLedger) GetBalance(ctx context.Context, userID uuid.UUID, withStatement bool) (*domain.Balance, error) {
	args := m.Called(ctx, userID, withStatement)
	b, _ := args.Get(0).(*domain.Balance)
	return b, args.Error(1)
}

func (m *MockLedger) GetOperation(ctx context.Context, requesterID, statementID uuid.UUID) (*domain.Statement, error) {
	args := m.Called(ctx, requesterID, statementID)
	s, _ := args.Get(0).(*domain.Statement)
	return s, args.Error(1)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env
}

func authed(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(auth.ContextWithUserID(req.Context(), userID))
}

func TestStatementHandler_Create(t *testing.T) {
	caller := uuid.New()
	created := domain.NewDeposit(caller, decimal.RequireFromString("100.25"), "salary", time.Now().UTC())

	m := new(MockLedger)
	m.On("CreateStatement", mock.Anything, ledger.CreateStatementRequest{
		UserID:      caller,
		Type:        domain.StatementTypeDeposit,
		Amount:      decimal.RequireFromString("100.25"),
		Description: "salary",
	}).Return(created, nil)

	h := handler.NewStatementHandler(m)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/statements/deposit",
		strings.NewReader(`{"amount": 100.25, "description": "salary"}`))
	req.SetPathValue("type", "deposit")
	rec := httptest.NewRecorder()

	h.Create(rec, authed(req, caller))

	assert.Equal(t, http.StatusCreated, rec.Code)
	env := decode(t, rec)
	assert.True(t, env.Success)

	var body map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, created.ID.String(), body["id"])
	assert.Equal(t, "deposit", body["type"])
	assert.Equal(t, "100.25", body["amount"])
	assert.NotContains(t, body, "sender_id")
	m.AssertExpectations(t)
}

func TestStatementHandler_CreateErrors(t *testing.T) {
	caller := uuid.New()

	tests := []struct {
		name       string
		pathType   string
		body       string
		ledgerErr  error
		wantStatus int
		wantCode   string
	}{
		{name: "insufficient funds", pathType: "withdraw", body: `{"amount":"10"}`, ledgerErr: domain.ErrInsufficientFunds, wantStatus: http.StatusUnprocessableEntity, wantCode: "INSUFFICIENT_FUNDS"},
		{name: "unknown user", pathType: "deposit", body: `{"amount":"10"}`, ledgerErr: domain.ErrUserNotFound, wantStatus: http.StatusNotFound, wantCode: "USER_NOT_FOUND"},
		{name: "invalid type", pathType: "refund", body: `{"amount":"10"}`, ledgerErr: domain.ErrInvalidStatementType, wantStatus: http.StatusBadRequest, wantCode: "INVALID_STATEMENT_TYPE"},
		{name: "non-positive amount", pathType: "deposit", body: `{"amount":"0"}`, ledgerErr: domain.ErrInvalidAmount, wantStatus: http.StatusBadRequest, wantCode: "INVALID_AMOUNT"},
		{name: "storage failure", pathType: "deposit", body: `{"amount":"10"}`, ledgerErr: errors.New("connection reset"), wantStatus: http.StatusInternalServerError, wantCode: "INTERNAL_ERROR"},
		{name: "missing amount", pathType: "deposit", body: `{}`, wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_FAILED"},
		{name: "malformed body", pathType: "deposit", body: `{`, wantStatus: http.StatusBadRequest, wantCode: "INVALID_REQUEST"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := new(MockLedger)
			if tc.ledgerErr != nil {
				m.On("CreateStatement", mock.Anything, mock.Anything).Return(nil, tc.ledgerErr)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/v1/statements/"+tc.pathType, strings.NewReader(tc.body))
			req.SetPathValue("type", tc.pathType)
			rec := httptest.NewRecorder()
			handler.NewStatementHandler(m).Create(rec, authed(req, caller))

			assert.Equal(t, tc.wantStatus, rec.Code)
			env := decode(t, rec)
			require.NotNil(t, env.Error)
			assert.Equal(t, tc.wantCode, env.Error.Code)
			m.AssertExpectations(t)
		})
	}
}

func TestStatementHandler_Transfer(t *testing.T) {
	sender, recipient := uuid.New(), uuid.New()
	credit := domain.NewTransferCredit(recipient, sender, decimal.RequireFromString("50"), "dinner", time.Now().UTC())

	m := new(MockLedger)
	m.On("CreateTransfer", mock.Anything, ledger.CreateTransferRequest{
		RecipientID: recipient,
		SenderID:    sender,
		Amount:      decimal.RequireFromString("50"),
		Description: "dinner",
	}).Return(credit, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/statements/transfers/"+recipient.String(),
		strings.NewReader(`{"amount":"50","description":"dinner"}`))
	req.SetPathValue("user_id", recipient.String())
	rec := httptest.NewRecorder()
	handler.NewStatementHandler(m).Transfer(rec, authed(req, sender))

	assert.Equal(t, http.StatusCreated, rec.Code)
	env := decode(t, rec)
	var body map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, "transfer", body["type"])
	assert.Equal(t, recipient.String(), body["user_id"])
	assert.Equal(t, sender.String(), body["sender_id"])
	m.AssertExpectations(t)
}

func TestStatementHandler_TransferErrors(t *testing.T) {
	sender := uuid.New()

	tests := []struct {
		name       string
		recipient  string
		ledgerErr  error
		wantStatus int
		wantCode   string
	}{
		{name: "own account", recipient: sender.String(), ledgerErr: domain.ErrOwnAccount, wantStatus: http.StatusUnprocessableEntity, wantCode: "OWN_ACCOUNT"},
		{name: "unknown recipient", recipient: uuid.NewString(), ledgerErr: domain.ErrUserNotFound, wantStatus: http.StatusNotFound, wantCode: "USER_NOT_FOUND"},
		{name: "recipient not a uuid", recipient: "bob", wantStatus: http.StatusNotFound, wantCode: "USER_NOT_FOUND"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := new(MockLedger)
			if tc.ledgerErr != nil {
				m.On("CreateTransfer", mock.Anything, mock.Anything).Return(nil, tc.ledgerErr)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/v1/statements/transfers/"+tc.recipient, strings.NewReader(`{"amount":"1"}`))
			req.SetPathValue("user_id", tc.recipient)
			rec := httptest.NewRecorder()
			handler.NewStatementHandler(m).Transfer(rec, authed(req, sender))

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantCode, decode(t, rec).Error.Code)
			m.AssertExpectations(t)
		})
	}
}

func TestStatementHandler_Balance(t *testing.T) {
	caller := uuid.New()
	now := time.Now().UTC()
	statements := []domain.Statement{
		*domain.NewDeposit(caller, decimal.NewFromInt(200), "", now),
		*domain.NewWithdraw(caller, decimal.NewFromInt(50), "", now),
	}

	m := new(MockLedger)
	m.On("GetBalance", mock.Anything, caller, true).Return(&domain.Balance{
		UserID:     caller,
		Amount:     decimal.NewFromInt(150),
		Statements: statements,
	}, nil)

	rec := httptest.NewRecorder()
	handler.NewStatementHandler(m).Balance(rec, authed(httptest.NewRequest(http.MethodGet, "/api/v1/statements/balance", nil), caller))

	assert.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	var body struct {
		Statement []map[string]any `json:"statement"`
		Balance   string           `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, "150", body.Balance)
	require.Len(t, body.Statement, 2)
	assert.Equal(t, "withdraw", body.Statement[1]["type"])
	m.AssertExpectations(t)
}

func TestStatementHandler_GetOperation(t *testing.T) {
	caller := uuid.New()
	stmt := domain.NewDeposit(caller, decimal.NewFromInt(5), "", time.Now().UTC())

	tests := []struct {
		name       string
		pathID     string
		setup      func(m *MockLedger)
		wantStatus int
		wantCode   string
	}{
		{
			name:   "found",
			pathID: stmt.ID.String(),
			setup: func(m *MockLedger) {
				m.On("GetOperation", mock.Anything, caller, stmt.ID).Return(stmt, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:   "not found",
			pathID: stmt.ID.String(),
			setup: func(m *MockLedger) {
				m.On("GetOperation", mock.Anything, caller, stmt.ID).Return(nil, domain.ErrStatementNotFound)
			},
			wantStatus: http.StatusNotFound,
			wantCode:   "STATEMENT_NOT_FOUND",
		},
		{
			name:       "malformed id",
			pathID:     "123",
			setup:      func(m *MockLedger) {},
			wantStatus: http.StatusNotFound,
			wantCode:   "STATEMENT_NOT_FOUND",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := new(MockLedger)
			tc.setup(m)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/statements/"+tc.pathID, nil)
			req.SetPathValue("statement_id", tc.pathID)
			rec := httptest.NewRecorder()
			handler.NewStatementHandler(m).GetOperation(rec, authed(req, caller))

			assert.Equal(t, tc.wantStatus, rec.Code)
			env := decode(t, rec)
			if tc.wantCode != "" {
				assert.Equal(t, tc.wantCode, env.Error.Code)
			} else {
				assert.True(t, env.Success)
			}
			m.AssertExpectations(t)
		})
	}
}

func TestStatementHandler_RequiresCaller(t *testing.T) {
	m := new(MockLedger)
	rec := httptest.NewRecorder()
	handler.NewStatementHandler(m).Balance(rec, httptest.NewRequest(http.MethodGet, "/api/v1/statements/balance", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	m.AssertNotCalled(t, "GetBalance", mock.Anything, mock.Anything, mock.Anything)
}
