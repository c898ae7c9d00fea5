package natsapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/statement-ledger/internal/domain"
)

type fakeLedger struct {
	balances map[uuid.UUID]decimal.Decimal
	err      error
}

func (f fakeLedger) GetBalance(ctx context.Context, userID uuid.UUID, withStatement bool) (*domain.Balance, error) {
	if f.err != nil {
		return nil, f.err
	}
	amount, ok := f.balances[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &domain.Balance{UserID: userID, Amount: amount}, nil
}

func TestBalanceResponder_Handle(t *testing.T) {
	known := uuid.New()
	ledger := fakeLedger{balances: map[uuid.UUID]decimal.Decimal{known: decimal.RequireFromString("42.50")}}

	tests := []struct {
		name     string
		ledger   fakeLedger
		body     string
		wantCode string
		wantBal  string
	}{
		{name: "known user", ledger: ledger, body: known.String(), wantBal: "42.5"},
		{name: "whitespace tolerated", ledger: ledger, body: " " + known.String() + "\n", wantBal: "42.5"},
		{name: "unknown user", ledger: ledger, body: uuid.NewString(), wantCode: "USER_NOT_FOUND"},
		{name: "not a uuid", ledger: ledger, body: "alice", wantCode: "INVALID_REQUEST"},
		{name: "store failure", ledger: fakeLedger{err: errors.New("db down")}, body: known.String(), wantCode: "INTERNAL_ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := NewBalanceResponder(tc.ledger, slog.Default())
			out := r.Handle(context.Background(), []byte(tc.body))

			if tc.wantCode != "" {
				var reply errorReply
				require.NoError(t, json.Unmarshal(out, &reply))
				assert.Equal(t, tc.wantCode, reply.Error.Code)
				return
			}

			var reply balanceReply
			require.NoError(t, json.Unmarshal(out, &reply))
			assert.Equal(t, known, reply.UserID)
			assert.Equal(t, tc.wantBal, reply.Balance.String())
		})
	}
}
