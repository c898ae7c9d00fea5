package natsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/statement-ledger/internal/domain"
)

const queueGroup = "ledger-balance"

type balanceReader interface {
	GetBalance(ctx context.Context, userID uuid.UUID, withStatement bool) (*domain.Balance, error)
}

type balanceReply struct {
	UserID  uuid.UUID       `json:"user_id,omitempty"`
	Balance decimal.Decimal `json:"balance"`
}

type errorReply struct {
	Error replyError `json:"error"`
}

type replyError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BalanceResponder answers balance requests over NATS. The request body is
// a user id in text form.
type BalanceResponder struct {
	ledger  balanceReader
	logger  *slog.Logger
	timeout time.Duration
	sub     *nats.Subscription
}

func NewBalanceResponder(ledger balanceReader, logger *slog.Logger) *BalanceResponder {
	return &BalanceResponder{ledger: ledger, logger: logger, timeout: 5 * time.Second}
}

// Subscribe joins the responder queue group so replicas share requests.
func (b *BalanceResponder) Subscribe(nc *nats.Conn, subject string) error {
	sub, err := nc.QueueSubscribe(subject, queueGroup, b.handleMsg)
	if err != nil {
		return fmt.Errorf("Subscribe: %w", err)
	}
	b.sub = sub
	b.logger.Info("nats balance responder subscribed", "subject", subject, "queue", queueGroup)
	return nil
}

func (b *BalanceResponder) Drain() error {
	if b.sub == nil {
		return nil
	}
	return b.sub.Drain()
}

func (b *BalanceResponder) handleMsg(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	if err := msg.Respond(b.Handle(ctx, msg.Data)); err != nil {
		b.logger.Error("nats balance reply failed", "error", err)
	}
}

// Handle turns a request body into a JSON reply.
func (b *BalanceResponder) Handle(ctx context.Context, data []byte) []byte {
	userID, err := uuid.Parse(strings.TrimSpace(string(data)))
	if err != nil {
		return encodeError("INVALID_REQUEST", "user id must be a UUID")
	}

	balance, err := b.ledger.GetBalance(ctx, userID, false)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return encodeError("USER_NOT_FOUND", "User not found")
		}
		b.logger.Error("nats balance lookup failed", "user_id", userID, "error", err)
		return encodeError("INTERNAL_ERROR", "An unexpected error occurred")
	}

	out, err := json.Marshal(balanceReply{UserID: balance.UserID, Balance: balance.Amount})
	if err != nil {
		return encodeError("INTERNAL_ERROR", "An unexpected error occurred")
	}
	return out
}

func encodeError(code, message string) []byte {
	out, _ := json.Marshal(errorReply{Error: replyError{Code: code, Message: message}})
	return out
}
