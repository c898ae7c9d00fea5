package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/josh-kwaku/statement-ledger/internal/domain"
)

const TestPassword = "password123"

func SeedTestUser(t *testing.T, db *sql.DB, name, email string) *domain.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := &domain.User{
		ID:           uuid.New(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}

	_, err = db.Exec(
		`INSERT INTO users (id, name, email, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed test user %s: %v", email, err)
	}
	return u
}

// SeedDeposit writes a deposit row directly, bypassing the outbox.
func SeedDeposit(t *testing.T, db *sql.DB, userID uuid.UUID, amount string) *domain.Statement {
	t.Helper()

	s := domain.NewDeposit(userID, decimal.RequireFromString(amount), "seed", time.Now().UTC())
	_, err := db.Exec(
		`INSERT INTO statements (id, user_id, type, amount, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.UserID, s.Type, s.Amount, s.Description, s.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed deposit for %s: %v", userID, err)
	}
	return s
}

func CountStatements(t *testing.T, db *sql.DB, userID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM statements WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		t.Fatalf("count statements for %s: %v", userID, err)
	}
	return count
}

func CountOutboxEvents(t *testing.T, db *sql.DB, status domain.OutboxEventStatus) int {
	t.Helper()

	var count int
	err := db.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM outbox_events WHERE status = $1`, status,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count outbox events %s: %v", status, err)
	}
	return count
}
