package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/statement-ledger/internal/domain"
)

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository()

	u := &domain.User{ID: uuid.New(), Name: "Ada", Email: "ada@example.com", PasswordHash: "x"}
	require.NoError(t, repo.Create(ctx, u))

	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Name)

	got, err = repo.GetByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	dup := &domain.User{ID: uuid.New(), Email: "Ada@Example.com"}
	assert.ErrorIs(t, repo.Create(ctx, dup), domain.ErrDuplicateUser)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = repo.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStatementRepository_AppendAndRead(t *testing.T) {
	ctx := context.Background()
	repo := NewStatementRepository()
	a, b := uuid.New(), uuid.New()
	now := time.Now().UTC()

	deposit := domain.NewDeposit(a, decimal.NewFromInt(100), "", now)
	debit := domain.NewWithdraw(a, decimal.NewFromInt(40), "", now)
	credit := domain.NewTransferCredit(b, a, decimal.NewFromInt(40), "", now)

	require.NoError(t, repo.Append(ctx, deposit))
	require.NoError(t, repo.Append(ctx, debit, credit))

	listA, err := repo.ListByUser(ctx, a)
	require.NoError(t, err)
	require.Len(t, listA, 2)
	assert.Equal(t, deposit.ID, listA[0].ID)
	assert.Equal(t, debit.ID, listA[1].ID)

	listB, err := repo.ListByUser(ctx, b)
	require.NoError(t, err)
	require.Len(t, listB, 1)
	detail, ok := listB[0].Transfer()
	require.True(t, ok)
	assert.Equal(t, a, detail.SenderID)

	got, err := repo.GetByID(ctx, credit.ID)
	require.NoError(t, err)
	assert.Equal(t, b, got.UserID)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Len(t, repo.Events(), 3)
}

func TestStatementRepository_AppendIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	repo := NewStatementRepository()
	user := uuid.New()
	now := time.Now().UTC()

	first := domain.NewDeposit(user, decimal.NewFromInt(10), "", now)
	require.NoError(t, repo.Append(ctx, first))

	fresh := domain.NewDeposit(user, decimal.NewFromInt(20), "", now)
	err := repo.Append(ctx, fresh, first)
	require.Error(t, err)

	list, err := repo.ListByUser(ctx, user)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Len(t, repo.Events(), 1)
}

func TestStatementRepository_Outbox(t *testing.T) {
	ctx := context.Background()
	repo := NewStatementRepository()
	user := uuid.New()
	now := time.Now().UTC()

	for range 3 {
		require.NoError(t, repo.Append(ctx, domain.NewDeposit(user, decimal.NewFromInt(1), "", now)))
	}

	claimed, err := repo.ClaimPending(ctx, 2, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	for _, e := range claimed {
		assert.Equal(t, domain.OutboxEventStatusProcessing, e.Status)
		assert.Equal(t, 1, e.Attempts)
		assert.NotNil(t, e.LastAttempt)
	}

	require.NoError(t, repo.UpdateStatus(ctx, claimed[0].ID, domain.OutboxEventStatusDispatched))
	require.NoError(t, repo.UpdateStatus(ctx, claimed[1].ID, domain.OutboxEventStatusPending))

	again, err := repo.ClaimPending(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, again, 2)
	assert.Equal(t, claimed[1].ID, again[0].ID)
	assert.Equal(t, 2, again[0].Attempts)

	assert.ErrorIs(t, repo.UpdateStatus(ctx, uuid.New(), domain.OutboxEventStatusFailed), domain.ErrNotFound)
}

func TestStatementRepository_ReclaimsStaleProcessing(t *testing.T) {
	ctx := context.Background()
	repo := NewStatementRepository()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	require.NoError(t, repo.Append(ctx, domain.NewDeposit(uuid.New(), decimal.NewFromInt(1), "", now)))

	claimed, err := repo.ClaimPending(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	now = now.Add(30 * time.Second)
	again, err := repo.ClaimPending(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again, "fresh claim must not be taken twice")

	now = now.Add(time.Minute)
	again, err = repo.ClaimPending(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, claimed[0].ID, again[0].ID)
	assert.Equal(t, 2, again[0].Attempts)
}

func TestIdempotencyRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewIdempotencyRepository()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	user := uuid.New()

	got, err := repo.Get(ctx, "k1", user)
	require.NoError(t, err)
	assert.Nil(t, got)

	reservation := &domain.IdempotencyEntry{
		Key: "k1", UserID: user, RequestHash: "h1", CreatedAt: now, ExpiresAt: now.Add(time.Minute),
	}
	ok, err := repo.Reserve(ctx, reservation)
	require.NoError(t, err)
	require.True(t, ok)

	rival := *reservation
	rival.RequestHash = "h2"
	ok, err = repo.Reserve(ctx, &rival)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err = repo.Get(ctx, "k1", user)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Pending())
	assert.Equal(t, "h1", got.RequestHash)

	// completing under another hash is ignored
	require.NoError(t, repo.Set(ctx, &domain.IdempotencyEntry{
		Key: "k1", UserID: user, RequestHash: "h2", StatusCode: 500, ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, repo.Set(ctx, &domain.IdempotencyEntry{
		Key: "k1", UserID: user, RequestHash: "h1", StatusCode: 201,
		ResponseBody: []byte(`{}`), CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}))

	got, err = repo.Get(ctx, "k1", user)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Pending())
	assert.Equal(t, 201, got.StatusCode)

	// a completed entry is not released
	require.NoError(t, repo.Release(ctx, "k1", user))
	got, err = repo.Get(ctx, "k1", user)
	require.NoError(t, err)
	assert.NotNil(t, got)

	got, err = repo.Get(ctx, "k1", uuid.New())
	require.NoError(t, err)
	assert.Nil(t, got)

	now = now.Add(2 * time.Hour)
	got, err = repo.Get(ctx, "k1", user)
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := repo.CleanExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestIdempotencyRepository_ReleaseAndExpiredReservation(t *testing.T) {
	ctx := context.Background()
	repo := NewIdempotencyRepository()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	user := uuid.New()
	entry := &domain.IdempotencyEntry{Key: "k", UserID: user, RequestHash: "h", CreatedAt: now, ExpiresAt: now.Add(time.Minute)}

	ok, err := repo.Reserve(ctx, entry)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, repo.Release(ctx, "k", user))
	ok, err = repo.Reserve(ctx, entry)
	require.NoError(t, err)
	assert.True(t, ok, "released key can be reserved again")

	now = now.Add(2 * time.Minute)
	next := *entry
	next.ExpiresAt = now.Add(time.Minute)
	ok, err = repo.Reserve(ctx, &next)
	require.NoError(t, err)
	assert.True(t, ok, "expired reservation is taken over")
}
