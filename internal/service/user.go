package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/statement-ledger/internal/auth"
	"github.com/josh-kwaku/statement-ledger/internal/domain"
	"github.com/josh-kwaku/statement-ledger/internal/logging"
)

type userStore interface {
	Create(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

type tokenIssuer interface {
	Generate(userID uuid.UUID, email string) (string, error)
}

type UserService struct {
	users         userStore
	tokens        tokenIssuer
	checkPassword func(hash, password string) (bool, error)
	now           func() time.Time
}

func NewUserService(users userStore, tokens tokenIssuer) *UserService {
	return &UserService{
		users:         users,
		tokens:        tokens,
		checkPassword: auth.CheckPassword,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

type RegisterRequest struct {
	Name     string
	Email    string
	Password string
}

type AuthResult struct {
	User  *domain.User
	Token string
}

func (s *UserService) Register(ctx context.Context, req RegisterRequest) (*domain.User, error) {
	log := logging.FromContext(ctx)

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("Register: %w", err)
	}

	u := &domain.User{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(req.Name),
		Email:        normalizeEmail(req.Email),
		PasswordHash: hash,
		CreatedAt:    s.now().Truncate(time.Microsecond),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("Register: %w", err)
	}

	log.Info("user registered", "user_id", u.ID)
	return u, nil
}

// Authenticate reports an unknown email and a wrong password the same way.
// An unknown email still pays for a bcrypt compare against a decoy hash so
// the two cases take the same time.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*AuthResult, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			_, _ = s.checkPassword(auth.DecoyHash(), password)
			return nil, fmt.Errorf("Authenticate: %w", domain.ErrIncorrectEmailOrPassword)
		}
		return nil, fmt.Errorf("Authenticate: %w", err)
	}

	ok, err := s.checkPassword(u.PasswordHash, password)
	if err != nil {
		return nil, fmt.Errorf("Authenticate: %w", err)
	}
	if !ok {
		logging.FromContext(ctx).Warn("failed login", "user_id", u.ID)
		return nil, fmt.Errorf("Authenticate: %w", domain.ErrIncorrectEmailOrPassword)
	}

	token, err := s.tokens.Generate(u.ID, u.Email)
	if err != nil {
		return nil, fmt.Errorf("Authenticate: %w", err)
	}
	return &AuthResult{User: u, Token: token}, nil
}

func (s *UserService) Profile(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("Profile: %w", domain.ErrUserNotFound)
		}
		return nil, fmt.Errorf("Profile: %w", err)
	}
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
