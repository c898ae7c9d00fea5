package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/josh-kwaku/statement-ledger/internal/logging"
	"github.com/josh-kwaku/statement-ledger/internal/service"
)

type authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*service.AuthResult, error)
}

type AuthHandler struct {
	users authenticator
}

func NewAuthHandler(users authenticator) *AuthHandler {
	return &AuthHandler{users: users}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Email == "" {
		errs = append(errs, FieldError{Field: "email", Message: "required"})
	}
	if r.Password == "" {
		errs = append(errs, FieldError{Field: "password", Message: "required"})
	}
	return errs
}

type loginResponse struct {
	Token string  `json:"token"`
	User  userDTO `json:"user"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	res, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		logging.FromContext(r.Context()).Warn("login failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, loginResponse{
		Token: res.Token,
		User:  toUserDTO(res.User),
	})
}
