package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/josh-kwaku/statement-ledger/internal/auth"
)

func callerFromContext(r *http.Request) (uuid.UUID, *AppError) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, ErrMissingToken
	}
	return userID, nil
}
