package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/statement-ledger/internal/auth"
	"github.com/josh-kwaku/statement-ledger/internal/domain"
	"github.com/josh-kwaku/statement-ledger/internal/handler"
	"github.com/josh-kwaku/statement-ledger/internal/logging"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	replayedHeader       = "X-Idempotent-Replayed"

	// reservationLease bounds how long a crashed request can hold a key.
	reservationLease = time.Minute
)

type idempotencyRepository interface {
	Get(ctx context.Context, key string, userID uuid.UUID) (*domain.IdempotencyEntry, error)
	Reserve(ctx context.Context, entry *domain.IdempotencyEntry) (bool, error)
	Set(ctx context.Context, entry *domain.IdempotencyEntry) error
	Release(ctx context.Context, key string, userID uuid.UUID) error
}

// Idempotency replays the stored response for a repeated Idempotency-Key
// from the same user. Requests without the header pass through. The key is
// reserved before the handler runs, so a concurrent duplicate gets 409
// IDEMPOTENCY_IN_PROGRESS instead of running the handler again. Server
// errors release the key so the client can retry under it.
func Idempotency(repo idempotencyRepository, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(idempotencyKeyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			userID, ok := auth.UserIDFromContext(r.Context())
			if !ok {
				handler.RespondAppError(w, handler.ErrMissingToken, nil)
				return
			}

			log := logging.FromContext(r.Context())

			body, err := io.ReadAll(r.Body)
			if err != nil {
				handler.RespondAppError(w, handler.ErrInvalidRequest, nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			reqHash := computeHash(r.Method, r.URL.Path, body)

			cached, err := repo.Get(r.Context(), key, userID)
			if err != nil {
				log.Error("idempotency cache lookup failed", "error", err, "idempotency_key", key)
				handler.RespondAppError(w, handler.ErrInternalError, nil)
				return
			}

			if cached == nil {
				now := time.Now().UTC()
				reserved, err := repo.Reserve(r.Context(), &domain.IdempotencyEntry{
					Key:         key,
					UserID:      userID,
					RequestHash: reqHash,
					CreatedAt:   now,
					ExpiresAt:   now.Add(reservationLease),
				})
				if err != nil {
					log.Error("idempotency reservation failed", "error", err, "idempotency_key", key)
					handler.RespondAppError(w, handler.ErrInternalError, nil)
					return
				}
				if !reserved {
					cached, err = repo.Get(r.Context(), key, userID)
					if err != nil {
						log.Error("idempotency cache lookup failed", "error", err, "idempotency_key", key)
						handler.RespondAppError(w, handler.ErrInternalError, nil)
						return
					}
					if cached == nil {
						handler.RespondAppError(w, handler.ErrIdempotencyInProgress, nil)
						return
					}
				}
			}

			if cached != nil {
				replay(w, cached, reqHash, log)
				return
			}

			// the outcome is recorded even if the client has gone away
			storeCtx := context.WithoutCancel(r.Context())

			// a server error or a panic gives the key back
			completed := false
			defer func() {
				if completed {
					return
				}
				if err := repo.Release(storeCtx, key, userID); err != nil {
					log.Error("idempotency release failed", "error", err, "idempotency_key", key)
				}
			}()

			rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode >= http.StatusInternalServerError {
				return
			}
			completed = true

			now := time.Now().UTC()
			entry := &domain.IdempotencyEntry{
				Key:          key,
				UserID:       userID,
				RequestHash:  reqHash,
				StatusCode:   rec.statusCode,
				ResponseBody: append([]byte{}, rec.body.Bytes()...),
				CreatedAt:    now,
				ExpiresAt:    now.Add(ttl),
			}
			if err := repo.Set(storeCtx, entry); err != nil {
				log.Error("idempotency cache store failed", "error", err, "idempotency_key", key)
			}
		})
	}
}

func replay(w http.ResponseWriter, cached *domain.IdempotencyEntry, reqHash string, log *slog.Logger) {
	if cached.RequestHash != reqHash {
		handler.RespondAppError(w, handler.ErrIdempotencyConflict, nil)
		return
	}
	if cached.Pending() {
		handler.RespondAppError(w, handler.ErrIdempotencyInProgress, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(cached.StatusCode)
	if _, err := w.Write(cached.ResponseBody); err != nil {
		log.Error("failed to write idempotent replay", "error", err, "idempotency_key", cached.Key)
	}
}

func computeHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte(path))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
