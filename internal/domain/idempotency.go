package domain

import (
	"time"

	"github.com/google/uuid"
)

// IdempotencyEntry is a cached response for one (key, user) pair. An entry
// with no status code is a reservation held by a request still running.
type IdempotencyEntry struct {
	Key          string
	UserID       uuid.UUID
	RequestHash  string
	StatusCode   int
	ResponseBody []byte
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

func (e IdempotencyEntry) Pending() bool {
	return e.StatusCode == 0
}
