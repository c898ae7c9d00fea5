package domain

import (
	"bytes"
	"slices"

	"github.com/google/uuid"
)

// LockOrder returns ids sorted ascending with duplicates removed. Every
// account locker acquires in this order so two callers touching the same
// accounts never wait on each other in a cycle.
func LockOrder(ids []uuid.UUID) []uuid.UUID {
	out := slices.Clone(ids)
	slices.SortFunc(out, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
	return slices.Compact(out)
}
