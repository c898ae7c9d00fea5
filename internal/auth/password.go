package auth

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("HashPassword: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash. Only non-mismatch
// failures (e.g. a corrupt hash) are returned as errors.
func CheckPassword(hash, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("CheckPassword: %w", err)
}

// DecoyHash is a real bcrypt hash of a throwaway password at the same cost
// as HashPassword. Comparing against it costs as much as a real check.
var DecoyHash = sync.OnceValue(func() string {
	hash, err := HashPassword("statement-ledger-decoy")
	if err != nil {
		return ""
	}
	return hash
})
