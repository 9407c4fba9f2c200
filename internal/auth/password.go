package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// MinimumPasswordLength is the shortest password accepted at signup.
const MinimumPasswordLength = 6

var (
	// ErrPasswordTooShort is returned when a password is below MinimumPasswordLength.
	ErrPasswordTooShort = errors.New("auth: password must be at least 6 characters")
	// ErrPasswordMismatch is returned when a password does not match its stored hash.
	ErrPasswordMismatch = errors.New("auth: password mismatch")
)

// PasswordHasher hashes and verifies passwords with bcrypt.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher constructs a hasher; a cost outside bcrypt's range falls back to the default.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash returns the bcrypt hash of password.
func (h *PasswordHasher) Hash(password string) (string, error) {
	if len(password) < MinimumPasswordLength {
		return "", ErrPasswordTooShort
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Compare reports ErrPasswordMismatch when password does not produce hash.
func (h *PasswordHasher) Compare(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return err
}
