package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt work factor for stored password hashes.
const PasswordCost = 12

// MinPasswordLength is enforced when hashing.
const MinPasswordLength = 12

// ErrInvalidCredentials is returned for any failed password check, whatever
// the cause, so callers cannot leak which part was wrong.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrPasswordTooShort is returned by HashPassword for passwords under
// MinPasswordLength.
var ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", MinPasswordLength)

// HashPassword returns a bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares password with a stored hash. A nil hash (SSO-only
// profile) never matches.
func CheckPassword(hash *string, password string) error {
	if hash == nil || *hash == "" {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
