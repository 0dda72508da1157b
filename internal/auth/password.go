// Package auth resolves requests to ledger owners. Passwords are stored as
// bcrypt hashes and sessions are stateless HS256 bearer tokens.
package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a plain-text password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// bcrypt refuses inputs over 72 bytes.
func isTooLong(err error) bool {
	return errors.Is(err, bcrypt.ErrPasswordTooLong)
}
