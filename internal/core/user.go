package core

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

type User struct {
	ID           OwnerID
	Name         string
	Email        string
	PhoneNumber  string
	DateOfBirth  Date
	PasswordHash string
	CreatedAt    time.Time
}

var (
	ErrEmptyName    = fmt.Errorf("%w: name is required", ErrValidation)
	ErrInvalidEmail = fmt.Errorf("%w: invalid email", ErrValidation)
	ErrWeakPassword = fmt.Errorf("%w: password must have at least 6 characters", ErrValidation)
)

// NormalizeEmail lower-cases and trims an address so lookups are case-insensitive.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidateRegistration checks the user-supplied part of a registration.
func ValidateRegistration(name, email, password string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return ErrInvalidEmail
	}
	if len(password) < 6 {
		return ErrWeakPassword
	}
	return nil
}
