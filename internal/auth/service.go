package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"blackout/internal/core"
	"blackout/internal/storage"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = fmt.Errorf("%w: email already registered", core.ErrValidation)
	ErrMissingBirthDate   = fmt.Errorf("%w: dateOfBirth is required", core.ErrValidation)
	ErrMissingPhone       = fmt.Errorf("%w: phoneNumber is required", core.ErrValidation)
)

// Registration is the payload of a new account.
type Registration struct {
	Name        string
	DateOfBirth string
	PhoneNumber string
	Email       string
	Password    string
}

// Service registers users and exchanges credentials for tokens.
type Service struct {
	users  storage.UserStore
	tokens *Tokens
}

func NewService(users storage.UserStore, tokens *Tokens) *Service {
	return &Service{users: users, tokens: tokens}
}

// Tokens returns the token issuer used for logins.
func (s *Service) Tokens() *Tokens {
	return s.tokens
}

func (s *Service) Register(ctx context.Context, reg Registration) (core.User, error) {
	if err := core.ValidateRegistration(reg.Name, reg.Email, reg.Password); err != nil {
		return core.User{}, err
	}
	if strings.TrimSpace(reg.DateOfBirth) == "" {
		return core.User{}, ErrMissingBirthDate
	}
	dob, err := core.ParseDate(reg.DateOfBirth)
	if err != nil {
		return core.User{}, err
	}
	if strings.TrimSpace(reg.PhoneNumber) == "" {
		return core.User{}, ErrMissingPhone
	}

	hash, err := HashPassword(reg.Password)
	if err != nil {
		if isTooLong(err) {
			return core.User{}, fmt.Errorf("%w: %v", core.ErrValidation, err)
		}
		return core.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, core.User{
		Name:         strings.TrimSpace(reg.Name),
		Email:        core.NormalizeEmail(reg.Email),
		PhoneNumber:  strings.TrimSpace(reg.PhoneNumber),
		DateOfBirth:  dob,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	})
	if errors.Is(err, storage.ErrEmailTaken) {
		return core.User{}, ErrEmailTaken
	}
	if err != nil {
		return core.User{}, fmt.Errorf("%w: create user: %v", core.ErrPersistence, err)
	}
	return user, nil
}

// Login verifies the credentials and issues a token. Unknown emails and wrong
// passwords fail the same way.
func (s *Service) Login(ctx context.Context, email, password string) (string, time.Time, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, core.ErrNotFound) {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: load user: %v", core.ErrPersistence, err)
	}
	if !CheckPassword(user.PasswordHash, password) {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return s.tokens.Issue(user.ID)
}
