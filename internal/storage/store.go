// Package storage defines the record store the ledger runs against and the
// SQLite implementation of it.
//
// Every mutation of an owner's records happens inside a WithinOwner scope.
// A scope is atomic (all writes commit or none do) and serialized against
// every other scope of the same owner, so a balance read at the start of a
// scope is still the balance when its writes commit.
package storage

import (
	"context"
	"errors"
	"fmt"

	"blackout/internal/core"
)

var (
	// ErrConflict reports that a scope could not be serialized and may be
	// retried from the beginning.
	ErrConflict = errors.New("storage: transaction conflict")

	ErrEmailTaken = errors.New("storage: email already registered")
	ErrReadOnly   = errors.New("storage: write in read-only scope")
)

// Store is the transactional record store.
type Store interface {
	// WithinOwner runs fn in an atomic scope serialized per owner. The scope
	// commits when fn returns nil and rolls back otherwise.
	WithinOwner(ctx context.Context, owner core.OwnerID, fn func(tx Tx) error) error

	// View runs fn against a consistent read-only snapshot of the owner's
	// records.
	View(ctx context.Context, owner core.OwnerID, fn func(tx Tx) error) error

	Users() UserStore
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the owner-bound view of the records inside a scope. Records of other
// owners are never visible through it.
type Tx interface {
	Get(ctx context.Context, kind core.Kind, id int64) (core.Record, error)
	List(ctx context.Context, kind core.Kind) ([]core.Record, error)
	Insert(ctx context.Context, r core.Record) (core.Record, error)
	Update(ctx context.Context, r core.Record) (core.Record, error)
	Delete(ctx context.Context, kind core.Kind, id int64) (bool, error)
	Sum(ctx context.Context, kind core.Kind) (core.Money, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, u core.User) (core.User, error)
	GetUserByEmail(ctx context.Context, email string) (core.User, error)
	GetUserByID(ctx context.Context, id core.OwnerID) (core.User, error)
}

// TableName maps a record kind to the table (or collection) holding it.
func TableName(kind core.Kind) (string, error) {
	switch kind {
	case core.KindIncome:
		return "incomes", nil
	case core.KindExpense:
		return "expenses", nil
	}
	return "", fmt.Errorf("table for %q: %w", kind, core.ErrInvalidKind)
}
