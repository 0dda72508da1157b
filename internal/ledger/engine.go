package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"blackout/internal/core"
	"blackout/internal/storage"
)

const DefaultMaxAttempts = 3

type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change describes a committed mutation. Totals are the owner's totals
// right after the commit, as computed inside the mutation's scope.
type Change struct {
	Op     Op
	Record core.Record
	Totals core.Totals
}

type Engine struct {
	store       storage.Store
	agg         Aggregator
	maxAttempts int
	pause       time.Duration
	hooks       []func(context.Context, Change)
}

type Option func(*Engine)

// WithMaxAttempts bounds how often a scope is re-run after a storage
// conflict. Values below one are ignored.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithRetryPause sets the upper bound of the random pause between attempts.
func WithRetryPause(d time.Duration) Option {
	return func(e *Engine) { e.pause = d }
}

// WithCommitHook registers fn to run after every committed mutation, before
// the mutating call returns.
func WithCommitHook(fn func(ctx context.Context, c Change)) Option {
	return func(e *Engine) { e.hooks = append(e.hooks, fn) }
}

func NewEngine(store storage.Store, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		maxAttempts: DefaultMaxAttempts,
		pause:       5 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Create validates fields and stores a new record. Expenses are rejected
// with core.ErrInsufficientBalance when they would overdraw the balance.
func (e *Engine) Create(ctx context.Context, owner core.OwnerID, kind core.Kind, fields core.Fields) (core.Record, error) {
	if err := kind.Validate(); err != nil {
		return core.Record{}, err
	}
	fields = fields.Normalize()
	if err := fields.Validate(); err != nil {
		return core.Record{}, err
	}

	var change Change
	err := e.mutate(ctx, owner, func(tx storage.Tx) error {
		totals, err := e.agg.Totals(ctx, tx)
		if err != nil {
			return err
		}
		after, err := totals.Shift(kind, fields.Value)
		if err != nil {
			return err
		}
		// An income can only raise the balance.
		if kind == core.KindExpense {
			if err := checkBalance(after.Balance); err != nil {
				return err
			}
		}

		created, err := tx.Insert(ctx, core.Record{Kind: kind, Owner: owner}.WithFields(fields))
		if err != nil {
			return err
		}
		change = Change{Op: OpCreate, Record: created, Totals: after}
		return nil
	})
	if err != nil {
		return core.Record{}, err
	}
	e.committed(ctx, change)
	return change.Record, nil
}

// Update replaces the fields of an existing record when the balance with the
// old contribution swapped for the new one stays non-negative.
func (e *Engine) Update(ctx context.Context, owner core.OwnerID, kind core.Kind, id int64, fields core.Fields) (core.Record, error) {
	if err := kind.Validate(); err != nil {
		return core.Record{}, err
	}
	fields = fields.Normalize()
	if err := fields.Validate(); err != nil {
		return core.Record{}, err
	}
	if id <= 0 {
		return core.Record{}, fmt.Errorf("%s %d: %w", kind, id, core.ErrNotFound)
	}

	var change Change
	err := e.mutate(ctx, owner, func(tx storage.Tx) error {
		old, err := tx.Get(ctx, kind, id)
		if err != nil {
			return err
		}
		next := old.WithFields(fields)

		totals, err := e.agg.Totals(ctx, tx)
		if err != nil {
			return err
		}
		// b - c(old) + c(new)
		after, err := totals.Shift(kind, next.Value.Sub(old.Value))
		if err != nil {
			return err
		}
		if err := checkBalance(after.Balance); err != nil {
			return err
		}

		updated, err := tx.Update(ctx, next)
		if err != nil {
			return err
		}
		change = Change{Op: OpUpdate, Record: updated, Totals: after}
		return nil
	})
	if err != nil {
		return core.Record{}, err
	}
	e.committed(ctx, change)
	return change.Record, nil
}

// Delete removes a record and returns it. Deleting an income is rejected
// when the remaining incomes no longer cover the expenses.
func (e *Engine) Delete(ctx context.Context, owner core.OwnerID, kind core.Kind, id int64) (core.Record, error) {
	if err := kind.Validate(); err != nil {
		return core.Record{}, err
	}
	if id <= 0 {
		return core.Record{}, fmt.Errorf("%s %d: %w", kind, id, core.ErrNotFound)
	}

	var change Change
	err := e.mutate(ctx, owner, func(tx storage.Tx) error {
		old, err := tx.Get(ctx, kind, id)
		if err != nil {
			return err
		}

		totals, err := e.agg.Totals(ctx, tx)
		if err != nil {
			return err
		}
		after, err := totals.Shift(kind, old.Value.Neg())
		if err != nil {
			return err
		}
		if err := checkBalance(after.Balance); err != nil {
			return err
		}

		found, err := tx.Delete(ctx, kind, id)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%s %d: %w", kind, id, core.ErrNotFound)
		}
		change = Change{Op: OpDelete, Record: old, Totals: after}
		return nil
	})
	if err != nil {
		return core.Record{}, err
	}
	e.committed(ctx, change)
	return change.Record, nil
}

func (e *Engine) List(ctx context.Context, owner core.OwnerID, kind core.Kind) ([]core.Record, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}
	var records []core.Record
	err := e.store.View(ctx, owner, func(tx storage.Tx) error {
		var err error
		records, err = tx.List(ctx, kind)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w: %v", kind, core.ErrPersistence, err)
	}
	return records, nil
}

// Totals reads the owner's totals from one consistent snapshot.
func (e *Engine) Totals(ctx context.Context, owner core.OwnerID) (core.Totals, error) {
	var totals core.Totals
	err := e.store.View(ctx, owner, func(tx storage.Tx) error {
		var err error
		totals, err = e.agg.Totals(ctx, tx)
		return err
	})
	if err != nil {
		return core.Totals{}, fmt.Errorf("totals: %w: %v", core.ErrPersistence, err)
	}
	return totals, nil
}

// mutate runs fn in an owner scope. A storage conflict re-runs the whole
// scope, balance read included; rejections are returned as they are and any
// other failure becomes core.ErrPersistence.
func (e *Engine) mutate(ctx context.Context, owner core.OwnerID, fn func(tx storage.Tx) error) error {
	var err error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		err = e.store.WithinOwner(ctx, owner, fn)
		switch {
		case err == nil:
			return nil
		case core.IsRejection(err):
			return err
		case errors.Is(err, storage.ErrConflict):
			slog.WarnContext(ctx, "Ledger scope conflict, retrying",
				"owner_id", int64(owner), "attempt", attempt, "error", err)
			if attempt < e.maxAttempts {
				if werr := e.wait(ctx); werr != nil {
					return fmt.Errorf("%w: %v", core.ErrPersistence, werr)
				}
			}
		default:
			return fmt.Errorf("%w: %v", core.ErrPersistence, err)
		}
	}
	return fmt.Errorf("%w: conflict persisted after %d attempts: %v", core.ErrPersistence, e.maxAttempts, err)
}

func (e *Engine) committed(ctx context.Context, c Change) {
	for _, hook := range e.hooks {
		hook(ctx, c)
	}
}

func (e *Engine) wait(ctx context.Context) error {
	if e.pause <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(rand.N(e.pause) + 1)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func checkBalance(after core.Money) error {
	if after.IsNegative() {
		return fmt.Errorf("%w (resulting balance %s)", core.ErrInsufficientBalance, after)
	}
	return nil
}
