// Package ledger holds the balance consistency engine: every mutation of an
// owner's incomes and expenses goes through Engine, which only commits it
// when the owner's balance stays non-negative afterwards.
package ledger

import (
	"context"
	"fmt"

	"blackout/internal/core"
	"blackout/internal/storage"
)

// Aggregator computes an owner's totals. It reads through the scope it is
// given, so totals computed inside a write scope see that scope's snapshot.
type Aggregator struct{}

func (Aggregator) Totals(ctx context.Context, tx storage.Tx) (core.Totals, error) {
	income, err := tx.Sum(ctx, core.KindIncome)
	if err != nil {
		return core.Totals{}, fmt.Errorf("sum incomes: %w", err)
	}
	expenses, err := tx.Sum(ctx, core.KindExpense)
	if err != nil {
		return core.Totals{}, fmt.Errorf("sum expenses: %w", err)
	}
	return core.NewTotals(income, expenses), nil
}
