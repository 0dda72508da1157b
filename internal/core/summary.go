package core

// Totals is the dashboard view of one owner's ledger.
type Totals struct {
	TotalIncome   Money
	TotalExpenses Money
	Balance       Money
}

// NewTotals derives the balance from the two sums.
func NewTotals(income, expenses Money) Totals {
	return Totals{
		TotalIncome:   income,
		TotalExpenses: expenses,
		Balance:       income.Sub(expenses),
	}
}

// Shift returns the totals with the sum of kind moved by delta. A positive
// delta on incomes raises the balance, on expenses it lowers it. A sum
// pushed past the total ceiling fails with ErrTotalTooLarge.
func (t Totals) Shift(kind Kind, delta Money) (Totals, error) {
	if kind == KindIncome {
		income, err := t.TotalIncome.CheckedAdd(delta)
		if err != nil {
			return Totals{}, err
		}
		return NewTotals(income, t.TotalExpenses), nil
	}
	expenses, err := t.TotalExpenses.CheckedAdd(delta)
	if err != nil {
		return Totals{}, err
	}
	return NewTotals(t.TotalIncome, expenses), nil
}
