package http

import (
	"time"

	"blackout/internal/core"
)

type recordView struct {
	ID          int64      `json:"id"`
	Value       core.Money `json:"value"`
	Category    string     `json:"category"`
	Description string     `json:"description"`
	Date        core.Date  `json:"date"`
	OwnerID     int64      `json:"ownerId"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func newRecordView(r core.Record) recordView {
	return recordView{
		ID:          r.ID,
		Value:       r.Value,
		Category:    r.Category,
		Description: r.Description,
		Date:        r.Date,
		OwnerID:     int64(r.Owner),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func newRecordViews(records []core.Record) []recordView {
	views := make([]recordView, 0, len(records))
	for _, r := range records {
		views = append(views, newRecordView(r))
	}
	return views
}

// totalsView keeps "saldoAtual", the balance field name older clients read.
type totalsView struct {
	TotalIncome   core.Money `json:"totalIncome"`
	TotalExpenses core.Money `json:"totalExpenses"`
	Balance       core.Money `json:"balance"`
	SaldoAtual    core.Money `json:"saldoAtual"`
}

func newTotalsView(t core.Totals) totalsView {
	return totalsView{
		TotalIncome:   t.TotalIncome,
		TotalExpenses: t.TotalExpenses,
		Balance:       t.Balance,
		SaldoAtual:    t.Balance,
	}
}

type userView struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type tokenView struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// collectionName is the list key for a kind: "incomes" or "expenses".
func collectionName(kind core.Kind) string {
	if kind == core.KindIncome {
		return "incomes"
	}
	return "expenses"
}
