// Package sheets mirrors ledger events into a spreadsheet as an append-only
// audit log, one row per committed change.
package sheets

import (
	"context"
	"strconv"
	"time"

	"blackout/internal/events"
)

// Header is the first row of every mirror sheet.
var Header = []any{
	"occurred_at", "event_type", "event_id", "owner_id", "record_id",
	"date", "category", "description", "value", "balance",
}

type Row struct {
	OccurredAt  time.Time
	EventType   string
	EventID     string
	OwnerID     int64
	RecordID    int64
	Date        string
	Category    string
	Description string
	// Value carries the sign of the change's effect on the balance.
	Value   string
	Balance string
}

func RowFromEvent(e events.LedgerEvent) Row {
	return Row{
		OccurredAt:  e.OccurredAt.UTC(),
		EventType:   string(e.Type),
		EventID:     e.EventID,
		OwnerID:     e.OwnerID,
		RecordID:    e.Record.ID,
		Date:        e.Record.Date.String(),
		Category:    e.Record.Category,
		Description: e.Record.Description,
		Value:       e.Signed().String(),
		Balance:     e.Balance.String(),
	}
}

// Values renders the row in Header order.
func (r Row) Values() []any {
	return []any{
		r.OccurredAt.Format(time.RFC3339),
		r.EventType,
		r.EventID,
		strconv.FormatInt(r.OwnerID, 10),
		strconv.FormatInt(r.RecordID, 10),
		r.Date,
		r.Category,
		r.Description,
		r.Value,
		r.Balance,
	}
}

// Mirror is the outbound port of the spreadsheet mirror.
type Mirror interface {
	// AppendRow writes row and returns a reference to where it landed.
	AppendRow(ctx context.Context, row Row) (ref string, err error)
}
