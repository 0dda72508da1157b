// Package events carries committed ledger changes to other processes. Events
// are published after the commit and on a best-effort basis: a transport
// failure never undoes or fails the mutation that produced the event.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"blackout/internal/core"

	"github.com/google/uuid"
)

type Type string

const (
	IncomeCreated  Type = "income.created"
	IncomeUpdated  Type = "income.updated"
	IncomeDeleted  Type = "income.deleted"
	ExpenseCreated Type = "expense.created"
	ExpenseUpdated Type = "expense.updated"
	ExpenseDeleted Type = "expense.deleted"
)

// TypeOf names the event for an operation ("created", "updated" or
// "deleted") on a record kind.
func TypeOf(kind core.Kind, op string) Type {
	return Type(fmt.Sprintf("%s.%s", kind, op))
}

// RecordPayload is the record as it appears on the wire.
type RecordPayload struct {
	ID          int64      `json:"id"`
	Kind        core.Kind  `json:"kind"`
	Value       core.Money `json:"value"`
	Category    string     `json:"category"`
	Description string     `json:"description"`
	Date        core.Date  `json:"date"`
}

type LedgerEvent struct {
	EventID    string        `json:"event_id"`
	Type       Type          `json:"type"`
	OwnerID    int64         `json:"owner_id"`
	Record     RecordPayload `json:"record"`
	Balance    core.Money    `json:"balance"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// New builds an event for rec. balance is the owner's balance right after
// the change.
func New(t Type, rec core.Record, balance core.Money) LedgerEvent {
	return LedgerEvent{
		EventID: uuid.NewString(),
		Type:    t,
		OwnerID: int64(rec.Owner),
		Record: RecordPayload{
			ID:          rec.ID,
			Kind:        rec.Kind,
			Value:       rec.Value,
			Category:    rec.Category,
			Description: rec.Description,
			Date:        rec.Date,
		},
		Balance:    balance,
		OccurredAt: time.Now().UTC(),
	}
}

// Signed returns the record value with the sign of its effect on the balance.
// Deleting a record reverses its effect.
func (e LedgerEvent) Signed() core.Money {
	v := e.Record.Kind.Contribution(e.Record.Value)
	if e.Type == TypeOf(e.Record.Kind, "deleted") {
		return v.Neg()
	}
	return v
}

func (e LedgerEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func Unmarshal(data []byte) (LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return LedgerEvent{}, fmt.Errorf("decode ledger event: %w", err)
	}
	if e.EventID == "" || e.Type == "" {
		return LedgerEvent{}, fmt.Errorf("decode ledger event: missing id or type")
	}
	return e, nil
}

type Publisher interface {
	Publish(ctx context.Context, e LedgerEvent) error
	Close() error
}

// Handler processes one event. Returning an error asks the transport to
// deliver the event again.
type Handler func(ctx context.Context, e LedgerEvent) error

type Consumer interface {
	Consume(ctx context.Context, h Handler) error
	Close() error
}

// Noop drops every event. It is used when no transport is configured.
type Noop struct{}

func (Noop) Publish(context.Context, LedgerEvent) error { return nil }
func (Noop) Close() error                               { return nil }
