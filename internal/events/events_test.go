package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"blackout/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() core.Record {
	return core.Record{
		ID:          9,
		Kind:        core.KindExpense,
		Owner:       3,
		Value:       core.Cents(12050),
		Category:    "Alimentação",
		Description: "Mercado",
		Date:        core.NewDate(2024, 11, 25),
	}
}

func TestEventWireFormat(t *testing.T) {
	e := New(ExpenseCreated, sampleRecord(), core.Cents(347950))
	require.NotEmpty(t, e.EventID)

	data, err := e.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"expense.created"`)
	assert.Contains(t, string(data), `"value":120.50`)
	assert.Contains(t, string(data), `"balance":3479.50`)
	assert.Contains(t, string(data), `"date":"2024-11-25"`)

	back, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, e.EventID, back.EventID)
	assert.Equal(t, int64(12050), back.Record.Value.Cents)
	assert.Equal(t, int64(3), back.OwnerID)

	_, err = Unmarshal([]byte(`{"type":"income.created"}`))
	assert.Error(t, err)

	_, err = Unmarshal([]byte(`{"event_id":"x","type":"income.created","record":{"kind":"transfer"}}`))
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestSigned(t *testing.T) {
	rec := sampleRecord()
	assert.Equal(t, int64(-12050), New(ExpenseCreated, rec, core.Money{}).Signed().Cents)
	assert.Equal(t, int64(12050), New(ExpenseDeleted, rec, core.Money{}).Signed().Cents)

	rec.Kind = core.KindIncome
	assert.Equal(t, IncomeUpdated, TypeOf(core.KindIncome, "updated"))
	assert.Equal(t, int64(12050), New(IncomeUpdated, rec, core.Money{}).Signed().Cents)
}

func TestChannelRedeliversUntilHandled(t *testing.T) {
	bus := NewChannel(4)
	bus.RetryPause = time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, bus.Publish(ctx, New(IncomeCreated, sampleRecord(), core.Money{})))

	attempts := 0
	err := bus.Consume(ctx, func(ctx context.Context, e LedgerEvent) error {
		attempts++
		if attempts < 3 {
			return errors.New("mirror unavailable")
		}
		bus.Close()
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)

	assert.ErrorIs(t, bus.Publish(ctx, New(IncomeCreated, sampleRecord(), core.Money{})), ErrClosed)
}

func TestChannelDropsAfterMaxAttempts(t *testing.T) {
	bus := NewChannel(4)
	bus.RetryPause = time.Millisecond
	bus.MaxAttempts = 3
	var dropped []string
	bus.OnDrop = func(e LedgerEvent, err error) { dropped = append(dropped, e.EventID) }
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	poisoned := New(IncomeCreated, sampleRecord(), core.Money{})
	next := New(ExpenseCreated, sampleRecord(), core.Money{})
	require.NoError(t, bus.Publish(ctx, poisoned))
	require.NoError(t, bus.Publish(ctx, next))

	attempts := map[string]int{}
	err := bus.Consume(ctx, func(ctx context.Context, e LedgerEvent) error {
		attempts[e.EventID]++
		if e.EventID == poisoned.EventID {
			return errors.New("mirror rejects row")
		}
		bus.Close()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts[poisoned.EventID])
	assert.Equal(t, 1, attempts[next.EventID])
	assert.Equal(t, []string{poisoned.EventID}, dropped)
}

func TestChannelPublishFailsFastWhenFull(t *testing.T) {
	bus := NewChannel(1)
	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, New(IncomeCreated, sampleRecord(), core.Money{})))

	start := time.Now()
	err := bus.Publish(ctx, New(IncomeCreated, sampleRecord(), core.Money{}))
	assert.ErrorIs(t, err, ErrBufferFull)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}
