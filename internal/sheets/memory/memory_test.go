package memory

import (
	"context"
	"testing"

	"blackout/internal/core"
	"blackout/internal/events"
	"blackout/internal/sheets"
)

func TestAppendRowDeduplicatesEvents(t *testing.T) {
	s := New()
	e := events.New(events.IncomeCreated, core.Record{
		ID: 1, Kind: core.KindIncome, Owner: 1, Value: core.Cents(10000),
		Category: "Salário", Description: "Outubro", Date: core.NewDate(2024, 10, 5),
	}, core.Cents(10000))

	row := sheets.RowFromEvent(e)
	ref1, err := s.AppendRow(context.Background(), row)
	if err != nil {
		t.Fatalf("AppendRow: %v", err)
	}
	ref2, _ := s.AppendRow(context.Background(), row)
	if ref1 != ref2 || ref1 != "mem:1" {
		t.Fatalf("refs %q %q", ref1, ref2)
	}

	rows := s.Rows()
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].Value != "100.00" || rows[0].Balance != "100.00" || rows[0].Date != "2024-10-05" {
		t.Fatalf("unexpected row %+v", rows[0])
	}
	if got := rows[0].Values(); len(got) != len(sheets.Header) {
		t.Fatalf("row has %d cells, header has %d", len(got), len(sheets.Header))
	}
}
