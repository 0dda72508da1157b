package core

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{"12.344", 1234, true},
		{"12.345", 1235, true},
		{" 2.50 ", 250, true},
		{"120.50", 12050, true},
		{"-1", 0, false},
		{"0", 0, false},
		{"0.004", 0, false}, // rounds to zero
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseMoney(tc.in)
		if err == nil {
			err = got.Validate()
		}
		if tc.ok {
			if err != nil || got.Cents != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got.Cents, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
	if err := (Money{Cents: -5}).Validate(); err == nil {
		t.Fatalf("expected error for negative")
	}
}

func TestMoneyJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		V Money `json:"v"`
	}{V: Cents(12050)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"v":120.50}` {
		t.Fatalf("unexpected encoding %s", b)
	}

	for in, want := range map[string]int64{
		`3500`:     350000,
		`120.5`:    12050,
		`"120,50"`: 12050,
		`0.015`:    2,
		`-10`:      -1000,
	} {
		var m Money
		if err := json.Unmarshal([]byte(in), &m); err != nil {
			t.Fatalf("%s: unexpected error %v", in, err)
		}
		if m.Cents != want {
			t.Fatalf("%s: got %d cents, want %d", in, m.Cents, want)
		}
	}

	var m Money
	if err := json.Unmarshal([]byte(`null`), &m); err == nil {
		t.Fatalf("expected error for null")
	}
	if err := json.Unmarshal([]byte(`"ten"`), &m); err == nil {
		t.Fatalf("expected error for text")
	}
}

func TestTotalsBalance(t *testing.T) {
	tot := NewTotals(Cents(360000), Cents(12050))
	if tot.Balance.Cents != 347950 {
		t.Fatalf("balance = %d", tot.Balance.Cents)
	}
	if tot.Balance.String() != "3479.50" {
		t.Fatalf("balance string = %s", tot.Balance.String())
	}
	if after, err := tot.Shift(KindExpense, Cents(347951)); err != nil || !after.Balance.IsNegative() {
		t.Fatalf("expected negative hypothetical balance, got %+v (err=%v)", after, err)
	}
	if got, err := tot.Shift(KindIncome, Cents(-10000)); err != nil || got.TotalIncome.Cents != 350000 || got.Balance.Cents != 337950 {
		t.Fatalf("unexpected shifted totals %+v (err=%v)", got, err)
	}
}

func TestTotalsShiftCeiling(t *testing.T) {
	near := NewTotals(Cents(maxTotalCents-maxCents+1), Cents(0))
	if _, err := near.Shift(KindIncome, Cents(maxCents)); !errors.Is(err, ErrTotalTooLarge) {
		t.Fatalf("expected ErrTotalTooLarge, got %v", err)
	}
	if !errors.Is(ErrTotalTooLarge, ErrValidation) {
		t.Fatalf("ErrTotalTooLarge must classify as a validation error")
	}
	if got, err := near.Shift(KindIncome, Cents(maxCents-1)); err != nil || got.TotalIncome.Cents != maxTotalCents {
		t.Fatalf("expected sum at the ceiling, got %+v (err=%v)", got, err)
	}
}

func TestCheckedAddOverflow(t *testing.T) {
	cases := []struct {
		a, b int64
	}{
		{math.MaxInt64, 1},
		{math.MinInt64, -1},
		{maxTotalCents, 1},
		{-maxTotalCents, -1},
	}
	for _, tc := range cases {
		if _, err := Cents(tc.a).CheckedAdd(Cents(tc.b)); !errors.Is(err, ErrTotalTooLarge) {
			t.Fatalf("%d + %d: expected ErrTotalTooLarge, got %v", tc.a, tc.b, err)
		}
	}
	if got, err := Cents(12050).CheckedAdd(Cents(-50)); err != nil || got.Cents != 12000 {
		t.Fatalf("expected 12000, got %d (err=%v)", got.Cents, err)
	}
}

func TestParseMoneyRejectsExtremeExponents(t *testing.T) {
	inputs := []string{
		"1e200000000",
		"1e-200000000",
		"1E16",
		"1e-11",
		"0.000000000001",
		strings.Repeat("9", maxAmountLength+1),
	}
	for _, in := range inputs {
		done := make(chan error, 1)
		go func() {
			var m Money
			done <- json.Unmarshal([]byte(`{"v":`+in+`}`), &struct {
				V *Money `json:"v"`
			}{V: &m})
		}()
		select {
		case err := <-done:
			if !errors.Is(err, ErrInvalidAmount) {
				t.Fatalf("%q: expected ErrInvalidAmount, got %v", in, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("%q: parsing did not return", in)
		}
	}
	if m, err := ParseMoney("1.5e2"); err != nil || m.Cents != 15000 {
		t.Fatalf("expected 150.00, got %d (err=%v)", m.Cents, err)
	}
}
