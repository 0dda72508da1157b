package core

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-11-25")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Year() != 2024 || d.Month() != time.November || d.Day() != 25 {
		t.Fatalf("unexpected date %v", d)
	}
	if _, err := ParseDate("2024-11-25T10:00:00Z"); err != nil {
		t.Fatalf("expected timestamp suffix to be tolerated, got %v", err)
	}
	if _, err := ParseDate("25/11/2024"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	var wrapped struct {
		D Date `json:"d"`
	}
	if err := json.Unmarshal([]byte(`{"d":"2024-11-01"}`), &wrapped); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	b, _ := json.Marshal(wrapped)
	if string(b) != `{"d":"2024-11-01"}` {
		t.Fatalf("round trip produced %s", b)
	}
}

func TestFieldsValidate(t *testing.T) {
	good := Fields{
		Value:       Cents(100),
		Category:    "Alimentação",
		Description: "Almoço",
		Date:        NewDate(2024, 11, 25),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := map[string]Fields{
		"zero value":       good.withValue(0),
		"negative value":   good.withValue(-1),
		"empty category":   {Value: Cents(1), Category: " ", Description: "a", Date: NewDate(2025, 1, 1)},
		"long category":    {Value: Cents(1), Category: strings.Repeat("c", MaxCategoryLength+1), Description: "a", Date: NewDate(2025, 1, 1)},
		"empty desc":       {Value: Cents(1), Category: "c", Description: "", Date: NewDate(2025, 1, 1)},
		"long desc":        {Value: Cents(1), Category: "c", Description: strings.Repeat("d", MaxDescriptionLength+1), Date: NewDate(2025, 1, 1)},
		"zero date":        {Value: Cents(1), Category: "c", Description: "a"},
	}
	for name, f := range bads {
		err := f.Validate()
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected ErrValidation, got %v", name, err)
		}
	}
}

func (f Fields) withValue(c int64) Fields {
	f.Value = Cents(c)
	return f
}

func TestContribution(t *testing.T) {
	inc := Record{Kind: KindIncome, Value: Cents(500)}
	exp := Record{Kind: KindExpense, Value: Cents(500)}
	if inc.Contribution().Cents != 500 {
		t.Fatalf("income contribution = %d", inc.Contribution().Cents)
	}
	if exp.Contribution().Cents != -500 {
		t.Fatalf("expense contribution = %d", exp.Contribution().Cents)
	}
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind("Income"); err != nil || k != KindIncome {
		t.Fatalf("got %v, %v", k, err)
	}
	if k, err := ParseKind("expense"); err != nil || k != KindExpense {
		t.Fatalf("got %v, %v", k, err)
	}
	if _, err := ParseKind("transfer"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
