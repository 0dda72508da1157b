package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

const (
	MaxCategoryLength    = 100
	MaxDescriptionLength = 200

	dateLayout = "2006-01-02"
)

type (
	// Kind distinguishes the two record collections.
	Kind string

	// OwnerID identifies the user a record belongs to.
	OwnerID int64

	Date struct {
		time.Time
	}

	// Fields are the replaceable attributes of a record.
	Fields struct {
		Value       Money
		Category    string
		Description string
		Date        Date
	}

	Record struct {
		ID          int64
		Kind        Kind
		Owner       OwnerID
		Value       Money
		Category    string
		Description string
		Date        Date
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}
)

var (
	ErrInvalidKind      = fmt.Errorf("%w: invalid record kind", ErrValidation)
	ErrInvalidDate      = fmt.Errorf("%w: invalid date", ErrValidation)
	ErrEmptyCategory    = fmt.Errorf("%w: empty category", ErrValidation)
	ErrCategoryTooLong  = fmt.Errorf("%w: category too long (max %d characters)", ErrValidation, MaxCategoryLength)
	ErrEmptyDescription = fmt.Errorf("%w: empty description", ErrValidation)
	ErrDescriptionLong  = fmt.Errorf("%w: description too long (max %d characters)", ErrValidation, MaxDescriptionLength)
)

// ParseKind accepts the singular collection names used in URLs.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindIncome:
		return KindIncome, nil
	case KindExpense:
		return KindExpense, nil
	}
	return "", ErrInvalidKind
}

// UnmarshalText rejects unknown kinds when decoding events and rows.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func (k Kind) Validate() error {
	if k != KindIncome && k != KindExpense {
		return ErrInvalidKind
	}
	return nil
}

func (k Kind) String() string {
	return string(k)
}

// Contribution returns the signed effect a value of this kind has on the balance.
func (k Kind) Contribution(v Money) Money {
	if k == KindExpense {
		return v.Neg()
	}
	return v
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a calendar date in YYYY-MM-DD format. A trailing time
// component (RFC 3339) is tolerated and dropped.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(dateLayout) && s[len(dateLayout)] == 'T' {
		s = s[:len(dateLayout)]
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return ErrInvalidDate
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Normalize trims free-text fields.
func (f Fields) Normalize() Fields {
	f.Category = strings.TrimSpace(f.Category)
	f.Description = strings.TrimSpace(f.Description)
	return f
}

func (f Fields) Validate() error {
	if err := f.Value.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(f.Category) == "" {
		return ErrEmptyCategory
	}
	if len([]rune(f.Category)) > MaxCategoryLength {
		return ErrCategoryTooLong
	}
	if strings.TrimSpace(f.Description) == "" {
		return ErrEmptyDescription
	}
	if len([]rune(f.Description)) > MaxDescriptionLength {
		return ErrDescriptionLong
	}
	return f.Date.Validate()
}

// Fields returns the replaceable part of the record.
func (r Record) Fields() Fields {
	return Fields{
		Value:       r.Value,
		Category:    r.Category,
		Description: r.Description,
		Date:        r.Date,
	}
}

// WithFields returns a copy of r with the replaceable attributes swapped out.
// Identity (id, kind, owner) is kept.
func (r Record) WithFields(f Fields) Record {
	r.Value = f.Value
	r.Category = f.Category
	r.Description = f.Description
	r.Date = f.Date
	return r
}

// Contribution is the signed effect this record has on its owner's balance.
func (r Record) Contribution() Money {
	return r.Kind.Contribution(r.Value)
}

func (r Record) Validate() error {
	if err := r.Kind.Validate(); err != nil {
		return err
	}
	if r.Owner <= 0 {
		return errors.New("record has no owner")
	}
	return r.Fields().Validate()
}
