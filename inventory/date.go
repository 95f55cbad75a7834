package inventory

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// DATE - Calendar date without time of day
// =============================================================================

// DateLayout is the wire and storage format of a Date.
const DateLayout = "2006-01-02"

// Date is a calendar day. It is always held at UTC midnight so that a sale's
// date and a ledger entry's date compare equal regardless of the caller's zone.
type Date struct {
	t time.Time
}

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func Today() Date { return DateOf(time.Now()) }

// ParseDate parses a YYYY-MM-DD string. A full RFC 3339 timestamp is accepted
// too and truncated to its date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return DateOf(t), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DateOf(t), nil
	}
	return Date{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
}

// MustParseDate panics on malformed input. Intended for tests and fixtures.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Date) Before(other Date) bool        { return d.t.Before(other.t) }
func (d Date) After(other Date) bool         { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool         { return d.t.Equal(other.t) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) Time() time.Time    { return d.t }
func (d Date) IsZero() bool       { return d.t.IsZero() }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(DateLayout)
}

// =============================================================================
// ENCODING
// =============================================================================

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
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

// Value stores the date as YYYY-MM-DD text. Postgres DATE columns accept it as well.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		*d = NewDate(v.Year(), v.Month(), v.Day())
		return nil
	case string:
		return d.scanString(v)
	case []byte:
		return d.scanString(string(v))
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
}

func (d *Date) scanString(s string) error {
	if len(s) >= len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
