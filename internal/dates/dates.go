// Package dates normalizes the raw date encodings seen in LiveOps
// schedule sources into a canonical calendar date.
package dates

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidDate reports a raw value that none of the supported
// date forms could parse.
var ErrInvalidDate = errors.New("invalid date")

// Date is a calendar date with no time-of-day. Month is 1-12.
type Date struct {
	Year  int
	Month int
	Day   int
}

// DateOf truncates a time.Time to its calendar date.
func DateOf(t time.Time) Date {
	return Date{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}
}

// String renders the date as ISO YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Time returns the date at midnight UTC.
func (d Date) Time() time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
}

// Before reports whether d is earlier than other.
func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// IsZero reports whether d is the zero date.
func (d Date) IsZero() bool {
	return d == Date{}
}

// MarshalJSON encodes the date as an ISO string.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON decodes an ISO YYYY-MM-DD string.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed, err := ParseISO(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseISO parses a strict YYYY-MM-DD string.
func ParseISO(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("parse iso date %q: %w", s, ErrInvalidDate)
	}
	return DateOf(t), nil
}

// Spreadsheet serials count days with day 1 = 1899-12-31 and a phantom
// 1900-02-29 at day 60, so the effective base for modern serials is
// 1899-12-30. Serials this code sees are always well past day 60.
var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// maxSerial keeps absurd numeric cells (years past 9999) out of the store.
const maxSerial = 2958465

var shortForm = regexp.MustCompile(`^(\d{1,2})\s+([A-Za-z]{3})(?:\s*,\s*[A-Za-z.]+)?$`)

var monthAbbrev = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

// Layouts tried for the generic form. Slash dates are month-first; a
// day-first slash date with day <= 12 is indistinguishable and parses
// as month-first. Known limitation.
var genericLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"1/2/2006",
	"1-2-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
}

// Normalize converts one raw date representation into a Date. Three
// forms are tried in order, first success wins:
//
//  1. spreadsheet serial: a numeric value (or all-digit string) > 1000
//  2. weekday-annotated short form: "<day> <Mon>[, <weekday>]" with the
//     year taken from refYear (the form encodes no year)
//  3. generic calendar string: ISO, slash (month-first), "Mon D, YYYY"
//
// Failure is reported as ErrInvalidDate, never a panic.
func Normalize(raw any, refYear int) (Date, error) {
	switch v := raw.(type) {
	case float64:
		return fromSerial(v)
	case int:
		return fromSerial(float64(v))
	case int64:
		return fromSerial(float64(v))
	case string:
		return normalizeString(v, refYear)
	case nil:
		return Date{}, ErrInvalidDate
	default:
		return Date{}, fmt.Errorf("unsupported raw type %T: %w", raw, ErrInvalidDate)
	}
}

func fromSerial(serial float64) (Date, error) {
	days := int(serial)
	if days <= 1000 || days > maxSerial {
		return Date{}, fmt.Errorf("serial %v out of range: %w", serial, ErrInvalidDate)
	}
	return DateOf(serialEpoch.AddDate(0, 0, days)), nil
}

func normalizeString(raw string, refYear int) (Date, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Date{}, ErrInvalidDate
	}

	// CSV exports of spreadsheet data carry serials as bare digit runs.
	if isDigits(s) {
		if n, err := strconv.ParseFloat(s, 64); err == nil && n > 1000 {
			return fromSerial(n)
		}
	}

	if m := shortForm.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, ok := monthAbbrev[strings.ToLower(m[2])]
		if ok {
			d := Date{Year: refYear, Month: month, Day: day}
			if d.valid() {
				return d, nil
			}
		}
		return Date{}, fmt.Errorf("short form %q: %w", raw, ErrInvalidDate)
	}

	for _, layout := range genericLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}

	return Date{}, fmt.Errorf("unrecognized date %q: %w", raw, ErrInvalidDate)
}

// valid reports whether the day exists in the month (Gregorian).
func (d Date) valid() bool {
	if d.Month < 1 || d.Month > 12 || d.Day < 1 {
		return false
	}
	return d.Time().Day() == d.Day
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
