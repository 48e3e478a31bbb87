package slots

import "time"

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"

	LongDateLayout = "January 2, 2006"
	ClockLayout    = "3:04 PM"

	// RawLayout is how the booking source renders a slot, e.g. "4/22/2026 2:15:00 PM".
	RawLayout = "1/2/2006 3:04:05 PM"
)

type Category string

const (
	CategoryGolden Category = "golden"
	CategoryFuture Category = "future"
)

// Slot is a single opening. Date is always midnight UTC.
type Slot struct {
	Date time.Time
	Time string
}

func (s Slot) DateString() string {
	return s.Date.Format(DateLayout)
}

// Key identifies a golden slot by exact date and time.
func (s Slot) Key() string {
	return s.DateString() + " " + s.Time
}

func (s Slot) LongDate() string {
	return s.Date.Format(LongDateLayout)
}

// Clock renders the time on a 12-hour clock, falling back to the stored
// value when it is not HH:MM[:SS].
func (s Slot) Clock() string {
	for _, layout := range []string{TimeLayout, "15:04"} {
		if t, err := time.Parse(layout, s.Time); err == nil {
			return t.Format(ClockLayout)
		}
	}
	return s.Time
}

type Observation struct {
	Office   string
	Slot     Slot
	Category Category
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}
