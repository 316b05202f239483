package timeutil

import (
	"time"
)

// Local is the business time zone used for calendar-day arithmetic (payback days, lateness).
// Defaults to South Africa Standard Time (UTC+2), the gateway's home zone.
var Local *time.Location

func init() {
	var err error
	Local, err = time.LoadLocation("Africa/Johannesburg")
	if err != nil {
		// Fallback: create fixed zone if tzdata is not available
		Local = time.FixedZone("SAST", 2*60*60)
	}
}

// SetLocation switches the business time zone. Unknown names leave the current zone in place.
func SetLocation(name string) error {
	if name == "" {
		return nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return err
	}
	Local = loc
	return nil
}

// Now returns the current time in the business zone
func Now() time.Time {
	return time.Now().In(Local)
}

// ParseDate parses a YYYY-MM-DD date as midnight in the business zone
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, value, Local)
}

// StartOfDay returns the start of day (00:00:00) in the business zone for the given time
func StartOfDay(t time.Time) time.Time {
	l := t.In(Local)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, Local)
}

// DaysLate is the single lateness rule: whole calendar days between the payback day and
// today in the business zone. Paying on the payback day itself is zero days late.
// paybackDay is a calendar date; its own year/month/day are used as-is, so a DATE
// column scanned as UTC midnight and a date parsed in the business zone agree.
func DaysLate(paybackDay, now time.Time) int {
	y, m, d := paybackDay.Date()
	due := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	y, m, d = now.In(Local).Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	// UTC dates so DST shifts never drop or add a day
	days := int(today.Sub(due).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// Common layouts
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05"
	DisplayLayout  = "02 Jan 2006, 03:04 PM"
)
