package util

import (
	"fmt"
	"time"
	_ "time/tzdata" // session timezones must resolve on hosts without zoneinfo
)

// SessionCalendar knows the daily close time of a trading session. A trading
// day D runs from just after the close on the previous trading date up to and
// including the close on D, so night-session bars roll into the next day.
type SessionCalendar struct {
	hour, minute int
	loc          *time.Location
}

// NewSessionCalendar parses closeHHMM ("13:45") and the IANA timezone tz. An
// empty tz means UTC.
func NewSessionCalendar(closeHHMM, tz string) (*SessionCalendar, error) {
	ct, err := time.Parse("15:04", closeHHMM)
	if err != nil {
		return nil, fmt.Errorf("parsing close time %q: %w", closeHHMM, err)
	}

	loc := time.UTC
	if tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("loading timezone %q: %w", tz, err)
		}
	}

	return &SessionCalendar{hour: ct.Hour(), minute: ct.Minute(), loc: loc}, nil
}

// Location returns the calendar's timezone.
func (c *SessionCalendar) Location() *time.Location { return c.loc }

// Date truncates t to midnight of its calendar date in the session timezone.
func (c *SessionCalendar) Date(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}

// CloseOn returns the session close instant on the calendar date of day.
func (c *SessionCalendar) CloseOn(day time.Time) time.Time {
	d := day.In(c.loc)
	return time.Date(d.Year(), d.Month(), d.Day(), c.hour, c.minute, 0, 0, c.loc)
}

// IsClose reports whether t is stamped exactly at the session close.
func (c *SessionCalendar) IsClose(t time.Time) bool {
	return t.Equal(c.CloseOn(t))
}

// AfterClose reports whether t falls later in its day than the close time.
func (c *SessionCalendar) AfterClose(t time.Time) bool {
	return t.After(c.CloseOn(t))
}
