package domain

import "time"

const dayLayout = "2006-01-02"

// Day is a calendar-day marker in the caller's local time zone.
// Daily quota bookkeeping uses Day equality, never sub-day precision.
type Day string

// DayOf truncates a timestamp to its local calendar day.
func DayOf(t time.Time) Day {
	return Day(t.Format(dayLayout))
}

// Today returns the current local calendar day.
func Today() Day {
	return DayOf(time.Now())
}

func (d Day) IsZero() bool {
	return d == ""
}

func (d Day) String() string {
	return string(d)
}

// Time parses the day back to midnight local time. Returns the zero time
// for an unset or malformed day.
func (d Day) Time() time.Time {
	t, err := time.ParseInLocation(dayLayout, string(d), time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}
