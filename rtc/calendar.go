package rtc

import "time"

// Time is a broken-down calendar time in UTC.
type Time struct {
	Year    int // full year, e.g. 2024
	Month   int // 0-11
	Day     int // 1-31
	Hour    int // 0-23
	Min     int
	Sec     int
	Weekday int // 0-6, Sunday first
}

// TimeFromUnix breaks ts down into calendar fields.
func TimeFromUnix(ts int64) Time {
	t := time.Unix(ts, 0).UTC()
	return Time{
		Year:    t.Year(),
		Month:   int(t.Month()) - 1,
		Day:     t.Day(),
		Hour:    t.Hour(),
		Min:     t.Minute(),
		Sec:     t.Second(),
		Weekday: int(t.Weekday()),
	}
}

// Unix converts the calendar fields to a timestamp. Weekday is ignored and
// out of range fields are normalised.
func (t Time) Unix() int64 {
	return time.Date(t.Year, time.Month(t.Month+1), t.Day, t.Hour, t.Min, t.Sec, 0, time.UTC).Unix()
}
