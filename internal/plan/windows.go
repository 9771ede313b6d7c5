package plan

import "time"

// MonthKey returns the UTC calendar-month bucket key "YYYYMM" (§4.2).
func MonthKey(t time.Time) string {
	t = t.UTC()
	return t.Format("200601")
}

// HourKey returns the UTC calendar-hour bucket key "YYYYMMDDHH" (§4.2).
func HourKey(t time.Time) string {
	t = t.UTC()
	return t.Format("2006010215")
}

// SecondsUntilMonthEnd returns the number of whole seconds until the start
// of the next UTC calendar month, always > 0.
func SecondsUntilMonthEnd(t time.Time) int64 {
	t = t.UTC()
	nextMonth := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	d := nextMonth.Sub(t)
	if d <= 0 {
		return 1
	}
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}

// SecondsUntilHourEnd returns the number of whole seconds until the start
// of the next UTC calendar hour, always > 0.
func SecondsUntilHourEnd(t time.Time) int64 {
	t = t.UTC()
	nextHour := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC).Add(time.Hour)
	d := nextHour.Sub(t)
	if d <= 0 {
		return 1
	}
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
