package timezone

import (
	"fmt"
	"time"
)

// View is one of the four timeline granularities.
type View string

const (
	ViewDay   View = "day"
	ViewWeek  View = "week"
	ViewMonth View = "month"
	ViewYear  View = "year"
)

// ParseView rejects anything outside the closed view enum.
func ParseView(s string) (View, error) {
	switch View(s) {
	case ViewDay, ViewWeek, ViewMonth, ViewYear:
		return View(s), nil
	default:
		return "", fmt.Errorf("ParseView: unknown view %q", s)
	}
}

// StartOfDay returns midnight of the anchor's calendar day in loc.
func StartOfDay(anchor time.Time, loc *time.Location) time.Time {
	local := anchor.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// AddDays shifts by whole calendar days, staying wall-clock stable
// across DST transitions.
func AddDays(t time.Time, days int, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+days,
		local.Hour(), local.Minute(), local.Second(), 0, loc)
}

// WeekStart returns the Monday midnight at or before anchor.
func WeekStart(anchor time.Time, loc *time.Location) time.Time {
	day := StartOfDay(anchor, loc)
	weekday := int(day.In(loc).Weekday())
	if weekday == 0 {
		return AddDays(day, -6, loc)
	}
	return AddDays(day, 1-weekday, loc)
}

// ViewRange returns the [start, end) instants the view covers around
// anchor, in loc's calendar.
func ViewRange(view View, anchor time.Time, loc *time.Location) (time.Time, time.Time) {
	local := anchor.In(loc)
	switch view {
	case ViewDay:
		start := StartOfDay(anchor, loc)
		return start, AddDays(start, 1, loc)
	case ViewWeek:
		start := WeekStart(anchor, loc)
		return start, AddDays(start, 7, loc)
	case ViewMonth:
		start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 1, 0)
	default:
		start := time.Date(local.Year(), 1, 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(1, 0, 0)
	}
}

// ShiftAnchor moves the anchor by one view unit in the given direction
// (-1 or +1).
func ShiftAnchor(view View, anchor time.Time, direction int, loc *time.Location) time.Time {
	switch view {
	case ViewDay:
		return AddDays(anchor, direction, loc)
	case ViewWeek:
		return AddDays(anchor, 7*direction, loc)
	case ViewMonth:
		return anchor.In(loc).AddDate(0, direction, 0)
	default:
		return anchor.In(loc).AddDate(direction, 0, 0)
	}
}

// DaysIn enumerates the day-column start instants of a [start, end)
// range.
func DaysIn(start, end time.Time, loc *time.Location) []time.Time {
	days := make([]time.Time, 0, 7)
	for cursor := StartOfDay(start, loc); cursor.Before(end); cursor = AddDays(cursor, 1, loc) {
		days = append(days, cursor)
	}
	return days
}
