package timezone

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTimeZone is returned when an IANA zone name can't be loaded.
// Callers are expected to fall back to the configured default zone.
var ErrInvalidTimeZone = errors.New("invalid timezone name")

// Parts holds the wall-clock components of an instant in some timezone.
type Parts struct {
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
	Second int
}

// Load wraps time.LoadLocation so callers can test against
// ErrInvalidTimeZone instead of the stdlib's unexported error.
func Load(name string) (*time.Location, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidTimeZone)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimeZone, name)
	}
	return loc, nil
}

// LoadOrDefault resolves a zone name, falling back to def when the name
// is blank or unknown.
func LoadOrDefault(name string, def *time.Location) *time.Location {
	loc, err := Load(name)
	if err != nil {
		return def
	}
	return loc
}

// ToParts returns the wall-clock representation of instant in loc.
func ToParts(instant time.Time, loc *time.Location) Parts {
	local := instant.In(loc)
	return Parts{
		Year:   local.Year(),
		Month:  int(local.Month()),
		Day:    local.Day(),
		Hour:   local.Hour(),
		Minute: local.Minute(),
		Second: local.Second(),
	}
}

// FromParts resolves wall-clock parts in loc back to an instant. The
// parts are first read as UTC, then that approximation's own offset in
// loc is subtracted; a single offset lookup is not enough because the
// offset itself depends on the instant near DST transitions. Ambiguous
// or nonexistent local times are not disambiguated: they resolve to
// whatever this two-pass approximation yields.
func FromParts(p Parts, loc *time.Location) time.Time {
	approx := time.Date(p.Year, time.Month(p.Month), p.Day, p.Hour, p.Minute, p.Second, 0, time.UTC)
	_, offset := approx.In(loc).Zone()
	return approx.Add(-time.Duration(offset) * time.Second)
}

// DayStamp collapses parts into a comparable zone-local calendar day
// integer (20240521 for May 21st 2024).
func DayStamp(p Parts) int {
	return p.Year*10000 + p.Month*100 + p.Day
}

// DayStampOf is DayStamp for an instant viewed in loc.
func DayStampOf(instant time.Time, loc *time.Location) int {
	return DayStamp(ToParts(instant, loc))
}

// MinuteOfDay returns the minute-of-day [0,1440) of the parts.
func MinuteOfDay(p Parts) int {
	return p.Hour*60 + p.Minute
}

// RoundToGranularity snaps minutes to the nearest multiple of
// granularity. Granularity below one minute is treated as one.
func RoundToGranularity(minutes, granularity int) int {
	if granularity < 1 {
		granularity = 1
	}
	half := granularity / 2
	rounded := ((minutes + half) / granularity) * granularity
	if rounded < 0 {
		return 0
	}
	return rounded
}
