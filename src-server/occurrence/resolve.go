package occurrence

import (
	"errors"
	"fmt"
	"time"

	"elastiview/src-server/timezone"
)

// ErrInvalidRange marks an occurrence whose base range is missing or
// unparsable. Callers skip the occurrence; the batch keeps rendering.
var ErrInvalidRange = errors.New("invalid occurrence range")

// Resolved is an occurrence's effective displayed range after applying
// its override.
type Resolved struct {
	Start        time.Time
	EffectiveEnd time.Time
	IsFullDay    bool
	// true when the override moved the end away from the base end
	IsAdjusted bool
}

// Resolver computes effective ranges. DefaultZone backs occurrences
// with a missing or invalid tz; FinishBuffer is the floor below which
// finishing early can't shrink the displayed range.
type Resolver struct {
	DefaultZone  *time.Location
	FinishBuffer time.Duration
}

// Zone resolves an occurrence's own timezone, falling back to the
// default on an invalid name.
func (r *Resolver) Zone(occ *Occurrence) *time.Location {
	return timezone.LoadOrDefault(occ.TZ, r.DefaultZone)
}

// Resolve computes the occurrence's effective range. The base range is
// the realized range when present, else the default scheduled range;
// an absent or malformed endpoint fails with ErrInvalidRange.
func (r *Resolver) Resolve(occ *Occurrence) (*Resolved, error) {
	loc := r.Zone(occ)

	baseRange := occ.DefaultScheduledTimerange
	if occ.RealizedTimerange != nil && occ.RealizedTimerange.Start != "" && occ.RealizedTimerange.End != "" {
		baseRange = occ.RealizedTimerange
	}
	if baseRange == nil {
		return nil, fmt.Errorf("Resolver.Resolve: %w: no base range", ErrInvalidRange)
	}
	baseStart, err := ParseInstant(baseRange.Start, loc)
	if err != nil {
		return nil, fmt.Errorf("Resolver.Resolve: %w: start: %s", ErrInvalidRange, err)
	}
	baseEnd, err := ParseInstant(baseRange.End, loc)
	if err != nil {
		return nil, fmt.Errorf("Resolver.Resolve: %w: end: %s", ErrInvalidRange, err)
	}

	resolved := &Resolved{
		Start:        baseStart,
		EffectiveEnd: baseEnd,
		IsFullDay:    isFullDay(baseStart, baseEnd, loc),
	}

	if occ.RecurrencePayload != nil {
		if key, err := occ.Key(); err == nil {
			if override, _, ok := occ.RecurrencePayload.OverrideFor(key, loc); ok {
				resolved.EffectiveEnd = r.applyOverride(override, baseStart, baseEnd, loc)
			}
		}
	}
	resolved.IsAdjusted = !resolved.EffectiveEnd.Equal(baseEnd)

	return resolved, nil
}

// applyOverride layers finished_at and added_minutes onto the base end.
// Finishing early clamps to baseStart+buffer at the lowest; added
// minutes then extend beyond whichever end is current.
func (r *Resolver) applyOverride(override Override, baseStart, baseEnd time.Time, loc *time.Location) time.Time {
	end := baseEnd
	if override.FinishedAt != "" {
		if finishedAt, err := ParseInstant(override.FinishedAt, loc); err == nil {
			end = laterOf(finishedAt, baseStart.Add(r.FinishBuffer))
		}
	}
	if override.AddedMinutes != 0 {
		added := time.Duration(override.AddedMinutes * float64(time.Minute))
		end = laterOf(end, end.Add(added))
	}
	return end
}

// isFullDay: start and end on the same calendar day in the occurrence's
// zone, start exactly midnight, end at 23:59.
func isFullDay(start, end time.Time, loc *time.Location) bool {
	startParts := timezone.ToParts(start, loc)
	endParts := timezone.ToParts(end, loc)
	if timezone.DayStamp(startParts) != timezone.DayStamp(endParts) {
		return false
	}
	if startParts.Hour != 0 || startParts.Minute != 0 || startParts.Second != 0 {
		return false
	}
	return endParts.Hour == 23 && endParts.Minute == 59
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
