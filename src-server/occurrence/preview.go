package occurrence

import (
	"fmt"
	"time"

	"github.com/xyedo/rrule"
)

// CadencePreview expands a recurrence definition into the occurrence
// start instants it would generate inside [from, to), honoring the
// payload's end_date and exclusions. Single recurrences contribute
// their one start; multiple recurrences repeat each enumerated blob
// weekly; date recurrences repeat yearly.
func (r *Resolver) CadencePreview(recType RecurrenceType, payload *Payload, from, to time.Time) ([]time.Time, error) {
	if payload == nil {
		return nil, fmt.Errorf("CadencePreview: nil payload")
	}
	loc := r.DefaultZone

	var starts []time.Time
	switch recType {
	case RECURRENCE_TYPE_SINGLE:
		if payload.Blob != nil {
			if start, ok := blobStart(*payload.Blob, loc); ok {
				if !start.Before(from) && start.Before(to) {
					starts = append(starts, start)
				}
			}
		}
	case RECURRENCE_TYPE_MULTIPLE:
		interval := payload.Interval
		if interval < 1 {
			interval = 1
		}
		for _, blob := range payload.Blobs {
			start, ok := blobStart(blob, loc)
			if !ok {
				continue
			}
			expanded, err := r.expand(rrule.WEEKLY, interval, start, payload.EndDate, from, to, loc)
			if err != nil {
				return nil, err
			}
			starts = append(starts, expanded...)
		}
	case RECURRENCE_TYPE_DATE:
		if payload.Blob != nil {
			if start, ok := blobStart(*payload.Blob, loc); ok {
				expanded, err := r.expand(rrule.YEARLY, 1, start, payload.EndDate, from, to, loc)
				if err != nil {
					return nil, err
				}
				starts = append(starts, expanded...)
			}
		}
	default:
		return nil, fmt.Errorf("CadencePreview: unknown recurrence type %q", recType)
	}

	kept := make([]time.Time, 0, len(starts))
	for _, start := range starts {
		if ContainsKey(payload.Exclusions, start.Format(time.RFC3339), loc) {
			continue
		}
		kept = append(kept, start)
	}
	return kept, nil
}

func (r *Resolver) expand(freq rrule.Frequency, interval int, dtstart time.Time, endDate string, from, to time.Time, loc *time.Location) ([]time.Time, error) {
	option := rrule.ROption{
		Freq:     freq,
		Interval: interval,
		Dtstart:  dtstart,
	}
	if endDate != "" {
		until, err := ParseInstant(endDate, loc)
		if err != nil {
			return nil, fmt.Errorf("expand: end_date: %w", err)
		}
		option.Until = until
	}
	rule, err := rrule.NewRRule(option)
	if err != nil {
		return nil, fmt.Errorf("expand: %w", err)
	}
	// Between treats its bounds inclusively on both sides; back the
	// upper bound off so [from, to) holds.
	return rule.Between(from, to.Add(-time.Second), true), nil
}

func blobStart(blob BlobDef, loc *time.Location) (time.Time, bool) {
	if blob.SchedulableTimerange == nil || blob.SchedulableTimerange.Start == "" {
		return time.Time{}, false
	}
	start, err := ParseInstant(blob.SchedulableTimerange.Start, loc)
	if err != nil {
		return time.Time{}, false
	}
	return start, true
}
