package occurrence

import "fmt"

// Occurrence is one concrete instance of schedulable time, derived
// transiently from the remote feed each render pass. The payload field
// references the parent recurrence's payload snapshot.
type Occurrence struct {
	ID                        string         `json:"id"`
	RecurrenceID              string         `json:"recurrence_id"`
	RecurrenceType            RecurrenceType `json:"recurrence_type"`
	RecurrencePayload         *Payload       `json:"recurrence_payload,omitempty"`
	Name                      string         `json:"name"`
	Description               string         `json:"description,omitempty"`
	Tags                      []string       `json:"tags,omitempty"`
	Policy                    map[string]any `json:"policy,omitempty"`
	TZ                        string         `json:"tz,omitempty"`
	DefaultScheduledTimerange *TimeRange     `json:"default_scheduled_timerange"`
	SchedulableTimerange      *TimeRange     `json:"schedulable_timerange"`
	RealizedTimerange         *TimeRange     `json:"realized_timerange,omitempty"`
}

// Key returns the occurrence's identity within its recurrence: the
// schedulable range's start instant.
func (o *Occurrence) Key() (string, error) {
	if o.SchedulableTimerange == nil || o.SchedulableTimerange.Start == "" {
		return "", fmt.Errorf("Occurrence.Key: no schedulable start")
	}
	return o.SchedulableTimerange.Start, nil
}

// TagKind buckets tags into the three render kinds.
func (o *Occurrence) TagKind() string {
	for _, tag := range o.Tags {
		if tag == "deep" {
			return "deep"
		}
	}
	for _, tag := range o.Tags {
		if tag == "admin" {
			return "admin"
		}
	}
	return "focus"
}
