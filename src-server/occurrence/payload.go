package occurrence

import (
	"encoding/json"
	"fmt"
	"time"
)

// RecurrenceType discriminates how a recurrence generates occurrences.
type RecurrenceType string

const (
	RECURRENCE_TYPE_SINGLE   = RecurrenceType("single")
	RECURRENCE_TYPE_MULTIPLE = RecurrenceType("multiple")
	RECURRENCE_TYPE_DATE     = RecurrenceType("date")
)

// TimeRange is a wire-format pair of instant strings.
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Override is a per-occurrence adjustment layered on its base range.
type Override struct {
	FinishedAt           string     `json:"finished_at,omitempty"`
	AddedMinutes         float64    `json:"added_minutes,omitempty"`
	SchedulableTimerange *TimeRange `json:"schedulable_timerange,omitempty"`
}

// BlobDef is one literal occurrence definition inside a multiple-type
// recurrence payload.
type BlobDef struct {
	Name                      string         `json:"name,omitempty"`
	Description               string         `json:"description,omitempty"`
	Tags                      []string       `json:"tags,omitempty"`
	Policy                    map[string]any `json:"policy,omitempty"`
	TZ                        string         `json:"tz,omitempty"`
	DefaultScheduledTimerange *TimeRange     `json:"default_scheduled_timerange,omitempty"`
	SchedulableTimerange      *TimeRange     `json:"schedulable_timerange,omitempty"`
}

// Payload is a recurrence's polymorphic payload. Fields this core
// doesn't know about are preserved in extra and written back verbatim,
// since the remote store owns the schema.
type Payload struct {
	Exclusions  []string            `json:"exclusions,omitempty"`
	Stars       []string            `json:"stars,omitempty"`
	Unstarred   []string            `json:"unstarred,omitempty"`
	Starred     bool                `json:"starred,omitempty"`
	Color       string              `json:"color,omitempty"`
	Name        string              `json:"recurrence_name,omitempty"`
	Description string              `json:"recurrence_description,omitempty"`
	EndDate     string              `json:"end_date,omitempty"`
	Overrides   map[string]Override `json:"occurrence_overrides,omitempty"`
	// single/date recurrences carry one seed definition
	Blob *BlobDef `json:"blob,omitempty"`
	// multiple recurrences enumerate their definitions, repeating every
	// Interval weeks
	Blobs    []BlobDef `json:"blobs,omitempty"`
	Interval int       `json:"interval,omitempty"`

	extra map[string]json.RawMessage
}

var knownPayloadKeys = map[string]struct{}{
	"exclusions":             {},
	"stars":                  {},
	"unstarred":              {},
	"starred":                {},
	"color":                  {},
	"recurrence_name":        {},
	"recurrence_description": {},
	"end_date":               {},
	"occurrence_overrides":   {},
	"blob":                   {},
	"blobs":                  {},
	"interval":               {},
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	type alias Payload
	var known alias
	if err := json.Unmarshal(data, &known); err != nil {
		return fmt.Errorf("Payload.UnmarshalJSON: %w", err)
	}
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("Payload.UnmarshalJSON: %w", err)
	}
	for key := range knownPayloadKeys {
		delete(raw, key)
	}
	*p = Payload(known)
	if len(raw) > 0 {
		p.extra = raw
	}
	return nil
}

func (p Payload) MarshalJSON() ([]byte, error) {
	type alias Payload
	knownJson, err := json.Marshal(alias(p))
	if err != nil {
		return nil, fmt.Errorf("Payload.MarshalJSON: %w", err)
	}
	if len(p.extra) == 0 {
		return knownJson, nil
	}
	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(knownJson, &merged); err != nil {
		return nil, fmt.Errorf("Payload.MarshalJSON: %w", err)
	}
	for key, value := range p.extra {
		if _, taken := merged[key]; !taken {
			merged[key] = value
		}
	}
	return json.Marshal(merged)
}

// Clone deep-copies the payload through its wire form, so before/after
// snapshots in history records never alias live state.
func (p *Payload) Clone() (*Payload, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("Payload.Clone: %w", err)
	}
	clone := new(Payload)
	if err := json.Unmarshal(data, clone); err != nil {
		return nil, fmt.Errorf("Payload.Clone: %w", err)
	}
	return clone, nil
}

// OverrideFor finds the override keyed by the given instant, matching
// by normalized instant rather than string identity.
func (p *Payload) OverrideFor(key string, loc *time.Location) (Override, string, bool) {
	want, err := NormalizeKey(key, loc)
	if err != nil {
		return Override{}, "", false
	}
	for storedKey, override := range p.Overrides {
		stored, err := NormalizeKey(storedKey, loc)
		if err != nil {
			continue
		}
		if stored == want {
			return override, storedKey, true
		}
	}
	return Override{}, "", false
}

// Recurrence is the remote store's record for one recurrence.
type Recurrence struct {
	ID      string         `json:"id"`
	Type    RecurrenceType `json:"type"`
	Payload *Payload       `json:"payload"`
}
