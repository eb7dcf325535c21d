package occurrence

import (
	"fmt"
	"time"
)

// instant layouts accepted on the wire; the store emits RFC 3339 but
// hand-entered payloads have shown up without offsets.
var instantLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseInstant parses a wire timestamp. Offset-less forms are read in
// loc.
func ParseInstant(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("ParseInstant: empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range instantLayouts[1:] {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("ParseInstant: can't parse %q", s)
}

// NormalizeKey collapses an instant string to epoch milliseconds, so
// differing ISO spellings of the same instant collide.
func NormalizeKey(s string, loc *time.Location) (int64, error) {
	t, err := ParseInstant(s, loc)
	if err != nil {
		return 0, fmt.Errorf("NormalizeKey: %w", err)
	}
	return t.UnixMilli(), nil
}

// ContainsKey reports whether keys holds the given instant, by
// normalized equality.
func ContainsKey(keys []string, key string, loc *time.Location) bool {
	want, err := NormalizeKey(key, loc)
	if err != nil {
		return false
	}
	for _, candidate := range keys {
		normalized, err := NormalizeKey(candidate, loc)
		if err != nil {
			continue
		}
		if normalized == want {
			return true
		}
	}
	return false
}

// AppendKey adds key to keys unless an equal instant is already there.
func AppendKey(keys []string, key string, loc *time.Location) []string {
	if ContainsKey(keys, key, loc) {
		return keys
	}
	return append(keys, key)
}

// RemoveKey drops every entry equal to key.
func RemoveKey(keys []string, key string, loc *time.Location) []string {
	want, err := NormalizeKey(key, loc)
	if err != nil {
		return keys
	}
	kept := make([]string, 0, len(keys))
	for _, candidate := range keys {
		normalized, err := NormalizeKey(candidate, loc)
		if err == nil && normalized == want {
			continue
		}
		kept = append(kept, candidate)
	}
	return kept
}
