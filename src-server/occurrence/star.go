package occurrence

import "time"

// StarMode discriminates the two star-tracking representations a
// payload can be in.
type StarMode int

const (
	// explicit allow-list in stars
	STAR_MODE_SOME = StarMode(iota)
	// implicit all-starred with a deny-list in unstarred; entered once
	// the recurrence has ever been mass-starred
	STAR_MODE_ALL
)

// StarState is the decoded star policy: either SomeStarred (allow-list)
// or AllStarred (deny-list). Decoding resolves the wire format's
// "both lists present" ambiguity once, here: the starred flag decides,
// and the losing list is discarded.
type StarState struct {
	Mode StarMode
	Keys []string
}

// DecodeStarState reads the star policy out of a payload.
func DecodeStarState(p *Payload) StarState {
	if p.Starred {
		return StarState{Mode: STAR_MODE_ALL, Keys: append([]string(nil), p.Unstarred...)}
	}
	return StarState{Mode: STAR_MODE_SOME, Keys: append([]string(nil), p.Stars...)}
}

// IsStarred reports whether the occurrence key is starred under this
// policy.
func (s StarState) IsStarred(key string, loc *time.Location) bool {
	listed := ContainsKey(s.Keys, key, loc)
	if s.Mode == STAR_MODE_ALL {
		return !listed
	}
	return listed
}

// Toggle flips the key's membership and returns the new state.
func (s StarState) Toggle(key string, loc *time.Location) StarState {
	next := StarState{Mode: s.Mode}
	if ContainsKey(s.Keys, key, loc) {
		next.Keys = RemoveKey(s.Keys, key, loc)
	} else {
		next.Keys = AppendKey(append([]string(nil), s.Keys...), key, loc)
	}
	return next
}

// Apply writes the state back onto the payload, clearing whichever list
// the active mode doesn't own.
func (s StarState) Apply(p *Payload) {
	switch s.Mode {
	case STAR_MODE_ALL:
		p.Starred = true
		p.Unstarred = s.Keys
		p.Stars = nil
	default:
		p.Starred = false
		p.Stars = s.Keys
		p.Unstarred = nil
	}
}
