package timeline

import "elastiview/src-server/timezone"

const MINUTES_PER_DAY = 1440

// Clipped is an occurrence's range cut down to a single day column.
type Clipped struct {
	StartMinute int
	EndMinute   int
	// title/time labels render only on the day the occurrence starts,
	// so continuation fragments of a multi-day bar stay unlabeled
	ShowContent bool
}

// ClampToDay clips a zone-resolved range onto the day column identified
// by dayStamp. Returns false when the range doesn't touch that day. A
// start on an earlier day clamps to minute 0, an end on a later day to
// minute 1440, so multi-day occurrences show as contiguous bars on
// every column they cross.
func ClampToDay(start, end timezone.Parts, dayStamp int) (Clipped, bool) {
	startStamp := timezone.DayStamp(start)
	endStamp := timezone.DayStamp(end)
	if startStamp > dayStamp || endStamp < dayStamp {
		return Clipped{}, false
	}

	clipped := Clipped{ShowContent: startStamp == dayStamp}
	if startStamp < dayStamp {
		clipped.StartMinute = 0
	} else {
		clipped.StartMinute = timezone.MinuteOfDay(start)
	}
	if endStamp > dayStamp {
		clipped.EndMinute = MINUTES_PER_DAY
	} else {
		clipped.EndMinute = timezone.MinuteOfDay(end)
	}

	if clipped.EndMinute <= clipped.StartMinute {
		return Clipped{}, false
	}
	return clipped, true
}
