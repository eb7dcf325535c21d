package timeline

import (
	"fmt"
	"log/slog"
	"time"

	"elastiview/src-server/occurrence"
	"elastiview/src-server/timezone"
)

// DayColumn is one rendered day of a day/week view.
type DayColumn struct {
	Date   string   `json:"date"`
	Stamp  int      `json:"stamp"`
	Blocks []*Block `json:"blocks"`
}

// Summary is one aggregation bucket of a month/year view.
type Summary struct {
	Label string `json:"label"`
	Start string `json:"start"`
	Count int    `json:"count"`
}

// Builder turns occurrence snapshots into laid-out view data. Layout is
// recomputed from scratch on every call; nothing persists between
// renders.
type Builder struct {
	Resolver *occurrence.Resolver
	// the viewer's zone, which day columns are cut in
	Zone *time.Location
	// minute grid the rendered block edges snap to; below 2 disables
	// snapping
	Granularity int
}

// BuildDays resolves, clips, and lays out the occurrences onto the
// given day columns. Unresolvable occurrences are skipped and counted,
// never fatal to the batch.
func (b *Builder) BuildDays(occs []*occurrence.Occurrence, days []time.Time) ([]DayColumn, int) {
	skipped := 0
	type resolved struct {
		occ *occurrence.Occurrence
		res *occurrence.Resolved
	}
	resolvedOccs := make([]resolved, 0, len(occs))
	for _, occ := range occs {
		res, err := b.Resolver.Resolve(occ)
		if err != nil {
			skipped++
			slog.Debug("BuildDays: skipping unrenderable occurrence", "id", occ.ID, "error", err)
			continue
		}
		resolvedOccs = append(resolvedOccs, resolved{occ: occ, res: res})
	}

	columns := make([]DayColumn, 0, len(days))
	for _, day := range days {
		stamp := timezone.DayStampOf(day, b.Zone)
		blocks := make([]*Block, 0)
		for _, item := range resolvedOccs {
			startParts := timezone.ToParts(item.res.Start, b.Zone)
			endParts := timezone.ToParts(item.res.EffectiveEnd, b.Zone)
			clipped, ok := ClampToDay(startParts, endParts, stamp)
			if !ok {
				continue
			}
			blocks = append(blocks, b.newBlock(item.occ, item.res, clipped))
		}
		Layout(blocks)
		columns = append(columns, DayColumn{
			Date:   day.In(b.Zone).Format("2006-01-02"),
			Stamp:  stamp,
			Blocks: blocks,
		})
	}
	return columns, skipped
}

func (b *Builder) newBlock(occ *occurrence.Occurrence, res *occurrence.Resolved, clipped Clipped) *Block {
	starred := false
	if occ.RecurrencePayload != nil {
		if key, err := occ.Key(); err == nil {
			starred = occurrence.DecodeStarState(occ.RecurrencePayload).IsStarred(key, b.Zone)
		}
	}
	startMinute, endMinute := b.snap(clipped.StartMinute, clipped.EndMinute)
	return &Block{
		ID:          occ.ID,
		Name:        occ.Name,
		TimeLabel:   formatTimeRange(res.Start, res.EffectiveEnd, b.Zone),
		Kind:        occ.TagKind(),
		Starred:     starred,
		IsFullDay:   res.IsFullDay,
		IsAdjusted:  res.IsAdjusted,
		ShowContent: clipped.ShowContent,
		StartMinute: startMinute,
		EndMinute:   endMinute,
	}
}

// snap aligns a clipped range to the minute grid, keeping at least one
// grid cell of width inside the day.
func (b *Builder) snap(startMinute, endMinute int) (int, int) {
	if b.Granularity < 2 {
		return startMinute, endMinute
	}
	startMinute = timezone.RoundToGranularity(startMinute, b.Granularity)
	endMinute = timezone.RoundToGranularity(endMinute, b.Granularity)
	if endMinute <= startMinute {
		endMinute = startMinute + b.Granularity
	}
	if endMinute > MINUTES_PER_DAY {
		endMinute = MINUTES_PER_DAY
		if startMinute > endMinute-b.Granularity {
			startMinute = endMinute - b.Granularity
		}
	}
	return startMinute, endMinute
}

// BuildSummaries buckets the occurrences into week (month view) or
// quarter (year view) summaries by effective-range overlap.
func (b *Builder) BuildSummaries(occs []*occurrence.Occurrence, view timezone.View, anchor time.Time) []Summary {
	rangeStart, rangeEnd := timezone.ViewRange(view, anchor, b.Zone)

	var buckets []Summary
	var bucketStarts []time.Time
	var bucketEnds []time.Time
	switch view {
	case timezone.ViewMonth:
		index := 0
		for cursor := rangeStart; cursor.Before(rangeEnd); cursor = timezone.AddDays(cursor, 7, b.Zone) {
			index++
			end := timezone.AddDays(cursor, 7, b.Zone)
			if end.After(rangeEnd) {
				end = rangeEnd
			}
			buckets = append(buckets, Summary{
				Label: fmt.Sprintf("Week %d", index),
				Start: cursor.In(b.Zone).Format("2006-01-02"),
			})
			bucketStarts = append(bucketStarts, cursor)
			bucketEnds = append(bucketEnds, end)
		}
	default:
		for quarter := 0; quarter < 4; quarter++ {
			start := rangeStart.AddDate(0, quarter*3, 0)
			buckets = append(buckets, Summary{
				Label: fmt.Sprintf("Q%d", quarter+1),
				Start: start.In(b.Zone).Format("2006-01-02"),
			})
			bucketStarts = append(bucketStarts, start)
			bucketEnds = append(bucketEnds, rangeStart.AddDate(0, (quarter+1)*3, 0))
		}
	}

	for _, occ := range occs {
		res, err := b.Resolver.Resolve(occ)
		if err != nil {
			continue
		}
		for i := range buckets {
			if res.Start.Before(bucketEnds[i]) && res.EffectiveEnd.After(bucketStarts[i]) {
				buckets[i].Count++
			}
		}
	}
	return buckets
}

func formatTimeRange(start, end time.Time, loc *time.Location) string {
	return fmt.Sprintf("%s - %s", start.In(loc).Format("15:04"), end.In(loc).Format("15:04"))
}
