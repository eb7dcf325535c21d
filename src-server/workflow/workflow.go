package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"elastiview/src-server/history"
	"elastiview/src-server/model"
	"elastiview/src-server/occurrence"
	"elastiview/src-server/remote"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Workflow applies user-initiated occurrence/recurrence edits as
// recurrence-payload patches. Every undoable operation completes its
// remote call before pushing a history record, so records always
// reflect confirmed server state. Each mutation also writes through to
// the local snapshot cache, so renders see it before the next refresh
// pass.
type Workflow struct {
	Remote   *remote.Client
	History  *history.Log
	Resolver *occurrence.Resolver
	Db       *bun.DB
	// poked after each confirmed mutation so the snapshot scheduler
	// reconciles sibling occurrences early; may be nil
	RefreshChan chan<- struct{}
}

func (w *Workflow) requestRefresh() {
	if w.RefreshChan == nil {
		return
	}
	select {
	case w.RefreshChan <- struct{}{}:
	default:
	}
}

// ToggleStar flips the occurrence's star membership. The local payload
// is patched optimistically and the PUT runs asynchronously; a failed
// PUT is logged and left as applied, since re-toggling is the recovery.
// Starring is not undoable and produces no history record.
func (w *Workflow) ToggleStar(occ *occurrence.Occurrence) error {
	if occ.RecurrencePayload == nil {
		return fmt.Errorf("ToggleStar: occurrence has no payload")
	}
	key, err := occ.Key()
	if err != nil {
		return fmt.Errorf("ToggleStar: %w", err)
	}
	loc := w.Resolver.Zone(occ)

	state := occurrence.DecodeStarState(occ.RecurrencePayload)
	state.Toggle(key, loc).Apply(occ.RecurrencePayload)
	if err := model.UpsertSnapshot(context.Background(), w.Db, occ, w.Resolver); err != nil {
		slog.Warn("star toggle not written to snapshot cache", "occurrence", occ.ID, "error", err)
	}

	actionID := uuid.NewString()
	payload := occ.RecurrencePayload
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := w.Remote.UpdateRecurrence(ctx, occ.RecurrenceID, occ.RecurrenceType, payload); err != nil {
			slog.Warn("star toggle not synced to store", "action", actionID, "recurrence", occ.RecurrenceID, "error", err)
		}
	}()
	return nil
}

// DeleteOccurrence removes one occurrence from its recurrence. A
// single-type recurrence has no occurrence identity apart from the
// recurrence, so the whole recurrence goes; a multiple-type recurrence
// drops the matching enumerated blob (and the recurrence itself when
// that was the last one); anything else records the occurrence in the
// payload's exclusions.
func (w *Workflow) DeleteOccurrence(ctx context.Context, occ *occurrence.Occurrence) error {
	if occ.RecurrenceID == "" {
		return fmt.Errorf("DeleteOccurrence: occurrence has no recurrence id")
	}
	if occ.RecurrenceType == occurrence.RECURRENCE_TYPE_SINGLE {
		return w.DeleteRecurrence(ctx, occ.RecurrenceID)
	}

	key, err := occ.Key()
	if err != nil {
		return fmt.Errorf("DeleteOccurrence: %w", err)
	}
	loc := w.Resolver.Zone(occ)

	previous, err := w.Remote.GetRecurrence(ctx, occ.RecurrenceID)
	if err != nil {
		return fmt.Errorf("DeleteOccurrence: %w", err)
	}
	beforePayload := previous.Payload
	if beforePayload == nil {
		beforePayload = new(occurrence.Payload)
	}
	nextPayload, err := beforePayload.Clone()
	if err != nil {
		return fmt.Errorf("DeleteOccurrence: %w", err)
	}

	if previous.Type == occurrence.RECURRENCE_TYPE_MULTIPLE {
		kept := make([]occurrence.BlobDef, 0, len(nextPayload.Blobs))
		for _, blob := range nextPayload.Blobs {
			if blobMatchesKey(blob, key, loc) {
				continue
			}
			kept = append(kept, blob)
		}
		if len(kept) == len(nextPayload.Blobs) {
			return fmt.Errorf("DeleteOccurrence: no occurrence %s in recurrence %s", key, occ.RecurrenceID)
		}
		if len(kept) == 0 {
			// a recurrence with zero occurrences can't exist
			return w.DeleteRecurrence(ctx, occ.RecurrenceID)
		}
		nextPayload.Blobs = kept
	} else {
		nextPayload.Exclusions = occurrence.AppendKey(nextPayload.Exclusions, key, loc)
	}

	if err := w.Remote.UpdateRecurrence(ctx, occ.RecurrenceID, previous.Type, nextPayload); err != nil {
		return fmt.Errorf("DeleteOccurrence: %w", err)
	}
	if err := model.DeleteSnapshot(ctx, w.Db, occ.ID); err != nil {
		slog.Warn("deleted occurrence still in snapshot cache", "occurrence", occ.ID, "error", err)
	}
	w.History.Push(&history.Record{
		Type: history.RECORD_TYPE_UPDATE_RECURRENCE,
		Data: history.RecordData{
			RecurrenceID:   occ.RecurrenceID,
			RecurrenceType: previous.Type,
			BeforePayload:  beforePayload,
			AfterPayload:   nextPayload,
		},
	})
	w.requestRefresh()
	return nil
}

// DeleteRecurrence removes a whole recurrence, first capturing its
// payload so undo can recreate it.
func (w *Workflow) DeleteRecurrence(ctx context.Context, recurrenceID string) error {
	previous, err := w.Remote.GetRecurrence(ctx, recurrenceID)
	if err != nil {
		return fmt.Errorf("DeleteRecurrence: %w", err)
	}
	if err := w.Remote.DeleteRecurrence(ctx, recurrenceID); err != nil {
		return fmt.Errorf("DeleteRecurrence: %w", err)
	}
	if err := model.DeleteRecurrenceSnapshots(ctx, w.Db, recurrenceID); err != nil {
		slog.Warn("deleted recurrence still in snapshot cache", "recurrence", recurrenceID, "error", err)
	}
	w.History.Push(&history.Record{
		Type: history.RECORD_TYPE_DELETE_RECURRENCE,
		Data: history.RecordData{
			RecurrenceID:   recurrenceID,
			RecurrenceType: previous.Type,
			Payload:        previous.Payload,
		},
	})
	w.requestRefresh()
	return nil
}

// FinishNow marks the occurrence finished at the given instant by
// writing finished_at into its override.
func (w *Workflow) FinishNow(ctx context.Context, occ *occurrence.Occurrence, now time.Time) error {
	return w.patchOverride(ctx, occ, func(override occurrence.Override) occurrence.Override {
		override.FinishedAt = now.UTC().Format(time.RFC3339)
		return override
	})
}

// AddMinutes extends the occurrence's effective end by accumulating
// added_minutes on its override. Any finished_at is cleared, and when
// the new end escapes the schedulable window the override's schedulable
// end is pushed out with it.
func (w *Workflow) AddMinutes(ctx context.Context, occ *occurrence.Occurrence, minutes int) error {
	if minutes <= 0 {
		return fmt.Errorf("AddMinutes: minutes must be positive, got %d", minutes)
	}
	loc := w.Resolver.Zone(occ)

	baseRange := occ.DefaultScheduledTimerange
	if occ.RealizedTimerange != nil && occ.RealizedTimerange.Start != "" && occ.RealizedTimerange.End != "" {
		baseRange = occ.RealizedTimerange
	}
	if baseRange == nil {
		return fmt.Errorf("AddMinutes: %w: no base range", occurrence.ErrInvalidRange)
	}
	baseEnd, err := occurrence.ParseInstant(baseRange.End, loc)
	if err != nil {
		return fmt.Errorf("AddMinutes: %w: end: %s", occurrence.ErrInvalidRange, err)
	}
	var schedEnd time.Time
	if occ.SchedulableTimerange != nil {
		schedEnd, _ = occurrence.ParseInstant(occ.SchedulableTimerange.End, loc)
	}

	return w.patchOverride(ctx, occ, func(override occurrence.Override) occurrence.Override {
		override.AddedMinutes += float64(minutes)
		override.FinishedAt = ""
		// clearing finished_at makes the post-patch effective end the
		// base end plus the accumulated extension
		nextEnd := baseEnd.Add(time.Duration(override.AddedMinutes * float64(time.Minute)))
		if !schedEnd.IsZero() && nextEnd.After(schedEnd) {
			override.SchedulableTimerange = &occurrence.TimeRange{
				Start: occ.SchedulableTimerange.Start,
				End:   nextEnd.UTC().Format(time.RFC3339),
			}
		}
		return override
	})
}

// patchOverride fetches the live payload, rewrites the occurrence's
// override through patch, PUTs the result, and records the confirmed
// update.
func (w *Workflow) patchOverride(ctx context.Context, occ *occurrence.Occurrence, patch func(occurrence.Override) occurrence.Override) error {
	key, err := occ.Key()
	if err != nil {
		return fmt.Errorf("patchOverride: %w", err)
	}
	loc := w.Resolver.Zone(occ)

	previous, err := w.Remote.GetRecurrence(ctx, occ.RecurrenceID)
	if err != nil {
		return fmt.Errorf("patchOverride: %w", err)
	}
	beforePayload := previous.Payload
	if beforePayload == nil {
		beforePayload = new(occurrence.Payload)
	}
	nextPayload, err := beforePayload.Clone()
	if err != nil {
		return fmt.Errorf("patchOverride: %w", err)
	}

	current, storedKey, ok := nextPayload.OverrideFor(key, loc)
	if !ok {
		storedKey = key
	}
	if nextPayload.Overrides == nil {
		nextPayload.Overrides = map[string]occurrence.Override{}
	}
	nextPayload.Overrides[storedKey] = patch(current)

	if err := w.Remote.UpdateRecurrence(ctx, occ.RecurrenceID, previous.Type, nextPayload); err != nil {
		return fmt.Errorf("patchOverride: %w", err)
	}
	occ.RecurrencePayload = nextPayload
	if err := model.UpsertSnapshot(ctx, w.Db, occ, w.Resolver); err != nil {
		slog.Warn("patched occurrence not written to snapshot cache", "occurrence", occ.ID, "error", err)
	}
	w.History.Push(&history.Record{
		Type: history.RECORD_TYPE_UPDATE_RECURRENCE,
		Data: history.RecordData{
			RecurrenceID:   occ.RecurrenceID,
			RecurrenceType: previous.Type,
			BeforePayload:  beforePayload,
			AfterPayload:   nextPayload,
		},
	})
	w.requestRefresh()
	return nil
}

func blobMatchesKey(blob occurrence.BlobDef, key string, loc *time.Location) bool {
	if blob.SchedulableTimerange == nil {
		return false
	}
	return occurrence.ContainsKey([]string{blob.SchedulableTimerange.Start}, key, loc)
}
