package workflow_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"elastiview/src-server/history"
	"elastiview/src-server/model"
	"elastiview/src-server/occurrence"
	"elastiview/src-server/remote"
	"elastiview/src-server/workflow"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type fakeStore struct {
	recurrences map[string]occurrence.Recurrence
	deletes     []string
}

func (f *fakeStore) server() *httptest.Server {
	muxer := http.NewServeMux()
	muxer.HandleFunc("GET /recurrences/{id}", func(w http.ResponseWriter, r *http.Request) {
		rec, ok := f.recurrences[r.PathValue("id")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(rec)
	})
	muxer.HandleFunc("PUT /recurrences/{id}", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Type    occurrence.RecurrenceType `json:"type"`
			Payload *occurrence.Payload       `json:"payload"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.recurrences[r.PathValue("id")] = occurrence.Recurrence{
			ID: r.PathValue("id"), Type: body.Type, Payload: body.Payload,
		}
		w.WriteHeader(http.StatusOK)
	})
	muxer.HandleFunc("DELETE /recurrences/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.deletes = append(f.deletes, r.PathValue("id"))
		delete(f.recurrences, r.PathValue("id"))
		w.WriteHeader(http.StatusOK)
	})
	return httptest.NewServer(muxer)
}

func newWorkflow(t *testing.T, store *fakeStore) (*workflow.Workflow, *bun.DB, func()) {
	server := store.server()
	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	if err != nil {
		t.Error(err)
	}
	bundb := bun.NewDB(db, sqlitedialect.New())
	if err := model.CreateSchema(bundb); err != nil {
		t.Error(err)
	}
	client := remote.New(server.URL)
	return &workflow.Workflow{
		Remote:  client,
		History: history.NewLog(bundb, client),
		Resolver: &occurrence.Resolver{
			DefaultZone:  time.UTC,
			FinishBuffer: 15 * time.Minute,
		},
		Db: bundb,
	}, bundb, server.Close
}

func dateOccurrence(recID, start string) *occurrence.Occurrence {
	return &occurrence.Occurrence{
		ID:             "occ-" + start,
		RecurrenceID:   recID,
		RecurrenceType: occurrence.RECURRENCE_TYPE_DATE,
		Name:           "standup",
		DefaultScheduledTimerange: &occurrence.TimeRange{
			Start: start, End: start,
		},
		SchedulableTimerange: &occurrence.TimeRange{
			Start: start, End: start,
		},
	}
}

func TestDeleteOccurrence(t *testing.T) {
	// case: deleting a single-type occurrence deletes the recurrence
	func() {
		store := &fakeStore{recurrences: map[string]occurrence.Recurrence{
			"rec-1": {ID: "rec-1", Type: occurrence.RECURRENCE_TYPE_SINGLE, Payload: &occurrence.Payload{}},
		}}
		w, _, closeServer := newWorkflow(t, store)
		defer closeServer()

		occ := dateOccurrence("rec-1", "2024-05-20T09:00:00Z")
		occ.RecurrenceType = occurrence.RECURRENCE_TYPE_SINGLE
		if err := w.DeleteOccurrence(context.Background(), occ); err != nil {
			t.Error(err)
		}
		if len(store.deletes) != 1 || store.deletes[0] != "rec-1" {
			t.Error("expected recurrence deleted", store.deletes)
		}
		if undo, _ := w.History.Depths(); undo != 1 {
			t.Error("expected one history record, got", undo)
		}
	}()

	// case: deleting one occurrence of a date recurrence appends an
	// exclusion, leaving its siblings alone
	func() {
		store := &fakeStore{recurrences: map[string]occurrence.Recurrence{
			"rec-1": {ID: "rec-1", Type: occurrence.RECURRENCE_TYPE_DATE, Payload: &occurrence.Payload{
				Exclusions: []string{"2024-05-19T09:00:00Z"},
			}},
		}}
		w, _, closeServer := newWorkflow(t, store)
		defer closeServer()

		if err := w.DeleteOccurrence(context.Background(), dateOccurrence("rec-1", "2024-05-20T09:00:00Z")); err != nil {
			t.Error(err)
		}
		payload := store.recurrences["rec-1"].Payload
		if len(payload.Exclusions) != 2 {
			t.Error("expected exclusion appended", payload.Exclusions)
		}
		// deleting the sibling next day stacks a second record
		if err := w.DeleteOccurrence(context.Background(), dateOccurrence("rec-1", "2024-05-21T09:00:00Z")); err != nil {
			t.Error(err)
		}
		if len(store.recurrences["rec-1"].Payload.Exclusions) != 3 {
			t.Error("expected second exclusion", store.recurrences["rec-1"].Payload.Exclusions)
		}
		if undo, _ := w.History.Depths(); undo != 2 {
			t.Error("expected two history records, got", undo)
		}

		// undoing restores the one-exclusion payload
		if _, err := w.History.Undo(context.Background()); err != nil {
			t.Error(err)
		}
		if len(store.recurrences["rec-1"].Payload.Exclusions) != 2 {
			t.Error("undo did not restore exclusions", store.recurrences["rec-1"].Payload.Exclusions)
		}
	}()

	// case: deleting an enumerated occurrence drops its blob
	func() {
		store := &fakeStore{recurrences: map[string]occurrence.Recurrence{
			"rec-1": {ID: "rec-1", Type: occurrence.RECURRENCE_TYPE_MULTIPLE, Payload: &occurrence.Payload{
				Blobs: []occurrence.BlobDef{
					{SchedulableTimerange: &occurrence.TimeRange{Start: "2024-05-20T09:00:00Z", End: "2024-05-20T10:00:00Z"}},
					{SchedulableTimerange: &occurrence.TimeRange{Start: "2024-05-21T09:00:00Z", End: "2024-05-21T10:00:00Z"}},
				},
			}},
		}}
		w, _, closeServer := newWorkflow(t, store)
		defer closeServer()

		occ := dateOccurrence("rec-1", "2024-05-20T09:00:00Z")
		occ.RecurrenceType = occurrence.RECURRENCE_TYPE_MULTIPLE
		if err := w.DeleteOccurrence(context.Background(), occ); err != nil {
			t.Error(err)
		}
		blobs := store.recurrences["rec-1"].Payload.Blobs
		if len(blobs) != 1 || blobs[0].SchedulableTimerange.Start != "2024-05-21T09:00:00Z" {
			t.Error("wrong blob removed", blobs)
		}
	}()

	// case: removing the last enumerated occurrence deletes the whole
	// recurrence
	func() {
		store := &fakeStore{recurrences: map[string]occurrence.Recurrence{
			"rec-1": {ID: "rec-1", Type: occurrence.RECURRENCE_TYPE_MULTIPLE, Payload: &occurrence.Payload{
				Blobs: []occurrence.BlobDef{
					{SchedulableTimerange: &occurrence.TimeRange{Start: "2024-05-20T09:00:00Z", End: "2024-05-20T10:00:00Z"}},
				},
			}},
		}}
		w, _, closeServer := newWorkflow(t, store)
		defer closeServer()

		occ := dateOccurrence("rec-1", "2024-05-20T09:00:00Z")
		occ.RecurrenceType = occurrence.RECURRENCE_TYPE_MULTIPLE
		if err := w.DeleteOccurrence(context.Background(), occ); err != nil {
			t.Error(err)
		}
		if len(store.deletes) != 1 {
			t.Error("expected recurrence deleted", store.deletes)
		}
	}()
}

func TestToggleStar(t *testing.T) {
	store := &fakeStore{recurrences: map[string]occurrence.Recurrence{
		"rec-1": {ID: "rec-1", Type: occurrence.RECURRENCE_TYPE_DATE, Payload: &occurrence.Payload{}},
	}}
	w, bundb, closeServer := newWorkflow(t, store)
	defer closeServer()

	occ := dateOccurrence("rec-1", "2024-05-20T09:00:00Z")
	occ.RecurrencePayload = &occurrence.Payload{}
	if err := model.UpsertSnapshot(context.Background(), bundb, occ, w.Resolver); err != nil {
		t.Error(err)
	}

	if err := w.ToggleStar(occ); err != nil {
		t.Error(err)
	}

	// case: the local payload is patched immediately
	if len(occ.RecurrencePayload.Stars) != 1 {
		t.Error("expected optimistic local star", occ.RecurrencePayload.Stars)
	}

	// case: the snapshot the renderer reads is patched too, not just
	// the transient decode
	func() {
		cached, err := model.FindSnapshot(context.Background(), bundb, occ.ID)
		if err != nil {
			t.Error(err)
		}
		if cached.RecurrencePayload == nil || len(cached.RecurrencePayload.Stars) != 1 {
			t.Error("star toggle never reached the snapshot cache", cached.RecurrencePayload)
		}
	}()

	// case: starring is not undoable
	if undo, _ := w.History.Depths(); undo != 0 {
		t.Error("star toggle must not create history records", undo)
	}

	// case: the background write reaches the store eventually
	deadline := time.Now().Add(2 * time.Second)
	for {
		if payload := store.recurrences["rec-1"].Payload; payload != nil && len(payload.Stars) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Error("background star write never arrived")
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestFinishNowAndAddMinutes(t *testing.T) {
	store := &fakeStore{recurrences: map[string]occurrence.Recurrence{
		"rec-1": {ID: "rec-1", Type: occurrence.RECURRENCE_TYPE_SINGLE, Payload: &occurrence.Payload{}},
	}}
	w, bundb, closeServer := newWorkflow(t, store)
	defer closeServer()

	occ := &occurrence.Occurrence{
		ID:             "occ-1",
		RecurrenceID:   "rec-1",
		RecurrenceType: occurrence.RECURRENCE_TYPE_SINGLE,
		Name:           "deep work",
		DefaultScheduledTimerange: &occurrence.TimeRange{
			Start: "2024-05-21T09:00:00Z", End: "2024-05-21T11:00:00Z",
		},
		SchedulableTimerange: &occurrence.TimeRange{
			Start: "2024-05-21T08:00:00Z", End: "2024-05-21T11:30:00Z",
		},
	}

	// case: finishing stamps finished_at on the occurrence's override
	func() {
		now := time.Date(2024, 5, 21, 10, 0, 0, 0, time.UTC)
		if err := w.FinishNow(context.Background(), occ, now); err != nil {
			t.Error(err)
		}
		payload := store.recurrences["rec-1"].Payload
		override, _, ok := payload.OverrideFor("2024-05-21T08:00:00Z", time.UTC)
		if !ok {
			t.Error("no override written", payload.Overrides)
		}
		if override.FinishedAt != "2024-05-21T10:00:00Z" {
			t.Error("unexpected finished_at", override.FinishedAt)
		}
		// the snapshot cache carries the patched payload right away
		cached, err := model.FindSnapshot(context.Background(), bundb, occ.ID)
		if err != nil {
			t.Error(err)
		}
		if cached.RecurrencePayload == nil || len(cached.RecurrencePayload.Overrides) != 1 {
			t.Error("patched payload never reached the snapshot cache", cached.RecurrencePayload)
		}
	}()

	// case: adding minutes accumulates, clears finished_at, and pushes
	// the schedulable end out when the new end escapes the window
	func() {
		if err := w.AddMinutes(context.Background(), occ, 60); err != nil {
			t.Error(err)
		}
		payload := store.recurrences["rec-1"].Payload
		override, _, ok := payload.OverrideFor("2024-05-21T08:00:00Z", time.UTC)
		if !ok {
			t.Error("no override written", payload.Overrides)
		}
		if override.AddedMinutes != 60 {
			t.Error("unexpected added_minutes", override.AddedMinutes)
		}
		if override.FinishedAt != "" {
			t.Error("finished_at not cleared", override.FinishedAt)
		}
		// base end 11:00 + 60m = 12:00 is past the 11:30 window end
		if override.SchedulableTimerange == nil || override.SchedulableTimerange.End != "2024-05-21T12:00:00Z" {
			t.Error("schedulable end not extended", override.SchedulableTimerange)
		}
	}()

	// case: every confirmed patch is undoable
	if undo, _ := w.History.Depths(); undo != 2 {
		t.Error("expected two history records, got", undo)
	}

	// case: non-positive minutes are rejected
	if err := w.AddMinutes(context.Background(), occ, 0); err == nil {
		t.Error("expected error for zero minutes")
	}
}

func TestAddMinutesAfterStoredFinish(t *testing.T) {
	// a stored finished_at clamps the effective end to the finish
	// instant, but the extension clears it, so the escape check must
	// run off the scheduled end plus the accumulated total
	storedOverrides := map[string]occurrence.Override{
		"2024-05-21T08:00:00Z": {FinishedAt: "2024-05-21T10:00:00Z"},
	}
	store := &fakeStore{recurrences: map[string]occurrence.Recurrence{
		"rec-1": {ID: "rec-1", Type: occurrence.RECURRENCE_TYPE_SINGLE, Payload: &occurrence.Payload{
			Overrides: storedOverrides,
		}},
	}}
	w, _, closeServer := newWorkflow(t, store)
	defer closeServer()

	occ := &occurrence.Occurrence{
		ID:             "occ-1",
		RecurrenceID:   "rec-1",
		RecurrenceType: occurrence.RECURRENCE_TYPE_SINGLE,
		Name:           "deep work",
		RecurrencePayload: &occurrence.Payload{
			Overrides: storedOverrides,
		},
		DefaultScheduledTimerange: &occurrence.TimeRange{
			Start: "2024-05-21T09:00:00Z", End: "2024-05-21T11:00:00Z",
		},
		SchedulableTimerange: &occurrence.TimeRange{
			Start: "2024-05-21T08:00:00Z", End: "2024-05-21T11:30:00Z",
		},
	}

	if err := w.AddMinutes(context.Background(), occ, 60); err != nil {
		t.Error(err)
	}
	override, _, ok := store.recurrences["rec-1"].Payload.OverrideFor("2024-05-21T08:00:00Z", time.UTC)
	if !ok {
		t.Error("no override written")
	}
	if override.AddedMinutes != 60 || override.FinishedAt != "" {
		t.Error("unexpected override", override)
	}
	// scheduled end 11:00 + 60m = 12:00 escapes the 11:30 window even
	// though the finish-clamped end 10:00 + 60m would not
	if override.SchedulableTimerange == nil || override.SchedulableTimerange.End != "2024-05-21T12:00:00Z" {
		t.Error("schedulable end not extended", override.SchedulableTimerange)
	}
}

func TestDeleteOccurrenceNoMatchingBlob(t *testing.T) {
	store := &fakeStore{recurrences: map[string]occurrence.Recurrence{
		"rec-1": {ID: "rec-1", Type: occurrence.RECURRENCE_TYPE_MULTIPLE, Payload: &occurrence.Payload{
			Blobs: []occurrence.BlobDef{
				{SchedulableTimerange: &occurrence.TimeRange{Start: "2024-05-20T09:00:00Z", End: "2024-05-20T10:00:00Z"}},
			},
		}},
	}}
	w, _, closeServer := newWorkflow(t, store)
	defer closeServer()

	occ := dateOccurrence("rec-1", "2024-05-22T09:00:00Z")
	occ.RecurrenceType = occurrence.RECURRENCE_TYPE_MULTIPLE

	// case: a key matching none of the blobs is an error, not a silent
	// round trip
	if err := w.DeleteOccurrence(context.Background(), occ); err == nil {
		t.Error("expected error when no blob matches")
	}
	if len(store.recurrences["rec-1"].Payload.Blobs) != 1 {
		t.Error("payload must stay untouched", store.recurrences["rec-1"].Payload.Blobs)
	}
	if undo, _ := w.History.Depths(); undo != 0 {
		t.Error("failed delete must not create history records", undo)
	}
}

func TestDeleteOccurrenceEvictsSnapshot(t *testing.T) {
	store := &fakeStore{recurrences: map[string]occurrence.Recurrence{
		"rec-1": {ID: "rec-1", Type: occurrence.RECURRENCE_TYPE_DATE, Payload: &occurrence.Payload{}},
	}}
	w, bundb, closeServer := newWorkflow(t, store)
	defer closeServer()
	refreshChan := make(chan struct{}, 1)
	w.RefreshChan = refreshChan

	occ := dateOccurrence("rec-1", "2024-05-20T09:00:00Z")
	if err := model.UpsertSnapshot(context.Background(), bundb, occ, w.Resolver); err != nil {
		t.Error(err)
	}

	if err := w.DeleteOccurrence(context.Background(), occ); err != nil {
		t.Error(err)
	}

	// case: the cached row is gone before any scheduler pass runs
	if _, err := model.FindSnapshot(context.Background(), bundb, occ.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Error("expected evicted snapshot, got", err)
	}

	// case: the scheduler is nudged to reconcile the siblings
	select {
	case <-refreshChan:
	default:
		t.Error("no refresh requested after a confirmed mutation")
	}
}
