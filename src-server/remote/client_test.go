package remote_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"elastiview/src-server/occurrence"
	"elastiview/src-server/remote"
)

func TestClientCRUD(t *testing.T) {
	store := map[string]occurrence.Recurrence{
		"rec-1": {
			ID:   "rec-1",
			Type: occurrence.RECURRENCE_TYPE_SINGLE,
			Payload: &occurrence.Payload{
				Stars: []string{"2024-05-21T08:00:00Z"},
			},
		},
	}

	muxer := http.NewServeMux()
	muxer.HandleFunc("GET /recurrences/{id}", func(w http.ResponseWriter, r *http.Request) {
		rec, ok := store[r.PathValue("id")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("no such recurrence"))
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
		store[r.PathValue("id")] = occurrence.Recurrence{
			ID:      r.PathValue("id"),
			Type:    body.Type,
			Payload: body.Payload,
		}
		w.WriteHeader(http.StatusOK)
	})
	muxer.HandleFunc("POST /recurrences", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Type    occurrence.RecurrenceType `json:"type"`
			Payload *occurrence.Payload       `json:"payload"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		rec := occurrence.Recurrence{ID: "rec-new", Type: body.Type, Payload: body.Payload}
		store[rec.ID] = rec
		json.NewEncoder(w).Encode(rec)
	})
	muxer.HandleFunc("DELETE /recurrences/{id}", func(w http.ResponseWriter, r *http.Request) {
		delete(store, r.PathValue("id"))
		w.WriteHeader(http.StatusOK)
	})
	muxer.HandleFunc("GET /blobs", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("start") == "" || r.URL.Query().Get("end") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode([]*occurrence.Occurrence{{ID: "occ-1", RecurrenceID: "rec-1"}})
	})
	server := httptest.NewServer(muxer)
	defer server.Close()

	var sampled int
	client := remote.New(server.URL, remote.WithLatencyHook(func(time.Duration) { sampled++ }))

	// case: get
	func() {
		rec, err := client.GetRecurrence(context.Background(), "rec-1")
		if err != nil {
			t.Error(err)
		}
		if rec.ID != "rec-1" || len(rec.Payload.Stars) != 1 {
			t.Error("unexpected recurrence", rec)
		}
	}()

	// case: update then read back
	func() {
		err := client.UpdateRecurrence(context.Background(), "rec-1", occurrence.RECURRENCE_TYPE_SINGLE, &occurrence.Payload{
			Exclusions: []string{"2024-05-21T08:00:00Z"},
		})
		if err != nil {
			t.Error(err)
		}
		rec, err := client.GetRecurrence(context.Background(), "rec-1")
		if err != nil {
			t.Error(err)
		}
		if len(rec.Payload.Exclusions) != 1 {
			t.Error("update not stored", rec.Payload)
		}
	}()

	// case: create returns the assigned id
	func() {
		created, err := client.CreateRecurrence(context.Background(), occurrence.RECURRENCE_TYPE_DATE, &occurrence.Payload{})
		if err != nil {
			t.Error(err)
		}
		if created.ID != "rec-new" {
			t.Error("unexpected created id", created.ID)
		}
	}()

	// case: delete then 404 as a typed APIError, no retry
	func() {
		if err := client.DeleteRecurrence(context.Background(), "rec-1"); err != nil {
			t.Error(err)
		}
		_, err := client.GetRecurrence(context.Background(), "rec-1")
		var apiErr *remote.APIError
		if !errors.As(err, &apiErr) {
			t.Error("expected APIError, got", err)
			return
		}
		if apiErr.StatusCode != http.StatusNotFound || apiErr.Body != "no such recurrence" {
			t.Error("unexpected APIError", apiErr)
		}
	}()

	// case: list occurrences
	func() {
		occs, err := client.ListOccurrences(context.Background(),
			time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 5, 27, 0, 0, 0, 0, time.UTC))
		if err != nil {
			t.Error(err)
		}
		if len(occs) != 1 || occs[0].ID != "occ-1" {
			t.Error("unexpected feed", occs)
		}
	}()

	if sampled == 0 {
		t.Error("latency hook never called")
	}
}

func TestClientRetries(t *testing.T) {
	// case: a 5xx is retried and the retry's success wins
	func() {
		attempts := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			if attempts == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			json.NewEncoder(w).Encode(occurrence.Recurrence{ID: "rec-1"})
		}))
		defer server.Close()

		client := remote.New(server.URL)
		rec, err := client.GetRecurrence(context.Background(), "rec-1")
		if err != nil {
			t.Error(err)
		}
		if attempts != 2 {
			t.Error("expected one retry, got", attempts, "attempts")
		}
		if rec.ID != "rec-1" {
			t.Error("unexpected recurrence", rec)
		}
	}()

	// case: a cancelled context stops the backoff wait
	func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()
		client := remote.New(server.URL)
		if _, err := client.GetRecurrence(ctx, "rec-1"); !errors.Is(err, context.Canceled) {
			t.Error("expected context.Canceled, got", err)
		}
	}()

	// case: a 4xx is not retried
	func() {
		attempts := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			w.WriteHeader(http.StatusConflict)
		}))
		defer server.Close()

		client := remote.New(server.URL)
		err := client.UpdateRecurrence(context.Background(), "rec-1", occurrence.RECURRENCE_TYPE_SINGLE, &occurrence.Payload{})
		var apiErr *remote.APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict {
			t.Error("expected 409 APIError, got", err)
		}
		if attempts != 1 {
			t.Error("4xx must not retry, got", attempts, "attempts")
		}
	}()
}
