package route

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"elastiview/src-server/model"
	"elastiview/src-server/occurrence"
	"elastiview/src-server/remote"
	"elastiview/src-server/utils"
)

func Occurrence(muxer *http.ServeMux, as *utils.AppState) {
	type OccurrenceReqBody struct {
		ID string `json:"id"`
	}

	// findOccurrence resolves a request body's occurrence id against
	// the snapshot table, writing the error response itself.
	findOccurrence := func(w http.ResponseWriter, r *http.Request) *occurrence.Occurrence {
		var reqBody OccurrenceReqBody
		if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(fmt.Sprintf("Can't decode request body: %s", err.Error())))
			return nil
		}
		if reqBody.ID == "" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("Missing occurrence id"))
			return nil
		}
		occ, err := model.FindSnapshot(r.Context(), as.BunDb, reqBody.ID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(fmt.Sprintf("No occurrence %s", reqBody.ID)))
			return nil
		case err != nil:
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(fmt.Sprintf("Can't look up occurrence: %s", err.Error())))
			return nil
		}
		return occ
	}

	writeWorkflowErr := func(w http.ResponseWriter, err error) {
		var apiErr *remote.APIError
		if errors.As(err, &apiErr) {
			w.WriteHeader(http.StatusBadGateway)
		} else {
			w.WriteHeader(http.StatusInternalServerError)
		}
		w.Write([]byte(err.Error()))
	}

	// flip the star on one occurrence; applied locally right away, the
	// store write happens in the background
	muxer.HandleFunc("POST /occurrences/star", func(w http.ResponseWriter, r *http.Request) {
		occ := findOccurrence(w, r)
		if occ == nil {
			return
		}
		if err := as.Workflow.ToggleStar(occ); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(err.Error()))
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	// remove one occurrence from its recurrence
	muxer.HandleFunc("POST /occurrences/delete", func(w http.ResponseWriter, r *http.Request) {
		occ := findOccurrence(w, r)
		if occ == nil {
			return
		}
		if err := as.Workflow.DeleteOccurrence(r.Context(), occ); err != nil {
			writeWorkflowErr(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	// mark one occurrence finished as of now
	muxer.HandleFunc("POST /occurrences/finish", func(w http.ResponseWriter, r *http.Request) {
		occ := findOccurrence(w, r)
		if occ == nil {
			return
		}
		if err := as.Workflow.FinishNow(r.Context(), occ, time.Now()); err != nil {
			writeWorkflowErr(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	// extend one occurrence's effective end
	muxer.HandleFunc("POST /occurrences/add-minutes", func(w http.ResponseWriter, r *http.Request) {
		type AddMinutesReqBody struct {
			ID      string `json:"id"`
			Minutes int    `json:"minutes"`
		}
		var reqBody AddMinutesReqBody
		if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(fmt.Sprintf("Can't decode request body: %s", err.Error())))
			return
		}
		occ, err := model.FindSnapshot(r.Context(), as.BunDb, reqBody.ID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(fmt.Sprintf("No occurrence %s", reqBody.ID)))
			return
		case err != nil:
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(fmt.Sprintf("Can't look up occurrence: %s", err.Error())))
			return
		}
		if err := as.Workflow.AddMinutes(r.Context(), occ, reqBody.Minutes); err != nil {
			writeWorkflowErr(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	// remove a whole recurrence and every occurrence it produces
	muxer.HandleFunc("POST /recurrences/delete", func(w http.ResponseWriter, r *http.Request) {
		var reqBody OccurrenceReqBody
		if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(fmt.Sprintf("Can't decode request body: %s", err.Error())))
			return
		}
		if reqBody.ID == "" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("Missing recurrence id"))
			return
		}
		if err := as.Workflow.DeleteRecurrence(r.Context(), reqBody.ID); err != nil {
			writeWorkflowErr(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}
