package route

import (
	"encoding/json"
	"fmt"
	"net/http"

	"elastiview/src-server/utils"
)

func History(muxer *http.ServeMux, as *utils.AppState) {
	type HistoryRespBody struct {
		UndoDepth int  `json:"undoDepth"`
		RedoDepth int  `json:"redoDepth"`
		Applied   bool `json:"applied,omitempty"`
	}

	writeDepths := func(w http.ResponseWriter, applied bool) {
		undo, redo := as.History.Depths()
		if err := json.NewEncoder(w).Encode(HistoryRespBody{
			UndoDepth: undo,
			RedoDepth: redo,
			Applied:   applied,
		}); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(fmt.Sprintf("Can't encode history response: %s", err.Error())))
		}
	}

	// current stack depths
	muxer.HandleFunc("GET /history", func(w http.ResponseWriter, r *http.Request) {
		writeDepths(w, false)
	})

	// revert the most recent mutation
	muxer.HandleFunc("POST /history/undo", func(w http.ResponseWriter, r *http.Request) {
		applied, err := as.History.Undo(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(fmt.Sprintf("Can't undo: %s", err.Error())))
			return
		}
		if applied {
			as.RequestSnapshotRefresh()
		}
		writeDepths(w, applied)
	})

	// reapply the most recently undone mutation
	muxer.HandleFunc("POST /history/redo", func(w http.ResponseWriter, r *http.Request) {
		applied, err := as.History.Redo(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(fmt.Sprintf("Can't redo: %s", err.Error())))
			return
		}
		if applied {
			as.RequestSnapshotRefresh()
		}
		writeDepths(w, applied)
	})
}
