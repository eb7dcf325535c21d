package route

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"elastiview/src-server/model"
	"elastiview/src-server/occurrence"
	"elastiview/src-server/timeline"
	"elastiview/src-server/timezone"
	"elastiview/src-server/utils"
)

func Timeline(muxer *http.ServeMux, as *utils.AppState) {
	type TimelineRespBody struct {
		View      string               `json:"view"`
		Anchor    string               `json:"anchor"`
		From      string               `json:"from"`
		To        string               `json:"to"`
		Days      []timeline.DayColumn `json:"days,omitempty"`
		Summaries []timeline.Summary   `json:"summaries,omitempty"`
		Skipped   int                  `json:"skipped,omitempty"`
	}

	loc := as.Config.GetUserLocation()

	// parseAnchor accepts an ISO instant or free text ("tomorrow",
	// "next monday"), defaulting to now.
	parseAnchor := func(raw string) (time.Time, error) {
		if raw == "" {
			return time.Now().In(loc), nil
		}
		if t, err := occurrence.ParseInstant(raw, loc); err == nil {
			return t, nil
		}
		result, err := as.When.Parse(utils.CleanupString(raw), time.Now().In(loc))
		if err != nil || result == nil {
			return time.Time{}, fmt.Errorf("can't parse anchor %q", raw)
		}
		return result.Time.In(loc), nil
	}

	// render one view of the timeline
	muxer.HandleFunc("GET /timeline/{view}", func(w http.ResponseWriter, r *http.Request) {
		view, err := timezone.ParseView(r.PathValue("view"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(err.Error()))
			return
		}

		anchor, err := parseAnchor(r.URL.Query().Get("at"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(err.Error()))
			return
		}
		if rawShift := r.URL.Query().Get("shift"); rawShift != "" {
			shift, err := strconv.Atoi(rawShift)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(fmt.Sprintf("Can't parse shift: %s", err.Error())))
				return
			}
			anchor = timezone.ShiftAnchor(view, anchor, shift, loc)
		}

		occs, err := model.LoadSnapshots(r.Context(), as.BunDb)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(fmt.Sprintf("Can't load occurrence snapshots: %s", err.Error())))
			return
		}

		from, to := timezone.ViewRange(view, anchor, loc)
		resp := TimelineRespBody{
			View:   string(view),
			Anchor: anchor.Format(time.RFC3339),
			From:   from.Format(time.RFC3339),
			To:     to.Format(time.RFC3339),
		}

		startTimer := time.Now()
		switch view {
		case timezone.ViewDay, timezone.ViewWeek:
			resp.Days, resp.Skipped = as.Builder.BuildDays(occs, timezone.DaysIn(from, to, loc))
		default:
			resp.Summaries = as.Builder.BuildSummaries(occs, view, anchor)
		}
		as.RecordLatency(as.MetricChans.TimelineBuild, time.Since(startTimer))

		if err := json.NewEncoder(w).Encode(resp); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(fmt.Sprintf("Can't encode timeline response: %s", err.Error())))
			return
		}
	})

	// preview the instants a recurrence definition would produce,
	// without saving anything
	muxer.HandleFunc("POST /recurrences/preview", func(w http.ResponseWriter, r *http.Request) {
		type PreviewReqBody struct {
			Type    occurrence.RecurrenceType `json:"type"`
			Payload *occurrence.Payload       `json:"payload"`
			From    string                    `json:"from"`
			To      string                    `json:"to"`
		}
		type PreviewRespBody struct {
			Instants []string `json:"instants"`
		}

		var reqBody PreviewReqBody
		if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(fmt.Sprintf("Can't decode request body: %s", err.Error())))
			return
		}
		from, err := parseAnchor(reqBody.From)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(err.Error()))
			return
		}
		to, err := parseAnchor(reqBody.To)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(err.Error()))
			return
		}

		instants, err := as.Resolver.CadencePreview(reqBody.Type, reqBody.Payload, from, to)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(fmt.Sprintf("Can't expand recurrence: %s", err.Error())))
			return
		}

		resp := PreviewRespBody{Instants: make([]string, 0, len(instants))}
		for _, instant := range instants {
			resp.Instants = append(resp.Instants, instant.In(loc).Format(time.RFC3339))
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(fmt.Sprintf("Can't encode preview response: %s", err.Error())))
			return
		}
	})
}
