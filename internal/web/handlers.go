package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/simplestruct/internal/core"
	"github.com/go-chi/chi/v5"
)

// runAccepted is returned when a run is started in the background.
type runAccepted struct {
	RunID       string `json:"runId"`
	TableKey    string `json:"tableKey"`
	StatusURL   string `json:"statusUrl"`
	ProgressURL string `json:"progressUrl"`
	ResultURL   string `json:"resultUrl"`
}

// runStatus is a progress snapshot with its completion percentage.
type runStatus struct {
	core.RunProgress
	Percent int `json:"percent"`
}

// handleHealth reports liveness and run slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"runs":   s.service.RunLimiterStatus(),
	})
}

// handleListReports returns every registered report.
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ListReports())
}

// handleStartRun rebuilds a report table. With ?wait=true the run happens
// within the request and the final result is returned; otherwise the run
// is started in the background and 202 is returned with follow-up URLs.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	tableKey := chi.URLParam(r, "tableKey")
	ctx := WithRequestMetadata(r.Context(), r)

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		result, err := s.service.RunSync(ctx, tableKey)
		if err != nil {
			respondError(w, r, err, 0)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	runID, err := s.service.StartRun(ctx, tableKey)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	base := "/api/runs/" + runID
	writeJSON(w, http.StatusAccepted, runAccepted{
		RunID:       runID,
		TableKey:    tableKey,
		StatusURL:   base,
		ProgressURL: base + "/progress",
		ResultURL:   base + "/result",
	})
}

// handleRunStatus returns the current progress of a run without blocking.
func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	progress, err := s.service.GetRunProgress(chi.URLParam(r, "runID"))
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, runStatus{RunProgress: progress, Percent: progress.Percent()})
}

// handleRunProgress streams run progress as server-sent events. The stream
// ends with a complete event carrying the run result.
func (s *Server) handleRunProgress(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	progressCh, err := s.service.SubscribeProgress(runID)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported", "HTTP001")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				data := []byte("{}")
				if result, err := s.service.GetRunResult(r.Context(), runID); err == nil && result != nil {
					data, _ = json.Marshal(result)
				}
				fmt.Fprintf(w, "event: complete\ndata: %s\n\n", data)
				flusher.Flush()
				return
			}

			data, _ := json.Marshal(runStatus{RunProgress: progress, Percent: progress.Percent()})
			fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleRunResult waits for a run to finish and returns its result.
func (s *Server) handleRunResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.GetRunResult(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleCancelRun abandons an in-progress run.
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if err := s.service.CancelRun(runID); err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling", "runId": runID})
}

// handleListRuns returns recently finished runs, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ListRuns())
}

// handleReset empties one report table.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	tableKey := chi.URLParam(r, "tableKey")

	ctx := WithRequestMetadata(r.Context(), r)
	if err := s.service.Reset(ctx, tableKey); err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "tableKey": tableKey})
}

// handleResetAll empties every report table.
func (s *Server) handleResetAll(w http.ResponseWriter, r *http.Request) {
	ctx := WithRequestMetadata(r.Context(), r)
	if err := s.service.ResetAll(ctx); err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// handleMessages returns end-of-run messages. With ?drain=true the queue
// is emptied as it is read.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	var msgs []core.Message
	if drain, _ := strconv.ParseBool(r.URL.Query().Get("drain")); drain {
		msgs = s.service.DrainMessages()
	} else {
		msgs = s.service.Messages()
	}
	if msgs == nil {
		msgs = []core.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// handleVocabulary lists the terms of a vocabulary in tree order.
func (s *Server) handleVocabulary(w http.ResponseWriter, r *http.Request) {
	terms := s.service.Resolver().TaxonomyList(r.Context(), chi.URLParam(r, "vocabulary"))
	writeJSON(w, http.StatusOK, terms)
}

// handleNodeField returns the first value of a node's field, or null.
func (s *Server) handleNodeField(w http.ResponseWriter, r *http.Request) {
	nodeID, err := strconv.ParseInt(chi.URLParam(r, "nodeID"), 10, 64)
	if err != nil || nodeID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid node id", "HTTP002")
		return
	}
	field := chi.URLParam(r, "field")

	value := s.service.Resolver().FieldByID(r.Context(), nodeID, field)
	resp := map[string]any{"nodeId": nodeID, "field": field, "value": nil}
	if value.Valid {
		resp["value"] = value.String
	}
	writeJSON(w, http.StatusOK, resp)
}
