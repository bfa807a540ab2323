package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/journal-harness/internal/report"
)

type batchDetail struct {
	*report.Batch
	Running bool `json:"running"`
}

func (s *Server) getBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b, err := report.LoadBatch(r.Context(), s.store, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batchDetail{Batch: b, Running: s.dispatcher.IsBatchRunning(id)})
}

func (s *Server) batchReport(w http.ResponseWriter, r *http.Request) {
	b, err := report.LoadBatch(r.Context(), s.store, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeMarkdown(w, report.BatchMarkdown(*b))
}

func (s *Server) cancelBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.dispatcher.Cancel(id) {
		writeJSON(w, http.StatusAccepted, map[string]string{"batch_id": id, "status": "cancelling"})
		return
	}
	b, err := report.LoadBatch(r.Context(), s.store, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusConflict, map[string]string{
		"batch_id": id,
		"status":   string(b.Status),
		"error":    "batch is not running",
	})
}
