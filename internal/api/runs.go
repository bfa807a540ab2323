package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/journal-harness/internal/model"
	"github.com/sells-group/journal-harness/internal/report"
	"github.com/sells-group/journal-harness/internal/store"
)

// runDetail is a run with its claims grouped by persona.
type runDetail struct {
	report.Member
	ClaimsByPersona map[model.Persona][]model.ClaimWithReceipts `json:"claims_by_persona"`
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	var cfg model.ExperimentConfig
	if err := decodeJSON(r, &cfg); err != nil {
		writeError(w, err)
		return
	}
	started, err := s.dispatcher.StartRun(r.Context(), cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, started)
}

func (s *Server) startBatch(w http.ResponseWriter, r *http.Request) {
	var req model.BatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	started, err := s.dispatcher.StartBatch(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, started)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	filter, err := runFilterFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	m, err := report.LoadRun(r.Context(), s.store, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	detail := runDetail{Member: *m, ClaimsByPersona: make(map[model.Persona][]model.ClaimWithReceipts)}
	for _, c := range m.Claims {
		detail.ClaimsByPersona[c.Claim.Persona] = append(detail.ClaimsByPersona[c.Claim.Persona], c)
	}
	writeJSON(w, http.StatusOK, detail)
}

// deleteRun soft deletes by default; ?hard=true removes the run and
// everything it produced.
func (s *Server) deleteRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !run.Status.Terminal() {
		writeError(w, eris.Wrapf(errRunActive, "run %s", id))
		return
	}

	hard, _ := strconv.ParseBool(r.URL.Query().Get("hard"))
	if hard {
		err = s.store.DeleteRun(r.Context(), id)
	} else {
		err = s.store.SoftDeleteRun(r.Context(), id)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) runReport(w http.ResponseWriter, r *http.Request) {
	m, err := report.LoadRun(r.Context(), s.store, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeMarkdown(w, report.RunMarkdown(*m))
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	filter, err := runFilterFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if filter.Limit == 0 {
		filter.Limit = 10000
	}
	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report.ComputeStats(runs))
}

func runFilterFromQuery(r *http.Request) (store.RunFilter, error) {
	q := r.URL.Query()
	f := store.RunFilter{
		Provider:  q.Get("provider"),
		AthleteID: q.Get("athlete_id"),
		BatchID:   q.Get("batch_id"),
	}
	if v := q.Get("status"); v != "" {
		st, err := model.ParseExperimentStatus(v)
		if err != nil {
			return f, eris.Wrap(model.ErrInvalidConfig, err.Error())
		}
		f.Status = st
	}
	if v := q.Get("type"); v != "" {
		t, err := model.ParseExperimentType(v)
		if err != nil {
			return f, err
		}
		f.Type = t
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, eris.Wrapf(model.ErrInvalidConfig, "%s must be a non-negative integer", name)
		}
		*dst = n
	}
	return f, nil
}
