package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/journal-harness/internal/model"
	"github.com/sells-group/journal-harness/internal/preset"
)

type presetRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Config      json.RawMessage `json:"config"`
}

func (s *Server) listPresets(w http.ResponseWriter, r *http.Request) {
	presets, err := s.store.ListPresets(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, presets)
}

// createPreset upserts by name. The config is decoded leniently, so older
// or partial configs are stored with defaults filled in.
func (s *Server) createPreset(w http.ResponseWriter, r *http.Request) {
	var req presetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, eris.Wrap(model.ErrInvalidConfig, "preset name is required"))
		return
	}
	p := &model.ExperimentPreset{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Config:      preset.Decode(req.Config),
	}
	if err := s.store.SavePreset(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) getPreset(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetPreset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) deletePreset(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeletePreset(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// applyPreset starts a batch for sweep presets and a single run otherwise.
// Request fields override the preset.
func (s *Server) applyPreset(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetPreset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var o preset.Overrides
	if err := decodeJSON(r, &o); err != nil {
		writeError(w, err)
		return
	}
	plan, err := preset.Apply(p.Config, o)
	if err != nil {
		writeError(w, err)
		return
	}

	if plan.Batch != nil {
		started, err := s.dispatcher.StartBatch(r.Context(), *plan.Batch)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, started)
		return
	}
	started, err := s.dispatcher.StartRun(r.Context(), *plan.Single)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, started)
}
