// Package api serves the harness over HTTP: experiment and batch control,
// reports, progress streams and presets.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/journal-harness/internal/dispatch"
	"github.com/sells-group/journal-harness/internal/model"
	"github.com/sells-group/journal-harness/internal/monitoring"
	"github.com/sells-group/journal-harness/internal/progress"
	"github.com/sells-group/journal-harness/internal/provider"
	"github.com/sells-group/journal-harness/internal/store"
)

// errRunActive rejects deleting a run its runner still owns.
var errRunActive = eris.New("run is still pending or running")

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	store      store.Store
	dispatcher *dispatch.Dispatcher
	providers  *provider.Registry
	// heartbeat is the SSE keep-alive interval.
	heartbeat time.Duration

	health        *monitoring.Collector
	lookbackHours int
}

// NewServer creates a Server.
func NewServer(st store.Store, d *dispatch.Dispatcher, providers *provider.Registry) *Server {
	return &Server{store: st, dispatcher: d, providers: providers, heartbeat: 15 * time.Second}
}

// WithMonitoring exposes a health snapshot over the given lookback window at
// /api/monitoring.
func (s *Server) WithMonitoring(c *monitoring.Collector, lookbackHours int) *Server {
	s.health = c
	s.lookbackHours = lookbackHours
	return s
}

// Router builds the chi router. corsOrigins lists browser origins allowed to
// call the API.
func (s *Server) Router(corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/providers", s.listProviders)
		r.Get("/stats", s.stats)
		r.Get("/monitoring", s.monitoringSnapshot)

		r.Route("/experiments", func(r chi.Router) {
			r.Get("/", s.listRuns)
			r.Post("/", s.startRun)
			r.Post("/batch", s.startBatch)
			r.Get("/{id}", s.getRun)
			r.Delete("/{id}", s.deleteRun)
			r.Get("/{id}/report", s.runReport)
			r.Get("/{id}/stream", s.runStream)
		})

		r.Route("/batches/{id}", func(r chi.Router) {
			r.Get("/", s.getBatch)
			r.Get("/report", s.batchReport)
			r.Get("/stream", s.batchStream)
			r.Post("/cancel", s.cancelBatch)
		})

		r.Route("/presets", func(r chi.Router) {
			r.Get("/", s.listPresets)
			r.Post("/", s.createPreset)
			r.Get("/{id}", s.getPreset)
			r.Delete("/{id}", s.deletePreset)
			r.Post("/{id}/apply", s.applyPreset)
		})
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) listProviders(w http.ResponseWriter, _ *http.Request) {
	type entry struct {
		Name string `json:"name"`
		Stub bool   `json:"stub"`
	}
	names := s.providers.Names()
	out := make([]entry, 0, len(names))
	for _, n := range names {
		out = append(out, entry{Name: n, Stub: s.providers.IsStub(n)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) monitoringSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "monitoring is disabled"})
		return
	}
	snap, err := s.health.Collect(r.Context(), s.lookbackHours)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeMarkdown(w http.ResponseWriter, doc string) {
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, progress.ErrUnknownStream):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrInvalidConfig):
		status = http.StatusBadRequest
	case errors.Is(err, errRunActive), errors.Is(err, store.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, dispatch.ErrShutdown):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return eris.Wrapf(model.ErrInvalidConfig, "decode request body: %v", err)
	}
	return nil
}
