package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/journal-harness/internal/experiment"
	"github.com/sells-group/journal-harness/internal/model"
	"github.com/sells-group/journal-harness/internal/progress"
	"github.com/sells-group/journal-harness/internal/report"
)

func (s *Server) runStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.stream(w, r, id, func(ctx context.Context) (model.ProgressEvent, error) {
		m, err := report.LoadRun(ctx, s.store, id)
		if err != nil {
			return model.ProgressEvent{}, err
		}
		return model.ProgressEvent{
			Type:    model.EventRunComplete,
			Message: "run " + string(m.Run.Status),
			RunID:   id,
			Data:    &experiment.RunResult{Run: &m.Run, Claims: m.Claims, PositionTests: m.PositionTests},
		}, nil
	})
}

func (s *Server) batchStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.stream(w, r, id, func(ctx context.Context) (model.ProgressEvent, error) {
		b, err := report.LoadBatch(ctx, s.store, id)
		if err != nil {
			return model.ProgressEvent{}, err
		}
		return model.ProgressEvent{
			Type:    model.EventBatchComplete,
			Message: "batch " + string(b.Status),
			Data:    b.Comparison,
		}, nil
	})
}

// stream writes a progress stream as server-sent events until its terminal
// event or until the client goes away. When the stream has already been
// collected, settled loads the persisted outcome and it is sent as the only
// event.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, id string, settled func(context.Context) (model.ProgressEvent, error)) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, errors.New("streaming unsupported"))
		return
	}

	sub, err := s.dispatcher.Subscribe(id)
	if err != nil {
		if !errors.Is(err, progress.ErrUnknownStream) {
			writeError(w, err)
			return
		}
		ev, lerr := settled(r.Context())
		if lerr != nil {
			writeError(w, lerr)
			return
		}
		startSSE(w)
		writeEvent(w, ev)
		flusher.Flush()
		return
	}
	defer sub.Close()

	startSSE(w)
	flusher.Flush()
	for {
		waitCtx, cancel := context.WithTimeout(r.Context(), s.heartbeat)
		ev, ok, err := sub.Next(waitCtx)
		cancel()
		switch {
		case err != nil && r.Context().Err() != nil:
			return
		case err != nil:
			// Idle: keep intermediaries from closing the connection.
			if _, werr := fmt.Fprint(w, ": ping\n\n"); werr != nil {
				return
			}
			flusher.Flush()
			continue
		case !ok:
			return
		}
		writeEvent(w, ev)
		flusher.Flush()
	}
}

func startSSE(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
}

func writeEvent(w http.ResponseWriter, ev model.ProgressEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		zap.L().Warn("api: encode progress event", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
}
