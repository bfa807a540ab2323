// Package progress implements the per-batch and per-run event streams.
//
// A stream keeps its events in order so a subscriber that joins late
// replays history before receiving live events. Once a terminal event is
// published the stream is closed; it is dropped after its last subscriber
// leaves and a grace period passes.
package progress

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/journal-harness/internal/model"
)

// ErrUnknownStream is returned when subscribing to a stream that was never
// opened or has already been collected.
var ErrUnknownStream = eris.New("unknown progress stream")

// DefaultHistory is the number of events a stream retains for replay.
const DefaultHistory = 1024

// DefaultGrace is how long a finished stream stays replayable.
const DefaultGrace = 2 * time.Minute

// Hub is the process-wide registry of streams keyed by batch or run id.
type Hub struct {
	mu      sync.Mutex
	streams map[string]*stream
	grace   time.Duration
	history int
}

type stream struct {
	id     string
	events []model.ProgressEvent
	// base is the absolute index of events[0]; older events were trimmed.
	base   int
	closed bool
	subs   int
	// notify is closed and replaced on every publish.
	notify chan struct{}
	gc     *time.Timer
}

// NewHub creates a Hub. Zero values select the defaults.
func NewHub(grace time.Duration, history int) *Hub {
	if grace <= 0 {
		grace = DefaultGrace
	}
	if history <= 0 {
		history = DefaultHistory
	}
	return &Hub{streams: make(map[string]*stream), grace: grace, history: history}
}

// Open creates a stream. Opening an existing stream is a no-op.
func (h *Hub) Open(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.streams[id]; ok {
		return
	}
	h.streams[id] = &stream{id: id, notify: make(chan struct{})}
}

// Publish appends ev to the stream. A terminal event closes it. Events for
// unknown or closed streams are dropped.
func (h *Hub) Publish(id string, ev model.ProgressEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.streams[id]
	if !ok || s.closed {
		zap.L().Debug("progress: dropping event", zap.String("stream", id), zap.String("type", string(ev.Type)))
		return
	}

	s.events = append(s.events, ev)
	if over := len(s.events) - h.history; over > 0 && !ev.Type.Terminal() {
		s.events = append([]model.ProgressEvent(nil), s.events[over:]...)
		s.base += over
	}
	if ev.Type.Terminal() {
		s.closed = true
		if s.subs == 0 {
			h.scheduleGC(s)
		}
	}
	close(s.notify)
	s.notify = make(chan struct{})
}

// Active reports whether the stream exists and has not seen its terminal
// event.
func (h *Hub) Active(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.streams[id]
	return ok && !s.closed
}

// History returns a copy of the retained events.
func (h *Hub) History(id string) ([]model.ProgressEvent, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.streams[id]
	if !ok {
		return nil, false
	}
	return append([]model.ProgressEvent(nil), s.events...), true
}

// Subscribe starts reading the stream from its oldest retained event.
func (h *Hub) Subscribe(id string) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.streams[id]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownStream, "stream %s", id)
	}
	s.subs++
	if s.gc != nil {
		s.gc.Stop()
		s.gc = nil
	}
	return &Subscription{hub: h, s: s, cursor: s.base}, nil
}

// Close stops every pending collection timer and forgets all streams.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.streams {
		if s.gc != nil {
			s.gc.Stop()
		}
		delete(h.streams, id)
	}
}

// scheduleGC must be called with h.mu held.
func (h *Hub) scheduleGC(s *stream) {
	if s.gc != nil {
		s.gc.Stop()
	}
	s.gc = time.AfterFunc(h.grace, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if cur, ok := h.streams[s.id]; ok && cur == s && s.subs == 0 {
			delete(h.streams, s.id)
		}
	})
}

// Subscription is one consumer's cursor into a stream. It is not safe for
// concurrent use.
type Subscription struct {
	hub    *Hub
	s      *stream
	cursor int
	done   bool
}

// Next blocks until the next event is available. It returns false once the
// terminal event has been delivered, or with ctx's error when ctx ends first.
func (sub *Subscription) Next(ctx context.Context) (model.ProgressEvent, bool, error) {
	for {
		sub.hub.mu.Lock()
		s := sub.s
		if sub.done {
			sub.hub.mu.Unlock()
			return model.ProgressEvent{}, false, nil
		}
		if sub.cursor < s.base {
			sub.cursor = s.base
		}
		if idx := sub.cursor - s.base; idx < len(s.events) {
			ev := s.events[idx]
			sub.cursor++
			if ev.Type.Terminal() {
				sub.done = true
			}
			sub.hub.mu.Unlock()
			return ev, true, nil
		}
		if s.closed {
			sub.done = true
			sub.hub.mu.Unlock()
			return model.ProgressEvent{}, false, nil
		}
		wait := s.notify
		sub.hub.mu.Unlock()

		select {
		case <-ctx.Done():
			return model.ProgressEvent{}, false, ctx.Err()
		case <-wait:
		}
	}
}

// Close releases the subscription. It is safe to call more than once.
func (sub *Subscription) Close() {
	sub.hub.mu.Lock()
	defer sub.hub.mu.Unlock()
	if sub.s == nil {
		return
	}
	s := sub.s
	sub.s = nil
	sub.done = true
	s.subs--
	if s.subs == 0 && s.closed {
		if cur, ok := sub.hub.streams[s.id]; ok && cur == s {
			sub.hub.scheduleGC(s)
		}
	}
}
