package http

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/quizforge/quizforge/internal/engine"
)

// Event is what the UI receives over the session websocket: a fresh
// state snapshot after every mutation, plus exam clock events.
type Event struct {
	Type             string        `json:"type"` // state|tick|time_up
	State            *engine.State `json:"state,omitempty"`
	RemainingSeconds int           `json:"remaining_seconds,omitempty"`
	TimeLimitSeconds int           `json:"time_limit_seconds,omitempty"`
}

// eventHub carries events to the one connected UI. Single subscriber,
// last one wins; events published with nobody listening are dropped.
type eventHub struct {
	mu sync.Mutex
	ch chan Event
}

func (h *eventHub) subscribe() chan Event {
	ch := make(chan Event, 16)
	h.mu.Lock()
	if h.ch != nil {
		close(h.ch)
	}
	h.ch = ch
	h.mu.Unlock()
	return ch
}

func (h *eventHub) unsubscribe(ch chan Event) {
	h.mu.Lock()
	if h.ch == ch {
		close(h.ch)
		h.ch = nil
	}
	h.mu.Unlock()
}

// publish sends under the mutex: subscribe and unsubscribe close the
// channel under the same lock, so the send can never hit a closed
// channel.
func (h *eventHub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ch == nil {
		return
	}
	select {
	case h.ch <- ev:
	default: // slow reader, drop rather than stall the engine
	}
}

func (h *eventHub) tickFuncs() (onTick func(remaining, limit time.Duration), onTimeUp func()) {
	onTick = func(remaining, limit time.Duration) {
		h.publish(Event{
			Type:             "tick",
			RemainingSeconds: int(remaining / time.Second),
			TimeLimitSeconds: int(limit / time.Second),
		})
	}
	onTimeUp = func() {
		h.publish(Event{Type: "time_up"})
	}
	return onTick, onTimeUp
}

func (m *Manager) eventsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := m.get(chi.URLParam(r, "sessionID"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"}, // local app, CORS handled at the router
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		ch := sess.hub.subscribe()
		defer sess.hub.unsubscribe(ch)

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					// replaced by a newer subscriber
					conn.Close(websocket.StatusGoingAway, "superseded")
					return
				}
				data, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
					return
				}
			}
		}
	}
}
