package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	apperrors "github.com/copyleftdev/tourney/internal/errors"
	"github.com/copyleftdev/tourney/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// handleStream upgrades to a websocket and pushes job events until the job
// is done or the client goes away. The first message is a snapshot of the
// job; a job that is already terminal gets a single done message.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snapshot, events, err := s.jobs.Subscribe(id)
	if err != nil {
		apperrors.Respond(w, r, err)
		return
	}
	defer s.jobs.Unsubscribe(id, events)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already answered the request
		return
	}
	defer func() { _ = conn.Close() }()
	logger := logging.FromContext(r.Context()).WithField("job_id", id)
	logger.Debug("stream opened")

	// Read loop: handles pongs and notices the client closing
	conn.SetReadLimit(1 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(evt Event) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(evt)
	}
	finish := func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"),
			time.Now().Add(writeWait))
	}

	first := Event{Type: EventStatus, JobID: id, Data: map[string]any{"job": snapshot}}
	if snapshot.Status.Terminal() {
		first.Type = EventDone
	}
	if err := write(first); err != nil {
		return
	}
	if first.Type == EventDone {
		finish()
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := write(evt); err != nil {
				logger.Debug("stream write failed", map[string]interface{}{"error": err.Error()})
				return
			}
			if evt.Type == EventDone {
				finish()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-closed:
			logger.Debug("stream closed by client")
			return
		}
	}
}
