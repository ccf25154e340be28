package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/huangdanqi/pawprint/internal/events"
)

// upgrader accepts any origin; the API is LAN-only and carries no
// credentials.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// streamWriteTimeout bounds one frame write to a slow client.
const streamWriteTimeout = 10 * time.Second

// handleEventStream upgrades to a WebSocket and forwards bus events as
// JSON frames until the client goes away. A slow client misses events
// rather than backing up the bus; that is the bus contract.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if s.deps.Bus == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "event stream not configured")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := s.deps.Bus.Subscribe(64)
	defer s.deps.Bus.Unsubscribe(ch)

	s.logger.Debug("event stream opened", "remote", r.RemoteAddr)

	// Reader goroutine: we send only, but reading surfaces close
	// frames and connection loss.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := s.writeEvent(conn, evt); err != nil {
				s.logger.Debug("event stream write failed",
					"remote", r.RemoteAddr, "error", err)
				return
			}
		}
	}
}

func (s *Server) writeEvent(conn *websocket.Conn, evt events.Event) error {
	if err := conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(evt)
}
