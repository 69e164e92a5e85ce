package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/trialkit/codify/errors"
	"github.com/trialkit/codify/runner"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second

	// Event streams are write-only; inbound frames are control only
	maxMessageSize = 512
)

// statusEvent is one narration update on a run's event stream.
type statusEvent struct {
	Type   string `json:"type"`
	Run    string `json:"run"`
	Status string `json:"status"`
	Done   bool   `json:"done"`
}

// HandleRunEvents upgrades to a WebSocket and streams a run's status
// narration. Subscribers to a finished run get its final status and a
// normal close.
func (s *Server) HandleRunEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	row, err := s.runs.Get(id)
	if errors.IsNotFoundError(err) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no run %s", id))
		return
	}
	if err != nil {
		s.logger.Errorw("Failed to load run", "run", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}

	s.mu.RLock()
	run := s.active[id]
	s.mu.RUnlock()

	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("WebSocket upgrade failed", "run", id, "error", err)
		return
	}

	s.wg.Add(1)
	go s.streamEvents(conn, id, row.Status, run)
}

// streamEvents is the write pump for one event subscriber. It replays
// the stored status first so late subscribers see where the run is,
// then forwards live narration until the run finishes or the peer
// goes away.
func (s *Server) streamEvents(conn *websocket.Conn, id, lastStatus string, run *runner.Runner) {
	defer s.wg.Done()
	defer conn.Close()

	// Reader consumes control frames and signals when the peer goes away
	gone := make(chan struct{})
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	lastSent := ""
	send := func(status string) bool {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := conn.WriteJSON(statusEvent{
			Type:   "status",
			Run:    id,
			Status: status,
			Done:   status == runner.StatusDone,
		})
		lastSent = status
		return err == nil
	}
	closeNormal := func() {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}

	if lastStatus != "" && !send(lastStatus) {
		return
	}

	if run == nil {
		// The run already finished; the stored status was its last word
		closeNormal()
		return
	}

	updates, cancel := run.Subscribe()
	defer cancel()

	finished := make(chan struct{})
	go func() {
		run.Wait()
		close(finished)
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-gone:
			return
		case status, ok := <-updates:
			if !ok || !send(status) {
				return
			}
		case <-finished:
			// Drain narration buffered before the run wound down
			for drained := false; !drained; {
				select {
				case status := <-updates:
					if !send(status) {
						return
					}
				default:
					drained = true
				}
			}
			// A late subscription may have missed the final word
			if final := run.Status(); final != "" && final != lastSent {
				if !send(final) {
					return
				}
			}
			closeNormal()
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
