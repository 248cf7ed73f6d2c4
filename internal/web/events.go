package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/aiprof/internal/observe"
)

// Websocket tuning for the event stream.
const (
	eventBuffer  = 32
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

// handleEvents upgrades to a websocket and forwards every notification from
// the hub as a JSON text message until either side closes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Events == nil {
		writeError(w, r, fmt.Errorf("event stream: %w", errUnavailable))
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		// Accept has already written the HTTP error.
		observe.Logger(r.Context()).Debug("websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	events, cancel := s.cfg.Events.Subscribe(eventBuffer)
	defer cancel()

	// The client only listens; CloseRead handles control frames and
	// cancels ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())
	log := observe.Logger(r.Context())
	log.Debug("event stream opened")

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, n)
			wcancel()
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Debug("event stream write failed", "err", err)
				}
				return
			}
		case <-ping.C:
			pctx, pcancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				return
			}
		}
	}
}
