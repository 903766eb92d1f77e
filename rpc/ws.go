package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"ecorelease/core/events"
)

const (
	wsWriteTimeout = 10 * time.Second
)

// handleEventsWS streams committed contract events. An optional "action"
// query parameter restricts the stream to one action.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s == nil || s.broadcaster == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	action := strings.TrimSpace(r.URL.Query().Get("action"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	// Reads are only needed to observe the peer closing.
	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, action); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, action string) error {
	updates, cancel := s.broadcaster.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			contractEvt, ok := evt.(events.ContractEvent)
			if !ok {
				continue
			}
			if action != "" && contractEvt.Type != events.TypeForAction(action) {
				continue
			}
			if err := writeEvent(ctx, conn, contractEvt); err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt events.ContractEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
