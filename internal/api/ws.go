package api

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// handleEvents upgrades to WebSocket and streams routing events until the
// client disconnects. An optional owner filter limits the feed.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS is handled by the middleware
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ch, cancel := s.bus.Subscribe()
	defer cancel()

	s.logger.Debug("event subscriber connected", "owner", owner)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if owner != "" && ev.Owner != owner {
				continue
			}
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				s.logger.Debug("event subscriber gone", "error", err)
				return
			}
		}
	}
}
