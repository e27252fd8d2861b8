package realtime

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// IdentityResolver returns the user id behind a request, or "" for anonymous.
type IdentityResolver func(r *http.Request) string

// ServeWS upgrades requests from allowed origins and attaches them to the hub.
// Requests without an Origin header (non-browser clients) are accepted.
func ServeWS(h *Hub, resolve IdentityResolver, allowedOrigins []string) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[strings.TrimRight(origin, "/")] = struct{}{}
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := resolve(r)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Debug("websocket upgrade failed", zap.Error(err))
			return
		}

		c := newClient(h, conn, userID)
		if !h.join(c) {
			_ = conn.Close()
			return
		}
		go c.writePump()
		c.readPump(r.Context())
	})
}
