// internal/handlers/ws.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/coder/websocket"

	"github.com/parlorgames/parlor/internal/auth"
	"github.com/parlorgames/parlor/internal/lobby"
	"github.com/parlorgames/parlor/internal/middleware"
)

// WSHandler upgrades the connection and streams room events for one
// lobby code. The socket is outbound-only: all mutations go through the
// HTTP endpoints, so a slow or dead socket can never hold up the game.
func WSHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr
		code := strings.TrimPrefix(r.URL.Path, "/ws/")
		if code == "" || strings.Contains(code, "/") {
			http.Error(w, "missing lobby code", http.StatusBadRequest)
			return
		}

		// Authenticate before the upgrade so rejects are plain HTTP.
		token := ""
		if cookie := r.Header.Get("Cookie"); strings.Contains(cookie, "auth_token=") {
			token = extractCookieToken(cookie, "auth_token")
		} else if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
		id, err := auth.AuthenticateJWT(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		// The room must exist as a lobby or a retained game.
		if _, err := s.Lobbies.Get(r.Context(), code); err != nil {
			if !errors.Is(err, lobby.ErrNotFound) {
				s.writeDomainError(w, err)
				return
			}
			if _, gerr := s.Games.Get(r.Context(), code); gerr != nil {
				http.Error(w, "unknown room", http.StatusNotFound)
				return
			}
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"parlor"},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			s.Logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "parlor" {
			c.Close(websocket.StatusPolicyViolation, "client must speak the parlor subprotocol")
			return
		}
		middleware.LogWebSocketConnect(s.Logger, code, id.ID, remoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		conn := s.Hub.Subscribe(code, id.ID, cancel)
		defer s.Hub.Unsubscribe(code, conn)

		// Reader exists only to notice the peer going away.
		go func() {
			for {
				if _, _, err := c.Read(ctx); err != nil {
					cancel()
					return
				}
			}
		}()

		done := make(chan struct{})
		go func() {
			defer close(done)
			s.Hub.WritePump(ctx, c, conn)
		}()

		select {
		case <-ctx.Done():
		case <-done:
		}
		middleware.LogWebSocketDisconnect(s.Logger, code, id.ID, ctx.Err())
		c.Close(websocket.StatusNormalClosure, "bye")
	}
}
