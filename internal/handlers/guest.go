// internal/handlers/guest.go
package handlers

import (
	"net/http"

	"github.com/parlorgames/parlor/internal/auth"
)

// GuestHandler mints a guest identity and returns its signed token.
// There is no account store; the token is the whole identity.
func GuestHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Nickname string `json:"nickname"`
			Avatar   string `json:"avatar"`
		}
		if !decodeBody(w, r, &req) {
			return
		}

		id := auth.NewGuest(req.Nickname, req.Avatar)
		token, err := auth.CreateJWT(id)
		if err != nil {
			s.Logger.WithError(err).Error("failed to sign guest token")
			writeError(w, http.StatusInternalServerError, kindInternal, "internal error")
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     "auth_token",
			Value:    token,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"user_id":  id.ID,
			"nickname": id.Nickname,
			"avatar":   id.Avatar,
			"token":    token,
		})
	}
}

// MeHandler reports the caller's presence: which lobby and game, if any,
// they are currently part of.
func MeHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.authenticate(w, r)
		if !ok {
			return
		}

		lobbyCode, err := s.Lobbies.CodeForUser(r.Context(), id.ID)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		gameCode, err := s.Games.CodeForUser(r.Context(), id.ID)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"user_id":    id.ID,
			"nickname":   id.Nickname,
			"lobby_code": lobbyCode,
			"game_code":  gameCode,
		})
	}
}
