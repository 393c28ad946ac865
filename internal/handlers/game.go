// internal/handlers/game.go
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/parlorgames/parlor/internal/engine"
	"github.com/parlorgames/parlor/internal/session"
)

// stateResponse decorates the persisted state with derived fields the
// client would otherwise have to compute against its own clock.
type stateResponse struct {
	*engine.State
	CurrentPlayerID  string  `json:"current_player_id"`
	RemainingSeconds float64 `json:"remaining_seconds"`
}

func newStateResponse(st *engine.State) stateResponse {
	return stateResponse{
		State:            st,
		CurrentPlayerID:  st.CurrentPlayerID(),
		RemainingSeconds: session.RemainingForClient(st, time.Now()),
	}
}

// CreateGameHandler starts the lobby's selected game. Host only.
func CreateGameHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.authenticate(w, r)
		if !ok {
			return
		}
		var req struct {
			Code string `json:"code"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Code == "" {
			writeError(w, http.StatusBadRequest, kindBadRequest, "code is required")
			return
		}

		st, err := s.Games.Create(r.Context(), req.Code, id.ID)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newStateResponse(st))
	}
}

// MoveHandler submits the caller's move. Illegal moves come back as
// structured rejections; the state is untouched.
func MoveHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.authenticate(w, r)
		if !ok {
			return
		}
		var req struct {
			Code string          `json:"code"`
			Move json.RawMessage `json:"move"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Code == "" || len(req.Move) == 0 {
			writeError(w, http.StatusBadRequest, kindBadRequest, "code and move are required")
			return
		}

		st, err := s.Games.MakeMove(r.Context(), req.Code, id.ID, req.Move)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newStateResponse(st))
	}
}

// ForfeitHandler resigns the caller from their running game.
func ForfeitHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.authenticate(w, r)
		if !ok {
			return
		}
		var req struct {
			Code string `json:"code"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Code == "" {
			writeError(w, http.StatusBadRequest, kindBadRequest, "code is required")
			return
		}

		st, err := s.Games.Forfeit(r.Context(), req.Code, id.ID)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newStateResponse(st))
	}
}

// GameStateHandler returns the current session state, terminal states
// included while their retention window lasts.
func GameStateHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.authenticate(w, r); !ok {
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			writeError(w, http.StatusBadRequest, kindBadRequest, "code is required")
			return
		}
		st, err := s.Games.Get(r.Context(), code)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newStateResponse(st))
	}
}

// DeleteGameHandler tears a session down ahead of its retention expiry.
func DeleteGameHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.authenticate(w, r)
		if !ok {
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			writeError(w, http.StatusBadRequest, kindBadRequest, "code is required")
			return
		}
		if err := s.Games.Delete(r.Context(), code, id.ID); err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": true})
	}
}
