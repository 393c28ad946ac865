// internal/handlers/lobby.go
package handlers

import (
	"net/http"

	"github.com/parlorgames/parlor/internal/lobby"
)

// CreateLobbyHandler creates a lobby with the caller as host.
func CreateLobbyHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.authenticate(w, r)
		if !ok {
			return
		}
		req := struct {
			MaxPlayers int                    `json:"max_players"`
			IsPublic   bool                   `json:"is_public"`
			GameName   string                 `json:"game_name"`
			GameRules  map[string]interface{} `json:"game_rules"`
		}{MaxPlayers: lobby.MinPlayers}
		if !decodeBody(w, r, &req) {
			return
		}

		host := lobby.Member{ID: id.ID, Nickname: id.Nickname, Avatar: id.Avatar}
		l, err := s.Lobbies.Create(r.Context(), host, lobby.CreateParams{
			MaxPlayers: req.MaxPlayers,
			IsPublic:   req.IsPublic,
			GameName:   req.GameName,
			GameRules:  req.GameRules,
		})
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

// JoinLobbyHandler adds the caller to a lobby by code.
func JoinLobbyHandler(s *Server) http.HandlerFunc {
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

		member := lobby.Member{ID: id.ID, Nickname: id.Nickname, Avatar: id.Avatar}
		l, err := s.Lobbies.Join(r.Context(), req.Code, member)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

// LeaveLobbyHandler removes the caller from their lobby. The response
// reports whether the lobby survived them.
func LeaveLobbyHandler(s *Server) http.HandlerFunc {
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

		l, err := s.Lobbies.Leave(r.Context(), req.Code, id.ID)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		if l == nil {
			writeJSON(w, http.StatusOK, map[string]interface{}{"closed": true})
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

// TransferHostHandler hands the host seat to another member.
func TransferHostHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.authenticate(w, r)
		if !ok {
			return
		}
		var req struct {
			Code      string `json:"code"`
			NewHostID string `json:"new_host_id"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Code == "" || req.NewHostID == "" {
			writeError(w, http.StatusBadRequest, kindBadRequest, "code and new_host_id are required")
			return
		}

		l, err := s.Lobbies.TransferHost(r.Context(), req.Code, id.ID, req.NewHostID)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

// UpdateSettingsHandler applies host-only lobby settings changes.
func UpdateSettingsHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.authenticate(w, r)
		if !ok {
			return
		}
		var req struct {
			Code string `json:"code"`
			lobby.SettingsUpdate
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Code == "" {
			writeError(w, http.StatusBadRequest, kindBadRequest, "code is required")
			return
		}

		l, err := s.Lobbies.UpdateSettings(r.Context(), req.Code, id.ID, req.SettingsUpdate)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

// GetLobbyHandler returns one lobby by code. Any authenticated user may
// look a lobby up; the code is the capability.
func GetLobbyHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.authenticate(w, r); !ok {
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			writeError(w, http.StatusBadRequest, kindBadRequest, "code is required")
			return
		}
		l, err := s.Lobbies.Get(r.Context(), code)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

// ListLobbiesHandler returns public, unstarted lobbies, optionally
// filtered by game.
func ListLobbiesHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.authenticate(w, r); !ok {
			return
		}
		summaries, err := s.Lobbies.ListPublic(r.Context(), r.URL.Query().Get("game"))
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		if summaries == nil {
			summaries = []lobby.Summary{}
		}
		writeJSON(w, http.StatusOK, summaries)
	}
}
