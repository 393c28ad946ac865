// internal/handlers/api.go
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/parlorgames/parlor/internal/auth"
	"github.com/parlorgames/parlor/internal/engine"
	"github.com/parlorgames/parlor/internal/events"
	"github.com/parlorgames/parlor/internal/lobby"
	"github.com/parlorgames/parlor/internal/session"
	"github.com/parlorgames/parlor/internal/store"
)

// Server bundles the dependencies every handler needs.
type Server struct {
	Logger  *logrus.Logger
	Lobbies *lobby.Manager
	Games   *session.Orchestrator
	Hub     *events.Hub
}

func NewServer(logger *logrus.Logger, lobbies *lobby.Manager, games *session.Orchestrator, hub *events.Hub) *Server {
	return &Server{Logger: logger, Lobbies: lobbies, Games: games, Hub: hub}
}

// Error envelope kinds.
const (
	kindBadRequest   = "bad_request"
	kindConflict     = "conflict"
	kindNotFound     = "not_found"
	kindInvalidMove  = "invalid_move"
	kindInternal     = "internal"
	kindUnauthorized = "unauthorized"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, map[string]errorBody{"error": {Kind: kind, Message: message}})
}

// writeDomainError translates domain errors onto the envelope. Anything
// unrecognized is an internal failure and its detail stays in the logs.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var invalid *session.InvalidMoveError
	var cfg *engine.ConfigError
	switch {
	case errors.As(err, &invalid):
		writeError(w, http.StatusUnprocessableEntity, kindInvalidMove, invalid.Reason)
	case errors.As(err, &cfg):
		writeError(w, http.StatusBadRequest, kindBadRequest, cfg.Error())
	case errors.Is(err, lobby.ErrNotFound), errors.Is(err, session.ErrNotFound), errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, kindNotFound, err.Error())
	case errors.Is(err, lobby.ErrNotHost), errors.Is(err, lobby.ErrNotMember), errors.Is(err, session.ErrNotParticipant):
		writeError(w, http.StatusForbidden, kindUnauthorized, err.Error())
	case errors.Is(err, lobby.ErrFull),
		errors.Is(err, lobby.ErrAlreadyStarted),
		errors.Is(err, lobby.ErrAlreadyMember),
		errors.Is(err, lobby.ErrAlreadyInLobby),
		errors.Is(err, session.ErrAlreadyExists),
		errors.Is(err, session.ErrGameOver),
		errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, kindConflict, err.Error())
	case errors.Is(err, engine.ErrUnknownGame),
		errors.Is(err, session.ErrNoGameSelected),
		errors.Is(err, lobby.ErrBelowMembers):
		writeError(w, http.StatusBadRequest, kindBadRequest, err.Error())
	default:
		s.Logger.WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, kindInternal, "internal error")
	}
}

// authenticate pulls the caller's identity from the auth_token cookie or
// a bearer token. On failure it writes the error response itself.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	token := ""
	if cookie := r.Header.Get("Cookie"); strings.Contains(cookie, "auth_token=") {
		token = extractCookieToken(cookie, "auth_token")
	} else if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimPrefix(h, "Bearer ")
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, kindUnauthorized, "missing auth_token")
		return auth.Identity{}, false
	}
	id, err := auth.AuthenticateJWT(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, kindUnauthorized, "invalid token")
		return auth.Identity{}, false
	}
	return id, true
}

// decodeBody decodes a JSON request body. An empty body is fine; the
// caller's zero value stands.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, kindBadRequest, "bad request payload")
		return false
	}
	return true
}

// extractCookieToken extracts a named cookie value from "Cookie" header, or returns empty if not found.
func extractCookieToken(cookieHeader, cookieName string) string {
	parts := strings.Split(cookieHeader, cookieName+"=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}
