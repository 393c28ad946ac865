// internal/handlers/catalog.go
package handlers

import (
	"net/http"
	"strings"

	"github.com/parlorgames/parlor/internal/engine"
)

// ListGamesHandler returns the metadata of every registered game. The
// catalog is static and needs no authentication.
func ListGamesHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names := engine.Names()
		metas := make([]engine.Meta, 0, len(names))
		for _, name := range names {
			if meta, ok := engine.MetaFor(name); ok {
				metas = append(metas, meta)
			}
		}
		writeJSON(w, http.StatusOK, metas)
	}
}

// GetGameMetaHandler returns one game's metadata, including its full
// rule schema with defaults and bounds.
func GetGameMetaHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/games/")
		meta, ok := engine.MetaFor(name)
		if !ok {
			writeError(w, http.StatusNotFound, kindNotFound, "unknown game type")
			return
		}
		writeJSON(w, http.StatusOK, meta)
	}
}
