// internal/events/events.go
package events

import "context"

// Event names published to rooms (room = lobby code).
const (
	LobbyMemberJoined    = "lobby_member_joined"
	LobbyMemberLeft      = "lobby_member_left"
	LobbyHostTransferred = "lobby_host_transferred"
	LobbySettingsUpdated = "lobby_settings_updated"
	LobbyClosed          = "lobby_closed"
	GameStarted          = "game_started"
	MoveMade             = "move_made"
	GameEnded            = "game_ended"
)

// Emitter fans events out to the clients connected to a room. It holds
// no authoritative state: delivery is best-effort and a failed emit must
// never roll back the store mutation it reports on. Clients resync by
// re-fetching current state on reconnect.
type Emitter interface {
	Emit(ctx context.Context, room, event string, payload interface{})
}

// Nop discards all events. Useful as a default and in tests that do not
// assert on broadcasts.
type Nop struct{}

func (Nop) Emit(ctx context.Context, room, event string, payload interface{}) {}
