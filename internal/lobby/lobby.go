// internal/lobby/lobby.go
package lobby

import (
	"encoding/json"
	"errors"
	"math/rand"
)

// Capacity bounds for any lobby.
const (
	MinPlayers = 2
	MaxPlayers = 6
)

// Lobby-state errors. All of these are client-facing conflicts or bad
// requests, as opposed to infrastructure failures from the store.
var (
	ErrNotFound       = errors.New("lobby not found")
	ErrFull           = errors.New("lobby is full")
	ErrAlreadyStarted = errors.New("lobby has already started a game")
	ErrAlreadyMember  = errors.New("user is already a member of this lobby")
	ErrAlreadyInLobby = errors.New("user is already in another lobby")
	ErrNotMember      = errors.New("user is not a member of this lobby")
	ErrNotHost        = errors.New("only the host may do that")
	ErrBelowMembers   = errors.New("max_players cannot be below current member count")
)

// Member is one user's seat in a lobby. Members are kept in join order;
// that order fixes host succession and the turn order of a game started
// from the lobby.
type Member struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar,omitempty"`
	IsHost   bool   `json:"is_host"`
	JoinedAt int64  `json:"joined_at"`
}

// Lobby is the durable pre-game waiting room, stored as a JSON blob
// under lobby:{code}. Exactly one member has IsHost set.
type Lobby struct {
	Code         string                 `json:"code"`
	HostID       string                 `json:"host_id"`
	MaxPlayers   int                    `json:"max_players"`
	Members      []Member               `json:"members"`
	IsPublic     bool                   `json:"is_public"`
	SelectedGame string                 `json:"selected_game,omitempty"`
	GameRules    map[string]interface{} `json:"game_rules,omitempty"`
	InGame       bool                   `json:"in_game"`
	CreatedAt    int64                  `json:"created_at"`
}

// MemberIndex returns the position of a user in the member list, or -1.
func (l *Lobby) MemberIndex(userID string) int {
	for i, m := range l.Members {
		if m.ID == userID {
			return i
		}
	}
	return -1
}

// PlayerIDs returns member ids in join order.
func (l *Lobby) PlayerIDs() []string {
	ids := make([]string, len(l.Members))
	for i, m := range l.Members {
		ids[i] = m.ID
	}
	return ids
}

func (l *Lobby) marshal() ([]byte, error) { return json.Marshal(l) }

func unmarshalLobby(data []byte) (*Lobby, error) {
	var l Lobby
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 6

	// codeAttempts bounds collision retries during create.
	codeAttempts = 5
)

// newCode generates a 6-character uppercase lobby code. Ambiguous
// characters (0/O, 1/I) are excluded from the alphabet.
func newCode() string {
	buf := make([]byte, codeLength)
	for i := range buf {
		buf[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(buf)
}
