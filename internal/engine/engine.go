// internal/engine/engine.go
package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// StateSchemaVersion is stamped into every persisted session state so a
// future rule change cannot silently corrupt in-flight sessions.
const StateSchemaVersion = 1

// Result enumerates the terminal (and the single non-terminal) outcomes
// of a session.
type Result string

const (
	ResultInProgress Result = "in_progress"
	ResultPlayerWin  Result = "player_win"
	ResultDraw       Result = "draw"
	ResultForfeit    Result = "forfeit"
	ResultTimeout    Result = "timeout"
)

// CauseTimeout marks a MoveRecord produced by the timeout watcher
// rather than by a player action.
const CauseTimeout = "timeout"

// ErrUnknownGame is returned when a game-type name has no registered engine.
var ErrUnknownGame = errors.New("unknown game type")

// ConfigError reports an invalid engine configuration (bad player count,
// rule value out of range, unknown rule). It is fatal to session creation
// and surfaced to the caller as a bad request.
type ConfigError struct {
	Field  string
	Detail string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return e.Detail
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Detail)
}

// Verdict is the structured outcome of a move validation. Engines never
// raise on illegal moves; they return a Verdict and the session layer
// turns it into a client-facing error.
type Verdict struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Allow returns a passing verdict.
func Allow() Verdict { return Verdict{Valid: true} }

// Deny returns a failing verdict with a human-readable reason.
func Deny(format string, args ...interface{}) Verdict {
	return Verdict{Valid: false, Reason: fmt.Sprintf(format, args...)}
}

// MoveRecord folds the most recent move into the session state for
// observability. Moves are never stored independently.
type MoveRecord struct {
	PlayerID string          `json:"player_id"`
	Move     json.RawMessage `json:"move,omitempty"`
	Cause    string          `json:"cause,omitempty"`
	At       int64           `json:"at"`
}

// State is the authoritative, store-persisted representation of a
// running session. Board is opaque to everything except the engine that
// produced it.
type State struct {
	SchemaVersion int                    `json:"schema_version"`
	GameName      string                 `json:"game_name"`
	PlayerIDs     []string               `json:"player_ids"`
	Rules         map[string]interface{} `json:"rules"`
	Board         json.RawMessage        `json:"board"`
	MoveCount     int                    `json:"move_count"`
	LastMove      *MoveRecord            `json:"last_move,omitempty"`
	CurrentTurn   int                    `json:"current_turn"`
	Result        Result                 `json:"result"`
	WinnerID      string                 `json:"winner_id,omitempty"`
	Timing        Timing                 `json:"timing"`

	// Revision increments on every persist; conditional writes compare it
	// so a concurrent mutation forces the loser to retry or report conflict.
	Revision int64 `json:"revision"`
}

// CurrentPlayerID returns the id of the player whose turn is open.
func (st *State) CurrentPlayerID() string {
	return st.PlayerIDs[st.CurrentTurn]
}

// Terminal reports whether the session has reached a final result. Once
// terminal, no further moves or forfeits are accepted.
func (st *State) Terminal() bool {
	return st.Result != ResultInProgress
}

// PlayerIndex returns the turn-order index of a player, or -1.
func (st *State) PlayerIndex(playerID string) int {
	for i, id := range st.PlayerIDs {
		if id == playerID {
			return i
		}
	}
	return -1
}

// nextToAct returns the index of the player due to make the next move.
// CheckResult runs between ApplyMove and AdvanceTurn, so when the last
// record belongs to the player the turn pointer still names, the player
// due to act is the following one. On a freshly loaded state the pointer
// itself is authoritative. Timeout skips already advance the pointer.
func nextToAct(st *State) int {
	n := len(st.PlayerIDs)
	if st.LastMove != nil && st.LastMove.Cause == "" && st.PlayerIDs[st.CurrentTurn] == st.LastMove.PlayerID {
		return (st.CurrentTurn + 1) % n
	}
	return st.CurrentTurn
}

// Config carries the validated construction arguments for an engine
// instance.
type Config struct {
	SessionID string
	PlayerIDs []string
	Rules     map[string]interface{}
}

// Engine is the contract every game implements: stateless legality and
// resolution logic over the opaque session state. Engines know nothing
// about storage or transport.
//
// ApplyMove assumes the move already passed ValidateMove; it mutates the
// caller's state copy (board, move count, last move) and nothing else.
// CheckResult must be idempotent: it is invoked after every move and on
// freshly loaded states, and never mutates anything.
type Engine interface {
	Meta() Meta

	// InitialState deterministically produces the starting state from
	// configuration alone.
	InitialState(now time.Time) (*State, error)

	ValidateMove(st *State, playerID string, move json.RawMessage) Verdict
	ApplyMove(st *State, playerID string, move json.RawMessage, now time.Time) error
	CheckResult(st *State) (Result, string)

	// AdvanceTurn rotates the turn pointer. Separate from ApplyMove so the
	// session layer controls exactly when the turn passes; engines with
	// extra-turn sequencing override it.
	AdvanceTurn(st *State)

	// CheckTimeout decides the consequence of an exhausted turn: an
	// immediate game-ending loss for the timed-out player (true, winner)
	// or a turn skip (false, "").
	CheckTimeout(st *State) (endsGame bool, winnerID string)
}

// guardMove performs the turn-ownership and terminal-state checks shared
// by every engine's ValidateMove.
func guardMove(st *State, playerID string) Verdict {
	if st.Terminal() {
		return Deny("game has already ended")
	}
	if st.PlayerIndex(playerID) < 0 {
		return Deny("player %s is not part of this game", playerID)
	}
	if st.CurrentPlayerID() != playerID {
		return Deny("not your turn")
	}
	return Allow()
}

// recordMove updates the shared bookkeeping after a successful apply.
func recordMove(st *State, playerID string, move json.RawMessage, now time.Time) {
	st.MoveCount++
	st.LastMove = &MoveRecord{
		PlayerID: playerID,
		Move:     append(json.RawMessage(nil), move...),
		At:       now.Unix(),
	}
}
