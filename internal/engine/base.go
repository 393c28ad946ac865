// internal/engine/base.go
package engine

import (
	"encoding/json"
	"time"
)

// base carries the validated configuration shared by every engine and
// supplies the default turn rotation and timeout policy. Concrete games
// embed it and override the hooks they need.
type base struct {
	sessionID string
	players   []string
	rules     map[string]interface{}
	meta      Meta
}

// newBase validates player count and rule overrides against the schema.
func newBase(meta Meta, cfg Config) (base, error) {
	if err := validatePlayers(meta, cfg.PlayerIDs); err != nil {
		return base{}, err
	}
	resolved, err := ResolveRules(meta, cfg.Rules)
	if err != nil {
		return base{}, err
	}
	return base{
		sessionID: cfg.SessionID,
		players:   append([]string(nil), cfg.PlayerIDs...),
		rules:     resolved,
		meta:      meta,
	}, nil
}

func (b *base) Meta() Meta { return b.meta }

// newState assembles the shared State envelope around a marshaled board.
func (b *base) newState(board interface{}, now time.Time) (*State, error) {
	raw, err := json.Marshal(board)
	if err != nil {
		return nil, err
	}
	return &State{
		SchemaVersion: StateSchemaVersion,
		GameName:      b.meta.Name,
		PlayerIDs:     append([]string(nil), b.players...),
		Rules:         b.rules,
		Board:         raw,
		CurrentTurn:   0,
		Result:        ResultInProgress,
		Timing:        NewTiming(b.rules, b.players),
	}, nil
}

// AdvanceTurn rotates the turn pointer modulo the player count.
func (b *base) AdvanceTurn(st *State) {
	st.CurrentTurn = (st.CurrentTurn + 1) % len(st.PlayerIDs)
}

// CheckTimeout applies the configured timeout policy for the player on
// turn. An exhausted total-time budget always ends the game regardless
// of policy, since the player has nothing left to skip with.
func (b *base) CheckTimeout(st *State) (bool, string) {
	policy := ruleString(st.Rules, RuleTimeoutPolicy)
	exhausted := st.Timing.TimeoutType == TimeoutTotalTime && st.Timing.Remaining[st.CurrentPlayerID()] <= 0
	if policy == PolicySkipTurn && !exhausted {
		return false, ""
	}
	return true, winnerAgainst(st, st.CurrentTurn)
}

// winnerAgainst picks the winner when the player at loser index is
// eliminated: the other participant for two players, the next in turn
// order otherwise.
func winnerAgainst(st *State, loser int) string {
	return st.PlayerIDs[(loser+1)%len(st.PlayerIDs)]
}

func (b *base) intRule(name string) int       { return ruleInt(b.rules, name) }
func (b *base) stringRule(name string) string { return ruleString(b.rules, name) }
func (b *base) boolRule(name string) bool     { return ruleBool(b.rules, name) }
