// internal/engine/timing.go
package engine

import "time"

// TimeoutType selects how turn time is limited.
type TimeoutType string

const (
	TimeoutNone      TimeoutType = "none"
	TimeoutPerTurn   TimeoutType = "per_turn"
	TimeoutTotalTime TimeoutType = "total_time"
)

// Timing is the per-session clock state embedded in State. TurnStartedAt
// is non-nil only while a timed turn is open. In total_time mode,
// Remaining tracks each player's budget in seconds and never goes below
// zero; a zero budget is itself a timeout condition.
type Timing struct {
	TimeoutType    TimeoutType        `json:"timeout_type"`
	TimeoutSeconds int                `json:"timeout_seconds"`
	TurnStartedAt  *time.Time         `json:"turn_started_at,omitempty"`
	Remaining      map[string]float64 `json:"player_time_remaining,omitempty"`
}

// NewTiming seeds the timing block from resolved rules.
func NewTiming(rules map[string]interface{}, playerIDs []string) Timing {
	t := Timing{
		TimeoutType:    TimeoutType(ruleString(rules, RuleTimeoutType)),
		TimeoutSeconds: ruleInt(rules, RuleTimeoutSeconds),
	}
	if t.TimeoutType == TimeoutTotalTime {
		t.Remaining = make(map[string]float64, len(playerIDs))
		for _, id := range playerIDs {
			t.Remaining[id] = float64(t.TimeoutSeconds)
		}
	}
	return t
}

// StartTurn opens the clock for the current turn.
func StartTurn(st *State, now time.Time) {
	if st.Timing.TimeoutType == TimeoutNone {
		return
	}
	ts := now.UTC()
	st.Timing.TurnStartedAt = &ts
}

// ConsumeTurnTime closes the open turn and, in total_time mode, deducts
// the elapsed seconds from the current player's budget (clamped at zero).
func ConsumeTurnTime(st *State, now time.Time) {
	if st.Timing.TurnStartedAt == nil {
		return
	}
	if st.Timing.TimeoutType == TimeoutTotalTime {
		elapsed := now.Sub(*st.Timing.TurnStartedAt).Seconds()
		pid := st.CurrentPlayerID()
		rem := st.Timing.Remaining[pid] - elapsed
		if rem < 0 {
			rem = 0
		}
		st.Timing.Remaining[pid] = rem
	}
	st.Timing.TurnStartedAt = nil
}

// RemainingTime reports how much time the current player has left on the
// open turn, and whether a timer applies at all. With no open turn the
// full allotment is reported.
func RemainingTime(st *State, now time.Time) (time.Duration, bool) {
	var budget float64
	switch st.Timing.TimeoutType {
	case TimeoutPerTurn:
		budget = float64(st.Timing.TimeoutSeconds)
	case TimeoutTotalTime:
		budget = st.Timing.Remaining[st.CurrentPlayerID()]
	default:
		return 0, false
	}
	if st.Timing.TurnStartedAt != nil {
		budget -= now.Sub(*st.Timing.TurnStartedAt).Seconds()
	}
	if budget < 0 {
		budget = 0
	}
	return time.Duration(budget * float64(time.Second)), true
}

// TimedOut reports whether the current player's clock has run out. The
// timeout always concerns exactly the player on turn.
func TimedOut(st *State, now time.Time) bool {
	rem, ok := RemainingTime(st, now)
	return ok && rem <= 0
}
