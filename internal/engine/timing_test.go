// internal/engine/timing_test.go
package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timedState(timeoutType TimeoutType, seconds int) *State {
	rules := map[string]interface{}{
		RuleTimeoutType:    string(timeoutType),
		RuleTimeoutSeconds: seconds,
	}
	return &State{
		PlayerIDs: testPlayers,
		Rules:     rules,
		Result:    ResultInProgress,
		Timing:    NewTiming(rules, testPlayers),
	}
}

func TestUntimedStateHasNoClock(t *testing.T) {
	st := timedState(TimeoutNone, 0)
	StartTurn(st, time.Now())
	assert.Nil(t, st.Timing.TurnStartedAt)

	_, ok := RemainingTime(st, time.Now())
	assert.False(t, ok)
	assert.False(t, TimedOut(st, time.Now()))
}

func TestPerTurnClock(t *testing.T) {
	st := timedState(TimeoutPerTurn, 30)
	start := time.Now()
	StartTurn(st, start)
	require.NotNil(t, st.Timing.TurnStartedAt)

	rem, ok := RemainingTime(st, start.Add(10*time.Second))
	require.True(t, ok)
	assert.InDelta(t, 20.0, rem.Seconds(), 0.01)
	assert.False(t, TimedOut(st, start.Add(29*time.Second)))
	assert.True(t, TimedOut(st, start.Add(31*time.Second)))

	// per-turn clocks reset every turn; nothing is deducted
	ConsumeTurnTime(st, start.Add(10*time.Second))
	assert.Nil(t, st.Timing.TurnStartedAt)
	st.CurrentTurn = 1
	StartTurn(st, start.Add(10*time.Second))
	rem, _ = RemainingTime(st, start.Add(10*time.Second))
	assert.InDelta(t, 30.0, rem.Seconds(), 0.01)
}

func TestTotalTimeBudget(t *testing.T) {
	st := timedState(TimeoutTotalTime, 60)
	require.Len(t, st.Timing.Remaining, 2)
	assert.Equal(t, 60.0, st.Timing.Remaining["p1"])

	start := time.Now()
	StartTurn(st, start)
	ConsumeTurnTime(st, start.Add(25*time.Second))
	assert.InDelta(t, 35.0, st.Timing.Remaining["p1"], 0.01)
	assert.Equal(t, 60.0, st.Timing.Remaining["p2"])

	// the budget never goes negative
	StartTurn(st, start)
	ConsumeTurnTime(st, start.Add(2*time.Minute))
	assert.Equal(t, 0.0, st.Timing.Remaining["p1"])
	assert.True(t, TimedOut(st, start))
}

func TestTotalTimeExhaustionEndsGameEvenWithSkipPolicy(t *testing.T) {
	eng, st := newTestGame(t, "clobber", map[string]interface{}{
		"rows": 4, "cols": 4,
		RuleTimeoutType:    string(TimeoutTotalTime),
		RuleTimeoutSeconds: 30,
	})
	st.Timing.Remaining["p1"] = 0

	endsGame, winnerID := eng.CheckTimeout(st)
	assert.True(t, endsGame)
	assert.Equal(t, "p2", winnerID)
}
