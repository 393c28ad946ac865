// internal/engine/clobber_test.go
package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClobberInitialPatterns(t *testing.T) {
	_, st := newTestGame(t, "clobber", map[string]interface{}{"rows": 4, "cols": 4})
	var board clobberBoard
	require.NoError(t, json.Unmarshal(st.Board, &board))
	assert.Equal(t, 1, board.at(0, 0))
	assert.Equal(t, 2, board.at(0, 1))
	assert.Equal(t, 2, board.at(1, 0))

	_, st = newTestGame(t, "clobber", map[string]interface{}{
		"rows": 4, "cols": 4, "starting_pattern": "stripes",
	})
	require.NoError(t, json.Unmarshal(st.Board, &board))
	assert.Equal(t, 1, board.at(0, 3))
	assert.Equal(t, 2, board.at(1, 0))
}

func TestClobberCapture(t *testing.T) {
	eng, st := newTestGame(t, "clobber", map[string]interface{}{"rows": 4, "cols": 4})

	v := playMove(t, eng, st, "p1", `{"from":{"row":0,"col":0},"to":{"row":0,"col":1}}`)
	require.True(t, v.Valid, v.Reason)

	var board clobberBoard
	require.NoError(t, json.Unmarshal(st.Board, &board))
	assert.Equal(t, 0, board.at(0, 0))
	assert.Equal(t, 1, board.at(0, 1))
	assert.Equal(t, "p2", st.CurrentPlayerID())
}

func TestClobberRejectsNonCaptures(t *testing.T) {
	eng, st := newTestGame(t, "clobber", map[string]interface{}{"rows": 4, "cols": 4})
	mustSetBoard(t, st, clobberBoard{Rows: 4, Cols: 4, Cells: []int{
		1, 0, 2, 0,
		0, 2, 0, 0,
		0, 0, 0, 0,
		0, 0, 0, 1,
	}})

	// empty destination
	v := eng.ValidateMove(st, "p1", json.RawMessage(`{"from":{"row":0,"col":0},"to":{"row":0,"col":1}}`))
	require.False(t, v.Valid)
	assert.Contains(t, v.Reason, "must capture")

	// diagonal destination
	v = eng.ValidateMove(st, "p1", json.RawMessage(`{"from":{"row":0,"col":0},"to":{"row":1,"col":1}}`))
	require.False(t, v.Valid)
	assert.Contains(t, v.Reason, "not orthogonally adjacent")

	// own piece at destination
	mustSetBoard(t, st, clobberBoard{Rows: 4, Cols: 4, Cells: []int{
		1, 1, 0, 0,
		0, 0, 0, 0,
		0, 0, 0, 0,
		0, 0, 0, 2,
	}})
	v = eng.ValidateMove(st, "p1", json.RawMessage(`{"from":{"row":0,"col":0},"to":{"row":0,"col":1}}`))
	require.False(t, v.Valid)
	assert.Contains(t, v.Reason, "your own piece")

	// not your piece at origin
	v = eng.ValidateMove(st, "p1", json.RawMessage(`{"from":{"row":3,"col":3},"to":{"row":3,"col":2}}`))
	require.False(t, v.Valid)
	assert.Contains(t, v.Reason, "no piece of yours")
}

func TestClobberNoMoveLoses(t *testing.T) {
	eng, st := newTestGame(t, "clobber", map[string]interface{}{"rows": 4, "cols": 4})
	mustSetBoard(t, st, clobberBoard{Rows: 4, Cols: 4, Cells: []int{
		1, 2, 0, 0,
		0, 0, 0, 0,
		0, 0, 0, 0,
		0, 0, 0, 0,
	}})

	// p1 takes the last opposing piece; p2 is left with nothing to move.
	v := playMove(t, eng, st, "p1", `{"from":{"row":0,"col":0},"to":{"row":0,"col":1}}`)
	require.True(t, v.Valid, v.Reason)

	assert.Equal(t, ResultPlayerWin, st.Result)
	assert.Equal(t, "p1", st.WinnerID)
}

func TestClobberDefaultTimeoutPolicyIsSkip(t *testing.T) {
	eng, st := newTestGame(t, "clobber", map[string]interface{}{
		"rows": 4, "cols": 4,
		RuleTimeoutType:    string(TimeoutPerTurn),
		RuleTimeoutSeconds: 30,
	})
	endsGame, winnerID := eng.CheckTimeout(st)
	assert.False(t, endsGame)
	assert.Empty(t, winnerID)
}

func TestTicTacToeDefaultTimeoutPolicyEndsGame(t *testing.T) {
	eng, st := newTestGame(t, "tictactoe", map[string]interface{}{
		RuleTimeoutType:    string(TimeoutPerTurn),
		RuleTimeoutSeconds: 30,
	})
	endsGame, winnerID := eng.CheckTimeout(st)
	assert.True(t, endsGame)
	assert.Equal(t, "p2", winnerID)
}

func TestExplicitTimeoutPolicyOverridesDefault(t *testing.T) {
	eng, st := newTestGame(t, "tictactoe", map[string]interface{}{
		RuleTimeoutType:    string(TimeoutPerTurn),
		RuleTimeoutSeconds: 30,
		RuleTimeoutPolicy:  PolicySkipTurn,
	})
	endsGame, _ := eng.CheckTimeout(st)
	assert.False(t, endsGame)
}
