// internal/session/orchestrator_test.go
package session

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlorgames/parlor/internal/engine"
	"github.com/parlorgames/parlor/internal/events"
	"github.com/parlorgames/parlor/internal/lobby"
	"github.com/parlorgames/parlor/internal/store"
)

type testEnv struct {
	mr      *miniredis.Miniredis
	rdb     *redis.Client
	lobbies *lobby.Manager
	orch    *Orchestrator
	rec     *events.Recorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	engine.RegisterBuiltins()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	rec := &events.Recorder{}
	lobbies := lobby.NewManager(rdb, rec, logger)
	orch := NewOrchestrator(rdb, lobbies, rec, logger)
	return &testEnv{mr: mr, rdb: rdb, lobbies: lobbies, orch: orch, rec: rec}
}

// setupLobby creates a two-member lobby with the given game selected.
func (env *testEnv) setupLobby(t *testing.T, gameName string, rules map[string]interface{}) string {
	t.Helper()
	ctx := context.Background()
	l, err := env.lobbies.Create(ctx, lobby.Member{ID: "u1", Nickname: "alice"}, lobby.CreateParams{
		MaxPlayers: 2,
		GameName:   gameName,
		GameRules:  rules,
	})
	require.NoError(t, err)
	_, err = env.lobbies.Join(ctx, l.Code, lobby.Member{ID: "u2", Nickname: "bob"})
	require.NoError(t, err)
	return l.Code
}

func TestCreateGame(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := env.setupLobby(t, "tictactoe", nil)

	st, err := env.orch.Create(ctx, code, "u1")
	require.NoError(t, err)
	assert.Equal(t, engine.ResultInProgress, st.Result)
	assert.Equal(t, []string{"u1", "u2"}, st.PlayerIDs)
	assert.Equal(t, "u1", st.CurrentPlayerID())
	assert.Equal(t, int64(1), st.Revision)

	l, err := env.lobbies.Get(ctx, code)
	require.NoError(t, err)
	assert.True(t, l.InGame)

	gameCode, err := env.orch.CodeForUser(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, code, gameCode)

	// untimed game arms no expiry marker
	assert.False(t, env.mr.Exists(store.GameTimeoutKey(code)))
	assert.Len(t, env.rec.ByEvent(events.GameStarted), 1)
}

func TestCreateGameAuthorization(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := env.setupLobby(t, "tictactoe", nil)

	_, err := env.orch.Create(ctx, code, "u2")
	require.ErrorIs(t, err, lobby.ErrNotHost)

	// lobby without a selected game
	l, err := env.lobbies.Create(ctx, lobby.Member{ID: "u9", Nickname: "zed"}, lobby.CreateParams{MaxPlayers: 2})
	require.NoError(t, err)
	_, err = env.orch.Create(ctx, l.Code, "u9")
	require.ErrorIs(t, err, ErrNoGameSelected)
}

func TestCreateGameTwiceConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := env.setupLobby(t, "tictactoe", nil)

	_, err := env.orch.Create(ctx, code, "u1")
	require.NoError(t, err)
	_, err = env.orch.Create(ctx, code, "u1")
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestCreateGameRejectsStartedLobby(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := env.setupLobby(t, "tictactoe", nil)

	// a lobby already flagged in-game conflicts even before any session
	// keys exist, so a join racing the start cannot be silently dropped
	require.NoError(t, env.lobbies.SetInGame(ctx, code, true))
	_, err := env.orch.Create(ctx, code, "u1")
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestCreateGameNeedsEnoughPlayers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	l, err := env.lobbies.Create(ctx, lobby.Member{ID: "u1", Nickname: "alice"}, lobby.CreateParams{
		MaxPlayers: 2,
		GameName:   "tictactoe",
	})
	require.NoError(t, err)

	_, err = env.orch.Create(ctx, l.Code, "u1")
	var cfg *engine.ConfigError
	require.ErrorAs(t, err, &cfg)
}

func TestMovePipeline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := env.setupLobby(t, "tictactoe", nil)
	_, err := env.orch.Create(ctx, code, "u1")
	require.NoError(t, err)

	st, err := env.orch.MakeMove(ctx, code, "u1", json.RawMessage(`{"row":0,"col":0}`))
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Revision)
	assert.Equal(t, "u2", st.CurrentPlayerID())
	assert.Equal(t, 1, st.MoveCount)

	// out of turn
	_, err = env.orch.MakeMove(ctx, code, "u1", json.RawMessage(`{"row":1,"col":1}`))
	var invalid *InvalidMoveError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "not your turn", invalid.Reason)

	// occupied cell; the stored state stays untouched
	_, err = env.orch.MakeMove(ctx, code, "u2", json.RawMessage(`{"row":0,"col":0}`))
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Reason, "already occupied")

	got, err := env.orch.Get(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Revision)
	assert.Equal(t, 1, got.MoveCount)

	// outsiders are rejected by the same verdict path
	_, err = env.orch.MakeMove(ctx, code, "intruder", json.RawMessage(`{"row":1,"col":1}`))
	require.ErrorAs(t, err, &invalid)
}

func TestGameEndClearsPresenceAndLobbyFlag(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := env.setupLobby(t, "tictactoe", nil)
	_, err := env.orch.Create(ctx, code, "u1")
	require.NoError(t, err)

	moves := []struct {
		player string
		move   string
	}{
		{"u1", `{"row":0,"col":0}`},
		{"u2", `{"row":1,"col":0}`},
		{"u1", `{"row":0,"col":1}`},
		{"u2", `{"row":1,"col":1}`},
		{"u1", `{"row":0,"col":2}`},
	}
	var st *engine.State
	for _, m := range moves {
		st, err = env.orch.MakeMove(ctx, code, m.player, json.RawMessage(m.move))
		require.NoError(t, err)
	}
	assert.Equal(t, engine.ResultPlayerWin, st.Result)
	assert.Equal(t, "u1", st.WinnerID)

	// terminal state sheds presence and frees the lobby
	gameCode, err := env.orch.CodeForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, gameCode)
	l, err := env.lobbies.Get(ctx, code)
	require.NoError(t, err)
	assert.False(t, l.InGame)
	assert.Len(t, env.rec.ByEvent(events.GameEnded), 1)

	// the final state stays readable during the retention window
	got, err := env.orch.Get(ctx, code)
	require.NoError(t, err)
	assert.True(t, got.Terminal())
	ttl := env.mr.TTL(store.GameStateKey(code))
	assert.True(t, ttl > 0 && ttl <= store.GameRetentionTTL)

	// moves after the end are a conflict, not a legality rejection
	_, err = env.orch.MakeMove(ctx, code, "u2", json.RawMessage(`{"row":2,"col":2}`))
	require.ErrorIs(t, err, ErrGameOver)
}

func TestForfeit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := env.setupLobby(t, "tictactoe", nil)
	_, err := env.orch.Create(ctx, code, "u1")
	require.NoError(t, err)

	st, err := env.orch.Forfeit(ctx, code, "u2")
	require.NoError(t, err)
	assert.Equal(t, engine.ResultForfeit, st.Result)
	assert.Equal(t, "u1", st.WinnerID)

	// a second forfeit is a conflict, not a silent no-op
	_, err = env.orch.Forfeit(ctx, code, "u1")
	require.ErrorIs(t, err, ErrGameOver)

	_, err = env.orch.Forfeit(ctx, code, "intruder")
	require.ErrorIs(t, err, ErrGameOver)

	// so is a move against the forfeited session
	_, err = env.orch.MakeMove(ctx, code, "u1", json.RawMessage(`{"row":0,"col":0}`))
	require.ErrorIs(t, err, ErrGameOver)
}

func TestForfeitRequiresParticipant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := env.setupLobby(t, "tictactoe", nil)
	_, err := env.orch.Create(ctx, code, "u1")
	require.NoError(t, err)

	_, err = env.orch.Forfeit(ctx, code, "intruder")
	require.ErrorIs(t, err, ErrNotParticipant)
}

func TestDeleteGame(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := env.setupLobby(t, "tictactoe", nil)
	_, err := env.orch.Create(ctx, code, "u1")
	require.NoError(t, err)

	require.ErrorIs(t, env.orch.Delete(ctx, code, "intruder"), ErrNotParticipant)
	require.NoError(t, env.orch.Delete(ctx, code, "u2"))

	_, err = env.orch.Get(ctx, code)
	require.ErrorIs(t, err, ErrNotFound)
	assert.False(t, env.mr.Exists(store.GameEngineKey(code)))
	assert.False(t, env.mr.Exists(store.UserGameKey("u1")))

	l, err := env.lobbies.Get(ctx, code)
	require.NoError(t, err)
	assert.False(t, l.InGame)
}

func TestTimedGameArmsExpiryMarker(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := env.setupLobby(t, "tictactoe", map[string]interface{}{
		engine.RuleTimeoutType:    string(engine.TimeoutPerTurn),
		engine.RuleTimeoutSeconds: 30,
	})
	_, err := env.orch.Create(ctx, code, "u1")
	require.NoError(t, err)

	require.True(t, env.mr.Exists(store.GameTimeoutKey(code)))
	ttl := env.mr.TTL(store.GameTimeoutKey(code))
	assert.InDelta(t, 30.0, ttl.Seconds(), 1.0)

	// a move re-arms the marker for the next player's turn
	_, err = env.orch.MakeMove(ctx, code, "u1", json.RawMessage(`{"row":0,"col":0}`))
	require.NoError(t, err)
	assert.True(t, env.mr.Exists(store.GameTimeoutKey(code)))
}

func TestStateRoundTripPreservesEverything(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := env.setupLobby(t, "checkers", map[string]interface{}{"forced_capture": true})
	created, err := env.orch.Create(ctx, code, "u1")
	require.NoError(t, err)

	loaded, err := env.orch.Get(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, created.SchemaVersion, loaded.SchemaVersion)
	assert.Equal(t, created.GameName, loaded.GameName)
	assert.Equal(t, created.PlayerIDs, loaded.PlayerIDs)
	assert.Equal(t, created.Revision, loaded.Revision)
	assert.JSONEq(t, string(created.Board), string(loaded.Board))
	assert.Equal(t, true, loaded.Rules["forced_capture"])
}
