// internal/lobby/manager_test.go
package lobby

import (
	"context"
	"io"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlorgames/parlor/internal/engine"
	"github.com/parlorgames/parlor/internal/events"
)

func newTestManager(t *testing.T) (*Manager, *events.Recorder) {
	t.Helper()
	engine.RegisterBuiltins()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	rec := &events.Recorder{}
	return NewManager(rdb, rec, logger), rec
}

func member(id, nick string) Member {
	return Member{ID: id, Nickname: nick}
}

func TestCreateAndGet(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	l, err := m.Create(ctx, member("u1", "alice"), CreateParams{
		MaxPlayers: 4,
		IsPublic:   true,
		GameName:   "tictactoe",
		GameRules:  map[string]interface{}{"board_size": 5, "win_length": 4},
	})
	require.NoError(t, err)
	assert.Len(t, l.Code, 6)
	require.Len(t, l.Members, 1)
	assert.True(t, l.Members[0].IsHost)
	assert.Equal(t, "u1", l.HostID)

	// rule defaults are merged in at creation
	assert.Equal(t, float64(5), toFloat(l.GameRules["board_size"]))
	assert.Equal(t, string(engine.TimeoutNone), l.GameRules[engine.RuleTimeoutType])

	got, err := m.Get(ctx, l.Code)
	require.NoError(t, err)
	assert.Equal(t, l.Code, got.Code)

	code, err := m.CodeForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, l.Code, code)
}

// toFloat normalizes int/float rule values for assertions; values take a
// JSON round-trip through the store.
func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case float64:
		return n
	}
	return -1
}

func TestCreateRejectsInvalidGameConfig(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Create(ctx, member("u1", "alice"), CreateParams{
		MaxPlayers: 2,
		GameName:   "tictactoe",
		GameRules:  map[string]interface{}{"gravity": true},
	})
	var cfg *engine.ConfigError
	require.ErrorAs(t, err, &cfg)

	_, err = m.Create(ctx, member("u1", "alice"), CreateParams{
		MaxPlayers: 2,
		GameName:   "monopoly",
	})
	require.ErrorIs(t, err, engine.ErrUnknownGame)
}

func TestCreateWhileInLobbyConflicts(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	first, err := m.Create(ctx, member("u1", "alice"), CreateParams{MaxPlayers: 2, IsPublic: true})
	require.NoError(t, err)

	_, err = m.Create(ctx, member("u1", "alice"), CreateParams{MaxPlayers: 2, IsPublic: true})
	require.ErrorIs(t, err, ErrAlreadyInLobby)

	// the losing lobby was rolled back; the pointer still names the first
	all, err := m.ListPublic(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, first.Code, all[0].Code)

	code, err := m.CodeForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first.Code, code)
}

func TestJoinCapacityAndDuplicates(t *testing.T) {
	m, rec := newTestManager(t)
	ctx := context.Background()

	l, err := m.Create(ctx, member("u1", "alice"), CreateParams{MaxPlayers: 2})
	require.NoError(t, err)

	_, err = m.Join(ctx, l.Code, member("u2", "bob"))
	require.NoError(t, err)
	assert.Len(t, rec.ByEvent(events.LobbyMemberJoined), 1)

	_, err = m.Join(ctx, l.Code, member("u3", "carol"))
	require.ErrorIs(t, err, ErrFull)

	_, err = m.Join(ctx, l.Code, member("u2", "bob"))
	require.ErrorIs(t, err, ErrAlreadyMember)

	other, err := m.Create(ctx, member("u4", "dave"), CreateParams{MaxPlayers: 3})
	require.NoError(t, err)
	_, err = m.Join(ctx, other.Code, member("u5", "erin"))
	require.NoError(t, err)
	_, err = m.Join(ctx, l.Code, member("u5", "erin"))
	require.ErrorIs(t, err, ErrAlreadyInLobby)

	_, err = m.Join(ctx, "NOSUCH", member("u6", "frank"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLeaveTransfersHostToOldestMember(t *testing.T) {
	m, rec := newTestManager(t)
	ctx := context.Background()

	l, err := m.Create(ctx, member("u1", "alice"), CreateParams{MaxPlayers: 4})
	require.NoError(t, err)
	_, err = m.Join(ctx, l.Code, member("u2", "bob"))
	require.NoError(t, err)
	_, err = m.Join(ctx, l.Code, member("u3", "carol"))
	require.NoError(t, err)

	remaining, err := m.Leave(ctx, l.Code, "u1")
	require.NoError(t, err)
	require.NotNil(t, remaining)
	assert.Equal(t, "u2", remaining.HostID)
	assert.True(t, remaining.Members[0].IsHost)
	assert.Len(t, rec.ByEvent(events.LobbyHostTransferred), 1)

	// the departed user's pointer is gone
	code, err := m.CodeForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, code)

	_, err = m.Leave(ctx, l.Code, "u1")
	require.ErrorIs(t, err, ErrNotMember)
}

func TestLeaveLastMemberDisbands(t *testing.T) {
	m, rec := newTestManager(t)
	ctx := context.Background()

	l, err := m.Create(ctx, member("u1", "alice"), CreateParams{MaxPlayers: 2})
	require.NoError(t, err)

	remaining, err := m.Leave(ctx, l.Code, "u1")
	require.NoError(t, err)
	assert.Nil(t, remaining)
	assert.Len(t, rec.ByEvent(events.LobbyClosed), 1)

	_, err = m.Get(ctx, l.Code)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTransferHost(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	l, err := m.Create(ctx, member("u1", "alice"), CreateParams{MaxPlayers: 3})
	require.NoError(t, err)
	_, err = m.Join(ctx, l.Code, member("u2", "bob"))
	require.NoError(t, err)

	_, err = m.TransferHost(ctx, l.Code, "u2", "u1")
	require.ErrorIs(t, err, ErrNotHost)

	_, err = m.TransferHost(ctx, l.Code, "u1", "ghost")
	require.ErrorIs(t, err, ErrNotMember)

	updated, err := m.TransferHost(ctx, l.Code, "u1", "u2")
	require.NoError(t, err)
	assert.Equal(t, "u2", updated.HostID)
	assert.False(t, updated.Members[0].IsHost)
	assert.True(t, updated.Members[1].IsHost)
}

func TestUpdateSettings(t *testing.T) {
	m, rec := newTestManager(t)
	ctx := context.Background()

	l, err := m.Create(ctx, member("u1", "alice"), CreateParams{MaxPlayers: 4})
	require.NoError(t, err)
	_, err = m.Join(ctx, l.Code, member("u2", "bob"))
	require.NoError(t, err)

	two := 2
	one := 1
	game := "clobber"
	pub := true

	_, err = m.UpdateSettings(ctx, l.Code, "u2", SettingsUpdate{MaxPlayers: &two})
	require.ErrorIs(t, err, ErrNotHost)

	_, err = m.UpdateSettings(ctx, l.Code, "u1", SettingsUpdate{MaxPlayers: &one})
	require.Error(t, err)

	updated, err := m.UpdateSettings(ctx, l.Code, "u1", SettingsUpdate{
		MaxPlayers: &two,
		IsPublic:   &pub,
		GameName:   &game,
		GameRules:  map[string]interface{}{"rows": 6},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.MaxPlayers)
	assert.True(t, updated.IsPublic)
	assert.Equal(t, "clobber", updated.SelectedGame)
	assert.Equal(t, float64(6), toFloat(updated.GameRules["rows"]))
	assert.Equal(t, float64(6), toFloat(updated.GameRules["cols"])) // default merged
	assert.Len(t, rec.ByEvent(events.LobbySettingsUpdated), 1)
}

func TestListPublicFilters(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	pubTTT, err := m.Create(ctx, member("u1", "alice"), CreateParams{MaxPlayers: 2, IsPublic: true, GameName: "tictactoe"})
	require.NoError(t, err)
	_, err = m.Create(ctx, member("u2", "bob"), CreateParams{MaxPlayers: 2, IsPublic: false, GameName: "tictactoe"})
	require.NoError(t, err)
	started, err := m.Create(ctx, member("u3", "carol"), CreateParams{MaxPlayers: 2, IsPublic: true, GameName: "clobber"})
	require.NoError(t, err)
	require.NoError(t, m.SetInGame(ctx, started.Code, true))

	all, err := m.ListPublic(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, pubTTT.Code, all[0].Code)
	assert.Equal(t, "alice", all[0].HostNickname)
	assert.Equal(t, "Tic-Tac-Toe", all[0].GameDisplayName)

	none, err := m.ListPublic(ctx, "clobber")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLobbyRecordSurvivesStoreRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	l, err := m.Create(ctx, member("u1", "alice"), CreateParams{
		MaxPlayers: 3,
		IsPublic:   true,
		GameName:   "checkers",
		GameRules:  map[string]interface{}{"forced_capture": true},
	})
	require.NoError(t, err)

	got, err := m.Get(ctx, l.Code)
	require.NoError(t, err)
	assert.Equal(t, l.HostID, got.HostID)
	assert.Equal(t, l.MaxPlayers, got.MaxPlayers)
	assert.Equal(t, l.SelectedGame, got.SelectedGame)
	assert.Equal(t, true, got.GameRules["forced_capture"])
	assert.Equal(t, l.Members[0].Nickname, got.Members[0].Nickname)
}
