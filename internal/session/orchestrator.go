// internal/session/orchestrator.go
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/parlorgames/parlor/internal/engine"
	"github.com/parlorgames/parlor/internal/events"
	"github.com/parlorgames/parlor/internal/lobby"
	"github.com/parlorgames/parlor/internal/store"
)

// Session-layer errors surfaced to handlers.
var (
	ErrNotFound       = errors.New("game not found")
	ErrAlreadyExists  = errors.New("lobby already has a running game")
	ErrNoGameSelected = errors.New("lobby has no game selected")
	ErrNotParticipant = errors.New("user is not a participant of this game")
	ErrGameOver       = errors.New("game has already ended")
)

// InvalidMoveError wraps an engine verdict rejection. The reason is
// engine-authored and safe to show to the player.
type InvalidMoveError struct {
	Reason string
}

func (e *InvalidMoveError) Error() string { return e.Reason }

// engineRecord is the construction recipe persisted alongside the state
// under game_engine:{code}. It lets any process rebuild the exact engine
// instance that produced the state, without in-memory affinity.
type engineRecord struct {
	GameName  string                 `json:"game_name"`
	PlayerIDs []string               `json:"player_ids"`
	Rules     map[string]interface{} `json:"rules"`
}

// Orchestrator drives the full session lifecycle: creation from a
// lobby, move application, forfeits and teardown. All mutations are
// conditional writes against the store; the orchestrator itself holds
// no session state.
type Orchestrator struct {
	rdb     *redis.Client
	lobbies *lobby.Manager
	emitter events.Emitter
	logger  *logrus.Logger
	clock   func() time.Time
}

func NewOrchestrator(rdb *redis.Client, lobbies *lobby.Manager, emitter events.Emitter, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		rdb:     rdb,
		lobbies: lobbies,
		emitter: emitter,
		logger:  logger,
		clock:   time.Now,
	}
}

// Create starts the lobby's selected game. Only the host may start, and
// a lobby can run at most one game at a time; a second create while the
// first is live is a conflict, not a restart. The lobby is read and its
// in-game flag written inside the same WATCH block as the session keys,
// so a join racing the start either lands in the player list or is
// rejected by the flag, never lost in between.
func (o *Orchestrator) Create(ctx context.Context, code, hostID string) (*engine.State, error) {
	var st *engine.State
	err := store.Atomically(ctx, o.rdb, func(tx *redis.Tx) error {
		st = nil
		data, err := tx.Get(ctx, store.LobbyKey(code)).Bytes()
		if errors.Is(err, redis.Nil) {
			return lobby.ErrNotFound
		}
		if err != nil {
			return store.AsNotFound(err, "lobby")
		}
		var l lobby.Lobby
		if err := json.Unmarshal(data, &l); err != nil {
			return fmt.Errorf("corrupt lobby record for %s: %w", code, err)
		}
		if l.HostID != hostID {
			return lobby.ErrNotHost
		}
		if l.SelectedGame == "" {
			return ErrNoGameSelected
		}
		if l.InGame {
			return ErrAlreadyExists
		}
		exists, err := tx.Exists(ctx, store.GameStateKey(code)).Result()
		if err != nil {
			return fmt.Errorf("store error checking game state: %w", err)
		}
		if exists > 0 {
			return ErrAlreadyExists
		}

		meta, ok := engine.MetaFor(l.SelectedGame)
		if !ok {
			return fmt.Errorf("%w: %q", engine.ErrUnknownGame, l.SelectedGame)
		}
		if len(l.Members) < meta.MinPlayers || len(l.Members) > meta.MaxPlayers {
			return &engine.ConfigError{
				Field:  "players",
				Detail: fmt.Sprintf("%s needs between %d and %d players, lobby has %d", meta.Name, meta.MinPlayers, meta.MaxPlayers, len(l.Members)),
			}
		}

		rec := engineRecord{GameName: l.SelectedGame, PlayerIDs: l.PlayerIDs(), Rules: l.GameRules}
		eng, err := engine.New(rec.GameName, engine.Config{SessionID: code, PlayerIDs: rec.PlayerIDs, Rules: rec.Rules})
		if err != nil {
			return err
		}

		now := o.clock()
		st, err = eng.InitialState(now)
		if err != nil {
			return err
		}
		engine.StartTurn(st, now)
		st.Revision = 1

		stateData, err := json.Marshal(st)
		if err != nil {
			return err
		}
		recData, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		l.InGame = true
		lobbyData, err := json.Marshal(&l)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, store.LobbyKey(code), lobbyData, store.LobbyTTL)
			pipe.Set(ctx, store.GameStateKey(code), stateData, store.GameTTL)
			pipe.Set(ctx, store.GameEngineKey(code), recData, store.GameTTL)
			for _, id := range rec.PlayerIDs {
				pipe.Set(ctx, store.UserGameKey(id), code, store.GameTTL)
			}
			queueTimeoutMarker(pipe, ctx, code, st, now)
			return nil
		})
		return err
	}, store.LobbyKey(code), store.GameStateKey(code))
	if err != nil {
		return nil, err
	}

	o.emitter.Emit(ctx, code, events.GameStarted, map[string]interface{}{
		"code":  code,
		"state": st,
	})
	return st, nil
}

// Get returns the current session state.
func (o *Orchestrator) Get(ctx context.Context, code string) (*engine.State, error) {
	data, err := o.rdb.Get(ctx, store.GameStateKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, store.AsNotFound(err, "game state")
	}
	return unmarshalState(data)
}

// CodeForUser answers "what game am I in" from the presence pointer.
func (o *Orchestrator) CodeForUser(ctx context.Context, userID string) (string, error) {
	code, err := o.rdb.Get(ctx, store.UserGameKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", store.AsNotFound(err, "user game pointer")
	}
	return code, nil
}

// MakeMove runs the full move pipeline under one conditional write:
// load, validate, apply, resolve, then either finalize or pass the turn.
// A losing race against a concurrent writer retries from a fresh read
// and, past the retry budget, surfaces as a conflict.
func (o *Orchestrator) MakeMove(ctx context.Context, code, playerID string, move json.RawMessage) (*engine.State, error) {
	var (
		result *engine.State
		ended  bool
	)
	err := store.Atomically(ctx, o.rdb, func(tx *redis.Tx) error {
		st, eng, err := o.loadTx(tx, ctx, code)
		if err != nil {
			return err
		}
		if st.Terminal() {
			return ErrGameOver
		}

		if v := eng.ValidateMove(st, playerID, move); !v.Valid {
			return &InvalidMoveError{Reason: v.Reason}
		}

		now := o.clock()
		engine.ConsumeTurnTime(st, now)
		if err := eng.ApplyMove(st, playerID, move, now); err != nil {
			return err
		}

		res, winnerID := eng.CheckResult(st)
		st.Result = res
		st.WinnerID = winnerID
		st.Revision++

		if st.Terminal() {
			ended = true
		} else {
			eng.AdvanceTurn(st)
			engine.StartTurn(st, now)
		}
		result = st
		return o.persistTx(tx, ctx, code, st, now)
	}, store.GameStateKey(code))
	if err != nil {
		return nil, err
	}

	o.emitter.Emit(ctx, code, events.MoveMade, map[string]interface{}{
		"code":      code,
		"player_id": playerID,
		"state":     result,
	})
	if ended {
		o.afterGameEnd(ctx, code, result)
	}
	return result, nil
}

// Forfeit resigns the calling player. For a two-player session the
// opponent wins; larger sessions record the forfeit without a winner.
// Forfeiting a finished game is a conflict, which makes a double
// forfeit (two tabs, double click) observable instead of silent.
func (o *Orchestrator) Forfeit(ctx context.Context, code, playerID string) (*engine.State, error) {
	var result *engine.State
	err := store.Atomically(ctx, o.rdb, func(tx *redis.Tx) error {
		st, _, err := o.loadTx(tx, ctx, code)
		if err != nil {
			return err
		}
		if st.Terminal() {
			return ErrGameOver
		}
		idx := st.PlayerIndex(playerID)
		if idx < 0 {
			return ErrNotParticipant
		}

		now := o.clock()
		engine.ConsumeTurnTime(st, now)
		st.Result = engine.ResultForfeit
		if len(st.PlayerIDs) == 2 {
			st.WinnerID = st.PlayerIDs[(idx+1)%2]
		}
		st.Revision++
		result = st
		return o.persistTx(tx, ctx, code, st, now)
	}, store.GameStateKey(code))
	if err != nil {
		return nil, err
	}

	o.afterGameEnd(ctx, code, result)
	return result, nil
}

// Delete tears a session down before its retention window lapses. Only
// participants may do it.
func (o *Orchestrator) Delete(ctx context.Context, code, userID string) error {
	err := store.Atomically(ctx, o.rdb, func(tx *redis.Tx) error {
		st, _, err := o.loadTx(tx, ctx, code)
		if err != nil {
			return err
		}
		if st.PlayerIndex(userID) < 0 {
			return ErrNotParticipant
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, store.GameStateKey(code))
			pipe.Del(ctx, store.GameEngineKey(code))
			pipe.Del(ctx, store.GameTimeoutKey(code))
			for _, id := range st.PlayerIDs {
				pipe.Del(ctx, store.UserGameKey(id))
			}
			return nil
		})
		return err
	}, store.GameStateKey(code))
	if err != nil {
		return err
	}

	if err := o.lobbies.SetInGame(ctx, code, false); err != nil && !errors.Is(err, lobby.ErrNotFound) {
		o.logger.WithError(err).WithField("code", code).Warn("failed to clear lobby in-game flag")
	}
	return nil
}

// loadTx reads state and engine record under WATCH and rebuilds the
// engine instance.
func (o *Orchestrator) loadTx(tx *redis.Tx, ctx context.Context, code string) (*engine.State, engine.Engine, error) {
	stateData, err := tx.Get(ctx, store.GameStateKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, store.AsNotFound(err, "game state")
	}
	st, err := unmarshalState(stateData)
	if err != nil {
		return nil, nil, err
	}

	recData, err := tx.Get(ctx, store.GameEngineKey(code)).Bytes()
	if err != nil {
		return nil, nil, store.AsNotFound(err, "engine record")
	}
	var rec engineRecord
	if err := json.Unmarshal(recData, &rec); err != nil {
		return nil, nil, fmt.Errorf("corrupt engine record for %s: %w", code, err)
	}
	eng, err := engine.New(rec.GameName, engine.Config{SessionID: code, PlayerIDs: rec.PlayerIDs, Rules: rec.Rules})
	if err != nil {
		return nil, nil, err
	}
	return st, eng, nil
}

// persistTx queues the rewritten state plus the timer bookkeeping that
// follows from it. Terminal states shrink to the retention TTL and shed
// their presence pointers and timeout marker; live states refresh the
// marker to the open turn's remaining time.
func (o *Orchestrator) persistTx(tx *redis.Tx, ctx context.Context, code string, st *engine.State, now time.Time) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if st.Terminal() {
			pipe.Set(ctx, store.GameStateKey(code), data, store.GameRetentionTTL)
			pipe.Expire(ctx, store.GameEngineKey(code), store.GameRetentionTTL)
			pipe.Del(ctx, store.GameTimeoutKey(code))
			for _, id := range st.PlayerIDs {
				pipe.Del(ctx, store.UserGameKey(id))
			}
			return nil
		}
		pipe.Set(ctx, store.GameStateKey(code), data, store.GameTTL)
		pipe.Expire(ctx, store.GameEngineKey(code), store.GameTTL)
		for _, id := range st.PlayerIDs {
			pipe.Expire(ctx, store.UserGameKey(id), store.GameTTL)
		}
		queueTimeoutMarker(pipe, ctx, code, st, now)
		return nil
	})
	return err
}

// queueTimeoutMarker arms (or disarms) the expiring key whose expiry
// event drives the timeout watcher. The marker carries no data; the
// authoritative clock lives in the state's timing block.
func queueTimeoutMarker(pipe redis.Pipeliner, ctx context.Context, code string, st *engine.State, now time.Time) {
	rem, ok := engine.RemainingTime(st, now)
	if !ok {
		pipe.Del(ctx, store.GameTimeoutKey(code))
		return
	}
	if rem <= 0 {
		rem = time.Second
	}
	pipe.Set(ctx, store.GameTimeoutKey(code), "1", rem)
}

// afterGameEnd handles the non-transactional tail of a terminal write.
func (o *Orchestrator) afterGameEnd(ctx context.Context, code string, st *engine.State) {
	if err := o.lobbies.SetInGame(ctx, code, false); err != nil && !errors.Is(err, lobby.ErrNotFound) {
		o.logger.WithError(err).WithField("code", code).Warn("failed to clear lobby in-game flag")
	}
	o.emitter.Emit(ctx, code, events.GameEnded, map[string]interface{}{
		"code":      code,
		"result":    st.Result,
		"winner_id": st.WinnerID,
		"state":     st,
	})
}

func unmarshalState(data []byte) (*engine.State, error) {
	var st engine.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("corrupt game state: %w", err)
	}
	if st.SchemaVersion != engine.StateSchemaVersion {
		return nil, fmt.Errorf("unsupported state schema version %d", st.SchemaVersion)
	}
	return &st, nil
}
