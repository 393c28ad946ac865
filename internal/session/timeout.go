// internal/session/timeout.go
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/parlorgames/parlor/internal/engine"
	"github.com/parlorgames/parlor/internal/events"
	"github.com/parlorgames/parlor/internal/store"
)

// Watcher turns key-expiry notifications into timeout resolutions. Each
// live timed turn is shadowed by an expiring game_timeout:{code} key;
// when it expires, Redis publishes the event and the watcher applies
// the engine's timeout consequence to the authoritative state.
//
// Expiry delivery is at-most-once per subscriber and the marker value is
// gone by the time the event arrives, so the handler trusts nothing but
// the reloaded state: a terminal or still-ticking session means the
// event was stale and is dropped.
type Watcher struct {
	rdb    *redis.Client
	orch   *Orchestrator
	logger *logrus.Logger
}

func NewWatcher(rdb *redis.Client, orch *Orchestrator, logger *logrus.Logger) *Watcher {
	return &Watcher{rdb: rdb, orch: orch, logger: logger}
}

// Run subscribes to the expired-key channel for the connected database
// and dispatches timeout markers until the context is canceled. Errors
// on individual events are logged and swallowed; one bad session must
// not stall every other timer.
func (w *Watcher) Run(ctx context.Context) {
	channel := fmt.Sprintf("__keyevent@%d__:expired", store.DB())
	pubsub := w.rdb.PSubscribe(ctx, channel)
	defer pubsub.Close()

	w.logger.WithField("channel", channel).Info("timeout watcher started")
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			code := store.TimeoutCode(msg.Payload)
			if code == "" {
				continue
			}
			if err := w.HandleExpiration(ctx, code); err != nil {
				w.logger.WithError(err).WithField("code", code).Error("failed to resolve turn timeout")
			}
		}
	}
}

// HandleExpiration resolves one fired turn timer. The consequence is
// the engine's call: end the game with the timed-out player losing, or
// skip the turn and hand it to the next player.
func (w *Watcher) HandleExpiration(ctx context.Context, code string) error {
	var (
		result  *engine.State
		skipped string
		ended   bool
	)
	err := store.Atomically(ctx, w.rdb, func(tx *redis.Tx) error {
		result, skipped, ended = nil, "", false
		st, eng, err := w.orch.loadTx(tx, ctx, code)
		if err != nil {
			return err
		}
		if st.Terminal() {
			return nil // resolved by a racing move or forfeit
		}
		now := w.orch.clock()
		if rem, ok := engine.RemainingTime(st, now); !ok || rem > 0 {
			return nil // stale event; a move already restarted the clock
		}

		timedOut := st.CurrentPlayerID()
		engine.ConsumeTurnTime(st, now)

		if endsGame, winnerID := eng.CheckTimeout(st); endsGame {
			st.Result = engine.ResultTimeout
			st.WinnerID = winnerID
			ended = true
		} else {
			st.LastMove = &engine.MoveRecord{
				PlayerID: timedOut,
				Cause:    engine.CauseTimeout,
				At:       now.Unix(),
			}
			eng.AdvanceTurn(st)
			engine.StartTurn(st, now)
			skipped = timedOut
		}
		st.Revision++
		result = st
		return w.orch.persistTx(tx, ctx, code, st, now)
	}, store.GameStateKey(code))
	if err != nil {
		// The session may have been torn down between expiry and handling.
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if result == nil {
		return nil
	}

	if skipped != "" {
		w.orch.emitter.Emit(ctx, code, events.MoveMade, map[string]interface{}{
			"code":      code,
			"player_id": skipped,
			"cause":     engine.CauseTimeout,
			"state":     result,
		})
		w.logger.WithFields(logrus.Fields{"code": code, "player": skipped}).Info("turn skipped on timeout")
	}
	if ended {
		w.orch.afterGameEnd(ctx, code, result)
		w.logger.WithFields(logrus.Fields{"code": code, "winner": result.WinnerID}).Info("game ended on timeout")
	}
	return nil
}

// RemainingForClient reports the open turn's remaining time in seconds
// for status endpoints, or -1 when the session is untimed.
func RemainingForClient(st *engine.State, now time.Time) float64 {
	rem, ok := engine.RemainingTime(st, now)
	if !ok {
		return -1
	}
	return rem.Seconds()
}
