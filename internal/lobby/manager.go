// internal/lobby/manager.go
package lobby

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

// Manager owns the lobby lifecycle in the shared store. It keeps no
// authoritative state in memory: every operation loads, mutates and
// conditionally rewrites the stored lobby, so any number of server
// processes can run against the same store.
type Manager struct {
	rdb     *redis.Client
	emitter events.Emitter
	logger  *logrus.Logger
}

func NewManager(rdb *redis.Client, emitter events.Emitter, logger *logrus.Logger) *Manager {
	return &Manager{rdb: rdb, emitter: emitter, logger: logger}
}

// CreateParams are the host-chosen settings for a new lobby.
type CreateParams struct {
	MaxPlayers int
	IsPublic   bool
	GameName   string
	GameRules  map[string]interface{}
}

// Create generates a unique code, seeds membership with the host, and
// persists the lobby. A pre-selected game is validated against the
// engine's declared schema here so an invalid lobby can never exist.
func (m *Manager) Create(ctx context.Context, host Member, p CreateParams) (*Lobby, error) {
	if p.MaxPlayers < MinPlayers || p.MaxPlayers > MaxPlayers {
		return nil, fmt.Errorf("max_players must be between %d and %d: %w", MinPlayers, MaxPlayers, ErrBelowMembers)
	}

	var rules map[string]interface{}
	if p.GameName != "" {
		meta, ok := engine.MetaFor(p.GameName)
		if !ok {
			return nil, fmt.Errorf("%w: %q", engine.ErrUnknownGame, p.GameName)
		}
		resolved, err := engine.ResolveRules(meta, p.GameRules)
		if err != nil {
			return nil, err
		}
		rules = resolved
	}

	now := time.Now()
	host.IsHost = true
	host.JoinedAt = now.Unix()
	l := &Lobby{
		HostID:       host.ID,
		MaxPlayers:   p.MaxPlayers,
		Members:      []Member{host},
		IsPublic:     p.IsPublic,
		SelectedGame: p.GameName,
		GameRules:    rules,
		CreatedAt:    now.Unix(),
	}

	// Bounded retry against code collisions; SETNX decides the winner.
	for attempt := 0; attempt < codeAttempts; attempt++ {
		l.Code = newCode()
		data, err := l.marshal()
		if err != nil {
			return nil, err
		}
		ok, err := m.rdb.SetNX(ctx, store.LobbyKey(l.Code), data, store.LobbyTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("store error creating lobby: %w", err)
		}
		if !ok {
			m.logger.WithField("code", l.Code).Debug("lobby code collision, regenerating")
			continue
		}
		// SETNX on the reverse pointer is the one-lobby-per-user guard;
		// a losing create rolls its lobby back.
		claimed, err := m.rdb.SetNX(ctx, store.UserLobbyKey(host.ID), l.Code, store.LobbyTTL).Result()
		if err != nil {
			m.rdb.Del(ctx, store.LobbyKey(l.Code))
			return nil, fmt.Errorf("store error writing lobby pointer: %w", err)
		}
		if !claimed {
			m.rdb.Del(ctx, store.LobbyKey(l.Code))
			return nil, ErrAlreadyInLobby
		}
		return l, nil
	}
	return nil, fmt.Errorf("could not allocate a unique lobby code after %d attempts", codeAttempts)
}

// Get loads a lobby by code.
func (m *Manager) Get(ctx context.Context, code string) (*Lobby, error) {
	data, err := m.rdb.Get(ctx, store.LobbyKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, store.AsNotFound(err, "lobby")
	}
	return unmarshalLobby(data)
}

// CodeForUser answers "what lobby am I in" from the reverse index.
func (m *Manager) CodeForUser(ctx context.Context, userID string) (string, error) {
	code, err := m.rdb.Get(ctx, store.UserLobbyKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", store.AsNotFound(err, "user lobby pointer")
	}
	return code, nil
}

// Join appends a member. The capacity check and the write happen inside
// one WATCH block so two racing joins cannot both slip past a full
// lobby.
func (m *Manager) Join(ctx context.Context, code string, member Member) (*Lobby, error) {
	var joined *Lobby
	err := store.Atomically(ctx, m.rdb, func(tx *redis.Tx) error {
		l, err := m.loadTx(tx, ctx, code)
		if err != nil {
			return err
		}
		if l.InGame {
			return ErrAlreadyStarted
		}
		if l.MemberIndex(member.ID) >= 0 {
			return ErrAlreadyMember
		}
		if len(l.Members) >= l.MaxPlayers {
			return ErrFull
		}
		pointer, err := tx.Get(ctx, store.UserLobbyKey(member.ID)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return store.AsNotFound(err, "user lobby pointer")
		}
		if pointer != "" {
			return ErrAlreadyInLobby
		}

		member.IsHost = false
		member.JoinedAt = time.Now().Unix()
		l.Members = append(l.Members, member)
		joined = l
		return m.persistTx(tx, ctx, l, func(pipe redis.Pipeliner) {
			pipe.Set(ctx, store.UserLobbyKey(member.ID), l.Code, store.LobbyTTL)
		})
	}, store.LobbyKey(code), store.UserLobbyKey(member.ID))
	if err != nil {
		return nil, err
	}

	m.emitter.Emit(ctx, code, events.LobbyMemberJoined, map[string]interface{}{
		"member": joined.Members[len(joined.Members)-1],
		"lobby":  joined,
	})
	return joined, nil
}

// Leave removes a member. A departing host hands the lobby to the
// next-oldest member; the last member leaving disbands the lobby.
func (m *Manager) Leave(ctx context.Context, code, userID string) (*Lobby, error) {
	var (
		remaining *Lobby
		newHostID string
	)
	err := store.Atomically(ctx, m.rdb, func(tx *redis.Tx) error {
		remaining, newHostID = nil, ""
		l, err := m.loadTx(tx, ctx, code)
		if err != nil {
			return err
		}
		idx := l.MemberIndex(userID)
		if idx < 0 {
			return ErrNotMember
		}
		wasHost := l.Members[idx].IsHost
		l.Members = append(l.Members[:idx], l.Members[idx+1:]...)

		if len(l.Members) == 0 {
			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, store.LobbyKey(code))
				pipe.Del(ctx, store.UserLobbyKey(userID))
				return nil
			})
			return err
		}

		if wasHost {
			l.Members[0].IsHost = true
			l.HostID = l.Members[0].ID
			newHostID = l.HostID
		}
		remaining = l
		return m.persistTx(tx, ctx, l, func(pipe redis.Pipeliner) {
			pipe.Del(ctx, store.UserLobbyKey(userID))
		})
	}, store.LobbyKey(code), store.UserLobbyKey(userID))
	if err != nil {
		return nil, err
	}

	if remaining == nil {
		m.emitter.Emit(ctx, code, events.LobbyClosed, map[string]interface{}{"code": code})
		return nil, nil
	}
	m.emitter.Emit(ctx, code, events.LobbyMemberLeft, map[string]interface{}{
		"user_id": userID,
		"lobby":   remaining,
	})
	if newHostID != "" {
		m.emitter.Emit(ctx, code, events.LobbyHostTransferred, map[string]interface{}{
			"host_id": newHostID,
		})
	}
	return remaining, nil
}

// TransferHost hands the host seat to another member. Only the current
// host may do this.
func (m *Manager) TransferHost(ctx context.Context, code, currentHostID, newHostID string) (*Lobby, error) {
	var updated *Lobby
	err := store.Atomically(ctx, m.rdb, func(tx *redis.Tx) error {
		l, err := m.loadTx(tx, ctx, code)
		if err != nil {
			return err
		}
		if l.HostID != currentHostID {
			return ErrNotHost
		}
		target := l.MemberIndex(newHostID)
		if target < 0 {
			return ErrNotMember
		}
		for i := range l.Members {
			l.Members[i].IsHost = i == target
		}
		l.HostID = newHostID
		updated = l
		return m.persistTx(tx, ctx, l, nil)
	}, store.LobbyKey(code))
	if err != nil {
		return nil, err
	}

	m.emitter.Emit(ctx, code, events.LobbyHostTransferred, map[string]interface{}{
		"host_id": newHostID,
	})
	return updated, nil
}

// SettingsUpdate carries the host-editable lobby settings; nil fields
// are left unchanged.
type SettingsUpdate struct {
	MaxPlayers *int                   `json:"max_players,omitempty"`
	IsPublic   *bool                  `json:"is_public,omitempty"`
	GameName   *string                `json:"game_name,omitempty"`
	GameRules  map[string]interface{} `json:"game_rules,omitempty"`
}

// UpdateSettings applies host changes. Shrinking capacity below the
// current member count is rejected; selecting a game re-validates its
// rules against the engine schema.
func (m *Manager) UpdateSettings(ctx context.Context, code, hostID string, upd SettingsUpdate) (*Lobby, error) {
	var updated *Lobby
	err := store.Atomically(ctx, m.rdb, func(tx *redis.Tx) error {
		l, err := m.loadTx(tx, ctx, code)
		if err != nil {
			return err
		}
		if l.HostID != hostID {
			return ErrNotHost
		}
		if upd.MaxPlayers != nil {
			if *upd.MaxPlayers < MinPlayers || *upd.MaxPlayers > MaxPlayers {
				return fmt.Errorf("max_players must be between %d and %d: %w", MinPlayers, MaxPlayers, ErrBelowMembers)
			}
			if *upd.MaxPlayers < len(l.Members) {
				return ErrBelowMembers
			}
			l.MaxPlayers = *upd.MaxPlayers
		}
		if upd.IsPublic != nil {
			l.IsPublic = *upd.IsPublic
		}
		if upd.GameName != nil {
			meta, ok := engine.MetaFor(*upd.GameName)
			if !ok {
				return fmt.Errorf("%w: %q", engine.ErrUnknownGame, *upd.GameName)
			}
			resolved, err := engine.ResolveRules(meta, upd.GameRules)
			if err != nil {
				return err
			}
			l.SelectedGame = *upd.GameName
			l.GameRules = resolved
		}
		updated = l
		return m.persistTx(tx, ctx, l, nil)
	}, store.LobbyKey(code))
	if err != nil {
		return nil, err
	}

	m.emitter.Emit(ctx, code, events.LobbySettingsUpdated, map[string]interface{}{
		"lobby": updated,
	})
	return updated, nil
}

// SetInGame flips the started flag. Owned by the session layer, which
// calls it when a game is created or torn down.
func (m *Manager) SetInGame(ctx context.Context, code string, inGame bool) error {
	return store.Atomically(ctx, m.rdb, func(tx *redis.Tx) error {
		l, err := m.loadTx(tx, ctx, code)
		if err != nil {
			return err
		}
		l.InGame = inGame
		return m.persistTx(tx, ctx, l, nil)
	}, store.LobbyKey(code))
}

// Summary is one row of the public lobby listing, annotated with the
// selected game's display metadata.
type Summary struct {
	Code            string `json:"code"`
	HostNickname    string `json:"host_nickname"`
	CurrentPlayers  int    `json:"current_players"`
	MaxPlayers      int    `json:"max_players"`
	SelectedGame    string `json:"selected_game,omitempty"`
	GameDisplayName string `json:"game_display_name,omitempty"`
	CreatedAt       int64  `json:"created_at"`
}

// ListPublic returns public, not-yet-started lobbies, optionally
// filtered by selected game.
func (m *Manager) ListPublic(ctx context.Context, filterGame string) ([]Summary, error) {
	var out []Summary
	iter := m.rdb.Scan(ctx, 0, store.LobbyKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		data, err := m.rdb.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // expired between SCAN and GET
		}
		if err != nil {
			return nil, store.AsNotFound(err, "lobby")
		}
		l, err := unmarshalLobby(data)
		if err != nil {
			m.logger.WithError(err).WithField("key", iter.Val()).Warn("skipping unreadable lobby record")
			continue
		}
		if !l.IsPublic || l.InGame {
			continue
		}
		if filterGame != "" && l.SelectedGame != filterGame {
			continue
		}
		s := Summary{
			Code:           l.Code,
			CurrentPlayers: len(l.Members),
			MaxPlayers:     l.MaxPlayers,
			SelectedGame:   l.SelectedGame,
			CreatedAt:      l.CreatedAt,
		}
		if idx := l.MemberIndex(l.HostID); idx >= 0 {
			s.HostNickname = l.Members[idx].Nickname
		}
		if meta, ok := engine.MetaFor(l.SelectedGame); ok {
			s.GameDisplayName = meta.DisplayName
		}
		out = append(out, s)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("store error listing lobbies: %w", err)
	}
	return out, nil
}

// loadTx reads the lobby under WATCH.
func (m *Manager) loadTx(tx *redis.Tx, ctx context.Context, code string) (*Lobby, error) {
	data, err := tx.Get(ctx, store.LobbyKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, store.AsNotFound(err, "lobby")
	}
	return unmarshalLobby(data)
}

// persistTx queues the rewritten lobby plus any extra writes, refreshing
// the activity TTL on the lobby and every member's reverse pointer.
func (m *Manager) persistTx(tx *redis.Tx, ctx context.Context, l *Lobby, extra func(pipe redis.Pipeliner)) error {
	data, err := l.marshal()
	if err != nil {
		return err
	}
	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, store.LobbyKey(l.Code), data, store.LobbyTTL)
		for _, member := range l.Members {
			pipe.Expire(ctx, store.UserLobbyKey(member.ID), store.LobbyTTL)
		}
		if extra != nil {
			extra(pipe)
		}
		return nil
	})
	return err
}
