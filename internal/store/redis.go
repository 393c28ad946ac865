// internal/store/redis.go
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Rdb is the global Redis client. Connect it once at application startup.
// Redis is the single source of truth for lobbies, sessions, engine
// configuration, presence and turn timers; in-process structures are
// derived caches rebuilt from it on every operation.
var Rdb *redis.Client

// TTL policy. Lobbies live while active; finished games are kept for a
// short retention window so clients can fetch the final state.
const (
	LobbyTTL         = 24 * time.Hour
	GameTTL          = 24 * time.Hour
	GameRetentionTTL = 10 * time.Minute
)

// ErrNotFound is returned by store helpers when a key is absent. It is
// distinct from infrastructure failures: a store outage must never be
// mistaken for "resource does not exist".
var ErrNotFound = errors.New("not found")

// ConnectRedis initializes the global Redis client with environment
// variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
//
// It also asks the server to publish key-expiry events, which drive the
// turn-timer subsystem. That request is best-effort: managed Redis
// deployments often forbid CONFIG SET and expect the operator to enable
// notifications out of band.
func ConnectRedis(logger *logrus.Logger) error {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	Rdb = redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	if err := Rdb.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err(); err != nil {
		logger.WithError(err).Warn("could not enable keyspace expiry notifications; turn timers require notify-keyspace-events=Ex")
	}
	return nil
}

// DB returns the database index the client is connected to, needed to
// build the keyspace notification channel name.
func DB() int {
	if Rdb == nil {
		return 0
	}
	return Rdb.Options().DB
}

// Key layout. Logical families only; all values are JSON blobs except
// the reverse pointers and the timeout marker.
func LobbyKey(code string) string       { return "lobby:" + code }
func UserLobbyKey(userID string) string { return "user_lobby:" + userID }
func GameStateKey(code string) string   { return "game_state:" + code }
func GameEngineKey(code string) string  { return "game_engine:" + code }
func GameTimeoutKey(code string) string { return "game_timeout:" + code }
func UserGameKey(userID string) string  { return "user_game:" + userID }

// TimeoutCode extracts the lobby code from an expired timeout marker
// key, or "" when the key belongs to another family.
func TimeoutCode(key string) string {
	const prefix = "game_timeout:"
	if len(key) > len(prefix) && key[:len(prefix)] == prefix {
		return key[len(prefix):]
	}
	return ""
}

// AsNotFound maps redis.Nil onto ErrNotFound and wraps anything else as
// an infrastructure failure.
func AsNotFound(err error, what string) error {
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("store error reading %s: %w", what, err)
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
