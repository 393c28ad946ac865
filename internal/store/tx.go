// internal/store/tx.go
package store

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// ErrConflict is returned when an atomic mutation keeps losing the race
// against concurrent writers. Callers surface it as a conflict, never
// retry silently forever.
var ErrConflict = errors.New("concurrent update conflict")

// txRetries bounds the optimistic-concurrency retry loop.
const txRetries = 3

// Atomically runs fn under WATCH on the given keys. fn reads state,
// decides, and queues its writes in a TxPipelined block; if any watched
// key changes before EXEC the transaction fails and fn is retried from a
// fresh read. After txRetries losses the caller gets ErrConflict.
func Atomically(ctx context.Context, rdb *redis.Client, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < txRetries; i++ {
		err := rdb.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflict
}
