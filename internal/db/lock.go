package db

import (
	"context"
	"hash/fnv"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// LockKey derives a stable advisory lock key from a name.
func LockKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}

// TryXactLock opens a transaction and attempts pg_try_advisory_xact_lock.
// On success the caller owns tx and releases the lock by ending it.
// When the lock is held elsewhere the transaction is rolled back and
// (nil, false, nil) is returned.
func TryXactLock(ctx context.Context, pool Pool, key int64) (pgx.Tx, bool, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, false, eris.Wrap(err, "db: advisory lock: begin tx")
	}

	var ok bool
	if err := tx.QueryRow(ctx, "SELECT pg_try_advisory_xact_lock($1)", key).Scan(&ok); err != nil {
		_ = tx.Rollback(ctx)
		return nil, false, eris.Wrap(err, "db: advisory lock: acquire")
	}
	if !ok {
		_ = tx.Rollback(ctx)
		return nil, false, nil
	}
	return tx, true, nil
}
