// Package distlock provides distributed locks for the delivery pipeline.
//
// Two cooperating workers must never drive the same campaign run, and two
// aggregator ticks must never fold the same event batch. Locks are Redis
// SET-NX with TTL when Redis is configured, falling back to PostgreSQL
// advisory locks (session-scoped, released on connection loss) otherwise.
package distlock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"time"
)

// Lock is a distributed mutual-exclusion primitive. A Lock value is owned by
// one goroutine; share the factory, not the lock.
type Lock interface {
	// Acquire tries to take the lock without blocking. True on success.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lock back if we still own it.
	Release(ctx context.Context) error
}

// Factory builds a lock for a key. The orchestrator and aggregator take a
// Factory so tests can substitute a local stub.
type Factory func(key string, ttl time.Duration) Lock

// PGFactory returns a Factory producing PostgreSQL advisory locks. The ttl
// is ignored: advisory locks live for the session and are reclaimed by the
// database when the holding connection drops.
func PGFactory(db *sql.DB) Factory {
	return func(key string, _ time.Duration) Lock {
		return NewPGAdvisoryLock(db, key)
	}
}

// PGAdvisoryLock implements Lock using pg_try_advisory_lock with a lock ID
// derived deterministically from the key. Advisory locks are session-scoped,
// so the lock pins one connection out of the pool for its whole lifetime:
// acquiring and releasing through the pooled *sql.DB could land on different
// sessions, leaving the lock held by an idle connection.
type PGAdvisoryLock struct {
	db     *sql.DB
	conn   *sql.Conn
	lockID int64
}

// NewPGAdvisoryLock creates an advisory lock for the given key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

// Acquire tries to take the advisory lock. Non-blocking. On success the
// holding connection stays checked out until Release.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, err
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release unlocks on the holding session and returns its connection to the
// pool. Release without a prior successful Acquire is a no-op.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	closeErr := l.conn.Close()
	l.conn = nil
	if err != nil {
		return err
	}
	return closeErr
}
