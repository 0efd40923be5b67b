package pipeline

import (
	"context"

	"github.com/gofrs/flock"
	"github.com/rotisserie/eris"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/prospect-pipeline/internal/db"
)

// Guard grants exclusive permission to run a staging batch. TryAcquire
// never blocks: when another holder is active it returns ok=false.
type Guard interface {
	TryAcquire(ctx context.Context) (release func(), ok bool, err error)
}

// Guard kinds accepted by NewGuard.
const (
	GuardLocal    = "local"
	GuardAdvisory = "advisory"
	GuardFile     = "file"
)

// LocalGuard serializes runs within one process.
type LocalGuard struct {
	sem *semaphore.Weighted
}

// NewLocalGuard creates a LocalGuard.
func NewLocalGuard() *LocalGuard {
	return &LocalGuard{sem: semaphore.NewWeighted(1)}
}

// TryAcquire implements Guard.
func (g *LocalGuard) TryAcquire(context.Context) (func(), bool, error) {
	if !g.sem.TryAcquire(1) {
		return nil, false, nil
	}
	return func() { g.sem.Release(1) }, true, nil
}

// AdvisoryGuard serializes runs across every process sharing a Postgres
// database. The lock is transaction-scoped and held for the whole run.
type AdvisoryGuard struct {
	pool db.Pool
	key  int64
}

// NewAdvisoryGuard creates an AdvisoryGuard keyed on name.
func NewAdvisoryGuard(pool db.Pool, name string) *AdvisoryGuard {
	return &AdvisoryGuard{pool: pool, key: db.LockKey(name)}
}

// TryAcquire implements Guard.
func (g *AdvisoryGuard) TryAcquire(ctx context.Context) (func(), bool, error) {
	tx, ok, err := db.TryXactLock(ctx, g.pool, g.key)
	if err != nil || !ok {
		return nil, false, err
	}
	return func() { _ = tx.Rollback(context.Background()) }, true, nil
}

// FileGuard serializes runs across processes on one host with an
// exclusive file lock.
type FileGuard struct {
	lock *flock.Flock
}

// NewFileGuard creates a FileGuard on path.
func NewFileGuard(path string) *FileGuard {
	return &FileGuard{lock: flock.New(path)}
}

// TryAcquire implements Guard.
func (g *FileGuard) TryAcquire(context.Context) (func(), bool, error) {
	ok, err := g.lock.TryLock()
	if err != nil {
		return nil, false, eris.Wrapf(err, "pipeline: lock %s", g.lock.Path())
	}
	if !ok {
		return nil, false, nil
	}
	return func() { _ = g.lock.Unlock() }, true, nil
}

// NewGuard builds the guard named by kind. pool is required for
// GuardAdvisory and lockFile for GuardFile.
func NewGuard(kind string, pool db.Pool, lockFile string) (Guard, error) {
	switch kind {
	case GuardLocal, "":
		return NewLocalGuard(), nil
	case GuardAdvisory:
		if pool == nil {
			return nil, eris.New("pipeline: advisory guard requires a postgres pool")
		}
		return NewAdvisoryGuard(pool, "prospect-pipeline:staging"), nil
	case GuardFile:
		if lockFile == "" {
			return nil, eris.New("pipeline: file guard requires a lock file")
		}
		return NewFileGuard(lockFile), nil
	default:
		return nil, eris.Errorf("pipeline: unknown guard %q", kind)
	}
}
