package locks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"reqflow/internal/logging"
)

// UnlockFunc releases a lock.
type UnlockFunc func(ctx context.Context) error

// Distributed is a cross-process lock keyed by string.
type Distributed interface {
	Lock(ctx context.Context, key string) (UnlockFunc, error)
}

type entry struct {
	sem  chan struct{}
	refs int
}

// Keyed hands out one lock per key.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry

	distributed Distributed
	wait        time.Duration
	logger      *slog.Logger
}

// Option configures a Keyed locker.
type Option func(*Keyed)

// WithDistributed additionally takes a cross-process lock after the local one.
func WithDistributed(d Distributed) Option {
	return func(k *Keyed) {
		k.distributed = d
	}
}

// WithWaitTimeout bounds how long WithLock waits to acquire a key.
func WithWaitTimeout(d time.Duration) Option {
	return func(k *Keyed) {
		k.wait = d
	}
}

// WithLogger configures a logger for lock release failures.
func WithLogger(logger *slog.Logger) Option {
	return func(k *Keyed) {
		k.logger = logger
	}
}

// NewKeyed creates an empty lock table.
func NewKeyed(opts ...Option) *Keyed {
	k := &Keyed{
		entries: make(map[string]*entry),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

func (k *Keyed) acquire(key string) *entry {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	return e
}

func (k *Keyed) release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(k.entries, key)
	}
}

// Held reports how many keys currently have holders or waiters.
func (k *Keyed) Held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

// WithLock runs fn while holding the lock for key. Waiting honours ctx and
// the configured wait timeout.
func (k *Keyed) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	waitCtx := ctx
	if k.wait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, k.wait)
		defer cancel()
	}

	e := k.acquire(key)
	select {
	case e.sem <- struct{}{}:
	case <-waitCtx.Done():
		k.release(key)
		return fmt.Errorf("lock %s: %w", key, waitCtx.Err())
	}
	defer func() {
		<-e.sem
		k.release(key)
	}()

	if k.distributed != nil {
		unlock, err := k.distributed.Lock(waitCtx, key)
		if err != nil {
			return fmt.Errorf("lock %s: %w", key, err)
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := unlock(releaseCtx); err != nil {
				logging.WarnWithContext(k.logger, "distributed lock release failed", "lock_release_failed",
					logging.String("key", key),
					logging.Error(err),
					logging.String(logging.FieldImpact, "lock expires via TTL"),
				)
			}
		}()
	}

	return fn(ctx)
}
