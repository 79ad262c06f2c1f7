package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"reqflow/internal/audit"
	"reqflow/internal/config"
	"reqflow/internal/events"
	"reqflow/internal/history"
	"reqflow/internal/locks"
	"reqflow/internal/logging"
	"reqflow/internal/metrics"
	"reqflow/internal/numbering"
	"reqflow/internal/refdata"
	"reqflow/internal/store"
)

// Engine orchestrates request and need lifecycles.
type Engine struct {
	store     *store.Store
	catalog   *refdata.Catalog
	table     *Table
	allocator *numbering.Allocator
	locks     *locks.Keyed
	events    *events.Broadcaster
	trail     *audit.Trail
	ledger    *history.Ledger
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time

	recordViews bool
	outboxWake  func()
	rules       []Rule
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocks sets the per-request lock table. The default is an in-process
// table with no wait timeout.
func WithLocks(k *locks.Keyed) Option {
	return func(e *Engine) {
		if k != nil {
			e.locks = k
		}
	}
}

// WithBroadcaster sets the event broadcaster.
func WithBroadcaster(b *events.Broadcaster) Option {
	return func(e *Engine) { e.events = b }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithViewAuditing records a view_request audit entry on every GetRequest.
func WithViewAuditing(enabled bool) Option {
	return func(e *Engine) { e.recordViews = enabled }
}

// WithOutboxWake registers a callback invoked after a commit that wrote
// notification intents, typically outbox.Dispatcher.Wake.
func WithOutboxWake(fn func()) Option {
	return func(e *Engine) { e.outboxWake = fn }
}

// WithRules replaces the routing table.
func WithRules(rules []Rule) Option {
	return func(e *Engine) { e.rules = rules }
}

// New builds an engine over a seeded store.
func New(st *store.Store, catalog *refdata.Catalog, allocator *numbering.Allocator, opts ...Option) (*Engine, error) {
	if st == nil || catalog == nil || allocator == nil {
		return nil, fmt.Errorf("workflow: store, catalog and allocator are required")
	}
	e := &Engine{
		store:     st,
		catalog:   catalog,
		allocator: allocator,
		locks:     locks.NewKeyed(),
		logger:    logging.NewNop(),
		now:       time.Now,
		rules:     DefaultRules(),
	}
	for _, opt := range opts {
		opt(e)
	}
	table, err := NewTable(catalog, e.rules)
	if err != nil {
		return nil, err
	}
	e.table = table
	e.logger = logging.NewComponentLogger(e.logger, "workflow")
	e.trail = audit.NewTrail(st)
	e.trail.SetClock(e.now)
	e.ledger = history.NewLedger(st, catalog)
	return e, nil
}

// NewFromConfig loads the reference catalog from st and builds an engine
// with the numbering and auditing settings of cfg.
func NewFromConfig(ctx context.Context, cfg *config.Config, st *store.Store, opts ...Option) (*Engine, error) {
	catalog, err := st.LoadCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("load reference data: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	allocator := numbering.NewAllocator(cfg.Numbering.Prefix, loc)
	base := []Option{WithViewAuditing(cfg.Audit.RecordViews)}
	return New(st, catalog, allocator, append(base, opts...)...)
}

// Catalog exposes the reference data the engine resolved at startup.
func (e *Engine) Catalog() *refdata.Catalog { return e.catalog }

// Trail exposes the audit trail.
func (e *Engine) Trail() *audit.Trail { return e.trail }

// Ledger exposes the history ledger.
func (e *Engine) Ledger() *history.Ledger { return e.ledger }

// Rules exposes the routing table.
func (e *Engine) Rules() *Table { return e.table }

func lockKey(requestID int64) string {
	return "request:" + strconv.FormatInt(requestID, 10)
}

// change accumulates the effects of one mutation. It is rebuilt from scratch
// on every transaction attempt.
type change struct {
	request  *store.Request
	need     *store.Need
	events   []events.Event
	outbox   int
	metricFn []func()
}

type mutation func(ctx context.Context, tx *store.Tx, c *change) error

// mutate runs fn under the request lock inside one transaction, then
// publishes the collected events before releasing the lock.
func (e *Engine) mutate(ctx context.Context, operation string, requestID int64, fn mutation) (*change, error) {
	started := time.Now()
	var result *change
	err := e.locks.WithLock(ctx, lockKey(requestID), func(ctx context.Context) error {
		var c *change
		err := e.store.InTx(ctx, func(tx *store.Tx) error {
			c = &change{}
			return fn(ctx, tx, c)
		})
		if err != nil {
			return err
		}
		result = c
		e.afterCommit(ctx, c)
		return nil
	})
	err = classify(ctx, operation, err)
	e.metrics.ObserveOperation(operation, started, Kind(err))
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) afterCommit(ctx context.Context, c *change) {
	for _, fn := range c.metricFn {
		fn()
	}
	if e.events != nil {
		for _, evt := range c.events {
			e.events.Publish(ctx, evt)
		}
	}
	if c.outbox > 0 && e.outboxWake != nil {
		e.outboxWake()
	}
}

func (e *Engine) timestamp() time.Time {
	return e.now().UTC()
}
