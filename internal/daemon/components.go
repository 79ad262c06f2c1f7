package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	backend "github.com/redis/go-redis/v9"

	"reqflow/internal/config"
	"reqflow/internal/events"
	"reqflow/internal/locks"
	"reqflow/internal/logging"
	"reqflow/internal/metrics"
	"reqflow/internal/notifications"
	"reqflow/internal/outbox"
	"reqflow/internal/refdata"
	"reqflow/internal/store"
	"reqflow/internal/workflow"
)

// Components holds the services a daemon runs.
type Components struct {
	Store      *store.Store
	Engine     *workflow.Engine
	Events     *events.Broadcaster
	Dispatcher *outbox.Dispatcher
	Metrics    *metrics.Metrics
	Notifier   notifications.Service
	Redis      backend.UniversalClient
}

// Build opens the store, seeds reference data when the tables are empty and
// assembles the engine with its collaborators.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires a config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	c := &Components{Store: st, Metrics: metrics.New()}

	seed, err := refdata.DefaultSeed()
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("load reference seed: %w", err)
	}
	if err := st.SeedReferenceData(ctx, seed); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("seed reference data: %w", err)
	}

	if cfg.Locking.Backend == config.LockBackendRedis || cfg.Events.RedisTransport {
		c.Redis = backend.NewClient(&backend.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := c.Redis.Ping(ctx).Err(); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
	}

	eventOpts := []events.Option{
		events.WithSubscriberBuffer(cfg.Events.SubscriberBuffer),
		events.WithSinkBuffer(cfg.Events.SinkBuffer),
		events.WithLogger(logger),
		events.WithObserver(c.Metrics),
	}
	if cfg.Events.RedisTransport {
		eventOpts = append(eventOpts, events.WithSink(events.NewRedisSink(c.Redis, cfg.Events.ChannelPrefix)))
	}
	c.Events = events.New(eventOpts...)

	keyed, err := locks.FromConfig(cfg, c.Redis, logger)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	c.Notifier = notifications.NewService(cfg)
	c.Dispatcher = outbox.NewDispatcher(cfg, st, c.Notifier, logger, outbox.WithMetrics(c.Metrics))

	c.Engine, err = workflow.NewFromConfig(ctx, cfg, st,
		workflow.WithLocks(keyed),
		workflow.WithBroadcaster(c.Events),
		workflow.WithMetrics(c.Metrics),
		workflow.WithLogger(logger),
		workflow.WithOutboxWake(c.Dispatcher.Wake),
	)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("build workflow engine: %w", err)
	}
	return c, nil
}

// Close releases the broadcaster, the Redis connection and the store.
func (c *Components) Close() error {
	if c == nil {
		return nil
	}
	if c.Events != nil {
		c.Events.Close()
	}
	var errs []error
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	return errors.Join(errs...)
}
