package locks

import (
	"errors"
	"log/slog"

	backend "github.com/redis/go-redis/v9"

	"reqflow/internal/config"
)

// FromConfig builds the per-request lock table selected by locking.backend.
// client is required only for the redis backend.
func FromConfig(cfg *config.Config, client backend.UniversalClient, logger *slog.Logger) (*Keyed, error) {
	opts := []Option{
		WithWaitTimeout(cfg.LockWait()),
		WithLogger(logger),
	}
	if cfg.Locking.Backend == config.LockBackendRedis {
		if client == nil {
			return nil, errors.New("redis lock backend requires a redis client")
		}
		opts = append(opts, WithDistributed(NewRedis(client, cfg.Locking.KeyPrefix, cfg.LockTTL(), cfg.LockRetry())))
	}
	return NewKeyed(opts...), nil
}
