package testsupport

import (
	"path/filepath"
	"testing"

	"reqflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Numbering.Timezone = "UTC"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithNumberPrefix overrides the request number prefix.
func WithNumberPrefix(prefix string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Numbering.Prefix = prefix
	}
}

// WithTimezone overrides the numbering timezone.
func WithTimezone(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Numbering.Timezone = name
	}
}

// WithViewAuditing enables audit records for request reads.
func WithViewAuditing() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Audit.RecordViews = true
	}
}

// WithRedis points the Redis lock and event sink at addr.
func WithRedis(addr string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Redis.Addr = addr
		b.cfg.Locking.Backend = config.LockBackendRedis
		b.cfg.Events.RedisTransport = true
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
