package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"reqflow/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "reqflow")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "reqflow.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.Numbering.Prefix != "SOL" {
		t.Fatalf("unexpected number prefix: %q", cfg.Numbering.Prefix)
	}
	if cfg.Locking.Backend != config.LockBackendLocal {
		t.Fatalf("unexpected lock backend: %q", cfg.Locking.Backend)
	}
	if cfg.Audit.RecordViews {
		t.Fatal("expected view auditing disabled by default")
	}
	if cfg.SMTPEnabled() {
		t.Fatal("expected SMTP disabled by default")
	}
}

func TestLoadCustomConfig(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(tempHome, "config.toml")
	payload := map[string]any{
		"paths": map[string]any{
			"data_dir": "~/reqflow-data",
			"api_bind": "0.0.0.0:9000",
		},
		"numbering": map[string]any{
			"prefix":   "req",
			"timezone": "Europe/Madrid",
		},
		"notifications": map[string]any{
			"smtp": map[string]any{
				"host": "mail.example.com",
				"from": "reqflow@example.com",
				"to":   []string{"almacen@example.com", " ALMACEN@example.com ", ""},
			},
		},
		"logging": map[string]any{
			"format": "JSON",
			"level":  "DEBUG",
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected config %q to exist, got %q (exists=%v)", configPath, resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "reqflow-data") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.Paths.APIBind != "0.0.0.0:9000" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Numbering.Prefix != "REQ" {
		t.Fatalf("expected prefix to be upper-cased, got %q", cfg.Numbering.Prefix)
	}
	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("Location returned error: %v", err)
	}
	if loc.String() != "Europe/Madrid" {
		t.Fatalf("unexpected location: %q", loc)
	}
	if got := cfg.Notifications.SMTP.To; len(got) != 1 || got[0] != "almacen@example.com" {
		t.Fatalf("expected deduplicated recipients, got %v", got)
	}
	if !cfg.SMTPEnabled() {
		t.Fatal("expected SMTP to be enabled")
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestEnvironmentOverridesFileValues(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("REQFLOW_API_BIND", "127.0.0.1:9999")
	t.Setenv("REQFLOW_LOCK_BACKEND", "redis")
	t.Setenv("REQFLOW_REDIS_ADDR", "redis.internal:6379")
	t.Setenv("REQFLOW_SMTP_TO", "a@example.com,b@example.com")
	t.Setenv("REQFLOW_SMTP_HOST", "smtp.example.com")
	t.Setenv("REQFLOW_SMTP_FROM", "reqflow@example.com")

	configPath := filepath.Join(tempHome, "config.toml")
	if err := os.WriteFile(configPath, []byte("[paths]\napi_bind = \"127.0.0.1:1111\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.APIBind != "127.0.0.1:9999" {
		t.Fatalf("expected env api bind, got %q", cfg.Paths.APIBind)
	}
	if cfg.Locking.Backend != config.LockBackendRedis {
		t.Fatalf("expected redis lock backend, got %q", cfg.Locking.Backend)
	}
	if cfg.Redis.Addr != "redis.internal:6379" {
		t.Fatalf("unexpected redis addr: %q", cfg.Redis.Addr)
	}
	if len(cfg.Notifications.SMTP.To) != 2 {
		t.Fatalf("expected two smtp recipients, got %v", cfg.Notifications.SMTP.To)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "unknown lock backend",
			mutate: func(c *config.Config) { c.Locking.Backend = "etcd" },
			want:   "locking.backend",
		},
		{
			name:   "redis lock without address",
			mutate: func(c *config.Config) { c.Locking.Backend = config.LockBackendRedis; c.Redis.Addr = "" },
			want:   "redis.addr",
		},
		{
			name:   "empty prefix",
			mutate: func(c *config.Config) { c.Numbering.Prefix = "" },
			want:   "numbering.prefix",
		},
		{
			name:   "prefix with dash",
			mutate: func(c *config.Config) { c.Numbering.Prefix = "SO-L" },
			want:   "numbering.prefix",
		},
		{
			name:   "unknown timezone",
			mutate: func(c *config.Config) { c.Numbering.Timezone = "Mars/Olympus" },
			want:   "numbering.timezone",
		},
		{
			name:   "non-positive outbox interval",
			mutate: func(c *config.Config) { c.Outbox.PollInterval = 0 },
			want:   "outbox.poll_interval",
		},
		{
			name: "smtp without recipients",
			mutate: func(c *config.Config) {
				c.Notifications.SMTP.Host = "smtp.example.com"
				c.Notifications.SMTP.From = "a@example.com"
			},
			want: "notifications.smtp.to",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	path := filepath.Join(tempHome, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Outbox.MaxAttempts != config.Default().Outbox.MaxAttempts {
		t.Fatalf("unexpected max attempts: %d", cfg.Outbox.MaxAttempts)
	}
}

func TestEnsureDirectoriesCreatesDataAndLogDirs(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q: %v", dir, err)
		}
	}
}
