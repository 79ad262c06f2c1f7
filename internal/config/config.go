package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir" env:"REQFLOW_DATA_DIR"`
	LogDir   string `toml:"log_dir" env:"REQFLOW_LOG_DIR"`
	APIBind  string `toml:"api_bind" env:"REQFLOW_API_BIND"`
	Database string `toml:"database" env:"REQFLOW_DATABASE"`
}

// Numbering controls how human-facing request numbers are generated.
type Numbering struct {
	Prefix   string `toml:"prefix" env:"REQFLOW_NUMBER_PREFIX"`
	Timezone string `toml:"timezone" env:"REQFLOW_NUMBER_TIMEZONE"`
}

// Events contains configuration for the event broadcaster.
type Events struct {
	SubscriberBuffer int    `toml:"subscriber_buffer" env:"REQFLOW_EVENTS_SUBSCRIBER_BUFFER"`
	SinkBuffer       int    `toml:"sink_buffer" env:"REQFLOW_EVENTS_SINK_BUFFER"`
	RedisTransport   bool   `toml:"redis_transport" env:"REQFLOW_EVENTS_REDIS_TRANSPORT"`
	ChannelPrefix    string `toml:"channel_prefix" env:"REQFLOW_EVENTS_CHANNEL_PREFIX"`
}

// Redis contains the connection settings shared by the Redis lock and event sink.
type Redis struct {
	Addr     string `toml:"addr" env:"REQFLOW_REDIS_ADDR"`
	Password string `toml:"password" env:"REQFLOW_REDIS_PASSWORD"`
	DB       int    `toml:"db" env:"REQFLOW_REDIS_DB"`
}

// Locking selects the per-request lock implementation.
type Locking struct {
	Backend       string `toml:"backend" env:"REQFLOW_LOCK_BACKEND"`
	TTLSeconds    int    `toml:"ttl_seconds" env:"REQFLOW_LOCK_TTL_SECONDS"`
	RetryMillis   int    `toml:"retry_millis" env:"REQFLOW_LOCK_RETRY_MILLIS"`
	KeyPrefix     string `toml:"key_prefix" env:"REQFLOW_LOCK_KEY_PREFIX"`
	WaitTimeoutMS int    `toml:"wait_timeout_millis" env:"REQFLOW_LOCK_WAIT_TIMEOUT_MILLIS"`
}

// SMTP contains mail delivery settings.
type SMTP struct {
	Host     string   `toml:"host" env:"REQFLOW_SMTP_HOST"`
	Port     int      `toml:"port" env:"REQFLOW_SMTP_PORT"`
	Username string   `toml:"username" env:"REQFLOW_SMTP_USERNAME"`
	Password string   `toml:"password" env:"REQFLOW_SMTP_PASSWORD"`
	From     string   `toml:"from" env:"REQFLOW_SMTP_FROM"`
	To       []string `toml:"to" env:"REQFLOW_SMTP_TO" envSeparator:","`
}

// Notifications contains configuration for outbound notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic" env:"REQFLOW_NTFY_TOPIC"`
	RequestTimeout int    `toml:"request_timeout" env:"REQFLOW_NOTIFY_REQUEST_TIMEOUT"`
	Warehouse      bool   `toml:"warehouse" env:"REQFLOW_NOTIFY_WAREHOUSE"`
	Shipping       bool   `toml:"shipping" env:"REQFLOW_NOTIFY_SHIPPING"`
	SMTP           SMTP   `toml:"smtp"`
}

// Outbox controls the notification outbox dispatcher.
type Outbox struct {
	PollInterval int `toml:"poll_interval" env:"REQFLOW_OUTBOX_POLL_INTERVAL"`
	BatchSize    int `toml:"batch_size" env:"REQFLOW_OUTBOX_BATCH_SIZE"`
	MaxAttempts  int `toml:"max_attempts" env:"REQFLOW_OUTBOX_MAX_ATTEMPTS"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format" env:"REQFLOW_LOG_FORMAT"`
	Level  string `toml:"level" env:"REQFLOW_LOG_LEVEL"`
}

// Audit contains audit trail options.
type Audit struct {
	RecordViews bool `toml:"record_views" env:"REQFLOW_AUDIT_RECORD_VIEWS"`
}

// Config encapsulates all configuration values for reqflow.
//
// Configuration sections by subsystem:
//   - Paths: data directory, database file, logs and API bind address
//   - Numbering: request number prefix and the day boundary timezone
//   - Events: subscriber buffers and the optional Redis transport
//   - Redis: connection shared by the Redis lock and event sink
//   - Locking: per-request lock backend
//   - Notifications: ntfy and SMTP delivery
//   - Outbox: notification dispatcher cadence and retry budget
//   - Logging: log format and level
//   - Audit: optional recording of read access
type Config struct {
	Paths         Paths         `toml:"paths"`
	Numbering     Numbering     `toml:"numbering"`
	Events        Events        `toml:"events"`
	Redis         Redis         `toml:"redis"`
	Locking       Locking       `toml:"locking"`
	Notifications Notifications `toml:"notifications"`
	Outbox        Outbox        `toml:"outbox"`
	Logging       Logging       `toml:"logging"`
	Audit         Audit         `toml:"audit"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. REQFLOW_*
// environment variables override values read from the file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := ParseEnv(&cfg); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// ParseEnv overlays REQFLOW_* environment variables onto target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("reqflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, filepath.Dir(c.DatabasePath())} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database file location.
func (c *Config) DatabasePath() string {
	if c.Paths.Database != "" {
		return c.Paths.Database
	}
	return filepath.Join(c.Paths.DataDir, defaultDatabaseName)
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "reqflowd.lock")
}

// Location resolves the numbering timezone.
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Numbering.Timezone)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("numbering.timezone: %w", err)
	}
	return loc, nil
}

// LockTTL returns the Redis lock expiry.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Locking.TTLSeconds) * time.Second
}

// LockRetry returns the polling interval used while waiting for a Redis lock.
func (c *Config) LockRetry() time.Duration {
	return time.Duration(c.Locking.RetryMillis) * time.Millisecond
}

// LockWait bounds how long a mutation waits for its request lock.
func (c *Config) LockWait() time.Duration {
	return time.Duration(c.Locking.WaitTimeoutMS) * time.Millisecond
}

// OutboxPollInterval returns the dispatcher tick.
func (c *Config) OutboxPollInterval() time.Duration {
	return time.Duration(c.Outbox.PollInterval) * time.Second
}

// SMTPEnabled reports whether mail delivery is configured.
func (c *Config) SMTPEnabled() bool {
	return c.Notifications.SMTP.Host != "" && len(c.Notifications.SMTP.To) > 0
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes the embedded sample configuration to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
