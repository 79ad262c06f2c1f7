package config

const (
	defaultConfigPath          = "~/.config/reqflow/config.toml"
	defaultDataDir             = "~/.local/share/reqflow"
	defaultLogDir              = "~/.local/share/reqflow/logs"
	defaultDatabaseName        = "reqflow.db"
	defaultAPIBind             = "127.0.0.1:7490"
	defaultNumberPrefix        = "SOL"
	defaultNumberTimezone      = "Local"
	defaultSubscriberBuffer    = 64
	defaultSinkBuffer          = 256
	defaultChannelPrefix       = "reqflow:"
	defaultRedisAddr           = "127.0.0.1:6379"
	defaultLockBackend         = LockBackendLocal
	defaultLockTTLSeconds      = 30
	defaultLockRetryMillis     = 25
	defaultLockKeyPrefix       = "reqflow:lock:"
	defaultLockWaitMillis      = 10000
	defaultNotifyTimeout       = 10
	defaultSMTPPort            = 587
	defaultOutboxPollInterval  = 5
	defaultOutboxBatchSize     = 20
	defaultOutboxMaxAttempts   = 8
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultAuditRecordViews    = false
	defaultNotifyWarehouse     = true
	defaultNotifyShipping      = true
	defaultEventsRedisEnabled  = false
)

// Lock backends accepted by locking.backend.
const (
	LockBackendLocal = "local"
	LockBackendRedis = "redis"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Numbering: Numbering{
			Prefix:   defaultNumberPrefix,
			Timezone: defaultNumberTimezone,
		},
		Events: Events{
			SubscriberBuffer: defaultSubscriberBuffer,
			SinkBuffer:       defaultSinkBuffer,
			RedisTransport:   defaultEventsRedisEnabled,
			ChannelPrefix:    defaultChannelPrefix,
		},
		Redis: Redis{
			Addr: defaultRedisAddr,
		},
		Locking: Locking{
			Backend:       defaultLockBackend,
			TTLSeconds:    defaultLockTTLSeconds,
			RetryMillis:   defaultLockRetryMillis,
			KeyPrefix:     defaultLockKeyPrefix,
			WaitTimeoutMS: defaultLockWaitMillis,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Warehouse:      defaultNotifyWarehouse,
			Shipping:       defaultNotifyShipping,
			SMTP: SMTP{
				Port: defaultSMTPPort,
			},
		},
		Outbox: Outbox{
			PollInterval: defaultOutboxPollInterval,
			BatchSize:    defaultOutboxBatchSize,
			MaxAttempts:  defaultOutboxMaxAttempts,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Audit: Audit{
			RecordViews: defaultAuditRecordViews,
		},
	}
}
