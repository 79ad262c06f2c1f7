package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateNumbering(); err != nil {
		return err
	}
	if err := c.validateLocking(); err != nil {
		return err
	}
	if err := c.validateEvents(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateOutbox(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateNumbering() error {
	prefix := c.Numbering.Prefix
	if prefix == "" {
		return errors.New("numbering.prefix must be set")
	}
	if strings.ContainsAny(prefix, "- \t") {
		return fmt.Errorf("numbering.prefix %q must not contain dashes or whitespace", prefix)
	}
	if !strings.EqualFold(c.Numbering.Timezone, "local") {
		if _, err := time.LoadLocation(c.Numbering.Timezone); err != nil {
			return fmt.Errorf("numbering.timezone %q: %w", c.Numbering.Timezone, err)
		}
	}
	return nil
}

func (c *Config) validateLocking() error {
	switch c.Locking.Backend {
	case LockBackendLocal:
	case LockBackendRedis:
		if c.Redis.Addr == "" {
			return errors.New("redis.addr must be set when locking.backend is redis")
		}
	default:
		return fmt.Errorf("locking.backend %q is not supported (use %q or %q)", c.Locking.Backend, LockBackendLocal, LockBackendRedis)
	}
	return ensurePositiveMap(map[string]int{
		"locking.ttl_seconds":         c.Locking.TTLSeconds,
		"locking.retry_millis":        c.Locking.RetryMillis,
		"locking.wait_timeout_millis": c.Locking.WaitTimeoutMS,
	})
}

func (c *Config) validateEvents() error {
	if c.Events.RedisTransport && c.Redis.Addr == "" {
		return errors.New("redis.addr must be set when events.redis_transport is true")
	}
	if c.Redis.DB < 0 {
		return errors.New("redis.db must be >= 0")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	smtp := c.Notifications.SMTP
	if smtp.Host != "" {
		if smtp.Port <= 0 || smtp.Port > 65535 {
			return fmt.Errorf("notifications.smtp.port %d is out of range", smtp.Port)
		}
		if smtp.From == "" {
			return errors.New("notifications.smtp.from must be set when notifications.smtp.host is configured")
		}
		if len(smtp.To) == 0 {
			return errors.New("notifications.smtp.to must list at least one recipient")
		}
	}
	return nil
}

func (c *Config) validateOutbox() error {
	return ensurePositiveMap(map[string]int{
		"outbox.poll_interval": c.Outbox.PollInterval,
		"outbox.batch_size":    c.Outbox.BatchSize,
		"outbox.max_attempts":  c.Outbox.MaxAttempts,
	})
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
