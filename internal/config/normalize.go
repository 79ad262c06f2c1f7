package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeNumbering()
	c.normalizeEvents()
	c.normalizeLocking()
	c.normalizeNotifications()
	c.normalizeOutbox()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.Database = strings.TrimSpace(c.Paths.Database); c.Paths.Database != "" {
		if c.Paths.Database, err = expandPath(c.Paths.Database); err != nil {
			return fmt.Errorf("paths.database: %w", err)
		}
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeNumbering() {
	c.Numbering.Prefix = strings.ToUpper(strings.TrimSpace(c.Numbering.Prefix))
	c.Numbering.Timezone = strings.TrimSpace(c.Numbering.Timezone)
	if c.Numbering.Timezone == "" {
		c.Numbering.Timezone = defaultNumberTimezone
	}
}

func (c *Config) normalizeEvents() {
	if c.Events.SubscriberBuffer <= 0 {
		c.Events.SubscriberBuffer = defaultSubscriberBuffer
	}
	if c.Events.SinkBuffer <= 0 {
		c.Events.SinkBuffer = defaultSinkBuffer
	}
	c.Events.ChannelPrefix = strings.TrimSpace(c.Events.ChannelPrefix)
	c.Redis.Addr = strings.TrimSpace(c.Redis.Addr)
}

func (c *Config) normalizeLocking() {
	c.Locking.Backend = strings.ToLower(strings.TrimSpace(c.Locking.Backend))
	if c.Locking.Backend == "" {
		c.Locking.Backend = defaultLockBackend
	}
	c.Locking.KeyPrefix = strings.TrimSpace(c.Locking.KeyPrefix)
	if c.Locking.KeyPrefix == "" {
		c.Locking.KeyPrefix = defaultLockKeyPrefix
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	smtp := &c.Notifications.SMTP
	smtp.Host = strings.TrimSpace(smtp.Host)
	smtp.Username = strings.TrimSpace(smtp.Username)
	smtp.From = strings.TrimSpace(smtp.From)
	recipients := make([]string, 0, len(smtp.To))
	seen := make(map[string]struct{}, len(smtp.To))
	for _, addr := range smtp.To {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		key := strings.ToLower(addr)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		recipients = append(recipients, addr)
	}
	smtp.To = recipients
	if smtp.From == "" {
		smtp.From = smtp.Username
	}
}

func (c *Config) normalizeOutbox() {
	if c.Outbox.BatchSize <= 0 {
		c.Outbox.BatchSize = defaultOutboxBatchSize
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
