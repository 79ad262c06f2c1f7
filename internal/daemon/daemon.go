package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/gofrs/flock"

	"reqflow/internal/config"
	"reqflow/internal/events"
	"reqflow/internal/logging"
	"reqflow/internal/notifications"
	"reqflow/internal/preflight"
)

// Daemon runs the outbox dispatcher and the HTTP adapter and enforces
// single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	components *Components
	api        *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool   `json:"running"`
	PID           int    `json:"pid"`
	DatabasePath  string `json:"database_path"`
	LockFilePath  string `json:"lock_file_path"`
	APIAddress    string `json:"api_address,omitempty"`
	OutboxPending int    `json:"outbox_pending"`
	Subscribers   int    `json:"subscribers"`
}

// New constructs a daemon around already built components.
func New(cfg *config.Config, components *Components, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || components == nil || components.Engine == nil {
		return nil, errors.New("daemon requires config and components")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		components: components,
		lockPath:   cfg.LockPath(),
		lock:       flock.New(cfg.LockPath()),
	}
	api, err := newAPIServer(cfg, components, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock and launches the dispatcher and the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another reqflowd instance is already running")
	}

	for _, r := range preflight.Failed(preflight.RunAll(ctx, d.cfg)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldImpact, "dependent features degrade until the check passes"),
		)
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.components.Dispatcher.Start(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("start outbox dispatcher: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.components.Dispatcher.Stop()
		d.abortStart()
		return err
	}

	d.running.Store(true)
	d.logger.Info("reqflow daemon started",
		logging.String("lock", d.lockPath),
		logging.String("database", d.cfg.DatabasePath()),
	)
	return nil
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	d.cancel()
	d.ctx = nil
	d.cancel = nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.components.Dispatcher.Stop()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.String("lock", d.lockPath),
			logging.Error(err),
			logging.String(logging.FieldImpact, "next start may report a running instance until the file is removed"),
		)
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("reqflow daemon stopped")
}

// Close stops the daemon and releases its components.
func (d *Daemon) Close() error {
	d.Stop()
	return d.components.Close()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
		APIAddress:   d.api.address(),
		Subscribers:  d.components.Events.Subscribers(events.ChannelAll),
	}
	if pending, err := d.components.Store.PendingOutboxCount(ctx); err == nil {
		status.OutboxPending = pending
	}
	return status
}

// TestNotification sends a test notification using the current
// configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	return SendTestNotification(ctx, d.cfg)
}

// SendTestNotification delivers a test message through every configured
// transport.
func SendTestNotification(ctx context.Context, cfg *config.Config) (bool, string, error) {
	if cfg == nil {
		return false, "configuration unavailable", errors.New("configuration unavailable")
	}
	if cfg.Notifications.NtfyTopic == "" && !cfg.SMTPEnabled() {
		return false, "no notification transport configured", nil
	}
	if err := notifications.NewService(cfg).Publish(ctx, notifications.EventTest, notifications.Payload{}); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
