package outbox

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"reqflow/internal/config"
	"reqflow/internal/logging"
	"reqflow/internal/metrics"
	"reqflow/internal/notifications"
	"reqflow/internal/store"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultBatchSize    = 20
	defaultMaxAttempts  = 8
	maxBackoff          = 10 * time.Minute
)

// Dispatcher delivers outbox messages through a notification service.
type Dispatcher struct {
	store    *store.Store
	notifier notifications.Service
	logger   *slog.Logger
	metrics  *metrics.Metrics

	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
	baseBackoff  time.Duration
	now          func() time.Time

	wake chan struct{}

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMetrics records delivery outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithBackoff sets the delay before the first retry. Later retries double it.
func WithBackoff(base time.Duration) Option {
	return func(d *Dispatcher) {
		if base > 0 {
			d.baseBackoff = base
		}
	}
}

// NewDispatcher builds a dispatcher from the outbox section of cfg.
func NewDispatcher(cfg *config.Config, st *store.Store, notifier notifications.Service, logger *slog.Logger, opts ...Option) *Dispatcher {
	if notifier == nil {
		notifier = notifications.Noop()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Dispatcher{
		store:        st,
		notifier:     notifier,
		logger:       logging.NewComponentLogger(logger, "outbox"),
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		maxAttempts:  defaultMaxAttempts,
		now:          time.Now,
		wake:         make(chan struct{}, 1),
	}
	if cfg != nil {
		if v := cfg.OutboxPollInterval(); v > 0 {
			d.pollInterval = v
		}
		if cfg.Outbox.BatchSize > 0 {
			d.batchSize = cfg.Outbox.BatchSize
		}
		if cfg.Outbox.MaxAttempts > 0 {
			d.maxAttempts = cfg.Outbox.MaxAttempts
		}
	}
	d.baseBackoff = d.pollInterval
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the polling loop.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return errors.New("outbox dispatcher already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true
	d.wg.Add(1)
	go d.run(runCtx)
	return nil
}

// Stop terminates the loop and waits for the in-flight batch.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	cancel := d.cancel
	d.running = false
	d.cancel = nil
	d.mu.Unlock()

	cancel()
	d.wg.Wait()
}

// Wake asks the loop to poll now instead of waiting for the next tick.
func (d *Dispatcher) Wake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := d.DrainOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("outbox poll failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "outbox_poll_failed"),
				logging.String(logging.FieldErrorHint, "check database access"),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-d.wake:
		}
	}
}

// DrainOnce delivers every due message in one batch and returns how many were
// delivered.
func (d *Dispatcher) DrainOnce(ctx context.Context) (int, error) {
	due, err := d.store.DueOutbox(ctx, d.now().UTC(), d.batchSize)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, msg := range due {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		ok, err := d.deliver(ctx, msg)
		if err != nil {
			return delivered, err
		}
		if ok {
			delivered++
		}
	}
	if pending, err := d.store.PendingOutboxCount(ctx); err == nil {
		d.metrics.SetOutboxPending(pending)
	}
	return delivered, nil
}

// deliver attempts one message. The returned error is reserved for store
// failures; notification failures are recorded on the row.
func (d *Dispatcher) deliver(ctx context.Context, msg *store.OutboxMessage) (bool, error) {
	logger := d.logger.With(
		logging.String("outbox_id", msg.ID),
		logging.String("kind", msg.Kind),
		logging.Int64(logging.FieldRequestID, msg.RequestID),
	)

	payload, err := decodePayload(msg)
	if err == nil {
		err = d.notifier.Publish(ctx, notifications.Event(msg.Kind), payload)
	}
	now := d.now().UTC()
	if err == nil {
		if markErr := d.store.MarkOutboxDelivered(ctx, msg.ID, now); markErr != nil {
			return false, markErr
		}
		d.metrics.Notification(msg.Kind, "delivered")
		logger.Info("notification delivered", logging.Int("attempt", msg.Attempts+1))
		return true, nil
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	attempt := msg.Attempts + 1
	giveUp := attempt >= d.maxAttempts
	next := now.Add(d.backoff(attempt))
	if markErr := d.store.MarkOutboxAttemptFailed(ctx, msg.ID, err.Error(), next, giveUp); markErr != nil {
		return false, markErr
	}
	if giveUp {
		d.metrics.Notification(msg.Kind, "failed")
		logging.ErrorWithContext(logger, "notification abandoned", "outbox_give_up",
			logging.Error(err),
			logging.Int("attempts", attempt),
			logging.String(logging.FieldErrorHint, "check notification transport configuration"),
			logging.String(logging.FieldImpact, "recipients were not notified about this request"),
		)
		return false, nil
	}
	d.metrics.Notification(msg.Kind, "retry")
	logging.WarnWithContext(logger, "notification failed; will retry", "outbox_retry",
		logging.Error(err),
		logging.Int("attempt", attempt),
		logging.Time("next_attempt_at", next),
		logging.String(logging.FieldImpact, "notification delayed"),
	)
	return false, nil
}

func (d *Dispatcher) backoff(attempt int) time.Duration {
	delay := d.baseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	return delay
}
