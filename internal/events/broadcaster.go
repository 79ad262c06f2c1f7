package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"reqflow/internal/logging"
)

const (
	defaultSubscriberBuffer = 64
	defaultSinkBuffer       = 256
	sinkDeliverTimeout      = 5 * time.Second
)

// Observer receives counters about delivery. All methods must be cheap.
type Observer interface {
	EventPublished(kind string)
	EventDropped(channel string)
	SinkFailed(sink string)
}

type nopObserver struct{}

func (nopObserver) EventPublished(string) {}
func (nopObserver) EventDropped(string)   {}
func (nopObserver) SinkFailed(string)     {}

// Subscription is one consumer of a channel.
type Subscription struct {
	channel string
	ch      chan Event
	dropped atomic.Uint64
}

// Events returns the receive side of the subscription. It is closed when the
// subscription is cancelled or the broadcaster closes.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Channel returns the channel name this subscription listens on.
func (s *Subscription) Channel() string {
	return s.channel
}

// Dropped reports how many events were discarded because the buffer was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Broadcaster delivers events to channel subscribers and sinks.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	closed bool

	buffer     int
	sinkBuffer int
	sinks      []*sinkWorker
	logger     *slog.Logger
	observer   Observer
	sinkWG     sync.WaitGroup
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithSubscriberBuffer sets the per-subscriber buffer size.
func WithSubscriberBuffer(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithSinkBuffer sets the queue size in front of each sink.
func WithSinkBuffer(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.sinkBuffer = n
		}
	}
}

// WithSink registers a transport that receives every event after local fanout.
func WithSink(s Sink) Option {
	return func(b *Broadcaster) {
		if s != nil {
			b.sinks = append(b.sinks, &sinkWorker{sink: s})
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broadcaster) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithObserver installs delivery counters.
func WithObserver(o Observer) Option {
	return func(b *Broadcaster) {
		if o != nil {
			b.observer = o
		}
	}
}

// New creates a broadcaster and starts its sink workers.
func New(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		subs:       make(map[string]map[*Subscription]struct{}),
		buffer:     defaultSubscriberBuffer,
		sinkBuffer: defaultSinkBuffer,
		logger:     logging.NewNop(),
		observer:   nopObserver{},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = logging.NewComponentLogger(b.logger, "events")
	for _, w := range b.sinks {
		w.queue = make(chan sinkItem, b.sinkBuffer)
		b.sinkWG.Add(1)
		go b.runSink(w)
	}
	return b
}

// Subscribe registers a consumer on channel. The returned function cancels
// the subscription and closes its event channel; calling it more than once is
// safe.
func (b *Broadcaster) Subscribe(channel string) (*Subscription, func()) {
	sub := &Subscription{channel: channel, ch: make(chan Event, b.buffer)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub, func() {}
	}
	set, ok := b.subs[channel]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[channel] = set
	}
	set[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return sub, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			set, ok := b.subs[channel]
			if !ok {
				return
			}
			if _, ok := set[sub]; !ok {
				return
			}
			delete(set, sub)
			close(sub.ch)
			if len(set) == 0 {
				delete(b.subs, channel)
			}
		})
	}
}

// Subscribers reports the number of live subscriptions on channel.
func (b *Broadcaster) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

// Publish delivers evt to every subscriber of the given channels. Duplicate
// channel names are delivered once. Publish never blocks on a subscriber.
func (b *Broadcaster) Publish(ctx context.Context, evt Event, channels ...string) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	if len(channels) == 0 {
		channels = Channels(evt)
	}

	seen := make(map[string]struct{}, len(channels))
	unique := channels[:0:0]
	for _, ch := range channels {
		if _, dup := seen[ch]; dup {
			continue
		}
		seen[ch] = struct{}{}
		unique = append(unique, ch)
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	for _, channel := range unique {
		for sub := range b.subs[channel] {
			select {
			case sub.ch <- evt:
			default:
				sub.dropped.Add(1)
				b.observer.EventDropped(channel)
				b.logger.Debug("subscriber buffer full, dropping event",
					logging.String("channel", channel),
					logging.String("kind", string(evt.Kind)),
					logging.Int64(logging.FieldRequestID, evt.RequestID),
				)
			}
		}
	}
	for _, w := range b.sinks {
		for _, channel := range unique {
			select {
			case w.queue <- sinkItem{channel: channel, evt: evt}:
			default:
				b.observer.SinkFailed(w.sink.Name())
				logging.WarnWithContext(b.logger, "sink queue full, dropping event", "event_sink_overflow",
					logging.String("sink", w.sink.Name()),
					logging.String("channel", channel),
					logging.String(logging.FieldImpact, "remote subscribers miss this event"),
				)
			}
		}
	}
	b.mu.RUnlock()
	b.observer.EventPublished(string(evt.Kind))
}

// Close ends every subscription and drains sink queues.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for channel, set := range b.subs {
		for sub := range set {
			close(sub.ch)
		}
		delete(b.subs, channel)
	}
	for _, w := range b.sinks {
		close(w.queue)
	}
	b.mu.Unlock()
	b.sinkWG.Wait()
}

func (b *Broadcaster) runSink(w *sinkWorker) {
	defer b.sinkWG.Done()
	for item := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sinkDeliverTimeout)
		err := w.sink.Deliver(ctx, item.channel, item.evt)
		cancel()
		if err != nil {
			b.observer.SinkFailed(w.sink.Name())
			logging.WarnWithContext(b.logger, "event sink delivery failed", "event_sink_failed",
				logging.String("sink", w.sink.Name()),
				logging.String("channel", item.channel),
				logging.Error(err),
				logging.String(logging.FieldImpact, "remote subscribers miss this event"),
			)
		}
	}
}
