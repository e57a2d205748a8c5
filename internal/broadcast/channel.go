// In-process broadcast channel pushing order notifications to open dashboard streams.

package broadcast

import (
	"Menuboard/internal/metrics"
	"Menuboard/pkg/log"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrRegistryFull is returned by Subscribe once MaxSubscribers streams are registered.
	ErrRegistryFull = errors.New("broadcast: subscriber registry is full")
	// ErrClosed is returned by Subscribe after the channel has been closed.
	ErrClosed = errors.New("broadcast: channel is closed")
)

// Defaults used for zero valued Options fields.
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultStaleAfter        = 60 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
)

// Reasons attached to SSEEvictions.
const (
	reasonStale        = "stale"
	reasonWriteFailed  = "write_failed"
	reasonUnsubscribed = "unsubscribed"
	reasonShutdown     = "shutdown"
)

// Frame kinds attached to write metrics.
const (
	kindPing         = "ping"
	kindNotification = "notification"
)

// Sink accepts outbound frames of one streaming connection.
// Write and Close may be called concurrently.
type Sink interface {
	// Write delivers one frame. It must give up and return an error once ctx is done.
	Write(ctx context.Context, frame []byte) error
	// Close releases the connection, calling it more than once is allowed.
	Close() error
}

// Options tunes liveness detection and resource bounds of a Channel.
type Options struct {
	// Period of the ping frame sent by Run.
	HeartbeatInterval time.Duration
	// Subscribers not refreshed by a heartbeat for longer than this are swept.
	StaleAfter time.Duration
	// Upper bound of a single frame write to one subscriber.
	WriteTimeout time.Duration
	// Registry size limit, zero means unbounded.
	MaxSubscribers int
}

func (o Options) withDefaults() Options {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = DefaultStaleAfter
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	return o
}

// Subscriber is one open streaming connection registered in a Channel.
// Once removed it is never registered again.
type Subscriber struct {
	id   string
	sink Sink
	// guarded by Channel.mu
	lastSeenAt time.Time
}

// ID uniquely identifies the subscriber for logs and presence tracking.
func (s *Subscriber) ID() string {
	return s.id
}

// Channel is the registry of live subscribers plus the fan-out and liveness logic over it.
// All registry mutations happen under mu, frame writes never do.
type Channel struct {
	mu          sync.Mutex
	subscribers map[*Subscriber]struct{}
	closed      bool

	opts   Options
	clock  clockwork.Clock
	logger log.Logger

	// guarded by mu
	hooks []HeartbeatHook

	quit      chan struct{}
	closeOnce sync.Once
}

// HeartbeatHook is told which subscribers a heartbeat just refreshed.
type HeartbeatHook func(ctx context.Context, alive []string)

// NewChannel returns an empty Channel. Run has to be started separately for heartbeats to flow.
func NewChannel(opts Options, clock clockwork.Clock, logger log.Logger) *Channel {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Channel{
		subscribers: make(map[*Subscriber]struct{}),
		opts:        opts.withDefaults(),
		clock:       clock,
		logger:      logger,
		quit:        make(chan struct{}),
	}
}

// Options returns the effective options after defaults were applied.
func (c *Channel) Options() Options {
	return c.opts
}

// OnHeartbeat registers hook to run after every heartbeat, in registration order.
func (c *Channel) OnHeartbeat(hook HeartbeatHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, hook)
}

// Subscribe registers sink as a new subscriber with lastSeenAt set to now.
// Any Publish starting after Subscribe returns will write to it.
func (c *Channel) Subscribe(sink Sink) (*Subscriber, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.opts.MaxSubscribers > 0 && len(c.subscribers) >= c.opts.MaxSubscribers {
		c.mu.Unlock()
		metrics.SSESubscriptionsRejected.Inc()
		return nil, ErrRegistryFull
	}
	sub := &Subscriber{id: uuid.NewString(), sink: sink, lastSeenAt: c.clock.Now()}
	c.subscribers[sub] = struct{}{}
	size := len(c.subscribers)
	c.mu.Unlock()

	metrics.SSESubscribers.Set(float64(size))
	c.logger.Info().Str("subscriber", sub.id).Int("subscribers", size).Msg("Added subscriber into order notification channel")
	return sub, nil
}

// Unsubscribe removes sub and releases its sink. Unknown or already removed subscribers are ignored.
func (c *Channel) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	if c.remove(sub, reasonUnsubscribed) {
		_ = sub.sink.Close()
		c.logger.Info().Str("subscriber", sub.id).Msg("Removed subscriber from order notification channel")
	}
}

// Len returns the current registry size.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscribers)
}

// LastSeen reports when sub last received a heartbeat, false once it left the registry.
func (c *Channel) LastSeen(sub *Subscriber) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subscribers[sub]; !ok {
		return time.Time{}, false
	}
	return sub.lastSeenAt, true
}

// Sweep evicts every subscriber whose last heartbeat is older than StaleAfter and returns how many left.
func (c *Channel) Sweep() int {
	now := c.clock.Now()

	c.mu.Lock()
	var stale []*Subscriber
	for sub := range c.subscribers {
		if now.Sub(sub.lastSeenAt) > c.opts.StaleAfter {
			delete(c.subscribers, sub)
			stale = append(stale, sub)
		}
	}
	size := len(c.subscribers)
	c.mu.Unlock()

	if len(stale) == 0 {
		return 0
	}
	metrics.SSESubscribers.Set(float64(size))
	metrics.SSEEvictions.WithLabelValues(reasonStale).Add(float64(len(stale)))
	for _, sub := range stale {
		_ = sub.sink.Close()
	}
	c.logger.Info().Int("evicted", len(stale)).Int("subscribers", size).Msg("Swept stale subscribers")
	return len(stale)
}

// Heartbeat sweeps stale subscribers, then pings the rest.
// A delivered ping refreshes lastSeenAt to the tick time, a failed one removes the subscriber.
// Registered hooks get the IDs of the refreshed subscribers afterwards.
func (c *Channel) Heartbeat(ctx context.Context) {
	c.Sweep()
	tick := c.clock.Now()
	delivered := c.fanOut(ctx, kindPing, pingFrame)

	c.mu.Lock()
	alive := make([]string, 0, len(delivered))
	for _, sub := range delivered {
		if _, ok := c.subscribers[sub]; ok {
			sub.lastSeenAt = tick
			alive = append(alive, sub.id)
		}
	}
	hooks := append([]HeartbeatHook(nil), c.hooks...)
	c.mu.Unlock()

	for _, hook := range hooks {
		hook(ctx, alive)
	}
}

// Publish sweeps stale subscribers, then writes payload as one event to every remaining subscriber.
// Delivery is best effort: failed subscribers are dropped and the caller is never told about them.
func (c *Channel) Publish(ctx context.Context, payload []byte) {
	c.Sweep()
	c.fanOut(ctx, kindNotification, Frame(payload))
}

// PublishJSON marshals v and publishes it. Only a marshalling failure is reported.
func (c *Channel) PublishJSON(ctx context.Context, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.Publish(ctx, payload)
	return nil
}

// Run sends heartbeats every HeartbeatInterval until ctx is done or the channel is closed.
func (c *Channel) Run(ctx context.Context) {
	ticker := c.clock.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()

	c.logger.WithCtx(ctx).Info().Dur("interval", c.opts.HeartbeatInterval).Msg("Launching order notification heartbeat")
	for {
		select {
		case <-ticker.Chan():
			c.Heartbeat(ctx)
		case <-ctx.Done():
			c.logger.Info().Msg("Stopped order notification heartbeat")
			return
		case <-c.quit:
			c.logger.Info().Msg("Stopped order notification heartbeat")
			return
		}
	}
}

// Close stops Run, drops every subscriber and rejects further subscriptions.
// There is no close handshake, clients find out through their transport.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		subs := make([]*Subscriber, 0, len(c.subscribers))
		for sub := range c.subscribers {
			subs = append(subs, sub)
		}
		c.subscribers = make(map[*Subscriber]struct{})
		c.mu.Unlock()

		close(c.quit)
		for _, sub := range subs {
			_ = sub.sink.Close()
		}
		metrics.SSESubscribers.Set(0)
		metrics.SSEEvictions.WithLabelValues(reasonShutdown).Add(float64(len(subs)))
		c.logger.Info().Int("dropped", len(subs)).Msg("Closed order notification channel")
	})
	return nil
}

// remove deletes sub from the registry and reports whether it was still there.
func (c *Channel) remove(sub *Subscriber, reason string) bool {
	c.mu.Lock()
	if _, ok := c.subscribers[sub]; !ok {
		c.mu.Unlock()
		return false
	}
	delete(c.subscribers, sub)
	size := len(c.subscribers)
	c.mu.Unlock()

	metrics.SSESubscribers.Set(float64(size))
	metrics.SSEEvictions.WithLabelValues(reason).Inc()
	return true
}

// snapshot copies the registry so writes can run without holding mu.
func (c *Channel) snapshot() []*Subscriber {
	c.mu.Lock()
	defer c.mu.Unlock()
	subs := make([]*Subscriber, 0, len(c.subscribers))
	for sub := range c.subscribers {
		subs = append(subs, sub)
	}
	return subs
}

// fanOut writes frame to a snapshot of the registry, one goroutine per subscriber.
// Subscribers whose write fails are removed, the ones that succeeded are returned.
func (c *Channel) fanOut(ctx context.Context, kind string, frame []byte) []*Subscriber {
	subs := c.snapshot()
	if len(subs) == 0 {
		return nil
	}
	start := time.Now()
	// The publisher going away must not look like a dead subscriber.
	base := context.WithoutCancel(ctx)

	ok := make([]bool, len(subs))
	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func(i int, sub *Subscriber) {
			defer wg.Done()
			wctx, cancel := context.WithTimeout(base, c.opts.WriteTimeout)
			defer cancel()
			if err := sub.sink.Write(wctx, frame); err != nil {
				metrics.SSEFrameWrites.WithLabelValues(kind, "failed").Inc()
				if c.remove(sub, reasonWriteFailed) {
					_ = sub.sink.Close()
					c.logger.Warn().Err(err).Str("subscriber", sub.id).Str("kind", kind).Msg("Dropped subscriber after failed write")
				}
				return
			}
			metrics.SSEFrameWrites.WithLabelValues(kind, "ok").Inc()
			ok[i] = true
		}(i, sub)
	}
	wg.Wait()
	metrics.SSEFanOutDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	delivered := make([]*Subscriber, 0, len(subs))
	for i, sub := range subs {
		if ok[i] {
			delivered = append(delivered, sub)
		}
	}
	return delivered
}
