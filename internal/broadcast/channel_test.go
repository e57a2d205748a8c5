// Order notification channel tests in Menuboard.

package broadcast

import (
	"Menuboard/internal/metrics"
	"Menuboard/pkg/log"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Global instance of log.Logger to be used during broadcast testing.
var logger log.Logger = log.NewWithWriter("test", io.Discard)

var errBrokenPipe = errors.New("write: broken pipe")

// fakeSink records every frame written to it and can be told to fail or hang.
type fakeSink struct {
	mu       sync.Mutex
	frames   []string
	attempts int
	closes   int
	fail     bool
	hang     bool
}

func (s *fakeSink) Write(ctx context.Context, frame []byte) error {
	s.mu.Lock()
	s.attempts++
	fail, hang := s.fail, s.hang
	s.mu.Unlock()

	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if fail {
		return errBrokenPipe
	}
	s.mu.Lock()
	s.frames = append(s.frames, string(frame))
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeSink) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *fakeSink) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *fakeSink) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.frames...)
}

func (s *fakeSink) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// Helper to build a Channel running on a fake clock.
func newTestChannel(t *testing.T, opts Options) (*Channel, clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	channel := NewChannel(opts, clock, logger)
	t.Cleanup(func() { _ = channel.Close() })
	return channel, clock
}

func subscribe(t *testing.T, channel *Channel, sink *fakeSink) *Subscriber {
	t.Helper()
	sub, err := channel.Subscribe(sink)
	require.NoError(t, err)
	return sub
}

func TestFrame(t *testing.T) {
	assert.Equal(t, "data: ping\n\n", string(pingFrame))
	assert.Equal(t, "data: {\"id\":\"o1\"}\n\n", string(Frame([]byte(`{"id":"o1"}`))))
	assert.Equal(t, "data: first\ndata: second\n\n", string(Frame([]byte("first\r\nsecond"))))
	assert.Equal(t, "data: \n\n", string(Frame(nil)))
}

func TestPublishReachesEverySubscriber(t *testing.T) {
	channel, _ := newTestChannel(t, Options{})
	sinks := []*fakeSink{{}, {}, {}}
	for _, sink := range sinks {
		subscribe(t, channel, sink)
	}

	channel.Publish(context.Background(), []byte(`{"id":"o1"}`))

	for _, sink := range sinks {
		assert.Equal(t, 1, sink.writes())
		assert.Equal(t, []string{"data: {\"id\":\"o1\"}\n\n"}, sink.received())
	}
	assert.Equal(t, 3, channel.Len())
}

func TestPublishJSON(t *testing.T) {
	channel, _ := newTestChannel(t, Options{})
	sink := &fakeSink{}
	subscribe(t, channel, sink)

	require.NoError(t, channel.PublishJSON(context.Background(), map[string]string{"id": "o2"}))
	assert.Equal(t, []string{"data: {\"id\":\"o2\"}\n\n"}, sink.received())

	// Channels can't be marshalled, nothing is written then
	assert.Error(t, channel.PublishJSON(context.Background(), make(chan int)))
	assert.Equal(t, 1, sink.writes())
}

func TestPublishIsolatesFailedSubscriber(t *testing.T) {
	channel, _ := newTestChannel(t, Options{})
	broken, healthy := &fakeSink{fail: true}, &fakeSink{}
	brokenSub := subscribe(t, channel, broken)
	healthySub := subscribe(t, channel, healthy)

	before := testutil.ToFloat64(metrics.SSEEvictions.WithLabelValues(reasonWriteFailed))
	channel.Publish(context.Background(), []byte(`"x"`))

	_, ok := channel.LastSeen(brokenSub)
	assert.False(t, ok)
	assert.Equal(t, 1, broken.closeCount())
	_, ok = channel.LastSeen(healthySub)
	assert.True(t, ok)
	assert.Equal(t, []string{"data: \"x\"\n\n"}, healthy.received())
	assert.Equal(t, 1, channel.Len())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.SSEEvictions.WithLabelValues(reasonWriteFailed)))

	// The dropped subscriber gets nothing more
	channel.Publish(context.Background(), []byte(`"y"`))
	assert.Equal(t, 1, broken.writes())
	assert.Len(t, healthy.received(), 2)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	channel, _ := newTestChannel(t, Options{})
	assert.NotPanics(t, func() {
		channel.Publish(context.Background(), []byte(`"x"`))
	})
	assert.Equal(t, 0, channel.Len())
}

func TestPublishAfterUnsubscribe(t *testing.T) {
	channel, _ := newTestChannel(t, Options{})
	sink := &fakeSink{}
	sub := subscribe(t, channel, sink)

	channel.Unsubscribe(sub)
	channel.Publish(context.Background(), []byte(`"x"`))

	assert.Equal(t, 0, sink.writes())
	assert.Equal(t, 1, sink.closeCount())
	assert.Equal(t, 0, channel.Len())
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	channel, _ := newTestChannel(t, Options{})
	sink, other := &fakeSink{}, &fakeSink{}
	sub := subscribe(t, channel, sink)
	subscribe(t, channel, other)

	channel.Unsubscribe(sub)
	channel.Unsubscribe(sub)
	channel.Unsubscribe(nil)
	// Never inserted into this channel
	channel.Unsubscribe(&Subscriber{id: "stranger", sink: &fakeSink{}})

	assert.Equal(t, 1, sink.closeCount())
	assert.Equal(t, 1, channel.Len())
	assert.Equal(t, 0, other.closeCount())
}

func TestSweepEvictsStaleSubscriber(t *testing.T) {
	channel, clock := newTestChannel(t, Options{HeartbeatInterval: 30 * time.Second, StaleAfter: 60 * time.Second})
	sink := &fakeSink{}
	subscribe(t, channel, sink)

	clock.Advance(60 * time.Second)
	assert.Equal(t, 0, channel.Sweep(), "exactly the threshold is still fresh")

	clock.Advance(time.Second)
	assert.Equal(t, 1, channel.Sweep())
	assert.Equal(t, 0, channel.Len())
	assert.Equal(t, 1, sink.closeCount())

	channel.Publish(context.Background(), []byte(`"x"`))
	assert.Equal(t, 0, sink.writes())
}

func TestPublishSweepsBeforeFanOut(t *testing.T) {
	channel, clock := newTestChannel(t, Options{StaleAfter: time.Minute})
	stale := &fakeSink{}
	subscribe(t, channel, stale)

	clock.Advance(2 * time.Minute)
	fresh := &fakeSink{}
	subscribe(t, channel, fresh)

	channel.Publish(context.Background(), []byte(`"x"`))
	assert.Equal(t, 0, stale.writes())
	assert.Equal(t, 1, fresh.writes())
	assert.Equal(t, 1, channel.Len())
}

func TestHeartbeatRefreshesLastSeen(t *testing.T) {
	channel, clock := newTestChannel(t, Options{HeartbeatInterval: 30 * time.Second, StaleAfter: 60 * time.Second})
	sink := &fakeSink{}
	sub := subscribe(t, channel, sink)

	clock.Advance(45 * time.Second)
	channel.Heartbeat(context.Background())

	lastSeen, ok := channel.LastSeen(sub)
	require.True(t, ok)
	assert.Equal(t, clock.Now(), lastSeen)
	assert.Equal(t, []string{"data: ping\n\n"}, sink.received())

	// 90s after subscribing but only 45s after the last ping
	clock.Advance(45 * time.Second)
	assert.Equal(t, 0, channel.Sweep())
	assert.Equal(t, 1, channel.Len())
}

func TestHeartbeatHooksGetRefreshedSubscribers(t *testing.T) {
	channel, clock := newTestChannel(t, Options{})
	broken, healthy := &fakeSink{}, &fakeSink{}
	subscribe(t, channel, broken)
	healthySub := subscribe(t, channel, healthy)

	var calls [][]string
	channel.OnHeartbeat(func(ctx context.Context, alive []string) {
		calls = append(calls, alive)
	})

	broken.setFail(true)
	clock.Advance(time.Second)
	channel.Heartbeat(context.Background())

	assert.Equal(t, [][]string{{healthySub.ID()}}, calls)
}

func TestHeartbeatDropsFailedSubscriber(t *testing.T) {
	channel, clock := newTestChannel(t, Options{})
	broken, healthy := &fakeSink{}, &fakeSink{}
	brokenSub := subscribe(t, channel, broken)
	subscribe(t, channel, healthy)

	broken.setFail(true)
	clock.Advance(time.Second)
	channel.Heartbeat(context.Background())

	_, ok := channel.LastSeen(brokenSub)
	assert.False(t, ok)
	assert.Equal(t, 1, channel.Len())
	assert.Equal(t, []string{"data: ping\n\n"}, healthy.received())
}

func TestWriteTimeoutBoundsHungSubscriber(t *testing.T) {
	channel := NewChannel(Options{WriteTimeout: 20 * time.Millisecond}, clockwork.NewRealClock(), logger)
	t.Cleanup(func() { _ = channel.Close() })
	hung, healthy := &fakeSink{hang: true}, &fakeSink{}
	subscribe(t, channel, hung)
	subscribe(t, channel, healthy)

	start := time.Now()
	channel.Publish(context.Background(), []byte(`"x"`))

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, channel.Len())
	assert.Len(t, healthy.received(), 1)
}

func TestPublisherCancellationDoesNotDropSubscribers(t *testing.T) {
	channel, _ := newTestChannel(t, Options{})
	sink := &fakeSink{}
	subscribe(t, channel, sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	channel.Publish(ctx, []byte(`"x"`))

	assert.Equal(t, 1, channel.Len())
	assert.Len(t, sink.received(), 1)
}

func TestSubscribeRespectsMaxSubscribers(t *testing.T) {
	channel, _ := newTestChannel(t, Options{MaxSubscribers: 2})
	first := subscribe(t, channel, &fakeSink{})
	subscribe(t, channel, &fakeSink{})

	_, err := channel.Subscribe(&fakeSink{})
	assert.ErrorIs(t, err, ErrRegistryFull)

	channel.Unsubscribe(first)
	_, err = channel.Subscribe(&fakeSink{})
	assert.NoError(t, err)
}

func TestRunSendsHeartbeats(t *testing.T) {
	channel, clock := newTestChannel(t, Options{HeartbeatInterval: 30 * time.Second, StaleAfter: 60 * time.Second})
	sink := &fakeSink{}
	sub := subscribe(t, channel, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		channel.Run(ctx)
		close(done)
	}()

	clock.BlockUntil(1)
	clock.Advance(30 * time.Second)
	assert.Eventually(t, func() bool { return sink.writes() == 1 }, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool {
		lastSeen, ok := channel.LastSeen(sub)
		return ok && lastSeen.Equal(clock.Now())
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run didn't return after ctx was canceled")
	}
}

func TestCloseDropsEverySubscriber(t *testing.T) {
	channel, _ := newTestChannel(t, Options{})
	sinks := []*fakeSink{{}, {}}
	for _, sink := range sinks {
		subscribe(t, channel, sink)
	}

	done := make(chan struct{})
	go func() {
		channel.Run(context.Background())
		close(done)
	}()

	require.NoError(t, channel.Close())
	require.NoError(t, channel.Close())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run didn't return after Close")
	}
	assert.Equal(t, 0, channel.Len())
	for _, sink := range sinks {
		assert.Equal(t, 1, sink.closeCount())
	}
	_, err := channel.Subscribe(&fakeSink{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConcurrentSubscribePublishUnsubscribe(t *testing.T) {
	channel, clock := newTestChannel(t, Options{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			sink := &fakeSink{}
			sub, err := channel.Subscribe(sink)
			if err == nil {
				channel.Unsubscribe(sub)
			}
		}()
		go func() {
			defer wg.Done()
			channel.Publish(context.Background(), []byte(`"x"`))
		}()
		go func() {
			defer wg.Done()
			clock.Advance(time.Second)
			channel.Heartbeat(context.Background())
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, channel.Len())
}
