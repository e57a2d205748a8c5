// Outbound frame buffer between the broadcast channel and one event-stream response.

package sse

import (
	"context"
	"errors"
	"sync"
)

// ErrSinkClosed is returned by writes to a stream whose client already went away.
var ErrSinkClosed = errors.New("sse: stream is closed")

// Frames a stream may have queued before writes start blocking.
const sinkBufferSize = 16

// streamSink implements broadcast.Sink. The channel writes into frames,
// the gin handler drains frames into the response until done is closed.
type streamSink struct {
	frames chan []byte
	done   chan struct{}
	once   sync.Once
}

func newStreamSink(size int) *streamSink {
	return &streamSink{
		frames: make(chan []byte, size),
		done:   make(chan struct{}),
	}
}

func (s *streamSink) Write(ctx context.Context, frame []byte) error {
	select {
	case <-s.done:
		return ErrSinkClosed
	default:
	}
	select {
	case s.frames <- frame:
		return nil
	case <-s.done:
		return ErrSinkClosed
	case <-ctx.Done():
		// Client isn't draining its buffer fast enough
		return ctx.Err()
	}
}

func (s *streamSink) Close() error {
	s.once.Do(func() {
		close(s.done)
	})
	return nil
}
