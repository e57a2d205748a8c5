// Service layer of Server Side Events (SSE) in Menuboard.

package sse

import (
	"Menuboard/internal/broadcast"
	"Menuboard/internal/entity"
	"Menuboard/internal/errors"
	"Menuboard/pkg/log"
	"context"
	stderrors "errors"
	"sync"
	"time"
)

// Upper bound of a presence write, a slow redis-server must not hold a stream open.
const presenceTimeout = 2 * time.Second

type Service interface {
	// Connect registers a new dashboard stream in the broadcast channel and the presence store.
	Connect(ctx context.Context, client entity.SSEClient) (*Stream, error)
	// Disconnect removes exactly the given stream, repeated calls are no-ops.
	Disconnect(ctx context.Context, stream *Stream)
	// Stats reports how many dashboard streams are open.
	Stats(ctx context.Context) entity.SSEStats
}

// Stream is one open dashboard connection as seen by the gin handler.
type Stream struct {
	Client     entity.SSEClient
	sink       *streamSink
	subscriber *broadcast.Subscriber
	closeOnce  sync.Once
}

// Frames queued for this stream by the broadcast channel.
func (s *Stream) Frames() <-chan []byte {
	return s.sink.frames
}

// Done is closed once the channel dropped this stream.
func (s *Stream) Done() <-chan struct{} {
	return s.sink.done
}

// Object of this will be passed around from main to routers to API.
// Helps to access the service layer interface and call methods.
// Also helps to pass objects to be used from outer layer.
type service struct {
	channel *broadcast.Channel
	repo    Repository
	logger  log.Logger
}

// Helps to access the service layer interface and call methods. Service object is passed from main.
// Presence records of the streams get refreshed on every heartbeat of channel.
func NewService(channel *broadcast.Channel, repo Repository, logger log.Logger) Service {
	s := service{channel: channel, repo: repo, logger: logger}
	channel.OnHeartbeat(s.refreshPresence)
	return s
}

// Presence records live as long as a subscriber may go without a heartbeat.
func (s service) presenceTTL() time.Duration {
	return s.channel.Options().StaleAfter
}

// Extends the presence records of the streams a heartbeat just reached.
func (s service) refreshPresence(ctx context.Context, alive []string) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), presenceTimeout)
	defer cancel()
	_ = s.repo.TouchClients(pctx, s.logger, alive, s.presenceTTL())
}

func (s service) Connect(ctx context.Context, client entity.SSEClient) (*Stream, error) {
	sink := newStreamSink(sinkBufferSize)
	sub, err := s.channel.Subscribe(sink)
	if err != nil {
		if stderrors.Is(err, broadcast.ErrRegistryFull) {
			s.logger.WithCtx(ctx).Warn().Err(err).Msg("Rejected SSE connection")
			return nil, errors.ServiceUnavailable("")
		}
		if stderrors.Is(err, broadcast.ErrClosed) {
			return nil, errors.ServiceUnavailable("Menuboard is shutting down.")
		}
		s.logger.WithCtx(ctx).Error().Err(err).Msg("Error occured during Subscribe in sse.Connect")
		return nil, errors.InternalServerError("")
	}
	client.ID = sub.ID()

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), presenceTimeout)
	defer cancel()
	// Presence is informational only, the stream works without it
	_ = s.repo.AddClient(pctx, s.logger, client, s.presenceTTL())

	s.logger.WithCtx(ctx).Info().Str("client", client.ID).Str("remote_addr", client.RemoteAddr).Msg("Opened SSE connection")
	return &Stream{Client: client, sink: sink, subscriber: sub}, nil
}

func (s service) Disconnect(ctx context.Context, stream *Stream) {
	if stream == nil {
		return
	}
	stream.closeOnce.Do(func() {
		s.channel.Unsubscribe(stream.subscriber)

		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), presenceTimeout)
		defer cancel()
		_ = s.repo.RemoveClient(pctx, s.logger, stream.Client.ID)

		s.logger.WithCtx(ctx).Info().Str("client", stream.Client.ID).Msg("Closed SSE connection")
	})
}

func (s service) Stats(ctx context.Context) entity.SSEStats {
	stats := entity.SSEStats{Local: s.channel.Len(), Presence: -1}

	pctx, cancel := context.WithTimeout(ctx, presenceTimeout)
	defer cancel()
	if count, err := s.repo.CountClients(pctx, s.logger); err == nil {
		stats.Presence = count
	}
	return stats
}
