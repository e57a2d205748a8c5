// Service layer of the internal package order.

package order

import (
	"Menuboard/internal/errors"
	"Menuboard/internal/metrics"
	"Menuboard/pkg/log"
	"bytes"
	"context"
	"encoding/json"
)

// Publisher fans a serialized order out to every open dashboard stream.
// *broadcast.Channel satisfies it.
type Publisher interface {
	Publish(ctx context.Context, payload []byte)
}

// Service layer of internal package order which forwards freshly committed orders to the dashboards.
type Service interface {
	// Validates the raw order body and publishes its compact form.
	notify(ctx context.Context, body []byte) error
}

type service struct {
	publisher Publisher
	logger    log.Logger
}

// Helps to access the service layer interface and call methods. Service object is passed from main.
func NewService(publisher Publisher, logger log.Logger) Service {
	return service{publisher, logger}
}

func (s service) notify(ctx context.Context, body []byte) error {
	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		// Body isn't JSON, registry stays untouched
		s.logger.WithCtx(ctx).Warn().Err(err).Msg("Rejected malformed order notification")
		metrics.OrderNotificationsTotal.WithLabelValues("malformed").Inc()
		return errors.BadRequest("order notification must be a valid JSON document")
	}
	s.publisher.Publish(ctx, compact.Bytes())
	metrics.OrderNotificationsTotal.WithLabelValues("published").Inc()
	s.logger.WithCtx(ctx).Info().Int("bytes", compact.Len()).Msg("Published order notification")
	return nil
}
