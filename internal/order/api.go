// Exposes the REST API the order-creation workflow calls after committing a new order.

package order

import (
	"Menuboard/internal/errors"
	"Menuboard/internal/metrics"
	"Menuboard/pkg/log"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Upper bound of an order notification body.
const maxBodyBytes = 64 << 10

// Registers all of the REST API handlers related to internal package order onto the gin server.
func APIHandlers(router *gin.Engine, service Service, PublishAuth gin.HandlerFunc, logger log.Logger) {
	orderGroup := router.Group("/api/orders")
	{
		orderGroup.POST("/notify", PublishAuth, notifyhandler(service, logger))
	}
}

// notifyhandler returns a handler which publishes the received order to every open dashboard stream.
// Delivery is never confirmed, success only means the fan-out was attempted.
func notifyhandler(service Service, logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		body, readerr := io.ReadAll(http.MaxBytesReader(gctx.Writer, gctx.Request.Body, maxBodyBytes))
		if readerr != nil {
			// Both causes are on the client side
			var tooLarge *http.MaxBytesError
			if stderrors.As(readerr, &tooLarge) {
				logger.WithCtx(gctx).Warn().Int64("limit", tooLarge.Limit).Msg("Rejected oversized order notification")
				metrics.OrderNotificationsTotal.WithLabelValues("too_large").Inc()
				gctx.JSON(http.StatusRequestEntityTooLarge, errors.PayloadTooLarge(""))
				return
			}
			// Connection dropped mid-read
			logger.WithCtx(gctx).Warn().Err(readerr).Msg("Couldn't read order notification body")
			gctx.JSON(http.StatusBadRequest, errors.BadRequest(""))
			return
		}

		if err := service.notify(gctx, body); err != nil {
			err, ok := err.(errors.ErrorResponse)
			if !ok {
				// Type assertion error
				gctx.JSON(http.StatusInternalServerError, errors.InternalServerError(""))
				return
			}
			gctx.JSON(err.Status, err)
			return
		}
		gctx.JSON(http.StatusOK, gin.H{"success": true})
	}
}
