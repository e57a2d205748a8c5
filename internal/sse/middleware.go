// Server Side Events (SSE) middleware used to populate request context with the client SSE stream.

package sse

import (
	"Menuboard/internal/entity"
	"Menuboard/internal/errors"
	"Menuboard/pkg/log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Key under which the *Stream of the request is stored in gin context.
const streamContextKey = "SSE"

// Registers the dashboard stream before the handler runs and removes exactly this stream once it returns.
func SSEConnManagerMiddleware(service Service, logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		client := entity.SSEClient{
			RemoteAddr:  gctx.ClientIP(),
			UserAgent:   gctx.Request.UserAgent(),
			ConnectedAt: time.Now().Unix(),
		}

		stream, err := service.Connect(gctx, client)
		if err != nil {
			// Error occured, registry might be full or the server is shutting down
			errResp, ok := err.(errors.ErrorResponse)
			if !ok {
				// Type assertion error
				logger.WithCtx(gctx).Error().Err(err).Msg("Type assertion error in SSEConnManagerMiddleware")
				gctx.AbortWithStatusJSON(http.StatusInternalServerError, errors.InternalServerError(""))
				return
			}
			// Headers set by SSEMiddleware don't fit a JSON error body
			gctx.Writer.Header().Del("Content-Type")
			gctx.AbortWithStatusJSON(errResp.Status, errResp)
			return
		}

		defer service.Disconnect(gctx, stream)

		gctx.Set(streamContextKey, stream)
		gctx.Next()
	}
}
