// Exposes all of the REST APIs related to SSE in Menuboard.

package sse

import (
	"Menuboard/pkg/log"
	"Menuboard/pkg/middlewares"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Registers all of the REST API handlers related to internal package sse onto the gin server.
func APIHandlers(router *gin.Engine, service Service, logger log.Logger) {
	streamGroup := router.Group("/api/orders/stream")
	{
		streamGroup.GET("", middlewares.SSEMiddleware(), SSEConnManagerMiddleware(service, logger), ssehandler(logger))
		streamGroup.GET("/stats", statshandler(service, logger))
	}
}

// ssehandler returns a handler which drains the frames queued for the stream into the response.
func ssehandler(logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		v, ok := gctx.Get(streamContextKey)
		if !ok {
			gctx.Status(http.StatusInternalServerError)
			return
		}
		stream, ok := v.(*Stream)
		if !ok {
			logger.WithCtx(gctx).Error().Msg("Type assertion error in ssehandler")
			gctx.Status(http.StatusInternalServerError)
			return
		}

		// Send headers right away, the first frame may be a heartbeat away
		gctx.Status(http.StatusOK)
		gctx.Writer.WriteHeaderNow()
		gctx.Writer.Flush()

		gctx.Stream(func(w io.Writer) bool {
			select {
			// Send frame to the client
			case frame := <-stream.Frames():
				if _, err := w.Write(frame); err != nil {
					logger.WithCtx(gctx).Debug().Err(err).Str("client", stream.Client.ID).Msg("Couldn't write SSE frame")
					return false
				}
				return true
			// Channel dropped this stream, frames queued before that still go out
			case <-stream.Done():
				if err := flushQueued(w, stream); err != nil {
					logger.WithCtx(gctx).Debug().Err(err).Str("client", stream.Client.ID).Msg("Couldn't flush queued SSE frames")
				}
				return false
			// Client exit
			case <-gctx.Request.Context().Done():
				return false
			}
		})
	}
}

// flushQueued writes every frame already queued for stream without waiting for more.
func flushQueued(w io.Writer, stream *Stream) error {
	for {
		select {
		case frame := <-stream.Frames():
			if _, err := w.Write(frame); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// statshandler returns a handler reporting how many dashboard streams are open.
func statshandler(service Service, logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		gctx.JSON(http.StatusOK, service.Stats(gctx))
	}
}
