package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// This middleware handles CORS policy for Menuboard server.
// Dashboards open the order stream from the storefront origin, so credentials and Last-Event-ID must pass.
func CORSMiddleware(addr string) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		gctx.Writer.Header().Set("Access-Control-Allow-Origin", addr)
		gctx.Writer.Header().Set("Vary", "Origin")
		gctx.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		gctx.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Accept, Origin, Cache-Control, Last-Event-ID, X-Correlation-ID, X-Requested-With")
		gctx.Writer.Header().Set("Access-Control-Expose-Headers", "X-Correlation-ID")
		gctx.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")

		if gctx.Request.Method == http.MethodOptions {
			gctx.AbortWithStatus(http.StatusNoContent)
			return
		}

		gctx.Next()
	}
}
