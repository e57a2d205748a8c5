// Auth middleware is used to validate the publisher JWT sent via header.
// Only the publish endpoint needs it, dashboard streams stay open.

package auth

import (
	"Menuboard/internal/errors"
	"Menuboard/internal/metrics"
	"Menuboard/pkg/log"
	"strings"

	"github.com/gin-gonic/gin"
)

// This middleware is used to verify and validate the incoming publisher JWT signed with secret.
// Blocks the request to go further into other handlers if token is invalid.
// With an empty secret publishing is left open and the middleware only passes the request on.
func PublishAuthMiddleware(logger log.Logger, secret string) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		if secret == "" {
			gctx.Next()
			return
		}
		// Extract token from header
		token := fetchTokenFromHeader(gctx)
		if token == "" {
			metrics.OrderNotificationsTotal.WithLabelValues("unauthorized").Inc()
			gctx.AbortWithStatusJSON(errors.Unauthorized("").Status, errors.Unauthorized(""))
			return
		}
		claims, valerr := ParsePublishToken(secret, token)
		if valerr != nil {
			// Abort the call chain for the request here as the publisher is unauthenticated
			logger.WithCtx(gctx).Warn().Err(valerr).Msg("Rejected publisher token")
			metrics.OrderNotificationsTotal.WithLabelValues("unauthorized").Inc()
			gctx.AbortWithStatusJSON(errors.Unauthorized("").Status, errors.Unauthorized(""))
			return
		}
		// Set Publisher in request's context
		// This pair will be used further down in the handler chain
		gctx.Set("Publisher", claims.Subject)
		gctx.Next()
	}
}

// Helper to fetch the bearer token string from the Authorization header.
func fetchTokenFromHeader(gctx *gin.Context) string {
	scheme, token, found := strings.Cut(gctx.GetHeader("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
