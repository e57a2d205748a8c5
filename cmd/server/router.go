// List of all REST API endpoints being used by Menuboard can be found here.

package main

import (
	"Menuboard/internal/auth"
	"Menuboard/internal/broadcast"
	"Menuboard/internal/config"
	"Menuboard/internal/order"
	"Menuboard/internal/sse"
	"Menuboard/pkg/globalcontext"
	"Menuboard/pkg/log"
	"Menuboard/pkg/middlewares"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Router(router *gin.Engine, cfg config.Config, channel *broadcast.Channel, presence sse.Repository, logger log.Logger) {
	// Forcing gin to use custom Logger instead of the default one.
	router.Use(log.LoggerGinExtension(logger))
	router.Use(gin.Recovery())
	router.Use(middlewares.CORSMiddleware(cfg.CORSOrigin))
	router.Use(globalcontext.UniqueIDMiddleware(logger))
	router.Use(middlewares.CorrelationMiddleware(logger))

	// This is the route to default path
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Welcome to Menuboard!")
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Dashboard streams
	sse.APIHandlers(router, sse.NewService(channel, presence, logger), logger)

	// Publish endpoint of the order-creation workflow
	order.APIHandlers(router, order.NewService(channel, logger), auth.PublishAuthMiddleware(logger, cfg.PublishSecret), logger)
}
