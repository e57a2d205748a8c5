// The main file of Menuboard.

package main

import (
	"Menuboard/internal/broadcast"
	"Menuboard/internal/config"
	"Menuboard/internal/sse"
	"Menuboard/pkg/cleanup"
	"Menuboard/pkg/db"
	"Menuboard/pkg/log"
	"context"
	"errors"
	"flag"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
)

// Indicates the current version of Menuboard.
var Version = "1.0.0"

func main() {
	envFile := flag.String("env", "config/dev.env", "path of the optional .env file")
	flag.Parse()

	ctx := context.Background()
	logger := log.New(Version)

	cfg, cfgerr := config.Load(ctx, logger, *envFile)
	if cfgerr != nil {
		logger.Fatal().Err(cfgerr).Msg("Couldn't load Menuboard configuration.")
	}
	if cfg.Version != "" {
		logger = log.New(cfg.Version)
	}

	logger.Info().Msgf("Welcome to Menuboard: v%s", Version)
	logger.Info().Msgf("Menuboard Environment: %s", cfg.Env)

	// This is the preferred mode used by gin server in DEV environment.
	if cfg.Env == "DEV" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Presence tracking is optional, dashboards stream fine without redis.
	presence := sse.NewNopRepository()
	var client *db.RedisDB
	if cfg.RedisAddr != "" {
		var dberr error
		client, dberr = db.NewDbConnection(ctx, db.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDBNumber}, logger)
		if dberr != nil {
			logger.Fatal().Err(dberr).Msg("Couldn't initialize redis client.")
		}
		// Sending a PING request to DB for connection status check.
		if pingerr := client.CheckDbConnection(ctx, logger); pingerr != nil {
			logger.Warn().Err(pingerr).Msg("Redis is unreachable, presence tracking will recover once it's back.")
		}
		presence = sse.NewRepository(client)
	} else {
		logger.Info().Msg("REDIS_ADDR not set, presence tracking is disabled.")
	}

	// The process-wide registry of dashboard streams, owned here and handed to the handlers.
	channel := broadcast.NewChannel(broadcast.Options{
		HeartbeatInterval: cfg.HeartbeatInterval,
		StaleAfter:        cfg.StaleAfter,
		WriteTimeout:      cfg.WriteTimeout,
		MaxSubscribers:    cfg.MaxSubscribers,
	}, clockwork.NewRealClock(), logger)
	go channel.Run(ctx)

	// Initializing the gin server.
	server := gin.New()
	Router(server, cfg, channel, presence, logger)

	// Running the server with defined addr and port.
	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: server,
	}

	// ListenAndServe is a blocking operation, putting it a goroutine
	go func() {
		logger.Info().Msgf("Menuboard service running at: %s", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Error in ListenAndServe()")
		}
	}()

	// Graceful shutdown of Menuboard server triggered due to system interruptions.
	wait := cleanup.GracefulShutdown(ctx, logger, cfg.ShutdownTimeout, shutdownStages(channel, srv, client)...)
	<-wait
	logger.Info().Msg("Menuboard stopped.")
	os.Exit(0)
}

// Clean-up stages of Menuboard. Closing the channel ends every open stream so srv.Shutdown doesn't wait on them
// until the timeout. Redis closes last, the stream handlers remove their presence records on the way out.
func shutdownStages(channel *broadcast.Channel, srv *http.Server, client *db.RedisDB) []cleanup.Stage {
	stages := []cleanup.Stage{{
		"Broadcast": func(ctx context.Context) error {
			return channel.Close()
		},
		"Gin": func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	}}
	if client != nil {
		stages = append(stages, cleanup.Stage{
			"Redis-server": func(ctx context.Context) error {
				return client.CloseDbConnection(ctx)
			},
		})
	}
	return stages
}
