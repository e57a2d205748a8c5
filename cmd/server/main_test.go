package main

import (
	"Menuboard/internal/broadcast"
	"Menuboard/internal/config"
	"Menuboard/internal/test"
	"Menuboard/pkg/cleanup"
	"Menuboard/pkg/db"
	"Menuboard/pkg/log"
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var logger log.Logger = log.NewWithWriter("test", io.Discard)

// Runs the operations of one stage the way cleanup does, waiting for all of them.
func runStage(t *testing.T, stage cleanup.Stage) {
	t.Helper()
	done := make(chan error, len(stage))
	for _, op := range stage {
		go func(op cleanup.Operation) { done <- op(context.Background()) }(op)
	}
	for range stage {
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Fatal("shutdown operation didn't return")
		}
	}
}

func TestShutdownStagesCloseRedisLast(t *testing.T) {
	channel := broadcast.NewChannel(broadcast.Options{}, clockwork.NewFakeClock(), logger)
	client, err := db.NewDbConnection(context.Background(), db.Options{Addr: "127.0.0.1:1"}, logger)
	require.NoError(t, err)

	stages := shutdownStages(channel, &http.Server{}, client)
	require.Len(t, stages, 2)
	assert.Contains(t, stages[0], "Broadcast")
	assert.Contains(t, stages[0], "Gin")
	assert.NotContains(t, stages[0], "Redis-server")
	assert.Contains(t, stages[1], "Redis-server")

	assert.Len(t, shutdownStages(channel, &http.Server{}, nil), 1)
}

func TestShutdownRemovesPresenceBeforeRedisCloses(t *testing.T) {
	gin.SetMode(gin.TestMode)
	channel := broadcast.NewChannel(broadcast.Options{}, clockwork.NewFakeClock(), logger)
	presence := test.NewMockPresenceRepository()

	router := gin.New()
	Router(router, config.Config{CORSOrigin: "*"}, channel, presence, logger)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: router}
	go func() { _ = srv.Serve(listener) }()

	for i := 0; i < 2; i++ {
		resp, err := http.Get("http://" + listener.Addr().String() + "/api/orders/stream")
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	require.Eventually(t, func() bool { return channel.Len() == 2 }, time.Second, time.Millisecond)
	count, err := presence.CountClients(context.Background(), logger)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	stages := shutdownStages(channel, srv, nil)
	runStage(t, stages[0])

	// Every stream handler returned, so its presence record is gone before a later stage closes redis
	count, err = presence.CountClients(context.Background(), logger)
	require.NoError(t, err)
	assert.Zero(t, count)
}
