// Closes open external connections before shutting down Menuboard.
// Inspired from https://medium.com/tokopedia-engineering/gracefully-shutdown-your-go-application-9e7d5c73b5ac

package cleanup

import (
	"Menuboard/pkg/log"
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// operation is a clean up function standard.
type Operation func(ctx context.Context) error

// Stage is a set of named operations run concurrently.
// A stage starts only once every operation of the previous stage returned.
type Stage map[string]Operation

// Exit code used when the clean-up operations outlive the timeout.
const forcedExitCode = 3

// GracefulShutdown function waits for termination system-calls and performs clean-up stages in order.
// The timeout covers all stages. The returned channel is closed once the last stage finished.
func GracefulShutdown(ctx context.Context, logger log.Logger, timeout time.Duration, stages ...Stage) <-chan struct{} {
	wait := make(chan struct{})

	// buffered channel to receive shutdown signal, registered before returning so no signal is missed
	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		sig := <-s
		signal.Stop(s)

		logger.Warn().Str("signal", sig.String()).Msg("Graceful shutdown in progress.")

		// Force exit after timeout duration has been elapsed
		force := time.AfterFunc(timeout, func() {
			logger.Warn().Msgf("Timeout of %fs has been elapsed. Forcing shutdown!", timeout.Seconds())
			os.Exit(forcedExitCode)
		})
		defer force.Stop()

		opctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		for _, stage := range stages {
			runStage(opctx, logger, stage)
		}
		close(wait)
	}()

	return wait
}

// Executes the operations of one stage asynchronously and waits for all of them.
func runStage(ctx context.Context, logger log.Logger, stage Stage) {
	var wg sync.WaitGroup

	for opname, op := range stage {
		// Adding task to be executed asynchronously
		wg.Add(1)
		go func(opname string, op Operation) {
			defer wg.Done()
			logger.Info().Msgf("Shutting down: %s", opname)
			if err := op(ctx); err != nil {
				logger.Error().Err(err).Msgf("%s shutdown failed.", opname)
				return
			}
			logger.Info().Msgf("%s shutdown completed.", opname)
		}(opname, op)
	}
	// Wait for all of the tasks to finish
	wg.Wait()
}
