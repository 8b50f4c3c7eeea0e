// Package signal translates SIGINT/SIGTERM into cooperative shutdown.
package signal

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// NotifyContext returns a context cancelled on SIGINT or SIGTERM. Every
// scraper loop receives this context, so one signal fans out to all of them.
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// WaitForShutdown blocks until a termination signal arrives, then runs
// shutdownFunc with a timeout so a stuck handler cannot hang the exit.
func WaitForShutdown(logger *zap.Logger, shutdownFunc func() error) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- shutdownFunc()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		} else {
			logger.Info("graceful shutdown completed")
		}
	case <-ctx.Done():
		logger.Error("graceful shutdown timed out", zap.Error(ctx.Err()))
	}
}
