// Package task runs fire-and-forget goroutines whose failures are logged
// rather than propagated to the caller.
package task

import (
	"fmt"
	"log/slog"
)

// Spawn runs fn in a new goroutine. A returned error or a panic is logged
// under the given name and never reaches the caller. The returned channel
// is closed once fn has finished.
func Spawn(logger *slog.Logger, name string, fn func() error) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Task panicked",
					slog.String("task", name),
					slog.Any("err", fmt.Errorf("panic: %v", r)))
			}
		}()

		if err := fn(); err != nil {
			logger.Error("Task failed",
				slog.String("task", name),
				slog.Any("err", err))
		}
	}()

	return done
}
