// Package taskrunner runs detached fire-and-forget tasks (the turn
// pipeline's launch_summary step) on a goroutine the runner tracks and can
// drain on shutdown, rather than a bare untracked goroutine. Adapted from
// pkg/bus/stream.go's ticker-goroutine-with-done-channel shutdown idiom,
// generalized from "periodic flush" to "fire once, log-and-drop on error".
package taskrunner

import (
	"context"
	"sync"

	"github.com/sipeed/picoclaw/pkg/logger"
)

// Runner tracks in-flight detached tasks so Wait can drain them on
// graceful shutdown instead of abandoning them to process exit.
type Runner struct {
	wg sync.WaitGroup
}

// New returns a ready-to-use Runner.
func New() *Runner {
	return &Runner{}
}

// Go runs fn on its own goroutine, outliving the caller's context. Any
// error fn returns, or panic it raises, is logged and dropped — callers
// never observe it, per the fire-and-forget contract launch_summary
// requires.
func (r *Runner) Go(component, op string, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				logger.ErrorCF(component, "detached task panicked", map[string]interface{}{"op": op, "panic": rec})
			}
		}()
		if err := fn(context.Background()); err != nil {
			logger.ErrorCF(component, "detached task failed", map[string]interface{}{"op": op, "error": err.Error()})
		}
	}()
}

// Wait blocks until every task started via Go has returned. Intended for
// graceful shutdown, not the request path.
func (r *Runner) Wait() {
	r.wg.Wait()
}
