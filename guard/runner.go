// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package guard

import (
	"context"
	"sync"
	"time"
)

// Runner is satisfied by the guardnode's long-running subsystems. Run blocks
// until the context is canceled or the subsystem hits a fatal condition, in
// which case the error is returned.
type Runner interface {
	Run(ctx context.Context) error
}

// StartStopWaiter wraps a Runner with a cancellable start/stop/error-flag
// surface. The error returned by Run is latched and observable via LastError
// until the waiter is started again.
type StartStopWaiter struct {
	runner Runner

	mtx     sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// NewStartStopWaiter creates a StartStopWaiter for a Runner.
func NewStartStopWaiter(runner Runner) *StartStopWaiter {
	return &StartStopWaiter{runner: runner}
}

// Start launches the Runner in a goroutine. Start will return immediately.
// Use Stop to cancel, and WaitForShutdown to block until Run returns.
func (ssw *StartStopWaiter) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	ssw.mtx.Lock()
	ssw.cancel = cancel
	ssw.lastErr = nil
	ssw.mtx.Unlock()
	ssw.wg.Add(1)
	go func() {
		defer ssw.wg.Done()
		err := ssw.runner.Run(ctx)
		ssw.mtx.Lock()
		ssw.lastErr = err
		ssw.mtx.Unlock()
		cancel() // in case Run returned before cancellation
	}()
}

// Stop cancels the context passed to Run.
func (ssw *StartStopWaiter) Stop() {
	ssw.mtx.Lock()
	if ssw.cancel != nil {
		ssw.cancel()
	}
	ssw.mtx.Unlock()
}

// WaitForShutdown blocks until Run has returned.
func (ssw *StartStopWaiter) WaitForShutdown() {
	ssw.wg.Wait()
}

// LastError returns the error flag set by the last completed Run, or nil if
// the Runner is still running or exited cleanly.
func (ssw *StartStopWaiter) LastError() error {
	ssw.mtx.Lock()
	defer ssw.mtx.Unlock()
	return ssw.lastErr
}

// Supervise starts every worker and polls their error flags on the provided
// interval, stopping all of them when the first error is observed or when the
// context is canceled. The first observed error is returned after all workers
// have shut down.
func Supervise(ctx context.Context, log Logger, interval time.Duration, workers ...*StartStopWaiter) error {
	for _, w := range workers {
		w.Start(ctx)
	}

	shutdown := func() {
		for _, w := range workers {
			w.Stop()
		}
		for _, w := range workers {
			w.WaitForShutdown()
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, w := range workers {
				if err := w.LastError(); err != nil {
					log.Errorf("Worker error detected, stopping all workers: %v", err)
					shutdown()
					return err
				}
			}
		case <-ctx.Done():
			shutdown()
			// A worker may still have failed during the wind-down.
			for _, w := range workers {
				if err := w.LastError(); err != nil {
					return err
				}
			}
			return nil
		}
	}
}
