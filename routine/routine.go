// Package routine provides goroutine execution with panic recovery.
//
// Every background goroutine in contractflow (cache sweeps, poll loops,
// deduplicated calls, deferred renders) is started through this package so a
// panicking operation is logged and converted into an error instead of
// crashing the process.
package routine

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/dailyyoga/contractflow/logger"
	"go.uber.org/zap"
)

// PanicHandler is notified after a panic has been recovered and logged.
type PanicHandler func(name string, err error)

// Runner provides safe goroutine execution with panic recovery
type Runner interface {
	// GoNamed executes a named function in a new goroutine with panic recovery
	GoNamed(name string, fn func())

	// GoNamedWithContext executes a named function with context in a new goroutine
	GoNamedWithContext(ctx context.Context, name string, fn func(ctx context.Context))

	// Running reports how many goroutines started by this runner have not returned yet
	Running() int

	// Wait waits for all goroutines started by this runner to complete
	Wait()
}

// Option configures a Runner.
type Option func(*defaultRunner)

// WithPanicHandler registers a callback invoked for every recovered panic.
func WithPanicHandler(h PanicHandler) Option {
	return func(r *defaultRunner) { r.onPanic = h }
}

type defaultRunner struct {
	log     logger.Logger
	onPanic PanicHandler
	wg      sync.WaitGroup
	running atomic.Int64
}

// New creates a new Runner with the given logger
func New(log logger.Logger, opts ...Option) Runner {
	r := &defaultRunner{log: logger.OrNop(log)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *defaultRunner) GoNamed(name string, fn func()) {
	r.GoNamedWithContext(context.Background(), name, func(context.Context) { fn() })
}

func (r *defaultRunner) GoNamedWithContext(ctx context.Context, name string, fn func(ctx context.Context)) {
	r.wg.Add(1)
	r.running.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.running.Add(-1)
		if err := Safe(r.log, name, func() error { fn(ctx); return nil }); err != nil && r.onPanic != nil {
			r.onPanic(name, err)
		}
	}()
}

func (r *defaultRunner) Running() int {
	return int(r.running.Load())
}

func (r *defaultRunner) Wait() {
	r.wg.Wait()
}

// Safe runs fn on the calling goroutine. A panic inside fn is recovered,
// logged and returned as an error wrapping ErrPanicRecovered.
func Safe(log logger.Logger, name string, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			fields := []zap.Field{
				zap.Any("panic", rec),
				zap.String("stack", string(debug.Stack())),
			}
			if name != "" {
				fields = append([]zap.Field{zap.String("routine", name)}, fields...)
			}
			logger.OrNop(log).Error("goroutine panicked", fields...)
			err = ErrPanic(rec)
		}
	}()
	return fn()
}

// GoNamed is a convenience function that executes a named function
// in a new goroutine with panic recovery, without tracking it in a Runner.
func GoNamed(log logger.Logger, name string, fn func()) {
	go func() {
		_ = Safe(log, name, func() error { fn(); return nil })
	}()
}
