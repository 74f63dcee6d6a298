// Package schedule owns every timer-driven activity of a contractflow
// instance: periodic sweeps, poll loops, deferred renders and retry
// backoff waits.
//
// All of them are registered with a single Registry. The registry reads time
// from an injected clockwork.Clock, so tests drive it with a fake clock, and
// Close cancels everything it started in one call and waits for it to return.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/dailyyoga/contractflow/logger"
	"github.com/dailyyoga/contractflow/routine"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Task is a unit of scheduled work.
type Task interface {
	// Name identifies the task in logs
	Name() string
	// Run executes the task; the context is cancelled when the task's
	// handle is stopped or the registry is closed
	Run(ctx context.Context) error
}

// TaskFunc adapts a function to the Task interface.
func TaskFunc(name string, fn func(ctx context.Context) error) Task {
	return &wrappedTask{name: name, exec: fn}
}

var specParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Registry tracks every scheduled activity of one orchestration instance.
type Registry struct {
	clock  clockwork.Clock
	log    logger.Logger
	runner routine.Runner
	mws    []Middleware

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	handles map[uint64]*Handle
	nextID  uint64
	closed  bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the clock used for all timers. Defaults to the real clock.
func WithClock(c clockwork.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithMiddleware appends task middlewares, applied inside the built-in
// recovery and logging middlewares.
func WithMiddleware(mws ...Middleware) Option {
	return func(r *Registry) { r.mws = append(r.mws, mws...) }
}

// NewRegistry creates an empty registry.
func NewRegistry(log logger.Logger, opts ...Option) *Registry {
	log = logger.OrNop(log)
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		clock:   clockwork.NewRealClock(),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		handles: make(map[uint64]*Handle),
	}
	r.runner = routine.New(log, routine.WithPanicHandler(func(name string, err error) {
		r.log.Error("scheduled routine crashed", zap.String("routine", name), zap.Error(err))
	}))
	for _, opt := range opts {
		opt(r)
	}
	r.mws = append([]Middleware{recoveryMiddleware(log), loggingMiddleware(log, r.clock)}, r.mws...)
	return r
}

// Clock returns the clock timers are created from.
func (r *Registry) Clock() clockwork.Clock {
	return r.clock
}

// Handle is the cancellation token of one registered activity.
type Handle struct {
	id     uint64
	name   string
	cancel context.CancelFunc
	done   chan struct{}
}

// Name returns the name the activity was registered under.
func (h *Handle) Name() string { return h.name }

// Stop cancels the activity. It does not wait for it to return.
func (h *Handle) Stop() { h.cancel() }

// Done is closed once the activity has returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Go runs fn on its own goroutine until it returns or its context is
// cancelled by Stop or Close.
func (r *Registry) Go(name string, fn func(ctx context.Context)) (*Handle, error) {
	return r.start(name, fn)
}

// Every runs task once per interval, starting one interval from now.
func (r *Registry) Every(name string, interval time.Duration, fn func(ctx context.Context) error) (*Handle, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval(interval)
	}
	task := r.wrap(TaskFunc(name, fn))
	return r.start(name, func(ctx context.Context) {
		ticker := r.clock.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				_ = task.Run(ctx)
			}
		}
	})
}

// Cron runs task according to a cron spec ("*/5 * * * *", "@every 30s",
// "@hourly", optional leading seconds field). Fire times are computed from
// the registry clock.
func (r *Registry) Cron(name, spec string, fn func(ctx context.Context) error) (*Handle, error) {
	sched, err := specParser.Parse(spec)
	if err != nil {
		return nil, ErrParseSpec(spec, err)
	}
	task := r.wrap(TaskFunc(name, fn))
	return r.start(name, func(ctx context.Context) {
		for {
			now := r.clock.Now()
			next := sched.Next(now)
			if next.IsZero() {
				return
			}
			timer := r.clock.NewTimer(next.Sub(now))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.Chan():
				_ = task.Run(ctx)
			}
		}
	})
}

// After runs task once after d unless stopped first.
func (r *Registry) After(name string, d time.Duration, fn func(ctx context.Context) error) (*Handle, error) {
	task := r.wrap(TaskFunc(name, fn))
	return r.start(name, func(ctx context.Context) {
		timer := r.clock.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.Chan():
			_ = task.Run(ctx)
		}
	})
}

// Sleep blocks for d on the registry clock. It returns early with an error
// when ctx is cancelled or the registry is closed.
func (r *Registry) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := r.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.Chan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return ErrClosed
	}
}

// Bind derives a context that is cancelled when either parent is cancelled
// or the registry is closed.
func (r *Registry) Bind(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(r.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Active returns the number of registered activities that have not returned.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Close cancels every registered activity and waits for all of them to
// return. It is safe to call more than once.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.runner.Wait()
	r.log.Debug("schedule registry closed")
}

func (r *Registry) start(name string, fn func(ctx context.Context)) (*Handle, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	r.nextID++
	ctx, cancel := context.WithCancel(r.ctx)
	h := &Handle{id: r.nextID, name: name, cancel: cancel, done: make(chan struct{})}
	r.handles[h.id] = h
	// started under the lock so Close never waits concurrently with a new Add
	r.runner.GoNamedWithContext(ctx, name, func(ctx context.Context) {
		defer r.release(h)
		fn(ctx)
	})
	r.mu.Unlock()
	return h, nil
}

func (r *Registry) release(h *Handle) {
	h.cancel()
	r.mu.Lock()
	delete(r.handles, h.id)
	r.mu.Unlock()
	close(h.done)
}

func (r *Registry) wrap(t Task) Task {
	return applyMiddlewares(t, r.mws...)
}
