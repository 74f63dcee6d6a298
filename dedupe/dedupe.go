// Package dedupe collapses concurrent identical requests into one call.
//
// For any key at most one operation runs per in-flight window; every caller
// that arrives while it runs joins it and observes the same value and error.
// The operation runs on its own goroutine with a context detached from the
// callers, so one caller giving up never cancels the shared call.
package dedupe

import (
	"context"
	"sync"

	"github.com/dailyyoga/contractflow/logger"
	"github.com/dailyyoga/contractflow/routine"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Op is a deduplicated operation.
type Op func(ctx context.Context) (any, error)

// SuccessFunc is called with the value of every successful operation before
// its pending entry is released.
type SuccessFunc func(key string, value any)

// Binder derives the context an operation runs under from the detached
// caller context. *schedule.Registry.Bind satisfies it.
type Binder func(parent context.Context) (context.Context, context.CancelFunc)

// Group is a registry of in-flight operations keyed by request identity.
type Group struct {
	log       logger.Logger
	onSuccess SuccessFunc
	bind      Binder

	sf      singleflight.Group
	mu      sync.Mutex
	waiters map[string]int
}

// Option configures a Group.
type Option func(*Group)

// WithOnSuccess registers the completion handler run on success only.
func WithOnSuccess(fn SuccessFunc) Option {
	return func(g *Group) { g.onSuccess = fn }
}

// WithBinder ties every operation's context to an outer lifetime.
func WithBinder(b Binder) Option {
	return func(g *Group) { g.bind = b }
}

// New creates an empty Group.
func New(log logger.Logger, opts ...Option) *Group {
	g := &Group{
		log:     logger.OrNop(log),
		waiters: make(map[string]int),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Do runs op for key, or joins the call already in flight for key, and waits
// for the shared outcome. If ctx is cancelled first Do returns ctx.Err() and
// the shared call keeps running for the other waiters.
func (g *Group) Do(ctx context.Context, key string, op Op) (any, error) {
	return g.Future(ctx, key, op).Wait(ctx)
}

// Future registers interest in key and returns without waiting. The check for
// an in-flight call and the registration of a new one happen atomically.
func (g *Group) Future(ctx context.Context, key string, op Op) *Future {
	g.mu.Lock()
	g.waiters[key]++
	g.mu.Unlock()

	ch := g.sf.DoChan(key, func() (any, error) {
		return g.run(ctx, key, op)
	})

	f := &Future{key: key, done: make(chan struct{})}
	routine.GoNamed(g.log, "dedupe-wait", func() {
		res := <-ch
		g.mu.Lock()
		if g.waiters[key]--; g.waiters[key] <= 0 {
			delete(g.waiters, key)
		}
		g.mu.Unlock()
		f.val, f.err, f.shared = res.Val, res.Err, res.Shared
		close(f.done)
	})
	return f
}

// run executes op once on the singleflight goroutine.
func (g *Group) run(ctx context.Context, key string, op Op) (val any, err error) {
	opCtx := context.WithoutCancel(ctx)
	if g.bind != nil {
		var cancel context.CancelFunc
		opCtx, cancel = g.bind(opCtx)
		defer cancel()
	}

	err = routine.Safe(g.log, "dedupe:"+key, func() error {
		var opErr error
		val, opErr = op(opCtx)
		return opErr
	})
	if err != nil {
		g.log.Debug("deduplicated call failed", zap.String("key", key), zap.Error(err))
		return nil, err
	}
	if g.onSuccess != nil {
		g.onSuccess(key, val)
	}
	return val, nil
}

// InFlight returns the number of keys with at least one waiting caller.
func (g *Group) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.waiters)
}

// Waiters returns how many callers are waiting on key.
func (g *Group) Waiters(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waiters[key]
}

// Forget detaches key from its in-flight call: callers arriving afterwards
// start a fresh call while existing waiters still receive the old outcome.
func (g *Group) Forget(key string) {
	g.sf.Forget(key)
}

// DoAs is Do with a typed operation.
func DoAs[T any](ctx context.Context, g *Group, key string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	v, err := g.Do(ctx, key, func(ctx context.Context) (any, error) {
		return op(ctx)
	})
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, ErrUnexpectedType(key, v)
	}
	return t, nil
}

// Future is the shared outcome of one deduplicated call.
type Future struct {
	key    string
	done   chan struct{}
	val    any
	err    error
	shared bool
}

// Key returns the deduplication key.
func (f *Future) Key() string { return f.key }

// Done is closed once the shared call has settled.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the call settles or ctx is cancelled.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shared reports whether the outcome was delivered to more than one caller.
// It is only meaningful after Done is closed.
func (f *Future) Shared() bool {
	<-f.done
	return f.shared
}
