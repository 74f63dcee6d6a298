package schedule

import (
	"context"

	"github.com/dailyyoga/contractflow/logger"
	"github.com/dailyyoga/contractflow/routine"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Middleware is a function that wraps a Task with additional behavior
type Middleware func(Task) Task

// applyMiddlewares applies multiple middlewares to a task
// Example: applyMiddlewares(task, mw1, mw2, mw3) results in: mw1(mw2(mw3(task)))
func applyMiddlewares(t Task, mws ...Middleware) Task {
	for i := len(mws) - 1; i >= 0; i-- {
		t = mws[i](t)
	}
	return t
}

// recoveryMiddleware converts a panic inside a task run into an error so a
// periodic task keeps firing after a bad tick.
func recoveryMiddleware(log logger.Logger) Middleware {
	return func(next Task) Task {
		return &wrappedTask{
			name: next.Name(),
			exec: func(ctx context.Context) error {
				return routine.Safe(log, next.Name(), func() error {
					return next.Run(ctx)
				})
			},
		}
	}
}

// loggingMiddleware logs failed runs at warn level and successful runs at debug
// level; periodic tasks fire too often for info. Durations are measured on
// clock.
func loggingMiddleware(log logger.Logger, clock clockwork.Clock) Middleware {
	return func(next Task) Task {
		return &wrappedTask{
			name: next.Name(),
			exec: func(ctx context.Context) error {
				start := clock.Now()
				err := next.Run(ctx)
				if err != nil {
					log.Warn("scheduled task failed",
						zap.String("task", next.Name()),
						zap.Duration("duration", clock.Since(start)),
						zap.Error(err),
					)
					return err
				}
				log.Debug("scheduled task completed",
					zap.String("task", next.Name()),
					zap.Duration("duration", clock.Since(start)),
				)
				return nil
			},
		}
	}
}

// wrappedTask is an internal helper struct used to wrap tasks with middleware
type wrappedTask struct {
	name string
	exec func(ctx context.Context) error
}

func (w *wrappedTask) Name() string {
	return w.name
}

func (w *wrappedTask) Run(ctx context.Context) error {
	return w.exec(ctx)
}
