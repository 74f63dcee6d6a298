package orchestrator

import (
	"context"
	"net/http"
	"time"

	"github.com/dailyyoga/contractflow/api"
	"github.com/dailyyoga/contractflow/dedupe"
	"github.com/dailyyoga/contractflow/retry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Op is a fetch operation. It may be invoked several times by the retry
// executor.
type Op = dedupe.Op

type fetchOptions struct {
	ttl     time.Duration
	policy  *retry.Policy
	onRetry retry.OnRetryFunc
}

// FetchOption configures one fetch.
type FetchOption func(*fetchOptions)

// WithTTL stores the result for d instead of the cache default.
func WithTTL(d time.Duration) FetchOption {
	return func(o *fetchOptions) { o.ttl = d }
}

// WithPolicy retries the operation under p instead of the configured policy.
func WithPolicy(p retry.Policy) FetchOption {
	return func(o *fetchOptions) { o.policy = &p }
}

// WithOnRetry reports every backoff wait, e.g. to show retry progress.
func WithOnRetry(fn retry.OnRetryFunc) FetchOption {
	return func(o *fetchOptions) { o.onRetry = fn }
}

// fetched carries a result and its TTL to the dedupe success hook.
type fetched struct {
	value  any
	ttl    time.Duration
	cached bool
}

// store is the dedupe success hook. Only successes reach it, so errors are
// never cached.
func (o *Orchestrator) store(key string, v any) {
	f, ok := v.(fetched)
	if !ok || f.cached {
		return
	}
	o.cache.Set(key, f.value, f.ttl)
}

func (o *Orchestrator) retryPolicy(fo *fetchOptions) retry.Policy {
	p := o.policy
	if fo.policy != nil {
		p = *fo.policy
		if p.Sleeper == nil {
			p.Sleeper = o.reg
		}
		if p.Logger == nil {
			p.Logger = o.log
		}
	}
	if fo.onRetry != nil {
		p.OnRetry = fo.onRetry
	}
	return p
}

// CachedFetch returns the value for key. A caller arriving while a fetch for
// key is in flight joins it; otherwise a fresh cache entry is returned; on a
// miss op runs under the retry policy and a success is cached and shared
// with every waiter. Failures are returned to every waiter and not cached.
func (o *Orchestrator) CachedFetch(ctx context.Context, key string, op Op, opts ...FetchOption) (any, error) {
	fo := &fetchOptions{}
	for _, opt := range opts {
		opt(fo)
	}

	if o.fetches.Waiters(key) == 0 {
		if v, ok := o.cache.Get(key); ok {
			return v, nil
		}
	}

	policy := o.retryPolicy(fo)
	v, err := o.fetches.Do(ctx, key, func(ctx context.Context) (any, error) {
		// a fetch for key may have settled between the cache check and here
		if v, ok := o.cache.Get(key); ok {
			return fetched{value: v, cached: true}, nil
		}
		v, err := retry.Do[any](ctx, policy, op)
		if err != nil {
			return nil, err
		}
		return fetched{value: v, ttl: fo.ttl}, nil
	})
	if err != nil {
		o.log.Debug("fetch failed", zap.String("key", key), zap.Error(err))
		return nil, err
	}
	return v.(fetched).value, nil
}

// Fetch is CachedFetch with a typed operation.
func Fetch[T any](ctx context.Context, o *Orchestrator, key string, op func(ctx context.Context) (T, error), opts ...FetchOption) (T, error) {
	var zero T
	v, err := o.CachedFetch(ctx, key, func(ctx context.Context) (any, error) {
		return op(ctx)
	}, opts...)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, dedupe.ErrUnexpectedType(key, v)
	}
	return t, nil
}

// Call performs a service request through CachedFetch. The cache key is
// built from the method, path and the query, plus the body for methods
// other than GET.
func (o *Orchestrator) Call(ctx context.Context, req *api.Request, opts ...FetchOption) (*api.Payload, error) {
	key := api.CacheKey(req.Method, req.Path, callParams(req))
	return Fetch(ctx, o, key, func(ctx context.Context) (*api.Payload, error) {
		resp, err := o.client.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		return api.Decode(resp.Body), nil
	}, opts...)
}

// callParams returns the request parts that identify a call. GET requests
// keep the bare query so their keys match CacheKey(method, path, query).
func callParams(req *api.Request) any {
	if req.Method == "" || req.Method == http.MethodGet {
		if len(req.Query) == 0 {
			return nil
		}
		return req.Query
	}
	if len(req.Query) == 0 {
		return req.Body
	}
	return map[string]any{"query": req.Query, "body": req.Body}
}

// Dedupe joins or starts an uncached call for key.
func (o *Orchestrator) Dedupe(ctx context.Context, key string, op Op) (any, error) {
	return o.calls.Do(ctx, key, op)
}

// Retry runs op under the configured policy. A first 401 refreshes the
// service token once without consuming an attempt.
func (o *Orchestrator) Retry(ctx context.Context, op func(ctx context.Context) error, opts ...FetchOption) error {
	fo := &fetchOptions{}
	for _, opt := range opts {
		opt(fo)
	}
	p := o.retryPolicy(fo)
	p.Refresh = o.client.Refresh
	return retry.Run(ctx, p, op)
}

// FetchMany runs CachedFetch for every key with at most
// Batch.MaxConcurrent fetches at a time. Results are in key order. The
// first failure cancels the fetches not yet started and is returned.
func (o *Orchestrator) FetchMany(ctx context.Context, keys []string, op func(ctx context.Context, key string) (any, error), opts ...FetchOption) ([]any, error) {
	out := make([]any, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Batch.MergeDefaults().MaxConcurrent)
	for i, key := range keys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v, err := o.CachedFetch(gctx, key, func(ctx context.Context) (any, error) {
				return op(ctx, key)
			}, opts...)
			if err != nil {
				return ErrFetchMany(key, err)
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Invalidate drops cached entries whose key contains substr and returns how
// many were removed. An empty substr clears the cache.
func (o *Orchestrator) Invalidate(substr string) int {
	if substr == "" {
		return o.cache.Clear()
	}
	return o.cache.InvalidateMatching(substr)
}
