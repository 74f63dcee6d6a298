// Package batch submits batches of contract items for asynchronous processing
// and polls the service until every item has settled.
//
// A job moves submitted -> polling -> completed | failed | timed_out |
// cancelled. Each job has exactly one poll loop, so at most one status call
// per job is ever in flight. Status calls are retried under their own small
// policy, deduplicated per job and never cached.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/dailyyoga/contractflow/api"
	"github.com/dailyyoga/contractflow/dedupe"
	"github.com/dailyyoga/contractflow/logger"
	"github.com/dailyyoga/contractflow/retry"
	"github.com/dailyyoga/contractflow/routine"
	"github.com/dailyyoga/contractflow/schedule"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Service is the subset of the analysis service the poller calls.
// api.Client satisfies it.
type Service interface {
	SubmitBatch(ctx context.Context, sub *api.BatchSubmission) (*api.BatchAccepted, error)
	BatchStatus(ctx context.Context, batchID string) (*api.BatchStatus, error)
}

// Notifier is told about every job that reaches a terminal state.
type Notifier interface {
	Notify(ctx context.Context, snap Snapshot) error
}

// Poller submits batches and drives their poll loops.
type Poller struct {
	log      logger.Logger
	svc      Service
	reg      *schedule.Registry
	clock    clockwork.Clock
	cfg      *Config
	group    *dedupe.Group
	notifier Notifier

	submitPolicy retry.Policy
	statusPolicy retry.Policy

	mu   sync.Mutex
	jobs map[string]*Job
}

// Option configures a Poller.
type Option func(*Poller)

// WithNotifier registers a finalization notifier.
func WithNotifier(n Notifier) Option {
	return func(p *Poller) { p.notifier = n }
}

// WithSubmitPolicy overrides the retry policy of submit calls.
func WithSubmitPolicy(policy retry.Policy) Option {
	return func(p *Poller) { p.submitPolicy = policy }
}

// WithStatusPolicy overrides the retry policy of status calls.
func WithStatusPolicy(policy retry.Policy) Option {
	return func(p *Poller) { p.statusPolicy = policy }
}

// NewPoller creates a poller whose loops and timers live in reg.
func NewPoller(log logger.Logger, svc Service, reg *schedule.Registry, cfg *Config, opts ...Option) (*Poller, error) {
	cfg = cfg.MergeDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if svc == nil || reg == nil {
		return nil, ErrInvalidConfig
	}
	log = logger.Named(log, "batch")

	submit := retry.DefaultPolicy()
	submit.Name = "batch-submit"

	p := &Poller{
		log:          log,
		svc:          svc,
		reg:          reg,
		clock:        reg.Clock(),
		cfg:          cfg,
		group:        dedupe.New(log, dedupe.WithBinder(reg.Bind)),
		submitPolicy: submit,
		statusPolicy: retry.Policy{
			Name:         "batch-status",
			MaxAttempts:  cfg.StatusRetryAttempts,
			InitialDelay: cfg.StatusRetryDelay,
			MaxDelay:     max(cfg.PollInterval, cfg.StatusRetryDelay),
			Multiplier:   2,
		},
		jobs: make(map[string]*Job),
	}
	for _, opt := range opts {
		opt(p)
	}
	for _, policy := range []*retry.Policy{&p.submitPolicy, &p.statusPolicy} {
		if policy.Sleeper == nil {
			policy.Sleeper = reg
		}
		if policy.Logger == nil {
			policy.Logger = log
		}
	}
	return p, nil
}

// Submit posts items as one batch and starts polling it. The submit call is
// retried under the submit policy; on failure the original error is returned
// and no job is created.
func (p *Poller) Submit(ctx context.Context, items []json.RawMessage) (*Job, error) {
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(items) > p.cfg.MaxBatchSize {
		return nil, ErrBatchTooLarge(len(items), p.cfg.MaxBatchSize)
	}

	sub := &api.BatchSubmission{Items: items, MaxConcurrent: p.cfg.MaxConcurrent}
	acc, err := retry.Do(ctx, p.submitPolicy, func(ctx context.Context) (*api.BatchAccepted, error) {
		return p.svc.SubmitBatch(ctx, sub)
	})
	if err != nil {
		p.log.Warn("batch submit failed", zap.Int("items", len(items)), zap.Error(err))
		return nil, err
	}

	j := newJob(p, acc.BatchID, len(items), p.clock.Now())

	p.mu.Lock()
	prev := p.jobs[j.id]
	p.jobs[j.id] = j
	p.mu.Unlock()
	if prev != nil {
		p.release(prev)
	}

	j.mu.Lock()
	j.snap.Status = StatusPolling
	j.publishLocked()
	h, err := p.reg.Go("batch-poll:"+j.id, func(ctx context.Context) { p.loop(ctx, j) })
	if err != nil {
		j.finishLocked(StatusCancelled, err)
		j.mu.Unlock()
		p.mu.Lock()
		delete(p.jobs, j.id)
		p.mu.Unlock()
		j.releaseStream()
		return nil, err
	}
	j.handle = h
	j.mu.Unlock()

	p.log.Info("batch submitted",
		zap.String("batch_id", j.id),
		zap.Int("items", len(items)),
		zap.Duration("poll_interval", p.cfg.PollInterval),
	)
	return j, nil
}

// Job returns a tracked job.
func (p *Poller) Job(id string) (*Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	j, ok := p.jobs[id]
	return j, ok
}

// Jobs returns every tracked job.
func (p *Poller) Jobs() []*Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Job, 0, len(p.jobs))
	for _, j := range p.jobs {
		out = append(out, j)
	}
	return out
}

// Forget stops tracking a job, cancelling it if it is still running and
// releasing its update stream. Jobs are otherwise retained indefinitely.
func (p *Poller) Forget(id string) bool {
	p.mu.Lock()
	j, ok := p.jobs[id]
	delete(p.jobs, id)
	p.mu.Unlock()
	if ok {
		p.release(j)
	}
	return ok
}

func (p *Poller) release(j *Job) {
	j.Cancel()
	j.releaseStream()
}

// loop is the single poll loop of a job.
func (p *Poller) loop(ctx context.Context, j *Job) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	timeout, err := p.reg.After("batch-timeout:"+j.id, p.cfg.PollTimeout, func(context.Context) error {
		cancel(ErrPollTimeout)
		return nil
	})
	if err == nil {
		defer timeout.Stop()
	}

	for {
		if err := p.reg.Sleep(ctx, p.cfg.PollInterval); err != nil {
			p.stop(ctx, j, err)
			return
		}

		j.mu.Lock()
		if j.cancelled || j.snap.Status.Terminal() {
			j.mu.Unlock()
			return
		}
		j.mu.Unlock()

		st, err := dedupe.DoAs(ctx, p.group, "batch-status:"+j.id, func(ctx context.Context) (*api.BatchStatus, error) {
			return retry.Do(ctx, p.statusPolicy, func(ctx context.Context) (*api.BatchStatus, error) {
				return p.svc.BatchStatus(ctx, j.id)
			})
		})
		if ctx.Err() != nil {
			p.stop(ctx, j, ctx.Err())
			return
		}

		j.mu.Lock()
		if j.cancelled || j.snap.Status.Terminal() {
			// outstanding poll of a cancelled job
			j.mu.Unlock()
			return
		}
		snap, done := p.pollResultLocked(j, st, err)
		j.mu.Unlock()

		if done {
			p.finished(snap)
			return
		}
	}
}

// pollResultLocked applies one poll outcome and reports whether the job ended.
func (p *Poller) pollResultLocked(j *Job, st *api.BatchStatus, err error) (Snapshot, bool) {
	now := p.clock.Now()
	if err != nil {
		j.snap.Polls++
		j.snap.FailedPolls++
		j.snap.UpdatedAt = now
		j.consecutive++
		p.log.Warn("batch status poll failed",
			zap.String("batch_id", j.id),
			zap.Int("poll", j.snap.Polls),
			zap.Int("consecutive_failures", j.consecutive),
			zap.Error(err),
		)
		if limit := p.cfg.MaxConsecutiveFailures; limit > 0 && j.consecutive >= limit {
			return j.finishLocked(StatusFailed, ErrTooManyFailures(j.consecutive, err)), true
		}
	} else if j.applyLocked(st, now) {
		return j.copyLocked(), true
	} else if st.Status == api.StatusCompleted || st.Status == api.StatusFailed {
		p.log.Warn("service reported a finished batch with unfinished items",
			zap.String("batch_id", j.id),
			zap.String("status", st.Status),
		)
	}

	if j.snap.Polls >= p.cfg.MaxPolls {
		return j.finishLocked(StatusTimedOut, nil), true
	}
	j.publishLocked()
	return Snapshot{}, false
}

// stop ends a loop whose wait or call was interrupted.
func (p *Poller) stop(ctx context.Context, j *Job, err error) {
	status := StatusCancelled
	if errors.Is(context.Cause(ctx), ErrPollTimeout) {
		status, err = StatusTimedOut, nil
	}

	j.mu.Lock()
	if j.snap.Status.Terminal() {
		j.mu.Unlock()
		return
	}
	snap := j.finishLocked(status, err)
	j.mu.Unlock()
	p.finished(snap)
}

// finished logs a terminal snapshot and hands it to the notifier.
func (p *Poller) finished(snap Snapshot) {
	stats := snap.Stats()
	p.log.Info("batch finished",
		zap.String("batch_id", snap.ID),
		zap.String("status", string(snap.Status)),
		zap.Int("polls", snap.Polls),
		zap.Int("completed", stats.Completed),
		zap.Int("failed", stats.Failed),
		zap.String("success_rate", stats.SuccessRate.StringFixed(1)),
		zap.Error(snap.Err),
	)
	if p.notifier == nil {
		return
	}
	err := routine.Safe(p.log, "batch-notify", func() error {
		return p.notifier.Notify(context.Background(), snap)
	})
	if err != nil {
		p.log.Error("batch notification failed", zap.String("batch_id", snap.ID), zap.Error(err))
	}
}
