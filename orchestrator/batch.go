package orchestrator

import (
	"context"
	"encoding/json"

	"github.com/dailyyoga/contractflow/batch"
	"github.com/dailyyoga/contractflow/schedule"
	"github.com/dailyyoga/contractflow/vlist"
)

// SubmitBatch submits items and starts polling them.
func (o *Orchestrator) SubmitBatch(ctx context.Context, items []json.RawMessage) (*batch.Job, error) {
	return o.poller.Submit(ctx, items)
}

// SubmitValues encodes each value as one batch item and submits them.
func (o *Orchestrator) SubmitValues(ctx context.Context, values ...any) (*batch.Job, error) {
	items := make([]json.RawMessage, 0, len(values))
	for _, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return o.poller.Submit(ctx, items)
}

// Job returns a tracked job.
func (o *Orchestrator) Job(id string) (*batch.Job, bool) {
	return o.poller.Job(id)
}

// Forget cancels a job if it is still running and stops tracking it.
func (o *Orchestrator) Forget(jobID string) bool {
	return o.poller.Forget(jobID)
}

// JobView renders the items of one batch job as a virtual list and keeps the
// rendering in sync with the job's updates.
type JobView[N any] struct {
	job    *batch.Job
	render *vlist.Renderer[batch.Item, N]
	handle *schedule.Handle
}

// NewJobView starts rendering job. The view becomes the reader of
// job.Updates(), so a job should have at most one view.
func NewJobView[N any](o *Orchestrator, job *batch.Job, render vlist.RenderFunc[batch.Item, N], onFrame func(vlist.Frame[N])) (*JobView[N], error) {
	r, err := vlist.NewRenderer(o.log, o.reg, &o.cfg.VList, render, onFrame)
	if err != nil {
		return nil, err
	}
	r.Update(job.Snapshot().Items)

	updates := job.Updates()
	h, err := o.reg.Go("job-view:"+job.ID(), func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-updates:
				if !ok {
					return
				}
				r.Update(snap.Items)
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return &JobView[N]{job: job, render: r, handle: h}, nil
}

// Job returns the viewed job.
func (v *JobView[N]) Job() *batch.Job { return v.job }

// Frame returns the latest rendered frame.
func (v *JobView[N]) Frame() vlist.Frame[N] { return v.render.Frame() }

// Scroll forwards a scroll event to the renderer.
func (v *JobView[N]) Scroll(offset float64) (vlist.Frame[N], bool) {
	return v.render.Scroll(offset)
}

// Resize forwards a viewport resize to the renderer.
func (v *JobView[N]) Resize(height float64) vlist.Frame[N] {
	return v.render.Resize(height)
}

// Done is closed once the view stopped following the job, which happens
// after the terminal snapshot has been rendered.
func (v *JobView[N]) Done() <-chan struct{} { return v.handle.Done() }

// Close stops following the job and cancels a pending trailing render.
func (v *JobView[N]) Close() {
	v.handle.Stop()
	v.render.Close()
}
