package batch

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dailyyoga/contractflow/api"
	"github.com/dailyyoga/contractflow/schedule"
	"github.com/smallnest/chanx"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusPolling   Status = "polling"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusTimedOut  Status = "timed_out"
)

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	default:
		return false
	}
}

// ItemStatus is the state of one item as reported by the service.
type ItemStatus string

const (
	ItemPending    ItemStatus = api.StatusPending
	ItemProcessing ItemStatus = api.StatusProcessing
	ItemCompleted  ItemStatus = api.StatusCompleted
	ItemFailed     ItemStatus = api.StatusFailed
)

// Terminal reports whether the item is finished.
func (s ItemStatus) Terminal() bool {
	return s == ItemCompleted || s == ItemFailed
}

// Item is one unit of work within a batch. A failed item is data, not an
// error of the job.
type Item struct {
	ID     string
	Status ItemStatus
	Result json.RawMessage
	Error  string
}

// Snapshot is an immutable view of a job.
type Snapshot struct {
	ID     string
	Status Status
	// Items holds the items reported so far, in first-seen order
	Items []Item
	// Total is the number of submitted items
	Total int
	// Polls is the number of status calls issued
	Polls int
	// FailedPolls counts status calls that could not be completed
	FailedPolls int
	SubmittedAt time.Time
	UpdatedAt   time.Time
	// Err is set when the job ended because of a transport failure or teardown
	Err error
}

// Job is a submitted batch and its poll loop.
type Job struct {
	id     string
	poller *Poller

	mu          sync.Mutex
	snap        Snapshot
	index       map[string]int
	consecutive int
	cancelled   bool
	handle      *schedule.Handle

	done          chan struct{}
	updates       *chanx.UnboundedChan[Snapshot]
	releaseStream context.CancelFunc
}

func newJob(p *Poller, id string, total int, now time.Time) *Job {
	ctx, cancel := context.WithCancel(context.Background())
	j := &Job{
		id:     id,
		poller: p,
		snap: Snapshot{
			ID:          id,
			Status:      StatusSubmitted,
			Total:       total,
			SubmittedAt: now,
			UpdatedAt:   now,
		},
		index:         make(map[string]int, total),
		done:          make(chan struct{}),
		updates:       chanx.NewUnboundedChan[Snapshot](ctx, total+2),
		releaseStream: cancel,
	}
	j.publishLocked()
	return j
}

// ID returns the server-assigned batch id.
func (j *Job) ID() string { return j.id }

// Snapshot returns the current state of the job.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.copyLocked()
}

// Status returns the current lifecycle state.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snap.Status
}

// Err returns the error that ended the job, if any.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snap.Err
}

// Updates streams a snapshot on every state change. The stream is closed after
// the terminal snapshot has been delivered, and released when the job is
// forgotten by its poller.
func (j *Job) Updates() <-chan Snapshot {
	return j.updates.Out
}

// Done is closed once the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job is terminal or ctx is cancelled.
func (j *Job) Wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-j.done:
		return j.Snapshot(), nil
	case <-ctx.Done():
		return j.Snapshot(), ctx.Err()
	}
}

// Cancel stops the job. No poll is scheduled afterwards, and the result of a
// status call already in flight is discarded. It reports whether the job was
// still running; calling it again is a no-op.
func (j *Job) Cancel() bool {
	j.mu.Lock()
	if j.snap.Status.Terminal() {
		j.mu.Unlock()
		return false
	}
	j.cancelled = true
	h := j.handle
	snap := j.finishLocked(StatusCancelled, nil)
	j.mu.Unlock()

	if h != nil {
		h.Stop()
	}
	j.poller.finished(snap)
	return true
}

// Stats summarizes item progress.
func (j *Job) Stats() Stats {
	return j.Snapshot().Stats()
}

// applyLocked merges a status response and reports whether the job is now
// terminal. Item statuses are taken from the service as-is.
func (j *Job) applyLocked(st *api.BatchStatus, now time.Time) bool {
	j.snap.Polls++
	j.consecutive = 0
	for _, it := range st.Items {
		item := Item{ID: it.ID, Status: ItemStatus(it.Status), Result: it.Result, Error: it.Error}
		if i, ok := j.index[it.ID]; ok {
			j.snap.Items[i] = item
			continue
		}
		j.index[it.ID] = len(j.snap.Items)
		j.snap.Items = append(j.snap.Items, item)
	}
	j.snap.UpdatedAt = now
	if j.snap.Status == StatusSubmitted {
		j.snap.Status = StatusPolling
	}
	return j.derivedLocked(st)
}

// derivedLocked decides whether the job is finished. A job completes or fails
// only once every submitted item is terminal, and fails if any item failed.
// A service-side failure that reports no items at all ends the job as failed.
// When the service reports the batch done and lists its whole total_count of
// items, all terminal, the job finishes even if it lists fewer items than
// were submitted; the missing ones fail it with ErrItemsUnreported.
func (j *Job) derivedLocked(st *api.BatchStatus) bool {
	if st.Status == api.StatusFailed && len(j.snap.Items) == 0 {
		j.finishLocked(StatusFailed, ErrBatchFailed)
		return true
	}
	failed := false
	for _, it := range j.snap.Items {
		if !it.Status.Terminal() {
			return false
		}
		if it.Status == ItemFailed {
			failed = true
		}
	}
	if missing := j.snap.Total - len(j.snap.Items); missing > 0 {
		serverDone := st.Status == api.StatusCompleted || st.Status == api.StatusFailed
		if !serverDone || st.TotalCount <= 0 || len(st.Items) < st.TotalCount {
			return false
		}
		j.finishLocked(StatusFailed, ErrItemsUnreported(missing))
		return true
	}
	if failed {
		j.finishLocked(StatusFailed, nil)
	} else {
		j.finishLocked(StatusCompleted, nil)
	}
	return true
}

// finishLocked moves the job to a terminal state exactly once and closes its
// streams.
func (j *Job) finishLocked(status Status, err error) Snapshot {
	j.snap.Status = status
	j.snap.Err = err
	j.snap.UpdatedAt = j.poller.clock.Now()
	j.publishLocked()
	close(j.updates.In)
	close(j.done)
	return j.copyLocked()
}

func (j *Job) publishLocked() {
	j.updates.In <- j.copyLocked()
}

func (j *Job) copyLocked() Snapshot {
	s := j.snap
	s.Items = append([]Item(nil), j.snap.Items...)
	return s
}
