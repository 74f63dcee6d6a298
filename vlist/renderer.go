package vlist

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dailyyoga/contractflow/logger"
	"github.com/dailyyoga/contractflow/schedule"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// RenderFunc materializes the item at index into a display node.
type RenderFunc[T, N any] func(index int, item T) N

// Frame is one rendered state of the list.
type Frame[N any] struct {
	Window
	// OffsetY positions the rendered block inside the scroll extent
	OffsetY float64
	// TotalHeight is the scroll extent of the whole collection
	TotalHeight float64
	// Nodes holds one node per index in [Start, End)
	Nodes []N
}

// Renderer keeps the visible window of items in sync with scroll and resize
// events. Scroll renders are throttled to one per frame interval: the first
// event renders immediately and later events within the interval collapse
// into one trailing render of the latest offset.
type Renderer[T, N any] struct {
	log      logger.Logger
	reg      *schedule.Registry
	clock    clockwork.Clock
	render   RenderFunc[T, N]
	onFrame  func(Frame[N])
	interval time.Duration

	mu         sync.Mutex
	items      []T
	vp         Viewport
	frame      Frame[N]
	dirty      bool
	lastRender time.Time
	trailing   *schedule.Handle
	renders    int
}

// NewRenderer creates a renderer for items. onFrame, when non-nil, receives
// every rendered frame.
func NewRenderer[T, N any](log logger.Logger, reg *schedule.Registry, cfg *Config, render RenderFunc[T, N], onFrame func(Frame[N])) (*Renderer[T, N], error) {
	cfg = cfg.MergeDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if reg == nil || render == nil {
		return nil, ErrInvalidConfig
	}
	return &Renderer[T, N]{
		log:      logger.Named(log, "vlist"),
		reg:      reg,
		clock:    reg.Clock(),
		render:   render,
		onFrame:  onFrame,
		interval: cfg.FrameInterval,
		vp: Viewport{
			ItemHeight:     cfg.ItemHeight,
			ViewportHeight: cfg.ViewportHeight,
			BufferSize:     cfg.BufferSize,
		},
		dirty: true,
	}, nil
}

// Update replaces the collection and re-renders the current window against it.
func (r *Renderer[T, N]) Update(items []T) Frame[N] {
	r.mu.Lock()
	r.items = slices.Clone(items)
	r.dirty = true
	f := r.renderLocked()
	r.mu.Unlock()
	r.emit(f)
	return f
}

// Resize changes the viewport height and re-renders immediately.
func (r *Renderer[T, N]) Resize(height float64) Frame[N] {
	r.mu.Lock()
	r.vp.ViewportHeight = nonNegative(height)
	f := r.renderLocked()
	r.mu.Unlock()
	r.emit(f)
	return f
}

// Scroll records a new scroll offset. It renders and returns the new frame
// when a frame interval has passed since the last render; otherwise it
// schedules a trailing render and returns the current frame and false.
func (r *Renderer[T, N]) Scroll(offset float64) (Frame[N], bool) {
	r.mu.Lock()
	r.vp.ScrollOffset = nonNegative(offset)

	elapsed := r.clock.Since(r.lastRender)
	if elapsed >= r.interval {
		f := r.renderLocked()
		r.mu.Unlock()
		r.emit(f)
		return f, true
	}

	if r.trailing == nil {
		h, err := r.reg.After("vlist-trailing", r.interval-elapsed, r.flush)
		if err != nil {
			r.log.Debug("trailing render not scheduled", zap.Error(err))
		} else {
			r.trailing = h
		}
	}
	f := r.frame
	r.mu.Unlock()
	return f, false
}

// Frame returns the most recently rendered frame.
func (r *Renderer[T, N]) Frame() Frame[N] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frame
}

// Viewport returns the current scroll geometry.
func (r *Renderer[T, N]) Viewport() Viewport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vp
}

// Renders returns how many frames have been rendered.
func (r *Renderer[T, N]) Renders() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.renders
}

// Close cancels a pending trailing render.
func (r *Renderer[T, N]) Close() {
	r.mu.Lock()
	h := r.trailing
	r.trailing = nil
	r.mu.Unlock()
	if h != nil {
		h.Stop()
	}
}

// flush is the trailing render of a throttled scroll burst.
func (r *Renderer[T, N]) flush(context.Context) error {
	r.mu.Lock()
	r.trailing = nil
	f := r.renderLocked()
	r.mu.Unlock()
	r.emit(f)
	return nil
}

func (r *Renderer[T, N]) renderLocked() Frame[N] {
	w := Compute(len(r.items), r.vp)
	f := Frame[N]{
		Window:      w,
		OffsetY:     OffsetY(w, r.vp.ItemHeight),
		TotalHeight: TotalHeight(len(r.items), r.vp.ItemHeight),
	}
	if !r.dirty && w == r.frame.Window {
		f.Nodes = r.frame.Nodes
	} else {
		f.Nodes = make([]N, 0, w.Len())
		for i := w.Start; i < w.End; i++ {
			f.Nodes = append(f.Nodes, r.render(i, r.items[i]))
		}
	}
	r.frame = f
	r.dirty = false
	r.lastRender = r.clock.Now()
	r.renders++
	return f
}

func (r *Renderer[T, N]) emit(f Frame[N]) {
	if r.onFrame != nil {
		r.onFrame(f)
	}
}
