// Package vlist computes and renders the visible window of a long list.
//
// Only the items inside the window are materialized. The rendered block is
// offset by Start*ItemHeight so the scrollable extent stays
// itemCount*ItemHeight without rendering every item.
package vlist

import "math"

// Viewport is the scroll geometry of a list.
type Viewport struct {
	ScrollOffset   float64
	ItemHeight     float64
	ViewportHeight float64
	// BufferSize is the number of extra items rendered above and below the
	// visible range
	BufferSize int
}

// Window is the half-open index range [Start, End) to materialize.
type Window struct {
	Start int
	End   int
}

// Len returns the number of items in the window.
func (w Window) Len() int { return w.End - w.Start }

// Contains reports whether index i is materialized.
func (w Window) Contains(i int) bool { return i >= w.Start && i < w.End }

// Compute returns the window for itemCount items:
//
//	start = max(0, floor(offset/itemHeight) - buffer)
//	end   = min(itemCount, ceil((offset+viewportHeight)/itemHeight) + buffer)
//
// The result always satisfies 0 <= Start <= End <= itemCount. NaN offsets
// and heights count as 0; infinite ones clamp to the list bounds.
func Compute(itemCount int, vp Viewport) Window {
	if itemCount <= 0 || !(vp.ItemHeight > 0) || math.IsInf(vp.ItemHeight, 1) {
		return Window{}
	}
	offset := nonNegative(vp.ScrollOffset)
	height := nonNegative(vp.ViewportHeight)
	buffer := min(max(0, vp.BufferSize), itemCount)

	limit := itemCount + buffer
	start := max(0, index(math.Floor(offset/vp.ItemHeight), limit)-buffer)
	end := min(itemCount, index(math.Ceil((offset+height)/vp.ItemHeight), limit)+buffer)
	if start > end {
		start = end
	}
	return Window{Start: start, End: end}
}

func nonNegative(f float64) float64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	return f
}

// index converts a row position to int, clamped to [0, limit] before the
// conversion so huge values never overflow.
func index(f float64, limit int) int {
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	return int(math.Min(f, float64(limit)))
}

// OffsetY is the vertical position of the first materialized item.
func OffsetY(w Window, itemHeight float64) float64 {
	return float64(w.Start) * itemHeight
}

// TotalHeight is the full scrollable extent of itemCount items.
func TotalHeight(itemCount int, itemHeight float64) float64 {
	return float64(itemCount) * itemHeight
}
