// Package treemap implements the squarified treemap layout
// (Bruls/Huizing/van Wijk): a pure mapping from an ordered list of sizes and
// a target rectangle to one rectangle per size, keeping aspect ratios as
// close to 1 as the greedy row construction allows.
package treemap

import "math"

// DefaultMaxItems caps how many items a single layout call places. The cap
// keeps dense directories readable and interactive; items beyond it are
// deliberately dropped from the output, and any "+N more" affordance is the
// renderer's decision.
const DefaultMaxItems = 50

// Rect is one laid-out rectangle in the caller's coordinate space.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Area returns W*H.
func (r Rect) Area() float64 { return r.W * r.H }

// Options tunes a layout call. The zero value uses DefaultMaxItems.
type Options struct {
	MaxItems int
}

// Layout places sizes into bounds. Callers pre-sort descending; the
// algorithm is order-sensitive. Zero sizes are filtered out before layout
// and the list is truncated at the item cap, so the output corresponds
// positionally to the filtered, capped input. A zero-area bounds or an
// all-zero input yields nil.
func Layout(sizes []int64, bounds Rect, opts Options) []Rect {
	maxItems := opts.MaxItems
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	if bounds.W <= 0 || bounds.H <= 0 {
		return nil
	}

	filtered := make([]int64, 0, len(sizes))
	for _, s := range sizes {
		if s <= 0 {
			continue
		}
		filtered = append(filtered, s)
		if len(filtered) == maxItems {
			break
		}
	}
	if len(filtered) == 0 {
		return nil
	}

	var total int64
	for _, s := range filtered {
		total += s
	}

	// Normalize item sizes to absolute areas within bounds.
	scale := bounds.Area() / float64(total)
	areas := make([]float64, len(filtered))
	for i, s := range filtered {
		areas[i] = float64(s) * scale
	}
	return squarify(areas, bounds)
}

// squarify peels rows off the remaining rectangle. Each row runs along the
// shorter side: wide remainders get a vertical strip on the left, tall ones
// a horizontal strip on top. Items join the current row while they do not
// strictly worsen its worst aspect ratio.
func squarify(areas []float64, bounds Rect) []Rect {
	out := make([]Rect, 0, len(areas))
	x, y, w, h := bounds.X, bounds.Y, bounds.W, bounds.H

	i := 0
	for i < len(areas) {
		length := math.Min(w, h)
		if length <= 0 {
			break
		}

		// Start the row with the next item, then extend greedily.
		rowSum := areas[i]
		rowMin := areas[i]
		rowMax := areas[i]
		j := i + 1
		for j < len(areas) {
			a := areas[j]
			if worst(rowSum+a, math.Min(rowMin, a), math.Max(rowMax, a), length) >
				worst(rowSum, rowMin, rowMax, length) {
				break
			}
			rowSum += a
			rowMin = math.Min(rowMin, a)
			rowMax = math.Max(rowMax, a)
			j++
		}

		thickness := rowSum / length
		if w >= h {
			// Vertical strip on the left, items stacked top to bottom.
			off := y
			for k := i; k < j; k++ {
				bh := areas[k] / thickness
				out = append(out, Rect{X: x, Y: off, W: thickness, H: bh})
				off += bh
			}
			x += thickness
			w -= thickness
		} else {
			// Horizontal strip on top, items laid left to right.
			off := x
			for k := i; k < j; k++ {
				bw := areas[k] / thickness
				out = append(out, Rect{X: off, Y: y, W: bw, H: thickness})
				off += bw
			}
			y += thickness
			h -= thickness
		}
		i = j
	}
	return out
}

// worst is the worst aspect ratio a row of total area s, extremes amin/amax,
// laid along a side of the given length would produce; always >= 1.
func worst(s, amin, amax, length float64) float64 {
	t := s / length
	return math.Max(amax/(t*t), (t*t)/amin)
}
