package interval

import (
	"sort"
	"time"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func New(start, end time.Time) Interval {
	return Interval{Start: start, End: end}
}

// Valid reports whether Start is strictly before End.
func (i Interval) Valid() bool {
	return i.Start.Before(i.End)
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Overlaps reports whether a and b intersect. Touching endpoints do not count.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Pair holds the indexes of two overlapping intervals in the input slice.
type Pair struct {
	A, B int
}

// FindOverlaps returns every overlapping pair in items. Input order is preserved
// in the returned indexes; the slice itself is not modified.
func FindOverlaps(items []Interval) []Pair {
	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(x, y int) bool {
		return items[order[x]].Start.Before(items[order[y]].Start)
	})

	var pairs []Pair
	for x := 0; x < len(order); x++ {
		a := items[order[x]]
		for y := x + 1; y < len(order); y++ {
			b := items[order[y]]
			// sorted by start: nothing further right can reach back into a
			if !b.Start.Before(a.End) {
				break
			}
			if Overlaps(a, b) {
				pairs = append(pairs, Pair{A: order[x], B: order[y]})
			}
		}
	}
	return pairs
}
