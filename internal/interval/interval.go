package interval

import (
	"fmt"
	"math"
)

// Time is a point on the animation time line, measured in ticks.
type Time int64

const (
	// NegativeInfinity is the smallest representable time.
	NegativeInfinity Time = math.MinInt64
	// PositiveInfinity is the largest representable time.
	PositiveInfinity Time = math.MaxInt64
)

// Interval is a closed time range [Start, End].
//
// The zero value is the instant at time 0. Use Empty for the empty interval.
type Interval struct {
	start Time
	end   Time
}

// New returns the interval [start, end]. If start > end the result is empty.
func New(start, end Time) Interval {
	if start > end {
		return Empty()
	}
	return Interval{start: start, end: end}
}

// Instant returns the interval that contains only t.
func Instant(t Time) Interval {
	return Interval{start: t, end: t}
}

// Infinite returns the interval that contains every time.
func Infinite() Interval {
	return Interval{start: NegativeInfinity, end: PositiveInfinity}
}

// Empty returns the canonical empty interval.
func Empty() Interval {
	return Interval{start: PositiveInfinity, end: NegativeInfinity}
}

// Start returns the lower bound. It is meaningless for an empty interval.
func (i Interval) Start() Time { return i.start }

// End returns the upper bound. It is meaningless for an empty interval.
func (i Interval) End() Time { return i.end }

// IsEmpty reports whether the interval contains no time at all.
func (i Interval) IsEmpty() bool { return i.start > i.end }

// IsInfinite reports whether the interval covers the whole time line.
func (i Interval) IsInfinite() bool {
	return i.start == NegativeInfinity && i.end == PositiveInfinity
}

// Contains reports whether t lies inside the interval.
func (i Interval) Contains(t Time) bool {
	return i.start <= t && t <= i.end
}

// ContainsInterval reports whether o is a subset of i. The empty interval is
// a subset of every interval.
func (i Interval) ContainsInterval(o Interval) bool {
	if o.IsEmpty() {
		return true
	}
	return i.start <= o.start && o.end <= i.end
}

// Overlaps reports whether i and o share at least one time.
func (i Interval) Overlaps(o Interval) bool {
	return !i.Intersect(o).IsEmpty()
}

// Intersect returns the times contained in both i and o.
func (i Interval) Intersect(o Interval) Interval {
	if i.IsEmpty() || o.IsEmpty() {
		return Empty()
	}
	return New(max(i.start, o.start), min(i.end, o.end))
}

// Union returns the smallest interval that contains both i and o.
func (i Interval) Union(o Interval) Interval {
	if i.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return i
	}
	return Interval{start: min(i.start, o.start), end: max(i.end, o.end)}
}

// Subtract returns the parts of i that are not covered by o. The result has
// zero, one or two intervals, ordered by start time.
func (i Interval) Subtract(o Interval) []Interval {
	if i.IsEmpty() {
		return nil
	}
	if !i.Overlaps(o) {
		return []Interval{i}
	}
	var parts []Interval
	if o.start > i.start {
		parts = append(parts, Interval{start: i.start, end: o.start - 1})
	}
	if o.end < i.end {
		parts = append(parts, Interval{start: o.end + 1, end: i.end})
	}
	return parts
}

// Equal reports whether both intervals contain exactly the same times.
func (i Interval) Equal(o Interval) bool {
	if i.IsEmpty() || o.IsEmpty() {
		return i.IsEmpty() == o.IsEmpty()
	}
	return i == o
}

func (i Interval) String() string {
	switch {
	case i.IsEmpty():
		return "empty"
	case i.IsInfinite():
		return "infinite"
	}
	return fmt.Sprintf("[%s, %s]", i.start, i.end)
}

func (t Time) String() string {
	switch t {
	case NegativeInfinity:
		return "-inf"
	case PositiveInfinity:
		return "+inf"
	}
	return fmt.Sprintf("%d", int64(t))
}
