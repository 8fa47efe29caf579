package pipeline

import (
	"slices"

	"github.com/google/uuid"

	"github.com/specialistvlad/ovipipe/internal/interval"
)

// Request asks a node for its output at one animation time.
type Request struct {
	Time interval.Time
	// BreakOnError makes stages pass an upstream error state through
	// without running their modifier.
	BreakOnError bool
	// CachingIntervals are the time intervals the requester wants upstream
	// caches to keep.
	CachingIntervals []interval.Interval
	// EvalID correlates the log lines of one evaluation.
	EvalID string
}

// NewRequest returns a request for time t that breaks on errors and asks to
// cache only t itself.
func NewRequest(t interval.Time) Request {
	return Request{
		Time:             t,
		BreakOnError:     true,
		CachingIntervals: []interval.Interval{interval.Instant(t)},
		EvalID:           uuid.NewString(),
	}
}

// AtTime returns a copy of r for a different time. The caching intervals are
// kept so that a modifier looking at several times keeps all of them cached.
func (r Request) AtTime(t interval.Time) Request {
	r.Time = t
	r.CachingIntervals = slices.Clone(r.CachingIntervals)
	if !r.wantsCached(t) {
		r.CachingIntervals = append(r.CachingIntervals, interval.Instant(t))
	}
	return r
}

// WithCachingIntervals returns a copy of r with replaced caching intervals.
func (r Request) WithCachingIntervals(ivs []interval.Interval) Request {
	r.CachingIntervals = slices.Clone(ivs)
	return r
}

func (r Request) wantsCached(t interval.Time) bool {
	for _, iv := range r.CachingIntervals {
		if iv.Contains(t) {
			return true
		}
	}
	return false
}

// keeps reports whether a state valid over iv is worth keeping for r.
func (r Request) keeps(iv interval.Interval) bool {
	if iv.Contains(r.Time) {
		return true
	}
	for _, ci := range r.CachingIntervals {
		if ci.Overlaps(iv) {
			return true
		}
	}
	return false
}
