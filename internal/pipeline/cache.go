package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/specialistvlad/ovipipe/internal/ctxlog"
	"github.com/specialistvlad/ovipipe/internal/interval"
	"github.com/specialistvlad/ovipipe/internal/metrics"
	"github.com/specialistvlad/ovipipe/internal/tasks"
)

type cacheEntry struct {
	state        FlowState
	breakOnError bool
}

type evaluation struct {
	time         interval.Time
	breakOnError bool
	generation   uint64
	shared       *tasks.Shared[FlowState]
}

// Cache stores the evaluated states of one node, each with its validity
// interval, plus a separate preview slot for synchronous evaluation.
//
// At most one computation per time runs at once: concurrent requests join
// the computation that is in flight. Every invalidation bumps a generation
// counter, and a computation that finishes under an older generation
// delivers its result to its waiters but is not stored.
type Cache struct {
	owner Evaluator
	role  string
	rec   *metrics.CacheRecorder

	mu            sync.Mutex
	entries       []cacheEntry
	inFlight      []*evaluation
	generation    uint64
	preview       FlowState
	hasPreview    bool
	precomputeAll bool
	lastRequest   Request
	onUpdated     func()
}

// NewCache creates a cache that computes missing states with owner. role
// names the cache in logs and metrics.
func NewCache(owner Evaluator, role string, m *metrics.Metrics) *Cache {
	return &Cache{owner: owner, role: role, rec: m.Cache(role)}
}

// OnUpdated registers fn to run after a new state was stored.
func (c *Cache) OnUpdated(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUpdated = fn
}

// SetPrecomputeAllFrames switches between keeping every evaluated state and
// keeping only the states the latest request asked for.
func (c *Cache) SetPrecomputeAllFrames(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.precomputeAll = on
	if !on {
		c.pruneLocked(c.lastRequest)
	}
}

// PrecomputeAllFrames reports whether the cache keeps every evaluated state.
func (c *Cache) PrecomputeAllFrames() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.precomputeAll
}

// EvaluatePipeline returns the state for req, computing it only if no
// stored state is valid at req.Time and no computation for it is in flight.
func (c *Cache) EvaluatePipeline(ctx context.Context, req Request) tasks.Future[FlowState] {
	logger := ctxlog.FromContext(ctx).With("cache", c.role, "time", req.Time, "eval_id", req.EvalID)

	c.mu.Lock()
	if st, ok := c.lookupLocked(req.Time, req.BreakOnError); ok {
		c.mu.Unlock()
		c.rec.Hit()
		logger.Debug("Cache hit.", "validity", st.Validity)
		return tasks.Resolved(st)
	}
	for _, ev := range c.inFlight {
		if ev.time != req.Time || ev.breakOnError != req.BreakOnError {
			continue
		}
		if f, ok := ev.shared.Subscribe(); ok {
			c.mu.Unlock()
			c.rec.Join()
			logger.Debug("Joined in-flight evaluation.")
			return f
		}
	}
	p, src := tasks.NewPromise[FlowState]()
	ev := &evaluation{
		time:         req.Time,
		breakOnError: req.BreakOnError,
		generation:   c.generation,
		shared:       tasks.Share(src),
	}
	c.inFlight = append(c.inFlight, ev)
	sub, _ := ev.shared.Subscribe()
	c.mu.Unlock()

	c.rec.Miss()
	logger.Debug("Cache miss, starting evaluation.")
	start := time.Now()
	inner := c.callOwner(ctx, req)
	p.OnCancel(inner.Cancel)
	inner.OnFinished(tasks.Inline, func() {
		c.rec.Observe(start)
		if inner.IsCanceled() {
			c.finish(ev, req, FlowState{}, false)
			p.Cancel()
			logger.Debug("Evaluation canceled.")
			return
		}
		st, err := inner.Result()
		if err != nil {
			logger.Warn("Evaluation failed.", "error", err)
			st = errorState(err)
		}
		stored := c.finish(ev, req, st, true)
		p.Resolve(st)
		if stored {
			c.notifyUpdated()
		}
	})
	return sub
}

// EvaluatePipelineSynchronous returns a state for req without waiting: a
// stored state valid at req.Time, else the preview if it is valid, else a
// fresh synchronous evaluation of the owner.
func (c *Cache) EvaluatePipelineSynchronous(ctx context.Context, req Request) FlowState {
	c.mu.Lock()
	if st, ok := c.lookupLocked(req.Time, req.BreakOnError); ok {
		c.preview = st
		c.hasPreview = true
		c.mu.Unlock()
		return st
	}
	if c.hasPreview && c.preview.Validity.Contains(req.Time) {
		st := c.preview
		c.mu.Unlock()
		return st
	}
	c.mu.Unlock()

	st := c.callOwnerSynchronous(ctx, req)

	c.mu.Lock()
	c.preview = st
	c.hasPreview = true
	c.mu.Unlock()
	return st
}

// Invalidate drops everything outside keep. Entries are narrowed to their
// intersection with keep and removed when it is empty. The preview slot is
// cleared if resetPreview is set and narrowed otherwise. Computations in
// flight will not be stored.
func (c *Cache) Invalidate(keep interval.Interval, resetPreview bool) {
	c.mu.Lock()
	c.generation++
	c.inFlight = nil
	kept := c.entries[:0]
	for _, e := range c.entries {
		e.state.Validity = e.state.Validity.Intersect(keep)
		if !e.state.Validity.IsEmpty() {
			kept = append(kept, e)
		}
	}
	clear(c.entries[len(kept):])
	c.entries = kept
	if resetPreview {
		c.preview = FlowState{}
		c.hasPreview = false
	} else {
		c.preview.Validity = c.preview.Validity.Intersect(keep)
	}
	c.mu.Unlock()
	c.rec.Invalidated()
}

// InvalidateRegion removes exactly the times in region from the cache. An
// entry that contains region strictly inside is split in two.
func (c *Cache) InvalidateRegion(region interval.Interval) {
	c.mu.Lock()
	c.generation++
	c.inFlight = nil
	var entries []cacheEntry
	for _, e := range c.entries {
		for _, part := range e.state.Validity.Subtract(region) {
			split := e
			split.state.Validity = part
			entries = append(entries, split)
		}
	}
	c.entries = entries
	if c.preview.Validity.Overlaps(region) {
		c.preview.Validity = interval.Empty()
	}
	c.mu.Unlock()
	c.rec.Invalidated()
}

// InvalidateSynchronousState clears only the preview slot.
func (c *Cache) InvalidateSynchronousState() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.preview = FlowState{}
	c.hasPreview = false
}

// Lookup returns the stored state valid at t for requests with the given
// break-on-error mode.
func (c *Cache) Lookup(t interval.Time, breakOnError bool) (FlowState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookupLocked(t, breakOnError)
}

// Validity returns the validity intervals of all stored states.
func (c *Cache) Validity() []interval.Interval {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]interval.Interval, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.state.Validity
	}
	return out
}

// InFlight returns the number of computations that may still be stored.
func (c *Cache) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inFlight)
}

func (c *Cache) lookupLocked(t interval.Time, breakOnError bool) (FlowState, bool) {
	for _, e := range c.entries {
		if e.breakOnError == breakOnError && e.state.Validity.Contains(t) {
			return e.state, true
		}
	}
	return FlowState{}, false
}

// finish retires ev and stores st if it is still current. It reports
// whether st was stored.
func (c *Cache) finish(ev *evaluation, req Request, st FlowState, store bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, other := range c.inFlight {
		if other == ev {
			c.inFlight = append(c.inFlight[:i:i], c.inFlight[i+1:]...)
			break
		}
	}
	if !store {
		return false
	}
	if ev.generation != c.generation {
		c.rec.Stale()
		return false
	}
	if !st.Validity.Contains(req.Time) {
		return false
	}
	kept := c.entries[:0]
	for _, e := range c.entries {
		if e.breakOnError != req.BreakOnError || !e.state.Validity.Overlaps(st.Validity) {
			kept = append(kept, e)
		}
	}
	clear(c.entries[len(kept):])
	c.entries = append(kept, cacheEntry{state: st, breakOnError: req.BreakOnError})
	c.lastRequest = req
	c.pruneLocked(req)
	return true
}

func (c *Cache) pruneLocked(req Request) {
	if c.precomputeAll {
		return
	}
	kept := c.entries[:0]
	for _, e := range c.entries {
		if req.keeps(e.state.Validity) {
			kept = append(kept, e)
		}
	}
	clear(c.entries[len(kept):])
	c.entries = kept
}

func (c *Cache) notifyUpdated() {
	c.mu.Lock()
	fn := c.onUpdated
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *Cache) callOwner(ctx context.Context, req Request) (f tasks.Future[FlowState]) {
	defer func() {
		if r := recover(); r != nil {
			f = tasks.Failed[FlowState](tasks.NewPanicError(r))
		}
	}()
	return c.owner.EvaluateInternal(ctx, req)
}

func (c *Cache) callOwnerSynchronous(ctx context.Context, req Request) (st FlowState) {
	defer func() {
		if r := recover(); r != nil {
			st = errorState(tasks.NewPanicError(r))
		}
	}()
	return c.owner.EvaluateInternalSynchronous(ctx, req)
}
