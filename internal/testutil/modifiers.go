package testutil

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/ovipipe/internal/interval"
	"github.com/specialistvlad/ovipipe/internal/pipeline"
	"github.com/specialistvlad/ovipipe/internal/refgraph"
	"github.com/specialistvlad/ovipipe/internal/tasks"
)

var failureField = refgraph.FieldDescriptor{Name: "failure"}

// CountingModifier is an instrumented modifier. It counts its evaluations and
// can be made to block, fail or panic. By default it leaves the data alone
// and sets the attribute "<title>.calls" to the number of evaluations.
type CountingModifier struct {
	pipeline.ModifierBase
	calls     atomic.Int64
	syncCalls atomic.Int64
	failure   refgraph.Property[string]

	mu          sync.Mutex
	gate        chan struct{}
	started     chan struct{}
	panicWith   any
	validity    interval.Interval
	hints       []interval.Interval
	restrict    *interval.Interval
	preliminary bool
	transform   func(pipeline.FlowState) (pipeline.FlowState, error)
}

// CountingOption configures a CountingModifier.
type CountingOption func(*CountingModifier)

// WithGate makes evaluations wait on a new goroutine until gate is closed.
func WithGate(gate chan struct{}) CountingOption {
	return func(m *CountingModifier) { m.gate = gate }
}

// WithStarted makes every evaluation send on started once it runs.
func WithStarted(started chan struct{}) CountingOption {
	return func(m *CountingModifier) { m.started = started }
}

// PanicWith makes evaluations panic with v.
func PanicWith(v any) CountingOption {
	return func(m *CountingModifier) { m.panicWith = v }
}

// WithValidity limits the validity the modifier reports.
func WithValidity(iv interval.Interval) CountingOption {
	return func(m *CountingModifier) { m.validity = iv }
}

// WithInputHints adds caching hints for upstream stages.
func WithInputHints(ivs ...interval.Interval) CountingOption {
	return func(m *CountingModifier) { m.hints = ivs }
}

// RestrictInputTo narrows the unchanged interval of upstream changes.
func RestrictInputTo(iv interval.Interval) CountingOption {
	return func(m *CountingModifier) { m.restrict = &iv }
}

// WithPreliminaryUpdates makes parameter changes announce a preview.
func WithPreliminaryUpdates() CountingOption {
	return func(m *CountingModifier) { m.preliminary = true }
}

// WithTransform replaces the default transformation.
func WithTransform(fn func(pipeline.FlowState) (pipeline.FlowState, error)) CountingOption {
	return func(m *CountingModifier) { m.transform = fn }
}

// NewCountingModifier creates an enabled counting modifier.
func NewCountingModifier(env *pipeline.Env, title string, opts ...CountingOption) *CountingModifier {
	m := &CountingModifier{validity: interval.Infinite()}
	m.InitModifier("counting", title)
	m.failure.Init(&failureField, "")
	for _, opt := range opts {
		opt(m)
	}
	env.Graph.Add(m)
	return m
}

// Calls returns the number of asynchronous evaluations.
func (m *CountingModifier) Calls() int64 { return m.calls.Load() }

// SyncCalls returns the number of synchronous evaluations.
func (m *CountingModifier) SyncCalls() int64 { return m.syncCalls.Load() }

// SetFailure makes further evaluations fail with msg. An empty msg clears
// the failure. Like any parameter change it invalidates downstream caches.
func (m *CountingModifier) SetFailure(msg string) { m.failure.Set(m, msg) }

// Evaluate implements pipeline.Modifier.
func (m *CountingModifier) Evaluate(ctx context.Context, req pipeline.Request, app *pipeline.ModifierApplication, input pipeline.FlowState) tasks.Future[pipeline.FlowState] {
	n := m.calls.Add(1)
	m.mu.Lock()
	gate, started, panicWith := m.gate, m.started, m.panicWith
	m.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if panicWith != nil {
		panic(panicWith)
	}
	if gate == nil {
		return tasks.Run(tasks.Inline, func() (pipeline.FlowState, error) { return m.apply(input, n) })
	}
	return tasks.Run(Goroutine, func() (pipeline.FlowState, error) {
		select {
		case <-gate:
		case <-ctx.Done():
			return pipeline.FlowState{}, ctx.Err()
		}
		return m.apply(input, n)
	})
}

// EvaluateSynchronous implements pipeline.Modifier.
func (m *CountingModifier) EvaluateSynchronous(_ context.Context, _ pipeline.Request, _ *pipeline.ModifierApplication, st *pipeline.FlowState) {
	m.syncCalls.Add(1)
	_ = st.SetAttribute(m.Title()+".preview", cty.True)
}

func (m *CountingModifier) apply(input pipeline.FlowState, n int64) (pipeline.FlowState, error) {
	if msg := m.failure.Get(); msg != "" {
		return pipeline.FlowState{}, &modifierError{msg: msg}
	}
	out := input
	if m.transform != nil {
		var err error
		if out, err = m.transform(input); err != nil {
			return pipeline.FlowState{}, err
		}
	}
	if err := out.SetAttribute(m.Title()+".calls", cty.NumberIntVal(n)); err != nil {
		return pipeline.FlowState{}, err
	}
	out.IntersectValidity(m.validity)
	return out, nil
}

// ValidityInterval implements pipeline.Modifier.
func (m *CountingModifier) ValidityInterval(pipeline.Request, *pipeline.ModifierApplication) interval.Interval {
	return m.validity
}

// InputCachingHints implements pipeline.Modifier.
func (m *CountingModifier) InputCachingHints(intervals []interval.Interval, _ *pipeline.ModifierApplication) []interval.Interval {
	return append(intervals, m.hints...)
}

// RestrictInputValidityInterval implements pipeline.Modifier.
func (m *CountingModifier) RestrictInputValidityInterval(iv interval.Interval) interval.Interval {
	if m.restrict == nil {
		return iv
	}
	return iv.Intersect(*m.restrict)
}

// PerformPreliminaryUpdateAfterChange implements pipeline.Modifier.
func (m *CountingModifier) PerformPreliminaryUpdateAfterChange() bool { return m.preliminary }

type modifierError struct{ msg string }

func (e *modifierError) Error() string { return e.msg }
