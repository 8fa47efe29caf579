package pipeline

import (
	"context"

	"github.com/specialistvlad/ovipipe/internal/interval"
	"github.com/specialistvlad/ovipipe/internal/refgraph"
	"github.com/specialistvlad/ovipipe/internal/tasks"
)

// Modifier is a reusable, parameterized transformation. The same modifier
// may be applied at several pipeline positions; each position is a
// ModifierApplication and the modifier must not keep per-position state
// outside of it.
//
// Evaluate transforms the input state of app. It may run its computation on
// app.Env().Workers and is allowed to fail or panic: the application turns
// either into an error state.
//
// EvaluateSynchronous updates state in place with a cheap preview result. It
// must not block.
//
// InputCachingHints returns the intervals the modifier needs upstream stages
// to keep cached, given the intervals requested from it.
// RestrictInputValidityInterval narrows the unchanged interval of an upstream
// change when the output at a time also depends on other times.
//
// ModifierBase provides the default implementation of everything except
// Evaluate.
type Modifier interface {
	refgraph.Object
	TypeName() string
	Title() string
	IsEnabled() bool
	SetEnabled(enabled bool)
	Status() Status
	SetStatus(s Status)

	Evaluate(ctx context.Context, req Request, app *ModifierApplication, input FlowState) tasks.Future[FlowState]
	EvaluateSynchronous(ctx context.Context, req Request, app *ModifierApplication, state *FlowState)
	ValidityInterval(req Request, app *ModifierApplication) interval.Interval
	InputCachingHints(intervals []interval.Interval, app *ModifierApplication) []interval.Interval
	RestrictInputValidityInterval(iv interval.Interval) interval.Interval
	NumberOfOutputFrames(app *ModifierApplication, inputFrames int) int
	AnimationTimeToSourceFrame(app *ModifierApplication, t interval.Time, frame int) int
	SourceFrameToAnimationTime(app *ModifierApplication, frame int, t interval.Time) interval.Time
	PerformPreliminaryUpdateAfterChange() bool
}

var (
	modifierEnabledField = refgraph.FieldDescriptor{Name: "enabled", ChangeEvent: refgraph.TargetEnabledOrDisabled}
	modifierTitleField   = refgraph.FieldDescriptor{Name: "title", Flags: refgraph.NoChangeMessage, ChangeEvent: refgraph.TitleChanged}
)

// ModifierBase is embedded by modifier implementations.
type ModifierBase struct {
	refgraph.Target
	typeName string
	enabled  refgraph.Property[bool]
	title    refgraph.Property[string]
	status   statusField
}

// InitModifier sets the type name and the initial title. The modifier starts
// out enabled.
func (m *ModifierBase) InitModifier(typeName, title string) {
	m.typeName = typeName
	m.enabled.Init(&modifierEnabledField, true)
	m.title.Init(&modifierTitleField, title)
}

// TypeName returns the registered type of the modifier.
func (m *ModifierBase) TypeName() string { return m.typeName }

// Title returns the display title.
func (m *ModifierBase) Title() string { return m.title.Get() }

// SetTitle changes the display title.
func (m *ModifierBase) SetTitle(title string) { m.title.Set(m, title) }

// IsEnabled reports whether the modifier is switched on.
func (m *ModifierBase) IsEnabled() bool { return m.enabled.Get() }

// SetEnabled switches the modifier on or off.
func (m *ModifierBase) SetEnabled(enabled bool) { m.enabled.Set(m, enabled) }

// Status returns the status last reported for the modifier.
func (m *ModifierBase) Status() Status { return m.status.get() }

// SetStatus records a status for display.
func (m *ModifierBase) SetStatus(s Status) { m.status.set(&m.Target, s) }

// Applications returns the pipeline positions the modifier is applied at.
func (m *ModifierBase) Applications() []*ModifierApplication {
	var apps []*ModifierApplication
	for _, dep := range m.Dependents() {
		if app, ok := dep.(*ModifierApplication); ok {
			apps = append(apps, app)
		}
	}
	return apps
}

// EvaluateSynchronous leaves the state untouched.
func (m *ModifierBase) EvaluateSynchronous(context.Context, Request, *ModifierApplication, *FlowState) {
}

// ValidityInterval returns the infinite interval.
func (m *ModifierBase) ValidityInterval(Request, *ModifierApplication) interval.Interval {
	return interval.Infinite()
}

// InputCachingHints requests nothing beyond what was requested downstream.
func (m *ModifierBase) InputCachingHints(intervals []interval.Interval, _ *ModifierApplication) []interval.Interval {
	return intervals
}

// RestrictInputValidityInterval returns iv unchanged.
func (m *ModifierBase) RestrictInputValidityInterval(iv interval.Interval) interval.Interval {
	return iv
}

// NumberOfOutputFrames returns the number of input frames.
func (m *ModifierBase) NumberOfOutputFrames(_ *ModifierApplication, inputFrames int) int {
	return inputFrames
}

// AnimationTimeToSourceFrame returns frame unchanged.
func (m *ModifierBase) AnimationTimeToSourceFrame(_ *ModifierApplication, _ interval.Time, frame int) int {
	return frame
}

// SourceFrameToAnimationTime returns t unchanged.
func (m *ModifierBase) SourceFrameToAnimationTime(_ *ModifierApplication, _ int, t interval.Time) interval.Time {
	return t
}

// PerformPreliminaryUpdateAfterChange reports false: parameter changes do
// not produce a preview.
func (m *ModifierBase) PerformPreliminaryUpdateAfterChange() bool { return false }
