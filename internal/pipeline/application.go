package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/ovipipe/internal/ctxlog"
	"github.com/specialistvlad/ovipipe/internal/interval"
	"github.com/specialistvlad/ovipipe/internal/refgraph"
	"github.com/specialistvlad/ovipipe/internal/tasks"
)

var (
	appModifierField = refgraph.FieldDescriptor{Name: "modifier"}
	appInputField    = refgraph.FieldDescriptor{Name: "input", ChangeEvent: refgraph.PipelineChanged}
	appGroupField    = refgraph.FieldDescriptor{Name: "modifierGroup", ChangeEvent: refgraph.TargetEnabledOrDisabled}
)

// ApplicationState is the evaluation mode of a ModifierApplication.
type ApplicationState int

const (
	// Disabled means the modifier or its group is switched off.
	Disabled ApplicationState = iota
	// EnabledNoOp means there is no modifier or no input to apply it to.
	EnabledNoOp
	// Active means evaluation runs the modifier through the cache.
	Active
)

func (s ApplicationState) String() string {
	switch s {
	case Disabled:
		return "disabled"
	case EnabledNoOp:
		return "no-op"
	case Active:
		return "active"
	}
	return fmt.Sprintf("ApplicationState(%d)", int(s))
}

// turnedOffText is the status of an application whose modifier is disabled.
const turnedOffText = "Modifier is currently turned off."

// ModifierApplication applies a Modifier to the output of its input node at
// one position of a pipeline.
type ModifierApplication struct {
	CachingNode
	modifier refgraph.Ref[Modifier]
	input    refgraph.Ref[Node]
	group    refgraph.Ref[*ModifierGroup]
}

// NewModifierApplication creates an application of mod to the output of
// input. Either may be nil and set later.
func NewModifierApplication(env *Env, mod Modifier, input Node) (*ModifierApplication, error) {
	a := &ModifierApplication{}
	a.modifier.Init(&appModifierField)
	a.input.Init(&appInputField)
	a.group.Init(&appGroupField)
	env.Graph.Add(a)
	a.InitCaching(env, a, "modifier")

	if mod != nil {
		if err := a.SetModifier(mod); err != nil {
			a.Delete()
			return nil, err
		}
	}
	if input != nil {
		if err := a.SetInput(input); err != nil {
			a.Delete()
			return nil, err
		}
	}
	return a, nil
}

// TypeName names the type in logs.
func (a *ModifierApplication) TypeName() string { return "ModifierApplication" }

// Title returns the title of the modifier.
func (a *ModifierApplication) Title() string {
	if mod := a.Modifier(); mod != nil {
		return mod.Title()
	}
	return "Modifier application"
}

// Modifier returns the applied modifier, or nil.
func (a *ModifierApplication) Modifier() Modifier { return a.modifier.Get() }

// SetModifier replaces the applied modifier.
func (a *ModifierApplication) SetModifier(mod Modifier) error { return a.modifier.Set(a, mod) }

// Input returns the upstream node, or nil.
func (a *ModifierApplication) Input() Node { return a.input.Get() }

// SetInput connects the application to a different upstream node.
func (a *ModifierApplication) SetInput(n Node) error { return a.input.Set(a, n) }

// Group returns the modifier group the application belongs to, or nil.
func (a *ModifierApplication) Group() *ModifierGroup { return a.group.Get() }

// SetGroup moves the application into g. A nil g removes it from its group.
func (a *ModifierApplication) SetGroup(g *ModifierGroup) error { return a.group.Set(a, g) }

// IsEffectivelyEnabled reports whether the modifier and its group are both
// switched on.
func (a *ModifierApplication) IsEffectivelyEnabled() bool {
	mod := a.Modifier()
	if mod == nil || !mod.IsEnabled() {
		return false
	}
	if g := a.Group(); g != nil && !g.IsEnabled() {
		return false
	}
	return true
}

// State returns the current evaluation mode.
func (a *ModifierApplication) State() ApplicationState {
	mod := a.Modifier()
	if mod != nil && !a.IsEffectivelyEnabled() {
		return Disabled
	}
	if mod == nil || a.Input() == nil {
		return EnabledNoOp
	}
	return Active
}

// PipelineSource follows the inputs upstream to the first node that is not a
// modifier application.
func (a *ModifierApplication) PipelineSource() Node {
	cur := a.Input()
	for cur != nil {
		app, ok := cur.(*ModifierApplication)
		if !ok {
			return cur
		}
		cur = app.Input()
	}
	return nil
}

// Evaluate returns the output for req. Unless the application is active,
// the input's result is passed through without touching the cache.
func (a *ModifierApplication) Evaluate(ctx context.Context, req Request) tasks.Future[FlowState] {
	if a.State() != Active {
		return a.EvaluateInput(ctx, req)
	}
	return a.Cache().EvaluatePipeline(ctx, req)
}

// EvaluateSynchronous returns a preview of the output without waiting.
func (a *ModifierApplication) EvaluateSynchronous(ctx context.Context, req Request) FlowState {
	if a.State() != Active {
		if in := a.Input(); in != nil {
			return in.EvaluateSynchronous(ctx, req)
		}
		return EmptyState()
	}
	return a.Cache().EvaluatePipelineSynchronous(ctx, req)
}

// EvaluateInput evaluates the upstream node. Without an input the result is
// an empty state.
func (a *ModifierApplication) EvaluateInput(ctx context.Context, req Request) tasks.Future[FlowState] {
	in := a.Input()
	if in == nil {
		return tasks.Resolved(EmptyState())
	}
	return in.Evaluate(ctx, req)
}

// EvaluateInputMultiple evaluates the upstream node at several times.
func (a *ModifierApplication) EvaluateInputMultiple(ctx context.Context, req Request, times []interval.Time) tasks.Future[[]FlowState] {
	fs := make([]tasks.Future[FlowState], len(times))
	for i, t := range times {
		fs[i] = a.EvaluateInput(ctx, req.AtTime(t))
	}
	return tasks.WhenAll(fs...)
}

// EvaluateInternal computes the output for a cache miss: it evaluates the
// input with the modifier's caching hints and then applies the modifier.
func (a *ModifierApplication) EvaluateInternal(ctx context.Context, req Request) tasks.Future[FlowState] {
	upReq := req.WithCachingIntervals(req.CachingIntervals)
	if mod := a.Modifier(); mod != nil && a.IsEffectivelyEnabled() {
		upReq.CachingIntervals = mod.InputCachingHints(upReq.CachingIntervals, a)
	}
	exec := a.Env().Executor
	return tasks.ThenFuture(a.EvaluateInput(ctx, upReq), exec, func(in FlowState) tasks.Future[FlowState] {
		if in.Status.IsError() {
			if upReq.BreakOnError {
				return tasks.Resolved(in)
			}
		} else {
			in.Status = Status{}
		}

		mod := a.Modifier()
		if mod == nil || !a.IsEffectivelyEnabled() || in.IsEmpty() {
			return tasks.Resolved(in)
		}

		logger := ctxlog.FromContext(ctx)
		logger.Debug("Applying modifier.", "modifier", mod.Title(), "time", req.Time, "eval_id", req.EvalID)
		out := a.callModifier(ctx, mod, upReq, in)
		return tasks.Handle(out, exec, func(st FlowState, err error) tasks.Future[FlowState] {
			if err == nil {
				a.SetStatus(worse(st.Status, in.Status))
				return tasks.Resolved(st)
			}
			if errors.Is(err, tasks.ErrCanceled) {
				return tasks.Canceled[FlowState]()
			}
			return tasks.Resolved(a.containFailure(ctx, mod, in, err))
		})
	})
}

// EvaluateInternalSynchronous computes a preview from the input's preview.
func (a *ModifierApplication) EvaluateInternalSynchronous(ctx context.Context, req Request) FlowState {
	in := a.Input()
	if in == nil {
		return EmptyState()
	}
	st := in.EvaluateSynchronous(ctx, req)
	mod := a.Modifier()
	if mod == nil || !a.IsEffectivelyEnabled() {
		return st
	}
	if st.IsEmpty() {
		st.Status = Error("Modifier input is empty.")
		return st
	}
	if err := callSynchronous(ctx, mod, req, a, &st); err != nil {
		st.Status = Error(fmt.Sprintf("Modifier '%s' reported: %s", mod.Title(), failureText(err)))
	}
	return st
}

// containFailure turns a failed modifier evaluation into an error state that
// carries the unmodified input data.
func (a *ModifierApplication) containFailure(ctx context.Context, mod Modifier, in FlowState, err error) FlowState {
	msg := failureText(err)
	logger := ctxlog.FromContext(ctx)
	logger.Warn("Modifier evaluation failed.", "modifier", mod.Title(), "error", err)
	var pe *tasks.PanicError
	if errors.As(err, &pe) {
		logger.Debug("Modifier panicked.", "modifier", mod.Title(), "stack", string(pe.Stack))
	}
	a.Env().Metrics.ModifierFailed(mod.TypeName())

	status := Error(msg)
	a.SetStatus(status)
	mod.SetStatus(status)

	in.Status = Error(fmt.Sprintf("Modifier '%s' reported: %s", mod.Title(), msg))
	in.Validity = interval.Empty()
	return in
}

func failureText(err error) string {
	var pe *tasks.PanicError
	if errors.As(err, &pe) {
		if cause, ok := pe.Value.(error); ok {
			return cause.Error()
		}
		return fmt.Sprintf("Unknown exception caught during evaluation: %v", pe.Value)
	}
	return err.Error()
}

func (a *ModifierApplication) callModifier(ctx context.Context, mod Modifier, req Request, in FlowState) (f tasks.Future[FlowState]) {
	defer func() {
		if r := recover(); r != nil {
			f = tasks.Failed[FlowState](tasks.NewPanicError(r))
		}
	}()
	return mod.Evaluate(ctx, req, a, in)
}

func callSynchronous(ctx context.Context, mod Modifier, req Request, a *ModifierApplication, st *FlowState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = tasks.NewPanicError(r)
		}
	}()
	mod.EvaluateSynchronous(ctx, req, a, st)
	return nil
}

// ValidityInterval returns the interval over which the output at req.Time
// stays the same, as far as the input and the modifier can tell up front.
func (a *ModifierApplication) ValidityInterval(req Request) interval.Interval {
	iv := interval.Infinite()
	if in := a.Input(); in != nil {
		iv = iv.Intersect(in.ValidityInterval(req))
	}
	if mod := a.Modifier(); mod != nil && a.IsEffectivelyEnabled() {
		iv = iv.Intersect(mod.ValidityInterval(req, a))
	}
	return iv
}

// NumberOfSourceFrames returns the number of frames after the modifier.
func (a *ModifierApplication) NumberOfSourceFrames() int {
	n := 1
	if in := a.Input(); in != nil {
		n = in.NumberOfSourceFrames()
	}
	if mod := a.Modifier(); mod != nil && a.IsEffectivelyEnabled() {
		n = mod.NumberOfOutputFrames(a, n)
	}
	return n
}

// AnimationTimeToSourceFrame maps an animation time to a frame number.
func (a *ModifierApplication) AnimationTimeToSourceFrame(t interval.Time) int {
	frame := int(t)
	if in := a.Input(); in != nil {
		frame = in.AnimationTimeToSourceFrame(t)
	}
	if mod := a.Modifier(); mod != nil && a.IsEffectivelyEnabled() {
		frame = mod.AnimationTimeToSourceFrame(a, t, frame)
	}
	return frame
}

// SourceFrameToAnimationTime maps a frame number to an animation time.
func (a *ModifierApplication) SourceFrameToAnimationTime(frame int) interval.Time {
	t := interval.Time(frame)
	if in := a.Input(); in != nil {
		t = in.SourceFrameToAnimationTime(frame)
	}
	if mod := a.Modifier(); mod != nil && a.IsEffectivelyEnabled() {
		t = mod.SourceFrameToAnimationTime(a, frame, t)
	}
	return t
}

// ReferenceEvent reacts to changes of the modifier, the group and the input.
func (a *ModifierApplication) ReferenceEvent(source refgraph.Object, ev refgraph.Event) bool {
	mod := a.Modifier()
	fromModifier := mod != nil && refgraph.Same(source, mod)
	fromGroup := refgraph.Same(source, a.Group()) && a.Group() != nil
	fromInput := refgraph.Same(source, a.Input()) && a.Input() != nil

	switch ev.Type {
	case refgraph.TargetEnabledOrDisabled:
		if fromModifier || fromGroup {
			a.NotifyDependents(refgraph.Event{Type: refgraph.AnimationFramesChanged})
			if !a.IsEffectivelyEnabled() {
				a.SetStatus(Success(turnedOffText))
				a.Cache().Invalidate(interval.Empty(), true)
			}
			return true
		}
	case refgraph.TitleChanged:
		if fromModifier {
			return true
		}
	case refgraph.PipelineChanged:
		if fromInput {
			return true
		}
	case refgraph.AnimationFramesChanged:
		if fromInput || fromModifier {
			return true
		}
	case refgraph.TargetChanged:
		if fromModifier || fromGroup || fromInput {
			unchanged := ev.Unchanged
			if fromInput && mod != nil {
				unchanged = mod.RestrictInputValidityInterval(unchanged)
			}
			a.NotifyTargetChangedOutsideInterval(unchanged)
			if fromModifier && mod.PerformPreliminaryUpdateAfterChange() {
				a.NotifyDependents(refgraph.Event{Type: refgraph.PreliminaryStateAvailable})
			}
			return false
		}
	case refgraph.PreliminaryStateAvailable:
		if fromInput {
			a.Cache().InvalidateSynchronousState()
			if mod != nil {
				mod.Ref().NotifyDependents(refgraph.Event{Type: refgraph.ModifierInputChanged})
			}
		}
	}
	return a.DefaultReferenceEvent(source, ev)
}

// ReferenceReplaced resets the cache when the modifier, the input or the
// group of the application changes.
func (a *ModifierApplication) ReferenceReplaced(field *refgraph.FieldDescriptor, oldTarget, newTarget refgraph.Object) {
	switch field {
	case &appModifierField:
		a.Cache().Invalidate(interval.Empty(), true)
		for _, o := range []refgraph.Object{oldTarget, newTarget} {
			if o != nil {
				o.Ref().NotifyDependents(refgraph.Event{Type: refgraph.ObjectStatusChanged})
				o.Ref().NotifyDependents(refgraph.Event{Type: refgraph.ModifierInputChanged})
			}
		}
		a.NotifyDependents(refgraph.Event{Type: refgraph.TargetEnabledOrDisabled})
		a.NotifyDependents(refgraph.Event{Type: refgraph.AnimationFramesChanged})
	case &appInputField:
		a.Cache().Invalidate(interval.Empty(), true)
		if mod := a.Modifier(); mod != nil {
			mod.Ref().NotifyDependents(refgraph.Event{Type: refgraph.ModifierInputChanged})
		}
		a.NotifyDependents(refgraph.Event{Type: refgraph.AnimationFramesChanged})
	case &appGroupField:
		a.Cache().Invalidate(interval.Empty(), true)
	}
}

// AboutToBeDeleted detaches the application from its input, modifier and
// group before it is removed, then releases the cache.
func (a *ModifierApplication) AboutToBeDeleted() {
	_ = a.input.Set(a, nil)
	_ = a.modifier.Set(a, nil)
	_ = a.group.Set(a, nil)
	a.Cache().Invalidate(interval.Empty(), true)
}
