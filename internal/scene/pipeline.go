package scene

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/specialistvlad/ovipipe/internal/ctxlog"
	"github.com/specialistvlad/ovipipe/internal/interval"
	"github.com/specialistvlad/ovipipe/internal/pipeline"
	"github.com/specialistvlad/ovipipe/internal/refgraph"
	"github.com/specialistvlad/ovipipe/internal/tasks"
)

// ErrTrajectoryCachingOff is returned by PrecomputeFrames when the rendering
// cache would not keep the precomputed frames.
var ErrTrajectoryCachingOff = errors.New("trajectory caching is switched off")

var (
	dataProviderField      = refgraph.FieldDescriptor{Name: "dataProvider", ChangeEvent: refgraph.PipelineChanged}
	pipelineSourceField    = refgraph.FieldDescriptor{Name: "pipelineSource", Flags: refgraph.Weak | refgraph.NoChangeMessage | refgraph.DontPropagateMessages | refgraph.NoUndo}
	trajectoryCachingField = refgraph.FieldDescriptor{Name: "trajectoryCaching", Flags: refgraph.NoChangeMessage | refgraph.NoUndo}
	nameField              = refgraph.FieldDescriptor{Name: "name", Flags: refgraph.NoChangeMessage, ChangeEvent: refgraph.TitleChanged}
)

// Pipeline is the consumer end of a chain of pipeline nodes.
type Pipeline struct {
	refgraph.Target
	env *pipeline.Env

	dataProvider      refgraph.Ref[pipeline.Node]
	source            refgraph.Ref[pipeline.Node]
	trajectoryCaching refgraph.Property[bool]
	name              refgraph.Property[string]

	cache     *pipeline.Cache
	rendering *pipeline.Cache
}

// NewPipeline creates an empty pipeline.
func NewPipeline(env *pipeline.Env, name string) *Pipeline {
	p := &Pipeline{env: env}
	p.dataProvider.Init(&dataProviderField)
	p.source.Init(&pipelineSourceField)
	p.trajectoryCaching.Init(&trajectoryCachingField, false)
	p.name.Init(&nameField, name)
	env.Graph.Add(p)

	p.cache = pipeline.NewCache(p, "pipeline", env.Metrics)
	p.rendering = pipeline.NewCache(p, "rendering", env.Metrics)
	for _, c := range []*pipeline.Cache{p.cache, p.rendering} {
		c.OnUpdated(func() {
			p.NotifyDependents(refgraph.Event{Type: refgraph.PipelineCacheUpdated})
		})
	}
	return p
}

// TypeName names the type in logs.
func (p *Pipeline) TypeName() string { return "Pipeline" }

// Name returns the user-assigned name.
func (p *Pipeline) Name() string { return p.name.Get() }

// SetName assigns a name. An empty name makes the pipeline use the title of
// its source.
func (p *Pipeline) SetName(name string) { p.name.Set(p, name) }

// Title returns the name, or the title of the pipeline source if no name was
// assigned.
func (p *Pipeline) Title() string {
	if name := p.Name(); name != "" {
		return name
	}
	if src := p.Source(); src != nil {
		return src.Title()
	}
	return "Pipeline"
}

// Env returns the environment the pipeline was created in.
func (p *Pipeline) Env() *pipeline.Env { return p.env }

// DataProvider returns the last stage of the pipeline, or nil.
func (p *Pipeline) DataProvider() pipeline.Node { return p.dataProvider.Get() }

// SetDataProvider replaces the last stage of the pipeline.
func (p *Pipeline) SetDataProvider(n pipeline.Node) error { return p.dataProvider.Set(p, n) }

// Source returns the node at the head of the pipeline, or nil.
func (p *Pipeline) Source() pipeline.Node { return p.source.Get() }

// SetSource replaces the node at the head of the pipeline and keeps all
// modifier applications.
func (p *Pipeline) SetSource(src pipeline.Node) error {
	apps := p.Applications()
	if len(apps) == 0 {
		return p.SetDataProvider(src)
	}
	return apps[0].SetInput(src)
}

// ApplyModifier appends mod to the end of the pipeline.
func (p *Pipeline) ApplyModifier(mod pipeline.Modifier) (*pipeline.ModifierApplication, error) {
	app, err := pipeline.NewModifierApplication(p.env, mod, p.DataProvider())
	if err != nil {
		return nil, err
	}
	if err := p.SetDataProvider(app); err != nil {
		app.Delete()
		return nil, err
	}
	return app, nil
}

// Applications returns the modifier applications of the pipeline, ordered
// from the source to the last stage.
func (p *Pipeline) Applications() []*pipeline.ModifierApplication {
	var apps []*pipeline.ModifierApplication
	for cur := p.DataProvider(); cur != nil; {
		app, ok := cur.(*pipeline.ModifierApplication)
		if !ok {
			break
		}
		apps = append([]*pipeline.ModifierApplication{app}, apps...)
		cur = app.Input()
	}
	return apps
}

// TrajectoryCaching reports whether the rendering cache keeps every frame.
func (p *Pipeline) TrajectoryCaching() bool { return p.trajectoryCaching.Get() }

// SetTrajectoryCaching switches precomputation of all frames in the
// rendering cache on or off.
func (p *Pipeline) SetTrajectoryCaching(on bool) {
	p.trajectoryCaching.Set(p, on)
	p.rendering.SetPrecomputeAllFrames(on)
}

// Cache returns the interactive cache.
func (p *Pipeline) Cache() *pipeline.Cache { return p.cache }

// RenderingCache returns the cache used for final output.
func (p *Pipeline) RenderingCache() *pipeline.Cache { return p.rendering }

// EvaluatePipeline evaluates the pipeline for interactive use.
func (p *Pipeline) EvaluatePipeline(ctx context.Context, req pipeline.Request) tasks.Future[pipeline.FlowState] {
	return p.cache.EvaluatePipeline(ctx, req)
}

// EvaluateRenderingPipeline evaluates the pipeline for final output.
func (p *Pipeline) EvaluateRenderingPipeline(ctx context.Context, req pipeline.Request) tasks.Future[pipeline.FlowState] {
	return p.rendering.EvaluatePipeline(ctx, req)
}

// EvaluatePipelineSynchronous returns the best output available without
// waiting, from the rendering cache if rendering is set.
func (p *Pipeline) EvaluatePipelineSynchronous(ctx context.Context, req pipeline.Request, rendering bool) pipeline.FlowState {
	if rendering {
		return p.rendering.EvaluatePipelineSynchronous(ctx, req)
	}
	return p.cache.EvaluatePipelineSynchronous(ctx, req)
}

// EvaluateInternal implements pipeline.Evaluator.
func (p *Pipeline) EvaluateInternal(ctx context.Context, req pipeline.Request) tasks.Future[pipeline.FlowState] {
	dp := p.DataProvider()
	if dp == nil {
		return tasks.Resolved(pipeline.EmptyState())
	}
	return dp.Evaluate(ctx, req)
}

// EvaluateInternalSynchronous implements pipeline.Evaluator.
func (p *Pipeline) EvaluateInternalSynchronous(ctx context.Context, req pipeline.Request) pipeline.FlowState {
	dp := p.DataProvider()
	if dp == nil {
		return pipeline.EmptyState()
	}
	return dp.EvaluateSynchronous(ctx, req)
}

// InvalidatePipelineCache narrows both caches to keep.
func (p *Pipeline) InvalidatePipelineCache(keep interval.Interval, resetSynchronous bool) {
	p.cache.Invalidate(keep, resetSynchronous)
	p.rendering.Invalidate(keep, resetSynchronous)
}

// NumberOfFrames returns the number of animation frames of the pipeline.
func (p *Pipeline) NumberOfFrames() int {
	if dp := p.DataProvider(); dp != nil {
		return dp.NumberOfSourceFrames()
	}
	return 1
}

// PrecomputeFrames evaluates the rendering pipeline at every animation
// frame, running at most parallel evaluations at once. Trajectory caching
// must be switched on.
func (p *Pipeline) PrecomputeFrames(ctx context.Context, parallel int) error {
	if !p.TrajectoryCaching() {
		return ErrTrajectoryCachingOff
	}
	dp := p.DataProvider()
	if dp == nil {
		return nil
	}
	n := dp.NumberOfSourceFrames()
	logger := ctxlog.FromContext(ctx)
	logger.Info("Precomputing trajectory frames.", "pipeline", p.Title(), "frames", n)

	g, gctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for frame := range n {
		t := dp.SourceFrameToAnimationTime(frame)
		g.Go(func() error {
			f := p.EvaluateRenderingPipeline(gctx, pipeline.NewRequest(t))
			st, err := f.Wait(gctx)
			if err != nil {
				f.Cancel()
				return fmt.Errorf("precomputing frame %d: %w", frame, err)
			}
			if st.Status.IsError() {
				logger.Warn("Frame evaluated with error.", "frame", frame, "status", st.Status)
			}
			return nil
		})
	}
	return g.Wait()
}

// Status returns the most severe status of the pipeline stages.
func (p *Pipeline) Status() pipeline.Status {
	var worst pipeline.Status
	consider := func(s pipeline.Status) {
		if s.Type > worst.Type {
			worst = s
		}
	}
	if src := p.Source(); src != nil {
		consider(src.Status())
	}
	for _, app := range p.Applications() {
		consider(app.Status())
	}
	return worst
}

func (p *Pipeline) updateSourceReference() {
	var src pipeline.Node
	switch dp := p.DataProvider().(type) {
	case nil:
	case *pipeline.ModifierApplication:
		src = dp.PipelineSource()
	default:
		src = dp
	}
	if err := p.source.Set(p, src); err != nil {
		p.Graph().Logger().Warn("Could not track pipeline source.", "pipeline", p.ID(), "error", err)
	}
}

// ReferenceEvent reacts to changes of the pipeline stages.
func (p *Pipeline) ReferenceEvent(source refgraph.Object, ev refgraph.Event) bool {
	if dp := p.DataProvider(); dp != nil && refgraph.Same(source, dp) {
		switch ev.Type {
		case refgraph.TargetChanged:
			p.InvalidatePipelineCache(ev.Unchanged, false)
		case refgraph.TargetDeleted:
			p.InvalidatePipelineCache(interval.Empty(), true)
			p.Delete()
		case refgraph.PipelineChanged:
			p.updateSourceReference()
			return true
		case refgraph.AnimationFramesChanged:
			return true
		case refgraph.PreliminaryStateAvailable:
			p.cache.InvalidateSynchronousState()
			p.rendering.InvalidateSynchronousState()
			p.NotifyDependents(refgraph.Event{Type: refgraph.PipelineInputChanged})
		case refgraph.TargetEnabledOrDisabled:
			p.NotifyDependents(refgraph.Event{Type: refgraph.PipelineInputChanged})
		}
	}
	if src := p.Source(); src != nil && refgraph.Same(source, src) {
		if ev.Type == refgraph.TitleChanged && p.Name() == "" {
			return true
		}
	}
	return p.DefaultReferenceEvent(source, ev)
}

// ReferenceReplaced resets the caches when the last stage is replaced.
func (p *Pipeline) ReferenceReplaced(field *refgraph.FieldDescriptor, _, _ refgraph.Object) {
	switch field {
	case &dataProviderField:
		p.InvalidatePipelineCache(interval.Empty(), false)
		if !p.IsDeleted() {
			p.NotifyDependents(refgraph.Event{Type: refgraph.AnimationFramesChanged})
		}
		p.updateSourceReference()
	case &pipelineSourceField:
		if p.Name() == "" {
			p.NotifyDependents(refgraph.Event{Type: refgraph.TitleChanged})
		}
	}
}

// AboutToBeDeleted releases the cached states.
func (p *Pipeline) AboutToBeDeleted() {
	p.InvalidatePipelineCache(interval.Empty(), true)
}
