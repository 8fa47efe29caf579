package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/specialistvlad/ovipipe/internal/ctxlog"
	"github.com/specialistvlad/ovipipe/internal/interval"
	"github.com/specialistvlad/ovipipe/internal/pipeline"
	"github.com/specialistvlad/ovipipe/internal/scene"
	"github.com/specialistvlad/ovipipe/internal/tasks"
)

// ErrEvaluationFailed is returned by Run when break-on-error is set and a
// frame evaluated to an error state.
var ErrEvaluationFailed = errors.New("pipeline evaluation failed")

// Run builds the object graph, evaluates the requested frames of every
// selected pipeline and writes the report.
func (a *App) Run(ctx context.Context) (err error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.MetricsPort > 0 {
		a.startServer(ctx, a.config.MetricsPort)
		defer func() {
			if closeErr := a.closeServer(ctx); closeErr != nil {
				err = multierror.Append(err, closeErr)
			}
		}()
	}

	doc, err := a.build(ctx)
	if err != nil {
		return fmt.Errorf("failed to build pipelines: %w", err)
	}
	defer func() {
		if closeErr := doc.Close(ctx); closeErr != nil {
			err = multierror.Append(err, closeErr)
		}
	}()

	for _, raw := range a.config.Disable {
		if err := doc.disable(raw); err != nil {
			return err
		}
		a.logger.Info("Disabled object.", "address", raw)
	}

	selected, err := a.selectPipelines(doc)
	if err != nil {
		return err
	}

	report := &Report{}
	var failed atomic.Bool
	for _, p := range selected {
		pr, err := a.evaluatePipeline(ctx, p, &failed)
		if err != nil {
			return fmt.Errorf("pipeline '%s': %w", p.Name(), err)
		}
		report.Pipelines = append(report.Pipelines, *pr)
	}

	if err := writeReport(a.outW, a.config.Output, report); err != nil {
		return err
	}
	a.logger.Debug("App.Run method finished.")
	if failed.Load() && a.config.BreakOnError {
		return ErrEvaluationFailed
	}
	return nil
}

func (a *App) selectPipelines(doc *document) ([]*scene.Pipeline, error) {
	if len(a.config.Pipelines) == 0 {
		return doc.scene.Pipelines(), nil
	}
	var selected []*scene.Pipeline
	for _, name := range a.config.Pipelines {
		p, ok := doc.scene.Pipeline(name)
		if !ok {
			return nil, fmt.Errorf("no pipeline named '%s'", name)
		}
		selected = append(selected, p)
	}
	return selected, nil
}

// frames returns the source frames to evaluate for p.
func (a *App) frames(p *scene.Pipeline) ([]int, error) {
	n := p.NumberOfFrames()
	if len(a.config.Frames) == 0 {
		frames := make([]int, n)
		for i := range frames {
			frames[i] = i
		}
		return frames, nil
	}
	frames := slices.Clone(a.config.Frames)
	slices.Sort(frames)
	frames = slices.Compact(frames)
	if last := frames[len(frames)-1]; last >= n {
		return nil, fmt.Errorf("frame %d out of range, the pipeline has %d frames", last, n)
	}
	return frames, nil
}

// evaluatePipeline evaluates the frames of p concurrently, at most one per
// worker at a time. Every request asks the caches to keep the whole
// evaluated range so concurrent frames do not evict each other.
func (a *App) evaluatePipeline(ctx context.Context, p *scene.Pipeline, failed *atomic.Bool) (*PipelineReport, error) {
	ctx = ctxlog.With(ctx, "pipeline", p.Name())
	logger := ctxlog.FromContext(ctx)
	frames, err := a.frames(p)
	if err != nil {
		return nil, err
	}
	if a.config.Rendering && p.TrajectoryCaching() {
		if err := p.PrecomputeFrames(ctx, a.config.WorkerCount); err != nil {
			return nil, err
		}
	}

	dp := p.DataProvider()
	if dp == nil || len(frames) == 0 {
		return nil, errors.New("pipeline has nothing to evaluate")
	}
	keep := interval.New(dp.SourceFrameToAnimationTime(frames[0]), dp.SourceFrameToAnimationTime(frames[len(frames)-1]))
	results := make([]FrameReport, len(frames))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.config.WorkerCount)
	for i, frame := range frames {
		g.Go(func() error {
			t := dp.SourceFrameToAnimationTime(frame)
			req := pipeline.NewRequest(t)
			req.BreakOnError = a.config.BreakOnError
			req = req.WithCachingIntervals([]interval.Interval{keep})

			var f tasks.Future[pipeline.FlowState]
			if a.config.Rendering {
				f = p.EvaluateRenderingPipeline(gctx, req)
			} else {
				f = p.EvaluatePipeline(gctx, req)
			}
			st, err := f.Wait(gctx)
			if err != nil {
				f.Cancel()
				return fmt.Errorf("frame %d: %w", frame, err)
			}
			if st.Status.IsError() {
				failed.Store(true)
				logger.Warn("Frame evaluated with error.", "frame", frame, "status", st.Status.Text, "eval_id", req.EvalID)
			} else {
				logger.Debug("Frame evaluated.", "frame", frame, "validity", st.Validity, "eval_id", req.EvalID)
			}
			results[i] = frameReport(frame, t, st)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cache := p.Cache()
	if a.config.Rendering {
		cache = p.RenderingCache()
	}
	logger.Info("Pipeline evaluated.", "frames", len(frames), "status", p.Status())
	return &PipelineReport{
		Name:              p.Name(),
		Status:            p.Status().String(),
		TrajectoryCaching: p.TrajectoryCaching(),
		Stages:            stageReports(p),
		Frames:            results,
		CachedIntervals:   cachedIntervals(cache),
	}, nil
}

// Validate builds the object graph of every definition and tears it down
// again without evaluating anything.
func (a *App) Validate(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	doc, err := a.build(ctx)
	if err != nil {
		return fmt.Errorf("failed to build pipelines: %w", err)
	}
	var result error
	for _, raw := range a.config.Disable {
		if err := doc.disable(raw); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := doc.Close(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if result == nil {
		a.logger.Info("Pipeline definitions are valid.", "pipelines", len(a.model.Pipelines))
	}
	return result
}
