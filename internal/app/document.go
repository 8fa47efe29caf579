package app

import (
	"context"
	"fmt"
	"slices"

	"github.com/hashicorp/go-multierror"

	"github.com/specialistvlad/ovipipe/internal/ctxlog"
	"github.com/specialistvlad/ovipipe/internal/objpath"
	"github.com/specialistvlad/ovipipe/internal/pipeline"
	"github.com/specialistvlad/ovipipe/internal/refgraph"
	"github.com/specialistvlad/ovipipe/internal/scene"
	"github.com/specialistvlad/ovipipe/internal/tasks"
)

// document is the object graph built from the loaded definitions.
type document struct {
	env       *pipeline.Env
	scene     *scene.Scene
	groups    map[string]*pipeline.ModifierGroup
	modifiers map[string]pipeline.Modifier

	serial *tasks.Serial
	pool   *tasks.Pool
}

// build creates the groups, the modifiers and the pipelines of the model.
// A modifier applied in several pipelines is shared by all of them.
func (a *App) build(ctx context.Context) (*document, error) {
	logger := ctxlog.FromContext(ctx)
	serial := tasks.NewSerial()
	pool := tasks.NewPool(a.config.WorkerCount)
	env := pipeline.NewEnv(
		refgraph.NewGraph(refgraph.WithLogger(logger)),
		pipeline.WithExecutor(serial),
		pipeline.WithWorkers(pool),
		pipeline.WithMetrics(a.metrics),
	)
	doc := &document{
		env:       env,
		scene:     scene.NewScene(env),
		groups:    make(map[string]*pipeline.ModifierGroup),
		modifiers: make(map[string]pipeline.Modifier),
		serial:    serial,
		pool:      pool,
	}

	for _, name := range sortedKeys(a.model.Groups) {
		def := a.model.Groups[name]
		g := pipeline.NewModifierGroup(env, def.Title)
		g.SetEnabled(def.Enabled)
		doc.groups[name] = g
	}
	for _, name := range sortedKeys(a.model.Modifiers) {
		def := a.model.Modifiers[name]
		mod, err := a.registry.NewModifier(env, def.Type, def.Title, def.Body)
		if err != nil {
			return nil, doc.abort(ctx, fmt.Errorf("modifier '%s': %w", name, err))
		}
		mod.SetEnabled(def.Enabled)
		doc.modifiers[name] = mod
	}

	for _, def := range a.model.Pipelines {
		p := scene.NewPipeline(env, def.Name)
		if err := doc.scene.AddPipeline(p); err != nil {
			return nil, doc.abort(ctx, fmt.Errorf("pipeline '%s': %w", def.Name, err))
		}
		src, err := a.registry.NewSource(env, def.Source.Type, def.Source.Body)
		if err != nil {
			return nil, doc.abort(ctx, fmt.Errorf("pipeline '%s': %w", def.Name, err))
		}
		if err := p.SetSource(src); err != nil {
			return nil, doc.abort(ctx, fmt.Errorf("pipeline '%s': %w", def.Name, err))
		}
		for i, apply := range def.Apply {
			app, err := p.ApplyModifier(doc.modifiers[apply.Modifier])
			if err != nil {
				return nil, doc.abort(ctx, fmt.Errorf("%s: %w", objpath.Application(def.Name, i), err))
			}
			if apply.Group != "" {
				if err := app.SetGroup(doc.groups[apply.Group]); err != nil {
					return nil, doc.abort(ctx, fmt.Errorf("%s: %w", objpath.Application(def.Name, i), err))
				}
			}
		}
		p.SetTrajectoryCaching(def.TrajectoryCaching || a.config.TrajectoryCaching)
		logger.Debug("Pipeline built.", "pipeline", def.Name, "stages", len(def.Apply), "frames", p.NumberOfFrames())
	}
	return doc, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// disable switches off the object at the given address. For an application
// this is its modifier, which affects every pipeline sharing it.
func (d *document) disable(raw string) error {
	addr, err := objpath.Parse(raw)
	if err != nil {
		return err
	}
	switch addr.Kind {
	case objpath.KindModifier:
		mod, ok := d.modifiers[addr.Name]
		if !ok {
			return fmt.Errorf("%s: no such modifier", addr)
		}
		mod.SetEnabled(false)
	case objpath.KindGroup:
		g, ok := d.groups[addr.Name]
		if !ok {
			return fmt.Errorf("%s: no such group", addr)
		}
		g.SetEnabled(false)
	case objpath.KindApplication:
		p, ok := d.scene.Pipeline(addr.Name)
		if !ok {
			return fmt.Errorf("%s: no such pipeline", addr)
		}
		apps := p.Applications()
		if addr.Index >= len(apps) {
			return fmt.Errorf("%s: pipeline has %d modifier applications", addr, len(apps))
		}
		apps[addr.Index].Modifier().SetEnabled(false)
	default:
		return fmt.Errorf("%s: a %s cannot be disabled", addr, addr.Kind)
	}
	return nil
}

// Close deletes the object graph and stops the executors.
func (d *document) Close(ctx context.Context) error {
	var result *multierror.Error
	for _, p := range d.scene.Pipelines() {
		if err := d.scene.RemovePipeline(p); err != nil {
			result = multierror.Append(result, fmt.Errorf("removing pipeline '%s': %w", p.Name(), err))
		}
	}
	d.env.Graph.Unpin(d.scene)
	d.scene.Delete()
	for _, mod := range d.modifiers {
		mod.Ref().Delete()
	}
	for _, g := range d.groups {
		g.Delete()
	}
	d.pool.Wait()
	d.serial.Close()
	ctxlog.FromContext(ctx).Debug("Document closed.", "objects_left", d.env.Graph.Len())
	return result.ErrorOrNil()
}

// abort closes a partially built document and returns err together with
// any teardown failure.
func (d *document) abort(ctx context.Context, err error) error {
	if closeErr := d.Close(ctx); closeErr != nil {
		return multierror.Append(err, closeErr)
	}
	return err
}
