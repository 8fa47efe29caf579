package scene

import (
	"github.com/specialistvlad/ovipipe/internal/pipeline"
	"github.com/specialistvlad/ovipipe/internal/refgraph"
)

var pipelinesField = refgraph.FieldDescriptor{Name: "pipelines", Flags: refgraph.NoChangeMessage}

// Scene owns the pipelines of a document. It is a root of the object graph
// and lives until it is deleted explicitly.
type Scene struct {
	refgraph.Target
	pipelines refgraph.VectorRef[*Pipeline]
}

// NewScene creates an empty scene.
func NewScene(env *pipeline.Env) *Scene {
	s := &Scene{}
	s.pipelines.Init(&pipelinesField)
	env.Graph.Add(s)
	env.Graph.Pin(s)
	return s
}

// TypeName names the type in logs.
func (s *Scene) TypeName() string { return "Scene" }

// Pipelines returns the pipelines in insertion order.
func (s *Scene) Pipelines() []*Pipeline { return s.pipelines.All() }

// Pipeline returns the pipeline with the given name.
func (s *Scene) Pipeline(name string) (*Pipeline, bool) {
	for _, p := range s.pipelines.All() {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// AddPipeline adds p to the scene.
func (s *Scene) AddPipeline(p *Pipeline) error { return s.pipelines.Append(s, p) }

// RemovePipeline removes p from the scene. The pipeline and every stage only
// it used are deleted.
func (s *Scene) RemovePipeline(p *Pipeline) error {
	i := s.pipelines.IndexOf(p)
	if i < 0 {
		return nil
	}
	return s.pipelines.Remove(s, i)
}

// ReferenceInserted implements refgraph.VectorHandler.
func (s *Scene) ReferenceInserted(_ *refgraph.FieldDescriptor, target refgraph.Object, index int) {
	s.Graph().Logger().Debug("Pipeline added to scene.", "pipeline", target.Ref().ID(), "index", index)
}

// ReferenceRemoved implements refgraph.VectorHandler.
func (s *Scene) ReferenceRemoved(_ *refgraph.FieldDescriptor, target refgraph.Object, index int) {
	s.Graph().Logger().Debug("Pipeline removed from scene.", "pipeline", target.Ref().ID(), "index", index)
}
