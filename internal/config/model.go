package config

import "github.com/hashicorp/hcl/v2"

// Model is the merged content of all loaded definition files.
type Model struct {
	Groups    map[string]*Group
	Modifiers map[string]*Modifier
	Pipelines []*Pipeline
}

func newModel() *Model {
	return &Model{
		Groups:    make(map[string]*Group),
		Modifiers: make(map[string]*Modifier),
	}
}

// Pipeline returns the pipeline with the given name.
func (m *Model) Pipeline(name string) (*Pipeline, bool) {
	for _, p := range m.Pipelines {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// Group is a `group` block.
type Group struct {
	Name    string
	Title   string
	Enabled bool
}

// Modifier is a `modifier` block. Body holds the type-specific parameters.
type Modifier struct {
	Type    string
	Name    string
	Title   string
	Enabled bool
	Body    hcl.Body
}

// Pipeline is a `pipeline` block.
type Pipeline struct {
	Name              string
	TrajectoryCaching bool
	Source            *Source
	Apply             []*Apply
}

// Source is the `source` block of a pipeline.
type Source struct {
	Type string
	Body hcl.Body
}

// Apply is an `apply` block. Applications are listed from the source
// upwards.
type Apply struct {
	Modifier string
	Group    string
}
