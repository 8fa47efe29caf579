package registry

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl/v2"

	"github.com/specialistvlad/ovipipe/internal/ctxlog"
	"github.com/specialistvlad/ovipipe/internal/pipeline"
)

// Module is the interface that all modifier and source modules implement to
// be registered.
type Module interface {
	Register(r *Registry)
}

// ModifierFactory creates a modifier from the parameter body of its
// definition block.
type ModifierFactory func(env *pipeline.Env, title string, body hcl.Body) (pipeline.Modifier, hcl.Diagnostics)

// SourceFactory creates a source node from the parameter body of its
// definition block.
type SourceFactory func(env *pipeline.Env, body hcl.Body) (pipeline.Node, hcl.Diagnostics)

// RegisteredModifier holds the Go parts of a modifier type.
type RegisteredModifier struct {
	Description string
	New         ModifierFactory
}

// RegisteredSource holds the Go parts of a source type.
type RegisteredSource struct {
	Description string
	New         SourceFactory
}

// Registry holds the registered types of a single application instance.
type Registry struct {
	modifiers map[string]*RegisteredModifier
	sources   map[string]*RegisteredSource
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		modifiers: make(map[string]*RegisteredModifier),
		sources:   make(map[string]*RegisteredSource),
	}
}

// RegisterModifier registers the factory of a modifier type.
func (r *Registry) RegisterModifier(typeName string, m *RegisteredModifier) {
	if _, exists := r.modifiers[typeName]; exists {
		panic(fmt.Sprintf("modifier type '%s' already registered", typeName))
	}
	slog.Debug("Registering modifier type.", "type", typeName)
	r.modifiers[typeName] = m
}

// RegisterSource registers the factory of a source type.
func (r *Registry) RegisterSource(typeName string, s *RegisteredSource) {
	if _, exists := r.sources[typeName]; exists {
		panic(fmt.Sprintf("source type '%s' already registered", typeName))
	}
	slog.Debug("Registering source type.", "type", typeName)
	r.sources[typeName] = s
}

// Modifier returns the registration of a modifier type.
func (r *Registry) Modifier(typeName string) (*RegisteredModifier, bool) {
	m, ok := r.modifiers[typeName]
	return m, ok
}

// Source returns the registration of a source type.
func (r *Registry) Source(typeName string) (*RegisteredSource, bool) {
	s, ok := r.sources[typeName]
	return s, ok
}

// ModifierTypes returns the registered modifier type names in sorted order.
func (r *Registry) ModifierTypes() []string {
	return sortedKeys(r.modifiers)
}

// SourceTypes returns the registered source type names in sorted order.
func (r *Registry) SourceTypes() []string {
	return sortedKeys(r.sources)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// NewModifier creates a modifier of the given type.
func (r *Registry) NewModifier(env *pipeline.Env, typeName, title string, body hcl.Body) (pipeline.Modifier, error) {
	m, ok := r.modifiers[typeName]
	if !ok {
		return nil, fmt.Errorf("unknown modifier type '%s'", typeName)
	}
	mod, diags := m.New(env, title, body)
	if diags.HasErrors() {
		return nil, fmt.Errorf("creating modifier '%s' of type '%s': %w", title, typeName, diags)
	}
	return mod, nil
}

// NewSource creates a source of the given type.
func (r *Registry) NewSource(env *pipeline.Env, typeName string, body hcl.Body) (pipeline.Node, error) {
	s, ok := r.sources[typeName]
	if !ok {
		return nil, fmt.Errorf("unknown source type '%s'", typeName)
	}
	src, diags := s.New(env, body)
	if diags.HasErrors() {
		return nil, fmt.Errorf("creating source of type '%s': %w", typeName, diags)
	}
	return src, nil
}

// Validate checks that every registration is usable.
func (r *Registry) Validate(ctx context.Context) error {
	var result *multierror.Error
	for _, name := range r.ModifierTypes() {
		if r.modifiers[name] == nil || r.modifiers[name].New == nil {
			result = multierror.Append(result, fmt.Errorf("modifier type '%s' has no factory", name))
		}
	}
	for _, name := range r.SourceTypes() {
		if r.sources[name] == nil || r.sources[name].New == nil {
			result = multierror.Append(result, fmt.Errorf("source type '%s' has no factory", name))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Debug("Registry validation successful.", "modifiers", len(r.modifiers), "sources", len(r.sources))
	return nil
}
