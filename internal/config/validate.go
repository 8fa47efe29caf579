package config

import (
	"fmt"
	"slices"

	"github.com/hashicorp/go-multierror"

	"github.com/specialistvlad/ovipipe/internal/registry"
)

// Validate checks the cross references of a loaded model against the
// registered types. All problems are reported together.
func Validate(m *Model, reg *registry.Registry) error {
	var result *multierror.Error

	for _, name := range sortedNames(m.Modifiers) {
		mod := m.Modifiers[name]
		if _, ok := reg.Modifier(mod.Type); !ok {
			result = multierror.Append(result, fmt.Errorf("modifier '%s': unknown modifier type '%s'", name, mod.Type))
		}
	}

	for _, p := range m.Pipelines {
		if p.Source == nil {
			result = multierror.Append(result, fmt.Errorf("pipeline '%s': missing source block", p.Name))
		} else if _, ok := reg.Source(p.Source.Type); !ok {
			result = multierror.Append(result, fmt.Errorf("pipeline '%s': unknown source type '%s'", p.Name, p.Source.Type))
		}
		for i, a := range p.Apply {
			if _, ok := m.Modifiers[a.Modifier]; !ok {
				result = multierror.Append(result, fmt.Errorf("pipeline '%s' apply[%d]: undefined modifier '%s'", p.Name, i, a.Modifier))
			}
			if a.Group == "" {
				continue
			}
			if _, ok := m.Groups[a.Group]; !ok {
				result = multierror.Append(result, fmt.Errorf("pipeline '%s' apply[%d]: undefined group '%s'", p.Name, i, a.Group))
			}
		}
	}

	return result.ErrorOrNil()
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}
