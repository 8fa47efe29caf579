package data

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Attributes is an immutable, insertion-ordered map of scalar values that
// modifiers attach to a pipeline state.
type Attributes struct {
	keys   []string
	values map[string]cty.Value
}

// Len returns the number of attributes.
func (a Attributes) Len() int { return len(a.keys) }

// Keys returns the attribute names in insertion order.
func (a Attributes) Keys() []string { return append([]string(nil), a.keys...) }

// Get returns the named attribute.
func (a Attributes) Get(name string) (cty.Value, bool) {
	v, ok := a.values[name]
	return v, ok
}

// With returns a copy of a with name set to v. Only known, non-null
// numbers, strings and bools are accepted.
func (a Attributes) With(name string, v cty.Value) (Attributes, error) {
	if !v.IsKnown() || v.IsNull() {
		return a, fmt.Errorf("attribute %q: value must be known and not null", name)
	}
	switch v.Type() {
	case cty.Number, cty.String, cty.Bool:
	default:
		return a, fmt.Errorf("attribute %q: unsupported type %s", name, v.Type().FriendlyName())
	}
	out := Attributes{values: make(map[string]cty.Value, len(a.values)+1)}
	for k, val := range a.values {
		out.values[k] = val
	}
	out.keys = append([]string(nil), a.keys...)
	if _, exists := a.values[name]; !exists {
		out.keys = append(out.keys, name)
	}
	out.values[name] = v
	return out, nil
}

// Float returns a numeric attribute as float64.
func (a Attributes) Float(name string) (float64, bool) {
	var f float64
	return f, a.decode(name, &f)
}

// String returns a string attribute.
func (a Attributes) String(name string) (string, bool) {
	var s string
	return s, a.decode(name, &s)
}

func (a Attributes) decode(name string, target any) bool {
	v, ok := a.values[name]
	if !ok {
		return false
	}
	return gocty.FromCtyValue(v, target) == nil
}

// Map returns the attributes converted to plain Go values, for reporting.
func (a Attributes) Map() map[string]any {
	out := make(map[string]any, len(a.keys))
	for _, k := range a.keys {
		v := a.values[k]
		switch v.Type() {
		case cty.Number:
			f, _ := v.AsBigFloat().Float64()
			out[k] = f
		case cty.Bool:
			out[k] = v.True()
		default:
			out[k] = v.AsString()
		}
	}
	return out
}
