package pipeline

import (
	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/ovipipe/internal/data"
	"github.com/specialistvlad/ovipipe/internal/interval"
)

// FlowState is the value passed between pipeline stages.
//
// FlowState is copied by value. The data collection and the attributes are
// persistent values, so a stage may modify its copy without affecting the
// state stored in an upstream cache.
type FlowState struct {
	Data       *data.Collection
	Status     Status
	Validity   interval.Interval
	Attributes data.Attributes
}

// NewFlowState returns a successful state holding col.
func NewFlowState(col *data.Collection, validity interval.Interval) FlowState {
	return FlowState{Data: col, Validity: validity}
}

// EmptyState returns a state without data that is valid forever.
func EmptyState() FlowState {
	return FlowState{Validity: interval.Infinite()}
}

// errorState is the result of a failed computation. It is never cached.
func errorState(err error) FlowState {
	return FlowState{Status: Error(err.Error()), Validity: interval.Empty()}
}

// IsEmpty reports whether the state holds no data.
func (s FlowState) IsEmpty() bool { return s.Data == nil }

// IntersectValidity narrows the validity interval of the state.
func (s *FlowState) IntersectValidity(iv interval.Interval) {
	s.Validity = s.Validity.Intersect(iv)
}

// SetAttribute sets a named scalar attribute.
func (s *FlowState) SetAttribute(name string, v cty.Value) error {
	attrs, err := s.Attributes.With(name, v)
	if err != nil {
		return err
	}
	s.Attributes = attrs
	return nil
}

// Table returns the named table of the state's data collection.
func (s FlowState) Table(id string) (*data.Table, bool) {
	return s.Data.Table(id)
}

// WithObject returns a copy of the state whose collection holds obj.
func (s FlowState) WithObject(obj data.Object) FlowState {
	s.Data = s.Data.With(obj)
	return s
}
