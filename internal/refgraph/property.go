package refgraph

import "sync"

// Property is a value field of an object. Assigning a different value raises
// the change events configured in its descriptor. The zero value must be
// initialized with Init before use.
type Property[T comparable] struct {
	desc *FieldDescriptor
	mu   sync.RWMutex
	v    T
}

// Init sets the descriptor and the initial value without raising events.
func (p *Property[T]) Init(desc *FieldDescriptor, initial T) {
	p.desc = desc
	p.v = initial
}

// Descriptor returns the field descriptor.
func (p *Property[T]) Descriptor() *FieldDescriptor { return p.desc }

// Get returns the current value.
func (p *Property[T]) Get() T {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.v
}

// Set assigns v. It reports whether the value changed.
func (p *Property[T]) Set(owner Object, v T) bool {
	return p.set(owner.Ref(), v, true)
}

func (p *Property[T]) set(ot *Target, v T, record bool) bool {
	if ot.state.Load() != stateAlive {
		return false
	}
	p.mu.Lock()
	old := p.v
	if old == v {
		p.mu.Unlock()
		return false
	}
	p.v = v
	p.mu.Unlock()

	if ot.g != nil {
		if s, ok := ot.g.recording(); ok && record && p.desc.Flags&NoUndo == 0 {
			s.Push(&propertyCommand{
				undo: func() { p.set(ot, old, false) },
				redo: func() { p.set(ot, v, false) },
			})
		}
	}
	ot.emitFieldChanged(p.desc)
	return true
}

type propertyCommand struct {
	undo, redo func()
}

func (c *propertyCommand) Undo() { c.undo() }
func (c *propertyCommand) Redo() { c.redo() }
