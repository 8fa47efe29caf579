package refgraph

import (
	"fmt"
	"sync"
)

// FieldFlags modify how a reference or property field behaves.
type FieldFlags uint8

const (
	// Weak marks a back-reference that does not own its target.
	Weak FieldFlags = 1 << iota
	// NoChangeMessage suppresses the TargetChanged event normally raised when
	// the field is assigned. A configured ChangeEvent is still sent.
	NoChangeMessage
	// DontPropagateMessages keeps events received through this field from
	// being forwarded by the default event handling.
	DontPropagateMessages
	// NoUndo excludes the field from undo recording.
	NoUndo
)

// FieldDescriptor describes one field of an object type. Descriptors are
// declared once per type as package-level variables.
type FieldDescriptor struct {
	Name  string
	Flags FieldFlags
	// ChangeEvent is an additional event sent to dependents whenever the
	// field value changes.
	ChangeEvent EventType
}

func (d *FieldDescriptor) String() string { return d.Name }

// slot is the type-erased view of a reference field used for teardown.
type slot interface {
	descriptor() *FieldDescriptor
	clearTarget(owner, target *Target)
	clearAll(owner *Target)
}

// Ref is a single-valued reference field. The zero value must be initialized
// with Init before use.
type Ref[T Object] struct {
	desc *FieldDescriptor
	mu   sync.RWMutex
	obj  Object
}

// Init sets the field descriptor.
func (r *Ref[T]) Init(desc *FieldDescriptor) { r.desc = desc }

// Descriptor returns the field descriptor.
func (r *Ref[T]) Descriptor() *FieldDescriptor { return r.desc }

func (r *Ref[T]) descriptor() *FieldDescriptor { return r.desc }

// Get returns the current target, or the zero value of T.
func (r *Ref[T]) Get() T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.obj == nil {
		var zero T
		return zero
	}
	return r.obj.(T)
}

// IsSet reports whether the field currently points to a target.
func (r *Ref[T]) IsSet() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.obj != nil
}

// Set points the field of owner to v. Assigning to a field of an object that
// is being deleted is a silent no-op.
//
// The owner is moved from the old target's dependents to the new target's,
// its ReplaceHandler runs, the field's change events are raised and the old
// target is deleted if no strong reference to it remains.
func (r *Ref[T]) Set(owner Object, v T) error {
	return r.replace(owner.Ref(), normalize(v), true)
}

func (r *Ref[T]) replace(ot *Target, newObj Object, record bool) error {
	if !ot.canMutate(newObj != nil) {
		return nil
	}
	var nt *Target
	if newObj != nil {
		nt = newObj.Ref()
		if nt.g != ot.g {
			return fmt.Errorf("assigning %s: %w", r.desc, ErrForeignObject)
		}
		if nt.IsDeleted() {
			return fmt.Errorf("assigning %s: %w", r.desc, ErrDeleted)
		}
	}

	r.mu.Lock()
	old := r.obj
	if Same(old, newObj) {
		r.mu.Unlock()
		return nil
	}
	if nt != nil && r.desc.Flags&Weak == 0 && ot.g.ownsTransitively(nt, ot) {
		r.mu.Unlock()
		return fmt.Errorf("assigning %s: %w", r.desc, ErrCyclicReference)
	}
	r.obj = newObj
	r.mu.Unlock()

	var oldT *Target
	if old != nil {
		oldT = old.Ref()
	}
	ot.g.unlink(ot, oldT, r)
	ot.g.link(ot, nt, r)
	ot.trackSlot(r)

	if s, ok := ot.g.recording(); ok && record && r.desc.Flags&NoUndo == 0 && ot.state.Load() == stateAlive {
		s.Push(&refCommand{set: func(o Object) { _ = r.replace(ot, o, false) }, oldObj: old, newObj: newObj})
	}

	if h, ok := ot.self.(ReplaceHandler); ok {
		h.ReferenceReplaced(r.desc, old, newObj)
	}
	ot.emitFieldChanged(r.desc)

	if oldT != nil && r.desc.Flags&Weak == 0 {
		ot.g.releaseIfUnreferenced(oldT)
	}
	return nil
}

func (r *Ref[T]) clearTarget(owner, target *Target) {
	r.mu.RLock()
	match := r.obj != nil && r.obj.Ref() == target
	r.mu.RUnlock()
	if match {
		_ = r.replace(owner, nil, false)
	}
}

func (r *Ref[T]) clearAll(owner *Target) {
	_ = r.replace(owner, nil, false)
}

type refCommand struct {
	set            func(Object)
	oldObj, newObj Object
}

func (c *refCommand) Undo() { c.set(c.oldObj) }
func (c *refCommand) Redo() { c.set(c.newObj) }

func (c *refCommand) retained() []Object { return []Object{c.oldObj, c.newObj} }
