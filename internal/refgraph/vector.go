package refgraph

import (
	"fmt"
	"sync"
)

// VectorRef is an ordered list of references. The zero value must be
// initialized with Init before use.
type VectorRef[T Object] struct {
	desc *FieldDescriptor
	mu   sync.RWMutex
	objs []Object
}

// Init sets the field descriptor.
func (v *VectorRef[T]) Init(desc *FieldDescriptor) { v.desc = desc }

func (v *VectorRef[T]) descriptor() *FieldDescriptor { return v.desc }

// Len returns the number of entries.
func (v *VectorRef[T]) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.objs)
}

// At returns the entry at index i.
func (v *VectorRef[T]) At(i int) T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.objs[i].(T)
}

// All returns a copy of the entries.
func (v *VectorRef[T]) All() []T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]T, len(v.objs))
	for i, o := range v.objs {
		out[i] = o.(T)
	}
	return out
}

// IndexOf returns the index of the first entry that is obj, or -1.
func (v *VectorRef[T]) IndexOf(obj T) int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for i, o := range v.objs {
		if Same(o, obj) {
			return i
		}
	}
	return -1
}

// Insert adds obj at index. An index of -1 or Len appends.
func (v *VectorRef[T]) Insert(owner Object, index int, obj T) error {
	return v.insert(owner.Ref(), index, normalize(obj), true)
}

// Append adds obj at the end.
func (v *VectorRef[T]) Append(owner Object, obj T) error {
	return v.Insert(owner, -1, obj)
}

// Remove deletes the entry at index. The removed target is deleted if no
// strong reference to it remains.
func (v *VectorRef[T]) Remove(owner Object, index int) error {
	return v.remove(owner.Ref(), index, true)
}

func (v *VectorRef[T]) insert(ot *Target, index int, obj Object, record bool) error {
	if obj == nil {
		return fmt.Errorf("inserting into %s: nil target", v.desc)
	}
	if !ot.canMutate(true) {
		return nil
	}
	nt := obj.Ref()
	if nt.g != ot.g {
		return fmt.Errorf("inserting into %s: %w", v.desc, ErrForeignObject)
	}
	if nt.IsDeleted() {
		return fmt.Errorf("inserting into %s: %w", v.desc, ErrDeleted)
	}

	v.mu.Lock()
	if index < 0 || index > len(v.objs) {
		index = len(v.objs)
	}
	if v.desc.Flags&Weak == 0 && ot.g.ownsTransitively(nt, ot) {
		v.mu.Unlock()
		return fmt.Errorf("inserting into %s: %w", v.desc, ErrCyclicReference)
	}
	v.objs = append(v.objs, nil)
	copy(v.objs[index+1:], v.objs[index:])
	v.objs[index] = obj
	v.mu.Unlock()

	ot.g.link(ot, nt, v)
	ot.trackSlot(v)
	if s, ok := ot.g.recording(); ok && record && v.desc.Flags&NoUndo == 0 {
		s.Push(&vectorCommand{
			undo:    func() { _ = v.remove(ot, index, false) },
			redo:    func() { _ = v.insert(ot, index, obj, false) },
			objects: []Object{obj},
		})
	}
	if h, ok := ot.self.(VectorHandler); ok {
		h.ReferenceInserted(v.desc, obj, index)
	}
	ot.emitFieldChanged(v.desc)
	return nil
}

func (v *VectorRef[T]) remove(ot *Target, index int, record bool) error {
	if !ot.canMutate(false) {
		return nil
	}
	v.mu.Lock()
	if index < 0 || index >= len(v.objs) {
		n := len(v.objs)
		v.mu.Unlock()
		return fmt.Errorf("removing from %s: index %d out of range [0, %d)", v.desc, index, n)
	}
	obj := v.objs[index]
	v.objs = append(v.objs[:index:index], v.objs[index+1:]...)
	v.mu.Unlock()

	t := obj.Ref()
	ot.g.unlink(ot, t, v)
	if s, ok := ot.g.recording(); ok && record && v.desc.Flags&NoUndo == 0 && ot.state.Load() == stateAlive {
		s.Push(&vectorCommand{
			undo:    func() { _ = v.insert(ot, index, obj, false) },
			redo:    func() { _ = v.remove(ot, index, false) },
			objects: []Object{obj},
		})
	}
	if h, ok := ot.self.(VectorHandler); ok {
		h.ReferenceRemoved(v.desc, obj, index)
	}
	ot.emitFieldChanged(v.desc)
	if v.desc.Flags&Weak == 0 {
		ot.g.releaseIfUnreferenced(t)
	}
	return nil
}

func (v *VectorRef[T]) clearTarget(owner, target *Target) {
	for owner.canMutate(false) {
		idx := -1
		v.mu.RLock()
		for i := len(v.objs) - 1; i >= 0; i-- {
			if v.objs[i].Ref() == target {
				idx = i
				break
			}
		}
		v.mu.RUnlock()
		if idx < 0 {
			return
		}
		_ = v.remove(owner, idx, false)
	}
}

func (v *VectorRef[T]) clearAll(owner *Target) {
	for owner.canMutate(false) {
		n := v.Len()
		if n == 0 {
			return
		}
		if err := v.remove(owner, n-1, false); err != nil {
			return
		}
	}
}

type vectorCommand struct {
	undo, redo func()
	objects    []Object
}

func (c *vectorCommand) Undo() { c.undo() }
func (c *vectorCommand) Redo() { c.redo() }

func (c *vectorCommand) retained() []Object { return c.objects }
