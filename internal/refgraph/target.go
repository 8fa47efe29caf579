package refgraph

import (
	"sync"
	"sync/atomic"

	"github.com/specialistvlad/ovipipe/internal/interval"
)

const (
	stateAlive int32 = iota
	stateDeleting
	stateDeleted
)

// Target is the graph bookkeeping embedded in every object. The zero value is
// ready to be registered with Graph.Add.
type Target struct {
	g      *Graph
	id     ID
	self   Object
	state  atomic.Int32
	pinned atomic.Bool

	mu    sync.Mutex
	slots []slot
}

// Ref returns t itself, which makes every type embedding a Target an Object.
func (t *Target) Ref() *Target { return t }

// ID returns the object's ID, or 0 if it was never added to a graph.
func (t *Target) ID() ID { return t.id }

// Graph returns the graph the object belongs to.
func (t *Target) Graph() *Graph { return t.g }

// Self returns the object that embeds t.
func (t *Target) Self() Object { return t.self }

// IsDeleted reports whether the object is being or has been deleted.
func (t *Target) IsDeleted() bool { return t.state.Load() != stateAlive }

// Delete removes the object from its graph.
func (t *Target) Delete() {
	if t.g != nil {
		t.g.Delete(t.self)
	}
}

// Dependents returns the objects that reference this one.
func (t *Target) Dependents() []Object {
	if t.g == nil {
		return nil
	}
	return t.g.Dependents(t.self)
}

// NotifyDependents delivers ev to every dependent of the object. Dependents
// that ask for it re-broadcast the event to their own dependents. A nil
// Sender is replaced by the object itself.
func (t *Target) NotifyDependents(ev Event) {
	if t.g == nil || t.state.Load() == stateDeleted {
		return
	}
	if ev.Sender == nil {
		ev.Sender = t.self
	}
	if h, ok := t.self.(NotifyHook); ok {
		h.BeforeNotifyDependents(ev)
	}
	if ev.hops >= maxEventHops {
		t.g.logger.Warn("Event forwarding stopped at hop limit.", "event", ev.Type, "id", t.id)
		return
	}
	ev.hops++
	for _, dep := range t.g.Dependents(t.self) {
		dt := dep.Ref()
		if dt.state.Load() == stateDeleted {
			continue
		}
		if dt.receive(t.self, ev) {
			dt.NotifyDependents(ev)
		}
	}
}

// NotifyTargetChanged sends a TargetChanged event that invalidates all
// animation times. field names the field that changed and may be nil.
func (t *Target) NotifyTargetChanged(field *FieldDescriptor) {
	t.NotifyDependents(Event{Type: TargetChanged, Field: field, Unchanged: interval.Empty()})
}

// NotifyTargetChangedOutsideInterval sends a TargetChanged event stating
// that the object is unchanged within the given interval.
func (t *Target) NotifyTargetChangedOutsideInterval(unchanged interval.Interval) {
	t.NotifyDependents(Event{Type: TargetChanged, Unchanged: unchanged})
}

// DefaultReferenceEvent is the behavior of objects that do not handle an
// event themselves: propagating event types are forwarded unless source is
// only held through fields flagged DontPropagateMessages.
func (t *Target) DefaultReferenceEvent(source Object, ev Event) bool {
	if !ev.Type.Propagates() || t.g == nil {
		return false
	}
	st := source.Ref()
	t.g.mu.RLock()
	defer t.g.mu.RUnlock()
	for _, e := range t.g.out[t.id] {
		if e.target == st && e.slot.descriptor().Flags&DontPropagateMessages == 0 {
			return true
		}
	}
	return false
}

func (t *Target) receive(source Object, ev Event) bool {
	if h, ok := t.self.(Handler); ok {
		return h.ReferenceEvent(source, ev)
	}
	return t.DefaultReferenceEvent(source, ev)
}

// emitFieldChanged raises the notifications configured for a field.
func (t *Target) emitFieldChanged(desc *FieldDescriptor) {
	if desc.Flags&NoChangeMessage == 0 {
		t.NotifyTargetChanged(desc)
	}
	if desc.ChangeEvent != eventNone {
		t.NotifyDependents(Event{Type: desc.ChangeEvent, Field: desc})
	}
}

func (t *Target) trackSlot(s slot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, existing := range t.slots {
		if existing == s {
			return
		}
	}
	t.slots = append(t.slots, s)
}

func (t *Target) clearAllReferences() {
	t.mu.Lock()
	slots := append([]slot(nil), t.slots...)
	t.mu.Unlock()
	for _, s := range slots {
		s.clearAll(t)
	}
}

// canMutate reports whether reference fields of the object may change. New
// targets cannot be assigned while the object is being deleted.
func (t *Target) canMutate(assigning bool) bool {
	switch t.state.Load() {
	case stateAlive:
		return true
	case stateDeleting:
		return !assigning
	}
	return false
}
