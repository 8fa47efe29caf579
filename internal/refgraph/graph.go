package refgraph

import (
	"errors"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
)

var (
	// ErrCyclicReference is returned when a strong reference would make an
	// object (indirectly) own itself.
	ErrCyclicReference = errors.New("refgraph: cyclic reference")
	// ErrDeleted is returned when a reference to a deleted object is requested.
	ErrDeleted = errors.New("refgraph: object has been deleted")
	// ErrForeignObject is returned when objects of different graphs are linked.
	ErrForeignObject = errors.New("refgraph: object belongs to a different graph")
)

// ID identifies an object within its graph.
type ID uint64

// Object is implemented by every type that takes part in the graph. The usual
// way is to embed a Target.
type Object interface {
	Ref() *Target
}

// maxEventHops bounds event forwarding over weak back-reference cycles.
const maxEventHops = 256

// edge is one reference from an owner field to a target.
type edge struct {
	owner  *Target
	target *Target
	slot   slot
}

func (e edge) weak() bool { return e.slot.descriptor().Flags&Weak != 0 }

// Graph is the arena all objects of one document live in. It stores the
// reference edges between objects in both directions.
type Graph struct {
	mu      sync.RWMutex
	nextID  ID
	objects map[ID]*Target
	in      map[ID][]edge
	out     map[ID][]edge

	logger *slog.Logger
	undo   atomic.Pointer[UndoStack]
}

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the logger used by event handlers that have no context.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Graph) { g.logger = logger }
}

// WithUndoStack attaches an undo stack that mutations record onto.
func WithUndoStack(s *UndoStack) Option {
	return func(g *Graph) { g.undo.Store(s) }
}

// NewGraph creates an empty graph.
func NewGraph(opts ...Option) *Graph {
	g := &Graph{
		objects: make(map[ID]*Target),
		in:      make(map[ID][]edge),
		out:     make(map[ID][]edge),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Logger returns the graph's logger.
func (g *Graph) Logger() *slog.Logger { return g.logger }

// UndoStack returns the attached undo stack, or nil.
func (g *Graph) UndoStack() *UndoStack { return g.undo.Load() }

// SetUndoStack attaches or (with nil) detaches an undo stack.
func (g *Graph) SetUndoStack(s *UndoStack) { g.undo.Store(s) }

// Add registers obj with the graph and returns its ID. Adding an object twice
// returns the existing ID.
func (g *Graph) Add(obj Object) ID {
	t := obj.Ref()
	g.mu.Lock()
	defer g.mu.Unlock()
	if t.g != nil {
		return t.id
	}
	g.nextID++
	t.g = g
	t.id = g.nextID
	t.self = obj
	g.objects[t.id] = t
	g.logger.Debug("Object registered.", "id", t.id, "type", typeName(obj))
	return t.id
}

// Lookup resolves an ID to its object.
func (g *Graph) Lookup(id ID) (Object, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.objects[id]
	if !ok {
		return nil, false
	}
	return t.self, true
}

// Len returns the number of live objects.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.objects)
}

// Pin marks obj as a root that is not deleted when it loses its last strong
// referrer.
func (g *Graph) Pin(obj Object) { obj.Ref().pinned.Store(true) }

// Unpin clears the root mark set by Pin. An unpinned object without strong
// referrers is deleted right away.
func (g *Graph) Unpin(obj Object) {
	obj.Ref().pinned.Store(false)
	g.releaseIfUnreferenced(obj.Ref())
}

// Dependents returns the distinct objects that currently reference obj, in
// the order their first reference was made.
func (g *Graph) Dependents(obj Object) []Object {
	t := obj.Ref()
	g.mu.RLock()
	defer g.mu.RUnlock()
	var deps []Object
	seen := make(map[*Target]struct{})
	for _, e := range g.in[t.id] {
		if _, ok := seen[e.owner]; ok {
			continue
		}
		seen[e.owner] = struct{}{}
		deps = append(deps, e.owner.self)
	}
	return deps
}

// References returns the distinct objects obj currently refers to.
func (g *Graph) References(obj Object) []Object {
	t := obj.Ref()
	g.mu.RLock()
	defer g.mu.RUnlock()
	var refs []Object
	seen := make(map[*Target]struct{})
	for _, e := range g.out[t.id] {
		if _, ok := seen[e.target]; ok {
			continue
		}
		seen[e.target] = struct{}{}
		refs = append(refs, e.target.self)
	}
	return refs
}

// Delete removes obj from the graph. Deleting an object that is already
// being deleted is a no-op.
//
// The object's DeleteHook runs first, then its dependents receive
// TargetDeleted, then every reference to the object is cleared and finally
// the object's own references are released, which may delete targets that
// become unreferenced.
func (g *Graph) Delete(obj Object) {
	t := obj.Ref()
	if !t.state.CompareAndSwap(stateAlive, stateDeleting) {
		return
	}
	g.logger.Debug("Deleting object.", "id", t.id, "type", typeName(obj))

	if h, ok := obj.(DeleteHook); ok {
		h.AboutToBeDeleted()
	}
	t.NotifyDependents(Event{Type: TargetDeleted, Sender: obj})

	g.mu.RLock()
	incoming := append([]edge(nil), g.in[t.id]...)
	g.mu.RUnlock()
	for _, e := range incoming {
		e.slot.clearTarget(e.owner, t)
	}

	t.clearAllReferences()

	g.mu.Lock()
	delete(g.objects, t.id)
	delete(g.in, t.id)
	delete(g.out, t.id)
	g.mu.Unlock()
	t.state.Store(stateDeleted)
}

func (g *Graph) link(owner, target *Target, s slot) {
	if target == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	e := edge{owner: owner, target: target, slot: s}
	g.in[target.id] = append(g.in[target.id], e)
	g.out[owner.id] = append(g.out[owner.id], e)
}

func (g *Graph) unlink(owner, target *Target, s slot) {
	if target == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.in[target.id] = removeEdge(g.in[target.id], owner, target, s)
	g.out[owner.id] = removeEdge(g.out[owner.id], owner, target, s)
}

func removeEdge(edges []edge, owner, target *Target, s slot) []edge {
	for i, e := range edges {
		if e.owner == owner && e.target == target && e.slot == s {
			return append(edges[:i:i], edges[i+1:]...)
		}
	}
	return edges
}

// ownsTransitively reports whether from reaches to over strong edges.
func (g *Graph) ownsTransitively(from, to *Target) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	visited := make(map[*Target]struct{})
	stack := []*Target{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == to {
			return true
		}
		if _, ok := visited[cur]; ok {
			continue
		}
		visited[cur] = struct{}{}
		for _, e := range g.out[cur.id] {
			if !e.weak() {
				stack = append(stack, e.target)
			}
		}
	}
	return false
}

func (g *Graph) strongReferrers(t *Target) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, e := range g.in[t.id] {
		if !e.weak() {
			n++
		}
	}
	return n
}

// releaseIfUnreferenced deletes t once no strong reference to it is left.
func (g *Graph) releaseIfUnreferenced(t *Target) {
	if t == nil || t.pinned.Load() || t.state.Load() != stateAlive {
		return
	}
	if g.strongReferrers(t) > 0 {
		return
	}
	if s := g.undo.Load(); s != nil && s.retainsTarget(t) {
		return
	}
	g.Delete(t.self)
}

func (g *Graph) recording() (*UndoStack, bool) {
	s := g.undo.Load()
	if s == nil || !s.IsRecording() {
		return nil, false
	}
	return s, true
}

// Same reports whether a and b denote the same object. Nil and typed nil
// pointers are considered equal to each other.
func Same(a, b Object) bool {
	an, bn := isNil(a), isNil(b)
	if an || bn {
		return an == bn
	}
	return a.Ref() == b.Ref()
}

func isNil(o Object) bool {
	if o == nil {
		return true
	}
	v := reflect.ValueOf(o)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

func normalize(o Object) Object {
	if isNil(o) {
		return nil
	}
	return o
}

func typeName(o Object) string {
	if t, ok := o.(interface{ TypeName() string }); ok {
		return t.TypeName()
	}
	return reflect.TypeOf(o).String()
}
