package refgraph

import (
	"fmt"
	"sync"
	"testing"

	"github.com/specialistvlad/ovipipe/internal/interval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	childField   = FieldDescriptor{Name: "child"}
	quietField   = FieldDescriptor{Name: "quiet", Flags: NoChangeMessage}
	mutedField   = FieldDescriptor{Name: "muted", Flags: DontPropagateMessages}
	backField    = FieldDescriptor{Name: "back", Flags: Weak | NoChangeMessage | DontPropagateMessages}
	kidsField    = FieldDescriptor{Name: "kids"}
	valueField   = FieldDescriptor{Name: "value"}
	enabledField = FieldDescriptor{Name: "enabled", ChangeEvent: TargetEnabledOrDisabled}
)

// testNode is a minimal object with one field of every kind.
type testNode struct {
	Target
	name    string
	child   Ref[*testNode]
	quiet   Ref[*testNode]
	muted   Ref[*testNode]
	back    Ref[*testNode]
	kids    VectorRef[*testNode]
	value   Property[int]
	enabled Property[bool]

	mu       sync.Mutex
	events   []string
	replaced []string
	vector   []string
	stop     bool
	onDelete func()
}

func newTestNode(g *Graph, name string) *testNode {
	n := &testNode{name: name}
	n.child.Init(&childField)
	n.quiet.Init(&quietField)
	n.muted.Init(&mutedField)
	n.back.Init(&backField)
	n.kids.Init(&kidsField)
	n.value.Init(&valueField, 0)
	n.enabled.Init(&enabledField, true)
	g.Add(n)
	return n
}

func (n *testNode) ReferenceEvent(source Object, ev Event) bool {
	n.mu.Lock()
	n.events = append(n.events, fmt.Sprintf("%s from %s", ev.Type, source.(*testNode).name))
	stop := n.stop
	n.mu.Unlock()
	if stop {
		return false
	}
	return n.DefaultReferenceEvent(source, ev)
}

func (n *testNode) ReferenceReplaced(field *FieldDescriptor, oldTarget, newTarget Object) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.replaced = append(n.replaced, fmt.Sprintf("%s: %s -> %s", field.Name, nameOf(oldTarget), nameOf(newTarget)))
}

func (n *testNode) ReferenceInserted(field *FieldDescriptor, target Object, index int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.vector = append(n.vector, fmt.Sprintf("insert %s at %d", nameOf(target), index))
}

func (n *testNode) ReferenceRemoved(field *FieldDescriptor, target Object, index int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.vector = append(n.vector, fmt.Sprintf("remove %s at %d", nameOf(target), index))
}

func (n *testNode) AboutToBeDeleted() {
	if n.onDelete != nil {
		n.onDelete()
	}
}

func (n *testNode) received() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

func (n *testNode) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = nil
	n.replaced = nil
	n.vector = nil
}

func nameOf(o Object) string {
	if isNil(o) {
		return "nil"
	}
	return o.(*testNode).name
}

func newRoot(g *Graph, name string) *testNode {
	n := newTestNode(g, name)
	g.Pin(n)
	return n
}

func TestRef_SetMaintainsDependents(t *testing.T) {
	g := NewGraph()
	a := newRoot(g, "a")
	b := newRoot(g, "b")
	c := newRoot(g, "c")

	require.NoError(t, a.child.Set(a, b))
	assert.Equal(t, []Object{a}, b.Dependents())
	assert.Equal(t, []string{"child: nil -> b"}, a.replaced)

	require.NoError(t, a.child.Set(a, c))
	assert.Empty(t, b.Dependents())
	assert.Equal(t, []Object{a}, c.Dependents())
	assert.Equal(t, []string{"child: nil -> b", "child: b -> c"}, a.replaced)
	assert.Same(t, c, a.child.Get())
}

func TestRef_SetSameTargetIsNoop(t *testing.T) {
	g := NewGraph()
	a := newRoot(g, "a")
	b := newRoot(g, "b")
	require.NoError(t, a.child.Set(a, b))
	a.reset()

	require.NoError(t, a.child.Set(a, b))
	assert.Empty(t, a.replaced)
	assert.Len(t, g.in[b.ID()], 1)
}

func TestNotifyDependents_PropagatesThroughChain(t *testing.T) {
	g := NewGraph()
	a := newRoot(g, "a")
	b := newRoot(g, "b")
	c := newRoot(g, "c")
	require.NoError(t, a.child.Set(a, b))
	require.NoError(t, b.child.Set(b, c))
	a.reset()
	b.reset()

	c.NotifyTargetChangedOutsideInterval(interval.New(10, 20))

	assert.Equal(t, []string{"TargetChanged from c"}, b.received())
	assert.Equal(t, []string{"TargetChanged from b"}, a.received())
}

func TestNotifyDependents_HandlerStopsPropagation(t *testing.T) {
	g := NewGraph()
	a := newRoot(g, "a")
	b := newRoot(g, "b")
	c := newRoot(g, "c")
	require.NoError(t, a.child.Set(a, b))
	require.NoError(t, b.child.Set(b, c))
	a.reset()
	b.stop = true

	c.NotifyTargetChanged(nil)

	assert.Equal(t, []string{"TargetChanged from c"}, b.received())
	assert.Empty(t, a.received())
}

func TestNotifyDependents_NonPropagatingEventStops(t *testing.T) {
	g := NewGraph()
	a := newRoot(g, "a")
	b := newRoot(g, "b")
	c := newRoot(g, "c")
	require.NoError(t, a.child.Set(a, b))
	require.NoError(t, b.child.Set(b, c))
	a.reset()
	b.reset()

	c.NotifyDependents(Event{Type: ObjectStatusChanged})

	assert.Equal(t, []string{"ObjectStatusChanged from c"}, b.received())
	assert.Empty(t, a.received())
}

func TestNotifyDependents_DontPropagateField(t *testing.T) {
	g := NewGraph()
	a := newRoot(g, "a")
	b := newRoot(g, "b")
	c := newRoot(g, "c")
	require.NoError(t, a.child.Set(a, b))
	require.NoError(t, b.muted.Set(b, c))
	a.reset()

	c.NotifyTargetChanged(nil)
	assert.Empty(t, a.received(), "events via a muted field are not forwarded")

	require.NoError(t, b.child.Set(b, c))
	a.reset()
	c.NotifyTargetChanged(nil)
	assert.Equal(t, []string{"TargetChanged from b"}, a.received(), "a second, propagating field forwards")
}

func TestRef_NoChangeMessage(t *testing.T) {
	g := NewGraph()
	a := newRoot(g, "a")
	b := newRoot(g, "b")
	c := newRoot(g, "c")
	require.NoError(t, a.child.Set(a, b))
	a.reset()

	require.NoError(t, b.quiet.Set(b, c))
	assert.Empty(t, a.received())

	require.NoError(t, b.child.Set(b, c))
	assert.Equal(t, []string{"TargetChanged from b"}, a.received())
}

func TestRef_CyclicReference(t *testing.T) {
	g := NewGraph()
	a := newRoot(g, "a")
	b := newRoot(g, "b")
	c := newRoot(g, "c")
	require.NoError(t, a.child.Set(a, b))
	require.NoError(t, b.child.Set(b, c))

	err := c.child.Set(c, a)
	require.ErrorIs(t, err, ErrCyclicReference)
	assert.Nil(t, c.child.Get())

	require.ErrorIs(t, a.child.Set(a, a), ErrCyclicReference)
	assert.NoError(t, c.back.Set(c, a), "weak back-references may close a cycle")
}

func TestRef_SelfDestructWhenUnreferenced(t *testing.T) {
	g := NewGraph()
	a := newRoot(g, "a")
	b := newTestNode(g, "b")
	c := newTestNode(g, "c")
	require.NoError(t, a.child.Set(a, b))
	require.NoError(t, b.child.Set(b, c))
	require.Equal(t, 3, g.Len())

	require.NoError(t, a.child.Set(a, nil))

	assert.True(t, b.IsDeleted())
	assert.True(t, c.IsDeleted(), "deletion cascades along strong references")
	assert.Equal(t, 1, g.Len())
}

func TestRef_SharedTargetSurvivesOneRelease(t *testing.T) {
	g := NewGraph()
	a := newRoot(g, "a")
	b := newRoot(g, "b")
	shared := newTestNode(g, "shared")
	require.NoError(t, a.child.Set(a, shared))
	require.NoError(t, b.child.Set(b, shared))

	require.NoError(t, a.child.Set(a, nil))
	assert.False(t, shared.IsDeleted())

	require.NoError(t, b.child.Set(b, nil))
	assert.True(t, shared.IsDeleted())
}

func TestRef_WeakReferenceDoesNotOwn(t *testing.T) {
	g := NewGraph()
	a := newRoot(g, "a")
	b := newTestNode(g, "b")
	require.NoError(t, a.child.Set(a, b))
	require.NoError(t, a.back.Set(a, b))

	require.NoError(t, a.child.Set(a, nil))
	assert.True(t, b.IsDeleted())
	assert.Nil(t, a.back.Get(), "weak references are cleared on deletion")
}

func TestDelete_NotifiesAndClearsReferences(t *testing.T) {
	g := NewGraph()
	a := newRoot(g, "a")
	b := newRoot(g, "b")
	require.NoError(t, a.child.Set(a, b))
	a.reset()

	g.Delete(b)

	assert.Contains(t, a.received(), "TargetDeleted from b")
	assert.Nil(t, a.child.Get())
	assert.Contains(t, a.replaced, "child: b -> nil")
	_, ok := g.Lookup(b.ID())
	assert.False(t, ok)

	assert.NotPanics(t, func() { g.Delete(b) }, "deleting twice is a no-op")
}

func TestDelete_MutationDuringTeardownIsNoop(t *testing.T) {
	g := NewGraph()
	a := newRoot(g, "a")
	other := newRoot(g, "other")
	a.onDelete = func() {
		assert.NoError(t, a.child.Set(a, other))
	}

	g.Delete(a)

	assert.Nil(t, a.child.Get())
	assert.Empty(t, other.Dependents())
	assert.NoError(t, a.child.Set(a, other), "assigning after deletion is a silent no-op")
	assert.Nil(t, a.child.Get())
}

func TestRef_RejectsDeletedTarget(t *testing.T) {
	g := NewGraph()
	a := newRoot(g, "a")
	b := newRoot(g, "b")
	g.Delete(b)
	require.ErrorIs(t, a.child.Set(a, b), ErrDeleted)
}

func TestVectorRef_InsertRemove(t *testing.T) {
	g := NewGraph()
	a := newRoot(g, "a")
	x := newTestNode(g, "x")
	y := newTestNode(g, "y")
	z := newTestNode(g, "z")

	require.NoError(t, a.kids.Append(a, x))
	require.NoError(t, a.kids.Append(a, z))
	require.NoError(t, a.kids.Insert(a, 1, y))
	assert.Equal(t, []*testNode{x, y, z}, a.kids.All())
	assert.Equal(t, 1, a.kids.IndexOf(y))

	require.NoError(t, a.kids.Remove(a, 0))
	assert.Equal(t, []*testNode{y, z}, a.kids.All())
	assert.True(t, x.IsDeleted())
	assert.Equal(t, []string{"insert x at 0", "insert z at 1", "insert y at 1", "remove x at 0"}, a.vector)

	require.Error(t, a.kids.Remove(a, 5))

	g.Delete(y)
	assert.Equal(t, []*testNode{z}, a.kids.All(), "deleted targets are removed from vectors")
}

func TestProperty_SetRaisesEvents(t *testing.T) {
	g := NewGraph()
	a := newRoot(g, "a")
	b := newRoot(g, "b")
	require.NoError(t, a.child.Set(a, b))
	a.reset()

	assert.True(t, b.value.Set(b, 5))
	assert.False(t, b.value.Set(b, 5), "unchanged values raise nothing")
	assert.Equal(t, []string{"TargetChanged from b"}, a.received())

	a.reset()
	assert.True(t, b.enabled.Set(b, false))
	assert.Equal(t, []string{"TargetChanged from b", "TargetEnabledOrDisabled from b"}, a.received())
}

func TestUndoStack_RefAndProperty(t *testing.T) {
	stack := NewUndoStack()
	g := NewGraph(WithUndoStack(stack))
	a := newRoot(g, "a")
	b := newTestNode(g, "b")
	c := newTestNode(g, "c")

	require.NoError(t, a.child.Set(a, b))
	require.NoError(t, a.child.Set(a, c))
	assert.False(t, b.IsDeleted(), "objects referenced by the history stay alive")
	a.value.Set(a, 3)

	require.True(t, stack.Undo())
	assert.Equal(t, 0, a.value.Get())
	require.True(t, stack.Undo())
	assert.Same(t, b, a.child.Get())
	require.True(t, stack.Redo())
	assert.Same(t, c, a.child.Get())

	stack.Clear()
	assert.True(t, b.IsDeleted(), "clearing the history releases unreferenced objects")
	assert.False(t, c.IsDeleted())
	assert.False(t, stack.CanUndo())
}

func TestUndoStack_SuspendedRecordsNothing(t *testing.T) {
	stack := NewUndoStack()
	g := NewGraph(WithUndoStack(stack))
	a := newRoot(g, "a")

	resume := stack.Suspend()
	a.value.Set(a, 1)
	resume()
	assert.False(t, stack.CanUndo())

	a.value.Set(a, 2)
	assert.True(t, stack.CanUndo())
}

func TestListener_ReceivesEventsWithoutOwning(t *testing.T) {
	g := NewGraph()
	a := newTestNode(g, "a")
	var mu sync.Mutex
	var got []EventType
	l, err := NewListener(a, func(_ Object, ev Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev.Type)
	})
	require.NoError(t, err)

	a.NotifyDependents(Event{Type: PipelineCacheUpdated})
	g.Delete(a)

	assert.Equal(t, []EventType{PipelineCacheUpdated, TargetDeleted}, got)
	assert.Nil(t, l.Observed())
	l.Close()
	assert.Equal(t, 0, g.Len())
}

func TestGraph_ConcurrentMutation(t *testing.T) {
	g := NewGraph()
	root := newRoot(g, "root")
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n := newTestNode(g, fmt.Sprintf("n%d", i))
			assert.NoError(t, root.kids.Append(root, n))
			n.NotifyTargetChanged(nil)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, root.kids.Len())
	assert.Equal(t, 21, g.Len())
}

func TestSame(t *testing.T) {
	g := NewGraph()
	a := newTestNode(g, "a")
	var typedNil *testNode
	assert.True(t, Same(nil, typedNil))
	assert.True(t, Same(a, a))
	assert.False(t, Same(a, nil))
}
