package refgraph

import "github.com/specialistvlad/ovipipe/internal/interval"

// EventType identifies the kind of a reference event.
type EventType int

const (
	eventNone EventType = iota
	// TargetChanged is sent when a target or something it depends on changed.
	// The Unchanged interval of the event tells which animation times are
	// known to be unaffected.
	TargetChanged
	// TargetDeleted is sent right before a target is removed from the graph.
	TargetDeleted
	// TargetEnabledOrDisabled is sent when an object was enabled or disabled.
	TargetEnabledOrDisabled
	// TitleChanged is sent when the display title of an object changed.
	TitleChanged
	// PipelineChanged is sent when the structure of a pipeline changed.
	PipelineChanged
	// AnimationFramesChanged is sent when the number of animation frames
	// produced by a pipeline stage may have changed.
	AnimationFramesChanged
	// PreliminaryStateAvailable is sent when a stage can offer a cheap,
	// non-authoritative update of its output.
	PreliminaryStateAvailable
	// ObjectStatusChanged is sent when the status of an object changed.
	ObjectStatusChanged
	// PipelineInputChanged is sent by a pipeline to consumers of its output
	// when new output is available.
	PipelineInputChanged
	// PipelineCacheUpdated is sent when a stage stored a new state in its cache.
	PipelineCacheUpdated
	// ModifierInputChanged is sent by a modifier when the input of one of its
	// applications changed.
	ModifierInputChanged
)

var eventNames = map[EventType]string{
	TargetChanged:             "TargetChanged",
	TargetDeleted:             "TargetDeleted",
	TargetEnabledOrDisabled:   "TargetEnabledOrDisabled",
	TitleChanged:              "TitleChanged",
	PipelineChanged:           "PipelineChanged",
	AnimationFramesChanged:    "AnimationFramesChanged",
	PreliminaryStateAvailable: "PreliminaryStateAvailable",
	ObjectStatusChanged:       "ObjectStatusChanged",
	PipelineInputChanged:      "PipelineInputChanged",
	PipelineCacheUpdated:      "PipelineCacheUpdated",
	ModifierInputChanged:      "ModifierInputChanged",
}

func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return "None"
}

// Propagates reports whether events of this type are re-broadcast by
// dependents that do not handle them explicitly.
func (t EventType) Propagates() bool {
	return t == TargetChanged || t == PreliminaryStateAvailable
}

// Event is a notification sent from a target to its dependents.
type Event struct {
	Type EventType
	// Sender is the object that originated the event. It stays the same while
	// the event is forwarded.
	Sender Object
	// Field is the field of Sender whose change caused a TargetChanged event.
	// It is nil for changes that are not tied to a field.
	Field *FieldDescriptor
	// Unchanged is the animation time interval known to be unaffected by a
	// TargetChanged event. It is empty when everything may have changed.
	Unchanged interval.Interval

	hops int
}

// Handler is implemented by objects that react to events of their targets.
//
// ReferenceEvent is called once per event for every dependent of the source.
// The source argument is the directly referenced object that delivered the
// event, which differs from Event.Sender for forwarded events. Returning true
// re-broadcasts the event to the dependents of the receiving object.
//
// Objects that do not implement Handler get the default behavior of
// Target.DefaultReferenceEvent.
type Handler interface {
	ReferenceEvent(source Object, ev Event) bool
}

// NotifyHook is implemented by objects that need to observe their own
// outgoing events before the dependents receive them.
type NotifyHook interface {
	BeforeNotifyDependents(ev Event)
}

// ReplaceHandler is implemented by objects that react to one of their single
// reference fields pointing to a different target.
type ReplaceHandler interface {
	ReferenceReplaced(field *FieldDescriptor, oldTarget, newTarget Object)
}

// VectorHandler is implemented by objects that react to insertions into and
// removals from their vector reference fields.
type VectorHandler interface {
	ReferenceInserted(field *FieldDescriptor, target Object, index int)
	ReferenceRemoved(field *FieldDescriptor, target Object, index int)
}

// DeleteHook is implemented by objects that release resources before they are
// removed from the graph. It runs before dependents receive TargetDeleted.
type DeleteHook interface {
	AboutToBeDeleted()
}
