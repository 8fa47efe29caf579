// Package refgraph implements the object and reference graph that drives
// change propagation in the pipeline.
//
// Objects embed a Target and are registered with a Graph, which gives them a
// stable ID. An object refers to other objects through typed reference fields
// (Ref, VectorRef) and value fields (Property). The graph records every
// reference as an edge, so each target always knows its dependents: the
// objects that hold a reference to it.
//
// A target broadcasts typed events to its dependents with NotifyDependents.
// Each dependent handles the event in ReferenceEvent and may return true to
// re-broadcast it from itself, which lets a change several stages upstream
// reach the end of a chain without every stage relaying it by hand.
//
// Strong references form the ownership structure of the graph and may not
// form a cycle. An object that loses its last strong referrer deletes itself
// unless it has been pinned as a root. Weak references are back-references:
// they receive events but never own their target and are ignored by cycle
// detection and teardown.
//
// Reference and property mutations optionally record commands onto an
// UndoStack attached to the graph.
package refgraph
