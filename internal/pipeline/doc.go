// Package pipeline implements the evaluation and caching core of a data
// pipeline.
//
// A pipeline is a chain of Nodes. The upstream end is a data source; every
// further stage is a ModifierApplication that applies a Modifier to the
// output of its input node. Evaluating a node at an animation time yields a
// FlowState whose Validity tells over which time interval it stays correct.
//
// Each caching node owns a Cache. The cache answers requests for times inside
// the validity of a stored state without computing, lets concurrent requests
// for the same time share one computation and discards results that finish
// after an invalidation. Invalidation is driven by reference events: a
// TargetChanged event carries the interval that is unaffected by a change, so
// caches keep what is still valid.
//
// Errors are data at node boundaries. A failing or panicking modifier turns
// the state into an Error state that still carries the unmodified input data,
// and downstream stages pass such a state through untouched when the request
// asks to break on errors.
package pipeline
