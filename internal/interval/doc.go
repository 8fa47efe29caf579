// Package interval implements closed animation-time intervals.
//
// An Interval is the unit of cache validity in the pipeline: every evaluated
// state carries the interval over which it stays correct, and invalidation is
// expressed as the interval that is known to be unaffected by a change.
// Intervals are immutable values. The empty interval and the infinite
// interval are represented by sentinel bounds.
package interval
