package pipeline

import (
	"context"

	"github.com/specialistvlad/ovipipe/internal/interval"
	"github.com/specialistvlad/ovipipe/internal/refgraph"
	"github.com/specialistvlad/ovipipe/internal/tasks"
)

// Node is a stage of a pipeline.
//
// Evaluate produces the output for a request asynchronously. The returned
// future may be shared with other requesters; canceling it only withdraws
// the caller's interest.
//
// EvaluateSynchronous never waits. It returns the best output that is
// available right away, which may be a preliminary result.
//
// The frame methods tell how many animation frames the stage produces and
// how animation times map to source frames.
type Node interface {
	refgraph.Object
	Evaluate(ctx context.Context, req Request) tasks.Future[FlowState]
	EvaluateSynchronous(ctx context.Context, req Request) FlowState
	ValidityInterval(req Request) interval.Interval
	NumberOfSourceFrames() int
	AnimationTimeToSourceFrame(t interval.Time) int
	SourceFrameToAnimationTime(frame int) interval.Time
	Status() Status
	Title() string
}

// Evaluator is the part of a node that a Cache calls to compute states it
// does not hold.
type Evaluator interface {
	EvaluateInternal(ctx context.Context, req Request) tasks.Future[FlowState]
	EvaluateInternalSynchronous(ctx context.Context, req Request) FlowState
}
