package source

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/specialistvlad/ovipipe/internal/interval"
	"github.com/specialistvlad/ovipipe/internal/pipeline"
	"github.com/specialistvlad/ovipipe/internal/refgraph"
	"github.com/specialistvlad/ovipipe/internal/tasks"
)

// Static serves the same state for every request.
type Static struct {
	refgraph.Target
	mu    sync.RWMutex
	state pipeline.FlowState
	calls atomic.Int64
}

// NewStatic creates a node serving st.
func NewStatic(env *pipeline.Env, st pipeline.FlowState) *Static {
	s := &Static{state: st}
	env.Graph.Add(s)
	return s
}

// TypeName names the type in logs.
func (s *Static) TypeName() string { return "Static" }

// Title returns the display title.
func (s *Static) Title() string { return "Static data" }

// Calls returns how often the node was evaluated.
func (s *Static) Calls() int64 { return s.calls.Load() }

// SetState replaces the served state. Everything outside the new state's
// validity counts as changed.
func (s *Static) SetState(st pipeline.FlowState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.NotifyTargetChanged(nil)
}

func (s *Static) current() pipeline.FlowState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Evaluate returns the served state.
func (s *Static) Evaluate(context.Context, pipeline.Request) tasks.Future[pipeline.FlowState] {
	s.calls.Add(1)
	return tasks.Resolved(s.current())
}

// EvaluateSynchronous returns the served state.
func (s *Static) EvaluateSynchronous(context.Context, pipeline.Request) pipeline.FlowState {
	return s.current()
}

// ValidityInterval returns the validity of the served state.
func (s *Static) ValidityInterval(pipeline.Request) interval.Interval { return s.current().Validity }

// NumberOfSourceFrames returns 1.
func (s *Static) NumberOfSourceFrames() int { return 1 }

// AnimationTimeToSourceFrame returns 0.
func (s *Static) AnimationTimeToSourceFrame(interval.Time) int { return 0 }

// SourceFrameToAnimationTime returns 0.
func (s *Static) SourceFrameToAnimationTime(int) interval.Time { return 0 }

// Status returns the status of the served state.
func (s *Static) Status() pipeline.Status { return s.current().Status }
