package refgraph

import (
	"sync"
	"sync/atomic"
)

// Command is one undoable mutation.
type Command interface {
	Undo()
	Redo()
}

// retainer is implemented by commands that need objects to stay alive while
// the command can still be undone or redone.
type retainer interface {
	retained() []Object
}

// UndoStack records mutations of reference and property fields. Recording is
// suspended while an undo or redo is in progress.
type UndoStack struct {
	mu        sync.Mutex
	done      []Command
	undone    []Command
	suspended atomic.Int32
	retains   map[*Target]int
}

// NewUndoStack creates an empty stack.
func NewUndoStack() *UndoStack {
	return &UndoStack{retains: make(map[*Target]int)}
}

// IsRecording reports whether pushed commands are kept.
func (s *UndoStack) IsRecording() bool { return s.suspended.Load() == 0 }

// Suspend stops recording until the returned function is called.
func (s *UndoStack) Suspend() (resume func()) {
	s.suspended.Add(1)
	var once sync.Once
	return func() { once.Do(func() { s.suspended.Add(-1) }) }
}

// Push records c and discards everything that could be redone.
func (s *UndoStack) Push(c Command) {
	if !s.IsRecording() {
		return
	}
	s.mu.Lock()
	dropped := s.undone
	s.undone = nil
	s.done = append(s.done, c)
	s.retainLocked(c, 1)
	released := s.releaseLocked(dropped)
	s.mu.Unlock()
	releaseAll(released)
}

// CanUndo reports whether there is a command to undo.
func (s *UndoStack) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.done) > 0
}

// CanRedo reports whether there is a command to redo.
func (s *UndoStack) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.undone) > 0
}

// Undo reverts the most recent command. It returns false if there is none.
func (s *UndoStack) Undo() bool {
	s.mu.Lock()
	if len(s.done) == 0 {
		s.mu.Unlock()
		return false
	}
	c := s.done[len(s.done)-1]
	s.done = s.done[:len(s.done)-1]
	s.undone = append(s.undone, c)
	s.mu.Unlock()

	resume := s.Suspend()
	defer resume()
	c.Undo()
	return true
}

// Redo re-applies the most recently undone command. It returns false if there
// is none.
func (s *UndoStack) Redo() bool {
	s.mu.Lock()
	if len(s.undone) == 0 {
		s.mu.Unlock()
		return false
	}
	c := s.undone[len(s.undone)-1]
	s.undone = s.undone[:len(s.undone)-1]
	s.done = append(s.done, c)
	s.mu.Unlock()

	resume := s.Suspend()
	defer resume()
	c.Redo()
	return true
}

// Clear forgets all commands. Objects kept alive only by the history are
// deleted.
func (s *UndoStack) Clear() {
	s.mu.Lock()
	all := append(s.done, s.undone...)
	s.done, s.undone = nil, nil
	released := s.releaseLocked(all)
	s.mu.Unlock()
	releaseAll(released)
}

func (s *UndoStack) retainLocked(c Command, delta int) []*Target {
	r, ok := c.(retainer)
	if !ok {
		return nil
	}
	var zero []*Target
	for _, o := range r.retained() {
		if o == nil {
			continue
		}
		t := o.Ref()
		s.retains[t] += delta
		if s.retains[t] <= 0 {
			delete(s.retains, t)
			zero = append(zero, t)
		}
	}
	return zero
}

func (s *UndoStack) releaseLocked(cmds []Command) []*Target {
	var released []*Target
	for _, c := range cmds {
		released = append(released, s.retainLocked(c, -1)...)
	}
	return released
}

func (s *UndoStack) retainsTarget(t *Target) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retains[t] > 0
}

func releaseAll(targets []*Target) {
	for _, t := range targets {
		if t.g != nil {
			t.g.releaseIfUnreferenced(t)
		}
	}
}
