package pipeline

import (
	"sync"

	"github.com/specialistvlad/ovipipe/internal/refgraph"
)

// statusField holds the status of an object and announces changes with an
// ObjectStatusChanged event. It is not undoable.
type statusField struct {
	mu sync.RWMutex
	s  Status
}

func (f *statusField) get() Status {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.s
}

func (f *statusField) set(owner *refgraph.Target, s Status) {
	f.mu.Lock()
	if f.s == s {
		f.mu.Unlock()
		return
	}
	f.s = s
	f.mu.Unlock()
	owner.NotifyDependents(refgraph.Event{Type: refgraph.ObjectStatusChanged})
}

// CachingNode is embedded by nodes that keep their output in a Cache. A
// TargetChanged event sent by the node itself narrows its own cache to the
// event's unchanged interval before dependents see the event.
type CachingNode struct {
	refgraph.Target
	env    *Env
	cache  *Cache
	status statusField
}

// InitCaching sets up the cache. owner is the node embedding n; it must have
// been added to env.Graph.
func (n *CachingNode) InitCaching(env *Env, owner Evaluator, role string) {
	n.env = env
	n.cache = NewCache(owner, role, env.Metrics)
	n.cache.OnUpdated(func() {
		n.NotifyDependents(refgraph.Event{Type: refgraph.PipelineCacheUpdated})
	})
}

// Env returns the environment the node was created in.
func (n *CachingNode) Env() *Env { return n.env }

// Cache returns the node's cache.
func (n *CachingNode) Cache() *Cache { return n.cache }

// Status returns the status of the latest evaluation.
func (n *CachingNode) Status() Status { return n.status.get() }

// SetStatus records the status of an evaluation.
func (n *CachingNode) SetStatus(s Status) { n.status.set(&n.Target, s) }

// BeforeNotifyDependents implements refgraph.NotifyHook.
func (n *CachingNode) BeforeNotifyDependents(ev refgraph.Event) {
	if ev.Type == refgraph.TargetChanged && refgraph.Same(ev.Sender, n.Self()) {
		n.cache.Invalidate(ev.Unchanged, false)
	}
}
