package refgraph

// listenerField holds the observed target without owning it.
var listenerField = FieldDescriptor{Name: "target", Flags: Weak | NoChangeMessage | NoUndo}

// Listener forwards the events of one target to a callback. Listeners are
// roots: they are not owned by anything and live until Close is called.
type Listener struct {
	Target
	target Ref[Object]
	fn     func(source Object, ev Event)
}

// NewListener starts observing target.
func NewListener(target Object, fn func(source Object, ev Event)) (*Listener, error) {
	g := target.Ref().Graph()
	l := &Listener{fn: fn}
	l.target.Init(&listenerField)
	g.Add(l)
	g.Pin(l)
	if err := l.target.Set(l, target); err != nil {
		g.Delete(l)
		return nil, err
	}
	return l, nil
}

// Observed returns the observed target, or nil once it has been deleted.
func (l *Listener) Observed() Object { return l.target.Get() }

// ReferenceEvent passes the event to the callback and never forwards it.
func (l *Listener) ReferenceEvent(source Object, ev Event) bool {
	l.fn(source, ev)
	return false
}

// Close stops the listener.
func (l *Listener) Close() { l.Delete() }
