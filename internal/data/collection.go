package data

// Object is an immutable data object held by a Collection.
type Object interface {
	// Identifier names the object within its collection.
	Identifier() string
}

// Collection is an immutable, ordered set of data objects with unique
// identifiers.
type Collection struct {
	objects []Object
}

// NewCollection creates a collection from objs. Later objects replace earlier
// ones with the same identifier.
func NewCollection(objs ...Object) *Collection {
	c := &Collection{}
	for _, o := range objs {
		c = c.With(o)
	}
	return c
}

// Len returns the number of objects.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.objects)
}

// Objects returns the objects in order.
func (c *Collection) Objects() []Object {
	if c == nil {
		return nil
	}
	return append([]Object(nil), c.objects...)
}

// Get finds an object by identifier.
func (c *Collection) Get(id string) (Object, bool) {
	if c == nil {
		return nil, false
	}
	for _, o := range c.objects {
		if o.Identifier() == id {
			return o, true
		}
	}
	return nil, false
}

// Table finds a table by identifier.
func (c *Collection) Table(id string) (*Table, bool) {
	o, ok := c.Get(id)
	if !ok {
		return nil, false
	}
	t, ok := o.(*Table)
	return t, ok
}

// With returns a collection that contains obj, replacing an object with the
// same identifier in place.
func (c *Collection) With(obj Object) *Collection {
	var objs []Object
	if c != nil {
		objs = make([]Object, 0, len(c.objects)+1)
		objs = append(objs, c.objects...)
	}
	for i, o := range objs {
		if o.Identifier() == obj.Identifier() {
			objs[i] = obj
			return &Collection{objects: objs}
		}
	}
	return &Collection{objects: append(objs, obj)}
}

// Without returns a collection without the object named id.
func (c *Collection) Without(id string) *Collection {
	if c == nil {
		return nil
	}
	objs := make([]Object, 0, len(c.objects))
	for _, o := range c.objects {
		if o.Identifier() != id {
			objs = append(objs, o)
		}
	}
	return &Collection{objects: objs}
}
