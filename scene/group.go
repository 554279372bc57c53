// Package scene tracks which renderable objects are attached to the
// globe's scene graph. The frame loop samples it; overlays mutate it.
package scene

import (
	"sort"
	"sync"
)

// Object is anything that can be attached to a group.
type Object interface {
	// ObjectID uniquely names the object within a group.
	ObjectID() string
}

// Group is a thread-safe set of attached objects.
type Group struct {
	mu      sync.RWMutex
	name    string
	objects map[string]Object
	version uint64
}

// NewGroup returns an empty group.
func NewGroup(name string) *Group {
	return &Group{name: name, objects: make(map[string]Object)}
}

// Name returns the group name.
func (g *Group) Name() string { return g.name }

// ObjectID lets a group be attached to a parent group.
func (g *Group) ObjectID() string { return "group/" + g.name }

// Attach adds objects, replacing any with the same ID.
func (g *Group) Attach(objs ...Object) {
	g.Swap(nil, objs)
}

// Detach removes objects by identity of their IDs.
func (g *Group) Detach(objs ...Object) {
	g.Swap(objs, nil)
}

// Swap detaches then attaches in a single step, so readers never observe
// both or neither.
func (g *Group) Swap(detach, attach []Object) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, o := range detach {
		if o != nil {
			delete(g.objects, o.ObjectID())
		}
	}
	for _, o := range attach {
		if o != nil {
			g.objects[o.ObjectID()] = o
		}
	}
	g.version++
}

// Contains reports whether an object with the given ID is attached.
func (g *Group) Contains(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.objects[id]
	return ok
}

// List returns attached objects ordered by ID.
func (g *Group) List() []Object {
	g.mu.RLock()
	out := make([]Object, 0, len(g.objects))
	for _, o := range g.objects {
		out = append(out, o)
	}
	g.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ObjectID() < out[j].ObjectID() })
	return out
}

// IDs returns the attached object IDs in order.
func (g *Group) IDs() []string {
	objs := g.List()
	ids := make([]string, len(objs))
	for i, o := range objs {
		ids[i] = o.ObjectID()
	}
	return ids
}

// Len returns the number of attached objects.
func (g *Group) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.objects)
}

// Version increments on every mutation.
func (g *Group) Version() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.version
}
