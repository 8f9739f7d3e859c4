// Package scene is the minimal scene graph the pipeline attaches its
// artifacts to: groups holding children, and line segment objects.
package scene

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Object is a node that can be attached to a Group.
type Object interface {
	Name() string
	Parent() *Group

	setParent(*Group)
}

// node carries the parent link shared by every Object.
type node struct {
	name   string
	parent atomic.Pointer[Group]
}

func (n *node) Name() string { return n.name }

func (n *node) Parent() *Group { return n.parent.Load() }

func (n *node) setParent(g *Group) { n.parent.Store(g) }

// Group is a node with ordered children.
type Group struct {
	node

	mu       sync.RWMutex
	children []Object
}

var _ Object = (*Group)(nil)

// NewGroup returns an empty group.
func NewGroup(name string) *Group {
	g := &Group{}
	g.name = name
	return g
}

// Add attaches obj to g, detaching it from its previous parent first.
func (g *Group) Add(obj Object) {
	if prev := obj.Parent(); prev != nil {
		if prev == g {
			return
		}
		prev.Remove(obj)
	}

	g.mu.Lock()
	g.children = append(g.children, obj)
	g.mu.Unlock()
	obj.setParent(g)
}

// Remove detaches obj from g and reports whether it was a child.
func (g *Group) Remove(obj Object) bool {
	g.mu.Lock()
	idx := slices.Index(g.children, obj)
	if idx < 0 {
		g.mu.Unlock()
		return false
	}
	g.children = slices.Delete(g.children, idx, idx+1)
	g.mu.Unlock()

	obj.setParent(nil)
	return true
}

// Children returns a snapshot of the children.
func (g *Group) Children() []Object {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.children)
}

// FindByName returns the first direct child called name.
func (g *Group) FindByName(name string) (Object, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, c := range g.children {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// Detach removes obj from its parent, if any.
func Detach(obj Object) bool {
	if p := obj.Parent(); p != nil {
		return p.Remove(obj)
	}
	return false
}
