package scene

import (
	"sort"
	"sync"
	"weak"

	"github.com/df07/go-pbrt-scenegraph/pkg/core"
)

// Node is an element of the scene tree. Children are owned by their
// parent; the parent link is weak so a detached subtree cannot be kept
// alive through it. All fields are guarded by the node's own lock, so
// readers may walk the tree while unrelated subtrees are edited.
type Node struct {
	mu         sync.RWMutex
	id         string
	name       string
	enabled    bool
	parent     weak.Pointer[Node]
	children   []*Node
	components map[Kind]Component
}

// NewNode creates an enabled, parentless node
func NewNode(name string) *Node {
	return &Node{
		id:         NewID(),
		name:       name,
		enabled:    true,
		components: make(map[Kind]Component),
	}
}

// ID returns the node's generated identity
func (n *Node) ID() string {
	return n.id
}

func (n *Node) Name() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.name
}

func (n *Node) SetName(name string) {
	n.mu.Lock()
	n.name = name
	n.mu.Unlock()
}

// Enabled reports whether the node takes part in rendering and export
func (n *Node) Enabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.enabled
}

func (n *Node) SetEnabled(enabled bool) {
	n.mu.Lock()
	n.enabled = enabled
	n.mu.Unlock()
}

// Parent returns the parent node, or nil for a root or detached node
func (n *Node) Parent() *Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.parent.Value()
}

// Children returns a snapshot of the child list
func (n *Node) Children() []*Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// AddChild appends child, detaching it from any previous parent first
func (n *Node) AddChild(child *Node) {
	if old := child.Parent(); old != nil {
		old.RemoveChild(child)
	}
	child.mu.Lock()
	child.parent = weak.Make(n)
	child.mu.Unlock()

	n.mu.Lock()
	n.children = append(n.children, child)
	n.mu.Unlock()
}

// RemoveChild detaches child and reports whether it was found
func (n *Node) RemoveChild(child *Node) bool {
	n.mu.Lock()
	found := false
	for i, c := range n.children {
		if c == child {
			n.children = append(n.children[:i], n.children[i+1:]...)
			found = true
			break
		}
	}
	n.mu.Unlock()

	if found {
		child.mu.Lock()
		child.parent = weak.Pointer[Node]{}
		child.mu.Unlock()
	}
	return found
}

// Set attaches c, replacing any component of the same kind
func (n *Node) Set(c Component) {
	n.mu.Lock()
	n.components[c.Kind()] = c
	n.mu.Unlock()
}

// Get returns the component of the given kind
func (n *Node) Get(kind Kind) (Component, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	c, ok := n.components[kind]
	return c, ok
}

// Has reports whether a component of the given kind is attached
func (n *Node) Has(kind Kind) bool {
	_, ok := n.Get(kind)
	return ok
}

// Remove detaches the component of the given kind
func (n *Node) Remove(kind Kind) {
	n.mu.Lock()
	delete(n.components, kind)
	n.mu.Unlock()
}

// Components returns the attached components ordered by kind
func (n *Node) Components() []Component {
	n.mu.RLock()
	out := make([]Component, 0, len(n.components))
	for _, c := range n.components {
		out = append(out, c)
	}
	n.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Kind() < out[j].Kind() })
	return out
}

// Kinds returns the kinds of the attached components, ordered
func (n *Node) Kinds() []Kind {
	components := n.Components()
	kinds := make([]Kind, len(components))
	for i, c := range components {
		kinds[i] = c.Kind()
	}
	return kinds
}

// Lookup returns the component of type T attached to n
func Lookup[T Component](n *Node) (T, bool) {
	var zero T
	c, ok := n.Get(zero.Kind())
	if !ok {
		return zero, false
	}
	t, ok := c.(T)
	return t, ok
}

// Local returns the node's matrix relative to its parent
func (n *Node) Local() core.Mat4 {
	if t, ok := Lookup[Transform](n); ok {
		return t.Matrix
	}
	return core.Identity()
}

// World returns the node's local-to-world matrix
func (n *Node) World() core.Mat4 {
	m := n.Local()
	for p := n.Parent(); p != nil; p = p.Parent() {
		m = p.Local().Mul(m)
	}
	return m
}

// Depth returns the number of ancestors
func (n *Node) Depth() int {
	depth := 0
	for p := n.Parent(); p != nil; p = p.Parent() {
		depth++
	}
	return depth
}

// Walk visits n and its descendants depth first. Returning false from fn
// skips the node's children.
func (n *Node) Walk(fn func(node *Node, depth int) bool) {
	n.walk(fn, 0)
}

func (n *Node) walk(fn func(*Node, int) bool, depth int) {
	if !fn(n, depth) {
		return
	}
	for _, c := range n.Children() {
		c.walk(fn, depth+1)
	}
}

// Find returns the first node in depth-first order matching pred
func (n *Node) Find(pred func(*Node) bool) *Node {
	var found *Node
	n.Walk(func(node *Node, _ int) bool {
		if found != nil {
			return false
		}
		if pred(node) {
			found = node
			return false
		}
		return true
	})
	return found
}

// FindKind returns the first node carrying a component of the given kind
func (n *Node) FindKind(kind Kind) *Node {
	return n.Find(func(node *Node) bool { return node.Has(kind) })
}

// Count returns the number of nodes in the subtree rooted at n
func (n *Node) Count() int {
	count := 0
	n.Walk(func(*Node, int) bool {
		count++
		return true
	})
	return count
}

// Clone deep-copies the subtree rooted at n. Components are copied by
// value, so shared resources such as materials and meshes stay shared.
func (n *Node) Clone() *Node {
	n.mu.RLock()
	out := &Node{
		id:         NewID(),
		name:       n.name,
		enabled:    n.enabled,
		components: make(map[Kind]Component, len(n.components)),
	}
	for k, c := range n.components {
		out.components[k] = c
	}
	children := make([]*Node, len(n.children))
	copy(children, n.children)
	n.mu.RUnlock()

	for _, c := range children {
		out.AddChild(c.Clone())
	}
	return out
}
