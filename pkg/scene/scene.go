package scene

import (
	"github.com/df07/go-pbrt-scenegraph/pkg/core"
)

// Scene is the durable result of loading a scene description: the node
// tree and the resource tables its components share.
type Scene struct {
	Root      *Node
	Resources *Resources
}

// New creates a scene with an empty root
func New() *Scene {
	return &Scene{Root: NewNode("root"), Resources: NewResources()}
}

// Camera returns the node carrying the Camera component, if any
func (s *Scene) Camera() *Node {
	return s.Root.FindKind(KindCamera)
}

// Up returns the dominant up axis recorded on the root
func (s *Scene) Up() (core.Vec3, bool) {
	cs, ok := Lookup[CoordinateSystem](s.Root)
	if !ok {
		return core.Vec3{}, false
	}
	return cs.Up, true
}

// Stats summarizes a scene
type Stats struct {
	Nodes     int            `json:"nodes"`
	Shapes    int            `json:"shapes"`
	Lights    int            `json:"lights"`
	Disabled  int            `json:"disabled"`
	Resources Counts         `json:"resources"`
	Kinds     map[string]int `json:"kinds"`
}

// Stats counts nodes and components
func (s *Scene) Stats() Stats {
	st := Stats{Kinds: make(map[string]int), Resources: s.Resources.Counts()}
	s.Root.Walk(func(n *Node, _ int) bool {
		st.Nodes++
		if !n.Enabled() {
			st.Disabled++
		}
		for _, k := range n.Kinds() {
			st.Kinds[k.String()]++
			switch k {
			case KindShape:
				st.Shapes++
			case KindLight, KindAreaLight:
				st.Lights++
			}
		}
		return true
	})
	return st
}

// Leaves returns every node carrying a Shape, Light or Camera component,
// in depth-first order.
func (s *Scene) Leaves() []*Node {
	var out []*Node
	s.Root.Walk(func(n *Node, _ int) bool {
		if n.Has(KindShape) || n.Has(KindLight) || n.Has(KindCamera) {
			out = append(out, n)
		}
		return true
	})
	return out
}
