package server

import (
	"net/http"

	"github.com/df07/go-pbrt-scenegraph/pkg/scene"
)

// NodeView is the JSON form of a scene node
type NodeView struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Enabled   bool         `json:"enabled"`
	Kinds     []string     `json:"kinds"`
	Type      string       `json:"type,omitempty"`     // shape, light or camera type
	Material  string       `json:"material,omitempty"` // bound material name
	Transform *[16]float64 `json:"transform,omitempty"`
	Children  []NodeView   `json:"children,omitempty"`
	// Truncated is set when children were cut off by the depth limit
	Truncated bool `json:"truncated,omitempty"`
}

// InspectResponse represents the JSON response for scene inspection
type InspectResponse struct {
	Scene    scene.SceneInfo  `json:"scene"`
	Version  int              `json:"version"`
	Stats    scene.Stats      `json:"stats"`
	Meshes   scene.MeshReport `json:"meshes"`
	Up       *[3]float64      `json:"up,omitempty"`
	Warnings []string         `json:"warnings"`
	Tree     NodeView         `json:"tree"`
}

// handleInspect returns the node tree of a scene: ?scene=&depth=
func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	l, ok := s.sceneParam(w, r)
	if !ok {
		return
	}
	if l.err != nil {
		writeError(w, http.StatusUnprocessableEntity, l.err)
		return
	}
	maxDepth, err := parseIntParam(r.URL.Query(), "depth", 64, 1, 1024)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sc := l.result.Scene
	ev := l.event()
	resp := InspectResponse{
		Scene:    l.info,
		Version:  l.version,
		Stats:    *ev.Stats,
		Meshes:   l.meshes,
		Warnings: ev.Warnings,
		Tree:     inspectNode(sc.Root, 0, maxDepth),
	}
	if up, ok := sc.Up(); ok {
		resp.Up = &[3]float64{up.X, up.Y, up.Z}
	}
	writeJSON(w, http.StatusOK, resp)
}

// inspectNode converts a subtree, stopping below maxDepth
func inspectNode(n *scene.Node, depth, maxDepth int) NodeView {
	v := NodeView{
		ID:      n.ID(),
		Name:    n.Name(),
		Enabled: n.Enabled(),
		Kinds:   []string{},
	}
	for _, k := range n.Kinds() {
		v.Kinds = append(v.Kinds, k.String())
	}

	if t, ok := scene.Lookup[scene.Transform](n); ok {
		m := t.Matrix.ColumnMajor()
		v.Transform = &m
	}
	if c, ok := scene.Lookup[scene.Shape](n); ok {
		v.Type = c.Type
	} else if c, ok := scene.Lookup[scene.Light](n); ok {
		v.Type = c.Type
	} else if c, ok := scene.Lookup[scene.Camera](n); ok {
		v.Type = c.Type
	}
	if ref, ok := scene.Lookup[scene.MaterialRef](n); ok && ref.Material != nil {
		ref.Material.RLock()
		v.Material = ref.Material.Name
		ref.Material.RUnlock()
	}

	children := n.Children()
	if depth+1 >= maxDepth {
		v.Truncated = len(children) > 0
		return v
	}
	for _, c := range children {
		v.Children = append(v.Children, inspectNode(c, depth+1, maxDepth))
	}
	return v
}
