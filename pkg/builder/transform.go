package builder

import (
	"github.com/df07/go-pbrt-scenegraph/pkg/core"
	"github.com/df07/go-pbrt-scenegraph/pkg/pbrt"
	"github.com/df07/go-pbrt-scenegraph/pkg/scene"
)

// Transforms that only affect the end of the shutter interval are
// dropped; motion blur is not represented in the scene graph.
func (b *Builder) transformsActive() bool {
	if b.active == "EndTime" {
		b.warnOnce("ActiveTransform", "motion blur is not supported; end-time transforms ignored")
		return false
	}
	return true
}

func (b *Builder) Identity() {
	if b.transformsActive() {
		b.setCTM(core.IdentityTransform())
	}
}

func (b *Builder) Translate(dx, dy, dz float64) {
	if b.transformsActive() {
		b.setCTM(b.ctm().Translate(core.NewVec3(dx, dy, dz)))
	}
}

func (b *Builder) Rotate(angle, dx, dy, dz float64) {
	if !b.transformsActive() {
		return
	}
	axis := core.NewVec3(dx, dy, dz)
	if axis.LengthSquared() == 0 {
		b.warn("Rotate", "rotation axis has zero length; ignored")
		return
	}
	b.setCTM(b.ctm().Rotate(angle, axis))
}

func (b *Builder) Scale(sx, sy, sz float64) {
	if !b.transformsActive() {
		return
	}
	if sx == 0 || sy == 0 || sz == 0 {
		b.warn("Scale", "scale %g %g %g is singular; ignored", sx, sy, sz)
		return
	}
	b.setCTM(b.ctm().Scale(core.NewVec3(sx, sy, sz)))
}

// LookAt replaces the current transform with a world-to-camera matrix
func (b *Builder) LookAt(ex, ey, ez, lx, ly, lz, ux, uy, uz float64) {
	if !b.transformsActive() {
		return
	}
	m, err := core.LookAt(core.NewVec3(ex, ey, ez), core.NewVec3(lx, ly, lz), core.NewVec3(ux, uy, uz))
	if err != nil {
		b.warn("LookAt", "%v; ignored", err)
		return
	}
	t, err := core.NewTransformSet(m)
	if err != nil {
		b.warn("LookAt", "matrix is not invertible; ignored")
		return
	}
	b.setCTM(t)
}

func (b *Builder) ConcatTransform(m [16]float64) {
	if !b.transformsActive() {
		return
	}
	t, err := core.NewTransformSet(core.FromColumnMajor(m))
	if err != nil {
		b.warn("ConcatTransform", "matrix is not invertible; ignored")
		return
	}
	b.setCTM(b.ctm().Compose(t.M, t.Inv))
}

func (b *Builder) Transform(m [16]float64) {
	if !b.transformsActive() {
		return
	}
	t, err := core.NewTransformSet(core.FromColumnMajor(m))
	if err != nil {
		b.warn("Transform", "matrix is not invertible; ignored")
		return
	}
	b.setCTM(t)
}

func (b *Builder) CoordinateSystem(name string) {
	b.coordSys[name] = b.ctm()
}

func (b *Builder) CoordSysTransform(name string) {
	t, ok := b.coordSys[name]
	if !ok {
		names := make([]string, 0, len(b.coordSys))
		for n := range b.coordSys {
			names = append(names, n)
		}
		if s := pbrt.Suggest(name, names); s != "" {
			b.warn("CoordSysTransform", "unknown coordinate system %q (did you mean %q?)", name, s)
		} else {
			b.warn("CoordSysTransform", "unknown coordinate system %q", name)
		}
		return
	}
	b.setCTM(t)
}

func (b *Builder) ActiveTransform(which string) {
	b.active = which
}

func (b *Builder) TransformTimes(start, end float64) {
	b.warnOnce("TransformTimes", "motion blur is not supported; ignored")
}

// Scopes

// pushScope opens a grouping node whose local transform is the current
// transform relative to the enclosing scope.
func (b *Builder) pushScope(kind scopeKind, name string) *scene.Node {
	parent := b.top()
	node := scene.NewNode(name)
	b.setLocal(node, parent.world)
	if kind != scopeObject {
		parent.node.AddChild(node)
	}
	b.scopes = append(b.scopes, scope{kind: kind, node: node, world: b.ctm(), name: name})
	b.transforms = append(b.transforms, b.ctm())
	return node
}

// popScope closes the innermost scope if it has the expected kind
func (b *Builder) popScope(kind scopeKind, directive string) (scope, bool) {
	if len(b.scopes) == 1 {
		b.warn(directive, "no open %s scope; ignored", kind)
		return scope{}, false
	}
	top := b.top()
	if top.kind != kind {
		b.warn(directive, "innermost open scope is %s; ignored", top.kind)
		return scope{}, false
	}
	b.scopes = b.scopes[:len(b.scopes)-1]
	b.transforms = b.transforms[:len(b.transforms)-1]
	return top, true
}

// setLocal stores the current transform relative to parentWorld on a
// grouping node, leaving nodes that add nothing without a Transform
func (b *Builder) setLocal(node *scene.Node, parentWorld core.TransformSet) {
	ctm := b.ctm()
	if ctm.M == parentWorld.M {
		return
	}
	node.Set(scene.Transform{Matrix: parentWorld.Inv.Mul(ctm.M)})
}

func (b *Builder) AttributeBegin() {
	if !b.requireWorld("AttributeBegin") {
		return
	}
	b.pushScope(scopeAttribute, "attribute")
	b.graphics = append(b.graphics, b.gs().clone())
}

func (b *Builder) AttributeEnd() {
	if !b.requireWorld("AttributeEnd") {
		return
	}
	if _, ok := b.popScope(scopeAttribute, "AttributeEnd"); ok {
		b.graphics = b.graphics[:len(b.graphics)-1]
	}
}

func (b *Builder) TransformBegin() {
	if b.phase == phaseDone {
		b.warn("TransformBegin", "not allowed after WorldEnd; ignored")
		return
	}
	b.pushScope(scopeTransform, "transform")
}

func (b *Builder) TransformEnd() {
	if b.phase == phaseDone {
		b.warn("TransformEnd", "not allowed after WorldEnd; ignored")
		return
	}
	b.popScope(scopeTransform, "TransformEnd")
}

// leaf creates a node under the innermost scope carrying the current
// transform relative to it. Unlike grouping nodes, leaves always carry a
// Transform, identity included.
func (b *Builder) leaf(name string) *scene.Node {
	parent := b.top()
	node := scene.NewNode(name)
	node.Set(scene.Transform{Matrix: parent.world.Inv.Mul(b.ctm().M)})
	parent.node.AddChild(node)
	return node
}
