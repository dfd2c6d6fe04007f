package scene

import (
	"github.com/df07/go-pbrt-scenegraph/pkg/core"
	"github.com/df07/go-pbrt-scenegraph/pkg/pbrt"
)

// Kind identifies a component type. A node holds at most one component of
// each kind.
type Kind int

const (
	KindTransform Kind = iota
	KindShape
	KindLight
	KindAreaLight
	KindCamera
	KindMaterial
	KindFilm
	KindSampler
	KindIntegrator
	KindAccelerator
	KindCoordinateSystem
	KindResources
	KindScene
)

var kindNames = [...]string{
	KindTransform:        "Transform",
	KindShape:            "Shape",
	KindLight:            "Light",
	KindAreaLight:        "AreaLight",
	KindCamera:           "Camera",
	KindMaterial:         "Material",
	KindFilm:             "Film",
	KindSampler:          "Sampler",
	KindIntegrator:       "Integrator",
	KindAccelerator:      "Accelerator",
	KindCoordinateSystem: "CoordinateSystem",
	KindResources:        "Resources",
	KindScene:            "Scene",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// Component is anything that can be attached to a node
type Component interface {
	Kind() Kind
}

// Plugin is a renderer object described by a type name and its parameters
type Plugin struct {
	Type   string
	Params *pbrt.ParamSet
}

// Transform holds a node's matrix relative to its parent
type Transform struct {
	Matrix core.Mat4
}

// Shape is geometry. Mesh is set for triangle meshes and file-backed
// shapes and is shared between every shape built from the same data.
type Shape struct {
	Plugin
	Mesh               *Mesh
	ReverseOrientation bool
	Textures           TextureRefs
}

// Light is a non-geometric light source
type Light struct {
	Plugin
}

// AreaLight makes the shape on the same node emissive
type AreaLight struct {
	Plugin
}

// Camera describes the viewpoint. The camera node's transform is the
// world-to-camera matrix in effect at the Camera directive, so World() of
// the camera node maps world space into camera space.
type Camera struct {
	Plugin
}

// MaterialRef binds a shared material to a shape
type MaterialRef struct {
	Material *Material
}

// Film describes the output image and its reconstruction filter
type Film struct {
	Plugin
	Filter Plugin
}

// Sampler, Integrator and Accelerator hold the remaining renderer options
type Sampler struct {
	Plugin
}

type Integrator struct {
	Plugin
}

type Accelerator struct {
	Plugin
}

// CoordinateSystem records the dominant world axis pointing up from the
// camera's point of view. Viewers use it to orient grids.
type CoordinateSystem struct {
	Up   core.Vec3 // unit axis vector, e.g. (0,0,1)
	Axis int       // 0, 1 or 2
}

// ResourceSet exposes the scene's resource tables on the root node
type ResourceSet struct {
	Resources *Resources
}

// Marker flags the root node of a built scene
type Marker struct {
	Source string // file the scene was loaded from, if any
}

func (Transform) Kind() Kind        { return KindTransform }
func (Shape) Kind() Kind            { return KindShape }
func (Light) Kind() Kind            { return KindLight }
func (AreaLight) Kind() Kind        { return KindAreaLight }
func (Camera) Kind() Kind           { return KindCamera }
func (MaterialRef) Kind() Kind      { return KindMaterial }
func (Film) Kind() Kind             { return KindFilm }
func (Sampler) Kind() Kind          { return KindSampler }
func (Integrator) Kind() Kind       { return KindIntegrator }
func (Accelerator) Kind() Kind      { return KindAccelerator }
func (CoordinateSystem) Kind() Kind { return KindCoordinateSystem }
func (ResourceSet) Kind() Kind      { return KindResources }
func (Marker) Kind() Kind           { return KindScene }

// NewCoordinateSystem snaps v to the world axis it is closest to, keeping
// its sign.
func NewCoordinateSystem(v core.Vec3) CoordinateSystem {
	axis := v.Axis()
	var up core.Vec3
	switch axis {
	case 0:
		up.X = sign(v.X)
	case 1:
		up.Y = sign(v.Y)
	default:
		up.Z = sign(v.Z)
	}
	return CoordinateSystem{Up: up, Axis: axis}
}

func sign(f float64) float64 {
	if f < 0 {
		return -1
	}
	return 1
}
