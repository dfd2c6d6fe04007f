package loaders

import (
	"github.com/pkg/errors"

	"github.com/df07/go-pbrt-scenegraph/pkg/core"
	"github.com/df07/go-pbrt-scenegraph/pkg/pbrt"
	"github.com/df07/go-pbrt-scenegraph/pkg/scene"
)

// DefaultMeshBuilders returns the mesh builders for the shape types that
// carry explicit triangles.
func DefaultMeshBuilders() map[string]scene.MeshBuilder {
	return map[string]scene.MeshBuilder{
		"trianglemesh": scene.MeshBuilderFunc(BuildTriangleMesh),
		"plymesh":      scene.MeshBuilderFunc(BuildPLYMesh),
	}
}

// BuildPLYMesh loads the file named by a plymesh shape
func BuildPLYMesh(_, path string, _ *pbrt.ParamSet) (*scene.MeshData, error) {
	if path == "" {
		return nil, errors.New("plymesh without filename")
	}
	return LoadPLY(path)
}

// BuildTriangleMesh builds a mesh from inline "P", "indices", "N" and
// "uv"/"st" parameters.
func BuildTriangleMesh(_, _ string, params *pbrt.ParamSet) (*scene.MeshData, error) {
	p := params.Floats("P")
	if len(p) == 0 || len(p)%3 != 0 {
		return nil, errors.Errorf("trianglemesh: \"P\" must hold a multiple of 3 values, got %d", len(p))
	}
	mesh := &scene.MeshData{Positions: vec3s(p)}

	mesh.Indices = params.Ints("indices")
	if len(mesh.Indices) == 0 && len(mesh.Positions) == 3 {
		mesh.Indices = []int{0, 1, 2}
	}
	if len(mesh.Indices) == 0 || len(mesh.Indices)%3 != 0 {
		return nil, errors.Errorf("trianglemesh: \"indices\" must hold a multiple of 3 values, got %d", len(mesh.Indices))
	}
	for _, i := range mesh.Indices {
		if i < 0 || i >= len(mesh.Positions) {
			return nil, errors.Errorf("trianglemesh: index %d out of range (%d vertices)", i, len(mesh.Positions))
		}
	}

	if n := params.Floats("N"); len(n) == len(p) {
		mesh.Normals = vec3s(n)
	}
	uv := params.Floats("uv")
	if uv == nil {
		uv = params.Floats("st")
	}
	if len(uv) == 2*len(mesh.Positions) {
		for i := 0; i < len(uv); i += 2 {
			mesh.UVs = append(mesh.UVs, core.NewVec2(uv[i], uv[i+1]))
		}
	}
	return mesh, nil
}

func vec3s(v []float64) []core.Vec3 {
	out := make([]core.Vec3, len(v)/3)
	for i := range out {
		out[i] = core.NewVec3(v[3*i], v[3*i+1], v[3*i+2])
	}
	return out
}
