package writer

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/df07/go-pbrt-scenegraph/pkg/builder"
	"github.com/df07/go-pbrt-scenegraph/pkg/core"
	"github.com/df07/go-pbrt-scenegraph/pkg/pbrt"
	"github.com/df07/go-pbrt-scenegraph/pkg/scene"
)

const quadScene = `Translate 0 0 -140
WorldBegin
AttributeBegin
Material "matte" "color Kd" [.5 .5 .8]
Shape "trianglemesh" "point P" [-1 -1 0  1 -1 0  1 1 0  -1 1 0] "integer indices" [0 1 2 2 3 0]
AttributeEnd
WorldEnd
`

const busyScene = `LookAt 0 5 -10  0 0 0  0 1 0
Camera "perspective" "float fov" [40]
Film "image" "integer xresolution" [320] "integer yresolution" [240] "string filename" "out.exr"
PixelFilter "gaussian"
Sampler "sobol" "integer pixelsamples" [64]
Integrator "bdpt" "integer maxdepth" [7]
WorldBegin
Texture "checks" "spectrum" "checkerboard" "float uscale" [8] "float vscale" [8]
MakeNamedMaterial "floor" "string type" "matte" "texture Kd" "checks"
Material "plastic" "rgb Kd" [0.1 0.2 0.3]
AttributeBegin
  Translate 1 2 3
  Rotate 30 1 1 0
  Scale -1 1 2
  Shape "sphere" "float radius" [0.5]
  AttributeBegin
    NamedMaterial "floor"
    Translate 0 -1 0
    Shape "disk" "float radius" [20]
  AttributeEnd
AttributeEnd
AttributeBegin
  AreaLightSource "diffuse" "rgb L" [10 10 10]
  ReverseOrientation
  Shape "sphere" "float radius" [0.1]
AttributeEnd
LightSource "distant" "point from" [0 10 0] "point to" [0 0 0]
ObjectBegin "post"
  Shape "cylinder"
ObjectEnd
Translate 4 0 0
ObjectInstance "post"
WorldEnd
`

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func build(t *testing.T, src string, baseDir string) *scene.Scene {
	t.Helper()
	res, err := builder.LoadString(src, builder.Options{Logger: quiet(), BaseDir: baseDir})
	require.NoError(t, err)
	require.Empty(t, res.Warnings)
	return res.Scene
}

func write(t *testing.T, s *scene.Scene, opts Options) string {
	t.Helper()
	opts.Logger = quiet()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, s, opts))
	return buf.String()
}

type leaf struct {
	kinds []scene.Kind
	world core.Mat4
}

func leaves(s *scene.Scene) []leaf {
	var out []leaf
	for _, n := range s.Leaves() {
		out = append(out, leaf{kinds: n.Kinds(), world: n.World()})
	}
	return out
}

// assertEquivalent checks the structural equivalence a round trip must
// preserve: leaves with their components and world matrices, and the
// resource tables.
func assertEquivalent(t *testing.T, want, got *scene.Scene) {
	t.Helper()
	wl, gl := leaves(want), leaves(got)
	require.Len(t, gl, len(wl))
	for i := range wl {
		assert.Equal(t, wl[i].kinds, gl[i].kinds, "leaf %d", i)
		assert.True(t, wl[i].world.ApproxEqual(gl[i].world, 1e-5), "leaf %d: %v != %v", i, wl[i].world, gl[i].world)
	}
	assert.Equal(t, want.Resources.Counts(), got.Resources.Counts())
}

func TestRoundTripQuad(t *testing.T) {
	original := build(t, quadScene, "")
	text := write(t, original, Options{})
	reparsed := build(t, text, "")
	assertEquivalent(t, original, reparsed)

	cam := reparsed.Camera()
	require.NotNil(t, cam)
	assert.True(t, cam.World().Translation().ApproxEqual(core.NewVec3(0, 0, -140), 1e-9))

	nodes := reparsed.Root.Find(func(n *scene.Node) bool { return n.Has(scene.KindShape) })
	require.NotNil(t, nodes)
	shape, _ := scene.Lookup[scene.Shape](nodes)
	ref, _ := scene.Lookup[scene.MaterialRef](nodes)
	assert.Equal(t, "trianglemesh", shape.Type)
	assert.Equal(t, "matte", ref.Material.Type)
	assert.Equal(t, []float64{.5, .5, .8}, ref.Material.Params.Floats("Kd"))
	data, err := shape.Mesh.Data()
	require.NoError(t, err)
	assert.Len(t, data.Positions, 4)
	assert.Equal(t, []int{0, 1, 2, 2, 3, 0}, data.Indices)
}

func TestRoundTripBusyScene(t *testing.T) {
	original := build(t, busyScene, "")
	text := write(t, original, Options{})
	reparsed := build(t, text, "")
	assertEquivalent(t, original, reparsed)

	film, ok := scene.Lookup[scene.Film](reparsed.Camera())
	require.True(t, ok)
	assert.Equal(t, 320, film.Params.Int("xresolution", 0))
	assert.Equal(t, "gaussian", film.Filter.Type)
	integrator, _ := scene.Lookup[scene.Integrator](reparsed.Root)
	assert.Equal(t, "bdpt", integrator.Type)
	assert.Equal(t, 7, integrator.Params.Int("maxdepth", 0))

	up, _ := reparsed.Up()
	assert.Equal(t, core.NewVec3(0, 1, 0), up)

	// a second trip through the writer is stable
	again := build(t, write(t, reparsed, Options{}), "")
	assertEquivalent(t, reparsed, again)
}

func TestWriteDeterministic(t *testing.T) {
	s := build(t, busyScene, "")
	first := write(t, s, Options{})
	for range 5 {
		assert.Equal(t, first, write(t, s, Options{}))
	}
}

func TestWriteLayout(t *testing.T) {
	text := write(t, build(t, quadScene, ""), Options{})
	lines := strings.Split(strings.TrimSpace(text), "\n")

	assert.Equal(t, "# Exported by pbrt-scenegraph from memory", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "Transform [ 1 0 0 0 0 1 0 0 0 0 1 0 0 0 -140 1 ]"), lines[1])
	assert.Equal(t, `Camera "perspective"`, lines[2])
	assert.Equal(t, "WorldEnd", lines[len(lines)-1])

	order := []string{"Camera ", "Film ", "PixelFilter ", "Sampler ", "Accelerator ", "Integrator ", "WorldBegin", "MakeNamedMaterial ", "AttributeBegin", "NamedMaterial ", "Shape ", "WorldEnd"}
	pos := 0
	for _, want := range order {
		i := strings.Index(text[pos:], want)
		require.GreaterOrEqual(t, i, 0, "%q missing or out of order", want)
		pos += i
	}

	// declared parameters are written in full
	assert.Contains(t, text, `"float fov" [ 90 ]`)
	assert.Contains(t, text, `"integer xresolution" [ 1280 ]`)
}

func TestMaterialNames(t *testing.T) {
	s := build(t, `WorldBegin
MakeNamedMaterial "matte" "string type" "plastic"
Material "matte"
Shape "sphere"
NamedMaterial "matte"
Shape "disk"
MakeNamedMaterial "blend" "string type" "mix" "string namedmaterial1" "matte" "string namedmaterial2" "matte"
WorldEnd
`, "")
	text := write(t, s, Options{})
	assert.Contains(t, text, `MakeNamedMaterial "matte"`)
	assert.Contains(t, text, `MakeNamedMaterial "matte-2"`)

	reparsed := build(t, text, "")
	assertEquivalent(t, s, reparsed)

	types := map[string]string{}
	reparsed.Root.Walk(func(n *scene.Node, _ int) bool {
		if ref, ok := scene.Lookup[scene.MaterialRef](n); ok {
			shape, _ := scene.Lookup[scene.Shape](n)
			types[shape.Type] = ref.Material.Type
		}
		return true
	})
	assert.Equal(t, map[string]string{"sphere": "matte", "disk": "plastic"}, types)
}

func TestRoundTripShadowedTextures(t *testing.T) {
	s := build(t, `WorldBegin
AttributeBegin
  Texture "t" "spectrum" "constant" "rgb value" [1 0 0]
  Texture "scaled" "spectrum" "scale" "texture tex1" "t" "float tex2" [2]
  Material "matte" "texture Kd" "t"
  Shape "sphere"
AttributeEnd
AttributeBegin
  Texture "t" "spectrum" "constant" "rgb value" [0 0 1]
  Material "plastic" "texture Kd" "t"
  Shape "disk" "texture alpha" "t"
AttributeEnd
WorldEnd
`, "")
	text := write(t, s, Options{})
	assert.Contains(t, text, `Texture "t" "spectrum" "constant"`)
	assert.Contains(t, text, `Texture "t-2" "spectrum" "constant"`)

	reparsed := build(t, text, "")
	assertEquivalent(t, s, reparsed)

	colors := map[string][]float64{}
	for _, m := range reparsed.Resources.Materials() {
		ref, ok := m.Textures["Kd"]
		require.True(t, ok, m.Type)
		colors[m.Type] = ref.Texture().Params.Floats("value")
	}
	assert.Equal(t, map[string][]float64{"matte": {1, 0, 0}, "plastic": {0, 0, 1}}, colors)

	for _, tex := range reparsed.Resources.Textures() {
		if tex.Type == "scale" {
			assert.Equal(t, []float64{1, 0, 0}, tex.Textures["tex1"].Texture().Params.Floats("value"))
		}
	}
	disk := reparsed.Root.Find(func(n *scene.Node) bool {
		shape, ok := scene.Lookup[scene.Shape](n)
		return ok && shape.Type == "disk"
	})
	require.NotNil(t, disk)
	shape, _ := scene.Lookup[scene.Shape](disk)
	assert.Equal(t, []float64{0, 0, 1}, shape.Textures["alpha"].Texture().Params.Floats("value"))
}

func TestDisabledNodesSkipped(t *testing.T) {
	s := build(t, busyScene, "")
	var disabled *scene.Node
	s.Root.Walk(func(n *scene.Node, _ int) bool {
		if shape, ok := scene.Lookup[scene.Shape](n); ok && shape.Type == "sphere" && disabled == nil {
			disabled = n
		}
		return true
	})
	require.NotNil(t, disabled)
	// disabling the sphere's scope also drops the disk nested beside it
	disabled.Parent().SetEnabled(false)

	reparsed := build(t, write(t, s, Options{}), "")
	var types []string
	reparsed.Root.Walk(func(n *scene.Node, _ int) bool {
		if shape, ok := scene.Lookup[scene.Shape](n); ok {
			types = append(types, shape.Type)
		}
		return true
	})
	assert.Equal(t, []string{"sphere", "cylinder"}, types)
}

func TestTransforms(t *testing.T) {
	sheared := core.Identity()
	sheared[0][1] = 0.5

	s := scene.New()
	n := scene.NewNode("sheared")
	n.Set(scene.Transform{Matrix: sheared})
	n.Set(scene.Shape{Plugin: scene.Plugin{Type: "sphere", Params: pbrt.NewParamSet()}})
	s.Root.AddChild(n)

	text := write(t, s, Options{})
	assert.Contains(t, text, "ConcatTransform")
	reparsed := build(t, text, "")
	got := reparsed.Root.Find(func(n *scene.Node) bool { return n.Has(scene.KindShape) })
	require.NotNil(t, got)
	assert.True(t, got.World().ApproxEqual(sheared, 1e-9))

	flat := scene.NewNode("flat")
	flat.Set(scene.Transform{Matrix: core.Scale(core.NewVec3(1, 0, 1))})
	flat.Set(scene.Shape{Plugin: scene.Plugin{Type: "disk", Params: pbrt.NewParamSet()}})
	s.Root.AddChild(flat)
	err := Write(io.Discard, s, Options{Logger: quiet()})
	assert.True(t, errors.Is(err, ErrDecompose), "got %v", err)
	assert.Contains(t, err.Error(), "flat")
}

func TestSmallTransformsOmitted(t *testing.T) {
	s := build(t, "WorldBegin\nAttributeBegin\nTranslate 1e-9 0 0\nScale 1.0000000001 1 1\nShape \"sphere\"\nAttributeEnd\nWorldEnd\n", "")
	text := write(t, s, Options{})
	assert.NotContains(t, text, "Translate")
	assert.NotContains(t, text, "Scale")
	assert.NotContains(t, text, "Rotate")
}

func setupResources(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"tex/grain.png":   "first",
		"other/grain.png": "second",
		"meshes/tri.ply":  "ply\nformat ascii 1.0\nelement vertex 3\nproperty float x\nproperty float y\nproperty float z\nelement face 1\nproperty list uchar int vertex_indices\nend_header\n0 0 0\n1 0 0\n0 1 0\n3 0 1 2\n",
		"data/gold.spd":   "300 1\n",
	}
	for name, body := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	src := `WorldBegin
Texture "a" "spectrum" "imagemap" "string filename" "tex/grain.png"
Texture "b" "spectrum" "imagemap" "string filename" "other/grain.png"
Material "metal" "spectrum eta" "data/gold.spd" "texture roughness" "a"
Shape "plymesh" "string filename" "meshes/tri.ply"
WorldEnd
`
	return dir, src
}

func TestWriteFileCopiesResources(t *testing.T) {
	dir, src := setupResources(t)
	s := build(t, src, dir)

	out := filepath.Join(t.TempDir(), "export")
	require.NoError(t, os.MkdirAll(out, 0o755))
	target := filepath.Join(out, "scene.pbrt")
	require.NoError(t, WriteFile(context.Background(), target, s, Options{CopyResources: true, Logger: quiet(), Workers: 2}))

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Len(t, names, 5, "scene plus four resources: %v", names)
	assert.Contains(t, names, "grain.png")
	assert.Contains(t, names, "tri.ply")
	assert.Contains(t, names, "gold.spd")

	text, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.NotContains(t, string(text), dir, "copied resources are referenced by name")

	res, err := builder.LoadFile(target, builder.Options{Logger: quiet()})
	require.NoError(t, err)
	defer res.Close()
	assert.Empty(t, res.Warnings)
	assertEquivalent(t, s, res.Scene)

	// writing over the copies again is a no-op for the resources
	require.NoError(t, WriteFile(context.Background(), target, res.Scene, Options{CopyResources: true, Logger: quiet()}))
}

func TestWriteAbsolutePaths(t *testing.T) {
	dir, src := setupResources(t)
	s := build(t, src, dir)
	text := write(t, s, Options{})
	assert.Contains(t, text, filepath.Join(dir, "meshes", "tri.ply"))

	reparsed := build(t, text, t.TempDir())
	assertEquivalent(t, s, reparsed)
}

func TestPlanCopiesDisambiguates(t *testing.T) {
	dir, src := setupResources(t)
	s := build(t, src, dir)
	plan := planCopies(s)
	require.Len(t, plan, 4)

	names := map[string]string{}
	for _, c := range plan {
		names[c.src] = c.name
	}
	first := names[filepath.Join(dir, "other", "grain.png")]
	second := names[filepath.Join(dir, "tex", "grain.png")]
	assert.Equal(t, "grain.png", first, "sorted paths claim names first")
	assert.Regexp(t, `^grain-[0-9a-f]{8}\.png$`, second)
}

func TestCopyMissingSourceSkipped(t *testing.T) {
	out := t.TempDir()
	plan := []fileCopy{{src: filepath.Join(out, "nowhere", "gone.png"), name: "gone.png"}}
	require.NoError(t, copyFiles(context.Background(), plan, out, Options{Logger: quiet()}))
	_, err := os.Stat(filepath.Join(out, "gone.png"))
	assert.True(t, os.IsNotExist(err))
}
