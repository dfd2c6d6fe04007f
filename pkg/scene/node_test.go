package scene

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/df07/go-pbrt-scenegraph/pkg/core"
	"github.com/df07/go-pbrt-scenegraph/pkg/pbrt"
)

func TestNodeTree(t *testing.T) {
	root := NewNode("root")
	a := NewNode("a")
	b := NewNode("b")
	root.AddChild(a)
	a.AddChild(b)

	assert.Nil(t, root.Parent())
	assert.Same(t, root, a.Parent())
	assert.Same(t, a, b.Parent())
	assert.Equal(t, 2, b.Depth())
	assert.Equal(t, 3, root.Count())

	// re-parenting detaches from the old parent
	root.AddChild(b)
	assert.Same(t, root, b.Parent())
	assert.Empty(t, a.Children())
	assert.Len(t, root.Children(), 2)

	assert.True(t, root.RemoveChild(b))
	assert.Nil(t, b.Parent())
	assert.False(t, root.RemoveChild(b))
}

func TestNodeComponents(t *testing.T) {
	n := NewNode("geo")
	n.Set(Shape{Plugin: Plugin{Type: "sphere"}})
	n.Set(Transform{Matrix: core.Translate(core.NewVec3(1, 2, 3))})
	n.Set(Shape{Plugin: Plugin{Type: "disk"}})

	assert.Equal(t, []Kind{KindTransform, KindShape}, n.Kinds())

	shape, ok := Lookup[Shape](n)
	require.True(t, ok)
	assert.Equal(t, "disk", shape.Type)

	_, ok = Lookup[Light](n)
	assert.False(t, ok)

	n.Remove(KindShape)
	assert.False(t, n.Has(KindShape))
}

func TestNodeWorld(t *testing.T) {
	root := NewNode("root")
	parent := NewNode("parent")
	parent.Set(Transform{Matrix: core.Translate(core.NewVec3(0, 0, 5))})
	child := NewNode("child")
	child.Set(Transform{Matrix: core.Scale(core.NewVec3(2, 2, 2))})
	root.AddChild(parent)
	parent.AddChild(child)

	p := child.World().TransformPoint(core.NewVec3(1, 0, 0))
	assert.True(t, p.ApproxEqual(core.NewVec3(2, 0, 5), 1e-12), "got %v", p)
	assert.True(t, root.Local().IsIdentity(0))
}

func TestNodeWalkAndFind(t *testing.T) {
	root := NewNode("root")
	a := NewNode("a")
	b := NewNode("b")
	c := NewNode("c")
	c.Set(Camera{Plugin: Plugin{Type: "perspective"}})
	root.AddChild(a)
	a.AddChild(b)
	root.AddChild(c)

	var order []string
	root.Walk(func(n *Node, depth int) bool {
		order = append(order, n.Name())
		return n != a
	})
	assert.Equal(t, []string{"root", "a", "c"}, order)

	assert.Same(t, c, root.FindKind(KindCamera))
	assert.Nil(t, root.FindKind(KindFilm))
}

func TestNodeClone(t *testing.T) {
	mat := &Material{ID: "m", Name: "red", Type: "matte"}
	root := NewNode("group")
	leaf := NewNode("leaf")
	leaf.Set(MaterialRef{Material: mat})
	root.AddChild(leaf)

	clone := root.Clone()
	require.Len(t, clone.Children(), 1)
	cleaf := clone.Children()[0]
	assert.NotSame(t, leaf, cleaf)
	assert.NotEqual(t, leaf.ID(), cleaf.ID())
	assert.Same(t, clone, cleaf.Parent())

	ref, ok := Lookup[MaterialRef](cleaf)
	require.True(t, ok)
	assert.Same(t, mat, ref.Material)
}

func TestNodeParentIsWeak(t *testing.T) {
	child := NewNode("child")
	func() {
		parent := NewNode("parent")
		parent.AddChild(child)
		require.NotNil(t, child.Parent())
	}()
	// nothing but the child's back-reference points at the parent now
	for i := 0; i < 10 && child.Parent() != nil; i++ {
		runtime.GC()
	}
	assert.Nil(t, child.Parent())
}

func TestNodeConcurrentAccess(t *testing.T) {
	root := NewNode("root")
	for i := 0; i < 8; i++ {
		root.AddChild(NewNode("child"))
	}

	var wg sync.WaitGroup
	for _, c := range root.Children() {
		wg.Add(2)
		go func(n *Node) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				n.Set(Transform{Matrix: core.Translate(core.NewVec3(float64(i), 0, 0))})
				n.SetName("edited")
			}
		}(c)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				root.Walk(func(n *Node, _ int) bool {
					_ = n.World()
					_ = n.Name()
					return true
				})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 9, root.Count())
}

func TestNewCoordinateSystem(t *testing.T) {
	tests := []struct {
		in   core.Vec3
		up   core.Vec3
		axis int
	}{
		{core.NewVec3(0, 1, 0), core.NewVec3(0, 1, 0), 1},
		{core.NewVec3(0.1, 0.2, 0.9), core.NewVec3(0, 0, 1), 2},
		{core.NewVec3(-0.8, 0.3, 0.1), core.NewVec3(-1, 0, 0), 0},
		{core.NewVec3(0, -0.99, 0.01), core.NewVec3(0, -1, 0), 1},
	}
	for _, tt := range tests {
		cs := NewCoordinateSystem(tt.in)
		assert.Equal(t, tt.up, cs.Up)
		assert.Equal(t, tt.axis, cs.Axis)
	}
}

func TestResourcesDeduplicate(t *testing.T) {
	res := NewResources()
	id := HashID("/scenes/bunny.ply")
	first := res.AddMesh(NewMesh(id, "plymesh", "/scenes/bunny.ply", nil, nil))
	second := res.AddMesh(NewMesh(id, "plymesh", "/scenes/bunny.ply", nil, nil))
	assert.Same(t, first, second)
	assert.Equal(t, 1, res.Counts().Meshes)

	assert.Equal(t, HashID("a", "b"), HashID("a", "b"))
	assert.NotEqual(t, HashID("ab"), HashID("a", "b"))
	assert.NotEqual(t, NewID(), NewID())
}

func TestResourcesOrdering(t *testing.T) {
	res := NewResources()
	res.AddMaterial(&Material{ID: "2", Name: "beta"})
	res.AddMaterial(&Material{ID: "1", Name: "Alpha"})
	res.AddMaterial(&Material{ID: "3", Name: "ALPHA"})
	names := []string{}
	for _, m := range res.Materials() {
		names = append(names, m.ID)
	}
	assert.Equal(t, []string{"1", "3", "2"}, names)

	res.AddTexture(&Texture{ID: "x", Order: 2})
	res.AddTexture(&Texture{ID: "y", Order: 0})
	res.AddTexture(&Texture{ID: "z", Order: 1})
	var order []string
	for _, tex := range res.Textures() {
		order = append(order, tex.ID)
	}
	assert.Equal(t, []string{"y", "z", "x"}, order)
}

func TestMeshLazyLoad(t *testing.T) {
	var calls atomic.Int32
	builder := MeshBuilderFunc(func(typ, path string, params *pbrt.ParamSet) (*MeshData, error) {
		calls.Add(1)
		return &MeshData{Indices: []int{0, 1, 2}}, nil
	})
	res := NewResources()
	m := res.AddMesh(NewMesh("m", "trianglemesh", "", nil, builder))
	res.AddMesh(NewMesh("n", "sphere", "", nil, nil))
	res.AddMesh(NewMesh("o", "plymesh", "/scenes/broken.ply", nil, MeshBuilderFunc(
		func(typ, path string, params *pbrt.ParamSet) (*MeshData, error) {
			return nil, errors.New("bad header")
		})))

	report, err := res.LoadMeshes(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Meshes)
	assert.Equal(t, 1, report.Triangles)
	assert.Equal(t, []string{"mesh /scenes/broken.ply: bad header"}, report.Errors)

	data, err := m.Data()
	require.NoError(t, err)
	assert.Equal(t, 1, data.Triangles())
	assert.Equal(t, int32(1), calls.Load())

	n, _ := res.Mesh("n")
	_, err = n.Data()
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewResources().LoadMeshes(ctx, 1)
	assert.NoError(t, err, "nothing to load")
	_, err = res.LoadMeshes(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
