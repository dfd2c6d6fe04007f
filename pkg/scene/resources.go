package scene

import (
	"context"
	"encoding/hex"
	"runtime"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"

	"github.com/df07/go-pbrt-scenegraph/pkg/core"
	"github.com/df07/go-pbrt-scenegraph/pkg/pbrt"
)

// NewID returns a fresh random identity
func NewID() string {
	return uuid.NewString()
}

// HashID derives a stable identity from content, such as an absolute file
// path or the text of an inline mesh.
func HashID(parts ...string) string {
	h, _ := blake2b.New256(nil)
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// Material is a shared material record. Lock it when mutating fields of a
// material already reachable from a scene.
type Material struct {
	sync.RWMutex
	ID       string
	Name     string
	Type     string
	Params   *pbrt.ParamSet
	Named    bool // declared with MakeNamedMaterial
	Textures TextureRefs
}

// Texture is a shared texture record
type Texture struct {
	sync.RWMutex
	ID        string
	Name      string
	ValueType string // "float" or "spectrum"
	Type      string
	Params    *pbrt.ParamSet
	Order     int       // declaration order
	File      string    // resolved absolute path for file-backed textures
	Transform core.Mat4 // CTM at declaration
	Synthetic bool      // generated from a spectrum file parameter
	Textures  TextureRefs
}

// TextureRef is the texture a "texture" parameter named when it was
// declared. A name may be bound to both a float and a spectrum texture.
type TextureRef struct {
	Float    *Texture
	Spectrum *Texture
}

// Texture returns the bound texture, preferring the spectrum one
func (r TextureRef) Texture() *Texture {
	if r.Spectrum != nil {
		return r.Spectrum
	}
	return r.Float
}

// TextureRefs maps "texture" parameter names to the textures they were
// bound to, which may since have been shadowed by later declarations of
// the same name.
type TextureRefs map[string]TextureRef

// OtherResource is a file referenced by a parameter that is not a texture
// or mesh, e.g. a measured BSDF.
type OtherResource struct {
	ID   string
	Path string
	Kind string // parameter name that referenced it
}

// MeshData is the heavy payload of a mesh
type MeshData struct {
	Positions []core.Vec3
	Indices   []int
	Normals   []core.Vec3
	UVs       []core.Vec2
}

// Triangles returns the number of triangles
func (d *MeshData) Triangles() int {
	return len(d.Indices) / 3
}

// MeshBuilder turns a shape description into triangles
type MeshBuilder interface {
	BuildMesh(typ, path string, params *pbrt.ParamSet) (*MeshData, error)
}

// MeshBuilderFunc adapts a function to MeshBuilder
type MeshBuilderFunc func(typ, path string, params *pbrt.ParamSet) (*MeshData, error)

func (f MeshBuilderFunc) BuildMesh(typ, path string, params *pbrt.ParamSet) (*MeshData, error) {
	return f(typ, path, params)
}

// Mesh is a shared geometry record. The payload is built on first use.
type Mesh struct {
	ID     string
	Type   string
	Path   string // absolute path for file-backed meshes
	Params *pbrt.ParamSet

	builder MeshBuilder
	once    sync.Once
	data    *MeshData
	err     error
}

// NewMesh creates a mesh whose payload is produced by builder on demand.
// A nil builder leaves the mesh without a payload.
func NewMesh(id, typ, path string, params *pbrt.ParamSet, builder MeshBuilder) *Mesh {
	return &Mesh{ID: id, Type: typ, Path: path, Params: params, builder: builder}
}

// Data builds the payload once and returns it
func (m *Mesh) Data() (*MeshData, error) {
	m.once.Do(func() {
		if m.builder == nil {
			m.err = errors.Errorf("no mesh builder for shape type %q", m.Type)
			return
		}
		m.data, m.err = m.builder.BuildMesh(m.Type, m.Path, m.Params)
	})
	return m.data, m.err
}

// Resources holds the de-duplicating tables of a scene
type Resources struct {
	mu        sync.RWMutex
	materials map[string]*Material
	textures  map[string]*Texture
	meshes    map[string]*Mesh
	others    map[string]*OtherResource
}

// NewResources creates empty tables
func NewResources() *Resources {
	return &Resources{
		materials: make(map[string]*Material),
		textures:  make(map[string]*Texture),
		meshes:    make(map[string]*Mesh),
		others:    make(map[string]*OtherResource),
	}
}

// AddMaterial registers m, or returns the entry already registered under
// its ID.
func (r *Resources) AddMaterial(m *Material) *Material {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.materials[m.ID]; ok {
		return existing
	}
	r.materials[m.ID] = m
	return m
}

func (r *Resources) AddTexture(t *Texture) *Texture {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.textures[t.ID]; ok {
		return existing
	}
	r.textures[t.ID] = t
	return t
}

func (r *Resources) AddMesh(m *Mesh) *Mesh {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.meshes[m.ID]; ok {
		return existing
	}
	r.meshes[m.ID] = m
	return m
}

func (r *Resources) AddOther(o *OtherResource) *OtherResource {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.others[o.ID]; ok {
		return existing
	}
	r.others[o.ID] = o
	return o
}

func (r *Resources) Mesh(id string) (*Mesh, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.meshes[id]
	return m, ok
}

func (r *Resources) Texture(id string) (*Texture, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.textures[id]
	return t, ok
}

func (r *Resources) Material(id string) (*Material, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.materials[id]
	return m, ok
}

// Materials returns all materials ordered by case-insensitive name, then ID
func (r *Resources) Materials() []*Material {
	r.mu.RLock()
	out := make([]*Material, 0, len(r.materials))
	for _, m := range r.materials {
		out = append(out, m)
	}
	r.mu.RUnlock()
	fold := cases.Fold()
	sort.Slice(out, func(i, j int) bool {
		a, b := fold.String(out[i].Name), fold.String(out[j].Name)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Textures returns all textures in declaration order
func (r *Resources) Textures() []*Texture {
	r.mu.RLock()
	out := make([]*Texture, 0, len(r.textures))
	for _, t := range r.textures {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func (r *Resources) Meshes() []*Mesh {
	r.mu.RLock()
	out := make([]*Mesh, 0, len(r.meshes))
	for _, m := range r.meshes {
		out = append(out, m)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Resources) Others() []*OtherResource {
	r.mu.RLock()
	out := make([]*OtherResource, 0, len(r.others))
	for _, o := range r.others {
		out = append(out, o)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Counts returns the size of each table
type Counts struct {
	Materials int `json:"materials"`
	Textures  int `json:"textures"`
	Meshes    int `json:"meshes"`
	Others    int `json:"others"`
}

func (r *Resources) Counts() Counts {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Counts{
		Materials: len(r.materials),
		Textures:  len(r.textures),
		Meshes:    len(r.meshes),
		Others:    len(r.others),
	}
}

// MeshReport summarizes building the mesh payloads of a scene
type MeshReport struct {
	Meshes    int      `json:"meshes"`
	Triangles int      `json:"triangles"`
	Errors    []string `json:"errors,omitempty"`
}

// LoadMeshes builds every mesh payload using up to workers goroutines, one
// per CPU when workers is zero. A mesh that fails to build is listed in the
// report and does not stop the others; the error is only set when ctx is
// done.
func (r *Resources) LoadMeshes(ctx context.Context, workers int) (MeshReport, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	meshes := lo.Filter(r.Meshes(), func(m *Mesh, _ int) bool { return m.builder != nil })
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, m := range meshes {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, _ = m.Data()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return MeshReport{}, err
	}

	report := MeshReport{Meshes: len(meshes)}
	for _, m := range meshes {
		data, err := m.Data()
		if err != nil {
			report.Errors = append(report.Errors, errors.Wrapf(err, "mesh %s", m.describe()).Error())
			continue
		}
		report.Triangles += data.Triangles()
	}
	return report, nil
}

func (m *Mesh) describe() string {
	if m.Path != "" {
		return m.Path
	}
	id := m.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return m.Type + " " + id
}
