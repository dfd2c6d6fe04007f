// Package writer serializes a scene graph back to pbrt directives
package writer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/df07/go-pbrt-scenegraph/pkg/core"
	"github.com/df07/go-pbrt-scenegraph/pkg/pbrt"
	"github.com/df07/go-pbrt-scenegraph/pkg/scene"
)

// ErrDecompose is returned when a node matrix cannot be written as
// Translate, Rotate and Scale directives
var ErrDecompose = errors.New("cannot decompose node transform")

// Options configures serialization
type Options struct {
	// CopyResources copies referenced files next to the output and refers
	// to them by file name. Otherwise absolute paths are written.
	CopyResources bool
	Registry      *scene.Registry
	Logger        *slog.Logger
	// Workers bounds concurrent file copies; zero means one per CPU
	Workers int
}

func (o Options) withDefaults() Options {
	if o.Registry == nil {
		o.Registry = scene.DefaultRegistry()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type writer struct {
	p        *pbrt.Printer
	opts     Options
	files    map[string]string // absolute path to emitted reference
	matNames map[*scene.Material]string
	named    map[string]string // declared material name to emitted name
	texNames map[*scene.Texture]string
}

// Write emits the scene as directive text. With CopyResources set, file
// references are written as bare file names; use WriteFile to also copy
// the files.
func Write(w io.Writer, s *scene.Scene, opts Options) error {
	opts = opts.withDefaults()
	wr := &writer{
		p:     pbrt.NewPrinter(w),
		opts:  opts,
		files: make(map[string]string),
	}
	if opts.CopyResources {
		for _, c := range planCopies(s) {
			wr.files[c.src] = c.name
		}
	}
	return wr.write(s)
}

// WriteFile writes the scene to path and, with CopyResources set, copies
// every referenced file into the same directory.
func WriteFile(ctx context.Context, path string, s *scene.Scene, opts Options) error {
	opts = opts.withDefaults()
	var buf bytes.Buffer
	if err := Write(&buf, s, opts); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	if !opts.CopyResources {
		return nil
	}
	return copyFiles(ctx, planCopies(s), filepath.Dir(path), opts)
}

func (w *writer) write(s *scene.Scene) error {
	source := "memory"
	if m, ok := scene.Lookup[scene.Marker](s.Root); ok && m.Source != "" {
		source = filepath.Base(m.Source)
	}
	w.p.Comment(fmt.Sprintf("Exported by pbrt-scenegraph from %s", source))

	w.writeOptions(s)
	w.p.WorldBegin()
	w.writeTextures(s.Resources)
	w.writeMaterials(s.Resources)
	for _, child := range s.Root.Children() {
		if err := w.writeNode(child); err != nil {
			return err
		}
	}
	w.p.WorldEnd()
	return errors.Wrap(w.p.Err(), "failed to write scene")
}

func (w *writer) declared(category string, p scene.Plugin) *pbrt.ParamSet {
	return w.opts.Registry.Declared(category, p.Type, p.Params)
}

func (w *writer) writeOptions(s *scene.Scene) {
	if cam := s.Camera(); cam != nil {
		// the camera node holds the world-to-camera matrix in effect at
		// the Camera directive
		w.p.Transform(cam.World().ColumnMajor())
		if c, ok := scene.Lookup[scene.Camera](cam); ok {
			w.p.Camera(c.Type, w.declared(scene.CategoryCamera, c.Plugin))
		}
		if f, ok := scene.Lookup[scene.Film](cam); ok {
			w.p.Film(f.Type, w.declared(scene.CategoryFilm, f.Plugin))
			if f.Filter.Type != "" {
				w.p.PixelFilter(f.Filter.Type, w.declared(scene.CategoryFilter, f.Filter))
			}
		}
	}
	if c, ok := scene.Lookup[scene.Sampler](s.Root); ok {
		w.p.Sampler(c.Type, w.declared(scene.CategorySampler, c.Plugin))
	}
	if c, ok := scene.Lookup[scene.Accelerator](s.Root); ok {
		w.p.Accelerator(c.Type, w.declared(scene.CategoryAccelerator, c.Plugin))
	}
	if c, ok := scene.Lookup[scene.Integrator](s.Root); ok {
		w.p.Integrator(c.Type, w.declared(scene.CategoryIntegrator, c.Plugin))
	}
}

// writeTextures declares every texture at world scope. Textures that
// shared a name in different scopes get a numeric suffix, per value type,
// so references keep pointing at the texture they were bound to.
func (w *writer) writeTextures(res *scene.Resources) {
	textures := res.Textures()
	w.texNames = make(map[*scene.Texture]string, len(textures))
	used := make(map[string]bool)
	for _, t := range textures {
		t.RLock()
		if !t.Synthetic {
			name := t.Name
			for i := 2; used[t.ValueType+":"+name]; i++ {
				name = fmt.Sprintf("%s-%d", t.Name, i)
			}
			used[t.ValueType+":"+name] = true
			w.texNames[t] = name
		}
		t.RUnlock()
	}

	for _, t := range textures {
		t.RLock()
		if !t.Synthetic {
			w.p.TransformBegin()
			if !t.Transform.IsIdentity(0) {
				w.p.Transform(t.Transform.ColumnMajor())
			}
			w.p.Texture(w.texNames[t], t.ValueType, t.Type, w.renameTextureRefs(w.fileRefs(t.Params), t.Textures))
			w.p.TransformEnd()
		}
		t.RUnlock()
	}
}

// renameTextureRefs points texture parameters at the emitted names of the
// textures they were bound to. params is modified in place.
func (w *writer) renameTextureRefs(params *pbrt.ParamSet, refs scene.TextureRefs) *pbrt.ParamSet {
	for i, p := range params.Params {
		ref, ok := refs[p.Name]
		if p.Type != "texture" || !ok || len(p.Strings) == 0 {
			continue
		}
		if name, ok := w.texNames[ref.Texture()]; ok {
			params.Params[i].Strings = []string{name}
		}
	}
	return params
}

// writeMaterials declares every material by name. Anonymous materials are
// named after their type; clashes get a numeric suffix.
func (w *writer) writeMaterials(res *scene.Resources) {
	materials := res.Materials()
	w.matNames = make(map[*scene.Material]string, len(materials))
	w.named = make(map[string]string)
	used := make(map[string]bool)
	for _, m := range materials {
		m.RLock()
		name := m.Name
		for i := 2; used[name]; i++ {
			name = fmt.Sprintf("%s-%d", m.Name, i)
		}
		used[name] = true
		w.matNames[m] = name
		if _, ok := w.named[m.Name]; m.Named && !ok {
			w.named[m.Name] = name
		}
		m.RUnlock()
	}

	for _, m := range materials {
		m.RLock()
		params := pbrt.NewParamSet()
		params.AddString("string", "type", m.Type)
		for _, p := range w.renameTextureRefs(w.fileRefs(m.Params), m.Textures).Params {
			if p.Kind == pbrt.KindString && strings.HasPrefix(p.Name, "namedmaterial") {
				p = w.renameMaterialRefs(p)
			}
			params.Add(p)
		}
		w.p.MakeNamedMaterial(w.matNames[m], params)
		m.RUnlock()
	}
}

func (w *writer) renameMaterialRefs(p pbrt.Param) pbrt.Param {
	names := make([]string, len(p.Strings))
	for i, n := range p.Strings {
		if renamed, ok := w.named[n]; ok {
			n = renamed
		}
		names[i] = n
	}
	p.Strings = names
	return p
}

// hasContent reports whether a subtree carries anything worth writing
func hasContent(n *scene.Node) bool {
	found := false
	n.Walk(func(c *scene.Node, _ int) bool {
		if found || !c.Enabled() {
			return false
		}
		for _, k := range c.Kinds() {
			if k != scene.KindTransform {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

func (w *writer) writeNode(n *scene.Node) error {
	if !n.Enabled() || n.Has(scene.KindCamera) || !hasContent(n) {
		return nil
	}
	w.p.AttributeBegin()
	if t, ok := scene.Lookup[scene.Transform](n); ok {
		if err := w.writeTransform(t.Matrix); err != nil {
			return errors.Wrapf(err, "node %q", n.Name())
		}
	}

	shape, isShape := scene.Lookup[scene.Shape](n)
	if isShape {
		if ref, ok := scene.Lookup[scene.MaterialRef](n); ok && ref.Material != nil {
			w.p.NamedMaterial(w.matNames[ref.Material])
		} else {
			w.p.NamedMaterial("")
		}
	}
	if a, ok := scene.Lookup[scene.AreaLight](n); ok {
		w.p.AreaLightSource(a.Type, w.fileRefs(a.Params))
	}
	if l, ok := scene.Lookup[scene.Light](n); ok {
		w.p.LightSource(l.Type, w.fileRefs(l.Params))
	}
	if isShape {
		if shape.ReverseOrientation {
			w.p.ReverseOrientation()
		}
		w.p.Shape(shape.Type, w.renameTextureRefs(w.fileRefs(shape.Params), shape.Textures))
	}

	for _, child := range n.Children() {
		if err := w.writeNode(child); err != nil {
			return err
		}
	}
	w.p.AttributeEnd()
	return nil
}

// writeTransform emits m as Translate, Rotate and Scale, skipping parts
// within tolerance of identity. Sheared matrices are written whole.
func (w *writer) writeTransform(m core.Mat4) error {
	d, err := core.Decompose(m)
	if err != nil {
		return errors.Wrap(ErrDecompose, err.Error())
	}
	if !d.Exact {
		w.p.ConcatTransform(m.ColumnMajor())
		return nil
	}
	if d.HasTranslation() {
		w.p.Translate(d.Translation.X, d.Translation.Y, d.Translation.Z)
	}
	if d.HasRotation() {
		axis, angle := d.Rotation.AxisAngle()
		w.p.Rotate(angle, axis.X, axis.Y, axis.Z)
	}
	if d.HasScale() {
		w.p.Scale(d.Scale.X, d.Scale.Y, d.Scale.Z)
	}
	return nil
}

// fileRefs rewrites file parameters for the output location
func (w *writer) fileRefs(params *pbrt.ParamSet) *pbrt.ParamSet {
	out := params.Clone()
	if !w.opts.CopyResources {
		return out
	}
	for i, p := range out.Params {
		if !scene.IsFileParam(p) {
			continue
		}
		for j, ref := range p.Strings {
			if name, ok := w.files[ref]; ok {
				out.Params[i].Strings[j] = name
			}
		}
	}
	return out
}
