// Package builder interprets pbrt directives into a scene graph.
package builder

import (
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"

	"github.com/pkg/errors"

	"github.com/df07/go-pbrt-scenegraph/pkg/core"
	"github.com/df07/go-pbrt-scenegraph/pkg/loaders"
	"github.com/df07/go-pbrt-scenegraph/pkg/pbrt"
	"github.com/df07/go-pbrt-scenegraph/pkg/scene"
)

// Reserved named coordinate systems
const (
	CameraCoordSys = "camera"
	WorldCoordSys  = "world"
)

// Options configures a Builder
type Options struct {
	// BaseDir resolves relative paths when no work directory applies.
	// Defaults to the directory of the parsed file.
	BaseDir string
	// Registry declares renderer object types. Defaults to the built-in one.
	Registry *scene.Registry
	// MeshBuilders produce mesh payloads per shape type
	MeshBuilders map[string]scene.MeshBuilder
	Logger       *slog.Logger
	// CheckImages checks image textures can be decoded
	CheckImages bool
}

// Warning is a non-fatal problem found while building
type Warning struct {
	File      string
	Line      int
	Directive string
	Message   string
}

func (w Warning) String() string {
	loc := fmt.Sprintf("line %d", w.Line)
	if w.File != "" {
		loc = fmt.Sprintf("%s:%d", filepath.Base(w.File), w.Line)
	}
	return fmt.Sprintf("%s: %s: %s", loc, w.Directive, w.Message)
}

type phase int

const (
	phaseOptions phase = iota
	phaseWorld
	phaseDone
)

type scopeKind int

const (
	scopeRoot scopeKind = iota
	scopeAttribute
	scopeTransform
	scopeObject
)

func (k scopeKind) String() string {
	switch k {
	case scopeAttribute:
		return "AttributeBegin"
	case scopeTransform:
		return "TransformBegin"
	case scopeObject:
		return "ObjectBegin"
	default:
		return "root"
	}
}

// scope is one level of the node stack. world is the transform in effect
// when the scope opened, which is also the world matrix of its node.
type scope struct {
	kind  scopeKind
	node  *scene.Node
	world core.TransformSet
	name  string // object name for scopeObject
}

// graphicsState is cloned on AttributeBegin and discarded on AttributeEnd
type graphicsState struct {
	material           *scene.Material
	namedMaterials     map[string]*scene.Material
	textures           map[string]*scene.Texture // keyed by value type and name
	areaLight          *scene.AreaLight
	reverseOrientation bool
}

func newGraphicsState() graphicsState {
	return graphicsState{
		namedMaterials: make(map[string]*scene.Material),
		textures:       make(map[string]*scene.Texture),
	}
}

func (g graphicsState) clone() graphicsState {
	g.namedMaterials = maps.Clone(g.namedMaterials)
	g.textures = maps.Clone(g.textures)
	return g
}

type objectDef struct {
	node  *scene.Node
	world core.Mat4
}

// Depths reports the sizes of the interpreter stacks
type Depths struct {
	Transforms int
	Graphics   int
	Nodes      int
	WorkDirs   int
}

var _ pbrt.API = (*Builder)(nil)

// Builder implements pbrt.API by building a scene graph. It is not safe
// for concurrent use; the scene it produces is.
type Builder struct {
	opts     Options
	log      *slog.Logger
	registry *scene.Registry
	meshes   map[string]scene.MeshBuilder

	phase      phase
	transforms []core.TransformSet
	graphics   []graphicsState
	scopes     []scope
	workDirs   []string
	coordSys   map[string]core.TransformSet
	objects    map[string]objectDef
	active     string

	root      *scene.Node
	resources *scene.Resources
	camera    scene.Plugin
	film      scene.Plugin
	filter    scene.Plugin
	sampler   scene.Plugin
	integr    scene.Plugin
	accel     scene.Plugin

	textureOrder  int
	source        string
	file          string
	line          int
	includes      []string
	includeFloors []int // len(workDirs) inside each open Include
	sources       []*loaders.Source
	warnings      []Warning
	warnedOnce    map[string]bool
	err           error
	result        *scene.Scene
}

// New creates a builder in the options state
func New(opts Options) *Builder {
	if opts.Registry == nil {
		opts.Registry = scene.DefaultRegistry()
	}
	if opts.MeshBuilders == nil {
		opts.MeshBuilders = loaders.DefaultMeshBuilders()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	b := &Builder{
		opts:       opts,
		log:        opts.Logger,
		registry:   opts.Registry,
		meshes:     opts.MeshBuilders,
		transforms: []core.TransformSet{core.IdentityTransform()},
		graphics:   []graphicsState{newGraphicsState()},
		coordSys:   make(map[string]core.TransformSet),
		objects:    make(map[string]objectDef),
		active:     "All",
		resources:  scene.NewResources(),
		warnedOnce: make(map[string]bool),
	}
	b.root = scene.NewNode("root")
	b.scopes = []scope{{kind: scopeRoot, node: b.root, world: core.IdentityTransform()}}
	return b
}

// Warnings returns the warnings recorded so far, in order
func (b *Builder) Warnings() []Warning {
	return slices.Clone(b.warnings)
}

// Err returns the fatal error that stopped the build, if any
func (b *Builder) Err() error {
	return b.err
}

// SetLine records the source line of the next directive
func (b *Builder) SetLine(line int) {
	b.line = line
}

// Depths returns the current stack depths. A balanced input leaves every
// stack but the work directories at depth 1.
func (b *Builder) Depths() Depths {
	return Depths{
		Transforms: len(b.transforms),
		Graphics:   len(b.graphics),
		Nodes:      len(b.scopes),
		WorkDirs:   len(b.workDirs),
	}
}

func (b *Builder) warn(directive, format string, args ...any) {
	w := Warning{File: b.file, Line: b.line, Directive: directive, Message: fmt.Sprintf(format, args...)}
	b.warnings = append(b.warnings, w)
	b.log.Warn(w.Message, "directive", directive, "line", w.Line, "file", w.File)
}

func (b *Builder) warnOnce(directive, format string, args ...any) {
	if b.warnedOnce[directive] {
		return
	}
	b.warnedOnce[directive] = true
	b.warn(directive, format, args...)
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *Builder) ctm() core.TransformSet {
	return b.transforms[len(b.transforms)-1]
}

func (b *Builder) setCTM(t core.TransformSet) {
	b.transforms[len(b.transforms)-1] = t
}

func (b *Builder) gs() *graphicsState {
	return &b.graphics[len(b.graphics)-1]
}

func (b *Builder) top() scope {
	return b.scopes[len(b.scopes)-1]
}

// requireOptions reports whether an options-only directive is allowed now
func (b *Builder) requireOptions(directive string) bool {
	if b.phase != phaseOptions {
		b.warn(directive, "options cannot be set inside the world block; ignored")
		return false
	}
	return true
}

// requireWorld reports whether a world-only directive is allowed now
func (b *Builder) requireWorld(directive string) bool {
	switch b.phase {
	case phaseOptions:
		b.warn(directive, "not allowed before WorldBegin; ignored")
		return false
	case phaseDone:
		b.warn(directive, "not allowed after WorldEnd; ignored")
		return false
	}
	return true
}

// Rendering options

func (b *Builder) setOption(directive string, dst *scene.Plugin, category, typ string, params *pbrt.ParamSet) {
	if !b.requireOptions(directive) {
		return
	}
	b.checkType(directive, category, typ)
	*dst = scene.Plugin{Type: typ, Params: params.Clone()}
}

func (b *Builder) checkType(directive, category, typ string) {
	if b.registry.Known(category, typ) {
		return
	}
	msg := fmt.Sprintf("unknown %s type %q", category, typ)
	if s := pbrt.Suggest(typ, b.registry.Types(category)); s != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", s)
	}
	b.warn(directive, "%s", msg)
}

func (b *Builder) PixelFilter(name string, params *pbrt.ParamSet) {
	b.setOption("PixelFilter", &b.filter, scene.CategoryFilter, name, params)
}

func (b *Builder) Film(typ string, params *pbrt.ParamSet) {
	b.setOption("Film", &b.film, scene.CategoryFilm, typ, params)
}

func (b *Builder) Sampler(typ string, params *pbrt.ParamSet) {
	b.setOption("Sampler", &b.sampler, scene.CategorySampler, typ, params)
}

func (b *Builder) Accelerator(typ string, params *pbrt.ParamSet) {
	b.setOption("Accelerator", &b.accel, scene.CategoryAccelerator, typ, params)
}

func (b *Builder) Integrator(typ string, params *pbrt.ParamSet) {
	b.setOption("Integrator", &b.integr, scene.CategoryIntegrator, typ, params)
}

// Camera records the camera and stores camera-to-world under the reserved
// "camera" coordinate system.
func (b *Builder) Camera(typ string, params *pbrt.ParamSet) {
	if !b.requireOptions("Camera") {
		return
	}
	b.checkType("Camera", scene.CategoryCamera, typ)
	b.camera = scene.Plugin{Type: typ, Params: params.Clone()}
	b.coordSys[CameraCoordSys] = b.ctm().Inverted()
}

func (b *Builder) MakeNamedMedium(name string, _ *pbrt.ParamSet) {
	b.warn("MakeNamedMedium", "participating media are not supported; %q ignored", name)
}

func (b *Builder) MediumInterface(inside, outside string) {
	b.warnOnce("MediumInterface", "participating media are not supported; ignored")
}

// WorldBegin leaves the options state. The camera node is synthesized
// from the transform captured at Camera, or from the current transform if
// no camera was declared.
func (b *Builder) WorldBegin() {
	if b.phase != phaseOptions {
		b.warn("WorldBegin", "world already begun; ignored")
		return
	}
	b.beginWorld()
}

func (b *Builder) beginWorld() {
	if len(b.scopes) > 1 {
		b.warn("WorldBegin", "%d unclosed %s scope(s) before WorldBegin", len(b.scopes)-1, b.top().kind)
	}
	snapshot, ok := b.coordSys[CameraCoordSys]
	if !ok {
		snapshot = b.ctm().Inverted()
		b.coordSys[CameraCoordSys] = snapshot
	}

	b.phase = phaseWorld
	b.root = scene.NewNode("root")
	b.scopes = []scope{{kind: scopeRoot, node: b.root, world: core.IdentityTransform()}}
	b.transforms = []core.TransformSet{core.IdentityTransform()}
	b.graphics = b.graphics[:1]
	b.coordSys[WorldCoordSys] = core.IdentityTransform()

	typ := b.camera.Type
	if typ == "" {
		typ = b.registry.DefaultType(scene.CategoryCamera)
	}
	cam := scene.NewNode("camera")
	cam.Set(scene.Transform{Matrix: snapshot.Inv})
	cam.Set(scene.Camera{Plugin: scene.Plugin{Type: typ, Params: b.camera.Params.Clone()}})
	b.root.AddChild(cam)
}

func (b *Builder) WorldEnd() {
	if !b.requireWorld("WorldEnd") {
		return
	}
	if n := len(b.scopes) - 1; n > 0 {
		b.warn("WorldEnd", "%d unclosed scope(s) at WorldEnd", n)
		b.scopes = b.scopes[:1]
		b.transforms = b.transforms[:1]
		b.graphics = b.graphics[:1]
	}
	b.phase = phaseDone
}

// Cleanup removes temporary files created for archive inputs
func (b *Builder) Cleanup() {
	for _, src := range b.sources {
		if err := src.Close(); err != nil {
			b.log.Warn("failed to remove extracted archive", "path", src.Path, "err", err)
		}
	}
	b.sources = nil
}

// ParseFile parses and interprets a scene file, which may be gzip
// compressed or a gzip-compressed tar archive.
func (b *Builder) ParseFile(path string) error {
	src, err := loaders.OpenScene(path)
	if err != nil {
		return err
	}
	b.sources = append(b.sources, src)
	abs, err := filepath.Abs(src.Path)
	if err != nil {
		return errors.Wrapf(err, "failed to resolve %s", src.Path)
	}
	if b.source == "" {
		b.source = abs
	}
	if b.opts.BaseDir == "" {
		b.opts.BaseDir = filepath.Dir(abs)
	}
	return b.interpret(abs, src.Text)
}

// ParseString parses and interprets scene text
func (b *Builder) ParseString(src string) error {
	return b.interpret("", src)
}

func (b *Builder) interpret(file, text string) error {
	directives, err := pbrt.Parse(text)
	if err != nil {
		if file != "" {
			return errors.Wrapf(err, "%s", file)
		}
		return err
	}

	prevFile, prevLine := b.file, b.line
	b.file = file
	if file != "" {
		b.includes = append(b.includes, file)
	}
	defer func() {
		b.file, b.line = prevFile, prevLine
		if file != "" {
			b.includes = b.includes[:len(b.includes)-1]
		}
	}()
	if err := pbrt.Dispatch(b, directives); err != nil {
		return err
	}
	return b.err
}

// Finish finalizes the scene. It may be called more than once; later
// calls return the same scene.
func (b *Builder) Finish() (*scene.Scene, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.result != nil {
		return b.result, nil
	}
	if b.phase == phaseOptions {
		b.warn("WorldBegin", "input has no world block")
		b.beginWorld()
	}
	if n := len(b.scopes) - 1; n > 0 {
		b.warn("AttributeEnd", "%d unclosed scope(s) at end of input", n)
		b.scopes = b.scopes[:1]
		b.transforms = b.transforms[:1]
		b.graphics = b.graphics[:1]
	}
	if n := len(b.workDirs); n > 0 {
		b.warn("WorkDirEnd", "%d unclosed WorkDirBegin(s) at end of input", n)
		b.workDirs = nil
	}

	root := b.root
	root.Set(scene.Marker{Source: b.source})
	root.Set(scene.Sampler{Plugin: b.option(b.sampler, scene.CategorySampler)})
	root.Set(scene.Accelerator{Plugin: b.option(b.accel, scene.CategoryAccelerator)})
	root.Set(scene.Integrator{Plugin: b.option(b.integr, scene.CategoryIntegrator)})

	up := core.NewVec3(0, 1, 0)
	if cam := root.FindKind(scene.KindCamera); cam != nil {
		cam.Set(scene.Film{
			Plugin: b.option(b.film, scene.CategoryFilm),
			Filter: b.option(b.filter, scene.CategoryFilter),
		})
		if camToWorld, err := cam.World().Inverse(); err == nil {
			up = camToWorld.TransformVector(up)
		}
	}
	root.Set(scene.NewCoordinateSystem(up))
	root.Set(scene.ResourceSet{Resources: b.resources})

	b.phase = phaseDone
	b.result = &scene.Scene{Root: root, Resources: b.resources}
	return b.result, nil
}

func (b *Builder) option(p scene.Plugin, category string) scene.Plugin {
	if p.Type == "" {
		return scene.Plugin{Type: b.registry.DefaultType(category), Params: pbrt.NewParamSet()}
	}
	return p
}

// Result is a loaded scene together with the warnings raised building it
type Result struct {
	Scene    *scene.Scene
	Warnings []Warning

	builder *Builder
}

// Close releases temporary files backing the scene, such as an extracted
// archive. The scene's file references are invalid afterwards.
func (r *Result) Close() error {
	if r.builder != nil {
		r.builder.Cleanup()
	}
	return nil
}

// LoadFile builds a scene from a file
func LoadFile(path string, opts Options) (*Result, error) {
	b := New(opts)
	if err := b.ParseFile(path); err != nil {
		b.Cleanup()
		return nil, err
	}
	return b.load()
}

// LoadString builds a scene from text
func LoadString(src string, opts Options) (*Result, error) {
	b := New(opts)
	if err := b.ParseString(src); err != nil {
		return nil, err
	}
	return b.load()
}

func (b *Builder) load() (*Result, error) {
	s, err := b.Finish()
	if err != nil {
		b.Cleanup()
		return nil, err
	}
	return &Result{Scene: s, Warnings: b.Warnings(), builder: b}, nil
}
