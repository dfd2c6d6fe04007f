package pbrt

// API receives parsed directives, one method per directive. Parsed records
// are replayed against any implementation with Dispatch, so several
// consumers can share a single parse.
type API interface {
	// Transforms
	Identity()
	Translate(dx, dy, dz float64)
	Rotate(angle, dx, dy, dz float64)
	Scale(sx, sy, sz float64)
	LookAt(ex, ey, ez, lx, ly, lz, ux, uy, uz float64)
	ConcatTransform(m [16]float64)
	Transform(m [16]float64)
	CoordinateSystem(name string)
	CoordSysTransform(name string)
	ActiveTransform(which string)
	TransformTimes(start, end float64)

	// Rendering options
	PixelFilter(name string, params *ParamSet)
	Film(typ string, params *ParamSet)
	Sampler(typ string, params *ParamSet)
	Accelerator(typ string, params *ParamSet)
	Integrator(typ string, params *ParamSet)
	Camera(typ string, params *ParamSet)
	MakeNamedMedium(name string, params *ParamSet)
	MediumInterface(inside, outside string)
	WorldBegin()

	// Scene description
	AttributeBegin()
	AttributeEnd()
	TransformBegin()
	TransformEnd()
	Texture(name, valueType, texType string, params *ParamSet)
	Material(typ string, params *ParamSet)
	MakeNamedMaterial(name string, params *ParamSet)
	NamedMaterial(name string)
	LightSource(typ string, params *ParamSet)
	AreaLightSource(typ string, params *ParamSet)
	Shape(typ string, params *ParamSet)
	ReverseOrientation()
	ObjectBegin(name string)
	ObjectEnd()
	ObjectInstance(name string)
	WorldEnd()

	// File structure
	Include(path string)
	WorkDirBegin(path string)
	WorkDirEnd()

	// Lifecycle
	Cleanup()
	ParseFile(path string) error
	ParseString(src string) error
}

// ErrorReporter is implemented by consumers that can fail mid-stream.
// Dispatch stops as soon as Err returns non-nil.
type ErrorReporter interface {
	Err() error
}

// Positioner is implemented by consumers that want the source line of the
// directive they are about to receive.
type Positioner interface {
	SetLine(line int)
}
