package pbrt

// Multi forwards every call to each of its targets, in order
type Multi struct {
	targets []API
}

// NewMulti creates a fan-out over targets
func NewMulti(targets ...API) *Multi {
	return &Multi{targets: targets}
}

// Add appends another target
func (m *Multi) Add(api API) {
	m.targets = append(m.targets, api)
}

// Targets returns the forwarding list
func (m *Multi) Targets() []API {
	return m.targets
}

func (m *Multi) each(fn func(API)) {
	for _, t := range m.targets {
		fn(t)
	}
}

// Err returns the first error reported by any target
func (m *Multi) Err() error {
	for _, t := range m.targets {
		if r, ok := t.(ErrorReporter); ok {
			if err := r.Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

// SetLine forwards the current source line to targets that track it
func (m *Multi) SetLine(line int) {
	for _, t := range m.targets {
		if pos, ok := t.(Positioner); ok {
			pos.SetLine(line)
		}
	}
}

func (m *Multi) Identity() { m.each(func(a API) { a.Identity() }) }

func (m *Multi) Translate(dx, dy, dz float64) {
	m.each(func(a API) { a.Translate(dx, dy, dz) })
}

func (m *Multi) Rotate(angle, dx, dy, dz float64) {
	m.each(func(a API) { a.Rotate(angle, dx, dy, dz) })
}

func (m *Multi) Scale(sx, sy, sz float64) {
	m.each(func(a API) { a.Scale(sx, sy, sz) })
}

func (m *Multi) LookAt(ex, ey, ez, lx, ly, lz, ux, uy, uz float64) {
	m.each(func(a API) { a.LookAt(ex, ey, ez, lx, ly, lz, ux, uy, uz) })
}

func (m *Multi) ConcatTransform(mat [16]float64) {
	m.each(func(a API) { a.ConcatTransform(mat) })
}

func (m *Multi) Transform(mat [16]float64) {
	m.each(func(a API) { a.Transform(mat) })
}

func (m *Multi) CoordinateSystem(name string) {
	m.each(func(a API) { a.CoordinateSystem(name) })
}

func (m *Multi) CoordSysTransform(name string) {
	m.each(func(a API) { a.CoordSysTransform(name) })
}

func (m *Multi) ActiveTransform(which string) {
	m.each(func(a API) { a.ActiveTransform(which) })
}

func (m *Multi) TransformTimes(start, end float64) {
	m.each(func(a API) { a.TransformTimes(start, end) })
}

// Each target receives its own copy of the parameters so one consumer
// mutating them cannot affect another.

func (m *Multi) PixelFilter(name string, params *ParamSet) {
	m.each(func(a API) { a.PixelFilter(name, params.Clone()) })
}

func (m *Multi) Film(typ string, params *ParamSet) {
	m.each(func(a API) { a.Film(typ, params.Clone()) })
}

func (m *Multi) Sampler(typ string, params *ParamSet) {
	m.each(func(a API) { a.Sampler(typ, params.Clone()) })
}

func (m *Multi) Accelerator(typ string, params *ParamSet) {
	m.each(func(a API) { a.Accelerator(typ, params.Clone()) })
}

func (m *Multi) Integrator(typ string, params *ParamSet) {
	m.each(func(a API) { a.Integrator(typ, params.Clone()) })
}

func (m *Multi) Camera(typ string, params *ParamSet) {
	m.each(func(a API) { a.Camera(typ, params.Clone()) })
}

func (m *Multi) MakeNamedMedium(name string, params *ParamSet) {
	m.each(func(a API) { a.MakeNamedMedium(name, params.Clone()) })
}

func (m *Multi) MediumInterface(inside, outside string) {
	m.each(func(a API) { a.MediumInterface(inside, outside) })
}

func (m *Multi) WorldBegin()     { m.each(func(a API) { a.WorldBegin() }) }
func (m *Multi) AttributeBegin() { m.each(func(a API) { a.AttributeBegin() }) }
func (m *Multi) AttributeEnd()   { m.each(func(a API) { a.AttributeEnd() }) }
func (m *Multi) TransformBegin() { m.each(func(a API) { a.TransformBegin() }) }
func (m *Multi) TransformEnd()   { m.each(func(a API) { a.TransformEnd() }) }

func (m *Multi) Texture(name, valueType, texType string, params *ParamSet) {
	m.each(func(a API) { a.Texture(name, valueType, texType, params.Clone()) })
}

func (m *Multi) Material(typ string, params *ParamSet) {
	m.each(func(a API) { a.Material(typ, params.Clone()) })
}

func (m *Multi) MakeNamedMaterial(name string, params *ParamSet) {
	m.each(func(a API) { a.MakeNamedMaterial(name, params.Clone()) })
}

func (m *Multi) NamedMaterial(name string) {
	m.each(func(a API) { a.NamedMaterial(name) })
}

func (m *Multi) LightSource(typ string, params *ParamSet) {
	m.each(func(a API) { a.LightSource(typ, params.Clone()) })
}

func (m *Multi) AreaLightSource(typ string, params *ParamSet) {
	m.each(func(a API) { a.AreaLightSource(typ, params.Clone()) })
}

func (m *Multi) Shape(typ string, params *ParamSet) {
	m.each(func(a API) { a.Shape(typ, params.Clone()) })
}

func (m *Multi) ReverseOrientation() { m.each(func(a API) { a.ReverseOrientation() }) }

func (m *Multi) ObjectBegin(name string) { m.each(func(a API) { a.ObjectBegin(name) }) }
func (m *Multi) ObjectEnd()              { m.each(func(a API) { a.ObjectEnd() }) }

func (m *Multi) ObjectInstance(name string) {
	m.each(func(a API) { a.ObjectInstance(name) })
}

func (m *Multi) WorldEnd() { m.each(func(a API) { a.WorldEnd() }) }

func (m *Multi) Include(path string) { m.each(func(a API) { a.Include(path) }) }

func (m *Multi) WorkDirBegin(path string) { m.each(func(a API) { a.WorkDirBegin(path) }) }
func (m *Multi) WorkDirEnd()              { m.each(func(a API) { a.WorkDirEnd() }) }

func (m *Multi) Cleanup() { m.each(func(a API) { a.Cleanup() }) }

// ParseFile parses path once and replays it to every target
func (m *Multi) ParseFile(path string) error {
	directives, err := ParseFile(path)
	if err != nil {
		return err
	}
	return Dispatch(m, directives)
}

// ParseString parses src once and replays it to every target
func (m *Multi) ParseString(src string) error {
	directives, err := Parse(src)
	if err != nil {
		return err
	}
	return Dispatch(m, directives)
}
