package pbrt

import (
	"github.com/jinzhu/copier"
	"github.com/pkg/errors"

	"github.com/df07/go-pbrt-scenegraph/pkg/core"
)

// Kind is the storage class of a parameter's values
type Kind int

const (
	KindFloat Kind = iota
	KindInt
	KindString
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	default:
		return "float"
	}
}

// knownTypes maps every accepted parameter type tag to its storage kind.
// "spectrum" is decided per value: quoted values name a file.
var knownTypes = map[string]Kind{
	"integer":   KindInt,
	"float":     KindFloat,
	"point2":    KindFloat,
	"vector2":   KindFloat,
	"point3":    KindFloat,
	"vector3":   KindFloat,
	"normal3":   KindFloat,
	"point":     KindFloat,
	"vector":    KindFloat,
	"normal":    KindFloat,
	"color":     KindFloat,
	"rgb":       KindFloat,
	"xyz":       KindFloat,
	"blackbody": KindFloat,
	"spectrum":  KindFloat,
	"bool":      KindBool,
	"string":    KindString,
	"texture":   KindString,
}

// KindForType returns the storage kind for a type tag
func KindForType(typ string) (Kind, bool) {
	k, ok := knownTypes[typ]
	return k, ok
}

// Param is a single typed, named parameter value list
type Param struct {
	Type    string // Declared type tag (float, rgb, point3, texture, ...)
	Name    string
	Kind    Kind
	Floats  []float64
	Ints    []int
	Strings []string
	Bools   []bool
}

// Len returns the number of values held by the parameter
func (p Param) Len() int {
	switch p.Kind {
	case KindInt:
		return len(p.Ints)
	case KindString:
		return len(p.Strings)
	case KindBool:
		return len(p.Bools)
	default:
		return len(p.Floats)
	}
}

// Key returns the declaration string, e.g. "float roughness"
func (p Param) Key() string {
	return p.Type + " " + p.Name
}

// ParamSet is an ordered collection of parameters, unique by name
type ParamSet struct {
	Params []Param
}

// NewParamSet creates a set holding the given parameters
func NewParamSet(params ...Param) *ParamSet {
	ps := &ParamSet{}
	for _, p := range params {
		ps.Add(p)
	}
	return ps
}

// Len returns the number of parameters
func (ps *ParamSet) Len() int {
	if ps == nil {
		return 0
	}
	return len(ps.Params)
}

// Add inserts p, replacing the type tag and value of an existing entry
// with the same name in place.
func (ps *ParamSet) Add(p Param) {
	for i := range ps.Params {
		if ps.Params[i].Name == p.Name {
			ps.Params[i] = p
			return
		}
	}
	ps.Params = append(ps.Params, p)
}

// AddFloat adds a float-valued parameter
func (ps *ParamSet) AddFloat(typ, name string, values ...float64) {
	ps.Add(Param{Type: typ, Name: name, Kind: KindFloat, Floats: values})
}

// AddInt adds an integer parameter
func (ps *ParamSet) AddInt(name string, values ...int) {
	ps.Add(Param{Type: "integer", Name: name, Kind: KindInt, Ints: values})
}

// AddString adds a string-valued parameter
func (ps *ParamSet) AddString(typ, name string, values ...string) {
	ps.Add(Param{Type: typ, Name: name, Kind: KindString, Strings: values})
}

// AddBool adds a boolean parameter
func (ps *ParamSet) AddBool(name string, values ...bool) {
	ps.Add(Param{Type: "bool", Name: name, Kind: KindBool, Bools: values})
}

// Find looks a parameter up by name; the type tag is not part of the key
func (ps *ParamSet) Find(name string) (Param, bool) {
	if ps == nil {
		return Param{}, false
	}
	for _, p := range ps.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Has reports whether a parameter with this name exists
func (ps *ParamSet) Has(name string) bool {
	_, ok := ps.Find(name)
	return ok
}

// Remove deletes the named parameter and reports whether it existed
func (ps *ParamSet) Remove(name string) bool {
	if ps == nil {
		return false
	}
	for i, p := range ps.Params {
		if p.Name == name {
			ps.Params = append(ps.Params[:i], ps.Params[i+1:]...)
			return true
		}
	}
	return false
}

// Float returns the first value of a float parameter, or def
func (ps *ParamSet) Float(name string, def float64) float64 {
	if v := ps.Floats(name); len(v) > 0 {
		return v[0]
	}
	return def
}

// Floats returns the values of a float parameter. Integer parameters are
// widened so callers need not care how a number was declared.
func (ps *ParamSet) Floats(name string) []float64 {
	p, ok := ps.Find(name)
	if !ok {
		return nil
	}
	switch p.Kind {
	case KindFloat:
		return p.Floats
	case KindInt:
		out := make([]float64, len(p.Ints))
		for i, v := range p.Ints {
			out[i] = float64(v)
		}
		return out
	}
	return nil
}

// Int returns the first value of an integer parameter, or def
func (ps *ParamSet) Int(name string, def int) int {
	if v := ps.Ints(name); len(v) > 0 {
		return v[0]
	}
	return def
}

// Ints returns the values of an integer parameter
func (ps *ParamSet) Ints(name string) []int {
	p, ok := ps.Find(name)
	if !ok || p.Kind != KindInt {
		return nil
	}
	return p.Ints
}

// String returns the first value of a string parameter, or def
func (ps *ParamSet) String(name, def string) string {
	if v := ps.Strings(name); len(v) > 0 {
		return v[0]
	}
	return def
}

// Strings returns the values of a string parameter
func (ps *ParamSet) Strings(name string) []string {
	p, ok := ps.Find(name)
	if !ok || p.Kind != KindString {
		return nil
	}
	return p.Strings
}

// Bool returns the first value of a bool parameter, or def
func (ps *ParamSet) Bool(name string, def bool) bool {
	p, ok := ps.Find(name)
	if !ok || p.Kind != KindBool || len(p.Bools) == 0 {
		return def
	}
	return p.Bools[0]
}

// Vec3 returns a three-component float parameter as a vector
func (ps *ParamSet) Vec3(name string) (core.Vec3, bool) {
	v := ps.Floats(name)
	if len(v) != 3 {
		return core.Vec3{}, false
	}
	return core.NewVec3(v[0], v[1], v[2]), true
}

// Clone returns a deep copy so the caller can mutate it freely
func (ps *ParamSet) Clone() *ParamSet {
	out := &ParamSet{}
	if ps == nil {
		return out
	}
	if err := copier.CopyWithOption(out, ps, copier.Option{DeepCopy: true}); err != nil {
		panic(errors.Wrap(err, "pbrt: clone param set"))
	}
	return out
}
