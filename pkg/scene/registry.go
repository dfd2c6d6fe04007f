package scene

import (
	"bytes"
	_ "embed"
	"io"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/df07/go-pbrt-scenegraph/pkg/pbrt"
)

// Registry categories
const (
	CategoryCamera      = "camera"
	CategoryFilm        = "film"
	CategoryFilter      = "filter"
	CategorySampler     = "sampler"
	CategoryIntegrator  = "integrator"
	CategoryAccelerator = "accelerator"
	CategoryMaterial    = "material"
	CategoryLight       = "light"
	CategoryAreaLight   = "arealight"
	CategoryShape       = "shape"
	CategoryTexture     = "texture"
)

//go:embed schema.yaml
var defaultSchema []byte

// ParamSpec declares one parameter of a renderer object type
type ParamSpec struct {
	Type    string `yaml:"type"`
	Name    string `yaml:"name"`
	Default []any  `yaml:"default"`
}

// HasDefault reports whether the parameter has a default value
func (s ParamSpec) HasDefault() bool {
	return len(s.Default) > 0
}

// Param converts the default value into a parameter
func (s ParamSpec) Param() (pbrt.Param, error) {
	kind, ok := pbrt.KindForType(s.Type)
	if !ok {
		return pbrt.Param{}, errors.Errorf("unknown parameter type %q", s.Type)
	}
	p := pbrt.Param{Type: s.Type, Name: s.Name, Kind: kind}
	for _, v := range s.Default {
		switch kind {
		case pbrt.KindString:
			str, ok := v.(string)
			if !ok {
				return pbrt.Param{}, errors.Errorf("%s: default %v is not a string", s.Name, v)
			}
			p.Strings = append(p.Strings, str)
		case pbrt.KindBool:
			b, ok := v.(bool)
			if !ok {
				return pbrt.Param{}, errors.Errorf("%s: default %v is not a bool", s.Name, v)
			}
			p.Bools = append(p.Bools, b)
		case pbrt.KindInt:
			i, ok := v.(int)
			if !ok {
				return pbrt.Param{}, errors.Errorf("%s: default %v is not an integer", s.Name, v)
			}
			p.Ints = append(p.Ints, i)
		default:
			switch n := v.(type) {
			case int:
				p.Floats = append(p.Floats, float64(n))
			case float64:
				p.Floats = append(p.Floats, n)
			default:
				return pbrt.Param{}, errors.Errorf("%s: default %v is not a number", s.Name, v)
			}
		}
	}
	return p, nil
}

// Registry lists the parameters each renderer object type declares. It is
// passed to the builder and writer explicitly so tests can use fixtures.
type Registry struct {
	Defaults   map[string]string                 `yaml:"defaults"`
	Categories map[string]map[string][]ParamSpec `yaml:"categories"`
}

// LoadRegistry decodes a registry from YAML and validates every default
func LoadRegistry(r io.Reader) (*Registry, error) {
	reg := &Registry{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(reg); err != nil {
		return nil, errors.Wrap(err, "failed to decode schema registry")
	}
	for category, types := range reg.Categories {
		for typ, specs := range types {
			for _, spec := range specs {
				if _, err := spec.Param(); err != nil {
					return nil, errors.Wrapf(err, "%s %q", category, typ)
				}
			}
		}
	}
	return reg, nil
}

// DefaultRegistry returns a fresh copy of the built-in pbrt-v3 registry
func DefaultRegistry() *Registry {
	reg, err := LoadRegistry(bytes.NewReader(defaultSchema))
	if err != nil {
		panic(errors.Wrap(err, "scene: built-in schema"))
	}
	return reg
}

// Lookup returns the declared parameters of a type
func (r *Registry) Lookup(category, typ string) ([]ParamSpec, bool) {
	if r == nil {
		return nil, false
	}
	specs, ok := r.Categories[category][typ]
	return specs, ok
}

// Known reports whether typ is a registered type of category
func (r *Registry) Known(category, typ string) bool {
	_, ok := r.Lookup(category, typ)
	return ok
}

// Types returns the registered type names of a category, sorted
func (r *Registry) Types(category string) []string {
	if r == nil {
		return nil
	}
	types := make([]string, 0, len(r.Categories[category]))
	for typ := range r.Categories[category] {
		types = append(types, typ)
	}
	sort.Strings(types)
	return types
}

// DefaultType returns the type used when a scene never declares one
func (r *Registry) DefaultType(category string) string {
	if r == nil {
		return ""
	}
	return r.Defaults[category]
}

// Declared returns params restricted to the parameters typ declares, in
// declaration order, with missing ones filled from their defaults. Types
// the registry does not know are returned unchanged.
func (r *Registry) Declared(category, typ string, params *pbrt.ParamSet) *pbrt.ParamSet {
	specs, ok := r.Lookup(category, typ)
	if !ok {
		return params.Clone()
	}
	out := pbrt.NewParamSet()
	for _, spec := range specs {
		if p, ok := params.Find(spec.Name); ok {
			out.Add(p)
			continue
		}
		if !spec.HasDefault() {
			continue
		}
		p, err := spec.Param()
		if err != nil {
			continue
		}
		out.Add(p)
	}
	return out
}

// IsFileParam reports whether a parameter's value names a file
func IsFileParam(p pbrt.Param) bool {
	if p.Kind != pbrt.KindString {
		return false
	}
	switch p.Key() {
	case "string filename", "string bsdffile", "string mapname":
		return true
	}
	return p.Type == "spectrum"
}
