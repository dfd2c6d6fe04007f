package pbrt

import (
	"sort"
)

// Arity is the argument shape of a directive
type Arity int

const (
	ArityVoid          Arity = iota // no arguments
	ArityFloats                     // N bare floats
	ArityFloatArray                 // [ ... ] with exactly N floats
	ArityString                     // one quoted string
	ArityStringPair                 // two quoted strings, the second optional
	ArityKeyword                    // one bare keyword
	ArityStringParams               // quoted type name followed by parameters
	ArityTextureParams              // three quoted strings followed by parameters
)

// Signature describes how a directive is written
type Signature struct {
	Arity Arity
	Count int // number of floats for ArityFloats and ArityFloatArray
}

var signatures = map[string]Signature{
	"AttributeBegin":     {Arity: ArityVoid},
	"AttributeEnd":       {Arity: ArityVoid},
	"TransformBegin":     {Arity: ArityVoid},
	"TransformEnd":       {Arity: ArityVoid},
	"Identity":           {Arity: ArityVoid},
	"ReverseOrientation": {Arity: ArityVoid},
	"WorldBegin":         {Arity: ArityVoid},
	"WorldEnd":           {Arity: ArityVoid},
	"ObjectEnd":          {Arity: ArityVoid},
	"WorkDirEnd":         {Arity: ArityVoid},

	"Translate":      {Arity: ArityFloats, Count: 3},
	"Rotate":         {Arity: ArityFloats, Count: 4},
	"Scale":          {Arity: ArityFloats, Count: 3},
	"LookAt":         {Arity: ArityFloats, Count: 9},
	"TransformTimes": {Arity: ArityFloats, Count: 2},

	"Transform":       {Arity: ArityFloatArray, Count: 16},
	"ConcatTransform": {Arity: ArityFloatArray, Count: 16},

	"CoordinateSystem":  {Arity: ArityString},
	"CoordSysTransform": {Arity: ArityString},
	"NamedMaterial":     {Arity: ArityString},
	"ObjectBegin":       {Arity: ArityString},
	"ObjectInstance":    {Arity: ArityString},
	"Include":           {Arity: ArityString},
	"WorkDirBegin":      {Arity: ArityString},

	"MediumInterface": {Arity: ArityStringPair},
	"ActiveTransform": {Arity: ArityKeyword},

	"Camera":            {Arity: ArityStringParams},
	"Film":              {Arity: ArityStringParams},
	"Sampler":           {Arity: ArityStringParams},
	"Integrator":        {Arity: ArityStringParams},
	"Accelerator":       {Arity: ArityStringParams},
	"PixelFilter":       {Arity: ArityStringParams},
	"Shape":             {Arity: ArityStringParams},
	"Material":          {Arity: ArityStringParams},
	"MakeNamedMaterial": {Arity: ArityStringParams},
	"LightSource":       {Arity: ArityStringParams},
	"AreaLightSource":   {Arity: ArityStringParams},
	"MakeNamedMedium":   {Arity: ArityStringParams},

	"Texture": {Arity: ArityTextureParams},
}

var activeTransformKeywords = map[string]bool{"All": true, "StartTime": true, "EndTime": true}

// LookupSignature returns the argument shape of a directive name
func LookupSignature(name string) (Signature, bool) {
	sig, ok := signatures[name]
	return sig, ok
}

// DirectiveNames returns every recognized directive name, sorted
func DirectiveNames() []string {
	names := make([]string, 0, len(signatures))
	for name := range signatures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// argsName is the parameter name under which positional arguments are stored
const argsName = "values"

// Directive is one parsed statement
type Directive struct {
	Name   string
	Args   *ParamSet // positional arguments, stored under "values"
	Params *ParamSet // keyed parameters for directives that take them
	Line   int
}

// Floats returns the positional float arguments
func (d Directive) Floats() []float64 {
	return d.Args.Floats(argsName)
}

// Strings returns the positional string arguments
func (d Directive) Strings() []string {
	return d.Args.Strings(argsName)
}

// String returns the i-th positional string, or "" when absent
func (d Directive) String(i int) string {
	s := d.Strings()
	if i < len(s) {
		return s[i]
	}
	return ""
}
