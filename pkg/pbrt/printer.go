package pbrt

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Printer is an API implementation that writes directive text back out.
// Indentation grows by one level on every Begin directive and shrinks on
// every End, never going below zero.
type Printer struct {
	w      io.Writer
	indent int
	unit   string
	err    error
}

// NewPrinter creates a printer writing to w with two-space indentation
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, unit: "  "}
}

// Indent returns the current indentation depth
func (p *Printer) Indent() int {
	return p.indent
}

// Err returns the first write error, if any
func (p *Printer) Err() error {
	return p.err
}

// Comment writes a '#' comment line at the current indentation
func (p *Printer) Comment(text string) {
	for _, line := range strings.Split(text, "\n") {
		p.line("# " + line)
	}
}

func (p *Printer) line(s string) {
	if p.err != nil {
		return
	}
	_, p.err = io.WriteString(p.w, strings.Repeat(p.unit, p.indent)+s+"\n")
}

func (p *Printer) begin(name string) {
	p.line(name)
	p.indent++
}

func (p *Printer) end(name string) {
	if p.indent > 0 {
		p.indent--
	}
	p.line(name)
}

// FormatFloat renders v in the shortest form that parses back exactly
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatFloats(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = FormatFloat(v)
	}
	return strings.Join(parts, " ")
}

// FormatParam renders one parameter entry as `"type name" [ values ]`
func FormatParam(prm Param) string {
	var values []string
	switch prm.Kind {
	case KindString:
		for _, s := range prm.Strings {
			values = append(values, strconv.Quote(s))
		}
	case KindBool:
		for _, b := range prm.Bools {
			values = append(values, strconv.Quote(strconv.FormatBool(b)))
		}
	case KindInt:
		for _, v := range prm.Ints {
			values = append(values, strconv.Itoa(v))
		}
	default:
		for _, v := range prm.Floats {
			values = append(values, FormatFloat(v))
		}
	}
	return fmt.Sprintf("%s [ %s ]", strconv.Quote(prm.Key()), strings.Join(values, " "))
}

func (p *Printer) withParams(head string, params *ParamSet) {
	p.line(head)
	if params.Len() == 0 {
		return
	}
	p.indent++
	for _, prm := range params.Params {
		p.line(FormatParam(prm))
	}
	p.indent--
}

func (p *Printer) Identity() { p.line("Identity") }

func (p *Printer) Translate(dx, dy, dz float64) {
	p.line("Translate " + formatFloats([]float64{dx, dy, dz}))
}

func (p *Printer) Rotate(angle, dx, dy, dz float64) {
	p.line("Rotate " + formatFloats([]float64{angle, dx, dy, dz}))
}

func (p *Printer) Scale(sx, sy, sz float64) {
	p.line("Scale " + formatFloats([]float64{sx, sy, sz}))
}

func (p *Printer) LookAt(ex, ey, ez, lx, ly, lz, ux, uy, uz float64) {
	p.line("LookAt " + formatFloats([]float64{ex, ey, ez, lx, ly, lz, ux, uy, uz}))
}

func (p *Printer) ConcatTransform(m [16]float64) {
	p.line("ConcatTransform [ " + formatFloats(m[:]) + " ]")
}

func (p *Printer) Transform(m [16]float64) {
	p.line("Transform [ " + formatFloats(m[:]) + " ]")
}

func (p *Printer) CoordinateSystem(name string) {
	p.line("CoordinateSystem " + strconv.Quote(name))
}

func (p *Printer) CoordSysTransform(name string) {
	p.line("CoordSysTransform " + strconv.Quote(name))
}

func (p *Printer) ActiveTransform(which string) { p.line("ActiveTransform " + which) }

func (p *Printer) TransformTimes(start, end float64) {
	p.line("TransformTimes " + formatFloats([]float64{start, end}))
}

func (p *Printer) PixelFilter(name string, params *ParamSet) {
	p.withParams("PixelFilter "+strconv.Quote(name), params)
}

func (p *Printer) Film(typ string, params *ParamSet) {
	p.withParams("Film "+strconv.Quote(typ), params)
}

func (p *Printer) Sampler(typ string, params *ParamSet) {
	p.withParams("Sampler "+strconv.Quote(typ), params)
}

func (p *Printer) Accelerator(typ string, params *ParamSet) {
	p.withParams("Accelerator "+strconv.Quote(typ), params)
}

func (p *Printer) Integrator(typ string, params *ParamSet) {
	p.withParams("Integrator "+strconv.Quote(typ), params)
}

func (p *Printer) Camera(typ string, params *ParamSet) {
	p.withParams("Camera "+strconv.Quote(typ), params)
}

func (p *Printer) MakeNamedMedium(name string, params *ParamSet) {
	p.withParams("MakeNamedMedium "+strconv.Quote(name), params)
}

func (p *Printer) MediumInterface(inside, outside string) {
	p.line("MediumInterface " + strconv.Quote(inside) + " " + strconv.Quote(outside))
}

func (p *Printer) WorldBegin()     { p.begin("WorldBegin") }
func (p *Printer) AttributeBegin() { p.begin("AttributeBegin") }
func (p *Printer) AttributeEnd()   { p.end("AttributeEnd") }
func (p *Printer) TransformBegin() { p.begin("TransformBegin") }
func (p *Printer) TransformEnd()   { p.end("TransformEnd") }

func (p *Printer) Texture(name, valueType, texType string, params *ParamSet) {
	p.withParams("Texture "+strconv.Quote(name)+" "+strconv.Quote(valueType)+" "+strconv.Quote(texType), params)
}

func (p *Printer) Material(typ string, params *ParamSet) {
	p.withParams("Material "+strconv.Quote(typ), params)
}

func (p *Printer) MakeNamedMaterial(name string, params *ParamSet) {
	p.withParams("MakeNamedMaterial "+strconv.Quote(name), params)
}

func (p *Printer) NamedMaterial(name string) {
	p.line("NamedMaterial " + strconv.Quote(name))
}

func (p *Printer) LightSource(typ string, params *ParamSet) {
	p.withParams("LightSource "+strconv.Quote(typ), params)
}

func (p *Printer) AreaLightSource(typ string, params *ParamSet) {
	p.withParams("AreaLightSource "+strconv.Quote(typ), params)
}

func (p *Printer) Shape(typ string, params *ParamSet) {
	p.withParams("Shape "+strconv.Quote(typ), params)
}

func (p *Printer) ReverseOrientation() { p.line("ReverseOrientation") }

func (p *Printer) ObjectBegin(name string) { p.begin("ObjectBegin " + strconv.Quote(name)) }
func (p *Printer) ObjectEnd()              { p.end("ObjectEnd") }

func (p *Printer) ObjectInstance(name string) {
	p.line("ObjectInstance " + strconv.Quote(name))
}

func (p *Printer) WorldEnd() { p.end("WorldEnd") }

func (p *Printer) Include(path string) { p.line("Include " + strconv.Quote(path)) }

func (p *Printer) WorkDirBegin(path string) { p.begin("WorkDirBegin " + strconv.Quote(path)) }
func (p *Printer) WorkDirEnd()              { p.end("WorkDirEnd") }

// Cleanup resets indentation
func (p *Printer) Cleanup() {
	p.indent = 0
}

// ParseFile parses path and prints every directive
func (p *Printer) ParseFile(path string) error {
	directives, err := ParseFile(path)
	if err != nil {
		return err
	}
	return Dispatch(p, directives)
}

// ParseString parses src and prints every directive
func (p *Printer) ParseString(src string) error {
	directives, err := Parse(src)
	if err != nil {
		return err
	}
	return Dispatch(p, directives)
}
