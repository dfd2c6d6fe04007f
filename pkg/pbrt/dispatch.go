package pbrt

import (
	"github.com/pkg/errors"
)

// Dispatch replays directives against api in order
func Dispatch(api API, directives []Directive) error {
	reporter, _ := api.(ErrorReporter)
	positioner, _ := api.(Positioner)
	for _, d := range directives {
		if positioner != nil {
			positioner.SetLine(d.Line)
		}
		if err := dispatchOne(api, d); err != nil {
			return err
		}
		if reporter != nil {
			if err := reporter.Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

func dispatchOne(api API, d Directive) error {
	f := d.Floats()
	if sig, ok := LookupSignature(d.Name); ok {
		switch sig.Arity {
		case ArityFloats, ArityFloatArray:
			if len(f) != sig.Count {
				return errors.Wrapf(ErrArity, "%s: expected %d values, got %d", d.Name, sig.Count, len(f))
			}
		}
	}

	switch d.Name {
	case "Identity":
		api.Identity()
	case "Translate":
		api.Translate(f[0], f[1], f[2])
	case "Rotate":
		api.Rotate(f[0], f[1], f[2], f[3])
	case "Scale":
		api.Scale(f[0], f[1], f[2])
	case "LookAt":
		api.LookAt(f[0], f[1], f[2], f[3], f[4], f[5], f[6], f[7], f[8])
	case "ConcatTransform":
		api.ConcatTransform([16]float64(f))
	case "Transform":
		api.Transform([16]float64(f))
	case "CoordinateSystem":
		api.CoordinateSystem(d.String(0))
	case "CoordSysTransform":
		api.CoordSysTransform(d.String(0))
	case "ActiveTransform":
		api.ActiveTransform(d.String(0))
	case "TransformTimes":
		api.TransformTimes(f[0], f[1])
	case "PixelFilter":
		api.PixelFilter(d.String(0), d.Params)
	case "Film":
		api.Film(d.String(0), d.Params)
	case "Sampler":
		api.Sampler(d.String(0), d.Params)
	case "Accelerator":
		api.Accelerator(d.String(0), d.Params)
	case "Integrator":
		api.Integrator(d.String(0), d.Params)
	case "Camera":
		api.Camera(d.String(0), d.Params)
	case "MakeNamedMedium":
		api.MakeNamedMedium(d.String(0), d.Params)
	case "MediumInterface":
		inside := d.String(0)
		outside := inside
		if len(d.Strings()) > 1 {
			outside = d.String(1)
		}
		api.MediumInterface(inside, outside)
	case "WorldBegin":
		api.WorldBegin()
	case "AttributeBegin":
		api.AttributeBegin()
	case "AttributeEnd":
		api.AttributeEnd()
	case "TransformBegin":
		api.TransformBegin()
	case "TransformEnd":
		api.TransformEnd()
	case "Texture":
		api.Texture(d.String(0), d.String(1), d.String(2), d.Params)
	case "Material":
		api.Material(d.String(0), d.Params)
	case "MakeNamedMaterial":
		api.MakeNamedMaterial(d.String(0), d.Params)
	case "NamedMaterial":
		api.NamedMaterial(d.String(0))
	case "LightSource":
		api.LightSource(d.String(0), d.Params)
	case "AreaLightSource":
		api.AreaLightSource(d.String(0), d.Params)
	case "Shape":
		api.Shape(d.String(0), d.Params)
	case "ReverseOrientation":
		api.ReverseOrientation()
	case "ObjectBegin":
		api.ObjectBegin(d.String(0))
	case "ObjectEnd":
		api.ObjectEnd()
	case "ObjectInstance":
		api.ObjectInstance(d.String(0))
	case "WorldEnd":
		api.WorldEnd()
	case "Include":
		api.Include(d.String(0))
	case "WorkDirBegin":
		api.WorkDirBegin(d.String(0))
	case "WorkDirEnd":
		api.WorkDirEnd()
	default:
		return errors.Wrapf(ErrUnknownDirective, "%q", d.Name)
	}
	return nil
}
