package builder

import (
	"fmt"
	"maps"
	"slices"

	"github.com/pkg/errors"

	"github.com/df07/go-pbrt-scenegraph/pkg/loaders"
	"github.com/df07/go-pbrt-scenegraph/pkg/pbrt"
	"github.com/df07/go-pbrt-scenegraph/pkg/scene"
)

// Materials

func (b *Builder) Material(typ string, params *pbrt.ParamSet) {
	if !b.requireWorld("Material") {
		return
	}
	b.checkType("Material", scene.CategoryMaterial, typ)
	params = b.attachmentParams("Material", params)
	m := b.resources.AddMaterial(&scene.Material{
		ID:       scene.NewID(),
		Name:     typ,
		Type:     typ,
		Params:   params,
		Textures: b.bindTextures("Material", params),
	})
	b.gs().material = m
}

func (b *Builder) MakeNamedMaterial(name string, params *pbrt.ParamSet) {
	if !b.requireWorld("MakeNamedMaterial") {
		return
	}
	params = params.Clone()
	typ := params.String("type", "")
	if typ == "" {
		b.warn("MakeNamedMaterial", "material %q has no \"string type\" parameter; ignored", name)
		return
	}
	params.Remove("type")

	gs := b.gs()
	if _, ok := gs.namedMaterials[name]; ok {
		b.warn("MakeNamedMaterial", "named material %q redefined", name)
	}
	b.checkType("MakeNamedMaterial", scene.CategoryMaterial, typ)
	params = b.attachmentParams("MakeNamedMaterial", params)
	m := b.resources.AddMaterial(&scene.Material{
		ID:       scene.NewID(),
		Name:     name,
		Type:     typ,
		Params:   params,
		Named:    true,
		Textures: b.bindTextures("MakeNamedMaterial", params),
	})
	gs.namedMaterials[name] = m
}

func (b *Builder) NamedMaterial(name string) {
	if !b.requireWorld("NamedMaterial") {
		return
	}
	gs := b.gs()
	if name == "" || name == "none" {
		gs.material = nil
		return
	}
	m, ok := gs.namedMaterials[name]
	if !ok {
		msg := fmt.Sprintf("unknown named material %q", name)
		if s := pbrt.Suggest(name, slices.Collect(maps.Keys(gs.namedMaterials))); s != "" {
			msg += fmt.Sprintf(" (did you mean %q?)", s)
		}
		b.warn("NamedMaterial", "%s", msg)
		return
	}
	gs.material = m
}

// Textures

func textureKey(valueType, name string) string {
	return valueType + ":" + name
}

func (b *Builder) Texture(name, valueType, texType string, params *pbrt.ParamSet) {
	if !b.requireWorld("Texture") {
		return
	}
	switch valueType {
	case "float", "spectrum":
	case "color":
		valueType = "spectrum"
	default:
		b.warn("Texture", "texture %q has unknown value type %q; ignored", name, valueType)
		return
	}
	b.checkType("Texture", scene.CategoryTexture, texType)

	params, missing := b.fileParams(params)
	if len(missing) > 0 {
		b.warn("Texture", "texture %q references missing file %q; ignored", name, missing[0])
		return
	}
	refs := b.bindTextures("Texture", params)

	file := params.String("filename", "")
	if file != "" && b.opts.CheckImages {
		if _, err := loaders.ReadImageInfo(file); err != nil && !errors.Is(err, loaders.ErrUnsupportedImage) {
			b.warn("Texture", "texture %q: %v; ignored", name, err)
			return
		}
	}

	gs := b.gs()
	key := textureKey(valueType, name)
	if _, ok := gs.textures[key]; ok {
		b.warn("Texture", "%s texture %q redefined", valueType, name)
	}
	t := b.resources.AddTexture(&scene.Texture{
		ID:        scene.NewID(),
		Name:      name,
		ValueType: valueType,
		Type:      texType,
		Params:    params,
		Order:     b.nextTextureOrder(),
		File:      file,
		Transform: b.ctm().M,
		Textures:  refs,
	})
	gs.textures[key] = t
}

func (b *Builder) nextTextureOrder() int {
	b.textureOrder++
	return b.textureOrder
}

// bindTextures resolves texture parameters against the textures in scope
// and warns about names that match none. The result is nil when params
// has no texture parameters.
func (b *Builder) bindTextures(directive string, params *pbrt.ParamSet) scene.TextureRefs {
	gs := b.gs()
	var refs scene.TextureRefs
	for _, p := range params.Params {
		if p.Type != "texture" || len(p.Strings) == 0 {
			continue
		}
		name := p.Strings[0]
		ref := scene.TextureRef{
			Float:    gs.textures[textureKey("float", name)],
			Spectrum: gs.textures[textureKey("spectrum", name)],
		}
		if ref.Texture() == nil {
			b.warn(directive, "parameter %q references unknown texture %q", p.Name, name)
			continue
		}
		if refs == nil {
			refs = make(scene.TextureRefs)
		}
		refs[p.Name] = ref
	}
	return refs
}

// Lights

func (b *Builder) LightSource(typ string, params *pbrt.ParamSet) {
	if !b.requireWorld("LightSource") {
		return
	}
	if b.inObject() {
		b.warn("LightSource", "light sources cannot be instanced; ignored")
		return
	}
	b.checkType("LightSource", scene.CategoryLight, typ)
	params = b.attachmentParams("LightSource", params)
	node := b.leaf(typ)
	node.Set(scene.Light{Plugin: scene.Plugin{Type: typ, Params: params}})
}

func (b *Builder) AreaLightSource(typ string, params *pbrt.ParamSet) {
	if !b.requireWorld("AreaLightSource") {
		return
	}
	b.checkType("AreaLightSource", scene.CategoryAreaLight, typ)
	params = b.attachmentParams("AreaLightSource", params)
	b.gs().areaLight = &scene.AreaLight{Plugin: scene.Plugin{Type: typ, Params: params}}
}

func (b *Builder) ReverseOrientation() {
	if !b.requireWorld("ReverseOrientation") {
		return
	}
	gs := b.gs()
	gs.reverseOrientation = !gs.reverseOrientation
}

// Shapes

func (b *Builder) Shape(typ string, params *pbrt.ParamSet) {
	if !b.requireWorld("Shape") {
		return
	}
	b.checkType("Shape", scene.CategoryShape, typ)
	params, missing := b.fileParams(params)
	if len(missing) > 0 {
		b.warn("Shape", "%s shape references missing file %q; ignored", typ, missing[0])
		return
	}
	shape := scene.Shape{
		Plugin:             scene.Plugin{Type: typ, Params: params},
		ReverseOrientation: b.gs().reverseOrientation,
		Textures:           b.bindTextures("Shape", params),
	}
	if builder, ok := b.meshes[typ]; ok {
		path := params.String("filename", "")
		shape.Mesh = b.resources.AddMesh(scene.NewMesh(meshID(typ, path, params), typ, path, params, builder))
	}

	gs := b.gs()
	node := b.leaf(typ)
	node.Set(shape)
	if gs.material != nil {
		node.Set(scene.MaterialRef{Material: gs.material})
	}
	if gs.areaLight != nil {
		if b.inObject() {
			b.warnOnce("AreaLightSource", "area lights cannot be instanced; emission dropped")
		} else {
			node.SetName("arealight:" + typ)
			node.Set(*gs.areaLight)
		}
	}
}

// meshID identifies file-backed meshes by file and inline meshes by content
func meshID(typ, path string, params *pbrt.ParamSet) string {
	if path != "" {
		return scene.HashID(path)
	}
	parts := []string{typ}
	for _, p := range params.Params {
		parts = append(parts, pbrt.FormatParam(p))
	}
	return scene.HashID(parts...)
}

// Object instancing

func (b *Builder) inObject() bool {
	return slices.ContainsFunc(b.scopes, func(s scope) bool { return s.kind == scopeObject })
}

func (b *Builder) ObjectBegin(name string) {
	if !b.requireWorld("ObjectBegin") {
		return
	}
	if b.inObject() {
		b.warn("ObjectBegin", "object %q begun inside another object definition; ignored", name)
		return
	}
	if _, ok := b.objects[name]; ok {
		b.warn("ObjectBegin", "object %q redefined", name)
	}
	node := b.pushScope(scopeObject, name)
	node.Remove(scene.KindTransform)
	b.graphics = append(b.graphics, b.gs().clone())
}

func (b *Builder) ObjectEnd() {
	if !b.requireWorld("ObjectEnd") {
		return
	}
	top, ok := b.popScope(scopeObject, "ObjectEnd")
	if !ok {
		return
	}
	b.graphics = b.graphics[:len(b.graphics)-1]
	b.objects[top.name] = objectDef{node: top.node, world: top.world.M}
}

// ObjectInstance places a copy of a defined object. The instance node's
// world matrix is the current transform applied on top of the transform
// the object was defined under.
func (b *Builder) ObjectInstance(name string) {
	if !b.requireWorld("ObjectInstance") {
		return
	}
	if b.inObject() {
		b.warn("ObjectInstance", "object instancing inside an object definition; ignored")
		return
	}
	def, ok := b.objects[name]
	if !ok {
		msg := fmt.Sprintf("unknown object %q", name)
		if s := pbrt.Suggest(name, slices.Collect(maps.Keys(b.objects))); s != "" {
			msg += fmt.Sprintf(" (did you mean %q?)", s)
		}
		b.warn("ObjectInstance", "%s", msg)
		return
	}

	parent := b.top()
	inst := def.node.Clone()
	inst.SetName("instance:" + name)
	if local := parent.world.Inv.Mul(b.ctm().M).Mul(def.world); !local.IsIdentity(1e-12) {
		inst.Set(scene.Transform{Matrix: local})
	}
	parent.node.AddChild(inst)
}
