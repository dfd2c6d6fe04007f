package builder

import (
	"os"
	"path/filepath"
	"slices"

	"github.com/pkg/errors"

	"github.com/df07/go-pbrt-scenegraph/pkg/loaders"
	"github.com/df07/go-pbrt-scenegraph/pkg/pbrt"
	"github.com/df07/go-pbrt-scenegraph/pkg/scene"
)

// baseDir is the directory relative paths fall back to
func (b *Builder) baseDir() string {
	if b.opts.BaseDir != "" {
		return b.opts.BaseDir
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// resolveFile turns a file reference into an absolute path. Work
// directories are searched innermost first, then the base directory. When
// nothing exists the innermost candidate is returned with ok false.
func (b *Builder) resolveFile(ref string) (string, bool) {
	if filepath.IsAbs(ref) {
		return filepath.Clean(ref), fileExists(ref)
	}
	dirs := append(slices.Clone(b.workDirs), b.baseDir())
	slices.Reverse(dirs[:len(dirs)-1])

	for _, dir := range dirs {
		if candidate := filepath.Join(dir, ref); fileExists(candidate) {
			return candidate, true
		}
	}
	return filepath.Join(dirs[0], ref), false
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// fileParams resolves every file-valued parameter to an absolute path and
// registers the files that are resources in their own right. References
// that could not be found are returned as written.
func (b *Builder) fileParams(params *pbrt.ParamSet) (*pbrt.ParamSet, []string) {
	params = params.Clone()
	var missing []string
	for i, p := range params.Params {
		if !scene.IsFileParam(p) {
			continue
		}
		for j, ref := range p.Strings {
			abs, ok := b.resolveFile(ref)
			if !ok {
				missing = append(missing, ref)
				continue
			}
			params.Params[i].Strings[j] = abs
			b.registerFile(p, abs)
		}
	}
	return params, missing
}

// attachmentParams resolves file parameters of materials and lights.
// Missing files are reported but the object is kept.
func (b *Builder) attachmentParams(directive string, params *pbrt.ParamSet) *pbrt.ParamSet {
	params, missing := b.fileParams(params)
	for _, ref := range missing {
		b.warn(directive, "referenced file %q not found", ref)
	}
	return params
}

func (b *Builder) registerFile(p pbrt.Param, abs string) {
	switch {
	case p.Type == "spectrum":
		t := &scene.Texture{
			ID:        scene.HashID("spectrum", abs),
			Name:      filepath.Base(abs),
			ValueType: "spectrum",
			Type:      "spectrum",
			File:      abs,
			Params:    pbrt.NewParamSet(),
			Synthetic: true,
		}
		if _, exists := b.resources.Texture(t.ID); !exists {
			t.Order = b.nextTextureOrder()
			b.resources.AddTexture(t)
		}
	case p.Name == "bsdffile" || p.Name == "mapname":
		b.resources.AddOther(&scene.OtherResource{ID: scene.HashID(abs), Path: abs, Kind: p.Name})
	}
}

// Include interprets another scene file in place, with its directory
// searched first for relative references.
func (b *Builder) Include(path string) {
	abs, ok := b.resolveFile(path)
	if !ok {
		b.fail(errors.Wrapf(os.ErrNotExist, "include %q", path))
		return
	}
	if slices.Contains(b.includes, abs) {
		b.fail(errors.Wrapf(pbrt.ErrIncludeCycle, "%s", abs))
		return
	}
	src, err := loaders.OpenScene(abs)
	if err != nil {
		b.fail(err)
		return
	}
	b.sources = append(b.sources, src)

	depth := len(b.workDirs)
	b.workDirs = append(b.workDirs, filepath.Dir(abs))
	b.includeFloors = append(b.includeFloors, len(b.workDirs))
	err = b.interpret(abs, src.Text)
	b.includeFloors = b.includeFloors[:len(b.includeFloors)-1]
	if len(b.workDirs) > depth+1 {
		b.warn("WorkDirEnd", "%d unclosed WorkDirBegin(s) in %s", len(b.workDirs)-depth-1, filepath.Base(abs))
	}
	b.workDirs = b.workDirs[:depth]
	if err != nil {
		b.fail(err)
	}
}

func (b *Builder) WorkDirBegin(path string) {
	dir := path
	if !filepath.IsAbs(dir) {
		parent := b.baseDir()
		if n := len(b.workDirs); n > 0 {
			parent = b.workDirs[n-1]
		}
		dir = filepath.Join(parent, dir)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		b.warn("WorkDirBegin", "%q is not a directory", path)
	}
	b.workDirs = append(b.workDirs, dir)
}

// WorkDirEnd pops a directory pushed by WorkDirBegin. An included file
// cannot pop the entries of the file that included it.
func (b *Builder) WorkDirEnd() {
	floor := 0
	if n := len(b.includeFloors); n > 0 {
		floor = b.includeFloors[n-1]
	}
	if len(b.workDirs) <= floor {
		b.warn("WorkDirEnd", "no open WorkDirBegin; ignored")
		return
	}
	b.workDirs = b.workDirs[:len(b.workDirs)-1]
}
