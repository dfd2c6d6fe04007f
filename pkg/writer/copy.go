package writer

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/df07/go-pbrt-scenegraph/pkg/pbrt"
	"github.com/df07/go-pbrt-scenegraph/pkg/scene"
)

type fileCopy struct {
	src  string // absolute source path
	name string // file name in the output directory
}

// referencedFiles returns every absolute file path the written scene will
// refer to, sorted
func referencedFiles(s *scene.Scene) []string {
	seen := make(map[string]bool)
	collect := func(params *pbrt.ParamSet) {
		for _, p := range params.Clone().Params {
			if !scene.IsFileParam(p) {
				continue
			}
			for _, ref := range p.Strings {
				if filepath.IsAbs(ref) {
					seen[ref] = true
				}
			}
		}
	}

	for _, t := range s.Resources.Textures() {
		t.RLock()
		if !t.Synthetic {
			collect(t.Params)
		}
		t.RUnlock()
	}
	for _, m := range s.Resources.Materials() {
		m.RLock()
		collect(m.Params)
		m.RUnlock()
	}
	s.Root.Walk(func(n *scene.Node, _ int) bool {
		if !n.Enabled() {
			return false
		}
		if c, ok := scene.Lookup[scene.Shape](n); ok {
			collect(c.Params)
		}
		if c, ok := scene.Lookup[scene.Light](n); ok {
			collect(c.Params)
		}
		if c, ok := scene.Lookup[scene.AreaLight](n); ok {
			collect(c.Params)
		}
		return true
	})

	files := make([]string, 0, len(seen))
	for f := range seen {
		files = append(files, f)
	}
	slices.Sort(files)
	return files
}

// planCopies assigns each referenced file a unique name in the output
// directory. Distinct files sharing a base name get a hash suffix.
func planCopies(s *scene.Scene) []fileCopy {
	files := referencedFiles(s)
	plan := make([]fileCopy, 0, len(files))
	used := make(map[string]bool)
	for _, src := range files {
		name := filepath.Base(src)
		if used[name] {
			ext := filepath.Ext(name)
			name = strings.TrimSuffix(name, ext) + "-" + scene.HashID(src)[:8] + ext
		}
		used[name] = true
		plan = append(plan, fileCopy{src: src, name: name})
	}
	return plan
}

// copyFiles copies the planned files into dir. Missing sources are
// skipped with a warning; they were already reported when loading.
func copyFiles(ctx context.Context, plan []fileCopy, dir string, opts Options) error {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, c := range plan {
		dst := filepath.Join(dir, c.name)
		if sameFile(c.src, dst) {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := copyFile(c.src, dst)
			if errors.Is(err, os.ErrNotExist) && !fileExists(c.src) {
				opts.Logger.Warn("skipping missing resource", "path", c.src)
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

func sameFile(a, b string) bool {
	if filepath.Clean(a) == filepath.Clean(b) {
		return true
	}
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", src)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrapf(err, "failed to copy %s", src)
	}
	return errors.Wrapf(out.Close(), "failed to close %s", dst)
}
