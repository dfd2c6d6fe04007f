package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/df07/go-pbrt-scenegraph/pkg/builder"
)

const quadScene = `Translate 0 0 -140
WorldBegin
AttributeBegin
Material "matte" "color Kd" [.5 .5 .8]
Shape "trianglemesh" "point P" [-1 -1 0  1 -1 0  1 1 0  -1 1 0] "integer indices" [0 1 2 2 3 0]
AttributeEnd
WorldEnd
`

// run executes the CLI with a config file pointing at dir
func run(t *testing.T, dir string, args ...string) (string, string, error) {
	t.Helper()
	cfg := filepath.Join(dir, "config.toml")
	if _, err := os.Stat(cfg); err != nil {
		body := "search_paths = [" + `"` + filepath.ToSlash(dir) + `"` + "]\nlog_level = \"error\"\n"
		require.NoError(t, os.WriteFile(cfg, []byte(body), 0o644))
	}
	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetArgs(append([]string{"--config", cfg}, args...))
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestConvert(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "quad.pbrt"), quadScene)
	out := filepath.Join(dir, "out", "quad.pbrt")

	// scenes are found by name in the search paths
	_, stderr, err := run(t, dir, "convert", "quad", out)
	require.NoError(t, err, stderr)

	res, err := builder.LoadFile(out, builder.Options{})
	require.NoError(t, err)
	defer res.Close()
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 1, res.Scene.Stats().Shapes)
}

func TestConvertCopiesResources(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "scene", "textures", "grid.png"), "not really a png")
	writeFile(t, filepath.Join(dir, "scene", "main.pbrt"), `WorldBegin
Texture "grid" "spectrum" "imagemap" "string filename" "textures/grid.png"
Material "matte" "texture Kd" "grid"
Shape "sphere"
WorldEnd
`)
	out := filepath.Join(dir, "export", "main.pbrt")

	_, stderr, err := run(t, dir, "convert", "--copy-resources", "--workers", "2",
		filepath.Join(dir, "scene", "main.pbrt"), out)
	require.NoError(t, err, stderr)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"string filename" [ "grid.png" ]`)
	assert.FileExists(t, filepath.Join(dir, "export", "grid.png"))
}

func TestConvertStrict(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "warn.pbrt"), "WorldBegin\nNamedMaterial \"missing\"\nWorldEnd\n")
	out := filepath.Join(dir, "out.pbrt")

	_, stderr, err := run(t, dir, "convert", "--strict", "warn", out)
	assert.ErrorIs(t, err, ErrWarnings)
	assert.Contains(t, stderr, "warning:")
	assert.Contains(t, stderr, `unknown named material "missing"`)
	assert.NoFileExists(t, out)

	_, _, err = run(t, dir, "convert", "warn", out)
	require.NoError(t, err)
	assert.FileExists(t, out)
}

func TestPrint(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "geom", "sphere.pbrt"), "Shape \"sphere\" \"float radius\" [2]\n")
	writeFile(t, filepath.Join(dir, "main.pbrt"), "WorldBegin\n# comment\nInclude \"geom/sphere.pbrt\"\nWorldEnd\n")

	stdout, stderr, err := run(t, dir, "print", "main")
	require.NoError(t, err, stderr)
	assert.Contains(t, stdout, `Include "geom/sphere.pbrt"`)
	assert.NotContains(t, stdout, "comment")

	stdout, stderr, err = run(t, dir, "print", "--expand", "main")
	require.NoError(t, err, stderr)
	assert.NotContains(t, stdout, "Include")
	assert.Contains(t, stdout, "WorkDirBegin")
	assert.Contains(t, stdout, `Shape "sphere" "float radius" [ 2 ]`)
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "quad.pbrt"), quadScene)
	writeFile(t, filepath.Join(dir, "warn.pbrt"), "WorldBegin\nShape \"spere\"\nWorldEnd\n")

	stdout, stderr, err := run(t, dir, "check", "--tree", "quad")
	require.NoError(t, err, stderr)
	assert.Contains(t, stdout, "quad: ")
	assert.Contains(t, stdout, "1 shapes")
	assert.Contains(t, stdout, "triangles: 2 in 1 meshes, 0 failed")
	assert.Contains(t, stdout, "up axis: 0 1 0")
	assert.Contains(t, stdout, "  camera [")
	assert.Empty(t, stderr)

	_, stderr, err = run(t, dir, "check", "--strict", "quad", "warn")
	assert.ErrorIs(t, err, ErrWarnings)
	assert.Contains(t, stderr, "sphere")
}

func TestCheckLoadsMeshes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "broken.ply"), "not a ply file\n")
	writeFile(t, filepath.Join(dir, "mixed.pbrt"), quadScene[:strings.Index(quadScene, "WorldEnd")]+
		"Shape \"plymesh\" \"string filename\" \"broken.ply\"\nWorldEnd\n")

	// a mesh that fails to load is a warning, not an error
	stdout, stderr, err := run(t, dir, "check", "mixed")
	require.NoError(t, err, stderr)
	assert.Contains(t, stdout, "triangles: 2 in 2 meshes, 1 failed")
	assert.Contains(t, stderr, "warning:")
	assert.Contains(t, stderr, "broken.ply")

	_, _, err = run(t, dir, "check", "--strict", "mixed")
	assert.ErrorIs(t, err, ErrWarnings)
}

func TestErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "broken.pbrt"), "WorldBegin\nShape \"sphere\" \"float radius\" [1\n")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing scene", []string{"check", "nothing"}, "not found"},
		{"syntax error", []string{"check", "broken"}, "broken"},
		{"bad log level", []string{"--log-level", "loud", "check", "broken"}, "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, err := run(t, dir, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			if !strings.Contains(tt.name, "log level") {
				assert.Contains(t, stderr, "error:")
			}
		})
	}

	_, _, err := run(t, dir, "convert", "only-one-arg")
	assert.Error(t, err)
}
