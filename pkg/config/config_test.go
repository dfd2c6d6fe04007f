package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
copy_resources = true
search_paths = ["/data/scenes", "more"]
log_level = "debug"
listen = "127.0.0.1:9000"
workers = 3
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.CopyResources)
	assert.Equal(t, []string{"/data/scenes", "more"}, cfg.SearchPaths)
	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, 3, cfg.Workers)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoadKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `workers = 2`))
	require.NoError(t, err)
	assert.Equal(t, Default().Listen, cfg.Listen)
	assert.Equal(t, Default().SearchPaths, cfg.SearchPaths)
	assert.False(t, cfg.CopyResources)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", `colour = "red"`, "colour"},
		{"bad level", `log_level = "loud"`, "log_level"},
		{"bad syntax", `listen = `, "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestHomeExpansion(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	cfg, err := Load(writeConfig(t, `search_paths = ["~/scenes"]`))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(home, "scenes")}, cfg.SearchPaths)
}

func TestRegistry(t *testing.T) {
	reg, err := Default().Registry()
	require.NoError(t, err)
	assert.True(t, reg.Known("shape", "sphere"))

	schema := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(schema, []byte(`
defaults:
  camera: pinhole
categories:
  camera:
    pinhole:
      - {type: float, name: fov, default: [60]}
`), 0o644))
	reg, err = Config{Schema: schema}.Registry()
	require.NoError(t, err)
	assert.True(t, reg.Known("camera", "pinhole"))
	assert.False(t, reg.Known("shape", "sphere"))
}

func TestFindScene(t *testing.T) {
	dir := t.TempDir()
	scene := filepath.Join(dir, "cornell.pbrt")
	require.NoError(t, os.WriteFile(scene, []byte("WorldBegin\nWorldEnd\n"), 0o644))
	cfg := Config{SearchPaths: []string{filepath.Join(dir, "nothing"), dir}}

	path, err := cfg.FindScene("cornell")
	require.NoError(t, err)
	assert.Equal(t, scene, path)

	path, err = cfg.FindScene(scene)
	require.NoError(t, err)
	assert.Equal(t, scene, path)

	_, err = cfg.FindScene("missing")
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = cfg.FindScene("")
	assert.Error(t, err)
}
