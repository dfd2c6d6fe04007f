// Package config loads the optional TOML settings file shared by the
// command line tool and the inspection server.
package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	"github.com/df07/go-pbrt-scenegraph/pkg/scene"
)

// DefaultFile is looked up in the home directory when no file is given
const DefaultFile = "~/.pbrt-scenegraph.toml"

// Config holds user settings. Zero values mean "use the default".
type Config struct {
	// CopyResources makes convert copy referenced files next to the output
	CopyResources bool `toml:"copy_resources"`
	// SearchPaths are scanned for scenes by name and by the server
	SearchPaths []string `toml:"search_paths"`
	LogLevel    string   `toml:"log_level"`
	// Listen is the server address
	Listen string `toml:"listen"`
	// Workers bounds concurrent file copies
	Workers int `toml:"workers"`
	// Schema is an optional YAML file replacing the built-in type registry
	Schema string `toml:"schema"`
}

// Default returns the settings used when no file exists
func Default() Config {
	return Config{
		SearchPaths: []string{"scenes"},
		LogLevel:    "info",
		Listen:      ":8080",
	}
}

// Load reads path over the defaults. An empty path reads DefaultFile if it
// exists. Unknown keys are an error. Paths in the file may start with ~.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "failed to expand %s", path)
	}

	data, err := os.ReadFile(expanded)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		return cfg, nil
	}
	if err != nil {
		return cfg, errors.Wrap(err, "failed to read config")
	}

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return cfg, errors.Errorf("%s: %s", expanded, strings.TrimSpace(strict.String()))
		}
		return cfg, errors.Wrapf(err, "failed to parse %s", expanded)
	}
	if err := cfg.expand(); err != nil {
		return cfg, err
	}
	if _, err := cfg.Level(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) expand() error {
	for i, p := range c.SearchPaths {
		expanded, err := homedir.Expand(p)
		if err != nil {
			return errors.Wrapf(err, "search path %q", p)
		}
		c.SearchPaths[i] = expanded
	}
	if c.Schema != "" {
		expanded, err := homedir.Expand(c.Schema)
		if err != nil {
			return errors.Wrapf(err, "schema %q", c.Schema)
		}
		c.Schema = expanded
	}
	return nil
}

// Level parses LogLevel ("debug", "info", "warn", "error")
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, errors.Wrapf(err, "invalid log_level %q", c.LogLevel)
	}
	return level, nil
}

// Registry returns the type registry named by Schema, or the built-in one
func (c Config) Registry() (*scene.Registry, error) {
	if c.Schema == "" {
		return scene.DefaultRegistry(), nil
	}
	f, err := os.Open(c.Schema)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read schema")
	}
	defer f.Close()
	return scene.LoadRegistry(f)
}

// FindScene resolves a scene argument. Existing paths are returned as is;
// otherwise name, name.pbrt and name.pbrt.gz are tried in each search path.
func (c Config) FindScene(name string) (string, error) {
	if name == "" {
		return "", errors.New("no scene given")
	}
	expanded, err := homedir.Expand(name)
	if err == nil {
		name = expanded
	}
	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		return name, nil
	}
	if filepath.IsAbs(name) {
		return "", errors.Wrapf(os.ErrNotExist, "scene %s", name)
	}
	for _, dir := range c.SearchPaths {
		for _, candidate := range []string{name, name + ".pbrt", name + ".pbrt.gz"} {
			path := filepath.Join(dir, candidate)
			if info, err := os.Stat(path); err == nil && !info.IsDir() && scene.IsSceneFile(path) {
				return path, nil
			}
		}
	}
	return "", errors.Wrapf(os.ErrNotExist, "scene %q not found in %s", name, strings.Join(c.SearchPaths, ", "))
}
