package scene

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// SceneInfo describes a scene file found on disk
type SceneInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
	Group       string `json:"group"`
	FilePath    string `json:"filePath"`
	Variant     string `json:"variant"`
}

// SceneGroup is a named set of scenes
type SceneGroup struct {
	Name   string      `json:"name"`
	Scenes []SceneInfo `json:"scenes"`
}

const defaultGroup = "PBRT Scenes"

// sceneExtensions are the inputs the builder can load
var sceneExtensions = []string{".pbrt", ".pbrt.gz", ".tar.gz", ".tgz"}

// IsSceneFile reports whether path has a loadable scene extension
func IsSceneFile(path string) bool {
	lower := strings.ToLower(path)
	return lo.SomeBy(sceneExtensions, func(ext string) bool { return strings.HasSuffix(lower, ext) })
}

// Discover scans dirs (not recursively) for scene files
func Discover(dirs []string) ([]SceneInfo, error) {
	var scenes []SceneInfo
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to scan %s", dir)
		}
		for _, e := range entries {
			if e.IsDir() || !IsSceneFile(e.Name()) {
				continue
			}
			path := filepath.Join(dir, e.Name())
			info, err := ParseMetadata(path)
			if err != nil {
				slog.Warn("failed to read scene metadata", "path", path, "err", err)
				continue
			}
			scenes = append(scenes, info)
		}
	}
	scenes = lo.UniqBy(scenes, func(s SceneInfo) string { return s.FilePath })
	sort.Slice(scenes, func(i, j int) bool {
		return scenes[i].DisplayName < scenes[j].DisplayName
	})
	return scenes, nil
}

// GroupScenes groups scenes by their Group field, groups sorted by name
func GroupScenes(scenes []SceneInfo) []SceneGroup {
	byGroup := lo.GroupBy(scenes, func(s SceneInfo) string { return s.Group })
	names := lo.Keys(byGroup)
	sort.Strings(names)
	return lo.Map(names, func(name string, _ int) SceneGroup {
		return SceneGroup{Name: name, Scenes: byGroup[name]}
	})
}

// ParseMetadata reads "# Key: value" header comments. Files without a
// header get names derived from the file name.
func ParseMetadata(path string) (SceneInfo, error) {
	base := trimSceneExt(filepath.Base(path))
	info := SceneInfo{
		ID:          "pbrt:" + base,
		Name:        titleCase(base),
		DisplayName: titleCase(base),
		Group:       defaultGroup,
		FilePath:    path,
	}

	// compressed inputs carry no readable header
	if !strings.HasSuffix(strings.ToLower(path), ".pbrt") {
		return info, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return info, nil
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "#") {
			break
		}
		key, value, ok := strings.Cut(strings.TrimSpace(strings.TrimPrefix(line, "#")), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "Scene":
			info.Name = value
		case "Variant":
			info.Variant = value
		case "Description":
			info.Description = value
		case "Group":
			info.Group = value
		}
	}

	if info.Variant != "" {
		info.DisplayName = fmt.Sprintf("%s - %s", info.Name, info.Variant)
	} else {
		info.DisplayName = info.Name
	}
	return info, scanner.Err()
}

func trimSceneExt(name string) string {
	lower := strings.ToLower(name)
	for _, ext := range sceneExtensions {
		if strings.HasSuffix(lower, ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// titleCase turns "cornell-empty" into "Cornell Empty"
func titleCase(s string) string {
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	return cases.Title(language.English).String(strings.Join(strings.Fields(s), " "))
}
