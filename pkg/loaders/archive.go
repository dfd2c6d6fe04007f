package loaders

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/pkg/errors"
)

// SceneExt is the extension of a scene description file
const SceneExt = ".pbrt"

// Archive input errors
var (
	ErrNoSceneFile        = errors.New("archive contains no .pbrt file")
	ErrAmbiguousSceneFile = errors.New("archive contains more than one top-level .pbrt file")
)

// Source is a scene file ready to parse
type Source struct {
	Path string // file the text came from, for relative path resolution
	Text string

	cleanup func() error
}

// Close removes any temporary files created while opening the source
func (s *Source) Close() error {
	if s.cleanup == nil {
		return nil
	}
	return s.cleanup()
}

// OpenScene reads a scene file. Gzip-compressed scene files are
// decompressed and gzip-compressed tar archives are extracted to a
// temporary directory, which Close removes again.
func OpenScene(path string) (*Source, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open scene")
	}
	defer file.Close()

	r := bufio.NewReader(file)
	head, _ := r.Peek(262)
	if !filetype.Is(head, "gz") {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", path)
		}
		return &Source{Path: path, Text: string(data)}, nil
	}

	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decompress %s", path)
	}
	defer gz.Close()

	data, err := io.ReadAll(gz)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decompress %s", path)
	}
	if !filetype.Is(data, "tar") {
		// a compressed single scene file, e.g. scene.pbrt.gz
		return &Source{Path: strings.TrimSuffix(path, ".gz"), Text: string(data)}, nil
	}
	return extractScene(path, data)
}

func extractScene(archive string, data []byte) (*Source, error) {
	dir, err := os.MkdirTemp("", "pbrt-archive-")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create extraction directory")
	}
	cleanup := func() error { return os.RemoveAll(dir) }

	if err := untar(bytes.NewReader(data), dir); err != nil {
		cleanup()
		return nil, errors.Wrapf(err, "failed to extract %s", archive)
	}
	scenePath, err := findSceneFile(dir)
	if err != nil {
		cleanup()
		return nil, errors.Wrapf(err, "%s", archive)
	}
	text, err := os.ReadFile(scenePath)
	if err != nil {
		cleanup()
		return nil, errors.Wrapf(err, "failed to read %s", scenePath)
	}
	return &Source{Path: scenePath, Text: string(text), cleanup: cleanup}, nil
}

func untar(r io.Reader, dir string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		target := filepath.Join(dir, filepath.FromSlash(hdr.Name))
		if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) {
			return errors.Errorf("entry %q escapes the archive", hdr.Name)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				return err
			}
			_, err = io.Copy(out, tr)
			if cerr := out.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
		}
	}
}

// findSceneFile returns the shallowest .pbrt file under dir. Files
// deeper down are usually includes of the top-level one.
func findSceneFile(dir string) (string, error) {
	var found []string
	bestDepth := -1
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), SceneExt) {
			return nil
		}
		rel, _ := filepath.Rel(dir, path)
		depth := strings.Count(filepath.ToSlash(rel), "/")
		switch {
		case bestDepth < 0 || depth < bestDepth:
			bestDepth = depth
			found = []string{path}
		case depth == bestDepth:
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	switch len(found) {
	case 0:
		return "", ErrNoSceneFile
	case 1:
		return found[0], nil
	default:
		return "", errors.Wrapf(ErrAmbiguousSceneFile, "%s", strings.Join(found, ", "))
	}
}
