package server

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/df07/go-pbrt-scenegraph/pkg/scene"
	"github.com/df07/go-pbrt-scenegraph/pkg/writer"
)

// handleExport writes the scene, minus disabled nodes, as pbrt text with
// absolute file references: ?scene=&download=
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	l, ok := s.sceneParam(w, r)
	if !ok {
		return
	}
	if l.err != nil {
		writeError(w, http.StatusUnprocessableEntity, l.err)
		return
	}
	download, err := parseBoolParam(r.URL.Query(), "download", false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var buf bytes.Buffer
	err = writer.Write(&buf, l.result.Scene, writer.Options{Registry: s.opts.Registry, Logger: s.log})
	if errors.Is(err, writer.ErrDecompose) {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if download {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportName(l.info)))
	}
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// exportName is the download file name for a scene
func exportName(info scene.SceneInfo) string {
	base := filepath.Base(info.FilePath)
	for _, ext := range []string{".tar.gz", ".tgz", ".pbrt.gz", ".pbrt"} {
		if strings.HasSuffix(strings.ToLower(base), ext) {
			base = base[:len(base)-len(ext)]
			break
		}
	}
	return base + "-export.pbrt"
}
