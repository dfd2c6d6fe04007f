package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/df07/go-pbrt-scenegraph/pkg/scene"
)

const quadScene = `# Scene: Quad
# Group: Test Scenes
Translate 0 0 -140
WorldBegin
AttributeBegin
Material "matte" "color Kd" [.5 .5 .8]
Shape "trianglemesh" "point P" [-1 -1 0  1 -1 0  1 1 0  -1 1 0] "integer indices" [0 1 2 2 3 0]
AttributeEnd
AttributeBegin
Translate 0 2 0
Shape "sphere" "float radius" [0.5]
AttributeEnd
WorldEnd
`

func newTestServer(t *testing.T, files map[string]string) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	s, err := NewServer(Options{
		SearchPaths: []string{dir},
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, dir
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := get(t, s, "/api/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestScenes(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{
		"quad.pbrt":  quadScene,
		"other.pbrt": "WorldBegin\nWorldEnd\n",
		"notes.txt":  "not a scene",
	})
	rec := get(t, s, "/api/scenes")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Groups []struct {
			Name   string `json:"name"`
			Scenes []struct {
				ID string `json:"id"`
			} `json:"scenes"`
		} `json:"groups"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Groups, 2)
	assert.Equal(t, "PBRT Scenes", resp.Groups[0].Name)
	assert.Equal(t, "pbrt:other", resp.Groups[0].Scenes[0].ID)
	assert.Equal(t, "Test Scenes", resp.Groups[1].Name)
	assert.Equal(t, "pbrt:quad", resp.Groups[1].Scenes[0].ID)
}

func TestInspect(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{"quad.pbrt": quadScene})
	rec := get(t, s, "/api/inspect?scene=pbrt:quad")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp InspectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Quad", resp.Scene.Name)
	assert.Equal(t, 2, resp.Stats.Shapes)
	assert.Equal(t, scene.MeshReport{Meshes: 1, Triangles: 2}, resp.Meshes)
	assert.Empty(t, resp.Warnings)
	require.NotNil(t, resp.Up)
	assert.Equal(t, [3]float64{0, 1, 0}, *resp.Up)

	require.Len(t, resp.Tree.Children, 3)
	cam := resp.Tree.Children[0]
	assert.Equal(t, "camera", cam.Name)
	require.NotNil(t, cam.Transform)
	assert.InDelta(t, -140, cam.Transform[14], 1e-9)

	mesh := resp.Tree.Children[1].Children[0]
	assert.Equal(t, "trianglemesh", mesh.Type)
	assert.Equal(t, "matte", mesh.Material)

	rec = get(t, s, "/api/inspect?scene=pbrt:quad&depth=1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Tree.Children)
	assert.True(t, resp.Tree.Truncated)
}

func TestInspectReportsBrokenMeshes(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{
		"broken.ply": "ply\nformat ascii 1.0\nelement vertex 1\n",
		"mesh.pbrt":  "WorldBegin\nShape \"plymesh\" \"string filename\" \"broken.ply\"\nWorldEnd\n",
	})
	rec := get(t, s, "/api/inspect?scene=pbrt:mesh")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp InspectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Meshes.Meshes)
	assert.Equal(t, 0, resp.Meshes.Triangles)
	require.Len(t, resp.Meshes.Errors, 1)
	assert.Contains(t, resp.Meshes.Errors[0], "broken.ply")
}

func TestInspectErrors(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{
		"quad.pbrt":   quadScene,
		"broken.pbrt": "WorldBegin\nShape \"sphere\" \"float radius\" [\n",
	})

	tests := []struct {
		target string
		code   int
	}{
		{"/api/inspect", http.StatusBadRequest},
		{"/api/inspect?scene=pbrt:missing", http.StatusNotFound},
		{"/api/inspect?scene=pbrt:broken", http.StatusUnprocessableEntity},
		{"/api/inspect?scene=pbrt:quad&depth=0", http.StatusBadRequest},
		{"/api/export?scene=pbrt:quad&download=maybe", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := get(t, s, tt.target)
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestExportSkipsDisabledNodes(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{"quad.pbrt": quadScene})

	rec := get(t, s, "/api/export?scene=pbrt:quad&download=true")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "quad-export.pbrt")
	assert.Contains(t, rec.Body.String(), `Shape "sphere"`)
	assert.Contains(t, rec.Body.String(), `Shape "trianglemesh"`)

	var tree InspectResponse
	require.NoError(t, json.Unmarshal(get(t, s, "/api/inspect?scene=pbrt:quad").Body.Bytes(), &tree))
	sphere := tree.Tree.Children[2].Children[0]
	require.Equal(t, "sphere", sphere.Name)

	req := httptest.NewRequest(http.MethodPost, "/api/node?scene=pbrt:quad&node="+sphere.ID+"&enabled=false", nil)
	toggle := httptest.NewRecorder()
	s.Handler().ServeHTTP(toggle, req)
	require.Equal(t, http.StatusOK, toggle.Code, toggle.Body.String())
	assert.Contains(t, toggle.Body.String(), `"enabled":false`)

	rec = get(t, s, "/api/export?scene=pbrt:quad")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `Shape "sphere"`)
	assert.Contains(t, rec.Body.String(), `Shape "trianglemesh"`)

	req = httptest.NewRequest(http.MethodPost, "/api/node?scene=pbrt:quad&node=nope", nil)
	toggle = httptest.NewRecorder()
	s.Handler().ServeHTTP(toggle, req)
	assert.Equal(t, http.StatusNotFound, toggle.Code)
}

// readEvent reads one SSE event
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var typ, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			typ = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && typ != "":
			return typ, data
		}
	}
}

func TestEventsReload(t *testing.T) {
	s, dir := newTestServer(t, map[string]string{"quad.pbrt": quadScene})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events?scene=pbrt:quad", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	typ, data := nextSceneEvent(t, r)
	require.Equal(t, "scene", typ)
	var ev SceneEvent
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, 0, ev.Version)
	assert.Equal(t, 2, ev.Stats.Shapes)
	require.NotNil(t, ev.Meshes)
	assert.Equal(t, 2, ev.Meshes.Triangles)

	// add a warning-producing directive and trigger a rebuild
	path := filepath.Join(dir, "quad.pbrt")
	edited := strings.Replace(quadScene, "WorldEnd", "NamedMaterial \"nothing\"\nWorldEnd", 1)
	require.NoError(t, os.WriteFile(path, []byte(edited), 0o644))
	s.library.changed(path)

	typ, data = nextSceneEvent(t, r)
	require.Equal(t, "scene", typ)
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, 1, ev.Version)
	require.Len(t, ev.Warnings, 1)
	assert.Contains(t, ev.Warnings[0], "nothing")

	// a broken file is reported as an error event
	require.NoError(t, os.WriteFile(path, []byte("WorldBegin\nShape [\n"), 0o644))
	s.library.changed(path)
	typ, data = nextSceneEvent(t, r)
	assert.Equal(t, "error", typ)
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, 2, ev.Version)
	assert.NotEmpty(t, ev.Error)
}

// nextSceneEvent skips console events
func nextSceneEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	for {
		typ, data := readEvent(t, r)
		if typ != "console" {
			return typ, data
		}
	}
}

func TestExportName(t *testing.T) {
	tests := map[string]string{
		"/a/cornell.pbrt":    "cornell-export.pbrt",
		"/a/cornell.pbrt.gz": "cornell-export.pbrt",
		"/a/bundle.tar.gz":   "bundle-export.pbrt",
		"/a/Weird.Name.PBRT": "Weird.Name-export.pbrt",
	}
	for in, want := range tests {
		assert.Equal(t, want, exportName(scene.SceneInfo{FilePath: in}), in)
	}
}
