// Package server exposes loaded scenes over HTTP: a scene list, JSON
// inspection of the node tree, pbrt export and live rebuild events.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/df07/go-pbrt-scenegraph/pkg/builder"
	"github.com/df07/go-pbrt-scenegraph/pkg/scene"
)

// Options configures a Server
type Options struct {
	Addr        string
	SearchPaths []string
	Registry    *scene.Registry
	Logger      *slog.Logger
}

// Server serves the scenes found in a set of search paths
type Server struct {
	opts    Options
	library *Library
	log     *slog.Logger
}

// NewServer creates a server. Scenes are built on first request.
func NewServer(opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = scene.DefaultRegistry()
	}
	library, err := NewLibrary(opts.SearchPaths, builder.Options{
		Registry:    opts.Registry,
		Logger:      opts.Logger,
		CheckImages: true,
	})
	if err != nil {
		return nil, err
	}
	return &Server{opts: opts, library: library, log: opts.Logger}, nil
}

// Handler returns the API routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/scenes", s.handleScenes)
	mux.HandleFunc("GET /api/inspect", s.handleInspect)
	mux.HandleFunc("POST /api/node", s.handleNode)
	mux.HandleFunc("GET /api/export", s.handleExport)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	defer s.library.Close()

	srv := &http.Server{Addr: s.opts.Addr, Handler: s.Handler()}
	go s.library.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server starting", "addr", s.opts.Addr, "searchPaths", s.opts.SearchPaths)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// Close releases loaded scenes and stops file watching
func (s *Server) Close() error {
	return s.library.Close()
}

// handleHealth provides a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleScenes lists discovered scenes by group
func (s *Server) handleScenes(w http.ResponseWriter, r *http.Request) {
	scenes, err := s.library.Scenes()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"groups": scene.GroupScenes(scenes),
	})
}

// sceneParam returns the loaded scene named by the "scene" query
// parameter, writing an error response when there is none
func (s *Server) sceneParam(w http.ResponseWriter, r *http.Request) (*loaded, bool) {
	id := r.URL.Query().Get("scene")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing scene parameter"))
		return nil, false
	}
	l, err := s.library.get(id)
	if errors.Is(err, ErrUnknownScene) {
		writeError(w, http.StatusNotFound, err)
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return nil, false
	}
	return l, true
}

// handleNode enables or disables a node: ?scene=&node=&enabled=
func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	l, ok := s.sceneParam(w, r)
	if !ok {
		return
	}
	if l.err != nil {
		writeError(w, http.StatusUnprocessableEntity, l.err)
		return
	}
	enabled, err := parseBoolParam(r.URL.Query(), "enabled", true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id := r.URL.Query().Get("node")
	node := l.result.Scene.Root.Find(func(n *scene.Node) bool { return n.ID() == id })
	if node == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown node: %s", id))
		return
	}
	node.SetEnabled(enabled)
	s.log.Info("node toggled", "scene", l.info.ID, "node", node.Name(), "enabled", enabled)
	writeJSON(w, http.StatusOK, inspectNode(node, 0, 1))
}

// parseIntParam parses an integer parameter from URL query with validation
func parseIntParam(values url.Values, key string, defaultValue, min, max int) (int, error) {
	if value := values.Get(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %s", key, value)
		}
		if parsed < min || parsed > max {
			return 0, fmt.Errorf("%s must be between %d and %d, got: %d", key, min, max, parsed)
		}
		return parsed, nil
	}
	return defaultValue, nil
}

// parseBoolParam parses a boolean parameter from URL query
func parseBoolParam(values url.Values, key string, defaultValue bool) (bool, error) {
	if value := values.Get(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return false, fmt.Errorf("invalid %s: %s", key, value)
		}
		return parsed, nil
	}
	return defaultValue, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
