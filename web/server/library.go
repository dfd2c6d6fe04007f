package server

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"

	"github.com/df07/go-pbrt-scenegraph/pkg/builder"
	"github.com/df07/go-pbrt-scenegraph/pkg/scene"
)

// ErrUnknownScene is returned for scene IDs no search path provides
var ErrUnknownScene = errors.New("unknown scene")

// reloadDelay coalesces the bursts of events editors produce on save
const reloadDelay = 150 * time.Millisecond

// SceneEvent is sent to subscribers whenever a scene is (re)built
type SceneEvent struct {
	ID       string            `json:"id"`
	Version  int               `json:"version"`
	Stats    *scene.Stats      `json:"stats,omitempty"`
	Meshes   *scene.MeshReport `json:"meshes,omitempty"`
	Warnings []string          `json:"warnings"`
	Error    string            `json:"error,omitempty"`
	Console  []ConsoleMessage  `json:"-"`
}

// loaded is the current build of one scene file
type loaded struct {
	info    scene.SceneInfo
	result  *builder.Result
	meshes  scene.MeshReport
	err     error
	version int
	console []ConsoleMessage
}

func (l *loaded) event() SceneEvent {
	ev := SceneEvent{ID: l.info.ID, Version: l.version, Warnings: []string{}, Console: l.console}
	if l.err != nil {
		ev.Error = l.err.Error()
		return ev
	}
	stats := l.result.Scene.Stats()
	ev.Stats = &stats
	ev.Meshes = &l.meshes
	ev.Warnings = lo.Map(l.result.Warnings, func(w builder.Warning, _ int) string { return w.String() })
	return ev
}

// Library builds scenes found in the search paths on demand and rebuilds
// them when their directory changes
type Library struct {
	searchPaths []string
	opts        builder.Options
	log         *slog.Logger
	builds      singleflight.Group

	mu      sync.Mutex
	scenes  map[string]*loaded
	subs    map[string]map[chan SceneEvent]struct{}
	pending map[string]*time.Timer
	watcher *fsnotify.Watcher
}

// NewLibrary creates a library watching searchPaths. Paths that do not
// exist are skipped.
func NewLibrary(searchPaths []string, opts builder.Options) (*Library, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create file watcher")
	}
	l := &Library{
		searchPaths: searchPaths,
		opts:        opts,
		log:         opts.Logger,
		scenes:      make(map[string]*loaded),
		subs:        make(map[string]map[chan SceneEvent]struct{}),
		pending:     make(map[string]*time.Timer),
		watcher:     watcher,
	}
	for _, dir := range searchPaths {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			l.log.Warn("search path unavailable", "path", dir)
			continue
		}
		if err := watcher.Add(dir); err != nil {
			l.log.Warn("failed to watch search path", "path", dir, "err", err)
		}
	}
	return l, nil
}

// Scenes lists the scene files in the search paths
func (l *Library) Scenes() ([]scene.SceneInfo, error) {
	return scene.Discover(l.searchPaths)
}

func (l *Library) find(id string) (scene.SceneInfo, error) {
	scenes, err := l.Scenes()
	if err != nil {
		return scene.SceneInfo{}, err
	}
	info, ok := lo.Find(scenes, func(s scene.SceneInfo) bool { return s.ID == id })
	if !ok {
		return scene.SceneInfo{}, errors.Wrapf(ErrUnknownScene, "%q", id)
	}
	return info, nil
}

// get returns the current build of a scene, building it on first use.
// Build failures are reported through the returned state, not as errors.
func (l *Library) get(id string) (*loaded, error) {
	l.mu.Lock()
	s, ok := l.scenes[id]
	l.mu.Unlock()
	if ok {
		return s, nil
	}
	v, err, _ := l.builds.Do(id, func() (any, error) {
		info, err := l.find(id)
		if err != nil {
			return nil, err
		}
		return l.build(info), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*loaded), nil
}

// build loads the scene and replaces the cached state
func (l *Library) build(info scene.SceneInfo) *loaded {
	console := make(chan ConsoleMessage, 100)
	opts := l.opts
	opts.Logger = slog.New(NewWebLogger(console, l.log.Handler())).With("scene", info.ID)

	start := time.Now()
	result, err := builder.LoadFile(info.FilePath, opts)
	s := &loaded{info: info, result: result, err: err}
	if err == nil {
		s.meshes, err = result.Scene.Resources.LoadMeshes(context.Background(), 0)
		for _, msg := range s.meshes.Errors {
			opts.Logger.Warn(msg)
		}
		if err != nil {
			result.Close()
			s.result, s.err = nil, err
		}
	}
	close(console)
	for msg := range console {
		s.console = append(s.console, msg)
	}
	if err != nil {
		l.log.Error("scene build failed", "scene", info.ID, "err", err)
	} else {
		l.log.Info("scene built", "scene", info.ID, "nodes", result.Scene.Root.Count(),
			"triangles", s.meshes.Triangles, "warnings", len(result.Warnings), "elapsed", time.Since(start))
	}

	l.mu.Lock()
	prev := l.scenes[info.ID]
	if prev != nil {
		s.version = prev.version + 1
	}
	l.scenes[info.ID] = s
	l.mu.Unlock()

	if prev != nil && prev.result != nil {
		prev.result.Close()
	}
	l.broadcast(s.event())
	return s
}

func (l *Library) broadcast(ev SceneEvent) {
	l.mu.Lock()
	subs := lo.Keys(l.subs[ev.ID])
	l.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			l.log.Warn("dropping scene event for slow subscriber", "scene", ev.ID)
		}
	}
}

// Subscribe registers for rebuild events of a scene. The returned function
// cancels the subscription.
func (l *Library) Subscribe(id string) (<-chan SceneEvent, func()) {
	ch := make(chan SceneEvent, 8)
	l.mu.Lock()
	if l.subs[id] == nil {
		l.subs[id] = make(map[chan SceneEvent]struct{})
	}
	l.subs[id][ch] = struct{}{}
	l.mu.Unlock()

	return ch, func() {
		l.mu.Lock()
		delete(l.subs[id], ch)
		if len(l.subs[id]) == 0 {
			delete(l.subs, id)
		}
		l.mu.Unlock()
	}
}

// Run rebuilds cached scenes when files in their directory change, until
// ctx is done
func (l *Library) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-l.watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
				continue
			}
			l.changed(ev.Name)
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return nil
			}
			l.log.Warn("file watcher error", "err", err)
		}
	}
}

// changed schedules a rebuild of every cached scene sharing a directory
// with path, since included files and meshes usually sit next to it
func (l *Library) changed(path string) {
	dir := filepath.Clean(filepath.Dir(path))
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, s := range l.scenes {
		if filepath.Clean(filepath.Dir(s.info.FilePath)) != dir {
			continue
		}
		if t, ok := l.pending[id]; ok {
			t.Reset(reloadDelay)
			continue
		}
		l.pending[id] = time.AfterFunc(reloadDelay, func() { l.reload(id) })
	}
}

func (l *Library) reload(id string) {
	l.mu.Lock()
	delete(l.pending, id)
	l.mu.Unlock()

	info, err := l.find(id)
	if err != nil {
		// the file was removed or renamed away
		l.mu.Lock()
		s := l.scenes[id]
		delete(l.scenes, id)
		l.mu.Unlock()
		if s != nil && s.result != nil {
			s.result.Close()
		}
		l.log.Info("scene removed", "scene", id)
		l.broadcast(SceneEvent{ID: id, Warnings: []string{}, Error: ErrUnknownScene.Error()})
		return
	}
	l.build(info)
}

// Close stops watching and releases every loaded scene
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range l.pending {
		t.Stop()
	}
	for _, s := range l.scenes {
		if s.result != nil {
			s.result.Close()
		}
	}
	l.scenes = make(map[string]*loaded)
	return l.watcher.Close()
}
