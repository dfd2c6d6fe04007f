package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// SSEEvent represents a unified SSE event for thread-safe writing
type SSEEvent struct {
	Type string `json:"type"` // "console", "scene", "error"
	Data string `json:"data"` // JSON-encoded data
}

// handleEvents streams build results of a scene via SSE: the current state
// first, then one event per rebuild. Console messages logged during each
// build precede its scene event.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	l, ok := s.sceneParam(w, r)
	if !ok {
		return
	}
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	updates, cancel := s.library.Subscribe(l.info.ID)
	defer cancel()

	s.setSSEHeaders(w)
	ctx := r.Context()

	// Create unified SSE event channel for thread-safe writing
	sseEventChan := make(chan SSEEvent, 100)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writeSSEEvents(w, ctx, sseEventChan)
	}()

	s.sendSceneEvent(ctx, sseEventChan, l.event())
	for {
		select {
		case ev := <-updates:
			s.sendSceneEvent(ctx, sseEventChan, ev)
		case <-ctx.Done():
			close(sseEventChan)
			<-done
			return
		}
	}
}

// setSSEHeaders sets the required headers for Server-Sent Events
func (s *Server) setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
}

// sendSceneEvent queues the console messages of a build followed by the
// build result
func (s *Server) sendSceneEvent(ctx context.Context, sseEventChan chan SSEEvent, ev SceneEvent) {
	for _, msg := range ev.Console {
		data, err := json.Marshal(msg)
		if err != nil {
			s.log.Warn("failed to marshal console message", "err", err)
			continue
		}
		s.queue(ctx, sseEventChan, SSEEvent{Type: "console", Data: string(data)})
	}

	data, err := json.Marshal(ev)
	if err != nil {
		s.log.Warn("failed to marshal scene event", "err", err)
		return
	}
	typ := "scene"
	if ev.Error != "" {
		typ = "error"
	}
	s.queue(ctx, sseEventChan, SSEEvent{Type: typ, Data: string(data)})
}

func (s *Server) queue(ctx context.Context, sseEventChan chan SSEEvent, ev SSEEvent) {
	select {
	case sseEventChan <- ev:
	case <-ctx.Done():
		// Client disconnected, don't block
	}
}

// writeSSEEvents handles writing all SSE events in a single goroutine (thread-safe)
func (s *Server) writeSSEEvents(w http.ResponseWriter, ctx context.Context, sseEventChan chan SSEEvent) {
	for {
		select {
		case event, ok := <-sseEventChan:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, event.Data); err != nil {
				// Client disconnected during write
				return
			}
			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}

		case <-ctx.Done():
			return
		}
	}
}
