package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ConsoleMessage represents a console message with timestamp
type ConsoleMessage struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"` // "info", "warning", "error"
}

// WebLogger is a slog.Handler that copies records to a console channel
// and passes them on to the next handler, if any
type WebLogger struct {
	consoleChan chan<- ConsoleMessage
	next        slog.Handler
	attrs       []slog.Attr
	group       string
}

// NewWebLogger creates a handler sending to consoleChan. next may be nil.
func NewWebLogger(consoleChan chan<- ConsoleMessage, next slog.Handler) *WebLogger {
	return &WebLogger{consoleChan: consoleChan, next: next}
}

// Enabled reports whether either the console or the next handler wants
// records at level
func (wl *WebLogger) Enabled(ctx context.Context, level slog.Level) bool {
	if level >= slog.LevelInfo {
		return true
	}
	return wl.next != nil && wl.next.Enabled(ctx, level)
}

// Handle implements slog.Handler
func (wl *WebLogger) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelInfo && wl.consoleChan != nil {
		// Send to web console without blocking the caller
		select {
		case wl.consoleChan <- ConsoleMessage{
			Message:   wl.format(r),
			Timestamp: r.Time,
			Level:     consoleLevel(r.Level),
		}:
		default:
			// Channel full, skip
		}
	}
	if wl.next != nil && wl.next.Enabled(ctx, r.Level) {
		return wl.next.Handle(ctx, r)
	}
	return nil
}

func (wl *WebLogger) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *wl
	for _, a := range attrs {
		if wl.group != "" {
			a.Key = wl.group + "." + a.Key
		}
		clone.attrs = append(clone.attrs[:len(clone.attrs):len(clone.attrs)], a)
	}
	if wl.next != nil {
		clone.next = wl.next.WithAttrs(attrs)
	}
	return &clone
}

func (wl *WebLogger) WithGroup(name string) slog.Handler {
	if name == "" {
		return wl
	}
	clone := *wl
	if wl.group != "" {
		name = wl.group + "." + name
	}
	clone.group = name
	if wl.next != nil {
		clone.next = wl.next.WithGroup(name)
	}
	return &clone
}

// format renders the message followed by key=value pairs
func (wl *WebLogger) format(r slog.Record) string {
	var sb strings.Builder
	sb.WriteString(r.Message)
	write := func(a slog.Attr) bool {
		if a.Equal(slog.Attr{}) {
			return true
		}
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value.Resolve())
		return true
	}
	for _, a := range wl.attrs {
		write(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		if wl.group != "" {
			a.Key = wl.group + "." + a.Key
		}
		return write(a)
	})
	return sb.String()
}

func consoleLevel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warning"
	default:
		return "info"
	}
}
