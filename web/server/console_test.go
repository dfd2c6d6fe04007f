package server

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestWebLogger_BasicLogging(t *testing.T) {
	// Create a channel to receive console messages
	messageChan := make(chan ConsoleMessage, 10)
	logger := slog.New(NewWebLogger(messageChan, nil))

	logger.Info("Test log message")

	select {
	case msg := <-messageChan:
		if msg.Message != "Test log message" {
			t.Errorf("Expected message 'Test log message', got '%s'", msg.Message)
		}
		if msg.Level != "info" {
			t.Errorf("Expected level 'info', got '%s'", msg.Level)
		}
		if time.Since(msg.Timestamp) > time.Second {
			t.Errorf("Timestamp seems too old: %v", msg.Timestamp)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Timeout waiting for console message")
	}
}

func TestWebLogger_Levels(t *testing.T) {
	messageChan := make(chan ConsoleMessage, 10)
	logger := slog.New(NewWebLogger(messageChan, nil))

	logger.Debug("hidden")
	logger.Info("one")
	logger.Warn("two")
	logger.Error("three")

	expected := []string{"info", "warning", "error"}
	for i, level := range expected {
		select {
		case msg := <-messageChan:
			if msg.Level != level {
				t.Errorf("Message %d: expected level '%s', got '%s'", i, level, msg.Level)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("Timeout waiting for message %d", i+1)
		}
	}
	if len(messageChan) != 0 {
		t.Errorf("Debug records should not reach the console")
	}
}

func TestWebLogger_FormattedMessages(t *testing.T) {
	messageChan := make(chan ConsoleMessage, 10)
	logger := slog.New(NewWebLogger(messageChan, nil)).With("scene", "cornell")

	logger.WithGroup("mesh").Warn("loading", "file", "dragon.ply", "triangles", 12345)

	select {
	case msg := <-messageChan:
		expected := "loading scene=cornell mesh.file=dragon.ply mesh.triangles=12345"
		if msg.Message != expected {
			t.Errorf("Expected formatted message '%s', got '%s'", expected, msg.Message)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Timeout waiting for formatted message")
	}
}

func TestWebLogger_ForwardsToNext(t *testing.T) {
	var buf bytes.Buffer
	next := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})
	messageChan := make(chan ConsoleMessage, 10)
	logger := slog.New(NewWebLogger(messageChan, next))

	logger.Info("console only")
	logger.Warn("both")

	if strings.Contains(buf.String(), "console only") {
		t.Errorf("Info record should be filtered by the next handler: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "msg=both") {
		t.Errorf("Warn record missing from next handler: %s", buf.String())
	}
	if len(messageChan) != 2 {
		t.Errorf("Expected 2 console messages, got %d", len(messageChan))
	}
}

func TestWebLogger_ChannelFull(t *testing.T) {
	// Create a small channel that will fill up
	messageChan := make(chan ConsoleMessage, 1)
	logger := slog.New(NewWebLogger(messageChan, nil))

	logger.Info("Message 1")
	// These should not block even though channel is full
	logger.Info("Message 2")
	logger.Info("Message 3")

	msg := <-messageChan
	if msg.Message != "Message 1" {
		t.Errorf("Expected first message to be kept, got '%s'", msg.Message)
	}
}

func TestWebLogger_NilChannel(t *testing.T) {
	// Test logger with nil channel (should not panic)
	logger := slog.New(NewWebLogger(nil, nil))
	logger.Info("Test message with nil channel")
}
