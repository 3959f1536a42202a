package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func newTestHandler(t *testing.T, baseLevel, bufLevel slog.Level) (*slog.Logger, *EventBuffer, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	base := slog.NewTextHandler(&out, &slog.HandlerOptions{Level: baseLevel})
	eb := NewEventBuffer(16)
	return slog.New(NewBufferHandler(base, eb, bufLevel)), eb, &out
}

func TestBufferHandlerTee(t *testing.T) {
	log, eb, out := newTestHandler(t, slog.LevelInfo, slog.LevelWarn)

	log.Warn("term dropped", "term", "allow-web", "from_zone", "trust", "to_zone", "untrust")

	if !strings.Contains(out.String(), "term dropped") {
		t.Error("base handler did not receive the record")
	}

	events := eb.Latest(1)
	if len(events) != 1 {
		t.Fatalf("buffered %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Level != "WARN" {
		t.Errorf("Level = %q, want WARN", ev.Level)
	}
	if ev.Message != "term dropped" {
		t.Errorf("Message = %q, want %q", ev.Message, "term dropped")
	}
	if ev.Term != "allow-web" {
		t.Errorf("Term = %q, want %q", ev.Term, "allow-web")
	}
	if ev.Zones != "trust->untrust" {
		t.Errorf("Zones = %q, want %q", ev.Zones, "trust->untrust")
	}
}

func TestBufferHandlerLevelGate(t *testing.T) {
	log, eb, out := newTestHandler(t, slog.LevelInfo, slog.LevelWarn)

	log.Info("routine message")

	if !strings.Contains(out.String(), "routine message") {
		t.Error("info record should reach the base handler")
	}
	if eb.Len() != 0 {
		t.Errorf("info record buffered, Len() = %d", eb.Len())
	}
}

func TestBufferHandlerBypassesQuietBase(t *testing.T) {
	log, eb, out := newTestHandler(t, slog.LevelError, slog.LevelWarn)

	log.Warn("term expired", "term", "old-term")

	if strings.Contains(out.String(), "term expired") {
		t.Error("base handler at Error level should not print a Warn record")
	}
	if eb.Len() != 1 {
		t.Fatalf("warn record not buffered, Len() = %d", eb.Len())
	}
}

func TestBufferHandlerExtraAttrs(t *testing.T) {
	log, eb, _ := newTestHandler(t, slog.LevelInfo, slog.LevelInfo)

	log.Warn("unsupported option", "term", "t1", "option", "first-fragment")

	ev := eb.Latest(1)[0]
	if ev.Term != "t1" {
		t.Errorf("Term = %q, want %q", ev.Term, "t1")
	}
	if !strings.Contains(ev.Message, "option=first-fragment") {
		t.Errorf("extra attr missing from message: %q", ev.Message)
	}
}

func TestBufferHandlerWithAttrs(t *testing.T) {
	log, eb, _ := newTestHandler(t, slog.LevelInfo, slog.LevelInfo)

	child := log.With("term", "pinned")
	child.Warn("dropped")

	ev := eb.Latest(1)[0]
	if ev.Term != "pinned" {
		t.Errorf("Term from With() attrs = %q, want %q", ev.Term, "pinned")
	}
}

func TestBufferHandlerEnabled(t *testing.T) {
	var out bytes.Buffer
	base := slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelError})
	eb := NewEventBuffer(4)
	h := NewBufferHandler(base, eb, slog.LevelWarn)

	ctx := context.Background()
	if !h.Enabled(ctx, slog.LevelWarn) {
		t.Error("Warn should be enabled for the buffer even with a quiet base")
	}
	if h.Enabled(ctx, slog.LevelInfo) {
		t.Error("Info should be disabled when both base and buffer are above it")
	}
}
