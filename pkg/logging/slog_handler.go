package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// BufferHandler is an slog.Handler that tees log records into an
// EventBuffer in addition to a wrapped base handler (typically stderr).
// Records at or above the minimum level become Events; the term and
// zone attributes the translator attaches are lifted into dedicated
// Event fields.
type BufferHandler struct {
	base   slog.Handler
	buf    *EventBuffer
	min    slog.Level
	attrs  []slog.Attr
	groups []string
}

// NewBufferHandler wraps a base slog.Handler with event buffering.
func NewBufferHandler(base slog.Handler, buf *EventBuffer, min slog.Level) *BufferHandler {
	return &BufferHandler{base: base, buf: buf, min: min}
}

// Enabled implements slog.Handler.
func (h *BufferHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level) || level >= h.min
}

// Handle implements slog.Handler.
func (h *BufferHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if h.base.Enabled(ctx, r.Level) {
		err = h.base.Handle(ctx, r)
	}
	if r.Level >= h.min {
		h.buf.Add(eventFromRecord(r, h.attrs, h.groups))
	}
	return err
}

// WithAttrs implements slog.Handler.
func (h *BufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &BufferHandler{
		base:   h.base.WithAttrs(attrs),
		buf:    h.buf,
		min:    h.min,
		attrs:  append(append([]slog.Attr{}, h.attrs...), attrs...),
		groups: h.groups,
	}
}

// WithGroup implements slog.Handler.
func (h *BufferHandler) WithGroup(name string) slog.Handler {
	return &BufferHandler{
		base:   h.base.WithGroup(name),
		buf:    h.buf,
		min:    h.min,
		attrs:  h.attrs,
		groups: append(append([]string{}, h.groups...), name),
	}
}

// eventFromRecord converts a log record to an Event. The term,
// from_zone and to_zone attributes become structured fields; any other
// attrs are appended to the message as key=value pairs.
func eventFromRecord(r slog.Record, preAttrs []slog.Attr, groups []string) Event {
	var term, fromZone, toZone string
	var b strings.Builder
	b.WriteString(r.Message)

	add := func(a slog.Attr) {
		key := a.Key
		if len(groups) > 0 {
			key = strings.Join(groups, ".") + "." + key
		}
		switch key {
		case "term":
			term = a.Value.String()
		case "from_zone":
			fromZone = a.Value.String()
		case "to_zone":
			toZone = a.Value.String()
		default:
			fmt.Fprintf(&b, " %s=%s", key, a.Value.String())
		}
	}
	for _, a := range preAttrs {
		add(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		add(a)
		return true
	})

	ev := Event{
		Time:    r.Time,
		Level:   r.Level.String(),
		Message: b.String(),
		Term:    term,
	}
	if fromZone != "" || toZone != "" {
		ev.Zones = fromZone + "->" + toZone
	}
	return ev
}
