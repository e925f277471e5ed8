package logger

import (
	"context"
	"log/slog"
)

type deferredHandler struct {
	attrs  []slog.Attr
	groups []string
}

func (h *deferredHandler) target() slog.Handler {
	next := slog.Default().Handler()
	if len(h.attrs) > 0 {
		next = next.WithAttrs(h.attrs)
	}
	for _, g := range h.groups {
		next = next.WithGroup(g)
	}
	return next
}

func (h *deferredHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return slog.Default().Handler().Enabled(ctx, level)
}

func (h *deferredHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.target().Handle(ctx, r)
}

func (h *deferredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(h.groups) > 0 {
		return h.target().WithAttrs(attrs)
	}
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &deferredHandler{attrs: merged}
}

func (h *deferredHandler) WithGroup(name string) slog.Handler {
	groups := append(append([]string(nil), h.groups...), name)
	return &deferredHandler{attrs: h.attrs, groups: groups}
}
