package logging

import (
	"context"
	"log/slog"
)

// MultiHandler fans each record out to every target whose level admits
// it.
type MultiHandler struct {
	targets []slog.Handler
}

// NewMultiHandler combines handlers into one.
func NewMultiHandler(targets ...slog.Handler) *MultiHandler {
	return &MultiHandler{targets: targets}
}

func (m *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, t := range m.targets {
		if t.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, t := range m.targets {
		if t.Enabled(ctx, r.Level) {
			_ = t.Handle(ctx, r.Clone())
		}
	}
	return nil
}

func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(m.targets))
	for i, t := range m.targets {
		out[i] = t.WithAttrs(attrs)
	}
	return &MultiHandler{targets: out}
}

func (m *MultiHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(m.targets))
	for i, t := range m.targets {
		out[i] = t.WithGroup(name)
	}
	return &MultiHandler{targets: out}
}
