package logging

import (
	"context"
	"errors"
	"log/slog"
)

// HandlerMux fans a record out to every handler that accepts its level.
type HandlerMux struct {
	Handlers []slog.Handler
}

func NewHandlerMux(handlers ...slog.Handler) *HandlerMux {
	return &HandlerMux{handlers}
}

// implements slog.Handler
var _ slog.Handler = &HandlerMux{}

func (h *HandlerMux) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.Handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *HandlerMux) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, handler := range h.Handlers {
		if !handler.Enabled(ctx, r.Level) {
			continue
		}
		if err := handler.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *HandlerMux) WithAttrs(attrs []slog.Attr) slog.Handler {
	copy := HandlerMux{make([]slog.Handler, len(h.Handlers))}
	for i, handler := range h.Handlers {
		copy.Handlers[i] = handler.WithAttrs(attrs)
	}
	return &copy
}

func (h *HandlerMux) WithGroup(name string) slog.Handler {
	copy := HandlerMux{make([]slog.Handler, len(h.Handlers))}
	for i, handler := range h.Handlers {
		copy.Handlers[i] = handler.WithGroup(name)
	}
	return &copy
}
