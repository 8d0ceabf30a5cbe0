package logging

import (
	"context"
	"errors"
	"log/slog"
)

// Tee fans each log record out to every handler whose level admits it.
// Used to pair the stdout JSON stream with the Postgres error sink.
type Tee struct {
	handlers []slog.Handler
}

func NewTee(handlers ...slog.Handler) *Tee {
	return &Tee{handlers: handlers}
}

func (t *Tee) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t *Tee) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range t.handlers {
		if h.Enabled(ctx, record.Level) {
			if err := h.Handle(ctx, record.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (t *Tee) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &Tee{handlers: handlers}
}

func (t *Tee) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &Tee{handlers: handlers}
}
