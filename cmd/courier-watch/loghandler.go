// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
)

// logMsg delivers a client log record to the model for display in the
// footer.
type logMsg struct {
	summary string
	level   slog.Level
}

// teaLogHandler is a slog.Handler that routes records into the
// bubbletea program. The client logs from its own goroutines; writing
// those records to stderr would corrupt the alt-screen display, so
// they surface in the footer instead. Records below the configured
// level, or arriving before SetProgram, are dropped.
type teaLogHandler struct {
	level   slog.Level
	program *atomic.Pointer[tea.Program]
	attrs   []slog.Attr
}

func newTeaLogHandler(level slog.Level) *teaLogHandler {
	return &teaLogHandler{
		level:   level,
		program: &atomic.Pointer[tea.Program]{},
	}
}

// SetProgram sets the program that receives log messages. Safe to
// call from any goroutine; handlers derived via WithAttrs share the
// same pointer, so one call covers them all.
func (h *teaLogHandler) SetProgram(program *tea.Program) {
	h.program.Store(program)
}

func (h *teaLogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle formats the record as "message (key=value, ...)" and sends
// it to the program.
func (h *teaLogHandler) Handle(_ context.Context, record slog.Record) error {
	program := h.program.Load()
	if program == nil {
		return nil
	}

	var parts []string
	for _, attr := range h.attrs {
		parts = append(parts, fmt.Sprintf("%s=%s", attr.Key, attr.Value))
	}
	record.Attrs(func(attr slog.Attr) bool {
		parts = append(parts, fmt.Sprintf("%s=%s", attr.Key, attr.Value))
		return true
	})

	summary := record.Message
	if len(parts) > 0 {
		summary += " (" + strings.Join(parts, ", ") + ")"
	}

	program.Send(logMsg{summary: summary, level: record.Level})
	return nil
}

func (h *teaLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := &teaLogHandler{
		level:   h.level,
		program: h.program,
		attrs:   make([]slog.Attr, 0, len(h.attrs)+len(attrs)),
	}
	derived.attrs = append(append(derived.attrs, h.attrs...), attrs...)
	return derived
}

// WithGroup returns the handler unchanged. Footer summaries are flat;
// group prefixes would only add noise to a one-line display.
func (h *teaLogHandler) WithGroup(string) slog.Handler {
	return h
}

// fanoutHandler sends each record to every wrapped handler. Used to
// pair the footer display with a --log-output file.
type fanoutHandler []slog.Handler

func (handlers fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (handlers fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range handlers {
		if handler.Enabled(ctx, record.Level) {
			if err := handler.Handle(ctx, record); err != nil {
				return err
			}
		}
	}
	return nil
}

func (handlers fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := make(fanoutHandler, len(handlers))
	for i, handler := range handlers {
		derived[i] = handler.WithAttrs(attrs)
	}
	return derived
}

func (handlers fanoutHandler) WithGroup(name string) slog.Handler {
	derived := make(fanoutHandler, len(handlers))
	for i, handler := range handlers {
		derived[i] = handler.WithGroup(name)
	}
	return derived
}

// openFileLogHandler opens (appending) a JSON log file for the
// --log-output flag. Every record goes to the file regardless of the
// footer's display level, which makes the file useful for post-mortem
// debugging of reconnect behavior.
func openFileLogHandler(path string) (slog.Handler, func() error, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug})
	return handler, file.Close, nil
}
