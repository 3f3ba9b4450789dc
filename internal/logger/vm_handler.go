// Package logger provides structured logging with subsystem-specific levels
// and OpenTelemetry trace context integration.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// VMLogHandler wraps an slog.Handler and additionally writes logs
// that have an "id" attribute to a per-VM console.log file (see
// internal/paths.Paths.VMConsoleLog). This provides automatic per-VM
// logging without manual instrumentation at call sites.
//
// Implementation follows the slog handler guide for shared state across
// WithAttrs/WithGroup: https://pkg.go.dev/golang.org/x/example/slog-handler-guide
type VMLogHandler struct {
	slog.Handler
	logPathFunc func(id string) string // returns path to the VM's console.log
	state       *sharedState           // shared across all handlers derived via WithAttrs/WithGroup
}

// sharedState holds state that must be shared across all handler instances
// derived from the same parent via WithAttrs/WithGroup.
// Using a pointer ensures all derived handlers share the same mutex and file cache.
type sharedState struct {
	mu        sync.Mutex
	fileCache map[string]*os.File
}

// NewVMLogHandler creates a new handler that wraps the given handler
// and writes VM-related logs to per-VM log files.
// logPathFunc should return the path to console.log for a given VM ID.
func NewVMLogHandler(wrapped slog.Handler, logPathFunc func(id string) string) *VMLogHandler {
	return &VMLogHandler{
		Handler:     wrapped,
		logPathFunc: logPathFunc,
		state: &sharedState{
			fileCache: make(map[string]*os.File),
		},
	}
}

// Handle processes a log record, passing it to the wrapped handler and
// optionally writing to a per-instance log file if "id" attribute is present.
func (h *VMLogHandler) Handle(ctx context.Context, r slog.Record) error {
	// Always pass to wrapped handler first
	if err := h.Handler.Handle(ctx, r); err != nil {
		return err
	}

	// Check for VM ID in attributes
	var vmID string
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "id" {
			vmID = a.Value.String()
			return false // stop iteration
		}
		return true
	})

	// If VM ID found, also write to per-VM log
	if vmID != "" {
		h.writeToVMLog(vmID, r)
	}

	return nil
}

// writeToVMLog writes a log record to the VM's console.log file.
func (h *VMLogHandler) writeToVMLog(vmID string, r slog.Record) {
	logPath := h.logPathFunc(vmID)
	if logPath == "" {
		return
	}

	// Format log line outside the lock: timestamp LEVEL message key=value key=value...
	timestamp := r.Time.Format(time.RFC3339)
	level := r.Level.String()
	msg := r.Message

	// Collect attributes (excluding "id" since it's implicit)
	var attrs []string
	r.Attrs(func(a slog.Attr) bool {
		if a.Key != "id" {
			attrs = append(attrs, fmt.Sprintf("%s=%v", a.Key, a.Value))
		}
		return true
	})

	// Build log line
	line := fmt.Sprintf("%s %s %s", timestamp, level, msg)
	for _, attr := range attrs {
		line += " " + attr
	}
	line += "\n"

	// Get or create file handle and write (single lock acquisition)
	h.state.mu.Lock()
	defer h.state.mu.Unlock()

	f, ok := h.state.fileCache[vmID]
	if !ok {
		// Ensure directory exists
		dir := filepath.Dir(logPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return // silently skip if can't create directory
		}

		var err error
		f, err = os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return // silently skip if can't open file
		}
		h.state.fileCache[vmID] = f
	}

	// Write to file (best effort)
	f.WriteString(line)
}

// Enabled reports whether the handler handles records at the given level.
func (h *VMLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.Handler.Enabled(ctx, level)
}

// WithAttrs returns a new handler with the given attributes.
// The new handler shares the same state (mutex and file cache) as the parent.
func (h *VMLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &VMLogHandler{
		Handler:     h.Handler.WithAttrs(attrs),
		logPathFunc: h.logPathFunc,
		state:       h.state, // same pointer = shared mutex and cache
	}
}

// WithGroup returns a new handler with the given group name.
// The new handler shares the same state (mutex and file cache) as the parent.
func (h *VMLogHandler) WithGroup(name string) slog.Handler {
	return &VMLogHandler{
		Handler:     h.Handler.WithGroup(name),
		logPathFunc: h.logPathFunc,
		state:       h.state, // same pointer = shared mutex and cache
	}
}

// CloseVMLog closes and removes a cached file handle for a VM.
// Call this when a VM is deleted.
func (h *VMLogHandler) CloseVMLog(vmID string) {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()

	if f, ok := h.state.fileCache[vmID]; ok {
		f.Close()
		delete(h.state.fileCache, vmID)
	}
}

// CloseAll closes all cached file handles.
// Call this during shutdown.
func (h *VMLogHandler) CloseAll() {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()

	for id, f := range h.state.fileCache {
		f.Close()
		delete(h.state.fileCache, id)
	}
}
