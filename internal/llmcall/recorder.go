package llmcall

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Recorder appends calls as JSON lines. A nil *Recorder records nothing.
type Recorder struct {
	mu     sync.Mutex
	w      io.Writer
	enc    *json.Encoder
	closer io.Closer
	count  int
	logger *slog.Logger
}

// NewRecorder creates a recorder writing to w.
func NewRecorder(w io.Writer, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{w: w, enc: json.NewEncoder(w), logger: logger}
}

// OpenFile creates a recorder appending to path.
func OpenFile(path string, logger *slog.Logger) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open call log: %w", err)
	}
	r := NewRecorder(f, logger)
	r.closer = f
	return r, nil
}

// RecordCall writes a call. Write failures are logged, not returned, so a
// broken log never affects tile processing.
func (r *Recorder) RecordCall(call *Call) {
	if r == nil || call == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Encode(call); err != nil {
		r.logger.Warn("failed to record call", "id", call.ID, "error", err)
		return
	}
	r.count++
}

// Count returns the number of calls written.
func (r *Recorder) Count() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Close closes the underlying file, if the recorder owns one.
func (r *Recorder) Close() error {
	if r == nil || r.closer == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closer.Close()
}
