package sink

import (
	"context"

	"github.com/examtile/examtile/internal/pipeline"
)

// StreamError is a run-level failure read from an event stream.
type StreamError struct {
	Kind    string
	Message string
}

func (e *StreamError) Error() string { return e.Message }

// ErrorKind returns the kind the server classified the failure as.
func (e *StreamError) ErrorKind() string { return e.Kind }

// Replayer feeds events read from an NDJSON stream into a Sink, so a client
// renders a server run the same way a local run is rendered.
type Replayer struct {
	s      Sink
	runErr error
	closed bool
}

// NewReplayer creates a replayer writing to s.
func NewReplayer(s Sink) *Replayer {
	return &Replayer{s: s}
}

// Apply forwards one event. Start events carry nothing to render.
func (r *Replayer) Apply(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventTile:
		if ev.Tile == nil {
			return nil
		}
		return r.s.Emit(ctx, pipeline.TileEvent{PageIndex: ev.Page, Result: *ev.Tile})
	case EventPage:
		return r.s.PageDone(ctx, pipeline.PageResult{Index: ev.Page, Tiles: ev.Skipped})
	case EventError:
		r.runErr = &StreamError{Kind: ev.Kind, Message: ev.Error}
	case EventDone:
		var sum pipeline.Summary
		if ev.Summary != nil {
			sum = *ev.Summary
		}
		r.closed = true
		return r.s.Close(sum, r.runErr)
	}
	return nil
}

// Err returns the run error reported by the stream, if any.
func (r *Replayer) Err() error { return r.runErr }

// Closed reports whether a done event was applied.
func (r *Replayer) Closed() bool { return r.closed }
