package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/examtile/examtile/internal/pipeline"
)

// Event types on an NDJSON stream.
const (
	EventStart = "start"
	EventTile  = "tile"
	EventPage  = "page"
	EventError = "error"
	EventDone  = "done"
)

// Event is one line of an NDJSON stream.
type Event struct {
	Type    string                `json:"type"`
	RunID   string                `json:"run_id,omitempty"`
	Pages   int                   `json:"pages,omitempty"`
	Page    int                   `json:"page,omitempty"`
	Tiles   int                   `json:"tiles,omitempty"`
	Failed  int                   `json:"failed,omitempty"`
	Tile    *pipeline.TileResult  `json:"tile,omitempty"`
	Skipped []pipeline.TileResult `json:"skipped,omitempty"` // page events: tiles never sent
	Summary *pipeline.Summary     `json:"summary,omitempty"`
	Error   string                `json:"error,omitempty"`
	Kind    string                `json:"kind,omitempty"`
}

// NDJSON streams events as newline-delimited JSON, flushing after each
// line so HTTP clients see tiles as they finish.
type NDJSON struct {
	mu      sync.Mutex
	buf     *bufio.Writer
	enc     *json.Encoder
	flusher http.Flusher
}

// NewNDJSON creates an event stream on w. If w is an http.Flusher it is
// flushed after every event.
func NewNDJSON(w io.Writer) *NDJSON {
	buf := bufio.NewWriter(w)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	n := &NDJSON{buf: buf, enc: enc}
	if f, ok := w.(http.Flusher); ok {
		n.flusher = f
	}
	return n
}

// Write encodes one event.
func (n *NDJSON) Write(ev Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.enc.Encode(ev); err != nil {
		return err
	}
	if err := n.buf.Flush(); err != nil {
		return err
	}
	if n.flusher != nil {
		n.flusher.Flush()
	}
	return nil
}

// Start announces a run.
func (n *NDJSON) Start(runID string, pages int) error {
	return n.Write(Event{Type: EventStart, RunID: runID, Pages: pages})
}

func (n *NDJSON) Emit(ctx context.Context, ev pipeline.TileEvent) error {
	r := ev.Result
	return n.Write(Event{Type: EventTile, Page: ev.PageIndex, Tile: &r})
}

func (n *NDJSON) PageDone(ctx context.Context, page pipeline.PageResult) error {
	ev := Event{Type: EventPage, Page: page.Index, Tiles: len(page.Tiles), Failed: page.Failed()}
	for _, t := range page.Tiles {
		if t.Skipped {
			ev.Skipped = append(ev.Skipped, t)
		}
	}
	return n.Write(ev)
}

// Close writes an error event if the run failed, then the done event.
func (n *NDJSON) Close(sum pipeline.Summary, runErr error) error {
	if runErr != nil {
		if err := n.Fail(runErr); err != nil {
			return err
		}
	}
	return n.Write(Event{Type: EventDone, RunID: sum.RunID, Summary: &sum})
}

// Fail writes an error event.
func (n *NDJSON) Fail(err error) error {
	return n.Write(Event{Type: EventError, Error: err.Error(), Kind: Classify(err)})
}
