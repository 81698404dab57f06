package llmcall

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// ErrNotFound is returned by Get when no call has the requested ID.
var ErrNotFound = errors.New("call not found")

// Store reads a calls.jsonl file.
type Store struct {
	path string
}

// NewStore creates a store over the call log at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// QueryFilter specifies filters for listing calls.
type QueryFilter struct {
	Page     int // 0 = any
	Tile     string
	Provider string
	After    *time.Time
	Before   *time.Time
	Success  *bool
	Limit    int
	Offset   int
}

func (f QueryFilter) match(c *Call) bool {
	if f.Page != 0 && c.Page != f.Page {
		return false
	}
	if f.Tile != "" && c.Tile != f.Tile {
		return false
	}
	if f.Provider != "" && c.Provider != f.Provider {
		return false
	}
	if f.After != nil && !c.Timestamp.After(*f.After) {
		return false
	}
	if f.Before != nil && !c.Timestamp.Before(*f.Before) {
		return false
	}
	if f.Success != nil && c.Success != *f.Success {
		return false
	}
	return true
}

// Get retrieves a single call by ID.
func (s *Store) Get(id string) (*Call, error) {
	var found *Call
	err := s.scan(func(c *Call) bool {
		if c.ID == id {
			found = c
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return found, nil
}

// List returns calls matching filter in file order.
func (s *Store) List(filter QueryFilter) ([]Call, error) {
	var calls []Call
	skipped := 0
	err := s.scan(func(c *Call) bool {
		if !filter.match(c) {
			return true
		}
		if skipped < filter.Offset {
			skipped++
			return true
		}
		calls = append(calls, *c)
		return filter.Limit <= 0 || len(calls) < filter.Limit
	})
	return calls, err
}

// Stats summarizes a call log.
type Stats struct {
	Calls        int            `json:"calls" yaml:"calls"`
	Succeeded    int            `json:"succeeded" yaml:"succeeded"`
	Failed       int            `json:"failed" yaml:"failed"`
	InputTokens  int            `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int            `json:"output_tokens" yaml:"output_tokens"`
	ByErrorKind  map[string]int `json:"by_error_kind,omitempty" yaml:"by_error_kind,omitempty"`
}

// Stats aggregates every call in the log.
func (s *Store) Stats() (*Stats, error) {
	st := &Stats{ByErrorKind: make(map[string]int)}
	err := s.scan(func(c *Call) bool {
		st.Calls++
		st.InputTokens += c.InputTokens
		st.OutputTokens += c.OutputTokens
		if c.Success {
			st.Succeeded++
		} else {
			st.Failed++
			st.ByErrorKind[c.ErrorKind]++
		}
		return true
	})
	return st, err
}

// scan decodes each line and calls fn until it returns false.
func (s *Store) scan(fn func(*Call) bool) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open call log: %w", err)
	}
	defer f.Close()
	return scanCalls(f, fn)
}

func scanCalls(r io.Reader, fn func(*Call) bool) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var c Call
		if err := json.Unmarshal(sc.Bytes(), &c); err != nil {
			return fmt.Errorf("failed to parse call log line %d: %w", line, err)
		}
		if !fn(&c) {
			return nil
		}
	}
	return sc.Err()
}
