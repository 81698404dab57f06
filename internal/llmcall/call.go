// Package llmcall records every inference attempt for traceability.
// Each attempt is written as one JSON line to the run's calls.jsonl.
package llmcall

import (
	"time"

	"github.com/google/uuid"

	"github.com/examtile/examtile/internal/providers"
)

// Call represents a recorded inference attempt.
type Call struct {
	// Unique identifier
	ID string `json:"id"`

	// Timing
	Timestamp time.Time `json:"timestamp"`
	LatencyMs int       `json:"latency_ms"`

	// Context references
	RunID   string `json:"run_id,omitempty"`
	Page    int    `json:"page"`
	Tile    string `json:"tile"`
	Attempt int    `json:"attempt"`

	// Prompt traceability
	PromptKey  string `json:"prompt_key"`
	PromptHash string `json:"prompt_hash,omitempty"`

	// Model info
	Provider    string   `json:"provider"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature,omitempty"`

	// Token usage
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`

	// Response
	Response string `json:"response,omitempty"`

	// Status
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// RecordOptions provides context for recording a call.
type RecordOptions struct {
	RunID   string
	Page    int
	Tile    string
	Attempt int

	PromptKey  string
	PromptHash string

	// Provider and Model are used when the call failed before a result existed.
	Provider string
	Model    string

	// Request parameters (pointer to distinguish "not set" from "set to 0")
	Temperature *float64

	Started time.Time
	Latency time.Duration
}

// FromResult creates a Call from the outcome of one attempt.
func FromResult(result *providers.InferResult, err error, opts RecordOptions) *Call {
	ts := opts.Started
	if ts.IsZero() {
		ts = time.Now()
	}
	call := &Call{
		ID:          uuid.New().String(),
		Timestamp:   ts,
		LatencyMs:   int(opts.Latency.Milliseconds()),
		RunID:       opts.RunID,
		Page:        opts.Page,
		Tile:        opts.Tile,
		Attempt:     opts.Attempt,
		PromptKey:   opts.PromptKey,
		PromptHash:  opts.PromptHash,
		Provider:    opts.Provider,
		Model:       opts.Model,
		Temperature: opts.Temperature,
	}

	if result != nil {
		if result.Provider != "" {
			call.Provider = result.Provider
		}
		if result.ModelUsed != "" {
			call.Model = result.ModelUsed
		}
		call.InputTokens = result.PromptTokens
		call.OutputTokens = result.CompletionTokens
		call.Response = result.Text
	}

	if err != nil {
		call.Error = err.Error()
		if ie, ok := providers.AsInferenceError(err); ok {
			call.ErrorKind = string(ie.Kind)
		}
		return call
	}
	call.Success = result != nil
	return call
}
