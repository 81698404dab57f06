package providers

import (
	"context"
	"encoding/base64"
	"time"
)

// InferenceClient sends one image plus an instruction to a hosted multimodal
// model and returns the generated text. Implementations make exactly one
// remote attempt per call; pacing and retry belong to the caller.
type InferenceClient interface {
	// Infer runs a single request. Failures are returned as *InferenceError.
	Infer(ctx context.Context, req *InferRequest) (*InferResult, error)

	// Name returns the provider identifier (e.g., "gemini").
	Name() string

	// Model returns the model the client sends requests to.
	Model() string
}

// InferRequest is one tile submitted to the model.
type InferRequest struct {
	Image       []byte
	MIMEType    string // "image/png" or "image/jpeg"
	Instruction string
	Temperature float64

	// Label identifies the tile in logs and mocks (e.g., "P1 - Left").
	Label     string
	RequestID string
}

// DataURL returns the image as a base64 data URL.
func (r *InferRequest) DataURL() string {
	mime := r.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(r.Image)
}

// InferResult is a successful model response.
type InferResult struct {
	Text string `json:"text"`

	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	ExecutionTime time.Duration `json:"execution_time"`

	Provider  string `json:"provider"`
	ModelUsed string `json:"model_used"`
	RequestID string `json:"request_id"`
}
