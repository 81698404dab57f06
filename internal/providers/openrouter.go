package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	OpenRouterName         = "openrouter"
	OpenRouterBaseURL      = "https://openrouter.ai/api/v1"
	OpenRouterDefaultModel = "google/gemini-2.5-flash"
)

// OpenRouterConfig holds configuration for the OpenRouter client.
type OpenRouterConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenRouterClient implements InferenceClient using the OpenRouter API.
type OpenRouterClient struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewOpenRouterClient creates a new OpenRouter client.
func NewOpenRouterClient(cfg OpenRouterConfig) *OpenRouterClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenRouterBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = OpenRouterDefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	return &OpenRouterClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Name returns the client identifier.
func (c *OpenRouterClient) Name() string { return OpenRouterName }

// Model returns the configured model.
func (c *OpenRouterClient) Model() string { return c.model }

// Infer sends one chat completion with the tile as an image_url part.
func (c *OpenRouterClient) Infer(ctx context.Context, req *InferRequest) (*InferResult, error) {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	orReq := &openRouterRequest{
		Model:       c.model,
		Temperature: req.Temperature,
		Messages: []openRouterMessage{
			{Role: "system", Content: req.Instruction},
			{Role: "user", Content: []openRouterContent{
				{Type: "image_url", ImageURL: &openRouterImageURL{URL: req.DataURL()}},
			}},
		},
		Usage: &openRouterUsageReq{Include: true},
	}

	orResp, err := c.doRequest(ctx, "/chat/completions", orReq)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(extractContent(orResp.Choices[0].Message.Content))
	if text == "" {
		return nil, malformedError(OpenRouterName, fmt.Sprintf("empty content (model=%s, finish_reason=%s)", orResp.Model, orResp.Choices[0].FinishReason))
	}

	modelUsed := orResp.Model
	if modelUsed == "" {
		modelUsed = c.model
	}
	return &InferResult{
		Text:             text,
		PromptTokens:     orResp.Usage.PromptTokens,
		CompletionTokens: orResp.Usage.CompletionTokens,
		TotalTokens:      orResp.Usage.TotalTokens,
		ExecutionTime:    time.Since(start),
		Provider:         OpenRouterName,
		ModelUsed:        modelUsed,
		RequestID:        requestID,
	}, nil
}

// doRequest makes a single HTTP request to OpenRouter.
func (c *OpenRouterClient) doRequest(ctx context.Context, path string, body *openRouterRequest) (*openRouterResponse, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Title", "examtile")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportError(OpenRouterName, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(OpenRouterName, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(OpenRouterName, resp.StatusCode, resp.Header, string(respBody))
	}

	var orResp openRouterResponse
	if err := json.Unmarshal(respBody, &orResp); err != nil {
		return nil, malformedError(OpenRouterName, fmt.Sprintf("failed to unmarshal response: %v", err))
	}

	if orResp.Error != nil {
		return nil, responseError(&orResp)
	}
	if len(orResp.Choices) == 0 {
		return nil, malformedError(OpenRouterName, fmt.Sprintf("empty choices in response (model=%s, id=%s)", orResp.Model, orResp.ID))
	}
	return &orResp, nil
}

// responseError classifies an API-level error returned with a 200 status.
func responseError(resp *openRouterResponse) *InferenceError {
	code := fmt.Sprintf("%v", resp.Error.Code)
	kind := KindModel
	switch code {
	case "rate_limit_exceeded", "429":
		kind = KindQuota
	case "overloaded", "503", "502", "500":
		kind = KindTransport
	}
	return &InferenceError{Provider: OpenRouterName, Kind: kind, Message: resp.Error.Message}
}

// extractContent handles string or multipart content.
func extractContent(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var sb strings.Builder
		for _, part := range v {
			if m, ok := part.(map[string]any); ok && m["type"] == "text" {
				if text, ok := m["text"].(string); ok {
					sb.WriteString(text)
				}
			}
		}
		return sb.String()
	}
	return ""
}
