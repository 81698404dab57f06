package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	genai "google.golang.org/genai"
)

const (
	GeminiName         = "gemini"
	GeminiDefaultModel = "gemini-1.5-pro"
)

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// geminiAPI is the slice of the genai SDK the client uses.
type geminiAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type genaiModels struct {
	client *genai.Client
}

func (g *genaiModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return g.client.Models.GenerateContent(ctx, model, contents, config)
}

// GeminiClient implements InferenceClient with the Gemini API.
type GeminiClient struct {
	api     geminiAPI
	model   string
	timeout time.Duration
}

// NewGeminiClient creates a Gemini client for the Gemini API backend.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = GeminiDefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}

	return &GeminiClient{
		api:     &genaiModels{client: client},
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}, nil
}

// Name returns the client identifier.
func (c *GeminiClient) Name() string { return GeminiName }

// Model returns the configured model.
func (c *GeminiClient) Model() string { return c.model }

// Infer sends the tile image with the instruction as system prompt.
func (c *GeminiClient) Infer(ctx context.Context, req *InferRequest) (*InferResult, error) {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	temp := float32(req.Temperature)
	config := &genai.GenerateContentConfig{
		Temperature: &temp,
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: req.Instruction}},
		},
	}
	mime := req.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: mime, Data: req.Image}},
		},
	}}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := c.api.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return nil, c.classify(err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, &InferenceError{
			Provider: GeminiName,
			Kind:     KindModel,
			Message:  fmt.Sprintf("prompt blocked: %s", resp.PromptFeedback.BlockReason),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, malformedError(GeminiName, "no candidates in response")
	}

	cand := resp.Candidates[0]
	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		if cand.FinishReason == genai.FinishReasonSafety {
			return nil, &InferenceError{Provider: GeminiName, Kind: KindModel, Message: "response blocked by safety filter"}
		}
		return nil, malformedError(GeminiName, fmt.Sprintf("empty response (finish_reason=%s)", cand.FinishReason))
	}

	result := &InferResult{
		Text:          text,
		ExecutionTime: time.Since(start),
		Provider:      GeminiName,
		ModelUsed:     c.model,
		RequestID:     requestID,
	}
	if resp.ModelVersion != "" {
		result.ModelUsed = resp.ModelVersion
	}
	if u := resp.UsageMetadata; u != nil {
		result.PromptTokens = int(u.PromptTokenCount)
		result.CompletionTokens = int(u.CandidatesTokenCount)
		result.TotalTokens = int(u.TotalTokenCount)
	}
	return result, nil
}

// classify maps SDK errors to InferenceError.
func (c *GeminiClient) classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return c.apiError(apiErr, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return c.apiError(*apiErrPtr, err)
	}
	return transportError(GeminiName, err)
}

func (c *GeminiClient) apiError(apiErr genai.APIError, err error) *InferenceError {
	kind := kindForStatus(apiErr.Code)
	if apiErr.Status == "RESOURCE_EXHAUSTED" {
		kind = KindQuota
	}
	return &InferenceError{
		Provider:   GeminiName,
		Kind:       kind,
		StatusCode: apiErr.Code,
		Message:    truncate(apiErr.Message, 500),
		Err:        err,
	}
}
