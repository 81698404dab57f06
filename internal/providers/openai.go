package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	OpenAIName         = "openai"
	OpenAIDefaultModel = "gpt-4o"
)

// OpenAIConfig holds configuration for the OpenAI client.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// OpenAIClient implements InferenceClient using the OpenAI chat completions API.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = OpenAIDefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		// Retries are driven by the scheduler so every attempt is rate limited.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}
}

// Name returns the client identifier.
func (c *OpenAIClient) Name() string { return OpenAIName }

// Model returns the configured model.
func (c *OpenAIClient) Model() string { return c.model }

// Infer sends the instruction as a system message and the tile as an image part.
func (c *OpenAIClient) Infer(ctx context.Context, req *InferRequest) (*InferResult, error) {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.Instruction),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: req.DataURL(),
				}),
			}),
		},
		Temperature: openai.Float(req.Temperature),
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, malformedError(OpenAIName, fmt.Sprintf("empty choices in response (id=%s)", resp.ID))
	}

	choice := resp.Choices[0]
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		if choice.Message.Refusal != "" {
			return nil, &InferenceError{Provider: OpenAIName, Kind: KindModel, Message: "refused: " + choice.Message.Refusal}
		}
		return nil, malformedError(OpenAIName, fmt.Sprintf("empty content (finish_reason=%s)", choice.FinishReason))
	}

	return &InferResult{
		Text:             text,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
		ExecutionTime:    time.Since(start),
		Provider:         OpenAIName,
		ModelUsed:        resp.Model,
		RequestID:        requestID,
	}, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		ie := &InferenceError{
			Provider:   OpenAIName,
			Kind:       kindForStatus(apiErr.StatusCode),
			StatusCode: apiErr.StatusCode,
			Message:    truncate(apiErr.Message, 500),
			Err:        err,
		}
		if apiErr.Code == "insufficient_quota" {
			ie.Kind = KindQuota
		}
		if apiErr.Response != nil {
			ie.RetryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
		}
		return ie
	}
	return transportError(OpenAIName, err)
}
