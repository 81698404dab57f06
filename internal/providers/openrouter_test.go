package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestOpenRouter(t *testing.T, handler http.HandlerFunc) *OpenRouterClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenRouterClient(OpenRouterConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "test/model",
	})
}

func TestOpenRouterClient_Infer(t *testing.T) {
	var got openRouterRequest
	client := newTestOpenRouter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing auth header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "gen-1",
			"model": "test/model",
			"choices": [{"message": {"role": "assistant", "content": "  answer is 42  "}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 100, "completion_tokens": 5, "total_tokens": 105}
		}`))
	})

	result, err := client.Infer(context.Background(), &InferRequest{
		Image:       []byte{0x89, 'P', 'N', 'G'},
		MIMEType:    "image/png",
		Instruction: "solve",
		Temperature: 0,
		Label:       "P1 - Left",
	})
	if err != nil {
		t.Fatalf("Infer() error = %v", err)
	}
	if result.Text != "answer is 42" {
		t.Errorf("Text = %q", result.Text)
	}
	if result.TotalTokens != 105 || result.Provider != OpenRouterName {
		t.Errorf("unexpected result: %+v", result)
	}

	if got.Model != "test/model" || len(got.Messages) != 2 {
		t.Fatalf("unexpected request: %+v", got)
	}
	if got.Messages[0].Role != "system" || got.Messages[0].Content != "solve" {
		t.Errorf("system message = %+v", got.Messages[0])
	}
	parts, ok := got.Messages[1].Content.([]any)
	if !ok || len(parts) != 1 {
		t.Fatalf("user content = %#v", got.Messages[1].Content)
	}
	part := parts[0].(map[string]any)
	url := part["image_url"].(map[string]any)["url"].(string)
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Errorf("image url = %q", url)
	}
}

func TestOpenRouterClient_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header map[string]string
		body   string
		kind   ErrorKind
	}{
		{"rate limited", 429, map[string]string{"Retry-After": "3"}, `{"error":{"message":"rate limited"}}`, KindQuota},
		{"server error", 502, nil, `bad gateway`, KindTransport},
		{"bad request", 400, nil, `{"error":{"message":"invalid image"}}`, KindModel},
		{"garbage body", 200, nil, `not json`, KindMalformed},
		{"empty choices", 200, nil, `{"id":"x","choices":[]}`, KindMalformed},
		{"empty content", 200, nil, `{"choices":[{"message":{"content":""}}]}`, KindMalformed},
		{"api error in body", 200, nil, `{"error":{"message":"busy","code":"overloaded"}}`, KindTransport},
		{"content filter", 200, nil, `{"error":{"message":"blocked","code":"content_filter"}}`, KindModel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestOpenRouter(t, func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := client.Infer(context.Background(), &InferRequest{Image: []byte{1}})
			ie, ok := AsInferenceError(err)
			if !ok {
				t.Fatalf("error = %v, want InferenceError", err)
			}
			if ie.Kind != tt.kind {
				t.Errorf("Kind = %s, want %s", ie.Kind, tt.kind)
			}
			if tt.kind == KindQuota && !ie.Retryable() {
				t.Error("quota with Retry-After should be retryable")
			}
		})
	}
}

func TestExtractContent(t *testing.T) {
	multi := []any{
		map[string]any{"type": "text", "text": "a"},
		map[string]any{"type": "image_url"},
		map[string]any{"type": "text", "text": "b"},
	}
	if got := extractContent(multi); got != "ab" {
		t.Errorf("extractContent(multi) = %q", got)
	}
	if got := extractContent("plain"); got != "plain" {
		t.Errorf("extractContent(string) = %q", got)
	}
	if got := extractContent(nil); got != "" {
		t.Errorf("extractContent(nil) = %q", got)
	}
}
