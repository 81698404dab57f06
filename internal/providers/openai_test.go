package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIClient(OpenAIConfig{
		APIKey:  "sk-test",
		BaseURL: srv.URL + "/v1/",
		Model:   "gpt-4o-mini",
	})
}

func TestOpenAIClient_Infer(t *testing.T) {
	var body map[string]any
	client := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "x = 3"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 50, "completion_tokens": 3, "total_tokens": 53}
		}`))
	})

	result, err := client.Infer(context.Background(), &InferRequest{
		Image:       []byte("img"),
		MIMEType:    "image/jpeg",
		Instruction: "solve",
		Temperature: 0,
	})
	if err != nil {
		t.Fatalf("Infer() error = %v", err)
	}
	if result.Text != "x = 3" || result.TotalTokens != 53 || result.ModelUsed != "gpt-4o-mini" {
		t.Errorf("unexpected result: %+v", result)
	}
	if body["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v", body["model"])
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v", body["messages"])
	}
	raw, _ := json.Marshal(msgs[1])
	if !strings.Contains(string(raw), "data:image/jpeg;base64,") {
		t.Errorf("user message missing data url: %s", raw)
	}
}

func TestOpenAIClient_QuotaError(t *testing.T) {
	client := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "20")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "You exceeded your current quota", "type": "insufficient_quota", "code": "insufficient_quota"}}`))
	})

	_, err := client.Infer(context.Background(), &InferRequest{Image: []byte("img")})
	ie, ok := AsInferenceError(err)
	if !ok {
		t.Fatalf("error = %v, want InferenceError", err)
	}
	if ie.Kind != KindQuota || ie.StatusCode != 429 {
		t.Errorf("unexpected error: %+v", ie)
	}
}

func TestOpenAIClient_EmptyChoices(t *testing.T) {
	client := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "chatcmpl-2", "object": "chat.completion", "model": "gpt-4o-mini", "choices": []}`))
	})

	_, err := client.Infer(context.Background(), &InferRequest{Image: []byte("img")})
	ie, ok := AsInferenceError(err)
	if !ok || ie.Kind != KindMalformed {
		t.Fatalf("error = %v, want malformed InferenceError", err)
	}
}
