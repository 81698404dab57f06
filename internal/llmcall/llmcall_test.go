package llmcall

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/examtile/examtile/internal/providers"
)

func TestFromResult(t *testing.T) {
	temp := 0.0
	opts := RecordOptions{
		RunID:       "run-1",
		Page:        2,
		Tile:        "Left",
		Attempt:     1,
		PromptKey:   "exam.tile",
		PromptHash:  "abc",
		Provider:    "gemini",
		Model:       "gemini-1.5-pro",
		Temperature: &temp,
		Latency:     1500 * time.Millisecond,
	}

	t.Run("success", func(t *testing.T) {
		call := FromResult(&providers.InferResult{
			Text:             "answer",
			PromptTokens:     10,
			CompletionTokens: 3,
			Provider:         "gemini",
			ModelUsed:        "gemini-1.5-pro-002",
		}, nil, opts)
		if !call.Success || call.Response != "answer" || call.Model != "gemini-1.5-pro-002" {
			t.Errorf("unexpected call: %+v", call)
		}
		if call.LatencyMs != 1500 || call.ID == "" || call.Page != 2 {
			t.Errorf("unexpected metadata: %+v", call)
		}
	})

	t.Run("failure", func(t *testing.T) {
		err := &providers.InferenceError{Provider: "gemini", Kind: providers.KindQuota, StatusCode: 429, Message: "quota"}
		call := FromResult(nil, err, opts)
		if call.Success || call.ErrorKind != "quota" || call.Provider != "gemini" {
			t.Errorf("unexpected call: %+v", call)
		}
	})

	t.Run("plain error", func(t *testing.T) {
		call := FromResult(nil, errors.New("boom"), opts)
		if call.Success || call.ErrorKind != "" || call.Error != "boom" {
			t.Errorf("unexpected call: %+v", call)
		}
	})
}

func TestRecorderAndStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calls.jsonl")
	rec, err := OpenFile(path, nil)
	if err != nil {
		t.Fatal(err)
	}

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, tile := range []string{"Left", "Right", "Left", "Right"} {
		c := &Call{
			ID:           tile + string(rune('a'+i)),
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
			Page:         i/2 + 1,
			Tile:         tile,
			Provider:     "mock",
			InputTokens:  100,
			OutputTokens: 10,
			Success:      i != 1,
		}
		if i == 1 {
			c.Error = "mock failure"
			c.ErrorKind = "transport"
		}
		rec.RecordCall(c)
	}
	rec.RecordCall(nil)
	if rec.Count() != 4 {
		t.Errorf("Count = %d", rec.Count())
	}
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}

	store := NewStore(path)

	all, err := store.List(QueryFilter{})
	if err != nil || len(all) != 4 {
		t.Fatalf("List = %d calls, %v", len(all), err)
	}

	page2, _ := store.List(QueryFilter{Page: 2})
	if len(page2) != 2 {
		t.Errorf("page 2 calls = %d", len(page2))
	}

	failed := false
	fails, _ := store.List(QueryFilter{Success: &failed})
	if len(fails) != 1 || fails[0].Tile != "Right" {
		t.Errorf("failed calls = %+v", fails)
	}

	after := base.Add(90 * time.Second)
	late, _ := store.List(QueryFilter{After: &after, Limit: 1})
	if len(late) != 1 || late[0].ID != "Leftc" {
		t.Errorf("late calls = %+v", late)
	}

	paged, _ := store.List(QueryFilter{Offset: 3})
	if len(paged) != 1 || paged[0].ID != "Rightd" {
		t.Errorf("offset calls = %+v", paged)
	}

	got, err := store.Get("Rightb")
	if err != nil || got.ErrorKind != "transport" {
		t.Errorf("Get = %+v, %v", got, err)
	}
	if _, err := store.Get("missing"); err == nil {
		t.Error("expected error for missing call")
	}

	st, err := store.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if st.Calls != 4 || st.Succeeded != 3 || st.Failed != 1 || st.InputTokens != 400 || st.ByErrorKind["transport"] != 1 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	r.RecordCall(&Call{ID: "x"})
	if r.Count() != 0 || r.Close() != nil {
		t.Error("nil recorder should be a no-op")
	}
}

func TestScanCalls_BadLine(t *testing.T) {
	var buf bytes.Buffer
	NewRecorder(&buf, nil).RecordCall(&Call{ID: "ok"})
	buf.WriteString("{not json}\n")

	n := 0
	err := scanCalls(&buf, func(*Call) bool { n++; return true })
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error = %v, want parse error on line 2", err)
	}
	if n != 1 {
		t.Errorf("decoded %d calls before error", n)
	}
}
