package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(
		Config{APIKey: "test-key", BaseURL: server.URL, Model: "test-model"},
		WithRetryBackoff(time.Millisecond, 2*time.Millisecond),
		WithSleeper(func(time.Duration) {}),
	)
}

func TestCompleteReturnsContent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"segment notes"}}]}`))
	})

	content, err := client.Complete(context.Background(), "system", "user", 0.7)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if content != "segment notes" {
		t.Fatalf("unexpected content %q", content)
	}
}

func TestCompleteRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	})

	content, err := client.Complete(context.Background(), "system", "user", 0)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if content != "ok" || calls.Load() != 3 {
		t.Fatalf("expected success on third attempt, got %q after %d calls", content, calls.Load())
	}
}

func TestCompleteDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	if _, err := client.Complete(context.Background(), "system", "user", 0); err == nil {
		t.Fatal("expected error for 401 response")
	}
	if calls.Load() != 1 {
		t.Fatalf("401 should not be retried, got %d calls", calls.Load())
	}
}

func TestCompleteRequiresPrompts(t *testing.T) {
	client := NewClient(Config{APIKey: "key"})
	if _, err := client.Complete(context.Background(), "", "user", 0); err == nil {
		t.Fatal("expected error for empty system prompt")
	}
	if _, err := client.Complete(context.Background(), "system", "", 0); err == nil {
		t.Fatal("expected error for empty user prompt")
	}
}

func TestDecodeLLMJSON(t *testing.T) {
	type payload struct {
		OverallSummary string `json:"overall_summary"`
	}

	cases := []struct {
		name    string
		content string
	}{
		{"direct", `{"overall_summary":"hello"}`},
		{"fenced", "```json\n{\"overall_summary\":\"hello\"}\n```"},
		{"embedded", "Here is the result:\n{\"overall_summary\":\"hello\"}\nHope that helps."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var parsed payload
			if err := DecodeLLMJSON(tc.content, &parsed); err != nil {
				t.Fatalf("DecodeLLMJSON failed: %v", err)
			}
			if parsed.OverallSummary != "hello" {
				t.Fatalf("unexpected payload %+v", parsed)
			}
		})
	}
}

func TestDecodeLLMJSONRejectsGarbage(t *testing.T) {
	var parsed map[string]any
	if err := DecodeLLMJSON("no json here at all", &parsed); err == nil {
		t.Fatal("expected error for non-JSON payload")
	}
	if err := DecodeLLMJSON("   ", &parsed); err == nil {
		t.Fatal("expected error for empty payload")
	}
}
