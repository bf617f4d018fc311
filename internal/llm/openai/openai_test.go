package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopclerk/shopclerk/internal/llm"
)

func embedServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
}

func TestEmbedOrdersByIndex(t *testing.T) {
	// Vectors may arrive in any order; the index field decides placement.
	srv := embedServer(t, `{
		"data": [
			{"index": 1, "embedding": [0.2, 0.2]},
			{"index": 0, "embedding": [0.1, 0.1]}
		]
	}`)
	defer srv.Close()

	c := New("key", "model", srv.URL, "embed-model")
	vecs, err := c.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vecs))
	}
	if vecs[0][0] != 0.1 || vecs[1][0] != 0.2 {
		t.Errorf("vectors out of input order: %v", vecs)
	}
}

func TestEmbedRejectsOutOfRangeIndex(t *testing.T) {
	srv := embedServer(t, `{"data": [{"index": 3, "embedding": [0.1]}]}`)
	defer srv.Close()

	c := New("key", "model", srv.URL, "embed-model")
	_, err := c.Embed(context.Background(), []string{"only"})
	if err == nil || !strings.Contains(err.Error(), "out of range") {
		t.Fatalf("err = %v, want out-of-range error", err)
	}
}

func TestEmbedCountMismatch(t *testing.T) {
	srv := embedServer(t, `{"data": [{"index": 0, "embedding": [0.1]}]}`)
	defer srv.Close()

	c := New("key", "model", srv.URL, "embed-model")
	_, err := c.Embed(context.Background(), []string{"a", "b"})
	if err == nil || !strings.Contains(err.Error(), "mismatch") {
		t.Fatalf("err = %v, want count mismatch", err)
	}
}

func TestCompleteParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("auth header = %q", got)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["model"] != "model" {
			t.Errorf("model = %v", req["model"])
		}
		w.Write([]byte(`{
			"choices": [{"message": {"content": "hello"}, "finish_reason": "stop"}],
			"model": "model",
			"usage": {"prompt_tokens": 3, "completion_tokens": 2}
		}`))
	}))
	defer srv.Close()

	c := New("key", "model", srv.URL, "")
	prompt := &llm.Prompt{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}}
	resp, err := c.Complete(context.Background(), prompt, nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "hello" || resp.StopReason != "stop" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.InputTokens != 3 || resp.OutputTokens != 2 {
		t.Errorf("tokens = %d/%d", resp.InputTokens, resp.OutputTokens)
	}
}
