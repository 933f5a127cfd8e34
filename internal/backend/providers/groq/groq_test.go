package groq

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openlexica/lexcascade/internal/backend"
	"github.com/openlexica/lexcascade/internal/httpclient"
)

func newTestBackend(t *testing.T, handler http.HandlerFunc) backend.Backend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	b, err := New("llama-3.3-70b-versatile", backend.Settings{APIKey: "test-key", BaseURL: srv.URL}, httpclient.New())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

func TestInvoke(t *testing.T) {
	var captured map[string]any
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"score\":2}"}}]}`))
	})

	resp, err := b.Invoke(context.Background(), backend.Request{System: "sys", User: "usr", MaxTokens: 1024})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Content != `{"score":2}` {
		t.Errorf("unexpected content %q", resp.Content)
	}

	if captured["model"] != "llama-3.3-70b-versatile" {
		t.Errorf("unexpected model in request: %v", captured["model"])
	}
	msgs := captured["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected system+user messages, got %v", msgs)
	}
	if msgs[0].(map[string]any)["role"] != "system" {
		t.Errorf("expected system message first, got %v", msgs[0])
	}
	if captured["max_tokens"] != float64(1024) {
		t.Errorf("expected max_tokens 1024, got %v", captured["max_tokens"])
	}
}

func TestInvokeClassifies429(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"Rate limit reached"}}`))
	})

	_, err := b.Invoke(context.Background(), backend.Request{User: "usr"})
	var ce *backend.CallError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CallError, got %v", err)
	}
	if ce.Kind != backend.KindQuota {
		t.Errorf("expected quota kind, got %s", ce.Kind)
	}
	if ce.Status != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", ce.Status)
	}
}

func TestInvokeEmptyCompletionIsMalformed(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	})

	_, err := b.Invoke(context.Background(), backend.Request{User: "usr"})
	if got := backend.KindOf(err); got != backend.KindMalformed {
		t.Errorf("expected malformed, got %s (%v)", got, err)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New("m", backend.Settings{}, httpclient.New()); err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestHealthCheck(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"data":[]}`))
	})
	if err := b.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}
