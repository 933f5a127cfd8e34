package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openlexica/lexcascade/internal/backend"
	"github.com/openlexica/lexcascade/internal/httpclient"
)

func newTestBackend(t *testing.T, handler http.HandlerFunc) backend.Backend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	b, err := New("gemini-2.0-flash", backend.Settings{APIKey: "test-key", BaseURL: srv.URL}, httpclient.New())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

func TestInvoke(t *testing.T) {
	var captured map[string]any
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-2.0-flash:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Error("expected API key in query string")
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"score\":3}"}]}}]}`))
	})

	resp, err := b.Invoke(context.Background(), backend.Request{System: "sys", User: "usr", MaxTokens: 512})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Content != `{"score":3}` {
		t.Errorf("unexpected content %q", resp.Content)
	}

	if _, ok := captured["systemInstruction"]; !ok {
		t.Error("expected systemInstruction in request")
	}
	gc, ok := captured["generationConfig"].(map[string]any)
	if !ok || gc["maxOutputTokens"] != float64(512) {
		t.Errorf("expected maxOutputTokens 512, got %v", captured["generationConfig"])
	}
}

func TestInvokeClassifiesResourceExhausted(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`))
	})

	_, err := b.Invoke(context.Background(), backend.Request{User: "usr"})
	var ce *backend.CallError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CallError, got %v", err)
	}
	if ce.Kind != backend.KindQuota {
		t.Errorf("expected quota kind, got %s", ce.Kind)
	}
}

func TestInvokeServerErrorIsTransient(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := b.Invoke(context.Background(), backend.Request{User: "usr"})
	if got := backend.KindOf(err); got != backend.KindTransient {
		t.Errorf("expected transient, got %s (%v)", got, err)
	}
}

func TestInvokeEmptyCandidateIsMalformed(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	})

	_, err := b.Invoke(context.Background(), backend.Request{User: "usr"})
	if got := backend.KindOf(err); got != backend.KindMalformed {
		t.Errorf("expected malformed, got %s (%v)", got, err)
	}
}
