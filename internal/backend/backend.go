package backend

import (
	"context"

	"github.com/openlexica/lexcascade/internal/httpclient"
)

// Request is a single opaque model invocation: the prompt is built by the
// analysis task, the response text is parsed by it. The cascade never looks
// inside either.
type Request struct {
	System    string
	User      string
	MaxTokens int
}

// Response holds the raw text returned by a backend.
type Response struct {
	Content string
}

// Backend invokes one configured model at one provider.
type Backend interface {
	// Provider returns the provider name (e.g., "groq").
	Provider() string
	// Model returns the provider-side model identifier.
	Model() string
	// Invoke sends the prompt and returns the raw completion text.
	// Failures are returned as *CallError so callers can branch on Kind.
	Invoke(ctx context.Context, req Request) (*Response, error)
	// HealthCheck performs a lightweight liveness probe against the provider.
	HealthCheck(ctx context.Context) error
}

// Settings carries provider credentials and endpoints from configuration.
type Settings struct {
	APIKey   string
	BaseURL  string
	Project  string // Vertex only
	Location string // Vertex only
}

// Factory constructs a Backend for one model of a provider.
type Factory func(model string, settings Settings, client *httpclient.Client) (Backend, error)
