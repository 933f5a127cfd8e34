package vertex

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/openlexica/lexcascade/internal/backend"
	"github.com/openlexica/lexcascade/internal/httpclient"
)

func init() {
	backend.Register("vertex", New)
}

const scope = "https://www.googleapis.com/auth/cloud-platform"

// Vertex invokes a Gemini model through Vertex AI. Authentication uses
// application default credentials via oauth2 rather than an API key.
type Vertex struct {
	model    string
	project  string
	location string
	client   *httpclient.Client
	tokens   oauth2.TokenSource
}

// New constructs a Vertex backend. Credentials are resolved once at
// construction so a misconfigured environment fails before processing
// starts.
func New(model string, settings backend.Settings, client *httpclient.Client) (backend.Backend, error) {
	if settings.Project == "" {
		return nil, fmt.Errorf("vertex: project not configured")
	}
	location := settings.Location
	if location == "" {
		location = "us-central1"
	}

	ts, err := google.DefaultTokenSource(context.Background(), scope)
	if err != nil {
		return nil, fmt.Errorf("vertex: resolving credentials: %w", err)
	}

	return &Vertex{
		model:    model,
		project:  settings.Project,
		location: location,
		client:   client,
		tokens:   oauth2.ReuseTokenSource(nil, ts),
	}, nil
}

func (v *Vertex) Provider() string { return "vertex" }
func (v *Vertex) Model() string    { return v.model }

func (v *Vertex) endpoint(verb string) string {
	return fmt.Sprintf(
		"https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:%s",
		v.location, v.project, v.location, v.model, verb,
	)
}

type generateRequest struct {
	SystemInstruction *content   `json:"systemInstruction,omitempty"`
	Contents          []content  `json:"contents"`
	GenerationConfig  *genConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type genConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

// Invoke sends a generateContent request and returns the first candidate's
// text.
func (v *Vertex) Invoke(ctx context.Context, req backend.Request) (*backend.Response, error) {
	tok, err := v.tokens.Token()
	if err != nil {
		return nil, &backend.CallError{Kind: backend.KindTransient, Provider: "vertex", Model: v.model, Err: fmt.Errorf("fetching token: %w", err)}
	}
	headers := map[string]string{
		"Authorization": "Bearer " + tok.AccessToken,
	}

	body := generateRequest{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: req.User}}},
		},
	}
	if req.System != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: req.System}}}
	}
	if req.MaxTokens > 0 {
		body.GenerationConfig = &genConfig{MaxOutputTokens: req.MaxTokens}
	}

	resp, err := v.client.PostJSON(ctx, v.endpoint("generateContent"), headers, body)
	if err != nil {
		return nil, &backend.CallError{Kind: backend.KindTransient, Provider: "vertex", Model: v.model, Err: err}
	}
	if resp.StatusCode >= 400 {
		kind, msg := backend.ClassifyStatus(resp.StatusCode, resp.Body)
		return nil, &backend.CallError{Kind: kind, Provider: "vertex", Model: v.model, Status: resp.StatusCode, Message: msg}
	}

	text := gjson.GetBytes(resp.Body, "candidates.0.content.parts.0.text").String()
	if text == "" {
		return nil, &backend.CallError{Kind: backend.KindMalformed, Provider: "vertex", Model: v.model, Message: "empty candidate text"}
	}

	return &backend.Response{Content: text}, nil
}

// HealthCheck verifies credentials resolve to a usable token.
func (v *Vertex) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := v.tokens.Token()
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
