package groq

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/openlexica/lexcascade/internal/backend"
	"github.com/openlexica/lexcascade/internal/httpclient"
)

func init() {
	backend.Register("groq", New)
}

// Groq invokes a model through the Groq API (OpenAI-compatible).
type Groq struct {
	model   string
	apiKey  string
	baseURL string
	client  *httpclient.Client
}

// New constructs a Groq backend.
func New(model string, settings backend.Settings, client *httpclient.Client) (backend.Backend, error) {
	if settings.APIKey == "" {
		return nil, fmt.Errorf("groq: API key not configured")
	}
	return &Groq{
		model:   model,
		apiKey:  settings.APIKey,
		baseURL: settings.BaseURL,
		client:  client,
	}, nil
}

func (g *Groq) Provider() string { return "groq" }
func (g *Groq) Model() string    { return g.model }

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Invoke sends a chat completion request.
func (g *Groq) Invoke(ctx context.Context, req backend.Request) (*backend.Response, error) {
	url := g.baseURL + "/chat/completions"
	headers := map[string]string{
		"Authorization": "Bearer " + g.apiKey,
	}

	body := chatRequest{Model: g.model, MaxTokens: req.MaxTokens}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.User})

	resp, err := g.client.PostJSON(ctx, url, headers, body)
	if err != nil {
		return nil, &backend.CallError{Kind: backend.KindTransient, Provider: "groq", Model: g.model, Err: err}
	}
	if resp.StatusCode >= 400 {
		kind, msg := backend.ClassifyStatus(resp.StatusCode, resp.Body)
		return nil, &backend.CallError{Kind: kind, Provider: "groq", Model: g.model, Status: resp.StatusCode, Message: msg}
	}

	text := gjson.GetBytes(resp.Body, "choices.0.message.content").String()
	if text == "" {
		return nil, &backend.CallError{Kind: backend.KindMalformed, Provider: "groq", Model: g.model, Message: "empty completion"}
	}

	return &backend.Response{Content: text}, nil
}

// HealthCheck performs a lightweight GET to the models endpoint.
func (g *Groq) HealthCheck(ctx context.Context) error {
	url := g.baseURL + "/models"
	headers := map[string]string{
		"Authorization": "Bearer " + g.apiKey,
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := g.client.Get(ctx, url, headers)
	return err
}
