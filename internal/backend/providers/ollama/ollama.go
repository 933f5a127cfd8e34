package ollama

import (
	"context"
	"time"

	"github.com/tidwall/gjson"

	"github.com/openlexica/lexcascade/internal/backend"
	"github.com/openlexica/lexcascade/internal/httpclient"
)

func init() {
	backend.Register("ollama", New)
}

// Ollama invokes a model on a local Ollama server. No API key required.
type Ollama struct {
	model   string
	baseURL string
	client  *httpclient.Client
}

// New constructs an Ollama backend.
func New(model string, settings backend.Settings, client *httpclient.Client) (backend.Backend, error) {
	return &Ollama{
		model:   model,
		baseURL: settings.BaseURL,
		client:  client,
	}, nil
}

func (o *Ollama) Provider() string { return "ollama" }
func (o *Ollama) Model() string    { return o.model }

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Invoke sends a non-streaming chat request.
func (o *Ollama) Invoke(ctx context.Context, req backend.Request) (*backend.Response, error) {
	url := o.baseURL + "/api/chat"

	body := chatRequest{Model: o.model, Stream: false}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.User})

	resp, err := o.client.PostJSON(ctx, url, nil, body)
	if err != nil {
		return nil, &backend.CallError{Kind: backend.KindTransient, Provider: "ollama", Model: o.model, Err: err}
	}
	if resp.StatusCode >= 400 {
		kind, msg := backend.ClassifyStatus(resp.StatusCode, resp.Body)
		return nil, &backend.CallError{Kind: kind, Provider: "ollama", Model: o.model, Status: resp.StatusCode, Message: msg}
	}

	text := gjson.GetBytes(resp.Body, "message.content").String()
	if text == "" {
		return nil, &backend.CallError{Kind: backend.KindMalformed, Provider: "ollama", Model: o.model, Message: "empty completion"}
	}

	return &backend.Response{Content: text}, nil
}

// HealthCheck verifies the local server is up.
func (o *Ollama) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := o.client.Get(ctx, o.baseURL+"/api/tags", nil)
	return err
}
