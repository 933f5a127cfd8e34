package openrouter

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/openlexica/lexcascade/internal/backend"
	"github.com/openlexica/lexcascade/internal/httpclient"
)

func init() {
	backend.Register("openrouter", New)
}

// OpenRouter invokes a model through the OpenRouter API (OpenAI-compatible).
type OpenRouter struct {
	model   string
	apiKey  string
	baseURL string
	client  *httpclient.Client
}

// New constructs an OpenRouter backend.
func New(model string, settings backend.Settings, client *httpclient.Client) (backend.Backend, error) {
	if settings.APIKey == "" {
		return nil, fmt.Errorf("openrouter: API key not configured")
	}
	return &OpenRouter{
		model:   model,
		apiKey:  settings.APIKey,
		baseURL: settings.BaseURL,
		client:  client,
	}, nil
}

func (o *OpenRouter) Provider() string { return "openrouter" }
func (o *OpenRouter) Model() string    { return o.model }

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
func (o *OpenRouter) Invoke(ctx context.Context, req backend.Request) (*backend.Response, error) {
	url := o.baseURL + "/chat/completions"
	headers := map[string]string{
		"Authorization": "Bearer " + o.apiKey,
		"X-Title":       "lexcascade",
	}

	body := chatRequest{Model: o.model, MaxTokens: req.MaxTokens}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.User})

	resp, err := o.client.PostJSON(ctx, url, headers, body)
	if err != nil {
		return nil, &backend.CallError{Kind: backend.KindTransient, Provider: "openrouter", Model: o.model, Err: err}
	}
	if resp.StatusCode >= 400 {
		kind, msg := backend.ClassifyStatus(resp.StatusCode, resp.Body)
		return nil, &backend.CallError{Kind: kind, Provider: "openrouter", Model: o.model, Status: resp.StatusCode, Message: msg}
	}

	// OpenRouter reports some upstream failures inside a 200 body.
	if errMsg := gjson.GetBytes(resp.Body, "error.message"); errMsg.Exists() {
		kind, _ := backend.ClassifyStatus(int(gjson.GetBytes(resp.Body, "error.code").Int()), resp.Body)
		return nil, &backend.CallError{Kind: kind, Provider: "openrouter", Model: o.model, Message: errMsg.String()}
	}

	text := gjson.GetBytes(resp.Body, "choices.0.message.content").String()
	if text == "" {
		return nil, &backend.CallError{Kind: backend.KindMalformed, Provider: "openrouter", Model: o.model, Message: "empty completion"}
	}

	return &backend.Response{Content: text}, nil
}

// HealthCheck performs a lightweight GET to the models endpoint.
func (o *OpenRouter) HealthCheck(ctx context.Context) error {
	url := o.baseURL + "/models"
	headers := map[string]string{
		"Authorization": "Bearer " + o.apiKey,
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := o.client.Get(ctx, url, headers)
	return err
}
