package gemini

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/openlexica/lexcascade/internal/backend"
	"github.com/openlexica/lexcascade/internal/httpclient"
)

func init() {
	backend.Register("gemini", New)
}

// Gemini invokes a model through the Gemini API (generativelanguage).
type Gemini struct {
	model   string
	apiKey  string
	baseURL string
	client  *httpclient.Client
}

// New constructs a Gemini backend.
func New(model string, settings backend.Settings, client *httpclient.Client) (backend.Backend, error) {
	if settings.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key not configured")
	}
	return &Gemini{
		model:   model,
		apiKey:  settings.APIKey,
		baseURL: settings.BaseURL,
		client:  client,
	}, nil
}

func (g *Gemini) Provider() string { return "gemini" }
func (g *Gemini) Model() string    { return g.model }

type generateRequest struct {
	SystemInstruction *content      `json:"systemInstruction,omitempty"`
	Contents          []content     `json:"contents"`
	GenerationConfig  *genConfig    `json:"generationConfig,omitempty"`
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
func (g *Gemini) Invoke(ctx context.Context, req backend.Request) (*backend.Response, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)

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

	resp, err := g.client.PostJSON(ctx, url, nil, body)
	if err != nil {
		return nil, &backend.CallError{Kind: backend.KindTransient, Provider: "gemini", Model: g.model, Err: err}
	}
	if resp.StatusCode >= 400 {
		kind, msg := backend.ClassifyStatus(resp.StatusCode, resp.Body)
		return nil, &backend.CallError{Kind: kind, Provider: "gemini", Model: g.model, Status: resp.StatusCode, Message: msg}
	}

	text := gjson.GetBytes(resp.Body, "candidates.0.content.parts.0.text").String()
	if text == "" {
		return nil, &backend.CallError{Kind: backend.KindMalformed, Provider: "gemini", Model: g.model, Message: "empty candidate text"}
	}

	return &backend.Response{Content: text}, nil
}

// HealthCheck performs a lightweight GET to the models endpoint.
func (g *Gemini) HealthCheck(ctx context.Context) error {
	url := g.baseURL + "/models?pageSize=1&key=" + g.apiKey
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := g.client.Get(ctx, url, nil)
	return err
}
