package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/Martian-dev/brain-connectors/internal/config"
)

// Message is one chat turn
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is an OpenAI-compatible chat completion request
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// ChatResponse is the subset of a completion response the service reads
type ChatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error json.RawMessage `json:"error,omitempty"`
}

// Content returns the first choice, or an error description when the
// provider answered with an error body
func (r *ChatResponse) Content() string {
	if len(r.Choices) > 0 {
		return r.Choices[0].Message.Content
	}
	if len(r.Error) > 0 && string(r.Error) != "null" {
		var e struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(r.Error, &e) == nil && e.Message != "" {
			return "Error analyzing email: " + e.Message
		}
		var s string
		if json.Unmarshal(r.Error, &s) == nil {
			return "Error analyzing email: " + s
		}
		return "Error analyzing email: " + string(r.Error)
	}
	return ""
}

// Model describes an available model
type Model struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DisplayName falls back to the id when the provider gives no name
func (m Model) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	return m.ID
}

// Client calls an OpenAI-compatible API
type Client struct {
	baseURL string
	hc      *http.Client
}

// New creates a client for cfg. An empty API key sends no Authorization header.
func New(cfg config.AI) *Client {
	var transport http.RoundTripper = http.DefaultTransport
	if cfg.APIKey != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"}),
		}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		hc:      &http.Client{Transport: transport, Timeout: cfg.Timeout},
	}
}

// Enabled reports whether a base URL is configured
func (c *Client) Enabled() bool {
	return c != nil && c.baseURL != ""
}

// GetModel returns the model with id, or nil if the provider does not list it
func (c *Client) GetModel(ctx context.Context, id string) (*Model, error) {
	var list struct {
		Data []Model `json:"data"`
	}
	if err := c.call(ctx, http.MethodGet, "/models", nil, &list); err != nil {
		return nil, err
	}
	for _, m := range list.Data {
		if m.ID == id {
			return &m, nil
		}
	}
	return nil, nil
}

// ChatCompletion runs a non-streaming completion
func (c *Client) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.call(ctx, http.MethodPost, "/chat/completions", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	if !c.Enabled() {
		return fmt.Errorf("ai base url is not configured")
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	// Completion errors come back as JSON bodies; let the caller read them.
	if resp.StatusCode != http.StatusOK && !json.Valid(data) {
		return fmt.Errorf("bad status %d: %s", resp.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
