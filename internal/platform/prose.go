package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mlld-lang/mlld/internal/ports"
)

const (
	defaultAnthropicModel   = "claude-sonnet-4-5-20250929"
	anthropicAPIBase        = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion     = "2023-06-01"
	anthropicRequestTimeout = 120 * time.Second
)

// AnthropicProseAdapter implements ports.ProseAdapter over the Anthropic
// Messages API via net/http (no first-party Go SDK for this API appears
// anywhere in the retrieved pack, so the wire format here follows the
// request/response shapes an HTTP-based provider in that pack uses for
// the same API).
type AnthropicProseAdapter struct {
	APIKey  string
	Model   string
	BaseURL string
	client  *http.Client
}

var _ ports.ProseAdapter = (*AnthropicProseAdapter)(nil)

// NewAnthropicProseAdapter returns an adapter authenticating with apiKey.
func NewAnthropicProseAdapter(apiKey string) *AnthropicProseAdapter {
	return &AnthropicProseAdapter{
		APIKey:  apiKey,
		Model:   defaultAnthropicModel,
		BaseURL: anthropicAPIBase,
		client:  &http.Client{Timeout: anthropicRequestTimeout},
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string              `json:"model"`
	MaxTokens int                 `json:"max_tokens"`
	Messages  []anthropicMessage  `json:"messages"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	Content []anthropicContentBlock `json:"content"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends prompt as a single user message and returns the
// assistant's text response (spec §4.7: /exe `prose { ... }` bodies).
func (a *AnthropicProseAdapter) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:     a.Model,
		MaxTokens: 4096,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("platform: encoding prose request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("x-api-key", a.APIKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("platform: prose request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("platform: reading prose response: %w", err)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("platform: decoding prose response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("platform: prose adapter: %s", parsed.Error.Message)
	}

	var out bytes.Buffer
	for _, block := range parsed.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	return out.String(), nil
}
