// Package planner implements the C3 LLM Planner: it turns a user request
// and a set of repository facts into a selected command, that command's
// arguments, and the natural-language text posted back to the user.
package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/worldline-go/klient"
)

// Message is one turn of a chat-style completion request.
type Message struct {
	Role    string
	Content string
}

// Completion is the single non-streaming text-completion primitive every
// planner operation is built on. It deliberately has no notion of tool
// calls or streaming: the planner gets everything it needs out of plain
// text via the answer-delimiter contract in extraction.go.
type Completion interface {
	Complete(ctx context.Context, system string, messages []Message) (string, error)
}

const defaultAnthropicBaseURL = "https://api.anthropic.com"
const anthropicVersion = "2023-06-01"
const defaultMaxTokens = 4096

// AnthropicCompletion is the Completion backend used in production,
// talking to the Anthropic Messages API over klient.
type AnthropicCompletion struct {
	model  string
	client *klient.Client
}

// NewAnthropicCompletion constructs a Completion backend. baseURL and
// proxy may be empty; insecureSkipVerify should only be set for local
// development against a self-signed endpoint.
func NewAnthropicCompletion(apiKey, model, baseURL, proxy string, insecureSkipVerify bool) (*AnthropicCompletion, error) {
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}

	opts := []klient.OptionClientFn{
		klient.WithBaseURL(baseURL),
		klient.WithLogger(slog.Default()),
		klient.WithHeaderSet(http.Header{
			"X-Api-Key":         []string{apiKey},
			"Anthropic-Version": []string{anthropicVersion},
			"Content-Type":      []string{"application/json"},
		}),
	}
	if proxy != "" {
		opts = append(opts, klient.WithProxy(proxy))
	}
	if insecureSkipVerify {
		opts = append(opts, klient.WithInsecureSkipVerify(true))
	}

	client, err := klient.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("build anthropic client: %w", err)
	}

	return &AnthropicCompletion{model: model, client: client}, nil
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type anthropicResponse struct {
	Type       string                  `json:"type"`
	Error      anthropicError          `json:"error"`
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
}

// Complete issues a single non-streaming completion request and returns
// the concatenated text content of the response.
func (a *AnthropicCompletion) Complete(ctx context.Context, system string, messages []Message) (string, error) {
	reqBody := anthropicRequest{
		Model:     a.model,
		MaxTokens: defaultMaxTokens,
		System:    system,
	}
	for _, m := range messages {
		reqBody.Messages = append(reqBody.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/v1/messages", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}

	var result anthropicResponse
	if err := a.client.Do(req, func(r *http.Response) error {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &result); err != nil {
			return fmt.Errorf("decode completion response: %w (body: %s)", err, string(data))
		}
		return nil
	}); err != nil {
		return "", err
	}

	if result.Type == "error" {
		return "", fmt.Errorf("anthropic completion error: %s", result.Error.Message)
	}

	var text string
	for _, block := range result.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}
