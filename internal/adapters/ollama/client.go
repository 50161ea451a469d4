// Package ollama provides a language-model adapter for a local Ollama instance.
// It sends the system contract plus the conversation to /api/chat in JSON mode
// and returns the assistant's raw content.
package ollama

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/ewilliams-labs/moodlist/internal/core/domain"
	"github.com/ewilliams-labs/moodlist/internal/core/ports"
)

const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama3.1:8b"

	providerName = "ollama"
)

type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// compile-time interface assertion
var _ ports.LanguageModelClient = (*Client)(nil)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error,omitempty"`
}

func NewClient(baseURL, model string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) Generate(ctx context.Context, instruction string, turns []domain.Turn) (string, error) {
	messages := make([]chatMessage, 0, len(turns)+1)
	messages = append(messages, chatMessage{Role: "system", Content: instruction})
	for _, t := range turns {
		messages = append(messages, chatMessage{Role: string(t.Role), Content: t.Text})
	}

	payload := chatRequest{
		Model:    c.model,
		Stream:   false,
		Format:   "json",
		Messages: messages,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ollama: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := domain.KindUnavailable
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			kind = domain.KindTimeout
		}
		return "", &domain.UpstreamError{Provider: providerName, Kind: kind, Err: err}
	}
	defer resp.Body.Close()

	var parsed chatResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", statusError(resp.StatusCode, parsed.Error)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("ollama: decode response: %w", decodeErr)
	}
	if parsed.Error != "" {
		return "", &domain.UpstreamError{Provider: providerName, Kind: domain.KindFatal, Message: parsed.Error}
	}

	content := strings.TrimSpace(parsed.Message.Content)
	if content == "" {
		return "", &domain.UpstreamError{Provider: providerName, Kind: domain.KindFatal, Message: "empty response"}
	}
	return content, nil
}

func statusError(status int, msg string) *domain.UpstreamError {
	e := &domain.UpstreamError{Provider: providerName, Status: status, Message: msg}
	switch {
	case status == http.StatusTooManyRequests:
		e.Kind = domain.KindQuota
		if e.Message == "" {
			e.Message = "ollama is overloaded"
		}
	case status == http.StatusNotFound:
		e.Kind = domain.KindNotFound
	case status >= http.StatusInternalServerError:
		e.Kind = domain.KindTransient
	default:
		e.Kind = domain.KindFatal
	}
	return e
}
