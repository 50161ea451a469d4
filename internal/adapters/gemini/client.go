// Package gemini implements the language-model port over the Google GenAI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/ewilliams-labs/moodlist/internal/core/domain"
	"github.com/ewilliams-labs/moodlist/internal/core/ports"
)

const (
	DefaultModel = "gemini-2.5-flash"

	providerName = "gemini"
)

// contentGenerator is the slice of *genai.Models this adapter uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client sends conversations to Gemini in JSON response mode.
type Client struct {
	models      contentGenerator
	model       string
	temperature float32
}

// compile-time interface assertion
var _ ports.LanguageModelClient = (*Client)(nil)

// NewClient creates a Gemini client for the Developer API.
func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Client{models: client.Models, model: model, temperature: 0.7}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// SetTemperature overrides the sampling temperature; negative values are ignored.
func (c *Client) SetTemperature(t float32) {
	if t >= 0 {
		c.temperature = t
	}
}

func (c *Client) Generate(ctx context.Context, instruction string, turns []domain.Turn) (string, error) {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := genai.Role(genai.RoleUser)
		if t.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, role))
	}
	if len(contents) == 0 {
		return "", &domain.UpstreamError{Provider: providerName, Kind: domain.KindFatal, Message: "no turns to send"}
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(instruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr(c.temperature),
	}

	resp, err := c.models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", classifyError(ctx, err)
	}
	if resp == nil {
		return "", &domain.UpstreamError{Provider: providerName, Kind: domain.KindFatal, Message: "empty response"}
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", &domain.UpstreamError{Provider: providerName, Kind: domain.KindFatal, Message: "empty response"}
	}
	return text, nil
}
