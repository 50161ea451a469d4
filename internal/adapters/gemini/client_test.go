package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"google.golang.org/genai"

	"github.com/ewilliams-labs/moodlist/internal/core/domain"
)

type fakeModels struct {
	resp *genai.GenerateContentResponse
	err  error

	gotModel    string
	gotContents []*genai.Content
	gotConfig   *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.gotModel = model
	f.gotContents = contents
	f.gotConfig = config
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func TestClient_Generate(t *testing.T) {
	fake := &fakeModels{resp: textResponse(" {\"ready\": false} ")}
	c := &Client{models: fake, model: "gemini-test", temperature: 0.7}

	turns := []domain.Turn{
		{Role: domain.RoleUser, Text: "hi"},
		{Role: domain.RoleAssistant, Text: "hello, how are you?"},
		{Role: domain.RoleUser, Text: "tired"},
	}
	got, err := c.Generate(context.Background(), "contract", turns)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != `{"ready": false}` {
		t.Fatalf("text: got %q", got)
	}
	if fake.gotModel != "gemini-test" {
		t.Fatalf("model: got %q", fake.gotModel)
	}
	if len(fake.gotContents) != 3 {
		t.Fatalf("contents: got %d, want 3", len(fake.gotContents))
	}
	if fake.gotContents[1].Role != "model" || fake.gotContents[2].Role != "user" {
		t.Fatalf("roles: got %q %q", fake.gotContents[1].Role, fake.gotContents[2].Role)
	}
	if fake.gotConfig.ResponseMIMEType != "application/json" {
		t.Fatalf("mime: got %q", fake.gotConfig.ResponseMIMEType)
	}
	if fake.gotConfig.SystemInstruction == nil || fake.gotConfig.SystemInstruction.Parts[0].Text != "contract" {
		t.Fatalf("system instruction not set")
	}
}

func TestClient_GenerateEmpty(t *testing.T) {
	c := &Client{models: &fakeModels{resp: textResponse("   ")}, model: "m"}
	_, err := c.Generate(context.Background(), "contract", []domain.Turn{{Role: domain.RoleUser, Text: "x"}})
	if domain.KindOf(err) != domain.KindFatal {
		t.Fatalf("kind: got %s, want fatal", domain.KindOf(err))
	}

	_, err = c.Generate(context.Background(), "contract", nil)
	if domain.KindOf(err) != domain.KindFatal {
		t.Fatalf("no turns kind: got %s, want fatal", domain.KindOf(err))
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantKind  domain.ErrorKind
		wantAfter time.Duration
		wantMsg   string
	}{
		{
			name: "quota with retry info",
			err: genai.APIError{
				Code:    429,
				Status:  "RESOURCE_EXHAUSTED",
				Message: "You exceeded your current quota.",
				Details: []map[string]any{
					{"@type": "type.googleapis.com/google.rpc.QuotaFailure"},
					{"@type": "type.googleapis.com/google.rpc.RetryInfo", "retryDelay": "21s"},
				},
			},
			wantKind:  domain.KindQuota,
			wantAfter: 21 * time.Second,
			wantMsg:   "You exceeded your current quota.",
		},
		{
			name:      "quota hint in message",
			err:       fmt.Errorf("wrapped: %w", genai.APIError{Code: 429, Message: "Quota exceeded. Please retry in 4.5s."}),
			wantKind:  domain.KindQuota,
			wantAfter: 4500 * time.Millisecond,
			wantMsg:   "Quota exceeded. Please retry in 4.5s.",
		},
		{
			name:     "server error",
			err:      genai.APIError{Code: 503, Message: "overloaded"},
			wantKind: domain.KindTransient,
			wantMsg:  "overloaded",
		},
		{
			name:     "bad request",
			err:      genai.APIError{Code: 400, Message: "invalid"},
			wantKind: domain.KindFatal,
			wantMsg:  "invalid",
		},
		{
			name:     "deadline",
			err:      context.DeadlineExceeded,
			wantKind: domain.KindTimeout,
		},
		{
			name:     "quota text without api error",
			err:      errors.New("rpc error: 429 quota"),
			wantKind: domain.KindQuota,
			wantMsg:  "rpc error: 429 quota",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError(context.Background(), tt.err)
			if got.Kind != tt.wantKind {
				t.Fatalf("kind: got %s, want %s", got.Kind, tt.wantKind)
			}
			if got.RetryAfter != tt.wantAfter {
				t.Fatalf("retry after: got %v, want %v", got.RetryAfter, tt.wantAfter)
			}
			if got.Message != tt.wantMsg {
				t.Fatalf("message: got %q, want %q", got.Message, tt.wantMsg)
			}
		})
	}
}

// TestClient_Generate_Integration calls the live Gemini API.
// This test is skipped unless RUN_AI_TESTS=true is set.
func TestClient_Generate_Integration(t *testing.T) {
	if os.Getenv("RUN_AI_TESTS") != "true" {
		t.Skip("Skipping AI-dependent test (set RUN_AI_TESTS=true to enable)")
	}
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("GEMINI_API_KEY not set")
	}

	c, err := NewClient(context.Background(), apiKey, os.Getenv("GEMINI_MODEL"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	out, err := c.Generate(context.Background(), `Reply with {"ready": false, "reply": string}.`,
		[]domain.Turn{{Role: domain.RoleUser, Text: "hello"}})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out == "" {
		t.Fatalf("expected output")
	}
}
