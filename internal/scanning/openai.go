package scanning

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

const openAIProvider = "openai"

// OpenAIConfig configures the OpenAI vision scanner. BaseURL may point at
// any OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Client  *http.Client
}

// OpenAI implements the Scanner interface using an OpenAI vision model
type OpenAI struct {
	httpScanner
}

// NewOpenAI creates a new OpenAI Scanner instance
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	return &OpenAI{
		httpScanner: newHTTPScanner(openAIProvider, cfg.BaseURL, "https://api.openai.com/v1", cfg.APIKey, cfg.Model, "gpt-4o", cfg.Client),
	}
}

func (o *OpenAI) Name() string { return openAIProvider }

func (o *OpenAI) AcceptsPDF() bool { return false }

func (o *OpenAI) RequiredCredentials() []string {
	return []string{CredentialVisionKey}
}

// Scan sends the image inline as a data URI with the instruction
func (o *OpenAI) Scan(ctx context.Context, data []byte, mimeType, instruction string) (*Response, error) {
	requestID := uuid.NewString()
	slog.Info("Calling provider", "provider", openAIProvider, "model", o.model, "request_id", requestID, "bytes", len(data))

	req := chatRequest{
		Model:     o.model,
		MaxTokens: 4096,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []chatPart{
					{Type: "text", Text: instruction},
					{Type: "image_url", ImageURL: chatImageURL{URL: dataURI(mimeType, data)}},
				},
			},
		},
	}

	text, err := complete(ctx, &o.httpScanner, req)
	if err != nil {
		return nil, err
	}

	slog.Info("Provider responded", "provider", openAIProvider, "request_id", requestID, "chars", len(text))
	return &Response{Text: text}, nil
}

// Close is a no-op for the HTTP client
func (o *OpenAI) Close() error {
	return nil
}

func dataURI(mimeType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}
