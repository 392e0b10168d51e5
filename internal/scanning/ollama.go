package scanning

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const ollamaProvider = "ollama"

// Ollama implements the Scanner interface using a local Ollama server
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates a new Ollama Scanner instance
// Vision models that read invoices reasonably well:
//   - llava:1.6
//   - qwen2-vl:7b (good OCR capabilities)
//   - llama3.2-vision
func NewOllama(baseURL string, modelName string) *Ollama {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}

	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   modelName,
		client: &http.Client{
			Timeout: 120 * time.Second, // vision models on local hardware are slow
		},
	}
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

func (o *Ollama) Name() string { return ollamaProvider }

func (o *Ollama) AcceptsPDF() bool { return false }

func (o *Ollama) RequiredCredentials() []string { return nil }

// Scan sends the image and instruction to Ollama's chat API
func (o *Ollama) Scan(ctx context.Context, data []byte, mimeType, instruction string) (*Response, error) {
	requestID := uuid.NewString()
	slog.Info("Calling provider", "provider", ollamaProvider, "model", o.model, "request_id", requestID, "bytes", len(data))

	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Format: "json",
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You are an expert at reading and extracting information from invoices and receipts. You must carefully read all text in images and extract accurate information.",
			},
			{
				Role:    "user",
				Content: instruction,
				Images:  []string{base64.StdEncoding.EncodeToString(data)},
			},
		},
	}

	var chatResp ollamaChatResponse
	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	if err := postJSON(ctx, o.client, ollamaProvider, url, nil, reqBody, &chatResp); err != nil {
		return nil, err
	}

	slog.Info("Provider responded", "provider", ollamaProvider, "request_id", requestID, "chars", len(chatResp.Message.Content))
	return &Response{Text: chatResp.Message.Content}, nil
}

// Close is a no-op for the HTTP client
func (o *Ollama) Close() error {
	return nil
}
