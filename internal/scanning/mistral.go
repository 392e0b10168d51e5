package scanning

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/google/uuid"
)

const mistralProvider = "mistral"

// MistralConfig configures the Mistral document scanner
type MistralConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Client  *http.Client
}

// Mistral implements the Scanner interface using Mistral's document
// understanding. PDFs are uploaded, read through a signed URL and deleted
// again once the chat completes; images are sent inline.
type Mistral struct {
	httpScanner
}

// NewMistral creates a new Mistral Scanner instance
func NewMistral(cfg MistralConfig) *Mistral {
	return &Mistral{
		httpScanner: newHTTPScanner(mistralProvider, cfg.BaseURL, "https://api.mistral.ai/v1", cfg.APIKey, cfg.Model, "mistral-small-latest", cfg.Client),
	}
}

func (m *Mistral) Name() string { return mistralProvider }

func (m *Mistral) AcceptsPDF() bool { return true }

func (m *Mistral) RequiredCredentials() []string {
	return []string{CredentialDocumentKey}
}

type mistralFile struct {
	ID string `json:"id"`
}

type mistralSignedURL struct {
	URL string `json:"url"`
}

// Scan reads the document with the instruction
func (m *Mistral) Scan(ctx context.Context, data []byte, mimeType, instruction string) (*Response, error) {
	requestID := uuid.NewString()
	slog.Info("Calling provider", "provider", mistralProvider, "model", m.model, "request_id", requestID, "bytes", len(data), "mime_type", mimeType)

	content := []chatPart{{Type: "text", Text: instruction}}
	if mimeType == mimePDF {
		fileID, err := m.upload(ctx, data, fmt.Sprintf("invoice_document_%s.pdf", uuid.NewString()))
		if err != nil {
			return nil, err
		}
		defer m.deleteFile(context.WithoutCancel(ctx), fileID, requestID)

		signedURL, err := m.signedURL(ctx, fileID)
		if err != nil {
			return nil, err
		}
		content = append(content, chatPart{Type: "document_url", DocumentURL: signedURL})
	} else {
		content = append(content, chatPart{Type: "image_url", ImageURL: dataURI(mimeType, data)})
	}

	text, err := complete(ctx, &m.httpScanner, chatRequest{
		Model:    m.model,
		Messages: []chatMessage{{Role: "user", Content: content}},
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Provider responded", "provider", mistralProvider, "request_id", requestID, "chars", len(text))
	return &Response{Text: text}, nil
}

func (m *Mistral) upload(ctx context.Context, data []byte, filename string) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("purpose", "ocr"); err != nil {
		return "", fmt.Errorf("writing purpose field: %w", err)
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("creating file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("writing file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("closing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/files", &body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	var file mistralFile
	if err := doJSON(m.client, mistralProvider, req, &file); err != nil {
		return "", err
	}
	if file.ID == "" {
		return "", rejected(mistralProvider, "upload returned no file id")
	}

	slog.Info("Uploaded document", "provider", mistralProvider, "file_id", file.ID, "filename", filename)
	return file.ID, nil
}

func (m *Mistral) signedURL(ctx context.Context, fileID string) (string, error) {
	u := fmt.Sprintf("%s/files/%s/url?%s", m.baseURL, url.PathEscape(fileID), url.Values{"expiry": {"1"}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	var signed mistralSignedURL
	if err := doJSON(m.client, mistralProvider, req, &signed); err != nil {
		return "", err
	}
	if signed.URL == "" {
		return "", rejected(mistralProvider, "no signed url for file %s", fileID)
	}
	return signed.URL, nil
}

// deleteFile removes an uploaded document. Failures are logged only.
func (m *Mistral) deleteFile(ctx context.Context, fileID, requestID string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, fmt.Sprintf("%s/files/%s", m.baseURL, url.PathEscape(fileID)), nil)
	if err != nil {
		slog.Warn("Failed to delete uploaded document", "provider", mistralProvider, "file_id", fileID, "request_id", requestID, "error", err)
		return
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	if err := doJSON(m.client, mistralProvider, req, nil); err != nil {
		slog.Warn("Failed to delete uploaded document", "provider", mistralProvider, "file_id", fileID, "request_id", requestID, "error", err)
		return
	}
	slog.Info("Deleted uploaded document", "provider", mistralProvider, "file_id", fileID, "request_id", requestID)
}

// Close is a no-op for the HTTP client
func (m *Mistral) Close() error {
	return nil
}
