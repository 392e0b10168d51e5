package scanning

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// chatRequest is the chat completions request body shared by the
// OpenAI-compatible providers
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string     `json:"role"`
	Content []chatPart `json:"content"`
}

type chatPart struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	ImageURL    any    `json:"image_url,omitempty"`
	DocumentURL string `json:"document_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (r *chatResponse) text() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// complete posts a chat request and returns the first choice's text
func complete(ctx context.Context, s *httpScanner, req chatRequest) (string, error) {
	var resp chatResponse
	headers := map[string]string{"Authorization": "Bearer " + s.apiKey}
	if err := postJSON(ctx, s.client, s.provider, s.baseURL+"/chat/completions", headers, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", rejected(s.provider, "no choices in response")
	}
	return resp.text(), nil
}

// httpScanner holds what every key-authenticated HTTP provider needs
type httpScanner struct {
	provider string
	baseURL  string
	apiKey   string
	model    string
	client   *http.Client
}

func newHTTPScanner(provider, baseURL, defaultBaseURL, apiKey, model, defaultModel string, client *http.Client) httpScanner {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = defaultModel
	}
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	return httpScanner{
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		model:    model,
		client:   client,
	}
}
