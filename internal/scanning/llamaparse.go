package scanning

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

const llamaParseProvider = "llamaparse"

// LlamaParseConfig configures the LlamaParse scanner. The parsed markdown is
// turned into JSON by an OpenAI-compatible chat model.
type LlamaParseConfig struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
	Poller  *Poller

	StructureAPIKey  string
	StructureBaseURL string
	StructureModel   string
}

// LlamaParse implements the Scanner interface using the LlamaParse parsing
// service. Documents are uploaded as a parsing job, polled until the job
// settles and the markdown result is then structured by a chat model.
type LlamaParse struct {
	parser     httpScanner
	structurer httpScanner
	poller     *Poller
}

// NewLlamaParse creates a new LlamaParse Scanner instance
func NewLlamaParse(cfg LlamaParseConfig) *LlamaParse {
	poller := cfg.Poller
	if poller == nil {
		poller = NewPoller(llamaParseProvider, DefaultPollAttempts, DefaultPollDelay)
	}
	return &LlamaParse{
		parser:     newHTTPScanner(llamaParseProvider, cfg.BaseURL, "https://api.cloud.llamaindex.ai/api/v1/parsing", cfg.APIKey, "", "", cfg.Client),
		structurer: newHTTPScanner(llamaParseProvider, cfg.StructureBaseURL, "https://api.openai.com/v1", cfg.StructureAPIKey, cfg.StructureModel, "gpt-4o", cfg.Client),
		poller:     poller,
	}
}

func (l *LlamaParse) Name() string { return llamaParseProvider }

func (l *LlamaParse) AcceptsPDF() bool { return true }

func (l *LlamaParse) RequiredCredentials() []string {
	return []string{CredentialParseKey, CredentialVisionKey}
}

type llamaJob struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

type llamaMarkdown struct {
	Markdown string `json:"markdown"`
}

// Scan parses the document with the instruction and structures the result
func (l *LlamaParse) Scan(ctx context.Context, data []byte, mimeType, instruction string) (*Response, error) {
	requestID := uuid.NewString()
	slog.Info("Calling provider", "provider", llamaParseProvider, "request_id", requestID, "bytes", len(data), "mime_type", mimeType)

	jobID, err := l.upload(ctx, data, mimeType, instruction)
	if err != nil {
		return nil, err
	}

	attempts, err := l.poller.Run(ctx, func(ctx context.Context) (PollState, error) {
		var job llamaJob
		if err := l.get(ctx, "/job/"+url.PathEscape(jobID), &job); err != nil {
			return PollFailed, err
		}
		switch strings.ToUpper(job.Status) {
		case "SUCCESS":
			return PollSucceeded, nil
		case "ERROR", "CANCELED":
			return PollFailed, rejected(llamaParseProvider, "parsing job %s: %s", strings.ToLower(job.Status), job.message())
		}
		return PollRunning, nil
	})
	if err != nil {
		return nil, err
	}

	var result llamaMarkdown
	if err := l.get(ctx, "/job/"+url.PathEscape(jobID)+"/result/markdown", &result); err != nil {
		return nil, err
	}
	if strings.TrimSpace(result.Markdown) == "" {
		return nil, rejected(llamaParseProvider, "parsing job %s returned no text", jobID)
	}
	slog.Info("Parsed document", "provider", llamaParseProvider, "request_id", requestID, "job_id", jobID, "attempts", attempts, "chars", len(result.Markdown))

	text, err := complete(ctx, &l.structurer, chatRequest{
		Model: l.structurer.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []chatPart{{
				Type: "text",
				Text: instruction + "\n\nDocument text:\n\n" + result.Markdown,
			}},
		}},
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Provider responded", "provider", llamaParseProvider, "request_id", requestID, "chars", len(text))
	return &Response{Text: text}, nil
}

func (l *LlamaParse) upload(ctx context.Context, data []byte, mimeType, instruction string) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fields := [][2]string{
		{"parsing_instruction", instruction},
		{"result_type", "markdown"},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return "", fmt.Errorf("writing %s field: %w", f[0], err)
		}
	}
	part, err := w.CreateFormFile("file", "document"+uploadExtension(mimeType))
	if err != nil {
		return "", fmt.Errorf("creating file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("writing file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("closing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.parser.baseURL+"/upload", &body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+l.parser.apiKey)

	var job llamaJob
	if err := doJSON(l.parser.client, llamaParseProvider, req, &job); err != nil {
		return "", err
	}
	if job.ID == "" {
		return "", rejected(llamaParseProvider, "upload returned no job id")
	}

	slog.Info("Submitted parsing job", "provider", llamaParseProvider, "job_id", job.ID)
	return job.ID, nil
}

func (l *LlamaParse) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.parser.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+l.parser.apiKey)
	req.Header.Set("Accept", "application/json")
	return doJSON(l.parser.client, llamaParseProvider, req, out)
}

func (j llamaJob) message() string {
	if j.ErrorMessage == "" {
		return "unknown error"
	}
	return j.ErrorMessage
}

// Close is a no-op for the HTTP client
func (l *LlamaParse) Close() error {
	return nil
}

func uploadExtension(mimeType string) string {
	switch mimeType {
	case mimePDF:
		return ".pdf"
	case mimePNG:
		return ".png"
	case "image/jpeg":
		return ".jpg"
	}
	return ""
}
