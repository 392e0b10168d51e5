package scanning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/googleapis/gax-go/v2/apierror"
	"github.com/zombor/invoice-ocr/internal/invoice"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
)

const geminiProvider = "gemini"

// Gemini implements the Scanner interface using Google Gemini
type Gemini struct {
	apiKey    string
	modelName string
	timeout   time.Duration

	mu     sync.Mutex
	client *genai.Client
}

// NewGemini creates a new Gemini Scanner instance. The client is created on
// first use so a missing key is reported per request rather than at startup.
func NewGemini(apiKey string, modelName string) *Gemini {
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}
	return &Gemini{
		apiKey:    apiKey,
		modelName: modelName,
		timeout:   60 * time.Second,
	}
}

func (g *Gemini) Name() string { return geminiProvider }

func (g *Gemini) AcceptsPDF() bool { return false }

func (g *Gemini) RequiredCredentials() []string {
	return []string{CredentialGeminiKey}
}

func (g *Gemini) model(ctx context.Context) (*genai.GenerativeModel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client == nil {
		if g.apiKey == "" {
			return nil, &AdapterError{Kind: invoice.AuthMissing, Provider: geminiProvider, Message: "missing " + CredentialGeminiKey}
		}
		client, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
		if err != nil {
			return nil, transportError(geminiProvider, "creating gemini client", err)
		}
		g.client = client
	}

	model := g.client.GenerativeModel(g.modelName)
	model.SetTemperature(0)
	return model, nil
}

// Scan sends the document and instruction to Gemini and returns its text
func (g *Gemini) Scan(ctx context.Context, data []byte, mimeType, instruction string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	model, err := g.model(ctx)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	slog.Info("Calling provider", "provider", geminiProvider, "model", g.modelName, "request_id", requestID, "bytes", len(data))

	parts := []genai.Part{
		genai.Blob{MIMEType: mimeType, Data: data},
		genai.Text(instruction),
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, classifyGeminiError(err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, rejected(geminiProvider, "no response from gemini")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	slog.Info("Provider responded", "provider", geminiProvider, "request_id", requestID, "chars", text.Len())
	return &Response{Text: text.String()}, nil
}

// classifyGeminiError maps client errors onto adapter error kinds
func classifyGeminiError(err error) *AdapterError {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return &AdapterError{Kind: invoice.ServiceRejected, Provider: geminiProvider, Message: "content blocked", Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return transportError(geminiProvider, "generating content", err)
	}

	apiErr, ok := apierror.FromError(err)
	if !ok {
		return transportError(geminiProvider, "generating content", err)
	}

	status := apiErr.HTTPCode()
	if status <= 0 && apiErr.GRPCStatus() != nil {
		switch apiErr.GRPCStatus().Code() {
		case codes.ResourceExhausted:
			status = http.StatusTooManyRequests
		case codes.Unauthenticated:
			status = http.StatusUnauthorized
		case codes.PermissionDenied:
			status = http.StatusForbidden
		case codes.InvalidArgument:
			status = http.StatusBadRequest
		case codes.DeadlineExceeded:
			return &AdapterError{Kind: invoice.Timeout, Provider: geminiProvider, Message: "generating content", Err: err}
		default:
			status = http.StatusBadGateway
		}
	}

	kind := invoice.ServiceRejected
	if status == http.StatusTooManyRequests {
		kind = invoice.RateLimited
	}
	return &AdapterError{Kind: kind, Provider: geminiProvider, Message: fmt.Sprintf("status %d", status), Err: err}
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client == nil {
		return nil
	}
	err := g.client.Close()
	g.client = nil
	return err
}
