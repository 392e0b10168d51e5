package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/zombor/invoice-ocr/internal/invoice"
)

var (
	// ErrUnknownProvider is returned when no pipeline is registered for a provider
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrEmptyDocument is returned for uploads without content
	ErrEmptyDocument = errors.New("empty document")
)

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

const maxFilenameBase = 50

// IDGenerator generates document IDs
type IDGenerator interface {
	Generate() string
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

// Extractor runs one provider's extraction
type Extractor interface {
	Provider() string
	MissingCredentials() []string
	Process(ctx context.Context, data []byte, declaredMimeType, filename, documentType string) invoice.Record
}

// Upload is a document received from a client
type Upload struct {
	Filename     string
	ContentType  string
	DocumentType string
	Data         []byte
}

// Extraction is the outcome of one upload
type Extraction struct {
	ID       string
	StoredAs string
	Record   invoice.Record
}

// ProviderStatus reports whether a provider can be used
type ProviderStatus struct {
	Name               string   `json:"name"`
	Ready              bool     `json:"ready"`
	MissingCredentials []string `json:"missingCredentials"`
}

// Service routes uploads to provider pipelines and keeps the originals
type Service struct {
	extractors  map[string]Extractor
	order       []string
	storage     Storage
	idGenerator IDGenerator
}

// NewService creates a Service using UUID document IDs. storage may be nil.
func NewService(extractors []Extractor, storage Storage) *Service {
	return NewServiceWithDeps(extractors, storage, uuidGenerator{})
}

// NewServiceWithDeps creates a Service with a custom ID generator for testing
func NewServiceWithDeps(extractors []Extractor, storage Storage, idGen IDGenerator) *Service {
	s := &Service{
		extractors:  make(map[string]Extractor, len(extractors)),
		storage:     storage,
		idGenerator: idGen,
	}
	for _, e := range extractors {
		name := e.Provider()
		if _, ok := s.extractors[name]; !ok {
			s.order = append(s.order, name)
		}
		s.extractors[name] = e
	}
	return s
}

// Providers lists the registered providers in registration order
func (s *Service) Providers() []ProviderStatus {
	statuses := make([]ProviderStatus, 0, len(s.order))
	for _, name := range s.order {
		missing := s.extractors[name].MissingCredentials()
		if missing == nil {
			missing = []string{}
		}
		statuses = append(statuses, ProviderStatus{
			Name:               name,
			Ready:              len(missing) == 0,
			MissingCredentials: missing,
		})
	}
	return statuses
}

// Extract stores the original upload and runs it through the provider's
// pipeline. Only an unknown provider or an empty upload is an error; every
// extraction failure is reported inside the returned record.
func (s *Service) Extract(ctx context.Context, provider string, upload Upload) (*Extraction, error) {
	extractor, ok := s.extractors[provider]
	if !ok {
		return nil, fmt.Errorf("%q: %w", provider, ErrUnknownProvider)
	}
	if len(upload.Data) == 0 {
		return nil, ErrEmptyDocument
	}

	id := s.idGenerator.Generate()
	slog.Info("Extracting document",
		"request_id", id,
		"provider", provider,
		"filename", upload.Filename,
		"content_type", upload.ContentType,
		"file_size", len(upload.Data),
	)

	var stored string
	if s.storage != nil {
		name, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(upload.Filename)), upload.Data)
		if err != nil {
			slog.Warn("Failed to store original document", "request_id", id, "error", err)
		} else {
			stored = name
		}
	}

	rec := extractor.Process(ctx, upload.Data, upload.ContentType, upload.Filename, upload.DocumentType)
	if rec.Failed() {
		slog.Warn("Extraction returned an error record", "request_id", id, "provider", provider, "error", rec.ProcessingMetadata.Error)
	} else {
		slog.Info("Extraction complete", "request_id", id, "provider", provider, "processing_ms", rec.ProcessingMetadata.ProcessingTime)
	}

	return &Extraction{ID: id, StoredAs: stored, Record: rec}, nil
}

// GetDocument returns a stored original upload
func (s *Service) GetDocument(name string) ([]byte, error) {
	if s.storage == nil {
		return nil, errors.New("document storage is disabled")
	}
	data, err := s.storage.Get(name)
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return data, nil
}

// sanitizeFilename strips characters that are unsafe in stored names and
// shortens long phone-generated names
func sanitizeFilename(filename string) string {
	filename = filepath.Base(filename)
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "." || unsafeFilenameChars.MatchString(strings.TrimPrefix(ext, ".")) {
		ext = ""
	}
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(repeatedSpaces.ReplaceAllString(base, " "))
	if len(base) > maxFilenameBase {
		base = base[:maxFilenameBase]
	}
	if base == "" {
		base = "document"
	}
	return base + ext
}
