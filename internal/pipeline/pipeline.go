package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/zombor/invoice-ocr/internal/invoice"
	"github.com/zombor/invoice-ocr/internal/scanning"
)

// State is a step of a single extraction
type State string

const (
	Received       State = "Received"
	Preprocessed   State = "Preprocessed"
	ProviderCalled State = "ProviderCalled"
	ParsedOk       State = "ParsedOk"
	ParsedFailed   State = "ParsedFailed"
	Normalized     State = "Normalized"
	Rendered       State = "Rendered"
	Returned       State = "Returned"
)

// Credentials maps credential names to configured values
type Credentials map[string]string

// Missing returns the names that have no non-blank value
func (c Credentials) Missing(names []string) []string {
	var missing []string
	for _, name := range names {
		if strings.TrimSpace(c[name]) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// RealTimeSource uses the system clock
type RealTimeSource struct{}

// Now returns the current time
func (RealTimeSource) Now() time.Time {
	return time.Now()
}

// Preparer converts uploaded bytes for a provider
type Preparer interface {
	Prepare(data []byte, declaredMimeType, filename string, acceptsPDF bool) (*scanning.Prepared, error)
}

// Pipeline runs one provider's extraction from upload bytes to a rendered
// record. It holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	scanner     scanning.Scanner
	preparer    Preparer
	credentials Credentials
	timeSource  TimeSource
}

// New creates a Pipeline. A nil timeSource uses the system clock.
func New(scanner scanning.Scanner, preparer Preparer, credentials Credentials, timeSource TimeSource) *Pipeline {
	if timeSource == nil {
		timeSource = RealTimeSource{}
	}
	if credentials == nil {
		credentials = Credentials{}
	}
	return &Pipeline{
		scanner:     scanner,
		preparer:    preparer,
		credentials: credentials,
		timeSource:  timeSource,
	}
}

// Provider is the tag of the wrapped scanner
func (p *Pipeline) Provider() string {
	return p.scanner.Name()
}

// MissingCredentials lists credentials the provider needs but lacks
func (p *Pipeline) MissingCredentials() []string {
	return p.credentials.Missing(p.scanner.RequiredCredentials())
}

// Process extracts an invoice record from data. It always returns a fully
// populated record; failures are described by the record's error metadata.
func (p *Pipeline) Process(ctx context.Context, data []byte, declaredMimeType, filename, documentType string) (rec invoice.Record) {
	start := p.timeSource.Now()
	provider := p.scanner.Name()
	meta := func() invoice.Meta {
		return invoice.Meta{
			Engine:         provider,
			ProcessingTime: p.timeSource.Now().Sub(start),
			Timestamp:      start,
			Classification: classification(documentType),
		}
	}
	fail := func(kind invoice.ErrorKind, message string) invoice.Record {
		slog.Warn("Extraction failed", "provider", provider, "kind", kind, "error", message)
		return invoice.NewErrorRecord(kind, message, meta())
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recovered from panic during extraction", "provider", provider, "panic", r, "stack", string(debug.Stack()))
			rec = fail(invoice.UnexpectedInternal, fmt.Sprintf("panic: %v", r))
		}
	}()

	p.enter(Received, provider, "bytes", len(data), "mime_type", declaredMimeType, "filename", filename)
	if len(data) == 0 {
		return fail(invoice.UnsupportedFormat, "empty document")
	}

	if missing := p.MissingCredentials(); len(missing) > 0 {
		return fail(invoice.AuthMissing, fmt.Sprintf("missing credentials for %s: %s", provider, strings.Join(missing, ", ")))
	}

	prepared, err := p.preparer.Prepare(data, declaredMimeType, filename, p.scanner.AcceptsPDF())
	if err != nil {
		return fail(kindOf(err), err.Error())
	}
	p.enter(Preprocessed, provider, "mime_type", prepared.MimeType, "converted", prepared.Converted, "pages", prepared.Pages)

	resp, err := p.scanner.Scan(ctx, prepared.Data, prepared.MimeType, scanning.Instruction(documentType))
	if err != nil {
		return fail(kindOf(err), err.Error())
	}
	if resp == nil {
		return fail(invoice.UnexpectedInternal, "provider returned no response")
	}
	p.enter(ProviderCalled, provider, "structured", resp.Fields != nil, "chars", len(resp.Text))

	if resp.Fields != nil {
		rec = invoice.NormalizeFields(resp.Fields, meta())
		p.enter(ParsedOk, provider)
	} else {
		rec = invoice.NormalizeText(scanning.ExtractJSON(resp.Text), meta())
		if rec.Failed() {
			p.enter(ParsedFailed, provider, "error", rec.ProcessingMetadata.Error)
			return rec
		}
		p.enter(ParsedOk, provider)
	}
	p.enter(Normalized, provider, "line_items", len(rec.LineItems))
	p.enter(Rendered, provider, "markdown_chars", len(rec.MarkdownOutput))

	if err := invoice.Validate(rec); err != nil {
		slog.Warn("Record failed schema validation", "provider", provider, "error", err)
	}

	p.enter(Returned, provider, "duration_ms", rec.ProcessingMetadata.ProcessingTime)
	return rec
}

func (p *Pipeline) enter(state State, provider string, args ...any) {
	slog.Debug("Pipeline state", append([]any{"state", state, "provider", provider}, args...)...)
}

// kindOf maps an error from preprocessing or a provider onto an error kind
func kindOf(err error) invoice.ErrorKind {
	var adapterErr *scanning.AdapterError
	switch {
	case errors.Is(err, scanning.ErrUnsupportedFormat):
		return invoice.UnsupportedFormat
	case errors.As(err, &adapterErr):
		return adapterErr.Kind
	case errors.Is(err, context.DeadlineExceeded):
		return invoice.Timeout
	case errors.Is(err, context.Canceled):
		return invoice.Transport
	}
	return invoice.UnexpectedInternal
}

func classification(documentType string) string {
	if strings.EqualFold(strings.TrimSpace(documentType), "receipt") {
		return "receipt"
	}
	return "invoice"
}
