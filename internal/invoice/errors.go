package invoice

import "fmt"

// ErrorKind tags a failed extraction with the stage and cause that produced it.
type ErrorKind string

const (
	UnsupportedFormat  ErrorKind = "UnsupportedFormat"
	AuthMissing        ErrorKind = "AuthMissing"
	Transport          ErrorKind = "Transport"
	RateLimited        ErrorKind = "RateLimited"
	ServiceRejected    ErrorKind = "ServiceRejected"
	Timeout            ErrorKind = "Timeout"
	JSONDecodeFailure  ErrorKind = "JsonDecodeFailure"
	UnexpectedInternal ErrorKind = "UnexpectedInternal"
)

// excerptLimit bounds how much offending provider text an error record keeps
const excerptLimit = 200

// NewErrorRecord builds a fully populated record describing a failure.
// Every field carries its default so callers never see a different shape.
func NewErrorRecord(kind ErrorKind, message string, meta Meta) Record {
	rec := Record{
		LineItems:          []LineItem{},
		HandwrittenNotes:   []HandwrittenNote{},
		ConfidenceScores:   emptyConfidence(),
		ProcessingMetadata: meta.metadata(),
	}
	rec.ProcessingMetadata.Error = fmt.Sprintf("%s: %s", kind, message)
	rec.MarkdownOutput = Render(rec)
	return rec
}

func decodeFailureRecord(err error, raw string, meta Meta) Record {
	rec := NewErrorRecord(JSONDecodeFailure, fmt.Sprintf("failed to parse JSON from %s response: %v", engineLabel(meta.Engine), err), meta)
	rec.AdditionalInfo = "Raw response excerpt: " + Excerpt(raw, excerptLimit)
	rec.MarkdownOutput = Render(rec)
	return rec
}

// Excerpt shortens s to at most limit runes, marking the cut with an ellipsis
func Excerpt(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}

func engineLabel(engine string) string {
	if engine == "" {
		return "provider"
	}
	return engine
}
