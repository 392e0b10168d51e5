package scanning

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/zombor/invoice-ocr/internal/invoice"
)

// ErrUnsupportedFormat is returned when input bytes match no known document format
var ErrUnsupportedFormat = errors.New("unsupported format")

// AdapterError describes a provider failure in terms the pipeline can map
// onto an error record.
type AdapterError struct {
	Kind     invoice.ErrorKind
	Provider string
	Message  string
	Err      error
}

func (e *AdapterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// statusError classifies a non-2xx provider response
func statusError(provider string, status int, body []byte) *AdapterError {
	detail := strings.TrimSpace(invoice.Excerpt(string(body), 300))
	msg := fmt.Sprintf("status %d", status)
	if detail != "" {
		msg = fmt.Sprintf("status %d: %s", status, detail)
	}

	kind := invoice.ServiceRejected
	if status == http.StatusTooManyRequests {
		kind = invoice.RateLimited
	}
	return &AdapterError{Kind: kind, Provider: provider, Message: msg}
}

// transportError wraps a failure to reach the provider at all
func transportError(provider, doing string, err error) *AdapterError {
	kind := invoice.Transport
	if errors.Is(err, context.DeadlineExceeded) {
		kind = invoice.Timeout
	}
	return &AdapterError{Kind: kind, Provider: provider, Message: doing, Err: err}
}

func rejected(provider, format string, args ...any) *AdapterError {
	return &AdapterError{Kind: invoice.ServiceRejected, Provider: provider, Message: fmt.Sprintf(format, args...)}
}
