package scanning

import "context"

// Credential names checked before a provider is called
const (
	CredentialGeminiKey       = "geminiApiKey"
	CredentialVisionKey       = "visionApiKey"
	CredentialDocumentKey     = "documentApiKey"
	CredentialManagedKey      = "managedServiceKey"
	CredentialManagedEndpoint = "managedServiceEndpoint"
	CredentialParseKey        = "parseApiKey"
)

// Response is what a provider returned for one document. Text-producing
// providers fill Text; providers that return structured data fill Fields
// with canonical keys.
type Response struct {
	Text   string
	Fields map[string]any
}

// Scanner defines the interface for a recognition provider
type Scanner interface {
	// Name is the provider tag, also reported as the record's ocrEngine
	Name() string
	// AcceptsPDF reports whether the provider consumes PDF bytes directly
	AcceptsPDF() bool
	// RequiredCredentials lists the credential names the provider needs
	RequiredCredentials() []string
	// Scan submits a prepared document with the extraction instruction
	Scan(ctx context.Context, data []byte, mimeType, instruction string) (*Response, error)
	// Close releases resources held by the scanner
	Close() error
}
