package scanning

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/go-autorest/autorest"
	"github.com/google/uuid"
)

const (
	azureProvider = "ms-azure"

	azureModelPath       = "documentModels/prebuilt-invoice:analyze"
	azureAPIVersion      = "2024-11-30"
	azureLegacyVersion   = "2023-07-31"
	azureOperationHeader = "Operation-Location"
)

// AzureConfig configures the Azure Document Intelligence scanner
type AzureConfig struct {
	Endpoint   string
	APIKey     string
	APIVersion string
	Client     *http.Client
	Poller     *Poller
}

// Azure implements the Scanner interface using the Azure Document
// Intelligence prebuilt invoice model. The service returns structured
// fields, so the instruction is not used.
type Azure struct {
	endpoint   string
	apiVersion string
	legacy     bool
	authorizer *autorest.CognitiveServicesAuthorizer
	client     *http.Client
	poller     *Poller
}

// NewAzure creates a new Azure Scanner instance
func NewAzure(cfg AzureConfig) *Azure {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	legacy := strings.Contains(strings.ToLower(endpoint), "formrecognizer")

	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = azureAPIVersion
		if legacy {
			apiVersion = azureLegacyVersion
		}
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	poller := cfg.Poller
	if poller == nil {
		poller = NewPoller(azureProvider, DefaultPollAttempts, DefaultPollDelay)
	}

	return &Azure{
		endpoint:   endpoint,
		apiVersion: apiVersion,
		legacy:     legacy,
		authorizer: autorest.NewCognitiveServicesAuthorizer(cfg.APIKey),
		client:     client,
		poller:     poller,
	}
}

func (a *Azure) Name() string { return azureProvider }

func (a *Azure) AcceptsPDF() bool { return true }

func (a *Azure) RequiredCredentials() []string {
	return []string{CredentialManagedKey, CredentialManagedEndpoint}
}

type azureOperation struct {
	Status        string              `json:"status"`
	Error         *azureError         `json:"error"`
	AnalyzeResult *azureAnalyzeResult `json:"analyzeResult"`
}

type azureError struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []azureError `json:"details"`
}

type azureAnalyzeResult struct {
	Content   string          `json:"content"`
	Documents []azureDocument `json:"documents"`
	Styles    []azureStyle    `json:"styles"`
}

type azureDocument struct {
	DocType    string                `json:"docType"`
	Fields     map[string]azureField `json:"fields"`
	Confidence float64               `json:"confidence"`
}

type azureField struct {
	Type          string                `json:"type"`
	Content       string                `json:"content"`
	ValueString   string                `json:"valueString"`
	ValueDate     string                `json:"valueDate"`
	ValueNumber   *float64              `json:"valueNumber"`
	ValueCurrency *azureCurrency        `json:"valueCurrency"`
	ValueArray    []azureField          `json:"valueArray"`
	ValueObject   map[string]azureField `json:"valueObject"`
	Confidence    *float64              `json:"confidence"`
}

type azureCurrency struct {
	Amount       float64 `json:"amount"`
	CurrencyCode string  `json:"currencyCode"`
}

type azureStyle struct {
	IsHandwritten *bool       `json:"isHandwritten"`
	Confidence    float64     `json:"confidence"`
	Spans         []azureSpan `json:"spans"`
}

type azureSpan struct {
	Offset int `json:"offset"`
	Length int `json:"length"`
}

// Scan submits the document for analysis and polls until the result is ready
func (a *Azure) Scan(ctx context.Context, data []byte, mimeType, _ string) (*Response, error) {
	requestID := uuid.NewString()
	slog.Info("Calling provider", "provider", azureProvider, "request_id", requestID, "bytes", len(data), "api_version", a.apiVersion)

	operation, err := a.analyze(ctx, data)
	if err != nil {
		return nil, err
	}

	var result azureOperation
	attempts, err := a.poller.Run(ctx, func(ctx context.Context) (PollState, error) {
		result = azureOperation{}
		if err := a.fetch(ctx, operation, &result); err != nil {
			return PollFailed, err
		}
		switch strings.ToLower(result.Status) {
		case "succeeded":
			return PollSucceeded, nil
		case "failed":
			return PollFailed, rejected(azureProvider, "analysis failed: %s", result.errorMessage())
		}
		return PollRunning, nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Provider responded", "provider", azureProvider, "request_id", requestID, "attempts", attempts)
	if result.AnalyzeResult == nil {
		return nil, rejected(azureProvider, "analysis succeeded without a result")
	}
	return &Response{Fields: azureInvoiceFields(result.AnalyzeResult)}, nil
}

func (a *Azure) analyze(ctx context.Context, data []byte) (string, error) {
	service := "documentintelligence"
	if a.legacy {
		service = "formrecognizer"
	}

	req, err := autorest.CreatePreparer(
		autorest.AsPost(),
		autorest.WithBaseURL(a.endpoint),
		autorest.WithPath(service+"/"+azureModelPath),
		autorest.WithQueryParameters(map[string]interface{}{
			"api-version":     a.apiVersion,
			"features":        "ocrHighResolution",
			"locale":          "en",
			"stringIndexType": "unicodeCodePoint",
		}),
		autorest.AsOctetStream(),
		autorest.WithBytes(&data),
		a.authorizer.WithAuthorization(),
	).Prepare((&http.Request{}).WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("preparing analyze request: %w", err)
	}

	resp, err := autorest.SendWithSender(a.client, req)
	if err != nil {
		return "", transportError(azureProvider, "submitting document", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return "", rejected(azureProvider, "unexpected status %d", resp.StatusCode)
		}
		return "", statusError(azureProvider, resp.StatusCode, body)
	}

	operation := resp.Header.Get(azureOperationHeader)
	if operation == "" {
		return "", rejected(azureProvider, "no %s header in response", azureOperationHeader)
	}
	return operation, nil
}

func (a *Azure) fetch(ctx context.Context, operation string, out *azureOperation) error {
	req, err := autorest.CreatePreparer(
		autorest.AsGet(),
		autorest.WithBaseURL(operation),
		a.authorizer.WithAuthorization(),
	).Prepare((&http.Request{}).WithContext(ctx))
	if err != nil {
		return fmt.Errorf("preparing result request: %w", err)
	}
	return doJSON(a.client, azureProvider, req, out)
}

func (o azureOperation) errorMessage() string {
	if o.Error == nil {
		return "unknown error"
	}
	if len(o.Error.Details) > 0 && o.Error.Details[0].Message != "" {
		return o.Error.Details[0].Message
	}
	return o.Error.Message
}

// Close is a no-op for the HTTP client
func (a *Azure) Close() error {
	return nil
}

func (f azureField) text() string {
	if f.ValueString != "" {
		return f.ValueString
	}
	return strings.TrimSpace(f.Content)
}

func (f azureField) date() string {
	if f.ValueDate != "" {
		return f.ValueDate
	}
	return strings.TrimSpace(f.Content)
}

func (f azureField) money() (map[string]any, bool) {
	if f.ValueCurrency != nil {
		return map[string]any{"amount": f.ValueCurrency.Amount, "currencyCode": f.ValueCurrency.CurrencyCode}, true
	}
	if f.ValueNumber != nil {
		return map[string]any{"amount": *f.ValueNumber}, true
	}
	return nil, false
}

// azureInvoiceFields maps the prebuilt invoice field tree onto canonical keys
func azureInvoiceFields(res *azureAnalyzeResult) map[string]any {
	notes := azureHandwriting(res)
	out := map[string]any{
		"lineItems":        []any{},
		"handwrittenNotes": notes,
	}
	fieldConfidence := map[string]any{}

	var doc azureDocument
	if len(res.Documents) > 0 {
		doc = res.Documents[0]
	}
	fields := doc.Fields

	track := func(key string, f azureField) {
		if f.Confidence != nil {
			fieldConfidence[key] = *f.Confidence
		}
	}
	text := func(key string, names ...string) {
		for _, name := range names {
			if f, ok := fields[name]; ok && f.text() != "" {
				out[key] = f.text()
				track(key, f)
				return
			}
		}
	}
	date := func(key, name string) {
		if f, ok := fields[name]; ok && f.date() != "" {
			out[key] = f.date()
			track(key, f)
		}
	}
	money := func(key string, names ...string) {
		for _, name := range names {
			if f, ok := fields[name]; ok {
				if v, ok := f.money(); ok {
					out[key] = v
					track(key, f)
					return
				}
			}
		}
	}

	text("vendorName", "VendorName")
	text("vendorAddress", "VendorAddress")
	text("clientName", "CustomerName")
	text("clientAddress", "CustomerAddress", "BillingAddress")
	text("invoiceNumber", "InvoiceId")
	text("paymentTerms", "PaymentTerm")
	date("invoiceDate", "InvoiceDate")
	date("dueDate", "DueDate")
	money("totalAmount", "InvoiceTotal", "AmountDue")
	money("subtotalAmount", "SubTotal")
	money("taxAmount", "TotalTax")
	money("discountAmount", "TotalDiscount")

	var contact []string
	for _, name := range []string{"VendorPhoneNumber", "VendorEmail"} {
		if f, ok := fields[name]; ok && f.text() != "" {
			contact = append(contact, f.text())
		}
	}
	if len(contact) > 0 {
		out["vendorContact"] = strings.Join(contact, ", ")
	}

	if total, ok := fields["InvoiceTotal"]; ok && total.ValueCurrency != nil && total.ValueCurrency.CurrencyCode != "" {
		out["currency"] = total.ValueCurrency.CurrencyCode
	}

	if items, ok := fields["Items"]; ok {
		lineItems := make([]any, 0, len(items.ValueArray))
		for _, item := range items.ValueArray {
			lineItems = append(lineItems, azureLineItem(item.ValueObject))
		}
		out["lineItems"] = lineItems
	}

	out["confidenceScores"] = map[string]any{
		"overall":          overallConfidence(doc),
		"vendorInfo":       presence(out["vendorName"] != nil, 0.9, 0.5),
		"invoiceDetails":   presence(out["invoiceNumber"] != nil, 0.9, 0.5),
		"lineItems":        presence(len(out["lineItems"].([]any)) > 0, 0.85, 0.5),
		"totals":           presence(out["totalAmount"] != nil, 0.9, 0.5),
		"handwrittenNotes": handwritingConfidence(notes),
		"fieldSpecific":    fieldConfidence,
	}
	return out
}

func azureLineItem(props map[string]azureField) map[string]any {
	item := map[string]any{}
	if f, ok := props["Description"]; ok {
		item["description"] = f.text()
	}
	if f, ok := props["ProductCode"]; ok {
		item["itemCode"] = f.text()
	}
	if f, ok := props["Quantity"]; ok && f.ValueNumber != nil {
		item["quantity"] = *f.ValueNumber
	}
	if f, ok := props["UnitPrice"]; ok {
		if v, ok := f.money(); ok {
			item["unitPrice"] = v
		}
	}
	if f, ok := props["Amount"]; ok {
		if v, ok := f.money(); ok {
			item["amount"] = v
		}
	}
	return item
}

// azureHandwriting collects the content spans the service marked handwritten
func azureHandwriting(res *azureAnalyzeResult) []any {
	notes := []any{}
	content := []rune(res.Content)
	for _, style := range res.Styles {
		if style.IsHandwritten == nil || !*style.IsHandwritten {
			continue
		}
		for _, span := range style.Spans {
			end := span.Offset + span.Length
			if span.Offset < 0 || span.Length <= 0 || end > len(content) {
				continue
			}
			text := strings.TrimSpace(string(content[span.Offset:end]))
			if text == "" {
				continue
			}
			notes = append(notes, map[string]any{"text": text, "confidence": style.Confidence})
		}
	}
	return notes
}

func handwritingConfidence(notes []any) float64 {
	if len(notes) == 0 {
		return 0
	}
	var sum float64
	for _, n := range notes {
		sum += n.(map[string]any)["confidence"].(float64)
	}
	return sum / float64(len(notes))
}

func overallConfidence(doc azureDocument) float64 {
	if doc.Confidence > 0 {
		return doc.Confidence
	}
	return 0.85
}

func presence(found bool, yes, no float64) float64 {
	if found {
		return yes
	}
	return no
}
