package invoice

import "time"

// Record is the canonical invoice shape every provider converges to.
// Records are built once per extraction and treated as immutable afterwards.
type Record struct {
	VendorName    string `json:"vendorName"`
	VendorAddress string `json:"vendorAddress"`
	VendorContact string `json:"vendorContact"`
	ClientName    string `json:"clientName"`
	ClientAddress string `json:"clientAddress"`

	InvoiceNumber string  `json:"invoiceNumber"`
	InvoiceDate   *string `json:"invoiceDate"` // YYYY-MM-DD, or the raw text when unparseable
	DueDate       *string `json:"dueDate"`

	TotalAmount    float64 `json:"totalAmount"`
	SubtotalAmount float64 `json:"subtotalAmount"`
	TaxAmount      float64 `json:"taxAmount"`
	DiscountAmount float64 `json:"discountAmount"`
	Currency       string  `json:"currency"`
	PaymentTerms   string  `json:"paymentTerms"`
	PaymentMethod  string  `json:"paymentMethod"`

	LineItems        []LineItem        `json:"lineItems"`
	HandwrittenNotes []HandwrittenNote `json:"handwrittenNotes"`

	ConfidenceScores   ConfidenceScores   `json:"confidenceScores"`
	ProcessingMetadata ProcessingMetadata `json:"processingMetadata"`

	MarkdownOutput string `json:"markdownOutput"`
	AdditionalInfo string `json:"additionalInfo"`
}

// LineItem is a single billed line
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	Amount      float64 `json:"amount"`
	ItemCode    string  `json:"itemCode"`
}

// HandwrittenNote is an annotation the provider believes was written by hand
type HandwrittenNote struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"` // 0-100
}

// ConfidenceScores holds per-section confidence estimates on a 0-100 scale.
type ConfidenceScores struct {
	Overall          float64            `json:"overall"`
	VendorInfo       float64            `json:"vendorInfo"`
	InvoiceDetails   float64            `json:"invoiceDetails"`
	LineItems        float64            `json:"lineItems"`
	Totals           float64            `json:"totals"`
	HandwrittenNotes float64            `json:"handwrittenNotes"`
	FieldSpecific    map[string]float64 `json:"fieldSpecific"`
}

// ProcessingMetadata describes how a record was produced.
// Error is empty for successful extractions.
type ProcessingMetadata struct {
	OCREngine              string  `json:"ocrEngine"`
	ProcessingTime         float64 `json:"processingTime"` // milliseconds
	ProcessingTimestamp    string  `json:"processingTimestamp"`
	DocumentClassification string  `json:"documentClassification"`
	Error                  string  `json:"error,omitempty"`
}

// Meta carries the run facts the normalizer cannot know on its own.
// Keeping time out of the normalizer keeps it deterministic.
type Meta struct {
	Engine         string
	ProcessingTime time.Duration
	Timestamp      time.Time
	Classification string
}

// Failed reports whether the record describes a failed extraction
func (r Record) Failed() bool {
	return r.ProcessingMetadata.Error != ""
}

func (m Meta) metadata() ProcessingMetadata {
	classification := m.Classification
	if classification == "" {
		classification = "invoice"
	}
	ts := ""
	if !m.Timestamp.IsZero() {
		ts = m.Timestamp.UTC().Format(time.RFC3339)
	}
	return ProcessingMetadata{
		OCREngine:              m.Engine,
		ProcessingTime:         float64(m.ProcessingTime.Microseconds()) / 1000,
		ProcessingTimestamp:    ts,
		DocumentClassification: classification,
	}
}

func emptyConfidence() ConfidenceScores {
	return ConfidenceScores{FieldSpecific: map[string]float64{}}
}
