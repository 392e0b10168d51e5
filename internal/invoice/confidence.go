package invoice

// Default scores are fixed heuristics per engine. They are not calibrated
// against ground truth and only signal how much a given engine is trusted
// when it reports nothing itself.
var defaultScores = map[string][6]float64{
	// overall, vendorInfo, invoiceDetails, lineItems, totals, handwrittenNotes
	"mistral":    {85, 85, 85, 85, 85, 70},
	"openai":     {80, 80, 80, 80, 80, 60},
	"gemini":     {80, 80, 80, 80, 80, 60},
	"ollama":     {60, 60, 60, 60, 60, 40},
	"ms-azure":   {90, 90, 90, 90, 90, 0},
	"llamaparse": {80, 80, 80, 80, 80, 50},
}

var fallbackScores = [6]float64{50, 50, 50, 50, 50, 30}

// DefaultConfidence returns the synthesized scores used when a provider
// does not report its own.
func DefaultConfidence(engine string) ConfidenceScores {
	s, ok := defaultScores[engine]
	if !ok {
		s = fallbackScores
	}
	return ConfidenceScores{
		Overall:          s[0],
		VendorInfo:       s[1],
		InvoiceDetails:   s[2],
		LineItems:        s[3],
		Totals:           s[4],
		HandwrittenNotes: s[5],
		FieldSpecific:    map[string]float64{},
	}
}
