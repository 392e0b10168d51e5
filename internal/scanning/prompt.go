package scanning

import (
	"fmt"
	"strings"
)

// documentTypes accepted by Instruction; anything else is read as an invoice
var documentTypes = map[string]bool{
	"invoice": true,
	"receipt": true,
}

const extractionTemplate = `You are analyzing a financial document (%[1]s). Carefully read all printed and handwritten text and extract the information below.

Return ONLY valid JSON in this exact format:
{
  "vendorName": "",
  "vendorAddress": "",
  "vendorContact": "",
  "clientName": "",
  "clientAddress": "",
  "invoiceNumber": "",
  "invoiceDate": "YYYY-MM-DD",
  "dueDate": "YYYY-MM-DD",
  "totalAmount": 0.00,
  "subtotalAmount": 0.00,
  "taxAmount": 0.00,
  "discountAmount": 0.00,
  "currency": "",
  "paymentTerms": "",
  "paymentMethod": "",
  "lineItems": [
    {
      "description": "",
      "quantity": 0,
      "unitPrice": 0.00,
      "amount": 0.00,
      "itemCode": ""
    }
  ],
  "handwrittenNotes": [
    {
      "text": "",
      "confidence": 0
    }
  ]
}

Make sure to:
1. Extract every line item shown on the %[1]s
2. Format dates as YYYY-MM-DD
3. Return amounts as numbers without currency symbols
4. Report the currency as an ISO 4217 code when it can be determined
5. Include any handwritten notes with a confidence from 0 to 100

If a field cannot be found, use an empty string, 0 or an empty list.
Return ONLY the JSON, with no text before or after it.`

// Instruction builds the extraction prompt shared by the text-producing providers
func Instruction(documentType string) string {
	documentType = strings.ToLower(strings.TrimSpace(documentType))
	if !documentTypes[documentType] {
		documentType = "invoice"
	}
	return fmt.Sprintf(extractionTemplate, documentType)
}
