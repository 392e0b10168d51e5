package invoice

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"io"
	"strings"
)

// Alias lists absorb the spellings providers use for canonical keys.
// Case and underscore differences are handled by object.lookup already.
var (
	vendorNameKeys    = []string{"vendorName", "vendor", "merchantName", "merchant", "supplierName", "supplier", "sellerName", "companyName"}
	vendorAddressKeys = []string{"vendorAddress", "merchantAddress", "supplierAddress", "sellerAddress"}
	vendorContactKeys = []string{"vendorContact", "vendorPhone", "vendorEmail", "merchantPhone", "contact"}
	clientNameKeys    = []string{"clientName", "customerName", "client", "customer", "billTo", "buyerName"}
	clientAddressKeys = []string{"clientAddress", "customerAddress", "billingAddress", "buyerAddress"}
	invoiceNumberKeys = []string{"invoiceNumber", "invoiceId", "invoiceNo", "invoiceNum", "receiptNumber", "number"}
	invoiceDateKeys   = []string{"invoiceDate", "date", "issueDate", "transactionDate", "receiptDate"}
	dueDateKeys       = []string{"dueDate", "paymentDueDate", "due"}
	totalKeys         = []string{"total", "amountDue", "grandTotal", "invoiceTotal", "totalDue"}
	subtotalKeys      = []string{"subtotal", "subTotal", "netAmount"}
	taxKeys           = []string{"tax", "totalTax", "vat", "vatAmount", "salesTax"}
	discountKeys      = []string{"discount", "totalDiscount"}
	currencyKeys      = []string{"currency", "currencyCode"}
	paymentTermsKeys  = []string{"paymentTerms", "terms"}
	paymentMethodKeys = []string{"paymentMethod", "paymentType", "tender"}
	lineItemKeys      = []string{"lineItems", "items", "lines", "products"}
	handwrittenKeys   = []string{"handwrittenNotes", "handwriting", "handwrittenText", "annotations"}
	confidenceKeys    = []string{"confidenceScores", "confidence", "scores"}
	additionalKeys    = []string{"additionalInfo", "notes", "remarks"}

	descriptionKeys = []string{"description", "name", "item", "itemName", "desc", "product"}
	quantityKeys    = []string{"quantity", "qty", "count", "units"}
	unitPriceKeys   = []string{"unitPrice", "price", "rate", "unitCost"}
	amountKeys      = []string{"amount", "total", "lineTotal", "totalPrice", "extendedPrice"}
	itemCodeKeys    = []string{"itemCode", "code", "sku", "productCode", "partNumber"}
)

const unknownValue = "Unknown"

// NormalizeText decodes a JSON candidate and coerces it into a Record.
// Text that does not decode into an object yields a JsonDecodeFailure record
// rather than an error.
func NormalizeText(candidate string, meta Meta) Record {
	dec := json.NewDecoder(strings.NewReader(candidate))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return decodeFailureRecord(err, candidate, meta)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return decodeFailureRecord(errors.New("unexpected data after top-level value"), candidate, meta)
	}

	switch t := v.(type) {
	case map[string]any:
		return NormalizeFields(t, meta)
	case []any:
		// some services answer with a list of documents; keep the first
		if len(t) > 0 {
			if first, ok := t[0].(map[string]any); ok {
				return NormalizeFields(first, meta)
			}
		}
	}
	return decodeFailureRecord(fmt.Errorf("top-level JSON value is %s, not an object", jsonKind(v)), candidate, meta)
}

// NormalizeFields coerces an already decoded provider object into a Record.
// The input is not modified.
func NormalizeFields(fields map[string]any, meta Meta) Record {
	obj := object(fields)
	var n notes

	rec := Record{
		VendorAddress: stringField(obj, vendorAddressKeys...),
		VendorContact: stringField(obj, vendorContactKeys...),
		ClientName:    stringField(obj, clientNameKeys...),
		ClientAddress: stringField(obj, clientAddressKeys...),
		InvoiceDate:   obj.date(invoiceDateKeys...),
		DueDate:       obj.date(dueDateKeys...),
		Currency:      stringField(obj, currencyKeys...),
		PaymentTerms:  stringField(obj, paymentTermsKeys...),
		PaymentMethod: stringField(obj, paymentMethodKeys...),
	}

	rec.VendorName = requiredString(obj, vendorNameKeys...)
	rec.InvoiceNumber = requiredString(obj, invoiceNumberKeys...)

	var hint string
	rec.TotalAmount, _, hint = obj.money(&n, "totalAmount", totalKeys...)
	rec.SubtotalAmount, _, _ = obj.money(&n, "subtotalAmount", subtotalKeys...)
	rec.TaxAmount, _, _ = obj.money(&n, "taxAmount", taxKeys...)
	rec.DiscountAmount, _, _ = obj.money(&n, "discountAmount", discountKeys...)
	if rec.Currency == "" {
		rec.Currency = currencyFromHint(hint)
	}

	rec.LineItems = lineItems(obj, &n)
	rec.HandwrittenNotes = handwrittenNotes(obj)
	rec.ConfidenceScores = confidence(obj, meta.Engine)
	rec.ProcessingMetadata = meta.metadata()

	info := stringField(obj, additionalKeys...)
	if msg := stringField(obj, "error"); msg != "" {
		n.add("provider reported: %s", msg)
	}
	rec.AdditionalInfo = joinInfo(info, n)
	rec.MarkdownOutput = Render(rec)

	return rec
}

func stringField(obj object, names ...string) string {
	s, _ := obj.str(names...)
	return s
}

func requiredString(obj object, names ...string) string {
	s, ok := obj.str(names...)
	if !ok || s == "" {
		return unknownValue
	}
	return s
}

func numberField(obj object, n *notes, field string, names ...string) (float64, bool) {
	v, ok, _ := obj.money(n, field, names...)
	return v, ok
}

func lineItems(obj object, n *notes) []LineItem {
	items := []LineItem{}
	v, ok := obj.lookup(lineItemKeys...)
	if !ok {
		return items
	}
	list, ok := v.([]any)
	if !ok {
		n.add("lineItems was not a list; ignored")
		return items
	}

	for i, e := range list {
		switch t := e.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				items = append(items, LineItem{Description: s})
			}
		case map[string]any:
			items = append(items, lineItem(object(t), n, i))
		}
	}
	return items
}

func lineItem(obj object, n *notes, index int) LineItem {
	prefix := fmt.Sprintf("lineItems[%d].", index)
	item := LineItem{
		Description: stringField(obj, descriptionKeys...),
		ItemCode:    stringField(obj, itemCodeKeys...),
	}
	item.Quantity, _ = numberField(obj, n, prefix+"quantity", quantityKeys...)
	item.UnitPrice, _ = numberField(obj, n, prefix+"unitPrice", unitPriceKeys...)

	amount, present := numberField(obj, n, prefix+"amount", amountKeys...)
	if !present && item.Quantity != 0 && item.UnitPrice != 0 {
		amount = item.Quantity * item.UnitPrice
		if math.IsInf(amount, 0) {
			n.add("%samount from quantity and unitPrice is out of range; using 0", prefix)
			amount = 0
		}
	}
	item.Amount = amount
	return item
}

func handwrittenNotes(obj object) []HandwrittenNote {
	out := []HandwrittenNote{}
	v, ok := obj.lookup(handwrittenKeys...)
	if !ok {
		return out
	}
	list, ok := v.([]any)
	if !ok {
		if s, ok := toString(v); ok && s != "" {
			out = append(out, HandwrittenNote{Text: s})
		}
		return out
	}

	for _, e := range list {
		var note HandwrittenNote
		switch t := e.(type) {
		case map[string]any:
			o := object(t)
			note.Text = stringField(o, "text", "content", "note", "value")
			if c, ok := o.lookup("confidence", "score"); ok {
				note.Confidence, _ = percent(c)
			}
		default:
			note.Text, _ = toString(t)
		}
		if note.Text != "" {
			out = append(out, note)
		}
	}
	return out
}

// confidence coerces provider supplied scores and fills whatever is missing
// from the engine defaults.
func confidence(obj object, engine string) ConfidenceScores {
	scores := DefaultConfidence(engine)
	v, ok := obj.lookup(confidenceKeys...)
	if !ok {
		return scores
	}
	src, ok := v.(map[string]any)
	if !ok {
		if overall, ok := percent(v); ok {
			scores.Overall = overall
		}
		return scores
	}

	o := object(src)
	fields := map[string]any{}
	if raw, ok := o.lookup("fieldSpecific", "fields"); ok {
		fields, _ = raw.(map[string]any)
	}
	fractional := fractionalScale(src, fields)

	set := func(dst *float64, names ...string) {
		if raw, ok := o.lookup(names...); ok {
			if p, ok := percentOf(raw, fractional); ok {
				*dst = p
			}
		}
	}
	set(&scores.Overall, "overall")
	set(&scores.VendorInfo, "vendorInfo", "vendor")
	set(&scores.InvoiceDetails, "invoiceDetails", "details")
	set(&scores.LineItems, "lineItems", "items")
	set(&scores.Totals, "totals", "total")
	set(&scores.HandwrittenNotes, "handwrittenNotes", "handwriting")

	for k, fv := range fields {
		if p, ok := percentOf(fv, fractional); ok {
			scores.FieldSpecific[k] = p
		}
	}
	return scores
}

func currencyFromHint(hint string) string {
	switch hint {
	case "":
		return ""
	case "$":
		return "USD"
	case "€":
		return "EUR"
	case "£":
		return "GBP"
	case "¥":
		return "JPY"
	case "₹":
		return "INR"
	case "₩":
		return "KRW"
	case "₦":
		return "NGN"
	case "₱":
		return "PHP"
	}
	return hint
}

func joinInfo(info string, n notes) string {
	parts := make([]string, 0, len(n)+1)
	if info != "" {
		parts = append(parts, info)
	}
	parts = append(parts, n...)
	return strings.Join(parts, "\n")
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "an array"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	case json.Number:
		return "a number"
	}
	return fmt.Sprintf("%T", v)
}
