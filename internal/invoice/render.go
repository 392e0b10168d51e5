package invoice

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const notAvailable = "N/A"

// Render produces the markdown report for a record. It reads nothing but
// the record, so the same record always renders to the same text.
func Render(r Record) string {
	var lines []string
	add := func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}

	add("# Invoice Extraction Result")
	add("")

	add("## Vendor Information")
	add("- **Vendor Name**: %s", orNA(r.VendorName))
	add("- **Vendor Address**: %s", orNA(r.VendorAddress))
	add("- **Vendor Contact**: %s", orNA(r.VendorContact))
	add("")

	if r.ClientName != "" || r.ClientAddress != "" {
		add("## Client Information")
		add("- **Client Name**: %s", orNA(r.ClientName))
		add("- **Client Address**: %s", orNA(r.ClientAddress))
		add("")
	}

	add("## Invoice Details")
	add("- **Invoice Number**: %s", orNA(r.InvoiceNumber))
	add("- **Invoice Date**: %s", displayDate(r.InvoiceDate))
	add("- **Due Date**: %s", displayDate(r.DueDate))
	if r.PaymentTerms != "" {
		add("- **Payment Terms**: %s", r.PaymentTerms)
	}
	if r.PaymentMethod != "" {
		add("- **Payment Method**: %s", r.PaymentMethod)
	}
	add("")

	add("## Line Items")
	add("")
	if len(r.LineItems) == 0 {
		add("No line items found.")
	} else {
		add("| Description | Quantity | Unit Price | Amount |")
		add("| ----------- | -------- | ---------- | ------ |")
		for _, item := range r.LineItems {
			add("| %s | %s | %s | %s |",
				cell(item.Description),
				formatNumber(item.Quantity),
				formatNumber(item.UnitPrice),
				formatNumber(item.Amount),
			)
		}
	}
	add("")

	add("## Totals")
	add("- **Subtotal**: %s", formatNumber(r.SubtotalAmount))
	add("- **Tax**: %s", formatNumber(r.TaxAmount))
	add("- **Discount**: %s", formatNumber(r.DiscountAmount))
	add("- **Total**: %s", formatNumber(r.TotalAmount))
	add("- **Currency**: %s", orNA(r.Currency))

	if len(r.HandwrittenNotes) > 0 {
		add("")
		add("## Handwritten Notes")
		for i, note := range r.HandwrittenNotes {
			add("%d. %s", i+1, note.Text)
		}
	}

	if r.AdditionalInfo != "" {
		add("")
		add("## Additional Information")
		add("%s", r.AdditionalInfo)
	}

	if r.ProcessingMetadata.Error != "" {
		add("")
		add("## Processing Error")
		add("%s", r.ProcessingMetadata.Error)
	}

	return strings.Join(lines, "\n")
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvailable
	}
	return s
}

func displayDate(d *string) string {
	if d == nil || *d == "" {
		return notAvailable
	}
	if t, err := time.Parse("2006-01-02", *d); err == nil {
		return t.Format("2006/01/02")
	}
	return *d
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var cellEscaper = strings.NewReplacer("|", `\|`, "\r\n", " ", "\n", " ", "\r", " ")

func cell(s string) string {
	if s == "" {
		return notAvailable
	}
	return cellEscaper.Replace(s)
}
