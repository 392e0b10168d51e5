package invoice

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Render", func() {
	var (
		rec Record
		out string
	)

	BeforeEach(func() {
		date := "2024-01-15"
		rec = NormalizeFields(map[string]any{
			"vendorName":     "Acme",
			"vendorAddress":  "1 Main St",
			"invoiceNumber":  "INV-1",
			"invoiceDate":    date,
			"subtotalAmount": 10,
			"taxAmount":      1.5,
			"totalAmount":    11.5,
			"currency":       "USD",
			"lineItems": []any{
				map[string]any{"description": "Bolts | nuts", "quantity": 2, "unitPrice": 5, "amount": 10},
			},
		}, Meta{Engine: "openai"})
	})

	JustBeforeEach(func() {
		out = Render(rec)
	})

	It("should be idempotent", func() {
		Expect(Render(rec)).To(Equal(out))
		Expect(rec.MarkdownOutput).To(Equal(out))
	})

	It("should start with the title", func() {
		Expect(out).To(HavePrefix("# Invoice Extraction Result\n\n## Vendor Information\n"))
	})

	It("should render vendor fields and N/A for empty ones", func() {
		Expect(out).To(ContainSubstring("- **Vendor Name**: Acme"))
		Expect(out).To(ContainSubstring("- **Vendor Address**: 1 Main St"))
		Expect(out).To(ContainSubstring("- **Vendor Contact**: N/A"))
	})

	It("should show dates with slashes", func() {
		Expect(out).To(ContainSubstring("- **Invoice Date**: 2024/01/15"))
		Expect(out).To(ContainSubstring("- **Due Date**: N/A"))
	})

	It("should render the line items table with escaped cells", func() {
		Expect(out).To(ContainSubstring("| Description | Quantity | Unit Price | Amount |\n| ----------- | -------- | ---------- | ------ |\n"))
		Expect(out).To(ContainSubstring(`| Bolts \| nuts | 2 | 5 | 10 |`))
	})

	It("should render the totals", func() {
		Expect(out).To(ContainSubstring("- **Subtotal**: 10\n- **Tax**: 1.5\n- **Discount**: 0\n- **Total**: 11.5\n- **Currency**: USD"))
	})

	It("should omit empty optional sections", func() {
		Expect(out).NotTo(ContainSubstring("## Handwritten Notes"))
		Expect(out).NotTo(ContainSubstring("## Processing Error"))
		Expect(out).NotTo(ContainSubstring("## Client Information"))
	})

	When("there are no line items", func() {
		BeforeEach(func() {
			rec.LineItems = []LineItem{}
		})

		It("should say so", func() {
			Expect(out).To(ContainSubstring("## Line Items\n\nNo line items found."))
		})
	})

	When("there are handwritten notes", func() {
		BeforeEach(func() {
			rec.HandwrittenNotes = []HandwrittenNote{{Text: "paid cash", Confidence: 70}, {Text: "thanks"}}
		})

		It("should number them", func() {
			Expect(out).To(ContainSubstring("## Handwritten Notes\n1. paid cash\n2. thanks"))
		})
	})

	When("rendering an error record", func() {
		BeforeEach(func() {
			rec = NewErrorRecord(AuthMissing, "missing geminiApiKey", Meta{Engine: "gemini"})
		})

		It("should include the error", func() {
			Expect(out).To(ContainSubstring("## Processing Error\nAuthMissing: missing geminiApiKey"))
		})

		It("should render every vendor field as N/A", func() {
			Expect(out).To(ContainSubstring("- **Vendor Name**: N/A"))
			Expect(out).To(ContainSubstring("- **Invoice Number**: N/A"))
		})
	})
})
