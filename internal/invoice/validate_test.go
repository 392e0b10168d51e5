package invoice

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Validate", func() {
	meta := Meta{Engine: "mistral", ProcessingTime: time.Second, Timestamp: time.Now()}

	It("should accept normalized records", func() {
		rec := NormalizeText(`{"vendorName": "Acme", "lineItems": [{"description": "x", "amount": "3"}]}`, meta)
		Expect(Validate(rec)).To(Succeed())
	})

	It("should accept every kind of error record", func() {
		for _, kind := range []ErrorKind{UnsupportedFormat, AuthMissing, Transport, RateLimited, ServiceRejected, Timeout, JSONDecodeFailure, UnexpectedInternal} {
			Expect(Validate(NewErrorRecord(kind, "boom", meta))).To(Succeed(), string(kind))
		}
	})

	It("should reject negative amounts", func() {
		rec := NormalizeText(`{"vendorName": "Acme"}`, meta)
		rec.TotalAmount = -1
		Expect(Validate(rec)).NotTo(Succeed())
	})

	It("should reject a nil line item list", func() {
		rec := NormalizeText(`{"vendorName": "Acme"}`, meta)
		rec.LineItems = nil
		Expect(Validate(rec)).NotTo(Succeed())
	})
})

var _ = Describe("NewErrorRecord", func() {
	It("should carry the kind and message", func() {
		rec := NewErrorRecord(Timeout, "analysis did not finish", Meta{Engine: "ms-azure"})
		Expect(rec.ProcessingMetadata.Error).To(Equal("Timeout: analysis did not finish"))
		Expect(rec.ProcessingMetadata.OCREngine).To(Equal("ms-azure"))
		Expect(rec.ConfidenceScores.Overall).To(BeZero())
		Expect(rec.MarkdownOutput).To(Equal(Render(rec)))
	})
})

var _ = Describe("Excerpt", func() {
	It("should leave short text alone", func() {
		Expect(Excerpt("héllo", 5)).To(Equal("héllo"))
	})

	It("should cut on runes", func() {
		Expect(Excerpt("héllo wörld", 4)).To(Equal("héll..."))
	})
})
