package scanning

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ExtractJSON", func() {
	var (
		raw    string
		result string
	)

	JustBeforeEach(func() {
		result = ExtractJSON(raw)
	})

	When("the JSON is in a fenced block", func() {
		BeforeEach(func() {
			raw = "Here you go:\n```json\n{\"a\":1}\n```\nThanks"
		})

		It("should return the block content", func() {
			Expect(result).To(Equal(`{"a":1}`))
		})
	})

	When("the fence tag is capitalized", func() {
		BeforeEach(func() {
			raw = "```Json\n{\"a\":1}\n```"
		})

		It("should drop the tag", func() {
			Expect(result).To(Equal(`{"a":1}`))
		})
	})

	When("the fence is tagged with another language", func() {
		BeforeEach(func() {
			raw = "Result:\n```javascript\n{\"a\":1}\n```"
		})

		It("should drop the tag", func() {
			Expect(result).To(Equal(`{"a":1}`))
		})
	})

	When("the fence has no language tag", func() {
		BeforeEach(func() {
			raw = "```\n{\"a\": [1, 2]}\n```"
		})

		It("should return the block content", func() {
			Expect(result).To(Equal(`{"a": [1, 2]}`))
		})
	})

	When("the JSON is surrounded by prose", func() {
		BeforeEach(func() {
			raw = `The invoice data is {"vendorName": "Acme {West}", "n": {"x": 1}} and that is all. {"ignored": true}`
		})

		It("should return the first balanced object", func() {
			Expect(result).To(Equal(`{"vendorName": "Acme {West}", "n": {"x": 1}}`))
		})
	})

	When("strings contain escaped quotes and braces", func() {
		BeforeEach(func() {
			raw = `{"note": "say \"}\" twice"} trailing`
		})

		It("should not end inside the string", func() {
			Expect(result).To(Equal(`{"note": "say \"}\" twice"}`))
		})
	})

	When("the object never balances", func() {
		BeforeEach(func() {
			raw = `prefix {"a": {"b": 1} suffix`
		})

		It("should fall back to the last closing brace", func() {
			Expect(result).To(Equal(`{"a": {"b": 1}`))
		})
	})

	When("there is no object at all", func() {
		BeforeEach(func() {
			raw = "  I could not read the document.  "
		})

		It("should return the trimmed text", func() {
			Expect(result).To(Equal("I could not read the document."))
		})
	})

	When("a fence is left unterminated", func() {
		BeforeEach(func() {
			raw = "```json\n"
		})

		It("should strip the marker", func() {
			Expect(result).To(BeEmpty())
		})
	})

	When("an unterminated fence has an unusual tag", func() {
		BeforeEach(func() {
			raw = "```JSON5\n"
		})

		It("should strip the marker", func() {
			Expect(result).To(BeEmpty())
		})
	})
})

var _ = Describe("Instruction", func() {
	It("should name the document type", func() {
		Expect(Instruction("receipt")).To(ContainSubstring("financial document (receipt)"))
	})

	It("should default to invoice", func() {
		Expect(Instruction("spaceship")).To(ContainSubstring("financial document (invoice)"))
		Expect(Instruction("")).To(Equal(Instruction("invoice")))
	})

	It("should list the canonical fields", func() {
		prompt := Instruction("invoice")
		for _, field := range []string{"vendorName", "invoiceNumber", "totalAmount", "lineItems", "handwrittenNotes"} {
			Expect(prompt).To(ContainSubstring(`"` + field + `"`))
		}
	})
})
