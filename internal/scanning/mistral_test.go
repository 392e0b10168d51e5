package scanning

import (
	"context"
	"errors"
	"io"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/zombor/invoice-ocr/internal/invoice"
)

func chatReply(content string) map[string]any {
	return map[string]any{
		"id": "chat-1",
		"choices": []any{
			map[string]any{"message": map[string]any{"role": "assistant", "content": content}},
		},
	}
}

func verifyBodyContains(parts ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		Expect(err).NotTo(HaveOccurred())
		for _, p := range parts {
			Expect(string(body)).To(ContainSubstring(p))
		}
	}
}

var _ = Describe("Mistral", func() {
	var (
		server   *ghttp.Server
		scanner  *Mistral
		mimeType string
		resp     *Response
		err      error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		scanner = NewMistral(MistralConfig{APIKey: "key", BaseURL: server.URL()})
		mimeType = "application/pdf"
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		resp, err = scanner.Scan(context.Background(), []byte("%PDF-1.7"), mimeType, "extract it")
	})

	uploadHandlers := func() []http.HandlerFunc {
		return []http.HandlerFunc{
			ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/files"),
				ghttp.VerifyHeaderKV("Authorization", "Bearer key"),
				verifyBodyContains(`name="purpose"`, "ocr", `filename="invoice_document_`),
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{"id": "file-1"}),
			),
			ghttp.CombineHandlers(
				ghttp.VerifyRequest("GET", "/files/file-1/url"),
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{"url": "https://signed.example/file-1"}),
			),
		}
	}

	deleteHandler := func(status int) http.HandlerFunc {
		return ghttp.CombineHandlers(
			ghttp.VerifyRequest("DELETE", "/files/file-1"),
			ghttp.VerifyHeaderKV("Authorization", "Bearer key"),
			ghttp.RespondWith(status, `{"id":"file-1","deleted":true}`),
		)
	}

	When("a PDF is read successfully", func() {
		BeforeEach(func() {
			server.AppendHandlers(uploadHandlers()...)
			server.AppendHandlers(
				ghttp.CombineHandlers(
					ghttp.VerifyRequest("POST", "/chat/completions"),
					verifyBodyContains(`"document_url":"https://signed.example/file-1"`, `"model":"mistral-small-latest"`),
					ghttp.RespondWithJSONEncoded(http.StatusOK, chatReply(`{"vendorName":"Acme"}`)),
				),
				deleteHandler(http.StatusOK),
			)
		})

		It("should return the model text", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Text).To(Equal(`{"vendorName":"Acme"}`))
		})

		It("should delete the upload", func() {
			Expect(server.ReceivedRequests()).To(HaveLen(4))
			Expect(server.ReceivedRequests()[3].Method).To(Equal("DELETE"))
		})
	})

	When("the chat call fails", func() {
		BeforeEach(func() {
			server.AppendHandlers(uploadHandlers()...)
			server.AppendHandlers(
				ghttp.CombineHandlers(
					ghttp.VerifyRequest("POST", "/chat/completions"),
					ghttp.RespondWith(http.StatusInternalServerError, `{"message":"boom"}`),
				),
				deleteHandler(http.StatusOK),
			)
		})

		It("should return a ServiceRejected error", func() {
			var adapterErr *AdapterError
			Expect(errors.As(err, &adapterErr)).To(BeTrue())
			Expect(adapterErr.Kind).To(Equal(invoice.ServiceRejected))
			Expect(adapterErr.Message).To(ContainSubstring("boom"))
		})

		It("should still delete the upload", func() {
			Expect(server.ReceivedRequests()).To(HaveLen(4))
			Expect(server.ReceivedRequests()[3].Method).To(Equal("DELETE"))
		})
	})

	When("the chat call is rate limited", func() {
		BeforeEach(func() {
			server.AppendHandlers(uploadHandlers()...)
			server.AppendHandlers(
				ghttp.RespondWith(http.StatusTooManyRequests, `{"message":"slow down"}`),
				deleteHandler(http.StatusOK),
			)
		})

		It("should return a RateLimited error", func() {
			var adapterErr *AdapterError
			Expect(errors.As(err, &adapterErr)).To(BeTrue())
			Expect(adapterErr.Kind).To(Equal(invoice.RateLimited))
		})
	})

	When("deleting the upload fails", func() {
		BeforeEach(func() {
			server.AppendHandlers(uploadHandlers()...)
			server.AppendHandlers(
				ghttp.RespondWithJSONEncoded(http.StatusOK, chatReply("{}")),
				deleteHandler(http.StatusInternalServerError),
			)
		})

		It("should still return the result", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Text).To(Equal("{}"))
		})
	})

	When("the upload is rejected", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusUnauthorized, `{"message":"bad key"}`))
		})

		It("should not call anything else", func() {
			Expect(err).To(HaveOccurred())
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})
	})

	When("an image is sent", func() {
		BeforeEach(func() {
			mimeType = "image/png"
			server.AppendHandlers(
				ghttp.CombineHandlers(
					ghttp.VerifyRequest("POST", "/chat/completions"),
					verifyBodyContains(`"image_url":"data:image/png;base64,`),
					ghttp.RespondWithJSONEncoded(http.StatusOK, chatReply("{}")),
				),
			)
		})

		It("should inline it without uploading", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})
	})
})

var _ = Describe("Mistral capabilities", func() {
	It("should read PDFs and need the document key", func() {
		scanner := NewMistral(MistralConfig{})
		Expect(scanner.Name()).To(Equal("mistral"))
		Expect(scanner.AcceptsPDF()).To(BeTrue())
		Expect(scanner.RequiredCredentials()).To(ConsistOf("documentApiKey"))
	})
})
