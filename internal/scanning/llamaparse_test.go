package scanning

import (
	"context"
	"errors"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/zombor/invoice-ocr/internal/invoice"
)

var _ = Describe("LlamaParse", func() {
	var (
		server  *ghttp.Server
		scanner *LlamaParse
		waits   int
		resp    *Response
		err     error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		waits = 0
		poller := NewPoller("llamaparse", 3, time.Second)
		poller.Sleep = func(context.Context, time.Duration) error {
			waits++
			return nil
		}
		scanner = NewLlamaParse(LlamaParseConfig{
			APIKey:           "llx-key",
			BaseURL:          server.URL() + "/parsing",
			Poller:           poller,
			StructureAPIKey:  "sk-key",
			StructureBaseURL: server.URL() + "/v1",
		})
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		resp, err = scanner.Scan(context.Background(), []byte("%PDF-1.7"), "application/pdf", "extract the receipt")
	})

	uploadHandler := func() http.HandlerFunc {
		return ghttp.CombineHandlers(
			ghttp.VerifyRequest("POST", "/parsing/upload"),
			ghttp.VerifyHeaderKV("Authorization", "Bearer llx-key"),
			verifyBodyContains(`name="parsing_instruction"`, "extract the receipt", `name="result_type"`, "markdown", `filename="document.pdf"`),
			ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{"id": "job-1", "status": "PENDING"}),
		)
	}

	statusHandler := func(status string) http.HandlerFunc {
		return ghttp.CombineHandlers(
			ghttp.VerifyRequest("GET", "/parsing/job/job-1"),
			ghttp.VerifyHeaderKV("Authorization", "Bearer llx-key"),
			ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{"id": "job-1", "status": status}),
		)
	}

	resultHandler := func(markdown string) http.HandlerFunc {
		return ghttp.CombineHandlers(
			ghttp.VerifyRequest("GET", "/parsing/job/job-1/result/markdown"),
			ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{"markdown": markdown}),
		)
	}

	When("the job succeeds", func() {
		BeforeEach(func() {
			server.AppendHandlers(
				uploadHandler(),
				statusHandler("PENDING"),
				statusHandler("SUCCESS"),
				resultHandler("# ACME LTD\n\n| Item | Amount |\n| Anvil | 100 |"),
				ghttp.CombineHandlers(
					ghttp.VerifyRequest("POST", "/v1/chat/completions"),
					ghttp.VerifyHeaderKV("Authorization", "Bearer sk-key"),
					verifyBodyContains("extract the receipt", "ACME LTD", `"model":"gpt-4o"`),
					ghttp.RespondWithJSONEncoded(http.StatusOK, chatReply(`{"vendorName":"Acme Ltd"}`)),
				),
			)
		})

		It("should return the structured text", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Text).To(Equal(`{"vendorName":"Acme Ltd"}`))
		})

		It("should wait between status checks", func() {
			Expect(waits).To(Equal(1))
			Expect(server.ReceivedRequests()).To(HaveLen(5))
		})
	})

	When("the job fails", func() {
		BeforeEach(func() {
			server.AppendHandlers(
				uploadHandler(),
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{"id": "job-1", "status": "ERROR", "error_message": "unreadable file"}),
			)
		})

		It("should return a ServiceRejected error with the reason", func() {
			var adapterErr *AdapterError
			Expect(errors.As(err, &adapterErr)).To(BeTrue())
			Expect(adapterErr.Kind).To(Equal(invoice.ServiceRejected))
			Expect(adapterErr.Message).To(ContainSubstring("unreadable file"))
			Expect(server.ReceivedRequests()).To(HaveLen(2))
		})
	})

	When("the job never settles", func() {
		BeforeEach(func() {
			server.AppendHandlers(
				uploadHandler(),
				statusHandler("PENDING"),
				statusHandler("PENDING"),
				statusHandler("PENDING"),
			)
		})

		It("should return a Timeout error", func() {
			var adapterErr *AdapterError
			Expect(errors.As(err, &adapterErr)).To(BeTrue())
			Expect(adapterErr.Kind).To(Equal(invoice.Timeout))
			Expect(waits).To(Equal(2))
		})
	})

	When("the result is empty", func() {
		BeforeEach(func() {
			server.AppendHandlers(uploadHandler(), statusHandler("SUCCESS"), resultHandler("  "))
		})

		It("should not call the chat model", func() {
			var adapterErr *AdapterError
			Expect(errors.As(err, &adapterErr)).To(BeTrue())
			Expect(adapterErr.Kind).To(Equal(invoice.ServiceRejected))
			Expect(server.ReceivedRequests()).To(HaveLen(3))
		})
	})

	When("the upload is rejected", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusUnauthorized, `{"detail":"invalid api key"}`))
		})

		It("should not poll", func() {
			Expect(err).To(HaveOccurred())
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})
	})
})

var _ = Describe("LlamaParse capabilities", func() {
	It("should read PDFs and need both keys", func() {
		scanner := NewLlamaParse(LlamaParseConfig{})
		Expect(scanner.Name()).To(Equal("llamaparse"))
		Expect(scanner.AcceptsPDF()).To(BeTrue())
		Expect(scanner.RequiredCredentials()).To(ConsistOf("parseApiKey", "visionApiKey"))
	})
})
