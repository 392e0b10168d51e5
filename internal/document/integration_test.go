package document

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/zombor/invoice-ocr/internal/invoice"
	"github.com/zombor/invoice-ocr/internal/pipeline"
	"github.com/zombor/invoice-ocr/internal/scanning"
)

var _ = Describe("Integration", func() {
	var (
		storagePath string
		provider    *ghttp.Server
		api         *ghttp.Server
		credentials pipeline.Credentials
	)

	BeforeEach(func() {
		storagePath = filepath.Join(GinkgoT().TempDir(), "uploads")
		provider = ghttp.NewServer()
		api = ghttp.NewServer()
		credentials = pipeline.Credentials{scanning.CredentialVisionKey: "sk-test"}
	})

	JustBeforeEach(func() {
		store, err := NewLocalStorage(storagePath)
		Expect(err).NotTo(HaveOccurred())

		openai := scanning.NewOpenAI(scanning.OpenAIConfig{APIKey: credentials[scanning.CredentialVisionKey], BaseURL: provider.URL()})
		p := pipeline.New(openai, scanning.NewPreprocessor(0, false), credentials, nil)
		server := NewServer(NewService([]Extractor{p}, store), BasicAuth{})
		api.AppendHandlers(server.ServeHTTP)
	})

	AfterEach(func() {
		api.Close()
		provider.Close()
	})

	upload := func() *http.Response {
		img := image.NewRGBA(image.Rect(0, 0, 8, 8))
		for x := 0; x < 8; x++ {
			for y := 0; y < 8; y++ {
				img.Set(x, y, color.Black)
			}
		}
		var data bytes.Buffer
		Expect(png.Encode(&data, img)).To(Succeed())

		body, ct := multipartBody("file", "scan.png", data.Bytes(), nil)
		resp, err := http.Post(api.URL()+"/api/extract/openai", ct, body)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	It("should extract an uploaded image through the provider", func() {
		provider.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest("POST", "/chat/completions"),
			ghttp.VerifyHeaderKV("Authorization", "Bearer sk-test"),
			ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"choices": []any{map[string]any{"message": map[string]any{
					"role":    "assistant",
					"content": "```json\n{\"vendorName\": \"Acme\", \"invoiceNumber\": \"INV-1\", \"totalAmount\": \"$100.00\", \"lineItems\": []}\n```",
				}}},
			}),
		))

		resp := upload()
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var rec invoice.Record
		Expect(json.NewDecoder(resp.Body).Decode(&rec)).To(Succeed())
		Expect(rec.VendorName).To(Equal("Acme"))
		Expect(rec.InvoiceNumber).To(Equal("INV-1"))
		Expect(rec.TotalAmount).To(Equal(100.0))
		Expect(rec.Currency).To(Equal("USD"))
		Expect(rec.ProcessingMetadata.OCREngine).To(Equal("openai"))
		Expect(rec.MarkdownOutput).To(ContainSubstring("- **Vendor Name**: Acme"))
		Expect(invoice.Validate(rec)).To(Succeed())

		stored := resp.Header.Get("X-Stored-Document")
		Expect(stored).To(HaveSuffix("_scan.png"))
		Expect(filepath.Join(storagePath, stored)).To(BeAnExistingFile())
	})

	When("the provider key is missing", func() {
		BeforeEach(func() {
			credentials = pipeline.Credentials{}
		})

		It("should answer with an AuthMissing record without calling the provider", func() {
			resp := upload()
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var rec invoice.Record
			Expect(json.NewDecoder(resp.Body).Decode(&rec)).To(Succeed())
			Expect(rec.ProcessingMetadata.Error).To(ContainSubstring("visionApiKey"))
			Expect(provider.ReceivedRequests()).To(BeEmpty())
		})
	})
})
