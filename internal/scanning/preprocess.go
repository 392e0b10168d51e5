package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"log/slog"
	"mime"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

const (
	mimePDF  = "application/pdf"
	mimePNG  = "image/png"
	mimeHEIC = "image/heic"

	// DefaultMaxDimension bounds the longest side of images sent to providers
	DefaultMaxDimension = 2048
)

// Prepared is a document ready to hand to a provider
type Prepared struct {
	Data      []byte
	MimeType  string
	Converted bool
	Pages     int
}

// pdfDocument is the part of a PDF renderer the preprocessor uses
type pdfDocument interface {
	NumPage() int
	Image(page int) (image.Image, error)
	Close() error
}

type fitzDocument struct {
	doc *fitz.Document
}

func (d fitzDocument) NumPage() int { return d.doc.NumPage() }

func (d fitzDocument) Image(page int) (image.Image, error) {
	img, err := d.doc.Image(page)
	if err != nil {
		return nil, err
	}
	return img, nil
}

func (d fitzDocument) Close() error { return d.doc.Close() }

func openFitz(data []byte) (pdfDocument, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, err
	}
	return fitzDocument{doc: doc}, nil
}

// Preprocessor turns uploaded bytes into something a provider accepts.
//
// PDFs are passed through to providers that read PDF natively. For every
// other provider only the first page is rendered: multi-page PDFs are
// truncated to page 1. Images are decoded (HEIC included), downscaled to
// MaxDimension and re-encoded as PNG.
type Preprocessor struct {
	MaxDimension int
	Enhance      bool

	openPDF func([]byte) (pdfDocument, error)
}

// NewPreprocessor creates a Preprocessor. A non-positive maxDimension
// selects DefaultMaxDimension.
func NewPreprocessor(maxDimension int, enhance bool) *Preprocessor {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	return &Preprocessor{
		MaxDimension: maxDimension,
		Enhance:      enhance,
		openPDF:      openFitz,
	}
}

// Prepare detects the format of data and converts it for a provider that
// does or does not accept PDF input.
func (p *Preprocessor) Prepare(data []byte, declaredMimeType, filename string, acceptsPDF bool) (*Prepared, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty document: %w", ErrUnsupportedFormat)
	}

	mimeType := normalizeMimeType(declaredMimeType)
	switch format := detectFormat(data, mimeType, filename); format {
	case "pdf":
		return p.preparePDF(data, acceptsPDF)
	case "heic":
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w: %w", ErrUnsupportedFormat, err)
		}
		return p.prepareRaster(img, 1)
	case "":
		return nil, fmt.Errorf("declared %q, file %q: %w", mimeType, filename, ErrUnsupportedFormat)
	default:
		img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("decoding %s image: %w: %w", format, ErrUnsupportedFormat, err)
		}
		if format == "png" && !p.needsRework(img) {
			return &Prepared{Data: data, MimeType: mimePNG, Pages: 1}, nil
		}
		return p.prepareRaster(img, 1)
	}
}

func (p *Preprocessor) preparePDF(data []byte, acceptsPDF bool) (*Prepared, error) {
	open := p.openPDF
	if open == nil {
		open = openFitz
	}
	doc, err := open(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w: %w", ErrUnsupportedFormat, err)
	}
	defer doc.Close()

	pages := doc.NumPage()
	if pages < 1 {
		return nil, fmt.Errorf("PDF has no pages: %w", ErrUnsupportedFormat)
	}

	if acceptsPDF {
		return &Prepared{Data: data, MimeType: mimePDF, Pages: pages}, nil
	}

	if pages > 1 {
		slog.Info("Rendering first page of multi-page PDF only", "pages", pages)
	}
	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w: %w", ErrUnsupportedFormat, err)
	}
	return p.prepareRaster(img, pages)
}

func (p *Preprocessor) needsRework(img image.Image) bool {
	b := img.Bounds()
	return p.Enhance || b.Dx() > p.maxDimension() || b.Dy() > p.maxDimension()
}

func (p *Preprocessor) maxDimension() int {
	if p.MaxDimension <= 0 {
		return DefaultMaxDimension
	}
	return p.MaxDimension
}

func (p *Preprocessor) prepareRaster(img image.Image, pages int) (*Prepared, error) {
	b := img.Bounds()
	if limit := p.maxDimension(); b.Dx() > limit || b.Dy() > limit {
		img = imaging.Fit(img, limit, limit, imaging.Lanczos)
	}
	if p.Enhance {
		img = enhance(img)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return &Prepared{Data: buf.Bytes(), MimeType: mimePNG, Converted: true, Pages: pages}, nil
}

// enhance improves text legibility on photographed documents
func enhance(img image.Image) image.Image {
	out := imaging.Grayscale(img)
	out = imaging.AdjustContrast(out, 30)
	out = imaging.Sharpen(out, 1.5)
	out = imaging.AdjustBrightness(out, 10)
	return imaging.AdjustGamma(out, 1.2)
}

// normalizeMimeType lowercases a content type and strips its parameters
func normalizeMimeType(contentType string) string {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		return mediaType
	}
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	return contentType
}

// detectFormat names the document format. Byte signatures win over the
// declared type and file extension.
func detectFormat(data []byte, mimeType, filename string) string {
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return "pdf"
	}
	if isHEICFormat(data) {
		return "heic"
	}
	if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		return format
	}

	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case mimeType == mimePDF || ext == ".pdf":
		return "pdf"
	case isHEICMimeType(mimeType) || ext == ".heic" || ext == ".heif":
		return "heic"
	}
	return ""
}

// isHEICFormat checks the ISO BMFF ftyp box for HEIC/HEIF brands
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	return mimeType == mimeHEIC || mimeType == "image/heif" ||
		strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
