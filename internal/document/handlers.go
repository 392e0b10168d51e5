package document

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
)

const legacySuffix = "-ocr"

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// handleIndex reports that the API is up and lists its endpoints
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	endpoints := []string{
		"GET /api/providers",
		"POST /api/extract/{provider}",
		"GET /api/documents/{name}",
	}
	for _, p := range s.service.Providers() {
		endpoints = append(endpoints, "POST /"+p.Name+legacySuffix)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "OK",
		"message":   "OCR API is running",
		"endpoints": endpoints,
	})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"providers": s.service.Providers()})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	s.extract(w, r, r.PathValue("provider"))
}

func (s *Server) handleLegacyExtract(w http.ResponseWriter, r *http.Request) {
	endpoint := r.PathValue("endpoint")
	provider, ok := strings.CutSuffix(endpoint, legacySuffix)
	if !ok || provider == "" {
		writeError(w, "Not found", http.StatusNotFound)
		return
	}
	s.extract(w, r, provider)
}

// extract answers 200 with the record for successful and failed extractions
// alike; only request problems get another status
func (s *Server) extract(w http.ResponseWriter, r *http.Request, provider string) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, "File is too large. Maximum size is 50MB.", http.StatusRequestEntityTooLarge)
			return
		}
		writeError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	upload := Upload{
		Filename:     header.Filename,
		ContentType:  contentTypeFor(header.Header.Get("Content-Type"), header.Filename),
		DocumentType: r.FormValue("documentType"),
		Data:         data,
	}

	extraction, err := s.service.Extract(r.Context(), provider, upload)
	switch {
	case errors.Is(err, ErrUnknownProvider):
		writeError(w, "Unknown provider: "+provider, http.StatusNotFound)
		return
	case errors.Is(err, ErrEmptyDocument):
		writeError(w, "Uploaded file is empty", http.StatusBadRequest)
		return
	case err != nil:
		slog.Error("Error extracting document", "provider", provider, "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("X-Document-ID", extraction.ID)
	if extraction.StoredAs != "" {
		w.Header().Set("X-Stored-Document", extraction.StoredAs)
	}
	writeJSON(w, http.StatusOK, extraction.Record)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	data, err := s.service.GetDocument(name)
	if err != nil {
		slog.Warn("Document not found", "name", name, "error", err)
		writeError(w, "Document not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", contentTypeFor("", name))
	w.Write(data)
}

// contentTypeFor falls back to the file extension when the client sent no
// usable content type
func contentTypeFor(declared, filename string) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return "application/octet-stream"
}
