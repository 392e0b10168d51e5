package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/zombor/invoice-ocr/internal/document"
	"github.com/zombor/invoice-ocr/internal/pipeline"
	"github.com/zombor/invoice-ocr/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// .env values never override the real environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	fs := ff.NewFlagSet("invoice-ocr")
	var (
		port        = fs.IntLong("port", 5006, "HTTP server port")
		storagePath = fs.StringLong("storage", "./uploads", "Directory for original uploads (empty disables storage)")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		providers   = fs.StringLong("providers", "mistral,openai,gemini,ms-azure,ollama,llamaparse", "Comma separated providers to enable")
		logLevel    = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")

		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")

		visionKey   = fs.StringLong("vision-key", "", "OpenAI-compatible API key (or set OPENAI_API_KEY env var)")
		visionURL   = fs.StringLong("vision-url", "https://api.openai.com/v1", "OpenAI-compatible API base URL")
		visionModel = fs.StringLong("vision-model", "gpt-4o", "OpenAI-compatible vision model name")

		documentKey   = fs.StringLong("document-key", "", "Mistral API key (or set MISTRAL_API_KEY env var)")
		documentURL   = fs.StringLong("document-url", "https://api.mistral.ai/v1", "Mistral API base URL")
		documentModel = fs.StringLong("document-model", "mistral-small-latest", "Mistral model name")

		managedKey        = fs.StringLong("managed-key", "", "Azure Document Intelligence key (or set AZURE_DOC_INTELLIGENCE_KEY env var)")
		managedEndpoint   = fs.StringLong("managed-endpoint", "", "Azure Document Intelligence endpoint (or set AZURE_DOC_INTELLIGENCE_ENDPOINT env var)")
		managedAPIVersion = fs.StringLong("managed-api-version", "", "Azure Document Intelligence API version (default depends on endpoint)")
		pollAttempts      = fs.IntLong("poll-attempts", scanning.DefaultPollAttempts, "Maximum status checks for asynchronous analysis")
		pollDelay         = fs.DurationLong("poll-delay", scanning.DefaultPollDelay, "Delay between status checks")

		parseKey = fs.StringLong("parse-key", "", "LlamaParse API key (or set LLAMA_CLOUD_API_KEY env var)")
		parseURL = fs.StringLong("parse-url", "https://api.cloud.llamaindex.ai/api/v1/parsing", "LlamaParse parsing API base URL")

		ollamaURL   = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, bakllava, qwen2-vl)")

		maxDimension = fs.IntLong("max-dimension", scanning.DefaultMaxDimension, "Longest image side sent to providers")
		enhance      = fs.BoolLong("enhance", "Apply grayscale, contrast and sharpening before OCR")

		file         = fs.StringLong("file", "", "Extract a single file and print the result instead of serving HTTP")
		provider     = fs.StringLong("provider", "mistral", "Provider used with --file")
		documentType = fs.StringLong("document-type", "invoice", "Document type used with --file: invoice or receipt")
		markdown     = fs.BoolLong("markdown", "Print markdown instead of JSON with --file")
		showVersion  = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("INVOICE_OCR"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid log level %q\n", *logLevel)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := providerConfig{
		credentials: pipeline.Credentials{
			scanning.CredentialGeminiKey:       firstNonEmpty(*geminiKey, os.Getenv("GEMINI_API_KEY")),
			scanning.CredentialVisionKey:       firstNonEmpty(*visionKey, os.Getenv("OPENAI_API_KEY")),
			scanning.CredentialDocumentKey:     firstNonEmpty(*documentKey, os.Getenv("MISTRAL_API_KEY")),
			scanning.CredentialManagedKey:      firstNonEmpty(*managedKey, os.Getenv("AZURE_DOC_INTELLIGENCE_KEY")),
			scanning.CredentialManagedEndpoint: firstNonEmpty(*managedEndpoint, os.Getenv("AZURE_DOC_INTELLIGENCE_ENDPOINT")),
			scanning.CredentialParseKey:        firstNonEmpty(*parseKey, os.Getenv("LLAMA_CLOUD_API_KEY")),
		},
		geminiModel:       *geminiModel,
		visionURL:         *visionURL,
		visionModel:       *visionModel,
		documentURL:       *documentURL,
		documentModel:     *documentModel,
		managedAPIVersion: *managedAPIVersion,
		pollAttempts:      *pollAttempts,
		pollDelay:         *pollDelay,
		parseURL:          *parseURL,
		ollamaURL:         *ollamaURL,
		ollamaModel:       *ollamaModel,
	}
	preprocessor := scanning.NewPreprocessor(*maxDimension, *enhance)

	if *file != "" {
		os.Exit(runOnce(*file, *provider, *documentType, *markdown, cfg, preprocessor))
	}

	pipelines, scanners, err := buildPipelines(strings.Split(*providers, ","), cfg, preprocessor)
	if err != nil {
		slog.Error("Failed to initialize providers", "error", err)
		os.Exit(1)
	}
	defer closeAll(scanners)

	extractors := make([]document.Extractor, 0, len(pipelines))
	for _, p := range pipelines {
		if missing := p.MissingCredentials(); len(missing) > 0 {
			slog.Warn("Provider is missing credentials", "provider", p.Provider(), "missing", strings.Join(missing, ", "))
		} else {
			slog.Info("Provider ready", "provider", p.Provider())
		}
		extractors = append(extractors, p)
	}

	var store document.Storage
	if *storagePath != "" {
		slog.Info("Initializing storage...", "path", *storagePath)
		local, err := document.NewLocalStorage(*storagePath)
		if err != nil {
			slog.Error("Failed to initialize storage", "error", err)
			os.Exit(1)
		}
		store = local
	}

	service := document.NewService(extractors, store)
	server := document.NewServer(service, document.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	})

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}

// runOnce extracts a single file and prints the record. It returns the
// process exit code: 0 on success, 2 when the record carries an error.
func runOnce(path, provider, documentType string, markdown bool, cfg providerConfig, preparer pipeline.Preparer) int {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("Failed to read file", "path", path, "error", err)
		return 1
	}

	pipelines, scanners, err := buildPipelines([]string{provider}, cfg, preparer)
	if err != nil {
		slog.Error("Failed to initialize provider", "provider", provider, "error", err)
		return 1
	}
	defer closeAll(scanners)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	rec := pipelines[0].Process(ctx, data, "", filepath.Base(path), documentType)

	if markdown {
		fmt.Println(rec.MarkdownOutput)
	} else {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rec); err != nil {
			slog.Error("Error encoding record", "error", err)
			return 1
		}
	}

	if rec.Failed() {
		return 2
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
