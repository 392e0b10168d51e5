package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/zombor/invoice-ocr/internal/pipeline"
	"github.com/zombor/invoice-ocr/internal/scanning"
)

// providerConfig carries the settings for every supported provider
type providerConfig struct {
	credentials pipeline.Credentials

	geminiModel string

	visionURL   string
	visionModel string

	documentURL   string
	documentModel string

	managedAPIVersion string
	pollAttempts      int
	pollDelay         time.Duration

	parseURL string

	ollamaURL   string
	ollamaModel string
}

// newScanner builds the adapter for one provider tag
func newScanner(name string, cfg providerConfig) (scanning.Scanner, error) {
	creds := cfg.credentials
	switch name {
	case "gemini":
		return scanning.NewGemini(creds[scanning.CredentialGeminiKey], cfg.geminiModel), nil
	case "openai":
		return scanning.NewOpenAI(scanning.OpenAIConfig{
			APIKey:  creds[scanning.CredentialVisionKey],
			BaseURL: cfg.visionURL,
			Model:   cfg.visionModel,
		}), nil
	case "mistral":
		return scanning.NewMistral(scanning.MistralConfig{
			APIKey:  creds[scanning.CredentialDocumentKey],
			BaseURL: cfg.documentURL,
			Model:   cfg.documentModel,
		}), nil
	case "ms-azure":
		return scanning.NewAzure(scanning.AzureConfig{
			Endpoint:   creds[scanning.CredentialManagedEndpoint],
			APIKey:     creds[scanning.CredentialManagedKey],
			APIVersion: cfg.managedAPIVersion,
			Poller:     scanning.NewPoller("ms-azure", cfg.pollAttempts, cfg.pollDelay),
		}), nil
	case "llamaparse":
		return scanning.NewLlamaParse(scanning.LlamaParseConfig{
			APIKey:           creds[scanning.CredentialParseKey],
			BaseURL:          cfg.parseURL,
			Poller:           scanning.NewPoller("llamaparse", cfg.pollAttempts, cfg.pollDelay),
			StructureAPIKey:  creds[scanning.CredentialVisionKey],
			StructureBaseURL: cfg.visionURL,
			StructureModel:   cfg.visionModel,
		}), nil
	case "ollama":
		return scanning.NewOllama(cfg.ollamaURL, cfg.ollamaModel), nil
	}
	return nil, fmt.Errorf("unknown provider %q (valid: gemini, openai, mistral, ms-azure, ollama, llamaparse)", name)
}

// buildPipelines creates one pipeline per provider tag in names. The returned
// scanners must be closed by the caller.
func buildPipelines(names []string, cfg providerConfig, preparer pipeline.Preparer) ([]*pipeline.Pipeline, []scanning.Scanner, error) {
	var (
		pipelines []*pipeline.Pipeline
		scanners  []scanning.Scanner
		seen      = map[string]bool{}
	)
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		scanner, err := newScanner(name, cfg)
		if err != nil {
			closeAll(scanners)
			return nil, nil, err
		}
		scanners = append(scanners, scanner)
		pipelines = append(pipelines, pipeline.New(scanner, preparer, cfg.credentials, nil))
	}
	if len(pipelines) == 0 {
		return nil, nil, fmt.Errorf("no providers configured")
	}
	return pipelines, scanners, nil
}

func closeAll(scanners []scanning.Scanner) {
	for _, s := range scanners {
		s.Close()
	}
}
