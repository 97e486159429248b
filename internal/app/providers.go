package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"textbook-rag/apps/backend/internal/adapter/anthropic"
	"textbook-rag/apps/backend/internal/adapter/gemini"
	"textbook-rag/apps/backend/internal/config"
	"textbook-rag/apps/backend/internal/retrieval"
)

// Providers holds the embedding and synthesis collaborators. Either may be nil
// when its credential is absent; the retrieval service then fails fast with
// retrieval.ErrConfigurationMissing.
type Providers struct {
	Embedder    retrieval.Embedder
	Synthesizer retrieval.Synthesizer

	closers []func() error
}

func (p *Providers) Close() error {
	var first error
	for _, c := range p.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func BuildProviders(ctx context.Context, cfg *config.Config) (*Providers, error) {
	p := &Providers{}

	var geminiEmbedder *gemini.Embedder
	var geminiSynth *gemini.Synthesizer
	if cfg.GeminiAPIKey != "" {
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		p.closers = append(p.closers, client.Close)

		burst := cfg.EmbedConcurrency
		if burst < 1 {
			burst = 1
		}
		geminiEmbedder = gemini.NewEmbedder(client, cfg.EmbeddingModel, rate.NewLimiter(rate.Limit(cfg.EmbedRatePerSec), burst))
		geminiSynth = gemini.NewSynthesizer(client, cfg.GeminiChatModel)
		p.Embedder = geminiEmbedder
	} else {
		slog.Warn("GEMINI_API_KEY not set, indexing and question answering are disabled")
	}

	switch cfg.SynthProvider {
	case config.SynthProviderGemini:
		if geminiSynth != nil {
			p.Synthesizer = geminiSynth
		}
	default:
		if cfg.ClaudeAPIKey == "" {
			slog.Warn("CLAUDE_API_KEY not set, answer synthesis is disabled")
			break
		}
		synth, err := anthropic.NewSynthesizer(anthropic.Config{
			APIKey:  cfg.ClaudeAPIKey,
			BaseURL: cfg.AnthropicBaseURL,
			Model:   cfg.AnthropicModel,
		})
		if err != nil {
			return nil, err
		}
		p.Synthesizer = synth
	}

	return p, nil
}
